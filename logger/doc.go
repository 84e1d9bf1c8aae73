// Package logger builds the zap logger shared by every component.
//
// Production mode emits JSON with an ISO8601 "timestamp" key, development
// mode emits colored console output. Both write to stderr.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Info("execution finished", zap.String("language", "python"))
package logger

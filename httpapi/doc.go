// Package httpapi exposes the execution orchestrator and the coding assistant
// over HTTP using the chi router.
//
// Routes:
//
//	POST /api/execute        {code, language, input?} -> {output, error, exitCode, executionTime}
//	POST /run/{language}     {code, input?}           -> same as /api/execute
//	GET  /api/languages      registered language profiles
//	POST /ai/ask             {question, language?, history?} -> {answer}
//	GET  /healthz            liveness check
//	GET  /metrics            Prometheus exposition
//
// Execution failures (compile errors, runtime errors, timeouts, rejected
// queries) are normal results and return 200. Only malformed requests return
// 400, with the same result shape and exitCode 1.
package httpapi

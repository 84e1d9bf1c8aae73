package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/isdmx/coderun/metrics"
)

// Janitor periodically removes workspaces left behind by a crashed process.
// Only directories older than maxAge are touched, so in-flight executions
// are never disturbed.
type Janitor struct {
	logger   *zap.Logger
	root     string
	maxAge   time.Duration
	schedule string
	fs       FileSystem
	metrics  *metrics.Collector
	now      func() time.Time
	cron     *cron.Cron
}

// JanitorOption defines a functional option for Janitor
type JanitorOption func(*Janitor)

// WithJanitorFileSystem sets the FileSystem for Janitor
func WithJanitorFileSystem(fs FileSystem) JanitorOption {
	return func(j *Janitor) {
		j.fs = fs
	}
}

// WithJanitorMetrics counts removed workspaces on the collector
func WithJanitorMetrics(c *metrics.Collector) JanitorOption {
	return func(j *Janitor) {
		j.metrics = c
	}
}

// WithJanitorClock overrides the time source
func WithJanitorClock(now func() time.Time) JanitorOption {
	return func(j *Janitor) {
		j.now = now
	}
}

// NewJanitor creates a janitor sweeping root on the given cron schedule
func NewJanitor(logger *zap.Logger, root, schedule string, maxAge time.Duration, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		logger:   logger,
		root:     root,
		maxAge:   maxAge,
		schedule: schedule,
		fs:       RealFileSystem{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start schedules the sweep. An empty schedule disables the janitor.
func (j *Janitor) Start() error {
	if j.schedule == "" {
		j.logger.Info("workspace janitor disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(j.schedule, func() { j.Sweep() }); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.schedule, err)
	}
	c.Start()
	j.cron = c

	j.logger.Info("workspace janitor started",
		zap.String("root", j.root),
		zap.String("schedule", j.schedule),
		zap.Duration("max_age", j.maxAge),
	)
	return nil
}

// Stop halts the schedule and waits for a running sweep
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// Sweep removes stale workspaces once and returns how many were removed
func (j *Janitor) Sweep() int {
	entries, err := j.fs.ReadDir(j.root)
	if err != nil {
		j.logger.Error("failed to list workspace root", zap.String("root", j.root), zap.Error(err))
		return 0
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), WorkspacePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(j.root, entry.Name())
		if err := j.fs.RemoveAll(path); err != nil {
			j.logger.Warn("failed to remove stale workspace", zap.String("path", path), zap.Error(err))
			j.metrics.RecordCleanupFailure()
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info("removed stale workspaces", zap.Int("count", removed))
		j.metrics.RecordJanitorRemoved(removed)
	}
	return removed
}

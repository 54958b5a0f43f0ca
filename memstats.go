package lws

import (
	"context"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
)

// memoryUsageSchedule is how often process memory statistics are reported.
// The interval is 60 seconds; the stream exists for long-running servers and
// a tighter cadence would mostly produce noise.
const memoryUsageSchedule = "@every 60s"

// memoryReporter emits process.memoryUsage verbose events on a recurring
// cron schedule. The schedule is weak: cron runs on ordinary goroutines that
// never extend process lifetime, and stop cancels the job independently of
// any open connection.
type memoryReporter struct {
	cron    *cron.Cron
	subject Subject
	logger  Logger
}

func newMemoryReporter(subject Subject, logger Logger) *memoryReporter {
	return &memoryReporter{
		cron:    cron.New(),
		subject: subject,
		logger:  logger,
	}
}

func (r *memoryReporter) start() error {
	if _, err := r.cron.AddFunc(memoryUsageSchedule, r.report); err != nil {
		return err //nolint:wrapcheck // schedule constant, cannot fail in practice
	}
	r.cron.Start()
	return nil
}

func (r *memoryReporter) stop() {
	<-r.cron.Stop().Done()
}

// report snapshots the runtime memory statistics and emits them with every
// figure rendered human-readable. The payload mirrors the process-stats
// vocabulary: rss for total memory obtained from the OS, heapTotal and
// heapUsed for the heap, external for off-heap (stack) memory.
func (r *memoryReporter) report() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	event := NewVerboseEvent(EventProcessMemoryUsage, "lws", map[string]any{
		"rss":       humanize.Bytes(stats.Sys),
		"heapTotal": humanize.Bytes(stats.HeapSys),
		"heapUsed":  humanize.Bytes(stats.HeapAlloc),
		"external":  humanize.Bytes(stats.StackSys),
	})

	if err := r.subject.NotifyObservers(context.Background(), event); err != nil {
		r.logger.Debug("Failed to emit memory usage", "error", err)
	}
}

// Package profiler - Stage timings and runtime statistics for detection runs.
package profiler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RuntimeProfiler records how long named operations take and periodically logs a
// summary together with memory statistics. It is safe for concurrent use.
type RuntimeProfiler struct {
	reportInterval time.Duration
	maxSamples     int
	logger         *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startTime time.Time
	running   bool

	operations map[string]*TimeTracker
}

// TimeTracker holds the timing statistics of one operation.
type TimeTracker struct {
	durations []time.Duration
	window    time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// OperationStats is a snapshot of a TimeTracker.
type OperationStats struct {
	Name  string
	Count int64
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often Start emits a report (default: 10s).
	ReportInterval time.Duration
	// MaxSamples bounds the rolling window used for averages (default: 600).
	MaxSamples int
	// Logger receives the reports. Nil disables them.
	Logger *zap.Logger
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger,
		startTime:      time.Now(),
		operations:     make(map[string]*TimeTracker),
	}
}

// Start begins periodic reporting. Calling Start on a running profiler does nothing.
func (rp *RuntimeProfiler) Start(ctx context.Context) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	ctx, rp.cancel = context.WithCancel(ctx)
	rp.running = true

	rp.wg.Add(1)
	go rp.reportLoop(ctx)
}

// Stop ends periodic reporting and logs a final report.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		rp.Report()
		return
	}
	rp.running = false
	rp.cancel()
	rp.mu.Unlock()

	rp.wg.Wait()
	rp.Report()
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.RecordOperation(name, time.Since(start))
	}
}

// RecordOperation adds one completed operation.
func (rp *RuntimeProfiler) RecordOperation(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, ok := rp.operations[name]
	if !ok {
		tracker = &TimeTracker{minTime: duration, maxTime: duration}
		rp.operations[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.window += duration
	if len(tracker.durations) > rp.maxSamples {
		tracker.window -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++
	tracker.minTime = min(tracker.minTime, duration)
	tracker.maxTime = max(tracker.maxTime, duration)
}

// Operations returns a snapshot of every tracked operation, sorted by name. Avg covers
// the rolling window; Min and Max cover the whole run.
func (rp *RuntimeProfiler) Operations() []OperationStats {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	stats := make([]OperationStats, 0, len(rp.operations))
	for name, t := range rp.operations {
		stats = append(stats, OperationStats{
			Name:  name,
			Count: t.count,
			Avg:   t.window / time.Duration(len(t.durations)),
			Min:   t.minTime,
			Max:   t.maxTime,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Report logs the operation statistics and the current memory usage.
func (rp *RuntimeProfiler) Report() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rp.logger.Info("runtime",
		zap.Duration("uptime", time.Since(rp.startTime)),
		zap.Int("goroutines", runtime.NumGoroutine()),
		zap.String("heap_alloc", formatBytes(mem.HeapAlloc)),
		zap.String("sys", formatBytes(mem.Sys)),
		zap.Uint32("gc_cycles", mem.NumGC),
	)
	for _, op := range rp.Operations() {
		rp.logger.Info("operation",
			zap.String("name", op.Name),
			zap.Int64("count", op.Count),
			zap.Duration("avg", op.Avg),
			zap.Duration("min", op.Min),
			zap.Duration("max", op.Max),
		)
	}
}

func (rp *RuntimeProfiler) reportLoop(ctx context.Context) {
	defer rp.wg.Done()

	ticker := time.NewTicker(rp.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rp.Report()
		}
	}
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

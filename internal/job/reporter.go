package job

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// LogReporter logs a one-line summary of each snapshot.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a reporter writing through slog.
func NewLogReporter() *LogReporter {
	return &LogReporter{logger: slog.With("component", "status")}
}

func (r *LogReporter) Update(s Snapshot) {
	r.logger.Info("Job status",
		"jobName", s.JobName,
		"state", s.State,
		"submitted", len(s.SubmittedTasks),
		"completed", len(s.CompletedTasks),
		"running", len(s.RunningTasks),
		"reused", len(s.ReusedTasks),
	)
}

var _ Reporter = (*LogReporter)(nil)

// AsyncReporter decouples a slow downstream reporter from the polling
// loop. Snapshots are queued in a bounded channel and forwarded by one
// worker goroutine; when the buffer is full the snapshot is dropped, since
// a newer one always follows.
type AsyncReporter struct {
	sink    Reporter
	queue   chan Snapshot
	dropped atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
	logger   *slog.Logger
}

// NewAsyncReporter wraps sink with a buffer of the given size (default 16
// when size <= 0).
func NewAsyncReporter(sink Reporter, size int) *AsyncReporter {
	if size <= 0 {
		size = 16
	}
	r := &AsyncReporter{
		sink:     sink,
		queue:    make(chan Snapshot, size),
		shutdown: make(chan struct{}),
		logger:   slog.With("component", "status"),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

func (r *AsyncReporter) Update(s Snapshot) {
	if r.closed.Load() {
		return
	}
	select {
	case r.queue <- s:
	default:
		r.dropped.Add(1)
	}
}

// Dropped reports the number of snapshots discarded because the buffer was
// full.
func (r *AsyncReporter) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains pending snapshots and stops the worker. Further updates are
// discarded.
func (r *AsyncReporter) Close(ctx context.Context) error {
	if r.closed.Swap(true) {
		return nil // already closed
	}
	close(r.shutdown)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if dropped := r.dropped.Load(); dropped > 0 {
			r.logger.Debug("Status snapshots dropped", "count", dropped)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *AsyncReporter) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.shutdown:
			r.drainQueue()
			return
		case s := <-r.queue:
			r.sink.Update(s)
		}
	}
}

func (r *AsyncReporter) drainQueue() {
	for {
		select {
		case s := <-r.queue:
			r.sink.Update(s)
		default:
			return
		}
	}
}

var _ Reporter = (*AsyncReporter)(nil)

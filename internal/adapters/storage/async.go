package storage

import (
	"context"
	"sync"
	"time"

	"github.com/focusclass/focusd/internal/domain/model"
	"github.com/focusclass/focusd/pkg/logger"
	"github.com/focusclass/focusd/pkg/metrics"
)

// Default async writer configuration constants.
const (
	defaultQueueCapacity  = 10_000
	defaultWorkerCount    = 2
	workerShutdownTimeout = 5 * time.Second
	microsPerMilli        = 1000.0
)

// job is one pending persistence write.
type job struct {
	name string
	fn   func(ctx context.Context) error
}

// AsyncWriter wraps a Gateway with a bounded queue and a pool of writer
// goroutines. Its Gateway methods never block and never return an error:
// a full queue drops the write (counted), and destination failures are
// logged.
type AsyncWriter struct {
	dest Gateway

	jobs     chan job
	capacity int
	workers  int

	mu     sync.RWMutex
	closed bool

	shutdown chan struct{}
	done     []chan struct{}

	logger logger.Logger
}

// WriterOption applies a configuration option to the AsyncWriter.
type WriterOption func(*AsyncWriter)

// WithQueueCapacity bounds the pending write queue.
func WithQueueCapacity(capacity int) WriterOption {
	return func(w *AsyncWriter) {
		if capacity > 0 {
			w.capacity = capacity
		}
	}
}

// WithWorkerCount sets the number of writer goroutines.
func WithWorkerCount(count int) WriterOption {
	return func(w *AsyncWriter) {
		if count > 0 {
			w.workers = count
		}
	}
}

// WithWriterLogger sets a custom logger for the writer.
func WithWriterLogger(logger logger.Logger) WriterOption {
	return func(w *AsyncWriter) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewAsyncWriter creates a writer in front of dest.
func NewAsyncWriter(dest Gateway, opts ...WriterOption) *AsyncWriter {
	w := &AsyncWriter{
		dest:     dest,
		capacity: defaultQueueCapacity,
		workers:  defaultWorkerCount,
		shutdown: make(chan struct{}),
	}

	// Apply all options
	for _, opt := range opts {
		opt(w)
	}

	w.jobs = make(chan job, w.capacity)
	metrics.UpdatePersistQueueCapacity(w.capacity)
	metrics.UpdatePersistQueueSize(0)
	return w
}

// Start launches the writer pool.
func (w *AsyncWriter) Start(ctx context.Context) {
	if w.logger == nil {
		w.logger = logger.Get().Named("persist")
	}
	w.done = make([]chan struct{}, w.workers)
	for i := 0; i < w.workers; i++ {
		done := make(chan struct{})
		w.done[i] = done
		go w.run(ctx, done)
	}
}

// Stop drains pending writes and stops the pool. Writes enqueued after
// Stop are dropped.
func (w *AsyncWriter) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	// Closing jobs lets workers drain the backlog before exiting.
	close(w.jobs)
	close(w.shutdown)

	for _, done := range w.done {
		select {
		case <-done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// run is one writer goroutine: drain jobs until the channel closes.
func (w *AsyncWriter) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for j := range w.jobs {
		w.exec(ctx, j)
		w.observeQueue()
	}
}

// exec performs one write, logging rather than propagating failures.
func (w *AsyncWriter) exec(ctx context.Context, j job) {
	start := time.Now()
	err := j.fn(ctx)
	metrics.RecordPersistWriteLatency(float64(time.Since(start).Microseconds()) / microsPerMilli)

	if err != nil {
		metrics.RecordPersistError()
		metrics.RecordErrorByComponent("storage", j.name)
		w.logger.Error(ctx, "persistence write failed",
			logger.String("op", j.name),
			logger.Error(err),
		)
		return
	}
	metrics.RecordPersistWrite()
}

// enqueue adds a write without blocking. Dropped writes are counted, so a
// stalled disk never stalls the session.
func (w *AsyncWriter) enqueue(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		metrics.RecordPersistDropped()
		return ErrClosed
	}

	select {
	case w.jobs <- job{name: name, fn: fn}:
		w.observeQueue()
	default:
		metrics.RecordPersistDropped()
		metrics.RecordErrorByComponent("storage", "queue_full")
		if w.logger != nil {
			w.logger.Warn(ctx, "persistence queue full, dropping write", logger.String("op", name))
		}
	}
	return nil
}

// observeQueue refreshes queue gauges.
func (w *AsyncWriter) observeQueue() {
	size := len(w.jobs)
	metrics.UpdatePersistQueueSize(size)
	metrics.UpdatePersistQueueUtilization(float64(size) / float64(w.capacity))
}

// RecordSession enqueues a session write.
func (w *AsyncWriter) RecordSession(ctx context.Context, s model.Session) error {
	return w.enqueue(ctx, "record_session", func(c context.Context) error {
		return w.dest.RecordSession(c, s)
	})
}

// RecordParticipant enqueues a participant write.
func (w *AsyncWriter) RecordParticipant(ctx context.Context, sessionCode string, p model.Participant) error {
	return w.enqueue(ctx, "record_participant", func(c context.Context) error {
		return w.dest.RecordParticipant(c, sessionCode, p)
	})
}

// RecordViolation enqueues a violation report write.
func (w *AsyncWriter) RecordViolation(ctx context.Context, sessionCode string, r model.ViolationReport) error {
	return w.enqueue(ctx, "record_violation", func(c context.Context) error {
		return w.dest.RecordViolation(c, sessionCode, r)
	})
}

// RecordActivity enqueues an activity line write.
func (w *AsyncWriter) RecordActivity(ctx context.Context, sessionCode, participantID, activity string) error {
	return w.enqueue(ctx, "record_activity", func(c context.Context) error {
		return w.dest.RecordActivity(c, sessionCode, participantID, activity)
	})
}

// FinalizeSession enqueues the closing statistics write.
func (w *AsyncWriter) FinalizeSession(ctx context.Context, sessionCode string, stats model.Statistics) error {
	return w.enqueue(ctx, "finalize_session", func(c context.Context) error {
		return w.dest.FinalizeSession(c, sessionCode, stats)
	})
}

// Len returns the number of pending writes.
func (w *AsyncWriter) Len() int {
	return len(w.jobs)
}

var _ Gateway = (*AsyncWriter)(nil)
var _ Gateway = (*SQLiteStore)(nil)

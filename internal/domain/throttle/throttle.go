// Package throttle aggregates raw violation events into rate-limited
// reports per (participant, kind).
//
// The engine never fails a call: malformed kinds land in the unknown
// bucket, and a full report channel drops the oldest pending report rather
// than blocking the caller. Memory stays bounded at
// O(active participants x active violation kinds) through a retention
// sweep of closed windows.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/focusclass/focusd/internal/domain/model"
	"github.com/focusclass/focusd/pkg/logger"
	"github.com/focusclass/focusd/pkg/metrics"
)

// Default engine configuration constants.
const (
	defaultInterval    = 5 * time.Second
	defaultRetention   = 60 * time.Second
	defaultBufferSize  = 256
	sweepTickDivisor   = 2 // sweep twice per throttle interval
	minSweepResolution = 50 * time.Millisecond
)

// key identifies one throttle window. Each kind has its own independent
// window; there is no cross-kind suppression.
type key struct {
	participantID string
	kind          model.ViolationKind
}

// window holds the aggregation state for one (participant, kind).
type window struct {
	start        time.Time
	count        int
	emittedCount int // count already carried by an emitted report
	detail       string
	closed       bool
	closedAt     time.Time
}

// Engine is the violation throttle engine.
type Engine struct {
	mu      sync.Mutex
	windows map[key]*window

	interval   time.Duration
	retention  time.Duration
	bufferSize int

	reports chan model.ViolationReport

	started  bool
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// New creates an engine with configuration options.
func New(opts ...Option) *Engine {
	e := &Engine{
		windows:    make(map[key]*window),
		interval:   defaultInterval,
		retention:  defaultRetention,
		bufferSize: defaultBufferSize,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}

	// Apply all options
	for _, opt := range opts {
		opt(e)
	}

	e.reports = make(chan model.ViolationReport, e.bufferSize)
	return e
}

// Start launches the background sweep loop. The loop closes open windows
// past their interval (emitting any accumulated report) and evicts closed
// windows past the retention horizon.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	if e.logger == nil {
		e.logger = logger.Get().Named("throttle")
	}
	go e.sweepLoop(ctx)
}

// Stop terminates the sweep loop and closes the report channel once the
// loop has drained.
func (e *Engine) Stop() {
	e.mu.Lock()
	wasStarted := e.started
	e.mu.Unlock()

	select {
	case <-e.shutdown:
		// already stopped
	default:
		close(e.shutdown)
	}
	if wasStarted {
		<-e.done
	}
}

// Reports returns the channel of aggregated reports. Single consumer.
func (e *Engine) Reports() <-chan model.ViolationReport {
	return e.reports
}

// Record folds one raw event into its throttle window. It emits an
// immediate report for the first occurrence of a new window so the
// authority sees the violation without delay, and suppresses the rest of
// the window's occurrences until the window closes.
func (e *Engine) Record(ctx context.Context, ev model.ViolationEvent) {
	kind := ev.Kind
	if model.ParseViolationKind(string(kind)) == model.ViolationUnknown {
		kind = model.ViolationUnknown
	}
	metrics.RecordViolationRaw(string(kind))

	now := ev.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	k := key{participantID: ev.ParticipantID, kind: kind}
	var emit []model.ViolationReport

	e.mu.Lock()
	w, ok := e.windows[k]
	if !ok || w.closed || now.Sub(w.start) > e.interval {
		// Close out the previous window if it still has unreported volume.
		if ok && !w.closed && w.count > w.emittedCount {
			emit = append(emit, e.reportLocked(k, w))
		}
		// Open a fresh window and report its onset immediately.
		w = &window{start: now, count: 1, emittedCount: 1, detail: ev.Detail}
		e.windows[k] = w
		emit = append(emit, model.ViolationReport{
			ParticipantID:        k.participantID,
			Kind:                 k.kind,
			WindowStart:          now,
			WindowEnd:            now,
			OccurrenceCount:      1,
			RepresentativeDetail: ev.Detail,
		})
	} else {
		w.count++
		if w.detail == "" {
			w.detail = ev.Detail
		}
	}
	size := len(e.windows)
	e.mu.Unlock()

	metrics.UpdateThrottleWindows(size)
	for _, r := range emit {
		e.send(ctx, r)
	}
}

// Remove drops all throttle state for a participant, typically on
// disconnect. Pending but unemitted counts are discarded with the roster
// entry.
func (e *Engine) Remove(ctx context.Context, participantID string) {
	e.mu.Lock()
	for k := range e.windows {
		if k.participantID == participantID {
			delete(e.windows, k)
		}
	}
	size := len(e.windows)
	e.mu.Unlock()
	metrics.UpdateThrottleWindows(size)
}

// Size returns the number of tracked windows, open and retained.
func (e *Engine) Size() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.windows)
}

// reportLocked builds the closing report for a window. Caller holds e.mu.
func (e *Engine) reportLocked(k key, w *window) model.ViolationReport {
	w.emittedCount = w.count
	return model.ViolationReport{
		ParticipantID:        k.participantID,
		Kind:                 k.kind,
		WindowStart:          w.start,
		WindowEnd:            w.start.Add(e.interval),
		OccurrenceCount:      w.count,
		RepresentativeDetail: w.detail,
	}
}

// send delivers a report without blocking the caller. When the consumer
// has fallen behind, the oldest pending report is displaced so the newest
// aggregate survives.
func (e *Engine) send(ctx context.Context, r model.ViolationReport) {
	metrics.RecordViolationReported()
	select {
	case e.reports <- r:
		return
	default:
	}
	select {
	case <-e.reports: // displace oldest
	default:
	}
	select {
	case e.reports <- r:
	default:
		if e.logger != nil {
			e.logger.Warn(ctx, "report channel saturated, dropping report",
				logger.String("participantID", r.ParticipantID),
				logger.String("kind", string(r.Kind)),
			)
		}
	}
}

// sweepLoop closes expired windows and evicts retained ones.
func (e *Engine) sweepLoop(ctx context.Context) {
	defer func() {
		close(e.reports)
		close(e.done)
	}()

	tick := e.interval / sweepTickDivisor
	if tick < minSweepResolution {
		tick = minSweepResolution
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.shutdown:
			return
		case <-ticker.C:
			e.sweep(ctx, time.Now())
		}
	}
}

// sweep performs one pass: emit-and-close expired windows, evict closed
// windows past the retention horizon.
func (e *Engine) sweep(ctx context.Context, now time.Time) {
	var emit []model.ViolationReport

	e.mu.Lock()
	for k, w := range e.windows {
		if !w.closed && now.Sub(w.start) > e.interval {
			if w.count > w.emittedCount {
				emit = append(emit, e.reportLocked(k, w))
			}
			w.closed = true
			w.closedAt = w.start.Add(e.interval)
		}
		if w.closed && now.Sub(w.closedAt) > e.retention {
			delete(e.windows, k)
		}
	}
	size := len(e.windows)
	e.mu.Unlock()

	metrics.UpdateThrottleWindows(size)
	for _, r := range emit {
		e.send(ctx, r)
	}
}

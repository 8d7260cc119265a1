// Package stream captures the authority's display and fans encoded frames
// out to watching participants.
//
// Delivery is lossy on purpose. Each recipient may have a small number of
// unacknowledged frames in flight; while a recipient is at that bound,
// new frames for it are dropped rather than queued, so a slow viewer
// falls behind in freshness, never in lag. Frames are never buffered and
// never persisted.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/focusclass/focusd/internal/domain/model"
	"github.com/focusclass/focusd/internal/domain/protocol"
	"github.com/focusclass/focusd/pkg/logger"
	"github.com/focusclass/focusd/pkg/metrics"
)

// Default streamer configuration constants.
const (
	defaultMaxOutstanding = 2
	microsPerMilli        = 1000.0
)

// Frame intervals per quality tier.
const (
	intervalLow    = time.Second
	intervalMedium = 500 * time.Millisecond
	intervalHigh   = 200 * time.Millisecond
)

// intervalFor maps a quality tier to its capture cadence.
func intervalFor(q model.Quality) time.Duration {
	switch q {
	case model.QualityLow:
		return intervalLow
	case model.QualityHigh:
		return intervalHigh
	default:
		return intervalMedium
	}
}

// Source produces one encoded still of the shared display per call.
// Implementations return ErrCaptureUnavailable when no display can be
// captured.
type Source interface {
	Capture(ctx context.Context, quality model.Quality, monitor int) ([]byte, error)
}

// Sender delivers one envelope to one participant. Satisfied by the hub.
type Sender interface {
	Send(ctx context.Context, participantID string, env protocol.Envelope) error
}

// recipient tracks in-flight frames for one viewer.
type recipient struct {
	outstanding int
}

// Streamer runs the capture loop and per-recipient flow control.
type Streamer struct {
	source Source
	sender Sender

	quality        model.Quality
	interval       time.Duration
	monitor        int
	maxOutstanding int

	mu          sync.Mutex
	recipients  map[string]*recipient
	sessionCode string
	seq         uint64
	running     bool

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// New creates a streamer reading from source and delivering via sender.
func New(source Source, sender Sender, opts ...Option) *Streamer {
	s := &Streamer{
		source:         source,
		sender:         sender,
		quality:        model.QualityMedium,
		interval:       intervalMedium,
		maxOutstanding: defaultMaxOutstanding,
		recipients:     make(map[string]*recipient),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("stream")
	}

	return s
}

// Start begins capturing for the given session. The source is probed
// once here, so a dead capture path fails the start with
// ErrCaptureUnavailable instead of failing on every tick. Returns
// ErrAlreadyStreaming if a capture loop is running.
func (s *Streamer) Start(ctx context.Context, sessionCode string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStreaming
	}
	quality := s.quality
	monitor := s.monitor
	s.mu.Unlock()

	if _, err := s.source.Capture(ctx, quality, monitor); err != nil {
		metrics.RecordCaptureFailure()
		s.logger.Error(ctx, "capture source unavailable", logger.Error(err))
		return ErrCaptureUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyStreaming
	}
	s.running = true
	s.sessionCode = sessionCode
	s.shutdown = make(chan struct{})
	s.done = make(chan struct{})

	go s.captureLoop(ctx)

	s.logger.Info(ctx, "streaming started",
		logger.String("quality", s.quality.String()),
		logger.Int("monitor", s.monitor),
	)
	return nil
}

// Stop halts the capture loop and forgets all recipients. Returns
// ErrNotStreaming if no loop is running.
func (s *Streamer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	s.running = false
	shutdown := s.shutdown
	done := s.done
	s.recipients = make(map[string]*recipient)
	s.mu.Unlock()

	close(shutdown)
	<-done
	metrics.UpdateStreamRecipients(0)
	return nil
}

// Running reports whether a capture loop is active.
func (s *Streamer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// AddRecipient subscribes a participant to the frame feed. Adding an
// existing recipient resets its in-flight count.
func (s *Streamer) AddRecipient(participantID string) {
	s.mu.Lock()
	s.recipients[participantID] = &recipient{}
	count := len(s.recipients)
	s.mu.Unlock()

	metrics.UpdateStreamRecipients(count)
}

// RemoveRecipient unsubscribes a participant. Unknown ids are ignored.
func (s *Streamer) RemoveRecipient(participantID string) {
	s.mu.Lock()
	delete(s.recipients, participantID)
	count := len(s.recipients)
	s.mu.Unlock()

	metrics.UpdateStreamRecipients(count)
}

// Ack records that a participant consumed one frame, freeing an in-flight
// slot. Acks from unknown recipients or beyond the in-flight count are
// ignored.
func (s *Streamer) Ack(participantID string, _ uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipients[participantID]
	if !ok || r.outstanding == 0 {
		return
	}
	r.outstanding--
}

// Recipients returns the number of subscribed viewers.
func (s *Streamer) Recipients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recipients)
}

// SetQuality selects the capture tier for the next stream. The tier is
// fixed while a capture loop runs; stop and restart to change it.
func (s *Streamer) SetQuality(q model.Quality) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyStreaming
	}
	s.quality = q
	s.interval = intervalFor(q)
	return nil
}

// captureLoop drives capture at the tier cadence until stopped.
func (s *Streamer) captureLoop(ctx context.Context) {
	defer close(s.done)

	s.mu.Lock()
	interval := s.interval
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.captureOnce(ctx); err != nil {
				s.disable(ctx, err)
				return
			}
		case <-s.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// disable shuts streaming down from inside the loop when the source is
// lost. One error is surfaced; frames stay off until the next Start.
func (s *Streamer) disable(ctx context.Context, err error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.recipients = make(map[string]*recipient)
	s.mu.Unlock()

	metrics.UpdateStreamRecipients(0)
	s.logger.Error(ctx, "capture source lost, streaming stopped", logger.Error(err))
}

// captureOnce grabs one frame and offers it to every recipient with a
// free in-flight slot. Returns ErrCaptureUnavailable when the source is
// gone; transient failures are logged and the loop keeps ticking.
func (s *Streamer) captureOnce(ctx context.Context) error {
	s.mu.Lock()
	quality := s.quality
	monitor := s.monitor
	code := s.sessionCode
	s.mu.Unlock()

	start := time.Now()
	payload, err := s.source.Capture(ctx, quality, monitor)
	if err != nil {
		metrics.RecordCaptureFailure()
		if errors.Is(err, ErrCaptureUnavailable) {
			return err
		}
		s.logger.Warn(ctx, "frame capture failed", logger.Error(err))
		return nil
	}
	metrics.RecordFrameCaptured()
	metrics.RecordFrameEncodeLatency(float64(time.Since(start).Microseconds()) / microsPerMilli)

	s.mu.Lock()
	s.seq++
	seq := s.seq
	targets := make(map[string]*recipient, len(s.recipients))
	for id, r := range s.recipients {
		targets[id] = r
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}

	env, err := protocol.New(protocol.TypeFrameData, code, "", protocol.FrameData{
		SequenceNumber: seq,
		Quality:        quality.String(),
		MonitorIndex:   monitor,
		Payload:        payload,
	})
	if err != nil {
		s.logger.Error(ctx, "frame encode failed", logger.Error(err))
		return nil
	}

	for id, r := range targets {
		s.offer(ctx, id, r, env)
	}
	return nil
}

// offer sends one frame to one recipient, or drops it when the recipient
// is at its in-flight bound.
func (s *Streamer) offer(ctx context.Context, participantID string, r *recipient, env protocol.Envelope) {
	s.mu.Lock()
	if r.outstanding >= s.maxOutstanding {
		s.mu.Unlock()
		metrics.RecordFrameDropped()
		return
	}
	r.outstanding++
	s.mu.Unlock()

	if err := s.sender.Send(ctx, participantID, env); err != nil {
		s.mu.Lock()
		if r.outstanding > 0 {
			r.outstanding--
		}
		s.mu.Unlock()

		s.logger.Warn(ctx, "frame delivery failed",
			logger.String("participant_id", participantID),
			logger.Error(err),
		)
		return
	}
	metrics.RecordFrameSent()
}

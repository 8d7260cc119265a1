// Package focus tracks the commanded enforcement mode and compliance state
// of each participant on the authority side.
//
// The tracker is optimistic: a commanded mode is recorded immediately and
// reconciled against the participant's acknowledgment. A participant whose
// ack does not arrive within the timeout is surfaced as ComplianceUnknown,
// which is a degraded-confidence state, not a violation.
package focus

import (
	"context"
	"sync"
	"time"

	"github.com/focusclass/focusd/internal/domain/model"
	"github.com/focusclass/focusd/pkg/logger"
	"github.com/focusclass/focusd/pkg/metrics"
)

// Default tracker configuration constants.
const (
	defaultAckTimeout = 10 * time.Second
)

// Compliance reflects how much the authority trusts a participant's
// recorded mode.
type Compliance int

const (
	ComplianceOK      Compliance = iota // ack received for the commanded mode
	CompliancePending                   // ack outstanding, timeout not reached
	ComplianceUnknown                   // ack overdue
)

// String returns the lowercase name of the compliance state.
func (c Compliance) String() string {
	switch c {
	case ComplianceOK:
		return "ok"
	case CompliancePending:
		return "pending"
	case ComplianceUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Status is the per-participant snapshot exposed to statistics.
type Status struct {
	Commanded  model.FocusMode
	Acked      model.FocusMode
	Compliance Compliance
}

// record holds the tracked state for one participant.
type record struct {
	commanded   model.FocusMode
	acked       model.FocusMode
	commandedAt time.Time
	pendingAck  bool
}

// Tracker is the authority-side focus state machine.
type Tracker struct {
	mu           sync.Mutex
	participants map[string]*record
	ackTimeout   time.Duration
	logger       logger.Logger
}

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithAckTimeout sets how long an ack may be outstanding before the
// participant is flagged ComplianceUnknown.
func WithAckTimeout(timeout time.Duration) Option {
	return func(t *Tracker) {
		if timeout > 0 {
			t.ackTimeout = timeout
		}
	}
}

// WithLogger sets a custom logger for the tracker.
func WithLogger(logger logger.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a tracker with configuration options.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		participants: make(map[string]*record),
		ackTimeout:   defaultAckTimeout,
	}

	// Apply all options
	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Command records a commanded mode for a participant and arms the ack
// deadline. The recorded mode takes effect immediately for event gating.
func (t *Tracker) Command(ctx context.Context, participantID string, mode model.FocusMode) {
	t.mu.Lock()
	r, ok := t.participants[participantID]
	if !ok {
		r = &record{}
		t.participants[participantID] = r
	}
	r.commanded = mode
	r.commandedAt = time.Now()
	r.pendingAck = true
	t.mu.Unlock()

	metrics.RecordFocusCommand()
	if t.logger != nil {
		t.logger.Debug(ctx, "focus mode commanded",
			logger.String("participantID", participantID),
			logger.String("mode", mode.String()),
		)
	}
}

// Ack reconciles a participant's acknowledgment with the commanded mode.
// An ack for a stale mode leaves the deadline armed; the participant stays
// pending until it confirms the current command.
func (t *Tracker) Ack(ctx context.Context, participantID string, mode model.FocusMode) {
	t.mu.Lock()
	r, ok := t.participants[participantID]
	if ok {
		r.acked = mode
		if mode == r.commanded {
			r.pendingAck = false
		}
	}
	t.mu.Unlock()

	metrics.RecordFocusAck()
}

// Mode returns the recorded (commanded) mode for a participant. Unknown
// participants are Off.
func (t *Tracker) Mode(participantID string) model.FocusMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.participants[participantID]; ok {
		return r.commanded
	}
	return model.FocusOff
}

// ShouldAccept reports whether raw violation events from a participant are
// meaningful right now. Events arriving while the recorded mode is Off are
// noise from a disabled mode racing a late network message.
func (t *Tracker) ShouldAccept(participantID string) bool {
	return t.Mode(participantID) != model.FocusOff
}

// Remove drops all focus state for a participant.
func (t *Tracker) Remove(ctx context.Context, participantID string) {
	t.mu.Lock()
	delete(t.participants, participantID)
	t.mu.Unlock()
}

// Snapshot returns the compliance view of all tracked participants.
func (t *Tracker) Snapshot() map[string]Status {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Status, len(t.participants))
	unknown := 0
	for id, r := range t.participants {
		s := Status{Commanded: r.commanded, Acked: r.acked, Compliance: ComplianceOK}
		if r.pendingAck {
			if now.Sub(r.commandedAt) > t.ackTimeout {
				s.Compliance = ComplianceUnknown
				unknown++
			} else {
				s.Compliance = CompliancePending
			}
		}
		out[id] = s
	}
	metrics.UpdateComplianceUnknown(unknown)
	return out
}

// Overdue returns the ids of participants whose ack deadline has passed.
func (t *Tracker) Overdue() []string {
	var ids []string
	for id, s := range t.Snapshot() {
		if s.Compliance == ComplianceUnknown {
			ids = append(ids, id)
		}
	}
	return ids
}

// Package storage defines the persistence gateway consumed by the session
// core, plus its sqlite and asynchronous implementations.
//
// Everything behind this interface is fire-and-forget from the core's view:
// failures are logged, never propagated to participants, and never block
// live session control flow.
package storage

import (
	"context"

	"github.com/focusclass/focusd/internal/domain/model"
)

// Gateway is the narrow persistence interface consumed by the core.
type Gateway interface {
	// RecordSession stores a newly started session.
	RecordSession(ctx context.Context, s model.Session) error

	// RecordParticipant stores a participant that joined a session.
	RecordParticipant(ctx context.Context, sessionCode string, p model.Participant) error

	// RecordViolation stores one aggregated violation report.
	RecordViolation(ctx context.Context, sessionCode string, r model.ViolationReport) error

	// RecordActivity appends one roster/focus activity line for a session.
	RecordActivity(ctx context.Context, sessionCode, participantID, activity string) error

	// FinalizeSession marks a session ended and stores its closing statistics.
	FinalizeSession(ctx context.Context, sessionCode string, stats model.Statistics) error
}

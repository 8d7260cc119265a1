// Package model contains domain models passed between layers.
package model

import "time"

// SessionState tracks the lifecycle of a session.
type SessionState int

const (
	SessionCreated SessionState = iota
	SessionActive
	SessionEnded
)

// String returns the lowercase name of the state.
func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionActive:
		return "active"
	case SessionEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Session is one instructor-led classroom instance. Owned exclusively by the
// session manager; immutable once Ended.
type Session struct {
	Code             string // 8-character human-shareable token
	Password         string // shared secret, distinct from the code
	AuthorityID      string
	AuthorityAddress string
	CreatedAt        time.Time
	EndedAt          time.Time
	State            SessionState
}

// FocusMode is the enforcement level commanded for a participant.
type FocusMode int

const (
	FocusOff FocusMode = iota
	FocusLightweight
	FocusFull
)

// String returns the lowercase name of the mode.
func (m FocusMode) String() string {
	switch m {
	case FocusOff:
		return "off"
	case FocusLightweight:
		return "lightweight"
	case FocusFull:
		return "full"
	default:
		return "unknown"
	}
}

// ParseFocusMode maps a wire string to a FocusMode.
// Unknown strings map to FocusOff.
func ParseFocusMode(s string) FocusMode {
	switch s {
	case "lightweight":
		return FocusLightweight
	case "full":
		return FocusFull
	default:
		return FocusOff
	}
}

// Participant is one learner endpoint joined to a session. The connection
// handle lives in the hub; this is the value record shared with readers.
type Participant struct {
	ID             string
	DisplayName    string
	RemoteAddress  string // real observed network address, never a loopback placeholder
	JoinedAt       time.Time
	FocusMode      FocusMode
	ViolationCount int
}

// ViolationKind classifies a detected compliance departure.
type ViolationKind string

const (
	ViolationFocusLost           ViolationKind = "focus_lost"
	ViolationUnauthorizedProcess ViolationKind = "unauthorized_process"
	ViolationLowBattery          ViolationKind = "low_battery"
	ViolationKeyboardBlocked     ViolationKind = "keyboard_blocked"
	ViolationWindowSwitch        ViolationKind = "window_switch"
	ViolationUnknown             ViolationKind = "unknown"
)

// ParseViolationKind maps a wire string to a known kind. Anything
// unrecognized lands in the Unknown bucket so volume stays visible even for
// unanticipated participant-side detectors.
func ParseViolationKind(s string) ViolationKind {
	switch ViolationKind(s) {
	case ViolationFocusLost, ViolationUnauthorizedProcess, ViolationLowBattery,
		ViolationKeyboardBlocked, ViolationWindowSwitch:
		return ViolationKind(s)
	default:
		return ViolationUnknown
	}
}

// ViolationEvent is a raw, ephemeral enforcement event produced by a
// participant. Consumed immediately by the throttle engine; never persisted.
type ViolationEvent struct {
	ParticipantID string
	Kind          ViolationKind
	Timestamp     time.Time
	Detail        string
}

// ViolationReport is the aggregated, durable-worthy signal emitted at most
// once per (participant, kind) per throttle window.
type ViolationReport struct {
	ParticipantID        string
	Kind                 ViolationKind
	WindowStart          time.Time
	WindowEnd            time.Time
	OccurrenceCount      int
	RepresentativeDetail string
}

// Quality selects a capture tier; tier parameters are configuration.
type Quality int

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
)

// String returns the lowercase name of the quality tier.
func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseQuality maps a config/wire string to a Quality tier.
// Unknown strings map to QualityMedium.
func ParseQuality(s string) Quality {
	switch s {
	case "low":
		return QualityLow
	case "high":
		return QualityHigh
	default:
		return QualityMedium
	}
}

// Frame is one captured still of the shared display. Transient; never
// persisted.
type Frame struct {
	SequenceNumber uint64
	CapturedAt     time.Time
	Quality        Quality
	Payload        []byte // opaque encoded image bytes
	MonitorIndex   int
}

// Statistics is the read model returned by GetStatistics.
type Statistics struct {
	ParticipantCount  int
	ViolationTotal    int
	DurationElapsed   time.Duration
	ComplianceUnknown []string // participant ids with overdue focus acks
}

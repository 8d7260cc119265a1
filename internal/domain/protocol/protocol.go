// Package protocol defines the wire message envelope shared by the
// authority and participant endpoints, and its JSON codec.
//
// Every message on a channel is one envelope: a type tag, the session code,
// the sender id (empty for authority-originated messages), a type-specific
// payload and a send timestamp. Payload shapes form a closed enumeration;
// unknown tags are rejected with ErrUnknownType rather than ignored.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type tags for the message envelope.
type Type string

const (
	TypeJoin            Type = "join"
	TypeJoinAccepted    Type = "join_accepted"
	TypeJoinRejected    Type = "join_rejected"
	TypeRosterUpdate    Type = "roster_update"
	TypeSetFocusMode    Type = "set_focus_mode"
	TypeFocusModeAck    Type = "focus_mode_ack"
	TypeViolationRaw    Type = "violation_raw"
	TypeViolationReport Type = "violation_report"
	TypeFrameData       Type = "frame_data"
	TypeFrameAck        Type = "frame_ack"
	TypeHeartbeat       Type = "heartbeat"
	TypeSessionEnded    Type = "session_ended"
)

// Envelope is the wire representation of one message.
type Envelope struct {
	Type        Type            `json:"type"`
	SessionCode string          `json:"session_code"`
	SenderID    string          `json:"sender_id,omitempty"` // empty for authority-originated
	Payload     json.RawMessage `json:"payload,omitempty"`
	SentAt      time.Time       `json:"sent_at"`
}

// Join is sent by a participant to request entry to a session.
type Join struct {
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// JoinAccepted confirms authentication and carries the allocated id.
type JoinAccepted struct {
	ParticipantID string `json:"participant_id"`
}

// JoinRejected tells a participant why authentication failed.
type JoinRejected struct {
	Reason string `json:"reason"`
}

// RosterEntry is the roster view shared with participants.
type RosterEntry struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
}

// RosterUpdate broadcasts the full roster after a join or leave.
type RosterUpdate struct {
	Participants []RosterEntry `json:"participants"`
}

// SetFocusMode commands one or all participants to change enforcement mode.
type SetFocusMode struct {
	Mode string `json:"mode"`
}

// FocusModeAck confirms a participant applied a commanded mode.
type FocusModeAck struct {
	Mode string `json:"mode"`
}

// ViolationRaw carries one raw enforcement event from a participant.
type ViolationRaw struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// ViolationReport carries one aggregated violation signal.
type ViolationReport struct {
	Kind            string    `json:"kind"`
	OccurrenceCount int       `json:"occurrence_count"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
}

// FrameData delivers one encoded screen frame.
type FrameData struct {
	SequenceNumber uint64 `json:"sequence_number"`
	Quality        string `json:"quality"`
	MonitorIndex   int    `json:"monitor_index"`
	Payload        []byte `json:"payload"` // base64 on the wire
}

// FrameAck confirms consumption of a frame.
type FrameAck struct {
	SequenceNumber uint64 `json:"sequence_number"`
}

// Heartbeat is sent in both directions to prove liveness.
type Heartbeat struct{}

// SessionEnded tells all participants the session is over.
type SessionEnded struct{}

// New builds an envelope around a payload, stamping the send time.
func New(t Type, sessionCode, senderID string, payload any) (Envelope, error) {
	env := Envelope{
		Type:        t,
		SessionCode: sessionCode,
		SenderID:    senderID,
		SentAt:      time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Encode serializes an envelope to its wire form.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses wire bytes into an envelope and its typed payload.
// The returned payload is a pointer to the struct matching the type tag
// (e.g. *Join for TypeJoin); Heartbeat and SessionEnded decode to their
// zero-value structs even when the payload field is absent.
func Decode(data []byte) (Envelope, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	payload, err := decodePayload(env)
	if err != nil {
		return Envelope{}, nil, err
	}
	return env, payload, nil
}

// decodePayload is the exhaustive tag switch over the closed message set.
func decodePayload(env Envelope) (any, error) {
	var target any
	switch env.Type {
	case TypeJoin:
		target = &Join{}
	case TypeJoinAccepted:
		target = &JoinAccepted{}
	case TypeJoinRejected:
		target = &JoinRejected{}
	case TypeRosterUpdate:
		target = &RosterUpdate{}
	case TypeSetFocusMode:
		target = &SetFocusMode{}
	case TypeFocusModeAck:
		target = &FocusModeAck{}
	case TypeViolationRaw:
		target = &ViolationRaw{}
	case TypeViolationReport:
		target = &ViolationReport{}
	case TypeFrameData:
		target = &FrameData{}
	case TypeFrameAck:
		target = &FrameAck{}
	case TypeHeartbeat:
		target = &Heartbeat{}
	case TypeSessionEnded:
		target = &SessionEnded{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, target); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
		}
	}
	return target, nil
}

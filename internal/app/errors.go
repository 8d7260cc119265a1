package service

import "errors"

// Sentinel kinds for session manager errors.
var (
	ErrSessionActive      = errors.New("a session is already active")
	ErrNoActiveSession    = errors.New("no active session")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrCredentialEntropy  = errors.New("generating session credentials")
)

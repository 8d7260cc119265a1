package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	service "github.com/focusclass/focusd/internal/app"
)

// SessionHandler handles session lifecycle requests.
type SessionHandler struct {
	deps Dependencies
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps Dependencies) *SessionHandler {
	return &SessionHandler{deps: deps}
}

// startSessionRequest is the body of POST /session/start.
type startSessionRequest struct {
	AuthorityID string `json:"authority_id"`
}

func (r startSessionRequest) validate() error {
	if strings.TrimSpace(r.AuthorityID) == "" {
		return errors.New("missing authority_id")
	}
	return nil
}

// sessionResponse is the operator's view of a session. The password is
// included so the operator can hand it to participants.
type sessionResponse struct {
	Code        string    `json:"code"`
	Password    string    `json:"password"`
	AuthorityID string    `json:"authority_id"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
}

// HandleStartSession handles POST /session/start requests.
func (h *SessionHandler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	sess, err := h.deps.StartSession(r.Context(), req.AuthorityID, r.Host)
	if err != nil {
		if errors.Is(err, service.ErrSessionActive) {
			writeError(w, http.StatusConflict, "session_active", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		Code:        sess.Code,
		Password:    sess.Password,
		AuthorityID: sess.AuthorityID,
		State:       sess.State.String(),
		CreatedAt:   sess.CreatedAt,
	})
}

// HandleEndSession handles POST /session/end requests. Ending twice is
// not an error.
func (h *SessionHandler) HandleEndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	if err := h.deps.EndSession(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "ended"})
}

// HandleGetSession handles GET /session requests.
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	sess, active := h.deps.Session()
	if !active {
		writeError(w, http.StatusNotFound, "no_session", service.ErrNoActiveSession)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Code:        sess.Code,
		Password:    sess.Password,
		AuthorityID: sess.AuthorityID,
		State:       sess.State.String(),
		CreatedAt:   sess.CreatedAt,
	})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	service "github.com/focusclass/focusd/internal/app"
)

// RosterHandler handles roster and kick requests.
type RosterHandler struct {
	deps Dependencies
}

// NewRosterHandler creates a new roster handler.
func NewRosterHandler(deps Dependencies) *RosterHandler {
	return &RosterHandler{deps: deps}
}

// rosterEntryResponse is one participant row in GET /roster.
type rosterEntryResponse struct {
	ParticipantID  string    `json:"participant_id"`
	DisplayName    string    `json:"display_name"`
	RemoteAddress  string    `json:"remote_address"`
	JoinedAt       time.Time `json:"joined_at"`
	FocusMode      string    `json:"focus_mode"`
	ViolationCount int       `json:"violation_count"`
}

// HandleGetRoster handles GET /roster requests.
func (h *RosterHandler) HandleGetRoster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	roster := h.deps.Roster()
	out := make([]rosterEntryResponse, 0, len(roster))
	for _, p := range roster {
		out = append(out, rosterEntryResponse{
			ParticipantID:  p.ID,
			DisplayName:    p.DisplayName,
			RemoteAddress:  p.RemoteAddress,
			JoinedAt:       p.JoinedAt,
			FocusMode:      p.FocusMode.String(),
			ViolationCount: p.ViolationCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// kickRequest is the body of POST /kick.
type kickRequest struct {
	ParticipantID string `json:"participant_id"`
}

// HandleKick handles POST /kick requests.
func (h *RosterHandler) HandleKick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req kickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.ParticipantID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing participant_id"))
		return
	}

	if err := h.deps.Kick(r.Context(), req.ParticipantID); err != nil {
		switch {
		case errors.Is(err, service.ErrNoActiveSession):
			writeError(w, http.StatusConflict, "no_session", err)
		case errors.Is(err, service.ErrUnknownParticipant):
			writeError(w, http.StatusNotFound, "not_found", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "kicked"})
}

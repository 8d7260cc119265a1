package api

import (
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/focusclass/focusd/internal/app"
	"github.com/focusclass/focusd/internal/domain/model"
)

// FocusHandler handles focus mode commands.
type FocusHandler struct {
	deps Dependencies
}

// NewFocusHandler creates a new focus handler.
func NewFocusHandler(deps Dependencies) *FocusHandler {
	return &FocusHandler{deps: deps}
}

// setFocusRequest is the body of POST /focus. An empty participant id
// targets the whole roster.
type setFocusRequest struct {
	ParticipantID string `json:"participant_id,omitempty"`
	Mode          string `json:"mode"`
}

func (r setFocusRequest) validate() error {
	switch r.Mode {
	case "off", "lightweight", "full":
		return nil
	default:
		return errors.New("mode must be off, lightweight or full")
	}
}

// HandleSetFocus handles POST /focus requests.
func (h *FocusHandler) HandleSetFocus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req setFocusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	err := h.deps.SetFocusMode(r.Context(), req.ParticipantID, model.ParseFocusMode(req.Mode))
	if err != nil {
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
	writeJSON(w, http.StatusOK, ackResponse{Status: "commanded"})
}

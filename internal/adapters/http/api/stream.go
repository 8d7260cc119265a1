package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/focusclass/focusd/internal/adapters/stream"
	service "github.com/focusclass/focusd/internal/app"
)

// StreamHandler handles screen-sharing control requests.
type StreamHandler struct {
	deps Dependencies
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps Dependencies) *StreamHandler {
	return &StreamHandler{deps: deps}
}

// startStreamRequest is the body of POST /stream/start. The body is
// optional; an absent or empty quality keeps the configured tier.
type startStreamRequest struct {
	Quality string `json:"quality,omitempty"`
}

func (r startStreamRequest) validate() error {
	switch r.Quality {
	case "", "low", "medium", "high":
		return nil
	default:
		return errors.New("quality must be low, medium or high")
	}
}

// HandleStartStream handles POST /stream/start requests.
func (h *StreamHandler) HandleStartStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req startStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	if err := h.deps.StartStream(r.Context(), req.Quality); err != nil {
		switch {
		case errors.Is(err, service.ErrNoActiveSession):
			writeError(w, http.StatusConflict, "no_session", err)
		case errors.Is(err, stream.ErrAlreadyStreaming):
			writeError(w, http.StatusConflict, "already_streaming", err)
		case errors.Is(err, stream.ErrCaptureUnavailable):
			writeError(w, http.StatusServiceUnavailable, "capture_unavailable", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "streaming"})
}

// HandleStopStream handles POST /stream/stop requests.
func (h *StreamHandler) HandleStopStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	if err := h.deps.StopStream(r.Context()); err != nil {
		if errors.Is(err, stream.ErrNotStreaming) {
			writeError(w, http.StatusConflict, "not_streaming", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "stopped"})
}

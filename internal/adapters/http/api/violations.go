package api

import (
	"net/http"
	"time"
)

// ViolationsHandler handles violation report queries.
type ViolationsHandler struct {
	deps Dependencies
}

// NewViolationsHandler creates a new violations handler.
func NewViolationsHandler(deps Dependencies) *ViolationsHandler {
	return &ViolationsHandler{deps: deps}
}

// violationResponse is one aggregated report row.
type violationResponse struct {
	ParticipantID   string    `json:"participant_id"`
	Kind            string    `json:"kind"`
	OccurrenceCount int       `json:"occurrence_count"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	Detail          string    `json:"detail,omitempty"`
}

// HandleGetViolations handles GET /violations requests, newest last.
func (h *ViolationsHandler) HandleGetViolations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	reports := h.deps.Reports()
	out := make([]violationResponse, 0, len(reports))
	for _, rep := range reports {
		out = append(out, violationResponse{
			ParticipantID:   rep.ParticipantID,
			Kind:            string(rep.Kind),
			OccurrenceCount: rep.OccurrenceCount,
			WindowStart:     rep.WindowStart,
			WindowEnd:       rep.WindowEnd,
			Detail:          rep.RepresentativeDetail,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

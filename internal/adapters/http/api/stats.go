package api

import "net/http"

// StatsHandler handles statistics requests.
type StatsHandler struct {
	deps Dependencies
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps Dependencies) *StatsHandler {
	return &StatsHandler{deps: deps}
}

// statsResponse is the live session read model.
type statsResponse struct {
	ParticipantCount  int      `json:"participant_count"`
	ViolationTotal    int      `json:"violation_total"`
	DurationSecs      int      `json:"duration_secs"`
	ComplianceUnknown []string `json:"compliance_unknown"`
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	stats := h.deps.GetStatistics(r.Context())
	unknown := stats.ComplianceUnknown
	if unknown == nil {
		unknown = []string{}
	}
	writeJSON(w, http.StatusOK, statsResponse{
		ParticipantCount:  stats.ParticipantCount,
		ViolationTotal:    stats.ViolationTotal,
		DurationSecs:      int(stats.DurationElapsed.Seconds()),
		ComplianceUnknown: unknown,
	})
}

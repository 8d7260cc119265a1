// Package api declares the authority's HTTP control surface and route
// registration helpers.
//
// The operator drives the session over plain JSON endpoints; participants
// connect over the websocket route. Handlers translate manager errors to
// HTTP status codes and never reach past the Dependencies bundle.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/focusclass/focusd/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the session manager.
type Dependencies interface {
	StartSession(ctx context.Context, authorityID, authorityAddress string) (model.Session, error)
	EndSession(ctx context.Context) error
	Session() (model.Session, bool)
	GetStatistics(ctx context.Context) model.Statistics
	Roster() []model.Participant
	Reports() []model.ViolationReport
	SetFocusMode(ctx context.Context, participantID string, mode model.FocusMode) error
	Kick(ctx context.Context, participantID string) error
	StartStream(ctx context.Context, quality string) error
	StopStream(ctx context.Context) error
}

// Server wires HTTP routes for the authority API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	sessionHandler    *SessionHandler
	rosterHandler     *RosterHandler
	focusHandler      *FocusHandler
	streamHandler     *StreamHandler
	violationsHandler *ViolationsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(deps),
		sessionHandler:    NewSessionHandler(deps),
		rosterHandler:     NewRosterHandler(deps),
		focusHandler:      NewFocusHandler(deps),
		streamHandler:     NewStreamHandler(deps),
		violationsHandler: NewViolationsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux. The participant websocket
// entry point is passed in so this package never depends on the hub.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux, wsHandler http.HandlerFunc) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/session", MetricsMiddleware(s.sessionHandler.HandleGetSession, "session"))
	mux.HandleFunc("/session/start", MetricsMiddleware(s.sessionHandler.HandleStartSession, "session_start"))
	mux.HandleFunc("/session/end", MetricsMiddleware(s.sessionHandler.HandleEndSession, "session_end"))
	mux.HandleFunc("/roster", MetricsMiddleware(s.rosterHandler.HandleGetRoster, "roster"))
	mux.HandleFunc("/kick", MetricsMiddleware(s.rosterHandler.HandleKick, "kick"))
	mux.HandleFunc("/focus", MetricsMiddleware(s.focusHandler.HandleSetFocus, "focus"))
	mux.HandleFunc("/stream/start", MetricsMiddleware(s.streamHandler.HandleStartStream, "stream_start"))
	mux.HandleFunc("/stream/stop", MetricsMiddleware(s.streamHandler.HandleStopStream, "stream_stop"))
	mux.HandleFunc("/violations", MetricsMiddleware(s.violationsHandler.HandleGetViolations, "violations"))
	mux.HandleFunc("/ws", wsHandler)
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// Package service is the session manager: the single owner of session
// lifecycle, roster bookkeeping, focus orchestration and violation flow.
//
// One authority process runs at most one active session. All state
// transitions funnel through this package so the hub, the throttle
// engine, the focus tracker and the stream pipeline never coordinate
// with each other directly.
package service

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/focusclass/focusd/internal/adapters/hub"
	"github.com/focusclass/focusd/internal/adapters/storage"
	"github.com/focusclass/focusd/internal/domain/focus"
	"github.com/focusclass/focusd/internal/domain/model"
	"github.com/focusclass/focusd/internal/domain/protocol"
	"github.com/focusclass/focusd/internal/domain/throttle"
	"github.com/focusclass/focusd/pkg/logger"
	"github.com/focusclass/focusd/pkg/metrics"
)

// Session code and password alphabets. The code set drops characters
// that read ambiguously when written on a whiteboard.
const (
	codeAlphabet     = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	passwordAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	codeLength       = 8
)

// Default manager configuration constants.
const (
	defaultPasswordLength = 12
	defaultReportHistory  = 100
)

// violationKey identifies one participant/kind aggregation stream.
type violationKey struct {
	participantID string
	kind          model.ViolationKind
}

// windowProgress tracks how much of the current window's cumulative
// count has already been folded into the totals.
type windowProgress struct {
	start   time.Time
	counted int
}

// Hub is the connection surface the manager drives.
type Hub interface {
	Start(ctx context.Context)
	Stop(ctx context.Context)
	Open(sessionCode, password string)
	Close()
	Send(ctx context.Context, participantID string, env protocol.Envelope) error
	Broadcast(ctx context.Context, env protocol.Envelope, exclude ...string)
	Disconnect(ctx context.Context, participantID, reason string)
	DisconnectAll(ctx context.Context, reason string)
	Roster() []model.Participant
	Count() int
	Events() <-chan hub.Event
}

// Streamer is the frame pipeline surface the manager drives.
type Streamer interface {
	Start(ctx context.Context, sessionCode string) error
	Stop() error
	Running() bool
	AddRecipient(participantID string)
	RemoveRecipient(participantID string)
	Ack(participantID string, sequence uint64)
	SetQuality(q model.Quality) error
}

// Service owns the active session and reacts to everything the hub
// reports.
type Service struct {
	mu sync.RWMutex

	// Core components
	hub      Hub
	streamer Streamer
	tracker  *focus.Tracker
	engine   *throttle.Engine
	store    storage.Gateway

	// Configuration
	passwordLength int
	reportHistory  int

	// Session state
	session         model.Session
	active          bool
	violationTotals map[string]int
	windowCounted   map[violationKey]windowProgress
	recentReports   []model.ViolationReport

	// Lifecycle
	started  bool
	shutdown chan struct{}
	done     []chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithPasswordLength sets the generated session password length.
func WithPasswordLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.passwordLength = n
		}
	}
}

// WithReportHistory bounds how many recent violation reports are kept
// for the authority API.
func WithReportHistory(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.reportHistory = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a session manager wired to its components.
func New(h Hub, st Streamer, tracker *focus.Tracker, engine *throttle.Engine, store storage.Gateway, opts ...Option) *Service {
	s := &Service{
		hub:             h,
		streamer:        st,
		tracker:         tracker,
		engine:          engine,
		store:           store,
		passwordLength:  defaultPasswordLength,
		reportHistory:   defaultReportHistory,
		violationTotals: make(map[string]int),
		shutdown:        make(chan struct{}),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("session")
	}

	return s
}

// Start launches the hub, the throttle engine and the two consumer
// loops. Safe to call once.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.engine.Start(ctx)
	s.hub.Start(ctx)

	eventsDone := make(chan struct{})
	reportsDone := make(chan struct{})
	s.done = []chan struct{}{eventsDone, reportsDone}

	go s.eventLoop(ctx, eventsDone)
	go s.reportLoop(ctx, reportsDone)
}

// Stop ends any active session and shuts the components down.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	if !started {
		return
	}

	_ = s.EndSession(ctx)

	close(s.shutdown)
	s.hub.Stop(ctx)
	s.engine.Stop()
	for _, done := range s.done {
		<-done
	}
}

// StartSession creates and activates a new session. Only one session may
// be active at a time.
func (s *Service) StartSession(ctx context.Context, authorityID, authorityAddress string) (model.Session, error) {
	code, err := randomString(codeLength, codeAlphabet)
	if err != nil {
		return model.Session{}, fmt.Errorf("%w: %v", ErrCredentialEntropy, err)
	}
	password, err := randomString(s.passwordLength, passwordAlphabet)
	if err != nil {
		return model.Session{}, fmt.Errorf("%w: %v", ErrCredentialEntropy, err)
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return model.Session{}, ErrSessionActive
	}
	s.session = model.Session{
		Code:             code,
		Password:         password,
		AuthorityID:      authorityID,
		AuthorityAddress: authorityAddress,
		CreatedAt:        time.Now().UTC(),
		State:            model.SessionActive,
	}
	s.active = true
	s.violationTotals = make(map[string]int)
	s.windowCounted = make(map[violationKey]windowProgress)
	s.recentReports = nil
	sess := s.session
	s.mu.Unlock()

	s.hub.Open(sess.Code, sess.Password)
	_ = s.store.RecordSession(ctx, sess)
	_ = s.store.RecordActivity(ctx, sess.Code, "", "session started")

	metrics.RecordSessionStarted()
	metrics.UpdateActiveSessions(1)
	s.logger.Info(ctx, "session started",
		logger.String("code", sess.Code),
		logger.String("authority_id", authorityID),
	)
	return sess, nil
}

// EndSession terminates the active session: participants are notified
// exactly once, then disconnected, and closing statistics are persisted.
// Calling it with no active session is a no-op.
func (s *Service) EndSession(ctx context.Context) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	s.session.State = model.SessionEnded
	s.session.EndedAt = time.Now().UTC()
	sess := s.session
	s.mu.Unlock()

	if env, err := protocol.New(protocol.TypeSessionEnded, sess.Code, "", protocol.SessionEnded{}); err == nil {
		s.hub.Broadcast(ctx, env)
	}
	s.hub.Close()

	if s.streamer.Running() {
		_ = s.streamer.Stop()
	}

	stats := s.statistics(sess)
	s.hub.DisconnectAll(ctx, hub.ReasonEnded)

	_ = s.store.RecordActivity(ctx, sess.Code, "", "session ended")
	_ = s.store.FinalizeSession(ctx, sess.Code, stats)

	duration := sess.EndedAt.Sub(sess.CreatedAt)
	metrics.RecordSessionEnded(duration)
	metrics.UpdateActiveSessions(0)
	s.logger.Info(ctx, "session ended",
		logger.String("code", sess.Code),
		logger.Duration("duration", duration),
		logger.Int("violations", stats.ViolationTotal),
	)
	return nil
}

// Session returns the active session, if any. The password is included;
// callers expose it only to the authority operator.
func (s *Service) Session() (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.active
}

// GetStatistics returns the live read model for the active session, or
// the closing numbers of the last session after it ended.
func (s *Service) GetStatistics(ctx context.Context) model.Statistics {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()
	return s.statistics(sess)
}

// statistics assembles the read model from the live components.
func (s *Service) statistics(sess model.Session) model.Statistics {
	end := sess.EndedAt
	if end.IsZero() {
		end = time.Now().UTC()
	}

	s.mu.RLock()
	total := 0
	for _, n := range s.violationTotals {
		total += n
	}
	s.mu.RUnlock()

	return model.Statistics{
		ParticipantCount:  s.hub.Count(),
		ViolationTotal:    total,
		DurationElapsed:   end.Sub(sess.CreatedAt),
		ComplianceUnknown: s.tracker.Overdue(),
	}
}

// Roster returns the joined participants enriched with focus mode and
// violation counts.
func (s *Service) Roster() []model.Participant {
	roster := s.hub.Roster()

	s.mu.RLock()
	for i := range roster {
		roster[i].ViolationCount = s.violationTotals[roster[i].ID]
	}
	s.mu.RUnlock()

	for i := range roster {
		roster[i].FocusMode = s.tracker.Mode(roster[i].ID)
	}
	return roster
}

// Reports returns the most recent violation reports, newest last.
func (s *Service) Reports() []model.ViolationReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ViolationReport, len(s.recentReports))
	copy(out, s.recentReports)
	return out
}

// SetFocusMode commands a mode for one participant, or for the whole
// roster when participantID is empty. The command is recorded before the
// wire message goes out; compliance reconciles when acks arrive.
func (s *Service) SetFocusMode(ctx context.Context, participantID string, mode model.FocusMode) error {
	s.mu.RLock()
	active := s.active
	code := s.session.Code
	s.mu.RUnlock()
	if !active {
		return ErrNoActiveSession
	}

	targets := []string{participantID}
	if participantID == "" {
		targets = targets[:0]
		for _, p := range s.hub.Roster() {
			targets = append(targets, p.ID)
		}
	}

	env, err := protocol.New(protocol.TypeSetFocusMode, code, "", protocol.SetFocusMode{Mode: mode.String()})
	if err != nil {
		return err
	}

	for _, id := range targets {
		s.tracker.Command(ctx, id, mode)
		if err := s.hub.Send(ctx, id, env); err != nil {
			if participantID != "" && errors.Is(err, hub.ErrUnknownParticipant) {
				s.tracker.Remove(ctx, id)
				return ErrUnknownParticipant
			}
			// Delivery failed but the participant is known; the
			// commanded mode stays recorded and surfaces as
			// compliance unknown when no ack arrives.
			s.logger.Warn(ctx, "focus command not delivered",
				logger.String("participant_id", id),
				logger.Error(err),
			)
		}
		_ = s.store.RecordActivity(ctx, code, id, "focus mode set to "+mode.String())
	}
	return nil
}

// Kick removes one participant from the session.
func (s *Service) Kick(ctx context.Context, participantID string) error {
	s.mu.RLock()
	active := s.active
	code := s.session.Code
	s.mu.RUnlock()
	if !active {
		return ErrNoActiveSession
	}

	found := false
	for _, p := range s.hub.Roster() {
		if p.ID == participantID {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownParticipant
	}

	s.hub.Disconnect(ctx, participantID, hub.ReasonKicked)
	_ = s.store.RecordActivity(ctx, code, participantID, "kicked")
	return nil
}

// StartStream begins screen sharing to every joined participant. A
// non-empty quality selects the capture tier for this stream; the tier
// cannot change while the stream runs.
func (s *Service) StartStream(ctx context.Context, quality string) error {
	s.mu.RLock()
	active := s.active
	code := s.session.Code
	s.mu.RUnlock()
	if !active {
		return ErrNoActiveSession
	}

	if quality != "" {
		if err := s.streamer.SetQuality(model.ParseQuality(quality)); err != nil {
			return err
		}
	}
	if err := s.streamer.Start(ctx, code); err != nil {
		return err
	}
	for _, p := range s.hub.Roster() {
		s.streamer.AddRecipient(p.ID)
	}
	_ = s.store.RecordActivity(ctx, code, "", "stream started")
	return nil
}

// StopStream halts screen sharing.
func (s *Service) StopStream(ctx context.Context) error {
	if err := s.streamer.Stop(); err != nil {
		return err
	}

	s.mu.RLock()
	code := s.session.Code
	s.mu.RUnlock()
	_ = s.store.RecordActivity(ctx, code, "", "stream stopped")
	return nil
}

// eventLoop consumes roster and message events from the hub.
func (s *Service) eventLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case ev := <-s.hub.Events():
			s.handleEvent(ctx, ev)
		case <-s.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleEvent dispatches one hub event.
func (s *Service) handleEvent(ctx context.Context, ev hub.Event) {
	s.mu.RLock()
	code := s.session.Code
	s.mu.RUnlock()

	switch ev.Kind {
	case hub.EventJoin:
		_ = s.store.RecordParticipant(ctx, code, ev.Participant)
		_ = s.store.RecordActivity(ctx, code, ev.ParticipantID, "joined")
		if s.streamer.Running() {
			s.streamer.AddRecipient(ev.ParticipantID)
		}

	case hub.EventLeave:
		s.tracker.Remove(ctx, ev.ParticipantID)
		s.engine.Remove(ctx, ev.ParticipantID)
		s.streamer.RemoveRecipient(ev.ParticipantID)
		_ = s.store.RecordActivity(ctx, code, ev.ParticipantID, "left: "+ev.Reason)

	case hub.EventMessage:
		s.handleMessage(ctx, ev)
	}
}

// handleMessage dispatches one decoded participant message.
func (s *Service) handleMessage(ctx context.Context, ev hub.Event) {
	switch p := ev.Payload.(type) {
	case *protocol.FocusModeAck:
		s.tracker.Ack(ctx, ev.ParticipantID, model.ParseFocusMode(p.Mode))

	case *protocol.ViolationRaw:
		// Raw events racing a disabled mode are discarded, not throttled.
		if !s.tracker.ShouldAccept(ev.ParticipantID) {
			metrics.RecordViolationDiscarded()
			return
		}
		kind := model.ParseViolationKind(p.Kind)
		ts := ev.Envelope.SentAt
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		s.engine.Record(ctx, model.ViolationEvent{
			ParticipantID: ev.ParticipantID,
			Kind:          kind,
			Timestamp:     ts,
			Detail:        p.Detail,
		})

	case *protocol.FrameAck:
		s.streamer.Ack(ev.ParticipantID, p.SequenceNumber)

	default:
		metrics.RecordUnknownMessage()
		s.logger.Debug(ctx, "unexpected message from participant",
			logger.String("participant_id", ev.ParticipantID),
			logger.String("type", string(ev.Envelope.Type)),
		)
	}
}

// reportLoop consumes aggregated violation reports from the throttle
// engine: count, persist, and keep a short history for the operator.
func (s *Service) reportLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case r, ok := <-s.engine.Reports():
			if !ok {
				return
			}
			s.handleReport(ctx, r)
		case <-s.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleReport records one aggregated report. Reports for one window
// are cumulative: the onset carries count 1 and the closing report the
// full window count, so only the delta since the last report of the
// same window is added to the totals.
func (s *Service) handleReport(ctx context.Context, r model.ViolationReport) {
	s.mu.Lock()
	k := violationKey{participantID: r.ParticipantID, kind: r.Kind}
	wp := s.windowCounted[k]
	if !wp.start.Equal(r.WindowStart) {
		wp = windowProgress{start: r.WindowStart}
	}
	if delta := r.OccurrenceCount - wp.counted; delta > 0 {
		s.violationTotals[r.ParticipantID] += delta
		wp.counted += delta
	}
	s.windowCounted[k] = wp
	s.recentReports = append(s.recentReports, r)
	if len(s.recentReports) > s.reportHistory {
		s.recentReports = s.recentReports[len(s.recentReports)-s.reportHistory:]
	}
	code := s.session.Code
	s.mu.Unlock()

	_ = s.store.RecordViolation(ctx, code, r)
	s.logger.Info(ctx, "violation reported",
		logger.String("participant_id", r.ParticipantID),
		logger.String("kind", string(r.Kind)),
		logger.Int("occurrences", r.OccurrenceCount),
	)
}

// randomString draws n characters from the alphabet using crypto/rand.
func randomString(n int, alphabet string) (string, error) {
	out := make([]byte, n)
	size := big.NewInt(int64(len(alphabet)))
	for i := range out {
		v, err := crand.Int(crand.Reader, size)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[v.Int64()]
	}
	return string(out), nil
}

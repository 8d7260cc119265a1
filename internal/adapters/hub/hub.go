// Package hub owns every live participant connection for the authority.
//
// It upgrades incoming websocket requests, authenticates the join
// handshake, keeps the roster, and fans decoded inbound messages out to
// the session manager through a single event channel. All roster
// mutations happen under one mutex so joins, leaves and broadcasts never
// observe a half-updated view.
package hub

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/focusclass/focusd/internal/domain/model"
	"github.com/focusclass/focusd/internal/domain/protocol"
	"github.com/focusclass/focusd/pkg/logger"
	"github.com/focusclass/focusd/pkg/metrics"
)

// Default hub configuration constants.
const (
	defaultAuthWait          = 10 * time.Second
	defaultHeartbeatInterval = 5 * time.Second
	defaultLivenessTimeout   = 15 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultMaxParticipants   = 50
	defaultEventBuffer       = 256
	readLimitBytes           = 1 << 20
)

// Disconnect reasons used for metrics labels and leave events.
const (
	ReasonLeft     = "left"
	ReasonTimeout  = "timeout"
	ReasonKicked   = "kicked"
	ReasonEnded    = "session_ended"
	ReasonShutdown = "shutdown"
)

// EventKind discriminates hub events.
type EventKind int

const (
	// EventJoin fires after a participant authenticated and entered the
	// roster.
	EventJoin EventKind = iota
	// EventMessage carries one decoded inbound envelope.
	EventMessage
	// EventLeave fires after a participant was removed from the roster.
	EventLeave
)

// Event is one roster or message occurrence delivered to the session
// manager.
type Event struct {
	Kind          EventKind
	ParticipantID string
	Participant   model.Participant // set for EventJoin
	Envelope      protocol.Envelope // set for EventMessage
	Payload       any               // decoded payload, set for EventMessage
	Reason        string            // set for EventLeave
}

// Hub accepts, authenticates and tracks participant connections for the
// single active session.
type Hub struct {
	authWait          time.Duration
	heartbeatInterval time.Duration
	livenessTimeout   time.Duration
	writeTimeout      time.Duration
	maxParticipants   int
	eventBuffer       int

	upgrader websocket.Upgrader

	mu          sync.RWMutex
	sessionCode string
	password    []byte
	accepting   bool
	conns       map[string]*conn

	events   chan Event
	shutdown chan struct{}
	done     chan struct{}
	started  bool

	logger logger.Logger
}

// New creates a hub with the given options.
func New(opts ...Option) *Hub {
	h := &Hub{
		authWait:          defaultAuthWait,
		heartbeatInterval: defaultHeartbeatInterval,
		livenessTimeout:   defaultLivenessTimeout,
		writeTimeout:      defaultWriteTimeout,
		maxParticipants:   defaultMaxParticipants,
		eventBuffer:       defaultEventBuffer,
		conns:             make(map[string]*conn),
		shutdown:          make(chan struct{}),
		done:              make(chan struct{}),
	}

	// Apply all options
	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		h.logger = logger.Get().Named("hub")
	}

	h.events = make(chan Event, h.eventBuffer)
	// Classroom deployments sit on a LAN without a fixed origin, so any
	// origin is accepted; the password in the join handshake is the gate.
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	return h
}

// Events exposes the inbound event stream. The channel is never closed;
// consumers stop on their own context.
func (h *Hub) Events() <-chan Event {
	return h.events
}

// Start launches the authority heartbeat loop.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.heartbeatLoop(ctx)
}

// Stop halts the heartbeat loop and tears down every connection.
func (h *Hub) Stop(ctx context.Context) {
	h.mu.Lock()
	started := h.started
	h.started = false
	h.mu.Unlock()

	if started {
		close(h.shutdown)
		<-h.done
	}
	h.DisconnectAll(ctx, ReasonShutdown)
}

// Open arms the hub for a new session: connections presenting this code
// and password are admitted from now on.
func (h *Hub) Open(sessionCode, password string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionCode = sessionCode
	h.password = []byte(password)
	h.accepting = true
}

// Close stops admitting connections. Existing connections stay up until
// disconnected explicitly.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accepting = false
}

// HandleSession upgrades an HTTP request into a participant connection
// and runs the join handshake.
func (h *Hub) HandleSession(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed",
			logger.String("remote", r.RemoteAddr),
			logger.Error(err),
		)
		return
	}

	// The request context dies with the handler; the connection outlives it.
	go h.handshake(context.Background(), ws)
}

// handshake reads the first message and either admits the participant or
// rejects and closes. The join must arrive within authWait.
func (h *Hub) handshake(ctx context.Context, ws *websocket.Conn) {
	ws.SetReadLimit(readLimitBytes)
	if err := ws.SetReadDeadline(time.Now().Add(h.authWait)); err != nil {
		_ = ws.Close()
		return
	}

	_, data, err := ws.ReadMessage()
	if err != nil {
		h.logger.Debug(ctx, "connection dropped before join",
			logger.String("remote", ws.RemoteAddr().String()),
			logger.Error(err),
		)
		_ = ws.Close()
		return
	}

	env, payload, err := protocol.Decode(data)
	if err != nil || env.Type != protocol.TypeJoin {
		h.reject(ctx, ws, "expected join message")
		return
	}
	join := payload.(*protocol.Join)

	h.mu.Lock()
	if !h.accepting {
		h.mu.Unlock()
		h.reject(ctx, ws, "no active session")
		return
	}
	codeOK := subtle.ConstantTimeCompare([]byte(env.SessionCode), []byte(h.sessionCode)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(join.Password), h.password) == 1
	if !codeOK || !passOK {
		h.mu.Unlock()
		h.reject(ctx, ws, "invalid credentials")
		return
	}
	if len(h.conns) >= h.maxParticipants {
		h.mu.Unlock()
		h.reject(ctx, ws, "session full")
		return
	}

	c := newConn(uuid.NewString(), join.DisplayName, ws, h.writeTimeout)
	h.conns[c.id] = c
	code := h.sessionCode
	count := len(h.conns)

	// The acceptance goes out before the mutex is released so no broadcast
	// can reach this connection ahead of its handshake reply.
	accepted, err := protocol.New(protocol.TypeJoinAccepted, code, "", protocol.JoinAccepted{ParticipantID: c.id})
	if err == nil {
		var msg []byte
		if msg, err = protocol.Encode(accepted); err == nil {
			err = c.write(msg)
		}
	}
	if err != nil {
		delete(h.conns, c.id)
		h.mu.Unlock()
		c.close()
		return
	}
	h.mu.Unlock()

	metrics.RecordAuthSuccess()
	metrics.UpdateActiveParticipants(count)
	h.logger.Info(ctx, "participant joined",
		logger.String("participant_id", c.id),
		logger.String("display_name", c.displayName),
		logger.String("remote", c.remoteAddr),
	)

	h.emit(Event{
		Kind:          EventJoin,
		ParticipantID: c.id,
		Participant: model.Participant{
			ID:            c.id,
			DisplayName:   c.displayName,
			RemoteAddress: c.remoteAddr,
			JoinedAt:      c.joinedAt,
		},
	})
	h.broadcastRoster(ctx)

	go h.readPump(ctx, c)
}

// reject answers a failed handshake and closes the socket.
func (h *Hub) reject(ctx context.Context, ws *websocket.Conn, reason string) {
	metrics.RecordAuthFailure()
	h.logger.Warn(ctx, "join rejected",
		logger.String("remote", ws.RemoteAddr().String()),
		logger.String("reason", reason),
	)

	if env, err := protocol.New(protocol.TypeJoinRejected, "", "", protocol.JoinRejected{Reason: reason}); err == nil {
		if msg, encErr := protocol.Encode(env); encErr == nil {
			_ = ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			_ = ws.WriteMessage(websocket.TextMessage, msg)
		}
	}
	_ = ws.Close()
}

// readPump drains one connection until it dies. Any inbound message
// refreshes the liveness deadline, so participants that only heartbeat
// stay connected.
func (h *Hub) readPump(ctx context.Context, c *conn) {
	for {
		if err := c.ws.SetReadDeadline(time.Now().Add(h.livenessTimeout)); err != nil {
			h.Disconnect(ctx, c.id, ReasonLeft)
			return
		}

		_, data, err := c.ws.ReadMessage()
		if err != nil {
			reason := ReasonLeft
			if netTimeout(err) {
				reason = ReasonTimeout
				metrics.RecordHeartbeatTimeout()
			}
			h.Disconnect(ctx, c.id, reason)
			return
		}
		metrics.RecordMessageReceived()

		env, payload, err := protocol.Decode(data)
		if err != nil {
			metrics.RecordUnknownMessage()
			h.logger.Warn(ctx, "undecodable message",
				logger.String("participant_id", c.id),
				logger.Error(err),
			)
			continue
		}

		if env.Type == protocol.TypeHeartbeat {
			continue
		}

		// The sender id on the wire is untrusted; stamp the authenticated one.
		env.SenderID = c.id
		h.emit(Event{
			Kind:          EventMessage,
			ParticipantID: c.id,
			Envelope:      env,
			Payload:       payload,
		})
	}
}

// Disconnect removes a participant and closes its connection. Safe to
// call multiple times for the same id; only the first call has effect.
func (h *Hub) Disconnect(ctx context.Context, participantID, reason string) {
	h.mu.Lock()
	c, ok := h.conns[participantID]
	if ok {
		delete(h.conns, participantID)
	}
	count := len(h.conns)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()

	metrics.RecordDisconnect(reason)
	metrics.UpdateActiveParticipants(count)
	h.logger.Info(ctx, "participant disconnected",
		logger.String("participant_id", participantID),
		logger.String("reason", reason),
	)

	h.emit(Event{Kind: EventLeave, ParticipantID: participantID, Reason: reason})
	h.broadcastRoster(ctx)
}

// DisconnectAll tears down every connection with the same reason.
func (h *Hub) DisconnectAll(ctx context.Context, reason string) {
	for _, p := range h.Roster() {
		h.Disconnect(ctx, p.ID, reason)
	}
}

// Send delivers one envelope to one participant.
func (h *Hub) Send(ctx context.Context, participantID string, env protocol.Envelope) error {
	h.mu.RLock()
	c, ok := h.conns[participantID]
	h.mu.RUnlock()

	if !ok {
		return ErrUnknownParticipant
	}

	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	if err := c.write(data); err != nil {
		return err
	}
	metrics.RecordMessageSent()
	return nil
}

// Broadcast delivers one envelope to every participant except the
// excluded ids. A failing recipient never blocks the others.
func (h *Hub) Broadcast(ctx context.Context, env protocol.Envelope, exclude ...string) {
	data, err := protocol.Encode(env)
	if err != nil {
		h.logger.Error(ctx, "broadcast encode failed", logger.Error(err))
		return
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for id, c := range h.conns {
		if _, ok := skip[id]; ok {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	metrics.RecordBroadcast()
	for _, c := range targets {
		if err := c.write(data); err != nil {
			metrics.RecordBroadcastError()
			h.logger.Warn(ctx, "broadcast delivery failed",
				logger.String("participant_id", c.id),
				logger.Error(err),
			)
			continue
		}
		metrics.RecordMessageSent()
	}
}

// Roster returns a point-in-time snapshot of joined participants,
// ordered by join time.
func (h *Hub) Roster() []model.Participant {
	h.mu.RLock()
	out := make([]model.Participant, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, model.Participant{
			ID:            c.id,
			DisplayName:   c.displayName,
			RemoteAddress: c.remoteAddr,
			JoinedAt:      c.joinedAt,
		})
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Count returns the number of joined participants.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// broadcastRoster pushes the full membership list to everyone after a
// join or leave.
func (h *Hub) broadcastRoster(ctx context.Context) {
	roster := h.Roster()
	entries := make([]protocol.RosterEntry, 0, len(roster))
	for _, p := range roster {
		entries = append(entries, protocol.RosterEntry{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
		})
	}

	h.mu.RLock()
	code := h.sessionCode
	h.mu.RUnlock()

	env, err := protocol.New(protocol.TypeRosterUpdate, code, "", protocol.RosterUpdate{Participants: entries})
	if err != nil {
		h.logger.Error(ctx, "roster encode failed", logger.Error(err))
		return
	}
	h.Broadcast(ctx, env)
}

// heartbeatLoop pings all participants so their side can detect a dead
// authority.
func (h *Hub) heartbeatLoop(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.mu.RLock()
			accepting := h.accepting
			code := h.sessionCode
			h.mu.RUnlock()
			if !accepting {
				continue
			}
			if env, err := protocol.New(protocol.TypeHeartbeat, code, "", nil); err == nil {
				h.Broadcast(ctx, env)
			}
		case <-h.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// emit hands an event to the consumer without wedging on shutdown.
func (h *Hub) emit(ev Event) {
	select {
	case h.events <- ev:
	case <-h.shutdown:
	}
}

// netTimeout reports whether a read failed on the liveness deadline
// rather than a closed or broken connection.
func netTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

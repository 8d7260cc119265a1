// Package simulate drives synthetic participants against a running
// authority. It exists for load checks and end-to-end exercises on hosts
// with no real participant clients.
package simulate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/focusclass/focusd/internal/domain/model"
	"github.com/focusclass/focusd/internal/domain/protocol"
	"github.com/focusclass/focusd/pkg/logger"
)

// Default simulator configuration constants.
const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultViolationEvery    = 8 * time.Second
	defaultBurstSize         = 3
	dialTimeout              = 10 * time.Second
	writeTimeout             = 5 * time.Second
)

// Config describes one simulated participant population.
type Config struct {
	// URL is the authority websocket endpoint, e.g. ws://host:8765/ws.
	URL string
	// SessionCode and Password are the credentials handed out by the
	// operator.
	SessionCode string
	Password    string
	// DisplayName prefixes each participant's name.
	DisplayName string
	// Participants is how many clients to run concurrently.
	Participants int
	// HeartbeatInterval is the client ping cadence.
	HeartbeatInterval time.Duration
	// ViolationEvery schedules violation bursts; zero disables them.
	ViolationEvery time.Duration
	// BurstSize is how many raw events each burst carries.
	BurstSize int
	// AckFocus and AckFrames control whether the client confirms focus
	// commands and frames. Disabling them exercises the authority's
	// degraded paths.
	AckFocus  bool
	AckFrames bool
	// Duration bounds the run; zero means until the session ends.
	Duration time.Duration
}

// withDefaults fills unset knobs.
func (c Config) withDefaults() Config {
	if c.DisplayName == "" {
		c.DisplayName = "sim"
	}
	if c.Participants <= 0 {
		c.Participants = 1
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.BurstSize <= 0 {
		c.BurstSize = defaultBurstSize
	}
	return c
}

// Run drives the configured participant population and blocks until all
// clients have finished.
func Run(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	var wg sync.WaitGroup
	errs := make(chan error, cfg.Participants)
	for i := 0; i < cfg.Participants; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("%s-%02d", cfg.DisplayName, n+1)
			if err := runClient(ctx, cfg, name); err != nil {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	return <-errs
}

// client is one simulated participant connection.
type client struct {
	cfg  Config
	name string
	id   string

	ws      *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	mode model.FocusMode

	logger logger.Logger
}

// runClient joins, then reacts to authority traffic until the session
// ends or the context expires.
func runClient(ctx context.Context, cfg Config, name string) error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	defer func() { _ = ws.Close() }()

	c := &client{
		cfg:    cfg,
		name:   name,
		ws:     ws,
		logger: logger.Get().Named("sim"),
	}

	if err := c.join(ctx); err != nil {
		return err
	}

	stop := make(chan struct{})
	defer close(stop)

	// Closing the socket is the only way to unblock a pending read when
	// the run deadline expires.
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.Close()
		case <-stop:
		}
	}()

	go c.heartbeatLoop(ctx, stop)
	if cfg.ViolationEvery > 0 {
		go c.violationLoop(ctx, stop)
	}

	return c.readLoop(ctx)
}

// join performs the handshake and records the allocated id.
func (c *client) join(ctx context.Context) error {
	if err := c.send(protocol.TypeJoin, protocol.Join{
		DisplayName: c.name,
		Password:    c.cfg.Password,
	}); err != nil {
		return err
	}

	env, payload, err := c.read()
	if err != nil {
		return err
	}
	switch env.Type {
	case protocol.TypeJoinAccepted:
		c.id = payload.(*protocol.JoinAccepted).ParticipantID
		c.logger.Info(ctx, "joined session",
			logger.String("name", c.name),
			logger.String("participant_id", c.id),
		)
		return nil
	case protocol.TypeJoinRejected:
		return fmt.Errorf("join rejected: %s", payload.(*protocol.JoinRejected).Reason)
	default:
		return fmt.Errorf("unexpected handshake reply %q", env.Type)
	}
}

// readLoop reacts to everything the authority sends.
func (c *client) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		_, payload, err := c.read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch p := payload.(type) {
		case *protocol.SetFocusMode:
			c.mu.Lock()
			c.mode = model.ParseFocusMode(p.Mode)
			c.mu.Unlock()
			if c.cfg.AckFocus {
				if err := c.send(protocol.TypeFocusModeAck, protocol.FocusModeAck{Mode: p.Mode}); err != nil {
					return err
				}
			}

		case *protocol.FrameData:
			if c.cfg.AckFrames {
				if err := c.send(protocol.TypeFrameAck, protocol.FrameAck{SequenceNumber: p.SequenceNumber}); err != nil {
					return err
				}
			}

		case *protocol.SessionEnded:
			c.logger.Info(ctx, "session ended by authority", logger.String("name", c.name))
			return nil

		default:
			// roster updates, heartbeats and violation reports need no reply
		}
	}
}

// heartbeatLoop pings the authority at the configured cadence.
func (c *client) heartbeatLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.send(protocol.TypeHeartbeat, nil); err != nil {
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// violationLoop emits bursts of raw events while an enforcement mode is
// active. Bursts land inside one throttle window on the authority.
func (c *client) violationLoop(ctx context.Context, stop <-chan struct{}) {
	kinds := []string{"focus_lost", "window_switch", "unauthorized_process"}

	ticker := time.NewTicker(c.cfg.ViolationEvery)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			mode := c.mode
			c.mu.Unlock()
			if mode == model.FocusOff {
				continue
			}

			kind := kinds[n%len(kinds)]
			n++
			for i := 0; i < c.cfg.BurstSize; i++ {
				if err := c.send(protocol.TypeViolationRaw, protocol.ViolationRaw{
					Kind:   kind,
					Detail: fmt.Sprintf("simulated %s burst", kind),
				}); err != nil {
					return
				}
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// send writes one envelope under the write mutex.
func (c *client) send(t protocol.Type, payload any) error {
	env, err := protocol.New(t, c.cfg.SessionCode, c.id, payload)
	if err != nil {
		return err
	}
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", t, err)
	}
	return nil
}

// read decodes the next envelope from the authority.
func (c *client) read() (protocol.Envelope, any, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, nil, fmt.Errorf("read: %w", err)
	}
	return protocol.Decode(data)
}

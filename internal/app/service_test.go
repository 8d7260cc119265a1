package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/focusclass/focusd/internal/adapters/hub"
	"github.com/focusclass/focusd/internal/adapters/stream"
	service "github.com/focusclass/focusd/internal/app"
	"github.com/focusclass/focusd/internal/domain/focus"
	"github.com/focusclass/focusd/internal/domain/model"
	"github.com/focusclass/focusd/internal/domain/protocol"
	"github.com/focusclass/focusd/internal/domain/throttle"
	"github.com/focusclass/focusd/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// fakeHub is an in-memory stand-in for the websocket hub.
type fakeHub struct {
	mu           sync.Mutex
	events       chan hub.Event
	opened       bool
	code         string
	password     string
	accepting    bool
	roster       []model.Participant
	broadcasts   []protocol.Envelope
	sent         map[string][]protocol.Envelope
	sendErr      error
	disconnected map[string]string
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		events:       make(chan hub.Event, 64),
		sent:         make(map[string][]protocol.Envelope),
		disconnected: make(map[string]string),
	}
}

func (f *fakeHub) Start(context.Context) {}
func (f *fakeHub) Stop(context.Context)  {}

func (f *fakeHub) Open(code, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = true
	f.accepting = true
	f.code = code
	f.password = password
}

func (f *fakeHub) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepting = false
}

func (f *fakeHub) Send(_ context.Context, participantID string, env protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.roster {
		if p.ID == participantID {
			if f.sendErr != nil {
				return f.sendErr
			}
			f.sent[participantID] = append(f.sent[participantID], env)
			return nil
		}
	}
	return hub.ErrUnknownParticipant
}

func (f *fakeHub) Broadcast(_ context.Context, env protocol.Envelope, _ ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, env)
}

func (f *fakeHub) Disconnect(_ context.Context, participantID, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.roster {
		if p.ID == participantID {
			f.roster = append(f.roster[:i], f.roster[i+1:]...)
			f.disconnected[participantID] = reason
			return
		}
	}
}

func (f *fakeHub) DisconnectAll(ctx context.Context, reason string) {
	for _, p := range f.Roster() {
		f.Disconnect(ctx, p.ID, reason)
	}
}

func (f *fakeHub) Roster() []model.Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Participant, len(f.roster))
	copy(out, f.roster)
	return out
}

func (f *fakeHub) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.roster)
}

func (f *fakeHub) Events() <-chan hub.Event { return f.events }

// join simulates an authenticated participant and emits the join event.
func (f *fakeHub) join(id, name string) {
	p := model.Participant{ID: id, DisplayName: name, JoinedAt: time.Now().UTC()}
	f.mu.Lock()
	f.roster = append(f.roster, p)
	f.mu.Unlock()
	f.events <- hub.Event{Kind: hub.EventJoin, ParticipantID: id, Participant: p}
}

func (f *fakeHub) broadcastCount(t protocol.Type) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, env := range f.broadcasts {
		if env.Type == t {
			n++
		}
	}
	return n
}

// fakeStreamer records pipeline interactions.
type fakeStreamer struct {
	mu         sync.Mutex
	running    bool
	quality    model.Quality
	recipients map[string]bool
	acks       map[string]int
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{recipients: make(map[string]bool), acks: make(map[string]int)}
}

func (f *fakeStreamer) Start(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *fakeStreamer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

func (f *fakeStreamer) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeStreamer) AddRecipient(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipients[id] = true
}

func (f *fakeStreamer) RemoveRecipient(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.recipients, id)
}

func (f *fakeStreamer) Ack(id string, _ uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks[id]++
}

func (f *fakeStreamer) SetQuality(q model.Quality) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return stream.ErrAlreadyStreaming
	}
	f.quality = q
	return nil
}

// fakeStore counts persistence calls.
type fakeStore struct {
	mu         sync.Mutex
	sessions   int
	finalized  int
	violations int
	lastStats  model.Statistics
}

func (f *fakeStore) RecordSession(context.Context, model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	return nil
}

func (f *fakeStore) RecordParticipant(context.Context, string, model.Participant) error {
	return nil
}

func (f *fakeStore) RecordViolation(context.Context, string, model.ViolationReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations++
	return nil
}

func (f *fakeStore) RecordActivity(context.Context, string, string, string) error { return nil }

func (f *fakeStore) FinalizeSession(_ context.Context, _ string, stats model.Statistics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized++
	f.lastStats = stats
	return nil
}

func (f *fakeStore) finalizedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalized
}

func (f *fakeStore) violationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.violations
}

// harness bundles a started service with its fakes.
type harness struct {
	svc      *service.Service
	hub      *fakeHub
	streamer *fakeStreamer
	store    *fakeStore
}

func startHarness(ctx context.Context) *harness {
	h := &harness{
		hub:      newFakeHub(),
		streamer: newFakeStreamer(),
		store:    &fakeStore{},
	}
	h.svc = service.New(
		h.hub,
		h.streamer,
		focus.New(focus.WithAckTimeout(100*time.Millisecond)),
		throttle.New(throttle.WithInterval(100*time.Millisecond)),
		h.store,
	)
	h.svc.Start(ctx)
	return h
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestSessionLifecycle(t *testing.T) {
	Convey("Given a started manager", t, func() {
		ctx := context.Background()
		h := startHarness(ctx)
		defer h.svc.Stop(ctx)

		Convey("When a session starts", func() {
			sess, err := h.svc.StartSession(ctx, "teacher-1", "10.0.0.5:8765")

			Convey("Then credentials are generated and the hub opens", func() {
				So(err, ShouldBeNil)
				So(len(sess.Code), ShouldEqual, 8)
				for _, r := range sess.Code {
					So(strings.ContainsRune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789", r), ShouldBeTrue)
				}
				So(len(sess.Password), ShouldEqual, 12)
				So(sess.State, ShouldEqual, model.SessionActive)
				So(h.hub.opened, ShouldBeTrue)
				So(h.hub.code, ShouldEqual, sess.Code)
			})

			Convey("Then a second start is refused while active", func() {
				So(err, ShouldBeNil)
				_, err := h.svc.StartSession(ctx, "teacher-1", "10.0.0.5:8765")
				So(err, ShouldEqual, service.ErrSessionActive)
			})

			Convey("Then ending it notifies participants exactly once", func() {
				So(err, ShouldBeNil)
				So(h.svc.EndSession(ctx), ShouldBeNil)
				So(h.svc.EndSession(ctx), ShouldBeNil)

				So(h.hub.broadcastCount(protocol.TypeSessionEnded), ShouldEqual, 1)
				So(h.store.finalizedCount(), ShouldEqual, 1)
				_, active := h.svc.Session()
				So(active, ShouldBeFalse)
			})
		})

		Convey("When no session was ever started", func() {
			Convey("Then ending is a harmless no-op", func() {
				So(h.svc.EndSession(ctx), ShouldBeNil)
				So(h.store.finalizedCount(), ShouldEqual, 0)
			})

			Convey("Then commands require an active session", func() {
				So(h.svc.SetFocusMode(ctx, "", model.FocusFull), ShouldEqual, service.ErrNoActiveSession)
				So(h.svc.Kick(ctx, "p1"), ShouldEqual, service.ErrNoActiveSession)
				So(h.svc.StartStream(ctx, ""), ShouldEqual, service.ErrNoActiveSession)
			})
		})
	})
}

func TestViolationFlow(t *testing.T) {
	Convey("Given an active session with one participant in full mode", t, func() {
		ctx := context.Background()
		h := startHarness(ctx)
		defer h.svc.Stop(ctx)

		_, err := h.svc.StartSession(ctx, "teacher-1", "10.0.0.5:8765")
		So(err, ShouldBeNil)
		h.hub.join("p1", "Alice")
		So(h.svc.SetFocusMode(ctx, "p1", model.FocusFull), ShouldBeNil)

		Convey("When the participant reports raw violations", func() {
			env, err := protocol.New(protocol.TypeViolationRaw, "", "p1", protocol.ViolationRaw{
				Kind: "focus_lost", Detail: "alt-tab",
			})
			So(err, ShouldBeNil)
			h.hub.events <- hub.Event{
				Kind:          hub.EventMessage,
				ParticipantID: "p1",
				Envelope:      env,
				Payload:       &protocol.ViolationRaw{Kind: "focus_lost", Detail: "alt-tab"},
			}

			Convey("Then an aggregated report is counted and persisted", func() {
				So(eventually(func() bool {
					return h.svc.GetStatistics(ctx).ViolationTotal >= 1
				}), ShouldBeTrue)
				So(eventually(func() bool { return h.store.violationCount() >= 1 }), ShouldBeTrue)

				reports := h.svc.Reports()
				So(len(reports), ShouldBeGreaterThanOrEqualTo, 1)
				So(reports[0].ParticipantID, ShouldEqual, "p1")
				So(reports[0].Kind, ShouldEqual, model.ViolationFocusLost)
			})
		})

		Convey("When a burst of raw violations lands in one window", func() {
			for i := 0; i < 3; i++ {
				h.hub.events <- hub.Event{
					Kind:          hub.EventMessage,
					ParticipantID: "p1",
					Payload:       &protocol.ViolationRaw{Kind: "focus_lost", Detail: "alt-tab"},
				}
			}

			Convey("Then the total matches the raw count across onset and close reports", func() {
				So(eventually(func() bool {
					return len(h.svc.Reports()) >= 2
				}), ShouldBeTrue)
				So(h.svc.GetStatistics(ctx).ViolationTotal, ShouldEqual, 3)
			})
		})

		Convey("When violations arrive while the mode is off", func() {
			h.hub.join("p2", "Bob")
			h.hub.events <- hub.Event{
				Kind:          hub.EventMessage,
				ParticipantID: "p2",
				Payload:       &protocol.ViolationRaw{Kind: "focus_lost"},
			}

			Convey("Then they are discarded without a report", func() {
				time.Sleep(300 * time.Millisecond)
				So(h.svc.GetStatistics(ctx).ViolationTotal, ShouldEqual, 0)
			})
		})
	})
}

func TestFocusCommandsAndAcks(t *testing.T) {
	Convey("Given an active session with two participants", t, func() {
		ctx := context.Background()
		h := startHarness(ctx)
		defer h.svc.Stop(ctx)

		_, err := h.svc.StartSession(ctx, "teacher-1", "10.0.0.5:8765")
		So(err, ShouldBeNil)
		h.hub.join("p1", "Alice")
		h.hub.join("p2", "Bob")

		Convey("When the whole roster is commanded to full", func() {
			So(h.svc.SetFocusMode(ctx, "", model.FocusFull), ShouldBeNil)

			Convey("Then every participant got the command", func() {
				h.hub.mu.Lock()
				sent1 := len(h.hub.sent["p1"])
				sent2 := len(h.hub.sent["p2"])
				h.hub.mu.Unlock()
				So(sent1, ShouldEqual, 1)
				So(sent2, ShouldEqual, 1)
			})

			Convey("Then only unacked participants become compliance unknown", func() {
				h.hub.events <- hub.Event{
					Kind:          hub.EventMessage,
					ParticipantID: "p1",
					Payload:       &protocol.FocusModeAck{Mode: "full"},
				}

				So(eventually(func() bool {
					unknown := h.svc.GetStatistics(ctx).ComplianceUnknown
					return len(unknown) == 1 && unknown[0] == "p2"
				}), ShouldBeTrue)
			})
		})

		Convey("When a command targets an unknown participant", func() {
			err := h.svc.SetFocusMode(ctx, "ghost", model.FocusFull)

			Convey("Then it is refused", func() {
				So(err, ShouldEqual, service.ErrUnknownParticipant)
			})
		})

		Convey("When delivery to a known participant fails transiently", func() {
			h.hub.mu.Lock()
			h.hub.sendErr = errors.New("write: broken pipe")
			h.hub.mu.Unlock()
			err := h.svc.SetFocusMode(ctx, "p1", model.FocusFull)

			Convey("Then the command stays recorded and goes compliance unknown", func() {
				So(err, ShouldBeNil)
				So(eventually(func() bool {
					unknown := h.svc.GetStatistics(ctx).ComplianceUnknown
					return len(unknown) == 1 && unknown[0] == "p1"
				}), ShouldBeTrue)
			})
		})
	})
}

func TestStreamingAndKick(t *testing.T) {
	Convey("Given an active session with one participant", t, func() {
		ctx := context.Background()
		h := startHarness(ctx)
		defer h.svc.Stop(ctx)

		_, err := h.svc.StartSession(ctx, "teacher-1", "10.0.0.5:8765")
		So(err, ShouldBeNil)
		h.hub.join("p1", "Alice")

		Convey("When streaming starts and another participant joins", func() {
			So(h.svc.StartStream(ctx, ""), ShouldBeNil)
			h.hub.join("p2", "Bob")

			Convey("Then both become frame recipients", func() {
				So(eventually(func() bool {
					h.streamer.mu.Lock()
					defer h.streamer.mu.Unlock()
					return h.streamer.recipients["p1"] && h.streamer.recipients["p2"]
				}), ShouldBeTrue)
			})

			Convey("Then frame acks are routed to the pipeline", func() {
				h.hub.events <- hub.Event{
					Kind:          hub.EventMessage,
					ParticipantID: "p1",
					Payload:       &protocol.FrameAck{SequenceNumber: 1},
				}
				So(eventually(func() bool {
					h.streamer.mu.Lock()
					defer h.streamer.mu.Unlock()
					return h.streamer.acks["p1"] == 1
				}), ShouldBeTrue)
			})
		})

		Convey("When a participant is kicked", func() {
			So(h.svc.Kick(ctx, "p1"), ShouldBeNil)

			Convey("Then it leaves the roster with the kick reason", func() {
				So(h.hub.disconnected["p1"], ShouldEqual, hub.ReasonKicked)
				So(h.svc.Kick(ctx, "p1"), ShouldEqual, service.ErrUnknownParticipant)
			})
		})
	})
}

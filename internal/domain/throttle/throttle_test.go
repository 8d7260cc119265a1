package throttle_test

import (
	"context"
	"testing"
	"time"

	"github.com/focusclass/focusd/internal/domain/model"
	"github.com/focusclass/focusd/internal/domain/throttle"
	"github.com/focusclass/focusd/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func event(participant string, kind model.ViolationKind, detail string) model.ViolationEvent {
	return model.ViolationEvent{
		ParticipantID: participant,
		Kind:          kind,
		Timestamp:     time.Now(),
		Detail:        detail,
	}
}

// collect drains reports until the deadline elapses with no new report.
func collect(ch <-chan model.ViolationReport, quiet time.Duration) []model.ViolationReport {
	var out []model.ViolationReport
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, r)
		case <-time.After(quiet):
			return out
		}
	}
}

func TestBurstCollapsesToOneWindow(t *testing.T) {
	Convey("Given an engine with a 150ms window", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		eng := throttle.New(
			throttle.WithInterval(150*time.Millisecond),
			throttle.WithRetention(time.Second),
		)
		eng.Start(ctx)
		defer eng.Stop()

		Convey("When three events of one kind arrive inside the window", func() {
			for i := 0; i < 3; i++ {
				eng.Record(ctx, event("alice", model.ViolationFocusLost, "switched window"))
				time.Sleep(20 * time.Millisecond)
			}

			reports := collect(eng.Reports(), 400*time.Millisecond)

			Convey("Then exactly one immediate report and one window-close report emerge", func() {
				So(len(reports), ShouldEqual, 2)
				So(reports[0].OccurrenceCount, ShouldEqual, 1)
				So(reports[0].Kind, ShouldEqual, model.ViolationFocusLost)
				So(reports[0].ParticipantID, ShouldEqual, "alice")
				So(reports[1].OccurrenceCount, ShouldEqual, 3)
				So(reports[1].WindowEnd.After(reports[1].WindowStart), ShouldBeTrue)
			})
		})
	})
}

func TestSpacedEventsReopenWindows(t *testing.T) {
	Convey("Given an engine with a 50ms window", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		eng := throttle.New(
			throttle.WithInterval(50*time.Millisecond),
			throttle.WithRetention(time.Second),
		)
		eng.Start(ctx)
		defer eng.Stop()

		Convey("When events of one kind arrive farther apart than the window", func() {
			eng.Record(ctx, event("alice", model.ViolationFocusLost, ""))
			time.Sleep(120 * time.Millisecond)
			eng.Record(ctx, event("alice", model.ViolationFocusLost, ""))
			time.Sleep(120 * time.Millisecond)

			reports := collect(eng.Reports(), 200*time.Millisecond)

			Convey("Then each event produces its own immediate report", func() {
				immediate := 0
				for _, r := range reports {
					if r.OccurrenceCount == 1 {
						immediate++
					}
				}
				So(immediate, ShouldEqual, 2)
			})
		})
	})
}

func TestKindsThrottleIndependently(t *testing.T) {
	Convey("Given an engine", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		eng := throttle.New(throttle.WithInterval(200 * time.Millisecond))
		eng.Start(ctx)
		defer eng.Stop()

		Convey("When two kinds fire simultaneously for one participant", func() {
			eng.Record(ctx, event("alice", model.ViolationFocusLost, ""))
			eng.Record(ctx, event("alice", model.ViolationWindowSwitch, ""))

			reports := collect(eng.Reports(), 100*time.Millisecond)

			Convey("Then each kind gets its own immediate report", func() {
				So(len(reports), ShouldEqual, 2)
				kinds := map[model.ViolationKind]bool{}
				for _, r := range reports {
					kinds[r.Kind] = true
				}
				So(kinds[model.ViolationFocusLost], ShouldBeTrue)
				So(kinds[model.ViolationWindowSwitch], ShouldBeTrue)
			})
		})
	})
}

func TestUnknownKindBucket(t *testing.T) {
	Convey("Given an engine", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		eng := throttle.New(throttle.WithInterval(200 * time.Millisecond))
		eng.Start(ctx)
		defer eng.Stop()

		Convey("When an event with an unanticipated kind arrives", func() {
			eng.Record(ctx, event("alice", model.ViolationKind("telepathy"), "??"))

			reports := collect(eng.Reports(), 100*time.Millisecond)

			Convey("Then it is recorded under the unknown bucket, not rejected", func() {
				So(len(reports), ShouldEqual, 1)
				So(reports[0].Kind, ShouldEqual, model.ViolationUnknown)
			})
		})
	})
}

func TestRemoveDropsParticipantState(t *testing.T) {
	Convey("Given an engine with windows for two participants", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		eng := throttle.New(throttle.WithInterval(time.Minute))
		eng.Start(ctx)
		defer eng.Stop()

		eng.Record(ctx, event("alice", model.ViolationFocusLost, ""))
		eng.Record(ctx, event("bob", model.ViolationFocusLost, ""))
		So(eng.Size(), ShouldEqual, 2)

		Convey("When one participant is removed", func() {
			eng.Remove(ctx, "alice")

			Convey("Then only that participant's windows are gone", func() {
				So(eng.Size(), ShouldEqual, 1)
			})
		})
	})
}

func TestRetentionSweepBoundsMemory(t *testing.T) {
	Convey("Given an engine with short window and retention", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		eng := throttle.New(
			throttle.WithInterval(50*time.Millisecond),
			throttle.WithRetention(100*time.Millisecond),
		)
		eng.Start(ctx)
		defer eng.Stop()

		Convey("When a window closes and the retention horizon passes", func() {
			eng.Record(ctx, event("alice", model.ViolationFocusLost, ""))
			So(eng.Size(), ShouldEqual, 1)

			time.Sleep(400 * time.Millisecond)

			Convey("Then the record is evicted", func() {
				So(eng.Size(), ShouldEqual, 0)
			})
		})
	})
}

package storage_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"testing"

	"github.com/focusclass/focusd/internal/adapters/storage"
	"github.com/focusclass/focusd/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeGateway counts writes and can simulate a slow or failing destination.
type fakeGateway struct {
	mu       sync.Mutex
	writes   int
	failWith error
	delay    time.Duration
	release  chan struct{}
}

func (f *fakeGateway) record(_ context.Context) error {
	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	return f.failWith
}

func (f *fakeGateway) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeGateway) RecordSession(ctx context.Context, _ model.Session) error {
	return f.record(ctx)
}

func (f *fakeGateway) RecordParticipant(ctx context.Context, _ string, _ model.Participant) error {
	return f.record(ctx)
}

func (f *fakeGateway) RecordViolation(ctx context.Context, _ string, _ model.ViolationReport) error {
	return f.record(ctx)
}

func (f *fakeGateway) RecordActivity(ctx context.Context, _, _, _ string) error {
	return f.record(ctx)
}

func (f *fakeGateway) FinalizeSession(ctx context.Context, _ string, _ model.Statistics) error {
	return f.record(ctx)
}

func TestAsyncWriterDrainsOnStop(t *testing.T) {
	Convey("Given a started writer over a fake destination", t, func() {
		ctx := context.Background()
		dest := &fakeGateway{}
		w := storage.NewAsyncWriter(dest,
			storage.WithQueueCapacity(16),
			storage.WithWorkerCount(2),
		)
		w.Start(ctx)

		Convey("When writes are enqueued and the writer stops", func() {
			for i := 0; i < 5; i++ {
				So(w.RecordActivity(ctx, "A1B2C3D4", "p1", "joined"), ShouldBeNil)
			}
			w.Stop()

			Convey("Then every pending write reached the destination", func() {
				So(dest.count(), ShouldEqual, 5)
			})
		})
	})
}

func TestAsyncWriterNeverBlocksCaller(t *testing.T) {
	Convey("Given a writer whose destination is stalled", t, func() {
		ctx := context.Background()
		dest := &fakeGateway{release: make(chan struct{})}
		w := storage.NewAsyncWriter(dest,
			storage.WithQueueCapacity(2),
			storage.WithWorkerCount(1),
		)
		w.Start(ctx)

		Convey("When the queue overflows", func() {
			start := time.Now()
			// One job stalls in the worker, two fill the queue, the rest drop.
			for i := 0; i < 10; i++ {
				So(w.RecordSession(ctx, model.Session{Code: "A1B2C3D4"}), ShouldBeNil)
			}
			elapsed := time.Since(start)

			Convey("Then the caller returned without waiting on the disk", func() {
				So(elapsed, ShouldBeLessThan, 500*time.Millisecond)
				So(w.Len(), ShouldBeLessThanOrEqualTo, 2)
			})

			close(dest.release)
			w.Stop()
		})
	})
}

func TestAsyncWriterSwallowsDestinationErrors(t *testing.T) {
	Convey("Given a destination that always fails", t, func() {
		ctx := context.Background()
		dest := &fakeGateway{failWith: errors.New("disk on fire")}
		w := storage.NewAsyncWriter(dest, storage.WithWorkerCount(1))
		w.Start(ctx)

		Convey("When a write is enqueued", func() {
			err := w.RecordViolation(ctx, "A1B2C3D4", model.ViolationReport{
				ParticipantID: "p1",
				Kind:          model.ViolationFocusLost,
			})
			w.Stop()

			Convey("Then the caller never sees the failure", func() {
				So(err, ShouldBeNil)
				So(dest.count(), ShouldEqual, 1)
			})
		})
	})
}

func TestAsyncWriterStopIsIdempotent(t *testing.T) {
	Convey("Given a started writer", t, func() {
		w := storage.NewAsyncWriter(&fakeGateway{})
		w.Start(context.Background())

		Convey("When Stop is called twice", func() {
			w.Stop()

			Convey("Then the second call is a no-op", func() {
				So(w.Stop, ShouldNotPanic)
			})

			Convey("Then writes after Stop are refused", func() {
				err := w.RecordActivity(context.Background(), "A1B2C3D4", "", "joined")
				So(errors.Is(err, storage.ErrClosed), ShouldBeTrue)
			})
		})
	})
}

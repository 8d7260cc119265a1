package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/focusclass/focusd/internal/adapters/storage"
	"github.com/focusclass/focusd/internal/domain/model"
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

func openTestStore(ctx context.Context) *storage.SQLiteStore {
	store, err := storage.NewSQLiteStore(ctx, storage.WithPath(":memory:"))
	if err != nil {
		panic(err)
	}
	return store
}

func testSession() model.Session {
	return model.Session{
		Code:             "A1B2C3D4",
		Password:         "pw9",
		AuthorityID:      "teacher-1",
		AuthorityAddress: "192.168.1.10:8765",
		CreatedAt:        time.Now().UTC(),
		State:            model.SessionActive,
	}
}

func TestSQLiteStoreSessionLifecycle(t *testing.T) {
	Convey("Given an in-memory store", t, func() {
		ctx := context.Background()
		store := openTestStore(ctx)
		defer func() { _ = store.Close() }()

		Convey("When recording and finalizing a session", func() {
			So(store.RecordSession(ctx, testSession()), ShouldBeNil)

			err := store.FinalizeSession(ctx, "A1B2C3D4", model.Statistics{
				ParticipantCount: 2,
				ViolationTotal:   5,
				DurationElapsed:  90 * time.Second,
			})

			Convey("Then both writes succeed", func() {
				So(err, ShouldBeNil)
				n, err := store.SessionCount(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When finalizing an unknown session", func() {
			err := store.FinalizeSession(ctx, "NOPE0000", model.Statistics{})

			Convey("Then it reports ErrUnknownSession", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, storage.ErrUnknownSession), ShouldBeTrue)
			})
		})
	})
}

func TestSQLiteStoreParticipantsAndViolations(t *testing.T) {
	Convey("Given a store with one session", t, func() {
		ctx := context.Background()
		store := openTestStore(ctx)
		defer func() { _ = store.Close() }()
		So(store.RecordSession(ctx, testSession()), ShouldBeNil)

		Convey("When recording a participant twice", func() {
			p := model.Participant{
				ID:            "p1",
				DisplayName:   "Alice",
				RemoteAddress: "192.168.1.20:51000",
				JoinedAt:      time.Now().UTC(),
			}
			So(store.RecordParticipant(ctx, "A1B2C3D4", p), ShouldBeNil)

			Convey("Then the second write is a no-op, not an error", func() {
				So(store.RecordParticipant(ctx, "A1B2C3D4", p), ShouldBeNil)
			})
		})

		Convey("When recording violation reports", func() {
			now := time.Now().UTC()
			r := model.ViolationReport{
				ParticipantID:   "p1",
				Kind:            model.ViolationFocusLost,
				WindowStart:     now,
				WindowEnd:       now.Add(5 * time.Second),
				OccurrenceCount: 3,
			}
			So(store.RecordViolation(ctx, "A1B2C3D4", r), ShouldBeNil)
			So(store.RecordViolation(ctx, "A1B2C3D4", r), ShouldBeNil)

			Convey("Then they are all stored", func() {
				n, err := store.ViolationCount(ctx, "A1B2C3D4")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
			})
		})

		Convey("When recording activity lines", func() {
			err := store.RecordActivity(ctx, "A1B2C3D4", "p1", "joined")

			Convey("Then the write succeeds", func() {
				So(err, ShouldBeNil)
			})
		})
	})
}

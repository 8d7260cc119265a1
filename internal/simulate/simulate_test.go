package simulate_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/focusclass/focusd/internal/adapters/hub"
	"github.com/focusclass/focusd/internal/domain/protocol"
	"github.com/focusclass/focusd/internal/simulate"
	"github.com/focusclass/focusd/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func TestSimulatedParticipantsJoinAndLeave(t *testing.T) {
	Convey("Given an open hub", t, func() {
		ctx := context.Background()
		h := hub.New()
		h.Open("A1B2C3D4", "speak-friend")
		srv := httptest.NewServer(http.HandlerFunc(h.HandleSession))
		defer srv.Close()
		defer h.Stop(ctx)

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

		Convey("When two simulated participants run against it", func() {
			result := make(chan error, 1)
			go func() {
				result <- simulate.Run(ctx, simulate.Config{
					URL:          wsURL,
					SessionCode:  "A1B2C3D4",
					Password:     "speak-friend",
					DisplayName:  "sim",
					Participants: 2,
					AckFocus:     true,
					AckFrames:    true,
				})
			}()

			joined := 0
			deadline := time.After(5 * time.Second)
			for joined < 2 {
				select {
				case ev := <-h.Events():
					if ev.Kind == hub.EventJoin {
						joined++
					}
				case <-deadline:
					t.Fatal("participants never joined")
				}
			}

			Convey("Then they join and exit cleanly when the session ends", func() {
				So(h.Count(), ShouldEqual, 2)

				env, err := protocol.New(protocol.TypeSessionEnded, "A1B2C3D4", "", protocol.SessionEnded{})
				So(err, ShouldBeNil)
				h.Broadcast(ctx, env)

				select {
				case err := <-result:
					So(err, ShouldBeNil)
				case <-time.After(5 * time.Second):
					t.Fatal("simulator did not stop")
				}
			})
		})

		Convey("When a simulated participant has the wrong password", func() {
			err := simulate.Run(ctx, simulate.Config{
				URL:          wsURL,
				SessionCode:  "A1B2C3D4",
				Password:     "wrong",
				Participants: 1,
			})

			Convey("Then the rejection is surfaced", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "join rejected")
			})
		})
	})
}

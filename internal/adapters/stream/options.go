package stream

import (
	"time"

	"github.com/focusclass/focusd/internal/domain/model"
	"github.com/focusclass/focusd/pkg/logger"
)

// Option applies a configuration option to the Streamer.
type Option func(*Streamer)

// WithQuality selects the capture tier. The tier fixes the frame interval
// unless WithInterval overrides it.
func WithQuality(q model.Quality) Option {
	return func(s *Streamer) {
		s.quality = q
		s.interval = intervalFor(q)
	}
}

// WithInterval overrides the tier's frame interval.
func WithInterval(d time.Duration) Option {
	return func(s *Streamer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMonitor selects which display to capture.
func WithMonitor(index int) Option {
	return func(s *Streamer) {
		if index >= 0 {
			s.monitor = index
		}
	}
}

// WithMaxOutstanding bounds unacknowledged frames per recipient.
func WithMaxOutstanding(n int) Option {
	return func(s *Streamer) {
		if n > 0 {
			s.maxOutstanding = n
		}
	}
}

// WithLogger sets a custom logger for the streamer.
func WithLogger(logger logger.Logger) Option {
	return func(s *Streamer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

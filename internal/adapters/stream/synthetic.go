package stream

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync/atomic"

	"github.com/focusclass/focusd/internal/domain/model"
)

// Pixel dimensions per quality tier for the synthetic source.
const (
	syntheticWidthLow    = 320
	syntheticWidthMedium = 640
	syntheticWidthHigh   = 1280
	syntheticAspectNum   = 9
	syntheticAspectDen   = 16
)

// SyntheticSource renders generated test-pattern frames. It stands in for
// a real display grabber on headless hosts and in tests; every frame is a
// valid JPEG whose pattern shifts with the frame counter.
type SyntheticSource struct {
	counter atomic.Uint64
}

// NewSyntheticSource creates a generated-pattern source.
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{}
}

// Capture renders the next test-pattern frame at the tier's resolution.
func (s *SyntheticSource) Capture(_ context.Context, quality model.Quality, _ int) ([]byte, error) {
	n := s.counter.Add(1)

	width := syntheticWidthMedium
	switch quality {
	case model.QualityLow:
		width = syntheticWidthLow
	case model.QualityHigh:
		width = syntheticWidthHigh
	}
	height := width * syntheticAspectNum / syntheticAspectDen

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	shift := uint8(n * 16) //nolint:gosec // wraparound is the point of the pattern
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x) + shift, //nolint:gosec // intentional wrap
				G: uint8(y),         //nolint:gosec // intentional wrap
				B: shift,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQualityFor(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// jpegQualityFor maps a tier to a JPEG quality setting.
func jpegQualityFor(q model.Quality) int {
	switch q {
	case model.QualityLow:
		return 40
	case model.QualityHigh:
		return 85
	default:
		return 65
	}
}

var _ Source = (*SyntheticSource)(nil)

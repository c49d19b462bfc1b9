// Package timeline reconciles narration audio, word timings and captions with
// the length of a rendered slideshow.
//
// Everything here is pure arithmetic over durations in seconds. Callers pass
// every parameter explicitly and receive freshly allocated results; nothing is
// cached between calls.
package timeline

import (
	"errors"
	"math"
	"strings"
)

const (
	// DefaultMargin keeps audio and captions clear of the final video frame.
	DefaultMargin = 0.05

	// DefaultMaxSpeedup caps narration compression at 1.25x.
	DefaultMaxSpeedup = 1.25

	// DefaultMaxWordsPerWindow is the caption group size.
	DefaultMaxWordsPerWindow = 6

	// TicksPerSecond converts TTS word offsets (100ns units) to seconds.
	TicksPerSecond = 10_000_000

	// Caption box geometry, as fractions of the frame.
	captionBoxWidthRatio  = 0.9
	captionBoxHeightRatio = 0.25
	captionBoxTopRatio    = 0.72
)

// ErrInvalidInput is wrapped by every validation failure in this package.
var ErrInvalidInput = errors.New("invalid input")

// WordEvent is one narration word on the raw (unstretched) audio timeline.
type WordEvent struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`    // seconds
	Duration float64 `json:"duration"` // seconds
}

// End returns the time the word stops sounding.
func (w WordEvent) End() float64 {
	return w.Start + w.Duration
}

// Box is a caption display rectangle in pixels, origin at the top-left.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CaptionWindow is a group of words shown together on the final timeline.
type CaptionWindow struct {
	Words    []string `json:"words"`
	Start    float64  `json:"start"`
	Duration float64  `json:"duration"`
	Box      Box      `json:"box"`
}

// End returns the time the caption disappears.
func (c CaptionWindow) End() float64 {
	return c.Start + c.Duration
}

// Text returns the caption as displayed.
func (c CaptionWindow) Text() string {
	return strings.Join(c.Words, " ")
}

func validDuration(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

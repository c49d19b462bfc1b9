package timeline

import (
	"fmt"
	"math"
)

// ChunkOptions controls caption grouping and placement.
type ChunkOptions struct {
	MaxWordsPerWindow int
	FrameWidth        int
	FrameHeight       int

	// FlushTrailing emits a final window for a group shorter than
	// MaxWordsPerWindow. Off by default: trailing words are dropped.
	FlushTrailing bool
}

// DefaultChunkOptions returns the standard grouping for a frame size.
func DefaultChunkOptions(frameWidth, frameHeight int) ChunkOptions {
	return ChunkOptions{
		MaxWordsPerWindow: DefaultMaxWordsPerWindow,
		FrameWidth:        frameWidth,
		FrameHeight:       frameHeight,
	}
}

// CaptionBox returns the caption rectangle for a frame: 90% of the width,
// a quarter of the height, centred, with its top edge at 72% of the height.
func CaptionBox(frameWidth, frameHeight int) Box {
	w := int(math.Round(captionBoxWidthRatio * float64(frameWidth)))
	h := int(math.Round(captionBoxHeightRatio * float64(frameHeight)))
	return Box{
		X:      (frameWidth - w) / 2,
		Y:      int(math.Round(captionBoxTopRatio * float64(frameHeight))),
		Width:  w,
		Height: h,
	}
}

// Chunk groups retimed words into caption windows of MaxWordsPerWindow words.
// A window opening at or after videoDuration ends the sequence. Window ends are
// clipped to videoDuration-margin and windows left with no positive duration
// are skipped.
func Chunk(events []WordEvent, videoDuration, margin float64, opts ChunkOptions) ([]CaptionWindow, error) {
	if opts.MaxWordsPerWindow < 1 {
		return nil, fmt.Errorf("%w: max words per window %d", ErrInvalidInput, opts.MaxWordsPerWindow)
	}
	if opts.FrameWidth <= 0 || opts.FrameHeight <= 0 {
		return nil, fmt.Errorf("%w: frame size %dx%d", ErrInvalidInput, opts.FrameWidth, opts.FrameHeight)
	}
	if !validDuration(videoDuration) {
		return nil, fmt.Errorf("%w: video duration %v", ErrInvalidInput, videoDuration)
	}
	if !validDuration(margin) {
		return nil, fmt.Errorf("%w: margin %v", ErrInvalidInput, margin)
	}
	if err := validateEvents(events); err != nil {
		return nil, err
	}

	box := CaptionBox(opts.FrameWidth, opts.FrameHeight)
	limit := videoDuration - margin

	var (
		windows     []CaptionWindow
		buffer      []string
		windowStart float64
		last        WordEvent
	)

	// closeWindow reports false once the video has run out.
	closeWindow := func() bool {
		defer func() { buffer = nil }()
		if windowStart >= videoDuration {
			return false
		}
		duration := math.Min(last.End(), limit) - windowStart
		if duration <= 0 {
			return true
		}
		windows = append(windows, CaptionWindow{
			Words:    buffer,
			Start:    windowStart,
			Duration: duration,
			Box:      box,
		})
		return true
	}

	stopped := false
	for _, e := range events {
		if len(buffer) == 0 {
			windowStart = e.Start
		}
		buffer = append(buffer, e.Text)
		last = e

		if len(buffer) == opts.MaxWordsPerWindow {
			if !closeWindow() {
				stopped = true
				break
			}
		}
	}

	if !stopped && opts.FlushTrailing && len(buffer) > 0 {
		closeWindow()
	}

	return separate(windows), nil
}

// separate shortens any window that would still be showing when the next one
// opens. That only happens when upstream word timings overlap.
func separate(windows []CaptionWindow) []CaptionWindow {
	out := windows[:0]
	for i, w := range windows {
		if i+1 < len(windows) {
			if next := windows[i+1].Start; w.End() > next {
				w.Duration = next - w.Start
			}
		}
		if w.Duration > 0 {
			out = append(out, w)
		}
	}
	return out
}

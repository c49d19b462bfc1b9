package timeline

import (
	"fmt"
	"math"
	"strings"
)

// validateEvents checks a word sequence before any output is built.
func validateEvents(events []WordEvent) error {
	prev := 0.0
	for i, e := range events {
		if strings.TrimSpace(e.Text) == "" {
			return fmt.Errorf("%w: word %d has empty text", ErrInvalidInput, i)
		}
		if !validDuration(e.Start) || !validDuration(e.Duration) {
			return fmt.Errorf("%w: word %d (%q) has negative or non-finite timing", ErrInvalidInput, i, e.Text)
		}
		if i > 0 && e.Start < prev {
			return fmt.Errorf("%w: word %d (%q) starts at %.3fs before previous word at %.3fs",
				ErrInvalidInput, i, e.Text, e.Start, prev)
		}
		prev = e.Start
	}
	return nil
}

// Retime maps raw word timings onto the aligned audio timeline. Timestamps are
// divided by speedFactor; the first word that would start at or after
// videoDuration-margin ends the sequence, and the surviving words are clipped
// so none runs past that limit.
func Retime(events []WordEvent, speedFactor, videoDuration, margin float64) ([]WordEvent, error) {
	if math.IsNaN(speedFactor) || math.IsInf(speedFactor, 0) || speedFactor < 1.0 {
		return nil, fmt.Errorf("%w: speed factor %v must be at least 1.0", ErrInvalidInput, speedFactor)
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

	limit := videoDuration - margin
	out := make([]WordEvent, 0, len(events))
	for _, e := range events {
		start := e.Start / speedFactor
		if start >= limit {
			break
		}
		duration := math.Min(e.Duration/speedFactor, limit-start)
		out = append(out, WordEvent{Text: e.Text, Start: start, Duration: duration})
	}

	return out, nil
}

package timeline

import (
	"fmt"
	"math"
	"strings"
)

// WordBoundary is a word timing as reported by a speech synthesiser, in
// 100-nanosecond ticks.
type WordBoundary struct {
	Text          string `json:"text"`
	OffsetTicks   int64  `json:"offset_ticks"`
	DurationTicks int64  `json:"duration_ticks"`
}

// BoundaryFromSeconds builds a boundary from a start and end time in seconds.
// An end before the start collapses to a zero-length word.
func BoundaryFromSeconds(text string, start, end float64) WordBoundary {
	if end < start {
		end = start
	}
	return WordBoundary{
		Text:          text,
		OffsetTicks:   int64(math.Round(start * TicksPerSecond)),
		DurationTicks: int64(math.Round((end - start) * TicksPerSecond)),
	}
}

// EventsFromBoundaries converts synthesiser boundaries into word events in
// seconds. Words are trimmed of surrounding whitespace.
func EventsFromBoundaries(boundaries []WordBoundary) ([]WordEvent, error) {
	events := make([]WordEvent, 0, len(boundaries))
	for i, b := range boundaries {
		if b.OffsetTicks < 0 || b.DurationTicks < 0 {
			return nil, fmt.Errorf("%w: boundary %d (%q) has negative ticks", ErrInvalidInput, i, b.Text)
		}
		events = append(events, WordEvent{
			Text:     strings.TrimSpace(b.Text),
			Start:    float64(b.OffsetTicks) / TicksPerSecond,
			Duration: float64(b.DurationTicks) / TicksPerSecond,
		})
	}
	if err := validateEvents(events); err != nil {
		return nil, err
	}
	return events, nil
}

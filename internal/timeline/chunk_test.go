package timeline

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func TestCaptionBox(t *testing.T) {
	box := CaptionBox(1080, 1920)
	want := Box{X: 54, Y: 1382, Width: 972, Height: 480}
	if box != want {
		t.Errorf("CaptionBox(1080, 1920) = %+v, want %+v", box, want)
	}
}

// Seven words one second apart make one six-word window; the
// seventh word is left in the trailing buffer and dropped.
func TestChunkDropsTrailingWords(t *testing.T) {
	events, err := Retime(evenlySpaced(7, 1.0, 0.5), 1.0, 10, DefaultMargin)
	if err != nil {
		t.Fatalf("Retime failed: %v", err)
	}

	windows, err := Chunk(events, 10, DefaultMargin, DefaultChunkOptions(1080, 1920))
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}

	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	w := windows[0]
	if w.Start != 0 {
		t.Errorf("expected window start 0, got %v", w.Start)
	}
	if !almostEqual(w.Duration, 5.5) {
		t.Errorf("expected window duration 5.5, got %v", w.Duration)
	}
	if !reflect.DeepEqual(w.Words, []string{"a", "b", "c", "d", "e", "f"}) {
		t.Errorf("unexpected words: %v", w.Words)
	}
	if w.Text() != "a b c d e f" {
		t.Errorf("unexpected text: %q", w.Text())
	}
	if w.Box != CaptionBox(1080, 1920) {
		t.Errorf("unexpected box: %+v", w.Box)
	}
}

func TestChunkFlushTrailing(t *testing.T) {
	opts := DefaultChunkOptions(1080, 1920)
	opts.FlushTrailing = true

	windows, err := Chunk(evenlySpaced(7, 1.0, 0.5), 10, DefaultMargin, opts)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}

	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if windows[1].Start != 6.0 || !almostEqual(windows[1].Duration, 0.5) {
		t.Errorf("unexpected trailing window: %+v", windows[1])
	}
	if !reflect.DeepEqual(windows[1].Words, []string{"g"}) {
		t.Errorf("unexpected trailing words: %v", windows[1].Words)
	}
}

func TestChunkClampsToLimit(t *testing.T) {
	opts := DefaultChunkOptions(1920, 1080)
	opts.MaxWordsPerWindow = 2

	events := []WordEvent{
		{Text: "one", Start: 7.0, Duration: 0.5},
		{Text: "two", Start: 8.5, Duration: 1.0},
	}

	windows, err := Chunk(events, 9.0, 0.05, opts)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if !almostEqual(windows[0].End(), 8.95) {
		t.Errorf("expected window end clamped to 8.95, got %v", windows[0].End())
	}
}

func TestChunkDiscardsDegenerateWindow(t *testing.T) {
	opts := DefaultChunkOptions(1920, 1080)
	opts.MaxWordsPerWindow = 1

	// Unretimed words: the second opens inside the margin, the third opens
	// after the video has ended.
	events := []WordEvent{
		{Text: "fits", Start: 1.0, Duration: 0.5},
		{Text: "margin", Start: 8.97, Duration: 0.5},
		{Text: "gone", Start: 9.2, Duration: 0.5},
		{Text: "after", Start: 9.5, Duration: 0.5},
	}

	windows, err := Chunk(events, 9.0, 0.05, opts)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(windows) != 1 || windows[0].Words[0] != "fits" {
		t.Fatalf("expected only the first word to survive, got %+v", windows)
	}
}

func TestChunkSeparatesOverlappingWindows(t *testing.T) {
	opts := DefaultChunkOptions(1920, 1080)
	opts.MaxWordsPerWindow = 2

	events := []WordEvent{
		{Text: "a", Start: 0, Duration: 0.5},
		{Text: "b", Start: 0.5, Duration: 3.0}, // still speaking when c starts
		{Text: "c", Start: 1.0, Duration: 0.5},
		{Text: "d", Start: 1.5, Duration: 0.5},
	}

	windows, err := Chunk(events, 10, DefaultMargin, opts)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if windows[0].End() > windows[1].Start {
		t.Errorf("windows overlap: %+v", windows)
	}
	if !almostEqual(windows[0].Duration, 1.0) {
		t.Errorf("expected first window shortened to 1.0, got %v", windows[0].Duration)
	}
}

func TestChunkEmpty(t *testing.T) {
	windows, err := Chunk(nil, 9, DefaultMargin, DefaultChunkOptions(1080, 1920))
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(windows) != 0 {
		t.Errorf("expected no windows, got %d", len(windows))
	}
}

func TestChunkRejectsInvalidInput(t *testing.T) {
	good := evenlySpaced(6, 1, 0.5)

	tests := []struct {
		name   string
		events []WordEvent
		opts   ChunkOptions
	}{
		{"zero words per window", good, ChunkOptions{MaxWordsPerWindow: 0, FrameWidth: 1080, FrameHeight: 1920}},
		{"zero frame width", good, ChunkOptions{MaxWordsPerWindow: 6, FrameWidth: 0, FrameHeight: 1920}},
		{"negative frame height", good, ChunkOptions{MaxWordsPerWindow: 6, FrameWidth: 1080, FrameHeight: -1}},
		{"out of order", []WordEvent{{Text: "b", Start: 2}, {Text: "a", Start: 1}}, DefaultChunkOptions(1080, 1920)},
	}

	for _, tt := range tests {
		if _, err := Chunk(tt.events, 9, DefaultMargin, tt.opts); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tt.name, err)
		}
	}
}

func TestChunkProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	videos := []float64{1, 5, 9, 20}

	for round := 0; round < 100; round++ {
		raw := randomEvents(r, 1+r.Intn(60))
		for _, video := range videos {
			for _, flush := range []bool{false, true} {
				opts := ChunkOptions{
					MaxWordsPerWindow: 1 + r.Intn(8),
					FrameWidth:        1080,
					FrameHeight:       1920,
					FlushTrailing:     flush,
				}

				events, err := Retime(raw, 1.0+r.Float64()*0.25, video, DefaultMargin)
				if err != nil {
					t.Fatalf("Retime failed: %v", err)
				}
				windows, err := Chunk(events, video, DefaultMargin, opts)
				if err != nil {
					t.Fatalf("Chunk failed: %v", err)
				}

				for i, w := range windows {
					if w.Duration <= 0 {
						t.Errorf("window %d has non-positive duration %v", i, w.Duration)
					}
					if len(w.Words) < 1 || len(w.Words) > opts.MaxWordsPerWindow {
						t.Errorf("window %d has %d words", i, len(w.Words))
					}
					if w.End() > video-DefaultMargin+tolerance {
						t.Errorf("window %d ends at %v past %v", i, w.End(), video-DefaultMargin)
					}
					if i > 0 && windows[i-1].End() > w.Start+tolerance {
						t.Errorf("windows %d and %d overlap: %v > %v", i-1, i, windows[i-1].End(), w.Start)
					}
				}
			}
		}
	}
}

// Two windows opening at the same instant leave the earlier one no screen
// time, so only the later window is shown.
func TestChunkDropsWindowSharingStartWithNext(t *testing.T) {
	opts := DefaultChunkOptions(1080, 1920)
	opts.MaxWordsPerWindow = 2

	events := []WordEvent{
		{Text: "a", Start: 1.0, Duration: 0.5},
		{Text: "b", Start: 1.0, Duration: 0.5},
		{Text: "c", Start: 1.0, Duration: 0.5},
		{Text: "d", Start: 1.0, Duration: 0.5},
	}

	windows, err := Chunk(events, 10, DefaultMargin, opts)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %+v", windows)
	}
	if got := windows[0].Text(); got != "c d" {
		t.Errorf("surviving window = %q, want %q", got, "c d")
	}
	if !almostEqual(windows[0].Start, 1.0) || !almostEqual(windows[0].Duration, 0.5) {
		t.Errorf("window = [%v, +%v], want [1, +0.5]", windows[0].Start, windows[0].Duration)
	}
}

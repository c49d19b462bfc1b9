package timeline

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-6

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestTargetWindow(t *testing.T) {
	tests := []struct {
		video, margin, want float64
	}{
		{9.0, 0.05, 8.95},
		{0.05, 0.05, 0},
		{0.01, 0.05, 0},
		{0, 0, 0},
		{60, 0, 60},
	}

	for _, tt := range tests {
		if got := TargetWindow(tt.video, tt.margin); !almostEqual(got, tt.want) {
			t.Errorf("TargetWindow(%v, %v) = %v, want %v", tt.video, tt.margin, got, tt.want)
		}
	}
}

func TestSpeedFactor(t *testing.T) {
	tests := []struct {
		name             string
		raw, target, max float64
		want             float64
	}{
		{"within cap", 10, 8, 1.25, 1.25},
		{"below cap", 9, 8, 1.25, 1.125},
		{"above cap", 20, 8.95, 1.25, 1.25},
		{"zero target", 5, 0, 1.25, 1.25},
		{"shorter than target", 4, 8, 1.25, 1.0},
	}

	for _, tt := range tests {
		got := SpeedFactor(tt.raw, tt.target, tt.max)
		if !almostEqual(got, tt.want) {
			t.Errorf("%s: SpeedFactor = %v, want %v", tt.name, got, tt.want)
		}
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Errorf("%s: SpeedFactor returned %v", tt.name, got)
		}
	}
}

// 6s of narration under a 9s video is padded with 2.95s of silence.
func TestAlignPadsShortNarration(t *testing.T) {
	tl, err := Align(6.0, 9.0, DefaultAlignOptions())
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}

	if tl.Mode != AudioModePadded {
		t.Fatalf("expected mode=padded, got %s", tl.Mode)
	}
	if tl.SpeedFactor != 1.0 {
		t.Errorf("expected speed factor 1.0, got %v", tl.SpeedFactor)
	}
	if !almostEqual(tl.SilenceDuration(), 2.95) {
		t.Errorf("expected silence 2.95s, got %v", tl.SilenceDuration())
	}
	if !almostEqual(tl.PlayDuration(), 8.95) {
		t.Errorf("expected play duration 8.95s, got %v", tl.PlayDuration())
	}

	segs := tl.Segments()
	if len(segs) != 2 {
		t.Fatalf("expected narration + silence segments, got %d", len(segs))
	}
	if segs[0].Source != SourceNarration || segs[0].At != 0 || !almostEqual(segs[0].PlayDuration, 6.0) {
		t.Errorf("unexpected narration segment: %+v", segs[0])
	}
	if segs[1].Source != SourceSilence || !almostEqual(segs[1].At, 6.0) || !almostEqual(segs[1].PlayDuration, 2.95) {
		t.Errorf("silence must extend the tail, got %+v", segs[1])
	}
}

// 20s of narration under a 9s video is sped up 1.25x to 16s and then
// cut to 8.95s from the start.
func TestAlignStretchesAndTruncatesLongNarration(t *testing.T) {
	tl, err := Align(20.0, 9.0, DefaultAlignOptions())
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}

	if tl.Mode != AudioModeStretched {
		t.Fatalf("expected mode=stretched, got %s", tl.Mode)
	}
	if !almostEqual(tl.TargetDuration, 8.95) {
		t.Errorf("expected target 8.95, got %v", tl.TargetDuration)
	}
	if !almostEqual(tl.SpeedFactor, 1.25) {
		t.Errorf("expected speed factor 1.25, got %v", tl.SpeedFactor)
	}
	if !almostEqual(tl.StretchedDuration(), 16.0) {
		t.Errorf("expected stretched duration 16s, got %v", tl.StretchedDuration())
	}
	if !tl.Truncated() {
		t.Error("expected truncation")
	}
	if !almostEqual(tl.PlayDuration(), 8.95) {
		t.Errorf("expected play duration 8.95s, got %v", tl.PlayDuration())
	}

	segs := tl.Segments()
	if len(segs) != 1 {
		t.Fatalf("expected one segment, got %d", len(segs))
	}
	if segs[0].At != 0 || !almostEqual(segs[0].Rate, 1.25) || !almostEqual(segs[0].PlayDuration, 8.95) {
		t.Errorf("unexpected stretched segment: %+v", segs[0])
	}
}

func TestAlignStretchWithinCap(t *testing.T) {
	tl, err := Align(10.0, 9.0, DefaultAlignOptions())
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}

	if tl.Mode != AudioModeStretched {
		t.Fatalf("expected mode=stretched, got %s", tl.Mode)
	}
	if !almostEqual(tl.SpeedFactor, 10.0/8.95) {
		t.Errorf("expected speed factor %v, got %v", 10.0/8.95, tl.SpeedFactor)
	}
	if tl.Truncated() {
		t.Error("narration fits after speed-up, should not be truncated")
	}
	if !almostEqual(tl.PlayDuration(), 8.95) {
		t.Errorf("expected play duration 8.95s, got %v", tl.PlayDuration())
	}
}

func TestAlignExactFit(t *testing.T) {
	target := TargetWindow(9.0, DefaultMargin)

	tl, err := Align(target, 9.0, DefaultAlignOptions())
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}

	if tl.Mode != AudioModeUnchanged {
		t.Errorf("expected mode=unchanged, got %s", tl.Mode)
	}
	if tl.SpeedFactor != 1.0 {
		t.Errorf("expected speed factor 1.0, got %v", tl.SpeedFactor)
	}
	if tl.SilenceDuration() != 0 {
		t.Errorf("expected no silence, got %v", tl.SilenceDuration())
	}
}

func TestAlignZeroTarget(t *testing.T) {
	tl, err := Align(4.0, 0.02, DefaultAlignOptions())
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}

	if tl.TargetDuration != 0 {
		t.Errorf("expected target 0, got %v", tl.TargetDuration)
	}
	if tl.SpeedFactor != DefaultMaxSpeedup {
		t.Errorf("expected fallback speed factor %v, got %v", DefaultMaxSpeedup, tl.SpeedFactor)
	}
	if tl.PlayDuration() != 0 {
		t.Errorf("expected nothing audible, got %v", tl.PlayDuration())
	}
	if len(tl.Segments()) != 0 {
		t.Errorf("expected no segments, got %+v", tl.Segments())
	}
}

func TestAlignRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		raw, video float64
		opts       AlignOptions
	}{
		{"negative raw", -1, 9, DefaultAlignOptions()},
		{"negative video", 5, -9, DefaultAlignOptions()},
		{"NaN raw", math.NaN(), 9, DefaultAlignOptions()},
		{"infinite video", 5, math.Inf(1), DefaultAlignOptions()},
		{"negative margin", 5, 9, AlignOptions{Margin: -0.1, MaxSpeedup: 1.25}},
		{"speedup below one", 5, 9, AlignOptions{Margin: 0.05, MaxSpeedup: 0.9}},
	}

	for _, tt := range tests {
		if _, err := Align(tt.raw, tt.video, tt.opts); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tt.name, err)
		}
	}
}

func TestAlignProperties(t *testing.T) {
	raws := []float64{0, 0.01, 0.5, 3, 6, 8.9, 8.95, 9, 11, 20, 100}
	videos := []float64{0, 0.01, 0.05, 0.06, 3, 9, 9.5, 60}
	opts := DefaultAlignOptions()

	for _, raw := range raws {
		for _, video := range videos {
			tl, err := Align(raw, video, opts)
			if err != nil {
				t.Fatalf("Align(%v, %v) failed: %v", raw, video, err)
			}

			// never overflows the video
			if tl.PlayDuration() > video+tolerance {
				t.Errorf("Align(%v, %v): play duration %v exceeds video", raw, video, tl.PlayDuration())
			}

			// padding fills the target exactly
			target := TargetWindow(video, opts.Margin)
			if raw < target {
				if tl.Mode != AudioModePadded {
					t.Errorf("Align(%v, %v): expected padded, got %s", raw, video, tl.Mode)
				}
				if !almostEqual(tl.PlayDuration(), target) {
					t.Errorf("Align(%v, %v): padded duration %v, want %v", raw, video, tl.PlayDuration(), target)
				}
			}

			// speed-up is capped
			if tl.SpeedFactor > opts.MaxSpeedup || tl.SpeedFactor < 1.0 {
				t.Errorf("Align(%v, %v): speed factor %v out of [1, %v]", raw, video, tl.SpeedFactor, opts.MaxSpeedup)
			}

			var end float64
			for _, s := range tl.Segments() {
				if s.At < end-tolerance {
					t.Errorf("Align(%v, %v): segments overlap: %+v", raw, video, tl.Segments())
				}
				end = s.At + s.PlayDuration
			}
			if end > target+tolerance {
				t.Errorf("Align(%v, %v): segments end at %v past target %v", raw, video, end, target)
			}
		}
	}
}

func TestPlanMusic(t *testing.T) {
	bed, err := PlanMusic(9.0, 4.0, 0.3)
	if err != nil {
		t.Fatalf("PlanMusic failed: %v", err)
	}
	if !bed.Loop {
		t.Error("music shorter than the video should loop")
	}
	if bed.PlayDuration != 9.0 {
		t.Errorf("expected music cut at 9s, got %v", bed.PlayDuration)
	}

	bed, err = PlanMusic(9.0, 120.0, 0.3)
	if err != nil {
		t.Fatalf("PlanMusic failed: %v", err)
	}
	if bed.Loop {
		t.Error("music longer than the video should not loop")
	}

	if _, err := PlanMusic(9.0, 0, 0.3); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty music, got %v", err)
	}
	if _, err := PlanMusic(9.0, 10, 1.5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for volume 1.5, got %v", err)
	}
}

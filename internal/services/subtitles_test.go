package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bobarin/vidweft/internal/timeline"
)

func sampleWindows() []timeline.CaptionWindow {
	box := timeline.CaptionBox(1080, 1920)
	return []timeline.CaptionWindow{
		{Words: []string{"the", "history", "of", "coffee"}, Start: 0.3, Duration: 2.2, Box: box},
		{Words: []string{"began", "in", "{ethiopia}"}, Start: 2.5, Duration: 3.3, Box: box},
	}
}

func TestFormatASSTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00:00.00"},
		{5.8, "0:00:05.80"},
		{61.25, "0:01:01.25"},
		{3725.5, "1:02:05.50"},
		{-2, "0:00:00.00"},
	}

	for _, tt := range tests {
		if got := formatASSTime(tt.in); got != tt.want {
			t.Errorf("formatASSTime(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatSRTTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00:00,000"},
		{5.8, "00:00:05,800"},
		{3725.042, "01:02:05,042"},
	}

	for _, tt := range tests {
		if got := formatSRTTime(tt.in); got != tt.want {
			t.Errorf("formatSRTTime(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatSRT(t *testing.T) {
	got := FormatSRT(sampleWindows())
	want := "1\n00:00:00,300 --> 00:00:02,500\nthe history of coffee\n\n" +
		"2\n00:00:02,500 --> 00:00:05,800\nbegan in {ethiopia}\n"

	if got != want {
		t.Errorf("FormatSRT mismatch\n got: %q\nwant: %q", got, want)
	}

	if FormatSRT(nil) != "" {
		t.Error("expected empty SRT for no windows")
	}
}

func TestBuildASS(t *testing.T) {
	ass := buildASS(sampleWindows(), 1080, 1920)

	for _, want := range []string{
		"PlayResX: 1080\n",
		"PlayResY: 1920\n",
		// font 480/4, box style, top-center, margins from the 54/1382/972x480 box
		"Style: Default,Noto Sans,120,",
		",3,8,0,8,54,54,1382,1\n",
		"Dialogue: 0,0:00:00.30,0:00:02.50,Default,,0,0,0,,{\\an8\\pos(540,1382)}the history of coffee\n",
		"Dialogue: 0,0:00:02.50,0:00:05.80,Default,,0,0,0,,{\\an8\\pos(540,1382)}began in (ethiopia)\n",
	} {
		if !strings.Contains(ass, want) {
			t.Errorf("ASS output missing %q\n%s", want, ass)
		}
	}

	if got := strings.Count(ass, "Dialogue:"); got != 2 {
		t.Errorf("expected 2 dialogue lines, got %d", got)
	}
}

func TestEscapeASSText(t *testing.T) {
	if got := escapeASSText("a {b} c\\N d\r\ne"); got != "a (b) c/N d e" {
		t.Errorf("escapeASSText = %q", got)
	}
}

func TestGenerateASSSubtitles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captions.ass")

	if err := GenerateASSSubtitles(sampleWindows(), 1080, 1920, path); err != nil {
		t.Fatalf("GenerateASSSubtitles: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read subtitles: %v", err)
	}
	if !strings.HasPrefix(string(data), "[Script Info]\n") {
		t.Errorf("unexpected file header: %q", string(data[:20]))
	}

	if err := GenerateASSSubtitles(nil, 1080, 1920, path); err == nil {
		t.Error("expected error for no windows")
	}
	if err := GenerateASSSubtitles(sampleWindows(), 0, 1920, path); err == nil {
		t.Error("expected error for zero frame width")
	}
}

package services

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/bobarin/vidweft/internal/timeline"
)

// ---------------------------------------------------------------------------
// Caption writers
//
// Caption windows come out of timeline.Chunk already timed and placed. These
// writers only serialize them: ASS for burning into the video with ffmpeg's
// ass filter, SRT as a sidecar the user can download.
//
// Visual style:
//   - Bold white text on a translucent black box (BorderStyle 3)
//   - Anchored top-center inside the window's caption box
//   - Font size derived from the box height so it scales with the frame
// ---------------------------------------------------------------------------

const (
	// Must match a font installed in the Docker container.
	subtitleFontName = "Noto Sans"

	// ASS colors are in &HAABBGGRR format (hex, note: BGR not RGB)
	assColorWhite     = "&H00FFFFFF" // pure white
	assColorBlack     = "&H00000000" // pure black (for outline)
	assColorBoxBlack  = "&H60000000" // ~60% opaque black (caption box)
	assLinesPerBox    = 4            // font size = box height / lines
	assMinFontSize    = 18
	assOutlinePadding = 8
)

// GenerateASSSubtitles writes caption windows as an ASS subtitle file for a
// frameWidth x frameHeight video. Each window becomes one dialogue line shown
// from its start to its end, positioned by its caption box.
func GenerateASSSubtitles(windows []timeline.CaptionWindow, frameWidth, frameHeight int, outputPath string) error {
	if len(windows) == 0 {
		return fmt.Errorf("no caption windows to write")
	}
	if frameWidth <= 0 || frameHeight <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", frameWidth, frameHeight)
	}

	content := buildASS(windows, frameWidth, frameHeight)
	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write ASS subtitle file: %w", err)
	}

	return nil
}

func buildASS(windows []timeline.CaptionWindow, frameWidth, frameHeight int) string {
	box := windows[0].Box

	fontSize := box.Height / assLinesPerBox
	if fontSize < assMinFontSize {
		fontSize = assMinFontSize
	}

	var sb strings.Builder

	// Script header
	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&sb, "PlayResX: %d\n", frameWidth)
	fmt.Fprintf(&sb, "PlayResY: %d\n", frameHeight)
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n")
	sb.WriteString("\n")

	// Style definitions
	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")

	// Alignment 8 = top-center; margins pin the text inside the caption box
	fmt.Fprintf(&sb,
		"Style: Default,%s,%d,%s,%s,%s,%s,-1,0,0,0,100,100,0,0,3,%d,0,8,%d,%d,%d,1\n",
		subtitleFontName, fontSize,
		assColorWhite,    // PrimaryColour (text)
		assColorWhite,    // SecondaryColour
		assColorBoxBlack, // OutlineColour (box fill with BorderStyle 3)
		assColorBlack,    // BackColour
		assOutlinePadding,
		box.X,                        // MarginL
		frameWidth-(box.X+box.Width), // MarginR
		box.Y,                        // MarginV (distance from top)
	)
	sb.WriteString("\n")

	// Events (dialogue lines)
	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, w := range windows {
		fmt.Fprintf(&sb,
			"Dialogue: 0,%s,%s,Default,,0,0,0,,{\\an8\\pos(%d,%d)}%s\n",
			formatASSTime(w.Start),
			formatASSTime(w.End()),
			w.Box.X+w.Box.Width/2, w.Box.Y,
			escapeASSText(w.Text()),
		)
	}

	return sb.String()
}

// escapeASSText strips characters ASS would read as override blocks or
// line-break escapes.
func escapeASSText(text string) string {
	r := strings.NewReplacer(
		"{", "(",
		"}", ")",
		"\\", "/",
		"\r", "",
		"\n", " ",
	)
	return r.Replace(text)
}

// formatASSTime converts seconds to ASS timestamp format: H:MM:SS.CC (centiseconds)
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	total := int64(math.Floor(seconds*100 + 1e-6))
	hours := total / 360000
	minutes := (total % 360000) / 6000
	secs := (total % 6000) / 100
	centiseconds := total % 100

	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centiseconds)
}

// FormatSRT renders caption windows as an SRT document.
func FormatSRT(windows []timeline.CaptionWindow) string {
	var sb strings.Builder
	for i, w := range windows {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n",
			i+1,
			formatSRTTime(w.Start),
			formatSRTTime(w.End()),
			w.Text(),
		)
	}
	return sb.String()
}

// formatSRTTime converts seconds to SRT timestamp format: HH:MM:SS,mmm
func formatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	total := int64(math.Floor(seconds*1000 + 1e-6))
	hours := total / 3600000
	minutes := (total % 3600000) / 60000
	secs := (total % 60000) / 1000
	millis := total % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

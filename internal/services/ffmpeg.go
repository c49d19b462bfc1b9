package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bobarin/vidweft/internal/timeline"
)

// ---------------------------------------------------------------------------
// Motion effect types: optional per-image Ken Burns motion
// ---------------------------------------------------------------------------

// ClipEffect defines the motion applied to a still image
type ClipEffect string

const (
	EffectNone     ClipEffect = "none"      // Static frame
	EffectZoomIn   ClipEffect = "zoom_in"   // Slow push toward center
	EffectZoomOut  ClipEffect = "zoom_out"  // Starts zoomed, pulls back
	EffectPanLeft  ClipEffect = "pan_left"  // Drifts right to left
	EffectPanRight ClipEffect = "pan_right" // Drifts left to right
)

var motionEffects = []ClipEffect{
	EffectZoomIn,
	EffectZoomOut,
	EffectPanLeft,
	EffectPanRight,
}

// RandomEffect picks a random motion effect for an image
func RandomEffect() ClipEffect {
	return motionEffects[rand.Intn(len(motionEffects))]
}

// Output / encoding defaults
const (
	DefaultFPS        = 24
	audioSampleRate   = 44100
	audioBitrate      = "192k"
	defaultResolution = "1080x1920"
)

// ErrNothingAudible is returned when an audio timeline has no segments.
var ErrNothingAudible = errors.New("audio timeline has nothing audible")

// Resolution is an output frame size in pixels.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ParseResolution parses "WIDTHxHEIGHT", falling back to 1080x1920 portrait
// when the value is malformed.
func ParseResolution(s string) Resolution {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(s)), "x", 2)
	if len(parts) == 2 {
		w, errW := strconv.Atoi(parts[0])
		h, errH := strconv.Atoi(parts[1])
		if errW == nil && errH == nil && w > 0 && h > 0 {
			// libx264 with yuv420p needs even dimensions
			return Resolution{Width: w &^ 1, Height: h &^ 1}
		}
	}
	log.Printf("[FFmpeg] Invalid resolution %q, using %s", s, defaultResolution)
	return Resolution{Width: 1080, Height: 1920}
}

// ---------------------------------------------------------------------------
// FFmpegService is the compositor. Pixels and samples go through
// ffmpeg/ffprobe; timing decisions come from internal/timeline.
// ---------------------------------------------------------------------------

type FFmpegService struct {
	tempDir    string
	resolution Resolution
	fps        int
}

func NewFFmpegService(tempDir string, resolution Resolution, fps int) *FFmpegService {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}
	if fps <= 0 {
		fps = DefaultFPS
	}

	return &FFmpegService{
		tempDir:    tempDir,
		resolution: resolution,
		fps:        fps,
	}
}

// Resolution returns the output frame size.
func (s *FFmpegService) Resolution() Resolution {
	return s.resolution
}

// RenderSlideshow shows each image for secondsPerImage seconds, letterboxed
// onto the output frame, and concatenates them into a silent video. effects
// is matched to images by index; missing entries are static.
func (s *FFmpegService) RenderSlideshow(ctx context.Context, imagePaths []string, secondsPerImage float64, effects []ClipEffect, outputPath string) error {
	args, err := buildSlideshowArgs(imagePaths, secondsPerImage, effects, s.resolution, s.fps, outputPath)
	if err != nil {
		return err
	}

	log.Printf("[FFmpeg] Rendering slideshow: %d images x %.2fs at %s/%dfps",
		len(imagePaths), secondsPerImage, s.resolution, s.fps)

	return s.run(ctx, "ffmpeg", args, "render slideshow")
}

func buildSlideshowArgs(imagePaths []string, secondsPerImage float64, effects []ClipEffect, res Resolution, fps int, outputPath string) ([]string, error) {
	if len(imagePaths) == 0 {
		return nil, fmt.Errorf("no images to render")
	}
	if secondsPerImage <= 0 {
		return nil, fmt.Errorf("seconds per image must be positive, got %v", secondsPerImage)
	}

	frames := int(secondsPerImage*float64(fps) + 0.5)
	if frames < 1 {
		frames = 1
	}

	var args []string
	var chains []string
	var labels strings.Builder

	for i, path := range imagePaths {
		args = append(args, "-i", path)

		effect := EffectNone
		if i < len(effects) && effects[i] != "" {
			effect = effects[i]
		}

		// Letterbox onto the frame first so zoompan never distorts the aspect ratio
		chains = append(chains, fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1,%s,format=yuv420p[v%d]",
			i, res.Width, res.Height, res.Width, res.Height,
			buildMotionFilter(effect, frames, res, fps), i,
		))
		fmt.Fprintf(&labels, "[v%d]", i)
	}

	filter := strings.Join(chains, ";") +
		fmt.Sprintf(";%sconcat=n=%d:v=1:a=0[vout]", labels.String(), len(imagePaths))

	args = append(args,
		"-filter_complex", filter,
		"-map", "[vout]",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		"-an",
		"-y",
		outputPath,
	)
	return args, nil
}

// buildMotionFilter returns a zoompan filter that turns one still frame into
// exactly frames output frames with the given motion.
func buildMotionFilter(effect ClipEffect, frames int, res Resolution, fps int) string {
	var zExpr, xExpr, yExpr string

	switch effect {
	case EffectZoomIn:
		zExpr = fmt.Sprintf("1.0+0.3*on/%d", frames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"
	case EffectZoomOut:
		zExpr = fmt.Sprintf("1.3-0.3*on/%d", frames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"
	case EffectPanRight:
		zExpr = "1.2"
		xExpr = fmt.Sprintf("(iw-iw/zoom)*on/%d", frames)
		yExpr = "ih/2-(ih/zoom/2)"
	case EffectPanLeft:
		zExpr = "1.2"
		xExpr = fmt.Sprintf("(iw-iw/zoom)*(1-on/%d)", frames)
		yExpr = "ih/2-(ih/zoom/2)"
	default:
		zExpr = "1"
		xExpr = "0"
		yExpr = "0"
	}

	return fmt.Sprintf(
		"zoompan=z='%s':x='%s':y='%s':d=%d:s=%dx%d:fps=%d",
		zExpr, xExpr, yExpr, frames, res.Width, res.Height, fps,
	)
}

// AlignAudio renders the narration according to an aligned timeline: sped up
// with atempo when stretched, followed by generated silence when padded, and
// cut to the timeline's play duration. Trimming only ever limits duration from
// the start (-t); the narration is never seeked into.
func (s *FFmpegService) AlignAudio(ctx context.Context, narrationPath string, tl timeline.AudioTimeline, outputPath string) error {
	args, err := buildAlignArgs(narrationPath, tl, outputPath)
	if err != nil {
		return err
	}

	log.Printf("[FFmpeg] Aligning narration: mode=%s factor=%.3f raw=%.2fs target=%.2fs truncated=%v",
		tl.Mode, tl.SpeedFactor, tl.RawDuration, tl.TargetDuration, tl.Truncated())

	return s.run(ctx, "ffmpeg", args, "align audio")
}

func buildAlignArgs(narrationPath string, tl timeline.AudioTimeline, outputPath string) ([]string, error) {
	segments := tl.Segments()
	if len(segments) == 0 {
		return nil, ErrNothingAudible
	}

	norm := fmt.Sprintf("aformat=sample_rates=%d:channel_layouts=stereo", audioSampleRate)

	var args []string
	var chains []string
	var labels strings.Builder
	input := 0

	for i, seg := range segments {
		label := fmt.Sprintf("[s%d]", i)
		switch seg.Source {
		case timeline.SourceNarration:
			args = append(args, "-i", narrationPath)
			chain := fmt.Sprintf("[%d:a]%s", input, norm)
			if seg.Rate != 1.0 {
				chain += "," + buildTempoFilter(seg.Rate)
			}
			chains = append(chains, chain+label)
		case timeline.SourceSilence:
			args = append(args,
				"-f", "lavfi",
				"-t", formatSeconds(seg.PlayDuration),
				"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", audioSampleRate),
			)
			chains = append(chains, fmt.Sprintf("[%d:a]%s%s", input, norm, label))
		default:
			return nil, fmt.Errorf("unknown segment source %q", seg.Source)
		}
		labels.WriteString(label)
		input++
	}

	filter := strings.Join(chains, ";") +
		fmt.Sprintf(";%sconcat=n=%d:v=0:a=1[aout]", labels.String(), len(segments))

	args = append(args,
		"-filter_complex", filter,
		"-map", "[aout]",
		"-t", formatSeconds(tl.PlayDuration()),
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-y",
		outputPath,
	)
	return args, nil
}

// buildTempoFilter creates an atempo filter for a speed factor. atempo only
// accepts 0.5-2.0 per instance, so larger factors are chained.
func buildTempoFilter(factor float64) string {
	var parts []string
	for factor > 2.0 {
		parts = append(parts, "atempo=2.0")
		factor /= 2.0
	}
	for factor < 0.5 {
		parts = append(parts, "atempo=0.5")
		factor /= 0.5
	}
	parts = append(parts, fmt.Sprintf("atempo=%.6f", factor))
	return strings.Join(parts, ",")
}

// MixMusic lays background music under the aligned narration. The music
// starts at its beginning, loops when the bed asks for it and is cut at the
// bed's play duration. narrationPath may be empty for a music-only track.
func (s *FFmpegService) MixMusic(ctx context.Context, narrationPath, musicPath string, bed timeline.MusicBed, outputPath string) error {
	if musicPath == "" {
		return fmt.Errorf("no music path provided")
	}
	if _, err := os.Stat(musicPath); err != nil {
		return fmt.Errorf("background music not available at %s: %w", musicPath, err)
	}

	log.Printf("[FFmpeg] Mixing background music from %s (volume=%.2f, duration=%.2fs, loop=%v)",
		musicPath, bed.Volume, bed.PlayDuration, bed.Loop)

	return s.run(ctx, "ffmpeg", buildMixArgs(narrationPath, musicPath, bed, outputPath), "mix background music")
}

func buildMixArgs(narrationPath, musicPath string, bed timeline.MusicBed, outputPath string) []string {
	norm := fmt.Sprintf("aformat=sample_rates=%d:channel_layouts=stereo", audioSampleRate)

	var args []string
	musicInput := 0
	if narrationPath != "" {
		args = append(args, "-i", narrationPath)
		musicInput = 1
	}
	if bed.Loop {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args, "-i", musicPath)

	var filter string
	if narrationPath != "" {
		// duration=longest: the bed keeps playing after the narration ends and
		// -t cuts everything at the end of the video.
		filter = fmt.Sprintf(
			"[0:a]%s[narration];[%d:a]%s,volume=%.2f[music];[narration][music]amix=inputs=2:duration=longest:dropout_transition=0:normalize=0[aout]",
			norm, musicInput, norm, bed.Volume,
		)
	} else {
		filter = fmt.Sprintf("[%d:a]%s,volume=%.2f[aout]", musicInput, norm, bed.Volume)
	}

	return append(args,
		"-filter_complex", filter,
		"-map", "[aout]",
		"-t", formatSeconds(bed.PlayDuration),
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-y",
		outputPath,
	)
}

// Compose muxes the slideshow with the final audio track and burns in ASS
// captions when subtitlePath is non-empty. audioPath may be empty for a
// silent video. Output is cut at duration seconds.
func (s *FFmpegService) Compose(ctx context.Context, videoPath, audioPath, subtitlePath string, duration float64, outputPath string) error {
	if subtitlePath != "" {
		log.Printf("[FFmpeg] Burning in captions from %s", subtitlePath)
	}
	return s.run(ctx, "ffmpeg", buildComposeArgs(videoPath, audioPath, subtitlePath, duration, s.fps, outputPath), "compose")
}

func buildComposeArgs(videoPath, audioPath, subtitlePath string, duration float64, fps int, outputPath string) []string {
	args := []string{"-i", videoPath}
	if audioPath != "" {
		args = append(args, "-i", audioPath)
	}
	if subtitlePath != "" {
		args = append(args, "-vf", fmt.Sprintf("ass='%s'", escapeFFmpegFilterPath(subtitlePath)))
	}

	args = append(args, "-map", "0:v")
	if audioPath != "" {
		args = append(args, "-map", "1:a", "-c:a", "aac", "-b:a", audioBitrate)
	}

	return append(args,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		"-t", formatSeconds(duration),
		"-movflags", "+faststart",
		"-y",
		outputPath,
	)
}

// escapeFFmpegFilterPath escapes special characters in file paths for FFmpeg filter syntax.
func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

// GetMediaDuration returns the duration of an audio or video file in seconds.
func (s *FFmpegService) GetMediaDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration failed for %s: %w", filepath.Base(path), err)
	}

	durationSec, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(string(output)), err)
	}

	return durationSec, nil
}

// GetFrameSize returns the width and height of the first video stream.
func (s *FFmpegService) GetFrameSize(ctx context.Context, path string) (int, int, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe frame size failed for %s: %w", filepath.Base(path), err)
	}

	res, err := parseFrameSize(string(output))
	if err != nil {
		return 0, 0, err
	}
	return res.Width, res.Height, nil
}

func parseFrameSize(output string) (Resolution, error) {
	parts := strings.SplitN(strings.TrimSpace(output), "x", 2)
	if len(parts) != 2 {
		return Resolution{}, fmt.Errorf("unexpected ffprobe frame size output %q", output)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to parse width: %w", err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to parse height: %w", err)
	}
	return Resolution{Width: w, Height: h}, nil
}

// CreateTempFile creates a temporary file path in the service's temp directory
func (s *FFmpegService) CreateTempFile(filename string) string {
	return filepath.Join(s.tempDir, filename)
}

// Cleanup removes temporary files
func (s *FFmpegService) Cleanup(paths ...string) {
	for _, path := range paths {
		os.Remove(path)
	}
}

func (s *FFmpegService) run(ctx context.Context, bin string, args []string, operation string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %s failed: %w", operation, err)
	}
	return nil
}

// formatSeconds renders a duration for -t with millisecond precision,
// rounding down so a cut never lands past the intended end.
func formatSeconds(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(math.Floor(sec*1000 + 1e-6))
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}

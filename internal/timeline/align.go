package timeline

import (
	"fmt"
	"math"
)

// AudioMode says how the narration was fitted to the video.
type AudioMode string

const (
	AudioModePadded    AudioMode = "padded"    // narration + trailing silence
	AudioModeStretched AudioMode = "stretched" // narration sped up, possibly truncated
	AudioModeUnchanged AudioMode = "unchanged" // narration already fits exactly
)

// SegmentSource identifies what a Segment plays.
type SegmentSource string

const (
	SourceNarration SegmentSource = "narration"
	SourceSilence   SegmentSource = "silence"
)

// Segment is one piece of the final audio track. A segment always plays its
// source from the beginning and is cut only by PlayDuration; there is no way to
// express a read from the middle of a source.
type Segment struct {
	Source       SegmentSource `json:"source"`
	At           float64       `json:"at"`            // position on the output timeline
	PlayDuration float64       `json:"play_duration"` // seconds of output produced
	Rate         float64       `json:"rate"`          // playback speed, 1.0 = natural
}

// AlignOptions holds the alignment tunables.
type AlignOptions struct {
	Margin     float64
	MaxSpeedup float64
}

// DefaultAlignOptions returns the production margin and speed-up cap.
func DefaultAlignOptions() AlignOptions {
	return AlignOptions{Margin: DefaultMargin, MaxSpeedup: DefaultMaxSpeedup}
}

// AudioTimeline is the alignment decision for one render.
type AudioTimeline struct {
	Mode           AudioMode `json:"mode"`
	SpeedFactor    float64   `json:"speed_factor"`
	RawDuration    float64   `json:"raw_duration"`
	TargetDuration float64   `json:"target_duration"`
	Margin         float64   `json:"margin"`
}

// Align decides whether the narration is padded with silence or sped up so the
// audio never runs past videoDuration-margin.
func Align(rawAudioDuration, videoDuration float64, opts AlignOptions) (AudioTimeline, error) {
	if !validDuration(rawAudioDuration) {
		return AudioTimeline{}, fmt.Errorf("%w: raw audio duration %v", ErrInvalidInput, rawAudioDuration)
	}
	if !validDuration(videoDuration) {
		return AudioTimeline{}, fmt.Errorf("%w: video duration %v", ErrInvalidInput, videoDuration)
	}
	if !validDuration(opts.Margin) {
		return AudioTimeline{}, fmt.Errorf("%w: margin %v", ErrInvalidInput, opts.Margin)
	}
	if math.IsNaN(opts.MaxSpeedup) || math.IsInf(opts.MaxSpeedup, 0) || opts.MaxSpeedup < 1.0 {
		return AudioTimeline{}, fmt.Errorf("%w: max speedup %v must be at least 1.0", ErrInvalidInput, opts.MaxSpeedup)
	}

	target := TargetWindow(videoDuration, opts.Margin)
	tl := AudioTimeline{
		SpeedFactor:    1.0,
		RawDuration:    rawAudioDuration,
		TargetDuration: target,
		Margin:         opts.Margin,
	}

	switch {
	case rawAudioDuration == target:
		tl.Mode = AudioModeUnchanged
	case rawAudioDuration < target:
		tl.Mode = AudioModePadded
	default:
		tl.Mode = AudioModeStretched
		tl.SpeedFactor = SpeedFactor(rawAudioDuration, target, opts.MaxSpeedup)
	}

	return tl, nil
}

// SilenceDuration is the length of the silent tail appended in padded mode.
func (t AudioTimeline) SilenceDuration() float64 {
	if t.Mode != AudioModePadded {
		return 0
	}
	return t.TargetDuration - t.RawDuration
}

// StretchedDuration is the narration length after speed-up, before truncation.
func (t AudioTimeline) StretchedDuration() float64 {
	if t.SpeedFactor <= 0 {
		return t.RawDuration
	}
	return t.RawDuration / t.SpeedFactor
}

// PlayDuration is the audible extent of the final track. It never exceeds
// TargetDuration.
func (t AudioTimeline) PlayDuration() float64 {
	switch t.Mode {
	case AudioModePadded:
		return t.TargetDuration
	case AudioModeStretched:
		return math.Min(t.StretchedDuration(), t.TargetDuration)
	default:
		return math.Min(t.RawDuration, t.TargetDuration)
	}
}

// Truncated reports whether the capped speed-up still overran the target, so
// the tail of the narration is cut off.
func (t AudioTimeline) Truncated() bool {
	return t.Mode == AudioModeStretched && t.StretchedDuration() > t.TargetDuration
}

// Segments lays the track out as source segments on the output timeline.
func (t AudioTimeline) Segments() []Segment {
	var segs []Segment

	narration := Segment{Source: SourceNarration, At: 0, Rate: 1.0}
	switch t.Mode {
	case AudioModeStretched:
		narration.Rate = t.SpeedFactor
		narration.PlayDuration = t.PlayDuration()
	default:
		narration.PlayDuration = math.Min(t.RawDuration, t.TargetDuration)
	}
	if narration.PlayDuration > 0 {
		segs = append(segs, narration)
	}

	if silence := t.SilenceDuration(); silence > 0 {
		segs = append(segs, Segment{
			Source:       SourceSilence,
			At:           t.RawDuration,
			PlayDuration: silence,
			Rate:         1.0,
		})
	}

	return segs
}

// MusicBed describes background music under the narration. Music starts at
// the beginning of its source, loops when shorter than the video and is cut
// by duration at the end of the video.
type MusicBed struct {
	Volume       float64 `json:"volume"`
	PlayDuration float64 `json:"play_duration"`
	Loop         bool    `json:"loop"`
}

// PlanMusic builds the music bed for a video of videoDuration seconds.
func PlanMusic(videoDuration, musicDuration, volume float64) (MusicBed, error) {
	if !validDuration(videoDuration) {
		return MusicBed{}, fmt.Errorf("%w: video duration %v", ErrInvalidInput, videoDuration)
	}
	if !validDuration(musicDuration) || musicDuration == 0 {
		return MusicBed{}, fmt.Errorf("%w: music duration %v", ErrInvalidInput, musicDuration)
	}
	if math.IsNaN(volume) || volume < 0 || volume > 1 {
		return MusicBed{}, fmt.Errorf("%w: music volume %v outside [0,1]", ErrInvalidInput, volume)
	}

	return MusicBed{
		Volume:       volume,
		PlayDuration: videoDuration,
		Loop:         musicDuration < videoDuration,
	}, nil
}

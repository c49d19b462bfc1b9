package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/bobarin/vidweft/internal/timeline"
	"github.com/google/uuid"
)

// Enums
type RenderStatus string

const (
	RenderStatusQueued       RenderStatus = "queued"
	RenderStatusSynthesizing RenderStatus = "synthesizing"
	RenderStatusAligning     RenderStatus = "aligning"
	RenderStatusRendering    RenderStatus = "rendering"
	RenderStatusCompleted    RenderStatus = "completed"
	RenderStatusFailed       RenderStatus = "failed"
)

// Valid reports whether s is a known render status.
func (s RenderStatus) Valid() bool {
	switch s {
	case RenderStatusQueued, RenderStatusSynthesizing, RenderStatusAligning,
		RenderStatusRendering, RenderStatusCompleted, RenderStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the render will not change status again.
func (s RenderStatus) Terminal() bool {
	return s == RenderStatusCompleted || s == RenderStatusFailed
}

type AssetType string

const (
	AssetTypeImage        AssetType = "image"
	AssetTypeNarration    AssetType = "narration"
	AssetTypeMusic        AssetType = "music"
	AssetTypeAlignedAudio AssetType = "aligned_audio"
	AssetTypeCaptionsSRT  AssetType = "captions_srt"
	AssetTypeFinalVideo   AssetType = "final_video"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

const JobTypeRender = "render"

// Error codes recorded on failed renders
const (
	ErrorCodeInvalidInput = "invalid_input"
	ErrorCodeTTS          = "tts_failed"
	ErrorCodeTranscribe   = "transcription_failed"
	ErrorCodeFFmpeg       = "ffmpeg_failed"
	ErrorCodeStorage      = "storage_failed"
	ErrorCodeQueue        = "queue_failed"
	ErrorCodeInternal     = "internal_error"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// TimelineReport is the persisted outcome of reconciling one render's audio
// and captions against its slideshow.
type TimelineReport struct {
	VideoDuration float64                  `json:"video_duration"`
	Audio         timeline.AudioTimeline   `json:"audio"`
	Music         *timeline.MusicBed       `json:"music,omitempty"`
	Events        []timeline.WordEvent     `json:"events,omitempty"`
	Captions      []timeline.CaptionWindow `json:"captions,omitempty"`
	Truncated     bool                     `json:"truncated"`
}

func (r TimelineReport) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *TimelineReport) Scan(value interface{}) error {
	if value == nil {
		*r = TimelineReport{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, r)
}

// Models

type Render struct {
	ID                uuid.UUID       `json:"id"`
	Status            RenderStatus    `json:"status"`
	NarrationText     *string         `json:"narration_text,omitempty"`
	VoiceID           *string         `json:"voice_id,omitempty"`
	AddMusic          bool            `json:"add_music"`
	AddSubtitles      bool            `json:"add_subtitles"`
	SecondsPerImage   float64         `json:"seconds_per_image"`
	ImageCount        int             `json:"image_count"`
	NarrationAssetID  *uuid.UUID      `json:"narration_asset_id,omitempty"` // uploaded voiceover or synthesized speech
	MusicAssetID      *uuid.UUID      `json:"music_asset_id,omitempty"`     // nil = server default track
	CaptionsAssetID   *uuid.UUID      `json:"captions_asset_id,omitempty"`
	FinalVideoAssetID *uuid.UUID      `json:"final_video_asset_id,omitempty"`
	AudioMode         *string         `json:"audio_mode,omitempty"`
	SpeedFactor       *float64        `json:"speed_factor,omitempty"`
	VideoDurationMs   *int            `json:"video_duration_ms,omitempty"`
	TimelineReport    *TimelineReport `json:"timeline_report,omitempty"`
	ErrorCode         *string         `json:"error_code,omitempty"`
	ErrorMessage      *string         `json:"error_message,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// HasNarration reports whether the render has any narration source.
func (r *Render) HasNarration() bool {
	return r.NarrationAssetID != nil || (r.NarrationText != nil && *r.NarrationText != "")
}

type Asset struct {
	ID            uuid.UUID `json:"id"`
	RenderID      uuid.UUID `json:"render_id"`
	Type          AssetType `json:"type"`
	Position      int       `json:"position"` // order among assets of the same type (images)
	StorageBucket string    `json:"storage_bucket"`
	StoragePath   string    `json:"storage_path"`
	ContentType   *string   `json:"content_type,omitempty"`
	ByteSize      *int64    `json:"byte_size,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Job struct {
	ID           uuid.UUID  `json:"id"`
	RenderID     uuid.UUID  `json:"render_id"`
	Type         string     `json:"type"`
	Status       JobStatus  `json:"status"`
	Attempts     int        `json:"attempts"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DTOs for API responses
type RenderResponse struct {
	Render
	ImageURLs       []string `json:"image_urls,omitempty"`
	NarrationURL    *string  `json:"narration_url,omitempty"`
	AlignedAudioURL *string  `json:"aligned_audio_url,omitempty"`
	CaptionsURL     *string  `json:"captions_url,omitempty"`
	FinalVideoURL   *string  `json:"final_video_url,omitempty"`
}

// RenderSummary is a lightweight DTO for the list endpoint, without the
// timeline report or per-asset URLs.
type RenderSummary struct {
	ID              uuid.UUID    `json:"id"`
	Status          RenderStatus `json:"status"`
	ImageCount      int          `json:"image_count"`
	SecondsPerImage float64      `json:"seconds_per_image"`
	AddMusic        bool         `json:"add_music"`
	AddSubtitles    bool         `json:"add_subtitles"`
	AudioMode       *string      `json:"audio_mode,omitempty"`
	VideoDurationMs *int         `json:"video_duration_ms,omitempty"`
	ErrorCode       *string      `json:"error_code,omitempty"`
	ErrorMessage    *string      `json:"error_message,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Summary converts a render into its list DTO.
func (r *Render) Summary() RenderSummary {
	return RenderSummary{
		ID:              r.ID,
		Status:          r.Status,
		ImageCount:      r.ImageCount,
		SecondsPerImage: r.SecondsPerImage,
		AddMusic:        r.AddMusic,
		AddSubtitles:    r.AddSubtitles,
		AudioMode:       r.AudioMode,
		VideoDurationMs: r.VideoDurationMs,
		ErrorCode:       r.ErrorCode,
		ErrorMessage:    r.ErrorMessage,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type ListRendersResponse struct {
	Renders []RenderSummary `json:"renders"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

type CreateRenderResponse struct {
	RenderID uuid.UUID    `json:"render_id"`
	Status   RenderStatus `json:"status"`
}

// PreviewTimelineRequest asks for the timeline decisions of a hypothetical
// render without producing any media.
type PreviewTimelineRequest struct {
	RawAudioDuration  float64                 `json:"raw_audio_duration" validate:"gte=0"`
	VideoDuration     float64                 `json:"video_duration" validate:"gte=0"`
	Margin            *float64                `json:"margin,omitempty" validate:"omitempty,gte=0"`
	MaxSpeedup        *float64                `json:"max_speedup,omitempty" validate:"omitempty,gte=1"`
	MaxWordsPerWindow *int                    `json:"max_words_per_window,omitempty" validate:"omitempty,gte=1,lte=50"`
	FrameWidth        int                     `json:"frame_width,omitempty" validate:"omitempty,gt=0,lte=7680"`
	FrameHeight       int                     `json:"frame_height,omitempty" validate:"omitempty,gt=0,lte=7680"`
	Words             []timeline.WordBoundary `json:"words,omitempty" validate:"omitempty,dive"`
	Captions          bool                    `json:"captions"`
	FlushTrailing     bool                    `json:"flush_trailing"`
}

type PreviewTimelineResponse struct {
	Audio    timeline.AudioTimeline   `json:"audio"`
	Segments []timeline.Segment       `json:"segments"`
	Events   []timeline.WordEvent     `json:"events"`
	Captions []timeline.CaptionWindow `json:"captions"`
}

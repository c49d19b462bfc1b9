package services

import (
	"context"

	"github.com/bobarin/vidweft/internal/timeline"
)

// ---------------------------------------------------------------------------
// TTSService: common interface for text-to-speech providers
// ElevenLabs and Cartesia both implement this so the worker can narrate with
// whichever is configured. Providers that can report per-word timing fill in
// Words; the rest leave it empty and the worker falls back to Whisper.
// ---------------------------------------------------------------------------

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData []byte
	Format    string                  // "mp3", "wav", etc.
	Words     []timeline.WordBoundary // per-word timing on the raw audio, may be empty
}

// HasWordTimings reports whether the provider returned usable word boundaries.
func (r *TTSResponse) HasWordTimings() bool {
	return r != nil && len(r.Words) > 0
}

// TTSService is the interface that any TTS provider must implement.
type TTSService interface {
	// GenerateSpeech converts text to audio. voiceID overrides the provider's
	// default voice when non-empty.
	GenerateSpeech(ctx context.Context, text, voiceID string) (*TTSResponse, error)
}

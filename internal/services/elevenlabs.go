package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
	"unicode"

	"github.com/bobarin/vidweft/internal/timeline"
)

// ---------------------------------------------------------------------------
// ElevenLabs Text-to-Speech Service
// Uses the with-timestamps endpoint so every synthesis comes back with
// character-level alignment, which is folded into per-word boundaries.
// Model: eleven_flash_v2_5 (Flash v2.5: fast, 32 languages, ~75ms latency)
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_flash_v2_5"
	elevenLabsDefaultVoice = "pNInz6obpgDQGcFmaJgB"
	elevenLabsOutputFormat = "mp3_44100_128"
)

// ElevenLabsService handles text-to-speech via ElevenLabs API.
type ElevenLabsService struct {
	apiKey  string
	baseURL string
	voiceID string
	modelID string
	client  *http.Client
}

// Ensure ElevenLabsService implements TTSService at compile time.
var _ TTSService = (*ElevenLabsService)(nil)

// NewElevenLabsService creates an ElevenLabs service. An empty voiceID uses
// the default narrator voice.
func NewElevenLabsService(apiKey, voiceID string) *ElevenLabsService {
	if voiceID == "" {
		voiceID = elevenLabsDefaultVoice
	}
	return &ElevenLabsService{
		apiKey:  apiKey,
		baseURL: elevenLabsBaseURL,
		voiceID: voiceID,
		modelID: elevenLabsDefaultModel,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type elevenLabsAlignment struct {
	Characters []string  `json:"characters"`
	StartTimes []float64 `json:"character_start_times_seconds"`
	EndTimes   []float64 `json:"character_end_times_seconds"`
}

type elevenLabsTimestampResponse struct {
	AudioBase64 string               `json:"audio_base64"`
	Alignment   *elevenLabsAlignment `json:"alignment"`
}

// GenerateSpeech converts text to speech and returns word boundaries
// alongside the MP3 audio.
func (s *ElevenLabsService) GenerateSpeech(ctx context.Context, text, voiceID string) (*TTSResponse, error) {
	effectiveVoice := s.voiceID
	if voiceID != "" {
		effectiveVoice = voiceID
	}

	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       0.60,
			SimilarityBoost: 0.80,
			Style:           0.35,
			UseSpeakerBoost: true,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ElevenLabs request: %w", err)
	}

	// POST /v1/text-to-speech/{voice_id}/with-timestamps?output_format=mp3_44100_128
	url := fmt.Sprintf("%s/v1/text-to-speech/%s/with-timestamps?output_format=%s",
		s.baseURL, effectiveVoice, elevenLabsOutputFormat)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	log.Printf("[ElevenLabs] Generating speech (voiceID=%s, model=%s, textLen=%d)",
		effectiveVoice, s.modelID, len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ElevenLabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ElevenLabs returned status %d: %s", resp.StatusCode, string(body))
	}

	var result elevenLabsTimestampResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ElevenLabs response: %w", err)
	}

	audioData, err := base64.StdEncoding.DecodeString(result.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ElevenLabs audio: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("ElevenLabs returned empty audio")
	}

	words := wordsFromAlignment(result.Alignment)
	log.Printf("[ElevenLabs] Speech generated (%d bytes, %d timed words)", len(audioData), len(words))

	return &TTSResponse{
		AudioData: audioData,
		Format:    "mp3",
		Words:     words,
	}, nil
}

// wordsFromAlignment folds character timings into word boundaries. A word
// runs from its first character's start to its last character's end.
func wordsFromAlignment(a *elevenLabsAlignment) []timeline.WordBoundary {
	if a == nil {
		return nil
	}
	n := len(a.Characters)
	if len(a.StartTimes) < n || len(a.EndTimes) < n {
		log.Printf("[ElevenLabs] Alignment arrays have mismatched lengths, ignoring timings")
		return nil
	}

	var (
		words      []timeline.WordBoundary
		current    []rune
		start, end float64
	)

	flush := func() {
		if len(current) > 0 {
			words = append(words, timeline.BoundaryFromSeconds(string(current), start, end))
			current = nil
		}
	}

	for i, ch := range a.Characters {
		r := []rune(ch)
		if len(r) == 0 || unicode.IsSpace(r[0]) {
			flush()
			continue
		}
		if len(current) == 0 {
			start = a.StartTimes[i]
		}
		current = append(current, r...)
		end = a.EndTimes[i]
	}
	flush()

	return words
}

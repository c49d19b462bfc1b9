package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	// Default Cartesia API version
	CartesiaAPIVersion = "2024-06-10"

	// DefaultCartesiaVoiceID is used when no voice is configured.
	DefaultCartesiaVoiceID = "a0e99841-438c-4a64-b679-ae501e7d6091"
)

// CartesiaService narrates through Cartesia's /tts/bytes endpoint. It returns
// audio only, so captions for Cartesia narration need Whisper timings.
type CartesiaService struct {
	apiKey         string
	apiURL         string
	apiVersion     string
	defaultVoiceID string
	client         *http.Client
}

// NewCartesiaService creates a Cartesia service with a default voice.
func NewCartesiaService(apiKey, apiURL, voiceID string) *CartesiaService {
	if voiceID == "" {
		voiceID = DefaultCartesiaVoiceID
	}
	return &CartesiaService{
		apiKey:         apiKey,
		apiURL:         apiURL,
		apiVersion:     CartesiaAPIVersion,
		defaultVoiceID: voiceID,
		client:         &http.Client{Timeout: 60 * time.Second},
	}
}

// CartesiaRequest matches the Cartesia API specification
type CartesiaRequest struct {
	ModelID      string                    `json:"model_id"`
	Transcript   string                    `json:"transcript"`
	Voice        CartesiaVoiceSpecifier    `json:"voice"`
	Language     *string                   `json:"language,omitempty"`
	OutputFormat CartesiaOutputFormat      `json:"output_format"`
	Config       *CartesiaGenerationConfig `json:"generation_config,omitempty"`
}

type CartesiaVoiceSpecifier struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type CartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

type CartesiaGenerationConfig struct {
	Volume *float64 `json:"volume,omitempty"` // 0.5 to 2.0
	Speed  *float64 `json:"speed,omitempty"`  // 0.6 to 1.5
}

// Ensure CartesiaService implements TTSService at compile time.
var _ TTSService = (*CartesiaService)(nil)

// GenerateSpeech generates MP3 narration from text.
func (s *CartesiaService) GenerateSpeech(ctx context.Context, text, voiceID string) (*TTSResponse, error) {
	if voiceID == "" {
		voiceID = s.defaultVoiceID
	}

	language := "en"
	volume := 1.4 // louder output for mobile viewing

	reqBody := CartesiaRequest{
		ModelID:    "sonic-english",
		Transcript: text,
		Voice: CartesiaVoiceSpecifier{
			Mode: "id",
			ID:   voiceID,
		},
		Language: &language,
		OutputFormat: CartesiaOutputFormat{
			Container:  "mp3",
			SampleRate: 44100,
			BitRate:    192000,
		},
		Config: &CartesiaGenerationConfig{Volume: &volume},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/tts/bytes", s.apiURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cartesia-Version", s.apiVersion)

	log.Printf("[Cartesia] Generating speech (voiceID=%s, textLen=%d)", voiceID, len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cartesia returned status %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("cartesia returned empty audio")
	}

	return &TTSResponse{
		AudioData: audioData,
		Format:    "mp3",
	}, nil
}

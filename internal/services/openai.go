package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bobarin/vidweft/internal/timeline"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIService wraps the OpenAI client. It is only used for Whisper word
// timestamps: uploaded voiceovers and TTS providers without alignment data
// get their caption timings here.
type OpenAIService struct {
	client *openai.Client
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
	}
}

// NewOpenAIServiceWithBaseURL points the client at an OpenAI-compatible
// endpoint, e.g. "https://proxy.internal/v1".
func NewOpenAIServiceWithBaseURL(apiKey, baseURL string) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
	}
}

// TranscribeWords sends audio to Whisper and returns word-level boundaries on
// the raw audio timeline. filename is a hint for the container format
// ("narration.mp3", "voiceover.wav"). An empty language lets Whisper detect it.
func (s *OpenAIService) TranscribeWords(ctx context.Context, audioData []byte, filename, language string) ([]timeline.WordBoundary, error) {
	if filename == "" {
		filename = "audio.mp3"
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audioData),
		FilePath: filename,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: language,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w", err)
	}

	if len(resp.Words) == 0 {
		return nil, fmt.Errorf("whisper returned no word timestamps")
	}

	words := make([]timeline.WordBoundary, 0, len(resp.Words))
	for _, w := range resp.Words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		words = append(words, timeline.BoundaryFromSeconds(text, w.Start, w.End))
	}

	log.Printf("[Whisper] Transcribed %d words (duration: %.1fs, text: %q)",
		len(words), resp.Duration, truncateString(resp.Text, 80))

	return words, nil
}

// truncateString keeps at most maxLen runes of s for log output.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

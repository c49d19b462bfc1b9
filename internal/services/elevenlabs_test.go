package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bobarin/vidweft/internal/timeline"
)

func TestWordsFromAlignment(t *testing.T) {
	a := &elevenLabsAlignment{
		Characters: []string{"H", "i", " ", " ", "t", "h", "e", "r", "e", "!"},
		StartTimes: []float64{0.0, 0.1, 0.2, 0.25, 0.3, 0.35, 0.4, 0.45, 0.5, 0.55},
		EndTimes:   []float64{0.1, 0.2, 0.25, 0.3, 0.35, 0.4, 0.45, 0.5, 0.55, 0.6},
	}

	words := wordsFromAlignment(a)
	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %d: %+v", len(words), words)
	}

	want := []timeline.WordBoundary{
		{Text: "Hi", OffsetTicks: 0, DurationTicks: 2_000_000},
		{Text: "there!", OffsetTicks: 3_000_000, DurationTicks: 3_000_000},
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("word %d = %+v, want %+v", i, words[i], want[i])
		}
	}

	events, err := timeline.EventsFromBoundaries(words)
	if err != nil {
		t.Fatalf("boundaries should convert cleanly: %v", err)
	}
	if events[1].Start != 0.3 {
		t.Errorf("second word start = %v, want 0.3", events[1].Start)
	}
}

func TestWordsFromAlignmentMismatched(t *testing.T) {
	if words := wordsFromAlignment(nil); words != nil {
		t.Errorf("expected nil for missing alignment, got %v", words)
	}

	a := &elevenLabsAlignment{
		Characters: []string{"a", "b"},
		StartTimes: []float64{0},
		EndTimes:   []float64{0.1, 0.2},
	}
	if words := wordsFromAlignment(a); words != nil {
		t.Errorf("expected nil for mismatched arrays, got %v", words)
	}
}

func TestElevenLabsGenerateSpeech(t *testing.T) {
	audio := []byte("ID3-fake-mp3")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-123/with-timestamps" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}

		var req elevenLabsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Text != "Go now" {
			t.Errorf("text = %q", req.Text)
		}

		json.NewEncoder(w).Encode(elevenLabsTimestampResponse{
			AudioBase64: base64.StdEncoding.EncodeToString(audio),
			Alignment: &elevenLabsAlignment{
				Characters: []string{"G", "o", " ", "n", "o", "w"},
				StartTimes: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5},
				EndTimes:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6},
			},
		})
	}))
	defer server.Close()

	svc := NewElevenLabsService("test-key", "")
	svc.baseURL = server.URL

	resp, err := svc.GenerateSpeech(context.Background(), "Go now", "voice-123")
	if err != nil {
		t.Fatalf("GenerateSpeech: %v", err)
	}

	if string(resp.AudioData) != string(audio) {
		t.Errorf("audio = %q", resp.AudioData)
	}
	if !resp.HasWordTimings() || len(resp.Words) != 2 {
		t.Fatalf("expected 2 timed words, got %+v", resp.Words)
	}
	if resp.Words[1].Text != "now" {
		t.Errorf("second word = %q", resp.Words[1].Text)
	}
}

func TestElevenLabsGenerateSpeechError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	svc := NewElevenLabsService("test-key", "")
	svc.baseURL = server.URL

	_, err := svc.GenerateSpeech(context.Background(), "hello", "")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status 429 error, got %v", err)
	}
}

package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCartesiaGenerateSpeech(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts/bytes" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Cartesia-Version") != CartesiaAPIVersion {
			t.Errorf("missing version header")
		}

		var req CartesiaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Voice.ID != DefaultCartesiaVoiceID {
			t.Errorf("voice = %s, want default", req.Voice.ID)
		}
		if req.Transcript != "hello world" {
			t.Errorf("transcript = %q", req.Transcript)
		}
		w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	svc := NewCartesiaService("key", server.URL, "")
	resp, err := svc.GenerateSpeech(context.Background(), "hello world", "")
	if err != nil {
		t.Fatalf("GenerateSpeech: %v", err)
	}
	if string(resp.AudioData) != "mp3-bytes" || resp.Format != "mp3" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.HasWordTimings() {
		t.Errorf("cartesia narration should carry no word timings")
	}
}

func TestCartesiaErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewCartesiaService("key", server.URL, "v").GenerateSpeech(context.Background(), "hi", "")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status 400 error, got %v", err)
	}
}

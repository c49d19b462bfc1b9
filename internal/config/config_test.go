package config

import (
	"strings"
	"testing"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vidweft?sslmode=disable")
	t.Setenv("ELEVENLABS_API_KEY", "el-key")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.RenderSecondsPerImage != 3 {
		t.Errorf("RenderSecondsPerImage = %v, want 3", cfg.RenderSecondsPerImage)
	}
	if cfg.RenderFPS != 24 {
		t.Errorf("RenderFPS = %d, want 24", cfg.RenderFPS)
	}
	if cfg.RenderResolution != "1080x1920" {
		t.Errorf("RenderResolution = %s", cfg.RenderResolution)
	}
	if cfg.RenderMusicVolume != 0.3 {
		t.Errorf("RenderMusicVolume = %v, want 0.3", cfg.RenderMusicVolume)
	}
	if cfg.AlignSafetyMargin != 0.05 || cfg.AlignMaxSpeedup != 1.25 {
		t.Errorf("alignment defaults = %v/%v, want 0.05/1.25", cfg.AlignSafetyMargin, cfg.AlignMaxSpeedup)
	}
	if cfg.CaptionMaxWords != 6 {
		t.Errorf("CaptionMaxWords = %d, want 6", cfg.CaptionMaxWords)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ALIGN_MAX_SPEEDUP", "1.5")
	t.Setenv("CAPTION_MAX_WORDS", "4")
	t.Setenv("WORKER_ENABLED", "false")
	t.Setenv("RENDER_FPS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AlignMaxSpeedup != 1.5 || cfg.CaptionMaxWords != 4 || cfg.WorkerEnabled {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.RenderFPS != 24 {
		t.Errorf("unparseable value should fall back to default, got %d", cfg.RenderFPS)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"missing database", "DATABASE_URL", "", "DATABASE_URL"},
		{"speedup below one", "ALIGN_MAX_SPEEDUP", "0.8", "ALIGN_MAX_SPEEDUP"},
		{"negative margin", "ALIGN_SAFETY_MARGIN", "-0.1", "ALIGN_SAFETY_MARGIN"},
		{"loud music", "RENDER_MUSIC_VOLUME", "1.5", "RENDER_MUSIC_VOLUME"},
		{"zero words", "CAPTION_MAX_WORDS", "0", "CAPTION_MAX_WORDS"},
		{"zero seconds per image", "RENDER_SECONDS_PER_IMAGE", "0", "RENDER_SECONDS_PER_IMAGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("no tts provider", func(t *testing.T) {
		setRequired(t)
		t.Setenv("ELEVENLABS_API_KEY", "")
		t.Setenv("CARTESIA_API_KEY", "")

		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TTS") {
			t.Errorf("expected TTS error, got %v", err)
		}
	})
}

package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // Comma-separated API keys (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// OpenAI (Whisper word timings for uploaded voiceovers)
	OpenAIKey string

	// ElevenLabs (preferred TTS provider, returns word timings)
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// Cartesia (used when ElevenLabs key is not set)
	CartesiaKey     string
	CartesiaURL     string
	CartesiaVoiceID string

	// Audio
	BackgroundMusicPath string // Default music bed when a render does not upload one

	// Rendering
	RenderTempDir         string
	RenderSecondsPerImage float64
	RenderFPS             int
	RenderResolution      string // "WIDTHxHEIGHT"
	RenderMusicVolume     float64
	RenderMotionEffects   bool   // Random pan/zoom per image instead of static frames
	WhisperLanguage       string // Language hint when transcribing uploaded voiceovers

	// Timeline reconciliation
	AlignSafetyMargin float64
	AlignMaxSpeedup   float64
	CaptionMaxWords   int

	// Worker
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "vidweft-renders"),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:     getEnv("ELEVENLABS_VOICE_ID", ""),
		CartesiaKey:           getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:           getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID:       getEnv("CARTESIA_VOICE_ID", ""),
		BackgroundMusicPath:   getEnv("BACKGROUND_MUSIC_PATH", "assets/music/music.mp3"),
		RenderTempDir:         getEnv("RENDER_TEMP_DIR", "/tmp/vidweft"),
		RenderSecondsPerImage: getEnvFloat("RENDER_SECONDS_PER_IMAGE", 3),
		RenderFPS:             getEnvInt("RENDER_FPS", 24),
		RenderResolution:      getEnv("RENDER_RESOLUTION", "1080x1920"),
		RenderMusicVolume:     getEnvFloat("RENDER_MUSIC_VOLUME", 0.3),
		RenderMotionEffects:   getEnvBool("RENDER_MOTION_EFFECTS", true),
		WhisperLanguage:       getEnv("WHISPER_LANGUAGE", ""),
		AlignSafetyMargin:     getEnvFloat("ALIGN_SAFETY_MARGIN", 0.05),
		AlignMaxSpeedup:       getEnvFloat("ALIGN_MAX_SPEEDUP", 1.25),
		CaptionMaxWords:       getEnvInt("CAPTION_MAX_WORDS", 6),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and render tunables.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// At least one TTS provider must be configured
	if c.ElevenLabsKey == "" && c.CartesiaKey == "" {
		return fmt.Errorf("either ELEVENLABS_API_KEY or CARTESIA_API_KEY is required for TTS")
	}

	if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	if c.RenderSecondsPerImage <= 0 {
		return fmt.Errorf("RENDER_SECONDS_PER_IMAGE must be positive, got %v", c.RenderSecondsPerImage)
	}
	if c.RenderFPS <= 0 {
		return fmt.Errorf("RENDER_FPS must be positive, got %d", c.RenderFPS)
	}
	if c.RenderMusicVolume < 0 || c.RenderMusicVolume > 1 {
		return fmt.Errorf("RENDER_MUSIC_VOLUME must be within [0,1], got %v", c.RenderMusicVolume)
	}
	if c.AlignSafetyMargin < 0 {
		return fmt.Errorf("ALIGN_SAFETY_MARGIN must not be negative, got %v", c.AlignSafetyMargin)
	}
	if c.AlignMaxSpeedup < 1 {
		return fmt.Errorf("ALIGN_MAX_SPEEDUP must be at least 1.0, got %v", c.AlignMaxSpeedup)
	}
	if c.CaptionMaxWords < 1 {
		return fmt.Errorf("CAPTION_MAX_WORDS must be at least 1, got %d", c.CaptionMaxWords)
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1, got %d", c.MaxConcurrentJobs)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

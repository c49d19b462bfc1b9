package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/vidweft/internal/api"
	"github.com/bobarin/vidweft/internal/config"
	"github.com/bobarin/vidweft/internal/db"
	"github.com/bobarin/vidweft/internal/queue"
	"github.com/bobarin/vidweft/internal/services"
	"github.com/bobarin/vidweft/internal/storage"
	"github.com/bobarin/vidweft/internal/timeline"
	"github.com/bobarin/vidweft/internal/worker"
)

func main() {
	log.Println("Starting VidWeft API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize storage
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	resolution := services.ParseResolution(cfg.RenderResolution)
	alignOpts := timeline.AlignOptions{
		Margin:     cfg.AlignSafetyMargin,
		MaxSpeedup: cfg.AlignMaxSpeedup,
	}

	// Create API handler
	handler := api.NewHandler(database, q, stor, api.RenderDefaults{
		SecondsPerImage:   cfg.RenderSecondsPerImage,
		Align:             alignOpts,
		MaxWordsPerWindow: cfg.CaptionMaxWords,
		FrameWidth:        resolution.Width,
		FrameHeight:       resolution.Height,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		// Initialize services
		var openaiSvc *services.OpenAIService
		if cfg.OpenAIKey != "" {
			openaiSvc = services.NewOpenAIService(cfg.OpenAIKey)
		} else {
			log.Println("No OPENAI_API_KEY set, captions need TTS word timings")
		}
		ffmpegSvc := services.NewFFmpegService(cfg.RenderTempDir, resolution, cfg.RenderFPS)
		log.Printf("Rendering at %s, %d fps", resolution, cfg.RenderFPS)

		// Initialize TTS provider: ElevenLabs preferred, Cartesia as fallback
		var ttsSvc services.TTSService
		if cfg.ElevenLabsKey != "" {
			ttsSvc = services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
			log.Printf("TTS provider: ElevenLabs (voice: %s)", cfg.ElevenLabsVoiceID)
		} else {
			ttsSvc = services.NewCartesiaService(cfg.CartesiaKey, cfg.CartesiaURL, cfg.CartesiaVoiceID)
			log.Printf("TTS provider: Cartesia (voice: %s)", cfg.CartesiaVoiceID)
		}

		// Create worker
		w := worker.New(database, q, stor, openaiSvc, ttsSvc, ffmpegSvc, worker.Settings{
			Align:               alignOpts,
			MaxWordsPerWindow:   cfg.CaptionMaxWords,
			MusicVolume:         cfg.RenderMusicVolume,
			BackgroundMusicPath: cfg.BackgroundMusicPath,
			MotionEffects:       cfg.RenderMotionEffects,
			TranscribeLanguage:  cfg.WhisperLanguage,
		})

		// Start worker in background
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

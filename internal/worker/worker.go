package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/bobarin/vidweft/internal/db"
	"github.com/bobarin/vidweft/internal/models"
	"github.com/bobarin/vidweft/internal/queue"
	"github.com/bobarin/vidweft/internal/services"
	"github.com/bobarin/vidweft/internal/storage"
	"github.com/bobarin/vidweft/internal/timeline"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Settings are the render tunables handed to the worker at startup.
type Settings struct {
	Align               timeline.AlignOptions
	MaxWordsPerWindow   int
	MusicVolume         float64
	BackgroundMusicPath string // Default music bed (empty = none)
	MotionEffects       bool   // Random Ken Burns motion per image instead of static frames
	TranscribeLanguage  string // Whisper language hint for uploaded voiceovers
}

type Worker struct {
	db        *db.DB
	queue     *queue.Queue
	storage   *storage.Storage
	openai    *services.OpenAIService // Optional: nil when OPENAI_API_KEY is not set
	tts       services.TTSService     // TTS provider (ElevenLabs preferred, Cartesia fallback)
	ffmpeg    *services.FFmpegService
	settings  Settings
	uploadSem chan struct{} // Limits concurrent storage transfers to prevent congestion
}

func New(
	database *db.DB,
	q *queue.Queue,
	stor *storage.Storage,
	openaiSvc *services.OpenAIService,
	ttsSvc services.TTSService,
	ffmpegSvc *services.FFmpegService,
	settings Settings,
) *Worker {
	return &Worker{
		db:        database,
		queue:     q,
		storage:   stor,
		openai:    openaiSvc,
		tts:       ttsSvc,
		ffmpeg:    ffmpegSvc,
		settings:  settings,
		uploadSem: make(chan struct{}, 4),
	}
}

// uploadWithLimit wraps a storage transfer with a semaphore to prevent congestion.
// At most 4 transfers run simultaneously across all workers.
func (w *Worker) uploadWithLimit(ctx context.Context, label string, fn func() error) error {
	select {
	case w.uploadSem <- struct{}{}:
		// Acquired slot
	case <-ctx.Done():
		return fmt.Errorf("transfer cancelled while waiting for slot: %w", ctx.Err())
	}
	defer func() { <-w.uploadSem }()

	log.Printf("[Upload] %s transferring...", label)
	return fn()
}

// Start begins processing render jobs
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueRender, w.handleRender)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (type: %s, render: %s)", job.ID, job.Type, job.RenderID)

			// Update job status to running
			if err := w.db.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
				log.Printf("Failed to update job status: %v", err)
			}

			// Handle the job
			if err := handler(ctx, job); err != nil {
				log.Printf("Job %s failed: %v", job.ID, err)
				w.db.UpdateJobError(ctx, job.ID, err.Error())
			} else {
				log.Printf("Job %s completed successfully", job.ID)
				w.db.UpdateJobStatus(ctx, job.ID, models.JobStatusSucceeded)
			}
		}
	}
}

// renderFiles are the local working files of one render.
type renderFiles struct {
	dir       string
	images    []string
	narration string
	music     string // empty = no music input
	slideshow string
	aligned   string
	mixed     string
	subtitles string
	final     string
}

func newRenderFiles(dir string, imageCount int) *renderFiles {
	return &renderFiles{
		dir:       dir,
		images:    make([]string, imageCount),
		narration: filepath.Join(dir, "narration.mp3"),
		slideshow: filepath.Join(dir, "slideshow.mp4"),
		aligned:   filepath.Join(dir, "aligned.m4a"),
		mixed:     filepath.Join(dir, "mixed.m4a"),
		subtitles: filepath.Join(dir, "captions.ass"),
		final:     filepath.Join(dir, "final.mp4"),
	}
}

// handleRender turns a render's uploaded images and narration into the final
// video. All timing decisions come from timeline.Build; ffmpeg only executes them.
func (w *Worker) handleRender(ctx context.Context, job *queue.Job) error {
	log.Printf("[Worker] Rendering %s", job.RenderID)

	render, err := w.db.GetRender(ctx, job.RenderID)
	if err != nil {
		return fmt.Errorf("failed to get render: %w", err)
	}

	if err := w.renderVideo(ctx, render); err != nil {
		code := classifyError(err)
		if dbErr := w.db.UpdateRenderError(ctx, render.ID, code, err.Error()); dbErr != nil {
			log.Printf("[Worker] Failed to record render error: %v", dbErr)
		}
		return fmt.Errorf("render %s failed (%s): %w", render.ID, code, err)
	}

	return nil
}

func (w *Worker) renderVideo(ctx context.Context, render *models.Render) error {
	if !render.HasNarration() {
		return stageErr(models.ErrorCodeInvalidInput,
			fmt.Errorf("%w: no narration text provided", timeline.ErrInvalidInput))
	}

	images, err := w.db.GetRenderAssetsByType(ctx, render.ID, models.AssetTypeImage)
	if err != nil {
		return fmt.Errorf("failed to get render images: %w", err)
	}
	if len(images) == 0 {
		return stageErr(models.ErrorCodeInvalidInput,
			fmt.Errorf("%w: render has no images", timeline.ErrInvalidInput))
	}

	workDir := w.ffmpeg.CreateTempFile("render_" + render.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	files := newRenderFiles(workDir, len(images))

	// ── Step 1: fetch inputs in parallel ───────────────────────────────
	narrationData, err := w.fetchInputs(ctx, render, images, files)
	if err != nil {
		return stageErr(models.ErrorCodeStorage, err)
	}

	// ── Step 2: narration audio and word timings ───────────────────────
	if err := w.db.UpdateRenderStatus(ctx, render.ID, models.RenderStatusSynthesizing); err != nil {
		log.Printf("[Worker] Failed to update render status: %v", err)
	}

	var boundaries []timeline.WordBoundary
	if narrationData == nil {
		resp, err := w.synthesize(ctx, render, files)
		if err != nil {
			return stageErr(models.ErrorCodeTTS, err)
		}
		narrationData = resp.AudioData
		boundaries = resp.Words
	}

	if render.AddSubtitles && len(boundaries) == 0 {
		boundaries = w.transcribe(ctx, narrationData, filepath.Base(files.narration))
	}

	// ── Step 3: slideshow, then measure everything ─────────────────────
	if err := w.db.UpdateRenderStatus(ctx, render.ID, models.RenderStatusAligning); err != nil {
		log.Printf("[Worker] Failed to update render status: %v", err)
	}

	effects := make([]services.ClipEffect, len(files.images))
	for i := range effects {
		effects[i] = services.EffectNone
		if w.settings.MotionEffects {
			effects[i] = services.RandomEffect()
		}
	}

	if err := w.ffmpeg.RenderSlideshow(ctx, files.images, render.SecondsPerImage, effects, files.slideshow); err != nil {
		return stageErr(models.ErrorCodeFFmpeg, err)
	}

	m, err := w.measure(ctx, render, files)
	if err != nil {
		return stageErr(models.ErrorCodeFFmpeg, err)
	}

	// ── Step 4: reconcile the timeline ─────────────────────────────────
	plan, err := w.buildPlan(render, m, boundaries)
	if err != nil {
		return err
	}

	log.Printf("[Worker] Timeline for %s: video=%.2fs narration=%.2fs mode=%s factor=%.3f events=%d captions=%d",
		render.ID, m.video, m.narration, plan.Audio.Mode, plan.Audio.SpeedFactor, len(plan.Events), len(plan.Captions))

	audioPath := files.aligned
	if err := w.ffmpeg.AlignAudio(ctx, files.narration, plan.Audio, files.aligned); err != nil {
		if !errors.Is(err, services.ErrNothingAudible) {
			return stageErr(models.ErrorCodeFFmpeg, err)
		}
		log.Printf("[Worker] Video %s is too short for narration, rendering without it", render.ID)
		audioPath = ""
	}

	report := models.TimelineReport{
		VideoDuration: m.video,
		Audio:         plan.Audio,
		Events:        plan.Events,
		Captions:      plan.Captions,
		Truncated:     plan.Audio.Truncated(),
	}

	finalAudio := audioPath
	if files.music != "" {
		bed, err := timeline.PlanMusic(m.video, m.music, w.settings.MusicVolume)
		if err == nil {
			err = w.ffmpeg.MixMusic(ctx, audioPath, files.music, bed, files.mixed)
		}
		if err != nil {
			// Music is decoration; the render continues without it
			log.Printf("[Worker] Warning: background music failed, rendering without: %v", err)
		} else {
			finalAudio = files.mixed
			report.Music = &bed
		}
	}

	// ── Step 5: captions and composition ───────────────────────────────
	if err := w.db.UpdateRenderStatus(ctx, render.ID, models.RenderStatusRendering); err != nil {
		log.Printf("[Worker] Failed to update render status: %v", err)
	}

	subtitlePath := ""
	if len(plan.Captions) > 0 {
		if err := services.GenerateASSSubtitles(plan.Captions, m.width, m.height, files.subtitles); err != nil {
			log.Printf("[Worker] Warning: failed to write captions, rendering without: %v", err)
		} else {
			subtitlePath = files.subtitles
		}
	}

	if err := w.ffmpeg.Compose(ctx, files.slideshow, finalAudio, subtitlePath, m.video, files.final); err != nil {
		return stageErr(models.ErrorCodeFFmpeg, err)
	}

	// ── Step 6: publish outputs ────────────────────────────────────────
	var srt []byte
	if subtitlePath != "" {
		srt = []byte(services.FormatSRT(plan.Captions))
	}

	finalAsset, captionsAsset, err := w.publish(ctx, render.ID, files, audioPath, srt)
	if err != nil {
		return stageErr(models.ErrorCodeStorage, err)
	}

	if err := w.db.SetRenderTimeline(ctx, render.ID, report); err != nil {
		return fmt.Errorf("failed to save timeline report: %w", err)
	}

	var captionsID *uuid.UUID
	if captionsAsset != nil {
		captionsID = &captionsAsset.ID
	}

	log.Printf("[Worker] Render %s complete (%.2fs, audio=%s)", render.ID, m.video, plan.Audio.Mode)
	return w.db.SetRenderFinalVideo(ctx, render.ID, finalAsset.ID, captionsID)
}

// fetchInputs downloads images, the uploaded voiceover and the music bed in
// parallel. It returns the voiceover bytes, or nil when narration must be
// synthesized.
func (w *Worker) fetchInputs(ctx context.Context, render *models.Render, images []models.Asset, files *renderFiles) ([]byte, error) {
	var narrationData []byte

	g, gctx := errgroup.WithContext(ctx)

	for i, img := range images {
		i, img := i, img
		files.images[i] = filepath.Join(files.dir, fmt.Sprintf("image_%03d%s", i, filepath.Ext(img.StoragePath)))
		g.Go(func() error {
			return w.download(gctx, img.StoragePath, files.images[i])
		})
	}

	if render.NarrationAssetID != nil {
		g.Go(func() error {
			asset, err := w.db.GetAsset(gctx, *render.NarrationAssetID)
			if err != nil {
				return fmt.Errorf("failed to get voiceover asset: %w", err)
			}
			if ext := filepath.Ext(asset.StoragePath); ext != "" {
				files.narration = filepath.Join(files.dir, "narration"+ext)
			}
			data, err := w.downloadBytes(gctx, asset.StoragePath)
			if err != nil {
				return err
			}
			narrationData = data
			return os.WriteFile(files.narration, data, 0644)
		})
	}

	if render.AddMusic {
		if render.MusicAssetID != nil {
			files.music = filepath.Join(files.dir, "music")
			g.Go(func() error {
				asset, err := w.db.GetAsset(gctx, *render.MusicAssetID)
				if err != nil {
					return fmt.Errorf("failed to get music asset: %w", err)
				}
				return w.download(gctx, asset.StoragePath, files.music)
			})
		} else if w.settings.BackgroundMusicPath != "" {
			files.music = w.settings.BackgroundMusicPath
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch render inputs: %w", err)
	}

	return narrationData, nil
}

func (w *Worker) downloadBytes(ctx context.Context, storagePath string) ([]byte, error) {
	var data []byte
	err := w.uploadWithLimit(ctx, filepath.Base(storagePath), func() error {
		var err error
		data, err = w.storage.Download(ctx, storagePath)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", storagePath, err)
	}
	return data, nil
}

func (w *Worker) download(ctx context.Context, storagePath, localPath string) error {
	data, err := w.downloadBytes(ctx, storagePath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(localPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(localPath), err)
	}
	return nil
}

// synthesize narrates the render's text and stores the speech as its narration asset.
func (w *Worker) synthesize(ctx context.Context, render *models.Render, files *renderFiles) (*services.TTSResponse, error) {
	voiceID := ""
	if render.VoiceID != nil {
		voiceID = *render.VoiceID
	}

	resp, err := w.tts.GenerateSpeech(ctx, *render.NarrationText, voiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate narration: %w", err)
	}

	if resp.Format != "" {
		files.narration = filepath.Join(files.dir, "narration."+resp.Format)
	}
	if err := os.WriteFile(files.narration, resp.AudioData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write narration: %w", err)
	}

	asset, err := w.storeAsset(ctx, render.ID, models.AssetTypeNarration, filepath.Base(files.narration), resp.AudioData)
	if err != nil {
		return nil, err
	}
	if err := w.db.SetRenderAssets(ctx, render.ID, &asset.ID, nil); err != nil {
		log.Printf("[Worker] Failed to attach narration asset: %v", err)
	}

	log.Printf("[Worker] Narration synthesized (%d bytes, %d timed words)", len(resp.AudioData), len(resp.Words))
	return resp, nil
}

// transcribe recovers word timings with Whisper. Captions are optional, so a
// failure only drops them.
func (w *Worker) transcribe(ctx context.Context, audio []byte, filename string) []timeline.WordBoundary {
	if w.openai == nil {
		log.Printf("[Worker] Warning: no word timings and Whisper is not configured, rendering without captions")
		return nil
	}

	words, err := w.openai.TranscribeWords(ctx, audio, filename, w.settings.TranscribeLanguage)
	if err != nil {
		log.Printf("[Worker] Warning: Whisper transcription failed, rendering without captions: %v", err)
		return nil
	}
	return words
}

// measurements are the facts a timeline is built from.
type measurements struct {
	video     float64
	narration float64
	music     float64
	width     int
	height    int
}

func (w *Worker) measure(ctx context.Context, render *models.Render, files *renderFiles) (measurements, error) {
	var m measurements

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d, err := w.ffmpeg.GetMediaDuration(gctx, files.slideshow)
		if err != nil {
			d = timeline.SlideshowDuration(len(files.images), render.SecondsPerImage)
			log.Printf("[Worker] Warning: could not measure slideshow, using planned %.2fs: %v", d, err)
		}
		m.video = d
		return nil
	})

	g.Go(func() error {
		width, height, err := w.ffmpeg.GetFrameSize(gctx, files.slideshow)
		if err != nil {
			res := w.ffmpeg.Resolution()
			width, height = res.Width, res.Height
		}
		m.width, m.height = width, height
		return nil
	})

	g.Go(func() error {
		d, err := w.ffmpeg.GetMediaDuration(gctx, files.narration)
		if err != nil {
			return fmt.Errorf("failed to measure narration: %w", err)
		}
		m.narration = d
		return nil
	})

	if files.music != "" {
		g.Go(func() error {
			d, err := w.ffmpeg.GetMediaDuration(gctx, files.music)
			if err != nil {
				log.Printf("[Worker] Warning: could not measure music, skipping it: %v", err)
				files.music = ""
				return nil
			}
			m.music = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return measurements{}, err
	}
	return m, nil
}

// buildPlan runs the timeline pipeline for a measured render.
func (w *Worker) buildPlan(render *models.Render, m measurements, boundaries []timeline.WordBoundary) (*timeline.Plan, error) {
	var events []timeline.WordEvent
	if render.AddSubtitles && len(boundaries) > 0 {
		var err error
		events, err = timeline.EventsFromBoundaries(boundaries)
		if err != nil {
			// Bad timings cost the captions, not the render
			log.Printf("[Worker] Warning: unusable word timings, rendering without captions: %v", err)
			events = nil
		}
	}

	chunk := timeline.DefaultChunkOptions(m.width, m.height)
	if w.settings.MaxWordsPerWindow > 0 {
		chunk.MaxWordsPerWindow = w.settings.MaxWordsPerWindow
	}

	plan, err := timeline.Build(timeline.PlanInput{
		RawAudioDuration: m.narration,
		VideoDuration:    m.video,
		Events:           events,
		Captions:         len(events) > 0,
		Align:            w.settings.Align,
		Chunk:            chunk,
	})
	if err != nil {
		return nil, stageErr(models.ErrorCodeInvalidInput, err)
	}
	return plan, nil
}

// publish uploads the final video, the aligned narration and the SRT sidecar.
func (w *Worker) publish(ctx context.Context, renderID uuid.UUID, files *renderFiles, alignedPath string, srt []byte) (*models.Asset, *models.Asset, error) {
	var finalAsset, captionsAsset *models.Asset

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		data, err := os.ReadFile(files.final)
		if err != nil {
			return fmt.Errorf("failed to read final video: %w", err)
		}
		finalAsset, err = w.storeAsset(gctx, renderID, models.AssetTypeFinalVideo, "final.mp4", data)
		return err
	})

	if alignedPath != "" {
		g.Go(func() error {
			data, err := os.ReadFile(alignedPath)
			if err != nil {
				return fmt.Errorf("failed to read aligned audio: %w", err)
			}
			_, err = w.storeAsset(gctx, renderID, models.AssetTypeAlignedAudio, "aligned.m4a", data)
			return err
		})
	}

	if len(srt) > 0 {
		g.Go(func() error {
			var err error
			captionsAsset, err = w.storeAsset(gctx, renderID, models.AssetTypeCaptionsSRT, "captions.srt", srt)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return finalAsset, captionsAsset, nil
}

// storeAsset uploads data and records it as an asset of the render.
func (w *Worker) storeAsset(ctx context.Context, renderID uuid.UUID, assetType models.AssetType, filename string, data []byte) (*models.Asset, error) {
	contentType := storage.ContentTypeFor(filename)
	asset := &models.Asset{
		ID:            uuid.New(),
		RenderID:      renderID,
		Type:          assetType,
		StorageBucket: w.storage.Bucket,
		StoragePath:   w.storage.GenerateStoragePath(renderID, filename),
		ContentType:   strPtr(contentType),
		ByteSize:      int64Ptr(int64(len(data))),
	}

	if err := w.uploadWithLimit(ctx, filename, func() error {
		return w.storage.Upload(ctx, asset.StoragePath, data, contentType)
	}); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	if err := w.db.CreateAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to save %s asset: %w", assetType, err)
	}

	return asset, nil
}

// Helper functions
func strPtr(s string) *string {
	return &s
}

func int64Ptr(i int64) *int64 {
	return &i
}

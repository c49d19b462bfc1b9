package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bobarin/vidweft/internal/db"
	"github.com/bobarin/vidweft/internal/models"
	"github.com/bobarin/vidweft/internal/queue"
	"github.com/bobarin/vidweft/internal/storage"
	"github.com/bobarin/vidweft/internal/timeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	maxUploadBytes  = 512 << 20 // whole multipart request
	maxMemoryBytes  = 32 << 20  // parts above this spill to temp files
	maxImages       = 100
	signedURLExpiry = 3600 // seconds
)

var allowedImageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

var allowedAudioExts = map[string]bool{
	".mp3": true,
	".wav": true,
	".m4a": true,
	".aac": true,
	".ogg": true,
}

// RenderDefaults are the server-side defaults applied to requests that omit
// a tunable.
type RenderDefaults struct {
	SecondsPerImage   float64
	Align             timeline.AlignOptions
	MaxWordsPerWindow int
	FrameWidth        int
	FrameHeight       int
}

// renderStore is the persistence the handlers need; *db.DB implements it.
type renderStore interface {
	CreateRender(ctx context.Context, render *models.Render) error
	GetRender(ctx context.Context, id uuid.UUID) (*models.Render, error)
	ListRenders(ctx context.Context, status string, limit, offset int) ([]models.Render, error)
	CountRenders(ctx context.Context, status string) (int, error)
	UpdateRenderError(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) error
	SetRenderAssets(ctx context.Context, id uuid.UUID, narrationAssetID, musicAssetID *uuid.UUID) error
	CreateAsset(ctx context.Context, asset *models.Asset) error
	GetAsset(ctx context.Context, id uuid.UUID) (*models.Asset, error)
	GetRenderAssets(ctx context.Context, renderID uuid.UUID) ([]models.Asset, error)
	CreateJob(ctx context.Context, job *models.Job) error
	GetRenderJobs(ctx context.Context, renderID uuid.UUID) ([]models.Job, error)
	UpdateJobError(ctx context.Context, id uuid.UUID, errorMessage string) error
}

// renderQueue hands render jobs to the workers; *queue.Queue implements it.
type renderQueue interface {
	EnqueueRender(ctx context.Context, renderID, jobID uuid.UUID) error
}

var (
	_ renderStore = (*db.DB)(nil)
	_ renderQueue = (*queue.Queue)(nil)
)

type Handler struct {
	db       renderStore
	queue    renderQueue
	storage  *storage.Storage
	validate *validator.Validate
	defaults RenderDefaults
}

func NewHandler(database renderStore, q renderQueue, stor *storage.Storage, defaults RenderDefaults) *Handler {
	return &Handler{
		db:       database,
		queue:    q,
		storage:  stor,
		validate: newValidator(),
		defaults: defaults,
	}
}

// createRenderForm holds the scalar fields of a render upload.
type createRenderForm struct {
	NarrationText   string  `json:"narration_text" validate:"max=20000"`
	VoiceID         string  `json:"voice_id" validate:"max=128"`
	AddMusic        bool    `json:"add_music"`
	AddSubtitles    bool    `json:"add_subtitles"`
	SecondsPerImage float64 `json:"seconds_per_image" validate:"gt=0,lte=60"`
	ImageCount      int     `json:"images" validate:"gte=1,lte=100"`
}

// CreateRender handles POST /v1/renders (multipart/form-data)
// Fields:
//   - images[]:          one or more image files, shown in upload order (required)
//   - voiceover:         narration audio file (or narration_text)
//   - narration_text:    text to synthesize when no voiceover is uploaded
//   - music:             background music file (default track when add_music is set without one)
//   - add_music:         "true" to mix a music bed under the narration
//   - add_subtitles:     "true" to burn in captions
//   - voice_id:          TTS voice override
//   - seconds_per_image: how long each image is shown (default from server config)
func (h *Handler) CreateRender(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	images := append(r.MultipartForm.File["images[]"], r.MultipartForm.File["images"]...)
	voiceover := firstFile(r.MultipartForm, "voiceover")
	music := firstFile(r.MultipartForm, "music")

	form := createRenderForm{
		NarrationText:   strings.TrimSpace(r.FormValue("narration_text")),
		VoiceID:         strings.TrimSpace(r.FormValue("voice_id")),
		AddMusic:        formBool(r.FormValue("add_music")),
		AddSubtitles:    formBool(r.FormValue("add_subtitles")),
		SecondsPerImage: h.defaults.SecondsPerImage,
		ImageCount:      len(images),
	}
	if v := r.FormValue("seconds_per_image"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "seconds_per_image must be a number")
			return
		}
		form.SecondsPerImage = parsed
	}

	if err := h.validate.Struct(form); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if voiceover == nil && form.NarrationText == "" {
		respondError(w, http.StatusBadRequest, "Provide a voiceover file or narration_text")
		return
	}
	for _, img := range images {
		if !allowedImageExts[strings.ToLower(filepath.Ext(img.Filename))] {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported image type: %s", img.Filename))
			return
		}
	}
	for _, audio := range []*multipart.FileHeader{voiceover, music} {
		if audio != nil && !allowedAudioExts[strings.ToLower(filepath.Ext(audio.Filename))] {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported audio type: %s", audio.Filename))
			return
		}
	}

	render := &models.Render{
		ID:              uuid.New(),
		Status:          models.RenderStatusQueued,
		AddMusic:        form.AddMusic,
		AddSubtitles:    form.AddSubtitles,
		SecondsPerImage: form.SecondsPerImage,
		ImageCount:      len(images),
	}
	if form.NarrationText != "" && voiceover == nil {
		render.NarrationText = &form.NarrationText
	}
	if form.VoiceID != "" {
		render.VoiceID = &form.VoiceID
	}

	ctx := r.Context()
	if err := h.db.CreateRender(ctx, render); err != nil {
		log.Printf("[API] Failed to create render: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create render")
		return
	}

	var uploaded []string
	for i, img := range images {
		filename := fmt.Sprintf("image_%03d%s", i, strings.ToLower(filepath.Ext(img.Filename)))
		asset, err := h.storeUpload(ctx, render.ID, models.AssetTypeImage, i, filename, img)
		if err != nil {
			h.failCreate(ctx, w, render.ID, uploaded, models.ErrorCodeStorage, err)
			return
		}
		uploaded = append(uploaded, asset.StoragePath)
	}

	var narrationID, musicID *uuid.UUID
	if voiceover != nil {
		asset, err := h.storeUpload(ctx, render.ID, models.AssetTypeNarration, 0, "voiceover"+strings.ToLower(filepath.Ext(voiceover.Filename)), voiceover)
		if err != nil {
			h.failCreate(ctx, w, render.ID, uploaded, models.ErrorCodeStorage, err)
			return
		}
		uploaded = append(uploaded, asset.StoragePath)
		narrationID = &asset.ID
	}
	if music != nil && form.AddMusic {
		asset, err := h.storeUpload(ctx, render.ID, models.AssetTypeMusic, 0, "music"+strings.ToLower(filepath.Ext(music.Filename)), music)
		if err != nil {
			h.failCreate(ctx, w, render.ID, uploaded, models.ErrorCodeStorage, err)
			return
		}
		uploaded = append(uploaded, asset.StoragePath)
		musicID = &asset.ID
	}
	if narrationID != nil || musicID != nil {
		if err := h.db.SetRenderAssets(ctx, render.ID, narrationID, musicID); err != nil {
			h.failCreate(ctx, w, render.ID, uploaded, models.ErrorCodeStorage, err)
			return
		}
	}

	// Create and enqueue job
	job := &models.Job{
		ID:       uuid.New(),
		RenderID: render.ID,
		Type:     models.JobTypeRender,
		Status:   models.JobStatusQueued,
	}

	if err := h.db.CreateJob(ctx, job); err != nil {
		h.failCreate(ctx, w, render.ID, uploaded, models.ErrorCodeQueue, fmt.Errorf("failed to create job: %w", err))
		return
	}

	if err := h.queue.EnqueueRender(ctx, render.ID, job.ID); err != nil {
		h.db.UpdateJobError(ctx, job.ID, err.Error())
		h.failCreate(ctx, w, render.ID, uploaded, models.ErrorCodeQueue, fmt.Errorf("failed to enqueue job: %w", err))
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateRenderResponse{
		RenderID: render.ID,
		Status:   render.Status,
	})
}

// storeUpload copies one uploaded file to storage and records it as an asset.
func (h *Handler) storeUpload(ctx context.Context, renderID uuid.UUID, assetType models.AssetType, position int, filename string, fh *multipart.FileHeader) (*models.Asset, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}

	contentType := storage.ContentTypeFor(filename)
	asset := &models.Asset{
		ID:            uuid.New(),
		RenderID:      renderID,
		Type:          assetType,
		Position:      position,
		StorageBucket: h.storage.Bucket,
		StoragePath:   h.storage.GenerateStoragePath(renderID, filename),
		ContentType:   &contentType,
		ByteSize:      &fh.Size,
	}

	if err := h.storage.Upload(ctx, asset.StoragePath, data, contentType); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", filename, err)
	}
	if err := h.db.CreateAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to save %s asset: %w", filename, err)
	}
	return asset, nil
}

// failCreate marks a half-created render failed with code and removes what it
// already uploaded.
func (h *Handler) failCreate(ctx context.Context, w http.ResponseWriter, renderID uuid.UUID, uploaded []string, code string, err error) {
	log.Printf("[API] Render %s creation failed (%s): %v", renderID, code, err)
	if dbErr := h.db.UpdateRenderError(ctx, renderID, code, err.Error()); dbErr != nil {
		log.Printf("[API] Failed to record error on render %s: %v", renderID, dbErr)
	}
	if rmErr := h.storage.Remove(ctx, uploaded...); rmErr != nil {
		log.Printf("[API] Failed to remove uploads of render %s: %v", renderID, rmErr)
	}

	if code == models.ErrorCodeStorage {
		respondError(w, http.StatusBadGateway, "Failed to store uploads")
		return
	}
	respondError(w, http.StatusInternalServerError, "Failed to queue render")
}

// ListRenders handles GET /v1/renders
// Query params:
//   - status: filter by render status (queued, synthesizing, aligning, rendering, completed, failed)
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListRenders(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" && !models.RenderStatus(statusFilter).Valid() {
		respondError(w, http.StatusBadRequest, "Invalid status filter. Allowed: queued, synthesizing, aligning, rendering, completed, failed")
		return
	}

	limit, offset := pageParams(r)

	total, err := h.db.CountRenders(r.Context(), statusFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count renders")
		return
	}

	renders, err := h.db.ListRenders(r.Context(), statusFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list renders")
		return
	}

	summaries := make([]models.RenderSummary, 0, len(renders))
	for i := range renders {
		summaries = append(summaries, renders[i].Summary())
	}

	respondJSON(w, http.StatusOK, models.ListRendersResponse{
		Renders: summaries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// GetRender handles GET /v1/renders/{id}
func (h *Handler) GetRender(w http.ResponseWriter, r *http.Request) {
	render, ok := h.loadRender(w, r)
	if !ok {
		return
	}

	assets, err := h.db.GetRenderAssets(r.Context(), render.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get assets")
		return
	}

	respondJSON(w, http.StatusOK, h.buildRenderResponse(render, assets))
}

// GetRenderDownload handles GET /v1/renders/{id}/download
func (h *Handler) GetRenderDownload(w http.ResponseWriter, r *http.Request) {
	render, ok := h.loadRender(w, r)
	if !ok {
		return
	}

	if render.FinalVideoAssetID == nil {
		respondError(w, http.StatusNotFound, "Video not ready")
		return
	}

	asset, err := h.db.GetAsset(r.Context(), *render.FinalVideoAssetID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Asset not found")
		return
	}

	signedURL, err := h.storage.GetSignedURL(r.Context(), asset.StoragePath, signedURLExpiry)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate download URL")
		return
	}

	http.Redirect(w, r, signedURL, http.StatusTemporaryRedirect)
}

// GetRenderJobs handles GET /v1/renders/{id}/debug/jobs
func (h *Handler) GetRenderJobs(w http.ResponseWriter, r *http.Request) {
	renderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid render ID")
		return
	}

	jobs, err := h.db.GetRenderJobs(r.Context(), renderID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get jobs")
		return
	}

	respondJSON(w, http.StatusOK, jobs)
}

// Helper methods
func (h *Handler) loadRender(w http.ResponseWriter, r *http.Request) (*models.Render, bool) {
	renderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid render ID")
		return nil, false
	}

	render, err := h.db.GetRender(r.Context(), renderID)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Render not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get render")
		return nil, false
	}
	return render, true
}

func (h *Handler) buildRenderResponse(render *models.Render, assets []models.Asset) models.RenderResponse {
	response := models.RenderResponse{Render: *render}

	for _, asset := range assets {
		url := h.storage.GetPublicURL(asset.StoragePath)
		switch asset.Type {
		case models.AssetTypeImage:
			response.ImageURLs = append(response.ImageURLs, url)
		case models.AssetTypeNarration:
			response.NarrationURL = &url
		case models.AssetTypeAlignedAudio:
			response.AlignedAudioURL = &url
		case models.AssetTypeCaptionsSRT:
			response.CaptionsURL = &url
		case models.AssetTypeFinalVideo:
			response.FinalVideoURL = &url
		}
	}

	return response
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	if files := form.File[field]; len(files) > 0 {
		return files[0]
	}
	return nil
}

func formBool(v string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(v))
	return b
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bobarin/vidweft/internal/models"
	"github.com/bobarin/vidweft/internal/timeline"
)

const maxPreviewBodyBytes = 1 << 20

// PreviewTimeline handles POST /v1/timeline/preview
// Runs the timeline reconciliation on caller-supplied durations and word
// timings without rendering anything. Omitted tunables fall back to the
// server defaults.
func (h *Handler) PreviewTimeline(w http.ResponseWriter, r *http.Request) {
	var req models.PreviewTimelineRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPreviewBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	in := timeline.PlanInput{
		RawAudioDuration: req.RawAudioDuration,
		VideoDuration:    req.VideoDuration,
		Captions:         req.Captions,
		Align:            h.defaults.Align,
		Chunk: timeline.ChunkOptions{
			MaxWordsPerWindow: h.defaults.MaxWordsPerWindow,
			FrameWidth:        h.defaults.FrameWidth,
			FrameHeight:       h.defaults.FrameHeight,
			FlushTrailing:     req.FlushTrailing,
		},
	}
	if req.Margin != nil {
		in.Align.Margin = *req.Margin
	}
	if req.MaxSpeedup != nil {
		in.Align.MaxSpeedup = *req.MaxSpeedup
	}
	if req.MaxWordsPerWindow != nil {
		in.Chunk.MaxWordsPerWindow = *req.MaxWordsPerWindow
	}
	if req.FrameWidth > 0 {
		in.Chunk.FrameWidth = req.FrameWidth
	}
	if req.FrameHeight > 0 {
		in.Chunk.FrameHeight = req.FrameHeight
	}

	if req.Captions {
		events, err := timeline.EventsFromBoundaries(req.Words)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.Events = events
	}

	plan, err := timeline.Build(in)
	if errors.Is(err, timeline.ErrInvalidInput) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to build timeline")
		return
	}

	resp := models.PreviewTimelineResponse{
		Audio:    plan.Audio,
		Segments: plan.Audio.Segments(),
		Events:   plan.Events,
		Captions: plan.Captions,
	}
	if resp.Events == nil {
		resp.Events = []timeline.WordEvent{}
	}
	if resp.Captions == nil {
		resp.Captions = []timeline.CaptionWindow{}
	}
	respondJSON(w, http.StatusOK, resp)
}

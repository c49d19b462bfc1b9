package timeline

// PlanInput is everything needed to reconcile one render's timeline.
type PlanInput struct {
	RawAudioDuration float64
	VideoDuration    float64
	Events           []WordEvent // raw narration timings; ignored unless Captions
	Captions         bool
	Align            AlignOptions
	Chunk            ChunkOptions
}

// Plan is the reconciled timeline handed to the compositor.
type Plan struct {
	Audio    AudioTimeline   `json:"audio"`
	Events   []WordEvent     `json:"events,omitempty"`
	Captions []CaptionWindow `json:"captions,omitempty"`
}

// Build aligns the narration and, when captions are requested, retimes and
// groups the words against the aligned audio.
func Build(in PlanInput) (*Plan, error) {
	audio, err := Align(in.RawAudioDuration, in.VideoDuration, in.Align)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Audio: audio}
	if !in.Captions {
		return plan, nil
	}

	events, err := Retime(in.Events, audio.SpeedFactor, in.VideoDuration, in.Align.Margin)
	if err != nil {
		return nil, err
	}

	windows, err := Chunk(events, in.VideoDuration, in.Align.Margin, in.Chunk)
	if err != nil {
		return nil, err
	}

	plan.Events = events
	plan.Captions = windows
	return plan, nil
}

package worker

import (
	"github.com/bobarin/reelrender/internal/filtergraph"
	"github.com/bobarin/reelrender/internal/models"
)

// SegmentPlan is what one clip will be rendered with.
type SegmentPlan struct {
	Index     int                `json:"index"`
	Type      models.SegmentType `json:"type"`
	Duration  float64            `json:"duration"`
	Frames    int                `json:"frames"`
	TextLines []string           `json:"text_lines,omitempty"`
	TextStart float64            `json:"text_start,omitempty"`
	TextEnd   float64            `json:"text_end,omitempty"`
	Filter    string             `json:"filter"`
}

// RenderPlan describes a render without running it.
type RenderPlan struct {
	Settings         RenderSettings         `json:"settings"`
	ConcatMode       filtergraph.ConcatMode `json:"concat_mode"`
	Offsets          []float64              `json:"offsets,omitempty"`
	Transition       string                 `json:"transition,omitempty"`
	SegmentsDuration float64                `json:"segments_duration"`
	HoldDuration     float64                `json:"hold_duration,omitempty"`
	Segments         []SegmentPlan          `json:"segments"`
}

// Plan resolves a request into the graphs and timings Render would use.
func (r *Renderer) Plan(req *models.RenderRequest) (*RenderPlan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job := &renderJob{req: req}
	for _, seg := range req.Segments {
		job.durations = append(job.durations, seg.EffectiveDuration())
	}
	job.settings = ResolveSettings(req.Options, r.cfg, job.durations)

	plan := &RenderPlan{
		Settings:         job.settings,
		ConcatMode:       filtergraph.ChooseConcat(len(req.Segments), job.settings.TransitionType, r.cfg.TransitionMaxClips),
		SegmentsDuration: req.TotalDuration(),
	}
	if plan.ConcatMode == filtergraph.ConcatTransition {
		plan.Transition = filtergraph.ResolveTransition(job.settings.TransitionType)
		plan.Offsets = filtergraph.TransitionOffsets(job.durations, job.settings.TransitionDuration)
		plan.HoldDuration = plan.SegmentsDuration - filtergraph.TransitionOutputDuration(job.durations, job.settings.TransitionDuration)
	}

	for i, seg := range req.Segments {
		graph, err := r.clipGraph(job, seg, job.durations[i])
		if err != nil {
			return nil, models.NewRenderError(models.ErrSynthesis, models.StageSynthesizeClips, err)
		}
		kb := filtergraph.KenBurns{FPS: job.settings.FPS, Duration: job.durations[i]}
		sp := SegmentPlan{
			Index:    i,
			Type:     seg.Type.Normalize(),
			Duration: job.durations[i],
			Frames:   kb.Frames(),
			Filter:   graph.String(),
		}
		if text := seg.Text(); text != "" {
			styleType := sp.Type
			if seg.TextStyle == models.TextStyleBold {
				styleType = models.SegmentTypeCTA
			}
			style := filtergraph.StyleFor(styleType, job.settings.Height)
			sp.TextLines = filtergraph.WrapText(text, style.MaxChars)
			sp.TextStart, sp.TextEnd = filtergraph.TextWindow(sp.Duration, seg.TextTiming)
		}
		plan.Segments = append(plan.Segments, sp)
	}
	return plan, nil
}

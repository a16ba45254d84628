package worker

import (
	"context"
	"fmt"

	"github.com/bobarin/reelrender/internal/filtergraph"
	"github.com/bobarin/reelrender/internal/models"
	"github.com/bobarin/reelrender/internal/services"
)

// joinedVideo is the concatenated, still silent, video.
type joinedVideo struct {
	Path     string
	Duration float64
	Mode     filtergraph.ConcatMode
}

// concatAttempts lists the strategies to try in order. A transition chain is
// cosmetic, so it is always backed by the stream-copy join.
func concatAttempts(mode filtergraph.ConcatMode) []filtergraph.ConcatMode {
	switch mode {
	case filtergraph.ConcatTransition:
		return []filtergraph.ConcatMode{filtergraph.ConcatTransition, filtergraph.ConcatFast}
	case filtergraph.ConcatSingle:
		return []filtergraph.ConcatMode{filtergraph.ConcatSingle}
	default:
		return []filtergraph.ConcatMode{filtergraph.ConcatFast}
	}
}

// concatenate joins the clips, trying each strategy until one succeeds.
func (r *Renderer) concatenate(ctx context.Context, job *renderJob, clips []clip) (joinedVideo, error) {
	job.progress.report(models.StageConcatenate, progressConcat)

	mode := filtergraph.ChooseConcat(len(clips), job.settings.TransitionType, r.cfg.TransitionMaxClips)
	attempts := concatAttempts(mode)

	var lastErr error
	for i, attempt := range attempts {
		job.logf("Concat attempt %d/%d: %s (%d clips)", i+1, len(attempts), attempt, len(clips))

		joined, err := r.runConcat(ctx, job, attempt, clips)
		if err == nil {
			job.logf("Concat %s succeeded: %.3fs", attempt, joined.Duration)
			return joined, nil
		}

		lastErr = models.NewRenderError(models.ErrConcatenation, models.StageConcatenate, fmt.Errorf("%s concat: %w", attempt, err))
		if i < len(attempts)-1 {
			job.logf("Concat %s failed, falling back: %v", attempt, err)
		}
	}
	return joinedVideo{}, lastErr
}

func (r *Renderer) runConcat(ctx context.Context, job *renderJob, mode filtergraph.ConcatMode, clips []clip) (joinedVideo, error) {
	paths := make([]string, len(clips))
	durations := make([]float64, len(clips))
	for i, c := range clips {
		paths[i] = c.Path
		durations[i] = c.Duration
	}

	switch mode {
	case filtergraph.ConcatTransition:
		spec := filtergraph.TransitionSpec{
			Width:    job.settings.Width,
			Height:   job.settings.Height,
			FPS:      job.settings.FPS,
			Type:     job.settings.TransitionType,
			Duration: job.settings.TransitionDuration,
			Canvas:   job.settings.Canvas,
		}
		graph, err := filtergraph.BuildTransitionGraph(durations, spec)
		if err != nil {
			return joinedVideo{}, err
		}
		out := job.ws.Path("joined_transition.mp4")
		args := services.TransitionArgs(paths, graph.String(), graph.Last, out, r.encodeSettings(job.settings))
		if err := r.runner.Run(ctx, "concat_transition", r.cfg.ConcatTimeout, args); err != nil {
			return joinedVideo{}, err
		}
		return joinedVideo{
			Path:     out,
			Duration: filtergraph.TransitionOutputDuration(durations, 0),
			Mode:     mode,
		}, nil

	default:
		// The single-clip case goes through the same stream-copy join, which
		// remuxes the clip without touching its frames.
		listPath := job.ws.Path("concat_list.txt")
		if err := services.WriteConcatList(listPath, paths); err != nil {
			return joinedVideo{}, err
		}
		out := job.ws.Path("joined.mp4")
		if err := r.runner.Run(ctx, "concat_"+string(mode), r.cfg.ConcatTimeout, services.ConcatArgs(listPath, out)); err != nil {
			return joinedVideo{}, err
		}
		return joinedVideo{
			Path:     out,
			Duration: filtergraph.TransitionOutputDuration(durations, 0),
			Mode:     mode,
		}, nil
	}
}

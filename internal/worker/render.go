package worker

import (
	"context"
	"fmt"
	"log"
	"mime"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/bobarin/reelrender/internal/filtergraph"
	"github.com/bobarin/reelrender/internal/models"
	"github.com/bobarin/reelrender/internal/services"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MediaRunner executes one ffmpeg invocation.
type MediaRunner interface {
	Run(ctx context.Context, label string, timeout time.Duration, args []string) error
}

// MediaProber reports duration and streams of a media file.
type MediaProber interface {
	Probe(ctx context.Context, path string, timeout time.Duration) (*services.ProbeResult, error)
}

// MediaFetcher downloads a URL.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) (*services.FetchResult, error)
}

// FontResolver maps a use case to a font file, or reports none.
type FontResolver interface {
	ResolveFont(useCase string) (string, bool)
}

// Renderer turns a render request into a finished MP4. One Render call is one
// job; it owns a private work directory that is removed when it returns.
type Renderer struct {
	cfg     RendererConfig
	runner  MediaRunner
	prober  MediaProber
	fetcher MediaFetcher
	fonts   FontResolver
}

func NewRenderer(cfg RendererConfig, runner MediaRunner, prober MediaProber, fetcher MediaFetcher, fonts FontResolver) *Renderer {
	return &Renderer{
		cfg:     cfg.withDefaults(),
		runner:  runner,
		prober:  prober,
		fetcher: fetcher,
		fonts:   fonts,
	}
}

// clip is one synthesized segment.
type clip struct {
	Path     string
	Index    int
	Duration float64
}

// renderJob is the state of one Render call.
type renderJob struct {
	id       uuid.UUID
	req      *models.RenderRequest
	settings RenderSettings
	ws       *services.Workspace
	progress *progressTracker

	durations []float64
	images    []string
	audioPath string
}

func (j *renderJob) logf(format string, args ...interface{}) {
	log.Printf("[Render %s] "+format, append([]interface{}{j.id.String()[:8]}, args...)...)
}

// Render runs the pipeline:
//
//	init -> download_images -> download_audio -> synthesize_clips -> concatenate
//	-> reconcile_duration -> mux_audio -> validate -> read_artifact -> cleanup -> complete
//
// Any failure jumps to cleanup and then failed. Cleanup errors are logged and
// never replace the original error.
func (r *Renderer) Render(ctx context.Context, jobID uuid.UUID, req *models.RenderRequest, progress ProgressFunc) (result *models.RenderResult, err error) {
	tracker := newProgressTracker(progress)
	tracker.report(models.StageInit, progressInit)

	if err := req.Validate(); err != nil {
		log.Printf("[Render %s] Rejected: %v", jobID, err)
		tracker.fail()
		return nil, err
	}

	ws, err := services.NewWorkspace(r.cfg.WorkDir, jobID)
	if err != nil {
		tracker.fail()
		return nil, models.NewRenderError(models.ErrSynthesis, models.StageInit, err)
	}

	job := &renderJob{
		id:       jobID,
		req:      req,
		ws:       ws,
		progress: tracker,
	}
	for _, seg := range req.Segments {
		job.durations = append(job.durations, seg.EffectiveDuration())
	}
	job.settings = ResolveSettings(req.Options, r.cfg, job.durations)

	start := time.Now()
	defer func() {
		tracker.report(models.StageCleanup, progressCleanup)
		if cerr := ws.Cleanup(); cerr != nil {
			job.logf("Cleanup failed: %v", cerr)
		}
		if err != nil {
			job.logf("Failed after %v: %v", time.Since(start).Round(time.Millisecond), err)
			tracker.fail()
			result = nil
			return
		}
		job.logf("Completed in %v (%.3fs, %d bytes)", time.Since(start).Round(time.Millisecond), result.DurationSeconds, len(result.Video))
		tracker.report(models.StageComplete, progressComplete)
	}()

	job.logf("Starting: %d segments, %dx%d@%d, transition=%s/%.3fs, canvas=%s",
		len(req.Segments), job.settings.Width, job.settings.Height, job.settings.FPS,
		job.settings.TransitionType, job.settings.TransitionDuration, job.settings.Canvas)

	if err := r.downloadImages(ctx, job); err != nil {
		return nil, err
	}

	estimate, err := r.downloadAudio(ctx, job)
	if err != nil {
		return nil, err
	}

	clips, err := r.synthesizeClips(ctx, job)
	if err != nil {
		return nil, err
	}

	joined, err := r.concatenate(ctx, job, clips)
	if err != nil {
		return nil, err
	}

	video, audioDuration, err := r.reconcileDuration(ctx, job, joined, estimate)
	if err != nil {
		return nil, err
	}

	final, err := r.muxAudio(ctx, job, video, audioDuration)
	if err != nil {
		return nil, err
	}

	duration, err := r.validate(ctx, job, final, audioDuration)
	if err != nil {
		return nil, err
	}

	job.progress.report(models.StageReadArtifact, progressRead)
	data, err := os.ReadFile(final)
	if err != nil {
		return nil, models.NewRenderError(models.ErrValidation, models.StageReadArtifact, fmt.Errorf("failed to read artifact: %w", err))
	}

	return &models.RenderResult{Video: data, DurationSeconds: duration}, nil
}

// ---------------------------------------------------------------------------
// Acquisition
// ---------------------------------------------------------------------------

// downloadImages fetches segment images in fixed-size batches. Each batch runs
// concurrently; the first failure cancels the batch and fails the job.
func (r *Renderer) downloadImages(ctx context.Context, job *renderJob) error {
	segments := job.req.Segments
	job.images = make([]string, len(segments))
	job.progress.report(models.StageDownloadImages, progressImagesStart)

	batch := r.cfg.DownloadBatchSize
	for start := 0; start < len(segments); start += batch {
		end := start + batch
		if end > len(segments) {
			end = len(segments)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				imageURL := segments[i].ImageURL
				res, err := r.fetcher.Fetch(gctx, imageURL)
				if err != nil {
					return fmt.Errorf("image %d: %w", i, err)
				}
				p := job.ws.Path(fmt.Sprintf("image_%03d%s", i, mediaExt(imageURL, res.ContentType, ".jpg")))
				if err := os.WriteFile(p, res.Data, 0644); err != nil {
					return fmt.Errorf("failed to write image %d: %w", i, err)
				}
				job.images[i] = p
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return models.NewRenderError(models.ErrRetrieval, models.StageDownloadImages, err)
		}

		job.logf("Downloaded images %d-%d of %d", start+1, end, len(segments))
		job.progress.report(models.StageDownloadImages, span(progressImagesStart, progressImagesEnd, end, len(segments)))
	}
	return nil
}

// downloadAudio fetches the audio track and takes a first duration reading.
// Nothing is encoded from this reading, so an unusable probe falls back to the
// segment total.
func (r *Renderer) downloadAudio(ctx context.Context, job *renderJob) (float64, error) {
	job.progress.report(models.StageDownloadAudio, progressAudio)

	res, err := r.fetcher.Fetch(ctx, job.req.AudioURL)
	if err != nil {
		return 0, models.NewRenderError(models.ErrRetrieval, models.StageDownloadAudio, fmt.Errorf("audio: %w", err))
	}
	job.audioPath = job.ws.Path("audio" + mediaExt(job.req.AudioURL, res.ContentType, ".mp3"))
	if err := os.WriteFile(job.audioPath, res.Data, 0644); err != nil {
		return 0, models.NewRenderError(models.ErrRetrieval, models.StageDownloadAudio, fmt.Errorf("failed to write audio: %w", err))
	}

	estimate := job.req.TotalDuration()
	probe, err := r.prober.Probe(ctx, job.audioPath, r.cfg.ProbeTimeout)
	switch {
	case err != nil:
		job.logf("Warning: audio probe failed, estimating %.3fs from segments: %v", estimate, err)
	case !services.ValidDuration(probe.DurationSeconds):
		job.logf("Warning: audio probe returned %v, estimating %.3fs from segments", probe.DurationSeconds, estimate)
	default:
		estimate = probe.DurationSeconds
		job.logf("Audio is %.3fs (segments total %.3fs)", estimate, job.req.TotalDuration())
	}

	job.progress.report(models.StageDownloadAudio, progressAudioProbed)
	return estimate, nil
}

// ---------------------------------------------------------------------------
// Clip synthesis
// ---------------------------------------------------------------------------

// synthesizeClips renders one clip per segment, sequentially.
func (r *Renderer) synthesizeClips(ctx context.Context, job *renderJob) ([]clip, error) {
	job.progress.report(models.StageSynthesizeClips, progressClipsStart)
	enc := r.encodeSettings(job.settings)

	clips := make([]clip, 0, len(job.req.Segments))
	for i, seg := range job.req.Segments {
		duration := job.durations[i]
		graph, err := r.clipGraph(job, seg, duration)
		if err != nil {
			return nil, models.NewRenderError(models.ErrSynthesis, models.StageSynthesizeClips, fmt.Errorf("clip %d: %w", i, err))
		}

		kb := filtergraph.KenBurns{FPS: job.settings.FPS, Duration: duration}
		out := job.ws.Path(fmt.Sprintf("clip_%03d.mp4", i))
		args := services.ClipArgs(job.images[i], out, graph.String(), kb.Frames(), enc)

		job.logf("Clip %d/%d: %.3fs, type=%s, canvas=%s", i+1, len(job.req.Segments), duration, seg.Type.Normalize(), job.settings.Canvas)
		if err := r.runner.Run(ctx, fmt.Sprintf("clip_%d", i), r.cfg.ClipTimeout, args); err != nil {
			return nil, models.NewRenderError(models.ErrSynthesis, models.StageSynthesizeClips, fmt.Errorf("clip %d: %w", i, err))
		}
		if _, err := os.Stat(out); err != nil {
			return nil, models.NewRenderError(models.ErrSynthesis, models.StageSynthesizeClips, fmt.Errorf("clip %d produced no output: %w", i, err))
		}

		clips = append(clips, clip{Path: out, Index: i, Duration: duration})
		job.progress.report(models.StageSynthesizeClips, span(progressClipsStart, progressClipsEnd, i+1, len(job.req.Segments)))
	}

	if len(clips) != len(job.req.Segments) {
		return nil, models.NewRenderError(models.ErrSynthesis, models.StageSynthesizeClips,
			fmt.Errorf("synthesized %d clips for %d segments", len(clips), len(job.req.Segments)))
	}
	return clips, nil
}

// clipGraph builds the -vf chain for one segment: Ken Burns motion, then
// text, then a highlight marker.
func (r *Renderer) clipGraph(job *renderJob, seg models.Segment, duration float64) (filtergraph.Chain, error) {
	s := job.settings
	c, err := filtergraph.BuildKenBurns(filtergraph.From(""), filtergraph.KenBurns{
		Width:    s.Width,
		Height:   s.Height,
		FPS:      s.FPS,
		Duration: duration,
		EndZoom:  s.EndZoom,
		Canvas:   s.Canvas,
	})
	if err != nil {
		return c, err
	}

	if text := seg.Text(); text != "" {
		segType := seg.Type.Normalize()
		if seg.TextStyle == models.TextStyleBold {
			font := r.font(services.FontHeadline)
			c = filtergraph.BoldText(c, filtergraph.BoldTextSpec{
				Text:         text,
				ClipDuration: duration,
				Timing:       seg.TextTiming,
				FontPath:     font,
				Width:        s.Width,
				Height:       s.Height,
			})
		} else {
			useCase := services.FontBody
			if segType != models.SegmentTypeFeature {
				useCase = services.FontHeadline
			}
			c = filtergraph.BuildTextOverlay(c, filtergraph.TextOverlay{
				Text:         text,
				Type:         segType,
				ClipDuration: duration,
				Timing:       seg.TextTiming,
				FontPath:     r.font(useCase),
				Height:       s.Height,
			})
		}
	}

	if seg.Highlight != nil {
		c = filtergraph.BuildHighlight(c, *seg.Highlight, s.Width, s.Height, duration)
	}
	return c, c.Validate()
}

func (r *Renderer) font(useCase string) string {
	if r.fonts == nil {
		return ""
	}
	p, ok := r.fonts.ResolveFont(useCase)
	if !ok {
		return ""
	}
	return p
}

func (r *Renderer) encodeSettings(s RenderSettings) services.EncodeSettings {
	enc := r.cfg.Encode
	enc.FPS = s.FPS
	return enc
}

// ---------------------------------------------------------------------------
// Duration, mux and validation
// ---------------------------------------------------------------------------

// reconcileDuration probes the audio again and makes the video match it. This
// reading decides how long the final file is, so it must be valid.
func (r *Renderer) reconcileDuration(ctx context.Context, job *renderJob, joined joinedVideo, estimate float64) (string, float64, error) {
	job.progress.report(models.StageReconcileDuration, progressReconcile)

	probe, err := r.prober.Probe(ctx, job.audioPath, r.cfg.ProbeTimeout)
	if err != nil {
		return "", 0, models.NewRenderError(models.ErrDurationProbe, models.StageReconcileDuration, fmt.Errorf("failed to probe audio: %w", err))
	}
	audio := probe.DurationSeconds
	if !services.ValidDuration(audio) {
		return "", 0, models.NewRenderError(models.ErrDurationProbe, models.StageReconcileDuration, fmt.Errorf("audio duration is invalid (%v)", audio))
	}
	if diff := audio - estimate; diff > services.DurationTolerance || diff < -services.DurationTolerance {
		job.logf("Audio probe %.3fs differs from the earlier reading %.3fs", audio, estimate)
	}

	segments := job.req.TotalDuration()
	fix := services.PlanDurationFix(audio, segments)
	job.logf("Reconcile: audio=%.3fs segments=%.3fs video=%.3fs -> %s", audio, segments, joined.Duration, fix.Kind)

	switch fix.Kind {
	case services.FixExtend:
		out := job.ws.Path("extended.mp4")
		args := services.ExtendArgs(joined.Path, out, fix.Extend, r.encodeSettings(job.settings))
		if err := r.runner.Run(ctx, "extend", r.cfg.ConcatTimeout, args); err != nil {
			return "", 0, models.NewRenderError(models.ErrMux, models.StageReconcileDuration, fmt.Errorf("failed to extend video by %.3fs: %w", fix.Extend, err))
		}
		return out, audio, nil
	case services.FixTrim:
		out := job.ws.Path("trimmed.mp4")
		if err := r.runner.Run(ctx, "trim", r.cfg.ConcatTimeout, services.TrimArgs(joined.Path, out, fix.Target)); err != nil {
			return "", 0, models.NewRenderError(models.ErrMux, models.StageReconcileDuration, fmt.Errorf("failed to trim video to %.3fs: %w", fix.Target, err))
		}
		return out, audio, nil
	default:
		return joined.Path, audio, nil
	}
}

func (r *Renderer) muxAudio(ctx context.Context, job *renderJob, videoPath string, audioDuration float64) (string, error) {
	job.progress.report(models.StageMuxAudio, progressMux)

	out := job.ws.Path("final.mp4")
	args := services.MuxArgs(videoPath, job.audioPath, out, audioDuration, r.cfg.AudioBitrate)
	if err := r.runner.Run(ctx, "mux", r.cfg.ConcatTimeout, args); err != nil {
		return "", models.NewRenderError(models.ErrMux, models.StageMuxAudio, err)
	}
	return out, nil
}

// validate re-probes the final file. A file that fails here is discarded even
// though ffmpeg reported success.
func (r *Renderer) validate(ctx context.Context, job *renderJob, finalPath string, audioDuration float64) (float64, error) {
	job.progress.report(models.StageValidate, progressValidate)

	probe, err := r.prober.Probe(ctx, finalPath, r.cfg.ProbeTimeout)
	if err != nil {
		return 0, models.NewRenderError(models.ErrValidation, models.StageValidate, fmt.Errorf("failed to probe artifact: %w", err))
	}
	if err := services.ValidateArtifact(probe, audioDuration); err != nil {
		return 0, models.NewRenderError(models.ErrValidation, models.StageValidate, err)
	}
	job.logf("Validated: %.3fs, %d video / %d audio streams", probe.DurationSeconds, probe.CountStreams("video"), probe.CountStreams("audio"))
	return probe.DurationSeconds, nil
}

var contentTypeExts = map[string]string{
	"image/jpeg":  ".jpg",
	"image/png":   ".png",
	"image/webp":  ".webp",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/mp4":   ".m4a",
	"audio/aac":   ".aac",
}

// mediaExt picks a file extension from the URL path, then the content type.
func mediaExt(rawURL, contentType, fallback string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if ext, ok := contentTypeExts[mediaType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return fallback
}

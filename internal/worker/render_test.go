package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/reelrender/internal/models"
	"github.com/bobarin/reelrender/internal/services"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type runCall struct {
	label string
	args  []string
}

// fakeRunner records invocations and writes the output file (the last arg)
// so later stages find it.
type fakeRunner struct {
	mu    sync.Mutex
	calls []runCall
	fail  map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, label string, timeout time.Duration, args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, runCall{label: label, args: args})
	f.mu.Unlock()

	if err, ok := f.fail[label]; ok {
		return err
	}
	out := args[len(args)-1]
	return os.WriteFile(out, []byte("fake:"+label), 0644)
}

func (f *fakeRunner) labels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var labels []string
	for _, c := range f.calls {
		labels = append(labels, c.label)
	}
	return labels
}

func (f *fakeRunner) call(label string) (runCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.label == label {
			return c, true
		}
	}
	return runCall{}, false
}

// fakeProber returns audio readings in order (repeating the last one) and a
// fixed result for the final artifact.
type fakeProber struct {
	mu         sync.Mutex
	audio      []float64
	audioCalls int
	final      *services.ProbeResult
}

func (f *fakeProber) Probe(ctx context.Context, path string, timeout time.Duration) (*services.ProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "audio"):
		i := f.audioCalls
		if i >= len(f.audio) {
			i = len(f.audio) - 1
		}
		f.audioCalls++
		return &services.ProbeResult{
			DurationSeconds: f.audio[i],
			Streams:         []services.StreamInfo{{CodecType: "audio"}},
		}, nil
	case base == "final.mp4":
		if f.final == nil {
			return nil, errors.New("no final probe configured")
		}
		return f.final, nil
	}
	return nil, fmt.Errorf("unexpected probe of %s", path)
}

type fakeFetcher struct {
	fail map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*services.FetchResult, error) {
	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	return &services.FetchResult{Data: []byte("data:" + url), ContentType: "application/octet-stream"}, nil
}

type noFonts struct{}

func (noFonts) ResolveFont(string) (string, bool) { return "", false }

type progressLog struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (p *progressLog) record(stage models.Stage, percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, models.ProgressEvent{Stage: stage, Progress: percent})
}

func (p *progressLog) check(t *testing.T, lastStage models.Stage) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.events) == 0 {
		t.Fatalf("no progress reported")
	}
	for i := 1; i < len(p.events); i++ {
		if p.events[i].Progress < p.events[i-1].Progress {
			t.Fatalf("progress went backwards: %+v", p.events)
		}
	}
	if got := p.events[len(p.events)-1].Stage; got != lastStage {
		t.Fatalf("last stage = %s, want %s (%+v)", got, lastStage, p.events)
	}
}

func (p *progressLog) sawStage(stage models.Stage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.Stage == stage {
			return true
		}
	}
	return false
}

type harness struct {
	workDir  string
	runner   *fakeRunner
	prober   *fakeProber
	fetcher  *fakeFetcher
	renderer *Renderer
	progress *progressLog
}

func newHarness(t *testing.T, audio []float64, finalDuration float64) *harness {
	t.Helper()
	h := &harness{
		workDir: t.TempDir(),
		runner:  &fakeRunner{fail: map[string]error{}},
		prober: &fakeProber{
			audio: audio,
			final: &services.ProbeResult{
				DurationSeconds: finalDuration,
				Streams:         []services.StreamInfo{{CodecType: "video"}, {CodecType: "audio"}},
			},
		},
		fetcher:  &fakeFetcher{fail: map[string]error{}},
		progress: &progressLog{},
	}
	h.renderer = NewRenderer(RendererConfig{WorkDir: h.workDir}, h.runner, h.prober, h.fetcher, noFonts{})
	return h
}

func (h *harness) render(req *models.RenderRequest) (*models.RenderResult, error) {
	return h.renderer.Render(context.Background(), uuid.New(), req, h.progress.record)
}

func (h *harness) assertCleaned(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.workDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("work dir not cleaned up: %d entries left", len(entries))
	}
}

func request(durations []float64, opts *models.RenderOptions) *models.RenderRequest {
	req := &models.RenderRequest{AudioURL: "https://cdn.example.com/voice.mp3", Options: opts}
	for i, d := range durations {
		text := fmt.Sprintf("Segment %d", i+1)
		req.Segments = append(req.Segments, models.Segment{
			ImageURL:    fmt.Sprintf("https://cdn.example.com/img_%d.jpg", i),
			Duration:    d,
			TextOverlay: &text,
		})
	}
	return req
}

// ---------------------------------------------------------------------------
// Pipeline scenarios
// ---------------------------------------------------------------------------

func TestRenderThreeSegmentsWithFade(t *testing.T) {
	h := newHarness(t, []float64{12.4, 12.4}, 12.4)
	req := request([]float64{3, 4, 3}, &models.RenderOptions{TransitionType: "fade", TransitionDuration: 0.5})

	result, err := h.render(req)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}

	want := []string{"clip_0", "clip_1", "clip_2", "concat_transition", "extend", "mux"}
	if got := h.runner.labels(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("invocations = %v, want %v", got, want)
	}

	transition, _ := h.runner.call("concat_transition")
	graph := strings.Join(transition.args, " ")
	for _, expected := range []string{"offset=2.500", "offset=6.500", "transition=fade", "[x2]", "tpad=stop_mode=clone:stop_duration=1.000[joined]"} {
		if !strings.Contains(graph, expected) {
			t.Fatalf("expected transition args to contain %q\nargs: %s", expected, graph)
		}
	}

	// 12.4s of audio against 10s of segments.
	extend, _ := h.runner.call("extend")
	if !strings.Contains(strings.Join(extend.args, " "), "stop_duration=2.400") {
		t.Fatalf("unexpected extend args: %v", extend.args)
	}

	mux, _ := h.runner.call("mux")
	if !strings.Contains(strings.Join(mux.args, " "), "-t 12.400") {
		t.Fatalf("mux must force the audio duration: %v", mux.args)
	}

	if math.Abs(result.DurationSeconds-12.4) > services.ValidationTolerance {
		t.Fatalf("duration = %v, want 12.4 ± %v", result.DurationSeconds, services.ValidationTolerance)
	}
	if string(result.Video) != "fake:mux" {
		t.Fatalf("unexpected artifact %q", result.Video)
	}
	if h.prober.final.CountStreams("audio") != 1 || h.prober.final.CountStreams("video") != 1 {
		t.Fatalf("artifact must carry one audio and one video stream")
	}

	h.progress.check(t, models.StageComplete)
	h.assertCleaned(t)
}

func TestRenderTransitionMatchingAudioNeedsNoFix(t *testing.T) {
	h := newHarness(t, []float64{10, 10}, 10)
	req := request([]float64{3, 4, 3}, &models.RenderOptions{TransitionType: "fade", TransitionDuration: 0.5})

	if _, err := h.render(req); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	want := []string{"clip_0", "clip_1", "clip_2", "concat_transition", "mux"}
	if got := h.runner.labels(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("invocations = %v, want %v", got, want)
	}
}

func TestRenderSingleSegmentSkipsTransitions(t *testing.T) {
	h := newHarness(t, []float64{5}, 5)
	req := request([]float64{5}, &models.RenderOptions{TransitionType: "dissolve"})

	if _, err := h.render(req); err != nil {
		t.Fatalf("Render error: %v", err)
	}

	want := []string{"clip_0", "concat_single", "mux"}
	if got := h.runner.labels(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("invocations = %v, want %v", got, want)
	}
	single, _ := h.runner.call("concat_single")
	if !strings.Contains(strings.Join(single.args, " "), "-c copy") {
		t.Fatalf("single clip must be stream copied: %v", single.args)
	}
	h.assertCleaned(t)
}

func TestRenderFallsBackToFastConcat(t *testing.T) {
	h := newHarness(t, []float64{10}, 10)
	h.runner.fail["concat_transition"] = &services.ProcessError{Label: "concat_transition", ExitCode: 1}
	req := request([]float64{3, 4, 3}, nil)

	if _, err := h.render(req); err != nil {
		t.Fatalf("Render error: %v", err)
	}

	want := []string{"clip_0", "clip_1", "clip_2", "concat_transition", "concat_fast", "mux"}
	if got := h.runner.labels(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("invocations = %v, want %v", got, want)
	}
	h.progress.check(t, models.StageComplete)
}

func TestRenderFastConcatFailureIsFatal(t *testing.T) {
	h := newHarness(t, []float64{10}, 10)
	h.runner.fail["concat_transition"] = errors.New("xfade failed")
	h.runner.fail["concat_fast"] = errors.New("concat failed")

	_, err := h.render(request([]float64{3, 4, 3}, nil))
	if models.KindOf(err) != models.ErrConcatenation {
		t.Fatalf("expected concatenation error, got %v", err)
	}
	h.progress.check(t, models.StageFailed)
	h.assertCleaned(t)
}

func TestRenderUsesFastPathForNoneAndManyClips(t *testing.T) {
	h := newHarness(t, []float64{9}, 9)
	if _, err := h.render(request([]float64{3, 3, 3}, &models.RenderOptions{TransitionType: "none"})); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if _, ok := h.runner.call("concat_transition"); ok {
		t.Fatalf("transition path used for transition_type=none")
	}

	many := make([]float64, 9)
	for i := range many {
		many[i] = 1
	}
	h = newHarness(t, []float64{9}, 9)
	if _, err := h.render(request(many, nil)); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if _, ok := h.runner.call("concat_transition"); ok {
		t.Fatalf("transition path used above the clip threshold")
	}
	if _, ok := h.runner.call("concat_fast"); !ok {
		t.Fatalf("fast path not used: %v", h.runner.labels())
	}
}

func TestRenderTrimsLongVideo(t *testing.T) {
	h := newHarness(t, []float64{9}, 9)
	req := request([]float64{5, 5}, &models.RenderOptions{TransitionType: "none"})

	if _, err := h.render(req); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	trim, ok := h.runner.call("trim")
	if !ok {
		t.Fatalf("expected a trim, got %v", h.runner.labels())
	}
	if !strings.Contains(strings.Join(trim.args, " "), "-t 9.000 -c copy") {
		t.Fatalf("unexpected trim args: %v", trim.args)
	}
}

func TestRenderFatalLateProbe(t *testing.T) {
	h := newHarness(t, []float64{math.NaN()}, 10)

	_, err := h.render(request([]float64{3, 4, 3}, nil))
	var re *models.RenderError
	if !errors.As(err, &re) {
		t.Fatalf("expected RenderError, got %v", err)
	}
	if re.Kind != models.ErrDurationProbe || re.Stage != models.StageReconcileDuration {
		t.Fatalf("unexpected failure %s at %s", re.Kind, re.Stage)
	}

	// The first probe fell back to an estimate, so clips and the join ran.
	if _, ok := h.runner.call("clip_2"); !ok {
		t.Fatalf("pipeline stopped at the early probe: %v", h.runner.labels())
	}
	if _, ok := h.runner.call("mux"); ok {
		t.Fatalf("mux ran after a failed probe")
	}
	if h.prober.audioCalls != 2 {
		t.Fatalf("audio probed %d times, want 2", h.prober.audioCalls)
	}
	h.progress.check(t, models.StageFailed)
	h.assertCleaned(t)
}

func TestRenderImageFailureAbortsJob(t *testing.T) {
	h := newHarness(t, []float64{10}, 10)
	h.fetcher.fail["https://cdn.example.com/img_1.jpg"] = &services.HTTPError{StatusCode: 404}

	_, err := h.render(request([]float64{3, 4, 3}, nil))
	if models.KindOf(err) != models.ErrRetrieval {
		t.Fatalf("expected retrieval error, got %v", err)
	}
	if len(h.runner.labels()) != 0 {
		t.Fatalf("ffmpeg ran after a failed download: %v", h.runner.labels())
	}
	h.assertCleaned(t)
}

func TestRenderClipFailureIsFatal(t *testing.T) {
	h := newHarness(t, []float64{10}, 10)
	h.runner.fail["clip_1"] = &services.ProcessError{Label: "clip_1", TimedOut: true}

	_, err := h.render(request([]float64{3, 4, 3}, nil))
	if models.KindOf(err) != models.ErrSynthesis {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	var perr *services.ProcessError
	if !errors.As(err, &perr) || !perr.TimedOut {
		t.Fatalf("process error not preserved: %v", err)
	}
	h.assertCleaned(t)
}

func TestRenderValidationFailureDiscardsArtifact(t *testing.T) {
	h := newHarness(t, []float64{10}, 10)
	h.prober.final = &services.ProbeResult{DurationSeconds: 10, Streams: []services.StreamInfo{{CodecType: "video"}}}

	result, err := h.render(request([]float64{3, 4, 3}, nil))
	if models.KindOf(err) != models.ErrValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if result != nil {
		t.Fatalf("artifact returned despite failed validation")
	}
	h.assertCleaned(t)
}

func TestRenderRejectsInvalidInput(t *testing.T) {
	h := newHarness(t, []float64{10}, 10)

	for _, req := range []*models.RenderRequest{
		{AudioURL: "https://cdn.example.com/a.mp3"},
		{Segments: []models.Segment{{ImageURL: "https://cdn.example.com/i.jpg"}}},
		{Segments: []models.Segment{{ImageURL: ""}}, AudioURL: "https://cdn.example.com/a.mp3"},
	} {
		_, err := h.render(req)
		if !models.IsInputError(err) {
			t.Fatalf("expected input validation error, got %v", err)
		}
	}
	if h.prober.audioCalls != 0 || len(h.runner.labels()) != 0 {
		t.Fatalf("work was done for invalid input")
	}
	if h.progress.sawStage(models.StageDownloadImages) {
		t.Fatalf("download started for invalid input")
	}
}

func TestRenderBatchesDownloads(t *testing.T) {
	h := newHarness(t, []float64{7}, 7)
	counting := &countingFetcher{}
	h.renderer = NewRenderer(RendererConfig{WorkDir: h.workDir, DownloadBatchSize: 2}, h.runner, h.prober, counting, noFonts{})

	durations := []float64{1, 1, 1, 1, 1, 1, 1}
	if _, err := h.render(request(durations, &models.RenderOptions{TransitionType: "none"})); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if counting.peak > 2 {
		t.Fatalf("%d downloads ran at once, batch size is 2", counting.peak)
	}
}

type countingFetcher struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (c *countingFetcher) Fetch(ctx context.Context, url string) (*services.FetchResult, error) {
	c.mu.Lock()
	c.current++
	if c.current > c.peak {
		c.peak = c.current
	}
	c.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	c.mu.Lock()
	c.current--
	c.mu.Unlock()
	return &services.FetchResult{Data: []byte("x")}, nil
}

package worker

import (
	"math"
	"testing"

	"github.com/bobarin/reelrender/internal/config"
	"github.com/bobarin/reelrender/internal/filtergraph"
	"github.com/bobarin/reelrender/internal/models"
)

func TestResolveSettingsDefaults(t *testing.T) {
	s := ResolveSettings(nil, RendererConfig{}, []float64{3, 4, 3})

	if s.Width != 1080 || s.Height != 1920 || s.FPS != 30 {
		t.Fatalf("unexpected frame settings: %+v", s)
	}
	if s.TransitionType != filtergraph.DefaultTransition || s.TransitionDuration != 0.5 {
		t.Fatalf("unexpected transition: %s/%v", s.TransitionType, s.TransitionDuration)
	}
	if s.Canvas != models.CanvasPad {
		t.Fatalf("canvas = %s, want pad", s.Canvas)
	}
	if s.EndZoom != filtergraph.DefaultEndZoom {
		t.Fatalf("end zoom = %v", s.EndZoom)
	}
}

func TestResolveSettingsOverrides(t *testing.T) {
	opts := &models.RenderOptions{
		Width:              721,
		Height:             1280,
		FPS:                24,
		TransitionType:     "wipeleft",
		TransitionDuration: 0.25,
		CanvasPolicy:       "crop",
	}
	s := ResolveSettings(opts, RendererConfig{}, []float64{2, 2})

	if s.Width != 722 || s.Height != 1280 || s.FPS != 24 {
		t.Fatalf("unexpected frame settings: %+v", s)
	}
	if s.TransitionType != "wipeleft" || s.TransitionDuration != 0.25 {
		t.Fatalf("unexpected transition: %s/%v", s.TransitionType, s.TransitionDuration)
	}
	if s.Canvas != models.CanvasCrop {
		t.Fatalf("canvas = %s, want crop", s.Canvas)
	}
}

func TestResolveSettingsIgnoresOutOfRange(t *testing.T) {
	opts := &models.RenderOptions{
		Width:              -5,
		Height:             10000,
		FPS:                500,
		TransitionDuration: math.Inf(1),
		CanvasPolicy:       "stretch",
	}
	s := ResolveSettings(opts, RendererConfig{DefaultCanvas: models.CanvasCrop}, []float64{5})

	if s.Width != DefaultWidth || s.Height != DefaultHeight || s.FPS != DefaultFPS {
		t.Fatalf("out-of-range values not replaced: %+v", s)
	}
	if s.TransitionDuration != DefaultTransitionDuration {
		t.Fatalf("transition duration = %v", s.TransitionDuration)
	}
	if s.Canvas != models.CanvasCrop {
		t.Fatalf("unknown policy should keep the configured default, got %s", s.Canvas)
	}
}

func TestResolveSettingsClampsTransitionToShortestClip(t *testing.T) {
	opts := &models.RenderOptions{TransitionDuration: 2}
	s := ResolveSettings(opts, RendererConfig{}, []float64{5, 1.2, 4})

	if math.Abs(s.TransitionDuration-0.6) > 1e-9 {
		t.Fatalf("transition = %v, want 0.6", s.TransitionDuration)
	}
	// A single clip never transitions, so nothing to clamp against.
	s = ResolveSettings(opts, RendererConfig{}, []float64{1})
	if s.TransitionDuration != 2 {
		t.Fatalf("single clip transition = %v, want 2", s.TransitionDuration)
	}
}

func TestProgressTrackerNeverGoesBackwards(t *testing.T) {
	var got []int
	var stages []models.Stage
	tracker := newProgressTracker(func(stage models.Stage, percent int) {
		stages = append(stages, stage)
		got = append(got, percent)
	})

	tracker.report(models.StageInit, 0)
	tracker.report(models.StageDownloadImages, 30)
	tracker.report(models.StageDownloadAudio, 10)
	tracker.report(models.StageMuxAudio, 150)
	tracker.fail()

	want := []int{0, 30, 30, 100, 100}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress = %v, want %v", got, want)
		}
	}
	if stages[len(stages)-1] != models.StageFailed {
		t.Fatalf("last stage = %s, want failed", stages[len(stages)-1])
	}
}

func TestProgressTrackerNilCallback(t *testing.T) {
	tracker := newProgressTracker(nil)
	tracker.report(models.StageInit, 10)
	tracker.fail()
}

func TestSpan(t *testing.T) {
	tests := []struct {
		done, total, want int
	}{
		{0, 4, 40},
		{1, 4, 47},
		{4, 4, 70},
		{0, 0, 70},
	}
	for _, tt := range tests {
		if got := span(40, 70, tt.done, tt.total); got != tt.want {
			t.Errorf("span(40, 70, %d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}

func TestConcatAttempts(t *testing.T) {
	got := concatAttempts(filtergraph.ConcatTransition)
	if len(got) != 2 || got[0] != filtergraph.ConcatTransition || got[1] != filtergraph.ConcatFast {
		t.Fatalf("transition attempts = %v", got)
	}
	if got := concatAttempts(filtergraph.ConcatSingle); len(got) != 1 || got[0] != filtergraph.ConcatSingle {
		t.Fatalf("single attempts = %v", got)
	}
	if got := concatAttempts(filtergraph.ConcatFast); len(got) != 1 || got[0] != filtergraph.ConcatFast {
		t.Fatalf("fast attempts = %v", got)
	}
}

func TestMediaExt(t *testing.T) {
	tests := []struct {
		url, contentType, want string
	}{
		{"https://cdn.example.com/a/photo.PNG?sig=1", "", ".png"},
		{"https://cdn.example.com/a/photo", "image/webp", ".webp"},
		{"https://cdn.example.com/voice", "audio/mpeg; charset=binary", ".mp3"},
		{"https://cdn.example.com/blob", "", ".jpg"},
	}
	for _, tt := range tests {
		if got := mediaExt(tt.url, tt.contentType, ".jpg"); got != tt.want {
			t.Errorf("mediaExt(%q, %q) = %q, want %q", tt.url, tt.contentType, got, tt.want)
		}
	}
}

func TestResolveSettingsUsesConfiguredFrame(t *testing.T) {
	cfg := RendererConfig{Width: 720, Height: 1280, FPS: 25, DefaultCanvas: models.CanvasCrop, EndZoom: 1.3}
	s := ResolveSettings(nil, cfg, []float64{3})

	if s.Width != 720 || s.Height != 1280 || s.FPS != 25 {
		t.Fatalf("configured frame not used: %+v", s)
	}
	if s.Canvas != models.CanvasCrop || s.EndZoom != 1.3 {
		t.Fatalf("configured Ken Burns settings not used: %+v", s)
	}
}

func TestRendererConfigFrom(t *testing.T) {
	cfg := &config.RenderConfig{
		Width:           720,
		Height:          1280,
		FPS:             25,
		KenBurnsCanvas:  "stretch",
		KenBurnsEndZoom: 1.1,
		EncodePreset:    "fast",
		EncodeCRF:       23,
	}
	rc := RendererConfigFrom(cfg)
	if rc.DefaultCanvas != models.CanvasPad {
		t.Fatalf("unknown canvas should fall back to pad, got %s", rc.DefaultCanvas)
	}
	if rc.Width != 720 || rc.FPS != 25 || rc.EndZoom != 1.1 {
		t.Fatalf("settings not carried over: %+v", rc)
	}
	if rc.Encode.Preset != "fast" || rc.Encode.CRF != 23 {
		t.Fatalf("encode settings = %+v", rc.Encode)
	}
}

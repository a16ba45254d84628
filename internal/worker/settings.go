package worker

import (
	"log"
	"math"
	"strings"
	"time"

	"github.com/bobarin/reelrender/internal/filtergraph"
	"github.com/bobarin/reelrender/internal/models"
	"github.com/bobarin/reelrender/internal/services"
)

// Output defaults for a vertical video.
const (
	DefaultWidth              = 1080
	DefaultHeight             = 1920
	DefaultFPS                = 30
	DefaultTransitionDuration = 0.5
	DefaultDownloadBatchSize  = 3

	maxDimension = 4096
	maxFPS       = 60
)

// RendererConfig holds the process-wide render knobs loaded from config.
type RendererConfig struct {
	Width              int
	Height             int
	FPS                int
	WorkDir            string
	DefaultCanvas      models.CanvasPolicy
	EndZoom            float64
	TransitionMaxClips int
	DownloadBatchSize  int
	ClipTimeout        time.Duration
	ConcatTimeout      time.Duration
	ProbeTimeout       time.Duration
	AudioBitrate       string
	Encode             services.EncodeSettings
}

func (c RendererConfig) withDefaults() RendererConfig {
	if c.Width <= 0 || c.Width > maxDimension {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 || c.Height > maxDimension {
		c.Height = DefaultHeight
	}
	if c.FPS <= 0 || c.FPS > maxFPS {
		c.FPS = DefaultFPS
	}
	if _, ok := models.ParseCanvasPolicy(string(c.DefaultCanvas)); !ok {
		c.DefaultCanvas = models.CanvasPad
	}
	if c.EndZoom <= 0 {
		c.EndZoom = filtergraph.DefaultEndZoom
	}
	if c.TransitionMaxClips <= 0 {
		c.TransitionMaxClips = filtergraph.DefaultTransitionMax
	}
	if c.DownloadBatchSize <= 0 {
		c.DownloadBatchSize = DefaultDownloadBatchSize
	}
	if c.ClipTimeout <= 0 {
		c.ClipTimeout = 120 * time.Second
	}
	if c.ConcatTimeout <= 0 {
		c.ConcatTimeout = 600 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 30 * time.Second
	}
	if c.AudioBitrate == "" {
		c.AudioBitrate = services.DefaultAudioBitrate
	}
	return c
}

// RenderSettings is every option of one render, resolved once at job start
// and never changed afterwards.
type RenderSettings struct {
	Width              int                 `json:"width"`
	Height             int                 `json:"height"`
	FPS                int                 `json:"fps"`
	TransitionType     string              `json:"transition_type"` // as requested; "none" disables transitions
	TransitionDuration float64             `json:"transition_duration"`
	Canvas             models.CanvasPolicy `json:"canvas"`
	EndZoom            float64             `json:"end_zoom"`
}

// ResolveSettings applies defaults to the caller's options. Non-positive or
// out-of-range numbers fall back to defaults instead of failing the job. The
// transition is shortened to half the shortest clip so every xfade fits.
func ResolveSettings(opts *models.RenderOptions, cfg RendererConfig, durations []float64) RenderSettings {
	cfg = cfg.withDefaults()
	if opts == nil {
		opts = &models.RenderOptions{}
	}

	s := RenderSettings{
		Width:              even(cfg.Width),
		Height:             even(cfg.Height),
		FPS:                cfg.FPS,
		TransitionType:     filtergraph.DefaultTransition,
		TransitionDuration: DefaultTransitionDuration,
		Canvas:             cfg.DefaultCanvas,
		EndZoom:            cfg.EndZoom,
	}

	if opts.Width > 0 && opts.Width <= maxDimension {
		s.Width = even(opts.Width)
	}
	if opts.Height > 0 && opts.Height <= maxDimension {
		s.Height = even(opts.Height)
	}
	if opts.FPS > 0 && opts.FPS <= maxFPS {
		s.FPS = opts.FPS
	}
	if t := strings.TrimSpace(opts.TransitionType); t != "" {
		s.TransitionType = t
	}
	if opts.TransitionDuration > 0 && !math.IsInf(opts.TransitionDuration, 0) {
		s.TransitionDuration = opts.TransitionDuration
	}
	if opts.CanvasPolicy != "" {
		if policy, ok := models.ParseCanvasPolicy(opts.CanvasPolicy); ok {
			s.Canvas = policy
		} else {
			log.Printf("[Render] Unknown canvas policy %q, using %s", opts.CanvasPolicy, s.Canvas)
		}
	}

	if len(durations) > 1 {
		shortest := durations[0]
		for _, d := range durations[1:] {
			shortest = math.Min(shortest, d)
		}
		if limit := shortest / 2; s.TransitionDuration > limit {
			log.Printf("[Render] Transition %.3fs shortened to %.3fs to fit a %.3fs clip", s.TransitionDuration, limit, shortest)
			s.TransitionDuration = limit
		}
	}
	return s
}

func even(n int) int {
	if n%2 != 0 {
		return n + 1
	}
	return n
}

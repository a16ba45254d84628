package worker

import (
	"log"

	"github.com/bobarin/reelrender/internal/config"
	"github.com/bobarin/reelrender/internal/models"
	"github.com/bobarin/reelrender/internal/retry"
	"github.com/bobarin/reelrender/internal/services"
)

// NewRendererFromConfig builds a Renderer backed by the local ffmpeg and
// ffprobe binaries.
func NewRendererFromConfig(cfg *config.RenderConfig) *Renderer {
	ffmpeg := services.NewFFmpegService(services.FFmpegOptions{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Threads:     cfg.FFmpegThreads,
	})
	fetcher := services.NewFetcher(retry.Default, cfg.MaxDownloadBytes)
	fonts := services.NewFontResolver(cfg.FontDir)

	return NewRenderer(RendererConfigFrom(cfg), ffmpeg, ffmpeg, fetcher, fonts)
}

// RendererConfigFrom maps loaded settings onto the renderer's knobs.
func RendererConfigFrom(cfg *config.RenderConfig) RendererConfig {
	canvas, ok := models.ParseCanvasPolicy(cfg.KenBurnsCanvas)
	if !ok {
		log.Printf("[Render] Unknown canvas policy %q, using pad", cfg.KenBurnsCanvas)
		canvas = models.CanvasPad
	}

	return RendererConfig{
		Width:              cfg.Width,
		Height:             cfg.Height,
		FPS:                cfg.FPS,
		WorkDir:            cfg.WorkDir,
		DefaultCanvas:      canvas,
		EndZoom:            cfg.KenBurnsEndZoom,
		TransitionMaxClips: cfg.TransitionMaxClips,
		DownloadBatchSize:  cfg.DownloadBatchSize,
		ClipTimeout:        cfg.ClipTimeout,
		ConcatTimeout:      cfg.ConcatTimeout,
		ProbeTimeout:       cfg.ProbeTimeout,
		AudioBitrate:       cfg.AudioBitrate,
		Encode: services.EncodeSettings{
			Preset: cfg.EncodePreset,
			CRF:    cfg.EncodeCRF,
		},
	}
}

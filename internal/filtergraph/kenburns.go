package filtergraph

import (
	"fmt"
	"math"

	"github.com/bobarin/reelrender/internal/models"
)

const (
	DefaultStartZoom   = 1.0
	DefaultEndZoom     = 1.15
	DefaultScaleFactor = 1.2
	DefaultPadColor    = "black"

	minEndZoom = 1.0
	maxEndZoom = 1.5
)

// KenBurns describes a slow centered zoom over a still image.
//
// The image is first fitted to a canvas ScaleFactor times the output size.
// Canvas selects how: CanvasPad keeps the whole image and fills the rest with
// PadColor, CanvasCrop fills the canvas and crops the overflow. A WidthxHeight
// window then zooms from StartZoom to EndZoom across the clip.
type KenBurns struct {
	Width       int
	Height      int
	FPS         int
	Duration    float64
	StartZoom   float64
	EndZoom     float64
	ScaleFactor float64
	Canvas      models.CanvasPolicy
	PadColor    string
}

// Frames is the number of output frames for the clip, at least one.
func (k KenBurns) Frames() int {
	frames := int(math.Round(k.Duration * float64(k.FPS)))
	if frames < 1 {
		frames = 1
	}
	return frames
}

// ZoomIncrement is the per-frame zoom step.
func (k KenBurns) ZoomIncrement() float64 {
	return (k.normalized().EndZoom - k.normalized().StartZoom) / float64(k.Frames())
}

// CanvasSize is the even-sized canvas the image is fitted to before zooming.
func (k KenBurns) CanvasSize() (int, int) {
	scale := k.normalized().ScaleFactor
	return evenRound(float64(k.Width) * scale), evenRound(float64(k.Height) * scale)
}

func (k KenBurns) normalized() KenBurns {
	if k.StartZoom <= 0 {
		k.StartZoom = DefaultStartZoom
	}
	if k.EndZoom <= 0 {
		k.EndZoom = DefaultEndZoom
	}
	k.EndZoom = math.Max(minEndZoom, math.Min(maxEndZoom, k.EndZoom))
	if k.ScaleFactor < 1 {
		k.ScaleFactor = DefaultScaleFactor
	}
	if k.PadColor == "" {
		k.PadColor = DefaultPadColor
	}
	return k
}

// BuildKenBurns appends the fit, zoom and pixel-format filters for one clip.
func BuildKenBurns(c Chain, k KenBurns) (Chain, error) {
	if k.Width <= 0 || k.Height <= 0 {
		return c, fmt.Errorf("invalid output size %dx%d", k.Width, k.Height)
	}
	if k.FPS <= 0 {
		return c, fmt.Errorf("invalid fps %d", k.FPS)
	}
	if k.Duration <= 0 {
		return c, fmt.Errorf("invalid clip duration %.3f", k.Duration)
	}
	k = k.normalized()

	c, err := FitCanvas(c, k.Canvas, k.Width, k.Height, k.ScaleFactor, k.PadColor)
	if err != nil {
		return c, err
	}

	frames := k.Frames()
	zoom := fmt.Sprintf("%s+%s*on/%d", Num(k.StartZoom), Num(k.EndZoom-k.StartZoom), frames)

	c = c.Then("zoompan",
		Expr("z", zoom),
		Expr("x", "iw/2-(iw/zoom/2)"),
		Expr("y", "ih/2-(ih/zoom/2)"),
		Int("d", frames),
		Str("s", fmt.Sprintf("%dx%d", k.Width, k.Height)),
		Int("fps", k.FPS),
	)
	c = c.Then("setsar", Str("", "1"))
	c = c.Then("format", Str("pix_fmts", "yuv420p"))
	return c, nil
}

// FitCanvas scales the input into a canvas of scale times width x height
// using the given policy. A scale of 1 fits the output frame exactly.
func FitCanvas(c Chain, policy models.CanvasPolicy, width, height int, scale float64, padColor string) (Chain, error) {
	cw, ch := evenRound(float64(width)*scale), evenRound(float64(height)*scale)
	if padColor == "" {
		padColor = DefaultPadColor
	}

	switch policy {
	case models.CanvasPad:
		c = c.Then("scale",
			Int("w", cw),
			Int("h", ch),
			Str("force_original_aspect_ratio", "decrease"),
			Str("flags", "lanczos"),
		)
		c = c.Then("pad",
			Int("w", cw),
			Int("h", ch),
			Str("x", "(ow-iw)/2"),
			Str("y", "(oh-ih)/2"),
			Str("color", padColor),
		)
	case models.CanvasCrop:
		c = c.Then("scale",
			Int("w", cw),
			Int("h", ch),
			Str("force_original_aspect_ratio", "increase"),
			Str("flags", "lanczos"),
		)
		c = c.Then("crop", Int("w", cw), Int("h", ch))
	default:
		return c, fmt.Errorf("unknown canvas policy %q", policy)
	}
	return c, nil
}

func evenRound(v float64) int {
	n := int(math.Round(v))
	if n%2 != 0 {
		n++
	}
	return n
}

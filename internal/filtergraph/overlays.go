package filtergraph

import (
	"fmt"
	"math"

	"github.com/bobarin/reelrender/internal/models"
)

const (
	gradientBands      = 8
	gradientCoverage   = 0.38
	gradientMaxOpacity = 0.75

	boldSlideDistance = 0.04 // fraction of frame height
	boldFadeIn        = 0.4

	dotGlyph    = "●"
	circleGlyph = "○"

	defaultPulses = 3
)

// BoldTextSpec is emphasized text over a darkened bottom band.
type BoldTextSpec struct {
	Text         string
	ClipDuration float64
	Timing       *models.TextTiming
	FontPath     string
	Width        int
	Height       int
}

// BoldText darkens the bottom of the frame with stacked translucent bands and
// draws the wrapped text inside it. Each line fades in and slides up into
// place, staggered slightly after the line above.
func BoldText(c Chain, spec BoldTextSpec) Chain {
	c = gradientBottom(c, spec.Width, spec.Height, spec.ClipDuration)

	style := StyleFor(models.SegmentTypeCTA, spec.Height)
	style.FontSize = int(math.Round(float64(style.FontSize) * 1.1))
	lines := WrapText(spec.Text, style.MaxChars)
	if len(lines) == 0 {
		return c
	}

	start, end := TextWindow(spec.ClipDuration, spec.Timing)
	window := end - start
	fadeIn := math.Min(boldFadeIn, window/4)
	fadeOut := math.Min(defaultTextFade, window/4)
	stagger := math.Min(0.12, window/float64(4*len(lines)))

	lineHeight := style.LineHeight()
	top := int(math.Round(style.Band*float64(spec.Height))) - lineHeight*len(lines)
	slide := boldSlideDistance * float64(spec.Height)

	for i, line := range lines {
		if line == "" {
			continue
		}
		lineStart := start + stagger*float64(i)
		y := float64(top + i*lineHeight)

		params := []Param{Text("text", line)}
		if spec.FontPath != "" {
			params = append(params, Path("fontfile", spec.FontPath))
		}
		params = append(params,
			Int("fontsize", style.FontSize),
			Str("fontcolor", "white"),
			Int("borderw", style.BorderWidth+1),
			Str("bordercolor", "black"),
			Str("shadowcolor", "black@0.6"),
			Int("shadowx", 0),
			Int("shadowy", style.BorderWidth),
			Expr("x", "(w-text_w)/2"),
			Expr("y", SlidePosition(y, slide, lineStart, lineStart+fadeIn)),
			Expr("alpha", FadeAlpha(lineStart, lineStart+fadeIn, end-fadeOut, end)),
			Expr("enable", Between(start, end)),
			Str("expansion", "none"),
		)
		c = c.Then("drawtext", params...)
	}
	return c
}

// gradientBottom stacks bands of rising opacity over the bottom of the frame.
func gradientBottom(c Chain, width, height int, duration float64) Chain {
	bandTop := float64(height) * (1 - gradientCoverage)
	bandHeight := int(math.Ceil(float64(height) * gradientCoverage / gradientBands))
	for i := 0; i < gradientBands; i++ {
		opacity := gradientMaxOpacity * float64(i+1) / gradientBands
		c = c.Then("drawbox",
			Int("x", 0),
			Int("y", int(math.Round(bandTop))+i*bandHeight),
			Int("w", width),
			Int("h", bandHeight),
			Str("color", fmt.Sprintf("black@%s", Num(opacity))),
			Str("t", "fill"),
			Expr("enable", Between(0, duration)),
		)
	}
	return c
}

// Indicator is a pulsing marker centered on (X, Y), visible for
// [Start, Start+Duration] and pulsing Pulses times in that window.
type Indicator struct {
	X, Y     int
	Size     int
	Start    float64
	Duration float64
	Pulses   int
	Color    string
}

func (in Indicator) window(clipDuration float64) (float64, float64) {
	return TextWindow(clipDuration, &models.TextTiming{Start: in.Start, Duration: in.Duration})
}

func (in Indicator) color() string {
	if in.Color == "" {
		return "white"
	}
	return in.Color
}

func (in Indicator) pulses() int {
	if in.Pulses < 1 {
		return defaultPulses
	}
	return in.Pulses
}

// PulsingDot draws a filled dot whose opacity pulses.
func PulsingDot(c Chain, in Indicator, clipDuration float64) Chain {
	return pulsingGlyph(c, dotGlyph, in, clipDuration)
}

// PulsingCircle draws a ring whose opacity pulses.
func PulsingCircle(c Chain, in Indicator, clipDuration float64) Chain {
	return pulsingGlyph(c, circleGlyph, in, clipDuration)
}

func pulsingGlyph(c Chain, glyph string, in Indicator, clipDuration float64) Chain {
	start, end := in.window(clipDuration)
	period := PulsePeriod(end-start, in.pulses())
	size := in.Size
	if size <= 0 {
		size = 48
	}
	return c.Then("drawtext",
		Text("text", glyph),
		Int("fontsize", size),
		Str("fontcolor", in.color()),
		Expr("x", fmt.Sprintf("%d-text_w/2", in.X)),
		Expr("y", fmt.Sprintf("%d-text_h/2", in.Y)),
		Expr("alpha", Pulse(period, start, end, 0.25, 1)),
		Expr("enable", Between(start, end)),
		Str("expansion", "none"),
	)
}

// CornerMarks draws four L-shaped brackets around a Size x Size square
// centered on (X, Y). The marks blink once per pulse period.
func CornerMarks(c Chain, in Indicator, clipDuration float64) Chain {
	start, end := in.window(clipDuration)
	period := PulsePeriod(end-start, in.pulses())
	size := in.Size
	if size <= 0 {
		size = 160
	}
	arm := maxInt(8, size/4)
	thick := maxInt(2, size/40)
	half := size / 2
	left, top := in.X-half, in.Y-half
	right, bottom := in.X+half-thick, in.Y+half-thick

	enable := fmt.Sprintf("%s*lt(mod(t-%s,%s),%s)", Between(start, end), Num(start), Num(period), Num(period/2))

	// x, y, w, h: a horizontal and a vertical arm per corner, clockwise from top left.
	boxes := [][4]int{
		{left, top, arm, thick}, {left, top, thick, arm},
		{right - arm + thick, top, arm, thick}, {right, top, thick, arm},
		{right - arm + thick, bottom, arm, thick}, {right, bottom - arm + thick, thick, arm},
		{left, bottom, arm, thick}, {left, bottom - arm + thick, thick, arm},
	}
	for _, b := range boxes {
		c = c.Then("drawbox",
			Int("x", b[0]),
			Int("y", b[1]),
			Int("w", b[2]),
			Int("h", b[3]),
			Str("color", in.color()),
			Str("t", "fill"),
			Expr("enable", enable),
		)
	}
	return c
}

// BuildHighlight dispatches a segment highlight to its marker. The highlight
// center is given as fractions of the width x height frame.
func BuildHighlight(c Chain, h models.Highlight, width, height int, clipDuration float64) Chain {
	in := Indicator{
		X:        int(math.Round(clamp01(h.X) * float64(width))),
		Y:        int(math.Round(clamp01(h.Y) * float64(height))),
		Size:     h.Size,
		Start:    h.Start,
		Duration: h.Duration,
		Pulses:   h.Pulses,
	}
	switch h.Kind {
	case models.HighlightCircle:
		return PulsingCircle(c, in, clipDuration)
	case models.HighlightCorners:
		return CornerMarks(c, in, clipDuration)
	default:
		return PulsingDot(c, in, clipDuration)
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

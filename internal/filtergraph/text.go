package filtergraph

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/bobarin/reelrender/internal/models"
)

// referenceHeight is the frame height the style table is tuned for.
const referenceHeight = 1920

const (
	defaultTextFade = 0.3
	lineHeightRatio = 1.25
)

type textAnchor int

const (
	anchorTop textAnchor = iota
	anchorBottom
)

// TextStyle is the font size, wrap width and vertical band for one segment type.
type TextStyle struct {
	FontSize    int
	BorderWidth int
	MaxChars    int
	Band        float64 // fraction of frame height
	anchor      textAnchor
}

var textStyles = map[models.SegmentType]TextStyle{
	models.SegmentTypeOpener:  {FontSize: 88, BorderWidth: 5, MaxChars: 16, Band: 0.12, anchor: anchorTop},
	models.SegmentTypeFeature: {FontSize: 64, BorderWidth: 4, MaxChars: 22, Band: 0.28, anchor: anchorTop},
	models.SegmentTypeCTA:     {FontSize: 76, BorderWidth: 5, MaxChars: 18, Band: 0.82, anchor: anchorBottom},
}

// StyleFor returns the text style for a segment type scaled to the frame height.
func StyleFor(t models.SegmentType, height int) TextStyle {
	style := textStyles[t.Normalize()]
	if height > 0 && height != referenceHeight {
		ratio := float64(height) / referenceHeight
		style.FontSize = maxInt(12, int(math.Round(float64(style.FontSize)*ratio)))
		style.BorderWidth = maxInt(1, int(math.Round(float64(style.BorderWidth)*ratio)))
	}
	return style
}

// LineHeight is the vertical distance between wrapped lines.
func (s TextStyle) LineHeight() int {
	return int(math.Round(float64(s.FontSize) * lineHeightRatio))
}

// WrapText greedily wraps text at word boundaries so no line is longer than
// maxChars runes, unless a single word is longer on its own. Explicit line
// breaks are kept and each original line is wrapped independently.
func WrapText(text string, maxChars int) []string {
	if maxChars < 1 {
		maxChars = 1
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		words := strings.Fields(raw)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			if utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= maxChars {
				current += " " + word
				continue
			}
			lines = append(lines, current)
			current = word
		}
		lines = append(lines, current)
	}

	// Blank lines only matter between text.
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// TextWindow resolves when overlay text is visible within a clip. Without
// timing the text spans the whole clip. A narrowed window is clamped to the
// clip; a window that ends up empty falls back to the whole clip.
func TextWindow(clipDuration float64, timing *models.TextTiming) (float64, float64) {
	if timing == nil {
		return 0, clipDuration
	}
	start := math.Max(0, timing.Start)
	end := clipDuration
	if timing.Duration > 0 {
		end = math.Min(clipDuration, timing.Start+timing.Duration)
	}
	if start >= clipDuration || end-start < minWindow {
		return 0, clipDuration
	}
	return start, end
}

// TextOverlay is static, per-line centered text for one clip.
type TextOverlay struct {
	Text         string
	Type         models.SegmentType
	ClipDuration float64
	Timing       *models.TextTiming
	FontPath     string // empty uses ffmpeg's default font
	Height       int
}

// BuildTextOverlay appends one drawtext per wrapped line. Lines are centered
// horizontally on their rendered width and stacked in the type's band.
func BuildTextOverlay(c Chain, o TextOverlay) Chain {
	style := StyleFor(o.Type, o.Height)
	lines := WrapText(o.Text, style.MaxChars)
	if len(lines) == 0 {
		return c
	}

	start, end := TextWindow(o.ClipDuration, o.Timing)
	fade := math.Min(defaultTextFade, (end-start)/4)
	alpha := FadeAlpha(start, start+fade, end-fade, end)

	lineHeight := style.LineHeight()
	top := int(math.Round(style.Band * float64(o.Height)))
	if style.anchor == anchorBottom {
		top -= lineHeight * len(lines)
	}

	for i, line := range lines {
		if line == "" {
			continue
		}
		params := []Param{Text("text", line)}
		if o.FontPath != "" {
			params = append(params, Path("fontfile", o.FontPath))
		}
		params = append(params,
			Int("fontsize", style.FontSize),
			Str("fontcolor", "white"),
			Int("borderw", style.BorderWidth),
			Str("bordercolor", "black@0.85"),
			Expr("x", "(w-text_w)/2"),
			Int("y", top+i*lineHeight),
			Expr("alpha", alpha),
			Expr("enable", Between(start, end)),
			Str("expansion", "none"),
		)
		c = c.Then("drawtext", params...)
	}
	return c
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

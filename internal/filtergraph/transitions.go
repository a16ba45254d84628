package filtergraph

import (
	"fmt"
	"strings"

	"github.com/bobarin/reelrender/internal/models"
)

const (
	DefaultTransition    = "fade"
	TransitionNone       = "none"
	DefaultTransitionMax = 8
)

var transitionNames = map[string]string{
	"fade":       "fade",
	"crossfade":  "fade",
	"dissolve":   "dissolve",
	"fadeblack":  "fadeblack",
	"fadewhite":  "fadewhite",
	"wipe":       "wipeleft",
	"wipeleft":   "wipeleft",
	"wiperight":  "wiperight",
	"wipeup":     "wipeup",
	"wipedown":   "wipedown",
	"zoom":       "zoomin",
	"zoomin":     "zoomin",
	"slide":      "slideleft",
	"slideleft":  "slideleft",
	"slideright": "slideright",
	"slideup":    "slideup",
	"slidedown":  "slidedown",
}

// ResolveTransition maps a transition name to an xfade transition. Case,
// dashes and underscores are ignored ("slide-up" is "slideup"). Unknown names
// resolve to fade.
func ResolveTransition(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	if xfade, ok := transitionNames[key]; ok {
		return xfade
	}
	return DefaultTransition
}

// IsNoTransition reports whether name disables transitions.
func IsNoTransition(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), TransitionNone)
}

// TransitionOffsets returns the start time of each of the len(durations)-1
// transitions. Transition i begins at the summed duration of clips 0..i-1
// minus the transition duration.
func TransitionOffsets(durations []float64, transition float64) []float64 {
	if len(durations) < 2 {
		return nil
	}
	offsets := make([]float64, 0, len(durations)-1)
	cumulative := 0.0
	for i := 1; i < len(durations); i++ {
		cumulative += durations[i-1]
		offsets = append(offsets, cumulative-transition)
	}
	return offsets
}

// ConcatMode is how clips are joined.
type ConcatMode string

const (
	ConcatSingle     ConcatMode = "single"
	ConcatFast       ConcatMode = "fast"
	ConcatTransition ConcatMode = "transition"
)

// ChooseConcat picks the join strategy for n clips. A single clip needs no
// join, "none" or more than threshold clips use the stream-copy manifest, and
// anything else gets an xfade chain.
func ChooseConcat(n int, transitionType string, threshold int) ConcatMode {
	if threshold <= 0 {
		threshold = DefaultTransitionMax
	}
	switch {
	case n <= 1:
		return ConcatSingle
	case IsNoTransition(transitionType), n > threshold:
		return ConcatFast
	default:
		return ConcatTransition
	}
}

// TransitionSpec is the shared frame and effect settings of a transition chain.
type TransitionSpec struct {
	Width    int
	Height   int
	FPS      int
	Type     string
	Duration float64
	Canvas   models.CanvasPolicy
	PadColor string
}

// BuildTransitionGraph compiles the -filter_complex for joining clips with
// xfade. Input i is normalized to [vi] with the same canvas policy, then the
// pads are folded left: [v0][v1] -> [x1], [x1][v2] -> [x2] and so on, and
// the last frame is held so the output runs the full clip total. The returned
// chain's Last is the pad to map.
func BuildTransitionGraph(durations []float64, spec TransitionSpec) (Chain, error) {
	if len(durations) < 2 {
		return Chain{}, fmt.Errorf("transition graph needs at least 2 clips, got %d", len(durations))
	}
	if spec.Duration <= 0 {
		return Chain{}, fmt.Errorf("invalid transition duration %.3f", spec.Duration)
	}
	for i, d := range durations {
		if d <= spec.Duration {
			return Chain{}, fmt.Errorf("clip %d is %.3fs, not longer than the %.3fs transition", i, d, spec.Duration)
		}
	}

	var graph Chain
	for i := range durations {
		c := From(fmt.Sprintf("%d:v", i))
		c, err := FitCanvas(c, spec.Canvas, spec.Width, spec.Height, 1, spec.PadColor)
		if err != nil {
			return Chain{}, err
		}
		c = c.Then("setsar", Str("", "1"))
		c = c.Then("fps", Int("", spec.FPS))
		c = c.Then("format", Str("pix_fmts", "yuv420p"))
		graph = graph.Append(c.Label(fmt.Sprintf("v%d", i)))
	}

	xfade := ResolveTransition(spec.Type)
	prev := "v0"
	for i, offset := range TransitionOffsets(durations, spec.Duration) {
		out := fmt.Sprintf("x%d", i+1)
		graph = graph.Merge("xfade", []string{prev, fmt.Sprintf("v%d", i+1)}, out,
			Str("transition", xfade),
			Float("duration", spec.Duration),
			Float("offset", offset),
		)
		prev = out
	}

	// Each join overlaps two clips. Holding the last frame for the overlap
	// keeps the joined video as long as the clips it was built from.
	total := TransitionOutputDuration(durations, 0)
	graph = graph.Merge("tpad", []string{prev}, "joined",
		Str("stop_mode", "clone"),
		Float("stop_duration", total-TransitionOutputDuration(durations, spec.Duration)),
	)

	if err := graph.Validate(); err != nil {
		return Chain{}, fmt.Errorf("failed to compile transition graph: %w", err)
	}
	return graph, nil
}

// TransitionOutputDuration is the length of an xfade chain before the final
// hold: the clip sum less one transition per join.
func TransitionOutputDuration(durations []float64, transition float64) float64 {
	total := 0.0
	for _, d := range durations {
		total += d
	}
	if len(durations) > 1 {
		total -= transition * float64(len(durations)-1)
	}
	return total
}

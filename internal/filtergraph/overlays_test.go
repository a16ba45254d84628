package filtergraph

import (
	"strings"
	"testing"

	"github.com/bobarin/reelrender/internal/models"
)

func TestBoldText(t *testing.T) {
	c := BoldText(From(""), BoldTextSpec{
		Text:         "Limited time offer",
		ClipDuration: 3,
		Width:        1080,
		Height:       1920,
	})
	graph := c.String()

	if n := strings.Count(graph, "drawbox="); n != gradientBands {
		t.Fatalf("expected %d gradient bands, got %d\ngraph: %s", gradientBands, n, graph)
	}
	for _, expected := range []string{
		"color=black@0.094",
		"color=black@0.750",
		"t=fill",
		"drawtext=text='Limited time offer'",
		"y='if(lt(t,0.000),",
		"alpha='if(lt(t,0.000),0,if(lt(t,0.400)",
	} {
		if !strings.Contains(graph, expected) {
			t.Fatalf("expected graph to contain %q\ngraph: %s", expected, graph)
		}
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestPulsingDot(t *testing.T) {
	c := PulsingDot(From(""), Indicator{X: 540, Y: 960, Start: 1, Duration: 2, Pulses: 2}, 4)
	graph := c.String()

	for _, expected := range []string{
		"drawtext=text='●'",
		"x='540-text_w/2'",
		"y='960-text_h/2'",
		"alpha='if(between(t,1.000,3.000),0.250+0.750*abs(sin(PI*(t-1.000)/1.000)),0)'",
		"enable='between(t,1.000,3.000)'",
	} {
		if !strings.Contains(graph, expected) {
			t.Fatalf("expected graph to contain %q\ngraph: %s", expected, graph)
		}
	}
}

func TestCornerMarks(t *testing.T) {
	c := CornerMarks(From(""), Indicator{X: 500, Y: 500, Size: 200, Pulses: 4}, 2)
	if c.Len() != 8 {
		t.Fatalf("expected 8 drawbox pieces, got %d", c.Len())
	}
	graph := c.String()
	if !strings.Contains(graph, "enable='between(t,0.000,2.000)*lt(mod(t-0.000,0.500),0.250)'") {
		t.Fatalf("unexpected blink expression\ngraph: %s", graph)
	}
	if !strings.Contains(graph, "x=400:y=400:w=50:h=5") {
		t.Fatalf("missing top-left arm\ngraph: %s", graph)
	}
}

func TestBuildHighlightDispatch(t *testing.T) {
	tests := []struct {
		kind models.HighlightKind
		want string
	}{
		{models.HighlightDot, "text='●'"},
		{models.HighlightCircle, "text='○'"},
		{models.HighlightCorners, "drawbox="},
		{"", "text='●'"},
	}
	for _, tt := range tests {
		h := models.Highlight{Kind: tt.kind, X: 0.5, Y: 0.25}
		graph := BuildHighlight(From(""), h, 1080, 1920, 3).String()
		if !strings.Contains(graph, tt.want) {
			t.Errorf("highlight %q: expected %q in %s", tt.kind, tt.want, graph)
		}
	}

	graph := BuildHighlight(From(""), models.Highlight{Kind: models.HighlightDot, X: 0.5, Y: 0.25}, 1080, 1920, 3).String()
	if !strings.Contains(graph, "x='540-text_w/2'") || !strings.Contains(graph, "y='480-text_h/2'") {
		t.Fatalf("highlight position not scaled to the frame: %s", graph)
	}
}

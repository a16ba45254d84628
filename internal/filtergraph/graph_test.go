package filtergraph

import (
	"strings"
	"testing"
)

func TestChainLinearString(t *testing.T) {
	c := From("").
		Then("scale", Int("w", 1080), Int("h", 1920)).
		Then("setsar", Str("", "1")).
		Then("format", Str("pix_fmts", "yuv420p"))

	want := "scale=w=1080:h=1920,setsar=1,format=pix_fmts=yuv420p"
	if got := c.String(); got != want {
		t.Fatalf("unexpected chain\n got: %s\nwant: %s", got, want)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestChainLabelsAndMerge(t *testing.T) {
	a := From("0:v").Then("null").Label("a")
	b := From("1:v").Then("null").Label("b")
	g := a.Append(b).Merge("xfade", []string{"a", "b"}, "out", Str("transition", "fade"))

	want := "[0:v]null[a];[1:v]null[b];[a][b]xfade=transition=fade[out]"
	if got := g.String(); got != want {
		t.Fatalf("unexpected graph\n got: %s\nwant: %s", got, want)
	}
	if g.Last != "out" {
		t.Fatalf("expected last pad out, got %q", g.Last)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestChainIsImmutable(t *testing.T) {
	base := From("").Then("null")
	left := base.Then("hflip")
	right := base.Then("vflip")

	if base.Len() != 1 {
		t.Fatalf("base chain was modified: %s", base)
	}
	if !strings.HasSuffix(left.String(), "hflip") || !strings.HasSuffix(right.String(), "vflip") {
		t.Fatalf("branches interfered: %s / %s", left, right)
	}
}

func TestValidateRejectsBadWiring(t *testing.T) {
	tests := []struct {
		name  string
		chain Chain
	}{
		{
			name:  "unknown input",
			chain: From("").Merge("overlay", []string{"missing", "0:v"}, "o"),
		},
		{
			name:  "duplicate output",
			chain: From("0:v").Then("null").Label("a").Append(From("1:v").Then("null").Label("a")),
		},
		{
			name: "pad read twice",
			chain: From("0:v").Then("null").Label("a").
				Merge("null", []string{"a"}, "b").
				Merge("null", []string{"a"}, "c"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.chain.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tt.chain)
			}
		})
	}
}

func TestNumUsesThreeDecimals(t *testing.T) {
	cases := map[float64]string{
		0:        "0.000",
		1:        "1.000",
		2.5:      "2.500",
		1.0 / 3:  "0.333",
		-0.0001:  "0.000",
		-1.25:    "-1.250",
		12.34567: "12.346",
	}
	for in, want := range cases {
		if got := Num(in); got != want {
			t.Errorf("Num(%v) = %q, want %q", in, got, want)
		}
	}
}

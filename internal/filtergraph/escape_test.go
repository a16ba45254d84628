package filtergraph

import (
	"strings"
	"testing"

	"github.com/bobarin/reelrender/internal/models"
)

const blanks = " \n\t\r"

// readToken reads one token the way libavutil's av_get_token does: leading
// blanks are skipped, a backslash takes the next byte literally, single quotes
// group literally, and unescaped trailing blanks are dropped. It stops at the
// first unquoted byte from term.
func readToken(buf, term string) (tok, rest string) {
	p := strings.TrimLeft(buf, blanks)
	var out []byte
	end := 0
	for len(p) > 0 && strings.IndexByte(term, p[0]) < 0 {
		c := p[0]
		p = p[1:]
		switch {
		case c == '\\' && len(p) > 0:
			out = append(out, p[0])
			p = p[1:]
			end = len(out)
		case c == '\'':
			i := strings.IndexByte(p, '\'')
			if i < 0 {
				out = append(out, p...)
				p = ""
				break
			}
			out = append(out, p[:i]...)
			p = p[i+1:]
			end = len(out)
		default:
			out = append(out, c)
		}
	}
	for len(out) > end && strings.IndexByte(blanks, out[len(out)-1]) >= 0 {
		out = out[:len(out)-1]
	}
	return string(out), p
}

type parsedFilter struct {
	name string
	opts map[string]string
}

// parseGraph splits a filter graph the way ffmpeg does: the graph parser
// tokenizes each filter's arguments, then the option parser splits them into
// key=value pairs on ':'.
func parseGraph(t *testing.T, graph string) []parsedFilter {
	t.Helper()
	var filters []parsedFilter
	rest := graph
	for {
		rest = skipPads(rest)
		name, r := readToken(rest, "=,;[")
		rest = r
		f := parsedFilter{name: name, opts: map[string]string{}}
		if strings.HasPrefix(rest, "=") {
			var args string
			args, rest = readToken(rest[1:], "[],;")
			f.opts = parseOptions(t, name, args)
		}
		filters = append(filters, f)

		rest = strings.TrimLeft(skipPads(rest), blanks)
		if rest == "" {
			return filters
		}
		if rest[0] != ',' && rest[0] != ';' {
			t.Fatalf("%s: expected ',' or ';' near %q", name, rest)
		}
		rest = rest[1:]
	}
}

func skipPads(s string) string {
	for {
		s = strings.TrimLeft(s, blanks)
		if !strings.HasPrefix(s, "[") {
			return s
		}
		i := strings.IndexByte(s, ']')
		if i < 0 {
			return s
		}
		s = s[i+1:]
	}
}

func parseOptions(t *testing.T, filter, args string) map[string]string {
	t.Helper()
	opts := map[string]string{}
	named := false
	for n := 0; args != ""; n++ {
		a := strings.TrimLeft(args, blanks)
		i := 0
		for i < len(a) && isKeyChar(a[i]) {
			i++
		}
		key := a[:i]
		after := strings.TrimLeft(a[i:], blanks)

		var val string
		switch {
		case key != "" && strings.HasPrefix(after, "="):
			named = true
			val, args = readToken(after[1:], ":")
		case !named:
			key = "#" + string(rune('0'+n))
			val, args = readToken(a, ":")
		default:
			t.Fatalf("%s: no option name near %q", filter, args)
		}
		if _, dup := opts[key]; dup {
			t.Fatalf("%s: option %s set twice", filter, key)
		}
		opts[key] = val
		if args != "" {
			args = args[1:]
		}
	}
	return opts
}

func isKeyChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c == '/' || c == '.'
}

func TestEscapeTextRoundTrip(t *testing.T) {
	inputs := []string{
		"plain",
		"Save 20: today",
		"Don't miss it",
		`C:\path\to`,
		"Don't stop, believin'",
		`say "hi" [now] {ok}`,
		"a,b;c",
		"line one\nline two",
		`tricky \n literal`,
		`\:'"[]{},;`,
		"50% off: today only!",
		" padded ",
		" ",
		"''",
	}
	for _, in := range inputs {
		graph := "drawtext=text=" + EscapeText(in) + ":fontsize=10:expansion=none"
		filters := parseGraph(t, graph)
		if len(filters) != 1 || filters[0].name != "drawtext" {
			t.Fatalf("graph %q parsed into %+v", graph, filters)
		}
		opts := filters[0].opts
		if opts["text"] != in {
			t.Errorf("text %q arrived as %q (graph %q)", in, opts["text"], graph)
		}
		if opts["fontsize"] != "10" || opts["expansion"] != "none" {
			t.Errorf("options after text %q were lost: %v", in, opts)
		}
	}
}

func TestEscapeTextQuoting(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`a\:b`, `'a\\\:b'`},
		{"Don't", `'Don\'\''t'`},
		{"Save 20: today", `'Save 20\: today'`},
		{"a,b[c]", `'a,b[c]'`},
		{"a\r\nb", "'a\\\nb'"},
		{"a\rb", "'a\\\nb'"},
	}
	for _, tt := range tests {
		if got := EscapeText(tt.in); got != tt.want {
			t.Errorf("EscapeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapePath(t *testing.T) {
	got := EscapePath("/fonts/it's/Bold:Face.ttf")
	want := `'/fonts/it\'\''s/Bold\:Face.ttf'`
	if got != want {
		t.Fatalf("EscapePath = %q, want %q", got, want)
	}

	filters := parseGraph(t, "drawtext=fontfile="+got+":text='x'")
	if path := filters[0].opts["fontfile"]; path != "/fonts/it's/Bold:Face.ttf" {
		t.Fatalf("fontfile arrived as %q", path)
	}
}

func TestExprSurvivesGraphParsing(t *testing.T) {
	filters := parseGraph(t, From("").Then("drawbox",
		Expr("enable", Between(0, 2)),
		Int("x", 4),
	).String())
	if got := filters[0].opts["enable"]; got != "between(t,0.000,2.000)" {
		t.Fatalf("enable arrived as %q", got)
	}
	if filters[0].opts["x"] != "4" {
		t.Fatalf("x lost: %v", filters[0].opts)
	}
}

func drawtextTexts(t *testing.T, filters []parsedFilter, font string) []string {
	t.Helper()
	var texts []string
	for _, f := range filters {
		if f.name != "drawtext" {
			continue
		}
		if f.opts["fontfile"] != font {
			t.Fatalf("fontfile arrived as %q, want %q", f.opts["fontfile"], font)
		}
		if f.opts["expansion"] != "none" || f.opts["fontsize"] == "" {
			t.Fatalf("options after text were lost: %v", f.opts)
		}
		texts = append(texts, f.opts["text"])
	}
	return texts
}

func nonEmpty(lines []string) []string {
	var out []string
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func TestOverlayTextSurvivesGraphParsing(t *testing.T) {
	const font = "/fonts/it's/Bold:Face.ttf"
	inputs := []string{
		"Save 20: today",
		"Don't miss it",
		"50% off, today; only [now]",
		`C:\deals {ok}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			overlay := BuildTextOverlay(From(""), TextOverlay{
				Text:         in,
				Type:         models.SegmentTypeOpener,
				ClipDuration: 3,
				FontPath:     font,
				Height:       1920,
			})
			want := nonEmpty(WrapText(in, StyleFor(models.SegmentTypeOpener, 1920).MaxChars))
			got := drawtextTexts(t, parseGraph(t, overlay.String()), font)
			if strings.Join(got, "|") != strings.Join(want, "|") {
				t.Fatalf("text overlay lines = %q, want %q", got, want)
			}

			bold := BoldText(From(""), BoldTextSpec{
				Text:         in,
				ClipDuration: 3,
				FontPath:     font,
				Width:        1080,
				Height:       1920,
			})
			want = nonEmpty(WrapText(in, StyleFor(models.SegmentTypeCTA, 1920).MaxChars))
			got = drawtextTexts(t, parseGraph(t, bold.String()), font)
			if strings.Join(got, "|") != strings.Join(want, "|") {
				t.Fatalf("bold text lines = %q, want %q", got, want)
			}
		})
	}
}

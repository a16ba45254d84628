package filtergraph

import (
	"path/filepath"
	"strings"
)

// ffmpeg reads a filter option value twice. The graph parser strips one level
// of quoting and backslashes (stopping at [ ] , ;), then the option parser
// splits on ':' and strips a second level. Values are therefore escaped for
// the option parser first and then single-quoted for the graph parser; inside
// those quotes brackets, braces, commas and semicolons are literal.

// escapeOption backslash-escapes the characters the option parser treats
// specially. Leading and trailing blanks are escaped as well; the parser trims
// unescaped whitespace at both ends of a value.
func escapeOption(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', ':', '\'', '\n':
			b.WriteByte('\\')
		case ' ', '\t':
			if i == 0 || i == len(s)-1 {
				b.WriteByte('\\')
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// quoteGraph single-quotes s for the graph parser. A quote cannot appear
// inside quotes, so each one closes the quote, adds an escaped quote and
// reopens.
func quoteGraph(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// quoteValue makes any string safe as one filter option value.
func quoteValue(s string) string {
	return quoteGraph(escapeOption(s))
}

// EscapeText escapes free text for use as a filter option value. Carriage
// returns become line feeds.
func EscapeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return quoteValue(s)
}

// EscapePath escapes a filesystem path for use as a filter option value.
func EscapePath(p string) string {
	return quoteValue(filepath.Clean(p))
}

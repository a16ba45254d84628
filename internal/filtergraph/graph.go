// Package filtergraph models ffmpeg filter graphs as typed nodes and renders
// them to ffmpeg's textual syntax in one place.
//
// Graphs are built by threading a Chain value through builder functions. Every
// builder returns a new Chain; nothing is shared or mutated behind the
// caller's back.
package filtergraph

import (
	"fmt"
	"strconv"
	"strings"
)

// Param is one option of a filter. An empty Key renders a positional value.
type Param struct {
	Key   string
	Value string
}

func (p Param) String() string {
	if p.Key == "" {
		return p.Value
	}
	return p.Key + "=" + p.Value
}

// Int is an integer option.
func Int(key string, v int) Param {
	return Param{Key: key, Value: strconv.Itoa(v)}
}

// Float is a numeric option rendered with fixed precision.
func Float(key string, v float64) Param {
	return Param{Key: key, Value: Num(v)}
}

// Str is a literal option. The value must not need escaping.
func Str(key, v string) Param {
	return Param{Key: key, Value: v}
}

// Expr is an expression option. The expression is quoted so commas and
// parentheses survive graph parsing.
func Expr(key, expr string) Param {
	return Param{Key: key, Value: quoteValue(expr)}
}

// Text is a free-text option, escaped for the filter syntax.
func Text(key, s string) Param {
	return Param{Key: key, Value: EscapeText(s)}
}

// Path is a filesystem path option.
func Path(key, p string) Param {
	return Param{Key: key, Value: EscapePath(p)}
}

// Filter is one node of a graph: a named filter with ordered options, the pads
// it reads and the pads it writes. Unlabeled nodes are linked implicitly to
// their neighbours.
type Filter struct {
	Name    string
	Params  []Param
	Inputs  []string
	Outputs []string
}

func (f Filter) String() string {
	var b strings.Builder
	for _, in := range f.Inputs {
		b.WriteString("[" + in + "]")
	}
	b.WriteString(f.Name)
	if len(f.Params) > 0 {
		parts := make([]string, len(f.Params))
		for i, p := range f.Params {
			parts[i] = p.String()
		}
		b.WriteString("=")
		b.WriteString(strings.Join(parts, ":"))
	}
	for _, out := range f.Outputs {
		b.WriteString("[" + out + "]")
	}
	return b.String()
}

// Chain is the accumulator threaded through graph construction: the ordered
// filters so far and the pad the next filter should read.
type Chain struct {
	Filters []Filter
	Last    string
}

// From starts a chain reading the given pad (e.g. "0:v").
func From(pad string) Chain {
	return Chain{Last: pad}
}

// Then appends a filter that continues from the chain's current output.
func (c Chain) Then(name string, params ...Param) Chain {
	f := Filter{Name: name, Params: params}
	if c.Last != "" && c.open() {
		f.Inputs = []string{c.Last}
	}
	return c.with(f, c.Last)
}

// Label names the output pad of the most recent filter.
func (c Chain) Label(pad string) Chain {
	if len(c.Filters) == 0 {
		return c
	}
	filters := c.clone()
	filters[len(filters)-1].Outputs = []string{pad}
	return Chain{Filters: filters, Last: pad}
}

// Merge appends a filter reading several labeled pads and writing out.
func (c Chain) Merge(name string, inputs []string, out string, params ...Param) Chain {
	f := Filter{
		Name:    name,
		Params:  params,
		Inputs:  append([]string(nil), inputs...),
		Outputs: []string{out},
	}
	return c.with(f, out)
}

// Append adds all filters of other after c; the result continues from other.
func (c Chain) Append(other Chain) Chain {
	filters := append(c.clone(), other.Filters...)
	return Chain{Filters: filters, Last: other.Last}
}

// Len returns the number of filters in the chain.
func (c Chain) Len() int {
	return len(c.Filters)
}

// String renders the chain. Neighbouring unlabeled filters are joined with
// "," and every labeled boundary with ";", so the same value works for both
// -vf and -filter_complex.
func (c Chain) String() string {
	var b strings.Builder
	for i, f := range c.Filters {
		if i > 0 {
			prev := c.Filters[i-1]
			if len(prev.Outputs) == 0 && len(f.Inputs) == 0 {
				b.WriteString(",")
			} else {
				b.WriteString(";")
			}
		}
		b.WriteString(f.String())
	}
	return b.String()
}

// Validate checks pad wiring: output labels are unique, every labeled input
// was produced earlier or is a stream specifier of an input file, and no
// produced pad is read twice.
func (c Chain) Validate() error {
	produced := make(map[string]bool)
	consumed := make(map[string]bool)
	for i, f := range c.Filters {
		for _, in := range f.Inputs {
			if isStreamSpecifier(in) {
				continue
			}
			if !produced[in] {
				return fmt.Errorf("filter %d (%s) reads unknown pad %q", i, f.Name, in)
			}
			if consumed[in] {
				return fmt.Errorf("pad %q is read more than once", in)
			}
			consumed[in] = true
		}
		for _, out := range f.Outputs {
			if produced[out] {
				return fmt.Errorf("pad %q is produced more than once", out)
			}
			produced[out] = true
		}
	}
	return nil
}

// open reports whether the chain's current pad is still waiting for a reader:
// either nothing has been appended yet or the last filter ends in a label.
func (c Chain) open() bool {
	if len(c.Filters) == 0 {
		return true
	}
	return len(c.Filters[len(c.Filters)-1].Outputs) > 0
}

func (c Chain) clone() []Filter {
	filters := make([]Filter, len(c.Filters))
	copy(filters, c.Filters)
	return filters
}

func (c Chain) with(f Filter, last string) Chain {
	filters := append(c.clone(), f)
	return Chain{Filters: filters, Last: last}
}

// isStreamSpecifier matches input-file pads such as "0:v" or "1:a:0".
func isStreamSpecifier(pad string) bool {
	idx := strings.IndexByte(pad, ':')
	if idx <= 0 {
		return false
	}
	_, err := strconv.Atoi(pad[:idx])
	return err == nil
}

// Num renders a numeric literal with exactly three decimals. Every literal in
// an expression goes through here so output is stable across platforms.
func Num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	if s == "-0.000" {
		return "0.000"
	}
	return s
}

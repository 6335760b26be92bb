package command

import (
	"strings"

	"github.com/psaab/bigsh/pkg/schema"
)

// partial is one rendering in progress.
type partial struct {
	words []string
	used  map[string]bool
}

func (p partial) with(words []string, fields ...string) partial {
	n := partial{
		words: append(append([]string(nil), p.words...), words...),
		used:  make(map[string]bool, len(p.used)+len(fields)),
	}
	for k := range p.used {
		n.used[k] = true
	}
	for _, f := range fields {
		n.used[f] = true
	}
	return n
}

// Render returns every distinct command text the descriptor can produce
// from values. A rendering is kept only when it consumes every supplied
// value and every required argument; fixed data fields must be supplied
// with their declared values. The result order is deterministic.
func Render(d *Descriptor, values map[string]any) []string {
	start := partial{words: strings.Fields(d.Name), used: map[string]bool{}}
	for _, k := range sortedKeys(d.Data) {
		v, ok := values[k]
		if !ok || !schema.ValueEqual(v, d.Data[k]) {
			return nil
		}
		start.used[k] = true
	}

	var out []string
	seen := map[string]bool{}
	for _, p := range expand(d.Args, []partial{start}, values) {
		if !consumesAll(p, values) {
			continue
		}
		text := strings.Join(p.words, " ")
		if !seen[text] {
			seen[text] = true
			out = append(out, text)
		}
	}
	return out
}

// Shortest returns the shortest rendering, preferring the earliest on ties.
func Shortest(choices []string) (string, bool) {
	if len(choices) == 0 {
		return "", false
	}
	best := choices[0]
	for _, c := range choices[1:] {
		if len(strings.TrimSpace(c)) < len(strings.TrimSpace(best)) {
			best = c
		}
	}
	return best, true
}

func consumesAll(p partial, values map[string]any) bool {
	for k := range values {
		if !p.used[k] {
			return false
		}
	}
	return true
}

func expand(args []Arg, in []partial, values map[string]any) []partial {
	cur := in
	for i := range args {
		var next []partial
		for _, p := range cur {
			next = append(next, apply(&args[i], p, values)...)
		}
		if len(next) == 0 {
			return nil
		}
		cur = next
	}
	return cur
}

func apply(a *Arg, p partial, values map[string]any) []partial {
	switch {
	case len(a.Choices) > 0:
		var out []partial
		for _, alt := range a.Choices {
			out = append(out, expand(alt, []partial{p}, values)...)
		}
		if a.Optional {
			out = append(out, p)
		}
		return out

	case len(a.Args) > 0:
		out := expand(a.Args, []partial{p}, values)
		if a.Optional {
			out = append(out, p)
		}
		return out

	case a.Field != "":
		return applyField(a, p, values)

	case len(a.Data) > 0:
		keys := sortedKeys(a.Data)
		for _, k := range keys {
			v, ok := values[k]
			if !ok || p.used[k] || !schema.ValueEqual(v, a.Data[k]) {
				return skip(a, p)
			}
		}
		return []partial{p.with(tokenWords(a.Token), keys...)}
	}
	return []partial{p.with(tokenWords(a.Token))}
}

func applyField(a *Arg, p partial, values map[string]any) []partial {
	v, ok := values[a.Field]
	if !ok || p.used[a.Field] {
		return skip(a, p)
	}
	if a.Type == schema.TypeBoolean || a.Type == "boolean" {
		if isTrue(v) {
			return []partial{p.with(tokenWords(a.Token), a.Field)}
		}
		if a.Optional {
			return []partial{p.with(nil, a.Field)}
		}
		return nil
	}
	text := FormatArg(v)
	if len(a.Values) > 0 && !oneOf(text, a.Values) {
		return skip(a, p)
	}
	return []partial{p.with(append(tokenWords(a.Token), text), a.Field)}
}

func skip(a *Arg, p partial) []partial {
	if a.Optional {
		return []partial{p}
	}
	return nil
}

func tokenWords(token string) []string {
	return strings.Fields(token)
}

func oneOf(v string, choices []string) bool {
	for _, c := range choices {
		if strings.EqualFold(c, v) {
			return true
		}
	}
	return false
}

func isTrue(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(x, "true")
	}
	return false
}

// FormatArg prints a value as a command word, quoting text that contains
// whitespace or is empty. Sequences are joined with commas.
func FormatArg(v any) string {
	if list, ok := v.([]any); ok {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, schema.FormatValue(item))
		}
		return strings.Join(parts, ",")
	}
	s := schema.FormatValue(v)
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

// Package cmdline splits shell input into words, key=value pairs and
// output filters.
package cmdline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is returned for malformed input.
var ErrSyntax = errors.New("syntax error")

// Word is one lexed argument. Key is set for a "key=value" word whose key
// and '=' are unquoted; the value may be quoted.
type Word struct {
	Text   string
	Quoted bool
	Key    string
	Value  string
}

// Pipe is one "| filter arg" stage.
type Pipe struct {
	Filter string
	Arg    string
}

// Line is a lexed input line.
type Line struct {
	Words []Word
	Pipes []Pipe
}

// Filters maps each pipe filter to its help text.
var Filters = map[string]string{
	"count":   "Count occurrences",
	"except":  "Show only text that does not match a pattern",
	"find":    "Search for first occurrence of pattern",
	"grep":    "Show only text that matches a pattern",
	"last":    "Display end of output only",
	"match":   "Show only text that matches a pattern",
	"no-more": "Don't paginate output",
}

// Parse lexes line. Double or single quotes group words; a backslash
// escapes the next character inside double quotes.
func Parse(line string) (Line, error) {
	var (
		out     Line
		cur     strings.Builder
		inWord  bool
		quoted  bool
		keyEnd  = -1
		piping  bool
		pipeArg []string
	)
	flush := func() {
		if !inWord {
			return
		}
		w := Word{Text: cur.String(), Quoted: quoted}
		if keyEnd > 0 {
			w.Key, w.Value = w.Text[:keyEnd], w.Text[keyEnd+1:]
		}
		if piping {
			pipeArg = append(pipeArg, w.Text)
		} else {
			out.Words = append(out.Words, w)
		}
		cur.Reset()
		inWord, quoted, keyEnd = false, false, -1
	}
	endPipe := func() error {
		if !piping {
			return nil
		}
		if len(pipeArg) == 0 {
			return fmt.Errorf("%w: missing filter after '|'", ErrSyntax)
		}
		if _, ok := Filters[pipeArg[0]]; !ok {
			return fmt.Errorf("%w: unknown filter %q", ErrSyntax, pipeArg[0])
		}
		out.Pipes = append(out.Pipes, Pipe{Filter: pipeArg[0], Arg: strings.Join(pipeArg[1:], " ")})
		pipeArg = nil
		return nil
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == ' ' || c == '\t':
			flush()
		case c == '|':
			flush()
			if err := endPipe(); err != nil {
				return Line{}, err
			}
			piping = true
		case c == '"' || c == '\'':
			end := i + 1
			for ; end < len(line) && line[end] != c; end++ {
				if c == '"' && line[end] == '\\' && end+1 < len(line) {
					end++
					cur.WriteByte(line[end])
					continue
				}
				cur.WriteByte(line[end])
			}
			if end >= len(line) {
				return Line{}, fmt.Errorf("%w: unterminated string", ErrSyntax)
			}
			inWord, quoted = true, true
			i = end
		default:
			if c == '=' && keyEnd < 0 && !quoted {
				keyEnd = cur.Len()
			}
			cur.WriteByte(c)
			inWord = true
		}
	}
	flush()
	if err := endPipe(); err != nil {
		return Line{}, err
	}
	return out, nil
}

// Args returns the text of every word.
func (l Line) Args() []string {
	out := make([]string, len(l.Words))
	for i, w := range l.Words {
		out[i] = w.Text
	}
	return out
}

// Positional returns the words that are not key=value pairs.
func (l Line) Positional() []string {
	var out []string
	for _, w := range l.Words {
		if w.Key == "" {
			out = append(out, w.Text)
		}
	}
	return out
}

// Pairs returns the key=value words. A repeated key keeps its last value.
func (l Line) Pairs() map[string]string {
	out := map[string]string{}
	for _, w := range l.Words {
		if w.Key != "" {
			out[w.Key] = w.Value
		}
	}
	return out
}

// Apply runs lines through each pipe in order.
func Apply(lines []string, pipes []Pipe) ([]string, error) {
	for _, p := range pipes {
		var err error
		if lines, err = apply(lines, p); err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func apply(lines []string, p Pipe) ([]string, error) {
	pattern := strings.ToLower(p.Arg)
	contains := func(line string) bool {
		return strings.Contains(strings.ToLower(line), pattern)
	}
	var out []string
	switch p.Filter {
	case "match", "grep":
		for _, l := range lines {
			if contains(l) {
				out = append(out, l)
			}
		}
	case "except":
		for _, l := range lines {
			if !contains(l) {
				out = append(out, l)
			}
		}
	case "find":
		for i, l := range lines {
			if contains(l) {
				return lines[i:], nil
			}
		}
	case "count":
		out = []string{fmt.Sprintf("Count: %d lines", len(lines))}
	case "last":
		n := 10
		if p.Arg != "" {
			v, err := strconv.Atoi(p.Arg)
			if err != nil || v < 1 {
				return nil, fmt.Errorf("%w: last: bad count %q", ErrSyntax, p.Arg)
			}
			n = v
		}
		if len(lines) > n {
			return lines[len(lines)-n:], nil
		}
		return lines, nil
	case "no-more":
		return lines, nil
	default:
		return nil, fmt.Errorf("%w: unknown filter %q", ErrSyntax, p.Filter)
	}
	return out, nil
}

package selector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadSelector reports a selector that does not parse.
var ErrBadSelector = errors.New("malformed selector")

// Step is one path segment of a selector with its predicates.
type Step struct {
	Name       string
	Predicates []Predicate
}

// Predicate is a "[field=value]" filter. Value is a string for quoted
// text and an int otherwise.
type Predicate struct {
	Field string
	Value any
}

// Parse splits a selector produced by Build back into steps.
func Parse(sel string) ([]Step, error) {
	var steps []Step
	p := &parser{s: sel}
	for !p.done() {
		name := p.until("/[")
		if name == "" {
			return nil, p.errorf("empty segment")
		}
		st := Step{Name: name}
		for p.peek() == '[' {
			p.i++
			pred, err := p.predicate()
			if err != nil {
				return nil, err
			}
			st.Predicates = append(st.Predicates, pred)
		}
		steps = append(steps, st)
		if p.done() {
			break
		}
		if p.peek() != '/' {
			return nil, p.errorf("expected '/'")
		}
		p.i++
		if p.done() {
			return nil, p.errorf("trailing '/'")
		}
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrBadSelector)
	}
	return steps, nil
}

// Path returns the schema path the steps address.
func Path(steps []Step) string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return strings.Join(names, "/")
}

type parser struct {
	s string
	i int
}

func (p *parser) done() bool { return p.i >= len(p.s) }

func (p *parser) peek() byte {
	if p.done() {
		return 0
	}
	return p.s[p.i]
}

func (p *parser) errorf(msg string) error {
	return fmt.Errorf("%w: %s at offset %d in %q", ErrBadSelector, msg, p.i, p.s)
}

func (p *parser) until(stop string) string {
	start := p.i
	for !p.done() && !strings.ContainsRune(stop, rune(p.s[p.i])) {
		p.i++
	}
	return p.s[start:p.i]
}

func (p *parser) predicate() (Predicate, error) {
	field := p.until("=]")
	if field == "" || p.peek() != '=' {
		return Predicate{}, p.errorf("expected field=value")
	}
	p.i++
	var pred Predicate
	pred.Field = field
	if p.peek() == '"' {
		p.i++
		var b strings.Builder
		for {
			if p.done() {
				return Predicate{}, p.errorf("unterminated string")
			}
			c := p.s[p.i]
			if c == '\\' && p.i+1 < len(p.s) && p.s[p.i+1] == '"' {
				b.WriteByte('"')
				p.i += 2
				continue
			}
			p.i++
			if c == '"' {
				break
			}
			b.WriteByte(c)
		}
		pred.Value = b.String()
	} else {
		text := p.until("]")
		n, err := strconv.Atoi(text)
		if err != nil {
			return Predicate{}, p.errorf("unquoted value is not an integer")
		}
		pred.Value = n
	}
	if p.peek() != ']' {
		return Predicate{}, p.errorf("expected ']'")
	}
	p.i++
	return pred, nil
}

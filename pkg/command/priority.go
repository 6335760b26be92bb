package command

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// PriorityKind distinguishes the two forms of an rc-order.
type PriorityKind int

const (
	// Numeric orders by value alone. Larger values are emitted earlier.
	Numeric PriorityKind = iota
	// PrefixConstrained additionally requires the command to be emitted
	// before any plain command whose text starts with one of Prefixes.
	PrefixConstrained
)

// Priority is a command's rc-order.
type Priority struct {
	Kind     PriorityKind
	Value    int
	Prefixes []string
}

// NumericPriority returns a plain rc-order.
func NumericPriority(v int) Priority {
	return Priority{Kind: Numeric, Value: v}
}

// PrefixPriority returns an rc-order constrained to precede commands
// starting with any of prefixes.
func PrefixPriority(v int, prefixes ...string) Priority {
	return Priority{Kind: PrefixConstrained, Value: v, Prefixes: prefixes}
}

// Negated returns the priority with its numeric part inverted, so that
// ascending order emits larger rc-orders first.
func (p Priority) Negated() Priority {
	p.Value = -p.Value
	return p
}

func (p Priority) String() string {
	if p.Kind == Numeric {
		return strconv.Itoa(p.Value)
	}
	parts := make([]string, 0, len(p.Prefixes)+1)
	for _, s := range p.Prefixes {
		parts = append(parts, strconv.Quote(s))
	}
	parts = append(parts, strconv.Itoa(p.Value))
	return "(" + strings.Join(parts, ", ") + ")"
}

// UnmarshalYAML accepts either an integer or a sequence mixing prefix
// strings with at most one integer.
func (p *Priority) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		v, err := strconv.Atoi(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: rc-order %q is not an integer", node.Line, node.Value)
		}
		*p = NumericPriority(v)
		return nil
	case yaml.SequenceNode:
		out := Priority{Kind: PrefixConstrained}
		seenInt := false
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: rc-order entries must be scalars", item.Line)
			}
			if item.ShortTag() == "!!int" {
				if seenInt {
					return fmt.Errorf("line %d: rc-order has more than one integer", item.Line)
				}
				v, err := strconv.Atoi(item.Value)
				if err != nil {
					return fmt.Errorf("line %d: %w", item.Line, err)
				}
				out.Value, seenInt = v, true
				continue
			}
			if item.Value == "" {
				return fmt.Errorf("line %d: empty rc-order prefix", item.Line)
			}
			out.Prefixes = append(out.Prefixes, item.Value)
		}
		if len(out.Prefixes) == 0 {
			out.Kind = Numeric
		}
		*p = out
		return nil
	}
	return fmt.Errorf("line %d: rc-order must be an integer or a sequence", node.Line)
}

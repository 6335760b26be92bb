// Package selector builds canonical datastore selectors from a schema path
// and a set of field constraints.
//
// A selector looks like
//
//	core/switch[dpid="00:00:00:00:00:00:00:01"]/interface[name="eth0"]
//
// Each list segment carries predicates for the key fields that were
// supplied. Integer values are printed bare, every other value is quoted.
package selector

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/psaab/bigsh/pkg/schema"
)

// Operation names the datastore action a selector is built for.
type Operation int

const (
	Query Operation = iota
	Create
	Update
	Replace
	Delete
)

var opNames = [...]string{"query", "create", "update", "replace", "delete"}

func (o Operation) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// ErrBadOperation is returned for an unknown operation name.
var ErrBadOperation = errors.New("bad operation")

// ParseOperation converts an operation name.
func ParseOperation(s string) (Operation, error) {
	for i, name := range opNames {
		if name == s {
			return Operation(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrBadOperation, s)
}

// Result is the outcome of Build.
type Result struct {
	// Selector addresses the path with every consumed predicate applied.
	Selector string
	// Selects are predicates on descendants of the final node, in the
	// form "<relative path>[<name>=<value>]".
	Selects []string
	// Unconsumed holds constraints that no segment used. For create
	// operations these carry the new element's fields, named relative to
	// the final path.
	Unconsumed map[string]any
	// UnconstrainedKeyDepth counts list key fields that had no value.
	// Zero means the selector addresses at most one element.
	UnconstrainedKeyDepth int
}

// forward is a constraint addressed by a path below the current node.
type forward struct {
	value    any
	original string
}

// state is the constraint bookkeeping threaded through the walk. Each step
// returns a fresh state; the input is never modified.
type state struct {
	plain   map[string]any
	forward map[string]forward
	dropped map[string]any
}

func newState(constraints map[string]any) state {
	s := state{
		plain:   make(map[string]any, len(constraints)),
		forward: map[string]forward{},
		dropped: map[string]any{},
	}
	for k, v := range constraints {
		s.plain[k] = v
	}
	return s
}

func (s state) clone() state {
	c := state{
		plain:   make(map[string]any, len(s.plain)),
		forward: make(map[string]forward, len(s.forward)),
		dropped: make(map[string]any, len(s.dropped)),
	}
	for k, v := range s.plain {
		c.plain[k] = v
	}
	for k, v := range s.forward {
		c.forward[k] = v
	}
	for k, v := range s.dropped {
		c.dropped[k] = v
	}
	return c
}

// take removes name from the state, preferring the unqualified constraint.
func (s state) take(name string) (any, bool) {
	if v, ok := s.plain[name]; ok {
		delete(s.plain, name)
		return v, true
	}
	if f, ok := s.forward[name]; ok {
		delete(s.forward, name)
		return f.value, true
	}
	return nil, false
}

// Build walks path through the model and returns the selector for op.
func Build(m *schema.Model, path string, constraints map[string]any, op Operation) (Result, error) {
	path = schema.Clean(path)
	if path == "" {
		return Result{}, fmt.Errorf("empty path: %w", schema.ErrNoSchema)
	}
	segments := strings.Split(path, "/")
	node := m.Root()
	st := newState(constraints)

	var (
		b     strings.Builder
		depth int
	)
	for i, element := range segments {
		if element == "" {
			continue
		}
		child, ok := node.Children[element]
		if !ok || node.IsLeaf() {
			return Result{}, fmt.Errorf("%s: %w", strings.Join(segments[:i+1], "/"), schema.ErrNoSchema)
		}
		var preds string
		var missing int
		st, preds, missing = step(node, st, i > 0)
		depth += missing
		b.WriteString(preds)
		if b.Len() > 0 {
			b.WriteByte('/')
		}
		b.WriteString(element)
		st = descend(st, element)
		node = child
	}

	res := Result{Unconsumed: map[string]any{}}
	switch node.Type {
	case schema.List:
		if op == Create {
			st = keysForCreate(node, st)
		} else {
			var preds string
			var missing int
			st, preds, missing = step(node, st, true)
			depth += missing
			b.WriteString(preds)
			st, res.Selects = selects(m, path, node, st)
		}
	case schema.Container:
		st = adoptPaths(node, st)
		if op == Query {
			var preds string
			st, preds = leafPredicates(node, st)
			b.WriteString(preds)
		}
		st, res.Selects = selects(m, path, node, st)
	}

	for k, v := range st.plain {
		res.Unconsumed[k] = v
	}
	for k, f := range st.forward {
		res.Unconsumed[k] = f.value
	}
	for k, v := range st.dropped {
		res.Unconsumed[k] = v
	}
	res.Selector = b.String()
	res.UnconstrainedKeyDepth = depth
	return res, nil
}

// step consumes the constraints that apply at node and returns the
// predicate text appended to node's segment. The root container never
// carries predicates.
func step(node *schema.Node, in state, predicates bool) (state, string, int) {
	st := adoptPaths(node, in.clone())
	if !predicates {
		return st, "", 0
	}
	switch node.Type {
	case schema.List:
		var b strings.Builder
		st, keys, missing := keyPredicates(node, st)
		b.WriteString(keys)
		st, leaves := leafPredicates(node, st)
		b.WriteString(leaves)
		return st, b.String(), missing
	case schema.Container:
		st, leaves := leafPredicates(node, st)
		return st, leaves, 0
	}
	return st, "", 0
}

// adoptPaths moves constraints addressed below one of node's children into
// the forward set. A constraint named after a child list is an aggregate key
// value for that list.
func adoptPaths(node *schema.Node, st state) state {
	for name, v := range st.plain {
		first, _, deep := strings.Cut(name, "/")
		child, ok := node.Children[first]
		if !ok {
			continue
		}
		if deep || (child.Type == schema.List && name != "" && !node.IsKey(name)) {
			if _, taken := st.forward[name]; !taken {
				st.forward[name] = forward{value: v, original: name}
				delete(st.plain, name)
			}
		}
	}
	return st
}

// descend renames forward constraints relative to element. Those addressed
// elsewhere can never be consumed and are set aside.
func descend(in state, element string) state {
	st := in.clone()
	st.forward = map[string]forward{}
	for name, f := range in.forward {
		if name == element {
			st.forward[""] = f
			continue
		}
		rest, ok := strings.CutPrefix(name, element+"/")
		if !ok {
			st.dropped[f.original] = f.value
			continue
		}
		st.forward[rest] = f
	}
	return st
}

func keyPredicates(node *schema.Node, st state) (state, string, int) {
	keys := node.KeyFields
	if len(keys) == 0 {
		// a keyless list always addresses every element
		return st, "", 1
	}
	values := map[string]any{}
	if agg, ok := st.take(""); ok {
		for k, v := range distribute(keys, agg) {
			values[k] = v
		}
	}
	var b strings.Builder
	missing := 0
	for _, key := range keys {
		v, ok := values[key]
		if !ok {
			v, ok = st.take(key)
		}
		if !ok {
			missing++
			continue
		}
		b.WriteString(predicate(node.Children[key], key, v))
	}
	return st, b.String(), missing
}

// leafPredicates turns constraints naming direct leaf children into
// predicates, in name order.
func leafPredicates(node *schema.Node, st state) (state, string) {
	var names []string
	for name := range st.plain {
		if c, ok := node.Children[name]; ok && c.IsLeaf() {
			names = append(names, name)
		}
	}
	for name := range st.forward {
		if c, ok := node.Children[name]; ok && c.IsLeaf() {
			if _, dup := st.plain[name]; !dup {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		v, _ := st.take(name)
		b.WriteString(predicate(node.Children[name], name, v))
	}
	return st, b.String()
}

// selects converts remaining forward constraints addressing leaves or
// single-key lists below the final node into select predicates.
func selects(m *schema.Model, path string, node *schema.Node, st state) (state, []string) {
	var names []string
	for name := range st.forward {
		if schema.IsPath(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var out []string
	for _, name := range names {
		target, err := m.Lookup(schema.Join(path, name))
		if err != nil {
			continue
		}
		prefix, last := schema.Split(name)
		f := st.forward[name]
		switch {
		case target.IsLeaf():
			out = append(out, prefix+predicate(target, last, f.value))
		case target.Type == schema.List && len(target.KeyFields) == 1:
			key := target.KeyFields[0]
			out = append(out, name+predicate(target.Children[key], key, f.value))
		default:
			continue
		}
		delete(st.forward, name)
	}
	return st, out
}

// keysForCreate names an aggregate key value after the list's key fields so
// it lands in the body of the new element.
func keysForCreate(node *schema.Node, in state) state {
	st := in.clone()
	f, ok := st.forward[""]
	if !ok {
		return st
	}
	delete(st.forward, "")
	for k, v := range distribute(node.KeyFields, f.value) {
		st.forward[k] = forward{value: v, original: k}
	}
	return st
}

// distribute spreads an aggregate key value across keys in declared order.
// The value may be a map keyed by field name, a positional slice, or, for
// compound keys, a whitespace separated string.
func distribute(keys []string, agg any) map[string]any {
	out := map[string]any{}
	if len(keys) == 0 {
		return out
	}
	switch v := agg.(type) {
	case map[string]any:
		for _, k := range keys {
			if kv, ok := v[k]; ok {
				out[k] = kv
			}
		}
	case []any:
		for i, k := range keys {
			if i < len(v) {
				out[k] = v[i]
			}
		}
	case string:
		if len(keys) == 1 {
			out[keys[0]] = v
			break
		}
		parts := strings.Fields(v)
		for i, k := range keys {
			if i < len(parts) {
				out[k] = parts[i]
			}
		}
	default:
		out[keys[0]] = v
	}
	return out
}

func predicate(leaf *schema.Node, name string, v any) string {
	text := schema.FormatValue(v)
	if leaf != nil && leaf.LeafType == schema.TypeInteger {
		return "[" + name + "=" + text + "]"
	}
	return "[" + name + "=" + Quote(text) + "]"
}

// Quote wraps a predicate value in double quotes.
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

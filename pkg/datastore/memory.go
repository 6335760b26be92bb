package datastore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ohler55/ojg/jp"
	"gopkg.in/yaml.v3"

	"github.com/psaab/bigsh/pkg/schema"
	"github.com/psaab/bigsh/pkg/selector"
)

var (
	// ErrUnusedFilter reports filter constraints no path segment accepted.
	ErrUnusedFilter = errors.New("filter not applicable to path")
	// ErrNotConfigurable reports a write to state-only data.
	ErrNotConfigurable = errors.New("path is not configurable")
	// ErrMissingKey reports a create without every list key.
	ErrMissingKey = errors.New("missing list key")
)

// Mutator applies planned writes.
type Mutator interface {
	Apply(ctx context.Context, plan selector.Plan) error
}

// Store reads and writes configuration.
type Store interface {
	Querier
	Mutator
}

// Memory is a datastore holding one configuration document in process.
// It is safe for concurrent use.
type Memory struct {
	model *schema.Model

	mu      sync.RWMutex
	doc     map[string]any
	denied  map[string]int
	version uint64
}

// NewMemory returns a store over doc. The store owns doc afterwards.
func NewMemory(m *schema.Model, doc map[string]any) *Memory {
	if doc == nil {
		doc = map[string]any{}
	}
	return &Memory{model: m, doc: doc, denied: map[string]int{}}
}

// LoadMemory reads a YAML or JSON document from path.
func LoadMemory(m *schema.Model, path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return NewMemory(m, doc), nil
}

// Model returns the schema the store validates against.
func (s *Memory) Model() *schema.Model { return s.model }

// Deny makes every query and write at or below path fail with code.
func (s *Memory) Deny(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[schema.Clean(path)] = code
}

func (s *Memory) deniedCode(path string) int {
	for p, code := range s.denied {
		if p == "" || path == p || strings.HasPrefix(path, p+"/") {
			return code
		}
	}
	return 0
}

// Version counts applied mutations.
func (s *Memory) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns a deep copy of the document.
func (s *Memory) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.doc).(map[string]any)
}

// Restore replaces the document with a copy of doc.
func (s *Memory) Restore(doc map[string]any) {
	c, _ := clone(doc).(map[string]any)
	if c == nil {
		c = map[string]any{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = c
	s.version++
}

// Find evaluates a JSONPath expression against the document.
func (s *Memory) Find(expr string) ([]any, error) {
	x, err := jp.ParseString(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath %q: %w", expr, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := x.Get(s.doc)
	out := make([]any, len(found))
	for i, v := range found {
		out[i] = clone(v)
	}
	return out, nil
}

// Query implements Querier. Lists yield a slice of matching elements,
// other nodes their single value. A path without data yields a nil value.
func (s *Memory) Query(ctx context.Context, path string, filter map[string]any) (*schema.Node, any, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	path = schema.Clean(path)
	node, err := s.model.Lookup(path)
	if err != nil {
		return nil, nil, &Error{Code: http.StatusNotFound, Path: path, Err: err}
	}
	steps, err := s.steps(path, filter)
	if err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if code := s.deniedCode(path); code != 0 {
		return nil, nil, &Error{Code: code, Path: path}
	}
	found := s.resolve(steps)
	if len(found) == 0 {
		return node, nil, nil
	}
	if node.Type == schema.List {
		out := make([]any, len(found))
		for i, v := range found {
			out[i] = clone(v)
		}
		return node, out, nil
	}
	return node, clone(found[0]), nil
}

func (s *Memory) steps(path string, filter map[string]any) ([]selector.Step, error) {
	if len(filter) == 0 {
		var steps []selector.Step
		for _, name := range strings.Split(path, "/") {
			steps = append(steps, selector.Step{Name: name})
		}
		return steps, nil
	}
	res, err := selector.Build(s.model, path, filter, selector.Query)
	if err != nil {
		return nil, &Error{Code: http.StatusBadRequest, Path: path, Err: err}
	}
	if len(res.Unconsumed) > 0 {
		names := make([]string, 0, len(res.Unconsumed))
		for k := range res.Unconsumed {
			names = append(names, k)
		}
		sort.Strings(names)
		return nil, &Error{Code: http.StatusBadRequest, Path: path,
			Err: fmt.Errorf("%w: %s", ErrUnusedFilter, strings.Join(names, ", "))}
	}
	steps, err := selector.Parse(res.Selector)
	if err != nil {
		return nil, &Error{Code: http.StatusBadRequest, Path: path, Err: err}
	}
	return steps, nil
}

// resolve walks steps from the root and returns references into the
// document. List segments fan out to their elements before predicates are
// applied.
func (s *Memory) resolve(steps []selector.Step) []any {
	cur := []any{s.doc}
	path := ""
	for _, st := range steps {
		path = schema.Join(path, st.Name)
		x := jp.C(st.Name)
		if n, err := s.model.Lookup(path); err == nil && n.Type == schema.List {
			x = x.W()
		}
		var next []any
		for _, item := range cur {
			next = append(next, x.Get(item)...)
		}
		cur = matching(next, st.Predicates)
		if len(cur) == 0 {
			return nil
		}
	}
	return cur
}

func matching(items []any, preds []selector.Predicate) []any {
	if len(preds) == 0 {
		return items
	}
	var out []any
	for _, item := range items {
		m, ok := item.(map[string]any)
		if ok && matches(m, preds) {
			out = append(out, item)
		}
	}
	return out
}

func matches(m map[string]any, preds []selector.Predicate) bool {
	for _, p := range preds {
		if !schema.ValueEqual(m[p.Field], p.Value) {
			return false
		}
	}
	return true
}

// Apply implements Mutator.
func (s *Memory) Apply(ctx context.Context, plan selector.Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	steps, err := selector.Parse(plan.Selector)
	if err != nil {
		return &Error{Code: http.StatusBadRequest, Path: plan.Selector, Err: err}
	}
	path := selector.Path(steps)
	node, err := s.model.Lookup(path)
	if err != nil {
		return &Error{Code: http.StatusNotFound, Path: path, Err: err}
	}
	if !s.model.IsConfigurable(path) {
		return &Error{Code: http.StatusBadRequest, Path: path, Err: ErrNotConfigurable}
	}
	if err := s.validate(path, node, plan.Data); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.deniedCode(path); code != 0 {
		return &Error{Code: code, Path: path}
	}
	switch plan.Op {
	case selector.Delete:
		err = s.remove(steps)
	case selector.Create, selector.Update, selector.Replace:
		err = s.write(steps, plan.Op, plan.Data)
	default:
		err = &Error{Code: http.StatusBadRequest, Path: path,
			Err: fmt.Errorf("%w %s", selector.ErrBadOperation, plan.Op)}
	}
	if err == nil {
		s.version++
	}
	return err
}

func (s *Memory) validate(path string, node *schema.Node, data map[string]any) error {
	if node.IsLeaf() {
		if v, ok := data[node.Name]; ok {
			return s.validateLeaf(path, node, v)
		}
		return nil
	}
	for k, v := range data {
		child, ok := node.Children[k]
		if !ok {
			return &Error{Code: http.StatusBadRequest, Path: schema.Join(path, k), Err: schema.ErrNoSchema}
		}
		if child.IsLeaf() {
			if err := s.validateLeaf(schema.Join(path, k), child, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Memory) validateLeaf(path string, n *schema.Node, v any) error {
	vals := []any{v}
	if n.Type == schema.LeafList {
		if list, ok := v.([]any); ok {
			vals = list
		}
	}
	for _, item := range vals {
		if err := s.model.ValidateValue(path, item); err != nil {
			return &Error{Code: http.StatusBadRequest, Path: path, Err: err}
		}
	}
	return nil
}

func (s *Memory) write(steps []selector.Step, op selector.Operation, data map[string]any) error {
	cur := s.doc
	path := ""
	for i, st := range steps {
		path = schema.Join(path, st.Name)
		n, err := s.model.Lookup(path)
		if err != nil {
			return &Error{Code: http.StatusNotFound, Path: path, Err: err}
		}
		last := i == len(steps)-1
		switch n.Type {
		case schema.List:
			keys := predicateMap(st.Predicates)
			if last && len(keys) == 0 {
				for _, k := range n.KeyFields {
					v, ok := data[k]
					if !ok {
						return &Error{Code: http.StatusBadRequest, Path: path,
							Err: fmt.Errorf("%w %q", ErrMissingKey, k)}
					}
					keys[k] = v
				}
			}
			list, _ := cur[st.Name].([]any)
			idx := findElement(list, keys)
			if idx < 0 {
				if last && op == selector.Update {
					return &Error{Code: http.StatusNotFound, Path: path}
				}
				elem := map[string]any{}
				for k, v := range keys {
					elem[k] = v
				}
				list = append(list, elem)
				cur[st.Name] = list
				idx = len(list) - 1
			}
			elem, ok := list[idx].(map[string]any)
			if !ok {
				return &Error{Code: http.StatusConflict, Path: path}
			}
			if last {
				merge(elem, op, data, keys)
				return nil
			}
			cur = elem
		case schema.Container:
			m, ok := cur[st.Name].(map[string]any)
			if !ok {
				m = map[string]any{}
				cur[st.Name] = m
			}
			if last {
				merge(m, op, data, nil)
				return nil
			}
			cur = m
		default:
			if !last {
				return &Error{Code: http.StatusBadRequest, Path: path, Err: schema.ErrNoSchema}
			}
			v, ok := data[st.Name]
			if !ok {
				return &Error{Code: http.StatusBadRequest, Path: path,
					Err: errors.New("no value for leaf")}
			}
			cur[st.Name] = clone(v)
		}
	}
	return nil
}

func (s *Memory) remove(steps []selector.Step) error {
	parents := s.resolve(steps[:len(steps)-1])
	st := steps[len(steps)-1]
	path := selector.Path(steps)
	removed := false
	for _, p := range parents {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		v, ok := m[st.Name]
		if !ok {
			continue
		}
		list, isList := v.([]any)
		if !isList || len(st.Predicates) == 0 {
			delete(m, st.Name)
			removed = true
			continue
		}
		kept := list[:0:0]
		for _, e := range list {
			if em, ok := e.(map[string]any); ok && matches(em, st.Predicates) {
				removed = true
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(m, st.Name)
		} else {
			m[st.Name] = kept
		}
	}
	if !removed {
		return &Error{Code: http.StatusNotFound, Path: path}
	}
	return nil
}

func predicateMap(preds []selector.Predicate) map[string]any {
	out := make(map[string]any, len(preds))
	for _, p := range preds {
		out[p.Field] = p.Value
	}
	return out
}

func findElement(list []any, keys map[string]any) int {
	for i, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		hit := true
		for k, v := range keys {
			if !schema.ValueEqual(m[k], v) {
				hit = false
				break
			}
		}
		if hit {
			return i
		}
	}
	return -1
}

// merge writes data into dst. Replace first drops every field that is not
// a key.
func merge(dst map[string]any, op selector.Operation, data, keys map[string]any) {
	if op == selector.Replace {
		for k := range dst {
			if _, isKey := keys[k]; !isKey {
				delete(dst, k)
			}
		}
	}
	for k, v := range data {
		dst[k] = clone(v)
	}
}

// clone deep-copies decoded documents.
func clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = clone(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = clone(e)
		}
		return out
	}
	return v
}

package schema

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// ErrNoSchema is returned when a path does not resolve in the model.
var ErrNoSchema = errors.New("no schema")

// entry holds the per-path tables derived from one node.
type entry struct {
	node         *Node
	configurable bool
	configOnly   bool
}

// Model is an indexed, read-only view of a schema tree. It is built once
// per schema version and safe for concurrent readers.
type Model struct {
	root    *Node
	entries map[string]*entry
	// alias maps a list path to the name of its alias leaf.
	alias  map[string]string
	purged []string
}

// NewModel indexes root. Defaults found on list key leaves are removed,
// since a key can never be left unset; the affected paths are reported by
// PurgedDefaults. A list whose key field is not one of its leaf children
// is rejected.
func NewModel(root *Node) (*Model, error) {
	if root == nil {
		return nil, fmt.Errorf("nil schema root")
	}
	m := &Model{
		root:    root,
		entries: make(map[string]*entry),
		alias:   make(map[string]string),
	}
	if err := m.index("", root, true); err != nil {
		return nil, err
	}
	sort.Strings(m.purged)
	return m, nil
}

// ParseModel decodes and indexes a raw JSON schema.
func ParseModel(data []byte) (*Model, error) {
	root, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NewModel(root)
}

func (m *Model) index(path string, n *Node, inherited bool) error {
	configurable := inherited
	if n.Config != nil {
		configurable = *n.Config
	}
	e := &entry{node: n, configurable: configurable}
	if len(n.DataSources) == 1 && n.DataSources[0] == "config" {
		e.configOnly = true
	}
	m.entries[path] = e

	if n.Type == List {
		for _, k := range n.KeyFields {
			key := n.Children[k]
			if key == nil {
				return fmt.Errorf("%s: key field %q is not a child", displayPath(path), k)
			}
			if key.Type != Leaf {
				return fmt.Errorf("%s: key field %q is a %s", displayPath(path), k, key.Type)
			}
			if key.HasDefault {
				key.Default, key.HasDefault = nil, false
				m.purged = append(m.purged, Join(path, k))
			}
		}
	}
	for name, child := range n.Children {
		childPath := Join(path, name)
		if child == nil {
			return fmt.Errorf("%s: nil schema node", displayPath(childPath))
		}
		if err := m.index(childPath, child, configurable); err != nil {
			return err
		}
		if child.Display.Alias && n.Type == List {
			if ce := m.entries[childPath]; ce.configurable {
				m.alias[path] = name
			}
		}
	}
	return nil
}

// Root returns the root container.
func (m *Model) Root() *Node { return m.root }

// PurgedDefaults lists key leaves whose schema defaults were dropped.
func (m *Model) PurgedDefaults() []string { return m.purged }

// Paths returns every indexed path in sorted order.
func (m *Model) Paths() []string {
	paths := make([]string, 0, len(m.entries))
	for p := range m.entries {
		if p != "" {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// Lookup resolves path by descending through container children and list
// element children.
func (m *Model) Lookup(path string) (*Node, error) {
	path = Clean(path)
	if e, ok := m.entries[path]; ok {
		return e.node, nil
	}
	return nil, fmt.Errorf("%s: %w", displayPath(path), ErrNoSchema)
}

// KeyFieldsOf returns the key fields of the list at path, or nil.
func (m *Model) KeyFieldsOf(path string) []string {
	n, err := m.Lookup(path)
	if err != nil || n.Type != List {
		return nil
	}
	return n.KeyFields
}

// IsConfigurable reports whether path is writable configuration. Unknown
// paths are not configurable.
func (m *Model) IsConfigurable(path string) bool {
	e, ok := m.entries[Clean(path)]
	return ok && e.configurable
}

// IsConfigOnly reports whether the only data source at path is "config".
func (m *Model) IsConfigOnly(path string) bool {
	e, ok := m.entries[Clean(path)]
	return ok && e.configOnly
}

// DefaultOf returns the declared default at path.
func (m *Model) DefaultOf(path string) (any, bool) {
	n, err := m.Lookup(path)
	if err != nil || !n.HasDefault {
		return nil, false
	}
	return n.Default, true
}

// ValidatorsOf returns the value constraints at path.
func (m *Model) ValidatorsOf(path string) []Validator {
	n, err := m.Lookup(path)
	if err != nil {
		return nil
	}
	return n.Validators
}

// LeafTypeOf returns the leaf type at path, or "".
func (m *Model) LeafTypeOf(path string) string {
	n, err := m.Lookup(path)
	if err != nil {
		return ""
	}
	return n.LeafType
}

// TypeNameOf returns the named type at path, or "".
func (m *Model) TypeNameOf(path string) string {
	n, err := m.Lookup(path)
	if err != nil {
		return ""
	}
	return n.TypeName
}

// ColumnHeader returns the display header for path, falling back to def.
func (m *Model) ColumnHeader(path, def string) string {
	n, err := m.Lookup(path)
	if err != nil || n.Display.ColumnHeader == "" {
		return def
	}
	return n.Display.ColumnHeader
}

// CaseSensitive reports whether values at path compare case-sensitively.
// Paths without the attribute are case-sensitive.
func (m *Model) CaseSensitive(path string) bool {
	n, err := m.Lookup(path)
	if err != nil || n.Display.CaseSensitive == nil {
		return true
	}
	return *n.Display.CaseSensitive
}

// IsCascade reports the cascade attribute at path.
func (m *Model) IsCascade(path string) bool {
	n, err := m.Lookup(path)
	return err == nil && n.Display.Cascade
}

// IsMandatory reports the mandatory flag at path.
func (m *Model) IsMandatory(path string) bool {
	n, err := m.Lookup(path)
	return err == nil && n.Mandatory
}

// AliasField returns the alias leaf of the list at path.
func (m *Model) AliasField(path string) (string, bool) {
	name, ok := m.alias[Clean(path)]
	return name, ok
}

// FormatValue renders a scalar the way commands and selectors print it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return FormatValue(float64(x))
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// ValueEqual compares a queried value with a schema value. Numbers compare
// by magnitude regardless of their Go representation.
func ValueEqual(a, b any) bool {
	if ia, ok := toInt64(a); ok {
		if ib, ok := toInt64(b); ok {
			return ia == ib
		}
	}
	if ua, ok := a.(uint64); ok {
		if ub, ok := b.(uint64); ok {
			return ua == ub
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	if isScalar(a) && isScalar(b) {
		return FormatValue(a) == FormatValue(b)
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// toInt64 converts the integer types that fit an int64 without going
// through float64.
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x), true
		}
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), true
		}
	}
	return 0, false
}

// ToInt converts numeric values and decimal strings to an int.
func ToInt(v any) (int, bool) {
	if n, ok := toInt64(v); ok {
		if n < math.MinInt || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	}
	if _, ok := v.(uint64); ok {
		return 0, false
	}
	if _, ok := v.(uint); ok {
		return 0, false
	}
	if f, ok := toFloat(v); ok {
		if f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	}
	if s, ok := v.(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		return n, err == nil
	}
	return 0, false
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return true
	}
	return false
}

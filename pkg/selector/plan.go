package selector

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/psaab/bigsh/pkg/schema"
)

// Plan is one datastore mutation.
type Plan struct {
	Op       Operation
	Selector string
	// Data is the request body for update plans.
	Data map[string]any
}

// PlanDelete decides how to remove fields of the element addressed by
// path and constraints. Removing a boolean leaf whose default is true would
// silently re-enable it, so such fields become an update to false instead.
// With no fields the element itself is deleted.
func PlanDelete(m *schema.Model, path string, constraints map[string]any, fields []string) ([]Plan, error) {
	base, err := Build(m, path, constraints, Delete)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return []Plan{{Op: Delete, Selector: base.Selector}}, nil
	}

	var plans []Plan
	update := map[string]any{}
	for _, field := range fields {
		leaf, err := m.Lookup(schema.Join(path, field))
		if err != nil {
			return nil, err
		}
		if leaf.Type == schema.Leaf && leaf.LeafType == schema.TypeBoolean &&
			leaf.HasDefault && schema.ValueEqual(leaf.Default, true) {
			update[field] = false
			continue
		}
		plans = append(plans, Plan{Op: Delete, Selector: base.Selector + "/" + field})
	}
	if len(update) > 0 {
		plans = append(plans, Plan{Op: Update, Selector: base.Selector, Data: update})
	}
	return plans, nil
}

// PlanSet writes data into the element addressed by path and constraints,
// creating it when it does not exist. Constraints naming the final list's
// keys become part of the written data.
func PlanSet(m *schema.Model, path string, constraints, data map[string]any) (Plan, error) {
	res, err := Build(m, path, constraints, Create)
	if err != nil {
		return Plan{}, err
	}
	body := make(map[string]any, len(res.Unconsumed)+len(data))
	for k, v := range res.Unconsumed {
		body[k] = v
	}
	for k, v := range data {
		body[k] = v
	}
	return Plan{Op: Create, Selector: res.Selector, Data: body}, nil
}

// Canonicalize converts textual field values to the types the schema
// declares at path. Names may be relative to path or fully qualified with
// path as their prefix. Names the schema does not know are kept as text.
func Canonicalize(m *schema.Model, path string, values map[string]string) (map[string]any, error) {
	path = schema.Clean(path)
	out := make(map[string]any, len(values))
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		text := values[name]
		rel := name
		if path != "" {
			if r, ok := strings.CutPrefix(name, path+"/"); ok {
				rel = r
			}
		}
		leaf, err := m.Lookup(schema.Join(path, rel))
		if err != nil || !leaf.IsLeaf() {
			out[rel] = text
			continue
		}
		v, err := convert(leaf.LeafType, text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", schema.Join(path, rel), err)
		}
		if leaf.Type == schema.LeafList {
			out[rel] = []any{v}
			continue
		}
		out[rel] = v
	}
	return out, nil
}

func convert(leafType, text string) (any, error) {
	switch leafType {
	case schema.TypeInteger:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", schema.ErrInvalidValue, text)
		}
		return int(n), nil
	case schema.TypeBoolean:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a boolean", schema.ErrInvalidValue, text)
		}
		return b, nil
	case schema.TypeDecimal:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a decimal", schema.ErrInvalidValue, text)
		}
		return f, nil
	}
	return text, nil
}

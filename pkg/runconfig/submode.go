package runconfig

import (
	"strings"

	"github.com/psaab/bigsh/pkg/command"
	"github.com/psaab/bigsh/pkg/schema"
)

// enterSubmode returns prev extended with the frames needed to reach the
// submode editing the element value at path. With a target only the
// descriptors entering that submode are considered. The returned stack
// always begins with prev.
func (r *run) enterSubmode(path string, value map[string]any, prev []*Frame, target string, depth int) []*Frame {
	if depth > maxSubmodeDepth {
		r.log.Warn("submode nesting too deep", "path", path, "target", target)
		return prev
	}
	cands := r.g.submode[path]
	if len(cands) == 0 {
		cands = r.g.submodeWithoutObjectPath[path]
	}
	if len(cands) == 0 {
		if target == "" {
			if f := r.keyFrame(path, value); f != nil {
				return push(prev, f)
			}
		}
		return prev
	}
	if target != "" {
		cands = r.forTarget(cands, target, path)
	}

	type built struct {
		frame   *Frame
		parents []*Frame
	}
	var made []built
	var deferred []map[string]any
	for _, d := range cands {
		fields, deeper := r.entryFields(d, path, value, prev)
		if deeper {
			deferred = append(deferred, fields)
			continue
		}
		text, ok := command.Shortest(command.Render(d, fields))
		if !ok {
			r.log.Debug("submode entry does not render", "path", path, "id", d.ID)
			continue
		}
		parents := prev
		if mode := d.BaseMode(); mode != command.ConfigMode && !r.inMode(prev, mode) {
			ppath, ok := r.g.modePath[mode]
			if !ok || ppath == "" {
				r.log.Debug("submode parent has no path", "id", d.ID, "mode", mode)
				continue
			}
			parents = r.enterSubmode(ppath, qualified(value, ppath), prev, mode, depth+1)
			if lastResolvedMode(parents) != mode {
				r.log.Warn("submode parent not reachable", "path", path, "id", d.ID, "mode", mode)
				r.diag(UnplacedCommand, path, text)
				continue
			}
		}
		made = append(made, built{
			frame: &Frame{
				Text:     text,
				Mode:     d.SubmodeName,
				Desc:     d,
				Fields:   fields,
				Priority: d.Priority,
			},
			parents: parents,
		})
	}

	switch {
	case len(made) == 1 && len(deferred) == 0:
		stack := push(made[0].parents, made[0].frame)
		if made[0].frame.Desc.Creates() {
			r.insert(stack)
		}
		return stack
	case len(made)+len(deferred) == 0:
		return prev
	}

	// several candidates: carry the union of their fields and let a deeper
	// submode entry pick the right one
	f := &Frame{Fields: map[string]any{}}
	for _, b := range made {
		for k, v := range b.frame.Fields {
			f.Fields[k] = v
		}
		f.Candidates = append(f.Candidates, b.frame.Text)
	}
	for _, fields := range deferred {
		for k, v := range fields {
			f.Fields[k] = v
		}
	}
	if len(made) > 1 {
		r.pending[f] = path
	}
	return push(prev, f)
}

func push(stack []*Frame, f *Frame) []*Frame {
	return append(append(make([]*Frame, 0, len(stack)+1), stack...), f)
}

func (r *run) forTarget(cands []*command.Descriptor, target, path string) []*command.Descriptor {
	var out []*command.Descriptor
	for _, d := range cands {
		if d.SubmodeName == target {
			out = append(out, d)
		}
	}
	if len(out) > 0 {
		return out
	}
	if d, ok := r.g.targetModeCommand[target]; ok {
		return []*command.Descriptor{d}
	}
	r.log.Debug("no descriptor enters target submode", "path", path, "target", target)
	return cands
}

// inMode reports whether the innermost resolved frame of stack is mode.
func (r *run) inMode(stack []*Frame, mode string) bool {
	return lastResolvedMode(stack) == mode
}

// entryFields gathers the values for a submode-entry descriptor. Key
// fields of path come from the element; other fields come from enclosing
// frames, then from the element. deeper is set when a path-qualified field
// reaches below the element.
func (r *run) entryFields(d *command.Descriptor, path string, value map[string]any, prev []*Frame) (map[string]any, bool) {
	results := value
	names := r.g.commandFields[d.ID]
	if d.ItemName != "" && len(names) == 1 && d.ItemName != names[0] {
		if v, ok := value[d.ItemName]; ok {
			results = copyMap(value)
			results[names[0]] = v
		}
	}
	if len(d.FieldsMap) > 0 {
		mapped := make(map[string]any, len(results))
		for k, v := range results {
			if to, ok := d.FieldsMap[k]; ok {
				k = to
			}
			mapped[k] = v
		}
		results = mapped
	}

	node, _ := r.g.model.Lookup(path)
	fields := map[string]any{}
	deeper := false
	for _, f := range names {
		if node != nil && node.IsKey(f) {
			if v, ok := results[f]; ok {
				fields[f] = v
				continue
			}
		}
		if v, ok := r.fromStack(prev, f); ok {
			fields[f] = v
			continue
		}
		if v, ok := results[f]; ok {
			fields[f] = v
			continue
		}
		if !schema.IsPath(f) {
			continue
		}
		if tail, ok := strings.CutPrefix(f, path+"/"); ok {
			if v, ok := results[tail]; ok {
				fields[f] = v
			} else if schema.IsPath(tail) {
				deeper = true
			}
		}
	}
	return fields, deeper
}

// fromStack finds field in the enclosing frames, outermost first. A path
// field naming a single-key list also matches that list's key path.
func (r *run) fromStack(stack []*Frame, field string) (any, bool) {
	for _, f := range stack {
		if v, ok := f.Fields[field]; ok {
			return v, true
		}
		if schema.IsPath(field) {
			if keys := r.g.model.KeyFieldsOf(field); len(keys) == 1 {
				if v, ok := f.Fields[schema.Join(field, keys[0])]; ok {
					return v, true
				}
			}
		}
	}
	return nil, false
}

// keyFrame builds an unprinted frame carrying the element's key for a
// list without a submode, when some descriptor names the key's absolute
// path.
func (r *run) keyFrame(path string, value map[string]any) *Frame {
	keys := r.g.model.KeyFieldsOf(path)
	if len(keys) != 1 {
		return nil
	}
	full := schema.Join(path, keys[0])
	if !r.g.allFields[full] {
		return nil
	}
	v, ok := value[keys[0]]
	if !ok {
		return nil
	}
	return &Frame{Fields: map[string]any{full: v}}
}

// qualified returns the values of value named below parent, such as
// "tenant/name" for parent "tenant", keyed relative to parent. An element
// never supplies its parent's fields under their bare names.
func qualified(value map[string]any, parent string) map[string]any {
	out := map[string]any{}
	for k, v := range value {
		if tail, ok := strings.CutPrefix(k, parent+"/"); ok && tail != "" {
			out[tail] = v
		}
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

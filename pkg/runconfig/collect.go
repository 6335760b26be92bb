package runconfig

import (
	"sort"
	"strconv"
	"strings"

	"github.com/psaab/bigsh/pkg/command"
	"github.com/psaab/bigsh/pkg/schema"
	"github.com/psaab/bigsh/pkg/scoreboard"
)

// candidate is one rendered command for a field group.
type candidate struct {
	text string
	desc *command.Descriptor
}

// group collects the renderings that cover the same set of fields.
type group struct {
	fields []string
	cands  []candidate
}

type groups map[string]*group

func (gs groups) add(fields []string, text string, d *command.Descriptor) {
	key := strings.Join(fields, "\x00")
	g, ok := gs[key]
	if !ok {
		g = &group{fields: fields}
		gs[key] = g
	}
	g.cands = append(g.cands, candidate{text: text, desc: d})
}

// config emits the commands for the element value at path below stack,
// then descends into its lists and containers.
func (r *run) config(path string, node *schema.Node, value map[string]any, stack []*Frame) {
	leaves := map[string]any{}
	leafLists := map[string][]any{}
	var deeper []string

	for _, name := range node.ChildNames() {
		v, ok := value[name]
		if !ok || v == nil {
			continue
		}
		child := node.Children[name]
		childPath := schema.Join(path, name)
		switch child.Type {
		case schema.Leaf:
			if r.keepLeaf(childPath, child, v) {
				leaves[name] = v
			}
		case schema.LeafList:
			if !r.g.model.IsConfigurable(childPath) {
				continue
			}
			if r.commaRangeField(path, name) {
				if s, ok := collapseRanges(asList(v)); ok {
					leaves[name] = s
					continue
				}
			}
			leafLists[name] = asList(v)
		case schema.Container:
			r.flatten(childPath, name, child, v, leaves)
			deeper = append(deeper, name)
		case schema.List:
			if r.g.model.IsConfigurable(childPath) && r.commaRangeField(path, name) {
				if s, ok := listRanges(child, v); ok {
					leaves[name] = s
				}
			}
			deeper = append(deeper, name)
		}
	}

	gs := groups{}
	r.commandsForLeaf(path, leaves, gs)
	r.commandsForLeafList(path, leafLists, gs)
	r.place(path, value, stack, choose(gs))

	for _, name := range deeper {
		childPath := schema.Join(path, name)
		r.descend(childPath, node.Children[name], value[name], stack)
	}
}

// keepLeaf drops non-configurable leaves and, unless detail was asked
// for, leaves holding their schema default.
func (r *run) keepLeaf(path string, n *schema.Node, v any) bool {
	if !r.g.model.IsConfigurable(path) {
		return false
	}
	if !r.opts.Detail && n.HasDefault && schema.ValueEqual(v, n.Default) {
		r.log.Debug("leaf at default", "path", path)
		return false
	}
	return true
}

// flatten adds a container's leaves to leaves under path-qualified names.
func (r *run) flatten(path, prefix string, n *schema.Node, v any, leaves map[string]any) {
	m := asMap(v)
	if m == nil || !r.g.model.IsConfigurable(path) {
		return
	}
	for _, name := range n.ChildNames() {
		cv, ok := m[name]
		if !ok || cv == nil {
			continue
		}
		child := n.Children[name]
		childPath := schema.Join(path, name)
		qualified := prefix + "/" + name
		switch child.Type {
		case schema.Leaf:
			if r.keepLeaf(childPath, child, cv) {
				leaves[qualified] = cv
			}
		case schema.Container:
			r.flatten(childPath, qualified, child, cv, leaves)
		}
	}
}

func (r *run) commaRangeField(path, name string) bool {
	for _, d := range r.g.pathCommands[path] {
		for _, t := range r.g.commandFieldTypes[d.ID][name] {
			if t == command.IntegerCommaRanges {
				return true
			}
		}
	}
	return false
}

// listRanges collapses a list whose elements hold a single integer.
func listRanges(n *schema.Node, v any) (string, bool) {
	names := n.ChildNames()
	if len(names) != 1 {
		return "", false
	}
	var vals []any
	for _, e := range asList(v) {
		m, ok := e.(map[string]any)
		if !ok {
			return "", false
		}
		vals = append(vals, m[names[0]])
	}
	return collapseRanges(vals)
}

// collapseRanges renders integers as "a-b,c" with ascending runs.
func collapseRanges(vals []any) (string, bool) {
	if len(vals) == 0 {
		return "", false
	}
	ints := make([]int, 0, len(vals))
	for _, v := range vals {
		n, ok := schema.ToInt(v)
		if !ok {
			return "", false
		}
		ints = append(ints, n)
	}
	sort.Ints(ints)
	var parts []string
	for i := 0; i < len(ints); {
		j := i
		for j+1 < len(ints) && ints[j+1] <= ints[j]+1 {
			j++
		}
		if ints[i] == ints[j] {
			parts = append(parts, strconv.Itoa(ints[i]))
		} else {
			parts = append(parts, strconv.Itoa(ints[i])+"-"+strconv.Itoa(ints[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ","), true
}

// candidates returns the descriptors registered at path and at the
// container paths of qualified names.
func (r *run) candidates(path string, names []string) []*command.Descriptor {
	seen := map[string]bool{}
	var out []*command.Descriptor
	add := func(p string) {
		for _, d := range r.g.pathCommands[p] {
			if !seen[d.ID] {
				seen[d.ID] = true
				out = append(out, d)
			}
		}
	}
	add(path)
	for _, n := range names {
		if prefix, _ := schema.Split(n); prefix != "" {
			add(schema.Join(path, prefix))
		}
	}
	return out
}

// fieldsFor returns the subset of values the descriptor populates. A
// descriptor may name a field relative to path or absolutely.
func (r *run) fieldsFor(d *command.Descriptor, path string, values map[string]any) map[string]any {
	out := map[string]any{}
	fields := r.g.commandFields[d.ID]
	for name, v := range values {
		for _, f := range fields {
			switch f {
			case name:
				out[name] = v
			case schema.Join(path, name):
				out[f] = v
			}
		}
	}
	return out
}

func (r *run) commandsForLeaf(path string, leaves map[string]any, gs groups) {
	if len(leaves) == 0 {
		return
	}
	cands := r.candidates(path, sortedNames(leaves))
	if len(cands) == 0 {
		// lists without commands of their own may still be covered by a
		// descriptor naming the absolute key path
		keys := r.g.model.KeyFieldsOf(path)
		if len(keys) != 1 {
			return
		}
		if _, ok := leaves[keys[0]]; !ok {
			return
		}
		cands = r.g.pathCommands[schema.Join(path, keys[0])]
		if len(cands) == 0 {
			r.log.Debug("no commands for path", "path", path)
			return
		}
	}

	type scored struct {
		d      *command.Descriptor
		fields map[string]any
	}
	var matched []scored
	for _, d := range cands {
		if d.Type == command.ConfigSubmode {
			continue
		}
		if f := r.fieldsFor(d, path, leaves); len(f) > 0 {
			matched = append(matched, scored{d, f})
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if len(matched[i].fields) != len(matched[j].fields) {
			return len(matched[i].fields) > len(matched[j].fields)
		}
		return matched[i].d.ID < matched[j].d.ID
	})

	for _, m := range matched {
		if text, ok := command.Shortest(command.Render(m.d, m.fields)); ok {
			gs.add(sortedNames(m.fields), text, m.d)
			continue
		}
		r.subsets(path, m.d, m.fields, gs)
	}
}

// subsets renders the descriptor over every proper non-empty subset of
// fields, recording each rendering under the subset it covers.
func (r *run) subsets(path string, d *command.Descriptor, fields map[string]any, gs groups) {
	names := sortedNames(fields)
	n := len(names)
	if n < 2 {
		return
	}
	if n > r.opts.SubsetLimit {
		r.log.Warn("too many fields for partial coverage",
			"path", path, "id", d.ID, "fields", n, "limit", r.opts.SubsetLimit)
		r.diag(SubsetBoundExceeded, path, d.ID)
		r.g.obs.SubsetBoundExceeded()
		return
	}
	r.g.obs.SubsetSearch()
	for mask := 1; mask < 1<<n-1; mask++ {
		sub := map[string]any{}
		var used []string
		for i, name := range names {
			if mask&(1<<i) == 0 {
				sub[name] = fields[name]
				used = append(used, name)
			}
		}
		if text, ok := command.Shortest(command.Render(d, sub)); ok {
			gs.add(used, text, d)
		}
	}
}

// commandsForLeafList renders one command per element for descriptors
// populating exactly one of the leaf-list fields.
func (r *run) commandsForLeafList(path string, lists map[string][]any, gs groups) {
	if len(lists) == 0 {
		return
	}
	values := make(map[string]any, len(lists))
	for k, v := range lists {
		values[k] = v
	}
	for _, d := range r.candidates(path, sortedNames(values)) {
		if d.Type == command.ConfigSubmode {
			continue
		}
		matched := r.fieldsFor(d, path, values)
		if len(matched) != 1 {
			if len(matched) > 1 {
				r.log.Debug("descriptor spans several leaf-lists", "path", path, "id", d.ID)
			}
			continue
		}
		for f, v := range matched {
			for _, elem := range v.([]any) {
				text, ok := command.Shortest(command.Render(d, map[string]any{f: elem}))
				if !ok {
					continue
				}
				gs.add([]string{f + ":" + schema.FormatValue(elem)}, text, d)
			}
		}
	}
}

// choose drops groups whose fields another group covers and picks the
// shortest rendering of each remaining group.
func choose(gs groups) []candidate {
	keys := sortedNames(gs)
	var out []candidate
	for _, k := range keys {
		g := gs[k]
		subsumed := false
		for _, other := range keys {
			if other != k && subset(g.fields, gs[other].fields) {
				subsumed = true
				break
			}
		}
		if subsumed {
			continue
		}
		best := g.cands[0]
		for _, c := range g.cands[1:] {
			if len(c.text) < len(best.text) {
				best = c
			}
		}
		out = append(out, best)
	}
	return out
}

func subset(a, b []string) bool {
	if len(a) > len(b) {
		return false
	}
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	for _, s := range a {
		if !in[s] {
			return false
		}
	}
	return true
}

// place inserts each chosen command at the level its mode requires.
func (r *run) place(path string, value map[string]any, stack []*Frame, chosen []candidate) {
	var typical []scoreboard.Entry
	inner := innermostMode(stack)
	for _, c := range chosen {
		e := scoreboard.Entry{Priority: c.desc.Priority, Text: c.text}
		mode := c.desc.BaseMode()
		switch {
		case mode == command.ConfigMode:
			r.insert(nil, e)
		case mode != inner:
			sub := r.enterSubmode(path, value, unresolve(stack, mode), mode, 0)
			if lastResolvedMode(sub) != mode {
				r.log.Warn("no submode for command", "path", path, "mode", mode, "command", c.text)
				r.diag(UnplacedCommand, path, c.text)
				continue
			}
			r.insert(sub, e)
		default:
			typical = append(typical, e)
		}
	}
	if len(typical) > 0 {
		r.insert(stack, typical...)
	}
}

func innermostMode(stack []*Frame) string {
	if len(stack) == 0 {
		return ""
	}
	return stack[len(stack)-1].Mode
}

func lastResolvedMode(stack []*Frame) string {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].resolved() {
			return stack[i].Mode
		}
	}
	return ""
}

// unresolve blanks the innermost frames whose mode does not lead to mode,
// keeping their fields for the next submode entry.
func unresolve(stack []*Frame, mode string) []*Frame {
	out := append([]*Frame(nil), stack...)
	for i := len(out) - 1; i >= 0; i-- {
		f := out[i]
		if f.Mode == "" {
			continue
		}
		if strings.HasPrefix(mode, f.Mode) {
			break
		}
		out[i] = &Frame{Mode: f.Mode, Fields: f.Fields}
	}
	return out
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

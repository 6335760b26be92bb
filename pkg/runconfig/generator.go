// Package runconfig synthesizes running-config command text from the
// configuration stored in the datastore, driven by the schema and the
// command descriptor catalog.
package runconfig

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/psaab/bigsh/pkg/command"
	"github.com/psaab/bigsh/pkg/schema"
)

// Observer receives per-run counters. Implementations must be safe for
// concurrent use.
type Observer interface {
	RunFinished(elapsed time.Duration, commands int, codes []int)
	SubsetSearch()
	SubsetBoundExceeded()
	UnresolvedSubmode()
}

type nopObserver struct{}

func (nopObserver) RunFinished(time.Duration, int, []int) {}
func (nopObserver) SubsetSearch()                         {}
func (nopObserver) SubsetBoundExceeded()                  {}
func (nopObserver) UnresolvedSubmode()                    {}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger used for run diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// WithObserver attaches run counters.
func WithObserver(o Observer) Option {
	return func(g *Generator) { g.obs = o }
}

// Generator holds the indexes derived from a schema model and a descriptor
// registry. It is immutable after NewGenerator and may be shared between
// concurrent runs.
type Generator struct {
	model *schema.Model
	reg   *command.Registry
	log   *slog.Logger
	obs   Observer

	// submode name -> data path it edits
	targetModes map[string]string
	// submode name -> descriptor entering it
	targetModeCommand map[string]*command.Descriptor
	// data path -> descriptors entering a submode for its elements
	submode map[string][]*command.Descriptor
	// submode name -> pathless descriptors entering it
	submodeWithoutObject     map[string][]*command.Descriptor
	submodeWithoutObjectPath map[string][]*command.Descriptor
	// submode name -> data path; config, login and enable map to ""
	modePath map[string]string

	commandFields     map[string][]string
	commandFieldTypes map[string]map[string][]string
	// data path -> descriptors whose fields live at that path
	pathCommands map[string][]*command.Descriptor
	// every field named by any descriptor
	allFields map[string]bool

	objectPaths []string
	topPaths    []string
}

// NewGenerator indexes reg against m.
func NewGenerator(m *schema.Model, reg *command.Registry, opts ...Option) *Generator {
	g := &Generator{
		model:                    m,
		reg:                      reg,
		log:                      slog.Default(),
		obs:                      nopObserver{},
		targetModes:              map[string]string{},
		targetModeCommand:        map[string]*command.Descriptor{},
		submode:                  map[string][]*command.Descriptor{},
		submodeWithoutObject:     map[string][]*command.Descriptor{},
		submodeWithoutObjectPath: map[string][]*command.Descriptor{},
		modePath:                 map[string]string{command.ConfigMode: "", "login": "", "enable": ""},
		commandFields:            map[string][]string{},
		commandFieldTypes:        map[string]map[string][]string{},
		pathCommands:             map[string][]*command.Descriptor{},
		allFields:                map[string]bool{},
	}
	for _, o := range opts {
		o(g)
	}
	g.indexSubmodes()
	g.indexObjects()
	g.indexFields()
	g.topPaths = g.computeTopPaths()
	return g
}

func (g *Generator) indexSubmodes() {
	for _, d := range g.reg.All() {
		if d.Type != command.ConfigSubmode {
			continue
		}
		to := d.SubmodeName
		if d.Path == "" {
			g.submodeWithoutObject[to] = append(g.submodeWithoutObject[to], d)
			continue
		}
		if prev, ok := g.targetModes[to]; ok && prev != d.Path {
			g.log.Warn("submode reached from two paths",
				"mode", to, "path", d.Path, "previous", prev, "id", d.ID)
		}
		if prev, ok := g.targetModeCommand[to]; ok {
			g.log.Warn("submode entered by two descriptors",
				"mode", to, "id", d.ID, "previous", prev.ID)
		}
		g.targetModes[to] = d.Path
		g.targetModeCommand[to] = d
		g.submode[d.Path] = append(g.submode[d.Path], d)
		g.modePath[to] = d.Path
	}
}

// indexObjects links config-object descriptors whose paths have no submode
// of their own to the submode their mode names.
func (g *Generator) indexObjects() {
	for _, d := range g.reg.All() {
		if d.Type != command.ConfigObject || d.Path == "" {
			continue
		}
		mode := d.BaseMode()
		if _, ok := g.submodeWithoutObject[mode]; ok && mode != command.ConfigMode {
			g.submodeWithoutObjectPath[d.Path] = append(g.submodeWithoutObjectPath[d.Path], d)
			continue
		}
		if _, ok := g.submode[d.Path]; ok || g.hasSubmodeAbove(d.Path) {
			continue
		}
		if enter, ok := g.targetModeCommand[mode]; ok {
			g.submode[d.Path] = append(g.submode[d.Path], enter)
			g.objectPaths = append(g.objectPaths, d.Path)
		}
	}
}

func (g *Generator) hasSubmodeAbove(path string) bool {
	for p, _ := schema.Split(path); p != ""; p, _ = schema.Split(p) {
		if _, ok := g.submode[p]; ok {
			return true
		}
	}
	return false
}

func (g *Generator) matchMode(mode string) bool {
	base := strings.TrimSuffix(mode, "*")
	if _, ok := g.targetModes[base]; ok {
		return true
	}
	_, ok := g.submodeWithoutObject[base]
	return ok
}

func (g *Generator) indexFields() {
	for _, d := range g.reg.All() {
		if !g.matchMode(d.Mode) && !d.IsConfigMode() && d.Type != command.ConfigSubmode {
			continue
		}
		path := d.Path
		if path == "" {
			p, ok := g.modePath[d.BaseMode()]
			if !ok || p == "" {
				g.log.Debug("descriptor has no data path", "id", d.ID, "mode", d.Mode)
				continue
			}
			path = p
		}
		fields := d.Fields()
		g.commandFields[d.ID] = fields
		g.commandFieldTypes[d.ID] = d.FieldTypes()
		registered := map[string]bool{}
		for _, f := range fields {
			g.allFields[f] = true
			at := path
			if schema.IsPath(f) {
				parent, _ := schema.Split(f)
				if isPathPrefix(path, parent) {
					at = f
				} else {
					at = schema.Join(path, parent)
				}
			}
			if !registered[at] {
				registered[at] = true
				g.pathCommands[at] = append(g.pathCommands[at], d)
			}
		}
	}
}

// isPathPrefix reports whether prefix names path or one of its ancestors.
func isPathPrefix(prefix, path string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func (g *Generator) computeTopPaths() []string {
	seen := map[string]bool{}
	var cands []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			cands = append(cands, p)
		}
	}
	for _, p := range g.targetModes {
		add(p)
	}
	for _, p := range g.objectPaths {
		add(p)
	}
	for _, d := range g.reg.All() {
		if d.IsConfigMode() {
			add(d.Path)
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if len(cands[i]) != len(cands[j]) {
			return len(cands[i]) < len(cands[j])
		}
		return cands[i] < cands[j]
	})
	var tops []string
	for _, p := range cands {
		if _, err := g.model.Lookup(p); err != nil {
			g.log.Debug("top path not in schema", "path", p)
			continue
		}
		nested := false
		for _, t := range tops {
			if isPathPrefix(t, p) {
				nested = true
				break
			}
		}
		if !nested {
			tops = append(tops, p)
		}
	}
	sort.Strings(tops)
	return tops
}

// TopPaths returns the outermost data paths with configuration commands.
func (g *Generator) TopPaths() []string {
	return append([]string(nil), g.topPaths...)
}

// Model returns the schema model the generator was built from.
func (g *Generator) Model() *schema.Model { return g.model }

// Registry returns the descriptor registry.
func (g *Generator) Registry() *command.Registry { return g.reg }

// ModePath returns the data path a submode edits.
func (g *Generator) ModePath(mode string) (string, bool) {
	p, ok := g.modePath[mode]
	return p, ok
}

// CommandsForPath returns the descriptors whose fields live at path.
func (g *Generator) CommandsForPath(path string) []*command.Descriptor {
	return append([]*command.Descriptor(nil), g.pathCommands[schema.Clean(path)]...)
}

// Rendering is the text a descriptor produces for a set of values.
type Rendering struct {
	Descriptor *command.Descriptor
	Texts      []string
}

// Renderings renders every descriptor at path with the values it names.
// Descriptors that produce nothing are left out.
func (g *Generator) Renderings(path string, values map[string]any) []Rendering {
	var out []Rendering
	for _, d := range g.pathCommands[schema.Clean(path)] {
		own := map[string]any{}
		for k, v := range values {
			if d.HasField(k) {
				own[k] = v
			}
		}
		for k, v := range d.Data {
			if _, ok := own[k]; !ok {
				own[k] = v
			}
		}
		if texts := command.Render(d, own); len(texts) > 0 {
			out = append(out, Rendering{Descriptor: d, Texts: texts})
		}
	}
	return out
}

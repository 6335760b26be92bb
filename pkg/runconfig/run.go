package runconfig

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/psaab/bigsh/pkg/command"
	"github.com/psaab/bigsh/pkg/datastore"
	"github.com/psaab/bigsh/pkg/schema"
	"github.com/psaab/bigsh/pkg/scoreboard"
)

// DefaultSubsetLimit bounds the field count for which partial-coverage
// subsets are searched.
const DefaultSubsetLimit = 8

// maxSubmodeDepth bounds the parent-mode recursion of submode entry.
const maxSubmodeDepth = 32

// DiagnosticKind classifies a run diagnostic.
type DiagnosticKind int

const (
	QueryFailed DiagnosticKind = iota
	SubsetBoundExceeded
	UnresolvedSubmode
	UnplacedCommand
)

func (k DiagnosticKind) String() string {
	switch k {
	case QueryFailed:
		return "query-failed"
	case SubsetBoundExceeded:
		return "subset-bound-exceeded"
	case UnresolvedSubmode:
		return "unresolved-submode"
	case UnplacedCommand:
		return "unplaced-command"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Diagnostic is a non-fatal problem found during a run.
type Diagnostic struct {
	Kind   DiagnosticKind
	Path   string
	Detail string
}

func (d Diagnostic) String() string {
	if d.Detail == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Path)
	}
	return fmt.Sprintf("%s: %s: %s", d.Kind, d.Path, d.Detail)
}

// Top is a starting path with an optional query filter.
type Top struct {
	Path   string
	Filter map[string]any
}

// Options controls one run.
type Options struct {
	// Tops defaults to every top path.
	Tops []Top
	// Detail keeps leaves whose value equals the schema default.
	Detail bool
	// OmitBanner suppresses the incomplete-config warning.
	OmitBanner bool
	// SubsetLimit defaults to DefaultSubsetLimit.
	SubsetLimit int
}

// Result is the output of one run.
type Result struct {
	Lines       []string
	Codes       []int
	Diagnostics []Diagnostic
	Commands    int
}

// Frame is one level of the submode stack. A frame with empty Text is
// ambiguous or unresolved: it carries fields for deeper levels but prints
// nothing.
type Frame struct {
	Text       string
	Mode       string
	Desc       *command.Descriptor
	Fields     map[string]any
	Priority   command.Priority
	Candidates []string
}

func (f *Frame) resolved() bool { return f.Text != "" }

// run is the per-invocation state.
type run struct {
	g       *Generator
	ctx     context.Context
	q       datastore.Querier
	log     *slog.Logger
	opts    Options
	board   *scoreboard.Board
	diags   []Diagnostic
	pending map[*Frame]string
	count   int
}

// Generate queries each top path and returns the synthesized running
// configuration.
func (g *Generator) Generate(ctx context.Context, q datastore.Querier, opts Options) (*Result, error) {
	start := time.Now()
	tops := opts.Tops
	if len(tops) == 0 {
		for _, p := range g.topPaths {
			tops = append(tops, Top{Path: p})
		}
	}
	r := g.newRun(ctx, q, opts)

	for _, top := range tops {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("running-config: %w", err)
		}
		if err := r.top(top); err != nil {
			return nil, err
		}
	}

	res := &Result{
		Lines:       r.board.Serialize(),
		Codes:       r.board.Codes(),
		Diagnostics: r.diags,
		Commands:    r.count,
	}
	g.obs.RunFinished(time.Since(start), res.Commands, res.Codes)
	r.log.Debug("running-config generated",
		"commands", res.Commands, "diagnostics", len(res.Diagnostics),
		"elapsed", time.Since(start))
	return res, nil
}

func (g *Generator) newRun(ctx context.Context, q datastore.Querier, opts Options) *run {
	if opts.SubsetLimit <= 0 {
		opts.SubsetLimit = DefaultSubsetLimit
	}
	r := &run{
		g:       g,
		ctx:     ctx,
		q:       q,
		log:     g.log.With("run", uuid.NewString()),
		opts:    opts,
		board:   scoreboard.New(),
		pending: map[*Frame]string{},
	}
	r.board.SetBanner(!opts.OmitBanner)
	return r
}

func (r *run) top(top Top) error {
	path := schema.Clean(top.Path)
	node, value, err := r.q.Query(r.ctx, path, top.Filter)
	if err != nil {
		if code, ok := datastore.CodeOf(err); ok {
			r.board.AddError(code, path)
			r.log.Warn("query failed", "path", path, "code", code, "err", err)
			r.diag(QueryFailed, path, err.Error())
			return nil
		}
		if r.ctx.Err() != nil {
			return fmt.Errorf("running-config: %w", r.ctx.Err())
		}
		r.log.Warn("query failed", "path", path, "err", err)
		r.diag(QueryFailed, path, err.Error())
		return nil
	}
	if node == nil {
		if node, err = r.g.model.Lookup(path); err != nil {
			r.log.Debug("top path not in schema", "path", path)
			return nil
		}
	}
	if value == nil {
		r.log.Debug("no configuration", "path", path)
		return nil
	}
	r.descend(path, node, value, nil)
	return nil
}

func (r *run) diag(kind DiagnosticKind, path, detail string) {
	d := Diagnostic{Kind: kind, Path: path, Detail: detail}
	for _, seen := range r.diags {
		if seen == d {
			return
		}
	}
	r.diags = append(r.diags, d)
}

// insert records cmds below stack on the scoreboard and marks any
// ambiguous frame in stack as resolved by a deeper submode.
func (r *run) insert(stack []*Frame, cmds ...scoreboard.Entry) {
	for _, f := range stack {
		delete(r.pending, f)
	}
	r.board.Insert(entries(stack), cmds...)
	r.count += len(cmds)
}

func entries(stack []*Frame) []scoreboard.Entry {
	out := make([]scoreboard.Entry, 0, len(stack))
	for _, f := range stack {
		out = append(out, scoreboard.Entry{Priority: f.Priority, Text: f.Text})
	}
	return out
}

// descend processes the value found at path.
func (r *run) descend(path string, node *schema.Node, value any, stack []*Frame) {
	if !r.g.model.IsConfigurable(path) {
		r.log.Debug("skipping non-configurable path", "path", path)
		return
	}
	switch node.Type {
	case schema.List:
		for _, elem := range asList(value) {
			m, ok := elem.(map[string]any)
			if !ok {
				continue
			}
			r.element(path, node, m, stack)
		}
	case schema.Container:
		m := asMap(value)
		if m == nil {
			return
		}
		r.element(path, node, m, stack)
	case schema.Leaf, schema.LeafList:
		r.log.Debug("skipping leaf value outside an element", "path", path, "type", node.Type)
	default:
		r.log.Debug("skipping unknown node type", "path", path, "type", node.Type)
	}
}

func (r *run) element(path string, node *schema.Node, value map[string]any, stack []*Frame) {
	sub := r.enterSubmode(path, value, stack, "", 0)
	r.config(path, node, value, sub)
	for _, f := range sub[len(stack):] {
		r.settle(f)
	}
}

// settle reports f when it is an ambiguous frame nothing below resolved.
func (r *run) settle(f *Frame) {
	p, ok := r.pending[f]
	if !ok {
		return
	}
	delete(r.pending, f)
	r.log.Warn("submode entry ambiguous", "path", p, "candidates", f.Candidates)
	r.diag(UnresolvedSubmode, p, fmt.Sprint(f.Candidates))
	r.g.obs.UnresolvedSubmode()
}

func asList(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case []map[string]any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out
	case map[string]any:
		return []any{x}
	}
	return nil
}

func asMap(v any) map[string]any {
	switch x := v.(type) {
	case map[string]any:
		return x
	case []any:
		if len(x) == 1 {
			m, _ := x[0].(map[string]any)
			return m
		}
	case []map[string]any:
		if len(x) == 1 {
			return x[0]
		}
	}
	return nil
}

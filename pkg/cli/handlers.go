package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/psaab/bigsh/pkg/cmdline"
	"github.com/psaab/bigsh/pkg/configstore"
	"github.com/psaab/bigsh/pkg/runconfig"
	"github.com/psaab/bigsh/pkg/schema"
	"github.com/psaab/bigsh/pkg/selector"
)

func (c *CLI) handleShow(ctx context.Context, words []cmdline.Word) ([]string, error) {
	if len(words) == 0 {
		return nil, errors.New("show: specify what to show")
	}
	args := cmdline.Line{Words: words[1:]}
	switch words[0].Text {
	case "running-config":
		return c.showRunningConfig(ctx, args)
	case "schema":
		return c.showSchema(args.Positional())
	case "selector":
		return c.showSelector(args)
	case "commands":
		return c.showCommands(args)
	case "top-paths":
		return c.g.TopPaths(), nil
	case "history":
		return c.showHistory(), nil
	case "compare":
		return c.showCompare(ctx, args.Positional())
	case "log":
		return c.showLog(args.Positional())
	}
	return nil, fmt.Errorf("show: unknown target %s", words[0].Text)
}

// showRunningConfig handles "show running-config [detail] [path...]
// [key=value...]". Constraints need exactly one path.
func (c *CLI) showRunningConfig(ctx context.Context, args cmdline.Line) ([]string, error) {
	opts := c.opts
	paths := args.Positional()
	if len(paths) > 0 && paths[0] == "detail" {
		opts.Detail = true
		paths = paths[1:]
	}
	pairs := args.Pairs()
	if len(pairs) > 0 && len(paths) != 1 {
		return nil, errors.New("running-config: key=value constraints need exactly one path")
	}
	if len(paths) > 0 {
		opts.Tops = nil
	}
	for _, p := range paths {
		p = schema.Clean(p)
		if _, err := c.g.Model().Lookup(p); err != nil {
			return nil, err
		}
		top := runconfig.Top{Path: p}
		if len(pairs) > 0 {
			filter, err := selector.Canonicalize(c.g.Model(), p, pairs)
			if err != nil {
				return nil, err
			}
			top.Filter = filter
		}
		opts.Tops = append(opts.Tops, top)
	}

	res, err := c.g.Generate(ctx, c.q, opts)
	if err != nil {
		return nil, err
	}
	for _, d := range res.Diagnostics {
		c.log.Debug("running-config diagnostic", "kind", d.Kind.String(), "path", d.Path, "detail", d.Detail)
	}
	comment := "show running-config"
	if len(paths) > 0 {
		comment += " " + strings.Join(paths, " ")
	}
	c.store.Record(ctx, res.Lines, res.Codes, comment)
	return res.Lines, nil
}

func (c *CLI) showSchema(args []string) ([]string, error) {
	path := ""
	if len(args) > 0 {
		path = schema.Clean(args[0])
	}
	m := c.g.Model()
	node := m.Root()
	if path != "" {
		n, err := m.Lookup(path)
		if err != nil {
			return nil, err
		}
		node = n
	}

	name := path
	if name == "" {
		name = "/"
	}
	out := []string{fmt.Sprintf("%s (%s)", name, strings.ToLower(node.Type.String()))}
	if node.Description != "" {
		out = append(out, "  description: "+node.Description)
	}
	if len(node.KeyFields) > 0 {
		out = append(out, "  keys: "+strings.Join(node.KeyFields, ", "))
	}
	if node.IsLeaf() {
		out = append(out, "  leaf-type: "+node.LeafType)
		if node.TypeName != "" {
			out = append(out, "  type-name: "+node.TypeName)
		}
		if node.HasDefault {
			out = append(out, "  default: "+schema.FormatValue(node.Default))
		}
		for _, v := range node.Validators {
			out = append(out, fmt.Sprintf("  validator: %+v", v))
		}
	}
	if node.Mandatory {
		out = append(out, "  mandatory")
	}
	if path != "" && !m.IsConfigurable(path) {
		out = append(out, "  read-only")
	}
	for _, child := range node.ChildNames() {
		n := node.Children[child]
		flag := ""
		if node.IsKey(child) {
			flag = " key"
		}
		out = append(out, fmt.Sprintf("  %-24s %s%s", child, strings.ToLower(n.Type.String()), flag))
	}
	return out, nil
}

func (c *CLI) showSelector(args cmdline.Line) ([]string, error) {
	paths := args.Positional()
	if len(paths) == 0 {
		return nil, errors.New("selector: missing path")
	}
	path := schema.Clean(paths[0])
	constraints, err := selector.Canonicalize(c.g.Model(), path, args.Pairs())
	if err != nil {
		return nil, err
	}
	op := selector.Query
	if len(paths) > 1 {
		if op, err = selector.ParseOperation(paths[1]); err != nil {
			return nil, err
		}
	}
	res, err := selector.Build(c.g.Model(), path, constraints, op)
	if err != nil {
		return nil, err
	}
	out := []string{res.Selector}
	for _, s := range res.Selects {
		out = append(out, "  select: "+s)
	}
	for _, k := range sortedKeys(res.Unconsumed) {
		out = append(out, fmt.Sprintf("  unconsumed: %s=%s", k, schema.FormatValue(res.Unconsumed[k])))
	}
	if res.UnconstrainedKeyDepth > 0 {
		out = append(out, fmt.Sprintf("  unconstrained keys: %d", res.UnconstrainedKeyDepth))
	}
	return out, nil
}

func (c *CLI) showCommands(args cmdline.Line) ([]string, error) {
	paths := args.Positional()
	if len(paths) == 0 {
		return nil, errors.New("commands: missing path")
	}
	path := schema.Clean(paths[0])
	values, err := selector.Canonicalize(c.g.Model(), path, args.Pairs())
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range c.g.Renderings(path, values) {
		for _, text := range r.Texts {
			out = append(out, fmt.Sprintf("%-24s %s", r.Descriptor.ID, text))
		}
	}
	if len(out) == 0 {
		return []string{"no commands render at " + path}, nil
	}
	return out, nil
}

func (c *CLI) showHistory() []string {
	list := c.store.History().List()
	if len(list) == 0 {
		return []string{"no snapshots recorded"}
	}
	out := make([]string, 0, len(list))
	for i, s := range list {
		state := "complete"
		if !s.Complete() {
			state = "incomplete"
		}
		out = append(out, fmt.Sprintf("%-3d %s  %s  %4d lines  %-10s  %s",
			i, shortID(s.ID), s.Time.Format("2006-01-02 15:04:05"), len(s.Lines), state, s.Comment))
	}
	return out
}

// showCompare diffs two snapshots; the defaults are the previous and the
// latest.
func (c *CLI) showCompare(ctx context.Context, refs []string) ([]string, error) {
	from, to := "1", "0"
	switch len(refs) {
	case 0:
	case 1:
		from = refs[0]
	default:
		from, to = refs[0], refs[1]
	}
	a, err := c.store.Lookup(ctx, from)
	if err != nil {
		return nil, err
	}
	b, err := c.store.Lookup(ctx, to)
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimSuffix(configstore.Compare(a, b), "\n"), "\n"), nil
}

func (c *CLI) showLog(args []string) ([]string, error) {
	if c.logs == nil {
		return nil, errors.New("log buffer is disabled")
	}
	n := 20
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("log: invalid count %q", args[0])
		}
		n = v
	}
	recs := c.logs.Latest(n, slog.LevelDebug)
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.String()
	}
	return out, nil
}

// handleSet handles "set <path> key=value...". Values naming non-key
// leaves of the final node are written; the rest address the element.
func (c *CLI) handleSet(ctx context.Context, args cmdline.Line) error {
	if c.mut == nil {
		return errors.New("set: datastore is read-only")
	}
	paths := args.Positional()
	if len(paths) != 1 {
		return errors.New("usage: set <path> key=value...")
	}
	m := c.g.Model()
	path := schema.Clean(paths[0])
	node, err := m.Lookup(path)
	if err != nil {
		return err
	}
	values, err := selector.Canonicalize(m, path, args.Pairs())
	if err != nil {
		return err
	}
	constraints, data := map[string]any{}, map[string]any{}
	for k, v := range values {
		if child, ok := node.Children[k]; ok && child.IsLeaf() && !node.IsKey(k) {
			data[k] = v
			continue
		}
		constraints[k] = v
	}
	plan, err := selector.PlanSet(m, path, constraints, data)
	if err != nil {
		return err
	}
	return c.apply(ctx, plan)
}

// handleDelete handles "delete <path> key=value... [field...]".
func (c *CLI) handleDelete(ctx context.Context, args cmdline.Line) error {
	if c.mut == nil {
		return errors.New("delete: datastore is read-only")
	}
	paths := args.Positional()
	if len(paths) == 0 {
		return errors.New("usage: delete <path> key=value... [field...]")
	}
	m := c.g.Model()
	path := schema.Clean(paths[0])
	constraints, err := selector.Canonicalize(m, path, args.Pairs())
	if err != nil {
		return err
	}
	plans, err := selector.PlanDelete(m, path, constraints, paths[1:])
	if err != nil {
		return err
	}
	for _, p := range plans {
		if err := c.apply(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *CLI) apply(ctx context.Context, plan selector.Plan) error {
	c.log.Info("applying change", "op", plan.Op.String(), "selector", plan.Selector)
	if err := c.mut.Apply(ctx, plan); err != nil {
		return err
	}
	if c.invalidate != nil {
		c.invalidate()
	}
	return nil
}

// handleSave handles "save <file> [snapshot]".
func (c *CLI) handleSave(ctx context.Context, args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, errors.New("usage: save <file> [snapshot]")
	}
	ref := "0"
	if len(args) > 1 {
		ref = args[1]
	}
	snap, err := c.store.Lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := configstore.Save(args[0], snap); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("saved %s to %s", shortID(snap.ID), args[0])}, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

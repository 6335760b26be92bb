// Package scoreboard accumulates generated configuration commands in a
// submode-nested tree and serializes them in priority order.
package scoreboard

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/psaab/bigsh/pkg/command"
)

// Entry is a command or a submode-entry command with its rc-order. An entry
// with empty Text in a submode path is an ambiguous frame and is skipped.
type Entry struct {
	Priority command.Priority
	Text     string
}

func (e Entry) key() string {
	return e.Priority.String() + "\x00" + e.Text
}

type child struct {
	entry Entry
	node  *node
}

type node struct {
	commands []Entry
	seen     map[string]bool
	children map[string]*child
}

func newNode() *node {
	return &node{seen: map[string]bool{}, children: map[string]*child{}}
}

// Diagnostic is a coded failure recorded during a run.
type Diagnostic struct {
	Code int
	Path string
}

// Board is one run's output tree. It is not safe for concurrent use.
type Board struct {
	root   *node
	diags  []Diagnostic
	banner bool
}

// New returns an empty board that prints a warning banner when coded
// errors were recorded.
func New() *Board {
	return &Board{root: newNode(), banner: true}
}

// SetBanner controls the warning banner.
func (b *Board) SetBanner(on bool) { b.banner = on }

// Insert places cmds beneath the submode path given by stack. Priorities
// are negated here, so larger rc-orders serialize first. Exact repeats of
// a (priority, text) pair are dropped.
func (b *Board) Insert(stack []Entry, cmds ...Entry) {
	n := b.root
	for _, frame := range stack {
		if frame.Text == "" {
			continue
		}
		e := Entry{Priority: frame.Priority.Negated(), Text: frame.Text}
		k := e.key()
		c, ok := n.children[k]
		if !ok {
			c = &child{entry: e, node: newNode()}
			n.children[k] = c
		}
		n = c.node
	}
	for _, cmd := range cmds {
		if cmd.Text == "" {
			continue
		}
		e := Entry{Priority: cmd.Priority.Negated(), Text: cmd.Text}
		k := e.key()
		if n.seen[k] {
			continue
		}
		n.seen[k] = true
		n.commands = append(n.commands, e)
	}
}

// AddError records a coded transport failure for path.
func (b *Board) AddError(code int, path string) {
	b.diags = append(b.diags, Diagnostic{Code: code, Path: path})
}

// Diagnostics returns the recorded failures in insertion order.
func (b *Board) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), b.diags...)
}

// Codes returns the distinct recorded codes in ascending order.
func (b *Board) Codes() []int {
	seen := map[int]bool{}
	var codes []int
	for _, d := range b.diags {
		if !seen[d.Code] {
			seen[d.Code] = true
			codes = append(codes, d.Code)
		}
	}
	sort.Ints(codes)
	return codes
}

// CodeName names an HTTP-style error code.
func CodeName(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not found"
	}
	if text := http.StatusText(code); text != "" {
		return strings.ToLower(text)
	}
	return fmt.Sprintf("error %d", code)
}

// CodeFromName inverts CodeName.
func CodeFromName(name string) (int, bool) {
	if rest, ok := strings.CutPrefix(name, "error "); ok {
		code, err := strconv.Atoi(rest)
		return code, err == nil
	}
	for code := 100; code < 600; code++ {
		if CodeName(code) == name {
			return code, true
		}
	}
	return 0, false
}

// IncompletePrefix starts the banner line listing why output is partial.
const IncompletePrefix = "! Warning: running config incomplete due to: "

// Banner returns the warning lines for the recorded codes, or nil.
func (b *Board) Banner() []string {
	codes := b.Codes()
	if len(codes) == 0 {
		return nil
	}
	names := make([]string, 0, len(codes))
	for _, c := range codes {
		names = append(names, CodeName(c))
	}
	return []string{
		"!",
		IncompletePrefix + strings.Join(names, ", "),
	}
}

// Serialize emits the tree depth-first. Top-level items are separated by
// blank lines, with a "! <keyword>" comment whenever the leading keyword
// changes; nested items are indented two spaces per level.
func (b *Board) Serialize() []string {
	var lines []string
	if b.banner {
		lines = append(lines, b.Banner()...)
	}
	return emit(lines, b.root, 0)
}

// String joins the serialized lines.
func (b *Board) String() string {
	lines := b.Serialize()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

type item struct {
	entry Entry
	child *child
}

func emit(lines []string, n *node, depth int) []string {
	items := make([]item, 0, len(n.commands)+len(n.children))
	entries := make([]Entry, 0, cap(items))
	byKey := map[string]item{}
	for _, e := range n.commands {
		it := item{entry: e}
		byKey["c"+e.key()] = it
		entries = append(entries, e)
	}
	for _, c := range n.children {
		byKey["n"+c.entry.key()] = item{entry: c.entry, child: c}
		entries = append(entries, c.entry)
	}
	// A command and a submode may share text; commands go first.
	for _, e := range Sort(entries) {
		if it, ok := byKey["c"+e.key()]; ok {
			items = append(items, it)
			delete(byKey, "c"+e.key())
			continue
		}
		items = append(items, byKey["n"+e.key()])
	}

	indent := strings.Repeat("  ", depth)
	last := ""
	for _, it := range items {
		if depth == 0 {
			word := FirstWord(it.entry.Text)
			lines = append(lines, "")
			if word != last {
				lines = append(lines, "! "+word)
			}
			last = word
		}
		lines = append(lines, indent+it.entry.Text)
		if it.child != nil {
			lines = emit(lines, it.child.node, depth+1)
		}
	}
	return lines
}

// FirstWord returns the keyword used for top-level banners, looking past a
// leading "no".
func FirstWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	if fields[0] == "no" && len(fields) > 1 {
		return fields[1]
	}
	return fields[0]
}

// Package cmdtree defines the command tree of the bigsh shell. The shell's
// dispatcher, tab completion and '?' help all read from it.
package cmdtree

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Env supplies the dynamic completion values.
type Env interface {
	// SchemaPaths lists every schema path.
	SchemaPaths() []string
	// TopPaths lists the running-config top paths.
	TopPaths() []string
	// Snapshots lists recorded snapshot references, most recent first.
	Snapshots() []string
}

// Node is a command tree node. A node with DynamicFn accepts any value at
// its position and offers DynamicFn's results for completion.
type Node struct {
	Desc      string
	Children  map[string]*Node
	DynamicFn func(env Env) []string
	// Repeat lets the dynamic value appear any number of times.
	Repeat bool
}

// Candidate holds a command name and its description for display.
type Candidate struct {
	Name string
	Desc string
}

func schemaPaths(env Env) []string { return env.SchemaPaths() }
func topPaths(env Env) []string    { return env.TopPaths() }
func snapshots(env Env) []string   { return env.Snapshots() }

// Tree is the shell's command tree.
var Tree = map[string]*Node{
	"show": {Desc: "Show information", Children: map[string]*Node{
		"running-config": {Desc: "Show the synthesized running configuration", DynamicFn: topPaths, Repeat: true,
			Children: map[string]*Node{
				"detail": {Desc: "Include values equal to their schema default", DynamicFn: topPaths, Repeat: true},
			}},
		"schema":    {Desc: "Show the schema node at a path", DynamicFn: schemaPaths},
		"selector":  {Desc: "Show the query selector for a path and key=value constraints", DynamicFn: schemaPaths},
		"commands":  {Desc: "Show every rendering of the commands at a path", DynamicFn: schemaPaths},
		"top-paths": {Desc: "Show the running-config top paths"},
		"history":   {Desc: "Show recorded running-config snapshots"},
		"compare":   {Desc: "Compare two snapshots [old] [new]", DynamicFn: snapshots, Repeat: true},
		"log":       {Desc: "Show recent log entries [N]"},
	}},
	"set":    {Desc: "Create or update an element: set <path> key=value...", DynamicFn: schemaPaths},
	"delete": {Desc: "Delete an element or fields: delete <path> key=value... [field...]", DynamicFn: schemaPaths},
	"save":   {Desc: "Save a snapshot to a file: save <file> [snapshot]"},
	"clear": {Desc: "Clear information", Children: map[string]*Node{
		"log":   {Desc: "Clear the log buffer"},
		"cache": {Desc: "Drop cached datastore results"},
	}},
	"help": {Desc: "Show available commands"},
	"exit": {Desc: "Exit the shell"},
	"quit": {Desc: "Exit the shell"},
}

// KeysFromTree returns the sorted keys of tree.
func KeysFromTree(tree map[string]*Node) []string {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HelpCandidates returns the children of tree for help display.
func HelpCandidates(tree map[string]*Node) []Candidate {
	out := make([]Candidate, 0, len(tree))
	for name, n := range tree {
		out = append(out, Candidate{Name: name, Desc: n.Desc})
	}
	return out
}

// Resolve expands unambiguous prefixes of the leading keyword words, so
// "sh run" becomes "show running-config". Words past the keywords are
// returned unchanged. An ambiguous or unknown keyword is an error.
func Resolve(tree map[string]*Node, words []string) ([]string, error) {
	out := append([]string(nil), words...)
	current := tree
	for i, w := range words {
		if current == nil {
			break
		}
		if _, ok := current[w]; !ok {
			matches := FilterPrefix(KeysFromTree(current), w)
			switch len(matches) {
			case 1:
				out[i] = matches[0]
			case 0:
				if i > 0 {
					return out, nil
				}
				return nil, fmt.Errorf("unknown command: %s", w)
			default:
				if i > 0 {
					return out, nil
				}
				return nil, fmt.Errorf("ambiguous command %q: %s", w, strings.Join(matches, ", "))
			}
		}
		current = current[out[i]].Children
	}
	return out, nil
}

// walk follows words through tree and returns the children and node at the
// end. ok is false when a word matches nothing.
func walk(tree map[string]*Node, words []string) (children map[string]*Node, node *Node, dynamicConsumed, ok bool) {
	current := tree
	for _, w := range words {
		dynamicConsumed = false
		next, found := current[w]
		if !found {
			if node != nil && node.DynamicFn != nil {
				dynamicConsumed = true
				if !node.Repeat {
					current = nil
				}
				continue
			}
			return nil, nil, false, false
		}
		node = next
		current = next.Children
	}
	return current, node, dynamicConsumed, true
}

// Complete returns the names that may follow words and start with partial.
func Complete(tree map[string]*Node, words []string, partial string, env Env) []Candidate {
	children, node, dynamicConsumed, ok := walk(tree, words)
	if !ok {
		return nil
	}
	var out []Candidate
	for name, n := range children {
		if strings.HasPrefix(name, partial) {
			out = append(out, Candidate{Name: name, Desc: n.Desc})
		}
	}
	if node != nil && node.DynamicFn != nil && env != nil && (!dynamicConsumed || node.Repeat) {
		for _, v := range node.DynamicFn(env) {
			if strings.HasPrefix(v, partial) {
				out = append(out, Candidate{Name: v})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the candidate names.
func Names(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Name
	}
	return out
}

// WriteHelp prints aligned completion candidates to w in one write.
func WriteHelp(w io.Writer, candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	width := 20
	for _, c := range candidates {
		if len(c.Name)+2 > width {
			width = len(c.Name) + 2
		}
	}
	var sb strings.Builder
	sb.WriteString("Possible completions:\n")
	for _, c := range candidates {
		if c.Desc != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", width, c.Name, c.Desc)
		} else {
			fmt.Fprintf(&sb, "  %s\n", c.Name)
		}
	}
	io.WriteString(w, sb.String())
}

// CommonPrefix returns the longest shared prefix among items.
func CommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}

// FilterPrefix returns the items starting with prefix.
func FilterPrefix(items []string, prefix string) []string {
	var out []string
	for _, s := range items {
		if strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	return out
}

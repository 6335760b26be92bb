package cli

import (
	"sort"
	"strings"

	"github.com/psaab/bigsh/pkg/cmdline"
	"github.com/psaab/bigsh/pkg/cmdtree"
	"github.com/psaab/bigsh/pkg/schema"
)

// completer implements readline.AutoCompleter over the command tree.
type completer struct {
	c *CLI
}

func (cp *completer) Do(line []rune, pos int) ([][]rune, int) {
	cands, partial := cp.c.complete(string(line[:pos]))
	if len(cands) == 0 {
		return nil, 0
	}
	if len(cands) == 1 {
		suffix := cands[0].Name[len(partial):]
		if !strings.HasSuffix(suffix, "=") {
			suffix += " "
		}
		return [][]rune{[]rune(suffix)}, len(partial)
	}
	cmdtree.WriteHelp(cp.c.out, cands)
	suffix := cmdtree.CommonPrefix(cmdtree.Names(cands))[len(partial):]
	if suffix == "" {
		return nil, 0
	}
	return [][]rune{[]rune(suffix)}, len(partial)
}

// complete returns the candidates for the word being typed at the end of
// text, and that partial word.
func (c *CLI) complete(text string) ([]cmdtree.Candidate, string) {
	trailingSpace := strings.HasSuffix(text, " ")
	if idx := strings.LastIndex(text, "|"); idx >= 0 {
		after := strings.TrimLeft(text[idx+1:], " ")
		if strings.Contains(after, " ") || (after != "" && trailingSpace) {
			return nil, ""
		}
		return pipeCandidates(after), after
	}

	words := strings.Fields(text)
	partial := ""
	if !trailingSpace && len(words) > 0 {
		partial = words[len(words)-1]
		words = words[:len(words)-1]
	}
	resolved, err := cmdtree.Resolve(cmdtree.Tree, words)
	if err != nil {
		return nil, partial
	}
	cands := cmdtree.Complete(cmdtree.Tree, resolved, partial, c)
	cands = append(cands, c.fieldCandidates(resolved, partial)...)
	return cands, partial
}

func pipeCandidates(partial string) []cmdtree.Candidate {
	var out []cmdtree.Candidate
	for name, desc := range cmdline.Filters {
		if strings.HasPrefix(name, partial) {
			out = append(out, cmdtree.Candidate{Name: name, Desc: desc})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// pathCommands take a schema path followed by key=value words.
var pathCommands = map[string]int{
	"set":      1,
	"delete":   1,
	"selector": 2,
	"commands": 2,
}

// fieldCandidates offers "name=" for the leaves of the path already typed
// after set, delete, show selector and show commands.
func (c *CLI) fieldCandidates(words []string, partial string) []cmdtree.Candidate {
	if strings.Contains(partial, "=") {
		return nil
	}
	var at int
	switch {
	case len(words) >= 2 && words[0] == "show":
		at = pathCommands[words[1]]
	case len(words) >= 1:
		at = pathCommands[words[0]]
	}
	if at == 0 || len(words) <= at {
		return nil
	}
	path := schema.Clean(words[at])
	node, err := c.g.Model().Lookup(path)
	if err != nil {
		return nil
	}
	typed := map[string]bool{}
	for _, w := range words[at+1:] {
		if k, _, ok := strings.Cut(w, "="); ok {
			typed[k] = true
		}
	}
	var out []cmdtree.Candidate
	for _, name := range node.ChildNames() {
		child := node.Children[name]
		if !child.IsLeaf() || typed[name] || !strings.HasPrefix(name, partial) {
			continue
		}
		desc := strings.ToLower(child.LeafType)
		if node.IsKey(name) {
			desc = "key, " + desc
		}
		out = append(out, cmdtree.Candidate{Name: name + "=", Desc: desc})
	}
	return out
}

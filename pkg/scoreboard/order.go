package scoreboard

import (
	"sort"
	"strings"

	"github.com/psaab/bigsh/pkg/command"
)

// compareEntries orders one pair of entries whose priorities have already
// been negated. It is a pairwise check only: the prefix rule makes it
// intransitive, so it must not drive a sort. Sort builds the full order.
//
//   - numeric vs numeric: by value, then text
//   - prefix-constrained vs numeric: the constrained entry comes first when
//     the other's text starts with one of its prefixes
//   - otherwise: by numeric part (zero when absent), then text
func compareEntries(a, b Entry) int {
	ak, bk := a.Priority.Kind, b.Priority.Kind
	if ak == command.PrefixConstrained && bk == command.Numeric && hasPrefix(b.Text, a.Priority.Prefixes) {
		return -1
	}
	if ak == command.Numeric && bk == command.PrefixConstrained && hasPrefix(a.Text, b.Priority.Prefixes) {
		return 1
	}
	return base(a, b)
}

func base(a, b Entry) int {
	switch {
	case a.Priority.Value < b.Priority.Value:
		return -1
	case a.Priority.Value > b.Priority.Value:
		return 1
	}
	if c := strings.Compare(a.Text, b.Text); c != 0 {
		return c
	}
	switch {
	case a.Priority.Kind < b.Priority.Kind:
		return -1
	case a.Priority.Kind > b.Priority.Kind:
		return 1
	}
	return strings.Compare(a.Priority.String(), b.Priority.String())
}

func hasPrefix(text string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}

// Sort returns entries in output order. Entries are first ordered by
// numeric part and text; each prefix-constrained entry is then moved ahead
// of the earliest numeric entry its prefixes match. The result depends only
// on the set of entries, never on their input order.
func Sort(entries []Entry) []Entry {
	out := append([]Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool { return base(out[i], out[j]) < 0 })

	constrained := make([]Entry, 0)
	for _, e := range out {
		if e.Priority.Kind == command.PrefixConstrained {
			constrained = append(constrained, e)
		}
	}
	for _, e := range constrained {
		from := indexOf(out, e)
		to := -1
		for j := 0; j < from; j++ {
			if out[j].Priority.Kind == command.Numeric && hasPrefix(out[j].Text, e.Priority.Prefixes) {
				to = j
				break
			}
		}
		if to < 0 {
			continue
		}
		copy(out[to+1:from+1], out[to:from])
		out[to] = e
	}
	return out
}

func indexOf(entries []Entry, e Entry) int {
	for i, x := range entries {
		if x.key() == e.key() {
			return i
		}
	}
	return -1
}

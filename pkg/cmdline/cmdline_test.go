package cmdline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWords(t *testing.T) {
	l, err := Parse(`set  core/switch dpid=00:00:00:00:00:00:00:01 alias="spine 1" 'a b'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"set", "core/switch", "dpid=00:00:00:00:00:00:00:01", "alias=spine 1", "a b"}, l.Args())
	assert.Equal(t, []string{"set", "core/switch", "a b"}, l.Positional())
	assert.Equal(t, map[string]string{
		"dpid":  "00:00:00:00:00:00:00:01",
		"alias": "spine 1",
	}, l.Pairs())
	assert.Empty(t, l.Pipes)
}

func TestParseQuotedWordIsNotPair(t *testing.T) {
	l, err := Parse(`show "x=y" "say \"hi\""`)
	require.NoError(t, err)
	assert.Equal(t, []string{"show", "x=y", `say "hi"`}, l.Positional())
	assert.Empty(t, l.Pairs())
	assert.True(t, l.Words[1].Quoted)
}

func TestParsePipes(t *testing.T) {
	l, err := Parse(`show running-config | grep "interface eth" | last 3`)
	require.NoError(t, err)
	assert.Equal(t, []string{"show", "running-config"}, l.Args())
	assert.Equal(t, []Pipe{{Filter: "grep", Arg: "interface eth"}, {Filter: "last", Arg: "3"}}, l.Pipes)

	l, err = Parse(`show log "a|b"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"show", "log", "a|b"}, l.Args())
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{
		`show "open`,
		`show |`,
		`show | | count`,
		`show | frobnicate`,
	} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrSyntax, in)
	}
}

func TestApply(t *testing.T) {
	lines := []string{"switch 1", "  Interface eth1", "  speed 10", "switch 2", "  interface eth2"}

	tests := []struct {
		pipes []Pipe
		want  []string
	}{
		{[]Pipe{{"grep", "interface"}}, []string{"  Interface eth1", "  interface eth2"}},
		{[]Pipe{{"match", "SWITCH"}}, []string{"switch 1", "switch 2"}},
		{[]Pipe{{"except", "interface"}}, []string{"switch 1", "  speed 10", "switch 2"}},
		{[]Pipe{{"find", "speed"}}, []string{"  speed 10", "switch 2", "  interface eth2"}},
		{[]Pipe{{"find", "absent"}}, nil},
		{[]Pipe{{"count", ""}}, []string{"Count: 5 lines"}},
		{[]Pipe{{"last", "2"}}, []string{"switch 2", "  interface eth2"}},
		{[]Pipe{{"last", ""}}, lines},
		{[]Pipe{{"no-more", ""}}, lines},
		{[]Pipe{{"grep", "interface"}, {"count", ""}}, []string{"Count: 2 lines"}},
	}
	for _, tt := range tests {
		got, err := Apply(lines, tt.pipes)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%v", tt.pipes)
	}

	_, err := Apply(lines, []Pipe{{"last", "x"}})
	assert.ErrorIs(t, err, ErrSyntax)
}

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferWraps(t *testing.T) {
	b := NewBuffer(3)
	for i, msg := range []string{"a", "b", "c", "d"} {
		b.Add(Record{Time: time.Unix(int64(i), 0), Level: slog.LevelInfo, Message: msg})
	}
	assert.Equal(t, 3, b.Len())

	var got []string
	for _, r := range b.Latest(0, slog.LevelDebug) {
		got = append(got, r.Message)
	}
	assert.Equal(t, []string{"b", "c", "d"}, got)

	latest := b.Latest(1, slog.LevelDebug)
	require.Len(t, latest, 1)
	assert.Equal(t, "d", latest[0].Message)

	b.Clear()
	assert.Zero(t, b.Len())
	assert.Empty(t, b.Latest(0, slog.LevelDebug))
}

func TestBufferLevelFilter(t *testing.T) {
	b := NewBuffer(10)
	b.Add(Record{Level: slog.LevelDebug, Message: "dbg"})
	b.Add(Record{Level: slog.LevelWarn, Message: "warn"})
	got := b.Latest(0, slog.LevelInfo)
	require.Len(t, got, 1)
	assert.Equal(t, "warn", got[0].Message)
}

func TestBufferSubscribe(t *testing.T) {
	b := NewBuffer(4)
	sub := b.Subscribe(1)
	b.Add(Record{Message: "one"})
	b.Add(Record{Message: "two"}) // dropped, channel full

	select {
	case r := <-sub.C:
		assert.Equal(t, "one", r.Message)
	default:
		t.Fatal("no record delivered")
	}
	sub.Close()
	b.Add(Record{Message: "three"})
	assert.Empty(t, sub.C)
}

func TestBufferHandler(t *testing.T) {
	var out bytes.Buffer
	b := NewBuffer(10)
	base := slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo})
	log := slog.New(NewBufferHandler(base, b, slog.LevelDebug))

	log.Debug("hidden", "path", "core/switch")
	log.With("run", "r1").WithGroup("q").Info("shown", "code", 403)

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")

	recs := b.Latest(0, slog.LevelDebug)
	require.Len(t, recs, 2)
	assert.Equal(t, "path=core/switch", recs[0].Attrs)
	assert.Equal(t, "run=r1 q.code=403", recs[1].Attrs)
	assert.True(t, strings.HasSuffix(recs[1].String(), "INFO shown run=r1 q.code=403"))
}

func TestSetup(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var out bytes.Buffer
	b := NewBuffer(10)
	l := Setup(slog.LevelWarn, &out, b)
	l.Info("quiet")
	slog.Warn("loud")

	assert.NotContains(t, out.String(), "quiet")
	assert.Contains(t, out.String(), "loud")
	assert.Equal(t, 2, b.Len())
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug, "": slog.LevelInfo, "WARNING": slog.LevelWarn, "error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

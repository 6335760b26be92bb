package configstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = []string{
	"",
	"! switch",
	"switch 00:00:00:00:00:00:00:01",
	"  interface eth1",
	"    speed 10000",
	"  switch-alias spine-1",
	"",
	"! tenant",
	"tenant red",
	"  origin cli",
}

func TestHistoryRing(t *testing.T) {
	h := NewHistory(2)
	for _, id := range []string{"a1", "b2", "c3"} {
		h.Push(&Snapshot{ID: id})
	}
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 2, h.MaxSize())

	s, err := h.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "c3", s.ID)
	s, err = h.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "b2", s.ID)

	_, err = h.Get(2)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = h.Get(-1)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	s, err = h.Find("b")
	require.NoError(t, err)
	assert.Equal(t, "b2", s.ID)
	_, err = h.Find("a")
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = h.Find("")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	var ids []string
	for _, s := range h.List() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"c3", "b2"}, ids)
}

func TestStoreRecordAndLookup(t *testing.T) {
	ctx := context.Background()
	s := New(10, nil, nil)
	first := s.Record(ctx, sample, nil, "boot")
	second := s.Record(ctx, sample[:6], []int{403}, "")

	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, first.Complete())
	assert.False(t, second.Complete())

	got, err := s.Lookup(ctx, "0")
	require.NoError(t, err)
	assert.Same(t, second, got)
	got, err = s.Lookup(ctx, "1")
	require.NoError(t, err)
	assert.Same(t, first, got)
	got, err = s.Lookup(ctx, first.ID[:8])
	require.NoError(t, err)
	assert.Same(t, first, got)

	_, err = s.Lookup(ctx, "-1")
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = s.Lookup(ctx, "zzzz")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	// the recorded lines are a copy
	lines := []string{"ntp enable"}
	snap := s.Record(ctx, lines, nil, "")
	lines[0] = "changed"
	assert.Equal(t, "ntp enable\n", snap.Text())
}

func TestCompare(t *testing.T) {
	a := &Snapshot{Lines: sample}
	b := &Snapshot{Lines: []string{
		"",
		"! switch",
		"switch 00:00:00:00:00:00:00:01",
		"  interface eth1",
		"    speed 1000",
		"  switch-alias spine-1",
		"",
		"! tenant",
		"tenant red",
		"  origin cli",
		"tenant blue",
		"  origin cli",
	}}
	assert.Equal(t,
		"- switch 00:00:00:00:00:00:00:01 > interface eth1 > speed 10000\n"+
			"+ switch 00:00:00:00:00:00:00:01 > interface eth1 > speed 1000\n"+
			"+ tenant blue\n"+
			"+ tenant blue > origin cli\n",
		Compare(a, b))
	assert.Equal(t, "[no changes]\n", Compare(a, a))
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "running-config")
	lines := append([]string{
		"!",
		"! Warning: running config incomplete due to: unauthorized, forbidden",
	}, sample...)
	require.NoError(t, Save(path, &Snapshot{Lines: lines}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "  switch-alias spine-1\n")

	snap, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, lines, snap.Lines)
	assert.Equal(t, []int{401, 403}, snap.Codes)
	assert.Equal(t, path, snap.Comment)

	_, err = Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchive(filepath.Join(t.TempDir(), "db", "snapshots.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, id := range []string{"aaa-1", "bbb-2", "ccc-3"} {
		var codes []int
		if id == "bbb-2" {
			codes = []int{404}
		}
		require.NoError(t, a.Put(ctx, &Snapshot{
			ID:      id,
			Time:    base.Add(time.Duration(i) * time.Minute),
			Comment: "run " + id,
			Lines:   sample,
			Codes:   codes,
		}))
	}

	snap, err := a.Get(ctx, "bbb")
	require.NoError(t, err)
	assert.Equal(t, "bbb-2", snap.ID)
	assert.Equal(t, sample, snap.Lines)
	assert.Equal(t, []int{404}, snap.Codes)
	assert.True(t, snap.Time.Equal(base.Add(time.Minute)))

	_, err = a.Get(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	list, err := a.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ccc-3", list[0].ID)
	assert.True(t, list[0].Complete)
	assert.False(t, list[1].Complete)
	assert.Equal(t, len(sample), list[0].Lines)

	n, err := a.Prune(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	list, err = a.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ccc-3", list[0].ID)
}

func TestStoreArchiveFallback(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)
	s := New(1, a, nil)
	first := s.Record(ctx, sample, nil, "old")
	s.Record(ctx, sample[:3], nil, "new")

	// evicted from the ring but still archived
	got, err := s.Lookup(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "old", got.Comment)
	assert.Equal(t, sample, got.Lines)
}

func TestStoreArchivedAndPrune(t *testing.T) {
	ctx := context.Background()
	plain := New(2, nil, nil)
	list, err := plain.Archived(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	n, err := plain.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	s := New(2, openTestArchive(t), nil)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, comment := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		s.Record(ctx, sample, nil, comment)
	}
	list, err = s.Archived(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].Comment)

	n, err = s.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	list, err = s.Archived(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c", list[0].Comment)
}

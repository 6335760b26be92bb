package datastore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psaab/bigsh/pkg/schema"
	"github.com/psaab/bigsh/pkg/selector"
)

const dpid1 = "00:00:00:00:00:00:00:01"

func testModel(t *testing.T) *schema.Model {
	t.Helper()
	data, err := os.ReadFile("../../testdata/schema.json")
	require.NoError(t, err)
	m, err := schema.ParseModel(data)
	require.NoError(t, err)
	return m
}

func testMemory(t *testing.T) *Memory {
	t.Helper()
	s, err := LoadMemory(testModel(t), "../../testdata/data.yaml")
	require.NoError(t, err)
	return s
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	got, ok := CodeOf(err)
	require.True(t, ok, "error %v carries no code", err)
	assert.Equal(t, code, got)
}

func TestMemoryQueryList(t *testing.T) {
	s := testMemory(t)
	ctx := context.Background()

	node, v, err := s.Query(ctx, "core/switch", nil)
	require.NoError(t, err)
	assert.Equal(t, schema.List, node.Type)
	assert.Len(t, v, 2)

	_, v, err = s.Query(ctx, "/core/switch/", map[string]any{"dpid": dpid1})
	require.NoError(t, err)
	require.Len(t, v, 1)
	assert.Equal(t, "spine-1", v.([]any)[0].(map[string]any)["alias"])

	_, v, err = s.Query(ctx, "core/switch/interface", map[string]any{"dpid": dpid1, "name": "eth2"})
	require.NoError(t, err)
	require.Len(t, v, 1)
	assert.Equal(t, 9000, v.([]any)[0].(map[string]any)["mtu"])

	_, v, err = s.Query(ctx, "core/switch/interface", nil)
	require.NoError(t, err)
	assert.Len(t, v, 2)
}

func TestMemoryQueryContainer(t *testing.T) {
	s := testMemory(t)
	node, v, err := s.Query(context.Background(), "ntp", nil)
	require.NoError(t, err)
	assert.Equal(t, schema.Container, node.Type)
	assert.Equal(t, "UTC", v.(map[string]any)["time-zone"])

	_, v, err = s.Query(context.Background(), "ntp/time-zone", nil)
	require.NoError(t, err)
	assert.Equal(t, "UTC", v)
}

func TestMemoryQueryMissingData(t *testing.T) {
	s := testMemory(t)
	node, v, err := s.Query(context.Background(), "core/switch", map[string]any{"dpid": "nope"})
	require.NoError(t, err)
	assert.NotNil(t, node)
	assert.Nil(t, v)
}

func TestMemoryQueryErrors(t *testing.T) {
	s := testMemory(t)
	ctx := context.Background()

	_, _, err := s.Query(ctx, "core/bogus", nil)
	requireCode(t, err, 404)
	assert.ErrorIs(t, err, schema.ErrNoSchema)

	_, _, err = s.Query(ctx, "core/switch", map[string]any{"bogus": 1})
	requireCode(t, err, 400)
	assert.ErrorIs(t, err, ErrUnusedFilter)

	s.Deny("ntp", 403)
	_, _, err = s.Query(ctx, "ntp/server", nil)
	requireCode(t, err, 403)
	_, _, err = s.Query(ctx, "ntp-other", nil)
	requireCode(t, err, 404)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = s.Query(canceled, "tenant", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueryReturnsCopies(t *testing.T) {
	s := testMemory(t)
	_, v, err := s.Query(context.Background(), "tenant", nil)
	require.NoError(t, err)
	v.([]any)[0].(map[string]any)["origin"] = "changed"

	_, v, err = s.Query(context.Background(), "tenant", nil)
	require.NoError(t, err)
	assert.Equal(t, "cli", v.([]any)[0].(map[string]any)["origin"])
}

func TestMemoryApplySet(t *testing.T) {
	s := testMemory(t)
	m := s.Model()
	ctx := context.Background()

	plan, err := selector.PlanSet(m, "core/switch/interface",
		map[string]any{"dpid": dpid1, "name": "eth3"}, map[string]any{"speed": 100})
	require.NoError(t, err)
	require.NoError(t, s.Apply(ctx, plan))
	assert.Equal(t, uint64(1), s.Version())

	_, v, err := s.Query(ctx, "core/switch/interface", map[string]any{"dpid": dpid1, "name": "eth3"})
	require.NoError(t, err)
	require.Len(t, v, 1)
	assert.Equal(t, 100, v.([]any)[0].(map[string]any)["speed"])

	// setting again merges into the existing element
	plan, err = selector.PlanSet(m, "core/switch/interface",
		map[string]any{"dpid": dpid1, "name": "eth3"}, map[string]any{"mtu": 9000})
	require.NoError(t, err)
	require.NoError(t, s.Apply(ctx, plan))
	_, v, err = s.Query(ctx, "core/switch/interface", map[string]any{"dpid": dpid1})
	require.NoError(t, err)
	require.Len(t, v, 3)
	eth3 := v.([]any)[2].(map[string]any)
	assert.Equal(t, 100, eth3["speed"])
	assert.Equal(t, 9000, eth3["mtu"])

	// a new parent element is created on the way down
	plan, err = selector.PlanSet(m, "tenant/segment",
		map[string]any{"tenant": "blue", "segment": "db"}, nil)
	require.NoError(t, err)
	assert.Equal(t, `tenant[name="blue"]/segment`, plan.Selector)
	require.NoError(t, s.Apply(ctx, plan))
	_, v, err = s.Query(ctx, "tenant/segment", map[string]any{"tenant": "blue"})
	require.NoError(t, err)
	require.Len(t, v, 1)
	assert.Equal(t, "db", v.([]any)[0].(map[string]any)["name"])
}

func TestMemoryApplyReplaceAndUpdate(t *testing.T) {
	s := testMemory(t)
	ctx := context.Background()

	sel := `core/switch[dpid="` + dpid1 + `"]/interface[name="eth1"]`
	require.NoError(t, s.Apply(ctx, selector.Plan{Op: selector.Replace, Selector: sel,
		Data: map[string]any{"mtu": 1400}}))
	_, v, err := s.Query(ctx, "core/switch/interface", map[string]any{"dpid": dpid1, "name": "eth1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "eth1", "mtu": 1400}, v.([]any)[0])

	err = s.Apply(ctx, selector.Plan{Op: selector.Update,
		Selector: `core/switch[dpid="` + dpid1 + `"]/interface[name="eth9"]`,
		Data:     map[string]any{"mtu": 1400}})
	requireCode(t, err, 404)
}

func TestMemoryApplyRejects(t *testing.T) {
	s := testMemory(t)
	ctx := context.Background()
	sel := `core/switch[dpid="` + dpid1 + `"]/interface[name="eth1"]`

	err := s.Apply(ctx, selector.Plan{Op: selector.Update, Selector: sel,
		Data: map[string]any{"speed": 5}})
	requireCode(t, err, 400)
	assert.ErrorIs(t, err, schema.ErrInvalidValue)

	err = s.Apply(ctx, selector.Plan{Op: selector.Update, Selector: sel,
		Data: map[string]any{"bogus": 5}})
	requireCode(t, err, 400)
	assert.ErrorIs(t, err, schema.ErrNoSchema)

	err = s.Apply(ctx, selector.Plan{Op: selector.Update, Selector: "status",
		Data: map[string]any{"uptime": 1}})
	requireCode(t, err, 400)
	assert.ErrorIs(t, err, ErrNotConfigurable)

	err = s.Apply(ctx, selector.Plan{Op: selector.Create, Selector: "core/switch",
		Data: map[string]any{"alias": "x"}})
	requireCode(t, err, 400)
	assert.ErrorIs(t, err, ErrMissingKey)

	err = s.Apply(ctx, selector.Plan{Op: selector.Update, Selector: "core/switch[dpid=",
		Data: map[string]any{"alias": "x"}})
	requireCode(t, err, 400)
	assert.ErrorIs(t, err, selector.ErrBadSelector)

	s.Deny("core", 401)
	err = s.Apply(ctx, selector.Plan{Op: selector.Update, Selector: sel,
		Data: map[string]any{"speed": 100}})
	requireCode(t, err, 401)
	assert.Zero(t, s.Version())
}

func TestMemoryApplyDelete(t *testing.T) {
	s := testMemory(t)
	m := s.Model()
	ctx := context.Background()

	plans, err := selector.PlanDelete(m, "core/switch", map[string]any{"dpid": dpid1}, []string{"alias"})
	require.NoError(t, err)
	for _, p := range plans {
		require.NoError(t, s.Apply(ctx, p))
	}
	_, v, err := s.Query(ctx, "core/switch", map[string]any{"dpid": dpid1})
	require.NoError(t, err)
	assert.NotContains(t, v.([]any)[0].(map[string]any), "alias")

	plans, err = selector.PlanDelete(m, "tenant", map[string]any{"name": "red"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Apply(ctx, plans[0]))
	_, v, err = s.Query(ctx, "tenant", nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	err = s.Apply(ctx, plans[0])
	requireCode(t, err, 404)
}

func TestMemoryFind(t *testing.T) {
	s := testMemory(t)
	got, err := s.Find("$.tenant[*].name")
	require.NoError(t, err)
	assert.Equal(t, []any{"red"}, got)

	_, err = s.Find("$[")
	assert.Error(t, err)
}

func TestMemorySnapshotRestore(t *testing.T) {
	s := testMemory(t)
	snap := s.Snapshot()
	require.NoError(t, s.Apply(context.Background(), selector.Plan{
		Op: selector.Delete, Selector: "ntp",
	}))
	_, v, err := s.Query(context.Background(), "ntp", nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	s.Restore(snap)
	_, v, err = s.Query(context.Background(), "ntp", nil)
	require.NoError(t, err)
	assert.Equal(t, "UTC", v.(map[string]any)["time-zone"])
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Code: 403, Path: "ntp"}
	assert.Equal(t, "ntp: Forbidden", err.Error())

	wrapped := &Error{Code: 599, Path: "x", Err: errors.New("boom")}
	assert.Equal(t, "x: status 599: boom", wrapped.Error())

	_, ok := CodeOf(errors.New("plain"))
	assert.False(t, ok)
}

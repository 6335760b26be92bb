package schema

import (
	"errors"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) *Model {
	t.Helper()
	data, err := os.ReadFile("../../testdata/schema.json")
	require.NoError(t, err)
	m, err := ParseModel(data)
	require.NoError(t, err)
	return m
}

func TestLookup(t *testing.T) {
	m := loadFixture(t)

	tests := []struct {
		path string
		want NodeType
	}{
		{"core", Container},
		{"core/switch", List},
		{"core/switch/dpid", Leaf},
		{"core/switch/interface/speed", Leaf},
		{"/core/switch/interface/", List},
		{"tenant/segment/member-vlan", LeafList},
	}
	for _, tt := range tests {
		n, err := m.Lookup(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, n.Type, tt.path)
	}

	_, err := m.Lookup("core/switch/bogus")
	assert.True(t, errors.Is(err, ErrNoSchema))
	_, err = m.Lookup("core/switch/dpid/deeper")
	assert.ErrorIs(t, err, ErrNoSchema)
}

func TestKeyFields(t *testing.T) {
	m := loadFixture(t)
	assert.Equal(t, []string{"dpid"}, m.KeyFieldsOf("core/switch"))
	assert.Equal(t, []string{"src-switch", "src-port"}, m.KeyFieldsOf("core/link"))
	assert.Nil(t, m.KeyFieldsOf("ntp"))
	assert.Nil(t, m.KeyFieldsOf("nowhere"))
}

func TestConfigurableInheritance(t *testing.T) {
	m := loadFixture(t)
	assert.True(t, m.IsConfigurable("core/switch/interface/speed"))
	assert.False(t, m.IsConfigurable("core/switch/interface/state"))
	assert.False(t, m.IsConfigurable("status"))
	assert.False(t, m.IsConfigurable("status/uptime"), "children inherit Config=false")
	assert.False(t, m.IsConfigurable("missing"))
}

func TestDefaults(t *testing.T) {
	m := loadFixture(t)

	def, ok := m.DefaultOf("core/switch/interface/mtu")
	require.True(t, ok)
	assert.True(t, ValueEqual(def, 1500))

	_, ok = m.DefaultOf("core/switch/interface/speed")
	assert.False(t, ok)

	// key leaves never keep a default
	_, ok = m.DefaultOf("tenant/name")
	assert.False(t, ok)
	assert.Equal(t, []string{"tenant/name"}, m.PurgedDefaults())
}

func TestDisplayAttributes(t *testing.T) {
	m := loadFixture(t)
	assert.Equal(t, "Interface", m.ColumnHeader("core/switch/interface/name", "Name"))
	assert.Equal(t, "Speed", m.ColumnHeader("core/switch/interface/speed", "Speed"))
	alias, ok := m.AliasField("core/switch")
	require.True(t, ok)
	assert.Equal(t, "alias", alias)
	assert.True(t, m.IsCascade("address-space"))
	assert.True(t, m.IsMandatory("address-space/name"))
	assert.True(t, m.IsConfigOnly("tenant"))
	assert.False(t, m.IsConfigOnly("core/switch"))
	assert.True(t, m.CaseSensitive("core/switch/dpid"))
	assert.Equal(t, "dpid-string", m.TypeNameOf("core/switch/dpid"))
	assert.Equal(t, TypeInteger, m.LeafTypeOf("core/link/src-port"))
}

func TestParseRejectsMissingKey(t *testing.T) {
	_, err := Parse([]byte(`{
		"nodeType": "CONTAINER",
		"childNodes": {
			"l": {"nodeType": "LIST", "listElementSchemaNode": {
				"keyNodeNames": ["id"],
				"childNodes": {"name": {"nodeType": "LEAF"}}
			}}
		}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key field "id"`)
}

func TestNewModelRejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		list *Node
		want string
	}{
		{"key not a child", &Node{Type: List, KeyFields: []string{"id"}}, `key field "id" is not a child`},
		{"key not a leaf", &Node{
			Type:      List,
			KeyFields: []string{"id"},
			Children:  map[string]*Node{"id": {Name: "id", Type: Container}},
		}, `key field "id" is a CONTAINER`},
		{"nil child", &Node{
			Type:     List,
			Children: map[string]*Node{"id": nil},
		}, "nil schema node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := &Node{Type: Container, Children: map[string]*Node{"l": tt.list}}
			m, err := NewModel(root)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	m, err := NewModel(&Node{Type: Container, Children: map[string]*Node{
		"l": {Type: List, KeyFields: []string{"id"}, Children: map[string]*Node{
			"id": {Name: "id", Type: Leaf, Default: "x", HasDefault: true},
		}},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"l/id"}, m.PurgedDefaults())
}

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := Parse([]byte(`{"childNodes": {"x": {"nodeType": "CHOICE"}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHOICE")
}

func TestValidateValue(t *testing.T) {
	m := loadFixture(t)

	tests := []struct {
		path  string
		value any
		ok    bool
	}{
		{"core/switch/interface/speed", 1000, true},
		{"core/switch/interface/speed", "5", false},
		{"core/switch/interface/speed", "fast", false},
		{"core/switch/dpid", "00:00:00:00:00:00:00:01", true},
		{"core/switch/dpid", "00:01", false},
		{"core/switch/tunnel-termination", "Enabled", true},
		{"core/switch/tunnel-termination", "sometimes", false},
		{"core/switch/interface/description", "uplink", true},
		{"core/switch/shutdown", "maybe", false},
		{"address-space/priority", 50, true},
		{"address-space/priority", "auto", true},
		{"address-space/priority", 500, false},
	}
	for _, tt := range tests {
		err := m.ValidateValue(tt.path, tt.value)
		if tt.ok {
			assert.NoError(t, err, "%s=%v", tt.path, tt.value)
		} else {
			assert.ErrorIs(t, err, ErrInvalidValue, "%s=%v", tt.path, tt.value)
		}
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "10", FormatValue(float64(10)))
	assert.Equal(t, "1.5", FormatValue(1.5))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "x", FormatValue("x"))
	assert.Equal(t, "7", FormatValue(7))
	assert.Equal(t, "", FormatValue(nil))
}

func TestValueEqual(t *testing.T) {
	assert.True(t, ValueEqual(float64(1500), 1500))
	assert.True(t, ValueEqual(true, true))
	assert.False(t, ValueEqual(true, false))
	assert.False(t, ValueEqual("1500", 1501))
	assert.True(t, ValueEqual([]any{"a"}, []any{"a"}))
}

func TestLargeIntegers(t *testing.T) {
	const big = 1<<53 + 1

	n, ok := ToInt(int64(big))
	require.True(t, ok)
	assert.Equal(t, big, n)
	n, ok = ToInt(uint64(big))
	require.True(t, ok)
	assert.Equal(t, big, n)
	_, ok = ToInt(uint64(math.MaxUint64))
	assert.False(t, ok)

	assert.False(t, ValueEqual(int64(big), int64(big-1)))
	assert.True(t, ValueEqual(uint64(big), int64(big)))
	assert.False(t, ValueEqual(uint64(math.MaxUint64), uint64(math.MaxUint64-1)))
	assert.True(t, ValueEqual(float64(10), int64(10)))
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "a/b", Join("a", "b"))
	assert.Equal(t, "b", Join("", "b"))
	parent, name := Split("a/b/c")
	assert.Equal(t, "a/b", parent)
	assert.Equal(t, "c", name)
	parent, name = Split("a")
	assert.Equal(t, "", parent)
	assert.Equal(t, "a", name)
	assert.True(t, IsPath("x/y"))
	assert.False(t, IsPath("x"))
}

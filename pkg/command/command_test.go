package command

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func fixture(t *testing.T) *Registry {
	t.Helper()
	r, err := LoadFiles("../../testdata/descriptors.yaml")
	require.NoError(t, err)
	return r
}

func get(t *testing.T, r *Registry, id string) *Descriptor {
	t.Helper()
	d, err := r.Get(id)
	require.NoError(t, err)
	return d
}

func TestLoadCatalog(t *testing.T) {
	r := fixture(t)
	assert.Equal(t, 20, r.Len())

	d := get(t, r, "address-space-submode")
	assert.Equal(t, ConfigSubmode, d.Type)
	assert.Equal(t, "config-address-space", d.SubmodeName)
	assert.Equal(t, PrefixPriority(3500000, "address-space"), d.Priority)
	assert.True(t, d.IsConfigMode())
	assert.True(t, d.Creates())

	d = get(t, r, "interface-submode")
	assert.Equal(t, "config-switch", d.BaseMode())
	assert.False(t, d.IsConfigMode())

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownDescriptor)

	ids := make([]string, 0, r.Len())
	for _, d := range r.All() {
		ids = append(ids, d.ID)
	}
	assert.IsIncreasing(t, ids)
}

func TestCatalogValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "submode without target",
			yaml: `
descriptors:
  - id: a
    name: a
    mode: config
    command-type: config-submode
`,
			want: "SubmodeName",
		},
		{
			name: "unknown command type",
			yaml: `
descriptors:
  - id: a
    name: a
    mode: config
    command-type: show
`,
			want: "Type",
		},
		{
			name: "duplicate id",
			yaml: `
descriptors:
  - {id: a, name: a, mode: config, command-type: config}
  - {id: a, name: b, mode: config, command-type: config}
`,
			want: "registered twice",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			descs, err := ReadCatalog(strings.NewReader(tt.yaml))
			require.NoError(t, err)
			_, err = NewRegistry(descs...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCatalogRejectsUnknownKeys(t *testing.T) {
	_, err := ReadCatalog(strings.NewReader(`
descriptors:
  - id: a
    name: a
    mode: config
    command-type: config
    colour: blue
`))
	assert.Error(t, err)
}

func TestPriorityYAML(t *testing.T) {
	var v struct {
		P Priority `yaml:"p"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("p: 42"), &v))
	assert.Equal(t, NumericPriority(42), v.P)

	require.NoError(t, yaml.Unmarshal([]byte("p: [eth, 3]"), &v))
	assert.Equal(t, PrefixPriority(3, "eth"), v.P)

	require.NoError(t, yaml.Unmarshal([]byte("p: [eth, vlan]"), &v))
	assert.Equal(t, PrefixPriority(0, "eth", "vlan"), v.P)

	assert.Error(t, yaml.Unmarshal([]byte("p: [1, 2]"), &v))
	assert.Error(t, yaml.Unmarshal([]byte("p: high"), &v))
	assert.Error(t, yaml.Unmarshal([]byte("p: {a: 1}"), &v))

	assert.Equal(t, `("eth", 3)`, PrefixPriority(3, "eth").String())
	assert.Equal(t, -5, NumericPriority(5).Negated().Value)
}

func TestFields(t *testing.T) {
	r := fixture(t)
	assert.Equal(t, []string{"server", "prefer"}, get(t, r, "ntp-server").Fields())
	assert.Equal(t, []string{"active"}, get(t, r, "address-space-state").Fields())
	assert.Equal(t, []string{"enable"}, get(t, r, "ntp-disable").Fields())
	assert.True(t, get(t, r, "switch-submode").HasField("dpid"))
	assert.Equal(t, map[string][]string{"vlan": {IntegerCommaRanges}},
		get(t, r, "switch-vlan").FieldTypes())
}

func TestRender(t *testing.T) {
	r := fixture(t)

	tests := []struct {
		id     string
		values map[string]any
		want   []string
	}{
		{"switch-submode", map[string]any{"dpid": "00:01"}, []string{"switch 00:01"}},
		{"switch-submode", map[string]any{"dpid": "00:01", "alias": "x"}, nil},
		{"switch-submode", map[string]any{}, nil},
		{"switch-core-switch", map[string]any{"core-switch": true}, []string{"core-switch"}},
		{"switch-core-switch", map[string]any{"core-switch": false}, nil},
		{"switch-core-switch", map[string]any{}, nil},
		{"switch-tunnel", map[string]any{"tunnel-termination": "enabled"}, []string{"tunnel termination enabled"}},
		{"switch-tunnel", map[string]any{"tunnel-termination": "bogus"}, nil},
		{"ntp-server", map[string]any{"server": "10.0.0.1"}, []string{"ntp server 10.0.0.1"}},
		{"ntp-server", map[string]any{"server": "10.0.0.1", "prefer": true}, []string{"ntp server 10.0.0.1 prefer"}},
		{"ntp-server", map[string]any{"server": "10.0.0.1", "prefer": false}, []string{"ntp server 10.0.0.1"}},
		{"ntp-disable", map[string]any{"enable": false}, []string{"no ntp"}},
		{"address-space-state", map[string]any{"active": false}, []string{"state inactive"}},
		{"address-space-state", map[string]any{"active": true}, []string{"state active"}},
		{"interface-description", map[string]any{"description": "up link"}, []string{`description "up link"`}},
		{"interface-speed", map[string]any{"speed": float64(1000)}, []string{"speed 1000"}},
	}
	for _, tt := range tests {
		got := Render(get(t, r, tt.id), tt.values)
		assert.Equal(t, tt.want, got, "%s %v", tt.id, tt.values)
	}
}

func TestRenderChoicesAndShortest(t *testing.T) {
	d := &Descriptor{
		ID: "n", Name: "n", Mode: ConfigMode, Type: Config,
		Args: []Arg{{Choices: [][]Arg{
			{{Token: "value", Field: "a"}},
			{{Field: "a"}},
		}}},
	}
	got := Render(d, map[string]any{"a": 1})
	assert.Equal(t, []string{"n value 1", "n 1"}, got)

	s, ok := Shortest(got)
	require.True(t, ok)
	assert.Equal(t, "n 1", s)

	_, ok = Shortest(nil)
	assert.False(t, ok)
}

func TestRenderOptionalGroup(t *testing.T) {
	d := &Descriptor{
		ID: "n", Name: "logging", Mode: ConfigMode, Type: Config,
		Args: []Arg{
			{Field: "host"},
			{Optional: true, Args: []Arg{{Token: "port", Field: "port"}}},
		},
	}
	assert.Equal(t, []string{"logging h1"}, Render(d, map[string]any{"host": "h1"}))
	assert.Equal(t, []string{"logging h1 port 514"}, Render(d, map[string]any{"host": "h1", "port": 514}))
	assert.Nil(t, Render(d, map[string]any{"port": 514}))
}

func TestFormatArg(t *testing.T) {
	assert.Equal(t, "1,2,3", FormatArg([]any{1, 2, 3}))
	assert.Equal(t, `""`, FormatArg(""))
	assert.Equal(t, `"a b"`, FormatArg("a b"))
	assert.Equal(t, "true", FormatArg(true))
}

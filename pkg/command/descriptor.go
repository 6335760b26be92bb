// Package command holds the catalog of CLI command descriptors and renders
// descriptors into literal command text from field values.
package command

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Type is a descriptor's command-type.
type Type string

const (
	Config        Type = "config"
	ConfigObject  Type = "config-object"
	ConfigSubmode Type = "config-submode"
)

// ConfigMode is the top-level configuration mode.
const ConfigMode = "config"

// IntegerCommaRanges marks a field that accepts "1-3,7" style lists.
const IntegerCommaRanges = "integer-comma-ranges"

// Descriptor is one CLI command template.
type Descriptor struct {
	ID   string `yaml:"id" validate:"required"`
	Name string `yaml:"name" validate:"required"`
	// Mode is the submode in which the command is valid. A trailing "*"
	// also admits every submode nested below it.
	Mode string `yaml:"mode" validate:"required"`
	Type Type   `yaml:"command-type" validate:"required,oneof=config config-object config-submode"`
	Path string `yaml:"path"`
	// SubmodeName is the mode entered by a config-submode command.
	SubmodeName string `yaml:"submode-name" validate:"required_if=Type config-submode"`
	// ItemName is the name a submode uses for the object it enters; its
	// value maps back to the descriptor's single field.
	ItemName string `yaml:"item-name"`
	Priority Priority `yaml:"rc-order"`
	// Create defaults to true: entering the submode also creates the object.
	Create *bool `yaml:"create"`
	// FieldsMap renames result fields before rendering a submode entry.
	FieldsMap map[string]string `yaml:"running-config-map"`
	// Data holds fields the command writes with fixed values.
	Data map[string]any `yaml:"data"`
	Args []Arg          `yaml:"args" validate:"dive"`
	Help string         `yaml:"short-help"`
}

// BaseMode returns Mode without its trailing "*".
func (d *Descriptor) BaseMode() string {
	return strings.TrimSuffix(d.Mode, "*")
}

// IsConfigMode reports whether the command runs at the top level.
func (d *Descriptor) IsConfigMode() bool {
	return d.BaseMode() == ConfigMode
}

// Creates reports whether entering the submode creates its object.
func (d *Descriptor) Creates() bool {
	return d.Create == nil || *d.Create
}

// Fields returns every field the descriptor can populate, in first-seen
// order: fixed data fields (sorted) followed by argument fields.
func (d *Descriptor) Fields() []string {
	var fields []string
	seen := map[string]bool{}
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	for _, k := range sortedKeys(d.Data) {
		add(k)
	}
	walkArgs(d.Args, func(a *Arg) {
		add(a.Field)
		for _, k := range sortedKeys(a.Data) {
			add(k)
		}
	})
	return fields
}

// FieldTypes returns the declared argument types of each field.
func (d *Descriptor) FieldTypes() map[string][]string {
	types := map[string][]string{}
	walkArgs(d.Args, func(a *Arg) {
		if a.Field != "" && a.Type != "" {
			types[a.Field] = append(types[a.Field], a.Type)
		}
	})
	return types
}

// HasField reports whether the descriptor populates field.
func (d *Descriptor) HasField(field string) bool {
	for _, f := range d.Fields() {
		if f == field {
			return true
		}
	}
	return false
}

// Arg is one element of a command's argument syntax. A bare YAML string
// is a literal token.
//
//   - token only: a literal keyword
//   - field: the field's value, preceded by token when set
//   - field with type boolean: token alone, present when the value is true
//   - token with data: token alone, when every data field has its value
//   - choices: exactly one alternative sequence
//   - args: a nested sequence, usually optional
type Arg struct {
	Token    string         `yaml:"token"`
	Field    string         `yaml:"field"`
	Type     string         `yaml:"type"`
	Values   []string       `yaml:"values"`
	Optional bool           `yaml:"optional"`
	Data     map[string]any `yaml:"data"`
	Choices  [][]Arg        `yaml:"choices"`
	Args     []Arg          `yaml:"args"`
}

// UnmarshalYAML accepts a bare token string or a mapping.
func (a *Arg) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*a = Arg{Token: node.Value}
		return nil
	}
	type plain Arg
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*a = Arg(p)
	if a.Token == "" && a.Field == "" && len(a.Choices) == 0 && len(a.Args) == 0 {
		return fmt.Errorf("line %d: argument needs a token, field, choices or args", node.Line)
	}
	return nil
}

func walkArgs(args []Arg, fn func(*Arg)) {
	for i := range args {
		a := &args[i]
		fn(a)
		for _, alt := range a.Choices {
			walkArgs(alt, fn)
		}
		walkArgs(a.Args, fn)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

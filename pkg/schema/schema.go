// Package schema parses the controller's data-model description and indexes
// it by path.
//
// A schema is a tree of Leaf, LeafList, List and Container nodes. Every node
// is addressed by a "/"-joined path of node names starting below the root,
// for example "core/switch/interface/name". List element children are
// addressed directly under the list's own path.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NodeType is the closed set of schema node kinds.
type NodeType int

const (
	Leaf NodeType = iota
	LeafList
	List
	Container
)

func (t NodeType) String() string {
	switch t {
	case Leaf:
		return "LEAF"
	case LeafList:
		return "LEAF_LIST"
	case List:
		return "LIST"
	case Container:
		return "CONTAINER"
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

// ParseNodeType converts the wire name of a node kind.
func ParseNodeType(s string) (NodeType, error) {
	switch s {
	case "LEAF":
		return Leaf, nil
	case "LEAF_LIST":
		return LeafList, nil
	case "LIST":
		return List, nil
	case "CONTAINER":
		return Container, nil
	}
	return 0, fmt.Errorf("unknown node type %q", s)
}

// Leaf types used by the selector and the value formatter.
const (
	TypeString      = "STRING"
	TypeInteger     = "INTEGER"
	TypeBoolean     = "BOOLEAN"
	TypeDecimal     = "DECIMAL"
	TypeEnumeration = "ENUMERATION"
	TypeUnion       = "UNION"
)

// Display carries presentation attributes attached to a node.
type Display struct {
	ColumnHeader     string
	Alias            bool
	CaseSensitive    *bool
	Cascade          bool
	AllowEmptyString bool
}

// Node is one position in the data model.
type Node struct {
	Name     string
	Type     NodeType
	Children map[string]*Node

	// KeyFields names the children identifying a List element, in order.
	KeyFields []string

	// LeafType and TypeName describe Leaf and LeafList values.
	LeafType   string
	TypeName   string
	Validators []Validator
	// Alternatives holds one validator set per union member.
	Alternatives [][]Validator

	Default       any
	HasDefault    bool
	DefaultString string

	// Config is the explicit Config attribute; nil means inherited.
	Config      *bool
	Display     Display
	DataSources []string
	Mandatory   bool
	Description string
}

// ChildNames returns the sorted names of the node's children.
func (n *Node) ChildNames() []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsKey reports whether name is one of the node's key fields.
func (n *Node) IsKey(name string) bool {
	for _, k := range n.KeyFields {
		if k == name {
			return true
		}
	}
	return false
}

// IsLeaf reports whether the node holds scalar values.
func (n *Node) IsLeaf() bool {
	return n.Type == Leaf || n.Type == LeafList
}

type rawType struct {
	LeafType       string         `json:"leafType"`
	Name           string         `json:"name"`
	TypeValidator  []rawValidator `json:"typeValidator"`
	TypeSchemaNode []*rawType     `json:"typeSchemaNodes"`
}

type rawNode struct {
	Name                  string              `json:"name"`
	NodeType              string              `json:"nodeType"`
	ChildNodes            map[string]*rawNode `json:"childNodes"`
	ListElementSchemaNode *rawNode            `json:"listElementSchemaNode"`
	KeyNodeNames          []string            `json:"keyNodeNames"`
	LeafSchemaNode        *rawNode            `json:"leafSchemaNode"`
	TypeSchemaNode        *rawType            `json:"typeSchemaNode"`
	DefaultValue          any                 `json:"defaultValue"`
	DefaultValueString    string              `json:"defaultValueString"`
	Attributes            map[string]any      `json:"attributes"`
	DataSources           []string            `json:"dataSources"`
	Mandatory             bool                `json:"mandatory"`
	Description           string              `json:"description"`
}

// Parse decodes a raw JSON schema tree rooted at a Container.
func Parse(data []byte) (*Node, error) {
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if raw.NodeType == "" {
		raw.NodeType = "CONTAINER"
	}
	return convert("", &raw)
}

func convert(path string, raw *rawNode) (*Node, error) {
	typ, err := ParseNodeType(raw.NodeType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", displayPath(path), err)
	}
	n := &Node{
		Name:          raw.Name,
		Type:          typ,
		Default:       raw.DefaultValue,
		HasDefault:    raw.DefaultValue != nil,
		DefaultString: raw.DefaultValueString,
		DataSources:   raw.DataSources,
		Mandatory:     raw.Mandatory,
		Description:   raw.Description,
	}
	applyAttributes(n, raw.Attributes)

	switch typ {
	case Leaf:
		applyType(n, raw.TypeSchemaNode)
	case LeafList:
		if raw.LeafSchemaNode != nil {
			applyType(n, raw.LeafSchemaNode.TypeSchemaNode)
		} else {
			applyType(n, raw.TypeSchemaNode)
		}
	case Container:
		if n.Children, err = convertChildren(path, raw.ChildNodes); err != nil {
			return nil, err
		}
	case List:
		elem := raw.ListElementSchemaNode
		if elem == nil {
			return nil, fmt.Errorf("%s: list without element schema", displayPath(path))
		}
		if n.Children, err = convertChildren(path, elem.ChildNodes); err != nil {
			return nil, err
		}
		keys := elem.KeyNodeNames
		if len(keys) == 0 {
			keys = raw.KeyNodeNames
		}
		for _, k := range keys {
			if _, ok := n.Children[k]; !ok {
				return nil, fmt.Errorf("%s: key field %q is not a child", displayPath(path), k)
			}
		}
		n.KeyFields = append([]string(nil), keys...)
	}
	return n, nil
}

func convertChildren(path string, raw map[string]*rawNode) (map[string]*Node, error) {
	children := make(map[string]*Node, len(raw))
	for name, rc := range raw {
		if rc == nil {
			continue
		}
		if rc.Name == "" {
			rc.Name = name
		}
		child, err := convert(Join(path, name), rc)
		if err != nil {
			return nil, err
		}
		child.Name = name
		children[name] = child
	}
	return children, nil
}

func applyType(n *Node, t *rawType) {
	if t == nil {
		return
	}
	n.LeafType = t.LeafType
	n.TypeName = t.Name
	n.Validators = convertValidators(t.TypeValidator)
	if t.LeafType == TypeUnion {
		var collect func(*rawType)
		collect = func(rt *rawType) {
			for _, member := range rt.TypeSchemaNode {
				if len(member.TypeValidator) > 0 {
					n.Alternatives = append(n.Alternatives, convertValidators(member.TypeValidator))
				}
				collect(member)
			}
		}
		collect(t)
	}
}

func applyAttributes(n *Node, attrs map[string]any) {
	if len(attrs) == 0 {
		return
	}
	if v, ok := attrs["Config"]; ok {
		b := attrBool(v)
		n.Config = &b
	}
	if v, ok := attrs["column-header"].(string); ok {
		n.Display.ColumnHeader = v
	}
	if v, ok := attrs["case-sensitive"]; ok {
		b := attrBool(v)
		n.Display.CaseSensitive = &b
	}
	if v, ok := attrs["alias"]; ok {
		n.Display.Alias = attrBool(v)
	}
	if v, ok := attrs["cascade"]; ok {
		n.Display.Cascade = attrBool(v)
	}
	if v, ok := attrs["allow-empty-string"]; ok {
		n.Display.AllowEmptyString = attrBool(v)
	}
}

// attrBool accepts both JSON booleans and the "true"/"false" strings the
// controller emits for attributes.
func attrBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(x, "true")
	}
	return false
}

// Join appends name to path.
func Join(path, name string) string {
	if path == "" {
		return name
	}
	if name == "" {
		return path
	}
	return path + "/" + name
}

// Split returns the parent path and final name.
func Split(path string) (string, string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// IsPath reports whether name is path-qualified.
func IsPath(name string) bool {
	return strings.Contains(name, "/")
}

// Clean strips leading and trailing separators.
func Clean(path string) string {
	return strings.Trim(path, "/")
}

func displayPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

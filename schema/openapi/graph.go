package openapi

import (
	"sort"

	model "github.com/goliatone/go-metamodel"
)

// schemaNode is the intermediate schema representation built from type
// descriptors before serialisation into OpenAPI maps.
type schemaNode struct {
	Type       string
	Format     string
	Title      string
	ReadOnly   bool
	Ref        string
	Items      *schemaNode
	Properties map[string]*schemaNode
	Required   []string
	Extensions map[string]any
}

func (n *schemaNode) toMap() map[string]any {
	if n == nil {
		return map[string]any{}
	}
	if n.Ref != "" {
		return map[string]any{"$ref": n.Ref}
	}
	result := map[string]any{}
	if n.Type != "" {
		result["type"] = n.Type
	}
	if n.Format != "" {
		result["format"] = n.Format
	}
	if n.Title != "" {
		result["title"] = n.Title
	}
	if n.ReadOnly {
		result["readOnly"] = true
	}
	if n.Items != nil {
		result["items"] = n.Items.toMap()
	}
	if n.Properties != nil {
		props := make(map[string]any, len(n.Properties))
		for name, child := range n.Properties {
			props[name] = child.toMap()
		}
		result["properties"] = props
	}
	if len(n.Required) > 0 {
		required := append([]string{}, n.Required...)
		sort.Strings(required)
		result["required"] = required
	}
	if len(n.Extensions) > 0 {
		keys := make([]string, 0, len(n.Extensions))
		for key := range n.Extensions {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			result[key] = n.Extensions[key]
		}
	}
	return result
}

// typeGraph assigns a component name to every type reachable from the root
// across reference properties and builds one object node per type.
type typeGraph struct {
	namer *componentNamer
	names map[*model.Type]string
	order []*model.Type
	nodes map[*model.Type]*schemaNode
}

func buildTypeGraph(root *model.Type, rootName string) *typeGraph {
	g := &typeGraph{
		namer: newComponentNamer(),
		names: map[*model.Type]string{},
		nodes: map[*model.Type]*schemaNode{},
	}
	if rootName == "" {
		rootName = root.Name()
	}
	g.discover(root, rootName)
	for _, t := range g.order {
		g.nodes[t] = g.nodeForType(t)
	}
	return g
}

// discover assigns names in reachability order so the root claims its
// preferred name before targets compete for collisions.
func (g *typeGraph) discover(t *model.Type, nameHint string) {
	if _, ok := g.names[t]; ok {
		return
	}
	g.names[t] = g.namer.name(nameHint)
	g.order = append(g.order, t)
	for _, prop := range t.Properties() {
		ref, ok := prop.(*model.ReferenceProperty)
		if !ok {
			continue
		}
		target := ref.Target()
		g.discover(target, target.Name())
	}
}

func (g *typeGraph) refFor(t *model.Type) string {
	name, ok := g.names[t]
	if !ok {
		return ""
	}
	return "#/components/schemas/" + name
}

func (g *typeGraph) componentsMap() map[string]any {
	if len(g.order) == 0 {
		return nil
	}
	out := make(map[string]any, len(g.order))
	for _, t := range g.order {
		out[g.names[t]] = g.nodes[t].toMap()
	}
	return out
}

func (g *typeGraph) nodeForType(t *model.Type) *schemaNode {
	node := &schemaNode{
		Type:       "object",
		Title:      t.Label(),
		Properties: map[string]*schemaNode{},
	}
	for _, prop := range t.Properties() {
		node.Properties[prop.Name()] = g.nodeForProperty(prop)
		if isRequired(prop) {
			node.Required = append(node.Required, prop.Name())
		}
	}
	return node
}

// nodeForProperty maps one property descriptor to a schema node. Reference
// nodes stay bare: OpenAPI 3.0 ignores siblings of $ref, so decorations apply
// only to value and array nodes.
func (g *typeGraph) nodeForProperty(prop model.Property) *schemaNode {
	var node *schemaNode
	switch typed := prop.(type) {
	case *model.ReferenceProperty:
		target := &schemaNode{Ref: g.refFor(typed.Target())}
		if typed.IsList() {
			node = &schemaNode{Type: "array", Items: target}
		} else {
			return target
		}
	default:
		node = valueNode(prop)
	}
	if prop.IsReadOnly() {
		node.ReadOnly = true
	}
	if prop.IsStatic() {
		if node.Extensions == nil {
			node.Extensions = map[string]any{}
		}
		node.Extensions["x-static"] = true
	}
	return node
}

// valueNode maps a value property's declared "type" attribute onto JSON
// Schema primitives. Unknown names become string with the name as format, so
// domain types like uuid or duration survive the export.
func valueNode(prop model.Property) *schemaNode {
	node := &schemaNode{}
	kind := ""
	if v, ok := prop.Attribute("type"); ok {
		kind, _ = v.(string)
	}
	switch kind {
	case "string", "text":
		node.Type = "string"
	case "int", "integer":
		node.Type = "integer"
	case "float", "number":
		node.Type = "number"
	case "bool", "boolean":
		node.Type = "boolean"
	case "time", "datetime", "timestamp":
		node.Type = "string"
		node.Format = "date-time"
	case "bytes":
		node.Type = "string"
		node.Format = "byte"
	case "":
	default:
		node.Type = "string"
		node.Format = kind
	}
	return node
}

func isRequired(prop model.Property) bool {
	v, ok := prop.Attribute("required")
	if !ok {
		return false
	}
	required, _ := v.(bool)
	return required
}

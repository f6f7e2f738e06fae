package model

import "strings"

// SchemaFormat identifies the representation a schema document encodes.
type SchemaFormat string

const (
	// SchemaFormatDescriptors represents the flattened field descriptors.
	SchemaFormatDescriptors SchemaFormat = "descriptors"
	// SchemaFormatOpenAPI represents OpenAPI-compatible JSON Schema documents.
	SchemaFormatOpenAPI SchemaFormat = "openapi"
)

// SchemaDocument encapsulates a generated schema output alongside its format
// marker.
type SchemaDocument struct {
	Format   SchemaFormat
	Document any
}

// SchemaGenerator transforms a type descriptor into a schema document. All
// implementations must be safe for concurrent use.
type SchemaGenerator interface {
	Generate(t *Type) (SchemaDocument, error)
}

// FieldDescriptor describes one reachable property as a dotted path from the
// generated type. Value properties report their "type" attribute when
// present, reference properties report the target type name.
type FieldDescriptor struct {
	Path     string
	Type     string
	Label    string
	List     bool
	ReadOnly bool
}

// Schema generates a schema document for the type using the registry's
// configured generator, falling back to the descriptor generator.
func (t *Type) Schema() (SchemaDocument, error) {
	gen := t.registry.cfg.schemaGen
	if gen == nil {
		gen = DefaultSchemaGenerator()
	}
	return gen.Generate(t)
}

// defaultSchemaDepth bounds how many reference hops the descriptor walk
// follows. Cyclic models terminate earlier through the visited guard.
const defaultSchemaDepth = 3

// DefaultSchemaGenerator returns the built-in descriptor-based schema generator.
func DefaultSchemaGenerator() SchemaGenerator {
	return descriptorGenerator{maxDepth: defaultSchemaDepth}
}

type descriptorGenerator struct {
	maxDepth int
}

func (g descriptorGenerator) Generate(t *Type) (SchemaDocument, error) {
	descriptors := g.derive(t, "", g.maxDepth, map[*Type]struct{}{})
	if descriptors == nil {
		descriptors = []FieldDescriptor{}
	}
	return SchemaDocument{
		Format:   SchemaFormatDescriptors,
		Document: descriptors,
	}, nil
}

func (g descriptorGenerator) derive(t *Type, prefix string, depth int, visiting map[*Type]struct{}) []FieldDescriptor {
	if t == nil {
		return nil
	}
	visiting[t] = struct{}{}
	defer delete(visiting, t)

	var fields []FieldDescriptor
	for _, prop := range t.Properties() {
		path := joinFieldPath(prefix, prop.Name())
		switch typed := prop.(type) {
		case *ValueProperty:
			fields = append(fields, FieldDescriptor{
				Path:     path,
				Type:     valueTypeOf(typed),
				Label:    typed.Label(),
				ReadOnly: typed.IsReadOnly(),
			})
		case *ReferenceProperty:
			target := typed.Target()
			fields = append(fields, FieldDescriptor{
				Path:     path,
				Type:     target.Name(),
				Label:    typed.Label(),
				List:     typed.IsList(),
				ReadOnly: typed.IsReadOnly(),
			})
			if depth <= 1 {
				continue
			}
			if _, cyclic := visiting[target]; cyclic {
				continue
			}
			fields = append(fields, g.derive(target, path, depth-1, visiting)...)
		}
	}
	return fields
}

func valueTypeOf(prop *ValueProperty) string {
	if v, ok := prop.Attribute("type"); ok {
		if name, ok := v.(string); ok && name != "" {
			return name
		}
	}
	return "any"
}

func joinFieldPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}

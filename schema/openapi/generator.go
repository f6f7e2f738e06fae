package openapi

import (
	"fmt"

	model "github.com/goliatone/go-metamodel"
)

type generator struct {
	config generatorConfig
}

// NewGenerator constructs an OpenAPI-compatible schema generator. The
// generated document publishes one named component per type reachable from
// the generated type, with $ref links for reference properties.
func NewGenerator(opts ...GeneratorOption) model.SchemaGenerator {
	config := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&config)
		}
	}
	return generator{config: config}
}

// Option returns a model.Option that wires the OpenAPI schema generator into
// a registry.
func Option(opts ...GeneratorOption) model.Option {
	return model.WithSchemaGenerator(NewGenerator(opts...))
}

func (g generator) Generate(t *model.Type) (model.SchemaDocument, error) {
	if t == nil {
		return model.SchemaDocument{}, fmt.Errorf("openapi: type cannot be nil")
	}
	graph := buildTypeGraph(t, g.config.rootComponent)
	builder := newOpenAPIDocumentBuilder(g.config, graph.refFor(t), graph.componentsMap())
	document, err := builder.build()
	if err != nil {
		return model.SchemaDocument{}, err
	}
	return model.SchemaDocument{
		Format:   model.SchemaFormatOpenAPI,
		Document: document,
	}, nil
}

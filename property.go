package model

import (
	"strings"
	"unicode"
)

// Property is the common surface of value and reference properties. Exactly
// two implementations exist, ValueProperty and ReferenceProperty; both are
// immutable after their declaring type initializes.
type Property interface {
	Name() string
	Label() string
	DeclaringType() *Type
	Index() int
	IsList() bool
	IsStatic() bool
	IsReadOnly() bool
	IsPersisted() bool
	Attribute(key string) (any, bool)

	base() *propertyBase
}

type propertyBase struct {
	name      string
	label     string
	declaring *Type
	index     int
	list      bool
	static    bool
	readOnly  bool
	persisted bool
	attrs     map[string]any
}

// Name returns the property name, unique within its declaring type.
func (p *propertyBase) Name() string { return p.name }

// Label returns the display label, derived from the name unless the spec
// overrode it.
func (p *propertyBase) Label() string { return p.label }

// DeclaringType returns the type that declared this property. Sub-types see
// the property but never redeclare it.
func (p *propertyBase) DeclaringType() *Type { return p.declaring }

// Index returns the property's position across the inheritance chain. Indexes
// start at the base type's property count and increase by one per declared
// property.
func (p *propertyBase) Index() int { return p.index }

func (p *propertyBase) IsList() bool      { return p.list }
func (p *propertyBase) IsStatic() bool    { return p.static }
func (p *propertyBase) IsReadOnly() bool  { return p.readOnly }
func (p *propertyBase) IsPersisted() bool { return p.persisted }

// Attribute looks up a descriptor attribute declared on this property.
func (p *propertyBase) Attribute(key string) (any, bool) {
	value, ok := p.attrs[key]
	return value, ok
}

func (p *propertyBase) base() *propertyBase { return p }

// ValueProperty describes a property holding a primitive, immutable value.
type ValueProperty struct {
	propertyBase
	convert func(any) (any, error)
}

// Convert normalizes value to the property's canonical form. Properties
// without a converter pass values through unchanged.
func (p *ValueProperty) Convert(value any) (any, error) {
	if p.convert == nil {
		return value, nil
	}
	return p.convert(value)
}

// ReferenceProperty describes a property holding zero or one scalar target, or
// a list of targets, of a declared type.
type ReferenceProperty struct {
	propertyBase
	targetName string
	target     *Type
}

// Target returns the declared target type.
func (p *ReferenceProperty) Target() *Type { return p.target }

// labelFromName derives a display label from a property or type name by
// inserting spaces at word boundaries: "orderTotal" becomes "Order Total",
// "HTTPServer" becomes "HTTP Server".
func labelFromName(name string) string {
	if name == "" {
		return ""
	}
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range runes {
		if i > 0 && boundaryBefore(runes, i) {
			b.WriteByte(' ')
		}
		if i == 0 {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func boundaryBefore(runes []rune, i int) bool {
	prev, cur := runes[i-1], runes[i]
	if unicode.IsUpper(cur) && !unicode.IsUpper(prev) && prev != ' ' {
		return true
	}
	// Last capital of an acronym followed by a lowercase run: HTTPServer.
	if unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
		return true
	}
	if unicode.IsDigit(cur) && !unicode.IsDigit(prev) && prev != ' ' {
		return true
	}
	return false
}

func buildProperty(spec PropertySpec, declaring *Type, index int, target *Type) Property {
	label := spec.Label
	if label == "" {
		label = labelFromName(spec.Name)
	}
	base := propertyBase{
		name:      spec.Name,
		label:     label,
		declaring: declaring,
		index:     index,
		list:      spec.List,
		static:    spec.Static,
		readOnly:  spec.ReadOnly,
		persisted: spec.Persisted,
		attrs:     cloneAttrs(spec.Attributes),
	}
	if spec.IsReference() {
		return &ReferenceProperty{
			propertyBase: base,
			targetName:   spec.Target,
			target:       target,
		}
	}
	return &ValueProperty{
		propertyBase: base,
		convert:      spec.Convert,
	}
}

func cloneAttrs(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]any, len(origin))
	for key, value := range origin {
		out[key] = value
	}
	return out
}

package model

import "strings"

// EventCallback observes events dispatched to a type. Callbacks registered on
// a base type fire for instances of every sub-type.
type EventCallback func(Event) error

// Type is the runtime descriptor for one named type: its properties, its
// place in the inheritance forest, and the caches hanging off it. A Type is
// either fully initialized or still queued; partially initialized descriptors
// are never observable.
type Type struct {
	registry  *Registry
	provider  TypeProvider
	source    PropertySource
	name      string
	label     string
	format    string
	baseName  string
	base      *Type
	attrs     map[string]any
	newValue  func() any
	cacheable bool

	properties []Property
	byName     map[string]Property
	subTypes   []*Type

	initialized  bool
	initializing bool

	paths     map[string]*pathEntry
	formats   map[string]*formatEntry
	callbacks map[EventKind][]EventCallback

	pathCompiles int
}

// Name returns the qualified type name, unique per registry.
func (t *Type) Name() string { return t.name }

// Label returns the display label.
func (t *Type) Label() string { return t.label }

// FormatTemplate returns the display format template declared for the type,
// if any.
func (t *Type) FormatTemplate() string { return t.format }

// Base returns the base type, or nil for a root of the inheritance forest.
func (t *Type) Base() *Type { return t.base }

// Registry returns the owning registry.
func (t *Type) Registry() *Registry { return t.registry }

// Source returns the property source backing instances of this type. Types
// without an own source inherit the base type's.
func (t *Type) Source() PropertySource {
	for cur := t; cur != nil; cur = cur.base {
		if cur.source != nil {
			return cur.source
		}
	}
	return nil
}

// SubTypes returns the types registered so far that directly extend t. The
// slice grows lazily as sub-types resolve; it is a snapshot copy.
func (t *Type) SubTypes() []*Type {
	if len(t.subTypes) == 0 {
		return nil
	}
	out := make([]*Type, len(t.subTypes))
	copy(out, t.subTypes)
	return out
}

// Is reports whether t is other or extends it, directly or transitively.
func (t *Type) Is(other *Type) bool {
	for cur := t; cur != nil; cur = cur.base {
		if cur == other {
			return true
		}
	}
	return false
}

// OwnProperties returns the properties declared on t itself, in declaration
// order.
func (t *Type) OwnProperties() []Property {
	if len(t.properties) == 0 {
		return nil
	}
	out := make([]Property, len(t.properties))
	copy(out, t.properties)
	return out
}

// Properties returns the effective property set, base chain first, ordered by
// index.
func (t *Type) Properties() []Property {
	var chain []*Type
	for cur := t; cur != nil; cur = cur.base {
		chain = append(chain, cur)
	}
	out := make([]Property, 0, t.PropertyCount())
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].properties...)
	}
	return out
}

// PropertyCount returns the effective number of properties, counting the base
// chain. It equals the index the next declared property would receive.
func (t *Type) PropertyCount() int {
	count := 0
	for cur := t; cur != nil; cur = cur.base {
		count += len(cur.properties)
	}
	return count
}

// Property looks up a property by name on t or any base type.
func (t *Type) Property(name string) (Property, bool) {
	for cur := t; cur != nil; cur = cur.base {
		if p, ok := cur.byName[name]; ok {
			return p, true
		}
	}
	return nil, false
}

// ValueProperty looks up a value property by name.
func (t *Type) ValueProperty(name string) (*ValueProperty, bool) {
	p, ok := t.Property(name)
	if !ok {
		return nil, false
	}
	vp, ok := p.(*ValueProperty)
	return vp, ok
}

// Reference looks up a reference property by name.
func (t *Type) Reference(name string) (*ReferenceProperty, bool) {
	p, ok := t.Property(name)
	if !ok {
		return nil, false
	}
	rp, ok := p.(*ReferenceProperty)
	return rp, ok
}

// Attribute looks up a descriptor attribute on t or, when absent, the base
// chain.
func (t *Type) Attribute(key string) (any, bool) {
	for cur := t; cur != nil; cur = cur.base {
		if value, ok := cur.attrs[key]; ok {
			return value, true
		}
	}
	return nil, false
}

// EffectiveAttributes merges attribute bags across the inheritance chain. The
// declaring level wins over base levels.
func (t *Type) EffectiveAttributes() map[string]any {
	var chain []*Type
	for cur := t; cur != nil; cur = cur.base {
		chain = append(chain, cur)
	}
	out := map[string]any{}
	for i := len(chain) - 1; i >= 0; i-- {
		for key, value := range chain[i].attrs {
			out[key] = value
		}
	}
	return out
}

// OnEvent registers a callback for one event kind. Callbacks fire for events
// on instances of t and of its sub-types, after the instance-level effect of
// the event has been applied.
func (t *Type) OnEvent(kind EventKind, cb EventCallback) {
	if cb == nil {
		return
	}
	if t.callbacks == nil {
		t.callbacks = map[EventKind][]EventCallback{}
	}
	t.callbacks[kind] = append(t.callbacks[kind], cb)
}

// Create builds a new instance of t with a synthetic identifier.
func (t *Type) Create() (*Instance, error) {
	return t.registry.Create(t.name)
}

func (t *Type) appendSubType(sub *Type) {
	t.subTypes = append(t.subTypes, sub)
}

func (t *Type) removeSubType(sub *Type) {
	for i, cur := range t.subTypes {
		if cur == sub {
			t.subTypes = append(t.subTypes[:i], t.subTypes[i+1:]...)
			return
		}
	}
}

func typeLabel(spec TypeSpec) string {
	if spec.Label != "" {
		return spec.Label
	}
	name := spec.Name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return labelFromName(name)
}

package model

import (
	"fmt"
	"strings"
)

// MapRecord is the map-backed instance representation MapProvider serves.
// Values hold value-property state, Refs and Lists hold resolved reference
// targets. Examples and tests use it as the zero-setup backing store.
type MapRecord struct {
	TypeName string
	Values   map[string]any
	Refs     map[string]*Instance
	Lists    map[string][]*Instance
	Saved    int
	Deleted  bool
}

// NewMapRecord builds an empty record for the given type name.
func NewMapRecord(typeName string) *MapRecord {
	return &MapRecord{
		TypeName: typeName,
		Values:   map[string]any{},
		Refs:     map[string]*Instance{},
		Lists:    map[string][]*Instance{},
	}
}

// MapProvider is an in-memory TypeProvider serving map-backed types.
// Descriptors register through Define; the provider fills in the source and
// the backing factory, leaving declared properties untouched.
type MapProvider struct {
	types     map[string]TypeSpec
	kinds     map[string]string
	cacheable bool
}

// NewMapProvider returns an empty, non-cacheable provider.
func NewMapProvider() *MapProvider {
	return &MapProvider{
		types: map[string]TypeSpec{},
		kinds: map[string]string{},
	}
}

// Define registers a type descriptor served by this provider.
func (p *MapProvider) Define(spec TypeSpec) *MapProvider {
	spec.Source = mapSource{}
	if spec.New == nil {
		name := spec.Name
		spec.New = func() any { return NewMapRecord(name) }
	}
	p.types[spec.Name] = spec
	return p
}

// MapKind associates a static kind identifier with one of the provider's
// type names.
func (p *MapProvider) MapKind(kind, typeName string) *MapProvider {
	p.kinds[kind] = typeName
	return p
}

// MarkCacheable lets descriptors from this provider outlive the resolution
// that created them.
func (p *MapProvider) MarkCacheable() *MapProvider {
	p.cacheable = true
	return p
}

func (p *MapProvider) TypeName(value any) (string, bool) {
	record, ok := value.(*MapRecord)
	if !ok {
		return "", false
	}
	if _, owned := p.types[record.TypeName]; !owned {
		return "", false
	}
	return record.TypeName, true
}

func (p *MapProvider) TypeNameForKind(kind string) (string, bool) {
	name, ok := p.kinds[kind]
	return name, ok
}

func (p *MapProvider) DescribeType(name string) (TypeSpec, bool) {
	spec, ok := p.types[name]
	return spec, ok
}

func (p *MapProvider) Cacheable() bool { return p.cacheable }

// mapSource routes property access to MapRecord fields.
type mapSource struct{}

func (mapSource) record(inst *Instance) (*MapRecord, error) {
	record, ok := inst.Backing().(*MapRecord)
	if !ok {
		return nil, fmt.Errorf("model: instance %s is not map-backed", inst.ID())
	}
	return record, nil
}

func (s mapSource) Value(inst *Instance, prop *ValueProperty) (any, error) {
	record, err := s.record(inst)
	if err != nil {
		return nil, err
	}
	return record.Values[prop.Name()], nil
}

func (s mapSource) SetValue(inst *Instance, prop *ValueProperty, value any) error {
	record, err := s.record(inst)
	if err != nil {
		return err
	}
	record.Values[prop.Name()] = value
	return nil
}

func (s mapSource) Reference(inst *Instance, prop *ReferenceProperty) (*Instance, error) {
	record, err := s.record(inst)
	if err != nil {
		return nil, err
	}
	return record.Refs[prop.Name()], nil
}

func (s mapSource) SetReference(inst *Instance, prop *ReferenceProperty, target *Instance) error {
	record, err := s.record(inst)
	if err != nil {
		return err
	}
	if target == nil {
		delete(record.Refs, prop.Name())
		return nil
	}
	record.Refs[prop.Name()] = target
	return nil
}

func (s mapSource) List(inst *Instance, prop *ReferenceProperty) (InstanceList, error) {
	record, err := s.record(inst)
	if err != nil {
		return nil, err
	}
	return &mapList{record: record, prop: prop.Name()}, nil
}

// FormattedValue renders a value using a small spec vocabulary: empty for
// fmt.Sprint, a fmt verb such as %05d, or the named transforms upper and
// lower.
func (s mapSource) FormattedValue(inst *Instance, prop Property, spec string) (string, error) {
	record, err := s.record(inst)
	if err != nil {
		return "", err
	}
	value := record.Values[prop.Name()]
	switch {
	case spec == "":
		return fmt.Sprint(value), nil
	case strings.HasPrefix(spec, "%"):
		return fmt.Sprintf(spec, value), nil
	case spec == "upper":
		return strings.ToUpper(fmt.Sprint(value)), nil
	case spec == "lower":
		return strings.ToLower(fmt.Sprint(value)), nil
	default:
		return "", fmt.Errorf("model: unknown format spec %q", spec)
	}
}

func (s mapSource) Save(inst *Instance) error {
	record, err := s.record(inst)
	if err != nil {
		return err
	}
	record.Saved++
	return nil
}

func (s mapSource) Delete(inst *Instance) error {
	record, err := s.record(inst)
	if err != nil {
		return err
	}
	record.Deleted = true
	return nil
}

// mapList exposes one record list as a mutable InstanceList.
type mapList struct {
	record *MapRecord
	prop   string
}

func (l *mapList) Len() int {
	return len(l.record.Lists[l.prop])
}

func (l *mapList) At(i int) *Instance {
	items := l.record.Lists[l.prop]
	if i < 0 || i >= len(items) {
		return nil
	}
	return items[i]
}

func (l *mapList) Add(item *Instance) error {
	l.record.Lists[l.prop] = append(l.record.Lists[l.prop], item)
	return nil
}

func (l *mapList) Remove(item *Instance) error {
	items := l.record.Lists[l.prop]
	for i, existing := range items {
		if existing == item {
			l.record.Lists[l.prop] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return nil
}

package model

import (
	"fmt"
	"sync"
)

// Instance binds a backing value to its runtime type. All property access
// flows through the type's property source; the instance itself only tracks
// identity, first-access bookkeeping, and the reference index used by
// backward change propagation.
type Instance struct {
	registry  *Registry
	typ       *Type
	id        string
	backing   any
	cacheable bool

	mu       sync.Mutex
	accessed map[int]struct{}
	inAccess map[int]struct{}

	outRefs map[*ReferenceProperty]map[*Instance]struct{}
	inRefs  map[*ReferenceProperty]map[*Instance]struct{}
}

func newInstance(r *Registry, t *Type, id string, backing any) *Instance {
	return &Instance{
		registry:  r,
		typ:       t,
		id:        id,
		backing:   backing,
		cacheable: t.cacheable,
		accessed:  map[int]struct{}{},
		inAccess:  map[int]struct{}{},
		outRefs:   map[*ReferenceProperty]map[*Instance]struct{}{},
		inRefs:    map[*ReferenceProperty]map[*Instance]struct{}{},
	}
}

// ID returns the instance identifier: the persisted id when known, otherwise
// a synthetic one assigned by the registry.
func (i *Instance) ID() string { return i.id }

// Type returns the runtime type.
func (i *Instance) Type() *Type { return i.typ }

// Backing returns the backing value the property source operates on.
func (i *Instance) Backing() any { return i.backing }

// Registry returns the owning registry.
func (i *Instance) Registry() *Registry { return i.registry }

func (i *Instance) source() (PropertySource, error) {
	src := i.typ.Source()
	if src == nil {
		return nil, fmt.Errorf("model: type %q has no property source", i.typ.name)
	}
	return src, nil
}

// Get reads a value property. The first read of each property on an instance
// dispatches a property access event before the source is consulted, so
// lazy-loading observers can populate the backing value.
func (i *Instance) Get(p *ValueProperty) (any, error) {
	if err := i.dispatchAccess(p); err != nil {
		return nil, err
	}
	src, err := i.source()
	if err != nil {
		return nil, err
	}
	return src.Value(i, p)
}

// Set writes a value property and dispatches a value change event carrying
// the previous and new values.
func (i *Instance) Set(p *ValueProperty, value any) error {
	if p.IsReadOnly() {
		return fmt.Errorf("%w: %s.%s", ErrReadOnly, i.typ.name, p.Name())
	}
	src, err := i.source()
	if err != nil {
		return err
	}
	converted, err := p.Convert(value)
	if err != nil {
		return fmt.Errorf("model: convert %s.%s: %w", i.typ.name, p.Name(), err)
	}
	old, err := src.Value(i, p)
	if err != nil {
		return err
	}
	if err := src.SetValue(i, p, converted); err != nil {
		return err
	}
	return NewValueChangeEvent(i, p, old, converted).Notify()
}

// Ref reads a scalar reference property.
func (i *Instance) Ref(p *ReferenceProperty) (*Instance, error) {
	if err := i.dispatchAccess(p); err != nil {
		return nil, err
	}
	src, err := i.source()
	if err != nil {
		return nil, err
	}
	return src.Reference(i, p)
}

// SetRef writes a scalar reference property and dispatches a reference change
// event. The event updates the bidirectional reference index before observers
// run.
func (i *Instance) SetRef(p *ReferenceProperty, target *Instance) error {
	if p.IsReadOnly() {
		return fmt.Errorf("%w: %s.%s", ErrReadOnly, i.typ.name, p.Name())
	}
	src, err := i.source()
	if err != nil {
		return err
	}
	old, err := src.Reference(i, p)
	if err != nil {
		return err
	}
	if err := src.SetReference(i, p, target); err != nil {
		return err
	}
	return NewReferenceChangeEvent(i, p, old, target).Notify()
}

// List returns the mutable list view for a list reference property.
func (i *Instance) List(p *ReferenceProperty) (InstanceList, error) {
	if err := i.dispatchAccess(p); err != nil {
		return nil, err
	}
	src, err := i.source()
	if err != nil {
		return nil, err
	}
	list, err := src.List(i, p)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, fmt.Errorf("model: source returned nil list for %s.%s", i.typ.name, p.Name())
	}
	return list, nil
}

// Add appends item to a list reference property and dispatches a list change
// event with a single added element.
func (i *Instance) Add(p *ReferenceProperty, item *Instance) error {
	list, err := i.List(p)
	if err != nil {
		return err
	}
	if err := list.Add(item); err != nil {
		return err
	}
	return NewListChangeEvent(i, p, []*Instance{item}, nil).Notify()
}

// Remove removes item from a list reference property and dispatches a list
// change event with a single removed element.
func (i *Instance) Remove(p *ReferenceProperty, item *Instance) error {
	list, err := i.List(p)
	if err != nil {
		return err
	}
	if err := list.Remove(item); err != nil {
		return err
	}
	return NewListChangeEvent(i, p, nil, []*Instance{item}).Notify()
}

// Formatted renders one property through the source's formatter. The spec
// string is provider specific and passed through opaquely.
func (i *Instance) Formatted(p Property, spec string) (string, error) {
	src, err := i.source()
	if err != nil {
		return "", err
	}
	return src.FormattedValue(i, p, spec)
}

// Save persists the instance through the property source and dispatches a
// save event.
func (i *Instance) Save() error {
	src, err := i.source()
	if err != nil {
		return err
	}
	if err := src.Save(i); err != nil {
		return err
	}
	return NewSaveEvent(i).Notify()
}

// Delete removes the instance through the property source, dispatches a
// delete event, and forgets the instance in the registry.
func (i *Instance) Delete() error {
	src, err := i.source()
	if err != nil {
		return err
	}
	if err := src.Delete(i); err != nil {
		return err
	}
	if err := NewDeleteEvent(i).Notify(); err != nil {
		return err
	}
	i.registry.forget(i)
	return nil
}

// Snapshot reads every value property directly from the source, bypassing
// access events. Calculations evaluate against snapshots.
func (i *Instance) Snapshot() (map[string]any, error) {
	src, err := i.source()
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, p := range i.typ.Properties() {
		vp, ok := p.(*ValueProperty)
		if !ok {
			continue
		}
		value, err := src.Value(i, vp)
		if err != nil {
			return nil, err
		}
		out[vp.Name()] = value
	}
	return out, nil
}

// dispatchAccess runs the once-only first-access transition for (i, p). The
// mutex guards the bookkeeping only for cacheable instances; non-cacheable
// instances never escape their creating writer. The in-access flag suppresses
// re-entrant dispatch when an observer reads the property it is observing.
func (i *Instance) dispatchAccess(p Property) error {
	idx := p.Index()
	if i.cacheable {
		i.mu.Lock()
	}
	_, seen := i.accessed[idx]
	_, busy := i.inAccess[idx]
	if seen || busy {
		if i.cacheable {
			i.mu.Unlock()
		}
		return nil
	}
	i.inAccess[idx] = struct{}{}
	if i.cacheable {
		i.mu.Unlock()
	}

	err := NewPropertyAccessEvent(i, p).Notify()

	if i.cacheable {
		i.mu.Lock()
	}
	delete(i.inAccess, idx)
	i.accessed[idx] = struct{}{}
	if i.cacheable {
		i.mu.Unlock()
	}
	return err
}

func (i *Instance) linkRef(p *ReferenceProperty, target *Instance) {
	if target == nil {
		return
	}
	set := i.outRefs[p]
	if set == nil {
		set = map[*Instance]struct{}{}
		i.outRefs[p] = set
	}
	set[target] = struct{}{}

	in := target.inRefs[p]
	if in == nil {
		in = map[*Instance]struct{}{}
		target.inRefs[p] = in
	}
	in[i] = struct{}{}
}

func (i *Instance) unlinkRef(p *ReferenceProperty, target *Instance) {
	if target == nil {
		return
	}
	if set := i.outRefs[p]; set != nil {
		delete(set, target)
	}
	if in := target.inRefs[p]; in != nil {
		delete(in, i)
	}
}

// sourcesVia returns the instances referencing i through p, in no particular
// order. The backward walk of path notification consumes this.
func (i *Instance) sourcesVia(p *ReferenceProperty) []*Instance {
	in := i.inRefs[p]
	if len(in) == 0 {
		return nil
	}
	out := make([]*Instance, 0, len(in))
	for src := range in {
		out = append(out, src)
	}
	return out
}

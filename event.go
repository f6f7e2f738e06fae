package model

import (
	"errors"
	"fmt"
)

// EventKind identifies one of the closed set of event variants.
type EventKind uint8

const (
	// EventPropertyAccess fires once per (instance, property) on first read.
	EventPropertyAccess EventKind = iota + 1
	// EventValueChange fires after a value property write.
	EventValueChange
	// EventReferenceChange fires after a scalar reference write.
	EventReferenceChange
	// EventListChange fires after list membership changes.
	EventListChange
	// EventSave fires after an instance persists through its source.
	EventSave
	// EventDelete fires after an instance is removed through its source.
	EventDelete
	// EventCustom carries application-defined payloads.
	EventCustom
)

var eventKindNames = map[EventKind]string{
	EventPropertyAccess:  "property-access",
	EventValueChange:     "value-change",
	EventReferenceChange: "reference-change",
	EventListChange:      "list-change",
	EventSave:            "save",
	EventDelete:          "delete",
	EventCustom:          "custom",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the kind name, keeping serialized transaction logs
// readable.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *EventKind) UnmarshalText(text []byte) error {
	name := string(text)
	for kind, kindName := range eventKindNames {
		if kindName == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("model: unknown event kind %q", name)
}

// Event is the common surface of all event variants. Events are constructed
// by a mutation site, submitted through Notify, consumed synchronously, then
// discarded.
type Event interface {
	Kind() EventKind
	Instance() *Instance
	// Property returns the subject property, nil for save, delete and custom
	// events.
	Property() Property
	// Notify applies the event's instance-level effect, then dispatches type
	// callbacks up the inheritance chain, path observers, and activity hooks.
	Notify() error
}

type eventBase struct {
	instance *Instance
	property Property
}

func (e *eventBase) Instance() *Instance { return e.instance }
func (e *eventBase) Property() Property  { return e.property }

// PropertyAccessEvent marks the first read of a property on an instance.
// Observers use it to populate lazily loaded backing state; the read proceeds
// after observers return.
type PropertyAccessEvent struct {
	eventBase
}

// NewPropertyAccessEvent builds an access event for (inst, prop).
func NewPropertyAccessEvent(inst *Instance, prop Property) *PropertyAccessEvent {
	return &PropertyAccessEvent{eventBase{instance: inst, property: prop}}
}

func (e *PropertyAccessEvent) Kind() EventKind { return EventPropertyAccess }

func (e *PropertyAccessEvent) Notify() error {
	return e.instance.registry.dispatch(e)
}

// ValueChangeEvent records a value property transition.
type ValueChangeEvent struct {
	eventBase
	oldValue any
	newValue any
}

// NewValueChangeEvent builds a change event carrying the previous and new
// values. The backing write has already happened when Notify runs.
func NewValueChangeEvent(inst *Instance, prop *ValueProperty, oldValue, newValue any) *ValueChangeEvent {
	return &ValueChangeEvent{
		eventBase: eventBase{instance: inst, property: prop},
		oldValue:  oldValue,
		newValue:  newValue,
	}
}

func (e *ValueChangeEvent) Kind() EventKind { return EventValueChange }
func (e *ValueChangeEvent) OldValue() any   { return e.oldValue }
func (e *ValueChangeEvent) NewValue() any   { return e.newValue }

func (e *ValueChangeEvent) Notify() error {
	return e.instance.registry.dispatch(e)
}

// ReferenceChangeEvent records a scalar reference transition.
type ReferenceChangeEvent struct {
	eventBase
	oldTarget *Instance
	newTarget *Instance
}

// NewReferenceChangeEvent builds a change event for a scalar reference.
func NewReferenceChangeEvent(inst *Instance, prop *ReferenceProperty, oldTarget, newTarget *Instance) *ReferenceChangeEvent {
	return &ReferenceChangeEvent{
		eventBase: eventBase{instance: inst, property: prop},
		oldTarget: oldTarget,
		newTarget: newTarget,
	}
}

func (e *ReferenceChangeEvent) Kind() EventKind      { return EventReferenceChange }
func (e *ReferenceChangeEvent) OldTarget() *Instance { return e.oldTarget }
func (e *ReferenceChangeEvent) NewTarget() *Instance { return e.newTarget }

// Notify re-links the reference index before observers run, so observers
// always see post-change state.
func (e *ReferenceChangeEvent) Notify() error {
	prop := e.property.(*ReferenceProperty)
	e.instance.unlinkRef(prop, e.oldTarget)
	e.instance.linkRef(prop, e.newTarget)
	return e.instance.registry.dispatch(e)
}

// ListChangeEvent records list membership changes as added and removed sets.
type ListChangeEvent struct {
	eventBase
	added   []*Instance
	removed []*Instance
}

// NewListChangeEvent builds a change event for a list reference.
func NewListChangeEvent(inst *Instance, prop *ReferenceProperty, added, removed []*Instance) *ListChangeEvent {
	return &ListChangeEvent{
		eventBase: eventBase{instance: inst, property: prop},
		added:     added,
		removed:   removed,
	}
}

func (e *ListChangeEvent) Kind() EventKind { return EventListChange }

// Added returns the instances added by this change, in arrival order.
func (e *ListChangeEvent) Added() []*Instance { return e.added }

// Removed returns the instances removed by this change, in arrival order.
func (e *ListChangeEvent) Removed() []*Instance { return e.removed }

func (e *ListChangeEvent) Notify() error {
	prop := e.property.(*ReferenceProperty)
	for _, target := range e.removed {
		e.instance.unlinkRef(prop, target)
	}
	for _, target := range e.added {
		e.instance.linkRef(prop, target)
	}
	return e.instance.registry.dispatch(e)
}

// Merge combines e with a later change to the same (instance, property) into
// one net delta: an element both added and removed across the pair cancels
// out. Scopes use this to coalesce bursts of list mutations.
func (e *ListChangeEvent) Merge(other *ListChangeEvent) *ListChangeEvent {
	if e == nil {
		return other
	}
	if other == nil {
		return e
	}
	addedUnion := unionInstances(e.added, other.added)
	removedUnion := unionInstances(e.removed, other.removed)
	merged := &ListChangeEvent{
		eventBase: e.eventBase,
		added:     subtractInstances(addedUnion, removedUnion),
		removed:   subtractInstances(removedUnion, addedUnion),
	}
	return merged
}

// SaveEvent records a persist of one instance. Save events replay forward in
// transactions but cannot be rolled back.
type SaveEvent struct {
	eventBase
}

// NewSaveEvent builds a save event.
func NewSaveEvent(inst *Instance) *SaveEvent {
	return &SaveEvent{eventBase{instance: inst}}
}

func (e *SaveEvent) Kind() EventKind { return EventSave }

func (e *SaveEvent) Notify() error {
	return e.instance.registry.dispatch(e)
}

// DeleteEvent records a removal of one instance.
type DeleteEvent struct {
	eventBase
}

// NewDeleteEvent builds a delete event.
func NewDeleteEvent(inst *Instance) *DeleteEvent {
	return &DeleteEvent{eventBase{instance: inst}}
}

func (e *DeleteEvent) Kind() EventKind { return EventDelete }

func (e *DeleteEvent) Notify() error {
	return e.instance.registry.dispatch(e)
}

// CustomEvent carries an application-defined name and payload through the
// regular dispatch machinery.
type CustomEvent struct {
	eventBase
	name    string
	payload any
}

// NewCustomEvent builds a custom event.
func NewCustomEvent(inst *Instance, name string, payload any) *CustomEvent {
	return &CustomEvent{
		eventBase: eventBase{instance: inst},
		name:      name,
		payload:   payload,
	}
}

func (e *CustomEvent) Kind() EventKind { return EventCustom }
func (e *CustomEvent) Name() string    { return e.name }
func (e *CustomEvent) Payload() any    { return e.payload }

func (e *CustomEvent) Notify() error {
	return e.instance.registry.dispatch(e)
}

// dispatch runs the shared notification pipeline: logging, transaction
// capture, type callbacks bounded by the declaring type, path observers for
// change events, then activity hooks. Callback errors collect without
// stopping later observers.
func (r *Registry) dispatch(e Event) error {
	inst := e.Instance()
	propName := ""
	if p := e.Property(); p != nil {
		propName = p.Name()
	}
	r.eventLogger().LogEvent(EventLogEvent{
		Kind:       e.Kind(),
		TypeName:   inst.typ.name,
		InstanceID: inst.id,
		Property:   propName,
	})
	if r.recorder != nil {
		r.recorder.capture(e)
	}

	var errs []error

	var stop *Type
	if p := e.Property(); p != nil {
		stop = p.DeclaringType()
	}
	for t := inst.typ; t != nil; t = t.base {
		for _, cb := range t.callbacks[e.Kind()] {
			if err := cb(e); err != nil {
				errs = append(errs, err)
			}
		}
		if t == stop {
			break
		}
	}

	switch e.Kind() {
	case EventValueChange, EventReferenceChange, EventListChange:
		if err := r.notifyPathObservers(e); err != nil {
			errs = append(errs, err)
		}
	}

	if err := r.emitActivity(e); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func unionInstances(a, b []*Instance) []*Instance {
	seen := make(map[*Instance]struct{}, len(a)+len(b))
	out := make([]*Instance, 0, len(a)+len(b))
	for _, list := range [][]*Instance{a, b} {
		for _, inst := range list {
			if _, ok := seen[inst]; ok {
				continue
			}
			seen[inst] = struct{}{}
			out = append(out, inst)
		}
	}
	return out
}

func subtractInstances(from, drop []*Instance) []*Instance {
	if len(drop) == 0 {
		return from
	}
	dropSet := make(map[*Instance]struct{}, len(drop))
	for _, inst := range drop {
		dropSet[inst] = struct{}{}
	}
	out := make([]*Instance, 0, len(from))
	for _, inst := range from {
		if _, ok := dropSet[inst]; ok {
			continue
		}
		out = append(out, inst)
	}
	return out
}

package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotRollbackable indicates a rollback attempt on an event kind that
	// has no inverse, such as a save. Callers must treat it as a usage error,
	// not retry it.
	ErrNotRollbackable = errors.New("tx: event cannot be rolled back")
	// ErrCaptureInProgress indicates nested Capture calls on one registry.
	ErrCaptureInProgress = errors.New("tx: capture already in progress")
)

// TxRef names an instance inside a captured transaction.
type TxRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// TxRecord is one transacted event in serializable form. Instances are named
// by id so a record can replay against a different object graph.
type TxRecord struct {
	Kind       EventKind `json:"kind"`
	TypeName   string    `json:"type"`
	InstanceID string    `json:"instance_id"`
	Property   string    `json:"property,omitempty"`
	OldValue   any       `json:"old_value,omitempty"`
	NewValue   any       `json:"new_value,omitempty"`
	OldRef     *TxRef    `json:"old_ref,omitempty"`
	NewRef     *TxRef    `json:"new_ref,omitempty"`
	Added      []TxRef   `json:"added,omitempty"`
	Removed    []TxRef   `json:"removed,omitempty"`
	Name       string    `json:"name,omitempty"`
	Payload    any       `json:"payload,omitempty"`
}

// Transaction is an ordered log of transacted events plus the map resolving
// captured instance ids to instances of the target graph. Build it once;
// Perform and Rollback replay it any number of times.
type Transaction struct {
	registry  *Registry
	id        string
	records   []TxRecord
	instances map[string]*Instance
}

// NewTransaction binds records to a target registry under a fresh identifier.
func NewTransaction(target *Registry, records []TxRecord) *Transaction {
	return RestoreTransaction(target, uuid.NewString(), records)
}

// RestoreTransaction binds decoded records to a target registry, keeping the
// identifier they were captured under.
func RestoreTransaction(target *Registry, id string, records []TxRecord) *Transaction {
	return &Transaction{
		registry:  target,
		id:        id,
		records:   records,
		instances: map[string]*Instance{},
	}
}

// ID returns the transaction identifier.
func (t *Transaction) ID() string { return t.id }

// Records returns a copy of the transacted event log.
func (t *Transaction) Records() []TxRecord {
	out := make([]TxRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Capture runs fn inside a scope on r and returns the transaction holding
// every transacted event fn produced. Property access events are graph-local
// and are not captured.
func Capture(r *Registry, fn func() error) (*Transaction, error) {
	if r.recorder != nil {
		return nil, ErrCaptureInProgress
	}
	rec := &txRecorder{registry: r}
	r.recorder = rec
	err := r.Perform(fn)
	r.recorder = nil
	if err != nil {
		return nil, err
	}
	return NewTransaction(r, rec.records), nil
}

// Perform replays the log forward against the target graph, creating
// placeholder instances for ids the graph has not seen. The whole replay runs
// inside one scope.
func (t *Transaction) Perform() error {
	return t.registry.Perform(func() error {
		for i := range t.records {
			if err := t.apply(&t.records[i], false); err != nil {
				return fmt.Errorf("tx: record %d: %w", i, err)
			}
		}
		return nil
	})
}

// Rollback replays the exact inverse of the log, last record first. Save and
// delete records have no inverse and fail with ErrNotRollbackable; custom
// records carry no state and are skipped.
func (t *Transaction) Rollback() error {
	return t.registry.Perform(func() error {
		for i := len(t.records) - 1; i >= 0; i-- {
			if err := t.apply(&t.records[i], true); err != nil {
				return fmt.Errorf("tx: record %d: %w", i, err)
			}
		}
		return nil
	})
}

func (t *Transaction) apply(rec *TxRecord, invert bool) error {
	inst, err := t.resolve(rec.InstanceID, rec.TypeName)
	if err != nil {
		return err
	}
	switch rec.Kind {
	case EventValueChange:
		prop, ok := inst.typ.ValueProperty(rec.Property)
		if !ok {
			return fmt.Errorf("unknown value property %q on %s", rec.Property, rec.TypeName)
		}
		value := rec.NewValue
		if invert {
			value = rec.OldValue
		}
		return inst.Set(prop, value)

	case EventReferenceChange:
		prop, ok := inst.typ.Reference(rec.Property)
		if !ok {
			return fmt.Errorf("unknown reference property %q on %s", rec.Property, rec.TypeName)
		}
		ref := rec.NewRef
		if invert {
			ref = rec.OldRef
		}
		target, err := t.resolveRef(ref)
		if err != nil {
			return err
		}
		return inst.SetRef(prop, target)

	case EventListChange:
		prop, ok := inst.typ.Reference(rec.Property)
		if !ok {
			return fmt.Errorf("unknown reference property %q on %s", rec.Property, rec.TypeName)
		}
		added, removed := rec.Added, rec.Removed
		if invert {
			added, removed = removed, added
		}
		return t.applyListChange(inst, prop, added, removed)

	case EventSave:
		if invert {
			return fmt.Errorf("%w: save of %s", ErrNotRollbackable, rec.InstanceID)
		}
		return inst.Save()

	case EventDelete:
		if invert {
			return fmt.Errorf("%w: delete of %s", ErrNotRollbackable, rec.InstanceID)
		}
		return inst.Delete()

	case EventCustom:
		if invert {
			return nil
		}
		return NewCustomEvent(inst, rec.Name, rec.Payload).Notify()
	}
	return fmt.Errorf("unsupported record kind %q", rec.Kind)
}

func (t *Transaction) applyListChange(inst *Instance, prop *ReferenceProperty, added, removed []TxRef) error {
	list, err := inst.List(prop)
	if err != nil {
		return err
	}
	addedInstances := make([]*Instance, 0, len(added))
	for _, ref := range added {
		item, err := t.resolve(ref.ID, ref.Type)
		if err != nil {
			return err
		}
		if err := list.Add(item); err != nil {
			return err
		}
		addedInstances = append(addedInstances, item)
	}
	removedInstances := make([]*Instance, 0, len(removed))
	for _, ref := range removed {
		item, err := t.resolve(ref.ID, ref.Type)
		if err != nil {
			return err
		}
		if err := list.Remove(item); err != nil {
			return err
		}
		removedInstances = append(removedInstances, item)
	}
	return NewListChangeEvent(inst, prop, addedInstances, removedInstances).Notify()
}

// resolve maps a captured id to an instance of the target graph, creating a
// placeholder on first sight of an unknown id.
func (t *Transaction) resolve(id, typeName string) (*Instance, error) {
	if inst, ok := t.instances[id]; ok {
		return inst, nil
	}
	if inst, ok := t.registry.Instance(id); ok {
		t.instances[id] = inst
		return inst, nil
	}
	inst, err := t.registry.CreateWithID(typeName, id)
	if err != nil {
		return nil, err
	}
	t.instances[id] = inst
	return inst, nil
}

func (t *Transaction) resolveRef(ref *TxRef) (*Instance, error) {
	if ref == nil {
		return nil, nil
	}
	return t.resolve(ref.ID, ref.Type)
}

type txRecorder struct {
	registry *Registry
	records  []TxRecord
}

func (rec *txRecorder) capture(e Event) {
	inst := e.Instance()
	base := TxRecord{
		Kind:       e.Kind(),
		TypeName:   inst.typ.name,
		InstanceID: inst.id,
	}
	if p := e.Property(); p != nil {
		base.Property = p.Name()
	}
	switch evt := e.(type) {
	case *PropertyAccessEvent:
		return
	case *ValueChangeEvent:
		base.OldValue = evt.OldValue()
		base.NewValue = evt.NewValue()
	case *ReferenceChangeEvent:
		base.OldRef = txRefOf(evt.OldTarget())
		base.NewRef = txRefOf(evt.NewTarget())
	case *ListChangeEvent:
		base.Added = txRefsOf(evt.Added())
		base.Removed = txRefsOf(evt.Removed())
	case *CustomEvent:
		base.Name = evt.Name()
		base.Payload = evt.Payload()
	}
	rec.records = append(rec.records, base)
}

func txRefOf(inst *Instance) *TxRef {
	if inst == nil {
		return nil
	}
	return &TxRef{ID: inst.id, Type: inst.typ.name}
}

func txRefsOf(instances []*Instance) []TxRef {
	if len(instances) == 0 {
		return nil
	}
	out := make([]TxRef, 0, len(instances))
	for _, inst := range instances {
		out = append(out, TxRef{ID: inst.id, Type: inst.typ.name})
	}
	return out
}

package model

import "errors"

// ScopeState tracks where an EventScope is in its lifecycle.
type ScopeState uint8

const (
	// ScopeActive accepts mutations and deferred callbacks.
	ScopeActive ScopeState = iota + 1
	// ScopeExiting is running exit callbacks; new registrations still land in
	// the current flush.
	ScopeExiting
	// ScopeExited accepts nothing.
	ScopeExited
)

func (s ScopeState) String() string {
	switch s {
	case ScopeActive:
		return "active"
	case ScopeExiting:
		return "exiting"
	case ScopeExited:
		return "exited"
	}
	return "unknown"
}

var (
	// ErrScopeExited indicates use of a scope after it exited.
	ErrScopeExited = errors.New("scope: already exited")
	// ErrScopeOrder indicates an exit that is not the innermost open scope.
	ErrScopeOrder = errors.New("scope: exit out of nesting order")
)

// EventScope groups a unit of work so that deferred callbacks and coalesced
// list deltas fire once, at the outermost exit. Scopes nest into a single
// chain per registry; an inner scope's exit transfers its pending work to the
// parent instead of firing it.
type EventScope struct {
	registry *Registry
	parent   *EventScope
	state    ScopeState

	exitFns      []func() error
	pendingLists map[listKey]*pendingList
	pendingOrder []listKey
}

type listKey struct {
	inst *Instance
	prop *ReferenceProperty
}

type pendingList struct {
	event   *ListChangeEvent
	deliver func(*ListChangeEvent) error
}

// Scope opens a new event scope nested inside the current one.
func (r *Registry) Scope() *EventScope {
	s := &EventScope{registry: r, parent: r.scope, state: ScopeActive}
	r.scope = s
	return s
}

// CurrentScope returns the innermost open scope, nil when none is open.
func (r *Registry) CurrentScope() *EventScope {
	return r.scope
}

// State reports the scope's lifecycle state.
func (s *EventScope) State() ScopeState { return s.state }

// OnExit defers fn to the outermost scope exit. Registering on an exited
// scope is a usage error; registering while callbacks are already flushing
// appends fn to the running flush, so it still fires exactly once.
func (s *EventScope) OnExit(fn func() error) error {
	if fn == nil {
		return nil
	}
	if s.state == ScopeExited {
		return ErrScopeExited
	}
	s.exitFns = append(s.exitFns, fn)
	return nil
}

// Exit closes the scope. An inner scope hands its deferred callbacks and
// coalesced list deltas to its parent; the outermost scope runs them,
// re-checking for callbacks appended during the flush, and reports every
// callback error joined together.
func (s *EventScope) Exit() error {
	if s.state != ScopeActive {
		return ErrScopeExited
	}
	if s.registry.scope != s {
		return ErrScopeOrder
	}
	s.state = ScopeExiting

	if s.parent != nil {
		s.parent.exitFns = append(s.parent.exitFns, s.exitFns...)
		s.exitFns = nil
		for _, key := range s.pendingOrder {
			entry := s.pendingLists[key]
			s.parent.mergePending(key, entry)
		}
		s.pendingLists = nil
		s.pendingOrder = nil
		s.state = ScopeExited
		s.registry.scope = s.parent
		return nil
	}

	var errs []error
	for len(s.exitFns) > 0 || len(s.pendingOrder) > 0 {
		fns := s.exitFns
		s.exitFns = nil
		for _, fn := range fns {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}

		order := s.pendingOrder
		lists := s.pendingLists
		s.pendingOrder = nil
		s.pendingLists = nil
		for _, key := range order {
			entry := lists[key]
			if err := entry.deliver(entry.event); err != nil {
				errs = append(errs, err)
			}
		}
	}
	s.state = ScopeExited
	s.registry.scope = nil
	return errors.Join(errs...)
}

func (s *EventScope) mergePending(key listKey, entry *pendingList) {
	if s.pendingLists == nil {
		s.pendingLists = map[listKey]*pendingList{}
	}
	if existing, ok := s.pendingLists[key]; ok {
		existing.event = existing.event.Merge(entry.event)
		return
	}
	s.pendingLists[key] = entry
	s.pendingOrder = append(s.pendingOrder, key)
}

// deferListChange coalesces e with any pending delta for the same
// (instance, property) pair. The first registration's deliver function wins.
func (s *EventScope) deferListChange(e *ListChangeEvent, deliver func(*ListChangeEvent) error) {
	key := listKey{inst: e.Instance(), prop: e.Property().(*ReferenceProperty)}
	s.mergePending(key, &pendingList{event: e, deliver: deliver})
}

// DeferListChange batches a list delta until the outermost scope exit,
// merging it with earlier deltas for the same list. Without an open scope the
// delta delivers immediately.
func (r *Registry) DeferListChange(e *ListChangeEvent, deliver func(*ListChangeEvent) error) error {
	if e == nil || deliver == nil {
		return nil
	}
	if r.scope == nil {
		return deliver(e)
	}
	r.eventLogger().LogEvent(EventLogEvent{
		Kind:       e.Kind(),
		TypeName:   e.Instance().typ.name,
		InstanceID: e.Instance().id,
		Property:   e.Property().Name(),
		Deferred:   true,
	})
	r.scope.deferListChange(e, deliver)
	return nil
}

// Perform runs fn inside a fresh scope and exits it afterwards, joining the
// action's error with any exit callback errors so neither is dropped. Exit
// logic runs even when fn fails.
func (r *Registry) Perform(fn func() error) (err error) {
	scope := r.Scope()
	defer func() {
		err = errors.Join(err, scope.Exit())
	}()
	return fn()
}

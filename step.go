package model

// Step is one compiled hop of a Path: a property plus an optional sub-type
// filter on the hop's targets. Steps form a linear chain with optional leaf
// fan-out at the end.
type Step struct {
	path     *Path
	property Property
	filter   *Type
	prev     *Step
}

// Property returns the property this step traverses or watches.
func (s *Step) Property() Property { return s.property }

// Filter returns the sub-type filter applied to this step's targets, nil when
// unfiltered.
func (s *Step) Filter() *Type { return s.filter }

// Prev returns the preceding step, nil for the first.
func (s *Step) Prev() *Step { return s.prev }

// advance follows the step forward from the given instances, deduplicating
// targets and applying the filter. Missing links are skipped, never errors.
func (s *Step) advance(from []*Instance) ([]*Instance, error) {
	return s.advanceRecording(from, nil)
}

// advanceRecording is advance with an optional callback invoked for each
// target the filter drops. Tracing uses it to explain pruned hops.
func (s *Step) advanceRecording(from []*Instance, dropped func(*Instance)) ([]*Instance, error) {
	prop, ok := s.property.(*ReferenceProperty)
	if !ok {
		return from, nil
	}
	seen := map[*Instance]struct{}{}
	var out []*Instance
	keep := func(target *Instance) {
		if target == nil {
			return
		}
		if s.filter != nil && !target.typ.Is(s.filter) {
			if dropped != nil {
				dropped(target)
			}
			return
		}
		if _, ok := seen[target]; ok {
			return
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	for _, inst := range from {
		if prop.IsList() {
			list, err := inst.List(prop)
			if err != nil {
				return nil, err
			}
			for i := 0; i < list.Len(); i++ {
				keep(list.At(i))
			}
			continue
		}
		target, err := inst.Ref(prop)
		if err != nil {
			return nil, err
		}
		keep(target)
	}
	return out, nil
}

type stepInstance struct {
	step *Step
	inst *Instance
}

// rootsFor walks backward from a change to s.property on owner and returns
// the path roots from which that change is visible, each exactly once. The
// walk follows the in-reference index, marking visited (step, instance) pairs
// so diamond shapes neither loop nor duplicate, and treats broken chains as
// not visible.
func (p *Path) rootsFor(s *Step, owner *Instance) []*Instance {
	visited := map[stepInstance]struct{}{}
	rootSeen := map[*Instance]struct{}{}
	var roots []*Instance

	var walk func(s *Step, inst *Instance)
	walk = func(s *Step, inst *Instance) {
		key := stepInstance{step: s, inst: inst}
		if _, ok := visited[key]; ok {
			return
		}
		visited[key] = struct{}{}

		prev := s.prev
		if prev == nil {
			if !inst.typ.Is(p.root) {
				return
			}
			if _, ok := rootSeen[inst]; ok {
				return
			}
			rootSeen[inst] = struct{}{}
			roots = append(roots, inst)
			return
		}
		if prev.filter != nil && !inst.typ.Is(prev.filter) {
			return
		}
		prevProp, ok := prev.property.(*ReferenceProperty)
		if !ok {
			return
		}
		for _, source := range inst.sourcesVia(prevProp) {
			walk(prev, source)
		}
	}
	walk(s, owner)
	return roots
}

package model

import (
	"errors"
	"fmt"
	"strings"
)

// Path is a compiled property path rooted at a type: a chain of reference
// hops ending in a watched property, optionally fanning out into sibling
// leaves. Paths compile once per (root type, path string) and cache both
// outcomes, valid and invalid.
type Path struct {
	root   *Type
	raw    string
	chain  []*Step
	leaves []*Step
}

// Root returns the type the path is rooted at.
func (p *Path) Root() *Type { return p.root }

// String returns the source path string.
func (p *Path) String() string { return p.raw }

// Steps returns every step of the path, chain first, then branch leaves.
func (p *Path) Steps() []*Step {
	out := make([]*Step, 0, len(p.chain)+len(p.leaves))
	out = append(out, p.chain...)
	out = append(out, p.leaves...)
	return out
}

type pathEntry struct {
	path *Path
	err  error
}

// Path compiles a path string against t, consulting the path cache first.
// Invalid paths cache their error so repeated lookups do not recompile.
func (t *Type) Path(raw string) (*Path, error) {
	if cache := t.registry.cfg.pathCache; cache != nil {
		key := t.name + "\x00" + raw
		if v, ok := cache.Get(key); ok {
			entry := v.(*pathEntry)
			return entry.path, entry.err
		}
		entry := t.compilePath(raw)
		cache.Set(key, entry)
		return entry.path, entry.err
	}
	if t.paths == nil {
		t.paths = map[string]*pathEntry{}
	}
	if entry, ok := t.paths[raw]; ok {
		return entry.path, entry.err
	}
	entry := t.compilePath(raw)
	t.paths[raw] = entry
	return entry.path, entry.err
}

func (t *Type) compilePath(raw string) *pathEntry {
	t.pathCompiles++
	p, err := compilePath(t, raw)
	return &pathEntry{path: p, err: err}
}

// ErrInvalidPath is wrapped by every path compilation failure.
var ErrInvalidPath = errors.New("invalid path")

func pathErrorf(root *Type, raw, segment, format string, args ...any) error {
	return &PathError{
		TypeName: root.name,
		Path:     raw,
		Segment:  segment,
		Err:      fmt.Errorf("%w: %s", ErrInvalidPath, fmt.Sprintf(format, args...)),
	}
}

func compilePath(root *Type, raw string) (*Path, error) {
	body := raw
	var branch []string
	if i := strings.IndexByte(raw, '{'); i >= 0 {
		if !strings.HasSuffix(raw, "}") {
			return nil, pathErrorf(root, raw, "", "unterminated branch")
		}
		body = raw[:i]
		inner := raw[i+1 : len(raw)-1]
		for _, name := range strings.Split(inner, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				return nil, pathErrorf(root, raw, "", "empty branch element")
			}
			branch = append(branch, name)
		}
	}
	if strings.TrimSpace(body) == "" {
		return nil, pathErrorf(root, raw, "", "empty path")
	}

	p := &Path{root: root, raw: raw}
	cur := root
	var prev *Step
	segments := strings.Split(body, ".")
	for idx, segment := range segments {
		name, filterName, err := splitFilter(segment)
		if err != nil {
			return nil, pathErrorf(root, raw, segment, "%v", err)
		}
		prop, ok := cur.Property(name)
		if !ok {
			return nil, pathErrorf(root, raw, segment, "unknown property %q on %s", name, cur.name)
		}
		final := idx == len(segments)-1
		step := &Step{path: p, property: prop, prev: prev}

		switch typed := prop.(type) {
		case *ValueProperty:
			if !final {
				return nil, pathErrorf(root, raw, segment, "cannot traverse value property %q", name)
			}
			if len(branch) > 0 {
				return nil, pathErrorf(root, raw, segment, "branch requires a reference segment, %q is a value", name)
			}
			if filterName != "" {
				return nil, pathErrorf(root, raw, segment, "filter on value property %q", name)
			}
		case *ReferenceProperty:
			next := typed.Target()
			if filterName != "" {
				filter, err := root.registry.Resolve(filterName)
				if err != nil {
					return nil, pathErrorf(root, raw, segment, "filter %q: %v", filterName, err)
				}
				if !filter.Is(next) {
					return nil, pathErrorf(root, raw, segment, "filter %q is not a sub-type of %s", filterName, next.name)
				}
				step.filter = filter
				next = filter
			}
			cur = next
		}
		p.chain = append(p.chain, step)
		prev = step
	}

	if len(branch) > 0 {
		for _, name := range branch {
			prop, ok := cur.Property(name)
			if !ok {
				return nil, pathErrorf(root, raw, name, "unknown property %q on %s", name, cur.name)
			}
			p.leaves = append(p.leaves, &Step{path: p, property: prop, prev: prev})
		}
	}
	return p, nil
}

func splitFilter(segment string) (name, filter string, err error) {
	open := strings.IndexByte(segment, '<')
	if open < 0 {
		if strings.IndexByte(segment, '>') >= 0 {
			return "", "", fmt.Errorf("stray '>' in segment")
		}
		return segment, "", nil
	}
	if !strings.HasSuffix(segment, ">") {
		return "", "", fmt.Errorf("unterminated filter")
	}
	name = segment[:open]
	filter = segment[open+1 : len(segment)-1]
	if name == "" {
		return "", "", fmt.Errorf("filter without property name")
	}
	if filter == "" {
		return "", "", fmt.Errorf("empty filter")
	}
	return name, filter, nil
}

// Instances resolves the path forward from root: every reference hop is
// followed through live property reads, filters drop non-matching targets
// without descending, and missing links are skipped. The result is finite and
// deduplicated. A trailing value property does not advance the walk, so for
// such paths the result holds the owners of that property.
func (p *Path) Instances(root *Instance) ([]*Instance, error) {
	if root == nil || !root.typ.Is(p.root) {
		return nil, nil
	}
	cur := []*Instance{root}
	for _, step := range p.chain {
		next, err := step.advance(cur)
		if err != nil {
			return nil, err
		}
		cur = next
		if len(cur) == 0 {
			return nil, nil
		}
	}
	return cur, nil
}

// PathObserver receives one notification per path root from which a change is
// visible.
type PathObserver func(root *Instance, change Event) error

// PathSubscription is an active path observation. Cancel detaches it.
type PathSubscription struct {
	path     *Path
	fn       PathObserver
	active   bool
	registry *Registry
}

type pathObserver struct {
	sub  *PathSubscription
	step *Step
}

// Subscribe registers fn for changes visible along p. Every step of the path
// is watched: a change to an intermediate reference re-notifies just like a
// change to the leaf property.
func (p *Path) Subscribe(fn PathObserver) *PathSubscription {
	sub := &PathSubscription{path: p, fn: fn, active: true, registry: p.root.registry}
	if fn == nil {
		sub.active = false
		return sub
	}
	r := p.root.registry
	for _, step := range p.Steps() {
		r.observers[step.property] = append(r.observers[step.property], &pathObserver{sub: sub, step: step})
	}
	return sub
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *PathSubscription) Cancel() {
	if !s.active {
		return
	}
	s.active = false
	r := s.registry
	for _, step := range s.path.Steps() {
		entries := r.observers[step.property]
		kept := entries[:0]
		for _, entry := range entries {
			if entry.sub != s {
				kept = append(kept, entry)
			}
		}
		if len(kept) == 0 {
			delete(r.observers, step.property)
			continue
		}
		r.observers[step.property] = kept
	}
}

// notifyPathObservers fans a change event out to path subscriptions watching
// the mutated property. Roots are deduplicated per subscription even when the
// property appears at several steps of one path.
func (r *Registry) notifyPathObservers(e Event) error {
	entries := r.observers[e.Property()]
	if len(entries) == 0 {
		return nil
	}
	snapshot := append([]*pathObserver(nil), entries...)

	var errs []error
	notified := map[*PathSubscription]map[*Instance]struct{}{}
	for _, entry := range snapshot {
		if !entry.sub.active {
			continue
		}
		seen := notified[entry.sub]
		if seen == nil {
			seen = map[*Instance]struct{}{}
			notified[entry.sub] = seen
		}
		for _, root := range entry.sub.path.rootsFor(entry.step, e.Instance()) {
			if _, ok := seen[root]; ok {
				continue
			}
			seen[root] = struct{}{}
			if err := entry.sub.fn(root, e); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

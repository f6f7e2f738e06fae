package model

import (
	"encoding/json"
)

// Trace captures provenance information for one forward path resolution: the
// instance frontier entering and leaving every hop, including targets pruned
// by sub-type filters.
type Trace struct {
	Type    string   `json:"type"`
	Path    string   `json:"path"`
	Root    string   `json:"root,omitempty"`
	Hops    []Hop    `json:"hops,omitempty"`
	Results []string `json:"results,omitempty"`
}

// Hop details how a single step transformed the frontier.
type Hop struct {
	Property string   `json:"property"`
	Filter   string   `json:"filter,omitempty"`
	Incoming []string `json:"incoming,omitempty"`
	Matched  []string `json:"matched,omitempty"`
	Filtered []string `json:"filtered,omitempty"`
}

// Trace resolves the path forward from root exactly like Instances, recording
// one Hop per chain step. A root of the wrong type produces an empty trace,
// mirroring the empty resolution.
func (p *Path) Trace(root *Instance) (Trace, error) {
	trace := Trace{Type: p.root.name, Path: p.raw}
	if root == nil || !root.typ.Is(p.root) {
		return trace, nil
	}
	trace.Root = root.id

	cur := []*Instance{root}
	for _, step := range p.chain {
		hop := Hop{
			Property: step.property.Name(),
			Incoming: instanceIDsOf(cur),
		}
		if step.filter != nil {
			hop.Filter = step.filter.name
		}
		var filtered []*Instance
		next, err := step.advanceRecording(cur, func(target *Instance) {
			filtered = append(filtered, target)
		})
		if err != nil {
			return Trace{}, err
		}
		hop.Matched = instanceIDsOf(next)
		hop.Filtered = instanceIDsOf(filtered)
		trace.Hops = append(trace.Hops, hop)
		cur = next
		if len(cur) == 0 {
			break
		}
	}
	trace.Results = instanceIDsOf(cur)
	return trace, nil
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}

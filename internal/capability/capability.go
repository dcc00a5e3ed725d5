package capability

import (
	"context"
	"sort"
)

// Invocation carries the inputs for one capability call.
type Invocation struct {
	UserID string
	Params map[string]string
	// DepOutputs maps dependency task ids to their output payloads. Outputs
	// are passed by reference to the producing task, never copied into Params.
	DepOutputs map[string]string
}

// Param returns a named parameter or the empty string.
func (inv Invocation) Param(name string) string {
	return inv.Params[name]
}

// Capability defines the interface for all orchestrated units of work.
type Capability interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, inv Invocation) (string, error)
}

// Descriptor is the static metadata the planner and classifier read.
// Registered once at startup, read-only afterwards.
type Descriptor struct {
	Name        string
	Description string
	// RequiresCourse marks capabilities that read or write course-scoped
	// data. The planner prepends a course-resolving task for these when the
	// session has no established course.
	RequiresCourse bool
	// Parameters is a JSON Schema describing the inputs, exposed to the
	// LLM classification fallback.
	Parameters map[string]any
}

// RequiredParams extracts the schema's required field names.
func (d Descriptor) RequiredParams() []string {
	raw, ok := d.Parameters["required"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, r := range v {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Registry manages the set of available capabilities.
type Registry struct {
	caps map[string]Capability
}

func NewRegistry() *Registry {
	return &Registry{
		caps: make(map[string]Capability),
	}
}

func (r *Registry) Register(c Capability) {
	r.caps[c.Descriptor().Name] = c
}

func (r *Registry) Get(name string) Capability {
	return r.caps[name]
}

// Descriptor looks up the metadata for a registered capability.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	c, ok := r.caps[name]
	if !ok {
		return Descriptor{}, false
	}
	return c.Descriptor(), true
}

// Descriptors returns all registered descriptors in name order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.caps))
	for _, c := range r.caps {
		out = append(out, c.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

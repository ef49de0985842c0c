package simulator

import (
	"fmt"
	"sort"
)

// Params carries numeric simulator parameters from configuration.
type Params map[string]float64

// Get returns the named parameter or def when absent.
func (p Params) Get(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// Factory builds a simulator instance with the given name and parameters.
type Factory func(name string, params Params) (Simulator, error)

// Registry maps simulator kinds to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

// Build instantiates a simulator of the given kind.
func (r *Registry) Build(kind, name string, params Params) (Simulator, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown simulator kind %q", kind)
	}
	if name == "" {
		name = kind
	}
	sim, err := f(name, params)
	if err != nil {
		return nil, fmt.Errorf("build %s simulator %q: %w", kind, name, err)
	}
	return sim, nil
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// DefaultRegistry returns a registry with the built-in simulators.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("odometry", func(name string, p Params) (Simulator, error) {
		drift := p.Get("drift", 0.05)
		if drift < 0 {
			return nil, fmt.Errorf("drift must be >= 0, got %v", drift)
		}
		return Odometry{ID: name, Speed: p.Get("speed", 0.2), TurnRate: p.Get("turn_rate", 0.1), Drift: drift}, nil
	})
	r.Register("battery", func(name string, p Params) (Simulator, error) {
		drain := p.Get("drain_per_second", 1.0/1800)
		if drain < 0 {
			return nil, fmt.Errorf("drain_per_second must be >= 0, got %v", drain)
		}
		return Battery{ID: name, DrainPerSecond: drain}, nil
	})
	r.Register("sensors", func(name string, p Params) (Simulator, error) {
		return Sensors{ID: name, TurnRate: p.Get("turn_rate", 0.1), Noise: p.Get("noise", 0.01)}, nil
	})
	r.Register("overview", func(name string, _ Params) (Simulator, error) {
		return Overview{ID: name}, nil
	})
	return r
}

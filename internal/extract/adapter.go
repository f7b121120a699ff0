package extract

import "github.com/smishguard/explaind/internal/model"

// Adapter converts one historical analysis-payload shape into the canonical
// evidence bundle. Multiple producer versions wrote different top-level
// layouts for the same logical entity; each gets its own adapter so the rule
// table stays shape-agnostic.
type Adapter interface {
	// Name returns the adapter name
	Name() string

	// CanHandle checks if this adapter recognizes the payload layout
	CanHandle(payload map[string]any) bool

	// Bundle converts the payload into the canonical evidence bundle.
	// Total - malformed fields degrade to safe defaults.
	Bundle(resultID string, payload map[string]any) model.EvidenceBundle
}

// Registry manages payload-shape adapters
type Registry struct {
	adapters []Adapter
	fallback Adapter
}

// NewRegistry creates a registry with the built-in shape adapters
func NewRegistry() *Registry {
	registry := &Registry{}

	registry.Register(NewAnalysisLogAdapter())

	// Record-details is both a recognized shape and the fallback: an
	// unrecognizable payload still yields a bundle with UNKNOWN risk
	// rather than an error.
	fallback := NewRecordDetailsAdapter()
	registry.Register(fallback)
	registry.fallback = fallback

	return registry
}

// Register registers a new adapter
func (r *Registry) Register(adapter Adapter) {
	r.adapters = append(r.adapters, adapter)
}

// FindAdapter finds the adapter for the given payload
func (r *Registry) FindAdapter(payload map[string]any) Adapter {
	for _, adapter := range r.adapters {
		if adapter.CanHandle(payload) {
			return adapter
		}
	}
	return r.fallback
}

// Bundle converts a payload of any accepted shape into the canonical bundle
func (r *Registry) Bundle(resultID string, payload map[string]any) model.EvidenceBundle {
	return r.FindAdapter(payload).Bundle(resultID, payload)
}

package blocks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Registry is the type-keyed lookup from a node's "type" string to the
// factory that builds its Block. Node packages register themselves via
// init() functions, the same blank-import pattern used throughout the
// codebase for pluggable subsystems.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// globalRegistry is populated by Register calls from block subpackages'
// init() functions and returned by Global.
var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for the given type name to the global registry.
// Call from an init() function; panics on duplicate registration, which can
// only happen from a programming error.
func Register(typeName string, f Factory) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	if _, dup := globalRegistry.factories[typeName]; dup {
		panic(fmt.Sprintf("blocks: duplicate registration for %q", typeName))
	}
	globalRegistry.factories[typeName] = f
}

// Global returns the process-wide registry populated by every imported
// block subpackage's init().
func Global() *Registry { return globalRegistry }

// Build constructs a Block for the named type.
func (r *Registry) Build(typeName string, settings map[string]any) (Block, error) {
	r.mu.RLock()
	f, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, ConfigError("unknown block type %q", typeName)
	}
	return f(settings)
}

// Has reports whether typeName is registered.
func (r *Registry) Has(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typeName]
	return ok
}

// Types returns every registered type name, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ValidateSettings builds typeName's block from settings (surfacing any
// ConfigError a factory itself raises) and, if the block declares a
// SettingsSchema, validates settings against it. A schema violation is
// reported the same way a bad Action Input is in agent.react's
// validateToolInput, so a malformed node never reaches a run.
func (r *Registry) ValidateSettings(typeName string, settings map[string]any) error {
	b, err := r.Build(typeName, settings)
	if err != nil {
		return err
	}
	schema := b.SettingsSchema()
	if schema == nil {
		return nil
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(settings))
	if err != nil {
		return ConfigError("%s: validate settings: %v", typeName, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return ConfigError("%s: settings schema violation: %v", typeName, msgs)
	}
	return nil
}

// Run looks up typeName, builds a Block from settings, and executes it.
// This mirrors the registry's run_block(type, input, ctx) shape: a single
// call a caller (the engine, or an agent dispatching a tool) uses without
// needing to hold onto a Block value.
func (r *Registry) Run(ctx context.Context, typeName string, in Input) (Output, error) {
	b, err := r.Build(typeName, in.Settings)
	if err != nil {
		return Output{}, err
	}
	return b.Run(ctx, in)
}

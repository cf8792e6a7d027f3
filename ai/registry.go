package ai

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Miles0sage/agentgate/core"
)

// Factory builds an Adapter for one core.Provider. Providers register a
// factory from an init() in their own file (providers_anthropic.go,
// providers_deepseek.go, providers_minimax.go, providers_ollama.go; the
// MockAdapter in mock.go is not registered) rather than the registry importing them
// directly — the teacher's provider-plugin convention (ai/registry.go).
type Factory func(cfg AdapterConfig) (Adapter, error)

// Registry is a concurrency-safe map from core.Provider to its Factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[core.Provider]Factory
}

var globalRegistry = &Registry{factories: make(map[core.Provider]Factory)}

// Register adds a provider factory to the global registry. Re-registering
// the same provider is an error — providers are wired once at process
// start, never swapped at runtime.
func Register(provider core.Provider, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("ai: nil factory for provider %q", provider)
	}
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	if _, exists := globalRegistry.factories[provider]; exists {
		return fmt.Errorf("ai: provider %q already registered", provider)
	}
	globalRegistry.factories[provider] = factory
	return nil
}

// MustRegister registers a factory and panics on error; used from init().
func MustRegister(provider core.Provider, factory Factory) {
	if err := Register(provider, factory); err != nil {
		panic(err)
	}
}

// Build constructs an Adapter for a provider using its registered factory
// and the given configuration.
func Build(provider core.Provider, cfg AdapterConfig) (Adapter, error) {
	globalRegistry.mu.RLock()
	factory, ok := globalRegistry.factories[provider]
	globalRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ai: no adapter registered for provider %q", provider)
	}
	return factory(cfg)
}

// ListProviders returns every registered provider, sorted.
func ListProviders() []core.Provider {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	names := make([]core.Provider, 0, len(globalRegistry.factories))
	for p := range globalRegistry.factories {
		names = append(names, p)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

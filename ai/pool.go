package ai

import (
	"fmt"
	"sync"

	"github.com/Miles0sage/agentgate/core"
)

// Pool lazily builds and caches one Adapter per provider, adapted from
// the teacher's ChainClient provider-construction pattern (chain_client.go):
// fail fast on a provider that cannot be configured at all, but let the
// dispatcher decide at call time whether a transient failure should
// advance the fallback chain.
type Pool struct {
	mu       sync.RWMutex
	adapters map[core.Provider]Adapter

	logger    core.Logger
	telemetry core.Telemetry
}

// NewPool builds an empty adapter pool.
func NewPool(logger core.Logger, telemetry core.Telemetry) *Pool {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if telemetry == nil {
		telemetry = core.NoOpTelemetry{}
	}
	return &Pool{adapters: make(map[core.Provider]Adapter), logger: logger, telemetry: telemetry}
}

// Get returns the cached adapter for a provider, building and caching one
// on first use via NewAdapterConfig's environment auto-configuration.
func (p *Pool) Get(provider core.Provider) (Adapter, error) {
	p.mu.RLock()
	adapter, ok := p.adapters[provider]
	p.mu.RUnlock()
	if ok {
		return adapter, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if adapter, ok := p.adapters[provider]; ok {
		return adapter, nil
	}

	cfg := NewAdapterConfig(provider, WithAdapterLogger(p.logger), WithAdapterTelemetry(p.telemetry))
	adapter, err := Build(provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("ai: building adapter for %q: %w", provider, err)
	}
	p.adapters[provider] = adapter
	return adapter, nil
}

// Warm eagerly builds adapters for every given provider, returning the
// first construction error encountered (fail-fast at startup rather than
// on the first request).
func (p *Pool) Warm(providers ...core.Provider) error {
	for _, provider := range providers {
		if _, err := p.Get(provider); err != nil {
			return err
		}
	}
	return nil
}

package provider

import (
	"fmt"
	"sort"

	"contractanalyzer/internal/config"
	"contractanalyzer/internal/port"
)

// Factory creates a ModelProvider from a provider config.
type Factory func(cfg *config.ModelProviderConfig) (port.ModelProvider, error)

// registry of provider factories, populated by init() in each provider package.
var providers = map[string]Factory{}

// Register registers a provider factory by name.
func Register(name string, factory Factory) {
	providers[name] = factory
}

// Registered returns the registered provider names, sorted.
func Registered() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a ModelProvider from a provider config using the registered factory.
func New(cfg *config.ModelProviderConfig) (port.ModelProvider, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown model provider: %s", cfg.Provider)
	}
	return factory(cfg)
}

// NewChain builds the configured providers in order. A single provider is
// returned as is; several are wrapped in a Fallback.
func NewChain(cfgs []config.ModelProviderConfig, opts ...FallbackOption) (port.ModelProvider, error) {
	var chain []port.ModelProvider
	for i := range cfgs {
		if cfgs[i].Provider == "" {
			continue
		}
		p, err := New(&cfgs[i])
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
	}
	switch len(chain) {
	case 0:
		return nil, fmt.Errorf("no model provider configured")
	case 1:
		return chain[0], nil
	default:
		return NewFallback(chain, opts...), nil
	}
}

package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentSpec is the on-disk (YAML) shape of one configured agent. Startup
// turns a slice of these into immutable core.Agent values.
type AgentSpec struct {
	ID                 string             `yaml:"id"`
	DisplayName        string             `yaml:"display_name"`
	Provider           string             `yaml:"provider"`
	Model              string             `yaml:"model"`
	CostPerInputToken  float64            `yaml:"cost_per_input_token"`
	CostPerOutputToken float64            `yaml:"cost_per_output_token"`
	SkillTags          []string           `yaml:"skill_tags"`
	IntentAffinities   map[string]float64 `yaml:"intent_affinities"`
	Fallbacks          []struct {
		AgentID string `yaml:"agent_id"`
		Model   string `yaml:"model"`
	} `yaml:"fallbacks"`
}

// QuotaTierSpec configures one of the per-task/daily/monthly budget gates
// (spec.md §4.3).
type QuotaTierSpec struct {
	LimitUSD float64 `yaml:"limit_usd"`
	WarnUSD  float64 `yaml:"warn_usd"`
}

// PoolSpec configures one orchestrator worker pool (spec.md §4.4).
type PoolSpec struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// Config is the gateway's fully-validated startup configuration. Unknown
// YAML keys are ignored by yaml.Unmarshal's default behavior (forward
// compatibility); recognized keys are validated in Validate().
type Config struct {
	ServiceName string
	Logging     LoggingConfig

	Agents        []AgentSpec       `yaml:"agents"`
	DefaultAgent  string            `yaml:"default_agent"`
	QuotaTiers    map[string]QuotaTierSpec `yaml:"quota_tiers"` // keys: "task", "day", "month"
	Pools         map[string]PoolSpec      `yaml:"pools"`       // keys: "codegen", "security", "database"

	RouterCacheTTL        time.Duration
	RouterSemanticEnabled bool

	DispatcherTimeout    time.Duration
	DispatcherMaxRetries int
}

// Option configures a Config during NewConfig.
type Option func(*Config)

func WithServiceName(name string) Option {
	return func(c *Config) { c.ServiceName = name }
}

func WithLogging(cfg LoggingConfig) Option {
	return func(c *Config) { c.Logging = cfg }
}

func WithRouterCacheTTL(ttl time.Duration) Option {
	return func(c *Config) { c.RouterCacheTTL = ttl }
}

func WithDispatcherDefaults(timeout time.Duration, maxRetries int) Option {
	return func(c *Config) {
		c.DispatcherTimeout = timeout
		c.DispatcherMaxRetries = maxRetries
	}
}

// defaultConfig mirrors the numeric defaults named throughout spec.md:
// 300s router cache TTL, 30s dispatcher timeout, 3 retries, and the
// per-task/day/month quota defaults from §4.3.
func defaultConfig() *Config {
	return &Config{
		ServiceName:           "agent-gateway",
		Logging:               LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		RouterCacheTTL:        300 * time.Second,
		RouterSemanticEnabled: false,
		DispatcherTimeout:     30 * time.Second,
		DispatcherMaxRetries:  3,
		QuotaTiers: map[string]QuotaTierSpec{
			"task":  {LimitUSD: 10, WarnUSD: 5},
			"day":   {LimitUSD: 50, WarnUSD: 40},
			"month": {LimitUSD: 1000, WarnUSD: 800},
		},
		Pools: map[string]PoolSpec{
			"codegen":  {Concurrency: 3, Timeout: 300 * time.Second, MaxRetries: 2},
			"security": {Concurrency: 2, Timeout: 300 * time.Second, MaxRetries: 2},
			"database": {Concurrency: 2, Timeout: 180 * time.Second, MaxRetries: 2},
		},
	}
}

// NewConfig builds and validates a Config. Invalid configuration refuses
// to start rather than silently substituting a default — matching the
// teacher's "duck-typed configuration objects re-architected as typed,
// validated-at-startup configuration" direction (spec.md §9).
func NewConfig(opts ...Option) (*Config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadAgentsYAML reads an agent roster from a YAML file, following the
// teacher's yaml.v3-backed workflow-definition loader convention.
func LoadAgentsYAML(path string) ([]AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent roster %s: %w", path, err)
	}
	var doc struct {
		Agents []AgentSpec `yaml:"agents"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse agent roster %s: %w", path, err)
	}
	return doc.Agents, nil
}

// Validate checks invariants that must hold before the gateway starts.
func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("%w: at least one agent must be configured", ErrValidation)
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("%w: agent missing id", ErrValidation)
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: duplicate agent id %q", ErrValidation, a.ID)
		}
		seen[a.ID] = true
		switch Provider(a.Provider) {
		case ProviderAnthropic, ProviderDeepSeek, ProviderMiniMax, ProviderOllama:
		default:
			return fmt.Errorf("%w: agent %q has unknown provider %q", ErrValidation, a.ID, a.Provider)
		}
	}
	if c.DefaultAgent != "" && !seen[c.DefaultAgent] {
		return fmt.Errorf("%w: default_agent %q is not a configured agent", ErrValidation, c.DefaultAgent)
	}
	for tier, spec := range c.QuotaTiers {
		if spec.WarnUSD >= spec.LimitUSD {
			return fmt.Errorf("%w: quota tier %q warn threshold must be below its limit", ErrValidation, tier)
		}
	}
	for name, pool := range c.Pools {
		if pool.Concurrency <= 0 {
			return fmt.Errorf("%w: pool %q must have positive concurrency", ErrValidation, name)
		}
	}
	return nil
}

// ToAgents converts the roster into immutable Agent values.
func (c *Config) ToAgents() []*Agent {
	agents := make([]*Agent, 0, len(c.Agents))
	for _, spec := range c.Agents {
		affinities := make(map[Intent]float64, len(spec.IntentAffinities))
		for k, v := range spec.IntentAffinities {
			affinities[Intent(k)] = v
		}
		fallbacks := make([]AgentModelRef, 0, len(spec.Fallbacks))
		for _, f := range spec.Fallbacks {
			fallbacks = append(fallbacks, AgentModelRef{AgentID: f.AgentID, Model: f.Model})
		}
		agents = append(agents, &Agent{
			ID:                 spec.ID,
			DisplayName:        spec.DisplayName,
			Provider:           Provider(spec.Provider),
			Model:              spec.Model,
			CostPerInputToken:  spec.CostPerInputToken,
			CostPerOutputToken: spec.CostPerOutputToken,
			SkillTags:          spec.SkillTags,
			IntentAffinities:   affinities,
			FallbackChain:      fallbacks,
		})
	}
	return agents
}

package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

// Load decodes path as a Volition.toml and validates it (spec.md §4.7).
// Unknown keys are not an error: they are logged as warnings so a typo
// in a rarely-used field doesn't block every run. A nil logger is
// treated as a no-op sink.
func Load(path string, logger *zap.Logger) (*Record, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var rec Record
	meta, err := toml.DecodeFile(path, &rec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for _, key := range meta.Undecoded() {
		logger.Warn("unrecognized configuration key", zap.String("key", key.String()))
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}

	return &rec, nil
}

// Validate enforces spec.md §4.7's ConfigurationRecord invariants:
// default_provider must name a declared provider, and any provider
// named by a strategy's configuration must exist too.
func (r *Record) Validate() error {
	if r.DefaultProvider == "" {
		return fmt.Errorf("configuration error: default_provider is required")
	}
	if _, ok := r.Providers[r.DefaultProvider]; !ok {
		return fmt.Errorf("configuration error: default_provider %q is not declared in providers", r.DefaultProvider)
	}

	pe := r.Strategies.PlanExecute
	if pe.PlanningProvider != "" {
		if _, ok := r.Providers[pe.PlanningProvider]; !ok {
			return fmt.Errorf("configuration error: strategies.plan_execute.planning_provider %q is not declared in providers", pe.PlanningProvider)
		}
	}
	if pe.ExecutionProvider != "" {
		if _, ok := r.Providers[pe.ExecutionProvider]; !ok {
			return fmt.Errorf("configuration error: strategies.plan_execute.execution_provider %q is not declared in providers", pe.ExecutionProvider)
		}
	}

	for id, p := range r.Providers {
		switch p.Type {
		case "gemini", "openai", "ollama":
		default:
			return fmt.Errorf("configuration error: provider %q has unknown type %q", id, p.Type)
		}
	}

	return nil
}

// ResolvedProvider is a provider's configuration with its API key
// looked up, for wiring into a chatmodel constructor.
type ResolvedProvider struct {
	ID          string
	Type        string
	ModelConfig ModelConfig
	APIKey      string
}

// Resolve looks up id in the providers table and lazily reads its
// api_key_env_var (spec.md §4.7: "environment variables ... are read
// lazily; missing is a failure only if that provider is actually used
// and the provider requires a key"). ollama providers never require a
// key, so a missing or unset api_key_env_var on one is not an error.
func (r *Record) Resolve(id string) (ResolvedProvider, error) {
	p, ok := r.Providers[id]
	if !ok {
		return ResolvedProvider{}, fmt.Errorf("configuration error: provider %q is not declared", id)
	}

	rp := ResolvedProvider{ID: id, Type: p.Type, ModelConfig: p.ModelConfig}
	if p.APIKeyEnvVar == "" {
		if p.Type != "ollama" {
			return ResolvedProvider{}, fmt.Errorf("configuration error: provider %q (type %s) requires api_key_env_var", id, p.Type)
		}
		return rp, nil
	}

	key, present := os.LookupEnv(p.APIKeyEnvVar)
	if !present || key == "" {
		if p.Type == "ollama" {
			return rp, nil
		}
		return ResolvedProvider{}, fmt.Errorf("configuration error: provider %q requires environment variable %s, which is not set", id, p.APIKeyEnvVar)
	}

	rp.APIKey = key
	return rp, nil
}

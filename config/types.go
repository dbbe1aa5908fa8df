// Package config implements C8: loading and validating the
// ConfigurationRecord described in spec.md §3/§4.7 from a project's
// Volition.toml. Grounded on an existing settings.go, which decodes
// its own TOML files the same way via BurntSushi/toml.
package config

// ModelConfig is a provider's model_config table.
type ModelConfig struct {
	ModelName  string                 `toml:"model_name"`
	Endpoint   string                 `toml:"endpoint"`
	Parameters map[string]interface{} `toml:"parameters"`
}

// ProviderConfig is one entry of the top-level providers table.
type ProviderConfig struct {
	Type         string      `toml:"type"`
	APIKeyEnvVar string      `toml:"api_key_env_var"`
	ModelConfig  ModelConfig `toml:"model_config"`
}

// MCPServerConfig is one entry of the top-level mcp_servers table.
type MCPServerConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// PlanExecuteConfig names the two providers PlanExecute uses (spec.md
// §4.4: a planning provider and a possibly-different execution
// provider).
type PlanExecuteConfig struct {
	PlanningProvider  string `toml:"planning_provider"`
	ExecutionProvider string `toml:"execution_provider"`
}

// StrategiesConfig is the strategies table. Only plan_execute carries
// configuration today; other built-in strategies need none.
type StrategiesConfig struct {
	PlanExecute PlanExecuteConfig `toml:"plan_execute"`
}

// Record is the decoded Volition.toml (spec.md §3's ConfigurationRecord).
type Record struct {
	DefaultProvider string                     `toml:"default_provider"`
	SystemPrompt    string                     `toml:"system_prompt"`
	Providers       map[string]ProviderConfig  `toml:"providers"`
	MCPServers      map[string]MCPServerConfig `toml:"mcp_servers"`
	Strategies      StrategiesConfig           `toml:"strategies"`
}

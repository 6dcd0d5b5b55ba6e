// Package config loads the workspace configuration from YAML with
// environment overrides for every credential.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all affinityops configuration.
type Config struct {
	// Affinity API credentials and endpoint
	Affinity AffinityConfig `yaml:"affinity"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Agent loop settings
	Agent AgentConfig `yaml:"agent"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// AffinityConfig configures the two API surfaces. The v1 key enables
// create, note and field-value operations; the v2 key enables directory
// reads and list-field updates. Either may be omitted; the matching
// tools then report a capability gap instead of failing mid-request.
type AffinityConfig struct {
	V1APIKey string `yaml:"v1_api_key"`
	V2APIKey string `yaml:"v2_api_key"`
	BaseURL  string `yaml:"base_url"`
}

// LLMConfig configures the OpenAI-compatible completion endpoint.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// AgentConfig bounds the conversation loop and the paginating lookups.
type AgentConfig struct {
	MaxTurns        int `yaml:"max_turns"`
	MaxListPages    int `yaml:"max_list_pages"`
	MaxCompanyPages int `yaml:"max_company_pages"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Affinity: AffinityConfig{
			BaseURL: "https://api.affinity.co",
		},
		LLM: LLMConfig{
			Model:   "gpt-4o",
			BaseURL: "https://api.openai.com/v1",
			Timeout: "120s",
		},
		Agent: AgentConfig{
			MaxTurns:        10,
			MaxListPages:    25,
			MaxCompanyPages: 10,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return filepath.Join(".affinityops", "config.yaml")
	}
	return filepath.Join(cwd, ".affinityops", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file is not an
// error: defaults plus environment overrides still make a usable config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("AFFINITY_API_KEY"); key != "" {
		c.Affinity.V1APIKey = key
	}
	if key := os.Getenv("AFFINITY_V2_API_KEY"); key != "" {
		c.Affinity.V2APIKey = key
	}
	if url := os.Getenv("AFFINITY_BASE_URL"); url != "" {
		c.Affinity.BaseURL = url
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// HasV1 reports whether the legacy API surface is usable.
func (c *Config) HasV1() bool { return c.Affinity.V1APIKey != "" }

// HasV2 reports whether the current API surface is usable.
func (c *Config) HasV2() bool { return c.Affinity.V2APIKey != "" }

// Validate fails fast on a configuration that cannot start a session.
// At least one Affinity credential and the LLM key are required.
func (c *Config) Validate() error {
	if !c.HasV1() && !c.HasV2() {
		return fmt.Errorf("no Affinity credentials configured (set AFFINITY_API_KEY and/or AFFINITY_V2_API_KEY)")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY)")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM model not configured")
	}
	return nil
}

package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig                 `yaml:"app"`
	Gateways     map[string]GatewayConfig  `yaml:"gateways"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
	Memory       MemoryConfig              `yaml:"memory"`
	Orchestrator OrchestratorConfig        `yaml:"orchestrator"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Workspace string `yaml:"workspace"`
	// UseBrowser enables the headless-browser fallback for research on
	// JS-heavy pages. Requires a local Chrome install.
	UseBrowser bool `yaml:"use_browser"`
}

type GatewayConfig struct {
	Token   string `yaml:"token"`
	Enabled bool   `yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

type MemoryConfig struct {
	Path         string `yaml:"path"`
	HistoryLimit int    `yaml:"history_limit"`
}

// OrchestratorConfig tunes the turn pipeline. Zero values fall back to
// defaults in Normalize; none of these are load-bearing constants.
type OrchestratorConfig struct {
	FanOut      int           `yaml:"fan_out"`
	MaxRetries  int           `yaml:"max_retries"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
	TurnTimeout time.Duration `yaml:"turn_timeout"`
}

// UnmarshalYAML accepts Go duration strings ("60s", "5m") for the timeout
// fields, which yaml.v3 does not decode into time.Duration on its own.
func (o *OrchestratorConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		FanOut      int    `yaml:"fan_out"`
		MaxRetries  int    `yaml:"max_retries"`
		TaskTimeout string `yaml:"task_timeout"`
		TurnTimeout string `yaml:"turn_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	o.FanOut = raw.FanOut
	o.MaxRetries = raw.MaxRetries
	if raw.TaskTimeout != "" {
		d, err := time.ParseDuration(raw.TaskTimeout)
		if err != nil {
			return err
		}
		o.TaskTimeout = d
	}
	if raw.TurnTimeout != "" {
		d, err := time.ParseDuration(raw.TurnTimeout)
		if err != nil {
			return err
		}
		o.TurnTimeout = d
	}
	return nil
}

func LoadConfig(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("failed to decode config file: %v", err)
	}

	cfg.Normalize()
	return &cfg
}

// Normalize fills in defaults for unset fields.
func (c *Config) Normalize() {
	if c.Memory.Path == "" {
		c.Memory.Path = "vidya.db"
	}
	if c.Memory.HistoryLimit <= 0 {
		c.Memory.HistoryLimit = 20
	}
	if c.Orchestrator.FanOut <= 0 {
		c.Orchestrator.FanOut = 4
	}
	if c.Orchestrator.MaxRetries <= 0 {
		c.Orchestrator.MaxRetries = 2
	}
	if c.Orchestrator.TaskTimeout <= 0 {
		c.Orchestrator.TaskTimeout = 60 * time.Second
	}
	if c.Orchestrator.TurnTimeout <= 0 {
		c.Orchestrator.TurnTimeout = 5 * time.Minute
	}
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	tg, ok := c.Gateways["telegram"]
	if ok && tg.Enabled {
		return tg, true
	}
	return GatewayConfig{}, false
}

// GetDiscordConfig returns discord config if enabled
func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	dc, ok := c.Gateways["discord"]
	if ok && dc.Enabled {
		return dc, true
	}
	return GatewayConfig{}, false
}

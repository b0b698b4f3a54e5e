// Package config loads the optional YAML or TOML file of the server.
// Command-line flags and environment variables override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"swap-guard/internal/batch"
	"swap-guard/internal/routing"
)

// Duration wraps time.Duration to support YAML and TOML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// UnmarshalText parses duration strings from TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration of the protection server.
type Config struct {
	Listen        string              `yaml:"listen" toml:"listen"`
	Batch         BatchConfig         `yaml:"batch" toml:"batch"`
	Risk          RiskConfig          `yaml:"risk" toml:"risk"`
	Settlement    SettlementConfig    `yaml:"settlement" toml:"settlement"`
	Simulator     SimulatorConfig     `yaml:"simulator" toml:"simulator"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" toml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
}

// BatchConfig holds seal thresholds and the commit bound.
type BatchConfig struct {
	SizeThreshold int      `yaml:"size_threshold" toml:"size_threshold"`
	TimeThreshold Duration `yaml:"time_threshold" toml:"time_threshold"`
	CommitTimeout Duration `yaml:"commit_timeout" toml:"commit_timeout"`
}

// RiskConfig points at the external risk model.
type RiskConfig struct {
	Endpoint   string   `yaml:"endpoint" toml:"endpoint"`
	APIKey     string   `yaml:"api_key" toml:"api_key"`
	Timeout    Duration `yaml:"timeout" toml:"timeout"`
	MaxRetries int      `yaml:"max_retries" toml:"max_retries"`
}

// SettlementConfig selects the batch committer.
type SettlementConfig struct {
	RPCURL    string `yaml:"rpc_url" toml:"rpc_url"`
	ProgramID string `yaml:"program_id" toml:"program_id"`
	UseStub   bool   `yaml:"use_stub" toml:"use_stub"`
}

// SimulatorConfig tunes the venue quote simulator.
type SimulatorConfig struct {
	Seed     int64                  `yaml:"seed" toml:"seed"`
	Profiles []routing.VenueProfile `yaml:"profiles" toml:"profiles"`
}

// RateLimitConfig bounds per-client request rates on the API.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// ObservabilityConfig toggles request tracing.
type ObservabilityConfig struct {
	Tracing bool `yaml:"tracing" toml:"tracing"`
}

// Default returns the configuration used without a file.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// Load reads configuration from the supplied path. Files ending in .toml
// are decoded as TOML, anything else as YAML. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Config{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("decode config: unknown key %s", undecoded[0])
		}
	} else {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// BatchSettings converts the batch section for the coordinator.
func (c Config) BatchSettings() batch.Config {
	return batch.Config{
		SizeThreshold: c.Batch.SizeThreshold,
		TimeThreshold: c.Batch.TimeThreshold.Duration,
		CommitTimeout: c.Batch.CommitTimeout.Duration,
	}
}

func applyDefaults(cfg *Config) {
	def := batch.DefaultConfig()
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Batch.SizeThreshold == 0 {
		cfg.Batch.SizeThreshold = def.SizeThreshold
	}
	if cfg.Batch.TimeThreshold.Duration == 0 {
		cfg.Batch.TimeThreshold.Duration = def.TimeThreshold
	}
	if cfg.Batch.CommitTimeout.Duration == 0 {
		cfg.Batch.CommitTimeout.Duration = def.CommitTimeout
	}
	if cfg.Risk.Timeout.Duration == 0 {
		cfg.Risk.Timeout.Duration = 3 * time.Second
	}
	if cfg.Risk.MaxRetries == 0 {
		cfg.Risk.MaxRetries = 2
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 50
	}
}

// Validate checks ranges the components would otherwise reject at startup.
func (c Config) Validate() error {
	if err := c.BatchSettings().Validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	if c.Risk.Timeout.Duration < 0 {
		return fmt.Errorf("risk: timeout must be positive")
	}
	if c.Risk.MaxRetries < 0 {
		return fmt.Errorf("risk: max_retries must not be negative")
	}
	if len(c.Simulator.Profiles) > routing.MaxRoutes {
		return fmt.Errorf("simulator: %d profiles exceeds maximum of %d", len(c.Simulator.Profiles), routing.MaxRoutes)
	}
	seen := make(map[string]struct{}, len(c.Simulator.Profiles))
	for _, p := range c.Simulator.Profiles {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("simulator: %w", err)
		}
		if _, dup := seen[string(p.Venue)]; dup {
			return fmt.Errorf("simulator: duplicate venue %s", p.Venue)
		}
		seen[string(p.Venue)] = struct{}{}
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	return nil
}

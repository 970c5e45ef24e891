// Package config loads and validates miner configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Miner    MinerConfig    `mapstructure:"miner"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Registry RegistryConfig `mapstructure:"registry"`
	Master   MasterConfig   `mapstructure:"master"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Gate     GateConfig     `mapstructure:"gate"`
	Status   StatusConfig   `mapstructure:"status"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// MinerConfig governs the pipeline driver loop.
type MinerConfig struct {
	NodeID           string `mapstructure:"node_id"`
	UserAgent        string `mapstructure:"user_agent"`
	SourcesFile      string `mapstructure:"sources_file"`
	PassIntervalSec  int    `mapstructure:"pass_interval_seconds"`
	ArtifactCooldown int    `mapstructure:"artifact_cooldown_seconds"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	PerHostQPS     float64 `mapstructure:"per_host_qps"`
}

// RegistryConfig locates the shared registry file.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// MasterConfig points at the primary ingest service.
type MasterConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// MirrorConfig points at the optional secondary store. An empty base URL
// disables mirroring.
type MirrorConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// GateConfig controls the optional relevance gate.
type GateConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Endpoint       string  `mapstructure:"endpoint"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// StatusConfig controls the local status/metrics HTTP server.
type StatusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MINER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("miner.node_id", defaultNodeID())
	v.SetDefault("miner.user_agent", "artifact-miner/1.0")
	v.SetDefault("miner.sources_file", "")
	v.SetDefault("miner.pass_interval_seconds", 10)
	v.SetDefault("miner.artifact_cooldown_seconds", 2)
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.per_host_qps", 1.0)
	v.SetDefault("registry.path", "data/registry.json")
	v.SetDefault("master.base_url", "http://localhost:8000")
	v.SetDefault("master.token", "")
	v.SetDefault("mirror.base_url", "")
	v.SetDefault("mirror.token", "")
	v.SetDefault("gate.enabled", false)
	v.SetDefault("gate.endpoint", "http://localhost:11434/api/generate")
	v.SetDefault("gate.model", "llama3")
	v.SetDefault("gate.temperature", 0.2)
	v.SetDefault("gate.timeout_seconds", 60)
	v.SetDefault("status.enabled", true)
	v.SetDefault("status.port", 8090)
	v.SetDefault("logging.development", true)
}

func defaultNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "node-local"
	}
	return "node-" + host
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Miner.NodeID == "" {
		return fmt.Errorf("miner.node_id must be set")
	}
	if c.Miner.UserAgent == "" {
		return fmt.Errorf("miner.user_agent must be set")
	}
	if c.Miner.PassIntervalSec <= 0 {
		return fmt.Errorf("miner.pass_interval_seconds must be > 0")
	}
	if c.Miner.ArtifactCooldown < 0 {
		return fmt.Errorf("miner.artifact_cooldown_seconds must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.PerHostQPS <= 0 {
		return fmt.Errorf("http.per_host_qps must be > 0")
	}
	if c.Registry.Path == "" {
		return fmt.Errorf("registry.path must be set")
	}
	if c.Master.BaseURL == "" {
		return fmt.Errorf("master.base_url must be set")
	}
	if c.Gate.Enabled && c.Gate.Endpoint == "" {
		return fmt.Errorf("gate.endpoint must be set when gate is enabled")
	}
	if c.Gate.Enabled && c.Gate.Model == "" {
		return fmt.Errorf("gate.model must be set when gate is enabled")
	}
	if c.Status.Enabled && c.Status.Port <= 0 {
		return fmt.Errorf("status.port must be > 0 when status server is enabled")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// PassInterval is the sleep between full pipeline passes.
func (c Config) PassInterval() time.Duration {
	return time.Duration(c.Miner.PassIntervalSec) * time.Second
}

// ArtifactCooldown is the sleep between artifacts within one source.
func (c Config) ArtifactCooldown() time.Duration {
	return time.Duration(c.Miner.ArtifactCooldown) * time.Second
}

// GateTimeout bounds a single classifier call.
func (c Config) GateTimeout() time.Duration {
	return time.Duration(c.Gate.TimeoutSeconds) * time.Second
}

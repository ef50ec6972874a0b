package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/stayswap/swapsync/pkg/reconciler"
	"github.com/stayswap/swapsync/pkg/realtime"
	"github.com/stayswap/swapsync/pkg/types"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds every runtime setting for a swapsync session
type Config struct {
	// API is the remote REST endpoint configuration
	API APIConfig `yaml:"api"`

	// Realtime is the WebSocket event stream configuration
	Realtime RealtimeConfig `yaml:"realtime"`

	// Operations tunes the respond/retry machinery
	Operations OperationsConfig `yaml:"operations"`

	// DataDir holds the session journal. Empty disables persistence.
	DataDir string `yaml:"data_dir"`

	// MetricsAddr serves prometheus metrics when set (e.g. ":9090")
	MetricsAddr string `yaml:"metrics_addr"`

	Log LogConfig `yaml:"log"`
}

type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	// TokenFile points at a file holding the bearer token. The token
	// itself never lives in the config file.
	TokenFile string   `yaml:"token_file"`
	Timeout   Duration `yaml:"timeout"`
}

type RealtimeConfig struct {
	URL              string   `yaml:"url"`
	MaxRetries       int      `yaml:"max_retries"`
	BaseDelay        Duration `yaml:"base_delay"`
	ThrottleDebounce Duration `yaml:"throttle_debounce"`
}

type OperationsConfig struct {
	Timeout       Duration `yaml:"timeout"`
	MaxRetries    int      `yaml:"max_retries"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://api.stayswap.io",
			Timeout: Duration(15 * time.Second),
		},
		Realtime: RealtimeConfig{
			URL:              "wss://api.stayswap.io/events",
			MaxRetries:       realtime.DefaultMaxRetries,
			BaseDelay:        Duration(realtime.DefaultBaseDelay),
			ThrottleDebounce: Duration(time.Second),
		},
		Operations: OperationsConfig{
			Timeout:       Duration(types.DefaultOperationTimeout),
			MaxRetries:    types.DefaultMaxRetries,
			SweepInterval: Duration(reconciler.DefaultSweepInterval),
		},
		Log: LogConfig{Level: "info", JSON: false},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if _, err := url.Parse(c.API.BaseURL); err != nil || c.API.BaseURL == "" {
		return fmt.Errorf("invalid api.base_url %q", c.API.BaseURL)
	}
	if !strings.HasPrefix(c.Realtime.URL, "ws://") && !strings.HasPrefix(c.Realtime.URL, "wss://") {
		return fmt.Errorf("realtime.url must be a ws:// or wss:// URL, got %q", c.Realtime.URL)
	}
	if c.Operations.Timeout.Std() > types.MaxOperationTimeout {
		return fmt.Errorf("operations.timeout %s exceeds the %s cap", c.Operations.Timeout.Std(), types.MaxOperationTimeout)
	}
	if c.Realtime.MaxRetries < 0 || c.Operations.MaxRetries < 0 {
		return fmt.Errorf("retry limits must not be negative")
	}
	return nil
}

// Token reads the bearer token from the configured token file. Returns an
// empty token when no file is configured.
func (c *Config) Token() (string, error) {
	if c.API.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.API.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

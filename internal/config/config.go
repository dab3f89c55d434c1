package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in executor.backend.
const (
	BackendREST  = "rest"
	BackendAdmin = "admin"
)

// Config represents the daemon configuration.
type Config struct {
	Bridge   BridgeConfig    `yaml:"bridge"`
	Executor *ExecutorConfig `yaml:"executor,omitempty"`
	Remote   *RemoteConfig   `yaml:"remote,omitempty"`
	Store    *StoreConfig    `yaml:"store,omitempty"`
	Metrics  *MetricsConfig  `yaml:"metrics,omitempty"`
}

// BridgeConfig tunes the request correlation layer.
type BridgeConfig struct {
	// Timeout bounds how long an operation waits for a response.
	// Zero means wait until the caller cancels.
	Timeout time.Duration `yaml:"-"`
}

// UnmarshalYAML parses the timeout from a Go duration string ("30s").
func (b *BridgeConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Timeout string `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Timeout == "" {
		return nil
	}
	d, err := time.ParseDuration(raw.Timeout)
	if err != nil {
		return fmt.Errorf("bridge.timeout: %w", err)
	}
	b.Timeout = d
	return nil
}

// ExecutorConfig selects and configures the in-process executor.
type ExecutorConfig struct {
	Backend     string `yaml:"backend"`               // "rest" | "admin"
	APIKey      string `yaml:"api_key,omitempty"`     // rest: the project's Web API key
	ProjectID   string `yaml:"project_id,omitempty"`  // admin: GCP project ID
	Credentials string `yaml:"credentials,omitempty"` // admin: service account JSON path
	TenantID    string `yaml:"tenant_id,omitempty"`   // admin: optional Identity Platform tenant
}

// RemoteConfig connects the local bus to a remote one.
type RemoteConfig struct {
	Endpoint string   `yaml:"endpoint"` // WebSocket URL
	Forward  []string `yaml:"forward"`  // local topics sent to the remote side
	Accept   []string `yaml:"accept"`   // remote topics republished locally
}

// StoreConfig enables the Firestore audit trail.
type StoreConfig struct {
	ProjectID   string `yaml:"project_id"`
	Database    string `yaml:"database,omitempty"`
	Credentials string `yaml:"credentials,omitempty"`
}

// MetricsConfig exposes Prometheus metrics.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // listen address, e.g. ":9090"
}

// Load reads configuration from the specified YAML file.
// Environment variables override file values:
//   - KAKEHASHI_EXECUTOR_API_KEY overrides executor.api_key
//   - KAKEHASHI_REMOTE_ENDPOINT overrides remote.endpoint
//   - KAKEHASHI_METRICS_ADDR overrides metrics.addr
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if key := os.Getenv("KAKEHASHI_EXECUTOR_API_KEY"); key != "" && cfg.Executor != nil {
		cfg.Executor.APIKey = key
	}
	if endpoint := os.Getenv("KAKEHASHI_REMOTE_ENDPOINT"); endpoint != "" && cfg.Remote != nil {
		cfg.Remote.Endpoint = endpoint
	}
	if addr := os.Getenv("KAKEHASHI_METRICS_ADDR"); addr != "" {
		if cfg.Metrics == nil {
			cfg.Metrics = &MetricsConfig{}
		}
		cfg.Metrics.Addr = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Executor == nil && c.Remote == nil {
		return fmt.Errorf("either executor or remote must be configured, otherwise no one answers requests")
	}

	if c.Bridge.Timeout < 0 {
		return fmt.Errorf("bridge.timeout must not be negative")
	}

	if c.Executor != nil {
		switch c.Executor.Backend {
		case BackendREST:
			if c.Executor.APIKey == "" {
				return fmt.Errorf("executor.api_key is required for the rest backend")
			}
		case BackendAdmin:
			if c.Executor.ProjectID == "" {
				return fmt.Errorf("executor.project_id is required for the admin backend")
			}
		case "":
			return fmt.Errorf("executor.backend is required")
		default:
			return fmt.Errorf("unsupported executor backend: %q (supported: rest, admin)", c.Executor.Backend)
		}
	}

	if c.Remote != nil {
		if c.Remote.Endpoint == "" {
			return fmt.Errorf("remote.endpoint is required")
		}
		if len(c.Remote.Forward) == 0 && len(c.Remote.Accept) == 0 {
			return fmt.Errorf("remote relay needs at least one forward or accept topic")
		}
		accepted := make(map[string]bool, len(c.Remote.Accept))
		for _, name := range c.Remote.Accept {
			accepted[name] = true
		}
		for _, name := range c.Remote.Forward {
			if accepted[name] {
				return fmt.Errorf("remote topic %q cannot be both forwarded and accepted", name)
			}
		}
	}

	if c.Store != nil && c.Store.ProjectID == "" {
		return fmt.Errorf("store.project_id is required")
	}

	if c.Metrics != nil && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics is configured")
	}

	return nil
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, `bridge:
  timeout: 30s

executor:
  backend: rest
  api_key: test-api-key

store:
  project_id: my-project
  database: bridge

metrics:
  addr: ":9090"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Bridge.Timeout != 30*time.Second {
		t.Errorf("Bridge.Timeout = %v, want 30s", cfg.Bridge.Timeout)
	}
	if cfg.Executor == nil || cfg.Executor.Backend != BackendREST || cfg.Executor.APIKey != "test-api-key" {
		t.Errorf("unexpected executor config: %+v", cfg.Executor)
	}
	if cfg.Store == nil || cfg.Store.ProjectID != "my-project" || cfg.Store.Database != "bridge" {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Metrics == nil || cfg.Metrics.Addr != ":9090" {
		t.Errorf("unexpected metrics config: %+v", cfg.Metrics)
	}
}

func TestLoad_DefaultsToNoTimeout(t *testing.T) {
	path := writeConfig(t, `executor:
  backend: rest
  api_key: test-api-key
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.Bridge.Timeout != 0 {
		t.Errorf("Bridge.Timeout = %v, want 0 (wait forever)", cfg.Bridge.Timeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KAKEHASHI_EXECUTOR_API_KEY", "env-key")
	t.Setenv("KAKEHASHI_METRICS_ADDR", ":9999")

	path := writeConfig(t, `executor:
  backend: rest
  api_key: file-key
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.Executor.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env-key", cfg.Executor.APIKey)
	}
	if cfg.Metrics == nil || cfg.Metrics.Addr != ":9999" {
		t.Errorf("Metrics = %+v, want addr :9999", cfg.Metrics)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "executor: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_BadTimeout(t *testing.T) {
	path := writeConfig(t, `bridge:
  timeout: soon
executor:
  backend: rest
  api_key: k
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "bridge.timeout") {
		t.Fatalf("expected bridge.timeout error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "no answerer",
			cfg:     Config{},
			wantErr: "either executor or remote",
		},
		{
			name:    "rest without api key",
			cfg:     Config{Executor: &ExecutorConfig{Backend: BackendREST}},
			wantErr: "api_key",
		},
		{
			name:    "admin without project",
			cfg:     Config{Executor: &ExecutorConfig{Backend: BackendAdmin}},
			wantErr: "project_id",
		},
		{
			name:    "missing backend",
			cfg:     Config{Executor: &ExecutorConfig{}},
			wantErr: "executor.backend is required",
		},
		{
			name:    "unknown backend",
			cfg:     Config{Executor: &ExecutorConfig{Backend: "grpc"}},
			wantErr: "unsupported executor backend",
		},
		{
			name:    "remote without endpoint",
			cfg:     Config{Remote: &RemoteConfig{Forward: []string{"AuthRequest"}}},
			wantErr: "remote.endpoint",
		},
		{
			name:    "remote without topics",
			cfg:     Config{Remote: &RemoteConfig{Endpoint: "wss://example.com/ws"}},
			wantErr: "at least one forward or accept",
		},
		{
			name: "overlapping relay topics",
			cfg: Config{Remote: &RemoteConfig{
				Endpoint: "wss://example.com/ws",
				Forward:  []string{"AuthRequest"},
				Accept:   []string{"AuthRequest"},
			}},
			wantErr: "both forwarded and accepted",
		},
		{
			name: "store without project",
			cfg: Config{
				Executor: &ExecutorConfig{Backend: BackendREST, APIKey: "k"},
				Store:    &StoreConfig{},
			},
			wantErr: "store.project_id",
		},
		{
			name: "metrics without addr",
			cfg: Config{
				Executor: &ExecutorConfig{Backend: BackendREST, APIKey: "k"},
				Metrics:  &MetricsConfig{},
			},
			wantErr: "metrics.addr",
		},
		{
			name: "valid rest",
			cfg:  Config{Executor: &ExecutorConfig{Backend: BackendREST, APIKey: "k"}},
		},
		{
			name: "valid admin with tenant",
			cfg:  Config{Executor: &ExecutorConfig{Backend: BackendAdmin, ProjectID: "p", TenantID: "t"}},
		},
		{
			name: "valid remote",
			cfg: Config{Remote: &RemoteConfig{
				Endpoint: "wss://example.com/ws",
				Forward:  []string{"AuthRequest"},
				Accept:   []string{"AuthResponse", "AuthState"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

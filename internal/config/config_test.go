package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTemp(t, `
app_id: shop
downstream_base_url: http://origin:8080
storage_backend: local
local_path: /var/cache/cachebolt
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ProxyPort != 3000 {
		t.Errorf("ProxyPort = %d, want 3000", cfg.ProxyPort)
	}
	if cfg.AdminPort != 3001 {
		t.Errorf("AdminPort = %d, want 3001", cfg.AdminPort)
	}
	if cfg.Cache.MemoryThreshold != 85 {
		t.Errorf("Cache.MemoryThreshold = %d, want 85", cfg.Cache.MemoryThreshold)
	}
	if cfg.DownstreamBaseURL != "http://origin:8080" {
		t.Errorf("DownstreamBaseURL = %q, unexpected trailing slash handling", cfg.DownstreamBaseURL)
	}
}

func TestLoad_MissingAppID(t *testing.T) {
	path := writeTemp(t, `
downstream_base_url: http://origin:8080
storage_backend: local
local_path: /tmp/cachebolt
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for missing app_id, got nil")
	}
}

func TestLoad_BackendRequiresMatchingField(t *testing.T) {
	tests := []struct {
		name    string
		backend string
	}{
		{"s3 without bucket", "s3"},
		{"gcs without bucket", "gcs"},
		{"azure without container", "azure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, `
app_id: shop
downstream_base_url: http://origin
storage_backend: `+tt.backend+`
`)
			if _, err := Load(path); err == nil {
				t.Fatalf("Load() expected error for backend %q with no bucket/container configured", tt.backend)
			}
		})
	}
}

func TestLoad_CompilesPathRules(t *testing.T) {
	path := writeTemp(t, `
app_id: shop
downstream_base_url: http://origin
storage_backend: local
local_path: /tmp/cachebolt
latency_failover:
  default_max_latency_ms: 500
  path_rules:
    - pattern: "^/slow/"
      max_latency_ms: 2000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.LatencyFailover.PathRules) != 1 {
		t.Fatalf("got %d path rules, want 1", len(cfg.LatencyFailover.PathRules))
	}
	re := cfg.LatencyFailover.PathRules[0].Compiled()
	if re == nil || !re.MatchString("/slow/thing") {
		t.Errorf("compiled pattern did not match expected path")
	}
}

func TestLoad_InvalidRegex(t *testing.T) {
	path := writeTemp(t, `
app_id: shop
downstream_base_url: http://origin
storage_backend: local
local_path: /tmp/cachebolt
latency_failover:
  path_rules:
    - pattern: "[invalid"
      max_latency_ms: 100
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for invalid regex pattern")
	}
}

func TestIgnoredHeaderSet(t *testing.T) {
	cfg := Config{IgnoredHeaders: []string{"X-Request-Id", "Date"}}
	set := cfg.IgnoredHeaderSet()

	if _, ok := set["x-request-id"]; !ok {
		t.Error("expected lowercased x-request-id in set")
	}
	if _, ok := set["date"]; !ok {
		t.Error("expected lowercased date in set")
	}
}

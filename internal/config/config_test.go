package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Storage.Backend != store.BackendMemory {
		t.Errorf("default storage backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Admission.StoreTimeout != 50*time.Millisecond {
		t.Errorf("default store timeout = %s, want 50ms", cfg.Admission.StoreTimeout)
	}
	if len(cfg.Limits) != len(limits.DefaultClasses()) {
		t.Errorf("default limits = %d classes, want %d", len(cfg.Limits), len(limits.DefaultClasses()))
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid, got %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"min requests", func(c *Config) { c.Admission.MinRequestsPerWindow = 0 }},
		{"min burst", func(c *Config) { c.Admission.MinBurst = -1 }},
		{"max multiplier", func(c *Config) { c.Admission.MaxMultiplier = 0 }},
		{"store timeout", func(c *Config) { c.Admission.StoreTimeout = 0 }},
		{"suspicious threshold", func(c *Config) { c.Admission.SuspiciousThreshold = 2 }},
		{"load limits", func(c *Config) { c.Admission.LoadHardGoroutines = 1 }},
		{"backend", func(c *Config) { c.Storage.Backend = "crdt" }},
		{"redis cluster nodes", func(c *Config) {
			c.Storage.Backend = store.BackendRedis
			c.Storage.Redis.Cluster = true
		}},
		{"gossip interval", func(c *Config) {
			c.Coordinator.Enabled = true
			c.Coordinator.GossipInterval = 0
		}},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("%s should be invalid", tt.name)
			}
		})
	}
}

func TestValidate_BadLimitClass(t *testing.T) {
	cfg := Default()
	cfg.Limits = append(cfg.Limits, limits.LimitClass{Name: "broken", Capacity: 1, Window: time.Second, Burst: 5})

	err := cfg.Validate()
	if !errors.Is(err, limits.ErrInvalidLimitClass) {
		t.Errorf("Validate() error = %v, want ErrInvalidLimitClass", err)
	}
}

func TestValidate_EndpointToUnknownClass(t *testing.T) {
	cfg := Default()
	cfg.Endpoints["GET /nowhere"] = "missing"

	err := cfg.Validate()
	if !errors.Is(err, limits.ErrUnknownLimitClass) {
		t.Errorf("Validate() error = %v, want ErrUnknownLimitClass", err)
	}
}

func TestParse_MergesOverDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  addr: ":9090"
  trusted_proxies: ["10.0.0.0/8"]
limits:
  - name: login
    capacity: 3
    window: 10m
    burst: 1
    algorithm: token_bucket
  - name: upload
    capacity: 4
    window: 1h
endpoints:
  "POST /upload": upload
admission:
  min_burst: 0
  store_timeout: 20ms
  suspicious_threshold: 0
storage:
  backend: redis
  redis:
    host: cache
    db: 2
coordinator:
  enabled: true
  peers: ["10.0.0.2:7946"]
logging:
  format: json
`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want :9090", cfg.Server.Addr)
	}
	if len(cfg.Server.TrustedProxies) != 1 || cfg.Server.TrustedProxies[0] != "10.0.0.0/8" {
		t.Errorf("trusted_proxies = %v, want [10.0.0.0/8]", cfg.Server.TrustedProxies)
	}
	if cfg.Admission.StoreTimeout != 20*time.Millisecond {
		t.Errorf("store_timeout = %s, want 20ms", cfg.Admission.StoreTimeout)
	}
	if cfg.Admission.SuspiciousThreshold != 0 {
		t.Errorf("suspicious_threshold = %g, want explicit 0", cfg.Admission.SuspiciousThreshold)
	}
	if cfg.Admission.ExpiryBuffer != 5*time.Second {
		t.Errorf("expiry_buffer = %s, want default 5s", cfg.Admission.ExpiryBuffer)
	}
	if cfg.Storage.Backend != store.BackendRedis || cfg.Storage.Redis.Host != "cache" || cfg.Storage.Redis.DB != 2 {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Storage.Redis.Port != 6379 {
		t.Errorf("redis port = %d, want default 6379", cfg.Storage.Redis.Port)
	}
	if !cfg.Coordinator.Enabled || len(cfg.Coordinator.Peers) != 1 {
		t.Errorf("coordinator = %+v", cfg.Coordinator)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "info" {
		t.Errorf("logging = %+v", cfg.Logging)
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatal(err)
	}
	login, err := reg.Lookup(limits.Login)
	if err != nil {
		t.Fatal(err)
	}
	if login.Capacity != 3 || login.Window != 10*time.Minute {
		t.Errorf("login override = %+v", login)
	}
	upload, err := reg.Lookup("upload")
	if err != nil {
		t.Fatal(err)
	}
	if upload.Algorithm != limits.AlgorithmSlidingWindow {
		t.Errorf("upload algorithm = %q, want sliding_window default", upload.Algorithm)
	}
	if got := upload.RefillRate; got != 4.0/3600 {
		t.Errorf("upload refill rate = %g, want capacity/window", got)
	}
	if class, ok := reg.EndpointClass("POST /upload"); !ok || class != "upload" {
		t.Errorf("endpoint mapping = %q, %v", class, ok)
	}
	if _, ok := reg.EndpointClass("GET /search"); !ok {
		t.Error("default endpoint mappings should be kept")
	}
}

func TestParse_BadDuration(t *testing.T) {
	_, err := Parse([]byte("admission:\n  store_timeout: soon\n"))
	if err == nil {
		t.Error("expected error for bad duration")
	}

	_, err = Parse([]byte("limits:\n  - name: x\n    capacity: 1\n    window: never\n"))
	if err == nil {
		t.Error("expected error for bad limit window")
	}
}

func TestParse_UnnamedLimit(t *testing.T) {
	_, err := Parse([]byte("limits:\n  - capacity: 1\n    window: 1s\n"))
	if !errors.Is(err, limits.ErrInvalidLimitClass) {
		t.Errorf("error = %v, want ErrInvalidLimitClass", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unterminated"))
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteExample_LoadsAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatekeeper.yaml")
	if err := WriteExample(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("example should load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("example should validate: %v", err)
	}
}

func TestSortedEndpoints(t *testing.T) {
	cfg := Default()
	cfg.Endpoints = map[string]string{"b": limits.Default, "a": limits.Default}

	got := cfg.SortedEndpoints()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("SortedEndpoints() = %v", got)
	}
}

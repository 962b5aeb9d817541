// Package config loads the gatekeeper YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

// Config is the top-level configuration. It is loaded once at start-up.
type Config struct {
	Server      ServerConfig
	Limits      []limits.LimitClass
	Endpoints   map[string]string
	Admission   AdmissionConfig
	Storage     StorageConfig
	Coordinator CoordinatorConfig
	Recorder    RecorderConfig
	Logging     LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string
	// TrustedProxies are IPs or CIDR ranges whose X-Forwarded-For header
	// names the client. Empty means the remote address is the client.
	TrustedProxies []string
}

// AdmissionConfig holds the controller and adaptive scaling tunables.
type AdmissionConfig struct {
	MinRequestsPerWindow int
	MinBurst             int
	MaxMultiplier        float64
	StoreTimeout         time.Duration
	ExpiryBuffer         time.Duration
	// SuspiciousThreshold is the threat factor below which the suspicious
	// class is applied.
	SuspiciousThreshold float64

	ThreatLookback  time.Duration
	ThreatTolerance float64
	ThreatFloor     float64

	// Goroutine counts where the runtime load factor starts rising and
	// where it saturates.
	LoadSoftGoroutines int
	LoadHardGoroutines int
}

// StorageConfig selects and configures the counter store.
type StorageConfig struct {
	Backend string
	Memory  store.MemoryConfig
	Redis   store.RedisConfig
}

// CoordinatorConfig configures cluster-wide coordination.
type CoordinatorConfig struct {
	Enabled        bool
	NodeID         string
	BindAddr       string
	Peers          []string
	GossipInterval time.Duration
}

// RecorderConfig configures outcome recording.
type RecorderConfig struct {
	Retention             time.Duration
	MaxEvents             int
	MaxTrackedIdentifiers int
	// StreamPath, when set, receives every decision event as NDJSON.
	StreamPath string
}

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level  string
	Format string // text or json
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Limits:    limits.DefaultClasses(),
		Endpoints: limits.DefaultEndpoints(),
		Admission: AdmissionConfig{
			MinRequestsPerWindow: 1,
			MinBurst:             0,
			MaxMultiplier:        10,
			StoreTimeout:         50 * time.Millisecond,
			ExpiryBuffer:         5 * time.Second,
			SuspiciousThreshold:  0.5,
			ThreatLookback:       15 * time.Minute,
			ThreatTolerance:      10,
			ThreatFloor:          0.1,
			LoadSoftGoroutines:   10000,
			LoadHardGoroutines:   50000,
		},
		Storage: StorageConfig{
			Backend: store.BackendMemory,
			Memory: store.MemoryConfig{
				CleanupInterval: time.Minute,
			},
			Redis: store.RedisConfig{
				Host:        "localhost",
				Port:        6379,
				PoolSize:    20,
				MaxRetries:  3,
				DialTimeout: 5 * time.Second,
				KeyPrefix:   "gk:",
			},
		},
		Coordinator: CoordinatorConfig{
			BindAddr:       ":7946",
			GossipInterval: time.Second,
		},
		Recorder: RecorderConfig{
			Retention:             24 * time.Hour,
			MaxEvents:             10000,
			MaxTrackedIdentifiers: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Registry builds the limit registry described by the config.
func (c Config) Registry() (*limits.Registry, error) {
	return limits.NewRegistry(c.Limits, c.Endpoints)
}

// Validate checks that the config is valid.
func (c Config) Validate() error {
	if _, err := c.Registry(); err != nil {
		return err
	}

	a := c.Admission
	if a.MinRequestsPerWindow < 1 {
		return fmt.Errorf("admission.min_requests_per_window must be >= 1, got %d", a.MinRequestsPerWindow)
	}
	if a.MinBurst < 0 {
		return fmt.Errorf("admission.min_burst must not be negative, got %d", a.MinBurst)
	}
	if a.MaxMultiplier <= 0 {
		return fmt.Errorf("admission.max_multiplier must be positive, got %g", a.MaxMultiplier)
	}
	if a.StoreTimeout <= 0 {
		return fmt.Errorf("admission.store_timeout must be positive, got %s", a.StoreTimeout)
	}
	if a.ExpiryBuffer < 0 {
		return fmt.Errorf("admission.expiry_buffer must not be negative, got %s", a.ExpiryBuffer)
	}
	if a.SuspiciousThreshold < 0 || a.SuspiciousThreshold > 1 {
		return fmt.Errorf("admission.suspicious_threshold must be within [0, 1], got %g", a.SuspiciousThreshold)
	}
	if a.LoadHardGoroutines < a.LoadSoftGoroutines {
		return fmt.Errorf("admission.load_hard_goroutines (%d) must be >= load_soft_goroutines (%d)", a.LoadHardGoroutines, a.LoadSoftGoroutines)
	}

	switch c.Storage.Backend {
	case store.BackendMemory:
		if c.Storage.Memory.CleanupInterval < 0 {
			return fmt.Errorf("storage.memory.cleanup_interval must not be negative, got %s", c.Storage.Memory.CleanupInterval)
		}
	case store.BackendRedis:
		if c.Storage.Redis.Cluster && len(c.Storage.Redis.ClusterNodes) == 0 {
			return errors.New("storage.redis.cluster_nodes is required in cluster mode")
		}
		if !c.Storage.Redis.Cluster && c.Storage.Redis.Host == "" {
			return errors.New("storage.redis.host is required")
		}
	default:
		return fmt.Errorf("unknown storage backend %q, must be one of: memory, redis", c.Storage.Backend)
	}

	if c.Coordinator.Enabled && c.Coordinator.GossipInterval <= 0 {
		return fmt.Errorf("coordinator.gossip_interval must be positive, got %s", c.Coordinator.GossipInterval)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logging format %q, must be text or json", c.Logging.Format)
	}
	return nil
}

// LoadFile reads a YAML config file and merges it with defaults.
// Fields not specified in the file retain their default values. Limit
// classes and endpoints are merged by name.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse merges YAML data over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	if err := raw.apply(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SortedEndpoints returns endpoint patterns in a stable order.
func (c Config) SortedEndpoints() []string {
	out := make([]string, 0, len(c.Endpoints))
	for e := range c.Endpoints {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

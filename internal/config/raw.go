package config

import (
	"fmt"
	"time"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
)

// rawConfig is the YAML representation with string durations. Pointer
// fields distinguish "unset" from a meaningful zero.
type rawConfig struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"server"`
	Limits    []rawLimitClass   `yaml:"limits"`
	Endpoints map[string]string `yaml:"endpoints"`
	Admission struct {
		MinRequestsPerWindow int      `yaml:"min_requests_per_window"`
		MinBurst             *int     `yaml:"min_burst"`
		MaxMultiplier        float64  `yaml:"max_multiplier"`
		StoreTimeout         string   `yaml:"store_timeout"`
		ExpiryBuffer         string   `yaml:"expiry_buffer"`
		SuspiciousThreshold  *float64 `yaml:"suspicious_threshold"`
		ThreatLookback       string   `yaml:"threat_lookback"`
		ThreatTolerance      float64  `yaml:"threat_tolerance"`
		ThreatFloor          float64  `yaml:"threat_floor"`
		LoadSoftGoroutines   int      `yaml:"load_soft_goroutines"`
		LoadHardGoroutines   int      `yaml:"load_hard_goroutines"`
	} `yaml:"admission"`
	Storage struct {
		Backend string `yaml:"backend"`
		Memory  struct {
			CleanupInterval string `yaml:"cleanup_interval"`
		} `yaml:"memory"`
		Redis struct {
			Host         string   `yaml:"host"`
			Port         int      `yaml:"port"`
			Password     string   `yaml:"password"`
			DB           *int     `yaml:"db"`
			Cluster      *bool    `yaml:"cluster"`
			ClusterNodes []string `yaml:"cluster_nodes"`
			PoolSize     int      `yaml:"pool_size"`
			MaxRetries   int      `yaml:"max_retries"`
			DialTimeout  string   `yaml:"dial_timeout"`
			KeyPrefix    string   `yaml:"key_prefix"`
		} `yaml:"redis"`
	} `yaml:"storage"`
	Coordinator struct {
		Enabled        *bool    `yaml:"enabled"`
		NodeID         string   `yaml:"node_id"`
		BindAddr       string   `yaml:"bind_addr"`
		Peers          []string `yaml:"peers"`
		GossipInterval string   `yaml:"gossip_interval"`
	} `yaml:"coordinator"`
	Recorder struct {
		Retention             string `yaml:"retention"`
		MaxEvents             int    `yaml:"max_events"`
		MaxTrackedIdentifiers int    `yaml:"max_tracked_identifiers"`
		StreamPath            string `yaml:"stream_path"`
	} `yaml:"recorder"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

type rawLimitClass struct {
	Name       string  `yaml:"name"`
	Capacity   int     `yaml:"capacity"`
	Window     string  `yaml:"window"`
	Burst      int     `yaml:"burst"`
	RefillRate float64 `yaml:"refill_rate"`
	Algorithm  string  `yaml:"algorithm"`
}

func (raw *rawConfig) apply(cfg *Config) error {
	if raw.Server.Addr != "" {
		cfg.Server.Addr = raw.Server.Addr
	}
	if len(raw.Server.TrustedProxies) > 0 {
		cfg.Server.TrustedProxies = raw.Server.TrustedProxies
	}

	if err := raw.applyLimits(cfg); err != nil {
		return err
	}
	for endpoint, class := range raw.Endpoints {
		cfg.Endpoints[endpoint] = class
	}

	a := &cfg.Admission
	if raw.Admission.MinRequestsPerWindow > 0 {
		a.MinRequestsPerWindow = raw.Admission.MinRequestsPerWindow
	}
	if raw.Admission.MinBurst != nil {
		a.MinBurst = *raw.Admission.MinBurst
	}
	if raw.Admission.MaxMultiplier > 0 {
		a.MaxMultiplier = raw.Admission.MaxMultiplier
	}
	if raw.Admission.SuspiciousThreshold != nil {
		a.SuspiciousThreshold = *raw.Admission.SuspiciousThreshold
	}
	if raw.Admission.ThreatTolerance > 0 {
		a.ThreatTolerance = raw.Admission.ThreatTolerance
	}
	if raw.Admission.ThreatFloor > 0 {
		a.ThreatFloor = raw.Admission.ThreatFloor
	}
	if raw.Admission.LoadSoftGoroutines > 0 {
		a.LoadSoftGoroutines = raw.Admission.LoadSoftGoroutines
	}
	if raw.Admission.LoadHardGoroutines > 0 {
		a.LoadHardGoroutines = raw.Admission.LoadHardGoroutines
	}
	if err := parseDuration("admission.store_timeout", raw.Admission.StoreTimeout, &a.StoreTimeout); err != nil {
		return err
	}
	if err := parseDuration("admission.expiry_buffer", raw.Admission.ExpiryBuffer, &a.ExpiryBuffer); err != nil {
		return err
	}
	if err := parseDuration("admission.threat_lookback", raw.Admission.ThreatLookback, &a.ThreatLookback); err != nil {
		return err
	}

	s := &cfg.Storage
	if raw.Storage.Backend != "" {
		s.Backend = raw.Storage.Backend
	}
	if err := parseDuration("storage.memory.cleanup_interval", raw.Storage.Memory.CleanupInterval, &s.Memory.CleanupInterval); err != nil {
		return err
	}
	r := raw.Storage.Redis
	if r.Host != "" {
		s.Redis.Host = r.Host
	}
	if r.Port > 0 {
		s.Redis.Port = r.Port
	}
	if r.Password != "" {
		s.Redis.Password = r.Password
	}
	if r.DB != nil {
		s.Redis.DB = *r.DB
	}
	if r.Cluster != nil {
		s.Redis.Cluster = *r.Cluster
	}
	if len(r.ClusterNodes) > 0 {
		s.Redis.ClusterNodes = r.ClusterNodes
	}
	if r.PoolSize > 0 {
		s.Redis.PoolSize = r.PoolSize
	}
	if r.MaxRetries > 0 {
		s.Redis.MaxRetries = r.MaxRetries
	}
	if r.KeyPrefix != "" {
		s.Redis.KeyPrefix = r.KeyPrefix
	}
	if err := parseDuration("storage.redis.dial_timeout", r.DialTimeout, &s.Redis.DialTimeout); err != nil {
		return err
	}

	c := &cfg.Coordinator
	if raw.Coordinator.Enabled != nil {
		c.Enabled = *raw.Coordinator.Enabled
	}
	if raw.Coordinator.NodeID != "" {
		c.NodeID = raw.Coordinator.NodeID
	}
	if raw.Coordinator.BindAddr != "" {
		c.BindAddr = raw.Coordinator.BindAddr
	}
	if len(raw.Coordinator.Peers) > 0 {
		c.Peers = raw.Coordinator.Peers
	}
	if err := parseDuration("coordinator.gossip_interval", raw.Coordinator.GossipInterval, &c.GossipInterval); err != nil {
		return err
	}

	rec := &cfg.Recorder
	if err := parseDuration("recorder.retention", raw.Recorder.Retention, &rec.Retention); err != nil {
		return err
	}
	if raw.Recorder.MaxEvents != 0 {
		rec.MaxEvents = raw.Recorder.MaxEvents
	}
	if raw.Recorder.MaxTrackedIdentifiers > 0 {
		rec.MaxTrackedIdentifiers = raw.Recorder.MaxTrackedIdentifiers
	}
	if raw.Recorder.StreamPath != "" {
		rec.StreamPath = raw.Recorder.StreamPath
	}

	if raw.Logging.Level != "" {
		cfg.Logging.Level = raw.Logging.Level
	}
	if raw.Logging.Format != "" {
		cfg.Logging.Format = raw.Logging.Format
	}
	return nil
}

// applyLimits overrides default classes by name and appends new ones.
func (raw *rawConfig) applyLimits(cfg *Config) error {
	index := make(map[string]int, len(cfg.Limits))
	for i, c := range cfg.Limits {
		index[c.Name] = i
	}

	for i, rc := range raw.Limits {
		if rc.Name == "" {
			return fmt.Errorf("limits[%d]: %w: name is required", i, limits.ErrInvalidLimitClass)
		}
		class := limits.LimitClass{
			Name:       rc.Name,
			Capacity:   rc.Capacity,
			Burst:      rc.Burst,
			RefillRate: rc.RefillRate,
			Algorithm:  limits.Algorithm(rc.Algorithm),
		}
		if err := parseDuration(fmt.Sprintf("limits[%s].window", rc.Name), rc.Window, &class.Window); err != nil {
			return err
		}
		if pos, ok := index[rc.Name]; ok {
			cfg.Limits[pos] = class
		} else {
			index[rc.Name] = len(cfg.Limits)
			cfg.Limits = append(cfg.Limits, class)
		}
	}
	return nil
}

func parseDuration(field, value string, dst *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = d
	return nil
}

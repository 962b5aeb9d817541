package cli

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

// storageOptions are the backend and cluster flags shared by serve. Flag
// values win over the config file only when set explicitly.
type storageOptions struct {
	backend               string
	memoryCleanupInterval time.Duration
	redisHost             string
	redisPort             int
	redisPassword         string
	redisDB               int
	redisCluster          bool
	redisClusterNodes     []string
	redisPoolSize         int
	redisMaxRetries       int
	redisDialTimeout      time.Duration
	redisKeyPrefix        string

	coordinatorEnabled  bool
	coordinatorNodeID   string
	coordinatorBindAddr string
	coordinatorPeers    []string
	gossipInterval      time.Duration
}

func (o *storageOptions) addFlags(cmd *cobra.Command) {
	def := config.Default()

	cmd.Flags().StringVar(&o.backend, "storage", def.Storage.Backend, "counter store backend (memory, redis)")
	cmd.Flags().DurationVar(&o.memoryCleanupInterval, "storage-memory-cleanup-interval", def.Storage.Memory.CleanupInterval, "cleanup interval for the memory store")
	cmd.Flags().StringVar(&o.redisHost, "redis-host", def.Storage.Redis.Host, "redis host (or host:port)")
	cmd.Flags().IntVar(&o.redisPort, "redis-port", def.Storage.Redis.Port, "redis port")
	cmd.Flags().StringVar(&o.redisPassword, "redis-password", "", "redis password")
	cmd.Flags().IntVar(&o.redisDB, "redis-db", 0, "redis database index")
	cmd.Flags().BoolVar(&o.redisCluster, "redis-cluster", false, "enable redis cluster mode")
	cmd.Flags().StringSliceVar(&o.redisClusterNodes, "redis-cluster-nodes", nil, "redis cluster nodes host:port list")
	cmd.Flags().IntVar(&o.redisPoolSize, "redis-pool-size", def.Storage.Redis.PoolSize, "redis connection pool size")
	cmd.Flags().IntVar(&o.redisMaxRetries, "redis-max-retries", def.Storage.Redis.MaxRetries, "redis max retries")
	cmd.Flags().DurationVar(&o.redisDialTimeout, "redis-dial-timeout", def.Storage.Redis.DialTimeout, "redis dial timeout")
	cmd.Flags().StringVar(&o.redisKeyPrefix, "redis-key-prefix", def.Storage.Redis.KeyPrefix, "prefix for every redis key")

	cmd.Flags().BoolVar(&o.coordinatorEnabled, "cluster", false, "coordinate limits with peers over gossip")
	cmd.Flags().StringVar(&o.coordinatorNodeID, "node-id", "", "cluster node id (random when empty)")
	cmd.Flags().StringVar(&o.coordinatorBindAddr, "gossip-addr", def.Coordinator.BindAddr, "address the gossip endpoint listens on")
	cmd.Flags().StringSliceVar(&o.coordinatorPeers, "peers", nil, "gossip peer addresses")
	cmd.Flags().DurationVar(&o.gossipInterval, "gossip-interval", def.Coordinator.GossipInterval, "gossip interval")
}

func (o *storageOptions) applyConfigIfUnset(cmd *cobra.Command, cfg *config.Config) {
	if cfg == nil {
		return
	}
	s, c := cfg.Storage, cfg.Coordinator

	if !cmd.Flags().Changed("storage") {
		o.backend = s.Backend
	}
	if !cmd.Flags().Changed("storage-memory-cleanup-interval") {
		o.memoryCleanupInterval = s.Memory.CleanupInterval
	}
	if !cmd.Flags().Changed("redis-host") {
		o.redisHost = s.Redis.Host
	}
	if !cmd.Flags().Changed("redis-port") {
		o.redisPort = s.Redis.Port
	}
	if !cmd.Flags().Changed("redis-password") {
		o.redisPassword = s.Redis.Password
	}
	if !cmd.Flags().Changed("redis-db") {
		o.redisDB = s.Redis.DB
	}
	if !cmd.Flags().Changed("redis-cluster") {
		o.redisCluster = s.Redis.Cluster
	}
	if !cmd.Flags().Changed("redis-cluster-nodes") {
		o.redisClusterNodes = s.Redis.ClusterNodes
	}
	if !cmd.Flags().Changed("redis-pool-size") {
		o.redisPoolSize = s.Redis.PoolSize
	}
	if !cmd.Flags().Changed("redis-max-retries") {
		o.redisMaxRetries = s.Redis.MaxRetries
	}
	if !cmd.Flags().Changed("redis-dial-timeout") {
		o.redisDialTimeout = s.Redis.DialTimeout
	}
	if !cmd.Flags().Changed("redis-key-prefix") {
		o.redisKeyPrefix = s.Redis.KeyPrefix
	}
	if !cmd.Flags().Changed("cluster") {
		o.coordinatorEnabled = c.Enabled
	}
	if !cmd.Flags().Changed("node-id") {
		o.coordinatorNodeID = c.NodeID
	}
	if !cmd.Flags().Changed("gossip-addr") {
		o.coordinatorBindAddr = c.BindAddr
	}
	if !cmd.Flags().Changed("peers") {
		o.coordinatorPeers = c.Peers
	}
	if !cmd.Flags().Changed("gossip-interval") {
		o.gossipInterval = c.GossipInterval
	}
}

func (o *storageOptions) normalize() error {
	if o.backend != store.BackendRedis || o.redisCluster {
		return nil
	}

	host, port, err := normalizeRedisHostPort(o.redisHost, o.redisPort)
	if err != nil {
		return err
	}
	o.redisHost = host
	o.redisPort = port
	return nil
}

// writeTo copies the resolved options into cfg. Fields the flags do not
// cover, such as tx retries, keep their config values.
func (o *storageOptions) writeTo(cfg *config.Config) {
	cfg.Storage.Backend = o.backend
	cfg.Storage.Memory.CleanupInterval = o.memoryCleanupInterval

	r := &cfg.Storage.Redis
	r.Host = o.redisHost
	r.Port = o.redisPort
	r.Password = o.redisPassword
	r.DB = o.redisDB
	r.Cluster = o.redisCluster
	r.ClusterNodes = append([]string(nil), o.redisClusterNodes...)
	r.PoolSize = o.redisPoolSize
	r.MaxRetries = o.redisMaxRetries
	r.DialTimeout = o.redisDialTimeout
	r.KeyPrefix = o.redisKeyPrefix

	cfg.Coordinator.Enabled = o.coordinatorEnabled
	cfg.Coordinator.NodeID = o.coordinatorNodeID
	cfg.Coordinator.BindAddr = o.coordinatorBindAddr
	cfg.Coordinator.Peers = append([]string(nil), o.coordinatorPeers...)
	cfg.Coordinator.GossipInterval = o.gossipInterval
}

func normalizeRedisHostPort(host string, port int) (string, int, error) {
	if strings.Contains(host, ":") {
		h, p, err := net.SplitHostPort(host)
		if err != nil {
			return "", 0, fmt.Errorf("invalid --redis-host value %q: %w", host, err)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid redis port in --redis-host %q: %w", host, err)
		}
		host = h
		port = n
	}

	if host == "" {
		return "", 0, fmt.Errorf("redis host cannot be empty")
	}
	if port <= 0 {
		return "", 0, fmt.Errorf("redis port must be positive, got %d", port)
	}

	return host, port, nil
}

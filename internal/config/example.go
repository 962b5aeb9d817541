package config

import "os"

const example = `# gatekeeper configuration
server:
  addr: ":8080"
  # Reverse proxies allowed to set X-Forwarded-For (IPs or CIDRs).
  # trusted_proxies: ["10.0.0.0/8"]

# Limit classes. Entries override the built-in class of the same name;
# new names are added. refill_rate defaults to capacity/window.
limits:
  - name: login
    capacity: 5
    window: 15m
    burst: 2
    refill_rate: 0.006
    algorithm: token_bucket
  - name: search
    capacity: 50
    window: 1m
    algorithm: sliding_window

# Maps "METHOD /path" to the class applied on top of the caller's limits.
endpoints:
  "POST /login": login
  "GET /search": search

admission:
  min_requests_per_window: 1
  min_burst: 0
  max_multiplier: 10
  store_timeout: 50ms
  expiry_buffer: 5s
  suspicious_threshold: 0.5
  threat_lookback: 15m
  threat_tolerance: 10
  threat_floor: 0.1
  load_soft_goroutines: 10000
  load_hard_goroutines: 50000

storage:
  backend: memory # memory or redis
  memory:
    cleanup_interval: 1m
  redis:
    host: localhost
    port: 6379
    db: 0
    pool_size: 20
    max_retries: 3
    dial_timeout: 5s
    key_prefix: "gk:"

coordinator:
  enabled: false
  bind_addr: ":7946"
  peers: []
  gossip_interval: 1s

recorder:
  retention: 24h
  max_events: 10000
  max_tracked_identifiers: 10000

logging:
  level: info
  format: text
`

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	return os.WriteFile(path, []byte(example), 0o644)
}

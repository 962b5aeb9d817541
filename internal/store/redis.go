package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPoolSize    = 20
	defaultRedisMaxRetries  = 3
	defaultRedisDialTimeout = 5 * time.Second
	defaultRedisKeyPrefix   = "gk:"
	redisPingInitialBackoff = 100 * time.Millisecond

	redisLockShards       = 256
	redisCASInitialDelay  = time.Millisecond
	redisCASMaxDelay      = 25 * time.Millisecond
	redisUndeadlinedLimit = time.Second
)

// redisCompareAndSetScript writes ARGV[3] only if the key still holds the
// value the caller read: ARGV[1] is "1" when a value was read and ARGV[2]
// is that value. ARGV[4] is the TTL in milliseconds, 0 for none.
var redisCompareAndSetScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if ARGV[1] == '1' then
  if cur ~= ARGV[2] then
    return 0
  end
elseif cur then
  return 0
end

if ARGV[4] ~= '0' then
  redis.call('SET', KEYS[1], ARGV[3], 'PX', ARGV[4])
else
  redis.call('SET', KEYS[1], ARGV[3])
end
return 1
`)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	Password     string        `json:"password" yaml:"password"`
	DB           int           `json:"db" yaml:"db"`
	Cluster      bool          `json:"cluster" yaml:"cluster"`
	ClusterNodes []string      `json:"cluster_nodes" yaml:"cluster_nodes"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix"`
}

// RedisStore is a Store shared by every process pointed at the same Redis.
//
// Update serialises callers of one key inside the process with a striped
// lock, then commits through a compare-and-set script. A conflict can only
// come from another process; it is retried with backoff until the context
// deadline. Running out of time is reported as ErrUnavailable, contention
// itself never is.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	locks  [redisLockShards]chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewRedisStore dials Redis and verifies it with a ping (retried with
// exponential backoff).
func NewRedisStore(ctx context.Context, cfg *RedisConfig) (*RedisStore, error) {
	conf, err := normalizeRedisConfig(cfg)
	if err != nil {
		return nil, err
	}

	s := NewRedisStoreFromClient(newRedisClient(conf), conf.KeyPrefix)
	if err := s.pingWithRetry(ctx, conf.MaxRetries); err != nil {
		_ = s.client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client. An empty prefix uses the
// default "gk:" namespace.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	s := &RedisStore{
		client: client,
		prefix: prefix,
	}
	for i := range s.locks {
		s.locks[i] = make(chan struct{}, 1)
	}
	return s
}

// lock takes the stripe for key, giving up when ctx is done.
func (s *RedisStore) lock(ctx context.Context, key string) (func(), error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	l := s.locks[h.Sum32()%redisLockShards]

	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *RedisStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	redisKey := s.prefix + key

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, redisUndeadlinedLimit)
		defer cancel()
	}

	unlock, err := s.lock(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: redis update %q: %w", ErrUnavailable, key, err)
	}
	defer unlock()

	ttlMillis := int64(0)
	if ttl > 0 {
		ttlMillis = max(1, ttl.Milliseconds())
	}

	delay := redisCASInitialDelay
	for {
		cur, err := s.client.Get(ctx, redisKey).Bytes()
		found := "1"
		if errors.Is(err, redis.Nil) {
			cur, err, found = nil, nil, "0"
		}
		if err != nil {
			return fmt.Errorf("%w: redis update %q: %w", ErrUnavailable, key, err)
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}

		swapped, err := redisCompareAndSetScript.Run(ctx, s.client, []string{redisKey}, found, cur, next, ttlMillis).Int()
		if err != nil {
			return fmt.Errorf("%w: redis update %q: %w", ErrUnavailable, key, err)
		}
		if swapped == 1 {
			return nil
		}

		// Another process committed first; read again after a jittered pause.
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: redis update %q: %w", ErrUnavailable, key, ctx.Err())
		case <-time.After(delay/2 + time.Duration(rand.Int63n(int64(delay)))):
		}
		delay = min(2*delay, redisCASMaxDelay)
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get %q: %w", ErrUnavailable, key, err)
	}
	return val, nil
}

// Close releases Redis resources. It is idempotent.
func (s *RedisStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

func (s *RedisStore) pingWithRetry(ctx context.Context, maxRetries int) error {
	attempts := maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	backoff := redisPingInitialBackoff
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := s.client.Ping(ctx).Err(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	if lastErr == nil {
		lastErr = errors.New("ping failed with unknown error")
	}
	return lastErr
}

func normalizeRedisConfig(cfg *RedisConfig) (*RedisConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	conf := *cfg
	if conf.PoolSize <= 0 {
		conf.PoolSize = defaultRedisPoolSize
	}
	if conf.MaxRetries <= 0 {
		conf.MaxRetries = defaultRedisMaxRetries
	}
	if conf.DialTimeout <= 0 {
		conf.DialTimeout = defaultRedisDialTimeout
	}
	if conf.KeyPrefix == "" {
		conf.KeyPrefix = defaultRedisKeyPrefix
	}

	if conf.Cluster {
		if len(conf.ClusterNodes) == 0 {
			return nil, fmt.Errorf("cluster_nodes is required when cluster=true")
		}
	} else {
		if conf.Host == "" {
			return nil, fmt.Errorf("host is required when cluster=false")
		}
		if conf.Port <= 0 {
			return nil, fmt.Errorf("port must be positive when cluster=false, got %d", conf.Port)
		}
	}

	return &conf, nil
}

func newRedisClient(cfg *RedisConfig) redis.UniversalClient {
	if cfg.Cluster {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:       cfg.ClusterNodes,
			Password:    cfg.Password,
			PoolSize:    cfg.PoolSize,
			MaxRetries:  cfg.MaxRetries,
			DialTimeout: cfg.DialTimeout,
		})
	}

	return redis.NewClient(&redis.Options{
		Addr:        cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	})
}

package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
)

const DefaultGossipInterval = time.Second

// Config configures a GossipCoordinator.
type Config struct {
	// NodeID names this node in every counter. A random id is used when
	// empty.
	NodeID string
	// BindAddr is where the /gossip endpoint listens. When empty no
	// listener is started and Handler must be mounted by the caller.
	BindAddr string
	// Peers are the base URLs (or host:port) of the other nodes.
	Peers          []string
	GossipInterval time.Duration
	Clock          clock.Clock
}

type gossipBucket struct {
	Counts  map[string]int64 `json:"counts"`
	ResetAt time.Time        `json:"reset_at"`
}

type gossipPayload struct {
	NodeID  string                  `json:"node_id"`
	Buckets map[string]gossipBucket `json:"buckets"`
}

type bucket struct {
	counter *GCounter
	resetAt time.Time
}

// GossipCoordinator keeps one GCounter per (key, window bucket) and pushes
// its full state to every peer on each gossip tick. Peers merge by per-node
// max, so totals converge once gossip quiesces. Between ticks each node
// can admit up to the limit minus what it has heard of, which bounds
// cluster-wide over-admission by the traffic peers admitted since their
// last push.
type GossipCoordinator struct {
	nodeID         string
	peers          []string
	gossipInterval time.Duration
	clock          clock.Clock
	client         *http.Client

	mu      sync.RWMutex
	buckets map[string]*bucket

	httpServer *http.Server
	bindAddr   string

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewGossipCoordinator starts the gossip loop and, when BindAddr is set,
// the /gossip listener.
func NewGossipCoordinator(cfg *Config) (*GossipCoordinator, error) {
	if cfg == nil {
		return nil, errors.New("coordinator config is required")
	}

	interval := cfg.GossipInterval
	if interval <= 0 {
		interval = DefaultGossipInterval
	}
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	g := &GossipCoordinator{
		nodeID:         nodeID,
		peers:          append([]string(nil), cfg.Peers...),
		gossipInterval: interval,
		clock:          clock.OrReal(cfg.Clock),
		client:         &http.Client{Timeout: 3 * time.Second},
		buckets:        make(map[string]*bucket),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}

	if cfg.BindAddr != "" {
		if err := g.startHTTPServer(cfg.BindAddr); err != nil {
			return nil, err
		}
	}

	log.WithFields(log.Fields{
		"node_id": nodeID,
		"peers":   len(g.peers),
		"addr":    g.bindAddr,
	}).Info("coordinator: gossip started (eventually consistent, drift between ticks is expected)")

	go g.gossipLoop()
	return g, nil
}

// NodeID returns this node's id.
func (g *GossipCoordinator) NodeID() string {
	return g.nodeID
}

// Addr returns the effective listening address, useful when BindAddr uses
// port 0.
func (g *GossipCoordinator) Addr() string {
	return g.bindAddr
}

// Handler serves POST /gossip.
func (g *GossipCoordinator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/gossip", g.handleGossip)
	return mux
}

func (g *GossipCoordinator) Reserve(ctx context.Context, key string, window time.Duration, limit, cost int) (bool, int64, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	if key == "" {
		return false, 0, errors.New("key is required")
	}
	if limit <= 0 {
		return false, 0, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return false, 0, fmt.Errorf("window must be positive, got %s", window)
	}
	if cost < 1 {
		cost = 1
	}

	bucketKey, resetAt := bucketKeyFor(key, window, g.clock.Now())

	g.mu.Lock()
	b := g.buckets[bucketKey]
	if b == nil {
		b = &bucket{counter: NewGCounter(), resetAt: resetAt}
		g.buckets[bucketKey] = b
	}
	g.mu.Unlock()

	ok, total := b.counter.Reserve(g.nodeID, int64(limit), int64(cost))
	return ok, total, nil
}

// Total returns the merged count for key in the current window.
func (g *GossipCoordinator) Total(key string, window time.Duration) int64 {
	bucketKey, _ := bucketKeyFor(key, window, g.clock.Now())

	g.mu.RLock()
	b := g.buckets[bucketKey]
	g.mu.RUnlock()
	if b == nil {
		return 0
	}
	return b.counter.Total()
}

// bucketKeyFor aligns at to a fixed window. The window size is part of the
// key so different windows over the same key never collide.
func bucketKeyFor(key string, window time.Duration, at time.Time) (string, time.Time) {
	windowID := at.UnixNano() / int64(window)
	return fmt.Sprintf("%s|%d|%d", key, windowID, int64(window)), WindowReset(window, at)
}

// WindowReset returns the end of the coordination window containing at.
func WindowReset(window time.Duration, at time.Time) time.Time {
	windowID := at.UnixNano() / int64(window)
	return time.Unix(0, (windowID+1)*int64(window))
}

func (g *GossipCoordinator) startHTTPServer(bindAddr string) error {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("starting gossip listener on %s: %w", bindAddr, err)
	}

	g.bindAddr = ln.Addr().String()
	g.httpServer = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("coordinator: gossip server failed")
		}
	}()
	return nil
}

func (g *GossipCoordinator) handleGossip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	defer r.Body.Close()
	var payload gossipPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid gossip payload", http.StatusBadRequest)
		return
	}
	if payload.NodeID == "" {
		http.Error(w, "missing node_id", http.StatusBadRequest)
		return
	}

	g.merge(payload.Buckets)
	w.WriteHeader(http.StatusOK)
}

func (g *GossipCoordinator) merge(snapshot map[string]gossipBucket) {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	for bucketKey, incoming := range snapshot {
		if len(incoming.Counts) == 0 || g.expired(incoming.ResetAt, now) {
			continue
		}
		b := g.buckets[bucketKey]
		if b == nil {
			b = &bucket{counter: NewGCounter(), resetAt: incoming.ResetAt}
			g.buckets[bucketKey] = b
		}
		b.counter.Merge(incoming.Counts)
	}
}

func (g *GossipCoordinator) snapshot() map[string]gossipBucket {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]gossipBucket, len(g.buckets))
	for k, b := range g.buckets {
		out[k] = gossipBucket{Counts: b.counter.Snapshot(), ResetAt: b.resetAt}
	}
	return out
}

// expired keeps buckets two gossip intervals past their window so late
// gossip still converges.
func (g *GossipCoordinator) expired(resetAt, now time.Time) bool {
	return now.After(resetAt.Add(2 * g.gossipInterval))
}

func (g *GossipCoordinator) cleanupExpired() int {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for k, b := range g.buckets {
		if g.expired(b.resetAt, now) {
			delete(g.buckets, k)
			removed++
		}
	}
	return removed
}

func (g *GossipCoordinator) gossipLoop() {
	ticker := time.NewTicker(g.gossipInterval)
	defer func() {
		ticker.Stop()
		close(g.doneCh)
	}()

	for {
		select {
		case <-ticker.C:
			g.gossipOnce(context.Background())
			if n := g.cleanupExpired(); n > 0 {
				log.WithField("removed", n).Debug("coordinator: expired buckets removed")
			}
		case <-g.stopCh:
			return
		}
	}
}

func (g *GossipCoordinator) gossipOnce(ctx context.Context) {
	if len(g.peers) == 0 {
		return
	}

	body, err := json.Marshal(gossipPayload{NodeID: g.nodeID, Buckets: g.snapshot()})
	if err != nil {
		log.WithError(err).Error("coordinator: failed to encode gossip payload")
		return
	}

	for _, peer := range g.peers {
		url := normalizePeerURL(peer) + "/gossip"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			log.WithError(err).WithField("peer", peer).Warn("coordinator: bad gossip request")
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			log.WithError(err).WithField("peer", peer).Debug("coordinator: gossip push failed")
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

func normalizePeerURL(peer string) string {
	peer = strings.TrimSuffix(peer, "/")
	if strings.HasPrefix(peer, "http://") || strings.HasPrefix(peer, "https://") {
		return peer
	}
	return "http://" + peer
}

// Close stops the gossip loop and the listener. It is idempotent.
func (g *GossipCoordinator) Close() error {
	var retErr error
	g.closeOnce.Do(func() {
		close(g.stopCh)
		<-g.doneCh
		if g.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := g.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				retErr = err
			}
		}
	})
	return retErr
}

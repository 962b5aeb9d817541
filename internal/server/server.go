// Package server exposes the admission controller over HTTP, plus a
// websocket feed of decisions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/admission"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

const defaultStatsPeriod = time.Hour

// Admitter is the part of the admission controller the server uses.
type Admitter interface {
	IsAllowed(ctx context.Context, identifier, limitType string, rc limits.RequestContext) (admission.Decision, error)
	Statistics(period time.Duration) recorder.Statistics
	Registry() *limits.Registry
}

// Server is the gatekeeper HTTP server.
type Server struct {
	httpServer *http.Server
	admitter   Admitter
	clock      clock.Clock
	hub        *Hub
	mux        *http.ServeMux
	proxies    TrustedProxies
}

// New creates a server. Decisions recorded by admitter are pushed to
// websocket clients when its recorder accepts publishers.
func New(addr string, admitter Admitter, clk clock.Clock) *Server {
	s := &Server{
		admitter: admitter,
		clock:    clock.OrReal(clk),
		hub:      NewHub(),
		mux:      http.NewServeMux(),
	}
	if ctrl, ok := admitter.(interface{ Recorder() admission.Recorder }); ok {
		if rec, ok := ctrl.Recorder().(interface{ AddPublisher(recorder.Publisher) }); ok {
			rec.AddPublisher(s.hub)
		}
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// TrustProxies makes /api/check read X-Forwarded-For from requests sent by
// t. Call it before serving.
func (s *Server) TrustProxies(t TrustedProxies) {
	s.proxies = t
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the root handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/check", s.handleCheck)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/limits", s.handleLimits)
	s.mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	s.mux.HandleFunc("/dashboard", s.handleDashboard)
}

// handleRoot serves a welcome message.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "gatekeeper",
		"status":  "running",
		"time":    s.clock.Now().Format(time.RFC3339),
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCheck runs one admission check.
//
//	GET|POST /api/check?identifier=&type=&ip=&user=&endpoint=&cost=
//
// The identifier defaults to the client IP.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}

	rc := limits.RequestContext{
		IP:       r.Form.Get("ip"),
		UserID:   r.Form.Get("user"),
		Endpoint: r.Form.Get("endpoint"),
	}
	if raw := r.Form.Get("cost"); raw != "" {
		cost, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "cost must be an integer")
			return
		}
		rc.Cost = cost
	}
	identifier := r.Form.Get("identifier")
	if identifier == "" {
		identifier = s.proxies.ClientIP(r)
	}

	dec, err := s.admitter.IsAllowed(r.Context(), identifier, r.Form.Get("type"), rc)
	if err != nil {
		if errors.Is(err, limits.ErrUnknownLimitClass) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.WithError(err).WithField("identifier", identifier).Error("server: admission check failed")
		writeError(w, http.StatusInternalServerError, "admission check failed")
		return
	}

	SetRateLimitHeaders(w, dec)
	status := http.StatusOK
	if !dec.Allowed {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, dec)
}

// handleStats reports aggregate outcomes. GET /api/stats?period=1h
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	period := defaultStatsPeriod
	if raw := r.URL.Query().Get("period"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "period must be a positive duration such as 15m or 1h")
			return
		}
		period = d
	}
	writeJSON(w, http.StatusOK, s.admitter.Statistics(period))
}

// handleLimits lists the configured classes.
func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	type classJSON struct {
		Name       string  `json:"name"`
		Algorithm  string  `json:"algorithm"`
		Capacity   int     `json:"capacity"`
		Window     string  `json:"window"`
		Burst      int     `json:"burst"`
		RefillRate float64 `json:"refill_rate"`
	}

	classes := s.admitter.Registry().Classes()
	out := make([]classJSON, 0, len(classes))
	for _, c := range classes {
		out = append(out, classJSON{
			Name:       c.Name,
			Algorithm:  string(c.Algorithm),
			Capacity:   c.Capacity,
			Window:     c.Window.String(),
			Burst:      c.Burst,
			RefillRate: c.RefillRate,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("server: failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.StartOnListener(ln)
}

// StartOnListener begins serving on the provided listener.
// Useful for tests that need to pick an ephemeral port.
func (s *Server) StartOnListener(ln net.Listener) error {
	log.WithField("addr", ln.Addr().String()).Info("gatekeeper server listening")
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and disconnects websocket
// clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	return s.httpServer.Shutdown(ctx)
}

package server

import (
	"net/http"

	internallimits "github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	internalserver "github.com/SmitUplenchwar2687/gatekeeper/internal/server"
	"github.com/SmitUplenchwar2687/gatekeeper/pkg/clock"
)

// Server is the gatekeeper HTTP server.
type Server = internalserver.Server

// Admitter is the part of the admission controller the server uses.
type Admitter = internalserver.Admitter

// Checker decides admission for Middleware.
type Checker = internalserver.Checker

// IdentifyFunc extracts the caller identity and request attributes.
type IdentifyFunc = internalserver.IdentifyFunc

// Hub broadcasts decision events to websocket clients.
type Hub = internalserver.Hub

// TrustedProxies lists the reverse proxies whose X-Forwarded-For is read.
type TrustedProxies = internalserver.TrustedProxies

// ParseTrustedProxies accepts IP addresses and CIDR ranges.
func ParseTrustedProxies(specs []string) (TrustedProxies, error) {
	return internalserver.ParseTrustedProxies(specs)
}

// New creates a gatekeeper server.
func New(addr string, admitter Admitter, clk clock.Clock) *Server {
	return internalserver.New(addr, admitter, clk)
}

// Middleware admits or rejects requests before they reach next.
func Middleware(checker Checker, limitType string, identify IdentifyFunc) func(http.Handler) http.Handler {
	return internalserver.Middleware(checker, limitType, identify)
}

// IdentifyByIP keys callers by their remote address.
func IdentifyByIP(r *http.Request) (string, internallimits.RequestContext) {
	return internalserver.IdentifyByIP(r)
}

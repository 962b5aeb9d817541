package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
)

// TrustedProxies lists the reverse proxies whose X-Forwarded-For header is
// believed. The zero value trusts nobody, so the client IP is the
// connection's remote address.
type TrustedProxies struct {
	nets []*net.IPNet
}

// ParseTrustedProxies accepts IP addresses and CIDR ranges.
func ParseTrustedProxies(specs []string) (TrustedProxies, error) {
	var t TrustedProxies
	for _, s := range specs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			ip := net.ParseIP(s)
			if ip == nil {
				return TrustedProxies{}, fmt.Errorf("invalid trusted proxy %q", s)
			}
			bits := 8 * net.IPv4len
			if ip.To4() == nil {
				bits = 8 * net.IPv6len
			}
			t.nets = append(t.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return TrustedProxies{}, fmt.Errorf("invalid trusted proxy %q: %w", s, err)
		}
		t.nets = append(t.nets, n)
	}
	return t, nil
}

func (t TrustedProxies) trusts(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range t.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the address of the caller. X-Forwarded-For is only read
// when the request came from a trusted proxy; it is then walked from the
// right and the first hop that is not a trusted proxy wins, so a client
// cannot choose its own address by prepending entries.
func (t TrustedProxies) ClientIP(r *http.Request) string {
	remote := remoteHost(r)
	if !t.trusts(remote) {
		return remote
	}
	forwarded := r.Header.Values("X-Forwarded-For")
	hops := strings.Split(strings.Join(forwarded, ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if net.ParseIP(hop) == nil {
			break
		}
		if !t.trusts(hop) {
			return hop
		}
	}
	return remote
}

// IdentifyByIP keys callers by the client IP as seen through t and maps
// the request to "METHOD /path" for endpoint classes.
func (t TrustedProxies) IdentifyByIP(r *http.Request) (string, limits.RequestContext) {
	ip := t.ClientIP(r)
	return ip, limits.RequestContext{
		IP:       ip,
		Endpoint: r.Method + " " + r.URL.Path,
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

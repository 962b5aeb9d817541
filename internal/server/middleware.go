package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/admission"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
)

// Checker decides admission for the middleware.
type Checker interface {
	IsAllowed(ctx context.Context, identifier, limitType string, rc limits.RequestContext) (admission.Decision, error)
}

// IdentifyFunc extracts the caller identity and request attributes.
type IdentifyFunc func(r *http.Request) (string, limits.RequestContext)

// IdentifyByIP keys callers by their remote address and maps the request
// to "METHOD /path" for endpoint classes. Behind a reverse proxy use
// TrustedProxies.IdentifyByIP instead.
func IdentifyByIP(r *http.Request) (string, limits.RequestContext) {
	return TrustedProxies{}.IdentifyByIP(r)
}

// Middleware admits or rejects requests before they reach next. Denied
// requests get 429 with Retry-After. Errors other than an unknown class
// fail open, since the controller already fails open on store errors.
func Middleware(checker Checker, limitType string, identify IdentifyFunc) func(http.Handler) http.Handler {
	if identify == nil {
		identify = IdentifyByIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier, rc := identify(r)

			dec, err := checker.IsAllowed(r.Context(), identifier, limitType, rc)
			if err != nil {
				if errors.Is(err, limits.ErrUnknownLimitClass) {
					log.WithError(err).Error("server: middleware configured with an unknown limit class")
					writeError(w, http.StatusInternalServerError, "rate limit misconfigured")
					return
				}
				log.WithError(err).WithField("identifier", identifier).Warn("server: admission check failed, admitting")
				next.ServeHTTP(w, r)
				return
			}

			SetRateLimitHeaders(w, dec)
			if !dec.Allowed {
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":       "rate limit exceeded",
					"reason":      dec.Reason,
					"retry_after": dec.RetryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetRateLimitHeaders writes X-RateLimit-* headers for dec, and
// Retry-After when it was denied.
func SetRateLimitHeaders(w http.ResponseWriter, dec admission.Decision) {
	h := w.Header()
	if remaining := dec.MinRemaining(); remaining >= 0 {
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}
	if reset := dec.LatestReset(); !reset.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	}
	if len(dec.LimitsChecked) > 0 {
		h.Set("X-RateLimit-Limits", strings.Join(dec.LimitsChecked, ","))
	}
	if dec.Degraded {
		h.Set("X-RateLimit-Degraded", "true")
	}
	if !dec.Allowed {
		h.Set("Retry-After", strconv.Itoa(dec.RetryAfter))
	}
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are
// ignored; see TrustedProxies.ClientIP.
func ClientIP(r *http.Request) string {
	return remoteHost(r)
}

package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hazelbloom/storefront/internal/metrics"
	"github.com/hazelbloom/storefront/internal/ratelimit"
)

// RequireJSON rejects anything that is not application/json before the
// body is touched.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.Contains(ct, "application/json") {
			writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeBody reads at most maxSize bytes and unmarshals into v. It
// writes the error response itself and reports whether the caller may
// proceed.
func decodeBody(w http.ResponseWriter, r *http.Request, maxSize int64, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

// RateLimit applies a per-client fixed-window budget for one endpoint
// class. X-RateLimit-* headers go out on every response; exhausted
// windows get 429 with Retry-After. The webhook endpoint deliberately
// has no budget: it is authenticated by signature and the processor
// controls its own delivery rate.
func RateLimit(limiter *ratelimit.Limiter, class string, maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("%s:%s", class, clientIP(r))
			res, _ := limiter.Check(r.Context(), key, maxRequests, window)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", res.ResetTime.UTC().Format(time.RFC3339))

			if !res.Allowed {
				retryAfter := int(math.Ceil(time.Until(res.ResetTime).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				metrics.RateLimited.WithLabelValues(class).Inc()
				writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	// middleware.RealIP has already folded X-Forwarded-For / X-Real-IP
	// into RemoteAddr when present.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

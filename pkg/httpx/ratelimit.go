package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/maturity/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket: RequestsPerWindow refill over Window,
// with at most Burst spent at once.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

func (c RateLimitConfig) limit() rate.Limit {
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// Endpoint tiers. Each can be overridden from the environment with
// RATELIMIT_{TIER}_REQUESTS, RATELIMIT_{TIER}_WINDOW_SEC and RATELIMIT_{TIER}_BURST.
var (
	// StrictLimit guards credentials: login, token, TOTP confirmation.
	StrictLimit = RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	// ModerateLimit is for authenticated writes and client-authenticated calls.
	ModerateLimit = RateLimitConfig{RequestsPerWindow: 20, Window: time.Minute, Burst: 20}

	// LenientLimit is for browser navigation and health probes.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}

	// PublicLimit is for metadata relying parties poll (discovery, JWKS).
	PublicLimit = RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
)

func init() {
	StrictLimit = ParseRateLimitFromEnv("STRICT", StrictLimit)
	ModerateLimit = ParseRateLimitFromEnv("MODERATE", ModerateLimit)
	LenientLimit = ParseRateLimitFromEnv("LENIENT", LenientLimit)
	PublicLimit = ParseRateLimitFromEnv("PUBLIC", PublicLimit)
}

// ParseRateLimitFromEnv overlays RATELIMIT_{prefix}_* variables on def.
// Missing, malformed or non-positive values keep the default.
func ParseRateLimitFromEnv(prefix string, def RateLimitConfig) RateLimitConfig {
	positive := func(field string) (int, bool) {
		n, err := strconv.Atoi(os.Getenv("RATELIMIT_" + prefix + "_" + field))
		return n, err == nil && n > 0
	}

	config := def
	if n, ok := positive("REQUESTS"); ok {
		config.RequestsPerWindow = n
	}
	if n, ok := positive("WINDOW_SEC"); ok {
		config.Window = time.Duration(n) * time.Second
	}
	if n, ok := positive("BURST"); ok {
		config.Burst = n
	}
	return config
}

// KeyExtractor groups requests into buckets. An empty key means the request
// cannot be attributed and is let through.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor uses the first X-Forwarded-For hop, then X-Real-IP, then
// the peer address. The service is expected to sit behind a proxy that
// overwrites those headers.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// UserIDKeyExtractor uses the subject placed in the context by the
// bearer or session middleware.
func UserIDKeyExtractor(r *http.Request) string {
	return UserIDFromContext(r.Context())
}

// ClientIDKeyExtractor extracts the OAuth client identifier, from HTTP Basic
// credentials first and the client_id parameter otherwise.
func ClientIDKeyExtractor(r *http.Request) string {
	if id, _, ok := r.BasicAuth(); ok && id != "" {
		return id
	}
	return ParamKeyExtractor("client_id")(r)
}

// maxPeekBody bounds how much of a JSON body a key extractor reads.
const maxPeekBody = 64 << 10

// ParamKeyExtractor reads a request parameter: a top-level string field of
// a JSON body, or a query/form value otherwise. The body is restored for
// the handler. Values are trimmed and lowercased so "Ada@Example.com " and
// "ada@example.com" share a bucket.
func ParamKeyExtractor(field string) KeyExtractor {
	return func(r *http.Request) string {
		ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if ct != "application/json" || r.Body == nil {
			if err := r.ParseForm(); err != nil {
				return ""
			}
			return normalizeKey(r.FormValue(field))
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return ""
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return ""
		}
		var v string
		if err := json.Unmarshal(fields[field], &v); err != nil {
			return ""
		}
		return normalizeKey(v)
	}
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CompositeKeyExtractor joins the non-empty keys of every extractor with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, extract := range extractors {
			if key := extract(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// limiterSet holds one token bucket per key. Buckets untouched for longer
// than idleAfter are dropped on the next sweep; a dropped bucket comes back
// full, which is what it would have refilled to anyway.
type limiterSet struct {
	config    RateLimitConfig
	idleAfter time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterSet(config RateLimitConfig) *limiterSet {
	// Time for an empty bucket to refill completely
	refill := time.Duration(float64(config.Burst) / float64(config.limit()) * float64(time.Second))
	return &limiterSet{
		config:    config,
		idleAfter: max(refill, time.Minute),
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// take spends one token for key. When none is left it reports how long
// until the next one.
func (s *limiterSet) take(key string, now time.Time) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > s.idleAfter {
		for k, b := range s.buckets {
			if now.Sub(b.lastSeen) > s.idleAfter {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.config.limit(), s.config.Burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// RateLimitMiddleware rejects requests over config with 429, grouping them
// by keyExtractor.
func RateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	set := newLimiterSet(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := keyExtractor(r)
			if key == "" {
				log.Debug("rate limit: no key for request, allowing")
				next.ServeHTTP(w, r)
				return
			}

			ok, delay := set.take(key, time.Now())
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := max(int(delay.Round(time.Second).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Window", config.Window.String())

			rateLimitedTotal.WithLabelValues(r.URL.Path).Inc()
			log.Warn("rate limit exceeded",
				"endpoint", r.URL.Path,
				"retry_after", retryAfter,
			)

			WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":             "rate_limit_exceeded",
				"error_description": "Too many requests. Please try again later.",
			})
		})
	}
}

// RateLimitByIP limits by client address only.
func RateLimitByIP(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, IPKeyExtractor)
}

// RateLimitByUser limits by authenticated subject and address.
func RateLimitByUser(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, CompositeKeyExtractor(":",
		UserIDKeyExtractor,
		IPKeyExtractor,
	))
}

// RateLimitByClient limits by IP + OAuth client. The token and introspection
// endpoints use it so one noisy relying party cannot starve the others
// behind a shared NAT.
func RateLimitByClient(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, CompositeKeyExtractor(":",
		IPKeyExtractor,
		ClientIDKeyExtractor,
	))
}

// RateLimitByAccount limits by the account named in field, whatever address
// the attempts come from. Login stacks it behind RateLimitByIP so password
// guessing spread over many addresses is slowed as well.
func RateLimitByAccount(config RateLimitConfig, field string) Middleware {
	extract := ParamKeyExtractor(field)
	return RateLimitMiddleware(config, func(r *http.Request) string {
		if v := extract(r); v != "" {
			return field + "=" + v
		}
		return ""
	})
}

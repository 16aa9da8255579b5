package httpx_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func fromAddr(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = addr
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIPKeyExtractor(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"remote addr", nil, "192.168.1.1"},
		{"first forwarded hop", map[string]string{"X-Forwarded-For": "203.0.113.1, 192.168.1.1"}, "203.0.113.1"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.2"}, "203.0.113.2"},
		{
			"forwarded wins over real ip",
			map[string]string{"X-Forwarded-For": "203.0.113.1", "X-Real-IP": "203.0.113.2"},
			"203.0.113.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := fromAddr("192.168.1.1:12345")
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, httpx.IPKeyExtractor(req))
		})
	}
}

func TestParamKeyExtractor(t *testing.T) {
	extract := httpx.ParamKeyExtractor("email")

	t.Run("query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?email=alice@example.com", nil)
		require.Equal(t, "alice@example.com", extract(req))
	})

	t.Run("form body", func(t *testing.T) {
		form := url.Values{"email": {"bob@example.com"}}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		require.Equal(t, "bob@example.com", extract(req))
	})

	t.Run("json body is normalised and restored", func(t *testing.T) {
		body := `{"email":" Ada@Example.COM ","password":"x"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")

		require.Equal(t, "ada@example.com", extract(req))

		rest, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.Equal(t, body, string(rest))
	})

	t.Run("non-string json field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":42}`))
		req.Header.Set("Content-Type", "application/json")
		require.Empty(t, extract(req))
	})

	t.Run("missing", func(t *testing.T) {
		require.Empty(t, extract(httptest.NewRequest(http.MethodGet, "/", nil)))
	})
}

func TestClientIDKeyExtractor(t *testing.T) {
	t.Run("prefers basic auth", func(t *testing.T) {
		form := url.Values{"client_id": {"from-form"}}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth("from-basic", "secret")

		require.Equal(t, "from-basic", httpx.ClientIDKeyExtractor(req))
	})

	t.Run("falls back to client_id parameter", func(t *testing.T) {
		form := url.Values{"client_id": {"assessment-web"}}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		require.Equal(t, "assessment-web", httpx.ClientIDKeyExtractor(req))
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	extract := httpx.CompositeKeyExtractor(":",
		httpx.IPKeyExtractor,
		httpx.ParamKeyExtractor("email"),
	)

	req := httptest.NewRequest(http.MethodGet, "/?email=alice@example.com", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	require.Equal(t, "192.168.1.1:alice@example.com", extract(req))

	// Empty parts are skipped
	require.Equal(t, "192.168.1.1", extract(fromAddr("192.168.1.1:12345")))
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("blocks over the burst", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 3,
			Window:            time.Minute,
			Burst:             3,
		}, httpx.IPKeyExtractor)(okHandler)

		for i := range 3 {
			require.Equal(t, http.StatusOK, serve(h, fromAddr("192.168.1.1:1")).Code, "request %d", i+1)
		}

		rec := serve(h, fromAddr("192.168.1.1:1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "20", rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		require.Contains(t, rec.Body.String(), "rate_limit_exceeded")

		// A refused request does not push the retry further out
		rec = serve(h, fromAddr("192.168.1.1:1"))
		require.Equal(t, "20", rec.Header().Get("Retry-After"))
	})

	t.Run("keys are tracked separately", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             1,
		})(okHandler)

		require.Equal(t, http.StatusOK, serve(h, fromAddr("192.168.1.1:1")).Code)
		require.Equal(t, http.StatusTooManyRequests, serve(h, fromAddr("192.168.1.1:1")).Code)
		require.Equal(t, http.StatusOK, serve(h, fromAddr("192.168.1.2:1")).Code)
	})

	t.Run("unattributed requests pass", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             1,
		}, func(*http.Request) string { return "" })(okHandler)

		for range 3 {
			require.Equal(t, http.StatusOK, serve(h, fromAddr("192.168.1.1:1")).Code)
		}
	})
}

func TestRateLimitByAccount(t *testing.T) {
	var seen []string
	h := httpx.RateLimitByAccount(httpx.RateLimitConfig{
		RequestsPerWindow: 2,
		Window:            time.Minute,
		Burst:             2,
	}, "email")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = append(seen, string(body))
		w.WriteHeader(http.StatusOK)
	}))

	login := func(addr, email string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(fmt.Sprintf(`{"email":%q,"password":"guess"}`, email)))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = addr
		return serve(h, req).Code
	}

	// Spreading attempts over addresses does not help
	require.Equal(t, http.StatusOK, login("198.51.100.1:1", "ada@example.com"))
	require.Equal(t, http.StatusOK, login("198.51.100.2:1", "ADA@example.com"))
	require.Equal(t, http.StatusTooManyRequests, login("198.51.100.3:1", "ada@example.com"))

	require.Equal(t, http.StatusOK, login("198.51.100.3:1", "grace@example.com"))

	// The handler still sees the whole body
	require.Len(t, seen, 3)
	require.Contains(t, seen[0], `"password":"guess"`)
}

func TestRateLimitProfiles(t *testing.T) {
	for name, config := range map[string]httpx.RateLimitConfig{
		"strict":   httpx.StrictLimit,
		"moderate": httpx.ModerateLimit,
		"lenient":  httpx.LenientLimit,
		"public":   httpx.PublicLimit,
	} {
		t.Run(name, func(t *testing.T) {
			require.Positive(t, config.RequestsPerWindow)
			require.Positive(t, config.Window)
			require.Positive(t, config.Burst)
		})
	}

	require.Less(t, httpx.StrictLimit.RequestsPerWindow, httpx.ModerateLimit.RequestsPerWindow)
	require.Less(t, httpx.ModerateLimit.RequestsPerWindow, httpx.LenientLimit.RequestsPerWindow)
	require.Less(t, httpx.LenientLimit.RequestsPerWindow, httpx.PublicLimit.RequestsPerWindow)
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10}

	tests := []struct {
		name string
		env  map[string]string
		want httpx.RateLimitConfig
	}{
		{"defaults", nil, def},
		{
			"all overridden",
			map[string]string{"REQUESTS": "200", "WINDOW_SEC": "30", "BURST": "250"},
			httpx.RateLimitConfig{RequestsPerWindow: 200, Window: 30 * time.Second, Burst: 250},
		},
		{
			"partial",
			map[string]string{"BURST": "100"},
			httpx.RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 100},
		},
		{"invalid", map[string]string{"REQUESTS": "invalid", "WINDOW_SEC": "-10", "BURST": "x"}, def},
		{"zero", map[string]string{"REQUESTS": "0", "WINDOW_SEC": "0", "BURST": "0"}, def},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv("RATELIMIT_TEST_"+k, v)
			}
			require.Equal(t, tt.want, httpx.ParseRateLimitFromEnv("TEST", def))
		})
	}
}

func BenchmarkRateLimitManyIPs(b *testing.B) {
	h := httpx.RateLimitByIP(httpx.RateLimitConfig{
		RequestsPerWindow: 1000000,
		Window:            time.Minute,
		Burst:             1000,
	})(okHandler)

	for i := 0; b.Loop(); i++ {
		serve(h, fromAddr(fmt.Sprintf("192.168.%d.%d:12345", i%255, (i/255)%255)))
	}
}

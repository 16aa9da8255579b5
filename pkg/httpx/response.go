package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WriteJSON writes a JSON response with the given status code. Responses
// are never cached: most of them carry tokens or account state.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	writeJSON(w, code, v)
}

// WriteCacheableJSON writes public metadata (discovery, JWKS) that relying
// parties may cache for maxAge.
func WriteCacheableJSON(w http.ResponseWriter, code int, v any, maxAge time.Duration) {
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	writeJSON(w, code, v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// RFC 6749 requires it on every response carrying tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// Found redirects the browser with a 302. Authorization redirects carry
// codes and states, so they are never cached either.
func Found(w http.ResponseWriter, r *http.Request, location string) {
	NoCache(w)
	http.Redirect(w, r, location, http.StatusFound)
}

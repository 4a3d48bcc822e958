package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/formsync/internal/serverdb"
)

func TestRateLimiterAllowDeny(t *testing.T) {
	rl := &RateLimiter{buckets: make(map[string]*bucket)}

	// Should allow up to the limit
	for i := 0; i < 5; i++ {
		if !rl.Allow("k1", 5) {
			t.Fatalf("expected allow on request %d", i+1)
		}
	}

	// Should deny at the limit
	if rl.Allow("k1", 5) {
		t.Fatal("expected deny after limit reached")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := &RateLimiter{buckets: make(map[string]*bucket)}

	// Exhaust the limit
	for i := 0; i < 3; i++ {
		rl.Allow("k1", 3)
	}
	if rl.Allow("k1", 3) {
		t.Fatal("expected deny after limit")
	}

	// Simulate window expiry by backdating the bucket
	rl.mu.Lock()
	rl.buckets["k1"].windowAt = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()

	// Should allow again after window reset
	if !rl.Allow("k1", 3) {
		t.Fatal("expected allow after window reset")
	}
}

func TestRateLimiterKeyIsolation(t *testing.T) {
	rl := &RateLimiter{buckets: make(map[string]*bucket)}

	// Exhaust key1
	for i := 0; i < 2; i++ {
		rl.Allow("key1", 2)
	}
	if rl.Allow("key1", 2) {
		t.Fatal("expected key1 denied")
	}

	// key2 should still be allowed
	if !rl.Allow("key2", 2) {
		t.Fatal("expected key2 allowed")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := &RateLimiter{buckets: make(map[string]*bucket)}

	rl.Allow("stale", 10)
	rl.Allow("fresh", 10)

	// Backdate the stale entry
	rl.mu.Lock()
	rl.buckets["stale"].windowAt = time.Now().Add(-5 * time.Minute)
	rl.mu.Unlock()

	rl.cleanup()

	rl.mu.Lock()
	_, hasStale := rl.buckets["stale"]
	_, hasFresh := rl.buckets["fresh"]
	rl.mu.Unlock()

	if hasStale {
		t.Fatal("expected stale entry to be cleaned up")
	}
	if !hasFresh {
		t.Fatal("expected fresh entry to remain")
	}
}

func testStore(t *testing.T) *serverdb.ServerDB {
	t.Helper()
	store, err := serverdb.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPublicRateLimitMiddleware(t *testing.T) {
	rl := &RateLimiter{buckets: make(map[string]*bucket)}
	store := testStore(t)
	const limit = 3

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := publicRateLimitMiddleware(rl, limit, store)(inner)

	send := func(method, ip, auth string) int {
		req := httptest.NewRequest(method, "/v1/forms/f_1/submissions", nil)
		req.RemoteAddr = ip + ":1234"
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < limit; i++ {
		if code := send("POST", "1.2.3.4", ""); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, code)
		}
	}
	if code := send("POST", "1.2.3.4", ""); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}

	// Reads, authenticated writes and other clients are not limited here
	if code := send("GET", "1.2.3.4", ""); code != http.StatusOK {
		t.Fatalf("GET: expected 200, got %d", code)
	}
	if code := send("POST", "1.2.3.4", "Bearer x"); code != http.StatusOK {
		t.Fatalf("authenticated POST: expected 200, got %d", code)
	}
	if code := send("POST", "10.0.0.2", ""); code != http.StatusOK {
		t.Fatalf("different IP: expected 200, got %d", code)
	}

	events, err := store.QueryRateLimitEvents("", "1.2.3.4", 10, "")
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events.Data) != 1 || events.Data[0].EndpointClass != serverdb.EndpointClassPublic {
		t.Fatalf("events = %+v", events.Data)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote, xff, want string
	}{
		{"1.2.3.4:5678", "", "1.2.3.4"},
		{"1.2.3.4:5678", "9.9.9.9", "9.9.9.9"},
		{"1.2.3.4:5678", "9.9.9.9, 10.0.0.1", "9.9.9.9"},
		{"no-port", "", "no-port"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = tt.remote
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		if got := clientIP(req); got != tt.want {
			t.Errorf("clientIP(%q, %q) = %q, want %q", tt.remote, tt.xff, got, tt.want)
		}
	}
}

func TestWithRateLimitIntegration(t *testing.T) {
	const limit = 5
	srv, store := newTestServerWithConfig(t, func(cfg *Config) {
		cfg.RateLimitOther = limit
	})
	_, token := createTestUser(t, store, "ratelimit@test.com")

	for i := 0; i < limit; i++ {
		w := doRequest(srv, "GET", "/v1/forms", token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("list %d: expected 200, got %d: %s", i+1, w.Code, w.Body.String())
		}
	}

	w := doRequest(srv, "POST", "/v1/forms", token, FormRequest{Title: "over", Fields: []FieldInput{{Type: "text"}}})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", w.Code, w.Body.String())
	}

	events, err := store.QueryRateLimitEvents("", "", 10, "")
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events.Data) != 1 || events.Data[0].EndpointClass != serverdb.EndpointClassOther || events.Data[0].KeyID == "" {
		t.Fatalf("events = %+v", events.Data)
	}
}

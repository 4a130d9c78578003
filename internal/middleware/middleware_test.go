package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coaching-schedule-api/internal/auth"
	"coaching-schedule-api/internal/logging"
	"coaching-schedule-api/internal/model"
)

const secret = "mw-secret"

func reject401(w http.ResponseWriter, _ *http.Request, msg string) {
	http.Error(w, msg, http.StatusUnauthorized)
}

func TestAuth(t *testing.T) {
	var got model.Actor
	h := Auth(secret, reject401)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ActorFromContext(r.Context())
	}))

	want := model.Actor{ProfileID: "coach-1", Role: model.RoleCoach, Name: "Dana"}
	tok, err := auth.MakeToken(want, secret, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"ok", "Bearer " + tok, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.code {
			t.Errorf("%s: got %d, want %d", tt.name, rec.Code, tt.code)
		}
	}
	if got != want {
		t.Errorf("actor in context: got %+v", got)
	}
}

func TestRateLimitMutationsOnly(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Close()
	h := RateLimit(rl, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	do := func(method string) int {
		req := httptest.NewRequest(method, "/appointments", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 5; i++ {
		if c := do(http.MethodGet); c != http.StatusOK {
			t.Fatalf("GET limited: %d", c)
		}
	}
	codes := []int{do(http.MethodPost), do(http.MethodPut), do(http.MethodDelete)}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("burst of 2 then 429, got %v", codes)
	}
}

func TestSweepDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Close()
	rl.get("a")
	rl.sweep(time.Now().Add(5*time.Minute), 3*time.Minute)
	if len(rl.clients) != 0 {
		t.Errorf("expected sweep to clear, have %d", len(rl.clients))
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("incoming id not propagated: ctx %q header %q", seen, rec.Header().Get(RequestIDHeader))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "abc-123" {
		t.Errorf("expected a fresh id, got %q", seen)
	}
}

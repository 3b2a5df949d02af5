package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/redis"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewFromRedis(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func loginRequest(email, ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"`+email+`","password":"secret"}`))
	req.RemoteAddr = ip + ":5678"
	return req
}

func TestRateLimitKeepsBodyForHandler(t *testing.T) {
	counter, _ := newTestRedis(t)
	policy := RatePolicy{Name: "login", Window: time.Minute, Limits: map[RateScope]int{ScopeEmail: 2}}
	handler := RateLimit(policy, counter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"password":"secret"`) {
			t.Fatalf("body not restored: %s", body)
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("tester@example.com", "1.2.3.4"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRateLimitEmailIsCaseInsensitiveAndHashed(t *testing.T) {
	counter, mr := newTestRedis(t)
	policy := RatePolicy{Name: "login", Window: time.Minute, Limits: map[RateScope]int{ScopeEmail: 2}}
	handler := RateLimit(policy, counter, nil)(okHandler())

	emails := []string{"Blocked@Example.com", "blocked@example.com", " BLOCKED@example.com"}
	var rec *httptest.ResponseRecorder
	for i, email := range emails {
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest(email, "10.0.0."+string(rune('1'+i))))
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third attempt, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
		t.Fatalf("unexpected code: %s", payload.Error.Code)
	}
	for _, key := range mr.Keys() {
		if strings.Contains(key, "example.com") {
			t.Fatalf("raw email leaked into key %q", key)
		}
	}
}

func TestRateLimitIPWindowExpires(t *testing.T) {
	counter, mr := newTestRedis(t)
	policy := RatePolicy{Name: "guest_account", Window: time.Minute, Limits: map[RateScope]int{ScopeIP: 1}}
	handler := RateLimit(policy, counter, nil)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("a@example.com", "5.6.7.8"))
		codes = append(codes, rec.Code)
	}
	mr.FastForward(2 * time.Minute)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("a@example.com", "5.6.7.8"))
	codes = append(codes, rec.Code)

	want := []int{http.StatusOK, http.StatusTooManyRequests, http.StatusOK}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("attempt %d: expected %d got %d", i, want[i], codes[i])
		}
	}
}

func TestRateLimitGuestScopeSkipsSignedInUsers(t *testing.T) {
	counter, _ := newTestRedis(t)
	policy := RatePolicy{Name: "intent", Window: time.Minute, Limits: map[RateScope]int{ScopeGuest: 1}}
	handler := RateLimit(policy, counter, nil)(okHandler())

	send := func(p types.Principal) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/create-payment-intent", nil)
		req = req.WithContext(WithPrincipal(req.Context(), p))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	guest := types.Principal{GuestID: "device-1"}
	if send(guest) != http.StatusOK || send(guest) != http.StatusTooManyRequests {
		t.Fatal("expected guest device to be limited on the second intent")
	}
	if code := send(types.Principal{GuestID: "device-2"}); code != http.StatusOK {
		t.Fatalf("expected other device to pass, got %d", code)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	handler := RateLimit(RatePolicy{Name: "off", Window: time.Minute}, nil, nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("a@example.com", "1.1.1.1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

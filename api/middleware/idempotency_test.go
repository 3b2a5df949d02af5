package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

func guestPost(url, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req.WithContext(WithPrincipal(req.Context(), types.Principal{GuestID: "device-1"}))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"create intent", http.MethodPost, "/api/v1/create-payment-intent", time.Hour, true},
		{"session intent", http.MethodPost, "/api/v1/checkout/sessions/abc/intent", time.Hour, true},
		{"confirm", http.MethodPost, "/api/v1/confirm-payment", criticalIdempotencyTTL, true},
		{"session pay", http.MethodPost, "/api/v1/checkout/sessions/abc/pay", criticalIdempotencyTTL, true},
		{"session confirm trailing slash", http.MethodPost, "/api/v1/checkout/sessions/abc/confirm/", criticalIdempotencyTTL, true},
		{"nested id is not a session", http.MethodPost, "/api/v1/checkout/sessions/a/b/pay", 0, false},
		{"shipping step", http.MethodPost, "/api/v1/checkout/sessions/abc/shipping", 0, false},
		{"wrong method", http.MethodGet, "/api/v1/confirm-payment", 0, false},
		{"login", http.MethodPost, "/api/v1/auth/login", 0, false},
	}
	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.path, time.Hour)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	store, _ := newTestRedis(t)
	called := false
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, guestPost("/api/v1/confirm-payment", "", `{"paymentIntentId":"pi_1"}`))
	if rec.Code != http.StatusBadRequest || called {
		t.Fatalf("expected 400 without running handler, got %d called=%v", rec.Code, called)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, guestPost("/api/v1/confirm-payment", strings.Repeat("k", 256), `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected oversized key to be rejected, got %d", rec.Code)
	}
}

func TestIdempotencyReplaysRecordedResponse(t *testing.T) {
	store, mr := newTestRedis(t)
	calls := 0
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"order_id":"o1"}}`))
	}))

	const url = "/api/v1/checkout/sessions/s1/pay"
	first := httptest.NewRecorder()
	handler.ServeHTTP(first, guestPost(url, "abc", `{"kind":"card","id":"pm_1"}`))
	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, guestPost(url, "abc", `{"kind":"card","id":"pm_1"}`))

	if first.Code != http.StatusCreated || replay.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, replay.Code)
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	if replay.Body.String() != `{"data":{"order_id":"o1"}}` || replay.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected replay: %q %q", replay.Body.String(), replay.Header().Get("Content-Type"))
	}
	if replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replay marker header")
	}
	if ttl := mr.TTL(store.IdempotencyKey("guest:device-1", "abc")); ttl != criticalIdempotencyTTL {
		t.Fatalf("expected critical ttl, got %v", ttl)
	}
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store, _ := newTestRedis(t)
	var inner *httptest.ResponseRecorder
	var handler http.Handler
	handler = Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inner == nil {
			inner = httptest.NewRecorder()
			handler.ServeHTTP(inner, guestPost("/api/v1/confirm-payment", "dup", `{"paymentIntentId":"pi_1"}`))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	outer := httptest.NewRecorder()
	handler.ServeHTTP(outer, guestPost("/api/v1/confirm-payment", "dup", `{"paymentIntentId":"pi_1"}`))
	if outer.Code != http.StatusCreated {
		t.Fatalf("expected first request to finish, got %d", outer.Code)
	}
	if inner.Code != http.StatusConflict || errorCode(t, inner) != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected in-flight duplicate to get 409 CONFLICT, got %d %s", inner.Code, inner.Body.String())
	}
}

func TestIdempotencyScopesByPrincipal(t *testing.T) {
	store, _ := newTestRedis(t)
	calls := 0
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	handler.ServeHTTP(httptest.NewRecorder(), guestPost("/api/v1/create-payment-intent", "same", `{}`))

	userID := uuid.New()
	second := guestPost("/api/v1/create-payment-intent", "same", `{}`)
	second = second.WithContext(WithPrincipal(second.Context(), types.Principal{UserID: &userID}))
	handler.ServeHTTP(httptest.NewRecorder(), second)

	if calls != 2 {
		t.Fatalf("expected a different principal to run the handler, calls=%d", calls)
	}
}

func TestIdempotencyReleasesKeyAfterTransientFailure(t *testing.T) {
	store, mr := newTestRedis(t)
	statuses := []int{http.StatusServiceUnavailable, http.StatusConflict, http.StatusCreated}
	calls := 0
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statuses[calls])
		calls++
	}))

	for range statuses {
		handler.ServeHTTP(httptest.NewRecorder(), guestPost("/api/v1/confirm-payment", "retry-me", `{"paymentIntentId":"pi_1"}`))
	}
	if calls != 3 {
		t.Fatalf("expected every attempt to reach the handler, calls=%d", calls)
	}
	if keys := mr.Keys(); len(keys) != 1 {
		t.Fatalf("expected only the successful response to be stored, got %v", keys)
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	store, _ := newTestRedis(t)
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), guestPost("/api/v1/confirm-payment", "xyz", `{"paymentIntentId":"pi_1"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, guestPost("/api/v1/confirm-payment", "xyz", `{"paymentIntentId":"pi_2"}`))

	if rec.Code != http.StatusConflict || errorCode(t, rec) != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected 409 %s, got %d %s", pkgerrors.CodeIdempotency, rec.Code, rec.Body.String())
	}
}

func TestIdempotencyIgnoresOtherRoutes(t *testing.T) {
	store, mr := newTestRedis(t)
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, guestPost("/api/v1/cart/items", "", `{}`))
	if rec.Code != http.StatusNoContent || len(mr.Keys()) != 0 {
		t.Fatalf("expected pass-through with nothing stored, got %d keys=%v", rec.Code, mr.Keys())
	}
}

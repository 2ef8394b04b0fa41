package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeRateStore struct {
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: make(map[string]int64)}
}

func (f *fakeRateStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRateStore) RateLimitKey(scope string) string {
	return "rl:" + scope
}

func mutationRequest(method, user string) *http.Request {
	req := httptest.NewRequest(method, "/api/admin/v1/payouts/batches", nil)
	if user != "" {
		req = req.WithContext(WithUserID(req.Context(), user))
	}
	return req
}

func TestMutationRateLimitBlocksOverLimit(t *testing.T) {
	store := newFakeRateStore()
	handler := MutationRateLimit(NewRateLimitPolicy("batches", time.Minute, 2), store, nil)(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, mutationRequest(http.MethodPost, "u1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, mutationRequest(http.MethodPost, "u1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
	}

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, mutationRequest(http.MethodPost, "u2"))
	if other.Code != http.StatusOK {
		t.Fatalf("other users keep their own window, got %d", other.Code)
	}
	if store.counts["rl:batches:u1"] != 3 {
		t.Fatalf("unexpected counter state %+v", store.counts)
	}
}

func TestMutationRateLimitSkipsReads(t *testing.T) {
	store := newFakeRateStore()
	handler := MutationRateLimit(NewRateLimitPolicy("", time.Minute, 1), store, nil)(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, mutationRequest(http.MethodGet, "u1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("reads must not be limited, got %d", rec.Code)
		}
	}
	if len(store.counts) != 0 {
		t.Fatalf("reads should not touch counters")
	}
}

func TestMutationRateLimitStoreFailure(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("redis down")
	handler := MutationRateLimit(NewRateLimitPolicy("batches", time.Minute, 5), store, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, mutationRequest(http.MethodDelete, "u1"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestMutationRateLimitDisabledPolicy(t *testing.T) {
	store := newFakeRateStore()
	handler := MutationRateLimit(NewRateLimitPolicy("batches", 0, 0), store, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, mutationRequest(http.MethodPost, "u1"))
	if rec.Code != http.StatusOK || len(store.counts) != 0 {
		t.Fatalf("disabled policy should pass through")
	}
}

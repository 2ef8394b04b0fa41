package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendor-payouts/internal/payouts"
	pkgAuth "github.com/angelmondragon/vendor-payouts/pkg/auth"
	"github.com/angelmondragon/vendor-payouts/pkg/config"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubPayouts struct {
	payouts.Service
	balanceCalls int
}

func (s *stubPayouts) ListVendorBalances(ctx context.Context) ([]payouts.VendorBalance, error) {
	s.balanceCalls++
	return []payouts.VendorBalance{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev", Port: "8080"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "payouts", ExpirationMinutes: 30},
		API: config.APIConfig{MutationRateLimit: 30, MutationRateWindow: time.Minute},
	}
}

func bearer(t *testing.T, cfg *config.Config, role enums.Role) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthRoutes(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(cfg, logger.Nop(), stubPinger{}, nil, &stubPayouts{})

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, rec.Code)
		}
		if rec.Header().Get("X-Request-Id") == "" {
			t.Fatalf("%s: expected request id header", path)
		}
	}
}

func TestReadyReportsDatabaseFailure(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(cfg, logger.Nop(), stubPinger{err: errors.New("conn refused")}, nil, &stubPayouts{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "database") {
		t.Fatalf("expected dependency name in body: %s", rec.Body.String())
	}
}

func TestPayoutRoutesRequireAuth(t *testing.T) {
	cfg := testConfig()
	svc := &stubPayouts{}
	router := NewRouter(cfg, logger.Nop(), stubPinger{}, nil, svc)

	cases := []struct {
		name   string
		auth   string
		status int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"vendor", bearer(t, cfg, enums.RoleVendor), http.StatusForbidden},
		{"finance", bearer(t, cfg, enums.RoleFinance), http.StatusOK},
		{"admin", bearer(t, cfg, enums.RoleAdmin), http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/payouts/balances", nil)
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.status, rec.Code)
		}
	}
	if svc.balanceCalls != 2 {
		t.Fatalf("expected two authorized calls, got %d", svc.balanceCalls)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(cfg, logger.Nop(), stubPinger{}, nil, &stubPayouts{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/payouts/nope", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.RoleAdmin))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
	"github.com/wolfman30/creditsales-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/creditsales-ai-platform/internal/http/middleware"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

const testSecret = "router-secret"

type stubChannel struct{ posts int }

func (s *stubChannel) HandleVerification(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *stubChannel) HandleWebhook(w http.ResponseWriter, _ *http.Request) {
	s.posts++
	w.WriteHeader(http.StatusOK)
}

func newTestRouter(t *testing.T, checks map[string]HealthCheck) (http.Handler, *stubChannel, *eligibility.HealthTracker) {
	t.Helper()
	health := eligibility.NewHealthTracker()
	channel := &stubChannel{}
	admin := handlers.NewAdminHandler(handlers.AdminConfig{
		Health:    health,
		Providers: []string{"fnb", "gaso"},
		Logger:    logging.Nop(),
	})
	return New(&Config{
		Logger:          logging.Nop(),
		WhatsApp:        channel,
		Admin:           admin,
		AdminAuthSecret: testSecret,
		MetricsHandler:  promhttp.Handler(),
		HealthChecks:    checks,
	}), channel, health
}

func token(t *testing.T, role string) string {
	t.Helper()
	claims := httpmiddleware.AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got %q", resp.Status)
	}
}

func TestRouterHealthReportsFailingDependency(t *testing.T) {
	router, _, _ := newTestRouter(t, map[string]HealthCheck{
		"redis":    func(context.Context) error { return errors.New("connection refused") },
		"postgres": func(context.Context) error { return nil },
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Checks["redis"] != "connection refused" || resp.Checks["postgres"] != "ok" {
		t.Fatalf("unexpected checks %v", resp.Checks)
	}
}

func TestRouterWebhookRoutes(t *testing.T) {
	router, channel, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", nil))
	if rr.Code != http.StatusOK || channel.posts != 1 {
		t.Fatalf("expected webhook to reach channel, got %d posts=%d", rr.Code, channel.posts)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rr.Code)
	}
}

func TestRouterAdminRequiresToken(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/providers", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/providers", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "operator"))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected operator to read providers, got %d", rr.Code)
	}
}

func TestRouterForceDownIsAdminOnly(t *testing.T) {
	router, _, health := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/providers/fnb/force-down", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "operator"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected operator to be forbidden, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/providers/fnb/force-down", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "admin"))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected admin force-down, got %d", rr.Code)
	}
	if ok, _ := health.Available("fnb"); ok {
		t.Fatal("expected fnb to be forced down")
	}
}

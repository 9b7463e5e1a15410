package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hillcrest/hms/internal/config"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/internal/platform/blobstore"
	"github.com/hillcrest/hms/internal/platform/events"
	"github.com/hillcrest/hms/internal/platform/metrics"
)

type testServer struct {
	e           *echo.Echo
	tokens      *auth.TokenIssuer
	revocations *auth.MemoryRevocationStore
}

// newTestServer wires every handler without a database. Requests that pass
// authentication and role checks would reach the nil pool, so tests only
// exercise the routing and auth boundary.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Env:                    "test",
		LogLevel:               "error",
		CORSOrigins:            []string{"http://localhost:3000"},
		MaxUploadMB:            1,
		RateLimitRPS:           1000,
		RateLimitBurst:         1000,
		DefaultConsultationFee: 300,
	}
	logger := zerolog.Nop()
	tokens := auth.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "hms-test", time.Hour, 24*time.Hour)
	revocations := auth.NewMemoryRevocationStore(time.Minute)
	t.Cleanup(revocations.Close)

	m := metrics.New()
	e, api := newRouter(cfg, logger, m, tokens, revocations)
	svcs := newServices(nil, blobstore.NewMemoryStore(1<<20), tokens, revocations,
		events.NewMemoryPublisher(), m, cfg, logger)
	svcs.register(api)
	return &testServer{e: e, tokens: tokens, revocations: revocations}
}

func (s *testServer) token(t *testing.T, role auth.Role) string {
	t.Helper()
	pair, err := s.tokens.Issue(auth.Principal{ID: uuid.New(), Username: strings.ToLower(string(role)), Role: role})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return pair.Access
}

func (s *testServer) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PublicEndpoints(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/", "/health", "/metrics"} {
		if rec := s.do(http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}

	rec := s.do(http.MethodGet, "/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestRouter_RefreshIsPublic(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/token/refresh", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing refresh token, got %d", rec.Code)
	}
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newTestServer(t)
	paths := []string{
		"/api/me",
		"/api/admin/employees",
		"/api/receptionist/patients",
		"/api/receptionist/appointments",
		"/api/doctor/appointments",
		"/api/doctor/consultations",
		"/api/lab/pending",
		"/api/pharmacy/medicines",
		"/api/pharmacy/sales",
		"/api/admin/bills",
	}
	for _, path := range paths {
		if rec := s.do(http.MethodGet, path, ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestRouter_RoleBoundaries(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		method string
		path   string
		role   auth.Role
	}{
		{http.MethodGet, "/api/admin/employees", auth.RoleReceptionist},
		{http.MethodGet, "/api/admin/bills/export", auth.RoleDoctor},
		{http.MethodGet, "/api/admin/patient-history", auth.RoleReceptionist},
		{http.MethodGet, "/api/receptionist/patients", auth.RoleDoctor},
		{http.MethodPost, "/api/receptionist/appointments", auth.RoleAdmin},
		{http.MethodGet, "/api/receptionist/vitals", auth.RoleAdmin},
		{http.MethodGet, "/api/doctor/consultations", auth.RoleReceptionist},
		{http.MethodGet, "/api/doctor/lab-results", auth.RoleLabTechnician},
		{http.MethodGet, "/api/lab/pending", auth.RoleDoctor},
		{http.MethodPost, "/api/pharmacy/sales/create", auth.RoleDoctor},
		{http.MethodPost, "/api/pharmacy/medicines", auth.RoleAdmin},
		{http.MethodGet, "/api/lab/results/" + uuid.NewString() + "/file", auth.RolePharmacist},
	}
	for _, tt := range tests {
		rec := s.do(tt.method, tt.path, s.token(t, tt.role))
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s as %s: expected 403, got %d", tt.method, tt.path, tt.role, rec.Code)
		}
	}
}

func TestRouter_LogoutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, auth.RoleDoctor)

	if rec := s.do(http.MethodPost, "/api/logout", token); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if s.revocations.Count() != 1 {
		t.Fatalf("expected 1 revocation, got %d", s.revocations.Count())
	}
	if rec := s.do(http.MethodGet, "/api/doctor/appointments", token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: expected 401, got %d", rec.Code)
	}
}

func TestRouter_RegistersWorkflowRoutes(t *testing.T) {
	s := newTestServer(t)
	registered := map[string]bool{}
	for _, r := range s.e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	want := []string{
		"POST /api/login",
		"POST /api/admin/employees",
		"POST /api/receptionist/patients",
		"POST /api/receptionist/appointments",
		"POST /api/receptionist/bills",
		"POST /api/doctor/consultations",
		"POST /api/doctor/lab-requests",
		"POST /api/lab/process",
		"GET /api/lab/results/:id/file",
		"POST /api/pharmacy/sales/create",
		"GET /api/admin/bills/export",
	}
	for _, w := range want {
		if !registered[w] {
			t.Errorf("route %q not registered", w)
		}
	}
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		logger := newLogger(&config.Config{Env: "production", LogLevel: tt.in})
		if got := logger.GetLevel(); got != tt.want {
			t.Errorf("LOG_LEVEL=%q: expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestMigrateFlags_DefaultToConfig(t *testing.T) {
	cfg := &config.Config{DBSchema: "hms", MigrationsDir: "./migrations"}

	cmd := &cobra.Command{}
	cmd.Flags().String("schema", "", "")
	cmd.Flags().String("dir", "", "")
	schema, dir := migrateFlags(cmd, cfg)
	if schema != "hms" || dir != "./migrations" {
		t.Errorf("expected config defaults, got %q %q", schema, dir)
	}

	_ = cmd.Flags().Set("schema", "staging")
	_ = cmd.Flags().Set("dir", "/srv/migrations")
	schema, dir = migrateFlags(cmd, cfg)
	if schema != "staging" || dir != "/srv/migrations" {
		t.Errorf("expected flag values, got %q %q", schema, dir)
	}
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hillcrest/hms/internal/platform/auth"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func newAuditContext(method, target, route string, role auth.Role, userID string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	if role != "" {
		ctx := context.WithValue(req.Context(), auth.UserIDKey, userID)
		ctx = context.WithValue(ctx, auth.UserRoleKey, role)
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(route)
	c.Set("request_id", "req-1")
	return c, rec
}

func TestAudit_DoctorReadsPatientHistory(t *testing.T) {
	rec := &mockRecorder{}
	pid := uuid.NewString()
	c, _ := newAuditContext(http.MethodGet, "/api/doctor/patients/"+pid+"/history", "/api/doctor/patients/:id/history", auth.RoleDoctor, "doc-uuid")
	c.SetParamNames("id")
	c.SetParamValues(pid)

	if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", rec.count())
	}
	got := rec.entries[0]
	if got.Area != "doctor" || got.Resource != "patients" {
		t.Errorf("unexpected area/resource %q/%q", got.Area, got.Resource)
	}
	if got.PatientID != pid {
		t.Errorf("expected patient %s, got %s", pid, got.PatientID)
	}
	if got.Role != "DOCTOR" || got.UserID != "doc-uuid" {
		t.Errorf("unexpected caller %s/%s", got.Role, got.UserID)
	}
	if got.Action != "read" || got.StatusCode != http.StatusOK || got.RequestID != "req-1" {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestAudit_PatientIDFromQuery(t *testing.T) {
	rec := &mockRecorder{}
	pid := uuid.NewString()
	c, _ := newAuditContext(http.MethodPost, "/api/receptionist/vitals?patient_id="+pid, "/api/receptionist/vitals", auth.RoleReceptionist, "r-1")

	_ = Audit(zerolog.New(os.Stderr), rec)(okHandler)(c)
	if rec.entries[0].PatientID != pid || rec.entries[0].Action != "create" {
		t.Errorf("unexpected entry %+v", rec.entries[0])
	}
}

func TestAudit_ErrorStatus(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newAuditContext(http.MethodPatch, "/api/doctor/appointments/1", "/api/doctor/appointments/:id", auth.RoleDoctor, "d")

	err := Audit(zerolog.New(os.Stderr), rec)(func(echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "nope")
	})(c)
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if rec.entries[0].StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 recorded, got %d", rec.entries[0].StatusCode)
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newAuditContext(http.MethodGet, "/health", "/health", "", "")
	_ = Audit(zerolog.New(os.Stderr), rec)(okHandler)(c)
	if rec.count() != 0 {
		t.Errorf("expected no entries for /health, got %d", rec.count())
	}
}

func TestAudit_RecorderFailureDoesNotFailRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("stream down")}
	c, _ := newAuditContext(http.MethodGet, "/api/me", "/api/me", auth.RoleAdmin, "a")
	if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
		t.Fatalf("recorder failure leaked: %v", err)
	}
}

func TestAudit_NilRecorder(t *testing.T) {
	c, _ := newAuditContext(http.MethodGet, "/api/me", "/api/me", auth.RoleAdmin, "a")
	if err := Audit(zerolog.New(os.Stderr), nil)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSplitRoute(t *testing.T) {
	tests := []struct {
		path, area, resource string
	}{
		{"/api/login", "", "login"},
		{"/api/admin/employees/5", "admin", "employees"},
		{"/api/pharmacy/sales/create", "pharmacy", "sales"},
		{"/api/", "", "unknown"},
	}
	for _, tt := range tests {
		area, res := splitRoute(tt.path)
		if area != tt.area || res != tt.resource {
			t.Errorf("splitRoute(%q) = %q,%q want %q,%q", tt.path, area, res, tt.area, tt.resource)
		}
	}
}

func TestHTTPMethodToAction(t *testing.T) {
	for method, want := range map[string]string{
		http.MethodGet:    "read",
		http.MethodPost:   "create",
		http.MethodPatch:  "update",
		http.MethodPut:    "update",
		http.MethodDelete: "delete",
	} {
		if got := httpMethodToAction(method); got != want {
			t.Errorf("%s: got %s want %s", method, got, want)
		}
	}
}

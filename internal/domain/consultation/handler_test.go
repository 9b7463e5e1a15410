package consultation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hillcrest/hms/internal/domain/scheduling"
	"github.com/hillcrest/hms/internal/platform/auth"
)

func newTestServer() (*fixture, *echo.Echo) {
	f := newFixture()
	e := echo.New()
	NewHandler(f.svc).RegisterRoutes(e.Group("/api"))
	return f, e
}

func as(p auth.Principal, req *http.Request) *http.Request {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: p.ID.String(), ID: uuid.NewString()},
		Username:         p.Username,
		Role:             p.Role,
		TokenType:        auth.TokenTypeAccess,
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func jsonReq(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_CreateConsultation(t *testing.T) {
	f, e := newTestServer()
	body := `{"diagnosis":"Viral fever","refer_to_lab":true,"test_type":"CBC",
		"prescriptions":[{"medicine_name":"Paracetamol","quantity":10,"dosage":"500 mg"}]}`

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, as(f.doctor, jsonReq(http.MethodPost, "/api/doctor/consultations?appointment_id="+f.appt.ID.String(), body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var c Consultation
	_ = json.Unmarshal(rec.Body.Bytes(), &c)
	if c.Diagnosis != "Viral fever" || len(c.Prescriptions) != 1 || c.Prescriptions[0].Quantity != 10 {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if f.appts.store[f.appt.ID].Status != scheduling.StatusCompleted {
		t.Error("expected appointment completed")
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, as(f.doctor, jsonReq(http.MethodPost, "/api/doctor/consultations?appointment_id="+f.appt.ID.String(), `{}`)))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "consultation already exists") {
		t.Errorf("expected 400 already exists, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_CreateErrors(t *testing.T) {
	f, e := newTestServer()
	other := auth.Principal{ID: uuid.New(), Role: auth.RoleDoctor}

	tests := []struct {
		name string
		p    auth.Principal
		path string
		want int
	}{
		{"missing appointment_id", f.doctor, "/api/doctor/consultations", http.StatusBadRequest},
		{"invalid appointment_id", f.doctor, "/api/doctor/consultations?appointment_id=x", http.StatusBadRequest},
		{"other doctor", other, "/api/doctor/consultations?appointment_id=" + f.appt.ID.String(), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, as(tt.p, jsonReq(http.MethodPost, tt.path, `{}`)))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_PatchKeepsPrescriptions(t *testing.T) {
	f, e := newTestServer()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, as(f.doctor, jsonReq(http.MethodPost, "/api/doctor/consultations?appointment_id="+f.appt.ID.String(),
		`{"prescriptions":[{"medicine_name":"ORS"}]}`)))
	var c Consultation
	_ = json.Unmarshal(rec.Body.Bytes(), &c)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, as(f.doctor, jsonReq(http.MethodPatch, "/api/doctor/consultations/"+c.ID.String(), `{"clinical_notes":"better"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var got Consultation
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ClinicalNotes != "better" || len(got.Prescriptions) != 1 {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_RoleGates(t *testing.T) {
	f, e := newTestServer()

	tests := []struct {
		name string
		p    auth.Principal
		path string
		want int
	}{
		{"doctor consultations", f.doctor, "/api/doctor/consultations", http.StatusOK},
		{"doctor patients", f.doctor, "/api/doctor/patients", http.StatusOK},
		{"doctor history", f.doctor, "/api/doctor/patients/" + f.patient.ID.String() + "/history", http.StatusOK},
		{"receptionist consultations", auth.Principal{ID: uuid.New(), Role: auth.RoleReceptionist}, "/api/doctor/consultations", http.StatusForbidden},
		{"pharmacist history", auth.Principal{ID: uuid.New(), Role: auth.RolePharmacist}, "/api/doctor/patients/" + f.patient.ID.String() + "/history", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, as(tt.p, httptest.NewRequest(http.MethodGet, tt.path, nil)))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hillcrest/hms/internal/platform/auth"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func as(p auth.Principal, req *http.Request) *http.Request {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: p.ID.String(), ID: uuid.NewString()},
		Role:             p.Role,
		TokenType:        auth.TokenTypeAccess,
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func jsonReq(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_CreateAppointment(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"patient_id":"` + f.patient.String() + `","doctor_id":"` + f.doctor.String() +
		`","department_id":"` + f.dept.String() + `"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(as(desk, jsonReq(http.MethodPost, body)), rec)

	if err := h.CreateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var a Appointment
	_ = json.Unmarshal(rec.Body.Bytes(), &a)
	if a.TokenNumber != "T001" || a.Status != StatusPending {
		t.Errorf("unexpected appointment %+v", a)
	}
}

func TestHandler_CreateAppointment_UnknownDoctor(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"patient_id":"` + f.patient.String() + `","doctor_id":"` + uuid.NewString() +
		`","department_id":"` + f.dept.String() + `"}`
	c := e.NewContext(as(desk, jsonReq(http.MethodPost, body)), httptest.NewRecorder())

	err := h.CreateAppointment(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_DoctorQueue(t *testing.T) {
	h, f, e := newTestHandler()
	f.book(t, f.doctor)
	f.book(t, f.doctor)

	rec := httptest.NewRecorder()
	doctor := auth.Principal{ID: f.doctor, Role: auth.RoleDoctor}
	c := e.NewContext(as(doctor, httptest.NewRequest(http.MethodGet, "/", nil)), rec)
	if err := h.DoctorQueue(c); err != nil {
		t.Fatal(err)
	}
	var q struct {
		Current  *Appointment   `json:"current"`
		Upcoming []*Appointment `json:"upcoming"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
		t.Fatal(err)
	}
	if q.Current == nil || q.Current.TokenNumber != "T001" || len(q.Upcoming) != 1 {
		t.Errorf("unexpected queue %s", rec.Body.String())
	}
}

func TestHandler_DoctorUpdateStatus_IgnoresOtherFields(t *testing.T) {
	h, f, e := newTestHandler()
	a := f.book(t, f.doctor)
	other := uuid.NewString()

	rec := httptest.NewRecorder()
	doctor := auth.Principal{ID: f.doctor, Role: auth.RoleDoctor}
	c := e.NewContext(as(doctor, jsonReq(http.MethodPatch, `{"status":"IN_PROGRESS","doctor_id":"`+other+`","token_number":"T999"}`)), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.DoctorUpdateStatus(c); err != nil {
		t.Fatal(err)
	}
	stored := f.repo.store[a.ID]
	if stored.Status != StatusInProgress || stored.DoctorID != f.doctor || stored.TokenNumber != "T001" {
		t.Errorf("only status may change, got %+v", stored)
	}
}

func TestHandler_DoctorGetAppointment_OtherDoctor(t *testing.T) {
	h, f, e := newTestHandler()
	a := f.book(t, f.doctor)

	stranger := auth.Principal{ID: uuid.New(), Role: auth.RoleDoctor}
	c := e.NewContext(as(stranger, httptest.NewRequest(http.MethodGet, "/", nil)), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	err := h.DoctorGetAppointment(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	if he.Message != "appointment not found or not assigned to you" {
		t.Errorf("unexpected message %v", he.Message)
	}
}

func TestHandler_ListAppointments_BadStatus(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(as(desk, httptest.NewRequest(http.MethodGet, "/?status=LATE", nil)), httptest.NewRecorder())
	err := h.ListAppointments(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_RoleGates(t *testing.T) {
	h, f, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api"))

	tests := []struct {
		name string
		p    auth.Principal
		path string
		want int
	}{
		{"doctor on desk routes", auth.Principal{ID: f.doctor, Role: auth.RoleDoctor}, "/api/receptionist/appointments", http.StatusForbidden},
		{"admin on desk routes", auth.Principal{ID: uuid.New(), Role: auth.RoleAdmin}, "/api/receptionist/appointments", http.StatusForbidden},
		{"receptionist on desk routes", desk, "/api/receptionist/appointments", http.StatusOK},
		{"receptionist on doctor queue", desk, "/api/doctor/appointments", http.StatusForbidden},
		{"doctor queue", auth.Principal{ID: f.doctor, Role: auth.RoleDoctor}, "/api/doctor/appointments", http.StatusOK},
		{"admin patient history", auth.Principal{ID: uuid.New(), Role: auth.RoleAdmin}, "/api/admin/patient-history", http.StatusOK},
		{"receptionist patient history", desk, "/api/admin/patient-history", http.StatusForbidden},
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

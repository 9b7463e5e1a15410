package billing

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

func newTestHandler() (*Handler, *billingFixture, *echo.Echo) {
	f := newBillingFixture()
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

func TestHandler_CreateConsultationBill(t *testing.T) {
	tests := []struct {
		name string
		fee  string
		want float64
	}{
		{"missing fee", ``, 300},
		{"empty string fee", `,"consultation_fee":""`, 300},
		{"zero fee", `,"consultation_fee":0`, 300},
		{"string fee", `,"consultation_fee":"650"`, 650},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, f, e := newTestHandler()
			body := `{"appointment_id":"` + f.appt.ID.String() + `"` + tt.fee + `}`
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(as(cashier, req), rec)

			if err := h.CreateConsultationBill(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var b ConsultationBill
			_ = json.Unmarshal(rec.Body.Bytes(), &b)
			if rec.Code != http.StatusCreated || b.ConsultationFee != tt.want {
				t.Errorf("expected 201 with fee %v, got %d %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_CreateConsultationBill_BadFee(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"appointment_id":"` + f.appt.ID.String() + `","consultation_fee":"free"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(as(cashier, req), httptest.NewRecorder())

	err := h.CreateConsultationBill(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ExportLedger(t *testing.T) {
	h, f, e := newTestHandler()
	f.ledger.entries = []*LedgerEntry{{ID: uuid.New(), Source: SourceLab, Amount: 350}}
	admin := auth.Principal{ID: uuid.New(), Role: auth.RoleAdmin}
	rec := httptest.NewRecorder()
	c := e.NewContext(as(admin, httptest.NewRequest(http.MethodGet, "/", nil)), rec)

	if err := h.ExportLedger(c); err != nil {
		t.Fatal(err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != xlsxMIME {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentDisposition), "attachment;") {
		t.Error("expected attachment disposition")
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("expected a zip container")
	}
}

func TestHandler_RoleGates(t *testing.T) {
	h, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api"))

	tests := []struct {
		name string
		role auth.Role
		path string
		want int
	}{
		{"receptionist ledger", auth.RoleReceptionist, "/api/admin/bills", http.StatusForbidden},
		{"admin ledger", auth.RoleAdmin, "/api/admin/bills", http.StatusOK},
		{"admin desk bills", auth.RoleAdmin, "/api/receptionist/bills", http.StatusOK},
		{"pharmacist desk bills", auth.RolePharmacist, "/api/receptionist/bills", http.StatusForbidden},
		{"doctor export", auth.RoleDoctor, "/api/admin/bills/export", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			p := auth.Principal{ID: uuid.New(), Role: tt.role}
			e.ServeHTTP(rec, as(p, httptest.NewRequest(http.MethodGet, tt.path, nil)))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

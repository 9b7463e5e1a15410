package pharmacy

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

func TestHandler_CreateSale(t *testing.T) {
	f, e := newTestServer()
	body := `{"consultation_id":"` + f.consultation.ID.String() + `","items":[{"medicine_id":"` +
		f.paracetamol.ID.String() + `","quantity":4}]}`

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, as(pharmacist, jsonReq(http.MethodPost, "/api/pharmacy/sales/create", body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var sale Sale
	_ = json.Unmarshal(rec.Body.Bytes(), &sale)
	if sale.TotalAmount != 10 || sale.Status != SaleDispensed {
		t.Errorf("unexpected sale %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, as(pharmacist, jsonReq(http.MethodPost, "/api/pharmacy/sales/create", body)))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "already dispensed") {
		t.Errorf("expected 400 already dispensed, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_OverStock(t *testing.T) {
	f, e := newTestServer()
	body := `{"consultation_id":"` + f.consultation.ID.String() + `","items":[{"medicine_id":"` +
		f.ors.ID.String() + `","quantity":99}]}`

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, as(pharmacist, jsonReq(http.MethodPost, "/api/pharmacy/sales/create", body)))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "not enough stock for ORS. available: 5") {
		t.Errorf("expected 400 stock message, got %d %s", rec.Code, rec.Body.String())
	}
	if f.stock(f.ors.ID) != 5 {
		t.Errorf("stock changed to %d", f.stock(f.ors.ID))
	}
}

func TestHandler_MedicineSearch(t *testing.T) {
	_, e := newTestServer()
	doctor := auth.Principal{ID: uuid.New(), Role: auth.RoleDoctor}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, as(doctor, httptest.NewRequest(http.MethodGet, "/api/pharmacy/medicines?q=ors", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data  []Medicine `json:"data"`
		Total int        `json:"total"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Data[0].Name != "ORS" {
		t.Errorf("unexpected search result %s", rec.Body.String())
	}
}

func TestHandler_RoleGates(t *testing.T) {
	f, e := newTestServer()
	doctor := auth.Principal{ID: uuid.New(), Role: auth.RoleDoctor}
	desk := auth.Principal{ID: uuid.New(), Role: auth.RoleReceptionist}

	tests := []struct {
		name string
		p    auth.Principal
		req  *http.Request
		want int
	}{
		{"doctor reads medicine", doctor, httptest.NewRequest(http.MethodGet, "/api/pharmacy/medicines/"+f.ors.ID.String(), nil), http.StatusOK},
		{"doctor creates medicine", doctor, jsonReq(http.MethodPost, "/api/pharmacy/medicines", `{"name":"X","unit_price":1}`), http.StatusForbidden},
		{"pharmacist creates medicine", pharmacist, jsonReq(http.MethodPost, "/api/pharmacy/medicines", `{"name":"X","unit_price":1}`), http.StatusCreated},
		{"receptionist deletes medicine", desk, httptest.NewRequest(http.MethodDelete, "/api/pharmacy/medicines/"+f.ors.ID.String(), nil), http.StatusForbidden},
		{"doctor lists sales", doctor, httptest.NewRequest(http.MethodGet, "/api/pharmacy/sales", nil), http.StatusForbidden},
		{"pharmacist lists sales", pharmacist, httptest.NewRequest(http.MethodGet, "/api/pharmacy/sales?q=asha", nil), http.StatusOK},
		{"pharmacist active prescriptions", pharmacist, httptest.NewRequest(http.MethodGet, "/api/pharmacy/active-prescriptions", nil), http.StatusOK},
		{"pharmacist consultation", pharmacist, httptest.NewRequest(http.MethodGet, "/api/pharmacy/consultations/"+f.consultation.ID.String(), nil), http.StatusOK},
		{"pharmacist unknown consultation", pharmacist, httptest.NewRequest(http.MethodGet, "/api/pharmacy/consultations/"+uuid.NewString(), nil), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, as(tt.p, tt.req))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

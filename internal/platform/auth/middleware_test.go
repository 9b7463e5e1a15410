package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only-32b")

func newTestIssuer() *TokenIssuer {
	return NewTokenIssuer(testSigningKey, "hms-test", time.Hour, 24*time.Hour)
}

func testPrincipal(role Role) Principal {
	return Principal{ID: uuid.New(), Username: "doc001", Role: role}
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, header string) (*httptest.ResponseRecorder, echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen echo.Context
	h := mw(func(c echo.Context) error {
		seen = c
		return c.String(http.StatusOK, "ok")
	})
	err := h(c)
	return rec, seen, err
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, _, err := runMiddleware(t, JWTMiddleware(JWTConfig{Issuer: newTestIssuer()}), "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runMiddleware(t, JWTMiddleware(JWTConfig{Issuer: newTestIssuer()}), tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	issuer := newTestIssuer()
	p := testPrincipal(RoleDoctor)
	pair, err := issuer.Issue(p)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec, c, err := runMiddleware(t, JWTMiddleware(JWTConfig{Issuer: issuer}), "Bearer "+pair.Access)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != p.ID.String() {
		t.Errorf("expected user id %s, got %s", p.ID, UserIDFromContext(ctx))
	}
	if RoleFromContext(ctx) != RoleDoctor {
		t.Errorf("expected DOCTOR role, got %s", RoleFromContext(ctx))
	}
	got, err := PrincipalFromContext(ctx)
	if err != nil || got.ID != p.ID || got.Username != "doc001" {
		t.Errorf("unexpected principal %+v, %v", got, err)
	}
}

func TestJWTMiddleware_RejectsRefreshToken(t *testing.T) {
	issuer := newTestIssuer()
	pair, _ := issuer.Issue(testPrincipal(RoleAdmin))

	_, _, err := runMiddleware(t, JWTMiddleware(JWTConfig{Issuer: issuer}), "Bearer "+pair.Refresh)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	other := NewTokenIssuer([]byte("another-signing-key-of-32-bytes!!"), "hms-test", time.Hour, time.Hour)
	pair, _ := other.Issue(testPrincipal(RoleAdmin))

	_, _, err := runMiddleware(t, JWTMiddleware(JWTConfig{Issuer: newTestIssuer()}), "Bearer "+pair.Access)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_UnknownRoleClaim(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uuid.NewString(),
			Issuer:    "hms-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:      Role("SUPERUSER"),
		TokenType: TokenTypeAccess,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = runMiddleware(t, JWTMiddleware(JWTConfig{Issuer: newTestIssuer()}), "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_RevokedToken(t *testing.T) {
	issuer := newTestIssuer()
	store := NewMemoryRevocationStore(time.Minute)
	defer store.Close()

	pair, _ := issuer.Issue(testPrincipal(RolePharmacist))
	claims, err := issuer.Parse(pair.Access, TokenTypeAccess)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := store.Revoke(context.Background(), claims.ID, claims.ExpiresAt.Time); err != nil {
		t.Fatal(err)
	}

	_, _, err = runMiddleware(t, JWTMiddleware(JWTConfig{Issuer: issuer, Revocations: store}), "Bearer "+pair.Access)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{
		Issuer:  newTestIssuer(),
		Skipper: func(echo.Context) bool { return true },
	})
	rec, _, err := runMiddleware(t, mw, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestPrincipalFromContext_Missing(t *testing.T) {
	_, err := PrincipalFromContext(context.Background())
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestAuthSkipper(t *testing.T) {
	e := echo.New()
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/health", true},
		{http.MethodHead, "/health", true},
		{http.MethodPost, "/api/login", true},
		{http.MethodGet, "/api/login", false},
		{http.MethodPost, "/api/token/refresh", true},
		{http.MethodGet, "/api/me", false},
		{http.MethodGet, "/api/receptionist/patients", false},
	}
	for _, tt := range tests {
		c := e.NewContext(httptest.NewRequest(tt.method, tt.path, nil), httptest.NewRecorder())
		c.SetPath(tt.path)
		if AuthSkipper(c) != tt.want {
			t.Errorf("AuthSkipper(%s %s) = %v, want %v", tt.method, tt.path, !tt.want, tt.want)
		}
		if IsPublic(tt.method, tt.path) != tt.want {
			t.Errorf("IsPublic(%s %s) mismatch", tt.method, tt.path)
		}
	}
}

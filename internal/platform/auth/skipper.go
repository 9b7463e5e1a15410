package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type publicRoute struct {
	method string
	path   string
}

// publicRoutes are served without a bearer token, keyed on the registered
// route rather than the raw URL.
var publicRoutes = map[publicRoute]bool{
	{http.MethodGet, "/"}:                   true,
	{http.MethodGet, "/health"}:             true,
	{http.MethodGet, "/health/db"}:          true,
	{http.MethodGet, "/metrics"}:            true,
	{http.MethodPost, "/api/login"}:         true,
	{http.MethodPost, "/api/token/refresh"}: true,
}

func AuthSkipper(c echo.Context) bool {
	return IsPublic(c.Request().Method, c.Path())
}

// IsPublic reports whether method and route need no authentication.
// HEAD follows GET.
func IsPublic(method, route string) bool {
	if method == http.MethodHead {
		method = http.MethodGet
	}
	return publicRoutes[publicRoute{method, route}]
}

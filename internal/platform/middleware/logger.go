package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hillcrest/hms/internal/platform/auth"
)

// quietRoutes are polled by probes and scrapers; they log at debug.
var quietRoutes = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// levelFor picks the log level from the final status code.
func levelFor(route string, status int) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	case quietRoutes[route]:
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// Logger writes one access line per request. Handler errors are rendered
// here through echo's error handler so the logged status is the one the
// client received.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			ev := logger.WithLevel(levelFor(c.Path(), res.Status))
			if err != nil && res.Status >= 500 {
				ev = ev.Err(err)
			}
			rid, _ := c.Get("request_id").(string)
			ctx := req.Context()
			ev.Str("request_id", rid).
				Str("method", req.Method).
				Str("route", c.Path()).
				Str("uri", req.RequestURI).
				Int("status", res.Status).
				Int64("bytes_out", res.Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Str("user_id", auth.UserIDFromContext(ctx)).
				Str("role", string(auth.RoleFromContext(ctx))).
				Msg("request")
			return nil
		}
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ecodoppler/tsa/internal/platform/auth"
)

// AccessTarget is the exam session or archive entry a request touched.
type AccessTarget struct {
	Resource  string
	ID        string
	Operation string
}

// Audit logs one "record_access" line per request that reads or changes
// patient data: editor pages, the session API and the archive.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			target, ok := accessTarget(req.URL.Path)
			if !ok {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, isHTTP := err.(*echo.HTTPError); isHTTP {
				status = he.Code
			}

			ctx := req.Context()
			rid, _ := c.Get("request_id").(string)
			evt := logger.Info()
			if status == http.StatusForbidden || status == http.StatusUnauthorized {
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("request_id", rid).
				Str("user_id", auth.UserIDFromContext(ctx)).
				Str("user_name", auth.UserNameFromContext(ctx)).
				Strs("user_roles", auth.RolesFromContext(ctx)).
				Str("resource", target.Resource).
				Str("resource_id", target.ID).
				Str("operation", target.Operation).
				Str("action", httpMethodToAction(req.Method)).
				Str("remote_ip", c.RealIP()).
				Int("status", status).
				Msg("record_access")

			return err
		}
	}
}

// accessTarget parses /api/v1/{resource}/{id}/{operation...} and the page
// routes /sessions/{id}/{operation...}.
func accessTarget(path string) (AccessTarget, bool) {
	rest, isAPI := strings.CutPrefix(path, "/api/v1/")
	if !isAPI {
		if !strings.HasPrefix(path, "/sessions/") {
			return AccessTarget{}, false
		}
		rest = strings.TrimPrefix(path, "/")
	}

	segments := strings.Split(strings.Trim(rest, "/"), "/")
	switch segments[0] {
	case "sessions", "archive":
	default:
		return AccessTarget{}, false
	}

	t := AccessTarget{Resource: segments[0]}
	if len(segments) > 1 {
		t.ID = segments[1]
	}
	if len(segments) > 2 {
		t.Operation = strings.Join(segments[2:], "/")
	}
	return t, true
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

var errRequestTimeout = errors.New("request processing exceeded the allowed time limit")

// longLived reports whether path serves a connection that outlives any
// request deadline.
func longLived(path string) bool {
	return path == "/ws" || strings.HasPrefix(path, "/ws/")
}

// RequestTimeout bounds each request by timeout and answers 504 once it
// passes. Generation runs detached from the request and is not affected.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if longLived(c.Request().URL.Path) {
				return next(c)
			}

			ctx, cancel := context.WithTimeoutCause(c.Request().Context(), timeout, errRequestTimeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() { done <- next(c) }()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if !errors.Is(context.Cause(ctx), errRequestTimeout) {
					return ctx.Err()
				}
				if c.Response().Committed {
					return nil
				}
				return c.JSON(http.StatusGatewayTimeout, map[string]string{"message": errRequestTimeout.Error()})
			}
		}
	}
}

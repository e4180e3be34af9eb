package middleware

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/bytes"
)

var errBodyTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")

// BodyLimit rejects request bodies larger than limit ("64K", "1MiB", "512B")
// with 413. An unparsable limit panics at construction.
func BodyLimit(limit string) echo.MiddlewareFunc {
	maxBytes, err := bytes.Parse(limit)
	if err != nil || maxBytes <= 0 {
		panic(fmt.Sprintf("middleware: invalid body limit %q", limit))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > maxBytes {
				return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
					"message": fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", maxBytes),
				})
			}
			// Content-Length may be absent or understated.
			req.Body = &cappedBody{rc: req.Body, left: maxBytes}
			return next(c)
		}
	}
}

// cappedBody fails every read once more than its allowance has been read.
type cappedBody struct {
	rc   io.ReadCloser
	left int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.left < 0 {
		return 0, errBodyTooLarge
	}
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.rc.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		return 0, errBodyTooLarge
	}
	return n, err
}

func (b *cappedBody) Close() error { return b.rc.Close() }

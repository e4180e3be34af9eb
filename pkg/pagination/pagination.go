// Package pagination reads offset/limit query parameters and builds page
// envelopes with navigation links.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is the requested window of a listing.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset from the query string. A 1-based page
// parameter is accepted in place of offset. Bad values fall back to defaults.
func FromContext(c echo.Context) Params {
	p := Params{Limit: queryInt(c, "limit")}
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	if p.Offset = queryInt(c, "offset"); p.Offset > 0 {
		return p
	}
	p.Offset = 0
	if page := queryInt(c, "page"); page > 1 {
		p.Offset = (page - 1) * p.Limit
	}
	return p
}

func queryInt(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return n
}

// Page is one window of a listing. Items is never null on the wire.
type Page[T any] struct {
	Items  []T    `json:"items"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Next   string `json:"next,omitempty"`
	Prev   string `json:"prev,omitempty"`
}

// NewPage wraps items fetched with p. Next and Prev keep every other query
// parameter of u, so filters survive navigation.
func NewPage[T any](items []T, total int, p Params, u *url.URL) Page[T] {
	if items == nil {
		items = []T{}
	}
	pg := Page[T]{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}
	if p.Offset+p.Limit < total {
		pg.Next = link(u, p.Offset+p.Limit, p.Limit)
	}
	if p.Offset > 0 {
		pg.Prev = link(u, max(p.Offset-p.Limit, 0), p.Limit)
	}
	return pg
}

func link(u *url.URL, offset, limit int) string {
	q := u.Query()
	q.Del("page")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return u.Path + "?" + q.Encode()
}

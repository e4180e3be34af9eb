package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/archive?"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", DefaultLimit, 0},
		{"limit=10&offset=30", 10, 30},
		{"limit=500", MaxLimit, 0},
		{"limit=-1&offset=-5", DefaultLimit, 0},
		{"limit=10&page=3", 10, 20},
		{"limit=10&page=3&offset=5", 10, 5},
		{"page=0", DefaultLimit, 0},
		{"limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := paramsFor(tt.query)
			if p.Limit != tt.limit || p.Offset != tt.offset {
				t.Errorf("expected %d/%d, got %d/%d", tt.limit, tt.offset, p.Limit, p.Offset)
			}
		})
	}
}

func TestNewPage(t *testing.T) {
	u, _ := url.Parse("/api/v1/archive?patient=rossi&page=2&limit=10")
	tests := []struct {
		name     string
		params   Params
		total    int
		wantNext string
		wantPrev string
	}{
		{"first page", Params{Limit: 10}, 25, "/api/v1/archive?limit=10&offset=10&patient=rossi", ""},
		{"middle page", Params{Limit: 10, Offset: 10}, 25,
			"/api/v1/archive?limit=10&offset=20&patient=rossi", "/api/v1/archive?limit=10&offset=0&patient=rossi"},
		{"last page", Params{Limit: 10, Offset: 20}, 25, "", "/api/v1/archive?limit=10&offset=10&patient=rossi"},
		{"prev clamped", Params{Limit: 10, Offset: 5}, 8, "", "/api/v1/archive?limit=10&offset=0&patient=rossi"},
		{"empty", Params{Limit: 10}, 0, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pg := NewPage([]string{"a"}, tt.total, tt.params, u)
			if pg.Next != tt.wantNext {
				t.Errorf("next: got %q, want %q", pg.Next, tt.wantNext)
			}
			if pg.Prev != tt.wantPrev {
				t.Errorf("prev: got %q, want %q", pg.Prev, tt.wantPrev)
			}
		})
	}
}

func TestNewPage_NilItemsEncodeAsEmpty(t *testing.T) {
	u, _ := url.Parse("/api/v1/archive")
	pg := NewPage[int](nil, 0, Params{Limit: DefaultLimit}, u)
	if pg.Items == nil || len(pg.Items) != 0 {
		t.Errorf("expected empty non-nil items, got %#v", pg.Items)
	}
}

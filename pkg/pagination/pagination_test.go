package pagination

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/receptionist/patients"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", DefaultLimit, 0},
		{"?limit=5&offset=10", 5, 10},
		{"?limit=500", MaxLimit, 0},
		{"?limit=-3&offset=-1", DefaultLimit, 0},
		{"?limit=abc&offset=xyz", DefaultLimit, 0},
		{"?page=3&page_size=10", 10, 20},
		{"?page=2", DefaultLimit, DefaultLimit},
		{"?page=2&offset=99&limit=5", 5, 5},
		{"?page=0&offset=4", DefaultLimit, 4},
		{"?page_size=1000", MaxLimit, 0},
		{"?page=" + strconv.Itoa(math.MaxInt) + "&page_size=100", 100, math.MaxInt / 100 * 100},
	}
	for _, tt := range tests {
		p := paramsFor(tt.query)
		if p.Limit != tt.limit || p.Offset != tt.offset {
			t.Errorf("%q: got %+v, want limit=%d offset=%d", tt.query, p, tt.limit, tt.offset)
		}
	}
}

func TestParams_Page(t *testing.T) {
	if got := (Params{Limit: 10, Offset: 20}).Page(); got != 3 {
		t.Errorf("expected page 3, got %d", got)
	}
	if got := (Params{}).Page(); got != 1 {
		t.Errorf("expected page 1 for an empty window, got %d", got)
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a", "b"}, 5, Params{Limit: 2, Offset: 2})
	if !r.HasMore || r.Total != 5 || r.Page != 2 {
		t.Errorf("unexpected response %+v", r)
	}
	last := NewResponse([]string{"e"}, 5, Params{Limit: 2, Offset: 4})
	if last.HasMore {
		t.Error("last page should not report has_more")
	}
}

func TestNewResponse_NilRendersEmptyList(t *testing.T) {
	var none []int
	b, err := json.Marshal(NewResponse(none, 0, Params{Limit: DefaultLimit}))
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if string(out["data"]) != "[]" {
		t.Errorf("expected data [], got %s", out["data"])
	}
}

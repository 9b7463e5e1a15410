package pagination

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is the window a list endpoint reads from the store.
type Params struct {
	Limit  int
	Offset int
}

// FromContext accepts either ?limit=&offset= or the front desk's
// ?page=&page_size= form. page wins when both are present. Bad values fall
// back to the first page of DefaultLimit rows.
func FromContext(c echo.Context) Params {
	limit := queryInt(c, "limit")
	if size := queryInt(c, "page_size"); size > 0 {
		limit = size
	}
	limit = clamp(limit)

	if page := queryInt(c, "page"); page > 0 {
		if maxPage := math.MaxInt/limit + 1; page > maxPage {
			page = maxPage
		}
		return Params{Limit: limit, Offset: (page - 1) * limit}
	}
	offset := queryInt(c, "offset")
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

func queryInt(c echo.Context, name string) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return v
}

func clamp(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Page is the 1-based page the window starts on.
func (p Params) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

type Response struct {
	Data    any  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Page    int  `json:"page"`
	HasMore bool `json:"has_more"`
}

// NewResponse wraps one page of rows. A nil slice is rendered as [] so
// clients never see "data": null.
func NewResponse[T any](items []T, total int, p Params) *Response {
	if items == nil {
		items = []T{}
	}
	return &Response{
		Data:    items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		Page:    p.Page(),
		HasMore: p.Offset+len(items) < total,
	}
}

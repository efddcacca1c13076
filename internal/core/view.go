package core

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultPageSize is the number of row slots a table shows.
const DefaultPageSize = 3

// MaxSortLevels caps multi-column sorting.
const MaxSortLevels = 2

// PageRequest selects one page of a mirror. A nil Pad means no padding for
// Page and the configured default for Service.View.
type PageRequest struct {
	Page     int        `json:"page"` // 0-based
	PageSize int        `json:"pageSize"`
	Sorts    []SortSpec `json:"sorts,omitempty"`
	Pad      *bool      `json:"pad,omitempty"`
}

// ViewRow is one rendered slot. Index is the row's position in the mirror,
// which is what edit and delete operations take. Placeholders have Index -1.
type ViewRow struct {
	Key         RowKey `json:"key,omitempty"`
	Index       int    `json:"index"`
	Values      Row    `json:"values"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// PageResult is a page plus its pagination metadata.
type PageResult struct {
	Columns     []string   `json:"columns"`
	Rows        []ViewRow  `json:"rows"`
	Page        int        `json:"page"`
	PageSize    int        `json:"pageSize"`
	TotalRows   int        `json:"totalRows"`
	TotalPages  int        `json:"totalPages"`
	CanPrevious bool       `json:"canPrevious"`
	CanNext     bool       `json:"canNext"`
	Sorts       []SortSpec `json:"sorts,omitempty"`
}

// Page projects one page of m. The mirror is not modified and the same input
// always yields the same page.
func Page(m *Mirror, req PageRequest) PageResult {
	size := req.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	res := PageResult{PageSize: size, Rows: []ViewRow{}}
	if m == nil {
		return res
	}

	res.Columns = append([]string(nil), m.Dataset.Schema.Columns...)
	res.Sorts = effectiveSorts(m.Dataset.Schema, req.Sorts)

	n := m.Len()
	res.TotalRows = n
	res.TotalPages = (n + size - 1) / size

	page := req.Page
	if page >= res.TotalPages {
		page = res.TotalPages - 1
	}
	if page < 0 {
		page = 0
	}
	res.Page = page
	res.CanPrevious = page > 0
	res.CanNext = page < res.TotalPages-1

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if len(res.Sorts) > 0 {
		rows := m.Dataset.Rows
		sort.SliceStable(order, func(a, b int) bool {
			ra, rb := rows[order[a]], rows[order[b]]
			for _, s := range res.Sorts {
				c := compareValues(ra[s.Column], rb[s.Column])
				if c == 0 {
					continue
				}
				if s.Dir == "desc" {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	start := page * size
	end := min(start+size, n)
	for _, idx := range order[start:end] {
		res.Rows = append(res.Rows, ViewRow{
			Key:    m.Keys[idx],
			Index:  idx,
			Values: cloneRow(m.Dataset.Rows[idx]),
		})
	}

	if req.Pad != nil && *req.Pad {
		for len(res.Rows) < size {
			res.Rows = append(res.Rows, ViewRow{Index: -1, Values: Row{}, Placeholder: true})
		}
	}
	return res
}

// effectiveSorts drops unknown columns, normalizes direction and caps levels.
func effectiveSorts(schema Schema, sorts []SortSpec) []SortSpec {
	var out []SortSpec
	for _, s := range sorts {
		if len(out) == MaxSortLevels {
			break
		}
		if !schema.HasColumn(s.Column) {
			continue
		}
		dir := strings.ToLower(s.Dir)
		if dir != "desc" {
			dir = "asc"
		}
		out = append(out, SortSpec{Column: s.Column, Dir: dir})
	}
	return out
}

// compareValues orders values by kind first: nil, then numbers, then
// booleans, then text. Within a kind numbers compare numerically, false sorts
// before true and text compares bytewise. Numeric strings count as numbers so
// CSV values sort naturally.
func compareValues(a, b any) int {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}

	switch ka {
	case kindNil:
		return 0
	case kindNumber:
		fa, _ := asNumber(a)
		fb, _ := asNumber(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case kindBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

const (
	kindNil = iota
	kindNumber
	kindBool
	kindText
)

func kindOf(v any) int {
	if v == nil {
		return kindNil
	}
	if _, ok := asNumber(v); ok {
		return kindNumber
	}
	if _, ok := v.(bool); ok {
		return kindBool
	}
	return kindText
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}

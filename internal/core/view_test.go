package core

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mirrorOfN(n int) *Mirror {
	ds := Dataset{ID: "n", Schema: Schema{Columns: []string{"i"}}}
	for i := 0; i < n; i++ {
		ds.Rows = append(ds.Rows, Row{"i": float64(i)})
	}
	return NewMirror(ds)
}

func TestPage_PaginationMath(t *testing.T) {
	tests := []struct {
		n, size       int
		wantPages     int
		wantLastCount int
	}{
		{n: 0, size: 3, wantPages: 0, wantLastCount: 0},
		{n: 1, size: 3, wantPages: 1, wantLastCount: 1},
		{n: 3, size: 3, wantPages: 1, wantLastCount: 3},
		{n: 7, size: 3, wantPages: 3, wantLastCount: 1},
		{n: 9, size: 3, wantPages: 3, wantLastCount: 3},
		{n: 10, size: 4, wantPages: 3, wantLastCount: 2},
		{n: 100, size: 10, wantPages: 10, wantLastCount: 10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("N=%d/P=%d", tt.n, tt.size), func(t *testing.T) {
			m := mirrorOfN(tt.n)
			first := Page(m, PageRequest{PageSize: tt.size})
			if first.TotalPages != tt.wantPages {
				t.Fatalf("TotalPages = %d, want %d", first.TotalPages, tt.wantPages)
			}
			if first.TotalRows != tt.n {
				t.Errorf("TotalRows = %d, want %d", first.TotalRows, tt.n)
			}
			if tt.wantPages == 0 {
				if len(first.Rows) != 0 {
					t.Errorf("rows on empty mirror = %d, want 0", len(first.Rows))
				}
				return
			}

			last := Page(m, PageRequest{Page: tt.wantPages - 1, PageSize: tt.size})
			if got := len(last.Rows); got != tt.wantLastCount {
				t.Errorf("last page rows = %d, want %d", got, tt.wantLastCount)
			}
			if tt.n-tt.size*(tt.wantPages-1) != tt.wantLastCount {
				t.Errorf("test table inconsistent for N=%d P=%d", tt.n, tt.size)
			}
		})
	}
}

func TestPage_Navigation(t *testing.T) {
	m := mirrorOfN(7)

	tests := []struct {
		page               int
		wantPage           int
		wantPrev, wantNext bool
		wantFirstIndex     int
	}{
		{page: 0, wantPage: 0, wantPrev: false, wantNext: true, wantFirstIndex: 0},
		{page: 1, wantPage: 1, wantPrev: true, wantNext: true, wantFirstIndex: 3},
		{page: 2, wantPage: 2, wantPrev: true, wantNext: false, wantFirstIndex: 6},
		{page: 9, wantPage: 2, wantPrev: true, wantNext: false, wantFirstIndex: 6},
		{page: -4, wantPage: 0, wantPrev: false, wantNext: true, wantFirstIndex: 0},
	}

	for _, tt := range tests {
		got := Page(m, PageRequest{Page: tt.page, PageSize: 3})
		if got.Page != tt.wantPage {
			t.Errorf("Page(%d).Page = %d, want %d", tt.page, got.Page, tt.wantPage)
		}
		if got.CanPrevious != tt.wantPrev || got.CanNext != tt.wantNext {
			t.Errorf("Page(%d) prev/next = %v/%v, want %v/%v",
				tt.page, got.CanPrevious, got.CanNext, tt.wantPrev, tt.wantNext)
		}
		if got.Rows[0].Index != tt.wantFirstIndex {
			t.Errorf("Page(%d) first index = %d, want %d", tt.page, got.Rows[0].Index, tt.wantFirstIndex)
		}
	}
}

func TestPage_PadToPageSize(t *testing.T) {
	m := mirrorOfN(4)
	pad := true

	got := Page(m, PageRequest{Page: 1, PageSize: 3, Pad: &pad})
	if len(got.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(got.Rows))
	}
	if got.Rows[0].Placeholder {
		t.Error("real row marked as placeholder")
	}
	for _, r := range got.Rows[1:] {
		if !r.Placeholder || r.Index != -1 || len(r.Values) != 0 {
			t.Errorf("padding row = %+v, want blank placeholder", r)
		}
	}

	unpadded := Page(m, PageRequest{Page: 1, PageSize: 3})
	if len(unpadded.Rows) != 1 {
		t.Errorf("unpadded rows = %d, want 1", len(unpadded.Rows))
	}

	empty := Page(mirrorOfN(0), PageRequest{PageSize: 3, Pad: &pad})
	if len(empty.Rows) != 3 {
		t.Errorf("padded empty rows = %d, want 3", len(empty.Rows))
	}
}

func TestPage_Sorting(t *testing.T) {
	m := NewMirror(Dataset{
		ID:     "people",
		Schema: Schema{Columns: []string{"name", "age", "team"}},
		Rows: []Row{
			{"name": "dee", "age": float64(40), "team": "b"},
			{"name": "al", "age": "9", "team": "a"},
			{"name": "bo", "age": nil, "team": "b"},
			{"name": "cy", "age": float64(100), "team": "a"},
		},
	})

	tests := []struct {
		name  string
		sorts []SortSpec
		want  []string
	}{
		{"no sort keeps mirror order", nil, []string{"dee", "al", "bo", "cy"}},
		{"numeric asc nil first", []SortSpec{{Column: "age", Dir: "asc"}}, []string{"bo", "al", "dee", "cy"}},
		{"numeric desc", []SortSpec{{Column: "age", Dir: "desc"}}, []string{"cy", "dee", "al", "bo"}},
		{"two levels", []SortSpec{{Column: "team"}, {Column: "name", Dir: "desc"}}, []string{"cy", "al", "dee", "bo"}},
		{"stable on ties", []SortSpec{{Column: "team"}}, []string{"al", "cy", "dee", "bo"}},
		{"unknown column ignored", []SortSpec{{Column: "nope"}, {Column: "name"}}, []string{"al", "bo", "cy", "dee"}},
		{"third level dropped", []SortSpec{{Column: "team"}, {Column: "age"}, {Column: "name", Dir: "desc"}}, []string{"al", "cy", "bo", "dee"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Page(m, PageRequest{PageSize: 10, Sorts: tt.sorts})
			var got []string
			for _, r := range res.Rows {
				got = append(got, r.Values["name"].(string))
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPage_IndexPointsIntoMirror(t *testing.T) {
	m := NewMirror(lettersDataset())
	res := Page(m, PageRequest{PageSize: 3, Sorts: []SortSpec{{Column: "n", Dir: "desc"}}})

	for _, r := range res.Rows {
		if m.Dataset.Rows[r.Index]["n"] != r.Values["n"] {
			t.Errorf("row %v has Index %d pointing at %v", r.Values, r.Index, m.Dataset.Rows[r.Index])
		}
		if m.Keys[r.Index] != r.Key {
			t.Errorf("row %v key mismatch", r.Values)
		}
	}
}

func TestPage_DeterministicAndPure(t *testing.T) {
	m := NewMirror(peopleDataset())
	before := m.Clone()
	req := PageRequest{Page: 0, PageSize: 2, Sorts: []SortSpec{{Column: "age", Dir: "desc"}}}

	a := Page(m, req)
	b := Page(m, req)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same input gave different pages:\n%s", diff)
	}

	a.Rows[0].Values["name"] = "mutated"
	if diff := cmp.Diff(before, m); diff != "" {
		t.Errorf("Page modified the mirror:\n%s", diff)
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		a, b any
		want int
	}{
		{nil, nil, 0},
		{nil, "x", -1},
		{float64(2), nil, 1},
		{float64(2), float64(10), -1},
		{"2", "10", -1},
		{"b", "a", 1},
		{false, true, -1},
		{true, true, 0},
		{"abc", float64(1), 1},
		{"10", "1a", -1},
		{"1a", "9", 1},
		{true, "abc", -1},
		{float64(3), false, -1},
	}
	for _, tt := range tests {
		if got := compareValues(tt.a, tt.b); got != tt.want {
			t.Errorf("compareValues(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCompareValues_MixedColumnIsTotal(t *testing.T) {
	values := []any{"1a", "10", nil, "9", true, "b", float64(2), false, " 3 "}

	for _, a := range values {
		for _, b := range values {
			if ab, ba := compareValues(a, b), compareValues(b, a); ab != -ba {
				t.Errorf("compareValues(%v, %v) = %d but reverse = %d", a, b, ab, ba)
			}
			for _, c := range values {
				if compareValues(a, b) < 0 && compareValues(b, c) < 0 && compareValues(a, c) >= 0 {
					t.Errorf("not transitive: %v < %v < %v but compare(a, c) = %d", a, b, c, compareValues(a, c))
				}
			}
		}
	}

	m := NewMirror(Dataset{
		ID:     "mixed",
		Schema: Schema{Columns: []string{"v"}},
		Rows:   []Row{{"v": "1a"}, {"v": "10"}, {"v": "9"}, {"v": nil}, {"v": "b"}},
	})
	got := Page(m, PageRequest{PageSize: 5, Sorts: []SortSpec{{Column: "v", Dir: "asc"}}})
	var order []any
	for _, r := range got.Rows {
		order = append(order, r.Values["v"])
	}
	if diff := cmp.Diff([]any{nil, "9", "10", "1a", "b"}, order); diff != "" {
		t.Errorf("sorted order mismatch (-want +got):\n%s", diff)
	}
}

package core

import (
	"context"
	"io"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Row is one dataset record: column name to scalar value (string, float64,
// bool or nil once decoded from JSON).
type Row map[string]any

// Schema describes a dataset's columns.
type Schema struct {
	Columns []string          `json:"columns"`
	DTypes  map[string]string `json:"dtypes"`
	// RowCount is computed by the store at upload time. It is a hint and is
	// not updated by local mutations.
	RowCount int `json:"row_count"`
}

// HasColumn reports whether name is one of the schema's columns.
func (s Schema) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Dataset is the remote store's representation of an uploaded CSV.
type Dataset struct {
	ID      string `json:"dataset_id"`
	Schema  Schema `json:"schema"`
	Rows    []Row  `json:"data"`
	Message string `json:"message,omitempty"`
}

// RowKey is a stable opaque identifier assigned to a row when it enters a
// mirror. The remote store never sees it.
type RowKey string

func newRowKey() RowKey {
	return RowKey(uuid.NewString())
}

// Mirror is a session's local copy of a dataset. Keys runs parallel to
// Dataset.Rows.
type Mirror struct {
	Dataset  Dataset   `json:"dataset"`
	Keys     []RowKey  `json:"keys"`
	Endpoint string    `json:"endpoint,omitempty"`
	Version  int64     `json:"version"`
	SavedAt  time.Time `json:"saved_at"`
}

// NewMirror wraps ds and assigns a fresh key to every row.
func NewMirror(ds Dataset) *Mirror {
	m := &Mirror{Dataset: ds}
	m.Dataset.Rows = cloneRows(ds.Rows)
	m.Keys = make([]RowKey, len(ds.Rows))
	for i := range m.Keys {
		m.Keys[i] = newRowKey()
	}
	return m
}

// Clone returns a deep copy.
func (m *Mirror) Clone() *Mirror {
	if m == nil {
		return nil
	}
	c := *m
	c.Dataset.Schema.Columns = append([]string(nil), m.Dataset.Schema.Columns...)
	if m.Dataset.Schema.DTypes != nil {
		c.Dataset.Schema.DTypes = make(map[string]string, len(m.Dataset.Schema.DTypes))
		for k, v := range m.Dataset.Schema.DTypes {
			c.Dataset.Schema.DTypes[k] = v
		}
	}
	c.Dataset.Rows = cloneRows(m.Dataset.Rows)
	c.Keys = append([]RowKey(nil), m.Keys...)
	return &c
}

// Len returns the number of rows.
func (m *Mirror) Len() int { return len(m.Dataset.Rows) }

// IndexOf returns the current position of key, or -1.
func (m *Mirror) IndexOf(key RowKey) int {
	for i, k := range m.Keys {
		if k == key {
			return i
		}
	}
	return -1
}

// KeyAt returns the key of the row at index.
func (m *Mirror) KeyAt(index int) (RowKey, bool) {
	if index < 0 || index >= len(m.Keys) {
		return "", false
	}
	return m.Keys[index], true
}

// ReplaceRows swaps in a canonical row set from the store.
//
// Keys follow row content, not position. A canonical row equal to the next
// unmatched mirror row keeps that row's key. Rows between two matches are
// paired by position; leftovers get new keys.
func (m *Mirror) ReplaceRows(rows []Row) {
	m.Keys = alignKeys(m.Dataset.Rows, m.Keys, rows)
	m.Dataset.Rows = cloneRows(rows)
}

func alignKeys(old []Row, oldKeys []RowKey, rows []Row) []RowKey {
	keys := make([]RowKey, len(rows))

	pair := func(r0, r1, o0, o1 int) {
		for r := r0; r < r1; r++ {
			if o := o0 + r - r0; o < o1 && o < len(oldKeys) {
				keys[r] = oldKeys[o]
			} else {
				keys[r] = newRowKey()
			}
		}
	}

	r0, o0 := 0, 0
	for r := range rows {
		o := indexOfRow(old, o0, rows[r])
		if o < 0 || o >= len(oldKeys) {
			continue
		}
		pair(r0, r, o0, o)
		keys[r] = oldKeys[o]
		r0, o0 = r+1, o+1
	}
	pair(r0, len(rows), o0, len(old))
	return keys
}

// indexOfRow returns the first position at or after from whose row equals
// row, or -1.
func indexOfRow(rows []Row, from int, row Row) int {
	for i := from; i < len(rows); i++ {
		if reflect.DeepEqual(rows[i], row) {
			return i
		}
	}
	return -1
}

// removeAt drops the row at index.
func (m *Mirror) removeAt(index int) {
	m.Dataset.Rows = append(m.Dataset.Rows[:index], m.Dataset.Rows[index+1:]...)
	m.Keys = append(m.Keys[:index], m.Keys[index+1:]...)
}

func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = cloneRow(r)
	}
	return out
}

func cloneRow(r Row) Row {
	if r == nil {
		return nil
	}
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Session is one open table tab.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Archived  bool      `json:"archived,omitempty"`
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
	Active     bool      `json:"active"`
	Archived   bool      `json:"archived"`
	HasDataset bool      `json:"hasDataset"`
	DatasetID  string    `json:"datasetId,omitempty"`
}

// EditState is the mutation pipeline state of one session.
type EditState string

const (
	StateIdle    EditState = "idle"
	StateEditing EditState = "editing"
	StateSaving  EditState = "saving"
	StateError   EditState = "error"
)

// EditingCursor is the single open, unconfirmed cell edit of a session.
type EditingCursor struct {
	RowKey   RowKey `json:"rowKey"`
	RowIndex int    `json:"rowIndex"`
	Column   string `json:"column"`
	Value    any    `json:"value"`
}

// SortSpec represents a single sort column and direction.
type SortSpec struct {
	Column string `json:"column"`
	Dir    string `json:"dir"` // "asc" or "desc"
}

// Remote is the dataset store the engine writes through.
type Remote interface {
	Provisioner

	// Upload sends a CSV and returns the parsed dataset.
	Upload(ctx context.Context, fileName string, r io.Reader) (*Dataset, error)

	// UpdateCell sets one cell and returns the full canonical row set.
	UpdateCell(ctx context.Context, apiURL string, rowIndex int, column string, value any) ([]Row, error)

	// AddRow appends a row and returns the full canonical row set.
	AddRow(ctx context.Context, apiURL string, values Row) ([]Row, error)

	// DeleteRow removes the row at rowIndex. The response carries no rows.
	DeleteRow(ctx context.Context, apiURL string, rowIndex int) error
}

// Provisioner allocates public API URLs for datasets.
type Provisioner interface {
	GenerateAPIURL(ctx context.Context, datasetID string) (string, error)
}

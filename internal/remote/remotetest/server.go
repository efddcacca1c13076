// Package remotetest is an in-memory dataset store speaking the same HTTP
// protocol as the real one. Tests run it behind httptest.
package remotetest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/tablesync/internal/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
)

// Route names an endpoint for fault injection.
type Route string

const (
	RouteUpload    Route = "upload"
	RouteGenerate  Route = "generate_api_url"
	RouteUpdate    Route = "cell"
	RouteAddRow    Route = "add_row"
	RouteDeleteRow Route = "delete_row"
)

// DefaultUser is the owner segment of provisioned URLs.
const DefaultUser = "local"

type failure struct {
	status int
	detail string
}

type dataset struct {
	ds   core.Dataset
	rows []core.Row
}

// Server is the fake store. The zero value is not usable; call New.
type Server struct {
	router chi.Router
	user   string
	now    func() time.Time

	mu          sync.Mutex
	datasets    map[string]*dataset
	provisioned map[string]int
	failures    map[Route][]failure
	calls       map[Route]int
}

// New creates an empty store.
func New() *Server {
	s := &Server{
		user:        DefaultUser,
		now:         time.Now,
		datasets:    make(map[string]*dataset),
		provisioned: make(map[string]int),
		failures:    make(map[Route][]failure),
		calls:       make(map[Route]int),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/data", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/generate_api_url", s.handleGenerate)
	})

	// Provisioned URLs are /api/data/{owner}/{datasetID}. Fallback URLs
	// omit the owner, so there the first segment is the dataset id.
	dataRoutes := func(r chi.Router) {
		r.Get("/", s.handleGetData)
		r.Put("/cell", s.handleUpdateCell)
		r.Post("/row", s.handleAddRow)
		r.Delete("/row/{index}", s.handleDeleteRow)
	}
	r.Route("/api/data/{owner}", func(r chi.Router) {
		dataRoutes(r)
		r.Route("/{datasetID}", dataRoutes)
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FailNext makes the next call to route answer status with detail instead of
// doing its work. Calls queue up in order.
func (s *Server) FailNext(route Route, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], failure{status: status, detail: detail})
}

// Calls returns how many requests route has received, failed ones included.
func (s *Server) Calls(route Route) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// ProvisionCount returns how many URLs were generated for datasetID.
func (s *Server) ProvisionCount(datasetID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provisioned[datasetID]
}

// Rows returns a copy of the dataset's current rows.
func (s *Server) Rows(datasetID string) ([]core.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.datasets[datasetID]
	if !ok {
		return nil, false
	}
	return copyRows(d.rows), true
}

// Load installs a dataset directly, bypassing upload.
func (s *Server) Load(ds core.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[ds.ID] = &dataset{ds: ds, rows: copyRows(ds.Rows)}
}

// InsertRowAt inserts a row at index as if another client had done it,
// shifting later rows. It reports false if the dataset or index is invalid.
func (s *Server) InsertRowAt(datasetID string, index int, row core.Row) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.datasets[datasetID]
	if !ok || index < 0 || index > len(d.rows) {
		return false
	}
	d.rows = append(d.rows, nil)
	copy(d.rows[index+1:], d.rows[index:])
	d.rows[index] = copyRow(row)
	return true
}

// intercept counts the call and answers an injected failure if one is queued.
func (s *Server) intercept(w http.ResponseWriter, route Route) bool {
	s.mu.Lock()
	s.calls[route]++
	queue := s.failures[route]
	if len(queue) == 0 {
		s.mu.Unlock()
		return false
	}
	f := queue[0]
	s.failures[route] = queue[1:]
	s.mu.Unlock()

	writeDetail(w, f.status, f.detail)
	return true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.intercept(w, RouteUpload) {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeDetail(w, http.StatusBadRequest, "Only CSV files are supported")
		return
	}

	schema, rows, err := parseCSV(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	id := s.newDatasetIDLocked(path.Base(header.Filename))
	ds := core.Dataset{
		ID:      id,
		Schema:  schema,
		Rows:    rows,
		Message: "File uploaded and processed successfully",
	}
	s.datasets[id] = &dataset{ds: ds, rows: copyRows(rows)}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) newDatasetIDLocked(fileName string) string {
	base := s.now().Format("20060102_150405") + "_" + fileName
	id := base
	for n := 2; ; n++ {
		if _, taken := s.datasets[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.intercept(w, RouteGenerate) {
		return
	}

	id := r.URL.Query().Get("dataset_id")
	if id == "" {
		var body struct {
			DatasetID string `json:"dataset_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		id = body.DatasetID
	}
	if id == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "dataset_id is required")
		return
	}

	s.mu.Lock()
	_, ok := s.datasets[id]
	if ok {
		s.provisioned[id]++
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Dataset not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"api_url": "/api/data/" + s.user + "/" + url.PathEscape(id),
	})
}

// lookup resolves the dataset named in the URL or answers 404.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*dataset, bool) {
	id := chi.URLParam(r, "datasetID")
	if id == "" {
		id = chi.URLParam(r, "owner")
	}
	if unescaped, err := url.PathUnescape(id); err == nil {
		id = unescaped
	}
	d, ok := s.datasets[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Dataset not found")
	}
	return d, ok
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"columns": d.ds.Schema.Columns,
		"data":    d.rows,
	})
}

func (s *Server) handleUpdateCell(w http.ResponseWriter, r *http.Request) {
	if s.intercept(w, RouteUpdate) {
		return
	}

	var req struct {
		RowIndex *int   `json:"row_index"`
		Column   string `json:"column"`
		Value    any    `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RowIndex == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "row_index, column and value are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if *req.RowIndex < 0 || *req.RowIndex >= len(d.rows) {
		writeDetail(w, http.StatusNotFound, "Row not found")
		return
	}
	if !d.ds.Schema.HasColumn(req.Column) {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Column %s not found", req.Column))
		return
	}

	d.rows[*req.RowIndex][req.Column] = req.Value
	writeJSON(w, http.StatusOK, map[string]any{"data": d.rows})
}

func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	if s.intercept(w, RouteAddRow) {
		return
	}

	var values core.Row
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "row values must be a JSON object")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.lookup(w, r)
	if !ok {
		return
	}

	row := make(core.Row, len(d.ds.Schema.Columns))
	for _, col := range d.ds.Schema.Columns {
		row[col] = nil
	}
	for col, v := range values {
		if !d.ds.Schema.HasColumn(col) {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Column %s not found", col))
			return
		}
		row[col] = v
	}

	d.rows = append(d.rows, row)
	writeJSON(w, http.StatusOK, map[string]any{"data": d.rows})
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	if s.intercept(w, RouteDeleteRow) {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "row index must be an integer")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if index < 0 || index >= len(d.rows) {
		writeDetail(w, http.StatusNotFound, "Row not found")
		return
	}

	d.rows = append(d.rows[:index], d.rows[index+1:]...)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Row deleted"})
}

// parseCSV reads a header row plus records and types each column the way the
// real store's loader does: BIGINT, DOUBLE, BOOLEAN, else VARCHAR. Empty
// fields become null.
func parseCSV(r io.Reader) (core.Schema, []core.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return core.Schema{}, nil, errors.New("CSV file is empty")
	}
	if err != nil {
		return core.Schema{}, nil, fmt.Errorf("invalid CSV: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
		if header[i] == "" {
			header[i] = fmt.Sprintf("column%d", i)
		}
	}

	records, err := cr.ReadAll()
	if err != nil {
		return core.Schema{}, nil, fmt.Errorf("invalid CSV: %w", err)
	}

	dtypes := make(map[string]string, len(header))
	for i, col := range header {
		dtypes[col] = inferType(records, i)
	}

	rows := make([]core.Row, 0, len(records))
	for _, rec := range records {
		row := make(core.Row, len(header))
		for i, col := range header {
			var raw string
			if i < len(rec) {
				raw = rec[i]
			}
			row[col] = convert(raw, dtypes[col])
		}
		rows = append(rows, row)
	}

	return core.Schema{Columns: header, DTypes: dtypes, RowCount: len(rows)}, rows, nil
}

func inferType(records [][]string, col int) string {
	isInt, isFloat, isBool, seen := true, true, true, false
	for _, rec := range records {
		if col >= len(rec) || strings.TrimSpace(rec[col]) == "" {
			continue
		}
		v := strings.TrimSpace(rec[col])
		seen = true
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			isFloat = false
		}
		if lv := strings.ToLower(v); lv != "true" && lv != "false" {
			isBool = false
		}
	}
	switch {
	case !seen:
		return "VARCHAR"
	case isInt:
		return "BIGINT"
	case isFloat:
		return "DOUBLE"
	case isBool:
		return "BOOLEAN"
	}
	return "VARCHAR"
}

func convert(raw, dtype string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	switch dtype {
	case "BIGINT", "DOUBLE":
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case "BOOLEAN":
		return strings.EqualFold(v, "true")
	}
	return raw
}

func copyRows(rows []core.Row) []core.Row {
	out := make([]core.Row, len(rows))
	for i, r := range rows {
		out[i] = copyRow(r)
	}
	return out
}

func copyRow(r core.Row) core.Row {
	c := make(core.Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

package web

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tablesync/internal/core"
	"github.com/goccy/go-json"
)

// maxJSONBody bounds request bodies other than uploads.
const maxJSONBody = 1 << 20

// parseIntParam parses a non-negative integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return i, nil
}

// parseBoolParam parses a boolean query parameter with a default value.
func parseBoolParam(r *http.Request, name string, defaultVal bool) (bool, error) {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false", name)
	}
	return b, nil
}

// parseSorts parses comma-separated sort parameters from URL.
// sort=age,name&dir=desc yields age descending then name ascending.
func parseSorts(r *http.Request) []core.SortSpec {
	sortStr := r.URL.Query().Get("sort")
	if sortStr == "" {
		return nil
	}

	cols := strings.Split(sortStr, ",")
	dirs := strings.Split(r.URL.Query().Get("dir"), ",")

	var sorts []core.SortSpec
	for i, col := range cols {
		col = strings.TrimSpace(col)
		if col == "" {
			continue
		}
		dir := "asc"
		if i < len(dirs) && strings.EqualFold(strings.TrimSpace(dirs[i]), "desc") {
			dir = "desc"
		}
		sorts = append(sorts, core.SortSpec{Column: col, Dir: dir})
		if len(sorts) >= core.MaxSortLevels {
			break
		}
	}
	return sorts
}

// parsePageRequest reads page, size, sort, dir and pad from the query string.
// A missing size or pad leaves the service defaults in charge.
func parsePageRequest(r *http.Request) (core.PageRequest, error) {
	page, err := parseIntParam(r, "page", 0)
	if err != nil {
		return core.PageRequest{}, err
	}
	size, err := parseIntParam(r, "size", 0)
	if err != nil {
		return core.PageRequest{}, err
	}
	req := core.PageRequest{
		Page:     page,
		PageSize: size,
		Sorts:    parseSorts(r),
	}
	if r.URL.Query().Has("pad") {
		pad, err := parseBoolParam(r, "pad", false)
		if err != nil {
			return core.PageRequest{}, err
		}
		req.Pad = &pad
	}
	return req, nil
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// rowIndexParam parses the {index} route parameter.
func rowIndexParam(raw string) (int, error) {
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("row index %q must be a non-negative integer", raw)
	}
	return i, nil
}

// NotificationResponse wraps a notification with the state it produced.
type NotificationResponse struct {
	Notification core.Notification `json:"notification"`
	Data         any               `json:"data,omitempty"`
}

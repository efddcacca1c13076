// Package remote is the HTTP client for the remote dataset store.
//
// Transport failures come back as *core.NetworkError and non-2xx answers as
// *core.RemoteRejection carrying the store's "detail" message when present.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/tablesync/internal/core"
	"github.com/goccy/go-json"
)

// maxErrorBody caps how much of a rejection body is read for its detail.
const maxErrorBody = 64 << 10

// Client talks to one dataset store.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ core.Remote = (*Client)(nil)

// New creates a client for the store at baseURL. A zero timeout means none.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type rowsResponse struct {
	Data []core.Row `json:"data"`
}

type errorResponse struct {
	Detail any `json:"detail"`
}

// Upload posts a CSV as multipart field "file".
func (c *Client) Upload(ctx context.Context, fileName string, r io.Reader) (*core.Dataset, error) {
	const op = "upload"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("%s: build form: %w", op, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("%s: read file: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: build form: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/data/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var ds core.Dataset
	if err := c.do(req, op, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// GenerateAPIURL asks the store to provision a public URL for datasetID. The
// id is sent both as query parameter and JSON body so either server style
// accepts it.
func (c *Client) GenerateAPIURL(ctx context.Context, datasetID string) (string, error) {
	const op = "generate api url"

	endpoint := c.baseURL + "/data/generate_api_url?" + url.Values{"dataset_id": {datasetID}}.Encode()
	var out struct {
		APIURL string `json:"api_url"`
	}
	if err := c.request(ctx, http.MethodPost, endpoint, op, map[string]string{"dataset_id": datasetID}, &out); err != nil {
		return "", err
	}
	return out.APIURL, nil
}

// UpdateCell sets one cell and returns the store's full row set.
func (c *Client) UpdateCell(ctx context.Context, apiURL string, rowIndex int, column string, value any) ([]core.Row, error) {
	body := struct {
		RowIndex int    `json:"row_index"`
		Column   string `json:"column"`
		Value    any    `json:"value"`
	}{rowIndex, column, value}

	var out rowsResponse
	if err := c.request(ctx, http.MethodPut, join(apiURL, "cell"), "update cell", body, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// AddRow appends a row and returns the store's full row set.
func (c *Client) AddRow(ctx context.Context, apiURL string, values core.Row) ([]core.Row, error) {
	var out rowsResponse
	if err := c.request(ctx, http.MethodPost, join(apiURL, "row"), "add row", values, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// DeleteRow removes the row at rowIndex.
func (c *Client) DeleteRow(ctx context.Context, apiURL string, rowIndex int) error {
	return c.request(ctx, http.MethodDelete, join(apiURL, "row", strconv.Itoa(rowIndex)), "delete row", nil, nil)
}

func join(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

func (c *Client) request(ctx context.Context, method, endpoint, op string, body, v any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, op, v)
}

func (c *Client) do(req *http.Request, op string, v any) error {
	res, err := c.http.Do(req)
	if err != nil {
		// Cancellation by the caller is not a network failure.
		if ctxErr := req.Context().Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		return &core.NetworkError{Op: op, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &core.RemoteRejection{Op: op, Status: res.StatusCode, Detail: readDetail(res.Body)}
	}

	if v == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return &core.NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// readDetail extracts "detail" from a JSON error body. FastAPI validation
// errors carry a list there; anything else falls back to the raw text.
func readDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}

	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil && er.Detail != nil {
		switch d := er.Detail.(type) {
		case string:
			return d
		default:
			b, _ := json.Marshal(d)
			return string(b)
		}
	}
	return strings.TrimSpace(string(data))
}

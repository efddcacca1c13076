package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/tablesync/internal/core"
	"github.com/JonMunkholm/tablesync/internal/remote/remotetest"
	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T) (*Client, *remotetest.Server, *httptest.Server) {
	t.Helper()
	fake := remotetest.New()
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)
	return New(ts.URL, 5*time.Second), fake, ts
}

func uploadLetters(t *testing.T, c *Client) *core.Dataset {
	t.Helper()
	ds, err := c.Upload(context.Background(), "letters.csv", strings.NewReader("n,score\na,1\nb,2.5\nc,\n"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return ds
}

func TestClient_Upload(t *testing.T) {
	c, _, _ := newTestClient(t)
	ds := uploadLetters(t, c)

	if !strings.HasSuffix(ds.ID, "_letters.csv") {
		t.Errorf("ID = %q, want timestamp_letters.csv", ds.ID)
	}
	if diff := cmp.Diff([]string{"n", "score"}, ds.Schema.Columns); diff != "" {
		t.Errorf("columns mismatch:\n%s", diff)
	}
	if got := ds.Schema.DTypes["score"]; got != "DOUBLE" {
		t.Errorf("score dtype = %q, want DOUBLE", got)
	}
	want := []core.Row{
		{"n": "a", "score": float64(1)},
		{"n": "b", "score": 2.5},
		{"n": "c", "score": nil},
	}
	if diff := cmp.Diff(want, ds.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if ds.Message == "" {
		t.Error("Message is empty")
	}
}

func TestClient_UploadRejected(t *testing.T) {
	c, _, _ := newTestClient(t)

	_, err := c.Upload(context.Background(), "notes.txt", strings.NewReader("hello"))
	var rej *core.RemoteRejection
	if !errors.As(err, &rej) {
		t.Fatalf("Upload error = %v, want RemoteRejection", err)
	}
	if rej.Status != http.StatusBadRequest || rej.Detail != "Only CSV files are supported" {
		t.Errorf("rejection = %+v", rej)
	}
}

func TestClient_GenerateAPIURL(t *testing.T) {
	c, fake, _ := newTestClient(t)
	ds := uploadLetters(t, c)

	u, err := c.GenerateAPIURL(context.Background(), ds.ID)
	if err != nil {
		t.Fatalf("GenerateAPIURL: %v", err)
	}
	if want := "/api/data/" + remotetest.DefaultUser + "/" + ds.ID; u != want {
		t.Errorf("api url = %q, want %q", u, want)
	}
	if n := fake.ProvisionCount(ds.ID); n != 1 {
		t.Errorf("ProvisionCount = %d, want 1", n)
	}

	_, err = c.GenerateAPIURL(context.Background(), "missing")
	var rej *core.RemoteRejection
	if !errors.As(err, &rej) || rej.Status != http.StatusNotFound || rej.Detail != "Dataset not found" {
		t.Errorf("GenerateAPIURL(missing) error = %v", err)
	}
}

func TestClient_RowOperations(t *testing.T) {
	ctx := context.Background()
	c, fake, ts := newTestClient(t)
	ds := uploadLetters(t, c)

	rel, err := c.GenerateAPIURL(ctx, ds.ID)
	if err != nil {
		t.Fatal(err)
	}
	api := ts.URL + rel

	rows, err := c.UpdateCell(ctx, api, 2, "score", float64(7))
	if err != nil {
		t.Fatalf("UpdateCell: %v", err)
	}
	if rows[2]["score"] != float64(7) || len(rows) != 3 {
		t.Errorf("UpdateCell rows = %v", rows)
	}

	rows, err = c.AddRow(ctx, api, core.Row{"n": "d"})
	if err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	if len(rows) != 4 || rows[3]["n"] != "d" || rows[3]["score"] != nil {
		t.Errorf("AddRow rows = %v", rows)
	}

	if err := c.DeleteRow(ctx, api, 0); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	stored, _ := fake.Rows(ds.ID)
	if len(stored) != 3 || stored[0]["n"] != "b" {
		t.Errorf("store rows after delete = %v", stored)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	ctx := context.Background()
	c, fake, ts := newTestClient(t)
	ds := uploadLetters(t, c)
	api := ts.URL + "/api/data/" + ds.ID

	tests := []struct {
		name       string
		call       func() error
		wantStatus int
		wantDetail string
	}{
		{
			name:       "injected failure",
			call:       func() error { _, err := c.AddRow(ctx, api, core.Row{"n": "x"}); return err },
			wantStatus: http.StatusServiceUnavailable,
			wantDetail: "maintenance",
		},
		{
			name:       "unknown column",
			call:       func() error { _, err := c.UpdateCell(ctx, api, 0, "nope", "x"); return err },
			wantStatus: http.StatusBadRequest,
			wantDetail: "Column nope not found",
		},
		{
			name:       "row out of range",
			call:       func() error { return c.DeleteRow(ctx, api, 99) },
			wantStatus: http.StatusNotFound,
			wantDetail: "Row not found",
		},
	}

	fake.FailNext(remotetest.RouteAddRow, http.StatusServiceUnavailable, "maintenance")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var rej *core.RemoteRejection
			if !errors.As(err, &rej) {
				t.Fatalf("error = %v, want RemoteRejection", err)
			}
			if rej.Status != tt.wantStatus || rej.Detail != tt.wantDetail {
				t.Errorf("rejection = %+v, want %d %q", rej, tt.wantStatus, tt.wantDetail)
			}
		})
	}
}

func TestClient_NetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := New(url, time.Second)
	_, err := c.AddRow(context.Background(), url+"/api/data/x", core.Row{"n": "a"})
	if !core.IsNetwork(err) {
		t.Fatalf("error = %v, want NetworkError", err)
	}
	if got := core.MapError(err).Code; got != "NET001" {
		t.Errorf("MapError code = %q, want NET001", got)
	}
}

func TestClient_Cancelled(t *testing.T) {
	c, _, ts := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.DeleteRow(ctx, ts.URL+"/api/data/x", 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if core.IsNetwork(err) {
		t.Error("cancellation classified as network failure")
	}
}

func TestReadDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string detail", `{"detail":"Dataset not found"}`, "Dataset not found"},
		{"list detail", `{"detail":[{"loc":["query","dataset_id"],"msg":"field required"}]}`, `[{"loc":["query","dataset_id"],"msg":"field required"}]`},
		{"plain text", "Internal Server Error\n", "Internal Server Error"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := readDetail(strings.NewReader(tt.body)); got != tt.want {
				t.Errorf("readDetail() = %q, want %q", got, tt.want)
			}
		})
	}
}

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/tablesync/internal/core"
	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// renderJSON writes v as indented JSON.
func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderSessions writes the session list as a table. The active session is
// marked with an asterisk.
func renderSessions(w io.Writer, sessions []core.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "(no tables)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"", "ID", "Name", "Created", "Dataset", "State"})

	for _, s := range sessions {
		marker := ""
		if s.Active {
			marker = "*"
		}
		dataset := "-"
		if s.HasDataset {
			dataset = s.DatasetID
		}
		state := "live"
		if s.Archived {
			state = "archived"
		}
		t.AppendRow(table.Row{marker, s.ID, s.Name, s.CreatedAt.Local().Format(time.DateTime), dataset, state})
	}
	t.Render()
}

// renderPage writes one page of a table view. The first column is the row
// index that edit and delete take; placeholder slots render blank.
func renderPage(w io.Writer, page core.PageResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := table.Row{"#"}
	for _, col := range page.Columns {
		header = append(header, col+sortMarker(col, page.Sorts))
	}
	t.AppendHeader(header)

	for _, r := range page.Rows {
		row := table.Row{""}
		if !r.Placeholder {
			row[0] = r.Index
		}
		for _, col := range page.Columns {
			row = append(row, formatValue(r.Values[col]))
		}
		t.AppendRow(row)
	}

	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignRight}})
	t.Render()

	pages := page.TotalPages
	if pages == 0 {
		pages = 1
	}
	fmt.Fprintf(w, "Page %d of %d (%d rows)\n", page.Page+1, pages, page.TotalRows)
}

func sortMarker(col string, sorts []core.SortSpec) string {
	for _, s := range sorts {
		if s.Column != col {
			continue
		}
		if s.Dir == "desc" {
			return " ↓"
		}
		return " ↑"
	}
	return ""
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}

// renderNotification prints the outcome of a mutation.
func renderNotification(w io.Writer, n core.Notification) {
	if n.Code != "" {
		fmt.Fprintf(w, "%s (%s)\n", n.Message, n.Code)
		return
	}
	fmt.Fprintln(w, n.Message)
}

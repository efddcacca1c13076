package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/tablesync/internal/core"
	"github.com/spf13/cobra"
)

func newUploadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.csv>",
		Short: "Upload a CSV file as the table's dataset",
		Long: `Upload sends the file to the dataset store and replaces the table's local
mirror with the parsed result. Any previous dataset of the table is dropped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, err := a.session()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			m, note, err := a.svc.Upload(cmd.Context(), sid, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			if a.outputFlag == OutputJSON {
				return renderJSON(cmd.OutOrStdout(), m)
			}
			renderNotification(cmd.OutOrStdout(), note)
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows, %d columns (dataset %s)\n",
				m.Len(), len(m.Dataset.Schema.Columns), m.Dataset.ID)
			return nil
		},
	}
}

func newShowCommand(a *app) *cobra.Command {
	var (
		page int
		size int
		sort []string
		desc []string
		pad  bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one page of the table",
		Example: `  # First page with the configured page size
  tablesctl show

  # Second page of 10 rows, ordered by age (descending) then name
  tablesctl show --page 2 --size 10 --sort age --desc age --sort name`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sid, err := a.session()
			if err != nil {
				return err
			}
			if page < 1 {
				return fmt.Errorf("--page must be 1 or greater")
			}

			req := core.PageRequest{
				Page:     page - 1,
				PageSize: size,
				Sorts:    sortSpecs(sort, desc),
			}
			if cmd.Flags().Changed("pad") {
				req.Pad = &pad
			}
			result, err := a.svc.View(sid, req)
			if err != nil {
				return err
			}
			if a.outputFlag == OutputJSON {
				return renderJSON(cmd.OutOrStdout(), result)
			}
			renderPage(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number, starting at 1")
	cmd.Flags().IntVarP(&size, "size", "n", 0, "Rows per page (default: VIEW_PAGE_SIZE)")
	cmd.Flags().StringSliceVar(&sort, "sort", nil, "Sort column, repeatable (up to 2)")
	cmd.Flags().StringSliceVar(&desc, "desc", nil, "Sort column to order descending")
	cmd.Flags().BoolVar(&pad, "pad", false, "Fill short pages with blank rows (default: VIEW_PAD_ROWS)")
	return cmd
}

// sortSpecs builds sort levels in flag order. Columns named only in --desc
// are appended as descending levels.
func sortSpecs(sortCols, descCols []string) []core.SortSpec {
	descending := make(map[string]bool, len(descCols))
	for _, c := range descCols {
		descending[c] = true
	}

	var specs []core.SortSpec
	seen := make(map[string]bool)
	add := func(col string) {
		if col == "" || seen[col] {
			return
		}
		seen[col] = true
		dir := "asc"
		if descending[col] {
			dir = "desc"
		}
		specs = append(specs, core.SortSpec{Column: col, Dir: dir})
	}
	for _, c := range sortCols {
		add(c)
	}
	for _, c := range descCols {
		add(c)
	}
	return specs
}

func newEndpointCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoint",
		Short: "Print the public API URL of the table's dataset",
		Long: `Endpoint provisions a public API URL for the dataset on first use and
remembers it. If the store cannot provision one, a fallback URL derived from
the dataset id is printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sid, err := a.session()
			if err != nil {
				return err
			}
			u, err := a.svc.Endpoint(cmd.Context(), sid)
			if err != nil {
				return err
			}
			if a.outputFlag == OutputJSON {
				return renderJSON(cmd.OutOrStdout(), map[string]string{"endpoint": u})
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
}

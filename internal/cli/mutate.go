package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tablesync/internal/core"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newEditCommand(a *app) *cobra.Command {
	var typed bool

	cmd := &cobra.Command{
		Use:   "edit <row> <column> <value>",
		Short: "Set one cell through the dataset store",
		Long: `Edit sends the new value to the dataset store and updates the local table
with the rows the store returns. Values are sent as text unless --typed is
given, in which case JSON literals (numbers, true/false, null) keep their type.`,
		Example: `  tablesctl edit 0 name "Ann Lee"
  tablesctl edit 2 age 42 --typed`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, err := a.session()
			if err != nil {
				return err
			}
			row, err := parseRowIndex(args[0])
			if err != nil {
				return err
			}

			note, err := a.svc.EditCell(cmd.Context(), sid, row, args[1], parseValue(args[2], typed))
			if err != nil {
				return err
			}
			renderNotification(cmd.OutOrStdout(), note)
			return nil
		},
	}
	cmd.Flags().BoolVar(&typed, "typed", false, "Parse values as JSON literals")
	return cmd
}

func newAddCommand(a *app) *cobra.Command {
	var typed bool

	cmd := &cobra.Command{
		Use:     "add <column=value>...",
		Short:   "Append a row",
		Example: `  tablesctl add name=Dee age=52`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, err := a.session()
			if err != nil {
				return err
			}

			values := make(core.Row, len(args))
			for _, arg := range args {
				col, val, ok := strings.Cut(arg, "=")
				if !ok || col == "" {
					return fmt.Errorf("expected column=value, got %q", arg)
				}
				values[col] = parseValue(val, typed)
			}

			note, err := a.svc.AddRow(cmd.Context(), sid, values)
			if err != nil {
				return err
			}
			renderNotification(cmd.OutOrStdout(), note)
			return nil
		},
	}
	cmd.Flags().BoolVar(&typed, "typed", false, "Parse values as JSON literals")
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <row>",
		Short: "Delete the row at an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, err := a.session()
			if err != nil {
				return err
			}
			row, err := parseRowIndex(args[0])
			if err != nil {
				return err
			}

			note, err := a.svc.DeleteRow(cmd.Context(), sid, row)
			if err != nil {
				return err
			}
			renderNotification(cmd.OutOrStdout(), note)
			return nil
		},
	}
}

func parseRowIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("row must be a non-negative index, got %q", s)
	}
	return i, nil
}

// parseValue returns s as a string, or as the JSON literal it spells when
// typed is set. Anything that is not valid JSON stays a string.
func parseValue(s string, typed bool) any {
	if !typed {
		return s
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

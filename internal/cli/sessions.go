package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSessionsCommand(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ls"},
		Short:   "List tables",
		Example: `  # List open tables (* marks the active one)
  tablesctl sessions

  # Include archived tables
  tablesctl sessions --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions := a.svc.ListSessions(all)
			if a.outputFlag == OutputJSON {
				return renderJSON(cmd.OutOrStdout(), sessions)
			}
			renderSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include archived tables")
	return cmd
}

func newNewCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new [name]",
		Short: "Create a table and make it active",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.svc.CreateSession(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if a.outputFlag == OutputJSON {
				return renderJSON(cmd.OutOrStdout(), sess)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", sess.Name, sess.ID)
			return nil
		},
	}
}

func newUseCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Make a table the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.SetActive(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active table: %s\n", args[0])
			return nil
		},
	}
}

func newArchiveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Hide a table without discarding its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.ArchiveSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %s\n", args[0])
			return nil
		},
	}
}

func newRestoreCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Bring an archived table back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.RestoreSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", args[0])
			return nil
		},
	}
}

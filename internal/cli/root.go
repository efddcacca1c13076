// Package cli provides the tablesctl command-line interface.
//
// Every invocation opens the configured durable store, loads the session
// registry and works on one session (the active one unless --session is
// given), so state carries over between invocations exactly as it does across
// server restarts.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/JonMunkholm/tablesync/internal/config"
	"github.com/JonMunkholm/tablesync/internal/core"
	"github.com/JonMunkholm/tablesync/internal/logging"
	"github.com/JonMunkholm/tablesync/internal/remote"
	"github.com/JonMunkholm/tablesync/internal/storage"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var Version = "0.1.0"

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// app holds the state one command invocation shares across subcommands.
type app struct {
	lookup    config.LookupFunc
	newRemote func(cfg *config.Config) core.Remote

	sessionFlag string
	outputFlag  string

	cfg   *config.Config
	store storage.Store
	svc   *core.Service
}

func defaultApp() *app {
	return &app{
		lookup: os.LookupEnv,
		newRemote: func(cfg *config.Config) core.Remote {
			return remote.New(cfg.Remote.BaseURL, cfg.Remote.Timeout)
		},
	}
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultApp())
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tablesctl",
		Short: "Work with CSV tables mirrored from a dataset store",
		Long: `tablesctl uploads CSV files to a remote dataset store and keeps a local,
durable mirror of each table. Tables are edited through the store; the local
copy is only updated with what the store confirms.

Configuration comes from the environment (REMOTE_BASE_URL, STORE_DRIVER,
STORE_PATH, ...), the same variables the API server reads.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			return a.open(cmd.Context(), cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.sessionFlag, "session", "s", "", "Table session to use (default: the active one)")
	rootCmd.PersistentFlags().StringVarP(&a.outputFlag, "output", "o", OutputText, "Output format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{OutputText, OutputJSON}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(
		newSessionsCommand(a),
		newNewCommand(a),
		newUseCommand(a),
		newArchiveCommand(a),
		newRestoreCommand(a),
		newUploadCommand(a),
		newShowCommand(a),
		newEndpointCommand(a),
		newEditCommand(a),
		newAddCommand(a),
		newDeleteCommand(a),
	)

	return rootCmd
}

// Execute runs the root command and reports failures the way the engine
// phrases them for users.
func Execute() error {
	a := defaultApp()
	rootCmd := newRootCmd(a)
	err := rootCmd.Execute()
	_ = a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		return err
	}
	return nil
}

// describe prefers the user message for engine errors and falls back to the
// raw error for CLI usage mistakes.
func describe(err error) string {
	if msg := core.MapError(err); msg.Code != "ERR000" {
		return core.FormatUserError(err)
	}
	return err.Error()
}

// open loads configuration, the durable store and the session registry.
func (a *app) open(ctx context.Context, logOut io.Writer) error {
	if a.svc != nil {
		return nil
	}

	cfg, err := config.LoadFrom(a.lookup)
	if err != nil {
		return err
	}
	if a.outputFlag != OutputText && a.outputFlag != OutputJSON {
		return fmt.Errorf("unknown output format %q (want text or json)", a.outputFlag)
	}

	// Logs go to stderr so tables on stdout stay clean.
	logging.SetupWriter(logOut, cfg.Logging.Level, cfg.Logging.Format)

	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	svc := core.NewService(store, a.newRemote(cfg), cfg)
	if err := svc.Start(ctx); err != nil {
		store.Close()
		return err
	}

	a.cfg, a.store, a.svc = cfg, store, svc
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store, a.svc = nil, nil
	return err
}

// session returns the session a command acts on.
func (a *app) session() (string, error) {
	if a.sessionFlag != "" {
		return a.sessionFlag, nil
	}
	active, ok := a.svc.ActiveSession()
	if !ok {
		return "", fmt.Errorf("no active table; create one with `tablesctl new` or pass --session")
	}
	return active.ID, nil
}

// Package cli wires the tend commands: the authority (`serve`), the
// reconciler (`sync`) and the purely-local mutation commands everything
// else operates through.
package cli

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tend/internal/config"
	"tend/internal/store"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
	DB         string
	Verbose    bool

	cfg config.Config
}

// Config returns the loaded configuration tree.
func (o *RootOptions) Config() config.Config { return o.cfg }

// NewRootCommand creates the root command for the tend CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tend",
		Short: "Offline-first recurring reminders",
		Long: `tend keeps recurring reminders on this device and reconciles them
with an authority server on the local network when one is reachable.

Every mutation works offline; run "tend sync" to push queued changes
and pull the authoritative state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(opts.Verbose)
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.DB != "" {
				cfg.Client.DBPath = opts.DB
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "path to local SQLite database")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewDoneCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

// setupLogging configures the process-wide slog handler.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// openStore opens the local mirror, creating its parent directory on first
// use.
func openStore(opts *RootOptions) (*store.Store, error) {
	path := opts.cfg.Client.DBPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return store.Open(path)
}

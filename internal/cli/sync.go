package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tend/internal/reconcile"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Endpoint string
	Token    string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile with the authority",
		Long: `Push queued offline changes to the authority in order, then replace
the local mirror with the authoritative snapshot.

The endpoint resolves from --endpoint, then the endpoint the previous
sync used, then mDNS discovery. On failure, applied changes stay
applied and unapplied ones stay queued; running sync again resumes
from the failure point.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "authority API base (e.g. http://host:8000/api)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token (overrides config)")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	cfg := opts.Config().Client

	token := opts.Token
	if token == "" {
		token = cfg.Token
	}
	if token == "" {
		return WrapExitError(ExitCommandError, "no bearer token configured", nil)
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = cfg.Endpoint
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open local store", err)
	}
	defer st.Close()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	// A second signal kills the process; the first lets the in-flight
	// dispatch finish and stops between changes.
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := reconcile.New(st, reconcile.Options{
		HistoryLimit:     cfg.HistoryLimit,
		CallTimeout:      cfg.CallTimeout,
		DiscoveryTimeout: cfg.DiscoveryTimeout,
		Logger:           slog.Default(),
	})

	result, err := rec.Sync(ctx, token, endpoint)
	if err != nil {
		if result.Pushed > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d change(s) before failing.\n", result.Pushed)
		}
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Synced: pushed %d change(s), %d event(s) on authority.\n",
		result.Pushed, result.RemoteCount)
	return nil
}

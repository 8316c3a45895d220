package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tend/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authority server",
		Long: `Run the authority server: the source of truth that clients on the
local network reconcile against.

On first run a bearer token and a server identity are generated and
persisted in the data directory; the token is printed so client
devices can be paired. The server advertises itself over mDNS unless
disabled in the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	cfg := opts.Config().Server
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create data dir", err)
	}

	srv, err := server.New(cfg, slog.Default())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start authority", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			slog.Error("error closing authority database", "error", closeErr)
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "========================================")
	fmt.Fprintln(out, "tend authority")
	fmt.Fprintf(out, "Token:     %s\n", srv.Token)
	fmt.Fprintf(out, "Server ID: %s\n", srv.ServerID)
	fmt.Fprintln(out, "========================================")

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := srv.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "authority error", err)
	}
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending changes and the last-used endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open local store", err)
			}
			defer st.Close()

			ctx := cmd.Context()
			pending, err := st.CountPending(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read queue", err)
			}
			endpoint, err := st.LastEndpoint(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read endpoint", err)
			}
			events, err := st.ListEvents(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list events", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Events:          %d\n", len(events))
			fmt.Fprintf(out, "Pending changes: %d\n", pending)
			if endpoint == "" {
				fmt.Fprintln(out, "Last endpoint:   (none, will discover)")
			} else {
				fmt.Fprintf(out, "Last endpoint:   %s\n", endpoint)
			}
			return nil
		},
	}
	return cmd
}

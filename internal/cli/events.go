package cli

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tend/internal/model"
	"tend/internal/store"
)

// eventFlags carries the mutable event fields as command flags.
type eventFlags struct {
	Name    string
	Tag     string
	Details string
	Due     string
	Every   int
	Unit    string
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Name, "name", "", "event name")
	cmd.Flags().StringVar(&f.Tag, "tag", "", "optional tag")
	cmd.Flags().StringVar(&f.Details, "details", "", "optional free-text details")
	cmd.Flags().StringVar(&f.Due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.Every, "every", 0, "repeat interval value")
	cmd.Flags().StringVar(&f.Unit, "unit", "", "repeat interval unit (days|weeks|months|years)")
}

func parseEventID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid event id %q", arg), nil)
	}
	return id, nil
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &eventFlags{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an event locally",
		Long: `Create an event in the local store and queue its creation for the
next sync. The event gets a temporary negative identifier until the
authority assigns one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			due, err := model.ParseDate(flags.Due)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --due", err)
			}
			unit, err := model.ParseFrequencyUnit(flags.Unit)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --unit", err)
			}

			st, err := openStore(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open local store", err)
			}
			defer st.Close()

			event, err := st.SaveLocal(cmd.Context(), nil, model.EventFields{
				Name:           flags.Name,
				Tag:            flags.Tag,
				Details:        flags.Details,
				DueDate:        due,
				FrequencyValue: flags.Every,
				FrequencyUnit:  unit,
			})
			if err != nil {
				return WrapExitError(ExitFailure, "failed to save event", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added %q (id %d), due %s, every %s.\n",
				event.Name, event.ID, event.DueDate, event.FrequencyText())
			return nil
		},
	}

	flags.register(cmd)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("due")
	_ = cmd.MarkFlagRequired("every")
	_ = cmd.MarkFlagRequired("unit")

	return cmd
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &eventFlags{}

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit an event locally",
		Long: `Edit an event in the local store. Only the provided flags change;
the queued mutation captures the whole record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEventID(args[0])
			if err != nil {
				return err
			}

			st, err := openStore(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open local store", err)
			}
			defer st.Close()

			event, err := st.GetEvent(cmd.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				return WrapExitError(ExitFailure, fmt.Sprintf("event %d not found", id), nil)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load event", err)
			}

			fields := model.EventFields{
				Name:           event.Name,
				Tag:            event.Tag,
				Details:        event.Details,
				DueDate:        event.DueDate,
				FrequencyValue: event.FrequencyValue,
				FrequencyUnit:  event.FrequencyUnit,
			}
			if cmd.Flags().Changed("name") {
				fields.Name = flags.Name
			}
			if cmd.Flags().Changed("tag") {
				fields.Tag = flags.Tag
			}
			if cmd.Flags().Changed("details") {
				fields.Details = flags.Details
			}
			if cmd.Flags().Changed("due") {
				fields.DueDate, err = model.ParseDate(flags.Due)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --due", err)
				}
			}
			if cmd.Flags().Changed("every") {
				fields.FrequencyValue = flags.Every
			}
			if cmd.Flags().Changed("unit") {
				fields.FrequencyUnit, err = model.ParseFrequencyUnit(flags.Unit)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --unit", err)
				}
			}

			updated, err := st.SaveLocal(cmd.Context(), &id, fields)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to save event", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Updated %q (id %d), due %s, every %s.\n",
				updated.Name, updated.ID, updated.DueDate, updated.FrequencyText())
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

// NewDoneCommand creates the done command.
func NewDoneCommand(rootOpts *RootOptions) *cobra.Command {
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark an event done",
		Long: `Mark an event done as of a date (today by default): records a history
entry and advances the due date by the event's repeat interval.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEventID(args[0])
			if err != nil {
				return err
			}

			done := model.Today()
			if dateFlag != "" {
				if done, err = model.ParseDate(dateFlag); err != nil {
					return WrapExitError(ExitCommandError, "invalid --date", err)
				}
			}

			st, err := openStore(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open local store", err)
			}
			defer st.Close()

			event, err := st.MarkDoneLocal(cmd.Context(), id, done)
			if errors.Is(err, store.ErrNotFound) {
				return WrapExitError(ExitFailure, fmt.Sprintf("event %d not found", id), nil)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to mark done", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Done %q on %s; next due %s.\n",
				event.Name, done, event.DueDate)
			return nil
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "completion date (YYYY-MM-DD, default today)")
	return cmd
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an event locally",
		Long: `Delete an event: it disappears from listings immediately and the
deletion is queued for the next sync.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEventID(args[0])
			if err != nil {
				return err
			}

			st, err := openStore(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open local store", err)
			}
			defer st.Close()

			err = st.DeleteLocal(cmd.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				return WrapExitError(ExitFailure, fmt.Sprintf("event %d not found", id), nil)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to delete event", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted event %d.\n", id)
			return nil
		},
	}
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open local store", err)
			}
			defer st.Close()

			events, err := st.ListEvents(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list events", err)
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No events.")
				return nil
			}

			today := model.Today()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDUE\tEVERY\tTAG\t")
			for _, e := range events {
				marker := ""
				if e.Overdue(today) {
					marker = "  (overdue)"
				}
				fmt.Fprintf(w, "%d\t%s\t%s%s\t%s\t%s\t\n",
					e.ID, e.Name, e.DueDate, marker, e.FrequencyText(), e.Tag)
			}
			return w.Flush()
		},
	}
	return cmd
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show an event's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEventID(args[0])
			if err != nil {
				return err
			}

			st, err := openStore(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open local store", err)
			}
			defer st.Close()

			event, err := st.GetEvent(cmd.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				return WrapExitError(ExitFailure, fmt.Sprintf("event %d not found", id), nil)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load event", err)
			}

			if len(event.History) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No history for %q.\n", event.Name)
				return nil
			}
			for _, h := range event.History {
				line := fmt.Sprintf("%s  %s", h.ActionDate, h.Action)
				if h.Note != "" {
					line += "  (" + h.Note + ")"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	return cmd
}

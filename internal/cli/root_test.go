package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tend", cmd.Use)
	assert.Contains(t, cmd.Long, "offline")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "sync", "add", "edit", "done", "rm", "list", "history", "status"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestAddCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	addCmd, _, err := cmd.Find([]string{"add"})
	require.NoError(t, err)

	for _, name := range []string{"name", "tag", "details", "due", "every", "unit"} {
		assert.NotNil(t, addCmd.Flags().Lookup(name), "add should have --%s", name)
	}
}

func TestSyncCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	syncCmd, _, err := cmd.Find([]string{"sync"})
	require.NoError(t, err)

	require.NotNil(t, syncCmd.Flags().Lookup("endpoint"))
	require.NotNil(t, syncCmd.Flags().Lookup("token"))
}

// runCommand executes the CLI against a throwaway database.
func runCommand(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--db", dbPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestAddThenList(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tend.db")

	out, err := runCommand(t, db, "add",
		"--name", "Water plants", "--due", "2024-01-10", "--every", "7", "--unit", "days")
	require.NoError(t, err)
	assert.Contains(t, out, "Added \"Water plants\"")
	assert.Contains(t, out, "id -1")

	out, err = runCommand(t, db, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Water plants")
	assert.Contains(t, out, "(overdue)")
}

func TestDoneAdvancesDueDate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tend.db")

	_, err := runCommand(t, db, "add",
		"--name", "Water plants", "--due", "2024-01-10", "--every", "7", "--unit", "days")
	require.NoError(t, err)

	// Negative IDs need the flag terminator so they are not read as flags.
	out, err := runCommand(t, db, "done", "--date", "2024-01-10", "--", "-1")
	require.NoError(t, err)
	assert.Contains(t, out, "next due 2024-01-17")

	out, err = runCommand(t, db, "history", "--", "-1")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-01-10  done")
}

func TestRemoveHidesEvent(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tend.db")

	_, err := runCommand(t, db, "add",
		"--name", "Water plants", "--due", "2024-01-10", "--every", "7", "--unit", "days")
	require.NoError(t, err)

	out, err := runCommand(t, db, "rm", "--", "-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted event -1")

	out, err = runCommand(t, db, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No events.")
}

func TestEditUnknownEvent(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tend.db")

	_, err := runCommand(t, db, "edit", "7", "--name", "Renamed")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "not found")
}

func TestAddRejectsBadDate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tend.db")

	_, err := runCommand(t, db, "add",
		"--name", "Water plants", "--due", "not-a-date", "--every", "7", "--unit", "days")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStatusShowsPendingCount(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tend.db")

	_, err := runCommand(t, db, "add",
		"--name", "Water plants", "--due", "2024-01-10", "--every", "7", "--unit", "days")
	require.NoError(t, err)

	out, err := runCommand(t, db, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending changes: 1")
}

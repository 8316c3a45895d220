package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tend/internal/model"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := OpenRepo(filepath.Join(t.TempDir(), "authority.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func repoDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func repoFields(t *testing.T, name string) model.EventFields {
	t.Helper()
	return model.EventFields{
		Name:           name,
		DueDate:        repoDate(t, "2024-01-10"),
		FrequencyValue: 7,
		FrequencyUnit:  model.UnitDays,
	}
}

func TestRepo_CreateAssignsSequentialIDs(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	first, err := repo.CreateEvent(ctx, repoFields(t, "Water plants"))
	require.NoError(t, err)
	second, err := repo.CreateEvent(ctx, repoFields(t, "Laundry"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Nil(t, first.LastDone)
}

func TestRepo_CreateValidates(t *testing.T) {
	repo := openTestRepo(t)

	fields := repoFields(t, "")
	_, err := repo.CreateEvent(context.Background(), fields)
	assert.Error(t, err)
}

func TestRepo_ListOrdersByDueDateThenName(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	later := repoFields(t, "Zebra chore")
	later.DueDate = repoDate(t, "2024-02-01")
	_, err := repo.CreateEvent(ctx, later)
	require.NoError(t, err)

	_, err = repo.CreateEvent(ctx, repoFields(t, "banana chore"))
	require.NoError(t, err)
	_, err = repo.CreateEvent(ctx, repoFields(t, "Apple chore"))
	require.NoError(t, err)

	events, err := repo.ListEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Apple chore", events[0].Name, "same due date sorts case-insensitively")
	assert.Equal(t, "banana chore", events[1].Name)
	assert.Equal(t, "Zebra chore", events[2].Name)
}

func TestRepo_UpdatePartial(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, model.EventFields{
		Name: "Water plants", Tag: "home",
		DueDate: repoDate(t, "2024-01-10"), FrequencyValue: 7, FrequencyUnit: model.UnitDays,
	})
	require.NoError(t, err)

	name := "Water all plants"
	updated, err := repo.UpdateEvent(ctx, created.ID, EventUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Water all plants", updated.Name)
	assert.Equal(t, "home", updated.Tag, "unspecified fields stay put")

	// An explicit empty string clears an optional field.
	empty := ""
	updated, err = repo.UpdateEvent(ctx, created.ID, EventUpdate{Tag: &empty})
	require.NoError(t, err)
	assert.Empty(t, updated.Tag)
}

func TestRepo_UpdateValidates(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, repoFields(t, "Water plants"))
	require.NoError(t, err)

	bad := 0
	_, err = repo.UpdateEvent(ctx, created.ID, EventUpdate{FrequencyValue: &bad})
	assert.Error(t, err)

	name := "x"
	_, err = repo.UpdateEvent(ctx, 999, EventUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepo_Delete(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, repoFields(t, "Water plants"))
	require.NoError(t, err)

	require.NoError(t, repo.DeleteEvent(ctx, created.ID))
	_, err = repo.GetEvent(ctx, created.ID, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.DeleteEvent(ctx, created.ID), ErrNotFound)
}

func TestRepo_CompleteAdvancesDueDate(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, repoFields(t, "Water plants"))
	require.NoError(t, err)

	done := repoDate(t, "2024-01-10")
	completed, err := repo.CompleteEvent(ctx, created.ID, &done)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-17", completed.DueDate.String())
	require.NotNil(t, completed.LastDone)
	assert.Equal(t, "2024-01-10", completed.LastDone.String())

	history, err := repo.History(ctx, created.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.ActionDone, history[0].Action)
	assert.Equal(t, "2024-01-10", history[0].ActionDate.String())
	assert.Positive(t, history[0].ID)
}

func TestRepo_CompleteRepeatedlyBuildsHistory(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, repoFields(t, "Water plants"))
	require.NoError(t, err)

	for _, day := range []string{"2024-01-10", "2024-01-17", "2024-01-24"} {
		d := repoDate(t, day)
		_, err := repo.CompleteEvent(ctx, created.ID, &d)
		require.NoError(t, err)
	}

	history, err := repo.History(ctx, created.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "2024-01-24", history[0].ActionDate.String(), "newest first")
	assert.Equal(t, "2024-01-10", history[2].ActionDate.String())

	limited, err := repo.History(ctx, created.ID, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "2024-01-24", limited[0].ActionDate.String())
}

func TestRepo_DeleteCascadesHistory(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, repoFields(t, "Water plants"))
	require.NoError(t, err)
	done := repoDate(t, "2024-01-10")
	_, err = repo.CompleteEvent(ctx, created.ID, &done)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteEvent(ctx, created.ID))

	var count int
	require.NoError(t, repo.db.QueryRow(
		`SELECT COUNT(*) FROM event_history WHERE event_id = ?`, created.ID).Scan(&count))
	assert.Equal(t, 0, count)
}

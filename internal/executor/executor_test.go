package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmind/taskmind-backend/internal/models"
	"github.com/taskmind/taskmind-backend/internal/repository/memory"
)

func newTestExecutor() (*Executor, *memory.TaskStore) {
	store := memory.NewTaskStore()
	return New(store, nil), store
}

func seedTask(t *testing.T, store *memory.TaskStore, userID uuid.UUID, title string, completed bool) *models.Task {
	t.Helper()
	task := &models.Task{UserID: userID, Title: title, IsCompleted: completed, Priority: "medium"}
	require.NoError(t, store.Create(context.Background(), task))
	return task
}

func createAction(userID uuid.UUID, kind models.ActionKind, params models.ActionParams) *models.TaskAction {
	return &models.TaskAction{
		ID:     uuid.New(),
		UserID: userID,
		Kind:   kind,
		Params: params,
	}
}

func TestExecuteCreate(t *testing.T) {
	e, store := newTestExecutor()
	userID := uuid.New()
	due := time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC)

	res, err := e.Execute(context.Background(), createAction(userID, models.ActionCreate, models.ActionParams{
		Create: &models.CreateParams{Title: "Buy milk", DueDate: &due},
	}))
	require.NoError(t, err)
	require.NotNil(t, res.TaskID)
	assert.Contains(t, res.Message, "Buy milk")
	assert.Contains(t, res.Message, "December 18, 2025")

	task, err := store.Get(context.Background(), userID, *res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", task.Title)
	// Priority defaults when the extractor left it blank.
	assert.Equal(t, "medium", task.Priority)
	assert.False(t, task.IsCompleted)
}

func TestExecuteUpdateByTitleKeyword(t *testing.T) {
	e, store := newTestExecutor()
	userID := uuid.New()
	seeded := seedTask(t, store, userID, "Team meeting", false)

	newTitle := "Team standup"
	res, err := e.Execute(context.Background(), createAction(userID, models.ActionUpdate, models.ActionParams{
		Update: &models.UpdateParams{Target: "meeting", Title: &newTitle},
	}))
	require.NoError(t, err)
	require.NotNil(t, res.TaskID)
	assert.Equal(t, seeded.ID, *res.TaskID)

	task, err := store.Get(context.Background(), userID, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Team standup", task.Title)
}

func TestExecuteUpdateByNumericID(t *testing.T) {
	e, store := newTestExecutor()
	userID := uuid.New()
	seeded := seedTask(t, store, userID, "Call dentist", false)

	desc := "ask about friday"
	_, err := e.Execute(context.Background(), createAction(userID, models.ActionUpdate, models.ActionParams{
		Update: &models.UpdateParams{Target: "1", Description: &desc},
	}))
	require.NoError(t, err)

	task, err := store.Get(context.Background(), userID, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "ask about friday", task.Description)
	assert.Equal(t, "Call dentist", task.Title)
}

func TestExecuteCompleteToggles(t *testing.T) {
	e, store := newTestExecutor()
	userID := uuid.New()
	seeded := seedTask(t, store, userID, "Buy groceries", false)
	action := createAction(userID, models.ActionComplete, models.ActionParams{
		Complete: &models.CompleteParams{Target: "groceries"},
	})

	res, err := e.Execute(context.Background(), action)
	require.NoError(t, err)
	assert.Contains(t, res.Message, "marked as complete")

	task, err := store.Get(context.Background(), userID, seeded.ID)
	require.NoError(t, err)
	assert.True(t, task.IsCompleted)

	// A second completion reopens the task.
	res, err = e.Execute(context.Background(), action)
	require.NoError(t, err)
	assert.Contains(t, res.Message, "marked as incomplete")

	task, err = store.Get(context.Background(), userID, seeded.ID)
	require.NoError(t, err)
	assert.False(t, task.IsCompleted)
}

func TestExecuteDeleteSingle(t *testing.T) {
	e, store := newTestExecutor()
	userID := uuid.New()
	seeded := seedTask(t, store, userID, "Dentist appointment", false)

	res, err := e.Execute(context.Background(), createAction(userID, models.ActionDelete, models.ActionParams{
		Delete: &models.DeleteParams{Target: "dentist"},
	}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.DeletedCount)

	_, err = store.Get(context.Background(), userID, seeded.ID)
	assert.Error(t, err)
}

func TestExecuteDeleteBulkCompleted(t *testing.T) {
	e, store := newTestExecutor()
	userID := uuid.New()
	seedTask(t, store, userID, "done one", true)
	seedTask(t, store, userID, "done two", true)
	keep := seedTask(t, store, userID, "still open", false)

	res, err := e.Execute(context.Background(), createAction(userID, models.ActionDelete, models.ActionParams{
		Delete: &models.DeleteParams{Bulk: &models.BulkCriteria{Status: "completed"}},
	}))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.DeletedCount)
	assert.Contains(t, res.Message, "2 tasks deleted")

	remaining, err := store.ListByOwner(context.Background(), userID, models.TaskFilters{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, keep.ID, remaining[0].ID)
}

func TestExecuteQueryFormatsResults(t *testing.T) {
	e, store := newTestExecutor()
	userID := uuid.New()
	seedTask(t, store, userID, "Buy groceries", false)
	seedTask(t, store, userID, "Call dentist", true)

	res, err := e.Execute(context.Background(), createAction(userID, models.ActionQuery, models.ActionParams{
		Query: &models.QueryParams{},
	}))
	require.NoError(t, err)
	assert.Len(t, res.Tasks, 2)
	assert.Contains(t, res.Message, "You have 2 tasks")
	assert.Contains(t, res.Message, "○ Buy groceries")
	assert.Contains(t, res.Message, "✓ Call dentist")
}

func TestExecuteQueryWithStatusFilter(t *testing.T) {
	e, store := newTestExecutor()
	userID := uuid.New()
	seedTask(t, store, userID, "Buy groceries", false)
	seedTask(t, store, userID, "Call dentist", true)

	res, err := e.Execute(context.Background(), createAction(userID, models.ActionQuery, models.ActionParams{
		Query: &models.QueryParams{Filters: models.TaskFilters{Status: "pending"}},
	}))
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)
	assert.Contains(t, res.Message, "You have 1 task that are pending")
}

func TestExecuteQueryEmpty(t *testing.T) {
	e, _ := newTestExecutor()

	res, err := e.Execute(context.Background(), createAction(uuid.New(), models.ActionQuery, models.ActionParams{
		Query: &models.QueryParams{Filters: models.TaskFilters{Status: "completed"}},
	}))
	require.NoError(t, err)
	assert.Equal(t, "You don't have any tasks that are completed.", res.Message)
}

func TestResolveTargetNotFound(t *testing.T) {
	e, _ := newTestExecutor()

	_, err := e.Execute(context.Background(), createAction(uuid.New(), models.ActionComplete, models.ActionParams{
		Complete: &models.CompleteParams{Target: "ghost"},
	}))
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestResolveTargetAmbiguous(t *testing.T) {
	e, store := newTestExecutor()
	userID := uuid.New()
	seedTask(t, store, userID, "meeting with Bob", false)
	seedTask(t, store, userID, "meeting with Carol", false)

	_, err := e.Execute(context.Background(), createAction(userID, models.ActionDelete, models.ActionParams{
		Delete: &models.DeleteParams{Target: "meeting"},
	}))
	var ambiguous *AmbiguousTargetError
	require.True(t, errors.As(err, &ambiguous))
	assert.Len(t, ambiguous.Matches, 2)
}

func TestResolveTargetIsOwnerScoped(t *testing.T) {
	e, store := newTestExecutor()
	alice := uuid.New()
	bob := uuid.New()
	seedTask(t, store, alice, "Alice's secret", false)

	_, err := e.Execute(context.Background(), createAction(bob, models.ActionDelete, models.ActionParams{
		Delete: &models.DeleteParams{Target: "secret"},
	}))
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestResolveNumericIDFallsBackToTitle(t *testing.T) {
	e, store := newTestExecutor()
	userID := uuid.New()
	seedTask(t, store, userID, "route 66 road trip", false)

	task, err := e.ResolveTarget(context.Background(), userID, "66")
	require.NoError(t, err)
	assert.Equal(t, "route 66 road trip", task.Title)
}

func TestFormatQueryResultsTruncatesLongLists(t *testing.T) {
	tasks := make([]models.Task, 25)
	for i := range tasks {
		tasks[i] = models.Task{ID: int64(i + 1), Title: "task"}
	}
	out := FormatQueryResults(tasks, models.TaskFilters{})
	assert.Contains(t, out, "You have 25 tasks")
	assert.Contains(t, out, "...and 5 more.")
	assert.NotContains(t, out, "21. ")
}

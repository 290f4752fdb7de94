package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmind/taskmind-backend/internal/audit"
	"github.com/taskmind/taskmind-backend/internal/events"
	"github.com/taskmind/taskmind-backend/internal/executor"
	"github.com/taskmind/taskmind-backend/internal/extractor"
	"github.com/taskmind/taskmind-backend/internal/models"
	"github.com/taskmind/taskmind-backend/internal/repository/memory"
)

type brokerFixture struct {
	broker      *Broker
	tasks       *memory.TaskStore
	actions     *memory.ActionRepository
	broadcaster *events.Broadcaster
	audits      *memory.AuditRepository
}

func newFixture(t *testing.T) *brokerFixture {
	t.Helper()
	tasks := memory.NewTaskStore()
	actions := memory.NewActionRepository()
	broadcaster := events.NewBroadcaster(32)
	audits := memory.NewAuditRepository()
	b := New(
		actions,
		executor.New(tasks, nil),
		broadcaster,
		audit.NewService(audits, nil),
		nil,
		0.6,
		nil,
	)
	return &brokerFixture{broker: b, tasks: tasks, actions: actions, broadcaster: broadcaster, audits: audits}
}

func createDraft(title string, confidence float64) extractor.ActionDraft {
	return extractor.ActionDraft{
		Kind:       models.ActionCreate,
		Params:     models.ActionParams{Create: &models.CreateParams{Title: title}},
		Confidence: confidence,
	}
}

func (f *brokerFixture) propose(t *testing.T, userID uuid.UUID, draft extractor.ActionDraft) *models.TaskAction {
	t.Helper()
	action, err := f.broker.Propose(context.Background(), userID, uuid.New(), uuid.New(), draft)
	require.NoError(t, err)
	return action
}

func TestProposeCreatesPendingAction(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	sub := f.broadcaster.Subscribe(userID)
	defer f.broadcaster.Unsubscribe(sub)

	action := f.propose(t, userID, createDraft("Buy milk", 0.9))

	assert.Equal(t, models.ConfirmationPending, action.ConfirmationState)
	assert.Equal(t, models.ExecutionNotExecuted, action.ExecutionState)
	assert.Equal(t, userID, action.UserID)

	select {
	case ev := <-sub.C():
		assert.Equal(t, events.EventActionPending, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no action_pending event published")
	}

	// No task exists until the user confirms.
	tasks, err := f.tasks.ListByOwner(context.Background(), userID, models.TaskFilters{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestProposeLowConfidenceAsksForClarification(t *testing.T) {
	f := newFixture(t)

	_, err := f.broker.Propose(context.Background(), uuid.New(), uuid.New(), uuid.New(), createDraft("Buy milk", 0.5))

	var clarify *ClarificationError
	require.True(t, errors.As(err, &clarify))
	assert.NotEmpty(t, clarify.Question)
}

func TestProposeAmbiguousTargetAsksForClarification(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	ctx := context.Background()
	require.NoError(t, f.tasks.Create(ctx, &models.Task{UserID: userID, Title: "meeting with Bob"}))
	require.NoError(t, f.tasks.Create(ctx, &models.Task{UserID: userID, Title: "meeting with Carol"}))

	_, err := f.broker.Propose(ctx, userID, uuid.New(), uuid.New(), extractor.ActionDraft{
		Kind:       models.ActionDelete,
		Params:     models.ActionParams{Delete: &models.DeleteParams{Target: "meeting"}},
		Confidence: 0.9,
	})

	var clarify *ClarificationError
	require.True(t, errors.As(err, &clarify))
	assert.Len(t, clarify.Matches, 2)
}

func TestProposeInvalidParamsAsksForClarification(t *testing.T) {
	f := newFixture(t)

	_, err := f.broker.Propose(context.Background(), uuid.New(), uuid.New(), uuid.New(), extractor.ActionDraft{
		Kind:       models.ActionCreate,
		Params:     models.ActionParams{Create: &models.CreateParams{}},
		Confidence: 0.9,
	})

	var clarify *ClarificationError
	assert.True(t, errors.As(err, &clarify))
}

func TestConfirmExecutesAndPublishes(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	sub := f.broadcaster.Subscribe(userID)
	defer f.broadcaster.Unsubscribe(sub)

	action := f.propose(t, userID, createDraft("Buy milk", 0.9))

	outcome, err := f.broker.Confirm(context.Background(), userID, action.ID)
	require.NoError(t, err)
	assert.False(t, outcome.Replayed)
	require.NotNil(t, outcome.Result)

	assert.Equal(t, models.ConfirmationConfirmed, outcome.Action.ConfirmationState)
	assert.Equal(t, models.ExecutionSuccess, outcome.Action.ExecutionState)
	require.NotNil(t, outcome.Action.TaskID)
	assert.NotNil(t, outcome.Action.ConfirmedAt)
	assert.NotNil(t, outcome.Action.ExecutedAt)

	task, err := f.tasks.Get(context.Background(), userID, *outcome.Action.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", task.Title)

	var types []events.EventType
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.C():
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("expected 3 events, got %v", types)
		}
	}
	assert.Equal(t, []events.EventType{
		events.EventActionPending,
		events.EventTaskCreated,
		events.EventActionCompleted,
	}, types)
}

func TestConfirmIsIdempotentOnceConfirmed(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	action := f.propose(t, userID, createDraft("Buy milk", 0.9))
	ctx := context.Background()

	first, err := f.broker.Confirm(ctx, userID, action.ID)
	require.NoError(t, err)
	second, err := f.broker.Confirm(ctx, userID, action.ID)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Nil(t, second.Result)
	assert.Equal(t, first.Action.ExecutionState, second.Action.ExecutionState)

	// Still exactly one task.
	tasks, err := f.tasks.ListByOwner(ctx, userID, models.TaskFilters{})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestConfirmAfterRejectConflicts(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	action := f.propose(t, userID, createDraft("Buy milk", 0.9))
	ctx := context.Background()

	_, err := f.broker.Reject(ctx, userID, action.ID)
	require.NoError(t, err)

	_, err = f.broker.Confirm(ctx, userID, action.ID)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	tasks, err := f.tasks.ListByOwner(ctx, userID, models.TaskFilters{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRejectOnlyLegalFromPending(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	action := f.propose(t, userID, createDraft("Buy milk", 0.9))
	ctx := context.Background()

	rejected, err := f.broker.Reject(ctx, userID, action.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmationRejected, rejected.ConfirmationState)
	assert.Equal(t, models.ExecutionNotExecuted, rejected.ExecutionState)

	_, err = f.broker.Reject(ctx, userID, action.ID)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestRejectAfterConfirmConflicts(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	action := f.propose(t, userID, createDraft("Buy milk", 0.9))
	ctx := context.Background()

	_, err := f.broker.Confirm(ctx, userID, action.ID)
	require.NoError(t, err)

	_, err = f.broker.Reject(ctx, userID, action.ID)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestCrossOwnerConfirmIsRefusedAndAudited(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	attacker := uuid.New()
	action := f.propose(t, owner, createDraft("Buy milk", 0.9))
	ctx := context.Background()

	_, err := f.broker.Confirm(ctx, attacker, action.ID)
	assert.ErrorIs(t, err, ErrOwnershipViolation)
	_, err = f.broker.Reject(ctx, attacker, action.ID)
	assert.ErrorIs(t, err, ErrOwnershipViolation)

	// No state change.
	current, err := f.actions.Get(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmationPending, current.ConfirmationState)
	assert.Equal(t, models.ExecutionNotExecuted, current.ExecutionState)

	var violations int
	for _, e := range f.audits.Entries() {
		if e.Action == string(audit.EventOwnershipViolation) {
			violations++
		}
	}
	assert.Equal(t, 2, violations)
}

func TestExecutionFailureLandsOnFailedState(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	action := f.propose(t, userID, extractor.ActionDraft{
		Kind:       models.ActionComplete,
		Params:     models.ActionParams{Complete: &models.CompleteParams{Target: "ghost"}},
		Confidence: 0.9,
	})

	outcome, err := f.broker.Confirm(context.Background(), userID, action.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ConfirmationConfirmed, outcome.Action.ConfirmationState)
	assert.Equal(t, models.ExecutionFailed, outcome.Action.ExecutionState)
	require.NotNil(t, outcome.Action.ErrorDetail)
	assert.Contains(t, *outcome.Action.ErrorDetail, "not found")
}

func TestConcurrentConfirmsExecuteAtMostOnce(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	action := f.propose(t, userID, createDraft("Buy milk", 0.9))
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.broker.Confirm(ctx, userID, action.ID)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// Exactly one execution happened.
	tasks, err := f.tasks.ListByOwner(ctx, userID, models.TaskFilters{})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	final, err := f.actions.Get(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmationConfirmed, final.ConfirmationState)
	assert.Equal(t, models.ExecutionSuccess, final.ExecutionState)
}

func TestQueryActionGoesThroughConfirmation(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	ctx := context.Background()
	require.NoError(t, f.tasks.Create(ctx, &models.Task{UserID: userID, Title: "Buy milk"}))

	action := f.propose(t, userID, extractor.ActionDraft{
		Kind:       models.ActionQuery,
		Params:     models.ActionParams{Query: &models.QueryParams{}},
		Confidence: 0.9,
	})

	outcome, err := f.broker.Confirm(ctx, userID, action.ID)
	require.NoError(t, err)
	require.NotNil(t, outcome.Result)
	assert.Len(t, outcome.Result.Tasks, 1)
	assert.Equal(t, models.ExecutionSuccess, outcome.Action.ExecutionState)
	assert.Nil(t, outcome.Action.TaskID)
}

func TestListPendingIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	alice := uuid.New()
	bob := uuid.New()
	f.propose(t, alice, createDraft("a1", 0.9))
	f.propose(t, alice, createDraft("a2", 0.9))
	f.propose(t, bob, createDraft("b1", 0.9))

	pending, err := f.broker.ListPending(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	for _, a := range pending {
		assert.Equal(t, alice, a.UserID)
	}
}

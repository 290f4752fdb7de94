// Package broker owns the lifecycle of task actions: proposal, the
// confirmation gate, at-most-once execution, and the events and audit
// entries each transition emits.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/taskmind/taskmind-backend/internal/audit"
	"github.com/taskmind/taskmind-backend/internal/events"
	"github.com/taskmind/taskmind-backend/internal/executor"
	"github.com/taskmind/taskmind-backend/internal/extractor"
	"github.com/taskmind/taskmind-backend/internal/models"
	"github.com/taskmind/taskmind-backend/internal/observability"
	"github.com/taskmind/taskmind-backend/internal/repository"
)

var (
	// ErrOwnershipViolation means the caller does not own the action.
	ErrOwnershipViolation = errors.New("action belongs to another user")
	// ErrAlreadyResolved means the action left the pending state and the
	// requested transition is no longer legal.
	ErrAlreadyResolved = errors.New("action already resolved")
)

// ClarificationError is returned by Propose when the draft cannot become a
// pending action and the user must be asked a follow-up instead.
type ClarificationError struct {
	Question string
	// Matches lists candidate tasks when the target was ambiguous.
	Matches []models.Task
}

func (e *ClarificationError) Error() string {
	return "clarification needed: " + e.Question
}

// ConfirmOutcome is the result of a confirm call.
type ConfirmOutcome struct {
	Action *models.TaskAction
	// Result is set when this call performed the execution. It is nil on
	// an idempotent replay of an already-confirmed action.
	Result *executor.Result
	// Replayed marks an idempotent confirm of an already-confirmed action.
	Replayed bool
}

// Broker mediates between proposals, the user's consent, and execution.
type Broker struct {
	actions     repository.ActionRepository
	exec        *executor.Executor
	broadcaster *events.Broadcaster
	auditor     *audit.Service
	metrics     *observability.Metrics
	logger      *logrus.Logger

	confidenceThreshold float64
	now                 func() time.Time
}

func New(actions repository.ActionRepository, exec *executor.Executor, broadcaster *events.Broadcaster, auditor *audit.Service, metrics *observability.Metrics, confidenceThreshold float64, logger *logrus.Logger) *Broker {
	if logger == nil {
		logger = logrus.New()
	}
	if confidenceThreshold <= 0 {
		confidenceThreshold = 0.6
	}
	return &Broker{
		actions:             actions,
		exec:                exec,
		broadcaster:         broadcaster,
		auditor:             auditor,
		metrics:             metrics,
		logger:              logger,
		confidenceThreshold: confidenceThreshold,
		now:                 time.Now,
	}
}

// Propose turns an extracted draft into a pending action. Low confidence
// and ambiguous targets return a ClarificationError; the broker never
// auto-confirms.
func (b *Broker) Propose(ctx context.Context, userID, sessionID, messageID uuid.UUID, draft extractor.ActionDraft) (*models.TaskAction, error) {
	if draft.Confidence < b.confidenceThreshold {
		return nil, &ClarificationError{
			Question: "I'm not confident I understood that. Could you rephrase your request?",
		}
	}
	if err := draft.Params.Validate(draft.Kind); err != nil {
		return nil, &ClarificationError{
			Question: fmt.Sprintf("Could you provide more details? (%s)", err),
		}
	}

	// Single-target mutations are resolved up front so an ambiguous
	// keyword asks for clarification instead of parking a doomed action.
	if target := draft.Params.Target(draft.Kind); target != "" {
		_, err := b.exec.ResolveTarget(ctx, userID, target)
		var ambiguous *executor.AmbiguousTargetError
		if errors.As(err, &ambiguous) {
			return nil, &ClarificationError{
				Question: fmt.Sprintf("I found %d tasks matching '%s'. Which one did you mean?", len(ambiguous.Matches), target),
				Matches:  ambiguous.Matches,
			}
		}
		// Not-found is deferred to execution; the task may be created in
		// the meantime and the failure path records honest error detail.
		if err != nil && err != executor.ErrTargetNotFound {
			return nil, fmt.Errorf("resolve target: %w", err)
		}
	}

	now := b.now().UTC()
	action := &models.TaskAction{
		ID:                uuid.New(),
		SessionID:         sessionID,
		MessageID:         messageID,
		UserID:            userID,
		Kind:              draft.Kind,
		Params:            draft.Params,
		Confidence:        draft.Confidence,
		ConfirmationState: models.ConfirmationPending,
		ExecutionState:    models.ExecutionNotExecuted,
		ProposedAt:        now,
	}
	if err := b.actions.Create(ctx, action); err != nil {
		return nil, fmt.Errorf("persist action: %w", err)
	}

	if b.metrics != nil {
		b.metrics.ActionsProposed.WithLabelValues(string(draft.Kind)).Inc()
	}
	b.publish(userID, events.EventActionPending, map[string]interface{}{
		"action_id":  action.ID,
		"kind":       action.Kind,
		"confidence": action.Confidence,
	})
	b.auditAction(ctx, audit.EventActionProposed, action, "pending")

	return action, nil
}

// Confirm approves and synchronously executes a pending action. Exactly
// one of N concurrent confirms wins the transition and executes; a confirm
// of an already-confirmed action replays the stored outcome.
func (b *Broker) Confirm(ctx context.Context, userID, actionID uuid.UUID) (*ConfirmOutcome, error) {
	action, err := b.load(ctx, userID, actionID, "confirm")
	if err != nil {
		return nil, err
	}
	if action.ConfirmationState == models.ConfirmationRejected {
		return nil, ErrAlreadyResolved
	}

	now := b.now().UTC()
	won, err := b.actions.BeginExecution(ctx, actionID, now)
	if err != nil {
		return nil, fmt.Errorf("begin execution: %w", err)
	}
	if !won {
		// A concurrent confirm or reject got there first.
		current, err := b.actions.Get(ctx, actionID)
		if err != nil {
			return nil, err
		}
		if current.ConfirmationState == models.ConfirmationRejected {
			return nil, ErrAlreadyResolved
		}
		return &ConfirmOutcome{Action: current, Replayed: true}, nil
	}

	b.auditAction(ctx, audit.EventActionConfirmed, action, "confirmed")
	return b.execute(ctx, actionID)
}

// execute runs the action that this call just moved into (confirmed,
// executing) and records the terminal state.
func (b *Broker) execute(ctx context.Context, actionID uuid.UUID) (*ConfirmOutcome, error) {
	action, err := b.actions.Get(ctx, actionID)
	if err != nil {
		return nil, err
	}

	result, execErr := b.exec.Execute(ctx, action)
	now := b.now().UTC()

	if execErr != nil {
		detail := execErr.Error()
		if err := b.actions.FinishExecution(ctx, actionID, models.ExecutionFailed, nil, &detail, now); err != nil {
			return nil, fmt.Errorf("record failed execution: %w", err)
		}
		b.logger.WithError(execErr).WithFields(logrus.Fields{
			"action_id": actionID,
			"kind":      action.Kind,
		}).Warn("action execution failed")

		if b.metrics != nil {
			b.metrics.ActionsResolved.WithLabelValues(string(action.Kind), "failed").Inc()
		}
		b.auditAction(ctx, audit.EventActionFailed, action, detail)
		b.publish(action.UserID, events.EventActionCompleted, map[string]interface{}{
			"action_id": actionID,
			"kind":      action.Kind,
			"state":     models.ExecutionFailed,
			"error":     detail,
		})

		updated, err := b.actions.Get(ctx, actionID)
		if err != nil {
			return nil, err
		}
		return &ConfirmOutcome{Action: updated}, nil
	}

	if err := b.actions.FinishExecution(ctx, actionID, models.ExecutionSuccess, result.TaskID, nil, now); err != nil {
		return nil, fmt.Errorf("record execution: %w", err)
	}

	if b.metrics != nil {
		b.metrics.ActionsResolved.WithLabelValues(string(action.Kind), "executed").Inc()
	}
	b.auditAction(ctx, audit.EventActionExecuted, action, "success")
	b.publishMutation(action, result)
	b.publish(action.UserID, events.EventActionCompleted, map[string]interface{}{
		"action_id": actionID,
		"kind":      action.Kind,
		"state":     models.ExecutionSuccess,
	})

	updated, err := b.actions.Get(ctx, actionID)
	if err != nil {
		return nil, err
	}
	return &ConfirmOutcome{Action: updated, Result: result}, nil
}

// Reject declines a pending action. Only legal from the pending state.
func (b *Broker) Reject(ctx context.Context, userID, actionID uuid.UUID) (*models.TaskAction, error) {
	action, err := b.load(ctx, userID, actionID, "reject")
	if err != nil {
		return nil, err
	}

	won, err := b.actions.MarkRejected(ctx, actionID, b.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark rejected: %w", err)
	}
	if !won {
		return nil, ErrAlreadyResolved
	}

	if b.metrics != nil {
		b.metrics.ActionsResolved.WithLabelValues(string(action.Kind), "rejected").Inc()
	}
	b.auditAction(ctx, audit.EventActionRejected, action, "rejected")

	return b.actions.Get(ctx, actionID)
}

// ListPending returns the caller's unresolved actions, newest first.
func (b *Broker) ListPending(ctx context.Context, userID uuid.UUID) ([]models.TaskAction, error) {
	return b.actions.ListPending(ctx, userID)
}

// load fetches the action and enforces ownership. A cross-owner request is
// audited as a security event before it is refused.
func (b *Broker) load(ctx context.Context, userID, actionID uuid.UUID, op string) (*models.TaskAction, error) {
	action, err := b.actions.Get(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if action.UserID != userID {
		b.logger.WithFields(logrus.Fields{
			"action_id": actionID,
			"owner_id":  action.UserID,
			"caller_id": userID,
			"op":        op,
		}).Warn("cross-owner action access refused")
		if b.auditor != nil {
			ev := audit.NewEvent(audit.EventOwnershipViolation, &userID)
			ev.Resource = "task_action"
			ev.ResourceID = actionID.String()
			ev.Result = "denied"
			ev.Metadata["op"] = op
			b.auditor.Log(ctx, ev)
		}
		return nil, ErrOwnershipViolation
	}
	return action, nil
}

func (b *Broker) publish(owner uuid.UUID, eventType events.EventType, payload interface{}) {
	if b.broadcaster == nil {
		return
	}
	b.broadcaster.Publish(owner, events.Event{Type: eventType, Payload: payload})
}

// publishMutation emits the task-level event matching a successful
// mutation. Queries emit nothing beyond action_completed.
func (b *Broker) publishMutation(action *models.TaskAction, result *executor.Result) {
	switch action.Kind {
	case models.ActionCreate:
		b.publish(action.UserID, events.EventTaskCreated, result.Task)
	case models.ActionUpdate, models.ActionComplete:
		b.publish(action.UserID, events.EventTaskUpdated, result.Task)
	case models.ActionDelete:
		payload := map[string]interface{}{"deleted_count": result.DeletedCount}
		if result.TaskID != nil {
			payload["id"] = *result.TaskID
		}
		b.publish(action.UserID, events.EventTaskDeleted, payload)
	}
}

func (b *Broker) auditAction(ctx context.Context, eventType audit.EventType, action *models.TaskAction, result string) {
	if b.auditor == nil {
		return
	}
	ev := audit.NewEvent(eventType, &action.UserID)
	ev.Resource = "task_action"
	ev.ResourceID = action.ID.String()
	ev.Result = result
	ev.Metadata["kind"] = string(action.Kind)
	b.auditor.Log(ctx, ev)
}

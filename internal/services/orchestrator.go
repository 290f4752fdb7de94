package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/taskmind/taskmind-backend/internal/audit"
	"github.com/taskmind/taskmind-backend/internal/broker"
	"github.com/taskmind/taskmind-backend/internal/chat"
	"github.com/taskmind/taskmind-backend/internal/config"
	"github.com/taskmind/taskmind-backend/internal/events"
	"github.com/taskmind/taskmind-backend/internal/extractor"
	"github.com/taskmind/taskmind-backend/internal/models"
	"github.com/taskmind/taskmind-backend/internal/observability"
	"github.com/taskmind/taskmind-backend/internal/quota"
)

// ErrAIDisabled is returned when AI features are switched off for this
// deployment. The traditional CRUD path is unaffected.
var ErrAIDisabled = errors.New("AI features are disabled")

// QuotaExceededError carries the denial details for the 429 response.
type QuotaExceededError struct {
	Decision quota.Decision
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded, resets at %s", e.Decision.ResetAt.Format(time.RFC3339))
}

// ExtractorUnavailableError carries the degradation guidance for the 503
// response. The quota charge already happened.
type ExtractorUnavailableError struct {
	Message string
}

func (e *ExtractorUnavailableError) Error() string { return e.Message }

// ChatResponse is the outcome of handling one chat message.
type ChatResponse struct {
	Session          *models.ChatSession `json:"session"`
	UserMessage      *models.ChatMessage `json:"user_message"`
	AssistantMessage *models.ChatMessage `json:"assistant_message"`
	ProposedActions  []models.TaskAction `json:"proposed_actions,omitempty"`
	QuotaRemaining   int                 `json:"quota_remaining"`
}

// ChatOrchestrator drives the message pipeline: quota, session, extraction,
// proposal. It owns no state of its own; every step delegates to the
// component that does.
type ChatOrchestrator struct {
	quota       *quota.Ledger
	registry    *chat.Registry
	extractor   extractor.Extractor
	broker      *broker.Broker
	broadcaster *events.Broadcaster
	auditor     *audit.Service
	metrics     *observability.Metrics
	logger      *logrus.Logger

	aiEnabled bool
	warnBelow int
	now       func() time.Time
}

func NewChatOrchestrator(
	ledger *quota.Ledger,
	registry *chat.Registry,
	ext extractor.Extractor,
	actionBroker *broker.Broker,
	broadcaster *events.Broadcaster,
	auditor *audit.Service,
	metrics *observability.Metrics,
	cfg *config.Config,
	logger *logrus.Logger,
) *ChatOrchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &ChatOrchestrator{
		quota:       ledger,
		registry:    registry,
		extractor:   ext,
		broker:      actionBroker,
		broadcaster: broadcaster,
		auditor:     auditor,
		metrics:     metrics,
		logger:      logger,
		aiEnabled:   cfg.AIEnabled && ext != nil,
		warnBelow:   cfg.Quota.WarnBelow,
		now:         time.Now,
	}
}

// HandleMessage runs one user message through the pipeline. Quota is
// charged once admission succeeds, before the extractor call, so a timed
// out extraction still consumes budget.
func (o *ChatOrchestrator) HandleMessage(ctx context.Context, userID uuid.UUID, sessionID *uuid.UUID, content string) (*ChatResponse, error) {
	if !o.aiEnabled {
		return nil, ErrAIDisabled
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("message content is empty")
	}

	decision := o.quota.Admit(userID)
	if !decision.Allowed {
		if o.metrics != nil {
			o.metrics.QuotaDenials.WithLabelValues(string(decision.Window)).Inc()
		}
		if o.auditor != nil {
			ev := audit.NewEvent(audit.EventQuotaDenied, &userID)
			ev.Resource = "quota"
			ev.Result = "denied"
			ev.Metadata["window"] = string(decision.Window)
			ev.Metadata["reset_at"] = decision.ResetAt
			o.auditor.Log(ctx, ev)
		}
		return nil, &QuotaExceededError{Decision: decision}
	}

	session, err := o.resolveSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	userMsg, err := o.registry.AppendMessage(ctx, session, models.RoleUser, content, nil)
	if err != nil {
		return nil, err
	}

	// Budget is spent on the attempt, not the outcome.
	o.quota.RecordUsage(userID)
	remaining := o.quota.StatsFor(userID, quota.WindowDay).Remaining
	if remaining <= o.warnBelow && o.broadcaster != nil {
		o.broadcaster.Publish(userID, events.Event{
			Type: events.EventQuotaWarning,
			Payload: map[string]interface{}{
				"remaining": remaining,
				"reset_at":  o.quota.StatsFor(userID, quota.WindowDay).ResetAt,
			},
		})
	}

	sctx, err := o.registry.Context(ctx, session)
	if err != nil {
		return nil, err
	}

	started := o.now()
	result, err := o.extractor.Extract(ctx, content, sctx)
	if err != nil {
		return nil, fmt.Errorf("extract intent: %w", err)
	}
	if o.metrics != nil {
		o.metrics.ObserveExtractionLatency(o.now().Sub(started))
		o.metrics.MessagesHandled.WithLabelValues(string(result.Outcome)).Inc()
	}
	if len(result.InjectionPatterns) > 0 && o.auditor != nil {
		ev := audit.NewEvent(audit.EventInjectionDetected, &userID)
		ev.Resource = "chat_message"
		ev.ResourceID = userMsg.ID.String()
		ev.Metadata["patterns"] = result.InjectionPatterns
		o.auditor.Log(ctx, ev)
	}

	resp := &ChatResponse{
		Session:        session,
		UserMessage:    userMsg,
		QuotaRemaining: remaining,
	}

	switch result.Outcome {
	case extractor.OutcomeUnavailable:
		return nil, &ExtractorUnavailableError{Message: result.FallbackMessage}

	case extractor.OutcomeClarify:
		question := clarifyMessage(result.AmbiguousFields)
		resp.AssistantMessage, err = o.registry.AppendMessage(ctx, session, models.RoleAssistant, question, models.JSONB{
			"clarification_needed": true,
			"ambiguous_fields":     result.AmbiguousFields,
		})
		if err != nil {
			return nil, err
		}

	case extractor.OutcomeProposed:
		if err := o.propose(ctx, session, result, resp); err != nil {
			return nil, err
		}
	}

	if err := o.registry.SummarizeIfNeeded(ctx, session); err != nil {
		o.logger.WithError(err).WithField("session_id", session.ID).Warn("transcript compaction failed")
	}
	return resp, nil
}

// propose turns extraction drafts into pending actions, then writes the
// one assistant reply the outcome actually warrants: a consent prompt for
// whatever got parked, a follow-up question when every draft collapsed to
// a clarification. Actions reference the user message they were extracted
// from.
func (o *ChatOrchestrator) propose(ctx context.Context, session *models.ChatSession, result *extractor.ExtractionResult, resp *ChatResponse) error {
	var confirmations []string
	var clarifications []string

	for _, draft := range result.Drafts {
		action, err := o.broker.Propose(ctx, session.UserID, session.ID, resp.UserMessage.ID, draft)
		if err != nil {
			var clarify *broker.ClarificationError
			if errors.As(err, &clarify) {
				clarifications = append(clarifications, clarify.Question)
				continue
			}
			return err
		}
		resp.ProposedActions = append(resp.ProposedActions, *action)
		confirmations = append(confirmations, confirmationPrompt(draft))
	}

	var content string
	var metadata models.JSONB
	switch {
	case len(confirmations) > 0:
		content = strings.Join(confirmations, " ") + " Should I proceed?"
		if len(clarifications) > 0 {
			content += " " + strings.Join(clarifications, " ")
		}
		metadata = models.JSONB{"confidence": result.Confidence}
	case len(clarifications) > 0:
		content = strings.Join(clarifications, " ")
		metadata = models.JSONB{"clarification_needed": true}
	default:
		content = clarifyMessage(nil)
		metadata = models.JSONB{"clarification_needed": true}
	}

	assistantMsg, err := o.registry.AppendMessage(ctx, session, models.RoleAssistant, content, metadata)
	if err != nil {
		return err
	}
	resp.AssistantMessage = assistantMsg
	return nil
}

// ConfirmAction approves a pending action and appends its outcome to the
// session transcript as a system notification.
func (o *ChatOrchestrator) ConfirmAction(ctx context.Context, userID, actionID uuid.UUID) (*broker.ConfirmOutcome, error) {
	outcome, err := o.broker.Confirm(ctx, userID, actionID)
	if err != nil {
		return nil, err
	}
	o.notifyOutcome(ctx, userID, outcome)
	return outcome, nil
}

// RejectAction declines a pending action.
func (o *ChatOrchestrator) RejectAction(ctx context.Context, userID, actionID uuid.UUID) (*models.TaskAction, error) {
	return o.broker.Reject(ctx, userID, actionID)
}

// PendingActions lists the caller's unresolved proposals.
func (o *ChatOrchestrator) PendingActions(ctx context.Context, userID uuid.UUID) ([]models.TaskAction, error) {
	return o.broker.ListPending(ctx, userID)
}

// QuotaStats reports the caller's usage for one window.
func (o *ChatOrchestrator) QuotaStats(userID uuid.UUID, window quota.WindowKind) quota.Stats {
	return o.quota.StatsFor(userID, window)
}

// notifyOutcome records the execution result in the transcript. Failures
// here are logged only; the action state is already durable.
func (o *ChatOrchestrator) notifyOutcome(ctx context.Context, userID uuid.UUID, outcome *broker.ConfirmOutcome) {
	if outcome.Replayed || outcome.Action == nil {
		return
	}
	session, err := o.registry.GetOrCreate(ctx, userID)
	if err != nil || session.ID != outcome.Action.SessionID {
		return
	}

	content := ""
	switch {
	case outcome.Result != nil:
		content = outcome.Result.Message
	case outcome.Action.ErrorDetail != nil:
		content = "I couldn't complete that action: " + *outcome.Action.ErrorDetail
	}
	if content == "" {
		return
	}
	if _, err := o.registry.AppendMessage(ctx, session, models.RoleSystemNotification, content, models.JSONB{
		"action_id": outcome.Action.ID.String(),
	}); err != nil {
		o.logger.WithError(err).Warn("failed to append action outcome to transcript")
	}
}

func (o *ChatOrchestrator) resolveSession(ctx context.Context, userID uuid.UUID, sessionID *uuid.UUID) (*models.ChatSession, error) {
	if sessionID != nil {
		session, err := o.registry.Get(ctx, userID, *sessionID)
		if err == nil && session.IsActive {
			return session, nil
		}
		// Unknown or inactive id falls back to the live session.
	}
	return o.registry.GetOrCreate(ctx, userID)
}

func clarifyMessage(fields []string) string {
	if len(fields) == 0 {
		return "I didn't quite understand what you'd like to do. Could you try rephrasing?"
	}
	return fmt.Sprintf("I need some clarification. Could you provide more details about: %s?", strings.Join(fields, ", "))
}

// confirmationPrompt describes one draft the way the assistant asks for
// consent before anything runs.
func confirmationPrompt(draft extractor.ActionDraft) string {
	switch draft.Kind {
	case models.ActionCreate:
		p := draft.Params.Create
		parts := []string{fmt.Sprintf("I'll create a task titled '%s'", p.Title)}
		if p.Description != "" {
			parts = append(parts, fmt.Sprintf("with description: %s", p.Description))
		}
		if p.DueDate != nil {
			parts = append(parts, fmt.Sprintf("due %s", p.DueDate.Format("January 2, 2006")))
		}
		if p.Priority != "" && p.Priority != "medium" {
			parts = append(parts, fmt.Sprintf("with %s priority", p.Priority))
		}
		return strings.Join(parts, ". ") + "."
	case models.ActionUpdate:
		return fmt.Sprintf("I'll update the task matching '%s'.", draft.Params.Update.Target)
	case models.ActionComplete:
		return fmt.Sprintf("I'll toggle completion on the task matching '%s'.", draft.Params.Complete.Target)
	case models.ActionDelete:
		if draft.Params.Delete.Bulk != nil {
			return fmt.Sprintf("I'll delete all %s tasks.", draft.Params.Delete.Bulk.Status)
		}
		return fmt.Sprintf("I'll delete the task matching '%s'.", draft.Params.Delete.Target)
	case models.ActionQuery:
		return "I'll look up your tasks."
	}
	return "I'll perform the requested action."
}

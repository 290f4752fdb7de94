// Package extractor turns free-form chat messages into structured task
// action drafts using a language model, with sanitization and relative
// date resolution applied around the call.
package extractor

import (
	"context"

	"github.com/taskmind/taskmind-backend/internal/models"
)

// Outcome classifies an extraction attempt.
type Outcome string

const (
	// OutcomeProposed means at least one actionable draft was produced.
	OutcomeProposed Outcome = "proposed"
	// OutcomeClarify means the intent could not be pinned down and the
	// user should be asked a follow-up question.
	OutcomeClarify Outcome = "clarify"
	// OutcomeUnavailable means the model could not be reached or failed.
	// The caller degrades to manual task entry.
	OutcomeUnavailable Outcome = "unavailable"
)

// ActionDraft is one candidate action extracted from a message. Drafts are
// not yet persisted or validated against the owner's actual tasks.
type ActionDraft struct {
	Kind       models.ActionKind
	Params     models.ActionParams
	Confidence float64
}

// ExtractionResult is the full outcome of one extraction attempt.
type ExtractionResult struct {
	Outcome         Outcome
	Drafts          []ActionDraft
	Confidence      float64
	AmbiguousFields []string

	// FallbackMessage and UseTraditionalForm are set when Outcome is
	// OutcomeUnavailable and describe what to tell the user.
	FallbackMessage    string
	UseTraditionalForm bool

	// InjectionPatterns lists the prompt-injection patterns stripped from
	// the input before it reached the model.
	InjectionPatterns []string
}

// SessionContext carries the conversational state handed to the model.
type SessionContext struct {
	// Summary is the compacted transcript of older messages, if any.
	Summary string
	// Recent holds the most recent messages, oldest first.
	Recent []models.ChatMessage
}

// Extractor is the model-facing port. Implementations must be safe for
// concurrent use.
type Extractor interface {
	// Extract parses one user message into action drafts. Errors are
	// folded into the result as OutcomeUnavailable; a non-nil error is
	// reserved for programmer mistakes such as a nil context.
	Extract(ctx context.Context, input string, sctx SessionContext) (*ExtractionResult, error)

	// Summarize compacts a batch of messages into a short transcript
	// summary used as rolling session context.
	Summarize(ctx context.Context, messages []models.ChatMessage) (string, error)

	// Ping reports whether the backing model is reachable.
	Ping(ctx context.Context) error
}

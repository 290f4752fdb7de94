package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/taskmind/taskmind-backend/internal/config"
	"github.com/taskmind/taskmind-backend/internal/models"
)

const (
	// How many recent messages ride along as conversational context.
	contextWindow = 5

	confidenceWithDrafts = 0.9
	confidenceNoDrafts   = 0.5
)

// OpenAIExtractor extracts actions with an OpenAI chat model in JSON mode.
type OpenAIExtractor struct {
	client *openai.Client
	cfg    config.ExtractorConfig
	logger *logrus.Logger

	now func() time.Time
}

// NewOpenAIExtractor builds an extractor from config. The API key must be set.
func NewOpenAIExtractor(cfg config.ExtractorConfig, logger *logrus.Logger) (*OpenAIExtractor, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &OpenAIExtractor{
		client: openai.NewClient(cfg.APIKey),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Extract implements Extractor. Model failures never surface as errors;
// they become an OutcomeUnavailable result so the caller can degrade.
func (e *OpenAIExtractor) Extract(ctx context.Context, input string, sctx SessionContext) (*ExtractionResult, error) {
	cleaned, suspicious := Sanitize(input)
	if len(suspicious) > 0 {
		e.logger.WithFields(logrus.Fields{
			"matched_patterns": suspicious,
			"input_length":     len(input),
		}).Warn("possible prompt injection stripped from chat message")
	}

	result, err := e.extract(ctx, cleaned, sctx)
	if result != nil {
		result.InjectionPatterns = suspicious
	}
	return result, err
}

func (e *OpenAIExtractor) extract(ctx context.Context, cleaned string, sctx SessionContext) (*ExtractionResult, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
	}
	if sctx.Summary != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Conversation so far: " + sctx.Summary,
		})
	}
	recent := sctx.Recent
	if len(recent) > contextWindow {
		recent = recent[len(recent)-contextWindow:]
	}
	for _, msg := range recent {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    roleFor(msg.Role),
			Content: msg.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: cleaned,
	})

	callCtx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	started := e.now()
	resp, err := e.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:          e.cfg.Model,
		Messages:       messages,
		Temperature:    e.cfg.Temperature,
		MaxTokens:      e.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		e.logger.WithError(err).WithField("model", e.cfg.Model).Error("extraction request failed")
		return unavailableResult(err), nil
	}

	e.logger.WithFields(logrus.Fields{
		"model":         e.cfg.Model,
		"duration_ms":   e.now().Sub(started).Milliseconds(),
		"prompt_tokens": resp.Usage.PromptTokens,
		"output_tokens": resp.Usage.CompletionTokens,
	}).Info("extraction request completed")

	if len(resp.Choices) == 0 {
		return unavailableResult(errors.New("empty completion")), nil
	}

	var wire wireResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &wire); err != nil {
		e.logger.WithError(err).Warn("extraction response was not valid JSON")
		return &ExtractionResult{
			Outcome:         OutcomeUnavailable,
			FallbackMessage: "I had trouble understanding the AI response. Could you rephrase your request?",
		}, nil
	}

	confidence := confidenceNoDrafts
	if len(wire.Tasks) > 0 {
		confidence = confidenceWithDrafts
	}

	drafts, ambiguous := mapDrafts(wire.Tasks, e.now(), confidence)
	if len(drafts) == 0 {
		if len(ambiguous) == 0 {
			ambiguous = []string{"intent"}
		}
		return &ExtractionResult{
			Outcome:         OutcomeClarify,
			Confidence:      confidence,
			AmbiguousFields: ambiguous,
		}, nil
	}

	return &ExtractionResult{
		Outcome:         OutcomeProposed,
		Drafts:          drafts,
		Confidence:      confidence,
		AmbiguousFields: ambiguous,
	}, nil
}

// Summarize implements Extractor.
func (e *OpenAIExtractor) Summarize(ctx context.Context, msgs []models.ChatMessage) (string, error) {
	var transcript string
	for _, m := range msgs {
		transcript += fmt.Sprintf("%s: %s\n", m.Role, m.Content)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	resp, err := e.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: e.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarize transcript: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("summarize transcript: empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// Ping implements Extractor by listing models, the cheapest authenticated call.
func (e *OpenAIExtractor) Ping(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()
	_, err := e.client.ListModels(callCtx)
	return err
}

func (e *OpenAIExtractor) timeout() time.Duration {
	if e.cfg.Timeout > 0 {
		return e.cfg.Timeout
	}
	return 10 * time.Second
}

func roleFor(r models.MessageRole) string {
	switch r {
	case models.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case models.RoleSystemNotification:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

// unavailableResult maps a transport or API failure onto the degradation
// message shown to the user.
func unavailableResult(err error) *ExtractionResult {
	res := &ExtractionResult{
		Outcome:            OutcomeUnavailable,
		UseTraditionalForm: true,
	}

	var apiErr *openai.APIError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		res.FallbackMessage = "The AI service is taking too long to respond. Please try again, or use the traditional form."
	case errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429:
		res.FallbackMessage = "You've reached your AI request limit for now. Please try again later, or use the traditional form."
	case errors.As(err, &apiErr):
		res.FallbackMessage = "The AI service encountered an error. Please try again, or use the traditional form."
	default:
		res.FallbackMessage = "I'm having trouble connecting to the AI service. Please try again in a moment, or use the traditional form to create your task."
	}
	return res
}

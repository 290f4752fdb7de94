package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmind/taskmind-backend/internal/config"
	"github.com/taskmind/taskmind-backend/internal/extractor"
	"github.com/taskmind/taskmind-backend/internal/models"
	"github.com/taskmind/taskmind-backend/internal/repository/memory"
)

type stubSummarizer struct {
	summary string
	err     error
	calls   int
}

func (s *stubSummarizer) Extract(context.Context, string, extractor.SessionContext) (*extractor.ExtractionResult, error) {
	return &extractor.ExtractionResult{Outcome: extractor.OutcomeClarify}, nil
}

func (s *stubSummarizer) Summarize(_ context.Context, msgs []models.ChatMessage) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.summary, nil
}

func (s *stubSummarizer) Ping(context.Context) error { return nil }

func newTestRegistry(t *testing.T, ext extractor.Extractor) (*Registry, *time.Time) {
	t.Helper()
	now := time.Date(2025, 12, 17, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(
		memory.NewSessionRepository(),
		memory.NewMessageRepository(),
		ext,
		nil,
		config.ChatConfig{IdleTimeout: 24 * time.Hour, MessageWindow: 5, CompactBatch: 3},
		nil,
	)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestGetOrCreateReusesActiveSession(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	userID := uuid.New()
	ctx := context.Background()

	first, err := r.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	second, err := r.GetOrCreate(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.IsActive)
}

func TestGetOrCreateExpiresIdleSession(t *testing.T) {
	r, now := newTestRegistry(t, nil)
	userID := uuid.New()
	ctx := context.Background()

	first, err := r.GetOrCreate(ctx, userID)
	require.NoError(t, err)

	*now = now.Add(25 * time.Hour)

	second, err := r.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// The expired session is deactivated, not deleted.
	old, err := r.sessions.Get(ctx, userID, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
}

func TestGetOrCreateJustUnderIdleTimeoutReuses(t *testing.T) {
	r, now := newTestRegistry(t, nil)
	userID := uuid.New()
	ctx := context.Background()

	first, err := r.GetOrCreate(ctx, userID)
	require.NoError(t, err)

	*now = now.Add(24 * time.Hour)

	second, err := r.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestSessionsAreOwnerScoped(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	alice, err := r.GetOrCreate(ctx, uuid.New())
	require.NoError(t, err)
	bob, err := r.GetOrCreate(ctx, uuid.New())
	require.NoError(t, err)

	assert.NotEqual(t, alice.ID, bob.ID)
}

func TestAppendMessageBumpsActivity(t *testing.T) {
	r, now := newTestRegistry(t, nil)
	userID := uuid.New()
	ctx := context.Background()

	session, err := r.GetOrCreate(ctx, userID)
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	msg, err := r.AppendMessage(ctx, session, models.RoleUser, "add buy milk", nil)
	require.NoError(t, err)

	assert.Equal(t, session.ID, msg.SessionID)
	assert.Equal(t, 1, session.MessageCount)
	assert.Equal(t, *now, session.LastActivityAt)

	stored, err := r.sessions.Get(ctx, userID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.MessageCount)
	assert.Equal(t, *now, stored.LastActivityAt)
}

func TestContextReturnsSummaryAndRecentWindow(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	userID := uuid.New()
	ctx := context.Background()

	session, err := r.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	session.ContextSummary = "user created three grocery tasks"

	for i := 0; i < 8; i++ {
		_, err := r.AppendMessage(ctx, session, models.RoleUser, fmt.Sprintf("message %d", i), nil)
		require.NoError(t, err)
	}

	sctx, err := r.Context(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "user created three grocery tasks", sctx.Summary)
	// Window is 5, newest messages win, oldest first.
	require.Len(t, sctx.Recent, 5)
	assert.Equal(t, "message 3", sctx.Recent[0].Content)
	assert.Equal(t, "message 7", sctx.Recent[4].Content)
}

func TestSummarizeIfNeededCompactsOldestBatch(t *testing.T) {
	stub := &stubSummarizer{summary: "earlier: discussed groceries"}
	r, now := newTestRegistry(t, stub)
	userID := uuid.New()
	ctx := context.Background()

	session, err := r.GetOrCreate(ctx, userID)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		*now = now.Add(time.Second)
		_, err := r.AppendMessage(ctx, session, models.RoleUser, fmt.Sprintf("message %d", i), nil)
		require.NoError(t, err)
	}

	require.NoError(t, err)
	require.NoError(t, r.SummarizeIfNeeded(ctx, session))

	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, "earlier: discussed groceries", session.ContextSummary)

	count, err := r.messages.CountBySession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	remaining, err := r.messages.ListOldest(ctx, userID, session.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, "message 3", remaining[0].Content)
}

func TestSummarizeIfNeededBelowWindowDoesNothing(t *testing.T) {
	stub := &stubSummarizer{summary: "unused"}
	r, _ := newTestRegistry(t, stub)
	userID := uuid.New()
	ctx := context.Background()

	session, err := r.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := r.AppendMessage(ctx, session, models.RoleUser, "hi", nil)
		require.NoError(t, err)
	}

	require.NoError(t, r.SummarizeIfNeeded(ctx, session))
	assert.Equal(t, 0, stub.calls)
	assert.Empty(t, session.ContextSummary)
}

func TestSummarizeIfNeededSurvivesSummarizerOutage(t *testing.T) {
	stub := &stubSummarizer{err: fmt.Errorf("model offline")}
	r, now := newTestRegistry(t, stub)
	userID := uuid.New()
	ctx := context.Background()

	session, err := r.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		*now = now.Add(time.Second)
		_, err := r.AppendMessage(ctx, session, models.RoleUser, "hi", nil)
		require.NoError(t, err)
	}

	require.NoError(t, r.SummarizeIfNeeded(ctx, session))

	// Nothing was trimmed.
	count, err := r.messages.CountBySession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestSummarizeAppendsToExistingSummary(t *testing.T) {
	stub := &stubSummarizer{summary: "second batch"}
	r, now := newTestRegistry(t, stub)
	userID := uuid.New()
	ctx := context.Background()

	session, err := r.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	session.ContextSummary = "first batch"
	require.NoError(t, r.sessions.SetSummary(ctx, userID, session.ID, "first batch"))

	for i := 0; i < 7; i++ {
		*now = now.Add(time.Second)
		_, err := r.AppendMessage(ctx, session, models.RoleUser, "hi", nil)
		require.NoError(t, err)
	}

	require.NoError(t, r.SummarizeIfNeeded(ctx, session))
	assert.Equal(t, "first batch\nsecond batch", session.ContextSummary)
}

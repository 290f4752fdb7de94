// Package memory holds in-memory repository implementations. They honor
// the same ownership scoping and state-transition contracts as the
// postgres implementations and back the unit tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskmind/taskmind-backend/internal/models"
	"github.com/taskmind/taskmind-backend/internal/repository"
)

// SessionRepository is a map-backed repository.SessionRepository.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.ChatSession
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[uuid.UUID]*models.ChatSession)}
}

func (r *SessionRepository) Create(_ context.Context, session *models.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *SessionRepository) Get(_ context.Context, userID, id uuid.UUID) (*models.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SessionRepository) LatestActive(_ context.Context, userID uuid.UUID) (*models.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.ChatSession
	for _, s := range r.sessions {
		if s.UserID != userID || !s.IsActive {
			continue
		}
		if latest == nil || s.LastActivityAt.After(latest.LastActivityAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *SessionRepository) Touch(_ context.Context, userID, id uuid.UUID, at time.Time, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return repository.ErrNotFound
	}
	s.LastActivityAt = at
	s.MessageCount += delta
	return nil
}

func (r *SessionRepository) Deactivate(_ context.Context, userID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return repository.ErrNotFound
	}
	s.IsActive = false
	return nil
}

func (r *SessionRepository) SetSummary(_ context.Context, userID, id uuid.UUID, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return repository.ErrNotFound
	}
	s.ContextSummary = summary
	return nil
}

// MessageRepository is a slice-backed repository.MessageRepository.
type MessageRepository struct {
	mu       sync.Mutex
	messages []models.ChatMessage
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{}
}

func (r *MessageRepository) Create(_ context.Context, message *models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *message)
	return nil
}

func (r *MessageRepository) bySession(userID, sessionID uuid.UUID) []models.ChatMessage {
	var out []models.ChatMessage
	for _, m := range r.messages {
		if m.SessionID == sessionID && m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *MessageRepository) ListRecent(_ context.Context, userID, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.bySession(userID, sessionID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (r *MessageRepository) ListOldest(_ context.Context, userID, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.bySession(userID, sessionID)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *MessageRepository) Delete(_ context.Context, sessionID uuid.UUID, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	drop := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := r.messages[:0]
	for _, m := range r.messages {
		if _, ok := drop[m.ID]; ok && m.SessionID == sessionID {
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
	return nil
}

func (r *MessageRepository) CountBySession(_ context.Context, sessionID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

// ActionRepository is a map-backed repository.ActionRepository. The
// conditional transitions hold the lock across check and write, matching
// the row-level atomicity of the SQL implementation.
type ActionRepository struct {
	mu      sync.Mutex
	actions map[uuid.UUID]*models.TaskAction
}

func NewActionRepository() *ActionRepository {
	return &ActionRepository{actions: make(map[uuid.UUID]*models.TaskAction)}
}

func (r *ActionRepository) Create(_ context.Context, action *models.TaskAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *action
	r.actions[action.ID] = &cp
	return nil
}

func (r *ActionRepository) Get(_ context.Context, id uuid.UUID) (*models.TaskAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *ActionRepository) ListPending(_ context.Context, userID uuid.UUID) ([]models.TaskAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TaskAction
	for _, a := range r.actions {
		if a.UserID == userID && a.ConfirmationState == models.ConfirmationPending {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProposedAt.After(out[j].ProposedAt) })
	return out, nil
}

func (r *ActionRepository) BeginExecution(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if a.ConfirmationState != models.ConfirmationPending || a.ExecutionState != models.ExecutionNotExecuted {
		return false, nil
	}
	a.ConfirmationState = models.ConfirmationConfirmed
	a.ExecutionState = models.ExecutionExecuting
	a.ConfirmedAt = &at
	return true, nil
}

func (r *ActionRepository) MarkRejected(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if a.ConfirmationState != models.ConfirmationPending || a.ExecutionState != models.ExecutionNotExecuted {
		return false, nil
	}
	a.ConfirmationState = models.ConfirmationRejected
	a.ConfirmedAt = &at
	return true, nil
}

func (r *ActionRepository) FinishExecution(_ context.Context, id uuid.UUID, state models.ExecutionState, taskID *int64, errDetail *string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.ExecutionState = state
	a.TaskID = taskID
	a.ErrorDetail = errDetail
	a.ExecutedAt = &at
	return nil
}

func (r *ActionRepository) PurgeExpired(_ context.Context, executedBefore, pendingBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, a := range r.actions {
		executed := a.ExecutedAt != nil && a.ExecutedAt.Before(executedBefore)
		stale := a.ExecutedAt == nil && a.ProposedAt.Before(pendingBefore)
		if executed || stale {
			delete(r.actions, id)
			n++
		}
	}
	return n, nil
}

// TaskStore is a map-backed repository.TaskStore.
type TaskStore struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*models.Task
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[int64]*models.Task)}
}

func (s *TaskStore) Get(_ context.Context, userID uuid.UUID, id int64) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *TaskStore) Create(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	task.ID = s.nextID
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *TaskStore) Update(_ context.Context, userID uuid.UUID, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[task.ID]
	if !ok || existing.UserID != userID {
		return repository.ErrNotFound
	}
	task.UpdatedAt = time.Now().UTC()
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *TaskStore) Delete(_ context.Context, userID uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return repository.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func matches(t *models.Task, filters models.TaskFilters) bool {
	switch filters.Status {
	case "completed":
		if !t.IsCompleted {
			return false
		}
	case "pending":
		if t.IsCompleted {
			return false
		}
	}
	if filters.TitleContains != "" &&
		!strings.Contains(strings.ToLower(t.Title), strings.ToLower(filters.TitleContains)) {
		return false
	}
	if filters.DueFrom != nil && (t.DueDate == nil || t.DueDate.Before(*filters.DueFrom)) {
		return false
	}
	if filters.DueTo != nil && (t.DueDate == nil || t.DueDate.After(*filters.DueTo)) {
		return false
	}
	return true
}

func (s *TaskStore) DeleteWhere(_ context.Context, userID uuid.UUID, filters models.TaskFilters) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tasks {
		if t.UserID == userID && matches(t, filters) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

func (s *TaskStore) ListByOwner(_ context.Context, userID uuid.UUID, filters models.TaskFilters) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Task
	for _, t := range s.tasks {
		if t.UserID == userID && matches(t, filters) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *TaskStore) FindByTitle(_ context.Context, userID uuid.UUID, substr string) ([]models.Task, error) {
	return s.ListByOwner(nil, userID, models.TaskFilters{TitleContains: substr})
}

// AuditRepository is a slice-backed repository.AuditRepository.
type AuditRepository struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Log(_ context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *AuditRepository) GetByUserID(_ context.Context, userID uuid.UUID, limit int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.entries[i]
		if e.UserID != nil && *e.UserID == userID {
			out = append(out, &e)
		}
	}
	return out, nil
}

// Entries returns everything logged so far. Test helper.
func (r *AuditRepository) Entries() []models.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuditLog, len(r.entries))
	copy(out, r.entries)
	return out
}

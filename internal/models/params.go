package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ActionParams is the structured payload extracted from a chat message,
// one variant per action kind. Exactly the variant matching the action's
// kind must be populated.
type ActionParams struct {
	Create   *CreateParams   `json:"create,omitempty"`
	Update   *UpdateParams   `json:"update,omitempty"`
	Complete *CompleteParams `json:"complete,omitempty"`
	Delete   *DeleteParams   `json:"delete,omitempty"`
	Query    *QueryParams    `json:"query,omitempty"`
}

// CreateParams describes a new task to create.
type CreateParams struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    string     `json:"priority,omitempty"`
}

// UpdateParams targets an existing task and carries the fields to change.
type UpdateParams struct {
	Target      string  `json:"target"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CompleteParams toggles completion on the targeted task.
type CompleteParams struct {
	Target string `json:"target"`
}

// DeleteParams deletes a single targeted task, or a set matching BulkCriteria.
type DeleteParams struct {
	Target string        `json:"target,omitempty"`
	Bulk   *BulkCriteria `json:"bulk,omitempty"`
}

// BulkCriteria selects tasks for a bulk delete.
type BulkCriteria struct {
	Status string `json:"status,omitempty"` // "completed", "pending"
}

// QueryParams filters the owner's task list.
type QueryParams struct {
	Filters TaskFilters `json:"filters"`
}

// TaskFilters are the supported query criteria.
type TaskFilters struct {
	Status        string     `json:"status,omitempty"` // "completed", "pending", "all"
	TitleContains string     `json:"title_contains,omitempty"`
	DueFrom       *time.Time `json:"due_from,omitempty"`
	DueTo         *time.Time `json:"due_to,omitempty"`
}

var (
	ErrMissingVariant = errors.New("action params missing variant for kind")
	ErrTitleRequired  = errors.New("task title is required")
	ErrTargetRequired = errors.New("target task identifier is required")
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 1000
)

// Validate checks that the variant matching kind is present and well formed.
func (p ActionParams) Validate(kind ActionKind) error {
	switch kind {
	case ActionCreate:
		if p.Create == nil {
			return ErrMissingVariant
		}
		if p.Create.Title == "" {
			return ErrTitleRequired
		}
		if len(p.Create.Title) > maxTitleLen {
			return fmt.Errorf("title exceeds %d characters", maxTitleLen)
		}
		if len(p.Create.Description) > maxDescriptionLen {
			return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
		}
		if p.Create.Priority != "" && !validPriority(p.Create.Priority) {
			return fmt.Errorf("invalid priority %q", p.Create.Priority)
		}
	case ActionUpdate:
		if p.Update == nil {
			return ErrMissingVariant
		}
		if p.Update.Target == "" {
			return ErrTargetRequired
		}
		if p.Update.Title == nil && p.Update.Description == nil {
			return errors.New("update carries no fields to change")
		}
		if p.Update.Title != nil && len(*p.Update.Title) > maxTitleLen {
			return fmt.Errorf("title exceeds %d characters", maxTitleLen)
		}
	case ActionComplete:
		if p.Complete == nil {
			return ErrMissingVariant
		}
		if p.Complete.Target == "" {
			return ErrTargetRequired
		}
	case ActionDelete:
		if p.Delete == nil {
			return ErrMissingVariant
		}
		if p.Delete.Target == "" && p.Delete.Bulk == nil {
			return errors.New("delete needs a target or bulk criteria")
		}
	case ActionQuery:
		if p.Query == nil {
			return ErrMissingVariant
		}
	default:
		return fmt.Errorf("unknown action kind %q", kind)
	}
	return nil
}

// Target returns the task identifier for kinds that reference an existing
// task, and "" for kinds that do not.
func (p ActionParams) Target(kind ActionKind) string {
	switch kind {
	case ActionUpdate:
		if p.Update != nil {
			return p.Update.Target
		}
	case ActionComplete:
		if p.Complete != nil {
			return p.Complete.Target
		}
	case ActionDelete:
		if p.Delete != nil {
			return p.Delete.Target
		}
	}
	return ""
}

func validPriority(p string) bool {
	switch p {
	case "low", "medium", "high":
		return true
	}
	return false
}

// Value implements driver.Valuer so params persist as jsonb.
func (p ActionParams) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *ActionParams) Scan(value interface{}) error {
	if value == nil {
		*p = ActionParams{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into ActionParams", value)
	}
	return json.Unmarshal(bytes, p)
}

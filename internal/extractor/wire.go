package extractor

import (
	"time"

	"github.com/taskmind/taskmind-backend/internal/models"
)

// wireResponse is the JSON envelope the model is instructed to emit.
type wireResponse struct {
	Tasks []wireTask `json:"tasks"`
}

type wireTask struct {
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	DueDate      string        `json:"dueDate"`
	Priority     string        `json:"priority"`
	ActionType   string        `json:"actionType"`
	Target       string        `json:"target"`
	Filters      *wireFilters  `json:"filters"`
	BulkCriteria *wireCriteria `json:"bulkCriteria"`
}

type wireFilters struct {
	Status        string         `json:"status"`
	DueDate       *wireDateRange `json:"dueDate"`
	TitleContains string         `json:"titleContains"`
}

type wireDateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type wireCriteria struct {
	Status string `json:"status"`
}

// mapDrafts converts the model's wire tasks into validated action drafts.
// Relative due dates are resolved against now. The second return lists the
// fields that made a task unusable; a non-empty list forces a clarify
// outcome even when other drafts are clean.
func mapDrafts(tasks []wireTask, now time.Time, confidence float64) ([]ActionDraft, []string) {
	var drafts []ActionDraft
	var ambiguous []string

	for _, t := range tasks {
		kind := models.ActionKind(t.ActionType)
		if !kind.Valid() {
			ambiguous = append(ambiguous, "action_type")
			continue
		}

		var params models.ActionParams
		switch kind {
		case models.ActionCreate:
			cp := &models.CreateParams{
				Title:       t.Title,
				Description: t.Description,
				Priority:    t.Priority,
			}
			if t.DueDate != "" {
				if due, ok := ParseRelativeDate(t.DueDate, now); ok {
					cp.DueDate = &due
				}
			}
			params.Create = cp
		case models.ActionUpdate:
			up := &models.UpdateParams{Target: t.Target}
			if t.Title != "" {
				title := t.Title
				up.Title = &title
			}
			if t.Description != "" {
				desc := t.Description
				up.Description = &desc
			}
			params.Update = up
		case models.ActionComplete:
			params.Complete = &models.CompleteParams{Target: t.Target}
		case models.ActionDelete:
			dp := &models.DeleteParams{Target: t.Target}
			if t.BulkCriteria != nil && t.BulkCriteria.Status != "" {
				dp.Bulk = &models.BulkCriteria{Status: t.BulkCriteria.Status}
			}
			params.Delete = dp
		case models.ActionQuery:
			qp := &models.QueryParams{}
			if t.Filters != nil {
				qp.Filters.Status = t.Filters.Status
				qp.Filters.TitleContains = t.Filters.TitleContains
				if t.Filters.DueDate != nil {
					if from, ok := ParseRelativeDate(t.Filters.DueDate.From, now); ok {
						qp.Filters.DueFrom = &from
					}
					if to, ok := ParseRelativeDate(t.Filters.DueDate.To, now); ok {
						qp.Filters.DueTo = &to
					}
				}
			}
			params.Query = qp
		}

		if err := params.Validate(kind); err != nil {
			ambiguous = append(ambiguous, fieldForError(err))
			continue
		}

		drafts = append(drafts, ActionDraft{
			Kind:       kind,
			Params:     params,
			Confidence: confidence,
		})
	}

	return drafts, dedupe(ambiguous)
}

func fieldForError(err error) string {
	switch err {
	case models.ErrTitleRequired:
		return "title"
	case models.ErrTargetRequired:
		return "target"
	default:
		return "params"
	}
}

func dedupe(fields []string) []string {
	if len(fields) < 2 {
		return fields
	}
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

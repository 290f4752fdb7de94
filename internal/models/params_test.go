package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestActionParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		kind    ActionKind
		params  ActionParams
		wantErr error
	}{
		{
			name:   "valid create",
			kind:   ActionCreate,
			params: ActionParams{Create: &CreateParams{Title: "buy milk"}},
		},
		{
			name:    "create without title",
			kind:    ActionCreate,
			params:  ActionParams{Create: &CreateParams{}},
			wantErr: ErrTitleRequired,
		},
		{
			name:    "create missing variant",
			kind:    ActionCreate,
			params:  ActionParams{},
			wantErr: ErrMissingVariant,
		},
		{
			name:   "valid update",
			kind:   ActionUpdate,
			params: ActionParams{Update: &UpdateParams{Target: "milk", Title: strPtr("buy oat milk")}},
		},
		{
			name:    "update without target",
			kind:    ActionUpdate,
			params:  ActionParams{Update: &UpdateParams{Title: strPtr("x")}},
			wantErr: ErrTargetRequired,
		},
		{
			name:   "valid complete",
			kind:   ActionComplete,
			params: ActionParams{Complete: &CompleteParams{Target: "milk"}},
		},
		{
			name:    "complete without target",
			kind:    ActionComplete,
			params:  ActionParams{Complete: &CompleteParams{}},
			wantErr: ErrTargetRequired,
		},
		{
			name:   "valid single delete",
			kind:   ActionDelete,
			params: ActionParams{Delete: &DeleteParams{Target: "milk"}},
		},
		{
			name:   "valid bulk delete",
			kind:   ActionDelete,
			params: ActionParams{Delete: &DeleteParams{Bulk: &BulkCriteria{Status: "completed"}}},
		},
		{
			name:   "valid query with no filters",
			kind:   ActionQuery,
			params: ActionParams{Query: &QueryParams{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate(tt.kind)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestActionParams_ValidateLengthLimits(t *testing.T) {
	long := strings.Repeat("x", maxTitleLen+1)

	err := ActionParams{Create: &CreateParams{Title: long}}.Validate(ActionCreate)
	assert.Error(t, err)

	err = ActionParams{Create: &CreateParams{Title: "ok", Description: strings.Repeat("y", maxDescriptionLen+1)}}.Validate(ActionCreate)
	assert.Error(t, err)
}

func TestActionParams_ValidatePriority(t *testing.T) {
	err := ActionParams{Create: &CreateParams{Title: "ok", Priority: "urgent"}}.Validate(ActionCreate)
	assert.Error(t, err)

	for _, p := range []string{"low", "medium", "high"} {
		err := ActionParams{Create: &CreateParams{Title: "ok", Priority: p}}.Validate(ActionCreate)
		assert.NoError(t, err)
	}
}

func TestActionKind_Valid(t *testing.T) {
	assert.True(t, ActionCreate.Valid())
	assert.True(t, ActionQuery.Valid())
	assert.False(t, ActionKind("archive").Valid())
}

func TestActionKind_Mutating(t *testing.T) {
	assert.True(t, ActionDelete.Mutating())
	assert.False(t, ActionQuery.Mutating())
}

package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkedErrorsMatchSentinels(t *testing.T) {
	err := NewError("plan gold-monthly not found").
		WithHint("Add the plan to the catalog first").
		Mark(ErrUnknownPlan)

	assert.True(t, IsUnknownPlan(err))
	assert.True(t, IsConfiguration(err))
	assert.False(t, IsRetryable(err))
	assert.False(t, IsNotFound(err))
	assert.Contains(t, GetHints(err), "Add the plan to the catalog first")
}

func TestWrappedMarksSurviveChaining(t *testing.T) {
	inner := NewError("no snapshot").Mark(ErrNoCatalog)
	outer := WithError(inner).
		WithMessage("resolving plan for change").
		Mark(ErrPlanResolution)

	assert.True(t, IsPlanResolution(outer))
	assert.True(t, IsNoCatalog(outer))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"conflict", NewError("busy").Mark(ErrReconciliationConflict), true},
		{"version", NewError("stale").Mark(ErrVersionConflict), true},
		{"database", NewError("conn reset").Mark(ErrDatabase), true},
		{"validation", NewError("bad").Mark(ErrValidation), false},
		{"blocked", NewError("frozen").Mark(ErrCatalogBlocked), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

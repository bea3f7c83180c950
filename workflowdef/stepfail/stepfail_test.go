package stepfail_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/workflowdef/stepfail"
)

func TestNewWithCauseWrapsPlainErrorAndNamesStepAttempt(t *testing.T) {
	cause := errors.New("tool timed out")
	err := stepfail.NewWithCause("s1", "att-1", "step failed", cause)
	require.Equal(t, "step s1: step failed", err.Error())
	require.Equal(t, "s1", err.StepID)
	require.Equal(t, "att-1", err.AttemptID)
	require.Equal(t, "tool timed out", err.Cause.Error())
}

func TestFromErrorReturnsSameStepErrorChainUnchanged(t *testing.T) {
	inner := stepfail.New("s1", "att-1", "inner failure")
	got := stepfail.FromError(inner)
	require.Same(t, inner, got)
}

func TestFromErrorWrapsPlainErrorWithoutStepID(t *testing.T) {
	got := stepfail.FromError(errors.New("boom"))
	require.Equal(t, "boom", got.Error())
	require.Empty(t, got.StepID)
}

func TestNilStepErrorMessageIsEmpty(t *testing.T) {
	var se *stepfail.StepError
	require.Equal(t, "", se.Error())
	require.Nil(t, se.Unwrap())
}

package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitError_Message(t *testing.T) {
	err := WrapExitError(ExitFailure, "sync failed", nil)
	assert.Equal(t, "sync failed", err.Error())

	wrapped := WrapExitError(ExitCommandError, "invalid --due", errors.New("bad date"))
	assert.Equal(t, "invalid --due: bad date", wrapped.Error())
}

func TestExitError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := WrapExitError(ExitFailure, "sync failed", inner)
	assert.ErrorIs(t, err, inner)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "op failed", nil)))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad flag", nil)))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain error")))

	wrapped := errors.Join(errors.New("outer"), WrapExitError(ExitCommandError, "inner", nil))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

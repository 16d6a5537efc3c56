package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMessage(t *testing.T) {
	err := New(ErrUnavailable, "remote store not configured")
	assert.Equal(t, "[UNAVAILABLE] remote store not configured", err.Error())

	wrapped := Wrap(ErrRemoteFault, "failed to put document", stderrors.New("connection reset"))
	assert.Equal(t, "[REMOTE_FAULT] failed to put document: connection reset", wrapped.Error())
}

func TestIsFollowsWrapChain(t *testing.T) {
	base := Wrap(ErrRemoteFault, "failed to upload blob", stderrors.New("timeout"))
	err := fmt.Errorf("failed to save photo: %w", base)

	assert.True(t, Is(err, ErrRemoteFault))
	assert.False(t, Is(err, ErrUnavailable))
	assert.Equal(t, ErrRemoteFault, CodeOf(err))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(stderrors.New("boom")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

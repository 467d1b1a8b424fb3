package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonHelpers(t *testing.T) {
	err := fmt.Errorf("move: %w", NewIllegalOperation("cannot move collection into itself"))
	assert.True(t, IsIllegalOperation(err))
	assert.False(t, IsUserInputError(err))

	assert.True(t, IsUserInputError(NewUserInputError("bad arg")))
	assert.True(t, IsNotFound(NewNotFound("missing")))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	e := FromError(stderrors.New("boom"))
	assert.Equal(t, ReasonInternal, e.Reason)
	assert.Equal(t, int32(500), e.Code)

	e = FromError(NewForbidden("no"))
	assert.Equal(t, ReasonForbidden, e.Reason)
	assert.Equal(t, int32(403), e.Code)
}

package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesTemplate(t *testing.T) {
	err := Clone(ErrConflict, "book is not available for lending")

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "book is not available for lending", err.Error())
	assert.Equal(t, "conflict", ErrConflict.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)
}

func TestFromErrorKeepsTypedThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Clone(ErrNotFound, "loan not found"))
	appErr := FromError(wrapped)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
	assert.Equal(t, "loan not found", appErr.Message)
}

func TestInternal(t *testing.T) {
	cause := errors.New("boom")
	err := Internal(cause, "failed to create loan")
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Equal(t, "failed to create loan: boom", err.Error())
	assert.Nil(t, FromError(nil))
}

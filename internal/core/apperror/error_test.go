package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithCause_UnwrapsToOriginal(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewConflict("domain is being deleted").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, http.StatusConflict, err.HTTPStatus)
}

func TestAsAppError_ThroughWrapping(t *testing.T) {
	inner := NewNotFound("domain", "go.example")
	wrapped := fmt.Errorf("lookup: %w", inner)

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, appErr.Code)

	_, ok = AsAppError(errors.New("plain"))
	assert.False(t, ok)
}

func TestGetHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, GetHTTPStatus(NewNotFound("domain", "x")))
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatus(NewValidation("bad input")))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("unknown")))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFound("workspace", "ws_1")))
	assert.False(t, IsNotFound(NewValidation("nope")))
	assert.False(t, IsNotFound(errors.New("plain")))
}

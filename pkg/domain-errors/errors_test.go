package derrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeInternal, "store unavailable", cause)

	assert.Equal(t, "store unavailable: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestIsAndCodeOf(t *testing.T) {
	notFound := New(CodeNotFound, "no such record")
	wrapped := fmt.Errorf("handler: %w", notFound)

	assert.True(t, Is(wrapped, CodeNotFound))
	assert.False(t, Is(wrapped, CodeConflict))
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))

	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.False(t, Is(nil, CodeNotFound))
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeBadRequest, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeInternal, http.StatusInternalServerError},
		{Code("mystery"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToHTTPStatus(tt.code), string(tt.code))
	}
}

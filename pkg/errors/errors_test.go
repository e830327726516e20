package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindsAndStatuses(t *testing.T) {
	tests := []struct {
		err    *AppError
		kind   string
		status int
	}{
		{NewBadRequest("bad", nil), "validation", http.StatusBadRequest},
		{NewConflict("taken", nil), "conflict", http.StatusConflict},
		{NewState("illegal", nil), "state", http.StatusConflict},
		{NewNotFound("provider", nil), "not_found", http.StatusNotFound},
		{NewNetwork(nil), "network", http.StatusServiceUnavailable},
		{NewTimeout(nil), "timeout", http.StatusGatewayTimeout},
		{Unauthorized(nil), "unauthorized", http.StatusUnauthorized},
		{Forbidden("no"), "forbidden", http.StatusForbidden},
		{NewInternal(nil), "internal", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind())
			assert.Equal(t, tt.status, tt.err.StatusCode())
			assert.Equal(t, tt.err.Code, CodeFromKind(tt.kind))
		})
	}
}

func TestAsThroughWrapping(t *testing.T) {
	base := NewConflict("slot taken", nil)
	wrapped := fmt.Errorf("failed to allocate booking: %w", base)

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, base, got)
	assert.True(t, Is(wrapped, ErrConflict))
	assert.False(t, Is(wrapped, ErrState))
	assert.Equal(t, ErrInternal, CodeOf(fmt.Errorf("plain")))
}

func TestNotFoundMessage(t *testing.T) {
	err := NewNotFound("provider", fmt.Errorf("no rows"))
	assert.Equal(t, "provider not found: no rows", err.Error())
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewNetwork(nil)))
	assert.True(t, Retryable(NewTimeout(nil)))
	assert.False(t, Retryable(NewConflict("x", nil)))
	assert.False(t, Retryable(nil))
}

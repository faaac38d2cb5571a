package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NotFound("member", nil), http.StatusNotFound},
		{BadRequest("bad", nil), http.StatusBadRequest},
		{Unauthorized(nil), http.StatusUnauthorized},
		{Unavailable(stderrors.New("db down")), http.StatusServiceUnavailable},
		{Internal(stderrors.New("boom")), http.StatusInternalServerError},
		{&AppError{Code: ErrForbidden}, http.StatusForbidden},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.StatusCode(), tt.err.Message)
	}
}

func TestUpstreamKeepsAppErrors(t *testing.T) {
	notFound := NotFound("member", nil)
	wrapped := fmt.Errorf("lookup: %w", notFound)

	assert.Same(t, notFound, Upstream(notFound))
	assert.True(t, Is(Upstream(wrapped), ErrNotFound))
}

func TestUpstreamHidesStoreErrors(t *testing.T) {
	cause := stderrors.New("pq: connection refused")

	err := Upstream(cause)

	var appErr *AppError
	assert.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, ErrUnavailable, appErr.Code)
	assert.NotContains(t, appErr.Message, "pq")
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Upstream(nil))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(fmt.Errorf("query: %w", context.DeadlineExceeded)))
	assert.True(t, IsTimeout(context.Canceled))
	assert.False(t, IsTimeout(stderrors.New("other")))
}

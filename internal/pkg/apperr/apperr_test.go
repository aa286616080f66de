package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type exhausted struct{}

func (exhausted) Error() string     { return "db down" }
func (exhausted) ErrorKind() string { return string(KindQueryExhausted) }

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "validation", err: Validation("missing"), want: http.StatusBadRequest},
		{name: "forbidden", err: Forbidden("no"), want: http.StatusForbidden},
		{name: "conflict", err: Conflict("paid"), want: http.StatusConflict},
		{name: "unauthorized_wrapped", err: fmt.Errorf("ctx: %w", Unauthorized("bad token", errors.New("sig"))), want: http.StatusUnauthorized},
		{name: "foreign_kinder", err: exhausted{}, want: http.StatusServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{name: "plain", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestPublicMessage(t *testing.T) {
	t.Run("app error message is exposed", func(t *testing.T) {
		err := Internal("We're working on it.", errors.New("pq: connection refused"))
		assert.Equal(t, "We're working on it.", PublicMessage(err))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("plain error is hidden", func(t *testing.T) {
		assert.Equal(t, msgInternal, PublicMessage(errors.New("secret detail")))
	})

	t.Run("exhausted store is reported as unavailable", func(t *testing.T) {
		assert.Equal(t, msgUnavailable, PublicMessage(exhausted{}))
	})
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := Unauthorized("Invalid or expired token", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"nil", nil, codes.OK},
		{"typed", NotFound("player not found"), codes.NotFound},
		{"wrapped typed", fmt.Errorf("commit: %w", ResourceExhausted("slow down")), codes.ResourceExhausted},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{"plain", errors.New("boom"), codes.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestWireMapping(t *testing.T) {
	assert.Equal(t, "resource-exhausted", Slug(codes.ResourceExhausted))
	assert.Equal(t, "internal", Slug(codes.Unknown))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(codes.ResourceExhausted))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(codes.Unauthenticated))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(codes.Unknown))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "lobby not found", MessageOf(NotFound("lobby not found")))
	assert.Equal(t, "server error, please try again later", MessageOf(errors.New("redis: connection refused")))

	inner := errors.New("tx failed")
	err := Internal(inner, "could not apply damage")
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "could not apply damage", MessageOf(err))
}

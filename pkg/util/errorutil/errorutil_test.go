package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{fmt.Errorf("ticket t1: %w", ErrNotFound), "NOT_FOUND", http.StatusNotFound},
		{fmt.Errorf("version 3: %w", ErrConflict), "CONCURRENT_UPDATE_CONFLICT", http.StatusConflict},
		{fmt.Errorf("closed to new: %w", ErrInvalidTransition), "INVALID_TRANSITION", http.StatusConflict},
		{ErrNoEligibleAgent, "NO_ELIGIBLE_AGENT", http.StatusConflict},
		{fmt.Errorf("bad rating: %w", ErrValidation), "VALIDATION_FAILED", http.StatusBadRequest},
		{fmt.Errorf("dial: %w", ErrDependencyUnavailable), "DEPENDENCY_UNAVAILABLE", http.StatusServiceUnavailable},
		{errors.New("boom"), "INTERNAL_ERROR", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got := ToDomainError(tc.err)
		require.NotNil(t, got)
		assert.Equal(t, tc.code, got.Code, tc.err.Error())
		assert.Equal(t, tc.status, got.HTTPStatus, tc.err.Error())
	}
}

func TestDomainErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDependencyUnavailable("ticket store", cause)
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Same(t, err, ToDomainError(fmt.Errorf("wrapped: %w", err)))

	assert.ErrorIs(t, NewNotificationFailed("email", cause), ErrNotificationDelivery)
	assert.ErrorIs(t, NewConflict("lost race", nil), ErrConflict)
}

func TestMapErrorKeepsNil(t *testing.T) {
	assert.NoError(t, MapError(nil))
	assert.Nil(t, ToDomainError(nil))
}

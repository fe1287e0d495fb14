package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("dial tcp: timeout")

	assert.Equal(t, KindValidation, KindOf(Validation("email", "bad")))
	assert.Equal(t, KindValidation, KindOf(fmt.Errorf("wrapped: %w", Validation("email", "bad"))))
	assert.Equal(t, KindNotFound, KindOf(NotFound("missing")))
	assert.Equal(t, KindTransient, KindOf(Transient("upstream", cause)))
	assert.Equal(t, KindInternal, KindOf(cause))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestTransientUnwrapsCause(t *testing.T) {
	err := Transient("weather fetch failed", ErrNotConfigured)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "weather fetch failed")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(RateLimited("429", nil)))
	assert.True(t, IsRetryable(Concurrency("lost race", nil)))
	assert.False(t, IsRetryable(Delivery("smtp", nil)))
	assert.False(t, IsRetryable(Validation("lat", "required")))
}

func TestRemainingAttempts(t *testing.T) {
	n, ok := RemainingAttempts(fmt.Errorf("verify: %w", InvalidCode(2)))
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = RemainingAttempts(Expired("gone"))
	assert.False(t, ok)
}

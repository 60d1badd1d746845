package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}

	assert.Equal(t, time.Duration(0), policy.Backoff(1))
	assert.Equal(t, time.Second, policy.Backoff(2))
	assert.Equal(t, 2*time.Second, policy.Backoff(3))
	assert.Equal(t, 4*time.Second, policy.Backoff(4))
}

func TestRetryPolicyBackoffCapped(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 50, BaseDelay: time.Second, Multiplier: 2}

	assert.Equal(t, maxBackoff, policy.Backoff(30))
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, time.Second, policy.BaseDelay)
	assert.Equal(t, 2.0, policy.Multiplier)
}

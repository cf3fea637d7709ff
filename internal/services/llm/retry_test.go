package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, isRateLimitError(nil))
	assert.False(t, isRateLimitError(errors.New("connection refused")))
	assert.True(t, isRateLimitError(errors.New("googleapi: Error 429: Resource has been exhausted")))
	assert.True(t, isRateLimitError(errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED")))
	assert.True(t, isRateLimitError(errors.New("quota exceeded for quota metric")))
}

func TestExtractRetryDelay(t *testing.T) {
	assert.Equal(t, time.Duration(0), extractRetryDelay(nil))
	assert.Equal(t, time.Duration(0), extractRetryDelay(errors.New("no hint here")))
	assert.Equal(t, 30*time.Second, extractRetryDelay(errors.New("429: Please retry in 30s")))
	assert.Equal(t, 12*time.Second, extractRetryDelay(errors.New(`violations { retryDelay: 12s }`)))
	assert.Equal(t, 2500*time.Millisecond, extractRetryDelay(errors.New("please retry in 2.5s")))
}

func TestBackoff(t *testing.T) {
	c := defaultRetryConfig()

	assert.Equal(t, 45*time.Second, c.backoff(0, 0))
	assert.Equal(t, time.Duration(float64(45*time.Second)*1.5), c.backoff(1, 0))
	assert.Equal(t, 90*time.Second, c.backoff(4, 0), "growth is capped")

	// An API-suggested delay replaces the initial base, plus headroom
	assert.Equal(t, 15*time.Second, c.backoff(0, 10*time.Second))
}

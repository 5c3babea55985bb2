package providers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
)

func response(status int, headers map[string]string, body string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestClassifyStatusRateLimit(t *testing.T) {
	err := classifyStatus("coingecko", response(http.StatusTooManyRequests, map[string]string{"Retry-After": "30"}, "slow down"))

	var rl *gateway.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, "coingecko", rl.Provider)
	assert.Equal(t, 30*time.Second, rl.RetryAfter)
	assert.ErrorIs(t, err, gateway.ErrRateLimited)
}

func TestClassifyStatusForbiddenIsRateLimit(t *testing.T) {
	err := classifyStatus("coingecko", response(http.StatusForbidden, nil, "denied"))
	assert.ErrorIs(t, err, gateway.ErrRateLimited)
}

func TestClassifyStatusServerErrorIsTransient(t *testing.T) {
	err := classifyStatus("coingecko", response(http.StatusBadGateway, nil, "bad gateway"))
	assert.ErrorIs(t, err, gateway.ErrTransient)
	assert.NotErrorIs(t, err, gateway.ErrRateLimited)
}

func TestClassifyStatusClientErrorIsPermanent(t *testing.T) {
	err := classifyStatus("coingecko", response(http.StatusNotFound, nil, "no such coin"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, gateway.ErrTransient)
	assert.NotErrorIs(t, err, gateway.ErrRateLimited)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "no such coin")
}

func TestClassifyTransportError(t *testing.T) {
	err := classifyTransportError("p", errors.New("connection refused"))
	assert.ErrorIs(t, err, gateway.ErrTransient)

	// Cancellation is the caller's doing, never a retryable upstream fault.
	err = classifyTransportError("p", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, gateway.ErrTransient)

	err = classifyTransportError("p", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, gateway.ErrTransient)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 45*time.Second, parseRetryAfter("45"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))

	// HTTP-date form; the exact duration depends on the clock, so just
	// check it lands in the right ballpark.
	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(future)
	assert.Greater(t, got, 60*time.Second)
	assert.LessOrEqual(t, got, 91*time.Second)

	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(past))
}

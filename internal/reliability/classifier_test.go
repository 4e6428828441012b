package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, IsRetryableHTTPStatus(tc.code), "IsRetryableHTTPStatus(%d)", tc.code)
	}
}

func TestBackoffPollingSchedule(t *testing.T) {
	b := Backoff{Base: time.Second, Growth: 1.5, Cap: 30 * time.Second}
	want := []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		5062500 * time.Microsecond,
		7593750 * time.Microsecond,
		11390625 * time.Microsecond,
		17085937500 * time.Nanosecond,
		25628906250 * time.Nanosecond,
		30 * time.Second,
		30 * time.Second,
	}
	prev := time.Duration(0)
	for n, w := range want {
		got := b.Delay(n)
		assert.Equalf(t, w, got, "Delay(%d)", n)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
	assert.Equal(t, 30*time.Second, b.Delay(1000))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("503 overloaded")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, IsRetryable(Permanent(errors.New("bad request"))))
	assert.Nil(t, Permanent(nil))
}

func TestChainFallsThroughRetryableErrors(t *testing.T) {
	var fallbacks []string
	chain := NewChain(
		Strategy[string]{Name: "primary", Run: func(context.Context) (string, error) {
			return "", errors.New("overloaded")
		}},
		Strategy[string]{Name: "secondary", Run: func(context.Context) (string, error) {
			return "ok-from-secondary", nil
		}},
		Strategy[string]{Name: "tertiary", Run: func(context.Context) (string, error) {
			t.Fatalf("tertiary must not run after a success")
			return "", nil
		}},
	).OnFallback(func(from string, _ error) { fallbacks = append(fallbacks, from) })

	out, err := chain.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok-from-secondary", out)
	assert.Equal(t, []string{"primary"}, fallbacks)
}

func TestChainShortCircuitsOnPermanentError(t *testing.T) {
	calls := 0
	badRequest := errors.New("invalid payload")
	chain := NewChain(
		Strategy[int]{Name: "a", Run: func(context.Context) (int, error) {
			calls++
			return 0, Permanent(badRequest)
		}},
		Strategy[int]{Name: "b", Run: func(context.Context) (int, error) {
			calls++
			return 1, nil
		}},
	)
	_, err := chain.Run(context.Background())
	assert.ErrorIs(t, err, badRequest)
	assert.Equal(t, 1, calls)
}

func TestChainReportsAllFailures(t *testing.T) {
	last := errors.New("c down")
	chain := NewChain(
		Strategy[int]{Name: "a", Run: func(context.Context) (int, error) { return 0, errors.New("a down") }},
		Strategy[int]{Name: "c", Run: func(context.Context) (int, error) { return 0, last }},
	)
	_, err := chain.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, last)
	assert.Contains(t, err.Error(), "a: a down")

	var empty *Chain[int]
	_, err = empty.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoStrategies)
}

package reliability

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNoStrategies = errors.New("no strategies configured")

// Strategy is one named way of producing a result, e.g. one model provider
// or one executor endpoint.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Chain tries its strategies in order and returns the first success. A
// non-retryable error stops the chain immediately.
type Chain[T any] struct {
	strategies []Strategy[T]
	onFallback func(from string, err error)
}

func NewChain[T any](strategies ...Strategy[T]) *Chain[T] {
	return &Chain[T]{strategies: strategies}
}

// OnFallback registers a hook invoked each time a strategy fails and the
// next one is about to be tried.
func (c *Chain[T]) OnFallback(fn func(from string, err error)) *Chain[T] {
	c.onFallback = fn
	return c
}

func (c *Chain[T]) Run(ctx context.Context) (T, error) {
	var zero T
	if c == nil || len(c.strategies) == 0 {
		return zero, ErrNoStrategies
	}
	var failures []string
	var last error
	for i, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := s.Run(ctx)
		if err == nil {
			return out, nil
		}
		last = err
		failures = append(failures, fmt.Sprintf("%s: %v", s.Name, err))
		if !IsRetryable(err) {
			return zero, err
		}
		if i < len(c.strategies)-1 && c.onFallback != nil {
			c.onFallback(s.Name, err)
		}
	}
	if len(failures) == 1 {
		return zero, last
	}
	return zero, fmt.Errorf("all strategies failed (%s): %w", strings.Join(failures, "; "), last)
}

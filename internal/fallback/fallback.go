// Package fallback runs ordered extraction strategies until one finds a value.
package fallback

import (
	"context"

	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
)

// Result is the outcome of a single strategy: a value or nothing
type Result[T any] struct {
	Value T
	Found bool
}

// Found wraps a successful value
func Found[T any](v T) Result[T] {
	return Result[T]{Value: v, Found: true}
}

// NotFound is the empty result
func NotFound[T any]() Result[T] {
	return Result[T]{}
}

// Strategy is one named attempt in a chain
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (Result[T], error)
}

// FirstFound runs the strategies in order and stops at the first Found.
// A strategy error counts as NotFound. The name of the winning strategy is
// returned alongside the result, empty when nothing was found.
func FirstFound[T any](ctx context.Context, strategies ...Strategy[T]) (Result[T], string) {
	for _, s := range strategies {
		if ctx.Err() != nil {
			break
		}
		res, err := s.Run(ctx)
		if err != nil {
			zaplogger.Debug("strategy failed", zaplogger.Fields{
				"strategy": s.Name,
				"error":    err.Error(),
			})
			continue
		}
		if res.Found {
			return res, s.Name
		}
	}
	return NotFound[T](), ""
}

package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstFound(t *testing.T) {
	var calls []string
	step := func(name string, res Result[int], err error) Strategy[int] {
		return Strategy[int]{Name: name, Run: func(context.Context) (Result[int], error) {
			calls = append(calls, name)
			return res, err
		}}
	}

	t.Run("stops at first success", func(t *testing.T) {
		calls = nil
		res, name := FirstFound(context.Background(),
			step("a", NotFound[int](), nil),
			step("b", Found(7), nil),
			step("c", Found(9), nil),
		)
		assert.True(t, res.Found)
		assert.Equal(t, 7, res.Value)
		assert.Equal(t, "b", name)
		assert.Equal(t, []string{"a", "b"}, calls)
	})

	t.Run("errors fall through", func(t *testing.T) {
		calls = nil
		res, name := FirstFound(context.Background(),
			step("a", Found(1), errors.New("boom")),
			step("b", Found(2), nil),
		)
		assert.Equal(t, 2, res.Value)
		assert.Equal(t, "b", name)
	})

	t.Run("nothing found", func(t *testing.T) {
		calls = nil
		res, name := FirstFound(context.Background(),
			step("a", NotFound[int](), nil),
			step("b", NotFound[int](), errors.New("nope")),
		)
		assert.False(t, res.Found)
		assert.Empty(t, name)
		assert.Equal(t, []string{"a", "b"}, calls)
	})

	t.Run("cancelled context runs nothing", func(t *testing.T) {
		calls = nil
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, _ := FirstFound(ctx, step("a", Found(1), nil))
		assert.False(t, res.Found)
		assert.Empty(t, calls)
	})
}

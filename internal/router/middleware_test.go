package router_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/wspipe/internal/router"
)

func TestComposeRejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := router.Compose[string]()
	assert.ErrorIs(t, err, router.ErrNoHandlers)
}

func TestComposeRunsInOrder(t *testing.T) {
	t.Parallel()

	var order []string
	h1 := func(ctx string, next router.Next[string]) (any, error) {
		order = append(order, "h1-before")
		v, err := next(ctx)
		order = append(order, "h1-after")
		return v, err
	}
	h2 := func(ctx string, next router.Next[string]) (any, error) {
		order = append(order, "h2")
		return next(ctx)
	}
	h3 := func(ctx string, next router.Next[string]) (any, error) {
		order = append(order, "h3")
		return "done", nil
	}

	chain, err := router.Compose(h1, h2, h3)
	require.NoError(t, err)

	result, err := chain("ctx", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, []string{"h1-before", "h2", "h3", "h1-after"}, order)
}

func TestComposeShortCircuits(t *testing.T) {
	t.Parallel()

	called := false
	h1 := func(ctx string, next router.Next[string]) (any, error) {
		return "short-circuited", nil
	}
	h2 := func(ctx string, next router.Next[string]) (any, error) {
		called = true
		return next(ctx)
	}

	chain, err := router.Compose(h1, h2)
	require.NoError(t, err)

	result, err := chain("ctx", nil)
	require.NoError(t, err)
	assert.Equal(t, "short-circuited", result)
	assert.False(t, called, "handler after a non-calling handler must not run")
}

func TestComposePropagatesModifiedContext(t *testing.T) {
	t.Parallel()

	h1 := func(ctx int, next router.Next[int]) (any, error) {
		return next(ctx + 1)
	}
	h2 := func(ctx int, next router.Next[int]) (any, error) {
		return ctx, nil
	}

	chain, err := router.Compose(h1, h2)
	require.NoError(t, err)

	result, err := chain(41, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestComposePropagatesError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	h1 := func(ctx string, next router.Next[string]) (any, error) {
		return next(ctx)
	}
	h2 := func(ctx string, next router.Next[string]) (any, error) {
		return nil, wantErr
	}

	chain, err := router.Compose(h1, h2)
	require.NoError(t, err)

	_, err = chain("ctx", nil)
	assert.ErrorIs(t, err, wantErr)
}

func TestComposeTerminalContinuationIsNoop(t *testing.T) {
	t.Parallel()

	h1 := func(ctx string, next router.Next[string]) (any, error) {
		return next(ctx)
	}

	chain, err := router.Compose(h1)
	require.NoError(t, err)

	result, err := chain("ctx", nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

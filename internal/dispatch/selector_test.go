package dispatch_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/ridedispatch/internal/dispatch"
)

func TestFirstAvailableSkipsNotified(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	c := uuid.New()
	sel := dispatch.FirstAvailable()

	next, ok := sel.Select([]uuid.UUID{a, b, c}, []uuid.UUID{a})
	require.True(t, ok)
	require.Equal(t, b, next)

	next, ok = sel.Select([]uuid.UUID{a, b, c}, []uuid.UUID{a, b})
	require.True(t, ok)
	require.Equal(t, c, next)
}

func TestFirstAvailableExhausted(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	sel := dispatch.FirstAvailable()

	_, ok := sel.Select([]uuid.UUID{a, b}, []uuid.UUID{b, a})
	require.False(t, ok)

	_, ok = sel.Select(nil, nil)
	require.False(t, ok)
}

func TestFirstAvailableNeverReturnsOffline(t *testing.T) {
	online := uuid.New()
	offline := uuid.New()
	sel := dispatch.FirstAvailable()

	next, ok := sel.Select([]uuid.UUID{online}, []uuid.UUID{offline})
	require.True(t, ok)
	require.Equal(t, online, next)
}

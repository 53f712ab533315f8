package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsBurstThenBlocks(t *testing.T) {
	l := New(Config{Burst: 1, Window: time.Hour})
	require.True(t, l.Allow())
	require.False(t, l.Allow())
}

func TestRegistryIsolatesKeys(t *testing.T) {
	r := NewRegistry(Config{Burst: 1, Window: time.Hour})

	require.True(t, r.For("alpha").Allow())
	require.False(t, r.For("alpha").Allow())

	// A different key gets its own bucket, unaffected by "alpha".
	require.True(t, r.For("beta").Allow())
}

func TestRegistryReturnsSameLimiterForRepeatedKey(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	first := r.For("force-1")
	second := r.For("force-1")
	require.Same(t, first, second)
}

package dispatcher

import (
	"context"
	"testing"

	"github.com/TEENet-io/burnmint-relayer/common"
	"github.com/TEENet-io/burnmint-relayer/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceAllocator(t *testing.T) {
	chain := newFakeChain()
	chain.nonce = 3
	a := NewNonceAllocator(chain, common.RandEthAddress())
	ctx := context.Background()

	n, err := a.Acquire(ctx, state.NoNonce)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	// in-flight nonces are skipped
	n, err = a.Acquire(ctx, state.NoNonce)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
	assert.Equal(t, []uint64{3, 4}, a.InFlight())

	// a released nonce is handed out again
	a.Release(3)
	n, err = a.Acquire(ctx, state.NoNonce)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	a.Reset()
	assert.Empty(t, a.InFlight())
	a.Reserve(3)
	n, err = a.Acquire(ctx, state.NoNonce)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
}

func TestNonceAllocatorPreferred(t *testing.T) {
	chain := newFakeChain()
	chain.nonce = 2
	a := NewNonceAllocator(chain, common.RandEthAddress())
	ctx := context.Background()

	// an unmined earlier nonce is reused
	n, err := a.Acquire(ctx, state.NonceOf(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)

	// unless it is in flight
	n, err = a.Acquire(ctx, state.NonceOf(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	// a used nonce is reported, not replaced by a fresh one
	_, err = a.Acquire(ctx, state.NonceOf(1))
	assert.ErrorIs(t, err, ErrNonceUsed)
	assert.Equal(t, []uint64{2, 5}, a.InFlight())
}

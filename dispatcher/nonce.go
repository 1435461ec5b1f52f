package dispatcher

import (
	"context"
	"slices"
	"sync"

	"github.com/TEENet-io/burnmint-relayer/state"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

type NonceSource interface {
	NonceAt(ctx context.Context, account ethcommon.Address) (uint64, error)
}

// NonceAllocator hands out nonces of one account. The base is the account's
// nonce at the latest block, advanced past every nonce still in flight. A
// released nonce may be handed out again, which replaces a transaction that
// never got mined.
type NonceAllocator struct {
	mu       sync.Mutex
	source   NonceSource
	account  ethcommon.Address
	inflight map[uint64]struct{}
}

func NewNonceAllocator(source NonceSource, account ethcommon.Address) *NonceAllocator {
	return &NonceAllocator{
		source:   source,
		account:  account,
		inflight: map[uint64]struct{}{},
	}
}

// Acquire returns a nonce and marks it in flight until Release. preferred,
// the nonce of an earlier attempt, is handed out again while it is unmined
// and free, so that the new transaction replaces the old one. Once preferred
// is below the account nonce some transaction took it, and Acquire returns
// ErrNonceUsed instead of a fresh nonce.
func (a *NonceAllocator) Acquire(ctx context.Context, preferred state.Nonce) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	nonce, err := a.source.NonceAt(ctx, a.account)
	if err != nil {
		return 0, err
	}

	if p, ok := preferred.Get(); ok {
		if p < nonce {
			return 0, ErrNonceUsed
		}
		if _, busy := a.inflight[p]; !busy {
			a.inflight[p] = struct{}{}
			return p, nil
		}
	}

	for {
		if _, ok := a.inflight[nonce]; !ok {
			break
		}
		nonce++
	}

	a.inflight[nonce] = struct{}{}
	return nonce, nil
}

// Reserve marks a nonce in flight, e.g. one of a pending transaction found on
// recovery.
func (a *NonceAllocator) Reserve(nonce uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inflight[nonce] = struct{}{}
}

func (a *NonceAllocator) Release(nonce uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inflight, nonce)
}

func (a *NonceAllocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inflight = map[uint64]struct{}{}
}

// InFlight returns the in-flight nonces in ascending order.
func (a *NonceAllocator) InFlight() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	nonces := make([]uint64, 0, len(a.inflight))
	for n := range a.inflight {
		nonces = append(nonces, n)
	}
	slices.Sort(nonces)
	return nonces
}

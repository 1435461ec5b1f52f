package dispatcher

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/TEENet-io/burnmint-relayer/etherman"
	"github.com/TEENet-io/burnmint-relayer/state"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeChain is a scripted destination chain. Transactions are only mined when
// a test calls mine. The hooks run before the call they belong to and are set
// before the dispatcher runs.
type fakeChain struct {
	mu       sync.Mutex
	nonce    uint64
	balance  *big.Int
	gasPrice *big.Int
	sendErr  error
	sent     []*types.Transaction
	receipts map[ethcommon.Hash]*types.Receipt

	onNonceAt func()
	onReceipt func(txHash ethcommon.Hash)
}

func newFakeChain() *fakeChain {
	balance, _ := new(big.Int).SetString("100000000000000000000", 10)
	return &fakeChain{
		balance:  balance,
		gasPrice: big.NewInt(1_000_000_000),
		receipts: map[ethcommon.Hash]*types.Receipt{},
	}
}

func (c *fakeChain) NonceAt(ctx context.Context, account ethcommon.Address) (uint64, error) {
	if c.onNonceAt != nil {
		c.onNonceAt()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce, nil
}

func (c *fakeChain) BalanceAt(ctx context.Context, account ethcommon.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balance), nil
}

func (c *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.gasPrice), nil
}

func (c *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (c *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, tx)
	return nil
}

func (c *fakeChain) TransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error) {
	if c.onReceipt != nil {
		c.onReceipt(txHash)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receipts[txHash], nil
}

// mine includes tx with the given status. Reverted transactions consume
// their nonce too.
func (c *fakeChain) mine(tx *types.Transaction, status uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[tx.Hash()] = &types.Receipt{Status: status, TxHash: tx.Hash()}
	if tx.Nonce() >= c.nonce {
		c.nonce = tx.Nonce() + 1
	}
}

func (c *fakeChain) setBalance(balance *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance = balance
}

func (c *fakeChain) setNonce(nonce uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonce = nonce
}

// successes counts the sent transactions that were mined successfully.
func (c *fakeChain) successes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, tx := range c.sent {
		if r, ok := c.receipts[tx.Hash()]; ok && r.Status == types.ReceiptStatusSuccessful {
			n++
		}
	}
	return n
}

func (c *fakeChain) lastSent() *types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[len(c.sent)-1]
}

func (c *fakeChain) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	chain *fakeChain
	st    *state.StateDB
	clock *clock
	cfg   *DispatcherConfig
}

func newTestEnv(t *testing.T) *testEnv {
	st, sqlDB := state.NewMemoryStateDB()
	t.Cleanup(func() {
		st.Close()
		sqlDB.Close()
	})

	return &testEnv{
		chain: newFakeChain(),
		st:    st,
		clock: newClock(),
		cfg: &DispatcherConfig{
			DestChainID:        etherman.SimulatedChainID,
			ReserveKey:         etherman.GenPrivateKey(),
			MaxRetries:         5,
			PendingTimeout:     30 * time.Minute,
			GasPriceEscalation: decimal.RequireFromString("1.125"),
		},
	}
}

// newDispatcher returns a dispatcher over the env. Several dispatchers over
// one env model restarts.
func (env *testEnv) newDispatcher(t *testing.T) *Dispatcher {
	d, err := New(env.cfg, env.chain, env.st)
	require.NoError(t, err)
	d.now = env.clock.now
	return d
}

// hookLedger runs afterLoad once the mints to recover have been read.
type hookLedger struct {
	Ledger
	afterLoad func()
}

func (l *hookLedger) GetMintsByStatus(statuses ...state.MintStatus) ([]*state.MintRecord, error) {
	recs, err := l.Ledger.GetMintsByStatus(statuses...)
	if l.afterLoad != nil {
		l.afterLoad()
	}
	return recs, err
}

// burn records a burn of amount in the ledger and returns it.
func (env *testEnv) burn(t *testing.T, amount int64) *state.BurnEvent {
	ev := state.RandBurnEvent(1, amount)
	_, err := env.st.AppendBurnEvents([]*state.BurnEvent{ev})
	require.NoError(t, err)
	return ev
}

func (env *testEnv) mint(t *testing.T, ev *state.BurnEvent) *state.MintRecord {
	rec, ok, err := env.st.GetMint(ev.SourceTxHash)
	require.NoError(t, err)
	require.True(t, ok)
	return rec
}

package scanner

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/TEENet-io/burnmint-relayer/common"
	"github.com/TEENet-io/burnmint-relayer/contracts/burntoken"
	"github.com/TEENet-io/burnmint-relayer/etherman"
	"github.com/TEENet-io/burnmint-relayer/state"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	sim      *etherman.SimulatedChain
	etherman *etherman.Etherman
	st       *state.StateDB
	burn     ethcommon.Address
	cfg      *ScannerConfig
}

func newTestEnv(t *testing.T) *testEnv {
	sim := etherman.NewSimulatedChain(etherman.GenPrivateKeys(3))
	em, err := sim.Etherman("source")
	require.NoError(t, err)

	st, sqlDB := state.NewMemoryStateDB()
	t.Cleanup(func() {
		st.Close()
		sqlDB.Close()
		sim.Backend.Close()
	})

	nativeRate, err := common.ParseMicroRate("0.001")
	require.NoError(t, err)
	tokenRate, err := common.ParseMicroRate("0.002")
	require.NoError(t, err)

	burn := common.RandEthAddress()
	return &testEnv{
		sim:      sim,
		etherman: em,
		st:       st,
		burn:     burn,
		cfg: &ScannerConfig{
			SourceChainID: etherman.SimulatedChainID,
			BurnAddress:   burn,
			NativeRate:    nativeRate,
			TokenRate:     tokenRate,
			BatchSize:     2,
		},
	}
}

func (env *testEnv) head(t *testing.T) uint64 {
	head, err := env.etherman.HeadBlockNumber(context.Background())
	require.NoError(t, err)
	return head
}

func (env *testEnv) deployToken(t *testing.T, holder int, amount *big.Int) *burntoken.BurnToken {
	owner := env.sim.Accounts[0]
	client := env.sim.Backend.Client()

	addr, _, token, err := burntoken.DeployBurnToken(owner, client, owner.From)
	require.NoError(t, err)
	env.sim.Backend.Commit()

	_, err = token.Mint(owner, env.sim.Accounts[holder].From, amount)
	require.NoError(t, err)
	env.sim.Backend.Commit()

	env.cfg.TokenAddress = addr
	return token
}

func TestNativeBurn(t *testing.T) {
	env := newTestEnv(t)
	sender := env.sim.Accounts[1].From

	tx, err := env.sim.Transfer(1, env.burn, big.NewInt(1000))
	require.NoError(t, err)

	s, err := New(env.cfg, env.etherman, env.st)
	require.NoError(t, err)

	head := env.head(t)
	res, err := s.ScanRange(context.Background(), 1, head)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.True(t, res.HasCommitted)
	assert.Equal(t, head, res.Committed)

	ev := res.Events[0]
	assert.Equal(t, tx.Hash(), ev.SourceTxHash)
	assert.Equal(t, sender, ev.From)
	assert.Equal(t, state.BurnKindNative, ev.Kind)
	assert.Equal(t, "1000", ev.OriginalAmount.String())
	assert.Equal(t, "1", ev.ConvertedAmount.String())

	checkpoint, ok, err := env.st.GetCheckpoint()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, head, checkpoint)

	rec, ok, err := env.st.GetMint(tx.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state.MintStatusQueued, rec.Status)
	assert.Equal(t, sender, rec.To)
	assert.Equal(t, "1", rec.Amount.String())
}

func TestZeroValueTransferIgnored(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sim.Transfer(1, env.burn, big.NewInt(0))
	require.NoError(t, err)
	// a transfer elsewhere is not a burn
	_, err = env.sim.Transfer(1, common.RandEthAddress(), big.NewInt(5000))
	require.NoError(t, err)

	s, err := New(env.cfg, env.etherman, env.st)
	require.NoError(t, err)

	res, err := s.ScanRange(context.Background(), 1, env.head(t))
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	burns, err := env.st.ListBurnEvents(state.BurnFilter{})
	require.NoError(t, err)
	assert.Empty(t, burns)
}

func TestDustBurnHasNoMint(t *testing.T) {
	env := newTestEnv(t)

	tx, err := env.sim.Transfer(1, env.burn, big.NewInt(999))
	require.NoError(t, err)

	s, err := New(env.cfg, env.etherman, env.st)
	require.NoError(t, err)

	res, err := s.ScanRange(context.Background(), 1, env.head(t))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "0", res.Events[0].ConvertedAmount.String())

	_, ok, err := env.st.GetMint(tx.Hash())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenBurn(t *testing.T) {
	env := newTestEnv(t)
	token := env.deployToken(t, 2, big.NewInt(100_000))

	tx, err := token.Transfer(env.sim.Accounts[2], env.burn, big.NewInt(5000))
	require.NoError(t, err)
	env.sim.Backend.Commit()

	// a transfer to someone else and a zero-value burn are ignored
	_, err = token.Transfer(env.sim.Accounts[2], common.RandEthAddress(), big.NewInt(10))
	require.NoError(t, err)
	_, err = token.Transfer(env.sim.Accounts[2], env.burn, big.NewInt(0))
	require.NoError(t, err)
	env.sim.Backend.Commit()

	s, err := New(env.cfg, env.etherman, env.st)
	require.NoError(t, err)

	res, err := s.ScanRange(context.Background(), 1, env.head(t))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.Equal(t, tx.Hash(), ev.SourceTxHash)
	assert.Equal(t, env.sim.Accounts[2].From, ev.From)
	assert.Equal(t, state.BurnKindToken, ev.Kind)
	assert.Equal(t, "5000", ev.OriginalAmount.String())
	assert.Equal(t, "10", ev.ConvertedAmount.String())
	assert.NotZero(t, ev.BlockTimestamp)

	balance, err := token.BalanceOf(nil, env.burn)
	require.NoError(t, err)
	assert.Equal(t, "5000", balance.String())
}

func TestRescanIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sim.Transfer(1, env.burn, big.NewInt(2000))
	require.NoError(t, err)
	_, err = env.sim.Transfer(2, env.burn, big.NewInt(3000))
	require.NoError(t, err)

	s, err := New(env.cfg, env.etherman, env.st)
	require.NoError(t, err)

	head := env.head(t)
	res, err := s.ScanRange(context.Background(), 1, head)
	require.NoError(t, err)
	assert.Len(t, res.Events, 2)

	res, err = s.ScanRange(context.Background(), 1, head)
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	events, err := s.Scan(context.Background(), 1, head)
	require.NoError(t, err)
	assert.Empty(t, events)

	counts, err := env.st.CountMintsByStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[state.MintStatusQueued])
}

var errRPC = errors.New("rpc unavailable")

// flakyChain fails to return one block.
type flakyChain struct {
	*etherman.Etherman
	failAt uint64
}

func (c *flakyChain) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	if number == c.failAt {
		return nil, errRPC
	}
	return c.Etherman.BlockByNumber(ctx, number)
}

func TestFailedSubRangeKeepsEarlierCommits(t *testing.T) {
	env := newTestEnv(t)

	// blocks 1 and 2 carry a burn each, then 3 empty blocks follow
	first, err := env.sim.Transfer(1, env.burn, big.NewInt(1000))
	require.NoError(t, err)
	_, err = env.sim.Transfer(2, env.burn, big.NewInt(1000))
	require.NoError(t, err)
	env.sim.Mine(3)

	chain := &flakyChain{Etherman: env.etherman, failAt: 3}
	s, err := New(env.cfg, chain, env.st)
	require.NoError(t, err)

	res, err := s.ScanRange(context.Background(), 1, 5)
	assert.ErrorIs(t, err, errRPC)
	require.NotNil(t, res)
	assert.True(t, res.HasCommitted)
	assert.Equal(t, uint64(2), res.Committed)
	require.Len(t, res.Events, 2)
	assert.Equal(t, first.Hash(), res.Events[0].SourceTxHash)

	checkpoint, _, err := env.st.GetCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), checkpoint)

	// the retry resumes after the checkpoint
	chain.failAt = 0
	res, err = s.ScanRange(context.Background(), checkpoint+1, 5)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	checkpoint, _, err = env.st.GetCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), checkpoint)
}

func TestNewScannerValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := New(&ScannerConfig{SourceChainID: big.NewInt(1)}, env.etherman, env.st)
	assert.ErrorIs(t, err, ErrBurnAddressZero)

	_, err = New(&ScannerConfig{BurnAddress: env.burn}, env.etherman, env.st)
	assert.ErrorIs(t, err, ErrChainIDMissing)

	cfg := &ScannerConfig{SourceChainID: big.NewInt(1), BurnAddress: env.burn}
	s, err := New(cfg, env.etherman, env.st)
	require.NoError(t, err)
	assert.Equal(t, uint64(DefaultBatchSize), s.cfg.BatchSize)

	_, err = s.ScanRange(context.Background(), 5, 4)
	assert.Error(t, err)
}

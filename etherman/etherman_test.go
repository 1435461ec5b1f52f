package etherman

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/TEENet-io/burnmint-relayer/common"
	"github.com/TEENet-io/burnmint-relayer/metrics"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errEndpointDown = errors.New("endpoint down")

// brokenClient reports a chain id and fails every other call it overrides.
type brokenClient struct {
	Client
	chainID *big.Int
	calls   int
}

func (c *brokenClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.chainID, nil
}

func (c *brokenClient) BlockNumber(ctx context.Context) (uint64, error) {
	c.calls++
	return 0, errEndpointDown
}

func (c *brokenClient) BalanceAt(ctx context.Context, account ethcommon.Address, blockNumber *big.Int) (*big.Int, error) {
	c.calls++
	return nil, errEndpointDown
}

func TestFailover(t *testing.T) {
	sim := NewSimulatedChain(GenPrivateKeys(1))
	defer sim.Backend.Close()
	sim.Mine(3)

	broken := &brokenClient{chainID: SimulatedChainID}
	ctx := context.Background()
	etherman, err := NewEthermanWithClients(ctx, &Config{Name: "test", ChainID: SimulatedChainID}, broken, sim.Backend.Client())
	require.NoError(t, err)

	head, err := etherman.HeadBlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), head)
	assert.Equal(t, 1, broken.calls)

	// the healthy endpoint stays current
	_, err = etherman.BalanceAt(ctx, sim.Accounts[0].From)
	require.NoError(t, err)
	assert.Equal(t, 1, broken.calls)
}

func TestAllEndpointsDown(t *testing.T) {
	broken := &brokenClient{chainID: SimulatedChainID}
	ctx := context.Background()
	etherman, err := NewEthermanWithClients(ctx, &Config{Name: "test"}, broken, broken)
	require.NoError(t, err)
	assert.Equal(t, SimulatedChainID, etherman.ChainID())

	_, err = etherman.HeadBlockNumber(ctx)
	assert.ErrorIs(t, err, errEndpointDown)
	assert.Equal(t, 2, broken.calls)
}

func TestChainIDUnmatched(t *testing.T) {
	ctx := context.Background()
	_, err := NewEthermanWithClients(ctx, &Config{ChainID: big.NewInt(1)}, &brokenClient{chainID: SimulatedChainID})
	assert.Error(t, err)

	_, err = NewEthermanWithClients(ctx, &Config{})
	assert.ErrorIs(t, err, ErrNoEndpoint)

	_, err = NewEtherman(ctx, &Config{})
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

// indexingClient answers receipt lookups like a node that is still
// building its transaction index.
type indexingClient struct {
	brokenClient
}

func (c *indexingClient) TransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error) {
	c.calls++
	return nil, errors.New("transaction indexing is in progress")
}

// cancellingClient cancels the caller's context while a call is running.
type cancellingClient struct {
	brokenClient
	cancel context.CancelFunc
}

func (c *cancellingClient) BlockNumber(ctx context.Context) (uint64, error) {
	c.calls++
	c.cancel()
	return 0, context.Canceled
}

func TestReceiptNotFound(t *testing.T) {
	sim := NewSimulatedChain(GenPrivateKeys(1))
	defer sim.Backend.Close()
	sim.Mine(1)

	etherman, err := sim.Etherman("test")
	require.NoError(t, err)

	receipt, err := etherman.TransactionReceipt(context.Background(), common.RandHash())
	assert.NoError(t, err)
	assert.Nil(t, receipt)
}

func TestReceiptWhileIndexing(t *testing.T) {
	ctx := context.Background()
	first := &indexingClient{brokenClient{chainID: SimulatedChainID}}
	second := &indexingClient{brokenClient{chainID: SimulatedChainID}}
	etherman, err := NewEthermanWithClients(ctx, &Config{Name: "indexing"}, first, second)
	require.NoError(t, err)

	receipt, err := etherman.TransactionReceipt(ctx, common.RandHash())
	assert.NoError(t, err)
	assert.Nil(t, receipt)

	// not an endpoint failure, so no failover
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RPCRequests.WithLabelValues("indexing", "eth_getTransactionReceipt", "not_found")))
}

func TestCancelledCallIsNotOk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &cancellingClient{brokenClient: brokenClient{chainID: SimulatedChainID}, cancel: cancel}
	other := &brokenClient{chainID: SimulatedChainID}
	etherman, err := NewEthermanWithClients(ctx, &Config{Name: "cancel"}, client, other)
	require.NoError(t, err)

	_, err = etherman.HeadBlockNumber(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, 0, other.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RPCRequests.WithLabelValues("cancel", "eth_blockNumber", "cancelled")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.RPCRequests.WithLabelValues("cancel", "eth_blockNumber", "ok")))
}

func TestStringToPrivateKey(t *testing.T) {
	sk := GenPrivateKey()
	hex := ethcommon.Bytes2Hex(sk.D.FillBytes(make([]byte, 32)))

	parsed, err := StringToPrivateKey("0x" + hex)
	require.NoError(t, err)
	assert.Equal(t, sk.D, parsed.D)

	_, err = StringToPrivateKey("abcd")
	assert.ErrorIs(t, err, ErrPrivateKeyFormat)
}

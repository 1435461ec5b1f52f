package etherman

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/TEENet-io/burnmint-relayer/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client is the part of an Ethereum JSON-RPC client the relayer uses. Both
// *ethclient.Client and simulated.Client satisfy it.
type Client interface {
	ethereum.ChainReader
	ethereum.ChainStateReader
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.LogFilterer
	ethereum.TransactionReader
	ethereum.TransactionSender

	bind.ContractBackend

	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Etherman talks to one chain through an ordered list of endpoints. A call
// that fails on the current endpoint is retried on the next one. The last
// endpoint that answered stays current.
type Etherman struct {
	name    string
	chainID *big.Int
	clients []Client
	current atomic.Int32
	timeout time.Duration
	limiter *rate.Limiter
}

// NewEtherman dials every configured URL and checks that each endpoint
// serves the configured chain.
func NewEtherman(ctx context.Context, cfg *Config) (*Etherman, error) {
	if len(cfg.URLs) == 0 {
		return nil, ErrNoEndpoint
	}

	clients := make([]Client, 0, len(cfg.URLs))
	for _, url := range cfg.URLs {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}

	return NewEthermanWithClients(ctx, cfg, clients...)
}

// NewEthermanWithClients wraps already connected clients. cfg.URLs is
// ignored.
func NewEthermanWithClients(ctx context.Context, cfg *Config, clients ...Client) (*Etherman, error) {
	if len(clients) == 0 {
		return nil, ErrNoEndpoint
	}

	for i, client := range clients {
		chainID, err := client.ChainID(ctx)
		if err != nil {
			return nil, err
		}
		if cfg.ChainID != nil && chainID.Cmp(cfg.ChainID) != 0 {
			logger.WithFields(logger.Fields{
				"chain":    cfg.Name,
				"endpoint": i,
			}).Error("endpoint serves another chain")
			return nil, ErrChainIDUnmatched(cfg.ChainID, chainID)
		}
	}

	chainID := cfg.ChainID
	if chainID == nil {
		var err error
		if chainID, err = clients[0].ChainID(ctx); err != nil {
			return nil, err
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}

	return &Etherman{
		name:    cfg.Name,
		chainID: new(big.Int).Set(chainID),
		clients: clients,
		timeout: cfg.CallTimeout,
		limiter: limiter,
	}, nil
}

func (e *Etherman) Name() string {
	return e.name
}

func (e *Etherman) ChainID() *big.Int {
	return new(big.Int).Set(e.chainID)
}

// Backend returns the current endpoint, e.g. for contract bindings.
func (e *Etherman) Backend() Client {
	return e.clients[int(e.current.Load())%len(e.clients)]
}

// withClient runs f against the endpoints starting from the current one and
// returns the first success. Answers that are not endpoint failures, such as
// a missing receipt, are returned without trying further endpoints.
func withClient[T any](ctx context.Context, e *Etherman, method string, f func(ctx context.Context, client Client) (T, error)) (res T, err error) {
	start := int(e.current.Load())
	for i := 0; i < len(e.clients); i++ {
		if err = e.limiter.Wait(ctx); err != nil {
			metrics.RPCRequests.WithLabelValues(e.name, method, "cancelled").Inc()
			return
		}

		idx := (start + i) % len(e.clients)
		callCtx, cancel := e.callContext(ctx)
		res, err = f(callCtx, e.clients[idx])
		cancel()

		if err == nil || !isEndpointFailure(ctx, err) {
			metrics.RPCRequests.WithLabelValues(e.name, method, outcome(ctx, err)).Inc()
			if idx != start && ctx.Err() == nil {
				e.current.Store(int32(idx))
			}
			return
		}

		metrics.RPCRequests.WithLabelValues(e.name, method, "error").Inc()
		logger.WithFields(logger.Fields{
			"chain":    e.name,
			"method":   method,
			"endpoint": idx,
			"err":      err,
		}).Warn("rpc call failed")

		if i < len(e.clients)-1 {
			metrics.RPCFailovers.WithLabelValues(e.name).Inc()
		}
	}
	return
}

func (e *Etherman) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// errIndexing is how a node answers receipt lookups while it is still
// building its transaction index.
const errIndexing = "transaction indexing is in progress"

func isNotMined(err error) bool {
	return errors.Is(err, ethereum.NotFound) || (err != nil && strings.Contains(err.Error(), errIndexing))
}

func isEndpointFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !isNotMined(err)
}

// outcome labels a call that is not retried on another endpoint.
func outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case ctx.Err() != nil:
		return "cancelled"
	case isNotMined(err):
		return "not_found"
	default:
		return "error"
	}
}

func (e *Etherman) HeadBlockNumber(ctx context.Context) (uint64, error) {
	return withClient(ctx, e, "eth_blockNumber", func(ctx context.Context, client Client) (uint64, error) {
		return client.BlockNumber(ctx)
	})
}

func (e *Etherman) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	return withClient(ctx, e, "eth_getBlockByNumber", func(ctx context.Context, client Client) (*types.Block, error) {
		return client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	})
}

func (e *Etherman) HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	return withClient(ctx, e, "eth_getHeaderByNumber", func(ctx context.Context, client Client) (*types.Header, error) {
		return client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	})
}

func (e *Etherman) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return withClient(ctx, e, "eth_getLogs", func(ctx context.Context, client Client) ([]types.Log, error) {
		return client.FilterLogs(ctx, q)
	})
}

// TransactionReceipt returns nil without error when the transaction has not
// been mined or the node has not indexed it yet.
func (e *Etherman) TransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error) {
	receipt, err := withClient(ctx, e, "eth_getTransactionReceipt", func(ctx context.Context, client Client) (*types.Receipt, error) {
		return client.TransactionReceipt(ctx, txHash)
	})
	if isNotMined(err) {
		return nil, nil
	}
	return receipt, err
}

func (e *Etherman) BalanceAt(ctx context.Context, account ethcommon.Address) (*big.Int, error) {
	return withClient(ctx, e, "eth_getBalance", func(ctx context.Context, client Client) (*big.Int, error) {
		return client.BalanceAt(ctx, account, nil)
	})
}

// NonceAt returns the nonce of account at the latest block, i.e. the number
// of its mined transactions.
func (e *Etherman) NonceAt(ctx context.Context, account ethcommon.Address) (uint64, error) {
	return withClient(ctx, e, "eth_getTransactionCount", func(ctx context.Context, client Client) (uint64, error) {
		return client.NonceAt(ctx, account, nil)
	})
}

func (e *Etherman) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return withClient(ctx, e, "eth_gasPrice", func(ctx context.Context, client Client) (*big.Int, error) {
		return client.SuggestGasPrice(ctx)
	})
}

func (e *Etherman) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return withClient(ctx, e, "eth_estimateGas", func(ctx context.Context, client Client) (uint64, error) {
		return client.EstimateGas(ctx, msg)
	})
}

// SendTransaction broadcasts a signed transaction. An endpoint that already
// holds the transaction counts as success.
func (e *Etherman) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := withClient(ctx, e, "eth_sendRawTransaction", func(ctx context.Context, client Client) (struct{}, error) {
		err := client.SendTransaction(ctx, tx)
		if err != nil && strings.Contains(strings.ToLower(err.Error()), "already known") {
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	return err
}

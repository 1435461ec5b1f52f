package scanner

import (
	"context"
	"time"

	"github.com/TEENet-io/burnmint-relayer/state"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SourceChain is the read access the scanner needs. *etherman.Etherman
// implements it.
type SourceChain interface {
	BlockByNumber(ctx context.Context, number uint64) (*types.Block, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error)
}

// Ledger is the part of *state.StateDB the scanner writes to.
type Ledger interface {
	HasBurnEvent(sourceTxHash ethcommon.Hash) (bool, error)
	CommitScan(events []*state.BurnEvent, toBlock uint64, now time.Time) ([]*state.BurnEvent, error)
}

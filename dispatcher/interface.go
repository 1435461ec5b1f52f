package dispatcher

import (
	"context"
	"math/big"

	"github.com/TEENet-io/burnmint-relayer/state"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DestChain is the destination chain access of the dispatcher.
// *etherman.Etherman implements it.
type DestChain interface {
	NonceSource
	BalanceAt(ctx context.Context, account ethcommon.Address) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error)
}

// Ledger is the part of *state.StateDB the dispatcher reads and writes.
type Ledger interface {
	GetMint(burnTxHash ethcommon.Hash) (*state.MintRecord, bool, error)
	UpsertMint(rec *state.MintRecord) error
	GetMintsByStatus(statuses ...state.MintStatus) ([]*state.MintRecord, error)
	SaveQueueSnapshot(items []*state.QueueItem) error
	LoadQueueSnapshot() ([]*state.QueueItem, error)
}

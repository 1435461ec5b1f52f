package dispatcher

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	ErrDrainInProgress   = errors.New("drain already in progress")
	ErrReserveKeyMissing = errors.New("reserve account key is required")
	ErrChainIDMissing    = errors.New("destination chain id is required")
	ErrMintReverted      = errors.New("mint transaction reverted")
	ErrMintStuck         = errors.New("mint transaction not mined within the pending timeout")
	ErrNonceUsed         = errors.New("nonce of the previous attempt already used on chain")
)

func ErrInsufficientReserve(balance, amount *big.Int) error {
	return fmt.Errorf("insufficient reserve balance: balance=%v, amount=%v", balance, amount)
}

func ErrBroadcast(txHash ethcommon.Hash, err error) error {
	return fmt.Errorf("broadcast mint tx=%s: %w", txHash.String(), err)
}

func ErrMintMissing(burnTxHash ethcommon.Hash) error {
	return fmt.Errorf("queued mint has no ledger record: burn=%s", burnTxHash.String())
}

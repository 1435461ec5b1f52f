package scanner

import (
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	ErrBurnAddressZero = errors.New("burn address must not be zero")
	ErrChainIDMissing  = errors.New("source chain id is required")
)

func ErrInvalidRange(from, to uint64) error {
	return fmt.Errorf("invalid block range: from=%d, to=%d", from, to)
}

func ErrBlockMissing(number uint64) error {
	return fmt.Errorf("block not returned by source chain: number=%d", number)
}

func ErrReceiptMissing(txHash ethcommon.Hash) error {
	return fmt.Errorf("receipt not found for burn candidate: tx=%s", txHash.String())
}

func ErrMalformedLog(txHash ethcommon.Hash, index uint, err error) error {
	return fmt.Errorf("malformed transfer log: tx=%s, index=%d: %w", txHash.String(), index, err)
}

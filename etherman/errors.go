package etherman

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNoEndpoint       = errors.New("no rpc endpoint configured")
	ErrPrivateKeyFormat = errors.New("private key must be 32 bytes of hex")
)

func ErrChainIDUnmatched(expected, actual *big.Int) error {
	return fmt.Errorf("chain id unmatched: expected=%v, actual=%v", expected, actual)
}

package scanner

import (
	"math/big"

	"github.com/TEENet-io/burnmint-relayer/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

const DefaultBatchSize = 1000

type ScannerConfig struct {
	// SourceChainID is used to recover the sender of native burns
	SourceChainID *big.Int

	// BurnAddress receives the burned funds on the source chain
	BurnAddress ethcommon.Address

	// TokenAddress is the ERC20 contract whose burns are relayed. The zero
	// address disables token scanning.
	TokenAddress ethcommon.Address

	NativeRate common.MicroRate
	TokenRate  common.MicroRate

	// BatchSize is the number of blocks committed per sub-range
	BatchSize uint64
}

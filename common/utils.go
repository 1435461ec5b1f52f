package common

import (
	"crypto/rand"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Trim 0x or 0X prefix off the string.
func Trim0xPrefix(str string) string {
	s := strings.TrimPrefix(str, "0x")
	return strings.TrimPrefix(s, "0X")
}

func Prepend0xPrefix(str string) string {
	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		return str
	}
	return "0x" + str
}

// HashToPureHexStr returns the lowercase hex of the hash without prefix 0x.
// Hashes are persisted in this form.
func HashToPureHexStr(h ethcommon.Hash) string {
	return h.Hex()[2:]
}

// AddressToPureHexStr returns the lowercase hex of the address without prefix 0x.
func AddressToPureHexStr(addr ethcommon.Address) string {
	return strings.ToLower(addr.Hex()[2:])
}

// PureHexStrToHash converts a hex string (with/without prefix 0x) to ethcommon.Hash.
// The empty string maps to the zero hash.
func PureHexStrToHash(hexStr string) ethcommon.Hash {
	if hexStr == "" {
		return ethcommon.Hash{}
	}
	return ethcommon.HexToHash(Prepend0xPrefix(hexStr))
}

// PureHexStrToAddress converts a hex string (with/without prefix 0x) to ethcommon.Address.
func PureHexStrToAddress(hexStr string) ethcommon.Address {
	return ethcommon.HexToAddress(Prepend0xPrefix(hexStr))
}

// BigIntClone returns a deep copy. nil stays nil.
func BigIntClone(bigInt *big.Int) *big.Int {
	if bigInt == nil {
		return nil
	}
	return new(big.Int).Set(bigInt)
}

// RandBytes32 generates [32]byte with random values
func RandBytes32() [32]byte {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return [32]byte{}
	}
	return b
}

func RandHash() ethcommon.Hash {
	return ethcommon.Hash(RandBytes32())
}

func RandEthAddress() ethcommon.Address {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return ethcommon.Address{}
	}
	return ethcommon.BytesToAddress(b)
}

package etherman

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/TEENet-io/burnmint-relayer/common"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	logger "github.com/sirupsen/logrus"
)

// StringToPrivateKey parses a secp256k1 key given as hex, with or without 0x.
func StringToPrivateKey(s string) (*ecdsa.PrivateKey, error) {
	s = common.Trim0xPrefix(s)
	if len(s) != 64 {
		return nil, ErrPrivateKeyFormat
	}
	return crypto.HexToECDSA(s)
}

func GenPrivateKey() *ecdsa.PrivateKey {
	sk, err := crypto.GenerateKey()
	if err != nil {
		logger.Fatal(err)
	}
	return sk
}

func GenPrivateKeys(number int) []*ecdsa.PrivateKey {
	sks := make([]*ecdsa.PrivateKey, number)
	for i := 0; i < number; i++ {
		sks[i] = GenPrivateKey()
	}
	return sks
}

// NewAuth builds transact options signing with sk for chainID.
func NewAuth(sk *ecdsa.PrivateKey, chainID *big.Int) *bind.TransactOpts {
	auth, err := bind.NewKeyedTransactorWithChainID(sk, chainID)
	if err != nil {
		logger.Fatal(err)
	}
	return auth
}

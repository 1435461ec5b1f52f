package etherman

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

var (
	SimulatedChainID = big.NewInt(1337)
	blockGasLimit    = uint64(999999999999999999)
)

// SimulatedChain is an in-process chain whose accounts each hold 100 ETH.
type SimulatedChain struct {
	Backend  *simulated.Backend
	Accounts []*bind.TransactOpts
	Keys     []*ecdsa.PrivateKey
}

func NewSimulatedChain(sks []*ecdsa.PrivateKey) *SimulatedChain {
	accounts := make([]*bind.TransactOpts, len(sks))
	for i, sk := range sks {
		accounts[i] = NewAuth(sk, SimulatedChainID)
	}

	// allocate funds to accounts
	genesisAlloc := types.GenesisAlloc{}
	for _, account := range accounts {
		balance, _ := new(big.Int).SetString("100000000000000000000", 10)
		genesisAlloc[account.From] = types.Account{
			Balance: balance,
		}
	}

	backend := simulated.NewBackend(genesisAlloc, simulated.WithBlockGasLimit(blockGasLimit))

	return &SimulatedChain{
		Backend:  backend,
		Accounts: accounts,
		Keys:     sks,
	}
}

// Etherman returns an Etherman over the simulated client.
func (sim *SimulatedChain) Etherman(name string) (*Etherman, error) {
	return NewEthermanWithClients(context.Background(), &Config{
		Name:    name,
		ChainID: SimulatedChainID,
	}, sim.Backend.Client())
}

// Transfer sends value wei from account i to to and mines a block.
func (sim *SimulatedChain) Transfer(i int, to common.Address, value *big.Int) (*types.Transaction, error) {
	ctx := context.Background()
	client := sim.Backend.Client()
	from := sim.Accounts[i].From

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, err
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      21000,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(SimulatedChainID), sim.Keys[i])
	if err != nil {
		return nil, err
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	sim.Backend.Commit()

	return signed, nil
}

// Mine commits n empty blocks.
func (sim *SimulatedChain) Mine(n int) {
	for i := 0; i < n; i++ {
		sim.Backend.Commit()
	}
}

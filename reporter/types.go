package reporter

import (
	"github.com/TEENet-io/burnmint-relayer/common"
	"github.com/TEENet-io/burnmint-relayer/state"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type BurnQuery struct {
	Address string `form:"address" binding:"omitempty,eth_addr"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

type MintQuery struct {
	Address string `form:"address" binding:"omitempty,eth_addr"`
	Status  string `form:"status" binding:"omitempty,oneof=queued pending completed failed"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// BurnJSON carries the converted amount also in destination native units.
type BurnJSON struct {
	SourceTxHash    string `json:"sourceTxHash"`
	From            string `json:"from"`
	Kind            string `json:"kind"`
	OriginalAmount  string `json:"originalAmount"`
	ConvertedAmount string `json:"convertedAmount"`
	ConvertedEther  string `json:"convertedEther"`
	BlockNumber     uint64 `json:"blockNumber"`
	BlockTimestamp  uint64 `json:"blockTimestamp"`
}

type MintJSON struct {
	BurnTxHash string  `json:"burnTxHash"`
	MintTxHash string  `json:"mintTxHash,omitempty"`
	To         string  `json:"to"`
	Amount     string  `json:"amount"`
	AmountEth  string  `json:"amountEther"`
	Status     string  `json:"status"`
	RetryCount int     `json:"retryCount"`
	Nonce      *uint64 `json:"nonce,omitempty"`
	LastError  string  `json:"lastError,omitempty"`
	CreatedAt  int64   `json:"createdAt"`
	UpdatedAt  int64   `json:"updatedAt"`
}

type StatusJSON struct {
	LastProcessedBlock *uint64        `json:"lastProcessedBlock"`
	Mints              map[string]int `json:"mints"`
	QueueLength        int            `json:"queueLength"`
}

func toBurnJSON(ev *state.BurnEvent) *BurnJSON {
	return &BurnJSON{
		SourceTxHash:    ev.SourceTxHash.String(),
		From:            ev.From.String(),
		Kind:            string(ev.Kind),
		OriginalAmount:  ev.OriginalAmount.String(),
		ConvertedAmount: ev.ConvertedAmount.String(),
		ConvertedEther:  common.FormatUnits(ev.ConvertedAmount, common.EtherDecimals),
		BlockNumber:     ev.BlockNumber,
		BlockTimestamp:  ev.BlockTimestamp,
	}
}

func toMintJSON(rec *state.MintRecord) *MintJSON {
	m := &MintJSON{
		BurnTxHash: rec.BurnTxHash.String(),
		To:         rec.To.String(),
		Amount:     rec.Amount.String(),
		AmountEth:  common.FormatUnits(rec.Amount, common.EtherDecimals),
		Status:     string(rec.Status),
		RetryCount: rec.RetryCount,
		LastError:  rec.LastError,
		CreatedAt:  rec.CreatedAt.UnixMilli(),
		UpdatedAt:  rec.UpdatedAt.UnixMilli(),
	}
	if rec.MintTxHash != (ethcommon.Hash{}) {
		m.MintTxHash = rec.MintTxHash.String()
	}
	if n, ok := rec.Nonce.Get(); ok {
		m.Nonce = &n
	}
	return m
}

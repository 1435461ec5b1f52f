package state

import (
	"math/big"

	"github.com/TEENet-io/burnmint-relayer/common"
)

type sqlBurn struct {
	SourceTxHash    string
	From            string
	Kind            string
	OriginalAmount  string
	ConvertedAmount string
	BlockNumber     uint64
	BlockTimestamp  uint64
}

func (s *sqlBurn) encode(ev *BurnEvent) (*sqlBurn, error) {
	if ev.OriginalAmount == nil || ev.OriginalAmount.Sign() <= 0 {
		return nil, ErrBurnAmountInvalid
	}
	if ev.ConvertedAmount == nil || ev.ConvertedAmount.Sign() < 0 {
		return nil, ErrBurnAmountInvalid
	}
	if ev.Kind != BurnKindNative && ev.Kind != BurnKindToken {
		return nil, ErrBurnKindInvalid
	}

	return &sqlBurn{
		SourceTxHash:    common.HashToPureHexStr(ev.SourceTxHash),
		From:            common.AddressToPureHexStr(ev.From),
		Kind:            string(ev.Kind),
		OriginalAmount:  ev.OriginalAmount.String(),
		ConvertedAmount: ev.ConvertedAmount.String(),
		BlockNumber:     ev.BlockNumber,
		BlockTimestamp:  ev.BlockTimestamp,
	}, nil
}

func (s *sqlBurn) decode() (*BurnEvent, error) {
	original, ok := new(big.Int).SetString(s.OriginalAmount, 10)
	if !ok {
		return nil, ErrStoredAmountInvalid(s.OriginalAmount)
	}
	converted, ok := new(big.Int).SetString(s.ConvertedAmount, 10)
	if !ok {
		return nil, ErrStoredAmountInvalid(s.ConvertedAmount)
	}

	return &BurnEvent{
		SourceTxHash:    common.PureHexStrToHash(s.SourceTxHash),
		From:            common.PureHexStrToAddress(s.From),
		Kind:            BurnKind(s.Kind),
		OriginalAmount:  original,
		ConvertedAmount: converted,
		BlockNumber:     s.BlockNumber,
		BlockTimestamp:  s.BlockTimestamp,
	}, nil
}

func (s *sqlBurn) scanFrom(row interface{ Scan(...any) error }) error {
	return row.Scan(
		&s.SourceTxHash,
		&s.From,
		&s.Kind,
		&s.OriginalAmount,
		&s.ConvertedAmount,
		&s.BlockNumber,
		&s.BlockTimestamp,
	)
}

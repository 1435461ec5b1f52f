package state

import (
	"database/sql"
	"math/big"
	"strings"
	"time"

	"github.com/TEENet-io/burnmint-relayer/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

type sqlMint struct {
	BurnTxHash string
	MintTxHash sql.NullString
	To         string
	Amount     string
	Status     string
	RetryCount int
	Nonce      int64
	GasPrice   sql.NullString
	LastError  string
	Superseded string
	CreatedAt  int64
	UpdatedAt  int64
}

func (s *sqlMint) encode(m *MintRecord) (*sqlMint, error) {
	if m.Amount == nil || m.Amount.Sign() <= 0 {
		return nil, ErrMintAmountInvalid
	}
	if !m.Status.IsValid() {
		return nil, ErrMintStatusInvalid
	}

	s = &sqlMint{}
	s.BurnTxHash = common.HashToPureHexStr(m.BurnTxHash)
	if m.MintTxHash != (ethcommon.Hash{}) {
		s.MintTxHash = sql.NullString{String: common.HashToPureHexStr(m.MintTxHash), Valid: true}
	}
	s.To = common.AddressToPureHexStr(m.To)
	s.Amount = m.Amount.String()
	s.Status = string(m.Status)
	s.RetryCount = m.RetryCount
	s.Nonce = -1
	if n, ok := m.Nonce.Get(); ok {
		s.Nonce = int64(n)
	}
	if m.GasPrice != nil {
		s.GasPrice = sql.NullString{String: m.GasPrice.String(), Valid: true}
	}
	s.LastError = m.LastError

	superseded := make([]string, 0, len(m.SupersededTxHashes))
	for _, h := range m.SupersededTxHashes {
		superseded = append(superseded, common.HashToPureHexStr(h))
	}
	s.Superseded = strings.Join(superseded, ",")
	s.CreatedAt = m.CreatedAt.UnixMilli()
	s.UpdatedAt = m.UpdatedAt.UnixMilli()

	return s, nil
}

func (s *sqlMint) decode() (*MintRecord, error) {
	amount, ok := new(big.Int).SetString(s.Amount, 10)
	if !ok {
		return nil, ErrStoredAmountInvalid(s.Amount)
	}

	m := &MintRecord{
		BurnTxHash: common.PureHexStrToHash(s.BurnTxHash),
		To:         common.PureHexStrToAddress(s.To),
		Amount:     amount,
		Status:     MintStatus(s.Status),
		RetryCount: s.RetryCount,
		Nonce:      NoNonce,
		LastError:  s.LastError,
		CreatedAt:  time.UnixMilli(s.CreatedAt),
		UpdatedAt:  time.UnixMilli(s.UpdatedAt),
	}
	if s.MintTxHash.Valid {
		m.MintTxHash = common.PureHexStrToHash(s.MintTxHash.String)
	}
	if s.Nonce >= 0 {
		m.Nonce = NonceOf(uint64(s.Nonce))
	}
	if s.GasPrice.Valid {
		gasPrice, ok := new(big.Int).SetString(s.GasPrice.String, 10)
		if !ok {
			return nil, ErrStoredAmountInvalid(s.GasPrice.String)
		}
		m.GasPrice = gasPrice
	}
	if s.Superseded != "" {
		for _, h := range strings.Split(s.Superseded, ",") {
			m.SupersededTxHashes = append(m.SupersededTxHashes, common.PureHexStrToHash(h))
		}
	}

	return m, nil
}

func (s *sqlMint) scanFrom(row interface{ Scan(...any) error }) error {
	return row.Scan(
		&s.BurnTxHash,
		&s.MintTxHash,
		&s.To,
		&s.Amount,
		&s.Status,
		&s.RetryCount,
		&s.Nonce,
		&s.GasPrice,
		&s.LastError,
		&s.Superseded,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
}

package scanner

import (
	"cmp"
	"context"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/TEENet-io/burnmint-relayer/common"
	"github.com/TEENet-io/burnmint-relayer/contracts/burntoken"
	"github.com/TEENet-io/burnmint-relayer/metrics"
	"github.com/TEENet-io/burnmint-relayer/state"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	logger "github.com/sirupsen/logrus"
)

// Scanner finds burns in confirmed source blocks and records them in the
// ledger.
type Scanner struct {
	cfg    *ScannerConfig
	chain  SourceChain
	ledger Ledger
	signer types.Signer
	now    func() time.Time
}

// ScanResult lists the burns persisted by ScanRange. Committed is the last
// block of the last committed sub-range and is meaningful only when
// HasCommitted is true.
type ScanResult struct {
	Events       []*state.BurnEvent
	Committed    uint64
	HasCommitted bool
}

type candidate struct {
	ev       *state.BurnEvent
	txIndex  uint
	logIndex uint
}

func New(cfg *ScannerConfig, chain SourceChain, ledger Ledger) (*Scanner, error) {
	if cfg.SourceChainID == nil {
		return nil, ErrChainIDMissing
	}
	if cfg.BurnAddress == (ethcommon.Address{}) {
		return nil, ErrBurnAddressZero
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	return &Scanner{
		cfg:    cfg,
		chain:  chain,
		ledger: ledger,
		signer: types.LatestSignerForChainID(cfg.SourceChainID),
		now:    time.Now,
	}, nil
}

// ScanRange scans [from, to] in sub-ranges of BatchSize blocks. Each
// sub-range is committed together with the checkpoint. A failing sub-range
// stops the scan; the result still lists what earlier sub-ranges persisted.
func (s *Scanner) ScanRange(ctx context.Context, from, to uint64) (*ScanResult, error) {
	if from > to {
		return nil, ErrInvalidRange(from, to)
	}

	res := &ScanResult{Events: []*state.BurnEvent{}}
	for start := from; start <= to; {
		end := min(start+s.cfg.BatchSize-1, to)

		begin := time.Now()
		events, err := s.Scan(ctx, start, end)
		if err != nil {
			return res, fmt.Errorf("scan blocks %d-%d: %w", start, end, err)
		}

		inserted, err := s.ledger.CommitScan(events, end, s.now())
		if err != nil {
			return res, fmt.Errorf("commit blocks %d-%d: %w", start, end, err)
		}
		metrics.ScanDuration.Observe(time.Since(begin).Seconds())
		metrics.ScannedBlock.Set(float64(end))

		for _, ev := range inserted {
			metrics.BurnsRecorded.WithLabelValues(string(ev.Kind)).Inc()
		}
		res.Events = append(res.Events, inserted...)
		res.Committed = end
		res.HasCommitted = true

		logger.WithFields(logger.Fields{
			"from":  start,
			"to":    end,
			"burns": len(inserted),
		}).Debug("committed scanned range")

		if end == to {
			break
		}
		start = end + 1
	}

	return res, nil
}

// Scan returns the new burns in [from, to] without writing anything. The
// caller asserts that the range is confirmed.
func (s *Scanner) Scan(ctx context.Context, from, to uint64) ([]*state.BurnEvent, error) {
	if from > to {
		return nil, ErrInvalidRange(from, to)
	}

	timestamps := make(map[uint64]uint64, to-from+1)
	candidates := []*candidate{}

	// Native transfers emit no logs, so every block body is walked.
	for number := from; number <= to; number++ {
		block, err := s.chain.BlockByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		if block == nil {
			return nil, ErrBlockMissing(number)
		}
		timestamps[number] = block.Time()

		found, err := s.nativeBurns(ctx, block)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, found...)
	}

	if s.cfg.TokenAddress != (ethcommon.Address{}) {
		found, err := s.tokenBurns(ctx, from, to, timestamps)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, found...)
	}

	slices.SortStableFunc(candidates, func(a, b *candidate) int {
		return cmp.Or(
			cmp.Compare(a.ev.BlockNumber, b.ev.BlockNumber),
			cmp.Compare(a.txIndex, b.txIndex),
			cmp.Compare(a.logIndex, b.logIndex),
		)
	})

	events := []*state.BurnEvent{}
	seen := map[ethcommon.Hash]struct{}{}
	for _, c := range candidates {
		hash := c.ev.SourceTxHash
		if _, ok := seen[hash]; ok {
			logger.WithField("sourceTxHash", hash.String()).Warn("second burn in one transaction ignored")
			continue
		}
		seen[hash] = struct{}{}

		recorded, err := s.ledger.HasBurnEvent(hash)
		if err != nil {
			return nil, err
		}
		if recorded {
			continue
		}
		events = append(events, c.ev)
	}

	return events, nil
}

func (s *Scanner) nativeBurns(ctx context.Context, block *types.Block) ([]*candidate, error) {
	found := []*candidate{}
	for i, tx := range block.Transactions() {
		if tx.To() == nil || *tx.To() != s.cfg.BurnAddress {
			continue
		}
		if tx.Value() == nil || tx.Value().Sign() <= 0 {
			continue
		}

		receipt, err := s.chain.TransactionReceipt(ctx, tx.Hash())
		if err != nil {
			return nil, err
		}
		if receipt == nil {
			return nil, ErrReceiptMissing(tx.Hash())
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			continue
		}

		from, err := types.Sender(s.signer, tx)
		if err != nil {
			return nil, err
		}

		ev, err := s.newBurnEvent(tx.Hash(), from, state.BurnKindNative, tx.Value(), block.NumberU64(), block.Time())
		if err != nil {
			return nil, err
		}
		found = append(found, &candidate{ev: ev, txIndex: uint(i)})
	}

	return found, nil
}

func (s *Scanner) tokenBurns(ctx context.Context, from, to uint64, timestamps map[uint64]uint64) ([]*candidate, error) {
	logs, err := s.chain.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []ethcommon.Address{s.cfg.TokenAddress},
		Topics: [][]ethcommon.Hash{
			{burntoken.TransferEventID},
			nil,
			{ethcommon.BytesToHash(s.cfg.BurnAddress.Bytes())},
		},
	})
	if err != nil {
		return nil, err
	}

	found := []*candidate{}
	for _, log := range logs {
		if log.Removed {
			continue
		}

		transfer, err := burntoken.ParseTransfer(log)
		if err != nil {
			return nil, ErrMalformedLog(log.TxHash, log.Index, err)
		}
		if log.Address != s.cfg.TokenAddress || transfer.To != s.cfg.BurnAddress {
			continue
		}
		if transfer.Value.Sign() <= 0 {
			continue
		}
		if transfer.From == (ethcommon.Address{}) {
			logger.WithField("sourceTxHash", log.TxHash.String()).Warn("token minted to the burn address, no sender to credit")
			continue
		}

		timestamp, ok := timestamps[log.BlockNumber]
		if !ok {
			return nil, ErrBlockMissing(log.BlockNumber)
		}

		ev, err := s.newBurnEvent(log.TxHash, transfer.From, state.BurnKindToken, transfer.Value, log.BlockNumber, timestamp)
		if err != nil {
			return nil, err
		}
		found = append(found, &candidate{ev: ev, txIndex: log.TxIndex, logIndex: log.Index})
	}

	return found, nil
}

func (s *Scanner) newBurnEvent(
	txHash ethcommon.Hash,
	from ethcommon.Address,
	kind state.BurnKind,
	amount *big.Int,
	blockNumber uint64,
	blockTime uint64,
) (*state.BurnEvent, error) {
	rate := s.cfg.NativeRate
	if kind == state.BurnKindToken {
		rate = s.cfg.TokenRate
	}

	converted, err := common.ConvertAmount(amount, rate)
	if err != nil {
		return nil, err
	}

	return &state.BurnEvent{
		SourceTxHash:    txHash,
		From:            from,
		Kind:            kind,
		OriginalAmount:  new(big.Int).Set(amount),
		ConvertedAmount: converted,
		BlockNumber:     blockNumber,
		BlockTimestamp:  blockTime,
	}, nil
}

package dispatcher

import (
	"context"
	"errors"
	"math/big"

	"github.com/TEENet-io/burnmint-relayer/common"
	"github.com/TEENet-io/burnmint-relayer/metrics"
	"github.com/TEENet-io/burnmint-relayer/state"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// submit signs and broadcasts the transfer of a queued record. The record is
// persisted as pending before the broadcast so that a crash in between leaves
// a transaction hash to look for.
func (d *Dispatcher) submit(ctx context.Context, rec *state.MintRecord) (*state.MintRecord, error) {
	// 1. An abandoned attempt may have been mined since it was superseded.
	mined, err := d.minedSuperseded(ctx, rec)
	if err != nil || mined != nil {
		return mined, err
	}

	// The cap may have been lowered since the record was queued.
	if rec.RetryCount >= d.cfg.MaxRetries {
		return d.fail(rec)
	}

	// 2. The reserve must cover the amount and the fee. A short reserve does
	// not count as a retry since it clears once the reserve is topped up.
	balance, err := d.chain.BalanceAt(ctx, d.reserve)
	if err != nil {
		return nil, err
	}
	metrics.ReserveBalance.Set(decimal.NewFromBigInt(balance, -common.EtherDecimals).InexactFloat64())
	if balance.Cmp(rec.Amount) < 0 {
		return d.postpone(rec, retryInsufficiency, ErrInsufficientReserve(balance, rec.Amount).Error())
	}

	// 3. Price the transfer.
	gasPrice, err := d.gasPrice(ctx, rec)
	if err != nil {
		return nil, err
	}
	gas, err := d.chain.EstimateGas(ctx, ethereum.CallMsg{
		From:  d.reserve,
		To:    &rec.To,
		Value: rec.Amount,
	})
	if err != nil {
		return nil, err
	}

	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gas))
	cost.Add(cost, rec.Amount)
	if balance.Cmp(cost) < 0 {
		return d.postpone(rec, retryInsufficiency, ErrInsufficientReserve(balance, cost).Error())
	}

	// 4. Sign with a nonce from the allocator. When the nonce of the last
	// attempt is gone, whatever took it must be known before a fresh one is
	// used.
	nonce, err := d.nonces.Acquire(ctx, rec.Nonce)
	if errors.Is(err, ErrNonceUsed) {
		settled, fresh, err := d.nonceUsed(ctx, rec)
		if err != nil || settled != nil || !fresh {
			return settled, err
		}
		nonce, err = d.nonces.Acquire(ctx, state.NoNonce)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	to := rec.To
	signed, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int).Set(rec.Amount),
		Gas:      gas,
		GasPrice: gasPrice,
	}), d.signer, d.cfg.ReserveKey)
	if err != nil {
		d.nonces.Release(nonce)
		return nil, err
	}

	// 5. Persist as pending.
	next := rec.Clone()
	next.Status = state.MintStatusPending
	next.MintTxHash = signed.Hash()
	next.Nonce = state.NonceOf(nonce)
	next.GasPrice = gasPrice
	next.UpdatedAt = d.now()
	if err := d.ledger.UpsertMint(next); err != nil {
		d.nonces.Release(nonce)
		return nil, err
	}
	metrics.MintTransitions.WithLabelValues(string(state.MintStatusPending)).Inc()

	// 6. Broadcast.
	if err := d.chain.SendTransaction(ctx, signed); err != nil {
		return d.retry(ctx, next, retryBroadcast, ErrBroadcast(signed.Hash(), err).Error(), true)
	}

	logger.WithFields(logger.Fields{
		"burnTxHash": rec.BurnTxHash.String(),
		"mintTxHash": signed.Hash().String(),
		"to":         rec.To.String(),
		"amount":     rec.Amount,
		"nonce":      nonce,
		"gasPrice":   gasPrice,
		"retry":      rec.RetryCount,
	}).Info("mint submitted")

	return next, nil
}

// gasPrice is the suggested price escalated once per retry. A resubmission
// also outbids its previous attempt by one escalation step so the node
// accepts it as a replacement.
func (d *Dispatcher) gasPrice(ctx context.Context, rec *state.MintRecord) (*big.Int, error) {
	suggested, err := d.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	price := common.ScaleBigInt(suggested, d.cfg.GasPriceEscalation, rec.RetryCount)
	if rec.GasPrice != nil {
		if bump := common.ScaleBigInt(rec.GasPrice, d.cfg.GasPriceEscalation, 1); bump.Cmp(price) > 0 {
			price = bump
		}
	}
	return price, nil
}

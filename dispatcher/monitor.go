package dispatcher

import (
	"context"

	"github.com/TEENet-io/burnmint-relayer/metrics"
	"github.com/TEENet-io/burnmint-relayer/state"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	logger "github.com/sirupsen/logrus"
)

const (
	retryReverted      = "reverted"
	retryTimeout       = "timeout"
	retryBroadcast     = "broadcast"
	retryInsufficiency = "insufficient_reserve"
)

// checkPending looks for a receipt of the current transaction and of every
// superseded one. A nil record means nothing changed.
func (d *Dispatcher) checkPending(ctx context.Context, rec *state.MintRecord) (*state.MintRecord, error) {
	mined, err := d.minedSuperseded(ctx, rec)
	if err != nil || mined != nil {
		return mined, err
	}

	receipt, err := d.chain.TransactionReceipt(ctx, rec.MintTxHash)
	if err != nil {
		return nil, err
	}
	if receipt != nil {
		if receipt.Status == types.ReceiptStatusSuccessful {
			return d.complete(rec, rec.MintTxHash)
		}
		return d.retry(ctx, rec, retryReverted, ErrMintReverted.Error(), false)
	}

	if d.now().Sub(rec.UpdatedAt) < d.cfg.PendingTimeout {
		return nil, nil
	}
	return d.retry(ctx, rec, retryTimeout, ErrMintStuck.Error(), true)
}

// minedSuperseded completes rec when one of its abandoned transactions was
// mined after all.
func (d *Dispatcher) minedSuperseded(ctx context.Context, rec *state.MintRecord) (*state.MintRecord, error) {
	for _, hash := range rec.SupersededTxHashes {
		receipt, err := d.chain.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt != nil && receipt.Status == types.ReceiptStatusSuccessful {
			return d.complete(rec, hash)
		}
	}
	return nil, nil
}

func (d *Dispatcher) complete(rec *state.MintRecord, txHash ethcommon.Hash) (*state.MintRecord, error) {
	next := rec.Clone()
	next.Status = state.MintStatusCompleted
	next.MintTxHash = txHash
	next.LastError = ""
	next.UpdatedAt = d.now()

	if err := d.ledger.UpsertMint(next); err != nil {
		return nil, err
	}
	d.releaseNonce(rec)
	metrics.MintTransitions.WithLabelValues(string(state.MintStatusCompleted)).Inc()

	logger.WithFields(logger.Fields{
		"burnTxHash": rec.BurnTxHash.String(),
		"mintTxHash": txHash.String(),
		"to":         rec.To.String(),
		"amount":     rec.Amount,
		"retry":      rec.RetryCount,
	}).Info("mint completed")

	return next, nil
}

// retry counts a failed attempt and puts the record back in the queue, or
// fails it for good once the retry cap is reached. With supersede set the
// current transaction is kept for later receipt checks.
func (d *Dispatcher) retry(ctx context.Context, rec *state.MintRecord, reason, lastError string, supersede bool) (*state.MintRecord, error) {
	next := rec.Clone()
	if supersede && next.MintTxHash != (ethcommon.Hash{}) {
		next.SupersededTxHashes = append(next.SupersededTxHashes, next.MintTxHash)
	}

	// Superseded transactions may still be mined. Look once more before the
	// record can no longer complete.
	if rec.RetryCount+1 >= d.cfg.MaxRetries {
		mined, err := d.minedSuperseded(ctx, next)
		if err != nil || mined != nil {
			return mined, err
		}
	}

	next.RetryCount++
	next.LastError = lastError
	next.UpdatedAt = d.now()
	next.Status = state.MintStatusQueued
	if next.RetryCount >= d.cfg.MaxRetries {
		next.Status = state.MintStatusFailed
	}

	if err := d.ledger.UpsertMint(next); err != nil {
		return nil, err
	}
	d.releaseNonce(rec)
	metrics.MintRetries.WithLabelValues(reason).Inc()
	metrics.MintTransitions.WithLabelValues(string(next.Status)).Inc()

	fields := logger.Fields{
		"burnTxHash": rec.BurnTxHash.String(),
		"mintTxHash": rec.MintTxHash.String(),
		"nonce":      rec.Nonce.String(),
		"retry":      next.RetryCount,
		"reason":     reason,
		"err":        lastError,
	}
	if next.Status == state.MintStatusFailed {
		fields["superseded"] = next.SupersededTxHashes
		logger.WithFields(fields).Error("mint failed permanently")
	} else {
		logger.WithFields(fields).Warn("mint requeued")
	}

	return next, nil
}

// postpone keeps a record queued without counting a retry. The ledger is
// only written when the error changes.
func (d *Dispatcher) postpone(rec *state.MintRecord, reason, lastError string) (*state.MintRecord, error) {
	metrics.MintPostponed.WithLabelValues(reason).Inc()
	if rec.LastError == lastError {
		return nil, nil
	}

	next := rec.Clone()
	next.LastError = lastError
	next.UpdatedAt = d.now()
	if err := d.ledger.UpsertMint(next); err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"burnTxHash": rec.BurnTxHash.String(),
		"retry":      rec.RetryCount,
		"reason":     reason,
		"err":        lastError,
	}).Warn("mint postponed")

	return next, nil
}

func (d *Dispatcher) fail(rec *state.MintRecord) (*state.MintRecord, error) {
	next := rec.Clone()
	next.Status = state.MintStatusFailed
	next.UpdatedAt = d.now()

	if err := d.ledger.UpsertMint(next); err != nil {
		return nil, err
	}
	d.releaseNonce(rec)
	metrics.MintTransitions.WithLabelValues(string(state.MintStatusFailed)).Inc()

	logger.WithFields(logger.Fields{
		"burnTxHash": rec.BurnTxHash.String(),
		"retry":      rec.RetryCount,
		"superseded": rec.SupersededTxHashes,
	}).Error("mint failed permanently, retry cap reached")

	return next, nil
}

// nonceUsed handles a queued record whose last nonce was taken on chain. A
// successful transaction of the record completes it. A reverted one means the
// record may move on to a fresh nonce. With no receipt at all the record
// waits, and only a PendingTimeout after its last attempt the nonce counts as
// taken by a foreign transaction.
func (d *Dispatcher) nonceUsed(ctx context.Context, rec *state.MintRecord) (*state.MintRecord, bool, error) {
	hashes := rec.SupersededTxHashes
	if rec.MintTxHash != (ethcommon.Hash{}) {
		hashes = append([]ethcommon.Hash{rec.MintTxHash}, hashes...)
	}

	reverted := false
	for _, hash := range hashes {
		receipt, err := d.chain.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, false, err
		}
		if receipt == nil {
			continue
		}
		if receipt.Status == types.ReceiptStatusSuccessful {
			mined, err := d.complete(rec, hash)
			return mined, false, err
		}
		reverted = true
	}

	fields := logger.Fields{
		"burnTxHash": rec.BurnTxHash.String(),
		"nonce":      rec.Nonce.String(),
	}
	switch {
	case reverted:
		return nil, true, nil
	case d.now().Sub(rec.UpdatedAt) >= d.cfg.PendingTimeout:
		logger.WithFields(fields).Warn("nonce taken by a foreign transaction, moving to a fresh one")
		return nil, true, nil
	default:
		logger.WithFields(fields).Info("nonce used on chain, waiting for its receipt")
		return nil, false, nil
	}
}

// releaseNonce frees the nonce held by a record that was pending.
func (d *Dispatcher) releaseNonce(rec *state.MintRecord) {
	if rec.Status != state.MintStatusPending {
		return
	}
	if n, ok := rec.Nonce.Get(); ok {
		d.nonces.Release(n)
	}
}

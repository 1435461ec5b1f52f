package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/TEENet-io/burnmint-relayer/metrics"
	"github.com/TEENet-io/burnmint-relayer/state"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
)

// Dispatcher settles queued mints by sending native transfers from the
// reserve account on the destination chain.
type Dispatcher struct {
	cfg     *DispatcherConfig
	chain   DestChain
	ledger  Ledger
	reserve ethcommon.Address
	signer  types.Signer
	nonces  *NonceAllocator
	queue   *mintQueue

	draining atomic.Bool
	now      func() time.Time
}

func New(cfg *DispatcherConfig, chain DestChain, ledger Ledger) (*Dispatcher, error) {
	if cfg.ReserveKey == nil {
		return nil, ErrReserveKeyMissing
	}
	if cfg.DestChainID == nil {
		return nil, ErrChainIDMissing
	}
	cfg.setDefaults()

	reserve := crypto.PubkeyToAddress(cfg.ReserveKey.PublicKey)
	return &Dispatcher{
		cfg:     cfg,
		chain:   chain,
		ledger:  ledger,
		reserve: reserve,
		signer:  types.LatestSignerForChainID(cfg.DestChainID),
		nonces:  NewNonceAllocator(chain, reserve),
		queue:   newMintQueue(),
		now:     time.Now,
	}, nil
}

func (d *Dispatcher) ReserveAddress() ethcommon.Address {
	return d.reserve
}

// QueueSnapshot returns the waiting items in processing order.
func (d *Dispatcher) QueueSnapshot() []*state.QueueItem {
	return d.queue.Snapshot()
}

func (d *Dispatcher) InFlightNonces() []uint64 {
	return d.nonces.InFlight()
}

// Enqueue makes sure the burn has a mint record and, unless that record is
// settled, a queue item. Calling it again for the same burn changes nothing.
func (d *Dispatcher) Enqueue(ev *state.BurnEvent) error {
	rec, ok, err := d.ledger.GetMint(ev.SourceTxHash)
	if err != nil {
		return err
	}

	if ok {
		if rec.Status.IsTerminal() {
			return nil
		}
		if d.queue.Push(state.NewQueueItem(rec, d.now())) {
			metrics.QueueLength.Set(float64(d.queue.Len()))
		}
		return nil
	}

	if ev.ConvertedAmount == nil || ev.ConvertedAmount.Sign() <= 0 {
		logger.WithField("burnTxHash", ev.SourceTxHash.String()).Debug("nothing to mint for burn")
		return nil
	}

	rec = state.NewMintRecord(ev, d.now())
	if err := d.ledger.UpsertMint(rec); err != nil {
		return err
	}
	metrics.MintTransitions.WithLabelValues(string(state.MintStatusQueued)).Inc()

	d.queue.Push(state.NewQueueItem(rec, rec.CreatedAt))
	metrics.QueueLength.Set(float64(d.queue.Len()))
	return nil
}

// Drain runs one cycle over the items queued when it starts. Only one cycle
// runs at a time; an overlapping call returns ErrDrainInProgress. Per-item
// failures that count as retries are recorded on the mint record; the
// returned error joins the failures that left an item untouched.
func (d *Dispatcher) Drain(ctx context.Context) error {
	if !d.draining.CompareAndSwap(false, true) {
		return ErrDrainInProgress
	}
	defer d.draining.Store(false)

	cycle := uuid.NewString()
	begin := time.Now()
	items := d.queue.TakeAll()

	var errs []error
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			for _, rest := range items[i:] {
				d.queue.Requeue(rest)
			}
			errs = append(errs, err)
			break
		}

		if err := d.drainItem(ctx, item); err != nil {
			logger.WithFields(logger.Fields{
				"cycle":      cycle,
				"burnTxHash": item.BurnTxHash.String(),
				"err":        err,
			}).Error("failed to process mint")
			errs = append(errs, err)
		}
	}

	if err := d.ledger.SaveQueueSnapshot(d.queue.Snapshot()); err != nil {
		errs = append(errs, err)
	}
	d.updateGauges()
	metrics.DrainDuration.Observe(time.Since(begin).Seconds())

	logger.WithFields(logger.Fields{
		"cycle":    cycle,
		"items":    len(items),
		"queued":   d.queue.Len(),
		"inflight": len(d.nonces.InFlight()),
	}).Debug("drain cycle finished")

	return errors.Join(errs...)
}

func (d *Dispatcher) drainItem(ctx context.Context, item *state.QueueItem) error {
	rec, ok, err := d.ledger.GetMint(item.BurnTxHash)
	if err != nil {
		d.queue.Requeue(item)
		return err
	}
	if !ok {
		d.queue.Done(item.BurnTxHash)
		return ErrMintMissing(item.BurnTxHash)
	}

	var next *state.MintRecord
	switch rec.Status {
	case state.MintStatusPending:
		next, err = d.checkPending(ctx, rec)
	case state.MintStatusQueued:
		next, err = d.submit(ctx, rec)
	}
	if next == nil {
		next = rec
	}

	if next.Status.IsTerminal() {
		d.queue.Done(item.BurnTxHash)
		return err
	}

	enqueuedAt := item.EnqueuedAt
	if next.RetryCount != rec.RetryCount {
		enqueuedAt = d.now()
	}
	d.queue.Requeue(state.NewQueueItem(next, enqueuedAt))
	return err
}

// Recover rebuilds the queue and the in-flight nonces from the ledger and
// settles every pending record whose receipt is already available. It is
// meant to run before the first drain. Burns enqueued while it runs stay
// queued.
func (d *Dispatcher) Recover(ctx context.Context) error {
	if !d.draining.CompareAndSwap(false, true) {
		return ErrDrainInProgress
	}
	defer d.draining.Store(false)

	recs, err := d.ledger.GetMintsByStatus(state.MintStatusQueued, state.MintStatusPending)
	if err != nil {
		return err
	}
	snapshot, err := d.ledger.LoadQueueSnapshot()
	if err != nil {
		return err
	}
	enqueuedAt := make(map[ethcommon.Hash]time.Time, len(snapshot))
	for _, item := range snapshot {
		enqueuedAt[item.BurnTxHash] = item.EnqueuedAt
	}

	d.nonces.Reset()
	for _, rec := range recs {
		if n, ok := rec.Nonce.Get(); ok && rec.Status == state.MintStatusPending {
			d.nonces.Reserve(n)
		}
	}

	var errs []error
	settled := 0
	items := make([]*state.QueueItem, 0, len(recs))
	for _, rec := range recs {
		next := rec
		if rec.Status == state.MintStatusPending {
			updated, err := d.checkPending(ctx, rec)
			if err != nil {
				errs = append(errs, err)
			}
			if updated != nil {
				next = updated
			}
		}
		if next.Status.IsTerminal() {
			settled++
			continue
		}

		t, ok := enqueuedAt[rec.BurnTxHash]
		if !ok {
			t = rec.CreatedAt
		}
		items = append(items, state.NewQueueItem(next, t))
	}
	d.queue.Rebuild(items)

	if err := d.ledger.SaveQueueSnapshot(d.queue.Snapshot()); err != nil {
		errs = append(errs, err)
	}
	d.updateGauges()

	logger.WithFields(logger.Fields{
		"loaded":   len(recs),
		"settled":  settled,
		"queued":   d.queue.Len(),
		"inflight": d.nonces.InFlight(),
	}).Info("dispatcher recovered")

	return errors.Join(errs...)
}

// Start drains every DrainInterval until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	logger.Debug("starting mint dispatcher")
	defer func() {
		logger.Debug("stopping mint dispatcher")
	}()

	ticker := time.NewTicker(d.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.Drain(ctx); err != nil && !errors.Is(err, ErrDrainInProgress) {
				logger.WithField("err", err).Error("drain cycle failed")
			}
		}
	}
}

func (d *Dispatcher) updateGauges() {
	metrics.QueueLength.Set(float64(d.queue.Len()))
	metrics.InFlightMints.Set(float64(len(d.nonces.InFlight())))
}

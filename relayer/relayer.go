package relayer

import (
	"context"
	"errors"
	"time"

	"github.com/TEENet-io/burnmint-relayer/dispatcher"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Relayer drives the scanner over confirmed source blocks and the dispatcher
// over the resulting mints. The two loops tick independently.
type Relayer struct {
	cfg        *Config
	src        SourceHead
	ledger     Checkpointer
	scanner    BurnScanner
	dispatcher MintDispatcher

	recovered bool
}

func New(cfg *Config, src SourceHead, ledger Checkpointer, sc BurnScanner, d MintDispatcher) *Relayer {
	cfg.setDefaults()
	return &Relayer{
		cfg:        cfg,
		src:        src,
		ledger:     ledger,
		scanner:    sc,
		dispatcher: d,
	}
}

// Start recovers the dispatcher and runs both loops until ctx is done. Cycle
// errors are logged and never end the loops. A failed recovery is retried
// before each drain until it succeeds.
func (r *Relayer) Start(ctx context.Context) error {
	logger.Debug("starting relayer")
	defer func() {
		logger.Debug("stopping relayer")
	}()

	r.recover(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.loop(ctx, r.cfg.ScanInterval, func(ctx context.Context) {
			if _, err := r.ScanOnce(ctx); err != nil {
				logger.WithField("err", err).Error("scan cycle failed")
			}
		})
	})
	g.Go(func() error {
		return r.loop(ctx, r.cfg.DrainInterval, func(ctx context.Context) {
			if !r.recover(ctx) {
				return
			}
			if err := r.DrainOnce(ctx); err != nil && !errors.Is(err, dispatcher.ErrDrainInProgress) {
				logger.WithField("err", err).Error("drain cycle failed")
			}
		})
	})
	return g.Wait()
}

func (r *Relayer) loop(ctx context.Context, interval time.Duration, cycle func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cycle(ctx)
		}
	}
}

// recover is only called from Start and the drain loop, which never run it
// concurrently.
func (r *Relayer) recover(ctx context.Context) bool {
	if r.recovered {
		return true
	}
	if err := r.dispatcher.Recover(ctx); err != nil {
		logger.WithField("err", err).Error("failed to recover dispatcher")
		return false
	}
	r.recovered = true
	return true
}

// ScanOnce scans the blocks between the checkpoint and head - Confirmations
// and enqueues a mint for every burn it persisted. It returns the number of
// persisted burns. Burns of sub-ranges committed before a failure are
// enqueued as well.
func (r *Relayer) ScanOnce(ctx context.Context) (int, error) {
	head, err := r.src.HeadBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if head < r.cfg.Confirmations {
		return 0, nil
	}
	target := head - r.cfg.Confirmations

	from := r.cfg.StartBlock
	checkpoint, ok, err := r.ledger.GetCheckpoint()
	if err != nil {
		return 0, err
	}
	if ok && checkpoint+1 > from {
		from = checkpoint + 1
	}
	if from > target {
		return 0, nil
	}

	res, scanErr := r.scanner.ScanRange(ctx, from, target)
	if res == nil {
		return 0, scanErr
	}

	errs := []error{scanErr}
	for _, ev := range res.Events {
		if err := r.dispatcher.Enqueue(ev); err != nil {
			errs = append(errs, err)
		}
	}

	logger.WithFields(logger.Fields{
		"from":      from,
		"to":        target,
		"committed": res.Committed,
		"burns":     len(res.Events),
	}).Debug("scan cycle finished")

	return len(res.Events), errors.Join(errs...)
}

// DrainOnce runs one dispatcher cycle.
func (r *Relayer) DrainOnce(ctx context.Context) error {
	return r.dispatcher.Drain(ctx)
}

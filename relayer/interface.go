package relayer

import (
	"context"

	"github.com/TEENet-io/burnmint-relayer/scanner"
	"github.com/TEENet-io/burnmint-relayer/state"
)

type SourceHead interface {
	HeadBlockNumber(ctx context.Context) (uint64, error)
}

type Checkpointer interface {
	GetCheckpoint() (uint64, bool, error)
}

type BurnScanner interface {
	ScanRange(ctx context.Context, from, to uint64) (*scanner.ScanResult, error)
}

type MintDispatcher interface {
	Recover(ctx context.Context) error
	Enqueue(ev *state.BurnEvent) error
	Drain(ctx context.Context) error
}

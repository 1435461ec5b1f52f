package state

import (
	"fmt"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

type BurnKind string

const (
	BurnKindNative BurnKind = "native"
	BurnKindToken  BurnKind = "token"
)

// BurnEvent is an immutable fact about a confirmed burn on the source chain.
type BurnEvent struct {
	SourceTxHash    ethcommon.Hash
	From            ethcommon.Address
	Kind            BurnKind
	OriginalAmount  *big.Int
	ConvertedAmount *big.Int
	BlockNumber     uint64
	BlockTimestamp  uint64
}

func (ev *BurnEvent) String() string {
	return fmt.Sprintf("%+v", *ev)
}

type MintStatus string

const (
	MintStatusQueued    MintStatus = "queued"
	MintStatusPending   MintStatus = "pending"
	MintStatusCompleted MintStatus = "completed"
	MintStatusFailed    MintStatus = "failed"
)

// Allowed moves of the mint state machine. Completed and failed have no
// outgoing edge. queued -> completed covers a superseded transaction that is
// mined after the record went back to the queue.
var mintTransitions = map[MintStatus][]MintStatus{
	MintStatusQueued: {
		MintStatusQueued,
		MintStatusPending,
		MintStatusCompleted,
		MintStatusFailed,
	},
	MintStatusPending: {
		MintStatusPending,
		MintStatusQueued,
		MintStatusCompleted,
		MintStatusFailed,
	},
}

func (s MintStatus) IsValid() bool {
	switch s {
	case MintStatusQueued, MintStatusPending, MintStatusCompleted, MintStatusFailed:
		return true
	}
	return false
}

func (s MintStatus) IsTerminal() bool {
	return s == MintStatusCompleted || s == MintStatusFailed
}

func (s MintStatus) CanTransitionTo(next MintStatus) bool {
	for _, to := range mintTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Nonce is an account nonce that may not have been assigned yet.
type Nonce struct {
	value    uint64
	assigned bool
}

var NoNonce = Nonce{}

func NonceOf(n uint64) Nonce {
	return Nonce{value: n, assigned: true}
}

func (n Nonce) Get() (uint64, bool) {
	return n.value, n.assigned
}

func (n Nonce) IsAssigned() bool {
	return n.assigned
}

func (n Nonce) String() string {
	if !n.assigned {
		return "unassigned"
	}
	return fmt.Sprintf("%d", n.value)
}

// MintRecord is the settlement state of one burn on the destination chain.
type MintRecord struct {
	BurnTxHash ethcommon.Hash
	MintTxHash ethcommon.Hash // zero until a transaction is signed
	To         ethcommon.Address
	Amount     *big.Int
	Status     MintStatus
	RetryCount int
	Nonce      Nonce
	GasPrice   *big.Int // last used, nil before the first submission
	LastError  string

	// Hashes of earlier submissions abandoned as stuck. Any of them may
	// still be mined, so they are checked before resubmitting.
	SupersededTxHashes []ethcommon.Hash

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m *MintRecord) String() string {
	return fmt.Sprintf("%+v", *m)
}

func (m *MintRecord) Clone() *MintRecord {
	c := *m
	if m.Amount != nil {
		c.Amount = new(big.Int).Set(m.Amount)
	}
	if m.GasPrice != nil {
		c.GasPrice = new(big.Int).Set(m.GasPrice)
	}
	c.SupersededTxHashes = append([]ethcommon.Hash(nil), m.SupersededTxHashes...)
	return &c
}

// NewMintRecord creates the queued record for a burn.
func NewMintRecord(ev *BurnEvent, now time.Time) *MintRecord {
	return &MintRecord{
		BurnTxHash: ev.SourceTxHash,
		To:         ev.From,
		Amount:     new(big.Int).Set(ev.ConvertedAmount),
		Status:     MintStatusQueued,
		Nonce:      NoNonce,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// QueueItem is a dispatcher work item. It is derived from a non-terminal
// MintRecord and persisted only as a snapshot.
type QueueItem struct {
	BurnTxHash ethcommon.Hash
	To         ethcommon.Address
	Amount     *big.Int
	Priority   int
	EnqueuedAt time.Time
	LastError  string
}

func NewQueueItem(rec *MintRecord, enqueuedAt time.Time) *QueueItem {
	return &QueueItem{
		BurnTxHash: rec.BurnTxHash,
		To:         rec.To,
		Amount:     new(big.Int).Set(rec.Amount),
		Priority:   rec.RetryCount,
		EnqueuedAt: enqueuedAt,
		LastError:  rec.LastError,
	}
}

type BurnFilter struct {
	From  *ethcommon.Address
	Limit int
}

type MintFilter struct {
	To       *ethcommon.Address
	Statuses []MintStatus
	Limit    int
}

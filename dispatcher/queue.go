package dispatcher

import (
	"container/heap"
	"sync"

	"github.com/TEENet-io/burnmint-relayer/state"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// itemHeap orders items by priority, then by enqueue time.
type itemHeap []*state.QueueItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	if !h[i].EnqueuedAt.Equal(h[j].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
	}
	return h[i].BurnTxHash.Cmp(h[j].BurnTxHash) < 0
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(*state.QueueItem)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// mintQueue holds at most one item per burn. An item taken by a drain cycle
// stays a member until the cycle puts it back or drops it, so a concurrent
// enqueue cannot duplicate it.
type mintQueue struct {
	mu      sync.Mutex
	heap    itemHeap
	members map[ethcommon.Hash]struct{}
}

func newMintQueue() *mintQueue {
	return &mintQueue{
		heap:    itemHeap{},
		members: map[ethcommon.Hash]struct{}{},
	}
}

// Push adds item unless its burn is already a member.
func (q *mintQueue) Push(item *state.QueueItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.members[item.BurnTxHash]; ok {
		return false
	}
	q.members[item.BurnTxHash] = struct{}{}
	heap.Push(&q.heap, item)
	return true
}

// TakeAll removes every waiting item in processing order. The items remain
// members until Requeue or Done.
func (q *mintQueue) TakeAll() []*state.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]*state.QueueItem, 0, q.heap.Len())
	for q.heap.Len() > 0 {
		items = append(items, heap.Pop(&q.heap).(*state.QueueItem))
	}
	return items
}

// Requeue puts a taken item back.
func (q *mintQueue) Requeue(item *state.QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.members[item.BurnTxHash] = struct{}{}
	heap.Push(&q.heap, item)
}

// Done drops a taken item for good.
func (q *mintQueue) Done(hash ethcommon.Hash) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.members, hash)
}

func (q *mintQueue) Contains(hash ethcommon.Hash) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.members[hash]
	return ok
}

func (q *mintQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.members)
}

// Snapshot returns the waiting items in processing order.
func (q *mintQueue) Snapshot() []*state.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	h := make(itemHeap, len(q.heap))
	copy(h, q.heap)
	heap.Init(&h)

	items := make([]*state.QueueItem, 0, len(h))
	for h.Len() > 0 {
		items = append(items, heap.Pop(&h).(*state.QueueItem))
	}
	return items
}

// Rebuild replaces the waiting items with items. A waiting item whose burn is
// not among items stays, so a push that raced with the caller is kept.
func (q *mintQueue) Rebuild(items []*state.QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	h := make(itemHeap, 0, len(items)+len(q.heap))
	members := make(map[ethcommon.Hash]struct{}, len(items)+len(q.heap))
	for _, item := range items {
		if _, ok := members[item.BurnTxHash]; ok {
			continue
		}
		members[item.BurnTxHash] = struct{}{}
		h = append(h, item)
	}
	for _, item := range q.heap {
		if _, ok := members[item.BurnTxHash]; ok {
			continue
		}
		members[item.BurnTxHash] = struct{}{}
		h = append(h, item)
	}
	heap.Init(&h)

	q.heap = h
	q.members = members
}

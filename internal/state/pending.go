package state

import (
	"container/heap"
	"time"
)

// pendingEntry indexes one job awaiting a claim attempt. The job record
// stays authoritative; a stale entry (job already claimed, completed,
// or rescheduled) is dropped when it surfaces.
type pendingEntry struct {
	jobID int64
	dueAt time.Time // zero means immediately eligible
	order int64     // submission order, breaks due-time ties FIFO
}

// pendingHeap is a min-heap keyed by (dueAt, order) so a claim is
// O(log n) instead of a linear skip-and-requeue scan.
type pendingHeap []pendingEntry

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if !h[i].dueAt.Equal(h[j].dueAt) {
		return h[i].dueAt.Before(h[j].dueAt)
	}
	return h[i].order < h[j].order
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) { *h = append(*h, x.(pendingEntry)) }

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

func (c *Container) pushPending(entry pendingEntry) {
	c.enqueueOrder++
	entry.order = c.enqueueOrder
	heap.Push(&c.pending, entry)
}

func (c *Container) peekPending() (pendingEntry, bool) {
	if len(c.pending) == 0 {
		return pendingEntry{}, false
	}
	return c.pending[0], true
}

func (c *Container) popPending() (pendingEntry, bool) {
	if len(c.pending) == 0 {
		return pendingEntry{}, false
	}
	return heap.Pop(&c.pending).(pendingEntry), true
}

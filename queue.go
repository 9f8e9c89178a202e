package pulsebus

import (
	"container/heap"
)

// entry wraps an event with its ordering key. seq breaks ties between
// events carrying identical priority and timestamp, preserving
// insertion order.
type entry struct {
	event *Event
	seq   uint64
	index int
}

// queue is a bounded priority queue. Dequeue order is priority
// descending, then timestamp ascending, then insertion order. On
// overflow it evicts the entry with the globally minimum
// (priority, timestamp) key, never merely the physical heap root.
//
// queue is not safe for concurrent use; the bus serializes access
// under its lock.
type queue struct {
	entries entryHeap
	cap     int
	seq     uint64
}

func newQueue(capacity int) *queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &queue{
		entries: make(entryHeap, 0, capacity),
		cap:     capacity,
	}
}

// Len returns the number of queued events.
func (q *queue) Len() int { return len(q.entries) }

// Capacity returns the configured maximum queue size.
func (q *queue) Capacity() int { return q.cap }

// Offer inserts the event, evicting the globally minimum entry when the
// queue is full and the incoming priority strictly outranks it.
// It returns the event that was dropped (the evicted entry, or the
// incoming event itself) and whether the incoming event was accepted.
func (q *queue) Offer(e *Event) (dropped *Event, accepted bool) {
	if len(q.entries) < q.cap {
		q.push(e)
		return nil, true
	}

	min := q.minIndex()
	if e.Priority <= q.entries[min].event.Priority {
		return e, false
	}

	evicted := heap.Remove(&q.entries, min).(*entry)
	q.push(e)
	return evicted.event, true
}

// Pop removes and returns the highest-priority, earliest-timestamp
// event, or nil when the queue is empty.
func (q *queue) Pop() *Event {
	if len(q.entries) == 0 {
		return nil
	}
	ent := heap.Pop(&q.entries).(*entry)
	return ent.event
}

// Depths returns the number of queued events per priority level.
func (q *queue) Depths() map[int]int {
	depths := make(map[int]int, MaxPriority)
	for _, ent := range q.entries {
		depths[ent.event.Priority]++
	}
	return depths
}

func (q *queue) push(e *Event) {
	q.seq++
	heap.Push(&q.entries, &entry{event: e, seq: q.seq})
}

// minIndex locates the entry with the lowest priority, breaking ties by
// earliest timestamp then insertion order. The heap is ordered for
// dequeue (maximum first), so the true minimum requires a full scan.
func (q *queue) minIndex() int {
	min := 0
	for i := 1; i < len(q.entries); i++ {
		if entryLess(q.entries[i], q.entries[min]) {
			min = i
		}
	}
	return min
}

// entryLess orders entries by the (priority, timestamp, seq) key:
// lower priority first, then earlier timestamp, then earlier insertion.
func entryLess(a, b *entry) bool {
	if a.event.Priority != b.event.Priority {
		return a.event.Priority < b.event.Priority
	}
	if !a.event.Timestamp.Equal(b.event.Timestamp) {
		return a.event.Timestamp.Before(b.event.Timestamp)
	}
	return a.seq < b.seq
}

// entryHeap is a max-heap on priority with FIFO order inside a band.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].event.Priority != h[j].event.Priority {
		return h[i].event.Priority > h[j].event.Priority
	}
	if !h[i].event.Timestamp.Equal(h[j].event.Timestamp) {
		return h[i].event.Timestamp.Before(h[j].event.Timestamp)
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	ent := x.(*entry)
	ent.index = len(*h)
	*h = append(*h, ent)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	ent := old[n-1]
	old[n-1] = nil
	ent.index = -1
	*h = old[:n-1]
	return ent
}

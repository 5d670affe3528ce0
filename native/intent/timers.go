package intent

import "container/heap"

// timerKind distinguishes the two deadline families an intent carries.
type timerKind uint8

const (
	timerBidding timerKind = iota + 1
	timerExecution
)

func (k timerKind) String() string {
	switch k {
	case timerBidding:
		return "bidding"
	case timerExecution:
		return "execution"
	default:
		return "unknown"
	}
}

type timerKey struct {
	intentID string
	kind     timerKind
}

type timerEntry struct {
	fireAt int64
	seq    uint64
	key    timerKey
}

// timerWheel is a min-heap of deadline entries drained by the engine's single
// scheduler goroutine. Cancellation and rescheduling bump the live sequence
// for the (intent, kind) key, turning any entry still sitting in the heap into
// a tombstone that popDue discards. One goroutine and one heap replace
// per-intent OS timers regardless of how many intents are in flight.
type timerWheel struct {
	entries timerHeap
	live    map[timerKey]uint64
	nextSeq uint64
}

func newTimerWheel() *timerWheel {
	return &timerWheel{live: make(map[timerKey]uint64)}
}

// schedule registers (or replaces) the deadline for the given intent and kind.
func (w *timerWheel) schedule(intentID string, kind timerKind, fireAt int64) {
	key := timerKey{intentID: intentID, kind: kind}
	w.nextSeq++
	w.live[key] = w.nextSeq
	heap.Push(&w.entries, timerEntry{fireAt: fireAt, seq: w.nextSeq, key: key})
}

// cancel removes the deadline for the given intent and kind. The heap entry
// stays behind as a tombstone; a cancelled timer can never fire.
func (w *timerWheel) cancel(intentID string, kind timerKind) {
	delete(w.live, timerKey{intentID: intentID, kind: kind})
}

// cancelAll drops every deadline held for the intent.
func (w *timerWheel) cancelAll(intentID string) {
	delete(w.live, timerKey{intentID: intentID, kind: timerBidding})
	delete(w.live, timerKey{intentID: intentID, kind: timerExecution})
}

// next reports the earliest live fire time, discarding tombstones from the
// heap head as it goes.
func (w *timerWheel) next() (int64, bool) {
	for w.entries.Len() > 0 {
		head := w.entries[0]
		if w.live[head.key] == head.seq {
			return head.fireAt, true
		}
		heap.Pop(&w.entries)
	}
	return 0, false
}

// popDue removes and returns every live entry with fireAt <= now, in fire
// order. Popped entries are no longer live.
func (w *timerWheel) popDue(now int64) []timerEntry {
	var due []timerEntry
	for w.entries.Len() > 0 {
		head := w.entries[0]
		if w.live[head.key] != head.seq {
			heap.Pop(&w.entries)
			continue
		}
		if head.fireAt > now {
			break
		}
		heap.Pop(&w.entries)
		delete(w.live, head.key)
		due = append(due, head)
	}
	return due
}

// size reports the number of live deadlines.
func (w *timerWheel) size() int { return len(w.live) }

type timerHeap []timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].fireAt != h[j].fireAt {
		return h[i].fireAt < h[j].fireAt
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(timerEntry)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

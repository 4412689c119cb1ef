package scheduler

import (
	"container/heap"

	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
)

// Handle identifies a pending push so it can be canceled later.
type Handle uint64

type entry struct {
	time  geom.Time
	seq   Handle
	cmd   Command
	index int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler is the simulation's command queue: Push assigns the next
// monotonic sequence number, GetNext pops everything due by a target
// time in (time, sequence) order, and Cancel marks a pending command
// dead via a canceled-handle set rather than a heap removal, so
// cancellation stays O(log n) amortized.
type Scheduler struct {
	heap     entryHeap
	nextSeq  Handle
	canceled map[Handle]bool
}

func New() *Scheduler {
	return &Scheduler{canceled: make(map[Handle]bool)}
}

// Push schedules cmd at time and returns a Handle usable with Cancel.
func (s *Scheduler) Push(time geom.Time, cmd Command) Handle {
	h := s.nextSeq
	s.nextSeq++
	heap.Push(&s.heap, &entry{time: time, seq: h, cmd: cmd})
	return h
}

// Cancel marks a previously pushed command as dead; it is silently
// skipped when popped. Canceling an already-popped or unknown handle is
// a no-op.
func (s *Scheduler) Cancel(h Handle) {
	s.canceled[h] = true
}

// GetNext pops and returns the earliest live command due at or before
// targetTime, discarding any canceled entries it encounters along the
// way. ok is false once the queue is empty or its head is later than
// targetTime.
func (s *Scheduler) GetNext(targetTime geom.Time) (cmd Command, at geom.Time, ok bool) {
	for len(s.heap) > 0 {
		head := s.heap[0]
		if head.time > targetTime {
			return Command{}, 0, false
		}
		popped := heap.Pop(&s.heap).(*entry)
		if s.canceled[popped.seq] {
			delete(s.canceled, popped.seq)
			continue
		}
		return popped.cmd, popped.time, true
	}
	return Command{}, 0, false
}

// Len reports the number of still-pending (not necessarily live) entries.
func (s *Scheduler) Len() int { return len(s.heap) }

// Peek reports the time of the next live entry without popping it, or
// ok=false if the queue holds no live entries.
func (s *Scheduler) Peek() (at geom.Time, ok bool) {
	// Peek must skip canceled entries without discarding anything it
	// doesn't pop, so walk a snapshot instead of mutating s.heap.
	tmp := append(entryHeap{}, s.heap...)
	for len(tmp) > 0 {
		idx := 0
		for i, e := range tmp {
			if e.time < tmp[idx].time || (e.time == tmp[idx].time && e.seq < tmp[idx].seq) {
				idx = i
			}
		}
		e := tmp[idx]
		if !s.canceled[e.seq] {
			return e.time, true
		}
		tmp = append(tmp[:idx], tmp[idx+1:]...)
	}
	return 0, false
}

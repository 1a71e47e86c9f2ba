package fleet

import (
	"container/heap"
	"time"
)

// Trigger kinds for the periodic maintenance loop. Lower values win when
// several triggers come due in the same tick.
const (
	triggerServerCheck = iota
	triggerModCheck
)

// trigger is one recurring maintenance deadline.
// index is required for heap.Fix + O(log n) removals.
type trigger struct {
	kind  int
	when  time.Time
	every time.Duration
	index int
}

// schedule is a min-heap of recurring triggers keyed by next deadline.
type schedule struct {
	h       triggerHeap
	entries map[int]*trigger
}

func newSchedule() *schedule {
	h := triggerHeap{}
	heap.Init(&h)
	return &schedule{h: h, entries: make(map[int]*trigger)}
}

// add registers a recurring trigger, replacing any pending deadline of the
// same kind.
func (s *schedule) add(kind int, every time.Duration, first time.Time) {
	if old, ok := s.entries[kind]; ok {
		heap.Remove(&s.h, old.index)
		delete(s.entries, kind)
	}
	tr := &trigger{kind: kind, when: first, every: every}
	s.entries[kind] = tr
	heap.Push(&s.h, tr)
}

// next returns the soonest deadline without removing it.
func (s *schedule) next() (when time.Time, ok bool) {
	if len(s.h) == 0 {
		return time.Time{}, false
	}
	return s.h[0].when, true
}

// due pops every trigger whose deadline has passed, then reschedules each one
// interval out. Popping before rescheduling reports every trigger at most once
// per call, whatever its interval. Returned kinds are sorted by priority.
func (s *schedule) due(now time.Time) []int {
	var fired []*trigger
	for len(s.h) > 0 && !s.h[0].when.After(now) {
		fired = append(fired, heap.Pop(&s.h).(*trigger))
	}
	var kinds []int
	for _, tr := range fired {
		kinds = append(kinds, tr.kind)
		tr.when = now.Add(tr.every)
		heap.Push(&s.h, tr)
	}
	// insertion order off the heap is deadline order; priority is kind order
	for i := 1; i < len(kinds); i++ {
		for j := i; j > 0 && kinds[j] < kinds[j-1]; j-- {
			kinds[j], kinds[j-1] = kinds[j-1], kinds[j]
		}
	}
	return kinds
}

// --- heap internals ----------------------------------------------------------

type triggerHeap []*trigger

func (h triggerHeap) Len() int { return len(h) }

func (h triggerHeap) Less(i, j int) bool {
	return h[i].when.Before(h[j].when)
}

func (h triggerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *triggerHeap) Push(x any) {
	tr := x.(*trigger)
	tr.index = len(*h)
	*h = append(*h, tr)
}

func (h *triggerHeap) Pop() any {
	old := *h
	n := len(old)
	tr := old[n-1]
	tr.index = -1
	*h = old[:n-1]
	return tr
}

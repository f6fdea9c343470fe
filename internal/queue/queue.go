// Package queue provides the bounded priority queue used by the neighbor
// finder.
package queue

// Item is a candidate row and its distance to the query.
type Item struct {
	Index    int     // Index is the row index in the feature matrix.
	Distance float64 // Distance is the primary priority of the item.
}

// Less orders items by (Distance, Index) ascending.
func Less(a, b Item) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Index < b.Index
}

// PriorityQueue is a value-based binary heap of Items.
// Ties on Distance are broken by Index so that ordering is total.
type PriorityQueue struct {
	isMaxHeap bool
	items     []Item
}

// NewMin initializes a new priority queue with minimum priority.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: false,
		items:     make([]Item, 0, capacity),
	}
}

// NewMax initializes a new priority queue with maximum priority.
// A max-heap of size k holds the k smallest items seen so far, with the
// worst of them on top.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: true,
		items:     make([]Item, 0, capacity),
	}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// TopItem returns the top element of the heap.
func (pq *PriorityQueue) TopItem() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	return pq.items[0], true
}

// PushItem inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) PushItem(item Item) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// PopItem removes and returns the top element while maintaining the heap invariant.
func (pq *PriorityQueue) PopItem() (Item, bool) {
	n := len(pq.items)
	if n == 0 {
		return Item{}, false
	}
	root := pq.items[0]
	last := pq.items[n-1]
	pq.items = pq.items[:n-1]
	if n-1 > 0 {
		pq.items[0] = last
		pq.siftDown(0)
	}
	return root, true
}

// ReplaceTop overwrites the top element and restores the heap invariant.
// It is equivalent to PopItem followed by PushItem but sifts only once.
func (pq *PriorityQueue) ReplaceTop(item Item) {
	if len(pq.items) == 0 {
		pq.PushItem(item)
		return
	}
	pq.items[0] = item
	pq.siftDown(0)
}

// Offer keeps the capacity best items of a max-heap: it pushes while the
// heap has fewer than capacity items, then replaces the top only when item
// orders before it. It reports whether item was kept.
func (pq *PriorityQueue) Offer(item Item, capacity int) bool {
	if len(pq.items) < capacity {
		pq.PushItem(item)
		return true
	}
	if capacity == 0 || !Less(item, pq.items[0]) {
		return false
	}
	pq.ReplaceTop(item)
	return true
}

// Sorted drains the queue and returns its items in ascending order.
func (pq *PriorityQueue) Sorted() []Item {
	out := make([]Item, len(pq.items))
	if pq.isMaxHeap {
		for i := len(out) - 1; i >= 0; i-- {
			out[i], _ = pq.PopItem()
		}
		return out
	}
	for i := range out {
		out[i], _ = pq.PopItem()
	}
	return out
}

// Reset clears the priority queue for reuse.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}

func (pq *PriorityQueue) less(i, j int) bool {
	if pq.isMaxHeap {
		return Less(pq.items[j], pq.items[i])
	}
	return Less(pq.items[i], pq.items[j])
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !pq.less(i, p) {
			return
		}
		pq.items[i], pq.items[p] = pq.items[p], pq.items[i]
		i = p
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		r := l + 1
		if r < n && pq.less(r, l) {
			best = r
		}
		if !pq.less(best, i) {
			return
		}
		pq.items[i], pq.items[best] = pq.items[best], pq.items[i]
		i = best
	}
}

// Package queue provides the binary heaps used by graph search.
package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// PriorityQueueItem represents an item in the priority queue.
type PriorityQueueItem struct {
	Node     uint32  // Node is the graph node id.
	Distance float32 // Distance is the priority of the item in the queue.
	Index    int     // Index is maintained by the heap.Interface methods.
}

// PriorityQueue implements heap.Interface and holds PriorityQueueItems.
//
// Equal distances are ordered by node id so that the pop order never depends
// on insertion order.
type PriorityQueue struct {
	Order bool                 // Order is true for a max-heap, false for a min-heap.
	Items []*PriorityQueueItem // Items contains the elements of the priority queue.
}

// NewMin returns an empty min-heap.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{Items: make([]*PriorityQueueItem, 0, capacity)}
}

// NewMax returns an empty max-heap.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{Order: true, Items: make([]*PriorityQueueItem, 0, capacity)}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.Items) }

// Less reports whether the element with index i should sort before the element with index j.
func (pq *PriorityQueue) Less(i, j int) bool {
	a, b := pq.Items[i], pq.Items[j]
	if a.Distance == b.Distance {
		if pq.Order {
			return a.Node > b.Node
		}
		return a.Node < b.Node
	}

	if pq.Order {
		return a.Distance > b.Distance
	}

	return a.Distance < b.Distance
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
	pq.Items[i].Index, pq.Items[j].Index = i, j
}

// Push adds x to the priority queue.
func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(*PriorityQueueItem)
	item.Index = len(pq.Items)
	pq.Items = append(pq.Items, item)
}

// Pop removes and returns the last element of the backing slice.
// Use heap.Pop to remove the top element.
func (pq *PriorityQueue) Pop() any {
	if len(pq.Items) == 0 {
		return nil
	}

	old := pq.Items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	pq.Items = old[:n-1]

	return item
}

// Top returns the top element of the priority queue without removing it.
func (pq *PriorityQueue) Top() *PriorityQueueItem {
	return pq.Items[0]
}

// PushItem pushes a node with its distance.
func (pq *PriorityQueue) PushItem(node uint32, distance float32) {
	heap.Push(pq, &PriorityQueueItem{Node: node, Distance: distance})
}

// PopItem removes and returns the top element.
func (pq *PriorityQueue) PopItem() *PriorityQueueItem {
	item, _ := heap.Pop(pq).(*PriorityQueueItem)
	return item
}

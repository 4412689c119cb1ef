package container

import "container/heap"

// item is one element of the priority queue: a value plus its float
// priority (smaller pops first).
type item[T any] struct {
	Value    T
	Priority float64
	// index is maintained by the heap.Interface methods.
	index int
}

// priorityQueue implements heap.Interface over items.
type priorityQueue[T any] []*item[T]

func (pq priorityQueue[T]) Len() int { return len(pq) }

func (pq priorityQueue[T]) Less(i, j int) bool {
	// min-heap: Pop returns the lowest priority value
	return pq[i].Priority < pq[j].Priority
}

func (pq priorityQueue[T]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue[T]) Push(x any) {
	n := len(*pq)
	item := x.(*item[T])
	item.index = n
	*pq = append(*pq, item)
}

func (pq *priorityQueue[T]) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

// PriorityQueue is a float64-keyed min-heap. Elements can be added in
// bulk with Push + one Heapify, or one at a time with HeapPush.
type PriorityQueue[T any] struct {
	queue priorityQueue[T]
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{queue: make(priorityQueue[T], 0)}
}

func (q *PriorityQueue[T]) Len() int {
	return len(q.queue)
}

// First returns the element with the smallest priority without removing
// it. Only valid after Heapify (or pure HeapPush usage).
func (q *PriorityQueue[T]) First() T {
	return q.queue[0].Value
}

// Push appends an element without restoring the heap property; call
// Heapify once after a batch of pushes.
func (q *PriorityQueue[T]) Push(value T, priority float64) {
	q.queue = append(q.queue, &item[T]{
		Value:    value,
		Priority: priority,
	})
}

// Heapify rebuilds the heap after a batch of plain Push calls.
func (q *PriorityQueue[T]) Heapify() {
	heap.Init(&q.queue)
}

// HeapPush adds an element, maintaining the heap property.
func (q *PriorityQueue[T]) HeapPush(value T, priority float64) {
	heap.Push(&q.queue, &item[T]{
		Value:    value,
		Priority: priority,
	})
}

// HeapPop removes and returns the element with the smallest priority.
func (q *PriorityQueue[T]) HeapPop() (value T, priority float64) {
	item := heap.Pop(&q.queue).(*item[T])
	return item.Value, item.Priority
}

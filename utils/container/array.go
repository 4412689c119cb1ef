package container

// IIncrementalItem is what an IncrementalArray element must expose so the
// array can track each element's slot across compactions.
type IIncrementalItem interface {
	Index() int
	SetIndex(index int)
}

// IncrementalItemBase provides the index bookkeeping; embed it to satisfy
// IIncrementalItem.
type IncrementalItemBase struct {
	index int
}

func (b *IncrementalItemBase) Index() int {
	return b.index
}

func (b *IncrementalItemBase) SetIndex(index int) {
	b.index = index
}

// IncrementalArray is an arena with buffered add/remove: mutations queue
// up and take effect only at the next Prepare call, so iteration over
// Data() stays stable for the whole of one simulation step. The
// simulation is single-threaded, so no locking is needed around the
// buffers.
type IncrementalArray[T IIncrementalItem] struct {
	data   []T
	add    []T
	remove []T
}

func NewIncrementalArray[T IIncrementalItem]() *IncrementalArray[T] {
	return &IncrementalArray[T]{
		data:   make([]T, 0),
		add:    make([]T, 0),
		remove: make([]T, 0),
	}
}

// Len returns the current (post-Prepare) length.
func (a *IncrementalArray[T]) Len() int {
	return len(a.data)
}

// Data returns the backing slice as of the last Prepare.
func (a *IncrementalArray[T]) Data() []T {
	return a.data
}

// Add queues an element; it joins the array at the next Prepare.
func (a *IncrementalArray[T]) Add(value T) {
	a.add = append(a.add, value)
}

// Remove queues an element for removal at the next Prepare. An element
// that is still sitting in the add buffer (added and removed inside the
// same window) is dropped from there directly; its index was never
// assigned, so routing it through the remove buffer would corrupt the
// compaction.
func (a *IncrementalArray[T]) Remove(value T) {
	for i, v := range a.add {
		if any(v) == any(value) {
			a.add = append(a.add[:i], a.add[i+1:]...)
			return
		}
	}
	a.remove = append(a.remove, value)
}

// Prepare applies all queued adds and removes, reusing freed slots and
// compacting from the tail so the array stays dense.
func (a *IncrementalArray[T]) Prepare() {
	if len(a.add) >= len(a.remove) {
		for i, x := range a.remove {
			ind := x.Index()
			a.data[ind] = a.add[i]
			a.data[ind].SetIndex(ind)
		}
		l1 := len(a.remove)
		l2 := len(a.add) - l1
		for i := 0; i < l2; i++ {
			a.add[l1+i].SetIndex(len(a.data) + i)
		}
		a.data = append(a.data, a.add[len(a.remove):]...)
	} else {
		for i, x := range a.add {
			ind := a.remove[i].Index()
			a.data[ind] = x
			a.data[ind].SetIndex(ind)
		}
		l1 := len(a.add)
		l2 := len(a.remove) - l1
		l3 := len(a.data) - l2
		for i := 0; i < l2; i++ {
			// fill the freed slot with an element from the tail
			ind := a.remove[l1+i].Index()
			a.data[ind] = a.data[l3+i]
			a.data[ind].SetIndex(ind)
		}
		a.data = a.data[:l3]
	}

	a.add = []T{}
	a.remove = []T{}
}

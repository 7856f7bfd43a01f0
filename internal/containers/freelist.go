package containers

// FreeList is a LIFO stack of released indices. The most recently freed index is handed
// out first, which keeps the live part of parallel arrays dense.
type FreeList struct {
	indices []int
}

// Push releases idx.
func (f *FreeList) Push(idx int) {
	f.indices = append(f.indices, idx)
}

// Pop returns the most recently released index. ok is false when the list is empty and
// the caller has to grow its arrays instead.
func (f *FreeList) Pop() (idx int, ok bool) {
	n := len(f.indices)
	if n == 0 {
		return 0, false
	}
	idx = f.indices[n-1]
	f.indices = f.indices[:n-1]
	return idx, true
}

func (f *FreeList) Len() int {
	return len(f.indices)
}

func (f *FreeList) Reset() {
	f.indices = f.indices[:0]
}

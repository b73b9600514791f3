package ssd

// Typed copy of container/heap internals - https://golang.org/pkg/container/heap/
// Root holds the worst pair kept so far.

type scorePairHeap[T any] struct {
	items []ScorePair[T]
	worse func(a, b ScorePair[T]) bool
}

func (h *scorePairHeap[T]) Len() int           { return len(h.items) }
func (h *scorePairHeap[T]) Less(i, j int) bool { return h.worse(h.items[i], h.items[j]) }
func (h *scorePairHeap[T]) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

// Push pushes the element x onto the heap.
// The complexity is O(log n) where n = h.Len().
func (h *scorePairHeap[T]) Push(x ScorePair[T]) {
	h.items = append(h.items, x)
	h.up(h.Len() - 1)
}

func (h *scorePairHeap[T]) up(j int) {
	for {
		i := (j - 1) / 2
		if i == j || !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		j = i
	}
}

func (h *scorePairHeap[T]) down(i0, n int) bool {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.Less(j2, j1) {
			j = j2
		}
		if !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		i = j
	}
	return i > i0
}

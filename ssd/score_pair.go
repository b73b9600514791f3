package ssd

import (
	"cmp"
	"slices"
)

// ScorePair is a score with an arbitrary payload attached (prior index, pair of indices, etc.)
type ScorePair[T any] struct {
	Score   float64
	Payload T
}

// IndexPair is a payload holding two indices, e.g. (prior, ground truth) or (image, prior)
type IndexPair struct {
	I int
	J int
}

// Compare orders index pairs lexicographically
func (p IndexPair) Compare(other IndexPair) int {
	if c := cmp.Compare(p.I, other.I); c != 0 {
		return c
	}
	return cmp.Compare(p.J, other.J)
}

// SortScorePairDescend sorts pairs by score descending. Equal scores are ordered by payload ascending.
func SortScorePairDescend[T cmp.Ordered](pairs []ScorePair[T]) {
	SortScorePairDescendFunc(pairs, cmp.Compare[T])
}

// SortScorePairDescendFunc is SortScorePairDescend for payloads compared by cmpPayload
func SortScorePairDescendFunc[T any](pairs []ScorePair[T], cmpPayload func(a, b T) int) {
	slices.SortStableFunc(pairs, scorePairDescend(cmpPayload))
}

// TopKScorePairs returns k best pairs in the order SortScorePairDescend would put them.
// The input slice is not modified.
func TopKScorePairs[T cmp.Ordered](pairs []ScorePair[T], k int) []ScorePair[T] {
	return TopKScorePairsFunc(pairs, k, cmp.Compare[T])
}

// TopKScorePairsFunc is TopKScorePairs for payloads compared by cmpPayload
func TopKScorePairsFunc[T any](pairs []ScorePair[T], k int, cmpPayload func(a, b T) int) []ScorePair[T] {
	if k <= 0 {
		return []ScorePair[T]{}
	}
	compare := scorePairDescend(cmpPayload)
	if k >= len(pairs) {
		best := slices.Clone(pairs)
		slices.SortStableFunc(best, compare)
		return best
	}
	// Worst of the k best kept on top
	h := &scorePairHeap[T]{
		items: make([]ScorePair[T], 0, k),
		worse: func(a, b ScorePair[T]) bool { return compare(a, b) > 0 },
	}
	for _, pair := range pairs {
		if h.Len() < k {
			h.Push(pair)
			continue
		}
		if compare(pair, h.items[0]) < 0 {
			h.items[0] = pair
			h.down(0, h.Len())
		}
	}
	best := h.items
	slices.SortStableFunc(best, compare)
	return best
}

func scorePairDescend[T any](cmpPayload func(a, b T) int) func(a, b ScorePair[T]) int {
	return func(a, b ScorePair[T]) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmpPayload(a.Payload, b.Payload)
	}
}

package balltree

import (
	"math"
	"sort"
)

// neighborBuffer is a fixed-capacity buffer of (reduced distance, point
// index) pairs kept sorted ascending by distance. It is a sorted array
// rather than a heap: k is typically small and the traversal reads
// worst() on every node visit.
type neighborBuffer struct {
	dists []float64 // always length k, unfilled slots hold +Inf
	ids   []uint32
	size  int // number of real entries
}

func newNeighborBuffer(k int) *neighborBuffer {
	b := &neighborBuffer{
		dists: make([]float64, k),
		ids:   make([]uint32, k),
	}
	for i := range b.dists {
		b.dists[i] = math.Inf(1)
	}
	return b
}

// worst returns the largest stored distance (+Inf while not full).
func (b *neighborBuffer) worst() float64 {
	return b.dists[len(b.dists)-1]
}

// insert adds (dist, id) if dist is strictly smaller than the current
// worst entry, dropping that entry. The strict comparison makes ties in
// point distance resolve toward the point encountered first.
func (b *neighborBuffer) insert(dist float64, id uint32) {
	if dist >= b.worst() {
		return
	}

	// First slot whose distance exceeds dist: equal entries stay put.
	pos := sort.SearchFloat64s(b.dists, dist)
	for pos < len(b.dists) && b.dists[pos] == dist {
		pos++
	}

	copy(b.dists[pos+1:], b.dists[pos:])
	copy(b.ids[pos+1:], b.ids[pos:])
	b.dists[pos] = dist
	b.ids[pos] = id

	if b.size < len(b.dists) {
		b.size++
	}
}

// results converts the buffered reduced distances to true distances and
// returns them ascending. Unfilled slots (possible under filtering) are
// omitted.
func (b *neighborBuffer) results(convert func(float64) float64) []SearchResult {
	out := make([]SearchResult, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = SearchResult{Index: b.ids[i], Distance: convert(b.dists[i])}
	}
	return out
}

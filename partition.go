package balltree

// Partitioning primitives used by the builder. All of them operate on a
// window of the index permutation and only read the point matrix.

// computeCentroid writes the arithmetic mean of data[idx[i]] into out.
func computeCentroid(data []float64, dim int, idx []uint32, out []float64) {
	for j := range out {
		out[j] = 0
	}
	for _, id := range idx {
		row := data[int(id)*dim : int(id)*dim+dim]
		for j, v := range row {
			out[j] += v
		}
	}
	inv := 1 / float64(len(idx))
	for j := range out {
		out[j] *= inv
	}
}

// widestSpreadAxis returns the axis with the greatest max-min spread
// over the points in idx. Ties break toward the lower axis.
func widestSpreadAxis(data []float64, dim int, idx []uint32) int {
	bestAxis := 0
	bestSpread := -1.0
	for j := 0; j < dim; j++ {
		minVal := data[int(idx[0])*dim+j]
		maxVal := minVal
		for _, id := range idx[1:] {
			v := data[int(id)*dim+j]
			if v < minVal {
				minVal = v
			}
			if v > maxVal {
				maxVal = v
			}
		}
		if spread := maxVal - minVal; spread > bestSpread {
			bestSpread = spread
			bestAxis = j
		}
	}
	return bestAxis
}

// partitionAround rearranges idx in place so that the k smallest values
// along axis occupy idx[:k] and the rest occupy idx[k:]. Order within
// each half is unspecified. Expected O(len(idx)) via quickselect with a
// median-of-three pivot.
func partitionAround(data []float64, dim, axis int, idx []uint32, k int) {
	if k <= 0 || k >= len(idx) {
		return
	}

	key := func(i int) float64 { return data[int(idx[i])*dim+axis] }

	lo, hi := 0, len(idx)-1
	for lo < hi {
		// Median-of-three pivot, parked at hi.
		mid := lo + (hi-lo)/2
		if key(mid) < key(lo) {
			idx[mid], idx[lo] = idx[lo], idx[mid]
		}
		if key(hi) < key(lo) {
			idx[hi], idx[lo] = idx[lo], idx[hi]
		}
		if key(hi) < key(mid) {
			idx[hi], idx[mid] = idx[mid], idx[hi]
		}
		idx[mid], idx[hi] = idx[hi], idx[mid]
		pivot := key(hi)

		store := lo
		for i := lo; i < hi; i++ {
			if key(i) < pivot {
				idx[i], idx[store] = idx[store], idx[i]
				store++
			}
		}
		idx[store], idx[hi] = idx[hi], idx[store]

		switch {
		case k == store:
			return
		case k < store:
			hi = store - 1
		default:
			lo = store + 1
		}
	}
}

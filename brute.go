package balltree

// BruteKNN performs an exhaustive O(n) scan for the k nearest points to
// q. It uses the same metric as KNN and exists as an exactness
// baseline; results are sorted ascending by distance. Points are
// scanned in index order, so among equal distances the lower index is
// kept.
func (t *Tree) BruteKNN(q []float64, k int, optFns ...func(*SearchOptions)) ([]SearchResult, error) {
	var opts SearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if len(q) != t.dim {
		return nil, &ErrDimensionMismatch{Expected: t.dim, Actual: len(q)}
	}
	if k < 1 || k > t.n {
		return nil, &ErrKOutOfRange{K: k, N: t.n}
	}

	buf := newNeighborBuffer(k)
	for id := uint32(0); id < uint32(t.n); id++ {
		if opts.Filter != nil && !opts.Filter.Contains(id) {
			continue
		}
		buf.insert(t.metric.Reduced(q, t.point(id)), id)
	}

	return buf.results(t.metric.DistFromReduced), nil
}

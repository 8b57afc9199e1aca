package balltree

import (
	"context"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// SearchResult represents a single neighbor.
type SearchResult struct {
	// Index is the row of the matched point in the point matrix.
	Index uint32

	// Distance is the true p-metric distance between the query and the
	// matched point.
	Distance float64
}

// SearchOptions controls a single query.
type SearchOptions struct {
	// Filter restricts results to the given set of point indices.
	// If nil, all points are eligible.
	Filter *roaring.Bitmap
}

// WithFilter restricts a query to the points whose row indices are set
// in the bitmap.
func WithFilter(filter *roaring.Bitmap) func(*SearchOptions) {
	return func(o *SearchOptions) {
		o.Filter = filter
	}
}

// KNN returns the k nearest points to q with their true distances,
// sorted ascending by distance. Among points at equal distance, the one
// the traversal reaches first is kept; this is not necessarily the
// lower point index. With a filter, fewer than k results may be
// returned.
func (t *Tree) KNN(q []float64, k int, optFns ...func(*SearchOptions)) ([]SearchResult, error) {
	var opts SearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()
	results, err := t.knn(q, k, opts.Filter)
	t.metrics.RecordKNN(k, time.Since(start), err)
	t.logger.LogKNN(context.Background(), k, len(results), time.Since(start), err)

	return results, err
}

// KNNIndices is KNN returning only the neighbor indices; the distances
// are still computed internally and then dropped.
func (t *Tree) KNNIndices(q []float64, k int, optFns ...func(*SearchOptions)) ([]uint32, error) {
	results, err := t.KNN(q, k, optFns...)
	if err != nil {
		return nil, err
	}
	indices := make([]uint32, len(results))
	for i, r := range results {
		indices[i] = r.Index
	}
	return indices, nil
}

func (t *Tree) knn(q []float64, k int, filter *roaring.Bitmap) ([]SearchResult, error) {
	if len(q) != t.dim {
		return nil, &ErrDimensionMismatch{Expected: t.dim, Actual: len(q)}
	}
	if k < 1 || k > t.n {
		return nil, &ErrKOutOfRange{K: k, N: t.n}
	}

	buf := newNeighborBuffer(k)
	stack := newTraversalStack(t.n)
	stack.push(0, t.nodeLowerBound(q, 0))

	for {
		frame, ok := stack.pop()
		if !ok {
			break
		}

		// A subtree whose lower bound cannot beat the current worst
		// neighbor holds nothing we want.
		if frame.lowerBound >= buf.worst() {
			continue
		}

		node := t.nodes[frame.node]
		if node.IsLeaf {
			for _, id := range t.idx[node.IdxStart:node.IdxEnd] {
				if filter != nil && !filter.Contains(id) {
					continue
				}
				buf.insert(t.metric.Reduced(q, t.point(id)), id)
			}
			continue
		}

		left := 2*frame.node + 1
		right := left + 1
		lbLeft := t.nodeLowerBound(q, left)
		lbRight := t.nodeLowerBound(q, right)

		// LIFO: push the worse child first so the better one pops first.
		// On equal bounds the left child pops first.
		if lbLeft <= lbRight {
			stack.push(right, lbRight)
			stack.push(left, lbLeft)
		} else {
			stack.push(left, lbLeft)
			stack.push(right, lbRight)
		}
	}

	return buf.results(t.metric.DistFromReduced), nil
}

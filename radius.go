package balltree

import (
	"context"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// radiusMode selects what a radius traversal materializes.
type radiusMode uint8

const (
	radiusCount radiusMode = iota
	radiusIndices
	radiusDistances
)

// Radius returns every point within distance r of q, with true
// distances. Results are unsorted.
func (t *Tree) Radius(q []float64, r float64, optFns ...func(*SearchOptions)) ([]SearchResult, error) {
	var opts SearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()
	results, _, err := t.radius(q, r, radiusDistances, opts.Filter)
	t.metrics.RecordRadius(len(results), time.Since(start), err)
	t.logger.LogRadius(context.Background(), r, len(results), time.Since(start), err)

	return results, err
}

// RadiusIndices returns the indices of every point within distance r of
// q, without computing per-point distances where pruning allows.
// Results are unsorted.
func (t *Tree) RadiusIndices(q []float64, r float64, optFns ...func(*SearchOptions)) ([]uint32, error) {
	var opts SearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()
	results, _, err := t.radius(q, r, radiusIndices, opts.Filter)
	t.metrics.RecordRadius(len(results), time.Since(start), err)
	t.logger.LogRadius(context.Background(), r, len(results), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	indices := make([]uint32, len(results))
	for i, res := range results {
		indices[i] = res.Index
	}
	return indices, nil
}

// RadiusCount returns the number of points within distance r of q.
func (t *Tree) RadiusCount(q []float64, r float64, optFns ...func(*SearchOptions)) (int, error) {
	var opts SearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()
	_, count, err := t.radius(q, r, radiusCount, opts.Filter)
	t.metrics.RecordRadius(count, time.Since(start), err)
	t.logger.LogRadius(context.Background(), r, count, time.Since(start), err)

	return count, err
}

func (t *Tree) radius(q []float64, r float64, mode radiusMode, filter *roaring.Bitmap) ([]SearchResult, int, error) {
	if len(q) != t.dim {
		return nil, 0, &ErrDimensionMismatch{Expected: t.dim, Actual: len(q)}
	}
	if math.IsNaN(r) || r < 0 {
		return nil, 0, ErrInvalidRadius
	}

	reducedR := t.metric.ReducedFromDist(r)

	var results []SearchResult
	var count int

	admit := func(id uint32, haveDist bool, dist float64) {
		if filter != nil && !filter.Contains(id) {
			return
		}
		switch mode {
		case radiusCount:
			count++
		case radiusIndices:
			results = append(results, SearchResult{Index: id})
		case radiusDistances:
			if !haveDist {
				dist = t.metric.Distance(q, t.point(id))
			}
			results = append(results, SearchResult{Index: id, Distance: dist})
		}
	}

	stack := newTraversalStack(t.n)
	stack.push(0, 0)

	for {
		frame, ok := stack.pop()
		if !ok {
			break
		}

		node := t.nodes[frame.node]
		centroid := t.centroids[frame.node*t.dim : (frame.node+1)*t.dim]
		centroidDist := t.metric.Distance(q, centroid)

		// All-out: the ball around this node cannot intersect the query
		// ball.
		if centroidDist-node.Radius > r {
			continue
		}

		// All-in: the whole node ball sits inside the query ball; admit
		// the slice without per-point distance tests. Distance mode
		// still computes each point's true distance individually inside
		// admit.
		if centroidDist+node.Radius < r {
			slice := t.idx[node.IdxStart:node.IdxEnd]
			if mode == radiusCount && filter == nil {
				count += len(slice)
				continue
			}
			for _, id := range slice {
				admit(id, false, 0)
			}
			continue
		}

		if node.IsLeaf {
			for _, id := range t.idx[node.IdxStart:node.IdxEnd] {
				reduced := t.metric.Reduced(q, t.point(id))
				if reduced <= reducedR {
					admit(id, true, t.metric.DistFromReduced(reduced))
				}
			}
			continue
		}

		stack.push(2*frame.node+2, 0)
		stack.push(2*frame.node+1, 0)
	}

	return results, count, nil
}

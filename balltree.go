package balltree

import (
	"context"
	"fmt"
	"math/bits"
	"time"

	"github.com/hupe1980/balltree/minkowski"
)

// NodeInfo describes one node of the implicit binary tree.
// The points of the node occupy idx[IdxStart:IdxEnd] of the index
// permutation; Radius is the true (unreduced) maximum p-distance from
// the node centroid to any of those points.
type NodeInfo struct {
	IdxStart uint32
	IdxEnd   uint32
	IsLeaf   bool
	Radius   float64
}

// Tree is a static ball tree over a fixed point matrix.
//
// A Tree is immutable after construction. Queries never mutate tree
// state and allocate their own traversal buffers, so concurrent queries
// on one Tree require no synchronization. The point matrix is shared
// read-only with the caller unless WithCopyData was used; the caller
// must not mutate it for the lifetime of the tree.
type Tree struct {
	data     []float64 // row-major n x dim point matrix
	n        int
	dim      int
	leafSize int
	metric   minkowski.Metric

	idx       []uint32   // permutation of [0, n)
	centroids []float64  // numNodes x dim
	nodes     []NodeInfo // numNodes entries

	logger  *Logger
	metrics MetricsCollector
}

// New builds a ball tree over data, a row-major (n, dim) matrix.
//
// The build is a single-threaded top-down median split along the
// widest-spread axis; complexity is O(n log n) comparisons plus
// O(n dim) arithmetic per tree level.
func New(data []float64, dim int, optFns ...func(o *Options)) (*Tree, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = NoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetricsCollector{}
	}

	start := time.Now()
	t, err := build(data, dim, opts)
	opts.Metrics.RecordBuild(len(data)/max(dim, 1), time.Since(start), err)
	if err != nil {
		opts.Logger.LogBuild(context.Background(), len(data)/max(dim, 1), dim, 0, time.Since(start), err)
		return nil, err
	}
	opts.Logger.LogBuild(context.Background(), t.n, t.dim, len(t.nodes), time.Since(start), nil)

	return t, nil
}

func build(data []float64, dim int, opts Options) (*Tree, error) {
	if dim < 1 {
		return nil, fmt.Errorf("%w: dimension must be >= 1, got %d", ErrInvalidShape, dim)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty point matrix", ErrInvalidShape)
	}
	if len(data)%dim != 0 {
		return nil, fmt.Errorf("%w: matrix length %d is not a multiple of dimension %d", ErrInvalidShape, len(data), dim)
	}
	if opts.LeafSize < 1 {
		return nil, &ErrInvalidParameter{Name: "leafSize", Value: float64(opts.LeafSize)}
	}

	metric, err := minkowski.New(opts.P)
	if err != nil {
		return nil, &ErrInvalidParameter{Name: "p", Value: opts.P, cause: err}
	}

	n := len(data) / dim

	if opts.CopyData {
		cp := make([]float64, len(data))
		copy(cp, data)
		data = cp
	}

	// Upper bound on the node count for a complete binary tree whose
	// leaves hold at most leafSize points under the bigger-half-goes-left
	// split rule: 2^(1 + ceil(log2(ceil(n/leafSize)))) - 1.
	numLeaves := (n + opts.LeafSize - 1) / opts.LeafSize
	depth := bits.Len(uint(numLeaves - 1))
	numNodes := (1 << (depth + 1)) - 1

	t := &Tree{
		data:      data,
		n:         n,
		dim:       dim,
		leafSize:  opts.LeafSize,
		metric:    metric,
		idx:       make([]uint32, n),
		centroids: make([]float64, numNodes*dim),
		nodes:     make([]NodeInfo, numNodes),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	for i := range t.idx {
		t.idx[i] = uint32(i)
	}

	// Single breadth-first sweep: every node derives its slice from its
	// parent, measures itself, and (if internal) partitions its slice
	// for its children.
	for i := 0; i < numNodes; i++ {
		var s, e int
		if i == 0 {
			s, e = 0, n
		} else {
			parent := t.nodes[(i-1)/2]
			if parent.IsLeaf {
				// Dead node below a leaf: empty slice, trivially a leaf.
				t.nodes[i] = NodeInfo{IdxStart: parent.IdxEnd, IdxEnd: parent.IdxEnd, IsLeaf: true}
				continue
			}
			ps, pe := int(parent.IdxStart), int(parent.IdxEnd)
			m := ps + (pe-ps+1)/2 // bigger half goes left
			if i%2 == 1 {
				s, e = ps, m
			} else {
				s, e = m, pe
			}
		}

		slice := t.idx[s:e]
		centroid := t.centroids[i*dim : (i+1)*dim]
		computeCentroid(t.data, dim, slice, centroid)

		var maxReduced float64
		for _, id := range slice {
			pt := t.data[int(id)*dim : int(id)*dim+dim]
			if r := metric.Reduced(centroid, pt); r > maxReduced {
				maxReduced = r
			}
		}

		node := NodeInfo{
			IdxStart: uint32(s),
			IdxEnd:   uint32(e),
			Radius:   metric.DistFromReduced(maxReduced),
		}

		if e-s <= opts.LeafSize {
			node.IsLeaf = true
		} else {
			axis := widestSpreadAxis(t.data, dim, slice)
			partitionAround(t.data, dim, axis, slice, (e-s+1)/2)
		}

		t.nodes[i] = node
	}

	// The bound guarantees every node in the last level is a leaf. If one
	// is not, its children were never constructed and the tree is broken.
	for i := (numNodes - 1) / 2; i < numNodes; i++ {
		if !t.nodes[i].IsLeaf {
			return nil, fmt.Errorf("%w: node %d of %d is not a leaf", ErrInternalOverflow, i, numNodes)
		}
	}

	return t, nil
}

// Restore reassembles a tree from its raw arrays, as produced by the
// accessors below (and consumed by the persistence package). The arrays
// are borrowed, not copied. Restore validates array shapes and that idx
// is a permutation of [0, n); it does not re-verify node radii.
func Restore(data []float64, dim, leafSize int, p float64, idx []uint32, centroids []float64, nodes []NodeInfo, optFns ...func(o *Options)) (*Tree, error) {
	opts := DefaultOptions
	opts.LeafSize = leafSize
	opts.P = p

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = NoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetricsCollector{}
	}

	if dim < 1 || len(data) == 0 || len(data)%dim != 0 {
		return nil, fmt.Errorf("%w: point matrix of length %d with dimension %d", ErrInvalidShape, len(data), dim)
	}
	if leafSize < 1 {
		return nil, &ErrInvalidParameter{Name: "leafSize", Value: float64(leafSize)}
	}

	metric, err := minkowski.New(p)
	if err != nil {
		return nil, &ErrInvalidParameter{Name: "p", Value: p, cause: err}
	}

	n := len(data) / dim
	if len(idx) != n {
		return nil, fmt.Errorf("%w: index permutation has length %d, want %d", ErrInvalidShape, len(idx), n)
	}
	if len(nodes) == 0 || len(centroids) != len(nodes)*dim {
		return nil, fmt.Errorf("%w: %d centroids values for %d nodes of dimension %d", ErrInvalidShape, len(centroids), len(nodes), dim)
	}

	seen := make([]bool, n)
	for _, id := range idx {
		if int(id) >= n || seen[id] {
			return nil, fmt.Errorf("%w: index array is not a permutation of [0, %d)", ErrInvalidShape, n)
		}
		seen[id] = true
	}

	return &Tree{
		data:      data,
		n:         n,
		dim:       dim,
		leafSize:  leafSize,
		metric:    metric,
		idx:       idx,
		centroids: centroids,
		nodes:     nodes,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// Len returns the number of indexed points.
func (t *Tree) Len() int { return t.n }

// Dim returns the dimensionality of the indexed points.
func (t *Tree) Dim() int { return t.dim }

// LeafSize returns the leaf capacity the tree was built with.
func (t *Tree) LeafSize() int { return t.leafSize }

// P returns the Minkowski exponent the tree was built with.
func (t *Tree) P() float64 { return t.metric.P() }

// NumNodes returns the number of allocated tree nodes.
func (t *Tree) NumNodes() int { return len(t.nodes) }

// Data returns the point matrix. Callers must treat it as read-only.
func (t *Tree) Data() []float64 { return t.data }

// IndexArray returns the index permutation. Callers must treat it as
// read-only.
func (t *Tree) IndexArray() []uint32 { return t.idx }

// Centroids returns the node centroid matrix (numNodes x dim).
// Callers must treat it as read-only.
func (t *Tree) Centroids() []float64 { return t.centroids }

// Nodes returns the node-info table. Callers must treat it as read-only.
func (t *Tree) Nodes() []NodeInfo { return t.nodes }

func (t *Tree) point(id uint32) []float64 {
	return t.data[int(id)*t.dim : int(id)*t.dim+t.dim]
}

// nodeLowerBound returns the reduced-form lower bound on the distance
// from q to any point inside node i: rho(max(0, d(q, centroid) - radius)).
func (t *Tree) nodeLowerBound(q []float64, i int) float64 {
	centroid := t.centroids[i*t.dim : (i+1)*t.dim]
	lb := t.metric.Distance(q, centroid) - t.nodes[i].Radius
	if lb < 0 {
		lb = 0
	}
	return t.metric.ReducedFromDist(lb)
}

// Package balltree provides a static, array-backed ball tree for exact
// k-nearest-neighbor and radius-neighbor queries over a fixed point set
// in a d-dimensional real vector space under a Minkowski p-metric.
//
// The tree is built once from an (n, d) row-major float64 matrix and is
// immutable afterwards: queries allocate their own traversal state, so
// any number of goroutines may query the same tree concurrently without
// synchronization.
//
// # Layout
//
// Nodes live in three parallel arrays addressed by node id: an index
// permutation (points of a node occupy a contiguous slice), a centroid
// matrix, and a node-info table. Tree topology is implicit: node 0 is
// the root and the children of node i are 2i+1 and 2i+2. This makes the
// whole index a handful of flat arrays, which is what the persistence
// package serializes.
//
// # Quick Start
//
//	data := []float64{ /* n*d values, row major */ }
//	tree, err := balltree.New(data, 128,
//	    balltree.WithLeafSize(40),
//	    balltree.WithP(2),
//	)
//	if err != nil {
//	    panic(err)
//	}
//
//	neighbors, err := tree.KNN(query, 10)
//	within, err := tree.Radius(query, 0.5)
//
// Batch queries fan out over independent query rows:
//
//	results, err := tree.BatchKNN(ctx, queries, 10,
//	    balltree.WithParallelism(8),
//	)
//
// # Metrics and Logging
//
// Construction accepts a structured Logger (log/slog based) and a
// MetricsCollector; both default to no-ops.
package balltree

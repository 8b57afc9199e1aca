package balltree

import (
	"context"
	"fmt"
	"runtime"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/balltree/resource"
)

// BatchOptions controls a batch query.
type BatchOptions struct {
	// Parallelism is the maximum number of query rows processed
	// concurrently. Defaults to GOMAXPROCS.
	Parallelism int

	// Controller, if set, bounds batch workers against a process-wide
	// budget in addition to Parallelism.
	Controller *resource.Controller

	// Filter restricts results to the given set of point indices.
	Filter *roaring.Bitmap
}

// WithParallelism caps the number of concurrently processed query rows.
func WithParallelism(n int) func(*BatchOptions) {
	return func(o *BatchOptions) {
		o.Parallelism = n
	}
}

// WithController bounds the batch against a shared resource controller.
func WithController(c *resource.Controller) func(*BatchOptions) {
	return func(o *BatchOptions) {
		o.Controller = c
	}
}

// WithBatchFilter restricts a batch query to the points whose row
// indices are set in the bitmap.
func WithBatchFilter(filter *roaring.Bitmap) func(*BatchOptions) {
	return func(o *BatchOptions) {
		o.Filter = filter
	}
}

// BatchKNN runs KNN for every row of the row-major query matrix and
// returns one result slice per row. Rows are independent and processed
// in parallel; the tree itself is never mutated, so no locking is
// involved.
func (t *Tree) BatchKNN(ctx context.Context, queries []float64, k int, optFns ...func(*BatchOptions)) ([][]SearchResult, error) {
	opts := batchOptions(optFns)

	numQueries, err := t.queryRows(queries)
	if err != nil {
		return nil, err
	}

	out := make([][]SearchResult, numQueries)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)

	for row := 0; row < numQueries; row++ {
		g.Go(func() error {
			if err := opts.Controller.AcquireWorker(ctx); err != nil {
				return err
			}
			defer opts.Controller.ReleaseWorker()

			if err := ctx.Err(); err != nil {
				return err
			}

			q := queries[row*t.dim : (row+1)*t.dim]
			results, err := t.knn(q, k, opts.Filter)
			if err != nil {
				return err
			}
			out[row] = results
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RadiusQueryOptions controls the output shape of a batch radius query.
type RadiusQueryOptions struct {
	// ReturnDistance materializes per-point true distances.
	ReturnDistance bool

	// CountOnly returns only per-row counts. Mutually exclusive with
	// ReturnDistance.
	CountOnly bool
}

// BatchRadiusResult holds the output of a batch radius query. Exactly
// one of Counts or Rows is populated, per RadiusQueryOptions.
type BatchRadiusResult struct {
	// Counts holds one count per query row (count-only mode).
	Counts []int

	// Rows holds one result slice per query row. Distances are zero
	// unless ReturnDistance was set.
	Rows [][]SearchResult
}

// BatchRadius runs a radius query for every row of the query matrix.
// radii is either a single element (broadcast to all rows) or one
// radius per row.
func (t *Tree) BatchRadius(ctx context.Context, queries []float64, radii []float64, queryOpts RadiusQueryOptions, optFns ...func(*BatchOptions)) (*BatchRadiusResult, error) {
	opts := batchOptions(optFns)

	if queryOpts.CountOnly && queryOpts.ReturnDistance {
		return nil, ErrConflictingOptions
	}

	numQueries, err := t.queryRows(queries)
	if err != nil {
		return nil, err
	}
	if len(radii) != 1 && len(radii) != numQueries {
		return nil, fmt.Errorf("%w: %d radii for %d query rows", ErrInvalidShape, len(radii), numQueries)
	}

	mode := radiusIndices
	switch {
	case queryOpts.CountOnly:
		mode = radiusCount
	case queryOpts.ReturnDistance:
		mode = radiusDistances
	}

	result := &BatchRadiusResult{}
	if mode == radiusCount {
		result.Counts = make([]int, numQueries)
	} else {
		result.Rows = make([][]SearchResult, numQueries)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)

	for row := 0; row < numQueries; row++ {
		g.Go(func() error {
			if err := opts.Controller.AcquireWorker(ctx); err != nil {
				return err
			}
			defer opts.Controller.ReleaseWorker()

			if err := ctx.Err(); err != nil {
				return err
			}

			r := radii[0]
			if len(radii) > 1 {
				r = radii[row]
			}

			q := queries[row*t.dim : (row+1)*t.dim]
			rows, count, err := t.radius(q, r, mode, opts.Filter)
			if err != nil {
				return err
			}
			if mode == radiusCount {
				result.Counts[row] = count
			} else {
				result.Rows[row] = rows
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func batchOptions(optFns []func(*BatchOptions)) BatchOptions {
	opts := BatchOptions{
		Parallelism: runtime.GOMAXPROCS(0),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return opts
}

func (t *Tree) queryRows(queries []float64) (int, error) {
	if len(queries) == 0 || len(queries)%t.dim != 0 {
		return 0, fmt.Errorf("%w: query matrix length %d is not a positive multiple of dimension %d", ErrInvalidShape, len(queries), t.dim)
	}
	return len(queries) / t.dim, nil
}

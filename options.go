package balltree

// Options contains configuration options for tree construction.
type Options struct {
	// LeafSize is the maximum number of points stored in a leaf node.
	// Larger leaves mean fewer nodes and less pruning; smaller leaves
	// mean deeper trees and more per-node overhead. LeafSize only
	// affects speed, never query results.
	LeafSize int

	// P is the Minkowski exponent, 1 <= P <= +Inf.
	// P=1 is Manhattan, P=2 Euclidean, math.Inf(1) Chebyshev.
	P float64

	// CopyData controls whether the constructor copies the point matrix.
	// When false (the default) the matrix is borrowed and the caller
	// must not mutate it for the lifetime of the tree.
	CopyData bool

	// Logger receives structured build/query logs. Defaults to a noop
	// logger.
	Logger *Logger

	// Metrics receives operational metrics. Defaults to
	// NoopMetricsCollector.
	Metrics MetricsCollector
}

// DefaultOptions contains the default configuration options for the tree.
var DefaultOptions = Options{
	LeafSize: 20,
	P:        2,
}

// WithLeafSize sets the maximum number of points per leaf.
func WithLeafSize(leafSize int) func(*Options) {
	return func(o *Options) {
		o.LeafSize = leafSize
	}
}

// WithP sets the Minkowski exponent.
func WithP(p float64) func(*Options) {
	return func(o *Options) {
		o.P = p
	}
}

// WithCopyData makes the constructor take a private copy of the point
// matrix instead of borrowing it.
func WithCopyData() func(*Options) {
	return func(o *Options) {
		o.CopyData = true
	}
}

// WithLogger sets the logger used for build and query logging.
func WithLogger(l *Logger) func(*Options) {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) func(*Options) {
	return func(o *Options) {
		o.Metrics = m
	}
}

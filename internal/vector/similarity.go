package vector

// Metric selects how raw vectors are compared. It must match how the vectors
// were normalized upstream: inner product equals cosine similarity only for
// unit-norm vectors.
type Metric string

const (
	// MetricIP compares by inner product; higher raw score is better.
	MetricIP Metric = "ip"
	// MetricL2 compares by squared Euclidean distance; lower raw score is better.
	MetricL2 Metric = "l2"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m == MetricIP || m == MetricL2
}

// Better reports whether raw score a beats raw score b under the metric.
func (m Metric) Better(a, b float64) bool {
	if m == MetricL2 {
		return a < b
	}
	return a > b
}

// Similarity converts a raw score into a similarity where higher is better.
// Inner product passes through. Squared L2 on unit vectors lies in [0, 4] and
// maps via 1 - d/2 onto [-1, 1], matching cosine similarity.
func (m Metric) Similarity(raw float64) float64 {
	if m == MetricL2 {
		return 1 - raw/2
	}
	return raw
}

// LegacySimilarity is the monotonic fallback 1/(1+d) for distances over
// vectors that were never normalized. Only meaningful with MetricL2.
func LegacySimilarity(distance float64) float64 {
	return 1 / (1 + distance)
}

// InnerProduct returns the inner product of two equal-length vectors.
func InnerProduct(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}

// SquaredL2 returns the squared Euclidean distance between two equal-length vectors.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

package domain

import "fmt"

// DistanceMetric selects the function used to rank stored vectors
// against a query vector.
type DistanceMetric string

const (
	// MetricCosine ranks by cosine distance (1 - cosine similarity).
	MetricCosine DistanceMetric = "cosine"

	// MetricEuclidean ranks by Euclidean (L2) distance.
	MetricEuclidean DistanceMetric = "euclidean"

	// MetricInnerProduct ranks by negative inner product, so smaller
	// is still better.
	MetricInnerProduct DistanceMetric = "inner_product"
)

// ParseDistanceMetric validates a metric name from configuration or
// caller input. An unknown name is a configuration error.
func ParseDistanceMetric(name string) (DistanceMetric, error) {
	switch DistanceMetric(name) {
	case MetricCosine, MetricEuclidean, MetricInnerProduct:
		return DistanceMetric(name), nil
	case "":
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("%w: unknown distance metric %q", ErrConfiguration, name)
	}
}

// SearchFilters restrict search results by source and metadata equality.
// Empty fields do not filter.
type SearchFilters struct {
	// SourceName restricts results to chunks owned by the named source.
	SourceName string

	// DocumentMetadata requires document metadata to contain the given
	// key-value pairs.
	DocumentMetadata map[string]string

	// ChunkMetadata requires chunk metadata to contain the given
	// key-value pairs.
	ChunkMetadata map[string]string
}

// SearchOptions control ranking and pagination of a similarity search.
type SearchOptions struct {
	// K is the maximum number of results to return. Defaults to 10.
	K int

	// Metric is the distance metric. Defaults to MetricCosine.
	Metric DistanceMetric

	// Filters restrict the candidate set.
	Filters SearchFilters

	// Offset supports offset-based continuation.
	Offset int
}

// SearchResult is one ranked chunk with its document and source context.
type SearchResult struct {
	// Chunk is the matched chunk.
	Chunk Chunk

	// DocumentURI is the owning document's locator.
	DocumentURI string

	// DocumentTitle is the owning document's title.
	DocumentTitle string

	// SourceName is the owning source's name.
	SourceName string

	// Distance is the metric distance to the query vector.
	// Results are ordered by ascending distance.
	Distance float64
}

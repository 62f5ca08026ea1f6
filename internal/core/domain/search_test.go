package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDistanceMetric(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    DistanceMetric
		wantErr bool
	}{
		{name: "cosine", input: "cosine", want: MetricCosine},
		{name: "euclidean", input: "euclidean", want: MetricEuclidean},
		{name: "inner product", input: "inner_product", want: MetricInnerProduct},
		{name: "empty defaults to cosine", input: "", want: MetricCosine},
		{name: "unknown", input: "manhattan", wantErr: true},
		{name: "case sensitive", input: "Cosine", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDistanceMetric(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

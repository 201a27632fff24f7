package weighting

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/errors"
)

func TestParse(t *testing.T) {
	for _, in := range []string{"tfidf", "TF", " binary "} {
		s, err := Parse(in)
		require.NoError(t, err, in)
		assert.True(t, s.Recognized())
	}

	_, err := Parse("bm25")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownScheme))
}

func TestDocumentWeight(t *testing.T) {
	idf := math.Log10(4.0 / 2.0)
	tests := []struct {
		scheme Scheme
		freq   int
		want   float64
	}{
		{TFIDF, 3, 3 * idf},
		{TF, 3, 3},
		{Binary, 3, 1},
		{Scheme("unknown"), 7, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.scheme), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scheme.DocumentWeight(tt.freq, idf))
			assert.Equal(t, tt.want, tt.scheme.QueryWeight(tt.freq, idf))
		})
	}
}

func TestIDF(t *testing.T) {
	assert.Equal(t, 0.0, IDF(5, 5))
	assert.InDelta(t, 1.0, IDF(10, 1), 1e-12)
	assert.True(t, math.IsInf(IDF(3, 0), 1))
}

func TestUsesIDF(t *testing.T) {
	assert.True(t, TFIDF.UsesIDF())
	assert.False(t, TF.UsesIDF())
	assert.False(t, Binary.UsesIDF())
}

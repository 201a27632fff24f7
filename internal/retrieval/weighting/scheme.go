// Package weighting defines the term-weighting schemes used to turn raw term
// frequencies into vector-space weights for both documents and queries.
package weighting

import (
	"fmt"
	"math"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/errors"
)

// Scheme selects how raw frequencies become vector weights.
type Scheme string

const (
	TFIDF  Scheme = "tfidf"
	TF     Scheme = "tf"
	Binary Scheme = "binary"
)

// Schemes lists every recognised scheme in a stable order.
func Schemes() []Scheme {
	return []Scheme{TFIDF, TF, Binary}
}

// Parse returns the scheme named by s. Matching is case-insensitive.
func Parse(s string) (Scheme, error) {
	scheme := Scheme(strings.ToLower(strings.TrimSpace(s)))
	if !scheme.Recognized() {
		return "", fmt.Errorf("%w: %q (want one of tfidf, tf, binary)", apperrors.ErrUnknownScheme, s)
	}
	return scheme, nil
}

func (s Scheme) Recognized() bool {
	switch s {
	case TFIDF, TF, Binary:
		return true
	}
	return false
}

// UsesIDF reports whether weights under s depend on inverse document frequency.
func (s Scheme) UsesIDF() bool {
	return s == TFIDF
}

// DocumentWeight converts a raw in-document frequency into a weight.
// Unrecognised schemes weight like Binary.
func (s Scheme) DocumentWeight(freq int, idf float64) float64 {
	switch s {
	case TFIDF:
		return float64(freq) * idf
	case TF:
		return float64(freq)
	default:
		return 1
	}
}

// QueryWeight converts a query-term count into a weight.
func (s Scheme) QueryWeight(freq int, idf float64) float64 {
	return s.DocumentWeight(freq, idf)
}

func (s Scheme) String() string {
	return string(s)
}

// IDF is log10(collectionSize / documentFrequency). A zero document
// frequency yields +Inf; callers never pass one for an indexed term.
func IDF(collectionSize, documentFrequency int) float64 {
	return math.Log10(float64(collectionSize) / float64(documentFrequency))
}

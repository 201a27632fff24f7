// Package digest precomputes everything the query scorer needs from an
// inverted index: collection size, inverse document frequencies, per-document
// weight vectors under one weighting scheme, and document vector norms.
//
// A Digest is built once and never mutated afterwards, so a single value may
// be shared by any number of concurrent readers without locking.
package digest

import (
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/retrieval/weighting"
	apperrors "github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/errors"
)

type Digest struct {
	scheme         weighting.Scheme
	collectionSize int
	termCount      int

	// df holds the document frequency of every term with a posting.
	df map[string]int

	// idf is populated only when the scheme uses it.
	idf map[string]float64

	// weights[doc-1] is the weight vector of document doc.
	weights []map[string]float64

	// norms[doc-1] is the Euclidean length of weights[doc-1].
	norms []float64

	fingerprint string
}

// New digests idx under scheme. The index is only read. A posting with a zero
// frequency still counts its document but adds no weight or document
// frequency; an unrecognised scheme weights like Binary.
func New(idx index.Inverted, scheme weighting.Scheme) (*Digest, error) {
	start := time.Now()
	docs, err := collectDocuments(idx)
	if err != nil {
		return nil, err
	}
	n := int(docs.GetCardinality())
	d := &Digest{
		scheme:         scheme,
		collectionSize: n,
		df:             make(map[string]int),
		idf:            make(map[string]float64),
		weights:        make([]map[string]float64, n),
		norms:          make([]float64, n),
	}

	// Sorted traversal keeps every floating-point sum in a fixed order, so
	// rebuilding from the same index yields identical tables.
	terms := idx.SortedTerms()
	for _, term := range terms {
		df := documentFrequency(idx[term])
		if df == 0 {
			continue
		}
		d.termCount++
		d.df[term] = df
		if scheme.UsesIDF() {
			d.idf[term] = weighting.IDF(n, df)
		}
	}

	for _, term := range terms {
		idf := d.idf[term]
		for docID, freq := range idx[term] {
			if freq == 0 {
				continue
			}
			vec := d.weights[docID-1]
			if vec == nil {
				vec = make(map[string]float64)
				d.weights[docID-1] = vec
			}
			w := scheme.DocumentWeight(freq, idf)
			vec[term] = w
			d.norms[docID-1] += w * w
		}
	}
	for i, sum := range d.norms {
		d.norms[i] = math.Sqrt(sum)
	}
	d.fingerprint = fingerprint(idx, terms)

	slog.Default().With("component", "index-digest").Info("index digest built",
		"scheme", scheme,
		"collection_size", n,
		"terms", d.termCount,
		"fingerprint", d.fingerprint,
		"duration", time.Since(start),
	)
	return d, nil
}

// collectDocuments gathers every distinct document id, zero-frequency
// postings included, and rejects indexes that break the dense 1..N id range
// or carry negative frequencies.
func collectDocuments(idx index.Inverted) (*roaring.Bitmap, error) {
	docs := roaring.New()
	for _, term := range idx.SortedTerms() {
		for docID, freq := range idx[term] {
			if freq < 0 {
				return nil, apperrors.Malformed("term %q has negative frequency %d in document %d", term, freq, docID)
			}
			if docID < 1 || uint64(docID) > math.MaxUint32 {
				return nil, apperrors.Malformed("term %q references document id %d outside 1..%d", term, docID, uint32(math.MaxUint32))
			}
			docs.Add(uint32(docID))
		}
	}
	if n := docs.GetCardinality(); n > 0 && uint64(docs.Maximum()) != n {
		return nil, apperrors.Malformed(
			"document ids must form the dense range 1..N: %d distinct ids but maximum id is %d",
			n, docs.Maximum(),
		)
	}
	return docs, nil
}

// fingerprint hashes every posting in term and document-id order, so equal
// indexes share a fingerprint however their maps were filled.
func fingerprint(idx index.Inverted, terms []string) string {
	h := blake3.New()
	var buf []byte
	for _, term := range terms {
		buf = binary.AppendUvarint(buf[:0], uint64(len(term)))
		buf = append(buf, term...)
		postings := idx[term]
		buf = binary.AppendUvarint(buf, uint64(len(postings)))
		for _, docID := range slices.Sorted(maps.Keys(postings)) {
			buf = binary.AppendUvarint(buf, uint64(docID))
			buf = binary.AppendUvarint(buf, uint64(postings[docID]))
		}
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func documentFrequency(postings map[int]int) int {
	df := 0
	for _, freq := range postings {
		if freq > 0 {
			df++
		}
	}
	return df
}

func (d *Digest) Scheme() weighting.Scheme {
	return d.scheme
}

// Fingerprint identifies the index content the digest was built from.
func (d *Digest) Fingerprint() string {
	return d.fingerprint
}

// CollectionSize is the number of distinct documents in the index.
func (d *Digest) CollectionSize() int {
	return d.collectionSize
}

// TermCount is the number of terms with at least one posting.
func (d *Digest) TermCount() int {
	return d.termCount
}

// IDF returns the inverse document frequency of term. It is only defined
// under the tfidf scheme and for indexed terms.
func (d *Digest) IDF(term string) (float64, bool) {
	v, ok := d.idf[term]
	return v, ok
}

// DocumentFrequency returns the number of documents containing term.
func (d *Digest) DocumentFrequency(term string) int {
	return d.df[term]
}

// IDFTable returns a copy of the idf table.
func (d *Digest) IDFTable() map[string]float64 {
	return maps.Clone(d.idf)
}

// Weight returns the weight of term in document doc.
func (d *Digest) Weight(doc int, term string) (float64, bool) {
	if doc < 1 || doc > d.collectionSize {
		return 0, false
	}
	w, ok := d.weights[doc-1][term]
	return w, ok
}

// Vector returns a copy of the weight vector of document doc.
func (d *Digest) Vector(doc int) map[string]float64 {
	if doc < 1 || doc > d.collectionSize {
		return nil
	}
	v := maps.Clone(d.weights[doc-1])
	if v == nil {
		v = make(map[string]float64)
	}
	return v
}

// Norm returns the Euclidean length of document doc's weight vector, or 0
// for ids outside the collection.
func (d *Digest) Norm(doc int) float64 {
	if doc < 1 || doc > d.collectionSize {
		return 0
	}
	return d.norms[doc-1]
}

// Norms returns a copy of all document norms, indexed by doc-1.
func (d *Digest) Norms() []float64 {
	out := make([]float64, len(d.norms))
	copy(out, d.norms)
	return out
}

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveQuery(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveQuery("tfidf", OutcomeOK, 12, 3*time.Millisecond)
	m.ObserveQuery("tfidf", OutcomeOK, 4, time.Millisecond)
	m.ObserveQuery("binary", OutcomeError, 0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("tfidf", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("binary", OutcomeError)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.QueryLatency))
}

func TestObserveDigestAndCache(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveDigest(3204, 10446, 4, 250*time.Millisecond)
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()

	assert.Equal(t, 3204.0, testutil.ToFloat64(m.DigestDocs))
	assert.Equal(t, 10446.0, testutil.ToFloat64(m.DigestTerms))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Shards))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("miss")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.DigestDocs.Set(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "vsr_digest_documents 7")
}

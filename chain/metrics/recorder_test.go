package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderSatisfiesReplicationMetricsShape(t *testing.T) {
	r := New()

	// These are exactly replication.Metrics' method set; cmd/serve's
	// assignment of a Recorder to replication.Collaborators.Metrics checks
	// that at compile time, this just exercises every method without
	// panicking.
	r.SetKeyholderCount(3)
	r.SetCommittableBacklog(7)
	r.IncRetransmits()
	r.IncRetransmits()
	r.SetQuiescing(true)
	r.ObserveAckLatency(5 * time.Millisecond)

	assert.EqualValues(t, 3, r.keyholderCount.Load())
	assert.EqualValues(t, 7, r.committableBacklog.Load())
	assert.True(t, r.quiescing.Load())
	assert.EqualValues(t, 1, r.ackLatency.Count())
}

func TestHandlerServesPrometheusExposition(t *testing.T) {
	r := New()
	r.SetKeyholderCount(5)
	r.IncRetransmits()
	r.ObserveAckLatency(10 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "chainkv_keyholders 5")
	assert.Contains(t, body, "chainkv_retransmits_total 1")
	assert.Contains(t, body, "chainkv_chain_ack_count 1")
}

func TestRecordersAreIndependent(t *testing.T) {
	a := New()
	b := New()

	a.SetKeyholderCount(1)
	b.SetKeyholderCount(99)

	assert.EqualValues(t, 1, a.keyholderCount.Load())
	assert.EqualValues(t, 99, b.keyholderCount.Load())
}

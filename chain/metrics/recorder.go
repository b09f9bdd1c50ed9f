package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// Recorder implements chain/replication.Metrics (satisfied structurally,
// not by import - see doc.go on chain/replication/metrics.go for why) plus
// an HTTP handler for Prometheus scraping. All Set*/Inc*/Observe* methods
// are safe for concurrent use: the gauges they feed are plain atomics read
// lazily by VictoriaMetrics/metrics' callback-style Gauge on every scrape,
// and the ack-latency Timer is rcrowley/go-metrics' own lock-protected
// StandardTimer.
type Recorder struct {
	set *vm.Set

	keyholderCount     atomic.Int64
	committableBacklog atomic.Int64
	quiescing          atomic.Bool
	retransmits        *vm.Counter

	// ackLatency is a Histogram+Meter pair (rcrowley/go-metrics'
	// StandardTimer): the Meter half already tracks 1/5/15-minute
	// exponentially-weighted moving-average rates internally, which is
	// where this package's EWMA usage lives - there is no separate call
	// to construct one, NewTimer does it for us.
	ackLatency gometrics.Timer
}

// New creates a Recorder with its own metric namespace, independent of
// VictoriaMetrics/metrics' global default set so multiple Recorders (e.g.
// in tests) never collide.
func New() *Recorder {
	set := vm.NewSet()
	r := &Recorder{set: set, ackLatency: gometrics.NewTimer()}

	set.NewGauge(`chainkv_keyholders`, func() float64 {
		return float64(r.keyholderCount.Load())
	})
	set.NewGauge(`chainkv_committable_backlog`, func() float64 {
		return float64(r.committableBacklog.Load())
	})
	set.NewGauge(`chainkv_quiescing`, func() float64 {
		if r.quiescing.Load() {
			return 1
		}
		return 0
	})
	set.NewGauge(`chainkv_chain_ack_latency_seconds{quantile="0.5"}`, func() float64 {
		return r.ackLatency.Percentile(0.5) / float64(time.Second)
	})
	set.NewGauge(`chainkv_chain_ack_latency_seconds{quantile="0.99"}`, func() float64 {
		return r.ackLatency.Percentile(0.99) / float64(time.Second)
	})
	set.NewGauge(`chainkv_chain_ack_latency_rate1`, func() float64 {
		return r.ackLatency.Rate1()
	})
	set.NewGauge(`chainkv_chain_ack_count`, func() float64 {
		return float64(r.ackLatency.Count())
	})
	r.retransmits = set.NewCounter(`chainkv_retransmits_total`)

	return r
}

// SetKeyholderCount implements replication.Metrics.
func (r *Recorder) SetKeyholderCount(n int) {
	r.keyholderCount.Store(int64(n))
}

// SetCommittableBacklog implements replication.Metrics.
func (r *Recorder) SetCommittableBacklog(n int) {
	r.committableBacklog.Store(int64(n))
}

// IncRetransmits implements replication.Metrics.
func (r *Recorder) IncRetransmits() {
	r.retransmits.Inc()
}

// SetQuiescing implements replication.Metrics.
func (r *Recorder) SetQuiescing(quiescing bool) {
	r.quiescing.Store(quiescing)
}

// ObserveAckLatency implements replication.Metrics.
func (r *Recorder) ObserveAckLatency(d time.Duration) {
	r.ackLatency.Update(d)
}

// Handler serves this Recorder's metrics in Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		r.set.WritePrometheus(w)
	})
}

// Package metrics is chainkv's Prometheus exposition surface: Recorder
// collects the handful of health samples chain/replication's periodic
// sweep and chain-ack path produce, and Handler serves them at /metrics.
//
// Neither library it wires in is used anywhere in dKV's own code - both
// are declared in its go.mod (VictoriaMetrics/metrics, rcrowley/go-metrics)
// but never imported by any package - so there is no in-pack call site to
// adapt; this package follows each library's own documented top-level API
// instead (see DESIGN.md).
package metrics

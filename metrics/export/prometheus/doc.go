// Package prometheus renders authcore engine metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts an [authcore.Engine] and exposes an
// [http.Handler]. Counter names are authcore_*_total; histograms are
// authcore_verify_latency_seconds and authcore_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus

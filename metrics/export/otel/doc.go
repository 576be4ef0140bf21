// Package otel bridges engine counters into an OpenTelemetry meter.
//
// Every counter becomes an Int64ObservableCounter. The validation latency
// histogram is published as cumulative gauges keyed by an "le" attribute because
// the engine snapshot already holds bucketed counts.
//
// # What this package must NOT do
//
//   - Create or shut down a MeterProvider.
//   - Mutate engine state.
package otel

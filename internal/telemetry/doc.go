// Package telemetry wires OpenTelemetry tracing and metrics for knowledged.
//
// Telemetry is off unless observability.enable_telemetry is set. When off,
// the global no-op providers stay in place and every span and instrument is
// free. Components create instruments through otel.Meter and otel.Tracer,
// so installing providers here is all that is needed to export them.
package telemetry

// Package metrics tracks request accounting for the transcription service
// and exposes it both as Prometheus metrics and as a point-in-time snapshot
// for the stats endpoint.
package metrics

// Package server exposes the transcription service over HTTP: the upload
// endpoint, health and stats endpoints, and Prometheus metrics.
package server

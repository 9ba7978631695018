// Package service runs the transcription pipeline: container validation,
// PCM decoding, normalization, gated inference and result assembly. Each
// request is processed as a whole and accounted for exactly once.
package service

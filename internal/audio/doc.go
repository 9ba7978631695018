// Package audio handles WAV container validation, native PCM decoding and
// conversion of decoded samples to the mono float32 stream the speech model
// consumes, including deterministic sample rate conversion.
package audio

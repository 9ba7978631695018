// Package whisper wraps the sherpa-onnx offline Whisper recognizer behind a
// small engine type. The model is loaded once at process start and shared by
// all requests; callers must serialize access through the inference gate.
package whisper

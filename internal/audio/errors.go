package audio

import "errors"

// Error kinds surfaced by validation, decoding and normalization. Callers
// classify with errors.Is to map them to client-facing responses.
var (
	// ErrFormat indicates the byte stream is not a well-formed WAV container.
	ErrFormat = errors.New("invalid WAV container")

	// ErrTooLarge indicates the upload exceeds the configured size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrUnsupported indicates a well-formed container with an encoding,
	// bit depth or channel count outside the supported set.
	ErrUnsupported = errors.New("unsupported audio format")

	// ErrTruncated indicates the data chunk promises more bytes than the
	// buffer actually holds.
	ErrTruncated = errors.New("truncated audio data")

	// ErrEmpty indicates audio that decodes to zero samples.
	ErrEmpty = errors.New("audio contains no samples")
)

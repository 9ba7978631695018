package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// flushChunk is the block of silence fed to the resampler to drain its
// internal filter delay once the real input is exhausted.
const flushChunk = 256

// NormalizedAudio is mono float32 audio in [-1, 1) at the model's target
// sample rate.
type NormalizedAudio struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the audio length in seconds, derived from the sample count.
func (n NormalizedAudio) Duration() float64 {
	if n.SampleRate <= 0 {
		return 0
	}
	return float64(len(n.Samples)) / float64(n.SampleRate)
}

// Normalize downmixes interleaved PCM to mono by per-frame arithmetic mean,
// converts samples to the float range the model expects and resamples to
// targetRate. The conversion is deterministic: identical input always
// produces identical output.
func Normalize(pcm PCMBuffer, targetRate int) (NormalizedAudio, error) {
	var out NormalizedAudio

	if targetRate <= 0 {
		return out, fmt.Errorf("target rate must be positive, got %d", targetRate)
	}

	if pcm.Channels < 1 {
		return out, fmt.Errorf("channel count must be at least 1, got %d", pcm.Channels)
	}

	numFrames := len(pcm.Samples) / pcm.Channels
	if numFrames == 0 {
		return out, fmt.Errorf("%w: zero-length data chunk", ErrEmpty)
	}

	scale, bias, err := sampleScale(pcm.BitsPerSample)
	if err != nil {
		return out, err
	}

	mono := make([]float64, numFrames)
	for frame := 0; frame < numFrames; frame++ {
		var sum float64
		base := frame * pcm.Channels
		for ch := 0; ch < pcm.Channels; ch++ {
			sum += float64(pcm.Samples[base+ch])*scale + bias
		}
		mono[frame] = sum / float64(pcm.Channels)
	}

	if pcm.SampleRate != targetRate {
		mono, err = resample(mono, pcm.SampleRate, targetRate)
		if err != nil {
			return out, err
		}
	}

	if len(mono) == 0 {
		return out, fmt.Errorf("%w: no samples after resampling", ErrEmpty)
	}

	samples := make([]float32, len(mono))
	for i, v := range mono {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		samples[i] = float32(v)
	}

	out = NormalizedAudio{Samples: samples, SampleRate: targetRate}
	return out, nil
}

// sampleScale returns the multiplier and offset that map a native integer
// sample into [-1, 1). 8-bit WAV samples are unsigned and centered at 128;
// 16- and 32-bit samples are signed.
func sampleScale(bitsPerSample int) (scale, bias float64, err error) {
	switch bitsPerSample {
	case 8:
		return 1.0 / 128.0, -1.0, nil
	case 16:
		return 1.0 / 32768.0, 0, nil
	case 32:
		return 1.0 / 2147483648.0, 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: bit depth %d", ErrUnsupported, bitsPerSample)
	}
}

// resample converts mono samples from srcRate to dstRate. The converter is
// streaming, so after feeding the full input it is drained with silence and
// the output trimmed to the exact expected frame count, keeping the result
// length a pure function of the input length.
func resample(input []float64, srcRate, dstRate int) ([]float64, error) {
	cfg := &resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	}

	rs, err := resampling.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	expected := int(int64(len(input)) * int64(dstRate) / int64(srcRate))

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	// Drain the filter tail. Bounded so a converter that stops producing
	// output cannot spin forever.
	silence := make([]float64, flushChunk)
	for attempts := 0; len(output) < expected && attempts < 64; attempts++ {
		more, err := rs.Process(silence)
		if err != nil {
			break
		}
		if len(more) == 0 {
			continue
		}
		output = append(output, more...)
	}

	if len(output) > expected {
		output = output[:expected]
	}

	return output, nil
}

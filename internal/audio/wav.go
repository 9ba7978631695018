package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	riffHeaderSize = 12
	fmtChunkSize   = 16
	pcmFormatTag   = 1

	minSampleRate = 8000
	maxSampleRate = 48000
)

// ContainerDescriptor holds the parsed WAV header fields along with the
// byte range of the data chunk inside the submission buffer.
type ContainerDescriptor struct {
	FormatTag     uint16
	Channels      int
	BitsPerSample int
	SampleRate    int
	DataOffset    int
	DataLen       int
}

// PCMBuffer is an interleaved sequence of integer samples at native bit
// depth, tagged with its sample rate and channel count. 8-bit samples are
// kept in their unsigned 0..255 representation; conversion to the model's
// numeric range happens in Normalize.
type PCMBuffer struct {
	Samples       []int32
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// CheckSize rejects oversized uploads before any parsing work is done.
func CheckSize(declared, max int64) error {
	if declared > max {
		return fmt.Errorf("%w: %d bytes exceeds maximum of %d bytes", ErrTooLarge, declared, max)
	}
	return nil
}

// Validate confirms the byte stream is a well-formed PCM WAV container and
// returns its descriptor. It walks the RIFF chunk list, skipping metadata
// chunks, and bounds-checks every declared length against the buffer.
func Validate(data []byte) (ContainerDescriptor, error) {
	var desc ContainerDescriptor

	if len(data) < riffHeaderSize {
		return desc, fmt.Errorf("%w: need at least %d bytes, got %d", ErrFormat, riffHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return desc, fmt.Errorf("%w: missing RIFF header", ErrFormat)
	}

	if string(data[8:12]) != "WAVE" {
		return desc, fmt.Errorf("%w: missing WAVE format", ErrFormat)
	}

	riffSize := binary.LittleEndian.Uint32(data[4:8])
	if int64(riffSize)+8 > int64(len(data)) {
		return desc, fmt.Errorf("%w: declared size %d disagrees with buffer of %d bytes",
			ErrFormat, riffSize+8, len(data))
	}

	haveFmt := false
	haveData := false

	offset := riffHeaderSize
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if chunkLen < fmtChunkSize || body+fmtChunkSize > len(data) {
				return desc, fmt.Errorf("%w: fmt chunk too short", ErrFormat)
			}
			desc.FormatTag = binary.LittleEndian.Uint16(data[body : body+2])
			desc.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			desc.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			desc.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return desc, fmt.Errorf("%w: data chunk before fmt chunk", ErrFormat)
			}
			if int64(body)+int64(chunkLen) > int64(len(data)) {
				return desc, fmt.Errorf("%w: data chunk declares %d bytes, only %d present",
					ErrTruncated, chunkLen, len(data)-body)
			}
			desc.DataOffset = body
			desc.DataLen = chunkLen
			haveData = true
		default:
			// Metadata chunk (LIST, fact, cue, ...) - skip it.
		}

		if haveFmt && haveData {
			break
		}

		// RIFF chunks are word-aligned.
		if chunkLen%2 != 0 {
			chunkLen++
		}
		offset = body + chunkLen
	}

	if !haveFmt {
		return desc, fmt.Errorf("%w: missing fmt chunk", ErrFormat)
	}

	if !haveData {
		return desc, fmt.Errorf("%w: missing data chunk", ErrFormat)
	}

	if desc.FormatTag != pcmFormatTag {
		return desc, fmt.Errorf("%w: audio format %d (only PCM is supported)", ErrUnsupported, desc.FormatTag)
	}

	switch desc.BitsPerSample {
	case 8, 16, 32:
	default:
		return desc, fmt.Errorf("%w: bit depth %d (supported: 8, 16, 32)", ErrUnsupported, desc.BitsPerSample)
	}

	if desc.Channels != 1 && desc.Channels != 2 {
		return desc, fmt.Errorf("%w: channel count %d (supported: 1 or 2)", ErrUnsupported, desc.Channels)
	}

	if desc.SampleRate < minSampleRate || desc.SampleRate > maxSampleRate {
		return desc, fmt.Errorf("%w: sample rate %d Hz (supported: %d-%d Hz)",
			ErrUnsupported, desc.SampleRate, minSampleRate, maxSampleRate)
	}

	return desc, nil
}

// Decode extracts the raw interleaved samples described by desc. Samples
// keep their native bit depth; whole frames only, a trailing partial frame
// is dropped.
func Decode(data []byte, desc ContainerDescriptor) (PCMBuffer, error) {
	var pcm PCMBuffer

	if int64(desc.DataOffset)+int64(desc.DataLen) > int64(len(data)) {
		return pcm, fmt.Errorf("%w: data chunk declares %d bytes, only %d present",
			ErrTruncated, desc.DataLen, len(data)-desc.DataOffset)
	}

	bytesPerSample := desc.BitsPerSample / 8
	frameBytes := bytesPerSample * desc.Channels
	numFrames := desc.DataLen / frameBytes
	numSamples := numFrames * desc.Channels

	raw := data[desc.DataOffset : desc.DataOffset+desc.DataLen]
	samples := make([]int32, numSamples)

	switch desc.BitsPerSample {
	case 8:
		for i := 0; i < numSamples; i++ {
			samples[i] = int32(raw[i])
		}
	case 16:
		for i := 0; i < numSamples; i++ {
			samples[i] = int32(int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2])))
		}
	case 32:
		for i := 0; i < numSamples; i++ {
			samples[i] = int32(binary.LittleEndian.Uint32(raw[i*4 : i*4+4]))
		}
	}

	pcm = PCMBuffer{
		Samples:       samples,
		SampleRate:    desc.SampleRate,
		Channels:      desc.Channels,
		BitsPerSample: desc.BitsPerSample,
	}

	return pcm, nil
}

// wavHeader represents the canonical 44-byte WAV file header
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodeWAV encodes interleaved PCM-16 samples into WAV format
func EncodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("channel count must be 1 or 2, got %d", channels)
	}

	numChannels := uint16(channels)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)
	fileSize := 36 + dataSize

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     fileSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   pcmFormatTag,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

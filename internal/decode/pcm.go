package decode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/farcloser/tocsin/internal/types"
)

const (
	maxValue8  = 128.0        // 2^7
	maxValue16 = 32768.0      // 2^15
	maxValue24 = 8388608.0    // 2^23
	maxValue32 = 2147483648.0 // 2^31

	wavFormatFloat = 3

	// Streaming writers leave RIFF sizes at zero or all ones when the length is unknown up front.
	unknownChunkSize = 0xFFFFFFFF
)

// fullScale returns the normalization divisor for signed integer PCM of the given depth, or 0.
func fullScale(bitDepth types.BitDepth) float64 {
	switch bitDepth {
	case types.Depth8:
		return maxValue8
	case types.Depth16:
		return maxValue16
	case types.Depth24:
		return maxValue24
	case types.Depth32:
		return maxValue32
	default:
		return 0
	}
}

func deinterleave(interleaved []float64, channels int) [][]float64 {
	frames := len(interleaved) / channels
	planar := make([][]float64, channels)

	for ch := range channels {
		planar[ch] = make([]float64, frames)
	}

	for i := range frames {
		for ch := range channels {
			planar[ch][i] = interleaved[i*channels+ch]
		}
	}

	return planar
}

// decodeInterleaved converts little endian interleaved PCM into planar floats. A trailing partial frame is dropped.
func decodeInterleaved(data []byte, format types.PCMFormat) ([][]float64, error) {
	bytesPerSample := int(format.BitDepth / 8) //nolint:gosec // bit depth and channel count are small constants
	numChannels := int(format.Channels)        //nolint:gosec // bit depth and channel count are small constants
	frameSize := bytesPerSample * numChannels

	if frameSize == 0 {
		return nil, fmt.Errorf("%w: %d bit, %d channels", errUnsupported, format.BitDepth, format.Channels)
	}

	frames := len(data) / frameSize
	if frames == 0 {
		return nil, errNoFrames
	}

	data = data[:frames*frameSize]
	samples := make([]float64, 0, frames*numChannels)

	switch {
	case format.Float && format.BitDepth == types.Depth32:
		for i := 0; i < len(data); i += 4 {
			samples = append(samples, float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i:]))))
		}
	case format.Float && format.BitDepth == types.Depth64:
		for i := 0; i < len(data); i += 8 {
			samples = append(samples, math.Float64frombits(binary.LittleEndian.Uint64(data[i:])))
		}
	case format.Float:
		return nil, fmt.Errorf("%w: %d bit float", errUnsupported, format.BitDepth)
	case format.BitDepth == types.Depth8:
		// 8-bit PCM is unsigned.
		for _, b := range data {
			samples = append(samples, (float64(b)-maxValue8)/maxValue8)
		}
	case format.BitDepth == types.Depth16:
		for i := 0; i < len(data); i += 2 {
			samples = append(samples, float64(int16(binary.LittleEndian.Uint16(data[i:])))/maxValue16) //nolint:gosec // two's complement conversion for signed PCM samples
		}
	case format.BitDepth == types.Depth24:
		for i := 0; i < len(data); i += 3 {
			raw := int32(data[i]) | int32(data[i+1])<<8 | int32(data[i+2])<<16
			if raw&0x800000 != 0 {
				raw |= ^0xFFFFFF
			}

			samples = append(samples, float64(raw)/maxValue24)
		}
	case format.BitDepth == types.Depth32:
		for i := 0; i < len(data); i += 4 {
			samples = append(samples, float64(int32(binary.LittleEndian.Uint32(data[i:])))/maxValue32) //nolint:gosec // two's complement conversion for signed PCM samples
		}
	default:
		return nil, fmt.Errorf("%w: %d bit", errUnsupported, format.BitDepth)
	}

	return deinterleave(samples, numChannels), nil
}

// readLenient reads RIFF/WAVE payloads while tolerating bogus chunk sizes, float samples and a truncated data
// chunk. Without a RIFF header it only accepts raw 16-bit mono, and only when the payload was declared as raw PCM
// with a sample rate.
func readLenient(data []byte, raw bool, declaredRate int) (*types.Waveform, error) {
	if !isRIFFWave(data) {
		if !raw || declaredRate <= 0 {
			return nil, fmt.Errorf("%w: no RIFF/WAVE header", errInvalidHeader)
		}

		planar, err := decodeInterleaved(data, types.PCMFormat{BitDepth: types.Depth16, Channels: 1})
		if err != nil {
			return nil, err
		}

		return &types.Waveform{Channels: planar, SampleRate: declaredRate, BitDepth: types.Depth16}, nil
	}

	var (
		format    types.PCMFormat
		haveFmt   bool
		offset    = 12
		pcmChunk  []byte
		foundData bool
	)

	for offset+8 <= len(data) && !foundData {
		chunkID := string(data[offset : offset+4])
		size := binary.LittleEndian.Uint32(data[offset+4:])
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(data) {
				return nil, fmt.Errorf("%w: short fmt chunk", errInvalidHeader)
			}

			parsed, err := parseFmtChunk(data[body:min(body+int(size), len(data))])
			if err != nil {
				return nil, err
			}

			format, haveFmt = parsed, true
		case "data":
			if !haveFmt {
				return nil, errMissingFormat
			}

			end := body + int(size)
			if size == 0 || size == unknownChunkSize || end > len(data) || end < body {
				end = len(data)
			}

			pcmChunk, foundData = data[body:end], true

			continue
		default:
		}

		next := body + int(size) + int(size&1)
		if size == unknownChunkSize || next <= offset || next > len(data) {
			break
		}

		offset = next
	}

	if !foundData {
		return nil, fmt.Errorf("%w: no data chunk", errInvalidHeader)
	}

	planar, err := decodeInterleaved(pcmChunk, format)
	if err != nil {
		return nil, err
	}

	return &types.Waveform{Channels: planar, SampleRate: format.SampleRate, BitDepth: format.BitDepth}, nil
}

// wavFormat parses the first fmt chunk of a RIFF/WAVE payload.
func wavFormat(data []byte) (types.PCMFormat, error) {
	offset := 12

	for offset+8 <= len(data) {
		size := int(binary.LittleEndian.Uint32(data[offset+4:]))
		body := offset + 8

		if string(data[offset:offset+4]) == "fmt " {
			return parseFmtChunk(data[body:min(body+size, len(data))])
		}

		next := body + size + size&1
		if next <= offset || next > len(data) {
			break
		}

		offset = next
	}

	return types.PCMFormat{}, fmt.Errorf("%w: no fmt chunk", errInvalidHeader)
}

func parseFmtChunk(chunk []byte) (types.PCMFormat, error) {
	if len(chunk) < 16 {
		return types.PCMFormat{}, fmt.Errorf("%w: short fmt chunk", errInvalidHeader)
	}

	tag := binary.LittleEndian.Uint16(chunk[0:])
	channels := binary.LittleEndian.Uint16(chunk[2:])
	rate := binary.LittleEndian.Uint32(chunk[4:])
	bits := binary.LittleEndian.Uint16(chunk[14:])

	// WAVE_FORMAT_EXTENSIBLE carries the real tag in the first two bytes of the sub format GUID.
	if tag == wavFormatExtensible && len(chunk) >= 26 {
		tag = binary.LittleEndian.Uint16(chunk[24:])
	}

	if channels == 0 || rate == 0 {
		return types.PCMFormat{}, fmt.Errorf("%w: %d channels at %d Hz", errInvalidHeader, channels, rate)
	}

	if tag != wavFormatPCM && tag != wavFormatFloat {
		return types.PCMFormat{}, fmt.Errorf("%w: wav format tag %d", errUnsupported, tag)
	}

	return types.PCMFormat{
		SampleRate: int(rate),
		BitDepth:   types.BitDepth(bits),
		Channels:   uint(channels),
		Float:      tag == wavFormatFloat,
	}, nil
}

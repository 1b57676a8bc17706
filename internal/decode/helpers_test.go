package decode

import (
	"bytes"
	"encoding/binary"
	"math"
)

type wavSpec struct {
	rate     int
	bits     int
	float    bool
	dataSize int  // overrides the data chunk size when non-zero; -1 writes 0
	extended bool // WAVE_FORMAT_EXTENSIBLE header carrying the tag in its sub format
}

// makeWAV encodes planar samples as a little endian RIFF/WAVE payload.
func makeWAV(planar [][]float64, spec wavSpec) []byte {
	channels := len(planar)
	frames := len(planar[0])
	bytesPerSample := spec.bits / 8

	var pcm bytes.Buffer

	for i := range frames {
		for ch := range channels {
			v := planar[ch][i]

			switch {
			case spec.float:
				_ = binary.Write(&pcm, binary.LittleEndian, math.Float32bits(float32(v)))
			case spec.bits == 16:
				_ = binary.Write(&pcm, binary.LittleEndian, int16(math.Round(v*32767)))
			case spec.bits == 24:
				s := int32(math.Round(v * 8388607))
				pcm.Write([]byte{byte(s), byte(s >> 8), byte(s >> 16)})
			case spec.bits == 32:
				_ = binary.Write(&pcm, binary.LittleEndian, int32(math.Round(v*2147483647)))
			}
		}
	}

	tag := uint16(1)
	if spec.float {
		tag = 3
	}

	dataSize := uint32(pcm.Len())

	switch {
	case spec.dataSize > 0:
		dataSize = uint32(spec.dataSize)
	case spec.dataSize < 0:
		dataSize = 0
	}

	fmtSize := 16
	if spec.extended {
		fmtSize = 40
	}

	var out bytes.Buffer

	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(4+8+fmtSize+8+pcm.Len()))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	_ = binary.Write(&out, binary.LittleEndian, uint32(fmtSize))

	if spec.extended {
		_ = binary.Write(&out, binary.LittleEndian, uint16(0xFFFE))
	} else {
		_ = binary.Write(&out, binary.LittleEndian, tag)
	}

	_ = binary.Write(&out, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&out, binary.LittleEndian, uint32(spec.rate))
	_ = binary.Write(&out, binary.LittleEndian, uint32(spec.rate*channels*bytesPerSample))
	_ = binary.Write(&out, binary.LittleEndian, uint16(channels*bytesPerSample))
	_ = binary.Write(&out, binary.LittleEndian, uint16(spec.bits))

	if spec.extended {
		_ = binary.Write(&out, binary.LittleEndian, uint16(22))
		_ = binary.Write(&out, binary.LittleEndian, uint16(spec.bits))
		_ = binary.Write(&out, binary.LittleEndian, uint32(1<<channels-1))
		_ = binary.Write(&out, binary.LittleEndian, tag)
		out.Write([]byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71})
	}

	out.WriteString("data")
	_ = binary.Write(&out, binary.LittleEndian, dataSize)
	out.Write(pcm.Bytes())

	return out.Bytes()
}

func tone(freq float64, rate, frames int, amplitude float64) []float64 {
	out := make([]float64, frames)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}

	return out
}

// Package wavfile writes planar float samples as integer PCM WAV files.
package wavfile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const formatPCM = 1

var errUnsupportedDepth = errors.New("unsupported bit depth")

// Write encodes channels (planar, equal lengths) at rate and bits (16, 24 or 32). Samples are clamped to [-1, 1].
func Write(w io.WriteSeeker, channels [][]float64, rate, bits int) error {
	if bits != 16 && bits != 24 && bits != 32 {
		return fmt.Errorf("%w: %d", errUnsupportedDepth, bits)
	}

	if len(channels) == 0 {
		return errors.New("no channels")
	}

	frames := len(channels[0])
	scale := float64(int64(1)<<(bits-1) - 1)
	data := make([]int, 0, frames*len(channels))

	for i := range frames {
		for _, channel := range channels {
			data = append(data, int(math.Round(math.Max(-1, math.Min(1, channel[i]))*scale)))
		}
	}

	encoder := wav.NewEncoder(w, rate, bits, len(channels), formatPCM)

	err := encoder.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: len(channels), SampleRate: rate},
		Data:           data,
		SourceBitDepth: bits,
	})
	if err != nil {
		_ = encoder.Close()

		return err
	}

	return encoder.Close()
}

// WriteFile creates path and writes the samples to it.
func WriteFile(path string, channels [][]float64, rate, bits int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if err = Write(file, channels, rate, bits); err != nil {
		_ = file.Close()

		return err
	}

	return file.Close()
}

// Bytes returns the encoded file contents, staging through a temporary file.
func Bytes(channels [][]float64, rate, bits int) ([]byte, error) {
	file, err := os.CreateTemp("", "tocsin-*.wav")
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
		_ = os.Remove(file.Name())
	}()

	if err = Write(file, channels, rate, bits); err != nil {
		return nil, err
	}

	if _, err = file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	return io.ReadAll(file)
}

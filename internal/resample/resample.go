// Package resample performs band-limited sample rate conversion of mono float signals.
package resample

import (
	"errors"
	"fmt"
	"math"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
	"gonum.org/v1/gonum/floats"
)

const (
	// MinRate and MaxRate bound the rates accepted on either side of a conversion.
	MinRate = 4000
	MaxRate = 384000

	// minPadding is the least number of silent source samples placed around the signal.
	minPadding = 4096
)

// ErrRateOutOfRange is returned for rates outside [MinRate, MaxRate].
var ErrRateOutOfRange = errors.New("sample rate out of range")

var errNoOutput = errors.New("resampler produced no output")

// alignment locates the first output sample of a padded conversion that lines up with source sample 0.
type alignment struct {
	padding int
	start   int
}

var alignments sync.Map // [2]int{from, to} -> alignment

// Mono converts samples from rate `from` to rate `to`.
// The output holds exactly round(len(samples) * to / from) samples and output sample k sits at time k / to,
// the same instant as in the source. The signal is surrounded with silence so that neither the filter delay
// nor the flush tail cuts into it.
func Mono(samples []float64, from, to int) ([]float64, error) {
	if err := CheckRate(from); err != nil {
		return nil, err
	}

	if err := CheckRate(to); err != nil {
		return nil, err
	}

	if from == to || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)

		return out, nil
	}

	align, err := alignmentFor(from, to)
	if err != nil {
		return nil, err
	}

	padded := make([]float64, len(samples)+2*align.padding)
	copy(padded[align.padding:], samples)

	out, err := convert(padded, from, to)
	if err != nil {
		return nil, err
	}

	want := ExpectedLength(len(samples), from, to)

	if align.start < len(out) {
		out = out[align.start:]
	} else {
		out = nil
	}

	if len(out) >= want {
		return out[:want:want], nil
	}

	return append(out, make([]float64, want-len(out))...), nil
}

// CheckRate rejects rates outside [MinRate, MaxRate].
func CheckRate(rate int) error {
	if rate < MinRate || rate > MaxRate {
		return fmt.Errorf("%w: %d Hz not in [%d, %d]", ErrRateOutOfRange, rate, MinRate, MaxRate)
	}

	return nil
}

// ExpectedLength is the number of output samples for n input samples.
func ExpectedLength(n, from, to int) int {
	return int(math.Round(float64(n) * float64(to) / float64(from)))
}

// InputLength is the number of source samples at rate `from` needed to produce n output samples at rate `to`,
// filter support included. Anything past it cannot reach the first n output samples.
func InputLength(n, from, to int) int {
	return int(math.Ceil(float64(n)*float64(from)/float64(to))) + padding(from, to)
}

// Planar resamples every channel independently.
func Planar(channels [][]float64, from, to int) ([][]float64, error) {
	out := make([][]float64, len(channels))

	for i, ch := range channels {
		res, err := Mono(ch, from, to)
		if err != nil {
			return nil, err
		}

		out[i] = res
	}

	return out, nil
}

// padding is a fifth of a second of source samples, at least minPadding, rounded up so that it maps onto a
// whole number of output samples.
func padding(from, to int) int {
	step := from / gcd(from, to)
	size := max(from/5, minPadding)

	return (size + step - 1) / step * step
}

// alignmentFor measures, once per rate pair, where a unit impulse placed after the padding comes out.
func alignmentFor(from, to int) (alignment, error) {
	key := [2]int{from, to}
	if cached, ok := alignments.Load(key); ok {
		return cached.(alignment), nil //nolint:forcetypeassert
	}

	size := padding(from, to)
	impulse := make([]float64, 2*size+1)
	impulse[size] = 1

	out, err := convert(impulse, from, to)
	if err != nil {
		return alignment{}, err
	}

	if len(out) == 0 {
		return alignment{}, errNoOutput
	}

	align := alignment{padding: size, start: floats.MaxIdx(out)}
	alignments.Store(key, align)

	return align, nil
}

func convert(samples []float64, from, to int) ([]float64, error) {
	rsp, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	out, err := rsp.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	tail, err := rsp.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush error: %w", err)
	}

	return append(out, tail...), nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}

	return a
}

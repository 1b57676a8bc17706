// Package inference runs one clip through decode, normalize, feature extraction and classification.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/tocsin/internal/audit"
	"github.com/farcloser/tocsin/internal/classifier"
	"github.com/farcloser/tocsin/internal/decode"
	"github.com/farcloser/tocsin/internal/features"
	"github.com/farcloser/tocsin/internal/metrics"
	"github.com/farcloser/tocsin/internal/normalize"
	"github.com/farcloser/tocsin/internal/types"
)

var (
	// ErrBadInput marks failures caused by the submitted audio: empty, undecodable or malformed.
	ErrBadInput = errors.New("bad input")
	// ErrInternal marks failures that are not the caller's fault.
	ErrInternal = errors.New("internal error")
)

// Input is one of BlobInput, ArrayInput or PathInput.
type Input interface {
	isInput()
}

// BlobInput is an encoded payload. MIMEType may be empty or wrong; SampleRate is only used for raw PCM.
type BlobInput struct {
	Data       []byte
	MIMEType   string
	SampleRate int
}

// ArrayInput is already decoded audio, planar, at an explicit rate.
type ArrayInput struct {
	Channels   [][]float64
	SampleRate int
}

// PathInput is a file on disk. The MIME type is inferred from the extension.
type PathInput struct {
	Path string
}

func (BlobInput) isInput()  {}
func (ArrayInput) isInput() {}
func (PathInput) isInput()  {}

// Result is the outcome of one inference call. On failure the prediction fields hold safe defaults.
type Result struct {
	types.Prediction

	Error                string             `json:"error,omitempty"`
	ProcessingSuccessful bool               `json:"processing_successful"`
	Backend              string             `json:"backend,omitempty"`
	Short                bool               `json:"short_clip,omitempty"`
	Input                *types.InputReport `json:"input,omitempty"`
}

// Analysis holds the intermediate products of the feature path.
type Analysis struct {
	Waveform  *types.Waveform
	Canonical *types.Canonical
	Features  types.FeatureVector
	Report    *types.InputReport
}

// Options configures a Service. Nil components take defaults built from Layout.
type Options struct {
	Layout      features.Layout
	Decoder     *decode.Chain
	Normalizer  *normalize.Normalizer
	Extractor   *features.Extractor
	Diagnostics bool
}

// Service is safe for concurrent use; every call owns its audio state.
type Service struct {
	handle      *classifier.Handle
	decoder     *decode.Chain
	normalizer  *normalize.Normalizer
	extractor   *features.Extractor
	diagnostics bool
}

// New returns a Service predicting with whatever classifier handle holds at call time.
func New(handle *classifier.Handle, opts Options) *Service {
	if opts.Layout == (features.Layout{}) {
		opts.Layout = features.DefaultLayout()
	}

	if opts.Normalizer == nil {
		opts.Normalizer = normalize.New(normalize.Options{
			SampleRate: opts.Layout.SampleRate,
			Duration:   opts.Layout.Duration,
		})
	}

	if opts.Decoder == nil {
		opts.Decoder = decode.New(decode.Options{TargetRate: opts.Layout.SampleRate, MaxDuration: opts.Layout.Duration})
	}

	if opts.Extractor == nil {
		opts.Extractor = features.New(opts.Layout, features.WithDegradedHook(metrics.RecordDegraded))
	}

	return &Service{
		handle:      handle,
		decoder:     opts.Decoder,
		normalizer:  opts.Normalizer,
		extractor:   opts.Extractor,
		diagnostics: opts.Diagnostics,
	}
}

// FeatureCount is the length of the vectors this service computes.
func (s *Service) FeatureCount() int {
	return s.extractor.Count()
}

// Layout returns the feature layout.
func (s *Service) Layout() features.Layout {
	return s.extractor.Layout()
}

// Handle returns the classifier handle.
func (s *Service) Handle() *classifier.Handle {
	return s.handle
}

// Infer classifies one clip. A missing classifier returns classifier.ErrModelNotLoaded before any audio work.
// Input problems return a Result with ProcessingSuccessful false and an error wrapping ErrBadInput.
func (s *Service) Infer(ctx context.Context, in Input) (result *Result, err error) {
	model, err := s.handle.Get()
	if err != nil {
		return failed(err), err
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("inference.Infer: recovered", "panic", r)

			err = fmt.Errorf("%w: %v", ErrInternal, r)
			result = failed(err)
		}
	}()

	analysis, err := s.Analyze(ctx, in)
	if err != nil {
		return failed(err), err
	}

	start := time.Now()

	prediction, err := model.Predict(analysis.Features)

	metrics.ObserveStage("predict", start)

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInternal, err)

		return failed(err), err
	}

	metrics.RecordPrediction(prediction.ClassLabel)

	slog.Debug("inference.Infer", "class", prediction.ClassLabel, "confidence", prediction.Confidence,
		"backend", analysis.Waveform.Backend)

	return &Result{
		Prediction:           prediction,
		ProcessingSuccessful: true,
		Backend:              analysis.Waveform.Backend,
		Short:                analysis.Canonical.Short,
		Input:                analysis.Report,
	}, nil
}

// Analyze runs the feature path without a classifier.
func (s *Service) Analyze(ctx context.Context, in Input) (*Analysis, error) {
	start := time.Now()

	wave, err := s.waveform(ctx, in)

	metrics.ObserveStage("decode", start)

	if err != nil {
		metrics.RecordDecode("failed")

		return nil, err
	}

	metrics.RecordDecode(wave.Backend)

	analysis := &Analysis{Waveform: wave}

	if s.diagnostics {
		analysis.Report = audit.Inspect(wave)

		slog.Debug("inference.Analyze", "backend", wave.Backend, "rate", wave.SampleRate,
			"channels", len(wave.Channels), "duration", wave.Duration(), "peak_db", analysis.Report.PeakDb,
			"clipping_events", analysis.Report.Clipping.Events)
	}

	start = time.Now()

	analysis.Canonical, err = s.normalizer.Normalize(wave)

	metrics.ObserveStage("normalize", start)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadInput, err)
	}

	if analysis.Canonical.Short {
		metrics.RecordShort()
	}

	start = time.Now()
	analysis.Features = s.extractor.Extract(analysis.Canonical)

	metrics.ObserveStage("extract", start)

	return analysis, nil
}

func (s *Service) waveform(ctx context.Context, in Input) (*types.Waveform, error) {
	switch input := in.(type) {
	case BlobInput:
		return s.decodeBlob(ctx, &types.Blob{Data: input.Data, MIMEType: input.MIMEType, SampleRate: input.SampleRate})
	case *BlobInput:
		return s.decodeBlob(ctx, &types.Blob{Data: input.Data, MIMEType: input.MIMEType, SampleRate: input.SampleRate})
	case ArrayInput:
		return arrayWaveform(input)
	case *ArrayInput:
		return arrayWaveform(*input)
	case PathInput:
		return s.decodePath(ctx, input.Path)
	case *PathInput:
		return s.decodePath(ctx, input.Path)
	default:
		return nil, fmt.Errorf("%w: unsupported input %T", ErrBadInput, in)
	}
}

func (s *Service) decodeBlob(ctx context.Context, blob *types.Blob) (*types.Waveform, error) {
	if len(blob.Data) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrBadInput, normalize.ErrEmptyAudio)
	}

	wave, err := s.decoder.Decode(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadInput, err)
	}

	return wave, nil
}

func (s *Service) decodePath(ctx context.Context, path string) (*types.Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrBadInput, fault.ErrReadFailure, err)
	}

	return s.decodeBlob(ctx, &types.Blob{Data: data, MIMEType: decode.MIMETypeForPath(path)})
}

func arrayWaveform(input ArrayInput) (*types.Waveform, error) {
	if input.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrBadInput, input.SampleRate)
	}

	if len(input.Channels) == 0 || len(input.Channels[0]) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrBadInput, normalize.ErrEmptyAudio)
	}

	for ch, samples := range input.Channels {
		if len(samples) != len(input.Channels[0]) {
			return nil, fmt.Errorf("%w: channel %d has %d samples, channel 0 has %d",
				ErrBadInput, ch, len(samples), len(input.Channels[0]))
		}
	}

	return &types.Waveform{
		Channels:   input.Channels,
		SampleRate: input.SampleRate,
		Backend:    types.BackendArray,
	}, nil
}

func failed(err error) *Result {
	return &Result{Error: err.Error()}
}

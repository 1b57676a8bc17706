// Package tocsin classifies short speech clips as emergency or normal.
package tocsin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farcloser/tocsin/internal/classifier"
	"github.com/farcloser/tocsin/internal/dataset"
	"github.com/farcloser/tocsin/internal/decode"
	"github.com/farcloser/tocsin/internal/features"
	"github.com/farcloser/tocsin/internal/inference"
	"github.com/farcloser/tocsin/internal/metrics"
	"github.com/farcloser/tocsin/internal/normalize"
	"github.com/farcloser/tocsin/internal/storage"
)

/*
Usage:

pipeline := tocsin.New(store, tocsin.DefaultOptions())
if err := pipeline.Load(ctx); err != nil {
    return err
}

result, err := pipeline.Predict(ctx, inference.PathInput{Path: "clip.webm"})
if result.IsEmergency {
    fmt.Printf("emergency (%.2f)\n", result.Confidence)
}

// Features only, no model required
analysis, err := pipeline.Analyze(ctx, inference.BlobInput{Data: data, MIMEType: "audio/ogg"})

// Train from a dataset directory and publish to the store
set, err := dataset.Load(ctx, "data", pipeline.DatasetOptions())
history, err := pipeline.Train(ctx, set, classifier.DefaultTrainOptions())

*/

var errNoStore = errors.New("no model store configured")

// Options configures the audio path. Zero fields take DefaultOptions values.
type Options struct {
	// SampleRate is the canonical rate in Hz (default: 22050).
	SampleRate int
	// Duration is the canonical clip length in seconds (default: 3.0).
	Duration float64
	// NMFCC is the number of MFCC coefficients (default: 13).
	NMFCC int
	// FadeDuration is the edge fade in seconds (default: 0.01).
	FadeDuration float64
	// ShortDuration flags sources shorter than this many seconds (default: 0.5).
	ShortDuration float64

	// TempDir hosts transcoder scratch files (default: os.TempDir()).
	TempDir string
	// TranscodeTimeout bounds each ffmpeg run (default: 30s).
	TranscodeTimeout time.Duration
	// SourceDepth records the source bit depth of transcoded inputs through ffprobe.
	SourceDepth bool

	// Diagnostics attaches an input report (clipping, DC offset, silence) to every result.
	Diagnostics bool
}

// DefaultOptions returns the parameters the bundled models are trained with.
func DefaultOptions() Options {
	return Options{
		SampleRate:       22050,
		Duration:         3.0,
		NMFCC:            13,
		FadeDuration:     0.01,
		ShortDuration:    0.5,
		TranscodeTimeout: 30 * time.Second,
	}
}

func (o *Options) applyDefaults() {
	defaults := DefaultOptions()

	if o.SampleRate <= 0 {
		o.SampleRate = defaults.SampleRate
	}

	if o.Duration <= 0 {
		o.Duration = defaults.Duration
	}

	if o.NMFCC <= 0 {
		o.NMFCC = defaults.NMFCC
	}

	if o.FadeDuration <= 0 {
		o.FadeDuration = defaults.FadeDuration
	}

	if o.ShortDuration <= 0 {
		o.ShortDuration = defaults.ShortDuration
	}

	if o.TranscodeTimeout <= 0 {
		o.TranscodeTimeout = defaults.TranscodeTimeout
	}
}

// Layout is the feature layout these options produce.
func (o Options) Layout() features.Layout {
	o.applyDefaults()

	return features.NewLayout(o.SampleRate, o.Duration, o.NMFCC)
}

// FeatureCount returns the feature vector length for nMFCC coefficients.
func FeatureCount(nMFCC int) int {
	return features.Count(nMFCC)
}

// Pipeline ties the audio path to a hot swappable classifier backed by a store.
type Pipeline struct {
	opts       Options
	layout     features.Layout
	decoder    *decode.Chain
	normalizer *normalize.Normalizer
	extractor  *features.Extractor
	handle     *classifier.Handle
	service    *inference.Service
}

// New returns a Pipeline. store may be nil for feature extraction only.
func New(store storage.Store, opts Options) *Pipeline {
	opts.applyDefaults()

	layout := opts.Layout()

	pipeline := &Pipeline{
		opts:   opts,
		layout: layout,
		decoder: decode.New(decode.Options{
			TargetRate:       opts.SampleRate,
			MaxDuration:      opts.Duration,
			TempDir:          opts.TempDir,
			TranscodeTimeout: opts.TranscodeTimeout,
			SourceDepth:      opts.SourceDepth,
		}),
		normalizer: normalize.New(normalize.Options{
			SampleRate:    opts.SampleRate,
			Duration:      opts.Duration,
			FadeDuration:  opts.FadeDuration,
			ShortDuration: opts.ShortDuration,
		}),
		extractor: features.New(layout, features.WithDegradedHook(metrics.RecordDegraded)),
		handle:    classifier.NewHandle(store, layout),
	}

	pipeline.service = inference.New(pipeline.handle, inference.Options{
		Layout:      layout,
		Decoder:     pipeline.decoder,
		Normalizer:  pipeline.normalizer,
		Extractor:   pipeline.extractor,
		Diagnostics: opts.Diagnostics,
	})

	return pipeline
}

// Load reads the artifact set from the store. A failure keeps any previously loaded model.
func (p *Pipeline) Load(ctx context.Context) error {
	err := p.handle.Reload(ctx)

	metrics.RecordReload(err)
	metrics.SetModelLoaded(p.handle.Loaded())

	return err
}

// Predict classifies one clip.
func (p *Pipeline) Predict(ctx context.Context, in inference.Input) (*inference.Result, error) {
	return p.service.Infer(ctx, in)
}

// Analyze runs decode, normalize and feature extraction without a model.
func (p *Pipeline) Analyze(ctx context.Context, in inference.Input) (*inference.Analysis, error) {
	return p.service.Analyze(ctx, in)
}

// DatasetOptions returns dataset loading options sharing this pipeline's audio path.
func (p *Pipeline) DatasetOptions() dataset.Options {
	return dataset.Options{
		Decoder:    p.decoder,
		Normalizer: p.normalizer,
		Extractor:  p.extractor,
	}
}

// Train fits a classifier on set, publishes it to the store and swaps it in.
func (p *Pipeline) Train(ctx context.Context, set *dataset.Set, opts classifier.TrainOptions) (*classifier.History, error) {
	store := p.handle.Store()
	if store == nil {
		return nil, errNoStore
	}

	opts.Layout = p.layout

	model, history, err := classifier.Train(ctx, set.Samples, set.Classes, opts)
	if err != nil {
		return nil, err
	}

	if _, err = model.Save(ctx, store); err != nil {
		return history, fmt.Errorf("saving model to %s: %w", store, err)
	}

	if err = p.handle.Set(model); err != nil {
		return history, err
	}

	metrics.SetModelLoaded(true)

	return history, nil
}

// Service returns the inference service, for serving.
func (p *Pipeline) Service() *inference.Service {
	return p.service
}

// Handle returns the classifier handle.
func (p *Pipeline) Handle() *classifier.Handle {
	return p.handle
}

// Layout returns the feature layout.
func (p *Pipeline) Layout() features.Layout {
	return p.layout
}

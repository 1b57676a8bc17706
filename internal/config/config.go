// Package config loads tocsin settings from an optional YAML file.
// Command line flags and TOCSIN_* environment variables override file values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/farcloser/tocsin"
	"github.com/farcloser/tocsin/internal/classifier"
	"github.com/farcloser/tocsin/internal/storage"
)

// ErrInvalid is returned for settings that fail validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full set of file settings.
type Config struct {
	// LogLevel applies when --log-level is not given. Empty keeps the flag default.
	LogLevel string `yaml:"log_level"`
	Model    Model  `yaml:"model"`
	Audio    Audio  `yaml:"audio"`
	Server   Server `yaml:"server"`
	Cache    Cache  `yaml:"cache"`
	Train    Train  `yaml:"train"`
}

// Model locates the artifact set.
type Model struct {
	// Store is a directory or an s3://bucket/prefix location.
	Store     string `yaml:"store"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	PathStyle bool   `yaml:"path_style"`
}

// Audio shapes the canonical waveform and the feature layout.
type Audio struct {
	SampleRate       int           `yaml:"sample_rate"`
	Duration         float64       `yaml:"duration"`
	NMFCC            int           `yaml:"n_mfcc"`
	TempDir          string        `yaml:"temp_dir"`
	TranscodeTimeout time.Duration `yaml:"transcode_timeout"`
	SourceDepth      bool          `yaml:"source_depth"`
	Diagnostics      bool          `yaml:"diagnostics"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr           string        `yaml:"addr"`
	MaxBodySize    int64         `yaml:"max_body_size"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MDNS           bool          `yaml:"mdns"`
	Instance       string        `yaml:"instance"`
}

// Cache locates the feature cache used by training.
type Cache struct {
	Dir string `yaml:"dir"`
}

// Train holds training hyperparameters.
type Train struct {
	Workers         int     `yaml:"workers"`
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	Patience        int     `yaml:"patience"`
	LearningRate    float64 `yaml:"learning_rate"`
	ValidationSplit float64 `yaml:"validation_split"`
	Seed            uint64  `yaml:"seed"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	opts := tocsin.DefaultOptions()
	train := classifier.DefaultTrainOptions()

	return &Config{
		Model: Model{
			Store: "models",
		},
		Audio: Audio{
			SampleRate:       opts.SampleRate,
			Duration:         opts.Duration,
			NMFCC:            opts.NMFCC,
			TranscodeTimeout: opts.TranscodeTimeout,
		},
		Server: Server{
			Addr:         ":5000",
			MaxBodySize:  10 << 20,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			Instance:     "tocsin",
		},
		Train: Train{
			Epochs:          train.Epochs,
			BatchSize:       train.BatchSize,
			Patience:        train.Patience,
			LearningRate:    train.LearningRate,
			ValidationSplit: train.ValidationSplit,
			Seed:            train.Seed,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // operator supplied config path
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes a YAML document over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	switch {
	case c.Audio.SampleRate <= 0:
		return fmt.Errorf("%w: audio.sample_rate must be positive, got %d", ErrInvalid, c.Audio.SampleRate)
	case c.Audio.Duration <= 0:
		return fmt.Errorf("%w: audio.duration must be positive, got %g", ErrInvalid, c.Audio.Duration)
	case c.Audio.NMFCC <= 0:
		return fmt.Errorf("%w: audio.n_mfcc must be positive, got %d", ErrInvalid, c.Audio.NMFCC)
	case c.Server.MaxBodySize <= 0:
		return fmt.Errorf("%w: server.max_body_size must be positive, got %d", ErrInvalid, c.Server.MaxBodySize)
	case c.Train.ValidationSplit <= 0 || c.Train.ValidationSplit >= 1:
		return fmt.Errorf("%w: train.validation_split must be in (0, 1), got %g", ErrInvalid, c.Train.ValidationSplit)
	case c.Model.Store == "":
		return fmt.Errorf("%w: model.store is required", ErrInvalid)
	default:
		return nil
	}
}

// Options converts the audio settings to pipeline options.
func (c *Config) Options() tocsin.Options {
	return tocsin.Options{
		SampleRate:       c.Audio.SampleRate,
		Duration:         c.Audio.Duration,
		NMFCC:            c.Audio.NMFCC,
		TempDir:          c.Audio.TempDir,
		TranscodeTimeout: c.Audio.TranscodeTimeout,
		SourceDepth:      c.Audio.SourceDepth,
		Diagnostics:      c.Audio.Diagnostics,
	}
}

// S3Options returns the object store settings of the model location.
func (c *Config) S3Options() storage.S3Options {
	return storage.S3Options{
		Endpoint:  c.Model.Endpoint,
		Region:    c.Model.Region,
		PathStyle: c.Model.PathStyle,
	}
}

// TrainOptions returns classifier options for the training settings.
func (c *Config) TrainOptions() classifier.TrainOptions {
	opts := classifier.DefaultTrainOptions()
	opts.Layout = c.Options().Layout()
	opts.Epochs = c.Train.Epochs
	opts.BatchSize = c.Train.BatchSize
	opts.Patience = c.Train.Patience
	opts.LearningRate = c.Train.LearningRate
	opts.ValidationSplit = c.Train.ValidationSplit
	opts.Seed = c.Train.Seed

	return opts
}

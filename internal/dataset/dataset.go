// Package dataset turns a labelled directory of recordings into feature vectors for training.
//
// The layout is one sub directory per class, searched recursively:
//
//	<root>/emergency/**/<clip>.<ext>
//	<root>/normal/**/<clip>.<ext>
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/farcloser/tocsin/internal/cache"
	"github.com/farcloser/tocsin/internal/classifier"
	"github.com/farcloser/tocsin/internal/decode"
	"github.com/farcloser/tocsin/internal/features"
	"github.com/farcloser/tocsin/internal/normalize"
	"github.com/farcloser/tocsin/internal/types"
)

var (
	// ErrNotDirectory is returned when the dataset root is not a directory.
	ErrNotDirectory = errors.New("not a directory")
	// ErrNoAudioFiles is returned when no class directory holds a supported recording.
	ErrNoAudioFiles = errors.New("no supported audio files found")
)

// Classes are the sub directories scanned, each named after its label.
var Classes = []string{classifier.LabelEmergency, classifier.LabelNormal}

// File is one labelled recording.
type File struct {
	Path  string `json:"path"`
	Class string `json:"class"`
}

// Timing captures per file processing durations in milliseconds.
type Timing struct {
	ReadMs      float64 `json:"read_ms"`
	DecodeMs    float64 `json:"decode_ms"`
	NormalizeMs float64 `json:"normalize_ms"`
	ExtractMs   float64 `json:"extract_ms"`
	TotalMs     float64 `json:"total_ms"`
}

// Record is the outcome for one file.
type Record struct {
	File
	Backend  string  `json:"backend,omitempty"`
	Short    bool    `json:"short,omitempty"`
	Cached   bool    `json:"cached,omitempty"`
	Degraded bool    `json:"degraded,omitempty"`
	Error    string  `json:"error,omitempty"`
	Timing   *Timing `json:"timing,omitempty"`

	vector types.FeatureVector
}

// Set is a loaded data set. Samples and Classes only cover the files that decoded; Records covers every file, in
// path order.
type Set struct {
	Samples [][]float64
	Classes []string
	Records []Record
}

// Failed counts the records that could not be turned into a sample.
func (s *Set) Failed() int {
	failed := 0

	for i := range s.Records {
		if s.Records[i].Error != "" {
			failed++
		}
	}

	return failed
}

// Options configures Load. Nil components fall back to their defaults.
type Options struct {
	Workers    int
	Decoder    *decode.Chain
	Normalizer *normalize.Normalizer
	Extractor  *features.Extractor
	Cache      *cache.Cache
	// Progress, if set, is called after each file from the worker that processed it.
	Progress func(done, total int, record *Record)
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}

	if o.Normalizer == nil {
		o.Normalizer = normalize.New(normalize.DefaultOptions())
	}

	if o.Decoder == nil {
		o.Decoder = decode.New(decode.Options{TargetRate: o.Normalizer.SampleRate()})
	}

	if o.Extractor == nil {
		o.Extractor = features.New(features.DefaultLayout())
	}
}

// Collect lists the recordings under each class directory. Missing class directories are skipped.
func Collect(root string) ([]File, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%q: %w", root, ErrNotDirectory)
	}

	supported := map[string]bool{}
	for _, ext := range decode.SupportedExtensions() {
		supported["."+ext] = true
	}

	var files []File

	for _, class := range Classes {
		dir := filepath.Join(root, class)
		if _, err = os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			slog.Warn("dataset.Collect: class directory missing", "dir", dir)

			continue
		}

		var found []string

		err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if !entry.IsDir() && supported[strings.ToLower(filepath.Ext(path))] {
				found = append(found, path)
			}

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %q: %w", dir, err)
		}

		slices.Sort(found)

		for _, path := range found {
			files = append(files, File{Path: path, Class: class})
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%q: %w", root, ErrNoAudioFiles)
	}

	return files, nil
}

// Load collects and processes every recording under root concurrently. Per file failures are recorded, not
// returned; only cancellation and an unreadable root abort the load.
func Load(ctx context.Context, root string, opts Options) (*Set, error) {
	opts.applyDefaults()

	files, err := Collect(root)
	if err != nil {
		return nil, err
	}

	slog.Info("dataset.Load", "files", len(files), "workers", opts.Workers)

	records := make([]Record, len(files))

	var done atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Workers)

	for idx, file := range files {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			records[idx] = process(groupCtx, file, &opts)

			if opts.Progress != nil {
				opts.Progress(int(done.Add(1)), len(files), &records[idx])
			}

			return nil
		})
	}

	if err = group.Wait(); err != nil {
		return nil, err
	}

	set := &Set{Records: records}

	for i := range records {
		if records[i].Error != "" {
			continue
		}

		set.Samples = append(set.Samples, records[i].vector)
		set.Classes = append(set.Classes, records[i].Class)
	}

	return set, nil
}

func process(ctx context.Context, file File, opts *Options) Record {
	start := time.Now()
	record := Record{File: file, Timing: &Timing{}}

	defer func() {
		record.Timing.TotalMs = durationMs(time.Since(start))
	}()

	data, err := os.ReadFile(file.Path)
	record.Timing.ReadMs = durationMs(time.Since(start))

	if err != nil {
		record.Error = fmt.Sprintf("read failed: %v", err)

		return record
	}

	if opts.Cache != nil {
		if vector, ok, err := opts.Cache.Get(data); err != nil {
			slog.Warn("dataset: cache lookup failed", "file", file.Path, "error", err)
		} else if ok {
			record.vector = vector
			record.Cached = true

			return record
		}
	}

	stage := time.Now()

	wave, err := opts.Decoder.Decode(ctx, &types.Blob{Data: data, MIMEType: decode.MIMETypeForPath(file.Path)})
	record.Timing.DecodeMs = durationMs(time.Since(stage))

	if err != nil {
		record.Error = fmt.Sprintf("decode failed: %v", err)

		return record
	}

	record.Backend = wave.Backend
	stage = time.Now()

	canonical, err := opts.Normalizer.Normalize(wave)
	record.Timing.NormalizeMs = durationMs(time.Since(stage))

	if err != nil {
		record.Error = fmt.Sprintf("normalize failed: %v", err)

		return record
	}

	record.Short = canonical.Short
	stage = time.Now()

	vector, err := opts.Extractor.Compute(canonical)
	record.Timing.ExtractMs = durationMs(time.Since(stage))

	if err != nil {
		slog.Warn("dataset: extraction degraded to zero vector", "file", file.Path, "error", err)

		record.vector = make(types.FeatureVector, opts.Extractor.Count())
		record.Degraded = true

		return record
	}

	record.vector = vector

	if opts.Cache != nil {
		if err = opts.Cache.Put(data, vector); err != nil {
			slog.Warn("dataset: cache store failed", "file", file.Path, "error", err)
		}
	}

	return record
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

// Package output provides shared result serialization for tocsin console and JSON output.
package output

import (
	"fmt"

	"github.com/farcloser/tocsin/internal/classifier"
	"github.com/farcloser/tocsin/internal/features"
	"github.com/farcloser/tocsin/internal/inference"
	"github.com/farcloser/tocsin/internal/types"
)

// PredictionToMap converts an inference result into the canonical map structure
// used for JSON and console output.
func PredictionToMap(result *inference.Result) map[string]any {
	meta := map[string]any{
		"is_emergency":          result.IsEmergency,
		"confidence":            result.Confidence,
		"class_label":           result.ClassLabel,
		"features_extracted":    result.FeaturesExtracted,
		"processing_successful": result.ProcessingSuccessful,
	}

	if result.Backend != "" {
		meta["backend"] = result.Backend
	}

	if result.Short {
		meta["short_clip"] = true
	}

	if result.Error != "" {
		meta["error"] = result.Error
	}

	if result.Input != nil {
		meta["input"] = ReportToMap(result.Input)
	}

	return meta
}

// AnalysisToMap converts the feature path products to a map. Named features are included when withFeatures is set.
func AnalysisToMap(analysis *inference.Analysis, layout features.Layout, withFeatures bool) map[string]any {
	meta := map[string]any{
		"backend":            analysis.Waveform.Backend,
		"source_rate":        analysis.Waveform.SampleRate,
		"source_channels":    len(analysis.Waveform.Channels),
		"source_duration":    analysis.Canonical.SourceDuration,
		"short_clip":         analysis.Canonical.Short,
		"canonical_rate":     analysis.Canonical.SampleRate,
		"canonical_samples":  len(analysis.Canonical.Samples),
		"features_extracted": len(analysis.Features),
	}

	if analysis.Report != nil {
		meta["input"] = ReportToMap(analysis.Report)
	}

	if withFeatures {
		names := layout.Names()
		named := make(map[string]any, len(analysis.Features))

		for i, v := range analysis.Features {
			if i < len(names) {
				named[names[i]] = v
			}
		}

		meta["features"] = named
	}

	return meta
}

// ReportToMap converts input diagnostics to a map.
func ReportToMap(report *types.InputReport) map[string]any {
	meta := map[string]any{
		"backend":      report.Backend,
		"sample_rate":  report.SampleRate,
		"channels":     report.Channels,
		"duration_sec": report.DurationSec,
		"peak_db":      report.PeakDb,
	}

	if report.BitDepth != 0 {
		meta["bit_depth"] = int(report.BitDepth) //nolint:gosec // audio format values are small constants
	}

	if r := report.Clipping; r != nil {
		meta["clipping"] = ClippingToMap(r)
	}

	if r := report.DCOffset; r != nil {
		meta["dc_offset"] = map[string]any{
			"offset":    r.Offset,
			"offset_db": r.OffsetDb,
			"channels":  r.Channels,
		}
	}

	if r := report.Silence; r != nil {
		meta["silence"] = SilenceToMap(r)
	}

	return meta
}

// ClippingToMap converts clipping detection results to a map.
func ClippingToMap(result *types.ClippingDetection) map[string]any {
	channels := make([]any, 0, len(result.Channels))
	for i, ch := range result.Channels {
		channels = append(channels, map[string]any{
			"channel":         i,
			"events":          ch.Events,
			"clipped_samples": ch.ClippedSamples,
			"longest_run":     ch.LongestRun,
		})
	}

	return map[string]any{
		"events":          result.Events,
		"clipped_samples": result.ClippedSamples,
		"longest_run":     result.LongestRun,
		"samples":         result.Samples,
		"channels":        channels,
	}
}

// SilenceToMap converts silence detection results to a map.
func SilenceToMap(result *types.SilenceResult) map[string]any {
	segments := make([]any, 0, len(result.Segments))
	for _, seg := range result.Segments {
		segments = append(segments, map[string]any{
			"start_sec":    seg.StartSec,
			"end_sec":      seg.EndSec,
			"duration_sec": seg.DurationSec,
			"rms_db":       seg.RmsDb,
		})
	}

	return map[string]any{
		"total_duration": result.TotalDuration,
		"leading_sec":    result.LeadingSec,
		"trailing_sec":   result.TrailingSec,
		"total_silence":  result.TotalSilence,
		"segments":       segments,
	}
}

// ModelToMap describes a loaded classifier.
func ModelToMap(model *classifier.Classifier, location string) map[string]any {
	summary := model.Summary()
	stamp := model.Stamp()

	meta := map[string]any{
		"model_version":  stamp.SetID,
		"layout_version": stamp.LayoutVersion,
		"labels":         model.Labels().Classes,
		"layout": map[string]any{
			"sample_rate":   stamp.Layout.SampleRate,
			"duration":      stamp.Layout.Duration,
			"n_mfcc":        stamp.Layout.NMFCC,
			"n_fft":         stamp.Layout.FFTSize,
			"hop_length":    stamp.Layout.HopSize,
			"n_mels":        stamp.Layout.NMels,
			"feature_count": stamp.Layout.Features,
		},
		"model_summary": map[string]any{
			"input_shape":  summary.InputShape,
			"output_shape": summary.OutputShape,
			"total_params": summary.TotalParams,
			"layers":       summary.Layers,
		},
	}

	if location != "" {
		meta["model_store"] = location
	}

	return meta
}

// HistoryToMap summarizes a training run.
func HistoryToMap(history *classifier.History) map[string]any {
	validation := history.Validation

	meta := map[string]any{
		"epochs":             len(history.Epochs),
		"best_epoch":         history.BestEpoch,
		"train_samples":      history.TrainSamples,
		"validation_samples": history.ValidateSamples,
		"validation": map[string]any{
			"accuracy":  validation.Accuracy,
			"precision": validation.Precision,
			"recall":    validation.Recall,
			"f1":        validation.F1,
			"confusion": map[string]any{
				"true_normal":     validation.Confusion[0][0],
				"false_emergency": validation.Confusion[0][1],
				"false_normal":    validation.Confusion[1][0],
				"true_emergency":  validation.Confusion[1][1],
			},
		},
	}

	if n := len(history.Epochs); n > 0 {
		last := history.Epochs[n-1]
		meta["final"] = fmt.Sprintf("loss %.4f, accuracy %.4f, val_loss %.4f, val_accuracy %.4f, lr %.2g",
			last.Loss, last.Accuracy, last.ValidationLoss, last.ValidationAccuracy, last.LearningRate)
	}

	return meta
}

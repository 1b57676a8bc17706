package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/farcloser/tocsin/internal/features"
	"github.com/farcloser/tocsin/internal/storage"
)

// Artifact names inside a store.
const (
	ModelFile  = "model.json"
	ScalerFile = "scaler.json"
	LabelsFile = "labels.json"
)

// LayoutVersion is written into new artifacts. LayoutConstraint is what this build accepts when loading.
const (
	LayoutVersion    = "1.0.0"
	LayoutConstraint = "^1.0"
)

// Stamp ties the three artifacts of a set together and to the feature layout they were fitted on.
type Stamp struct {
	SetID         string          `json:"set_id"`
	LayoutVersion string          `json:"layout_version"`
	Layout        features.Layout `json:"layout"`
}

type modelArtifact struct {
	Stamp   Stamp    `json:"stamp"`
	Network *Network `json:"network"`
}

type scalerArtifact struct {
	Stamp  Stamp   `json:"stamp"`
	Scaler *Scaler `json:"scaler"`
}

type labelsArtifact struct {
	Stamp  Stamp  `json:"stamp"`
	Labels Labels `json:"labels"`
}

// Save writes the artifact set under a fresh set ID and returns the new stamp. The model file is written last,
// so a concurrent loader either sees the previous set or a mismatch, never a mixed set.
func (c *Classifier) Save(ctx context.Context, store storage.Store) (Stamp, error) {
	stamp := Stamp{
		SetID:         uuid.NewString(),
		LayoutVersion: LayoutVersion,
		Layout:        c.stamp.Layout,
	}

	writes := []struct {
		name  string
		value any
	}{
		{LabelsFile, labelsArtifact{Stamp: stamp, Labels: c.labels}},
		{ScalerFile, scalerArtifact{Stamp: stamp, Scaler: c.scaler}},
		{ModelFile, modelArtifact{Stamp: stamp, Network: c.network}},
	}

	for _, write := range writes {
		data, err := json.MarshalIndent(write.value, "", "  ")
		if err != nil {
			return Stamp{}, fmt.Errorf("encoding %s: %w", write.name, err)
		}

		if err = store.Put(ctx, write.name, data); err != nil {
			return Stamp{}, fmt.Errorf("writing %s to %s: %w", write.name, store, err)
		}
	}

	c.stamp = stamp

	slog.Info("classifier.Save", "store", store.String(), "set", stamp.SetID)

	return stamp, nil
}

// Load reads a matched artifact set and checks it against the serving layout.
func Load(ctx context.Context, store storage.Store, layout features.Layout) (*Classifier, error) {
	var (
		model  modelArtifact
		scaler scalerArtifact
		labels labelsArtifact
	)

	reads := []struct {
		name   string
		target any
	}{
		{ModelFile, &model},
		{ScalerFile, &scaler},
		{LabelsFile, &labels},
	}

	for _, read := range reads {
		data, err := store.Get(ctx, read.name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s missing from %s", ErrModelNotFound, read.name, store)
			}

			return nil, fmt.Errorf("reading %s from %s: %w", read.name, store, err)
		}

		if err = json.Unmarshal(data, read.target); err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %w", ErrArtifactMismatch, read.name, err)
		}
	}

	if model.Network == nil || scaler.Scaler == nil {
		return nil, fmt.Errorf("%w: incomplete artifacts", ErrArtifactMismatch)
	}

	if err := checkStamps(layout, model.Stamp, scaler.Stamp, labels.Stamp); err != nil {
		return nil, err
	}

	if model.Network.Inputs() != layout.Features || scaler.Scaler.Width() != layout.Features {
		return nil, fmt.Errorf("%w: model expects %d features, scaler %d, layout %d",
			ErrArtifactMismatch, model.Network.Inputs(), scaler.Scaler.Width(), layout.Features)
	}

	if !labels.Labels.valid() {
		return nil, fmt.Errorf("%w: unexpected class labels %v", ErrArtifactMismatch, labels.Labels.Classes)
	}

	slog.Info("classifier.Load", "store", store.String(), "set", model.Stamp.SetID)

	return &Classifier{
		network: model.Network,
		scaler:  scaler.Scaler,
		labels:  labels.Labels,
		stamp:   model.Stamp,
	}, nil
}

func checkStamps(layout features.Layout, model, scaler, labels Stamp) error {
	if model.SetID == "" || model.SetID != scaler.SetID || model.SetID != labels.SetID {
		return fmt.Errorf("%w: set ids %q, %q, %q", ErrArtifactMismatch, model.SetID, scaler.SetID, labels.SetID)
	}

	constraint, err := semver.NewConstraint(LayoutConstraint)
	if err != nil {
		return err
	}

	for _, stamp := range []Stamp{model, scaler, labels} {
		version, err := semver.NewVersion(stamp.LayoutVersion)
		if err != nil {
			return fmt.Errorf("%w: layout version %q: %w", ErrArtifactMismatch, stamp.LayoutVersion, err)
		}

		if !constraint.Check(version) {
			return fmt.Errorf("%w: layout version %s does not satisfy %s",
				ErrArtifactMismatch, version, LayoutConstraint)
		}

		if stamp.Layout != layout {
			return fmt.Errorf("%w: artifacts were fitted on %+v, serving %+v", ErrArtifactMismatch, stamp.Layout, layout)
		}
	}

	return nil
}

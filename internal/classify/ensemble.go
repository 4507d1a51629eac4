package classify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/cormorant-bio/indelclass/internal/features"
	"github.com/cormorant-bio/indelclass/internal/indel"
)

// Manifest describes the model artifacts in a models directory.
type Manifest struct {
	Schema string          `yaml:"schema"`
	Models []ManifestEntry `yaml:"models"`
}

// ManifestEntry is one artifact: its file, the indel-length bucket it
// serves, its weight in the bucket's combination, and the backend that
// runs it. Backend defaults by file extension: .onnx runs through ONNX
// Runtime, everything else as a native forest.
type ManifestEntry struct {
	Path    string  `yaml:"path"`
	Bucket  string  `yaml:"bucket"`
	Weight  float64 `yaml:"weight"`
	Backend string  `yaml:"backend"`
}

type member struct {
	name   string
	model  Model
	weight float64
}

// Ensemble holds the loaded models by bucket. Read-only after load.
type Ensemble struct {
	buckets map[string][]member
}

// LoadEnsemble reads manifest.yaml from the models directory and loads
// every artifact it names. Schema disagreements surface as
// SchemaMismatchError before any record is processed.
func LoadEnsemble(dir string) (*Ensemble, error) {
	manifestPath := filepath.Join(dir, "manifest.yaml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read model manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model manifest: %w", err)
	}
	if err := features.CheckVersion("manifest.yaml", m.Schema); err != nil {
		return nil, err
	}

	e := &Ensemble{buckets: make(map[string][]member)}
	for _, entry := range m.Models {
		if entry.Bucket != BucketSingle && entry.Bucket != BucketMulti {
			e.Close()
			return nil, fmt.Errorf("model manifest: unknown bucket %q for %s", entry.Bucket, entry.Path)
		}

		model, err := loadArtifact(filepath.Join(dir, entry.Path), entry.Backend)
		if err != nil {
			e.Close()
			return nil, err
		}

		weight := entry.Weight
		if weight == 0 {
			weight = 1
		}
		e.buckets[entry.Bucket] = append(e.buckets[entry.Bucket], member{
			name:   entry.Path,
			model:  model,
			weight: weight,
		})
	}

	for _, bucket := range []string{BucketSingle, BucketMulti} {
		if len(e.buckets[bucket]) == 0 {
			e.Close()
			return nil, fmt.Errorf("model manifest: no models for bucket %q", bucket)
		}
	}

	return e, nil
}

func loadArtifact(path, backend string) (Model, error) {
	switch backend {
	case "forest":
		return LoadForest(path)
	case "onnx":
		return LoadONNX(path)
	case "":
		if strings.HasSuffix(path, ".onnx") {
			return LoadONNX(path)
		}
		return LoadForest(path)
	default:
		return nil, fmt.Errorf("model manifest: unknown backend %q for %s", backend, path)
	}
}

// Decide applies the decision order for one record: panel override,
// then insufficient evidence, then the model bucket for the record's
// length.
func (e *Ensemble) Decide(r *indel.Record, inPanel, insufficient bool, vec features.Vector) (Result, error) {
	if inPanel {
		return Result{
			Label:  LabelGermline,
			Probs:  [3]float64{0, 1, 0},
			Source: SourcePanel,
		}, nil
	}
	if insufficient {
		return Result{Label: LabelUnclassified, Source: SourceInsufficient}, nil
	}

	probs, err := e.probs(BucketFor(r.Length()), vec.Values)
	if err != nil {
		return Result{}, err
	}
	return Result{Label: labelFor(probs), Probs: probs, Source: SourceModel}, nil
}

// probs combines the bucket's models by weighted mean, renormalized so
// the result sums to 1.
func (e *Ensemble) probs(bucket string, x []float64) ([3]float64, error) {
	var acc [3]float64
	for _, mb := range e.buckets[bucket] {
		p, err := mb.model.Probs(x)
		if err != nil {
			return acc, fmt.Errorf("model %s: %w", mb.name, err)
		}
		for i := range acc {
			acc[i] += mb.weight * p[i]
		}
	}

	var total float64
	for _, v := range acc {
		total += v
	}
	if total > 0 {
		for i := range acc {
			acc[i] /= total
		}
	}
	return acc, nil
}

// Close releases every loaded model.
func (e *Ensemble) Close() error {
	var err error
	for _, members := range e.buckets {
		for _, mb := range members {
			err = multierr.Append(err, mb.model.Close())
		}
	}
	return err
}

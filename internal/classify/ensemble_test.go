package classify

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cormorant-bio/indelclass/internal/features"
	"github.com/cormorant-bio/indelclass/internal/indel"
)

type fakeModel struct {
	probs  [3]float64
	err    error
	calls  int
	closed bool
}

func (f *fakeModel) Probs(x []float64) ([3]float64, error) {
	f.calls++
	return f.probs, f.err
}

func (f *fakeModel) Close() error {
	f.closed = true
	return nil
}

func fakeEnsemble(single, multi Model) *Ensemble {
	return &Ensemble{buckets: map[string][]member{
		BucketSingle: {{name: "single", model: single, weight: 1}},
		BucketMulti:  {{name: "multi", model: multi, weight: 1}},
	}}
}

func singleBaseDeletion() *indel.Record {
	return &indel.Record{Chrom: "2", Pos: 25234374, Ref: "T", Alt: "-"}
}

func multiBaseInsertion() *indel.Record {
	return &indel.Record{Chrom: "4", Pos: 55589771, Ref: "-", Alt: "GGG"}
}

func testVector(length float64) features.Vector {
	return features.Vector{Schema: features.SchemaVersion, Values: vectorWithLength(length)}
}

func TestDecide_PanelOverride(t *testing.T) {
	single := &fakeModel{probs: [3]float64{0.9, 0.05, 0.05}}
	e := fakeEnsemble(single, &fakeModel{})

	res, err := e.Decide(singleBaseDeletion(), true, false, testVector(1))
	require.NoError(t, err)
	assert.Equal(t, LabelGermline, res.Label)
	assert.Equal(t, SourcePanel, res.Source)
	assert.Equal(t, [3]float64{0, 1, 0}, res.Probs)
	assert.Zero(t, single.calls, "panel override must not consult models")
}

func TestDecide_PanelBeatsInsufficient(t *testing.T) {
	e := fakeEnsemble(&fakeModel{}, &fakeModel{})

	res, err := e.Decide(singleBaseDeletion(), true, true, testVector(1))
	require.NoError(t, err)
	assert.Equal(t, SourcePanel, res.Source)
}

func TestDecide_InsufficientEvidence(t *testing.T) {
	single := &fakeModel{probs: [3]float64{0.9, 0.05, 0.05}}
	e := fakeEnsemble(single, &fakeModel{})

	res, err := e.Decide(singleBaseDeletion(), false, true, testVector(1))
	require.NoError(t, err)
	assert.Equal(t, LabelUnclassified, res.Label)
	assert.Equal(t, SourceInsufficient, res.Source)
	assert.Equal(t, [3]float64{}, res.Probs)
	assert.Zero(t, single.calls)
}

func TestDecide_BucketRouting(t *testing.T) {
	single := &fakeModel{probs: [3]float64{0.8, 0.1, 0.1}}
	multi := &fakeModel{probs: [3]float64{0.1, 0.8, 0.1}}
	e := fakeEnsemble(single, multi)

	res, err := e.Decide(singleBaseDeletion(), false, false, testVector(1))
	require.NoError(t, err)
	assert.Equal(t, LabelSomatic, res.Label)
	assert.Equal(t, SourceModel, res.Source)
	assert.Equal(t, 1, single.calls)
	assert.Zero(t, multi.calls)

	res, err = e.Decide(multiBaseInsertion(), false, false, testVector(3))
	require.NoError(t, err)
	assert.Equal(t, LabelGermline, res.Label)
	assert.Equal(t, 1, multi.calls)
}

func TestDecide_ModelError(t *testing.T) {
	e := fakeEnsemble(&fakeModel{err: errors.New("boom")}, &fakeModel{})

	_, err := e.Decide(singleBaseDeletion(), false, false, testVector(1))
	assert.ErrorContains(t, err, "boom")
}

func TestProbs_WeightedCombination(t *testing.T) {
	e := &Ensemble{buckets: map[string][]member{
		BucketSingle: {
			{name: "a", model: &fakeModel{probs: [3]float64{1, 0, 0}}, weight: 3},
			{name: "b", model: &fakeModel{probs: [3]float64{0, 1, 0}}, weight: 1},
		},
	}}

	p, err := e.probs(BucketSingle, vectorWithLength(1))
	require.NoError(t, err)
	assert.InDelta(t, 0.75, p[ClassSomatic], 1e-9)
	assert.InDelta(t, 0.25, p[ClassGermline], 1e-9)
	assert.InDelta(t, 0.0, p[ClassArtifact], 1e-9)
}

func writeManifest(t *testing.T, dir string, m Manifest) {
	t.Helper()
	data, err := yaml.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), data, 0644))
}

func TestLoadEnsemble(t *testing.T) {
	dir := t.TempDir()
	writeForest(t, dir, "single.forest.json.gz", testArtifact(
		stump(0, 1.5, []float64{8, 1, 1}, []float64{1, 8, 1}),
	))
	writeForest(t, dir, "multi.forest.json.gz", testArtifact(
		stump(0, 1.5, []float64{1, 1, 8}, []float64{1, 8, 1}),
	))
	writeManifest(t, dir, Manifest{
		Schema: features.SchemaVersion,
		Models: []ManifestEntry{
			{Path: "single.forest.json.gz", Bucket: BucketSingle, Backend: "forest"},
			{Path: "multi.forest.json.gz", Bucket: BucketMulti},
		},
	})

	e, err := LoadEnsemble(dir)
	require.NoError(t, err)
	defer e.Close()

	res, err := e.Decide(singleBaseDeletion(), false, false, testVector(1))
	require.NoError(t, err)
	assert.Equal(t, LabelSomatic, res.Label)

	res, err = e.Decide(multiBaseInsertion(), false, false, testVector(3))
	require.NoError(t, err)
	assert.Equal(t, LabelGermline, res.Label)
}

func TestLoadEnsemble_Errors(t *testing.T) {
	t.Run("missing manifest", func(t *testing.T) {
		_, err := LoadEnsemble(t.TempDir())
		assert.ErrorContains(t, err, "manifest")
	})

	t.Run("wrong schema", func(t *testing.T) {
		dir := t.TempDir()
		writeManifest(t, dir, Manifest{Schema: "indel-v1"})
		_, err := LoadEnsemble(dir)
		var mismatch *features.SchemaMismatchError
		require.True(t, errors.As(err, &mismatch))
	})

	t.Run("unknown bucket", func(t *testing.T) {
		dir := t.TempDir()
		writeManifest(t, dir, Manifest{
			Schema: features.SchemaVersion,
			Models: []ManifestEntry{{Path: "x.forest.json.gz", Bucket: "huge"}},
		})
		_, err := LoadEnsemble(dir)
		assert.ErrorContains(t, err, "unknown bucket")
	})

	t.Run("unknown backend", func(t *testing.T) {
		dir := t.TempDir()
		writeForest(t, dir, "s.forest.json.gz", testArtifact(
			stump(0, 1.5, []float64{1, 0, 0}, []float64{0, 1, 0}),
		))
		writeManifest(t, dir, Manifest{
			Schema: features.SchemaVersion,
			Models: []ManifestEntry{{Path: "s.forest.json.gz", Bucket: BucketSingle, Backend: "xgboost"}},
		})
		_, err := LoadEnsemble(dir)
		assert.ErrorContains(t, err, "unknown backend")
	})

	t.Run("missing bucket", func(t *testing.T) {
		dir := t.TempDir()
		writeForest(t, dir, "s.forest.json.gz", testArtifact(
			stump(0, 1.5, []float64{1, 0, 0}, []float64{0, 1, 0}),
		))
		writeManifest(t, dir, Manifest{
			Schema: features.SchemaVersion,
			Models: []ManifestEntry{{Path: "s.forest.json.gz", Bucket: BucketSingle}},
		})
		_, err := LoadEnsemble(dir)
		assert.ErrorContains(t, err, `no models for bucket "multi"`)
	})
}

func TestEnsembleClose(t *testing.T) {
	single := &fakeModel{}
	multi := &fakeModel{}
	e := fakeEnsemble(single, multi)

	require.NoError(t, e.Close())
	assert.True(t, single.closed)
	assert.True(t, multi.closed)
}

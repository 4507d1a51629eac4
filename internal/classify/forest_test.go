package classify

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cormorant-bio/indelclass/internal/features"
)

func writeForest(t *testing.T, dir, name string, a forestArtifact) string {
	t.Helper()
	data, err := json.Marshal(a)
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

// stump builds a one-split tree on the given feature.
func stump(feature int, threshold float64, left, right []float64) forestTree {
	return forestTree{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{feature, -2, -2},
		Threshold:     []float64{threshold, 0, 0},
		Value:         [][]float64{{0, 0, 0}, left, right},
	}
}

func testArtifact(trees ...forestTree) forestArtifact {
	return forestArtifact{
		Schema:    features.SchemaVersion,
		NFeatures: features.Size(),
		Classes:   []string{"somatic", "germline", "artifact"},
		Trees:     trees,
	}
}

func vectorWithLength(length float64) []float64 {
	x := make([]float64, features.Size())
	x[0] = length
	return x
}

func TestForestProbs(t *testing.T) {
	path := writeForest(t, t.TempDir(), "single.forest.json.gz", testArtifact(
		stump(0, 1.5, []float64{8, 1, 1}, []float64{0, 9, 1}),
		stump(0, 1.5, []float64{6, 2, 2}, []float64{1, 8, 1}),
	))

	forest, err := LoadForest(path)
	require.NoError(t, err)
	defer forest.Close()

	// Left branch: mean of (0.8,0.1,0.1) and (0.6,0.2,0.2).
	p, err := forest.Probs(vectorWithLength(1))
	require.NoError(t, err)
	assert.InDelta(t, 0.7, p[ClassSomatic], 1e-9)
	assert.InDelta(t, 0.15, p[ClassGermline], 1e-9)
	assert.InDelta(t, 0.15, p[ClassArtifact], 1e-9)

	// Right branch: mean of (0,0.9,0.1) and (0.1,0.8,0.1).
	p, err = forest.Probs(vectorWithLength(4))
	require.NoError(t, err)
	assert.InDelta(t, 0.05, p[ClassSomatic], 1e-9)
	assert.InDelta(t, 0.85, p[ClassGermline], 1e-9)
	assert.InDelta(t, 0.10, p[ClassArtifact], 1e-9)

	sum := p[0] + p[1] + p[2]
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestForestProbs_ClassOrderRemapped(t *testing.T) {
	a := testArtifact(stump(0, 1.5, []float64{5, 3, 2}, []float64{5, 3, 2}))
	a.Classes = []string{"artifact", "somatic", "germline"}
	path := writeForest(t, t.TempDir(), "remap.forest.json.gz", a)

	forest, err := LoadForest(path)
	require.NoError(t, err)
	defer forest.Close()

	p, err := forest.Probs(vectorWithLength(1))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, p[ClassSomatic], 1e-9)
	assert.InDelta(t, 0.2, p[ClassGermline], 1e-9)
	assert.InDelta(t, 0.5, p[ClassArtifact], 1e-9)
}

func TestForestProbs_WrongVectorWidth(t *testing.T) {
	path := writeForest(t, t.TempDir(), "m.forest.json.gz", testArtifact(
		stump(0, 1.5, []float64{1, 0, 0}, []float64{0, 1, 0}),
	))
	forest, err := LoadForest(path)
	require.NoError(t, err)
	defer forest.Close()

	_, err = forest.Probs([]float64{1, 2, 3})
	assert.Error(t, err)
}

func TestLoadForest_SchemaMismatch(t *testing.T) {
	dir := t.TempDir()

	t.Run("wrong version", func(t *testing.T) {
		a := testArtifact(stump(0, 1.5, []float64{1, 0, 0}, []float64{0, 1, 0}))
		a.Schema = "indel-v1"
		_, err := LoadForest(writeForest(t, dir, "v1.forest.json.gz", a))
		var mismatch *features.SchemaMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Contains(t, err.Error(), "indel-v1")
	})

	t.Run("wrong width", func(t *testing.T) {
		a := testArtifact(stump(0, 1.5, []float64{1, 0, 0}, []float64{0, 1, 0}))
		a.NFeatures = 9
		_, err := LoadForest(writeForest(t, dir, "narrow.forest.json.gz", a))
		var mismatch *features.SchemaMismatchError
		require.True(t, errors.As(err, &mismatch))
	})
}

func TestLoadForest_BadArtifacts(t *testing.T) {
	dir := t.TempDir()

	t.Run("unknown class", func(t *testing.T) {
		a := testArtifact(stump(0, 1.5, []float64{1, 0, 0}, []float64{0, 1, 0}))
		a.Classes = []string{"somatic", "germline", "noise"}
		_, err := LoadForest(writeForest(t, dir, "class.forest.json.gz", a))
		assert.ErrorContains(t, err, "noise")
	})

	t.Run("no trees", func(t *testing.T) {
		_, err := LoadForest(writeForest(t, dir, "empty.forest.json.gz", testArtifact()))
		assert.ErrorContains(t, err, "no trees")
	})

	t.Run("child out of range", func(t *testing.T) {
		bad := stump(0, 1.5, []float64{1, 0, 0}, []float64{0, 1, 0})
		bad.ChildrenRight[0] = 7
		_, err := LoadForest(writeForest(t, dir, "bad.forest.json.gz", testArtifact(bad)))
		assert.ErrorContains(t, err, "out of range")
	})

	t.Run("not gzip", func(t *testing.T) {
		path := filepath.Join(dir, "plain.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))
		_, err := LoadForest(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadForest(filepath.Join(dir, "absent.forest.json.gz"))
		assert.Error(t, err)
	})
}

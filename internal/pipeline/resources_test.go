package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cormorant-bio/indelclass/internal/classify"
	"github.com/cormorant-bio/indelclass/internal/datasource/clinvar"
	"github.com/cormorant-bio/indelclass/internal/datasource/dbsnp"
	"github.com/cormorant-bio/indelclass/internal/features"
)

// flatSeq is a reference that answers every fetch with no sequence, so
// left-alignment keeps positions where they are.
type flatSeq struct{}

func (flatSeq) Fetch(chrom string, start, end int64) (string, error) { return "", nil }

func writeGzipped(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

const vcfHeader = "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n"

// resourceFixture builds a data directory with working bundles: one
// dbSNP indel, one ClinVar indel, one exon, and a forest model per
// bucket.
func resourceFixture(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(cfg.ModelsPath(), 0755))

	dbsnpVCF := filepath.Join(dir, "dbsnp.vcf")
	require.NoError(t, os.WriteFile(dbsnpVCF,
		[]byte(vcfHeader+"4\t55589770\trs121913507\tA\tAGG\t.\t.\tCAF=0.9985,0.0015\n"), 0644))
	store, err := dbsnp.Open(cfg.DBSNPPath())
	require.NoError(t, err)
	_, err = store.Load(dbsnpVCF, flatSeq{})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	clinvarVCF := filepath.Join(dir, "clinvar.vcf")
	require.NoError(t, os.WriteFile(clinvarVCF,
		[]byte(vcfHeader+"13\t32339912\t.\tTAAAC\tT\t.\t.\tCLNSIG=Pathogenic\n"), 0644))
	cstore, err := clinvar.Open(cfg.ClinvarPath())
	require.NoError(t, err)
	_, err = cstore.Load(clinvarVCF, flatSeq{})
	require.NoError(t, err)
	require.NoError(t, cstore.Close())

	writeGzipped(t, cfg.ExonPath(), "13\t32339800\t32340000\tBRCA2|NM_000059|10|+|0\n")

	forest := fmt.Sprintf(`{
		"schema": %q,
		"n_features": %d,
		"classes": ["somatic", "germline", "artifact"],
		"trees": [{
			"children_left": [1, -1, -1],
			"children_right": [2, -1, -1],
			"feature": [0, -2, -2],
			"threshold": [1.5, 0, 0],
			"value": [[0, 0, 0], [8, 1, 1], [1, 8, 1]]
		}]
	}`, features.SchemaVersion, features.Size())
	writeGzipped(t, filepath.Join(cfg.ModelsPath(), "single.forest.json.gz"), forest)
	writeGzipped(t, filepath.Join(cfg.ModelsPath(), "multi.forest.json.gz"), forest)

	manifest, err := yaml.Marshal(classify.Manifest{
		Schema: features.SchemaVersion,
		Models: []classify.ManifestEntry{
			{Path: "single.forest.json.gz", Bucket: classify.BucketSingle},
			{Path: "multi.forest.json.gz", Bucket: classify.BucketMulti},
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ModelsPath(), "manifest.yaml"), manifest, 0644))

	return cfg
}

func TestLoadResources(t *testing.T) {
	cfg := resourceFixture(t)

	res, err := LoadResources(context.Background(), &cfg, zap.NewNop())
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, 1, res.Exons.Count())
	assert.Nil(t, res.Panel)
	require.NotNil(t, res.Ensemble)

	known, ok := res.DBSNP.Lookup("4", 55589771, "-", "GG")
	require.True(t, ok)
	assert.Equal(t, "rs121913507", known.RSID)

	sig, ok := res.Clinvar.Lookup("13", 32339913, "AAAC", "-")
	require.True(t, ok)
	assert.Equal(t, 3, sig.Tier)
}

func TestLoadResources_EmptyBundle(t *testing.T) {
	cfg := resourceFixture(t)

	// Recreate the dbSNP bundle without loading anything into it.
	require.NoError(t, os.Remove(cfg.DBSNPPath()))
	store, err := dbsnp.Open(cfg.DBSNPPath())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = LoadResources(context.Background(), &cfg, zap.NewNop())
	assert.ErrorContains(t, err, "prepare dbsnp")
}

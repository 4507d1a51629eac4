package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refSeq map[string]string

func (r refSeq) Fetch(chrom string, start, end int64) (string, error) {
	seq := r[chrom]
	if start < 0 {
		start = 0
	}
	if end > int64(len(seq)) {
		end = int64(len(seq))
	}
	if start >= end {
		return "", nil
	}
	return seq[start:end], nil
}

const classifiedHeader = "##fileformat=VCFv4.2\n" +
	"##source=indelclass dev\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n"

func writeClassified(t *testing.T, dir, name string, rows ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := classifiedHeader + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// Chrom 2 is GGCTTAC, so the deletion of one T from the TT run can be
// spelled CT>C at 3 or TT>T at 4 and still mean the same indel.
var recurRef = refSeq{"2": "GGCTTAC"}

const (
	rowDelLeft  = "2\t3\t.\tCT\tC\t.\t.\tPRED=somatic;PROB=0.912,0.066,0.022;DSRC=model"
	rowDelRight = "2\t4\t.\tTT\tT\t.\t.\tPRED=somatic;PROB=0.877,0.100,0.023;DSRC=model"
	rowGermline = "7\t100\t.\tA\tAG\t.\t.\tPRED=germline;PROB=0.100,0.850,0.050;DSRC=model"
	rowPrivate  = "5\t50\t.\tG\tGA\t.\t.\tPRED=somatic;PROB=0.900,0.050,0.050;DSRC=model"
)

func TestSomaticKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeClassified(t, dir, "a.vcf", rowDelLeft, rowGermline)

	keys, err := somaticKeys(path, recurRef)
	require.NoError(t, err)

	assert.Len(t, keys, 1)
	assert.Contains(t, keys, "2:4:T:-")
}

func TestSomaticKeys_MatchAcrossSpellings(t *testing.T) {
	dir := t.TempDir()
	left := writeClassified(t, dir, "a.vcf", rowDelLeft)
	right := writeClassified(t, dir, "b.vcf", rowDelRight)

	keysLeft, err := somaticKeys(left, recurRef)
	require.NoError(t, err)
	keysRight, err := somaticKeys(right, recurRef)
	require.NoError(t, err)

	assert.Equal(t, keysLeft, keysRight)
}

func TestAnnotateRecurrence(t *testing.T) {
	dir := t.TempDir()
	a := writeClassified(t, dir, "a.vcf", rowDelLeft, rowGermline)
	b := writeClassified(t, dir, "b.vcf", rowDelRight, rowPrivate)

	counts := make(map[string]int)
	for _, path := range []string{a, b} {
		keys, err := somaticKeys(path, recurRef)
		require.NoError(t, err)
		for key := range keys {
			counts[key]++
		}
	}

	require.NoError(t, annotateRecurrence(a, counts, recurRef))
	require.NoError(t, annotateRecurrence(b, counts, recurRef))

	linesA := readLines(t, a)
	assert.Equal(t, recInfoLine, linesA[2], "REC header goes in before #CHROM")
	assert.True(t, strings.HasPrefix(linesA[3], "#CHROM"))
	assert.True(t, strings.HasSuffix(linesA[4], ";REC=2"), "shared somatic indel is annotated: %s", linesA[4])
	assert.Equal(t, rowGermline, linesA[5], "germline rows stay untouched")

	linesB := readLines(t, b)
	assert.True(t, strings.HasSuffix(linesB[4], ";REC=2"), "right spelling matches the same indel: %s", linesB[4])
	assert.Equal(t, rowPrivate, linesB[5], "private somatic rows stay untouched")
}

func TestAnnotateRecurrence_Idempotent(t *testing.T) {
	dir := t.TempDir()
	a := writeClassified(t, dir, "a.vcf", rowDelLeft)

	counts := map[string]int{"2:4:T:-": 3}
	require.NoError(t, annotateRecurrence(a, counts, recurRef))
	first, err := os.ReadFile(a)
	require.NoError(t, err)

	require.NoError(t, annotateRecurrence(a, counts, recurRef))
	second, err := os.ReadFile(a)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, 1, strings.Count(string(second), "REC=3"))
	assert.Equal(t, 1, strings.Count(string(second), recInfoLine))
}

func TestAnnotateRecurrence_DropsStaleCount(t *testing.T) {
	dir := t.TempDir()
	stale := "2\t3\t.\tCT\tC\t.\t.\tPRED=somatic;DSRC=model;REC=9"
	a := writeClassified(t, dir, "a.vcf", stale)

	require.NoError(t, annotateRecurrence(a, map[string]int{"2:4:T:-": 1}, recurRef))

	lines := readLines(t, a)
	assert.Equal(t, "2\t3\t.\tCT\tC\t.\t.\tPRED=somatic;DSRC=model", lines[4])
}

func TestIsClassifiedVCF(t *testing.T) {
	dir := t.TempDir()
	ours := writeClassified(t, dir, "ours.vcf", rowDelLeft)

	foreign := filepath.Join(dir, "foreign.vcf")
	require.NoError(t, os.WriteFile(foreign, []byte("##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n"), 0o644))

	ok, err := isClassifiedVCF(ours)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = isClassifiedVCF(foreign)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = isClassifiedVCF(filepath.Join(dir, "absent.vcf"))
	assert.Error(t, err)
}

func TestStripRecField(t *testing.T) {
	tests := []struct {
		info string
		want string
	}{
		{"PRED=somatic;REC=3", "PRED=somatic"},
		{"PRED=somatic;REC=3;DSRC=model", "PRED=somatic;DSRC=model"},
		{"REC=3", ""},
		{"PRED=somatic;DSRC=model", "PRED=somatic;DSRC=model"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripRecField(tt.info), tt.info)
	}
}

func TestLineKey(t *testing.T) {
	key, err := lineKey(rowDelLeft, recurRef)
	require.NoError(t, err)
	assert.Equal(t, "2:4:T:-", key)

	_, err = lineKey("2\t3\t.\tCT", recurRef)
	assert.Error(t, err)

	_, err = lineKey("2\tnope\t.\tCT\tC\t.\t.\t.", recurRef)
	assert.Error(t, err)

	_, err = lineKey("2\t3\t.\tC\tT\t.\t.\t.", recurRef)
	assert.Error(t, err, "SNV line has no indel allele")
}

package indel

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeChromName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"chr1", "1"},
		{"1", "1"},
		{"chrX", "X"},
		{"MT", "M"},
		{"chrM", "M"},
		{"GL000220.1", "GL000220.1"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeChromName(tt.in), "input %q", tt.in)
	}
}

func TestChromAliases(t *testing.T) {
	assert.Contains(t, ChromAliases("4"), "chr4")
	assert.Contains(t, ChromAliases("chr4"), "4")
	assert.Contains(t, ChromAliases("chrM"), "MT")
	assert.Contains(t, ChromAliases("MT"), "chrM")
}

func TestCompareChrom_KaryotypeOrder(t *testing.T) {
	names := []string{"chrX", "chr10", "chr2", "GL000220.1", "chrM", "chr1", "chrY", "chr22"}
	sort.Slice(names, func(i, j int) bool { return CompareChrom(names[i], names[j]) < 0 })

	want := []string{"chr1", "chr2", "chr10", "chr22", "chrX", "chrY", "chrM", "GL000220.1"}
	assert.Equal(t, want, names)
}

func TestCompareChrom_MixedNaming(t *testing.T) {
	// chr2 before 10: karyotype order must hold across naming styles.
	assert.Negative(t, CompareChrom("chr2", "10"))
	assert.Zero(t, CompareChrom("chr7", "7"))
	assert.Positive(t, CompareChrom("X", "chr22"))
}

func TestLess(t *testing.T) {
	a := &Record{Chrom: "chr2", Pos: 500}
	b := &Record{Chrom: "chr2", Pos: 600}
	c := &Record{Chrom: "chr11", Pos: 10}

	assert.True(t, Less(a, b))
	assert.False(t, Less(b, a))
	assert.True(t, Less(a, c), "chr2 sorts before chr11")
	assert.False(t, Less(c, a))
	assert.False(t, Less(a, a))
}

package indel

import (
	"strconv"
	"strings"
)

// NormalizeChromName strips the "chr" prefix and collapses the two
// mitochondrial spellings so database keys built from differently named
// inputs still match.
func NormalizeChromName(chrom string) string {
	name := strings.TrimPrefix(chrom, "chr")
	if name == "MT" {
		return "M"
	}
	return name
}

// ChromAliases returns the spellings a chromosome may carry across
// BAM headers, reference indexes, and call files, most likely first.
func ChromAliases(chrom string) []string {
	aliases := []string{chrom}
	if strings.HasPrefix(chrom, "chr") {
		aliases = append(aliases, chrom[3:])
	} else {
		aliases = append(aliases, "chr"+chrom)
	}
	switch NormalizeChromName(chrom) {
	case "M":
		aliases = append(aliases, "MT", "chrM", "chrMT")
	}
	return aliases
}

// chromRank orders the human karyotype: autosomes 1-22, then X, Y, M.
// Unplaced contigs sort after those, lexicographically.
func chromRank(chrom string) int {
	name := NormalizeChromName(chrom)
	if n, err := strconv.Atoi(name); err == nil && n >= 1 && n <= 22 {
		return n
	}
	switch name {
	case "X":
		return 23
	case "Y":
		return 24
	case "M":
		return 25
	}
	return 1000
}

// CompareChrom orders chromosome names in karyotype order. It returns
// -1, 0, or 1 in the manner of strings.Compare.
func CompareChrom(a, b string) int {
	ra, rb := chromRank(a), chromRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	if ra == 1000 {
		return strings.Compare(NormalizeChromName(a), NormalizeChromName(b))
	}
	return 0
}

// Less orders records by (chromosome, position) for the final output
// sort. Ties keep their relative source order under a stable sort.
func Less(a, b *Record) bool {
	if c := CompareChrom(a.Chrom, b.Chrom); c != 0 {
		return c < 0
	}
	return a.Pos < b.Pos
}

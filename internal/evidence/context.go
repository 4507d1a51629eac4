package evidence

import (
	"strings"

	"github.com/cormorant-bio/indelclass/internal/indel"
)

// contextWindow bounds how far the reference is scanned on each side of
// the junction.
const contextWindow = 50

// sequenceContext computes the homopolymer run length and the tandem
// repeat count of the indel unit from the reference around the locus.
func sequenceContext(ref indel.SequenceSource, r *indel.Record) (hpol, repeat int, err error) {
	unit := strings.ToUpper(r.Seq())
	unitLen := int64(len(unit))

	w := int64(contextWindow)
	if rw := 20 * unitLen; rw > w {
		w = rw
	}
	if w > 1000 {
		w = 1000
	}

	start := r.Pos - 1 - w
	if start < 0 {
		start = 0
	}
	end := r.Pos - 1 + w + unitLen

	seq, err := ref.Fetch(r.Chrom, start, end)
	if err != nil {
		return 0, 0, err
	}
	seq = strings.ToUpper(seq)

	// Index of the junction base: the first deleted base, or the first
	// reference base right of an insertion point.
	j := int(r.Pos - 1 - start)
	if j < 0 || j >= len(seq) {
		return 0, 0, nil
	}

	return homopolymerAt(seq, j), repeatCountAt(seq, j, unit), nil
}

// homopolymerAt returns the longest single-base run touching the
// junction before index j. A run continuing across the junction counts
// once with both sides combined.
func homopolymerAt(seq string, j int) int {
	rightRun := 0
	for k := j; k < len(seq) && seq[k] == seq[j]; k++ {
		rightRun++
	}

	leftRun := 0
	if j > 0 {
		for k := j - 1; k >= 0 && seq[k] == seq[j-1]; k-- {
			leftRun++
		}
	}

	if j > 0 && seq[j-1] == seq[j] {
		return leftRun + rightRun
	}
	if leftRun > rightRun {
		return leftRun
	}
	return rightRun
}

// repeatCountAt counts consecutive copies of the indel unit in the
// reference around index j, including the copy a deletion removes.
func repeatCountAt(seq string, j int, unit string) int {
	unitLen := len(unit)
	if unitLen == 0 {
		return 0
	}

	count := 0
	for k := j; k+unitLen <= len(seq) && seq[k:k+unitLen] == unit; k += unitLen {
		count++
	}
	for k := j - unitLen; k >= 0 && seq[k:k+unitLen] == unit; k -= unitLen {
		count++
	}
	return count
}

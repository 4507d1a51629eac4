// Package exondb provides coding-exon interval lookups loaded from the
// refCodingExon BED bundle in the data directory.
package exondb

import (
	"sort"

	"github.com/cormorant-bio/indelclass/internal/indel"
)

// Exon is the CDS portion of one exon. Coordinates are 1-based inclusive.
type Exon struct {
	Gene      string
	Accession string
	Number    int
	Strand    int8 // +1 or -1
	Phase     int  // reading frame of the exon's first coding base, 0..2
	Start     int64
	End       int64
}

// FrameAt returns the reading frame offset (0..2) of a genomic position
// inside the exon. Phase anchors on the transcription start, so minus
// strand exons count from their genomic end.
func (e *Exon) FrameAt(pos int64) int {
	if e.Strand == -1 {
		return int((int64(e.Phase) + (e.End - pos)) % 3)
	}
	return int((int64(e.Phase) + (pos - e.Start)) % 3)
}

// Contains reports whether pos lies inside the exon's CDS span.
func (e *Exon) Contains(pos int64) bool {
	return pos >= e.Start && pos <= e.End
}

// DB holds per-chromosome exon intervals sorted for binary search.
// Immutable after Load; lookups are safe from any number of goroutines.
type DB struct {
	chroms map[string]*chromIndex
	count  int
}

type exonInterval struct {
	start int64
	end   int64
	exon  *Exon
}

type chromIndex struct {
	intervals []exonInterval
	// prefixMaxEnd[i] = max(end) over intervals[0..i]. Lets the backward
	// scan in Overlapping stop as soon as nothing earlier can reach the
	// query start.
	prefixMaxEnd []int64
}

func buildChromIndex(exons []*Exon) *chromIndex {
	intervals := make([]exonInterval, len(exons))
	for i, e := range exons {
		intervals[i] = exonInterval{start: e.Start, end: e.End, exon: e}
	}

	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].start < intervals[j].start
	})

	prefixMaxEnd := make([]int64, len(intervals))
	for i := range intervals {
		prefixMaxEnd[i] = intervals[i].end
		if i > 0 && prefixMaxEnd[i-1] > prefixMaxEnd[i] {
			prefixMaxEnd[i] = prefixMaxEnd[i-1]
		}
	}

	return &chromIndex{intervals: intervals, prefixMaxEnd: prefixMaxEnd}
}

// Overlapping returns all exons whose CDS span intersects the 1-based
// inclusive range [start, end].
func (db *DB) Overlapping(chrom string, start, end int64) []*Exon {
	idx := db.chroms[indel.NormalizeChromName(chrom)]
	if idx == nil || len(idx.intervals) == 0 {
		return nil
	}

	// Binary search: candidates are the intervals starting at or before
	// the query end.
	hi := sort.Search(len(idx.intervals), func(i int) bool {
		return idx.intervals[i].start > end
	})

	var result []*Exon
	for i := hi - 1; i >= 0; i-- {
		if idx.prefixMaxEnd[i] < start {
			break
		}
		if idx.intervals[i].end >= start {
			result = append(result, idx.intervals[i].exon)
		}
	}

	return result
}

// At returns all exons containing a single position.
func (db *DB) At(chrom string, pos int64) []*Exon {
	return db.Overlapping(chrom, pos, pos)
}

// Count returns the number of loaded exon intervals.
func (db *DB) Count() int {
	return db.count
}

// Chromosomes returns the chromosome names present in the bundle.
func (db *DB) Chromosomes() []string {
	names := make([]string, 0, len(db.chroms))
	for name := range db.chroms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

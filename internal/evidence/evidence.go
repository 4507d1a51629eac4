// Package evidence computes per-locus alignment metrics for candidate
// indels: depth, supporting reads, quality and strand distributions,
// and reference sequence context. Reads come from an indexed BAM behind
// a small fetch interface so tests run on synthetic alignments.
package evidence

import (
	"fmt"
	"math"
	"strings"

	"github.com/cormorant-bio/indelclass/internal/indel"
)

// defaultReadLength pads the fetch window until a handle has seen real
// reads to estimate from.
const defaultReadLength = 150

// CigarOp is one alignment operation.
type CigarOp struct {
	Len int
	Op  byte
}

// Read is one aligned read reduced to what the extractor needs.
type Read struct {
	Name          string
	Pos           int64 // 1-based leftmost aligned reference position
	MapQ          int
	Reverse       bool
	Duplicate     bool
	Secondary     bool
	Supplementary bool
	Unmapped      bool
	Cigar         []CigarOp
	Seq           string
}

// queryLen returns the read length in query coordinates.
func (r *Read) queryLen() int {
	if len(r.Seq) > 0 {
		return len(r.Seq)
	}
	n := 0
	for _, op := range r.Cigar {
		switch op.Op {
		case 'M', '=', 'X', 'I', 'S':
			n += op.Len
		}
	}
	return n
}

// ReadSource fetches aligned reads overlapping a 1-based inclusive
// window.
type ReadSource interface {
	Fetch(chrom string, start, end int64) ([]Read, error)
}

// Summary is the alignment evidence for one record. Alignment-derived
// statistics are zero when Insufficient is set; sequence context comes
// from the reference and is filled in regardless.
type Summary struct {
	Depth    int // junction-spanning reads after filtering
	AltCount int // reads carrying the exact indel
	VAF      float64

	FwdSupport    int
	RevSupport    int
	Bidirectional bool

	MapQAltMean float64
	MapQAltSD   float64
	MapQRefMean float64
	MapQRefSD   float64

	DistToEndMean float64

	HomopolymerLen int
	RepeatCount    int

	Insufficient bool
}

// Config holds the extractor's filtering thresholds.
type Config struct {
	MapQUnique int // reads below this mapping quality are excluded
	MinSupport int // fewer supporting reads marks the locus insufficient
}

// Extractor computes evidence summaries against one BAM handle and one
// reference handle. Not safe for concurrent use; each worker owns its
// own extractor.
type Extractor struct {
	reads ReadSource
	ref   indel.SequenceSource
	cfg   Config

	readLen int // estimated from the first mapped reads this handle sees
}

// New creates an extractor. Zero config fields take the defaults:
// mapping quality 255 (STAR unique mappers), minimum support 1.
func New(reads ReadSource, ref indel.SequenceSource, cfg Config) *Extractor {
	if cfg.MapQUnique == 0 {
		cfg.MapQUnique = 255
	}
	if cfg.MinSupport == 0 {
		cfg.MinSupport = 1
	}
	return &Extractor{reads: reads, ref: ref, cfg: cfg}
}

// Extract computes the evidence summary for a canonical, left-aligned
// record.
func (e *Extractor) Extract(r *indel.Record) (Summary, error) {
	pad := int64(e.currentReadLength() + r.Length())
	start := r.Pos - pad
	if start < 1 {
		start = 1
	}
	end := r.Pos + pad

	reads, err := e.reads.Fetch(r.Chrom, start, end)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch reads %s:%d-%d: %w", r.Chrom, start, end, err)
	}
	e.observeReadLength(reads)

	var sum Summary
	var altMapQ, refMapQ, dists []float64

	for i := range reads {
		rd := &reads[i]
		if rd.Unmapped || rd.Duplicate || rd.Secondary || rd.Supplementary {
			continue
		}
		if rd.MapQ < e.cfg.MapQUnique {
			continue
		}

		call := classifyRead(rd, r)
		if !call.spans {
			continue
		}
		sum.Depth++
		if call.supports {
			sum.AltCount++
			altMapQ = append(altMapQ, float64(rd.MapQ))
			dists = append(dists, float64(call.distToEnd))
			if rd.Reverse {
				sum.RevSupport++
			} else {
				sum.FwdSupport++
			}
		} else {
			refMapQ = append(refMapQ, float64(rd.MapQ))
		}
	}

	// Context is a function of the reference alone, so insufficient
	// loci still get it.
	hpol, repeat, err := sequenceContext(e.ref, r)
	if err != nil {
		return Summary{}, fmt.Errorf("reference context %s: %w", r, err)
	}
	sum.HomopolymerLen = hpol
	sum.RepeatCount = repeat

	if sum.Depth == 0 || sum.AltCount < e.cfg.MinSupport {
		out := Summary{
			Depth:          sum.Depth,
			AltCount:       sum.AltCount,
			Insufficient:   true,
			HomopolymerLen: hpol,
			RepeatCount:    repeat,
		}
		if sum.Depth > 0 {
			out.VAF = float64(sum.AltCount) / float64(sum.Depth)
		}
		return out, nil
	}

	sum.VAF = float64(sum.AltCount) / float64(sum.Depth)
	sum.Bidirectional = sum.FwdSupport > 0 && sum.RevSupport > 0
	sum.MapQAltMean, sum.MapQAltSD = meanSD(altMapQ)
	sum.MapQRefMean, sum.MapQRefSD = meanSD(refMapQ)
	sum.DistToEndMean, _ = meanSD(dists)

	return sum, nil
}

func (e *Extractor) currentReadLength() int {
	if e.readLen > 0 {
		return e.readLen
	}
	return defaultReadLength
}

// observeReadLength locks in a read length estimate from the first
// mapped reads this handle sees.
func (e *Extractor) observeReadLength(reads []Read) {
	if e.readLen > 0 {
		return
	}
	longest := 0
	for i := range reads {
		if reads[i].Unmapped {
			continue
		}
		if n := reads[i].queryLen(); n > longest {
			longest = n
		}
	}
	if longest > 0 {
		e.readLen = longest
	}
}

// readCall is the verdict on one read at one locus.
type readCall struct {
	spans     bool // base-aligned on both sides of the junction
	supports  bool // carries the exact indel at the exact position
	distToEnd int  // junction distance to the nearer read end, supporting reads only
}

// classifyRead walks the read's CIGAR against the reference. A read
// supports the record iff the walk yields the record's exact operation,
// length, and (for insertions) inserted sequence at the record's
// position. A read spans the junction iff it has base alignment on both
// flanks; splice gaps and soft clips across the locus do not span.
func classifyRead(rd *Read, r *indel.Record) readCall {
	refPos := rd.Pos
	qPos := 0
	qLen := rd.queryLen()

	left := r.Pos - 1
	right := r.Pos
	if r.IsDeletion() {
		right = r.Pos + int64(r.Length())
	}

	var call readCall
	var leftAligned, rightAligned bool
	eventQPos := -1

	for _, op := range rd.Cigar {
		switch op.Op {
		case 'M', '=', 'X':
			opEnd := refPos + int64(op.Len)
			if left >= refPos && left < opEnd {
				leftAligned = true
			}
			if right >= refPos && right < opEnd {
				rightAligned = true
			}
			refPos = opEnd
			qPos += op.Len
		case 'I':
			if r.IsInsertion() && refPos == r.Pos && op.Len == r.Length() {
				if matchesInserted(rd.Seq, qPos, r.Alt) {
					eventQPos = qPos
				}
			}
			qPos += op.Len
		case 'D':
			if r.IsDeletion() && refPos == r.Pos && op.Len == r.Length() {
				eventQPos = qPos
			}
			refPos += int64(op.Len)
		case 'N':
			refPos += int64(op.Len)
		case 'S':
			qPos += op.Len
		}
	}

	call.spans = leftAligned && rightAligned
	if call.spans && eventQPos >= 0 {
		call.supports = true
		after := qLen - eventQPos
		if r.IsInsertion() {
			after -= r.Length()
		}
		call.distToEnd = eventQPos
		if after < call.distToEnd {
			call.distToEnd = after
		}
	}
	return call
}

// matchesInserted compares the read bases at an insertion against the
// expected sequence. Reads stored without sequence pass on the length
// match alone.
func matchesInserted(seq string, qPos int, want string) bool {
	if seq == "" {
		return true
	}
	if qPos+len(want) > len(seq) {
		return false
	}
	return strings.EqualFold(seq[qPos:qPos+len(want)], want)
}

// meanSD returns the mean and population standard deviation.
func meanSD(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))

	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(vals)))
}

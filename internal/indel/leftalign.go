package indel

import (
	"fmt"
	"strings"
)

// SequenceSource provides reference bases as an uppercase base string
// over a 0-based half-open interval.
type SequenceSource interface {
	Fetch(chrom string, start, end int64) (string, error)
}

// LeftAlign returns a copy of the record shifted to its leftmost
// equivalent position against the reference. Databases and panels store
// left-aligned entries and aligners left-align indels inside CIGAR
// strings, so matching happens in this space. The input record is not
// modified; the caller keeps it for output reconstruction.
//
// A deletion whose stated sequence does not match the reference cannot
// be shifted safely and is returned unshifted.
func LeftAlign(r *Record, src SequenceSource) (*Record, error) {
	out := *r
	seq := []byte(out.Seq())
	if len(seq) == 0 {
		return &out, nil
	}

	if out.IsDeletion() {
		refSeq, err := src.Fetch(out.Chrom, out.Pos-1, out.Pos-1+int64(len(seq)))
		if err != nil {
			return nil, fmt.Errorf("left align %s: %w", r, err)
		}
		if !strings.EqualFold(refSeq, string(seq)) {
			return &out, nil
		}
	}

	// Shift left one base at a time: a shift is valid while the base
	// immediately left of the event equals the last base of the event
	// sequence. Context is fetched in chunks to keep long homopolymer
	// runs to a handful of reads.
	const chunk = int64(128)
	pos := out.Pos
	window := ""
	winStart := int64(0)
	for pos > 1 {
		if window == "" || pos-1 < winStart {
			start := pos - chunk
			if start < 1 {
				start = 1
			}
			w, err := src.Fetch(out.Chrom, start-1, pos-1)
			if err != nil {
				return nil, fmt.Errorf("left align %s: %w", r, err)
			}
			if w == "" {
				break
			}
			window = strings.ToUpper(w)
			winStart = start
		}
		left := window[pos-1-winStart]
		if left != seq[len(seq)-1] {
			break
		}
		copy(seq[1:], seq[:len(seq)-1])
		seq[0] = left
		pos--
	}

	out.Pos = pos
	if out.IsInsertion() {
		out.Alt = string(seq)
	} else {
		out.Ref = string(seq)
	}
	return &out, nil
}

// ToVCFAlleles converts a canonical record back into the padded VCF
// spelling, fetching the anchor base from the reference. Records at the
// very start of a chromosome anchor on the base after the event, per
// the VCF convention.
func ToVCFAlleles(r *Record, src SequenceSource) (pos int64, ref, alt string, err error) {
	seq := r.Seq()

	if r.Pos > 1 {
		anchor, err := fetchBase(src, r.Chrom, r.Pos-1)
		if err != nil {
			return 0, "", "", err
		}
		if r.IsInsertion() {
			return r.Pos - 1, anchor, anchor + seq, nil
		}
		return r.Pos - 1, anchor + seq, anchor, nil
	}

	if r.IsInsertion() {
		anchor, err := fetchBase(src, r.Chrom, r.Pos)
		if err != nil {
			return 0, "", "", err
		}
		return 1, anchor, seq + anchor, nil
	}
	anchor, err := fetchBase(src, r.Chrom, r.Pos+int64(len(seq)))
	if err != nil {
		return 0, "", "", err
	}
	return 1, seq + anchor, anchor, nil
}

func fetchBase(src SequenceSource, chrom string, pos int64) (string, error) {
	b, err := src.Fetch(chrom, pos-1, pos)
	if err != nil {
		return "", fmt.Errorf("fetch anchor base %s:%d: %w", chrom, pos, err)
	}
	if len(b) != 1 {
		return "", fmt.Errorf("fetch anchor base %s:%d: got %d bases", chrom, pos, len(b))
	}
	return strings.ToUpper(b), nil
}

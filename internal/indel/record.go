// Package indel defines the canonical indel record and the coordinate
// conventions shared by the annotation databases, the evidence extractor,
// and the output writer.
//
// Canonical form uses the dash convention: insertions carry "-" on the
// reference side, deletions carry "-" on the alternate side, and Pos is
// the first affected reference base (1-based). For an insertion that is
// the reference position the inserted sequence would occupy, i.e. the
// base immediately right of the insertion point.
package indel

import (
	"fmt"

	"github.com/cormorant-bio/indelclass/internal/vcf"
)

// Type distinguishes insertions from deletions.
type Type int

const (
	Insertion Type = iota
	Deletion
)

func (t Type) String() string {
	if t == Insertion {
		return "insertion"
	}
	return "deletion"
}

// Record is one candidate indel in canonical form. Records are value
// types after normalization; workers operate on copies and never mutate
// shared state.
type Record struct {
	Chrom string // chromosome as named in the input
	Pos   int64  // 1-based, first affected reference base
	Ref   string // deleted sequence, or "-" for insertions
	Alt   string // inserted sequence, or "-" for deletions

	SourceIdx    int  // order of appearance in the input
	Multiallelic bool // source line listed more than one alternate

	Origin *vcf.Variant // parsed source line, kept for output reconstruction
}

// IsInsertion reports whether the record is an insertion.
func (r *Record) IsInsertion() bool {
	return r.Ref == "-"
}

// IsDeletion reports whether the record is a deletion.
func (r *Record) IsDeletion() bool {
	return r.Alt == "-"
}

// VariantType returns the indel type.
func (r *Record) VariantType() Type {
	if r.IsInsertion() {
		return Insertion
	}
	return Deletion
}

// Seq returns the inserted or deleted sequence.
func (r *Record) Seq() string {
	if r.IsInsertion() {
		return r.Alt
	}
	return r.Ref
}

// Length returns the number of inserted or deleted bases.
func (r *Record) Length() int {
	return len(r.Seq())
}

// Key returns the canonical identity key used for exact-match database
// and panel lookups. Chromosome naming differences (chr prefix, MT vs M)
// collapse onto one spelling so equivalent entries meet on the same key.
func (r *Record) Key() string {
	return fmt.Sprintf("%s:%d:%s:%s", NormalizeChromName(r.Chrom), r.Pos, r.Ref, r.Alt)
}

func (r *Record) String() string {
	return fmt.Sprintf("%s:%d %s>%s", r.Chrom, r.Pos, r.Ref, r.Alt)
}

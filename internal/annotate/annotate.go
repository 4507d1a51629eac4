// Package annotate resolves database context for candidate indels:
// coding-region membership, known-polymorphism status, clinical
// significance, and user-panel membership.
package annotate

import (
	"github.com/cormorant-bio/indelclass/internal/datasource/clinvar"
	"github.com/cormorant-bio/indelclass/internal/datasource/dbsnp"
	"github.com/cormorant-bio/indelclass/internal/datasource/exondb"
	"github.com/cormorant-bio/indelclass/internal/indel"
)

// CodingLookup finds coding exons overlapping a 1-based inclusive range.
type CodingLookup interface {
	Overlapping(chrom string, start, end int64) []*exondb.Exon
}

// PolymorphismLookup reports known-polymorphism membership for a record.
type PolymorphismLookup interface {
	LookupRecord(r *indel.Record) (dbsnp.Result, bool)
}

// SignificanceLookup reports clinical-significance membership for a record.
type SignificanceLookup interface {
	LookupRecord(r *indel.Record) (clinvar.Result, bool)
}

// PanelLookup reports membership on the user-supplied non-somatic panel.
type PanelLookup interface {
	Contains(r *indel.Record) bool
}

// Flags holds the resolved database context for one record. Values are
// set once by Resolve and read-only afterward.
type Flags struct {
	Coding   bool   // record touches a coding exon
	Frame    int    // reading frame offset at the locus, 0..2; 0 when non-coding
	InFrame  bool   // coding and length divisible by 3
	GeneName string // gene symbol of the affected exon

	OnDBSNP bool
	RSID    string
	PopAF   float64 // population allele frequency, 0 when absent

	ClinvarTier int // 0 none, 1 benign, 2 uncertain, 3 pathogenic
	ClinvarSig  string

	InPanel bool
}

// Truncating reports whether the record shifts the reading frame of a
// coding sequence.
func (f *Flags) Truncating() bool {
	return f.Coding && !f.InFrame
}

// Resolver combines the four databases into per-record Flags. All
// lookups are pure functions over immutable indices, safe to call
// concurrently from any number of workers.
type Resolver struct {
	coding CodingLookup
	known  PolymorphismLookup
	clin   SignificanceLookup
	panel  PanelLookup
}

// NewResolver creates a resolver over the given sources. The panel may
// be nil when no panel is configured.
func NewResolver(coding CodingLookup, known PolymorphismLookup, clin SignificanceLookup, panel PanelLookup) *Resolver {
	return &Resolver{
		coding: coding,
		known:  known,
		clin:   clin,
		panel:  panel,
	}
}

// Resolve returns the database context for a canonical, left-aligned
// record.
func (rs *Resolver) Resolve(r *indel.Record) Flags {
	var f Flags

	// Affected range: a deletion removes [pos, pos+len-1]; an insertion
	// sits between pos-1 and pos, so both flanks are queried.
	start, end := r.Pos, r.Pos
	if r.IsDeletion() {
		end = r.Pos + int64(r.Length()) - 1
	} else {
		start = r.Pos - 1
	}

	if exons := rs.coding.Overlapping(r.Chrom, start, end); len(exons) > 0 {
		e := exons[0]
		for _, cand := range exons {
			if cand.Contains(r.Pos) {
				e = cand
				break
			}
		}
		f.Coding = true
		f.GeneName = e.Gene
		f.Frame = e.FrameAt(clamp(r.Pos, e.Start, e.End))
		f.InFrame = r.Length()%3 == 0
	}

	if res, ok := rs.known.LookupRecord(r); ok {
		f.OnDBSNP = true
		f.RSID = res.RSID
		f.PopAF = res.AF
	}

	if res, ok := rs.clin.LookupRecord(r); ok {
		f.ClinvarTier = res.Tier
		f.ClinvarSig = res.Significance
	}

	if rs.panel != nil {
		f.InPanel = rs.panel.Contains(r)
	}

	return f
}

// clamp pins pos into [lo, hi] so frame is taken at the nearest coding
// base when an insertion sits just past an exon edge.
func clamp(pos, lo, hi int64) int64 {
	if pos < lo {
		return lo
	}
	if pos > hi {
		return hi
	}
	return pos
}

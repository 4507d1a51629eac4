package indel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cormorant-bio/indelclass/internal/vcf"
)

// ErrNotIndel marks variants that parse cleanly but are not simple
// insertions or deletions (SNVs, MNVs, complex substitutions, symbolic
// alleles). Callers pass these through unclassified.
var ErrNotIndel = errors.New("not a simple insertion or deletion")

// FromVariant converts a parsed variant into canonical form.
//
// Two input conventions are accepted. Dash-form records (flat caller
// output) are validated and taken as-is. VCF-form records are right
// trimmed, then their shared leading bases are stripped with the
// position advancing past them, which turns the usual padded VCF
// spelling into the dash convention. Variants that keep bases on both
// sides after trimming are complex substitutions and return ErrNotIndel.
func FromVariant(v *vcf.Variant, sourceIdx int) (*Record, error) {
	if v.Ref == "-" || v.Alt == "-" {
		return fromDashForm(v, sourceIdx)
	}
	return fromVCFForm(v, sourceIdx)
}

func fromDashForm(v *vcf.Variant, sourceIdx int) (*Record, error) {
	if v.Ref == "-" && v.Alt == "-" {
		return nil, fmt.Errorf("both alleles empty at %s:%d", v.Chrom, v.Pos)
	}

	seq := v.Alt
	if v.Alt == "-" {
		seq = v.Ref
	}
	if !isBaseString(seq) {
		return nil, ErrNotIndel
	}

	return &Record{
		Chrom:        v.Chrom,
		Pos:          v.Pos,
		Ref:          strings.ToUpper(v.Ref),
		Alt:          strings.ToUpper(v.Alt),
		SourceIdx:    sourceIdx,
		Multiallelic: v.Multiallelic,
		Origin:       v,
	}, nil
}

func fromVCFForm(v *vcf.Variant, sourceIdx int) (*Record, error) {
	if !v.HasCanonicalAlleles() {
		return nil, ErrNotIndel
	}

	ref := strings.ToUpper(v.Ref)
	alt := strings.ToUpper(v.Alt)
	if len(ref) == len(alt) {
		return nil, ErrNotIndel
	}

	// Drop the shared suffix first so trailing context bases never count
	// as padding.
	for len(ref) > 1 && len(alt) > 1 && ref[len(ref)-1] == alt[len(alt)-1] {
		ref = ref[:len(ref)-1]
		alt = alt[:len(alt)-1]
	}

	// Strip shared leading bases, advancing the position past each one.
	pos := v.Pos
	for len(ref) > 0 && len(alt) > 0 && ref[0] == alt[0] {
		ref = ref[1:]
		alt = alt[1:]
		pos++
	}

	switch {
	case len(ref) == 0 && len(alt) > 0:
		ref = "-"
	case len(alt) == 0 && len(ref) > 0:
		alt = "-"
	default:
		// Bases remain on both sides: a complex substitution.
		return nil, ErrNotIndel
	}

	return &Record{
		Chrom:        v.Chrom,
		Pos:          pos,
		Ref:          ref,
		Alt:          alt,
		SourceIdx:    sourceIdx,
		Multiallelic: v.Multiallelic,
		Origin:       v,
	}, nil
}

func isBaseString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'A', 'C', 'G', 'T', 'N', 'a', 'c', 'g', 't', 'n':
		default:
			return false
		}
	}
	return true
}

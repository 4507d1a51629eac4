// Package vcf provides VCF reading for classification input and
// annotation databases.
package vcf

import "strings"

// Variant represents a single genomic variant from a VCF file.
type Variant struct {
	Chrom         string                 // Chromosome name (e.g., "12", "chr12")
	Pos           int64                  // 1-based genomic position
	ID            string                 // Variant identifier (e.g., rs ID)
	Ref           string                 // Reference allele
	Alt           string                 // Alternate allele (single allele after splitting)
	Qual          float64                // Quality score
	Filter        string                 // Filter status (PASS or filter name)
	Info          map[string]interface{} // INFO field key-value pairs
	RawInfo       string                 // INFO column exactly as read
	SampleColumns string                 // FORMAT + sample columns joined by tabs, if present
	Raw           string                 // full data line exactly as read
	Line          int                    // 1-based line number in the source file
	Multiallelic  bool                   // line carried more than one ALT allele
	AltIdx        int                    // 0-based index of this allele in the original ALT list
}

// IsSNV returns true if the variant is a single nucleotide variant.
func (v *Variant) IsSNV() bool {
	return len(v.Ref) == 1 && len(v.Alt) == 1
}

// IsIndel returns true if the variant is an insertion or deletion.
func (v *Variant) IsIndel() bool {
	return v.HasCanonicalAlleles() && len(v.Ref) != len(v.Alt)
}

// IsInsertion returns true if the variant is an insertion.
func (v *Variant) IsInsertion() bool {
	return v.IsIndel() && len(v.Alt) > len(v.Ref)
}

// IsDeletion returns true if the variant is a deletion.
func (v *Variant) IsDeletion() bool {
	return v.IsIndel() && len(v.Ref) > len(v.Alt)
}

// HasCanonicalAlleles returns true when both alleles are plain base
// strings. Symbolic alleles (<DEL>, breakends) and missing alleles fail
// this check and are passed through unclassified.
func (v *Variant) HasCanonicalAlleles() bool {
	return isBases(v.Ref) && isBases(v.Alt)
}

func isBases(s string) bool {
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

// NormalizeChrom returns the chromosome name without "chr" prefix.
func (v *Variant) NormalizeChrom() string {
	if len(v.Chrom) > 3 && v.Chrom[:3] == "chr" {
		return v.Chrom[3:]
	}
	return v.Chrom
}

// InfoString returns the value of a string-typed INFO key, or "" when
// the key is absent or flag-typed.
func (v *Variant) InfoString(key string) string {
	if v.Info == nil {
		return ""
	}
	if s, ok := v.Info[key].(string); ok {
		return s
	}
	return ""
}

// InfoFirstFloat parses the first comma-separated value of an INFO key
// as a float. Returns 0, false when the key is absent or unparseable.
func (v *Variant) InfoFirstFloat(key string) (float64, bool) {
	s := v.InfoString(key)
	if s == "" {
		return 0, false
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	return ParseFloatValue(s)
}

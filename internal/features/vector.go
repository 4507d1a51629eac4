package features

import (
	"github.com/cormorant-bio/indelclass/internal/annotate"
	"github.com/cormorant-bio/indelclass/internal/evidence"
	"github.com/cormorant-bio/indelclass/internal/indel"
)

// Vector is one record's features in schema order.
type Vector struct {
	Schema string
	Values []float64
}

// Assemble merges the record, its annotation flags, and its alignment
// evidence into a vector. Insufficient-evidence summaries arrive with
// zeroed statistics from the extractor, so the assembled vector carries
// sentinel zeros for the alignment-derived features without a special
// case here.
func Assemble(r *indel.Record, f *annotate.Flags, ev *evidence.Summary) Vector {
	v := make([]float64, 0, len(Names))
	v = append(v,
		float64(r.Length()),
		boolFeature(r.IsInsertion()),
		boolFeature(r.Multiallelic),
		boolFeature(f.Coding),
		float64(f.Frame),
		boolFeature(f.InFrame),
		boolFeature(f.OnDBSNP),
		f.PopAF,
		float64(f.ClinvarTier),
		float64(ev.Depth),
		float64(ev.AltCount),
		ev.VAF,
		boolFeature(ev.Bidirectional),
		float64(ev.FwdSupport),
		float64(ev.RevSupport),
		ev.MapQAltMean,
		ev.MapQAltSD,
		ev.MapQRefMean,
		ev.MapQRefSD,
		ev.DistToEndMean,
		float64(ev.HomopolymerLen),
		float64(ev.RepeatCount),
	)
	return Vector{Schema: SchemaVersion, Values: v}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

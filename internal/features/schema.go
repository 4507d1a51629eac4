// Package features defines the versioned feature schema and assembles
// per-record vectors for the classifier models.
package features

import "fmt"

// SchemaVersion tags the exact ordered feature layout below. Model
// artifacts declare the schema they were trained against; anything else
// is rejected at startup.
const SchemaVersion = "indel-v2"

// Names lists the features in vector order and is the single source of
// truth for the schema's dimensionality.
var Names = []string{
	"length",
	"is_insertion",
	"is_multiallelic",
	"is_coding",
	"coding_frame",
	"is_in_frame",
	"is_on_dbsnp",
	"population_af",
	"clinvar_tier",
	"depth",
	"alt_count",
	"vaf",
	"is_bidirectional",
	"fwd_support",
	"rev_support",
	"mapq_alt_mean",
	"mapq_alt_sd",
	"mapq_ref_mean",
	"mapq_ref_sd",
	"dist_to_end_mean",
	"homopolymer_len",
	"repeat_count",
}

// Size returns the vector dimensionality for SchemaVersion.
func Size() int {
	return len(Names)
}

// SchemaMismatchError reports a disagreement between the feature schema
// and a loaded model artifact. It is fatal at startup; no record is
// processed after one is detected.
type SchemaMismatchError struct {
	Schema   string // schema the assembler produces
	Artifact string // artifact or manifest that disagrees
	Message  string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema %s: %s: %s", e.Schema, e.Artifact, e.Message)
}

// CheckVersion validates the schema version an artifact declares.
func CheckVersion(artifact, version string) error {
	if version != SchemaVersion {
		return &SchemaMismatchError{
			Schema:   SchemaVersion,
			Artifact: artifact,
			Message:  fmt.Sprintf("declares schema %s", version),
		}
	}
	return nil
}

// CheckWidth validates the input width an artifact expects.
func CheckWidth(artifact string, width int) error {
	if width != len(Names) {
		return &SchemaMismatchError{
			Schema:   SchemaVersion,
			Artifact: artifact,
			Message:  fmt.Sprintf("expects %d features, schema provides %d", width, len(Names)),
		}
	}
	return nil
}

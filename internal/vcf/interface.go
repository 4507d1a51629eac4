// Package vcf provides VCF reading for classification input and
// annotation databases.
package vcf

// VariantParser is the interface for parsers that read variants.
// Both the VCF and the tabular caller-output parsers implement it.
type VariantParser interface {
	// Next reads the next variant.
	// Returns nil, nil when there are no more variants.
	Next() (*Variant, error)

	// Close closes the parser and releases resources.
	Close() error

	// LineNumber returns the current line number being processed.
	LineNumber() int
}

package evidence

import (
	"fmt"
	"os"

	"github.com/vertgenlab/gonomics/dna"
	"github.com/vertgenlab/gonomics/fasta"

	"github.com/cormorant-bio/indelclass/internal/indel"
)

// FastaSource serves reference sequence from an indexed FASTA through
// gonomics. It satisfies indel.SequenceSource. Not safe for concurrent
// use; each worker opens its own.
type FastaSource struct {
	seeker *fasta.Seeker
	names  map[string]string // query spelling -> spelling the index answers to
}

// OpenFasta opens an indexed reference FASTA. The index is expected at
// path+".fai". Both files are checked up front because the seeker
// aborts the process on unreadable input.
func OpenFasta(path string) (*FastaSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("reference file: %w", err)
	}
	if _, err := os.Stat(path + ".fai"); err != nil {
		return nil, fmt.Errorf("reference index: %w", err)
	}

	return &FastaSource{
		seeker: fasta.NewSeeker(path, ""),
		names:  make(map[string]string),
	}, nil
}

// Fetch returns uppercase reference sequence for the 0-based half-open
// range [start, end). Chromosome spellings that differ between caller
// and reference (chr prefix, MT vs M) are resolved by trying aliases
// and remembering the one that answers.
func (f *FastaSource) Fetch(chrom string, start, end int64) (string, error) {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return "", nil
	}

	name, known := f.names[chrom]
	if known {
		bases, err := fasta.SeekByName(f.seeker, name, int(start), int(end))
		if err != nil {
			return "", fmt.Errorf("reference %s:%d-%d: %w", name, start, end, err)
		}
		dna.AllToUpper(bases)
		return dna.BasesToString(bases), nil
	}

	var lastErr error
	for _, alias := range indel.ChromAliases(chrom) {
		bases, err := fasta.SeekByName(f.seeker, alias, int(start), int(end))
		if err == nil {
			f.names[chrom] = alias
			dna.AllToUpper(bases)
			return dna.BasesToString(bases), nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("chromosome %s not in reference: %w", chrom, lastErr)
}

// Close closes the underlying seeker.
func (f *FastaSource) Close() error {
	return f.seeker.Close()
}

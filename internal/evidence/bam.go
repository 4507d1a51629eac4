package evidence

import (
	"fmt"
	"os"
	"strings"

	"github.com/vertgenlab/gonomics/dna"
	"github.com/vertgenlab/gonomics/sam"

	"github.com/cormorant-bio/indelclass/internal/indel"
)

// BamSource fetches reads from an indexed BAM through gonomics. One
// source wraps one reader and is not safe for concurrent use; each
// worker opens its own.
type BamSource struct {
	reader *sam.BamReader
	bai    sam.Bai
	chroms map[string]string // normalized name -> name as the header spells it
}

// OpenBam opens a coordinate-sorted, indexed BAM. The index is expected
// at path+".bai". Both files are checked up front because the readers
// abort the process on unreadable input.
func OpenBam(path string) (*BamSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("alignment file: %w", err)
	}
	if _, err := os.Stat(path + ".bai"); err != nil {
		return nil, fmt.Errorf("alignment index: %w", err)
	}

	reader, header := sam.OpenBam(path)
	bai := sam.ReadBai(path + ".bai")

	chroms := make(map[string]string, len(header.Chroms))
	for _, c := range header.Chroms {
		chroms[indel.NormalizeChromName(c.Name)] = c.Name
	}

	return &BamSource{reader: reader, bai: bai, chroms: chroms}, nil
}

// Fetch returns the reads overlapping a 1-based inclusive window.
func (b *BamSource) Fetch(chrom string, start, end int64) ([]Read, error) {
	name, ok := b.chroms[indel.NormalizeChromName(chrom)]
	if !ok {
		return nil, fmt.Errorf("chromosome %s not in alignment header", chrom)
	}
	if start < 1 {
		start = 1
	}

	raw := sam.SeekBamRegion(b.reader, b.bai, name, uint32(start-1), uint32(end))

	reads := make([]Read, 0, len(raw))
	for i := range raw {
		reads = append(reads, fromSam(&raw[i]))
	}
	return reads, nil
}

// Close closes the underlying reader.
func (b *BamSource) Close() error {
	return b.reader.Close()
}

func fromSam(s *sam.Sam) Read {
	ops := make([]CigarOp, len(s.Cigar))
	for i, c := range s.Cigar {
		ops[i] = CigarOp{Len: c.RunLength, Op: byte(c.Op)}
	}
	return Read{
		Name:          s.QName,
		Pos:           int64(s.Pos),
		MapQ:          int(s.MapQ),
		Reverse:       !sam.IsPosStrand(*s),
		Duplicate:     s.Flag&0x400 != 0,
		Secondary:     s.Flag&0x100 != 0,
		Supplementary: s.Flag&0x800 != 0,
		Unmapped:      s.Flag&0x4 != 0,
		Cigar:         ops,
		Seq:           strings.ToUpper(dna.BasesToString(s.Seq)),
	}
}

// Package tabular parses flat tab-separated indel caller output.
//
// The format is header-driven: one header line naming the columns, then
// one call per line. Indels use the dash convention, with "-" on the
// reference side for insertions and on the alternate side for deletions,
// and Pos pointing at the first affected reference base.
package tabular

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/cormorant-bio/indelclass/internal/vcf"
)

// Column names recognized in the header line.
const (
	ColChr        = "Chr"
	ColPos        = "Pos"
	ColRefAllele  = "Chr_Allele"
	ColAltAllele  = "Alternative_Allele"
	ColSampleName = "Sample"
)

// ColumnIndices holds the indices of the recognized columns.
type ColumnIndices struct {
	Chr        int
	Pos        int
	RefAllele  int
	AltAllele  int
	SampleName int
}

// Parser reads calls from a tabular caller-output file.
type Parser struct {
	reader     *bufio.Reader
	file       *os.File
	gzipReader *gzip.Reader
	lineNumber int
	columns    ColumnIndices
	headerLine string
}

// NewParser creates a new tabular parser for the given file.
// Supports both plain and gzipped files.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calls file: %w", err)
	}

	p := &Parser{file: file}

	// Check for gzip magic bytes
	buf := make([]byte, 2)
	_, err = file.Read(buf)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read calls header: %w", err)
	}

	// Seek back to beginning
	_, err = file.Seek(0, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("seek calls file: %w", err)
	}

	// Check for gzip magic number (0x1f, 0x8b)
	if buf[0] == 0x1f && buf[1] == 0x8b {
		p.gzipReader, err = gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.reader = bufio.NewReader(p.gzipReader)
	} else {
		p.reader = bufio.NewReader(file)
	}

	// Parse header
	if err := p.parseHeader(); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader (e.g., stdin).
func NewParserFromReader(r io.Reader) (*Parser, error) {
	p := &Parser{
		reader: bufio.NewReader(r),
	}

	if err := p.parseHeader(); err != nil {
		return nil, err
	}

	return p, nil
}

// parseHeader reads past comment lines and parses the column header.
func (p *Parser) parseHeader() error {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return &ParseError{
					Line:    p.lineNumber,
					Message: "no header line found",
				}
			}
			return fmt.Errorf("read header: %w", err)
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")

		// Skip comment lines (start with #)
		if strings.HasPrefix(line, "#") {
			continue
		}

		// Skip empty lines
		if line == "" {
			continue
		}

		// This should be the header line
		p.headerLine = line
		if err := p.parseColumnIndices(line); err != nil {
			return err
		}
		return nil
	}
}

// parseColumnIndices parses the header line to find column indices.
func (p *Parser) parseColumnIndices(headerLine string) error {
	columns := strings.Split(headerLine, "\t")

	p.columns = ColumnIndices{
		Chr:        -1,
		Pos:        -1,
		RefAllele:  -1,
		AltAllele:  -1,
		SampleName: -1,
	}

	for i, col := range columns {
		switch col {
		case ColChr:
			p.columns.Chr = i
		case ColPos:
			p.columns.Pos = i
		case ColRefAllele:
			p.columns.RefAllele = i
		case ColAltAllele:
			p.columns.AltAllele = i
		case ColSampleName:
			p.columns.SampleName = i
		}
	}

	for _, req := range []struct {
		name string
		idx  int
	}{
		{ColChr, p.columns.Chr},
		{ColPos, p.columns.Pos},
		{ColRefAllele, p.columns.RefAllele},
		{ColAltAllele, p.columns.AltAllele},
	} {
		if req.idx == -1 {
			return &ParseError{
				Line:    p.lineNumber,
				Message: fmt.Sprintf("required column %q not found in header", req.name),
			}
		}
	}

	return nil
}

// Next reads the next call from the file.
// Returns nil, nil when there are no more calls.
func (p *Parser) Next() (*vcf.Variant, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read call line: %w", err)
	}
	p.lineNumber++

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return p.Next() // Skip empty lines
	}

	// Skip comment lines
	if strings.HasPrefix(line, "#") {
		return p.Next()
	}

	return p.parseLine(line)
}

// parseLine parses a single call line into a Variant carrying the dash
// convention on the indel side.
func (p *Parser) parseLine(line string) (*vcf.Variant, error) {
	fields := strings.Split(line, "\t")

	minCols := maxIdx(p.columns.Chr, p.columns.Pos, p.columns.RefAllele, p.columns.AltAllele)
	if len(fields) <= minCols {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("expected at least %d columns, found %d", minCols+1, len(fields)),
		}
	}

	pos, err := strconv.ParseInt(fields[p.columns.Pos], 10, 64)
	if err != nil {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid position: %s", fields[p.columns.Pos]),
		}
	}
	if pos < 1 {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("position must be >= 1, found %d", pos),
		}
	}

	ref := normalizeAllele(fields[p.columns.RefAllele])
	alt := normalizeAllele(fields[p.columns.AltAllele])

	if ref == "-" && alt == "-" {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: "both alleles empty",
		}
	}

	v := &vcf.Variant{
		Chrom:   fields[p.columns.Chr],
		Pos:     pos,
		ID:      ".",
		Ref:     ref,
		Alt:     alt,
		Qual:    0,
		Filter:  ".",
		Info:    make(map[string]interface{}),
		RawInfo: ".",
		Raw:     line,
		Line:    p.lineNumber,
	}

	return v, nil
}

// normalizeAllele maps the empty-side spellings callers use onto "-"
// and uppercases base strings.
func normalizeAllele(a string) string {
	switch a {
	case "", "-", ".", "NA":
		return "-"
	}
	return strings.ToUpper(a)
}

// Header returns the column header line.
func (p *Parser) Header() string {
	return p.headerLine
}

// Columns returns the parsed column indices.
func (p *Parser) Columns() ColumnIndices {
	return p.columns
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// ParseError represents an error during tabular parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tabular parse error at line %d: %s", e.Line, e.Message)
}

// maxIdx returns the maximum of the provided integers.
func maxIdx(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

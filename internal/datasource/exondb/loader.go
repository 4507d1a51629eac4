package exondb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/cormorant-bio/indelclass/internal/indel"
)

// Load reads the coding-exon bundle, a BED4 file whose name column packs
// the exon annotation:
//
//	chrom  start  end  gene|accession|exonNumber|strand|phase
//
// with the usual BED 0-based half-open coordinates. Plain and gzipped
// files are both accepted.
func Load(path string) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exon bundle: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f

	// Handle gzipped files
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	return parseBED(reader)
}

func parseBED(reader io.Reader) (*DB, error) {
	scanner := bufio.NewScanner(reader)
	// Increase buffer size for long lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	byChrom := make(map[string][]*Exon)
	count := 0

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}

		exon, chrom, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("exon bundle line %d: %w", lineNum, err)
		}

		byChrom[chrom] = append(byChrom[chrom], exon)
		count++
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan exon bundle: %w", err)
	}

	db := &DB{chroms: make(map[string]*chromIndex, len(byChrom)), count: count}
	for chrom, exons := range byChrom {
		db.chroms[chrom] = buildChromIndex(exons)
	}

	return db, nil
}

func parseLine(line string) (*Exon, string, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 4 {
		return nil, "", fmt.Errorf("expected 4 columns, found %d", len(fields))
	}

	start, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, "", fmt.Errorf("parse start: %w", err)
	}

	end, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, "", fmt.Errorf("parse end: %w", err)
	}
	if end <= start {
		return nil, "", fmt.Errorf("empty interval %d-%d", start, end)
	}

	name := strings.Split(fields[3], "|")
	if len(name) < 5 {
		return nil, "", fmt.Errorf("name column needs gene|accession|exon|strand|phase, found %q", fields[3])
	}

	number, err := strconv.Atoi(name[2])
	if err != nil {
		return nil, "", fmt.Errorf("parse exon number: %w", err)
	}

	strand := int8(1)
	if name[3] == "-" {
		strand = -1
	}

	phase, err := strconv.Atoi(name[4])
	if err != nil || phase < 0 || phase > 2 {
		return nil, "", fmt.Errorf("parse phase %q", name[4])
	}

	exon := &Exon{
		Gene:      name[0],
		Accession: name[1],
		Number:    number,
		Strand:    strand,
		Phase:     phase,
		// BED half-open to 1-based inclusive.
		Start: start + 1,
		End:   end,
	}

	return exon, indel.NormalizeChromName(fields[0]), nil
}

// Package dbsnp provides known-polymorphism lookups for indels backed
// by DuckDB. Bundles are built by `indelclass prepare dbsnp` from a
// dbSNP release VCF, with entries normalized to the canonical dash
// convention and left-aligned so caller output meets them on one key.
package dbsnp

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/cormorant-bio/indelclass/internal/duckdb"
	"github.com/cormorant-bio/indelclass/internal/indel"
	"github.com/cormorant-bio/indelclass/internal/vcf"
)

// entry is the in-memory representation of one known indel.
type entry struct {
	pos  int64
	ref  string
	alt  string
	rsid string
	af   float32
}

// Result holds a single dbSNP lookup result.
type Result struct {
	RSID string
	AF   float64
}

// Store provides known-indel lookups backed by DuckDB.
type Store struct {
	store    *duckdb.Store
	lookupPS *sql.Stmt // prepared statement for Lookup, lazily initialized

	// In-memory cache: sorted slices per chromosome for O(log n) lookup.
	memCache map[string][]entry
}

// Open opens or creates the dbSNP bundle at the given path.
func Open(dbPath string) (*Store, error) {
	store, err := duckdb.Open(dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{store: store}
	if err := s.ensureSchema(); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

func (s *Store) ensureSchema() error {
	if _, err := s.store.DB().Exec(`CREATE TABLE IF NOT EXISTS dbsnp (
		chrom VARCHAR,
		pos BIGINT,
		ref VARCHAR,
		alt VARCHAR,
		rsid VARCHAR,
		af FLOAT
	)`); err != nil {
		return err
	}
	// Index for fast point lookups
	s.store.DB().Exec(`CREATE INDEX IF NOT EXISTS idx_dbsnp_lookup ON dbsnp (chrom, pos, ref, alt)`)
	return nil
}

// Loaded returns true if the bundle has data.
func (s *Store) Loaded() bool {
	var count int64
	err := s.store.DB().QueryRow("SELECT COUNT(*) FROM dbsnp").Scan(&count)
	return err == nil && count > 0
}

// Count returns the number of rows in the bundle.
func (s *Store) Count() (int64, error) {
	var count int64
	err := s.store.DB().QueryRow("SELECT COUNT(*) FROM dbsnp").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count dbsnp rows: %w", err)
	}
	return count, nil
}

// BuildInfo returns the bundle's build provenance, if recorded.
func (s *Store) BuildInfo() (duckdb.BuildInfo, bool) {
	return s.store.ReadBuildInfo()
}

// Load streams a dbSNP release VCF into the bundle. SNVs and entries
// that fail to normalize are skipped. When ref is non-nil each entry is
// left-aligned before storage. Returns the number of indels loaded.
func (s *Store) Load(vcfPath string, ref indel.SequenceSource) (int64, error) {
	// Clear any existing data first (idempotent rebuild)
	s.store.DB().Exec(`DELETE FROM dbsnp`)

	parser, err := vcf.NewParser(vcfPath)
	if err != nil {
		return 0, err
	}
	defer parser.Close()

	app, err := s.store.NewAppender("dbsnp")
	if err != nil {
		return 0, err
	}

	var loaded int64
	for {
		v, err := parser.Next()
		if err != nil {
			var perr *vcf.ParseError
			if errors.As(err, &perr) {
				continue
			}
			app.Close()
			return loaded, err
		}
		if v == nil {
			break
		}

		for _, split := range vcf.SplitMultiAllelic(v) {
			rec, err := indel.FromVariant(split, 0)
			if err != nil {
				continue
			}
			if ref != nil {
				if rec, err = indel.LeftAlign(rec, ref); err != nil {
					app.Close()
					return loaded, err
				}
			}

			if err := app.AppendRow(
				indel.NormalizeChromName(rec.Chrom), rec.Pos, rec.Ref, rec.Alt,
				split.ID, alleleFrequency(split),
			); err != nil {
				app.Close()
				return loaded, fmt.Errorf("append dbsnp row: %w", err)
			}
			loaded++
		}
	}

	if err := app.Close(); err != nil {
		return loaded, err
	}

	src, err := duckdb.StatFile(vcfPath)
	if err != nil {
		return loaded, err
	}
	err = s.store.WriteBuildInfo(duckdb.BuildInfo{
		Source:  src,
		Entries: loaded,
		BuiltAt: time.Now().UTC(),
		Tool:    "indelclass prepare dbsnp",
	})
	return loaded, err
}

// alleleFrequency digs the population frequency of this alternate out
// of the INFO spellings dbSNP has used across releases.
func alleleFrequency(v *vcf.Variant) float32 {
	// CAF=ref,alt1,alt2,... (b150 and earlier)
	if caf := v.InfoString("CAF"); caf != "" {
		if f, ok := nthFloat(caf, v.AltIdx+1); ok {
			return f
		}
	}
	// AF=alt1,alt2,...
	if af := v.InfoString("AF"); af != "" {
		if f, ok := nthFloat(af, v.AltIdx); ok {
			return f
		}
	}
	// FREQ=Source:ref,alt1,...|Source2:... (b152 and later)
	if freq := v.InfoString("FREQ"); freq != "" {
		first := freq
		if i := strings.IndexByte(first, '|'); i >= 0 {
			first = first[:i]
		}
		if i := strings.IndexByte(first, ':'); i >= 0 {
			if f, ok := nthFloat(first[i+1:], v.AltIdx+1); ok {
				return f
			}
		}
	}
	return 0
}

func nthFloat(list string, n int) (float32, bool) {
	vals := strings.Split(list, ",")
	if n < 0 || n >= len(vals) {
		return 0, false
	}
	f, ok := vcf.ParseFloatValue(vals[n])
	if !ok {
		return 0, false
	}
	return float32(f), true
}

// PreloadToMemory loads the bundle into sorted in-memory slices for
// O(log n) lookup without database overhead.
func (s *Store) PreloadToMemory() error {
	rows, err := s.store.DB().Query("SELECT chrom, pos, ref, alt, rsid, af FROM dbsnp ORDER BY chrom, pos")
	if err != nil {
		return fmt.Errorf("query dbsnp for preload: %w", err)
	}
	defer rows.Close()

	cache := make(map[string][]entry)
	for rows.Next() {
		var chrom string
		var e entry
		if err := rows.Scan(&chrom, &e.pos, &e.ref, &e.alt, &e.rsid, &e.af); err != nil {
			return fmt.Errorf("scan preload row: %w", err)
		}
		cache[chrom] = append(cache[chrom], e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("preload rows: %w", err)
	}

	s.memCache = cache
	return nil
}

// MemCacheSize returns the number of entries in the in-memory cache, or 0 if not loaded.
func (s *Store) MemCacheSize() int64 {
	if s.memCache == nil {
		return 0
	}
	var n int64
	for _, entries := range s.memCache {
		n += int64(len(entries))
	}
	return n
}

// Lookup queries a canonical, left-aligned indel.
// Uses the in-memory cache if available, otherwise falls back to DuckDB.
func (s *Store) Lookup(chrom string, pos int64, ref, alt string) (Result, bool) {
	chrom = indel.NormalizeChromName(chrom)

	// Fast path: in-memory binary search
	if s.memCache != nil {
		entries := s.memCache[chrom]
		if len(entries) == 0 {
			return Result{}, false
		}
		lo, hi := 0, len(entries)-1
		for lo <= hi {
			mid := lo + (hi-lo)/2
			if entries[mid].pos < pos {
				lo = mid + 1
			} else if entries[mid].pos > pos {
				hi = mid - 1
			} else {
				// Found pos, scan outward for the matching alleles.
				for i := mid; i >= 0 && entries[i].pos == pos; i-- {
					if entries[i].ref == ref && entries[i].alt == alt {
						return Result{RSID: entries[i].rsid, AF: float64(entries[i].af)}, true
					}
				}
				for i := mid + 1; i < len(entries) && entries[i].pos == pos; i++ {
					if entries[i].ref == ref && entries[i].alt == alt {
						return Result{RSID: entries[i].rsid, AF: float64(entries[i].af)}, true
					}
				}
				return Result{}, false
			}
		}
		return Result{}, false
	}

	// Fallback: DuckDB prepared statement
	if s.lookupPS == nil {
		ps, err := s.store.DB().Prepare(
			"SELECT rsid, af FROM dbsnp WHERE chrom=? AND pos=? AND ref=? AND alt=? LIMIT 1",
		)
		if err != nil {
			return Result{}, false
		}
		s.lookupPS = ps
	}
	var r Result
	err := s.lookupPS.QueryRow(chrom, pos, ref, alt).Scan(&r.RSID, &r.AF)
	if err != nil {
		return Result{}, false
	}
	return r, true
}

// LookupRecord queries a canonical record directly.
func (s *Store) LookupRecord(r *indel.Record) (Result, bool) {
	return s.Lookup(r.Chrom, r.Pos, r.Ref, r.Alt)
}

// Close closes the database connection.
func (s *Store) Close() error {
	var err error
	if s.lookupPS != nil {
		err = s.lookupPS.Close()
	}
	return multierr.Append(err, s.store.Close())
}

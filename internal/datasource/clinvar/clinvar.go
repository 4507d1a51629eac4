// Package clinvar provides clinical-significance lookups for indels
// backed by DuckDB. Bundles are built by `indelclass prepare clinvar`
// from a ClinVar release VCF, normalized the same way as the dbSNP
// bundle so lookups share the canonical left-aligned key space.
package clinvar

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

// Significance tiers, ordered by clinical weight.
const (
	TierNone       = 0
	TierBenign     = 1
	TierUncertain  = 2
	TierPathogenic = 3
)

// Result holds a single ClinVar lookup result.
type Result struct {
	Significance string
	Tier         int
}

type centry struct {
	sig  string
	tier uint8
}

// Store provides clinical-significance lookups backed by DuckDB.
type Store struct {
	store    *duckdb.Store
	lookupPS *sql.Stmt

	// In-memory cache: exact-match map keyed by canonical identity.
	memCache map[string]centry
}

// Open opens or creates the ClinVar bundle at the given path.
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
	if _, err := s.store.DB().Exec(`CREATE TABLE IF NOT EXISTS clinvar (
		chrom VARCHAR,
		pos BIGINT,
		ref VARCHAR,
		alt VARCHAR,
		significance VARCHAR,
		tier TINYINT
	)`); err != nil {
		return err
	}
	s.store.DB().Exec(`CREATE INDEX IF NOT EXISTS idx_clinvar_lookup ON clinvar (chrom, pos, ref, alt)`)
	return nil
}

// Loaded returns true if the bundle has data.
func (s *Store) Loaded() bool {
	var count int64
	err := s.store.DB().QueryRow("SELECT COUNT(*) FROM clinvar").Scan(&count)
	return err == nil && count > 0
}

// Count returns the number of rows in the bundle.
func (s *Store) Count() (int64, error) {
	var count int64
	err := s.store.DB().QueryRow("SELECT COUNT(*) FROM clinvar").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count clinvar rows: %w", err)
	}
	return count, nil
}

// BuildInfo returns the bundle's build provenance, if recorded.
func (s *Store) BuildInfo() (duckdb.BuildInfo, bool) {
	return s.store.ReadBuildInfo()
}

// Load streams a ClinVar release VCF into the bundle, keeping indels
// that carry a CLNSIG value. Returns the number of indels loaded.
func (s *Store) Load(vcfPath string, ref indel.SequenceSource) (int64, error) {
	s.store.DB().Exec(`DELETE FROM clinvar`)

	parser, err := vcf.NewParser(vcfPath)
	if err != nil {
		return 0, err
	}
	defer parser.Close()

	app, err := s.store.NewAppender("clinvar")
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

		sig := v.InfoString("CLNSIG")
		if sig == "" {
			continue
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
				sig, int8(ClassifySignificance(sig)),
			); err != nil {
				app.Close()
				return loaded, fmt.Errorf("append clinvar row: %w", err)
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
		Tool:    "indelclass prepare clinvar",
	})
	return loaded, err
}

// ClassifySignificance maps a CLNSIG value onto a tier. Conflicting
// interpretations rank as uncertain; the check runs first because the
// spelling "Conflicting_interpretations_of_pathogenicity" would
// otherwise match the pathogenic test.
func ClassifySignificance(clnsig string) int {
	sig := strings.ToLower(clnsig)
	switch {
	case strings.Contains(sig, "conflicting"):
		return TierUncertain
	case strings.Contains(sig, "pathogenic"):
		return TierPathogenic
	case strings.Contains(sig, "benign"):
		return TierBenign
	default:
		return TierUncertain
	}
}

// PreloadToMemory loads the bundle into an exact-match map. ClinVar
// carries far fewer indels than dbSNP, so a map per entry is fine here.
func (s *Store) PreloadToMemory() error {
	rows, err := s.store.DB().Query("SELECT chrom, pos, ref, alt, significance, tier FROM clinvar")
	if err != nil {
		return fmt.Errorf("query clinvar for preload: %w", err)
	}
	defer rows.Close()

	cache := make(map[string]centry)
	for rows.Next() {
		var chrom, ref, alt, sig string
		var pos int64
		var tier int8
		if err := rows.Scan(&chrom, &pos, &ref, &alt, &sig, &tier); err != nil {
			return fmt.Errorf("scan preload row: %w", err)
		}
		cache[cacheKey(chrom, pos, ref, alt)] = centry{sig: sig, tier: uint8(tier)}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("preload rows: %w", err)
	}

	s.memCache = cache
	return nil
}

// MemCacheSize returns the number of entries in the in-memory cache, or 0 if not loaded.
func (s *Store) MemCacheSize() int64 {
	return int64(len(s.memCache))
}

func cacheKey(chrom string, pos int64, ref, alt string) string {
	return fmt.Sprintf("%s:%d:%s:%s", chrom, pos, ref, alt)
}

// Lookup queries a canonical, left-aligned indel.
func (s *Store) Lookup(chrom string, pos int64, ref, alt string) (Result, bool) {
	chrom = indel.NormalizeChromName(chrom)

	if s.memCache != nil {
		e, ok := s.memCache[cacheKey(chrom, pos, ref, alt)]
		if !ok {
			return Result{}, false
		}
		return Result{Significance: e.sig, Tier: int(e.tier)}, true
	}

	if s.lookupPS == nil {
		ps, err := s.store.DB().Prepare(
			"SELECT significance, tier FROM clinvar WHERE chrom=? AND pos=? AND ref=? AND alt=? LIMIT 1",
		)
		if err != nil {
			return Result{}, false
		}
		s.lookupPS = ps
	}
	var r Result
	err := s.lookupPS.QueryRow(chrom, pos, ref, alt).Scan(&r.Significance, &r.Tier)
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

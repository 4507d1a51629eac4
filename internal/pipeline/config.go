// Package pipeline coordinates a classification run: validated
// configuration, shared read-only resources, and the shard-parallel
// worker loop that turns indel records into classified outcomes.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

// Input formats accepted on the command line.
const (
	FormatVCF     = "vcf"
	FormatTabular = "tabular"
)

// Well-known file names inside the data directory.
const (
	DBSNPBundle   = "dbsnp.duckdb"
	ClinvarBundle = "clinvar.duckdb"
	ExonBundle    = "exons.bed.gz"
	ModelsDir     = "models"
)

// Config holds every recognized option for a classification run.
// Values come from flags, environment, and the config file; Validate
// settles them once before any resource is opened.
type Config struct {
	Input     string // calls file, or "-" for stdin
	Format    string // vcf or tabular
	Alignment string // BAM with .bai index alongside
	Reference string // FASTA with .fai index alongside
	DataDir   string // annotation bundles and model artifacts
	Panel     string // optional panel of known germline indels
	Output    string // output VCF, or "-"/"" for stdout

	MapQUnique int // mapping quality required of counted reads
	MinSupport int // supporting reads required for model classification
	Jobs       int // worker count; 0 means one worker per CPU
}

// DefaultConfig returns the documented defaults: STAR's unique-mapper
// quality 255, minimum support 1, single worker, VCF input.
func DefaultConfig() Config {
	return Config{
		Format:     FormatVCF,
		MapQUnique: 255,
		MinSupport: 1,
		Jobs:       1,
	}
}

// MissingResourceError is a fatal startup condition: a file the run
// cannot proceed without is absent or unreadable.
type MissingResourceError struct {
	Role string // what the file is to the run
	Path string
}

func (e *MissingResourceError) Error() string {
	return fmt.Sprintf("missing %s: %s", e.Role, e.Path)
}

// DBSNPPath returns the dbSNP bundle location inside the data directory.
func (c *Config) DBSNPPath() string {
	return filepath.Join(c.DataDir, DBSNPBundle)
}

// ClinvarPath returns the ClinVar bundle location inside the data directory.
func (c *Config) ClinvarPath() string {
	return filepath.Join(c.DataDir, ClinvarBundle)
}

// ExonPath returns the coding-exon bundle location, preferring the
// gzipped spelling and falling back to the plain one.
func (c *Config) ExonPath() string {
	gz := filepath.Join(c.DataDir, ExonBundle)
	if _, err := os.Stat(gz); err == nil {
		return gz
	}
	return filepath.Join(c.DataDir, "exons.bed")
}

// ModelsPath returns the model artifact directory.
func (c *Config) ModelsPath() string {
	return filepath.Join(c.DataDir, ModelsDir)
}

// Validate checks the configuration and the presence of every required
// file. All fatal conditions surface here, before workers exist.
func (c *Config) Validate() error {
	switch c.Format {
	case FormatVCF, FormatTabular:
	default:
		return fmt.Errorf("unknown input format %q (want %s or %s)", c.Format, FormatVCF, FormatTabular)
	}
	if c.MapQUnique < 0 || c.MapQUnique > 255 {
		return fmt.Errorf("mapq threshold %d out of range 0-255", c.MapQUnique)
	}
	if c.MinSupport < 1 {
		return fmt.Errorf("min support %d must be at least 1", c.MinSupport)
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs %d must not be negative", c.Jobs)
	}

	if c.Input == "" {
		return fmt.Errorf("no input file given")
	}
	if c.Input != "-" {
		if err := statResource("input calls", c.Input); err != nil {
			return err
		}
	}

	if c.Alignment == "" {
		return fmt.Errorf("no alignment file given")
	}
	if err := statResource("alignment", c.Alignment); err != nil {
		return err
	}
	if err := statResource("alignment index", c.Alignment+".bai"); err != nil {
		return err
	}

	if c.Reference == "" {
		return fmt.Errorf("no reference file given")
	}
	if err := statResource("reference", c.Reference); err != nil {
		return err
	}
	if err := statResource("reference index", c.Reference+".fai"); err != nil {
		return err
	}

	if c.DataDir == "" {
		return fmt.Errorf("no data directory given")
	}
	if err := statResource("data directory", c.DataDir); err != nil {
		return err
	}
	if err := statResource("dbsnp bundle", c.DBSNPPath()); err != nil {
		return err
	}
	if err := statResource("clinvar bundle", c.ClinvarPath()); err != nil {
		return err
	}
	if err := statResource("exon bundle", c.ExonPath()); err != nil {
		return err
	}
	if err := statResource("model manifest", filepath.Join(c.ModelsPath(), "manifest.yaml")); err != nil {
		return err
	}

	if c.Panel != "" {
		if err := statResource("panel", c.Panel); err != nil {
			return err
		}
	}

	return nil
}

func statResource(role, path string) error {
	if _, err := os.Stat(path); err != nil {
		return &MissingResourceError{Role: role, Path: path}
	}
	return nil
}

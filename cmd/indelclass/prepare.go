package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cormorant-bio/indelclass/internal/datasource/clinvar"
	"github.com/cormorant-bio/indelclass/internal/datasource/dbsnp"
	"github.com/cormorant-bio/indelclass/internal/evidence"
	"github.com/cormorant-bio/indelclass/internal/indel"
	"github.com/cormorant-bio/indelclass/internal/pipeline"
)

var prepareKeys = []string{"data-dir", "ref"}

func newPrepareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Build annotation bundles in the data directory",
		Long: `Prepare converts public release files into the query bundles classify
reads at startup. Indels are normalized and left-aligned during the build so
lookups at classification time are exact string matches.`,
	}
	cmd.AddCommand(newPrepareDBSNPCmd(), newPrepareClinvarCmd())
	return cmd
}

func newPrepareDBSNPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dbsnp <release.vcf.gz>",
		Short: "Build the dbSNP bundle from a dbSNP release VCF",
		Example: `  indelclass prepare dbsnp GCF_000001405.40.vcf.gz -d /data/indelclass -r genome.fa`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd, prepareKeys...)
			return runPrepare(args[0], pipeline.DBSNPBundle, func(dbPath, vcfPath string, ref indel.SequenceSource) (int64, error) {
				store, err := dbsnp.Open(dbPath)
				if err != nil {
					return 0, err
				}
				n, err := store.Load(vcfPath, ref)
				if cerr := store.Close(); err == nil {
					err = cerr
				}
				return n, err
			})
		},
	}
	addPrepareFlags(cmd)
	return cmd
}

func newPrepareClinvarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinvar <release.vcf.gz>",
		Short: "Build the ClinVar bundle from a ClinVar release VCF",
		Example: `  indelclass prepare clinvar clinvar.vcf.gz -d /data/indelclass -r genome.fa`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd, prepareKeys...)
			return runPrepare(args[0], pipeline.ClinvarBundle, func(dbPath, vcfPath string, ref indel.SequenceSource) (int64, error) {
				store, err := clinvar.Open(dbPath)
				if err != nil {
					return 0, err
				}
				n, err := store.Load(vcfPath, ref)
				if cerr := store.Close(); err == nil {
					err = cerr
				}
				return n, err
			})
		},
	}
	addPrepareFlags(cmd)
	return cmd
}

func addPrepareFlags(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringP("data-dir", "d", "", "directory to write the bundle into")
	fl.StringP("ref", "r", "", "reference genome FASTA (indexed)")
}

// runPrepare builds a bundle into a temp file and renames it over the
// final path, so a crashed or interrupted build never leaves a half
// written bundle where classify would find it.
func runPrepare(vcfPath, bundle string, build func(dbPath, vcfPath string, ref indel.SequenceSource) (int64, error)) error {
	log := newLogger(viper.GetBool("verbose"))
	defer func() { _ = log.Sync() }()

	dataDir := viper.GetString("data-dir")
	refPath := viper.GetString("ref")
	if dataDir == "" {
		return fmt.Errorf("--data-dir is required")
	}
	if refPath == "" {
		return fmt.Errorf("--ref is required")
	}
	if _, err := os.Stat(vcfPath); err != nil {
		return &pipeline.MissingResourceError{Role: "release VCF", Path: vcfPath}
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ref, err := evidence.OpenFasta(refPath)
	if err != nil {
		return err
	}
	defer ref.Close()

	final := filepath.Join(dataDir, bundle)
	tmp := filepath.Join(dataDir, fmt.Sprintf(".%s.%s.tmp", bundle, uuid.NewString()))
	defer os.Remove(tmp)

	log.Info("building bundle",
		zap.String("bundle", bundle),
		zap.String("release", vcfPath))
	start := time.Now()
	n, err := build(tmp, vcfPath, ref)
	if err != nil {
		return fmt.Errorf("build %s: %w", bundle, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("install %s: %w", bundle, err)
	}
	log.Info("bundle ready",
		zap.String("path", final),
		zap.Int64("indels", n),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cormorant-bio/indelclass/internal/evidence"
	"github.com/cormorant-bio/indelclass/internal/indel"
	"github.com/cormorant-bio/indelclass/internal/output"
	"github.com/cormorant-bio/indelclass/internal/pipeline"
	"github.com/cormorant-bio/indelclass/internal/tabular"
	"github.com/cormorant-bio/indelclass/internal/vcf"
)

var classifyKeys = []string{
	"bam", "ref", "data-dir", "format", "panel", "output",
	"mapq", "min-support", "jobs",
}

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <calls>",
		Short: "Classify indel calls as somatic, germline, or artifact",
		Long: `Classify reads indel calls from a VCF or tabular file, gathers read-level
evidence from the tumor BAM, and writes an annotated VCF with the predicted
class and probabilities. Non-indel VCF lines pass through unchanged. Use "-"
to read calls from stdin.`,
		Example: `  indelclass classify calls.vcf -b tumor.bam -r genome.fa -d /data/indelclass -o classified.vcf
  indelclass classify calls.txt --format tabular -b tumor.bam -r genome.fa -d /data/indelclass`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd, classifyKeys...)
			return runClassify(cmd, args[0])
		},
	}

	fl := cmd.Flags()
	fl.StringP("bam", "b", "", "tumor RNA-seq alignment (BAM, indexed)")
	fl.StringP("ref", "r", "", "reference genome FASTA (indexed)")
	fl.StringP("data-dir", "d", "", "directory holding annotation bundles and models")
	fl.String("format", pipeline.FormatVCF, "input format: vcf or tabular")
	fl.String("panel", "", "panel of known non-somatic indels (VCF)")
	fl.StringP("output", "o", "", "output VCF path (default stdout)")
	fl.Int("mapq", pipeline.DefaultConfig().MapQUnique, "mapping quality marking uniquely mapped reads")
	fl.Int("min-support", pipeline.DefaultConfig().MinSupport, "supporting reads required to consult the model")
	fl.IntP("jobs", "p", 1, "parallel workers (0 = all CPUs)")

	return cmd
}

func classifyConfig(input string) pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Input = input
	cfg.Format = viper.GetString("format")
	cfg.Alignment = viper.GetString("bam")
	cfg.Reference = viper.GetString("ref")
	cfg.DataDir = viper.GetString("data-dir")
	cfg.Panel = viper.GetString("panel")
	cfg.Output = viper.GetString("output")
	cfg.MapQUnique = viper.GetInt("mapq")
	cfg.MinSupport = viper.GetInt("min-support")
	cfg.Jobs = viper.GetInt("jobs")
	return cfg
}

func runClassify(cmd *cobra.Command, input string) error {
	log := newLogger(viper.GetBool("verbose"))
	defer func() { _ = log.Sync() }()

	cfg := classifyConfig(input)
	if err := cfg.Validate(); err != nil {
		return err
	}

	start := time.Now()
	records, passthrough, headerLines, skipped, err := readCalls(&cfg, log)
	if err != nil {
		return err
	}
	log.Info("parsed calls",
		zap.String("input", cfg.Input),
		zap.Int("indels", len(records)),
		zap.Int("passthrough", len(passthrough)),
		zap.Int("skipped", skipped))

	ctx := cmd.Context()
	res, err := pipeline.LoadResources(ctx, &cfg, log)
	if err != nil {
		return err
	}
	defer res.Close()

	runner := pipeline.NewRunner(&cfg, res)
	runner.SetLogger(log)
	outcomes, err := runner.Run(ctx, records)
	if err != nil {
		return err
	}

	out := os.Stdout
	if cfg.Output != "" && cfg.Output != "-" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	writer := output.NewWriter(out, headerLines, version)
	if cfg.Format == pipeline.FormatTabular {
		// Tabular calls carry no VCF alleles, so rendering them needs
		// the reference to anchor insertions and deletions.
		ref, err := evidence.OpenFasta(cfg.Reference)
		if err != nil {
			return err
		}
		defer ref.Close()
		writer.SetReference(ref)
	}
	if err := writer.WriteAll(outcomes, passthrough); err != nil {
		return err
	}

	summary := output.Summarize(outcomes, len(passthrough), skipped)
	summary.Write(os.Stderr)
	log.Info("classification done",
		zap.Int("somatic", summary.Somatic),
		zap.Int("germline", summary.Germline),
		zap.Int("artifact", summary.Artifact),
		zap.Int("unclassified", summary.Unclassified),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// readCalls parses the input into indel records plus, for VCF input, the
// non-indel lines to pass through. Unparseable lines are counted and
// skipped rather than aborting the run.
func readCalls(cfg *pipeline.Config, log *zap.Logger) ([]*indel.Record, []*vcf.Variant, []string, int, error) {
	var (
		parser      vcf.VariantParser
		headerLines []string
	)
	switch cfg.Format {
	case pipeline.FormatTabular:
		p, err := tabular.NewParser(cfg.Input)
		if err != nil {
			return nil, nil, nil, 0, err
		}
		parser = p
	default:
		p, err := vcf.NewParser(cfg.Input)
		if err != nil {
			return nil, nil, nil, 0, err
		}
		headerLines = p.Header()
		parser = p
	}
	defer parser.Close()

	var (
		records     []*indel.Record
		passthrough []*vcf.Variant
		skipped     int
	)
	for {
		v, err := parser.Next()
		if err != nil {
			var vcfErr *vcf.ParseError
			var tabErr *tabular.ParseError
			if errors.As(err, &vcfErr) || errors.As(err, &tabErr) {
				skipped++
				log.Warn("skipped unparseable line", zap.Error(err))
				continue
			}
			return nil, nil, nil, 0, err
		}
		if v == nil {
			break
		}

		lineIndels, lineErrors := 0, 0
		for _, sv := range vcf.SplitMultiAllelic(v) {
			rec, err := indel.FromVariant(sv, len(records))
			switch {
			case err == nil:
				records = append(records, rec)
				lineIndels++
			case errors.Is(err, indel.ErrNotIndel):
				// SNVs, MNVs, and symbolic alleles are not ours to classify.
			default:
				lineErrors++
				log.Warn("skipped malformed call",
					zap.Int("line", v.Line), zap.Error(err))
			}
		}
		switch {
		case lineIndels > 0:
		case lineErrors > 0:
			skipped++
		case cfg.Format == pipeline.FormatVCF:
			passthrough = append(passthrough, v)
		default:
			skipped++
		}
	}
	return records, passthrough, headerLines, skipped, nil
}

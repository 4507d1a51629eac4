package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cormorant-bio/indelclass/internal/evidence"
	"github.com/cormorant-bio/indelclass/internal/indel"
	"github.com/cormorant-bio/indelclass/internal/pipeline"
	"github.com/cormorant-bio/indelclass/internal/vcf"
)

const recInfoLine = `##INFO=<ID=REC,Number=1,Type=Integer,Description="Number of cohort samples carrying this somatic indel">`

func newRecurCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recur <classified.vcf>...",
		Short: "Annotate somatic indels recurring across a cohort",
		Long: `Recur counts somatic predictions shared across classified output files and
rewrites each file in place, adding REC=<n> to somatic indels found in more
than one sample. Recurrent indels in RNA-seq cohorts are enriched for
artifacts at error-prone sites, so REC is a review signal, not a filter.

Only files produced by classify are accepted; others are skipped.`,
		Example: `  indelclass recur cohort/*.out.vcf -r genome.fa`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd, "ref")
			return runRecur(args)
		},
	}
	cmd.Flags().StringP("ref", "r", "", "reference genome FASTA (indexed)")
	return cmd
}

func runRecur(paths []string) error {
	log := newLogger(viper.GetBool("verbose"))
	defer func() { _ = log.Sync() }()

	refPath := viper.GetString("ref")
	if refPath == "" {
		return fmt.Errorf("--ref is required")
	}
	ref, err := evidence.OpenFasta(refPath)
	if err != nil {
		return err
	}
	defer ref.Close()

	start := time.Now()
	var cohort []string
	for _, path := range paths {
		ok, err := isClassifiedVCF(path)
		if err != nil {
			return err
		}
		if !ok {
			log.Warn("not an indelclass output, skipping", zap.String("path", path))
			continue
		}
		cohort = append(cohort, path)
	}
	if len(cohort) < 2 {
		return fmt.Errorf("recurrence needs at least 2 classified files, have %d", len(cohort))
	}

	counts := make(map[string]int)
	for _, path := range cohort {
		keys, err := somaticKeys(path, ref)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for key := range keys {
			counts[key]++
		}
	}

	recurrent := 0
	for _, n := range counts {
		if n > 1 {
			recurrent++
		}
	}

	for _, path := range cohort {
		if err := annotateRecurrence(path, counts, ref); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	log.Info("cohort annotated",
		zap.Int("samples", len(cohort)),
		zap.Int("somatic", len(counts)),
		zap.Int("recurrent", recurrent),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// isClassifiedVCF reports whether the file header carries the classify
// source line.
func isClassifiedVCF(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "#") {
			break
		}
		if strings.HasPrefix(line, "##source=indelclass") {
			return true, nil
		}
	}
	return false, sc.Err()
}

// somaticKeys collects the canonical keys of the somatic predictions in
// one classified file. Keys are left-aligned so the same indel matches
// across samples regardless of how each caller spelled it.
func somaticKeys(path string, ref indel.SequenceSource) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	keys := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") || !isSomaticLine(line) {
			continue
		}
		key, err := lineKey(line, ref)
		if err != nil {
			continue
		}
		keys[key] = struct{}{}
	}
	return keys, sc.Err()
}

// annotateRecurrence rewrites one file, inserting the REC header line and
// appending REC=<n> to somatic rows seen in more than one sample. The
// rewrite goes through a temp file so the original survives a failure.
func annotateRecurrence(path string, counts map[string]int, ref indel.SequenceSource) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	tmpPath := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "#CHROM"):
			if _, err := fmt.Fprintln(w, recInfoLine); err != nil {
				return err
			}
		case line == recInfoLine:
			// Rerunning recur must not stack header lines.
			continue
		case !strings.HasPrefix(line, "#") && isSomaticLine(line):
			line = updateRecField(line, counts, ref)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func isSomaticLine(line string) bool {
	return strings.Contains(line, "PRED=somatic")
}

// lineKey derives the canonical left-aligned key for the first indel
// allele on a VCF data line.
func lineKey(line string, ref indel.SequenceSource) (string, error) {
	cols := strings.SplitN(line, "\t", 9)
	if len(cols) < 8 {
		return "", fmt.Errorf("short VCF line")
	}
	pos, err := strconv.ParseInt(cols[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad position %q", cols[1])
	}
	for _, alt := range strings.Split(cols[4], ",") {
		rec, err := indel.FromVariant(&vcf.Variant{
			Chrom: cols[0],
			Pos:   pos,
			Ref:   cols[3],
			Alt:   alt,
		}, 0)
		if err != nil {
			continue
		}
		aligned, err := indel.LeftAlign(rec, ref)
		if err != nil {
			return "", err
		}
		return aligned.Key(), nil
	}
	return "", fmt.Errorf("no indel allele")
}

// updateRecField rewrites the INFO column of a somatic row: any previous
// REC annotation is dropped, and a fresh one is appended when the indel
// occurs in more than one cohort sample. Rerunning recur on a changed
// cohort therefore replaces stale counts instead of accumulating them.
func updateRecField(line string, counts map[string]int, ref indel.SequenceSource) string {
	cols := strings.Split(line, "\t")
	if len(cols) < 8 {
		return line
	}
	info := stripRecField(cols[7])
	if key, err := lineKey(line, ref); err == nil {
		if n := counts[key]; n > 1 {
			if info == "" || info == "." {
				info = fmt.Sprintf("REC=%d", n)
			} else {
				info += fmt.Sprintf(";REC=%d", n)
			}
		}
	}
	cols[7] = info
	return strings.Join(cols, "\t")
}

// stripRecField removes a previous REC annotation from an INFO string.
func stripRecField(info string) string {
	fields := strings.Split(info, ";")
	kept := fields[:0]
	for _, f := range fields {
		if strings.HasPrefix(f, "REC=") {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, ";")
}

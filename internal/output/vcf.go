// Package output renders classified indels as an annotated VCF and
// aggregates the run summary.
package output

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/cormorant-bio/indelclass/internal/indel"
	"github.com/cormorant-bio/indelclass/internal/pipeline"
	"github.com/cormorant-bio/indelclass/internal/vcf"
)

// INFO definitions appended to the header, in output order.
var infoLines = []string{
	`##INFO=<ID=PRED,Number=1,Type=String,Description="Predicted class: somatic, germline, artifact, or unclassified">`,
	`##INFO=<ID=PROB,Number=3,Type=Float,Description="Probabilities of somatic, germline, artifact">`,
	`##INFO=<ID=DSRC,Number=1,Type=String,Description="Decision source: model, panel_override, or insufficient_evidence">`,
	`##INFO=<ID=VAF,Number=1,Type=Float,Description="Variant allele fraction over filtered spanning reads">`,
	`##INFO=<ID=DP,Number=1,Type=Integer,Description="Filtered reads spanning the indel locus">`,
	`##INFO=<ID=AC,Number=1,Type=Integer,Description="Filtered reads supporting the indel">`,
	`##INFO=<ID=DB,Number=0,Type=Flag,Description="Known in dbSNP">`,
	`##INFO=<ID=PAF,Number=1,Type=Float,Description="Population allele frequency from dbSNP">`,
	`##INFO=<ID=CLIN,Number=1,Type=String,Description="ClinVar clinical significance">`,
	`##INFO=<ID=CODING,Number=0,Type=Flag,Description="Overlaps a coding exon">`,
	`##INFO=<ID=FRAME,Number=1,Type=Integer,Description="Reading frame offset at the indel position">`,
	`##INFO=<ID=PANEL,Number=0,Type=Flag,Description="Matches the non-somatic panel">`,
	`##INFO=<ID=HPOL,Number=1,Type=Integer,Description="Homopolymer run length at the indel position">`,
	`##INFO=<ID=REP,Number=1,Type=Integer,Description="Copies of the indel sequence repeated at the locus">`,
	`##INFO=<ID=FAIL,Number=1,Type=String,Description="Reason the record could not be processed">`,
}

// Writer writes the annotated output VCF: classified rows with the
// prediction INFO fields appended, pass-through rows byte-identical to
// the input.
type Writer struct {
	w           *bufio.Writer
	headerLines []string // original input header, empty for tabular input
	version     string
	ref         indel.SequenceSource // anchors rows that lack a VCF spelling
}

// NewWriter creates a writer. headerLines are the input VCF header
// lines including #CHROM; pass nil for tabular input and the writer
// synthesizes a minimal header.
func NewWriter(w io.Writer, headerLines []string, version string) *Writer {
	return &Writer{
		w:           bufio.NewWriter(w),
		headerLines: headerLines,
		version:     version,
	}
}

// SetReference provides reference access for records parsed from
// tabular input, whose VCF spelling needs an anchor base.
func (wr *Writer) SetReference(src indel.SequenceSource) {
	wr.ref = src
}

// WriteAll writes the header and every row in coordinate order, then
// flushes. Outcomes are expected sorted already (the coordinator's
// contract); pass-through rows are merged in by position, ties broken
// by input line order.
func (wr *Writer) WriteAll(outcomes []*pipeline.Outcome, passthrough []*vcf.Variant) error {
	if err := wr.WriteHeader(); err != nil {
		return err
	}

	pass := make([]*vcf.Variant, len(passthrough))
	copy(pass, passthrough)
	sort.SliceStable(pass, func(i, j int) bool {
		if c := indel.CompareChrom(pass[i].Chrom, pass[j].Chrom); c != 0 {
			return c < 0
		}
		return pass[i].Pos < pass[j].Pos
	})

	i, j := 0, 0
	for i < len(outcomes) && j < len(pass) {
		if outcomeFirst(outcomes[i], pass[j]) {
			if err := wr.WriteOutcome(outcomes[i]); err != nil {
				return err
			}
			i++
		} else {
			if err := wr.WritePassthrough(pass[j]); err != nil {
				return err
			}
			j++
		}
	}
	for ; i < len(outcomes); i++ {
		if err := wr.WriteOutcome(outcomes[i]); err != nil {
			return err
		}
	}
	for ; j < len(pass); j++ {
		if err := wr.WritePassthrough(pass[j]); err != nil {
			return err
		}
	}

	return wr.Flush()
}

// outcomeFirst orders a classified row against a pass-through row:
// genomic coordinate first, then original line order.
func outcomeFirst(o *pipeline.Outcome, v *vcf.Variant) bool {
	if c := indel.CompareChrom(o.Record.Chrom, v.Chrom); c != 0 {
		return c < 0
	}
	oPos := o.Record.Pos
	if org := o.Record.Origin; org != nil {
		oPos = org.Pos
	}
	if oPos != v.Pos {
		return oPos < v.Pos
	}
	if org := o.Record.Origin; org != nil {
		return org.Line <= v.Line
	}
	return true
}

// WriteHeader writes the input header with the ##source line and the
// INFO definitions inserted before #CHROM. Without input header lines
// a minimal VCF header is synthesized.
func (wr *Writer) WriteHeader() error {
	ours := make([]string, 0, len(infoLines)+1)
	ours = append(ours, "##source=indelclass "+wr.version)
	ours = append(ours, infoLines...)

	if len(wr.headerLines) == 0 {
		lines := append([]string{"##fileformat=VCFv4.2"}, ours...)
		lines = append(lines, "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO")
		for _, line := range lines {
			if _, err := wr.w.WriteString(line + "\n"); err != nil {
				return err
			}
		}
		return nil
	}

	wroteOurs := false
	for _, line := range wr.headerLines {
		if strings.HasPrefix(line, "#CHROM") {
			for _, l := range ours {
				if _, err := wr.w.WriteString(l + "\n"); err != nil {
					return err
				}
			}
			wroteOurs = true
		}
		if _, err := wr.w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	if !wroteOurs {
		for _, l := range ours {
			if _, err := wr.w.WriteString(l + "\n"); err != nil {
				return err
			}
		}
	}
	return nil
}

// WritePassthrough re-emits an input line unchanged.
func (wr *Writer) WritePassthrough(v *vcf.Variant) error {
	if _, err := wr.w.WriteString(v.Raw); err != nil {
		return err
	}
	return wr.w.WriteByte('\n')
}

// WriteOutcome writes one classified row. The input identity columns
// are re-emitted as parsed; records from tabular input get their VCF
// spelling anchored against the reference.
func (wr *Writer) WriteOutcome(o *pipeline.Outcome) error {
	v := o.Record.Origin

	pos := o.Record.Pos
	ref := o.Record.Ref
	alt := o.Record.Alt
	id := "."
	qual := "."
	filter := "."
	rawInfo := ""
	samples := ""

	if v != nil {
		pos = v.Pos
		ref = v.Ref
		alt = v.Alt
		if v.ID != "" {
			id = v.ID
		}
		if v.Qual != 0 {
			qual = strconv.FormatFloat(v.Qual, 'g', -1, 64)
		}
		if v.Filter != "" {
			filter = v.Filter
		}
		rawInfo = v.RawInfo
		samples = v.SampleColumns
	}

	if ref == "-" || alt == "-" {
		if wr.ref == nil {
			return fmt.Errorf("write %s: no reference to anchor VCF alleles", o.Record)
		}
		var err error
		pos, ref, alt, err = indel.ToVCFAlleles(o.Record, wr.ref)
		if err != nil {
			return fmt.Errorf("write %s: %w", o.Record, err)
		}
	}

	if (id == "." || id == "") && o.Flags.RSID != "" {
		id = o.Flags.RSID
	}

	var lb strings.Builder
	lb.Grow(256)
	lb.WriteString(o.Record.Chrom)
	lb.WriteByte('\t')
	lb.WriteString(strconv.FormatInt(pos, 10))
	lb.WriteByte('\t')
	lb.WriteString(id)
	lb.WriteByte('\t')
	lb.WriteString(ref)
	lb.WriteByte('\t')
	lb.WriteString(alt)
	lb.WriteByte('\t')
	lb.WriteString(qual)
	lb.WriteByte('\t')
	lb.WriteString(filter)
	lb.WriteByte('\t')

	info := wr.classificationInfo(o)
	if rawInfo != "" && rawInfo != "." {
		lb.WriteString(rawInfo)
		lb.WriteByte(';')
	}
	lb.WriteString(info)

	if samples != "" {
		lb.WriteByte('\t')
		lb.WriteString(samples)
	}
	lb.WriteByte('\n')

	_, err := wr.w.WriteString(lb.String())
	return err
}

// classificationInfo renders the prediction INFO fields for one row.
func (wr *Writer) classificationInfo(o *pipeline.Outcome) string {
	var b strings.Builder
	b.Grow(128)

	if o.Failed() {
		b.WriteString("PRED=unclassified;FAIL=")
		b.WriteString(sanitizeInfoValue(o.Err.Error()))
		return b.String()
	}

	fmt.Fprintf(&b, "PRED=%s", o.Result.Label)
	p := o.Result.Probs
	fmt.Fprintf(&b, ";PROB=%.3f,%.3f,%.3f", p[0], p[1], p[2])
	fmt.Fprintf(&b, ";DSRC=%s", o.Result.Source)
	fmt.Fprintf(&b, ";VAF=%.3f;DP=%d;AC=%d", o.Evidence.VAF, o.Evidence.Depth, o.Evidence.AltCount)

	if o.Flags.OnDBSNP {
		b.WriteString(";DB")
		fmt.Fprintf(&b, ";PAF=%.4g", o.Flags.PopAF)
	}
	if o.Flags.ClinvarSig != "" {
		fmt.Fprintf(&b, ";CLIN=%s", sanitizeInfoValue(o.Flags.ClinvarSig))
	}
	if o.Flags.Coding {
		b.WriteString(";CODING")
		fmt.Fprintf(&b, ";FRAME=%d", o.Flags.Frame)
	}
	if o.Flags.InPanel {
		b.WriteString(";PANEL")
	}
	if o.Evidence.HomopolymerLen > 0 {
		fmt.Fprintf(&b, ";HPOL=%d", o.Evidence.HomopolymerLen)
	}
	if o.Evidence.RepeatCount > 0 {
		fmt.Fprintf(&b, ";REP=%d", o.Evidence.RepeatCount)
	}
	return b.String()
}

// Flush flushes the underlying writer.
func (wr *Writer) Flush() error {
	return wr.w.Flush()
}

// sanitizeInfoValue replaces characters that would break INFO parsing.
func sanitizeInfoValue(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ';', ',', '=', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, s)
}

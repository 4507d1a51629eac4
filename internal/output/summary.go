package output

import (
	"fmt"
	"io"

	"github.com/cormorant-bio/indelclass/internal/classify"
	"github.com/cormorant-bio/indelclass/internal/pipeline"
)

// Failure records one record that could not be processed.
type Failure struct {
	Indel  string
	Reason string
}

// Summary aggregates a classification run: label totals, pass-through
// and skipped line counts, and every per-record failure.
type Summary struct {
	Total        int // classified records, failures included
	Somatic      int
	Germline     int
	Artifact     int
	Unclassified int
	Failed       int
	Passthrough  int // input rows re-emitted unchanged
	Skipped      int // input lines that did not parse
	Failures     []Failure
}

// Summarize tallies the outcomes of a run.
func Summarize(outcomes []*pipeline.Outcome, passthrough, skipped int) Summary {
	s := Summary{
		Total:       len(outcomes),
		Passthrough: passthrough,
		Skipped:     skipped,
	}
	for _, o := range outcomes {
		if o.Failed() {
			s.Failed++
			s.Failures = append(s.Failures, Failure{
				Indel:  o.Record.String(),
				Reason: o.Err.Error(),
			})
			continue
		}
		switch o.Result.Label {
		case classify.LabelSomatic:
			s.Somatic++
		case classify.LabelGermline:
			s.Germline++
		case classify.LabelArtifact:
			s.Artifact++
		default:
			s.Unclassified++
		}
	}
	return s
}

// Write renders the summary as a text block.
func (s *Summary) Write(w io.Writer) {
	fmt.Fprintf(w, "\nClassification Summary:\n")
	fmt.Fprintf(w, "  Indels classified:  %d\n", s.Total)
	fmt.Fprintf(w, "    somatic:          %d\n", s.Somatic)
	fmt.Fprintf(w, "    germline:         %d\n", s.Germline)
	fmt.Fprintf(w, "    artifact:         %d\n", s.Artifact)
	fmt.Fprintf(w, "    unclassified:     %d\n", s.Unclassified)
	if s.Failed > 0 {
		fmt.Fprintf(w, "    failed:           %d\n", s.Failed)
	}
	fmt.Fprintf(w, "  Passed through:     %d\n", s.Passthrough)
	fmt.Fprintf(w, "  Skipped lines:      %d\n", s.Skipped)
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  FAILED %s: %s\n", f.Indel, f.Reason)
	}
}

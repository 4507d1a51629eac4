package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cormorant-bio/indelclass/internal/annotate"
	"github.com/cormorant-bio/indelclass/internal/classify"
	"github.com/cormorant-bio/indelclass/internal/evidence"
	"github.com/cormorant-bio/indelclass/internal/features"
	"github.com/cormorant-bio/indelclass/internal/indel"
)

// Outcome is the full processing result for one input record. When Err
// is set the record failed inside a worker; the remaining fields hold
// whatever stages completed before the failure.
type Outcome struct {
	Record   *indel.Record // as parsed from the input
	Aligned  *indel.Record // left-aligned copy used for matching
	Flags    annotate.Flags
	Evidence evidence.Summary
	Vector   features.Vector
	Result   classify.Result
	Err      error
}

// Failed reports whether the record failed during processing.
func (o *Outcome) Failed() bool {
	return o.Err != nil
}

// shardWorker is what a shard needs from its worker. Satisfied by the
// real file-backed worker; tests substitute fakes.
type shardWorker interface {
	process(rec *indel.Record) *Outcome
	close() error
}

// Runner executes classification runs against loaded resources.
type Runner struct {
	cfg       *Config
	res       *Resources
	log       *zap.Logger
	newWorker func() (shardWorker, error)
}

// NewRunner creates a runner. The logger defaults to a no-op.
func NewRunner(cfg *Config, res *Resources) *Runner {
	r := &Runner{cfg: cfg, res: res, log: zap.NewNop()}
	r.newWorker = r.openWorker
	return r
}

// SetLogger sets the logger for progress and per-record failures.
func (r *Runner) SetLogger(log *zap.Logger) {
	r.log = log
}

// Run processes the records in contiguous shards, one worker per
// shard, and returns outcomes in (chromosome rank, position) order.
// Workers capture per-record failures into the outcome and keep going;
// Run itself fails only on worker setup errors or cancellation.
func (r *Runner) Run(ctx context.Context, records []*indel.Record) ([]*Outcome, error) {
	outcomes := make([]*Outcome, len(records))
	if len(records) == 0 {
		return outcomes, nil
	}

	jobs := r.cfg.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if jobs > len(records) {
		jobs = len(records)
	}
	shardSize := (len(records) + jobs - 1) / jobs

	g, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(records); lo += shardSize {
		hi := min(lo+shardSize, len(records))
		g.Go(func() error {
			return r.runShard(ctx, records[lo:hi], outcomes[lo:hi])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Outcomes sit in source order already; a stable sort by genomic
	// coordinate keeps that order within a position.
	sort.SliceStable(outcomes, func(i, j int) bool {
		return indel.Less(outcomes[i].Record, outcomes[j].Record)
	})
	return outcomes, nil
}

// runShard processes one contiguous slice of records with its own file
// handles.
func (r *Runner) runShard(ctx context.Context, records []*indel.Record, out []*Outcome) error {
	w, err := r.newWorker()
	if err != nil {
		return err
	}
	defer w.close()

	for i, rec := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		o := w.process(rec)
		if o.Err != nil {
			r.log.Warn("record failed",
				zap.String("indel", rec.String()),
				zap.Error(o.Err))
		}
		out[i] = o
	}
	return nil
}

// worker holds the per-shard state: private BAM and reference handles
// plus the stages wired to the shared resources. seq is the reference
// handle behind its interface, separable so tests run process on
// synthetic sequence.
type worker struct {
	bam       *evidence.BamSource
	ref       *evidence.FastaSource
	seq       indel.SequenceSource
	extractor *evidence.Extractor
	resolver  *annotate.Resolver
	ensemble  *classify.Ensemble
}

func (r *Runner) openWorker() (shardWorker, error) {
	bam, err := evidence.OpenBam(r.cfg.Alignment)
	if err != nil {
		return nil, err
	}
	ref, err := evidence.OpenFasta(r.cfg.Reference)
	if err != nil {
		bam.Close()
		return nil, err
	}

	var pl annotate.PanelLookup
	if r.res.Panel != nil {
		pl = r.res.Panel
	}

	return &worker{
		bam: bam,
		ref: ref,
		seq: ref,
		extractor: evidence.New(bam, ref, evidence.Config{
			MapQUnique: r.cfg.MapQUnique,
			MinSupport: r.cfg.MinSupport,
		}),
		resolver: annotate.NewResolver(r.res.Exons, r.res.DBSNP, r.res.Clinvar, pl),
		ensemble: r.res.Ensemble,
	}, nil
}

func (w *worker) close() error {
	return multierr.Append(w.bam.Close(), w.ref.Close())
}

// process runs every stage for one record. Panics and stage errors
// land on the outcome, never escape the worker.
func (w *worker) process(rec *indel.Record) (out *Outcome) {
	out = &Outcome{Record: rec}
	defer func() {
		if p := recover(); p != nil {
			out.Err = fmt.Errorf("panic: %v", p)
		}
	}()

	aligned, err := indel.LeftAlign(rec, w.seq)
	if err != nil {
		out.Err = fmt.Errorf("left align: %w", err)
		return out
	}
	out.Aligned = aligned

	ev, err := w.extractor.Extract(aligned)
	if err != nil {
		out.Err = fmt.Errorf("extract evidence: %w", err)
		return out
	}
	out.Evidence = ev

	out.Flags = w.resolver.Resolve(aligned)
	out.Vector = features.Assemble(aligned, &out.Flags, &ev)

	result, err := w.ensemble.Decide(aligned, out.Flags.InPanel, ev.Insufficient, out.Vector)
	if err != nil {
		out.Err = fmt.Errorf("classify: %w", err)
		return out
	}
	out.Result = result
	return out
}

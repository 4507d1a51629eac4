package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cormorant-bio/indelclass/internal/classify"
	"github.com/cormorant-bio/indelclass/internal/indel"
)

type fakeWorker struct {
	fn     func(rec *indel.Record) *Outcome
	closed *atomic.Int32
}

func (f *fakeWorker) process(rec *indel.Record) *Outcome {
	return f.fn(rec)
}

func (f *fakeWorker) close() error {
	f.closed.Add(1)
	return nil
}

// fakeRunner wires a Runner whose workers run the given function
// instead of opening files. Returns the runner plus counters for
// workers created and closed.
func fakeRunner(jobs int, fn func(rec *indel.Record) *Outcome) (*Runner, *atomic.Int32, *atomic.Int32) {
	var created, closed atomic.Int32
	cfg := DefaultConfig()
	cfg.Jobs = jobs
	r := NewRunner(&cfg, &Resources{})
	r.newWorker = func() (shardWorker, error) {
		created.Add(1)
		return &fakeWorker{fn: fn, closed: &closed}, nil
	}
	return r, &created, &closed
}

func echoOutcome(rec *indel.Record) *Outcome {
	return &Outcome{
		Record: rec,
		Result: classify.Result{Label: classify.LabelSomatic, Source: classify.SourceModel},
	}
}

func testRecords() []*indel.Record {
	return []*indel.Record{
		{Chrom: "7", Pos: 100, Ref: "-", Alt: "AA", SourceIdx: 0},
		{Chrom: "2", Pos: 500, Ref: "T", Alt: "-", SourceIdx: 1},
		{Chrom: "2", Pos: 300, Ref: "A", Alt: "-", SourceIdx: 2},
		{Chrom: "chrX", Pos: 10, Ref: "-", Alt: "G", SourceIdx: 3},
		{Chrom: "2", Pos: 300, Ref: "-", Alt: "CGC", SourceIdx: 4},
	}
}

func TestRun_SortsByGenomicCoordinate(t *testing.T) {
	r, _, _ := fakeRunner(2, echoOutcome)

	outcomes, err := r.Run(context.Background(), testRecords())
	require.NoError(t, err)
	require.Len(t, outcomes, 5)

	var order []int
	for _, o := range outcomes {
		require.NotNil(t, o)
		order = append(order, o.Record.SourceIdx)
	}
	// chr2:300 twice (source order preserved), chr2:500, chr7:100, chrX:10.
	assert.Equal(t, []int{2, 4, 1, 0, 3}, order)
}

func TestRun_PerRecordFailureContinues(t *testing.T) {
	r, _, _ := fakeRunner(1, func(rec *indel.Record) *Outcome {
		if rec.SourceIdx == 2 {
			return &Outcome{Record: rec, Err: errors.New("unreadable region")}
		}
		return echoOutcome(rec)
	})

	outcomes, err := r.Run(context.Background(), testRecords())
	require.NoError(t, err, "record failures must not abort the run")

	var failed int
	for _, o := range outcomes {
		if o.Failed() {
			failed++
			assert.Equal(t, 2, o.Record.SourceIdx)
			assert.ErrorContains(t, o.Err, "unreadable region")
		} else {
			assert.Equal(t, classify.LabelSomatic, o.Result.Label)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRun_OneWorkerPerShard(t *testing.T) {
	records := make([]*indel.Record, 9)
	for i := range records {
		records[i] = &indel.Record{Chrom: "1", Pos: int64(100 + i), Ref: "A", Alt: "-", SourceIdx: i}
	}

	r, created, closed := fakeRunner(3, echoOutcome)
	_, err := r.Run(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, int32(3), created.Load())
	assert.Equal(t, int32(3), closed.Load())
}

func TestRun_ClampsJobsToRecords(t *testing.T) {
	r, created, _ := fakeRunner(10, echoOutcome)
	outcomes, err := r.Run(context.Background(), testRecords()[:2])
	require.NoError(t, err)
	assert.Len(t, outcomes, 2)
	assert.Equal(t, int32(2), created.Load())
}

func TestRun_NoRecords(t *testing.T) {
	r, created, _ := fakeRunner(4, echoOutcome)
	outcomes, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Zero(t, created.Load())
}

func TestRun_WorkerSetupError(t *testing.T) {
	cfg := DefaultConfig()
	r := NewRunner(&cfg, &Resources{})
	r.newWorker = func() (shardWorker, error) {
		return nil, fmt.Errorf("open alignment: permission denied")
	}

	_, err := r.Run(context.Background(), testRecords())
	assert.ErrorContains(t, err, "permission denied")
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, _, _ := fakeRunner(1, echoOutcome)
	_, err := r.Run(ctx, testRecords())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerProcess_CapturesPanic(t *testing.T) {
	// A worker with no handles panics on the first stage; the panic must
	// land on the outcome, not escape.
	w := &worker{}
	rec := &indel.Record{Chrom: "2", Pos: 300, Ref: "AC", Alt: "-"}

	out := w.process(rec)
	require.NotNil(t, out)
	assert.True(t, out.Failed())
	assert.ErrorContains(t, out.Err, "panic")
	assert.Same(t, rec, out.Record)
}

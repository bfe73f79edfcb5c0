package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/goliatone/go-ingest/core"
)

type recordingProcessor struct {
	rows    [][]string
	failOn  map[string]error
	stopErr error
	stopAt  int
}

func (p *recordingProcessor) ProcessRow(_ context.Context, row []string) error {
	if p.stopErr != nil && len(p.rows) == p.stopAt {
		return p.stopErr
	}
	p.rows = append(p.rows, row)
	if len(row) > 0 {
		if err, ok := p.failOn[row[0]]; ok {
			return err
		}
	}
	return nil
}

type brokenStream struct {
	header []string
	rows   [][]string
	err    error
}

func (s *brokenStream) Header() []string { return s.header }

func (s *brokenStream) Next() ([]string, error) {
	if len(s.rows) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	row := s.rows[0]
	s.rows = s.rows[1:]
	return row, nil
}

func (s *brokenStream) Close() error { return nil }

func newTestCoordinator(t *testing.T, processor core.RowProcessor) (*Coordinator, *MemoryJobStore) {
	t.Helper()
	store := NewMemoryJobStore()
	coordinator := NewCoordinator(store, processor)
	coordinator.Artifacts = CSVArtifactWriter{Dir: t.TempDir()}
	return coordinator, store
}

func csvStream(t *testing.T, data string) *CSVStream {
	t.Helper()
	stream, err := NewCSVStream(strings.NewReader(data))
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	return stream
}

func TestProcessCompletesCleanRun(t *testing.T) {
	ctx := context.Background()
	processor := &recordingProcessor{}
	coordinator, _ := newTestCoordinator(t, processor)

	job, err := coordinator.CreateJob(ctx, "accounts.csv", 3)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	job, err = coordinator.Process(ctx, job.ID, csvStream(t, "id\n1\n2\n3\n"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if job.Status != core.BackfillStatusCompleted {
		t.Fatalf("expected completed job, got %s", job.Status)
	}
	if job.ProcessedRows != 3 || job.SuccessfulRows != 3 || job.FailedRows != 0 {
		t.Fatalf("unexpected counters %+v", job)
	}
	if job.CheckpointOffset != 3 {
		t.Fatalf("expected checkpoint at 3, got %d", job.CheckpointOffset)
	}
	if len(processor.rows) != 3 {
		t.Fatalf("expected 3 processed rows, got %d", len(processor.rows))
	}
}

func TestProcessCompletesWhenStreamShorterThanEstimate(t *testing.T) {
	ctx := context.Background()
	processor := &recordingProcessor{}
	coordinator, _ := newTestCoordinator(t, processor)

	// TotalRows is an estimate; a clean stream with fewer rows still finishes.
	job, _ := coordinator.CreateJob(ctx, "accounts.csv", 4)
	job, err := coordinator.Process(ctx, job.ID, csvStream(t, "id\n1\n2\n"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if job.Status != core.BackfillStatusCompleted {
		t.Fatalf("expected completed job, got %s", job.Status)
	}
	if job.ProcessedRows != 2 || job.SuccessfulRows != 2 || job.FailedRows != 0 {
		t.Fatalf("unexpected counters %+v", job)
	}
	if job.PercentComplete() != 50 {
		t.Fatalf("expected 50%%, got %d", job.PercentComplete())
	}
}

func TestProcessIsolatesRowFailures(t *testing.T) {
	ctx := context.Background()
	processor := &recordingProcessor{failOn: map[string]error{
		"2": errors.New("amount is not a number"),
	}}
	coordinator, _ := newTestCoordinator(t, processor)

	job, _ := coordinator.CreateJob(ctx, "accounts.csv", 3)
	job, err := coordinator.Process(ctx, job.ID, csvStream(t, "id\n1\n2\n3\n"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if job.Status != core.BackfillStatusCompleted {
		t.Fatalf("expected partial success to complete, got %s", job.Status)
	}
	if job.SuccessfulRows != 2 || job.FailedRows != 1 || job.ProcessedRows != 3 {
		t.Fatalf("unexpected counters %+v", job)
	}
	if job.ErrorArtifact == "" {
		t.Fatalf("expected error artifact to be recorded")
	}
	if job.PercentComplete() != 100 {
		t.Fatalf("expected 100%%, got %d", job.PercentComplete())
	}
}

func TestProcessStopsAtStreamFailure(t *testing.T) {
	ctx := context.Background()
	processor := &recordingProcessor{}
	coordinator, store := newTestCoordinator(t, processor)

	job, _ := coordinator.CreateJob(ctx, "accounts.csv", 4)
	stream := &brokenStream{
		header: []string{"id"},
		rows:   [][]string{{"1"}, {"2"}},
		err:    fmt.Errorf("read: connection reset"),
	}
	_, err := coordinator.Process(ctx, job.ID, stream)
	if err == nil {
		t.Fatalf("expected stream failure")
	}

	stored, getErr := store.Get(ctx, job.ID)
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if stored.Status != core.BackfillStatusFailed {
		t.Fatalf("expected failed job, got %s", stored.Status)
	}
	if stored.CheckpointOffset != 2 {
		t.Fatalf("expected checkpoint preserved at 2, got %d", stored.CheckpointOffset)
	}
	if stored.LastError == "" {
		t.Fatalf("expected stream error recorded")
	}
}

func TestResumeSkipsCheckpointedRows(t *testing.T) {
	ctx := context.Background()
	data := "id\n1\n2\n3\n4\n"

	// first run dies after two durable rows
	first := &recordingProcessor{}
	coordinator, store := newTestCoordinator(t, first)
	job, _ := coordinator.CreateJob(ctx, "accounts.csv", 4)

	interrupted := &brokenStream{
		header: []string{"id"},
		rows:   [][]string{{"1"}, {"2"}},
		err:    fmt.Errorf("read: connection reset"),
	}
	if _, err := coordinator.Process(ctx, job.ID, interrupted); err == nil {
		t.Fatalf("expected interruption")
	}

	// resume picks up from the checkpoint against the full stream
	second := &recordingProcessor{}
	resumed := NewCoordinator(store, second)
	resumed.Artifacts = coordinator.Artifacts

	final, err := resumed.Resume(ctx, job.ID, csvStream(t, data))
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if final.Status != core.BackfillStatusCompleted {
		t.Fatalf("expected completed job, got %s", final.Status)
	}
	if len(second.rows) != 2 {
		t.Fatalf("expected rows 3 and 4 only, got %v", second.rows)
	}
	if second.rows[0][0] != "3" || second.rows[1][0] != "4" {
		t.Fatalf("expected resume at row 3, got %v", second.rows)
	}
	if final.ProcessedRows != 4 || final.SuccessfulRows != 4 {
		t.Fatalf("expected totals without double counting, got %+v", final)
	}
	if final.CheckpointOffset != 4 {
		t.Fatalf("expected checkpoint at 4, got %d", final.CheckpointOffset)
	}
}

func TestResumeStreamShorterThanCheckpointFails(t *testing.T) {
	ctx := context.Background()
	processor := &recordingProcessor{}
	coordinator, store := newTestCoordinator(t, processor)

	job, _ := coordinator.CreateJob(ctx, "accounts.csv", 4)
	stored, _ := store.Get(ctx, job.ID)
	stored.Status = core.BackfillStatusInProgress
	stored.CheckpointOffset = 3
	store.Update(ctx, stored)

	_, err := coordinator.Resume(ctx, job.ID, csvStream(t, "id\n1\n"))
	if err == nil {
		t.Fatalf("expected truncated stream to fail the job")
	}
	stored, _ = store.Get(ctx, job.ID)
	if stored.Status != core.BackfillStatusFailed {
		t.Fatalf("expected failed job, got %s", stored.Status)
	}
}

func TestProcessCompletedJobIsNoOp(t *testing.T) {
	ctx := context.Background()
	processor := &recordingProcessor{}
	coordinator, _ := newTestCoordinator(t, processor)

	job, _ := coordinator.CreateJob(ctx, "accounts.csv", 1)
	job, err := coordinator.Process(ctx, job.ID, csvStream(t, "id\n1\n"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	again, err := coordinator.Process(ctx, job.ID, csvStream(t, "id\n1\n"))
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if again.ProcessedRows != 1 || len(processor.rows) != 1 {
		t.Fatalf("expected completed job to be untouched, got %+v", again)
	}
}

func TestStatusReportsDurableProgress(t *testing.T) {
	ctx := context.Background()
	processor := &recordingProcessor{failOn: map[string]error{"2": errors.New("bad row")}}
	coordinator, _ := newTestCoordinator(t, processor)

	job, _ := coordinator.CreateJob(ctx, "accounts.csv", 4)
	progress, err := coordinator.Status(ctx, job.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if progress.Status != core.BackfillStatusPending || progress.PercentComplete != 0 {
		t.Fatalf("unexpected initial progress %+v", progress)
	}

	if _, err := coordinator.Process(ctx, job.ID, csvStream(t, "id\n1\n2\n3\n4\n")); err != nil {
		t.Fatalf("process: %v", err)
	}
	progress, err = coordinator.Status(ctx, job.ID)
	if err != nil {
		t.Fatalf("status after run: %v", err)
	}
	if progress.ProcessedRows != 4 || progress.FailedRows != 1 || progress.PercentComplete != 100 {
		t.Fatalf("unexpected progress %+v", progress)
	}
	if progress.ErrorArtifact == "" {
		t.Fatalf("expected artifact reference in progress")
	}

	if _, err := coordinator.Status(ctx, "missing"); !errors.Is(err, core.ErrBackfillJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

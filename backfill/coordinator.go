package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"

	glog "github.com/goliatone/go-logger/glog"
)

// Coordinator drives checkpointed backfill jobs. Rows are processed
// strictly in order; the checkpoint and counters are persisted after
// every row so the furthest durable outcome is never lost.
type Coordinator struct {
	Jobs      core.BackfillJobStore
	Rows      core.RowProcessor
	Artifacts ArtifactWriter
	Logger    glog.Logger
	Now       func() time.Time
}

func NewCoordinator(jobs core.BackfillJobStore, rows core.RowProcessor) *Coordinator {
	return &Coordinator{
		Jobs:      jobs,
		Rows:      rows,
		Artifacts: CSVArtifactWriter{},
		Logger:    glog.Nop(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (c *Coordinator) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Coordinator) artifacts() ArtifactWriter {
	if c != nil && c.Artifacts != nil {
		return c.Artifacts
	}
	return CSVArtifactWriter{}
}

func (c *Coordinator) logger() glog.Logger {
	if c != nil && c.Logger != nil {
		return c.Logger
	}
	return glog.Nop()
}

// CreateJob registers a new pending job. TotalRows may be an estimate; it
// only feeds progress percentages, never control flow.
func (c *Coordinator) CreateJob(ctx context.Context, fileName string, totalRows int) (core.BackfillJob, error) {
	if c == nil || c.Jobs == nil {
		return core.BackfillJob{}, fmt.Errorf("backfill: coordinator requires a job store")
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return core.BackfillJob{}, fmt.Errorf("backfill: file name is required")
	}
	if totalRows < 0 {
		return core.BackfillJob{}, fmt.Errorf("backfill: total rows must not be negative")
	}
	now := c.now()
	return c.Jobs.Create(ctx, core.BackfillJob{
		FileName:  fileName,
		TotalRows: totalRows,
		Status:    core.BackfillStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Process runs the job against the stream, starting from the persisted
// checkpoint. Calling it on a completed job is a no-op; a failed job is
// picked back up where it stopped.
func (c *Coordinator) Process(ctx context.Context, jobID string, stream RowStream) (core.BackfillJob, error) {
	return c.run(ctx, jobID, stream)
}

// Resume is Process for interrupted jobs; the checkpoint alone decides
// how many leading rows of the stream are skipped.
func (c *Coordinator) Resume(ctx context.Context, jobID string, stream RowStream) (core.BackfillJob, error) {
	return c.run(ctx, jobID, stream)
}

func (c *Coordinator) run(ctx context.Context, jobID string, stream RowStream) (core.BackfillJob, error) {
	if c == nil || c.Jobs == nil || c.Rows == nil {
		return core.BackfillJob{}, fmt.Errorf("backfill: coordinator requires job store and row processor")
	}
	if stream == nil {
		return core.BackfillJob{}, fmt.Errorf("backfill: row stream is required")
	}

	job, err := c.Jobs.Get(ctx, strings.TrimSpace(jobID))
	if err != nil {
		return core.BackfillJob{}, err
	}
	if job.Status == core.BackfillStatusCompleted {
		return job, nil
	}

	if job.Status != core.BackfillStatusInProgress {
		if err := job.TransitionTo(core.BackfillStatusInProgress, c.now()); err != nil {
			return core.BackfillJob{}, err
		}
		job.LastError = ""
		if job, err = c.Jobs.Update(ctx, job); err != nil {
			return core.BackfillJob{}, err
		}
	}

	// rows before the checkpoint already have a durable outcome
	for skipped := 0; skipped < job.CheckpointOffset; skipped++ {
		if _, err := stream.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				return c.failJob(ctx, job, fmt.Errorf("backfill: stream ended before checkpoint %d", job.CheckpointOffset))
			}
			return c.failJob(ctx, job, fmt.Errorf("backfill: skipping to checkpoint: %w", err))
		}
	}

	for {
		// an interrupted run leaves the job in_progress and resumable
		if ctx.Err() != nil {
			return job, ctx.Err()
		}

		row, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return c.failJob(ctx, job, fmt.Errorf("backfill: reading row %d: %w", job.CheckpointOffset, err))
		}

		rowIndex := job.CheckpointOffset
		if procErr := c.Rows.ProcessRow(ctx, row); procErr != nil {
			artifactPath, artifactErr := c.artifacts().Append(ctx, job.ID, stream.Header(), core.RowError{
				RowIndex: rowIndex,
				Row:      row,
				Message:  procErr.Error(),
			})
			if artifactErr != nil {
				// without a durable failure record the row has no outcome,
				// so the checkpoint must not advance past it
				return job, artifactErr
			}
			job.ErrorArtifact = artifactPath
			job.FailedRows++
			c.logger().Info("backfill row failed",
				"job_id", job.ID,
				"row_index", rowIndex,
				"error", procErr.Error(),
			)
		} else {
			job.SuccessfulRows++
		}
		job.ProcessedRows = job.SuccessfulRows + job.FailedRows
		job.CheckpointOffset = rowIndex + 1
		job.UpdatedAt = c.now()

		if job, err = c.Jobs.Update(ctx, job); err != nil {
			return core.BackfillJob{}, err
		}
	}

	if err := job.TransitionTo(core.BackfillStatusCompleted, c.now()); err != nil {
		return core.BackfillJob{}, err
	}
	job, err = c.Jobs.Update(ctx, job)
	if err != nil {
		return core.BackfillJob{}, err
	}
	c.logger().Info("backfill job completed",
		"job_id", job.ID,
		"processed_rows", job.ProcessedRows,
		"successful_rows", job.SuccessfulRows,
		"failed_rows", job.FailedRows,
	)
	return job, nil
}

func (c *Coordinator) failJob(ctx context.Context, job core.BackfillJob, cause error) (core.BackfillJob, error) {
	if transitionErr := job.TransitionTo(core.BackfillStatusFailed, c.now()); transitionErr != nil {
		return core.BackfillJob{}, transitionErr
	}
	job.LastError = cause.Error()
	updated, updateErr := c.Jobs.Update(ctx, job)
	if updateErr != nil {
		return core.BackfillJob{}, updateErr
	}
	return updated, cause
}

// Status reports durable progress for a job.
func (c *Coordinator) Status(ctx context.Context, jobID string) (core.BackfillProgress, error) {
	if c == nil || c.Jobs == nil {
		return core.BackfillProgress{}, fmt.Errorf("backfill: coordinator requires a job store")
	}
	job, err := c.Jobs.Get(ctx, strings.TrimSpace(jobID))
	if err != nil {
		return core.BackfillProgress{}, err
	}
	return core.BackfillProgress{
		JobID:           job.ID,
		Status:          job.Status,
		TotalRows:       job.TotalRows,
		ProcessedRows:   job.ProcessedRows,
		SuccessfulRows:  job.SuccessfulRows,
		FailedRows:      job.FailedRows,
		PercentComplete: job.PercentComplete(),
		ErrorArtifact:   job.ErrorArtifact,
		LastError:       job.LastError,
	}, nil
}

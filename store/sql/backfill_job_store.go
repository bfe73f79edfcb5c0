package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BackfillJobStore persists backfill job checkpoints.
type BackfillJobStore struct {
	db   *bun.DB
	repo repository.Repository[*backfillJobRecord]
}

func NewBackfillJobStore(db *bun.DB) (*BackfillJobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*backfillJobRecord](db, backfillJobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid backfill job repository wiring: %w", err)
		}
	}
	return &BackfillJobStore{db: db, repo: repo}, nil
}

func (s *BackfillJobStore) Create(ctx context.Context, job core.BackfillJob) (core.BackfillJob, error) {
	if s == nil || s.repo == nil {
		return core.BackfillJob{}, fmt.Errorf("sqlstore: backfill job store is not configured")
	}
	job.FileName = strings.TrimSpace(job.FileName)
	if job.FileName == "" {
		return core.BackfillJob{}, fmt.Errorf("sqlstore: backfill job file name is required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = core.BackfillStatusPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	record := backfillJobFromDomain(job)
	if _, err := s.repo.Create(ctx, record); err != nil {
		return core.BackfillJob{}, err
	}
	return backfillJobToDomain(*record), nil
}

func (s *BackfillJobStore) Get(ctx context.Context, jobID string) (core.BackfillJob, error) {
	if s == nil || s.db == nil {
		return core.BackfillJob{}, fmt.Errorf("sqlstore: backfill job store is not configured")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return core.BackfillJob{}, fmt.Errorf("%w: job id is required", core.ErrBackfillJobNotFound)
	}
	record := new(backfillJobRecord)
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", jobID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.BackfillJob{}, fmt.Errorf("%w: %s", core.ErrBackfillJobNotFound, jobID)
		}
		return core.BackfillJob{}, err
	}
	return backfillJobToDomain(*record), nil
}

func (s *BackfillJobStore) Update(ctx context.Context, job core.BackfillJob) (core.BackfillJob, error) {
	if s == nil || s.db == nil {
		return core.BackfillJob{}, fmt.Errorf("sqlstore: backfill job store is not configured")
	}
	if strings.TrimSpace(job.ID) == "" {
		return core.BackfillJob{}, fmt.Errorf("%w: job id is required", core.ErrBackfillJobNotFound)
	}
	job.UpdatedAt = time.Now().UTC()
	record := backfillJobFromDomain(job)
	result, err := s.db.NewUpdate().
		Model(record).
		WherePK().
		Exec(ctx)
	if err != nil {
		return core.BackfillJob{}, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.BackfillJob{}, fmt.Errorf("%w: %s", core.ErrBackfillJobNotFound, job.ID)
	}
	return backfillJobToDomain(*record), nil
}

func backfillJobFromDomain(job core.BackfillJob) *backfillJobRecord {
	return &backfillJobRecord{
		ID:               job.ID,
		FileName:         job.FileName,
		TotalRows:        job.TotalRows,
		ProcessedRows:    job.ProcessedRows,
		SuccessfulRows:   job.SuccessfulRows,
		FailedRows:       job.FailedRows,
		CheckpointOffset: job.CheckpointOffset,
		Status:           string(job.Status),
		LastError:        job.LastError,
		ErrorArtifact:    job.ErrorArtifact,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	}
}

func backfillJobToDomain(record backfillJobRecord) core.BackfillJob {
	return core.BackfillJob{
		ID:               record.ID,
		FileName:         record.FileName,
		TotalRows:        record.TotalRows,
		ProcessedRows:    record.ProcessedRows,
		SuccessfulRows:   record.SuccessfulRows,
		FailedRows:       record.FailedRows,
		CheckpointOffset: record.CheckpointOffset,
		Status:           core.BackfillStatus(record.Status),
		LastError:        record.LastError,
		ErrorArtifact:    record.ErrorArtifact,
		StartedAt:        record.StartedAt,
		CompletedAt:      record.CompletedAt,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}
}

var _ core.BackfillJobStore = (*BackfillJobStore)(nil)

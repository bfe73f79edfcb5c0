package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	deadLetterStatusPending    = "pending"
	deadLetterStatusProcessing = "processing"
	deadLetterStatusDelivered  = "delivered"
	deadLetterStatusFailed     = "failed"
)

// DeadLetterOutboxStore is the durable side channel for exhausted
// deliveries. Entries are append-only; the dispatcher claims, acks, and
// reschedules them through the same table.
type DeadLetterOutboxStore struct {
	db   *bun.DB
	repo repository.Repository[*deadLetterOutboxRecord]
}

func NewDeadLetterOutboxStore(db *bun.DB) (*DeadLetterOutboxStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deadLetterOutboxRecord](db, deadLetterOutboxHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid dead letter outbox repository wiring: %w", err)
		}
	}
	return &DeadLetterOutboxStore{db: db, repo: repo}, nil
}

func (s *DeadLetterOutboxStore) Enqueue(ctx context.Context, entry core.DeadLetterEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: dead letter outbox store is not configured")
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	originalTimestamp := entry.OriginalTimestamp.UTC()
	if originalTimestamp.IsZero() {
		originalTimestamp = time.Now().UTC()
	}
	deadLetteredAt := entry.DeadLetteredAt.UTC()
	if deadLetteredAt.IsZero() {
		deadLetteredAt = time.Now().UTC()
	}
	now := time.Now().UTC()
	record := &deadLetterOutboxRecord{
		ID:                uuid.NewString(),
		ProviderID:        strings.TrimSpace(entry.ProviderID),
		DeliveryID:        strings.TrimSpace(entry.DeliveryID),
		EventType:         strings.TrimSpace(entry.EventType),
		Payload:           append([]byte(nil), entry.Payload...),
		RetryCount:        entry.RetryCount,
		LastError:         strings.TrimSpace(entry.LastError),
		OriginalTimestamp: originalTimestamp,
		DeadLetteredAt:    deadLetteredAt,
		Status:            deadLetterStatusPending,
		Attempts:          0,
		DispatchError:     "",
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *DeadLetterOutboxStore) ClaimBatch(ctx context.Context, limit int) ([]core.DeadLetterEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: dead letter outbox store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()
	var records []deadLetterOutboxRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM ingest_dead_letter_outbox
	WHERE status = ?
	  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	ORDER BY dead_lettered_at ASC
	LIMIT ?
)
UPDATE ingest_dead_letter_outbox
SET status = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status = ?
RETURNING
	id,
	provider_id,
	delivery_id,
	event_type,
	payload,
	retry_count,
	last_error,
	original_timestamp,
	dead_lettered_at,
	status,
	attempts,
	next_attempt_at,
	dispatch_error,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			deadLetterStatusPending,
			now,
			limit,
			deadLetterStatusProcessing,
			now,
			deadLetterStatusPending,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	entries := make([]core.DeadLetterEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, deadLetterRecordToEntry(record))
	}
	return entries, nil
}

func (s *DeadLetterOutboxStore) Ack(ctx context.Context, entryID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: dead letter outbox store is not configured")
	}
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return fmt.Errorf("sqlstore: entry id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*deadLetterOutboxRecord)(nil)).
		Set("status = ?", deadLetterStatusDelivered).
		Set("dispatch_error = ?", "").
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", entryID).
		Exec(ctx)
	return err
}

func (s *DeadLetterOutboxStore) Retry(ctx context.Context, entryID string, cause error, nextAttemptAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: dead letter outbox store is not configured")
	}
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return fmt.Errorf("sqlstore: entry id is required")
	}
	status := deadLetterStatusPending
	var next *time.Time
	if !nextAttemptAt.IsZero() {
		nextValue := nextAttemptAt.UTC()
		next = &nextValue
	} else {
		status = deadLetterStatusFailed
	}

	dispatchError := ""
	if cause != nil {
		dispatchError = strings.TrimSpace(cause.Error())
	}
	_, err := s.db.NewUpdate().
		Model((*deadLetterOutboxRecord)(nil)).
		Set("status = ?", status).
		Set("attempts = attempts + 1").
		Set("next_attempt_at = ?", next).
		Set("dispatch_error = ?", dispatchError).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", entryID).
		Exec(ctx)
	return err
}

func deadLetterRecordToEntry(record deadLetterOutboxRecord) core.DeadLetterEntry {
	return core.DeadLetterEntry{
		ID:                record.ID,
		ProviderID:        record.ProviderID,
		DeliveryID:        record.DeliveryID,
		EventType:         record.EventType,
		Payload:           append([]byte(nil), record.Payload...),
		RetryCount:        record.RetryCount,
		LastError:         record.LastError,
		OriginalTimestamp: record.OriginalTimestamp,
		DeadLetteredAt:    record.DeadLetteredAt,
		Attempts:          record.Attempts,
	}
}

var _ core.DeadLetterQueue = (*DeadLetterOutboxStore)(nil)

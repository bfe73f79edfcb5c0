package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeliveryStore is the bun-backed DeliveryLedger. The unique index on
// (provider_id, delivery_id) makes CreateIfAbsent safe under concurrent
// redeliveries: the insert either wins or surfaces the existing record.
type DeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{db: db, repo: repo}, nil
}

func (s *DeliveryStore) CreateIfAbsent(ctx context.Context, in core.CreateDeliveryInput) (core.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return core.DeliveryRecord{}, false, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if err := in.Validate(); err != nil {
		return core.DeliveryRecord{}, false, err
	}

	now := time.Now().UTC()
	record := &deliveryRecord{
		ID:          uuid.NewString(),
		ProviderID:  strings.TrimSpace(in.ProviderID),
		DeliveryID:  strings.TrimSpace(in.DeliveryID),
		EventType:   strings.TrimSpace(in.EventType),
		PayloadHash: core.PayloadHash(in.Payload),
		Payload:     append([]byte(nil), in.Payload...),
		Status:      string(core.DeliveryStatusPending),
		RetryCount:  0,
		LastError:   "",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.Get(ctx, in.ProviderID, in.DeliveryID)
			if getErr != nil {
				return core.DeliveryRecord{}, false, getErr
			}
			return existing, true, nil
		}
		return core.DeliveryRecord{}, false, err
	}
	return deliveryToDomain(record), false, nil
}

func (s *DeliveryStore) Get(ctx context.Context, providerID, deliveryID string) (core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	record := &deliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", strings.TrimSpace(providerID)).
		Where("?TableAlias.delivery_id = ?", strings.TrimSpace(deliveryID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.DeliveryRecord{}, fmt.Errorf("%w: %s/%s", core.ErrDeliveryNotFound, providerID, deliveryID)
		}
		return core.DeliveryRecord{}, err
	}
	return deliveryToDomain(record), nil
}

func (s *DeliveryStore) MarkProcessed(ctx context.Context, providerID, deliveryID string) (core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	record, err := s.Get(ctx, providerID, deliveryID)
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	if record.Status == core.DeliveryStatusProcessed {
		return record, nil
	}
	now := time.Now().UTC()
	if err := record.TransitionTo(core.DeliveryStatusProcessed, now); err != nil {
		return core.DeliveryRecord{}, err
	}
	record.LastError = ""
	_, err = s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusProcessed)).
		Set("processed_at = ?", now).
		Set("last_error = ?", "").
		Set("updated_at = ?", now).
		Where("provider_id = ?", strings.TrimSpace(providerID)).
		Where("delivery_id = ?", strings.TrimSpace(deliveryID)).
		Exec(ctx)
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	return record, nil
}

func (s *DeliveryStore) MarkFailed(ctx context.Context, providerID, deliveryID string, cause error) (core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	record, err := s.Get(ctx, providerID, deliveryID)
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	now := time.Now().UTC()
	if err := record.TransitionTo(core.DeliveryStatusFailed, now); err != nil {
		return core.DeliveryRecord{}, err
	}
	record.RetryCount++
	if cause != nil {
		record.LastError = strings.TrimSpace(cause.Error())
	}
	_, err = s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusFailed)).
		Set("retry_count = ?", record.RetryCount).
		Set("last_error = ?", record.LastError).
		Set("updated_at = ?", now).
		Where("provider_id = ?", strings.TrimSpace(providerID)).
		Where("delivery_id = ?", strings.TrimSpace(deliveryID)).
		Exec(ctx)
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	return record, nil
}

func (s *DeliveryStore) ListDeadLettered(ctx context.Context, maxRetries, limit int) ([]core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	var records []deliveryRecord
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.DeliveryStatusFailed)).
		Where("?TableAlias.retry_count >= ?", maxRetries).
		OrderExpr("?TableAlias.updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.DeliveryRecord, 0, len(records))
	for i := range records {
		out = append(out, deliveryToDomain(&records[i]))
	}
	return out, nil
}

func (s *DeliveryStore) ResetForReplay(ctx context.Context, providerID, deliveryID string) (core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	record, err := s.Get(ctx, providerID, deliveryID)
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	now := time.Now().UTC()
	if err := record.TransitionTo(core.DeliveryStatusPending, now); err != nil {
		return core.DeliveryRecord{}, err
	}
	record.RetryCount = 0
	record.LastError = ""
	record.ProcessedAt = nil
	_, err = s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusPending)).
		Set("retry_count = 0").
		Set("last_error = ?", "").
		Set("processed_at = NULL").
		Set("updated_at = ?", now).
		Where("provider_id = ?", strings.TrimSpace(providerID)).
		Where("delivery_id = ?", strings.TrimSpace(deliveryID)).
		Exec(ctx)
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	return record, nil
}

func (s *DeliveryStore) Delete(ctx context.Context, providerID, deliveryID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if _, err := s.Get(ctx, providerID, deliveryID); err != nil {
		return err
	}
	_, err := s.db.NewDelete().
		Model((*deliveryRecord)(nil)).
		Where("provider_id = ?", strings.TrimSpace(providerID)).
		Where("delivery_id = ?", strings.TrimSpace(deliveryID)).
		Exec(ctx)
	return err
}

func deliveryToDomain(record *deliveryRecord) core.DeliveryRecord {
	if record == nil {
		return core.DeliveryRecord{}
	}
	result := core.DeliveryRecord{
		ID:          record.ID,
		ProviderID:  record.ProviderID,
		DeliveryID:  record.DeliveryID,
		EventType:   record.EventType,
		PayloadHash: record.PayloadHash,
		Payload:     append([]byte(nil), record.Payload...),
		Status:      core.DeliveryStatus(record.Status),
		RetryCount:  record.RetryCount,
		LastError:   record.LastError,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
	if record.ProcessedAt != nil {
		value := *record.ProcessedAt
		result.ProcessedAt = &value
	}
	return result
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.DeliveryLedger = (*DeliveryStore)(nil)

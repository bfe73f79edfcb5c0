package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDeliveryLedger is a process-local DeliveryLedger used by tests and
// by services that run without a persistence client.
type MemoryDeliveryLedger struct {
	mu      sync.Mutex
	records map[string]*DeliveryRecord
	Now     func() time.Time
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		records: map[string]*DeliveryRecord{},
	}
}

func (l *MemoryDeliveryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func ledgerKey(providerID, deliveryID string) string {
	return strings.TrimSpace(providerID) + "::" + strings.TrimSpace(deliveryID)
}

func (l *MemoryDeliveryLedger) CreateIfAbsent(ctx context.Context, in CreateDeliveryInput) (DeliveryRecord, bool, error) {
	if l == nil {
		return DeliveryRecord{}, false, fmt.Errorf("%w: memory delivery ledger", ErrNotConfigured)
	}
	if err := in.Validate(); err != nil {
		return DeliveryRecord{}, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey(in.ProviderID, in.DeliveryID)
	if existing, ok := l.records[key]; ok {
		return cloneRecord(existing), true, nil
	}

	now := l.now()
	record := &DeliveryRecord{
		ID:          uuid.NewString(),
		ProviderID:  strings.TrimSpace(in.ProviderID),
		DeliveryID:  strings.TrimSpace(in.DeliveryID),
		EventType:   strings.TrimSpace(in.EventType),
		PayloadHash: PayloadHash(in.Payload),
		Payload:     append([]byte(nil), in.Payload...),
		Status:      DeliveryStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	l.records[key] = record
	return cloneRecord(record), false, nil
}

func (l *MemoryDeliveryLedger) Get(ctx context.Context, providerID, deliveryID string) (DeliveryRecord, error) {
	if l == nil {
		return DeliveryRecord{}, fmt.Errorf("%w: memory delivery ledger", ErrNotConfigured)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[ledgerKey(providerID, deliveryID)]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("%w: %s/%s", ErrDeliveryNotFound, providerID, deliveryID)
	}
	return cloneRecord(record), nil
}

func (l *MemoryDeliveryLedger) MarkProcessed(ctx context.Context, providerID, deliveryID string) (DeliveryRecord, error) {
	if l == nil {
		return DeliveryRecord{}, fmt.Errorf("%w: memory delivery ledger", ErrNotConfigured)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[ledgerKey(providerID, deliveryID)]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("%w: %s/%s", ErrDeliveryNotFound, providerID, deliveryID)
	}
	if record.Status == DeliveryStatusProcessed {
		return cloneRecord(record), nil
	}
	if err := record.TransitionTo(DeliveryStatusProcessed, l.now()); err != nil {
		return DeliveryRecord{}, err
	}
	record.LastError = ""
	return cloneRecord(record), nil
}

func (l *MemoryDeliveryLedger) MarkFailed(ctx context.Context, providerID, deliveryID string, cause error) (DeliveryRecord, error) {
	if l == nil {
		return DeliveryRecord{}, fmt.Errorf("%w: memory delivery ledger", ErrNotConfigured)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[ledgerKey(providerID, deliveryID)]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("%w: %s/%s", ErrDeliveryNotFound, providerID, deliveryID)
	}
	if err := record.TransitionTo(DeliveryStatusFailed, l.now()); err != nil {
		return DeliveryRecord{}, err
	}
	record.RetryCount++
	if cause != nil {
		record.LastError = cause.Error()
	}
	return cloneRecord(record), nil
}

func (l *MemoryDeliveryLedger) ListDeadLettered(ctx context.Context, maxRetries, limit int) ([]DeliveryRecord, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: memory delivery ledger", ErrNotConfigured)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]DeliveryRecord, 0)
	for _, record := range l.records {
		if record.Status == DeliveryStatusFailed && record.RetryCount >= maxRetries {
			out = append(out, cloneRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryDeliveryLedger) ResetForReplay(ctx context.Context, providerID, deliveryID string) (DeliveryRecord, error) {
	if l == nil {
		return DeliveryRecord{}, fmt.Errorf("%w: memory delivery ledger", ErrNotConfigured)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[ledgerKey(providerID, deliveryID)]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("%w: %s/%s", ErrDeliveryNotFound, providerID, deliveryID)
	}
	if err := record.TransitionTo(DeliveryStatusPending, l.now()); err != nil {
		return DeliveryRecord{}, err
	}
	record.RetryCount = 0
	record.LastError = ""
	record.ProcessedAt = nil
	return cloneRecord(record), nil
}

func (l *MemoryDeliveryLedger) Delete(ctx context.Context, providerID, deliveryID string) error {
	if l == nil {
		return fmt.Errorf("%w: memory delivery ledger", ErrNotConfigured)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey(providerID, deliveryID)
	if _, ok := l.records[key]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrDeliveryNotFound, providerID, deliveryID)
	}
	delete(l.records, key)
	return nil
}

func cloneRecord(record *DeliveryRecord) DeliveryRecord {
	out := *record
	out.Payload = append([]byte(nil), record.Payload...)
	if record.ProcessedAt != nil {
		at := *record.ProcessedAt
		out.ProcessedAt = &at
	}
	return out
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)

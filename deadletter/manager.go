package deadletter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"

	glog "github.com/goliatone/go-logger/glog"
)

// Manager fronts the dead-letter surface. Listing and stats are always
// recomputed from the ledger so operators see the durable truth, never an
// in-process counter.
type Manager struct {
	Ledger     core.DeliveryLedger
	Queue      core.DeadLetterQueue
	MaxRetries int
	ListLimit  int
	Logger     glog.Logger
	Now        func() time.Time
}

func NewManager(ledger core.DeliveryLedger, queue core.DeadLetterQueue) *Manager {
	return &Manager{
		Ledger:     ledger,
		Queue:      queue,
		MaxRetries: core.DefaultMaxRetries,
		ListLimit:  100,
		Logger:     glog.Nop(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (m *Manager) maxRetries() int {
	if m != nil && m.MaxRetries > 0 {
		return m.MaxRetries
	}
	return core.DefaultMaxRetries
}

func (m *Manager) now() time.Time {
	if m != nil && m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

// ShouldSendToDLQ is the pure retry-exhaustion predicate. It never reads
// storage so callers can consult it from any point in the pipeline.
func (m *Manager) ShouldSendToDLQ(retryCount int) bool {
	return retryCount >= m.maxRetries()
}

// Publish appends an immutable snapshot of the exhausted delivery to the
// side channel. Failures propagate: losing a dead letter silently would
// defeat the channel's purpose.
func (m *Manager) Publish(ctx context.Context, record core.DeliveryRecord) error {
	if m == nil || m.Queue == nil {
		return fmt.Errorf("deadletter: manager requires a queue")
	}
	entry := core.DeadLetterEntry{
		ProviderID:        record.ProviderID,
		DeliveryID:        record.DeliveryID,
		EventType:         record.EventType,
		Payload:           append([]byte(nil), record.Payload...),
		RetryCount:        record.RetryCount,
		LastError:         record.LastError,
		OriginalTimestamp: record.CreatedAt,
		DeadLetteredAt:    m.now(),
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	return m.Queue.Enqueue(ctx, entry)
}

// List returns dead-lettered ledger records, newest first. limit <= 0
// falls back to the configured default.
func (m *Manager) List(ctx context.Context, limit int) ([]core.DeliveryRecord, error) {
	if m == nil || m.Ledger == nil {
		return nil, fmt.Errorf("deadletter: manager requires a ledger")
	}
	if limit <= 0 {
		limit = m.ListLimit
	}
	return m.Ledger.ListDeadLettered(ctx, m.maxRetries(), limit)
}

// Stats aggregates the dead-lettered population on demand.
func (m *Manager) Stats(ctx context.Context) (core.DeadLetterStats, error) {
	if m == nil || m.Ledger == nil {
		return core.DeadLetterStats{}, fmt.Errorf("deadletter: manager requires a ledger")
	}
	records, err := m.Ledger.ListDeadLettered(ctx, m.maxRetries(), 0)
	if err != nil {
		return core.DeadLetterStats{}, err
	}
	stats := core.DeadLetterStats{
		Total:       len(records),
		ByEventType: map[string]int{},
	}
	for _, record := range records {
		stats.ByEventType[record.EventType]++
		at := record.UpdatedAt
		if stats.Oldest == nil || at.Before(*stats.Oldest) {
			copied := at
			stats.Oldest = &copied
		}
		if stats.Newest == nil || at.After(*stats.Newest) {
			copied := at
			stats.Newest = &copied
		}
	}
	return stats, nil
}

// Replay returns a dead-lettered delivery to the intake path: the record
// goes back to pending with a fresh retry budget and the original payload
// is handed to the caller for re-dispatch.
func (m *Manager) Replay(ctx context.Context, providerID, deliveryID string) (core.ReplayResult, error) {
	if m == nil || m.Ledger == nil {
		return core.ReplayResult{}, fmt.Errorf("deadletter: manager requires a ledger")
	}
	record, err := m.requireFailed(ctx, providerID, deliveryID)
	if err != nil {
		return core.ReplayResult{}, err
	}
	reset, err := m.Ledger.ResetForReplay(ctx, record.ProviderID, record.DeliveryID)
	if err != nil {
		return core.ReplayResult{}, err
	}
	m.logger().Info("dead letter replayed",
		"provider_id", record.ProviderID,
		"delivery_id", record.DeliveryID,
		"prior_retry_count", record.RetryCount,
	)
	return core.ReplayResult{
		Record:  reset,
		Payload: append([]byte(nil), record.Payload...),
	}, nil
}

// Purge permanently removes a dead-lettered delivery from the ledger.
func (m *Manager) Purge(ctx context.Context, providerID, deliveryID string) error {
	if m == nil || m.Ledger == nil {
		return fmt.Errorf("deadletter: manager requires a ledger")
	}
	record, err := m.requireFailed(ctx, providerID, deliveryID)
	if err != nil {
		return err
	}
	if err := m.Ledger.Delete(ctx, record.ProviderID, record.DeliveryID); err != nil {
		return err
	}
	m.logger().Info("dead letter purged",
		"provider_id", record.ProviderID,
		"delivery_id", record.DeliveryID,
	)
	return nil
}

func (m *Manager) requireFailed(ctx context.Context, providerID, deliveryID string) (core.DeliveryRecord, error) {
	record, err := m.Ledger.Get(ctx, strings.TrimSpace(providerID), strings.TrimSpace(deliveryID))
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	if record.Status != core.DeliveryStatusFailed {
		return core.DeliveryRecord{}, fmt.Errorf("%w: delivery %s/%s is %s, not failed",
			core.ErrInvalidDeliveryState, record.ProviderID, record.DeliveryID, record.Status)
	}
	return record, nil
}

func (m *Manager) logger() glog.Logger {
	if m != nil && m.Logger != nil {
		return m.Logger
	}
	return glog.Nop()
}

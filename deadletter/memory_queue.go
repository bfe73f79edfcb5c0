package deadletter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-ingest/core"

	"github.com/google/uuid"
)

const (
	queueEntryPending   = "pending"
	queueEntryClaimed   = "claimed"
	queueEntryDelivered = "delivered"
	queueEntryFailed    = "failed"
)

type memoryQueueEntry struct {
	entry         core.DeadLetterEntry
	status        string
	nextAttemptAt time.Time
	enqueuedAt    time.Time
}

// MemoryQueue is a process-local DeadLetterQueue for tests and embedded
// setups without a persistence client.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]*memoryQueueEntry
	Now     func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		entries: map[string]*memoryQueueEntry{},
	}
}

func (q *MemoryQueue) now() time.Time {
	if q != nil && q.Now != nil {
		return q.Now().UTC()
	}
	return time.Now().UTC()
}

func (q *MemoryQueue) Enqueue(ctx context.Context, entry core.DeadLetterEntry) error {
	if q == nil {
		return fmt.Errorf("%w: memory dead letter queue", core.ErrNotConfigured)
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	q.entries[entry.ID] = &memoryQueueEntry{
		entry:      entry,
		status:     queueEntryPending,
		enqueuedAt: q.now(),
	}
	return nil
}

func (q *MemoryQueue) ClaimBatch(ctx context.Context, limit int) ([]core.DeadLetterEntry, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: memory dead letter queue", core.ErrNotConfigured)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	claimable := make([]*memoryQueueEntry, 0)
	for _, stored := range q.entries {
		if stored.status != queueEntryPending {
			continue
		}
		if !stored.nextAttemptAt.IsZero() && stored.nextAttemptAt.After(now) {
			continue
		}
		claimable = append(claimable, stored)
	}
	sort.Slice(claimable, func(i, j int) bool {
		return claimable[i].enqueuedAt.Before(claimable[j].enqueuedAt)
	})
	if limit > 0 && len(claimable) > limit {
		claimable = claimable[:limit]
	}

	out := make([]core.DeadLetterEntry, 0, len(claimable))
	for _, stored := range claimable {
		stored.status = queueEntryClaimed
		out = append(out, stored.entry)
	}
	return out, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, entryID string) error {
	if q == nil {
		return fmt.Errorf("%w: memory dead letter queue", core.ErrNotConfigured)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.entries[entryID]
	if !ok {
		return fmt.Errorf("deadletter: unknown queue entry %q", entryID)
	}
	stored.status = queueEntryDelivered
	return nil
}

func (q *MemoryQueue) Retry(ctx context.Context, entryID string, cause error, nextAttemptAt time.Time) error {
	if q == nil {
		return fmt.Errorf("%w: memory dead letter queue", core.ErrNotConfigured)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.entries[entryID]
	if !ok {
		return fmt.Errorf("deadletter: unknown queue entry %q", entryID)
	}
	if cause != nil {
		stored.entry.LastError = cause.Error()
	}
	if nextAttemptAt.IsZero() {
		stored.status = queueEntryFailed
		return nil
	}
	stored.entry.Attempts++
	stored.status = queueEntryPending
	stored.nextAttemptAt = nextAttemptAt.UTC()
	return nil
}

// Snapshot returns all entries ordered by enqueue time. Test helper.
func (q *MemoryQueue) Snapshot() []core.DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored := make([]*memoryQueueEntry, 0, len(q.entries))
	for _, item := range q.entries {
		stored = append(stored, item)
	}
	sort.Slice(stored, func(i, j int) bool {
		return stored[i].enqueuedAt.Before(stored[j].enqueuedAt)
	})
	out := make([]core.DeadLetterEntry, 0, len(stored))
	for _, item := range stored {
		out = append(out, item.entry)
	}
	return out
}

var _ core.DeadLetterQueue = (*MemoryQueue)(nil)

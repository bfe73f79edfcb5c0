package core

import (
	"context"
	"time"
)

// DeliveryLedger persists webhook delivery records and enforces the
// uniqueness of the (provider, delivery) pair. Implementations back the
// idempotency gate and the dead-letter manager.
type DeliveryLedger interface {
	// CreateIfAbsent atomically records a new pending delivery. When a
	// record already exists it is returned with existed=true and no write
	// occurs.
	CreateIfAbsent(ctx context.Context, in CreateDeliveryInput) (DeliveryRecord, bool, error)
	Get(ctx context.Context, providerID, deliveryID string) (DeliveryRecord, error)
	// MarkProcessed transitions the record to its terminal state. A missing
	// record is an error: marking an untracked delivery processed means the
	// gate was bypassed.
	MarkProcessed(ctx context.Context, providerID, deliveryID string) (DeliveryRecord, error)
	// MarkFailed increments the retry count and stores the cause.
	MarkFailed(ctx context.Context, providerID, deliveryID string, cause error) (DeliveryRecord, error)
	// ListDeadLettered returns failed records whose retry count reached
	// maxRetries, newest first. limit <= 0 returns all of them.
	ListDeadLettered(ctx context.Context, maxRetries, limit int) ([]DeliveryRecord, error)
	// ResetForReplay returns the record to pending with a zeroed retry
	// count and a cleared error so it can re-enter the intake path.
	ResetForReplay(ctx context.Context, providerID, deliveryID string) (DeliveryRecord, error)
	Delete(ctx context.Context, providerID, deliveryID string) error
}

// DeadLetterQueue is the durable side channel for exhausted deliveries.
// Entries are appended by the manager and drained by the dispatcher.
type DeadLetterQueue interface {
	Enqueue(ctx context.Context, entry DeadLetterEntry) error
	// ClaimBatch leases up to limit pending entries for dispatch.
	ClaimBatch(ctx context.Context, limit int) ([]DeadLetterEntry, error)
	Ack(ctx context.Context, entryID string) error
	// Retry releases a claimed entry. A zero nextAttemptAt parks the entry
	// as failed instead of rescheduling it.
	Retry(ctx context.Context, entryID string, cause error, nextAttemptAt time.Time) error
}

// BackfillJobStore persists backfill jobs and their checkpoints.
type BackfillJobStore interface {
	Create(ctx context.Context, job BackfillJob) (BackfillJob, error)
	Get(ctx context.Context, id string) (BackfillJob, error)
	Update(ctx context.Context, job BackfillJob) (BackfillJob, error)
}

// DomainHandler applies the domain side effect for a verified webhook
// delivery. Returning an error marks the delivery failed.
type DomainHandler interface {
	Apply(ctx context.Context, eventType string, payload []byte) error
}

// DomainHandlerFunc adapts a function to the DomainHandler contract.
type DomainHandlerFunc func(ctx context.Context, eventType string, payload []byte) error

func (f DomainHandlerFunc) Apply(ctx context.Context, eventType string, payload []byte) error {
	return f(ctx, eventType, payload)
}

// RowProcessor validates and persists a single backfill row. Errors are
// isolated per row and surface in the job's error artifact.
type RowProcessor interface {
	ProcessRow(ctx context.Context, row []string) error
}

// RowProcessorFunc adapts a function to the RowProcessor contract.
type RowProcessorFunc func(ctx context.Context, row []string) error

func (f RowProcessorFunc) ProcessRow(ctx context.Context, row []string) error {
	return f(ctx, row)
}

// AssociationResolver is the optional cross-record linking step that runs
// after a delivery is applied. Failures are reported but never fail the
// delivery.
type AssociationResolver interface {
	Associate(ctx context.Context, eventType string, payload []byte) error
}

// NopAssociationResolver satisfies AssociationResolver without doing any
// linking work.
type NopAssociationResolver struct{}

func (NopAssociationResolver) Associate(context.Context, string, []byte) error { return nil }

// StoreProvider exposes the persistence surface the service needs.
type StoreProvider interface {
	DeliveryLedger() DeliveryLedger
	DeadLetterQueue() DeadLetterQueue
	BackfillJobStore() BackfillJobStore
}

// RepositoryStoreFactory builds a StoreProvider from a persistence client.
// The argument stays untyped so storage backends can accept either a bun
// handle or a client wrapping one.
type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// JobExecutionMessage is the queue-agnostic description of a background
// job run, mapped to the job runtime by the adapters.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

// JobNackOptions describes how a failed job delivery should be retried.
type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

// JobEnqueuer submits job messages for asynchronous execution.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

// JobDelivery is a leased job message awaiting acknowledgement.
type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

// JobDequeuer leases the next available job message.
type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

// JobWorkerHook observes background worker lifecycle events.
type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

// JobWorkerEvent carries the observable state of one worker attempt.
type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

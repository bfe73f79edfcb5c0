package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrDeliveryNotFound indicates the ledger has no record for the
	// provider/delivery pair.
	ErrDeliveryNotFound = errors.New("core: delivery record not found")
	// ErrInvalidDeliveryState indicates a transition that the delivery
	// state machine does not allow.
	ErrInvalidDeliveryState = errors.New("core: invalid delivery state transition")
	// ErrBackfillJobNotFound indicates an unknown backfill job id.
	ErrBackfillJobNotFound = errors.New("core: backfill job not found")
	// ErrInvalidBackfillState indicates a transition that the backfill
	// job state machine does not allow.
	ErrInvalidBackfillState = errors.New("core: invalid backfill job state transition")
	// ErrNotConfigured indicates a required collaborator was not wired.
	ErrNotConfigured = errors.New("core: component is not configured")
)

// DeliveryStatus captures the lifecycle of a webhook delivery record.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusProcessed DeliveryStatus = "processed"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// DefaultMaxRetries is the retry ceiling applied when configuration does
// not override it. A failed delivery at or above this count is eligible
// for the dead-letter queue.
const DefaultMaxRetries = 3

var allowedDeliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusPending: {DeliveryStatusProcessed, DeliveryStatusFailed},
	DeliveryStatusFailed:  {DeliveryStatusProcessed, DeliveryStatusFailed, DeliveryStatusPending},
	// processed is terminal
	DeliveryStatusProcessed: {},
}

// DeliveryRecord is the ledger entry for a single provider delivery. The
// (ProviderID, DeliveryID) pair is unique; RetryCount only moves up except
// when a replay resets the record to pending.
type DeliveryRecord struct {
	ID          string
	ProviderID  string
	DeliveryID  string
	EventType   string
	PayloadHash string
	Payload     []byte
	Status      DeliveryStatus
	RetryCount  int
	LastError   string
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CanTransitionTo reports whether the delivery state machine allows moving
// from the record's current status to the target status.
func (r DeliveryRecord) CanTransitionTo(target DeliveryStatus) bool {
	for _, allowed := range allowedDeliveryTransitions[r.Status] {
		if allowed == target {
			return true
		}
	}
	return false
}

// TransitionTo mutates the record status after validating the transition.
func (r *DeliveryRecord) TransitionTo(target DeliveryStatus, now time.Time) error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidDeliveryState)
	}
	if !r.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidDeliveryState, r.Status, target)
	}
	r.Status = target
	r.UpdatedAt = now.UTC()
	if target == DeliveryStatusProcessed {
		at := now.UTC()
		r.ProcessedAt = &at
	}
	return nil
}

// CreateDeliveryInput seeds a new ledger record. PayloadHash is derived
// from Payload when left empty.
type CreateDeliveryInput struct {
	ProviderID string
	DeliveryID string
	EventType  string
	Payload    []byte
}

// Validate checks the identifying fields required to create a record.
func (in CreateDeliveryInput) Validate() error {
	if strings.TrimSpace(in.ProviderID) == "" {
		return fmt.Errorf("core: provider id is required")
	}
	if strings.TrimSpace(in.DeliveryID) == "" {
		return fmt.Errorf("core: delivery id is required")
	}
	if strings.TrimSpace(in.EventType) == "" {
		return fmt.Errorf("core: event type is required")
	}
	return nil
}

// PayloadHash returns the hex encoded sha256 digest of the payload used
// to correlate redeliveries with the originally recorded body.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// GateDecision is the outcome of the idempotency check for an inbound
// delivery. Exactly one of AlreadyProcessed, ShouldProcess, or
// RouteToDeadLetter is set.
type GateDecision struct {
	AlreadyProcessed    bool
	ShouldProcess       bool
	RouteToDeadLetter   bool
	PayloadHashMismatch bool
	Record              DeliveryRecord
}

// DeadLetterEntry is the immutable snapshot published to the dead-letter
// side channel when a delivery exhausts its retries.
type DeadLetterEntry struct {
	ID                string
	ProviderID        string
	DeliveryID        string
	EventType         string
	Payload           []byte
	RetryCount        int
	LastError         string
	OriginalTimestamp time.Time
	DeadLetteredAt    time.Time
	Attempts          int
}

// Validate checks the fields required before enqueueing an entry.
func (e DeadLetterEntry) Validate() error {
	if strings.TrimSpace(e.ProviderID) == "" {
		return fmt.Errorf("core: dead letter entry provider id is required")
	}
	if strings.TrimSpace(e.DeliveryID) == "" {
		return fmt.Errorf("core: dead letter entry delivery id is required")
	}
	if strings.TrimSpace(e.EventType) == "" {
		return fmt.Errorf("core: dead letter entry event type is required")
	}
	return nil
}

// DeadLetterStats summarizes the dead-lettered population, recomputed from
// the ledger on every call rather than tracked by in-process counters.
type DeadLetterStats struct {
	Total       int
	ByEventType map[string]int
	Oldest      *time.Time
	Newest      *time.Time
}

// ReplayResult carries the reset ledger record plus the original payload
// so the caller can re-dispatch it through the normal intake path.
type ReplayResult struct {
	Record  DeliveryRecord
	Payload []byte
}

// BackfillStatus captures the lifecycle of a backfill job.
type BackfillStatus string

const (
	BackfillStatusPending    BackfillStatus = "pending"
	BackfillStatusInProgress BackfillStatus = "in_progress"
	BackfillStatusCompleted  BackfillStatus = "completed"
	BackfillStatusFailed     BackfillStatus = "failed"
)

var allowedBackfillTransitions = map[BackfillStatus][]BackfillStatus{
	BackfillStatusPending:    {BackfillStatusInProgress, BackfillStatusFailed},
	BackfillStatusInProgress: {BackfillStatusCompleted, BackfillStatusFailed},
	BackfillStatusFailed:     {BackfillStatusInProgress},
	BackfillStatusCompleted:  {},
}

// BackfillJob tracks a checkpointed file import. CheckpointOffset counts
// data rows whose outcome has been durably recorded; it never moves
// backwards. ProcessedRows always equals SuccessfulRows+FailedRows.
type BackfillJob struct {
	ID               string
	FileName         string
	TotalRows        int
	ProcessedRows    int
	SuccessfulRows   int
	FailedRows       int
	CheckpointOffset int
	Status           BackfillStatus
	LastError        string
	ErrorArtifact    string
	StartedAt        *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CanTransitionTo reports whether the job state machine allows the move.
func (j BackfillJob) CanTransitionTo(target BackfillStatus) bool {
	for _, allowed := range allowedBackfillTransitions[j.Status] {
		if allowed == target {
			return true
		}
	}
	return false
}

// TransitionTo mutates the job status after validating the transition.
func (j *BackfillJob) TransitionTo(target BackfillStatus, now time.Time) error {
	if j == nil {
		return fmt.Errorf("%w: nil job", ErrInvalidBackfillState)
	}
	if !j.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidBackfillState, j.Status, target)
	}
	j.Status = target
	j.UpdatedAt = now.UTC()
	switch target {
	case BackfillStatusInProgress:
		if j.StartedAt == nil {
			at := now.UTC()
			j.StartedAt = &at
		}
	case BackfillStatusCompleted, BackfillStatusFailed:
		at := now.UTC()
		j.CompletedAt = &at
	}
	return nil
}

// Terminal reports whether the job reached a final status.
func (j BackfillJob) Terminal() bool {
	return j.Status == BackfillStatusCompleted || j.Status == BackfillStatusFailed
}

// PercentComplete derives progress from the durable counters. The value is
// clamped to 100 so a stale TotalRows estimate can never overflow it.
func (j BackfillJob) PercentComplete() int {
	if j.TotalRows <= 0 {
		if j.Status == BackfillStatusCompleted {
			return 100
		}
		return 0
	}
	pct := int(math.Round(float64(j.ProcessedRows) / float64(j.TotalRows) * 100))
	if pct > 100 {
		pct = 100
	}
	return pct
}

// BackfillProgress is the on-demand status report for a job.
type BackfillProgress struct {
	JobID           string
	Status          BackfillStatus
	TotalRows       int
	ProcessedRows   int
	SuccessfulRows  int
	FailedRows      int
	PercentComplete int
	ErrorArtifact   string
	LastError       string
}

// RowError records a single failed backfill row for the error artifact.
// Row holds the original fields exactly as read from the source file.
type RowError struct {
	RowIndex int
	Row      []string
	Message  string
}

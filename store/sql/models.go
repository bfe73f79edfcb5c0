package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type deliveryRecord struct {
	bun.BaseModel `bun:"table:ingest_deliveries,alias:igd"`

	ID          string     `bun:"id,pk"`
	ProviderID  string     `bun:"provider_id,notnull"`
	DeliveryID  string     `bun:"delivery_id,notnull"`
	EventType   string     `bun:"event_type,notnull"`
	PayloadHash string     `bun:"payload_hash,notnull"`
	Payload     []byte     `bun:"payload"`
	Status      string     `bun:"status,notnull"`
	RetryCount  int        `bun:"retry_count,notnull"`
	LastError   string     `bun:"last_error,notnull"`
	ProcessedAt *time.Time `bun:"processed_at,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deadLetterOutboxRecord struct {
	bun.BaseModel `bun:"table:ingest_dead_letter_outbox,alias:idlo"`

	ID                string     `bun:"id,pk"`
	ProviderID        string     `bun:"provider_id,notnull"`
	DeliveryID        string     `bun:"delivery_id,notnull"`
	EventType         string     `bun:"event_type,notnull"`
	Payload           []byte     `bun:"payload"`
	RetryCount        int        `bun:"retry_count,notnull"`
	LastError         string     `bun:"last_error,notnull"`
	OriginalTimestamp time.Time  `bun:"original_timestamp,notnull"`
	DeadLetteredAt    time.Time  `bun:"dead_lettered_at,notnull"`
	Status            string     `bun:"status,notnull"`
	Attempts          int        `bun:"attempts,notnull"`
	NextAttemptAt     *time.Time `bun:"next_attempt_at,nullzero"`
	DispatchError     string     `bun:"dispatch_error,notnull"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type backfillJobRecord struct {
	bun.BaseModel `bun:"table:ingest_backfill_jobs,alias:ibj"`

	ID               string     `bun:"id,pk"`
	FileName         string     `bun:"file_name,notnull"`
	TotalRows        int        `bun:"total_rows,notnull"`
	ProcessedRows    int        `bun:"processed_rows,notnull"`
	SuccessfulRows   int        `bun:"successful_rows,notnull"`
	FailedRows       int        `bun:"failed_rows,notnull"`
	CheckpointOffset int        `bun:"checkpoint_offset,notnull"`
	Status           string     `bun:"status,notnull"`
	LastError        string     `bun:"last_error,notnull"`
	ErrorArtifact    string     `bun:"error_artifact,notnull"`
	StartedAt        *time.Time `bun:"started_at,nullzero"`
	CompletedAt      *time.Time `bun:"completed_at,nullzero"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-ingest/core"
	ingestmigrations "github.com/goliatone/go-ingest/migrations"
	sqlstore "github.com/goliatone/go-ingest/store/sql"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-ingest-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"ingest_deliveries",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "ingest_deliveries" {
		t.Fatalf("expected ingest_deliveries table, got %q", tableName)
	}
}

func TestDeliveryStore_CreateIfAbsentDedupes(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	ledger := factory.DeliveryLedger()
	if ledger == nil {
		t.Fatalf("expected delivery ledger from factory")
	}

	input := core.CreateDeliveryInput{
		ProviderID: "github",
		DeliveryID: "gh-evt-1",
		EventType:  "push",
		Payload:    []byte(`{"ref":"main"}`),
	}

	first, existed, err := ledger.CreateIfAbsent(ctx, input)
	if err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	if existed {
		t.Fatalf("expected fresh record on first create")
	}
	if first.Status != core.DeliveryStatusPending {
		t.Fatalf("expected pending status, got %q", first.Status)
	}
	if first.PayloadHash != core.PayloadHash(input.Payload) {
		t.Fatalf("expected payload hash to be recorded")
	}

	second, existed, err := ledger.CreateIfAbsent(ctx, input)
	if err != nil {
		t.Fatalf("redundant create: %v", err)
	}
	if !existed {
		t.Fatalf("expected existing record on duplicate create")
	}
	if second.ID != first.ID {
		t.Fatalf("expected duplicate create to return the original record")
	}
}

func TestDeliveryStore_ConcurrentCreateResolvesToOneRecord(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	ledger := factory.DeliveryLedger()

	input := core.CreateDeliveryInput{
		ProviderID: "github",
		DeliveryID: "gh-evt-race",
		EventType:  "push",
		Payload:    []byte(`{"ref":"main"}`),
	}

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			record, _, createErr := ledger.CreateIfAbsent(ctx, input)
			ids[slot] = record.ID
			errs[slot] = createErr
		}(i)
	}
	wg.Wait()

	for i, createErr := range errs {
		if createErr != nil {
			t.Fatalf("worker %d create: %v", i, createErr)
		}
	}
	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("expected all workers to converge on one record, got %q and %q", ids[0], ids[i])
		}
	}
}

func TestDeliveryStore_MarkTransitions(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	ledger := factory.DeliveryLedger()

	if _, _, err := ledger.CreateIfAbsent(ctx, core.CreateDeliveryInput{
		ProviderID: "stripe",
		DeliveryID: "evt_1",
		EventType:  "invoice.paid",
		Payload:    []byte(`{}`),
	}); err != nil {
		t.Fatalf("create delivery: %v", err)
	}

	failed, err := ledger.MarkFailed(ctx, "stripe", "evt_1", errors.New("downstream timeout"))
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if failed.Status != core.DeliveryStatusFailed || failed.RetryCount != 1 {
		t.Fatalf("expected failed status with retry count 1, got %q/%d", failed.Status, failed.RetryCount)
	}
	if failed.LastError != "downstream timeout" {
		t.Fatalf("expected last error recorded, got %q", failed.LastError)
	}

	failed, err = ledger.MarkFailed(ctx, "stripe", "evt_1", errors.New("still down"))
	if err != nil {
		t.Fatalf("second mark failed: %v", err)
	}
	if failed.RetryCount != 2 {
		t.Fatalf("expected retry count 2, got %d", failed.RetryCount)
	}

	processed, err := ledger.MarkProcessed(ctx, "stripe", "evt_1")
	if err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if processed.Status != core.DeliveryStatusProcessed {
		t.Fatalf("expected processed status, got %q", processed.Status)
	}
	if processed.ProcessedAt == nil {
		t.Fatalf("expected processed_at timestamp")
	}
	if processed.LastError != "" {
		t.Fatalf("expected cleared last error, got %q", processed.LastError)
	}

	// processed is terminal: idempotent re-mark, no failure path back
	if _, err := ledger.MarkProcessed(ctx, "stripe", "evt_1"); err != nil {
		t.Fatalf("idempotent mark processed: %v", err)
	}
	if _, err := ledger.MarkFailed(ctx, "stripe", "evt_1", errors.New("late failure")); !errors.Is(err, core.ErrInvalidDeliveryState) {
		t.Fatalf("expected invalid state error on failing processed record, got %v", err)
	}

	if _, err := ledger.MarkProcessed(ctx, "stripe", "evt_missing"); !errors.Is(err, core.ErrDeliveryNotFound) {
		t.Fatalf("expected not found for untracked delivery, got %v", err)
	}
}

func TestDeliveryStore_ListResetDelete(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	ledger := factory.DeliveryLedger()

	exhaust := func(deliveryID string) {
		t.Helper()
		if _, _, err := ledger.CreateIfAbsent(ctx, core.CreateDeliveryInput{
			ProviderID: "github",
			DeliveryID: deliveryID,
			EventType:  "push",
			Payload:    []byte(`{}`),
		}); err != nil {
			t.Fatalf("create %s: %v", deliveryID, err)
		}
		for i := 0; i < core.DefaultMaxRetries; i++ {
			if _, err := ledger.MarkFailed(ctx, "github", deliveryID, errors.New("handler failed")); err != nil {
				t.Fatalf("mark failed %s: %v", deliveryID, err)
			}
		}
	}

	exhaust("gh-dead-1")
	time.Sleep(5 * time.Millisecond)
	exhaust("gh-dead-2")

	dead, err := ledger.ListDeadLettered(ctx, core.DefaultMaxRetries, 0)
	if err != nil {
		t.Fatalf("list dead lettered: %v", err)
	}
	if len(dead) != 2 {
		t.Fatalf("expected 2 dead lettered records, got %d", len(dead))
	}
	if dead[0].DeliveryID != "gh-dead-2" {
		t.Fatalf("expected newest first, got %q", dead[0].DeliveryID)
	}

	limited, err := ledger.ListDeadLettered(ctx, core.DefaultMaxRetries, 1)
	if err != nil {
		t.Fatalf("list with limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d records", len(limited))
	}

	reset, err := ledger.ResetForReplay(ctx, "github", "gh-dead-1")
	if err != nil {
		t.Fatalf("reset for replay: %v", err)
	}
	if reset.Status != core.DeliveryStatusPending || reset.RetryCount != 0 || reset.LastError != "" {
		t.Fatalf("expected reset pending record, got %+v", reset)
	}

	dead, err = ledger.ListDeadLettered(ctx, core.DefaultMaxRetries, 0)
	if err != nil {
		t.Fatalf("list after reset: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("expected 1 dead lettered record after reset, got %d", len(dead))
	}

	if err := ledger.Delete(ctx, "github", "gh-dead-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := ledger.Get(ctx, "github", "gh-dead-2"); !errors.Is(err, core.ErrDeliveryNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := ledger.Delete(ctx, "github", "gh-dead-2"); !errors.Is(err, core.ErrDeliveryNotFound) {
		t.Fatalf("expected not found on double delete, got %v", err)
	}
}

func TestDeadLetterOutboxStore_ClaimAckRetryLifecycle(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	queue := factory.DeadLetterQueue()
	if queue == nil {
		t.Fatalf("expected dead letter queue from factory")
	}

	entry := core.DeadLetterEntry{
		ProviderID:        "github",
		DeliveryID:        "gh-dlq-1",
		EventType:         "push",
		Payload:           []byte(`{"ref":"main"}`),
		RetryCount:        3,
		LastError:         "handler failed",
		OriginalTimestamp: time.Now().UTC().Add(-time.Hour),
		DeadLetteredAt:    time.Now().UTC(),
	}
	if err := queue.Enqueue(ctx, entry); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := queue.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed entry, got %d", len(claimed))
	}
	if claimed[0].DeliveryID != "gh-dlq-1" {
		t.Fatalf("unexpected claimed entry %q", claimed[0].DeliveryID)
	}
	if claimed[0].ID == "" {
		t.Fatalf("expected claimed entry to carry storage id")
	}

	// claimed entries are leased: a second claim sees nothing
	again, err := queue.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("second claim batch: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no entries on second claim, got %d", len(again))
	}

	retryAt := time.Now().UTC().Add(time.Hour)
	if err := queue.Retry(ctx, claimed[0].ID, errors.New("consumer offline"), retryAt); err != nil {
		t.Fatalf("retry: %v", err)
	}

	// rescheduled in the future: not claimable yet
	notDue, err := queue.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim after reschedule: %v", err)
	}
	if len(notDue) != 0 {
		t.Fatalf("expected rescheduled entry to stay parked, got %d", len(notDue))
	}

	if err := queue.Retry(ctx, claimed[0].ID, errors.New("retry now"), time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("reschedule into the past: %v", err)
	}
	due, err := queue.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim due entry: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected due entry to be claimable, got %d", len(due))
	}
	if due[0].Attempts != 2 {
		t.Fatalf("expected 2 dispatch attempts recorded, got %d", due[0].Attempts)
	}

	if err := queue.Ack(ctx, due[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	empty, err := queue.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim after ack: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected delivered entry to leave the queue, got %d", len(empty))
	}
}

func TestDeadLetterOutboxStore_ZeroTimeRetryParksEntry(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	queue := factory.DeadLetterQueue()

	if err := queue.Enqueue(ctx, core.DeadLetterEntry{
		ProviderID:        "github",
		DeliveryID:        "gh-dlq-park",
		EventType:         "push",
		Payload:           []byte(`{}`),
		RetryCount:        3,
		LastError:         "handler failed",
		OriginalTimestamp: time.Now().UTC(),
		DeadLetteredAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := queue.ClaimBatch(ctx, 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed entry, got %d", len(claimed))
	}

	if err := queue.Retry(ctx, claimed[0].ID, errors.New("gave up"), time.Time{}); err != nil {
		t.Fatalf("park entry: %v", err)
	}
	parked, err := queue.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim after park: %v", err)
	}
	if len(parked) != 0 {
		t.Fatalf("expected parked entry to be unclaimable, got %d", len(parked))
	}
}

func TestBackfillJobStore_Roundtrip(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	jobs := factory.BackfillJobStore()
	if jobs == nil {
		t.Fatalf("expected backfill job store from factory")
	}

	created, err := jobs.Create(ctx, core.BackfillJob{
		FileName:  "contacts.csv",
		TotalRows: 100,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated job id")
	}
	if created.Status != core.BackfillStatusPending {
		t.Fatalf("expected pending status, got %q", created.Status)
	}

	created.Status = core.BackfillStatusInProgress
	created.ProcessedRows = 40
	created.SuccessfulRows = 38
	created.FailedRows = 2
	created.CheckpointOffset = 40
	created.ErrorArtifact = "/tmp/contacts-errors.csv"
	updated, err := jobs.Update(ctx, created)
	if err != nil {
		t.Fatalf("update job: %v", err)
	}
	if updated.CheckpointOffset != 40 {
		t.Fatalf("expected checkpoint 40, got %d", updated.CheckpointOffset)
	}

	fetched, err := jobs.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if fetched.ProcessedRows != 40 || fetched.SuccessfulRows != 38 || fetched.FailedRows != 2 {
		t.Fatalf("unexpected counters %d/%d/%d", fetched.ProcessedRows, fetched.SuccessfulRows, fetched.FailedRows)
	}
	if fetched.Status != core.BackfillStatusInProgress {
		t.Fatalf("expected in_progress status, got %q", fetched.Status)
	}
	if fetched.ErrorArtifact != "/tmp/contacts-errors.csv" {
		t.Fatalf("expected error artifact path, got %q", fetched.ErrorArtifact)
	}

	if _, err := jobs.Get(ctx, "missing-job"); !errors.Is(err, core.ErrBackfillJobNotFound) {
		t.Fatalf("expected not found for missing job, got %v", err)
	}
	missing := fetched
	missing.ID = "missing-job"
	if _, err := jobs.Update(ctx, missing); !errors.Is(err, core.ErrBackfillJobNotFound) {
		t.Fatalf("expected not found updating missing job, got %v", err)
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:ingest-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = ingestmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != ingestmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, ingestmigrations.WithValidationTargets(ingestmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

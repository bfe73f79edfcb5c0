package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/deadletter"
	"github.com/goliatone/go-ingest/webhooks"
)

type flakyHandler struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (h *flakyHandler) Apply(context.Context, string, []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.fail {
		return errors.New("downstream unavailable")
	}
	return nil
}

func (h *flakyHandler) setFail(fail bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fail = fail
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (r *recordingMetrics) IncCounter(_ context.Context, name string, delta int64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = map[string]int64{}
	}
	r.counters[name] += delta
}

func (r *recordingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (r *recordingMetrics) counter(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

type failingConfigProvider struct{}

func (failingConfigProvider) Load(context.Context, core.Config) (core.Config, error) {
	return core.Config{}, errors.New("config source unavailable")
}

func TestNewService_ResolvesDefaults(t *testing.T) {
	svc, err := NewService(Config{}, WithDomainHandler(&flakyHandler{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cfg := svc.Config()
	if cfg.ServiceName != "ingest" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.Retry.MaxRetries != core.DefaultMaxRetries {
		t.Fatalf("expected default max retries, got %d", cfg.Retry.MaxRetries)
	}

	deps := svc.Dependencies()
	if deps.DeliveryLedger == nil || deps.DeadLetterQueue == nil || deps.BackfillJobs == nil {
		t.Fatalf("expected memory store fallbacks to be wired")
	}
	if deps.Gate == nil || deps.Processor == nil || deps.Manager == nil || deps.Dispatcher == nil || deps.Coordinator == nil {
		t.Fatalf("expected all components to be constructed")
	}
}

func TestNewService_PropagatesConfigProviderError(t *testing.T) {
	_, err := NewService(Config{}, WithConfigProvider(failingConfigProvider{}))
	if err == nil {
		t.Fatalf("expected config provider error")
	}
	if !strings.Contains(err.Error(), "config source unavailable") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProcessDelivery_RetryExhaustionReplayAndDedup(t *testing.T) {
	ctx := context.Background()
	handler := &flakyHandler{fail: true}
	metrics := &recordingMetrics{}

	var consumed []core.DeadLetterEntry
	svc, err := NewService(Config{},
		WithDomainHandler(handler),
		WithMetricsRecorder(metrics),
		WithDeadLetterConsumers(deadletter.ConsumerFunc(func(_ context.Context, entry core.DeadLetterEntry) error {
			consumed = append(consumed, entry)
			return nil
		})),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	delivery := webhooks.InboundDelivery{
		ProviderID: "github",
		DeliveryID: "evt-100",
		EventType:  "push",
		Payload:    []byte(`{"ref":"main"}`),
	}

	for attempt := 1; attempt < core.DefaultMaxRetries; attempt++ {
		outcome, procErr := svc.ProcessDelivery(ctx, delivery)
		if procErr == nil {
			t.Fatalf("attempt %d: expected handler error", attempt)
		}
		if outcome.DeadLettered {
			t.Fatalf("attempt %d: dead lettered too early", attempt)
		}
		if outcome.StatusCode != http.StatusInternalServerError {
			t.Fatalf("attempt %d: expected 500, got %d", attempt, outcome.StatusCode)
		}
		if outcome.Record.RetryCount != attempt {
			t.Fatalf("attempt %d: expected retry count %d, got %d", attempt, attempt, outcome.Record.RetryCount)
		}
	}

	outcome, procErr := svc.ProcessDelivery(ctx, delivery)
	if procErr == nil {
		t.Fatalf("expected handler error on the exhausting attempt")
	}
	if !outcome.DeadLettered {
		t.Fatalf("expected delivery to be dead lettered")
	}
	if outcome.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 so the provider stops redelivering, got %d", outcome.StatusCode)
	}

	// a redelivery of an exhausted record is acknowledged without rework
	handlerCalls := handler.calls
	outcome, procErr = svc.ProcessDelivery(ctx, delivery)
	if procErr != nil {
		t.Fatalf("redelivery after exhaustion: %v", procErr)
	}
	if !outcome.DeadLettered {
		t.Fatalf("expected dead-lettered acknowledgement")
	}
	if handler.calls != handlerCalls {
		t.Fatalf("expected no handler invocation after exhaustion")
	}

	dead, err := svc.ListDeadLetters(ctx, 0)
	if err != nil {
		t.Fatalf("list dead letters: %v", err)
	}
	if len(dead) != 1 || dead[0].DeliveryID != "evt-100" {
		t.Fatalf("expected one dead-lettered record, got %+v", dead)
	}

	stats, err := svc.DeadLetterStats(ctx)
	if err != nil {
		t.Fatalf("dead letter stats: %v", err)
	}
	if stats.Total != 1 || stats.ByEventType["push"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	dispatch, err := svc.DispatchDeadLetters(ctx)
	if err != nil {
		t.Fatalf("dispatch dead letters: %v", err)
	}
	if dispatch.Claimed != 1 || dispatch.Delivered != 1 {
		t.Fatalf("unexpected dispatch stats: %+v", dispatch)
	}
	if len(consumed) != 1 || consumed[0].DeliveryID != "evt-100" {
		t.Fatalf("expected consumer to receive the entry, got %+v", consumed)
	}

	replayed, err := svc.Replay(ctx, "github", "evt-100")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.Record.Status != core.DeliveryStatusPending {
		t.Fatalf("expected replayed record pending, got %s", replayed.Record.Status)
	}
	if string(replayed.Payload) != `{"ref":"main"}` {
		t.Fatalf("expected original payload on replay")
	}

	handler.setFail(false)
	outcome, procErr = svc.ProcessDelivery(ctx, delivery)
	if procErr != nil {
		t.Fatalf("process after replay: %v", procErr)
	}
	if !outcome.Processed {
		t.Fatalf("expected delivery to process after replay")
	}

	outcome, procErr = svc.ProcessDelivery(ctx, delivery)
	if procErr != nil {
		t.Fatalf("redelivery of processed record: %v", procErr)
	}
	if !outcome.Deduped {
		t.Fatalf("expected redelivery to be deduped")
	}

	record, err := svc.GetDelivery(ctx, "github", "evt-100")
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if record.Status != core.DeliveryStatusProcessed {
		t.Fatalf("expected processed record, got %s", record.Status)
	}

	if metrics.counter("ingest.delivery_process.total") == 0 {
		t.Fatalf("expected delivery counter to be recorded")
	}
	if metrics.counter("ingest.deadletter_replay.total") != 1 {
		t.Fatalf("expected replay counter to be recorded")
	}
}

func TestPurgeRemovesDeadLetteredDelivery(t *testing.T) {
	ctx := context.Background()
	handler := &flakyHandler{fail: true}
	svc, err := NewService(Config{}, WithDomainHandler(handler))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	delivery := webhooks.InboundDelivery{
		ProviderID: "stripe",
		DeliveryID: "evt-7",
		EventType:  "invoice.paid",
		Payload:    []byte(`{}`),
	}
	for attempt := 0; attempt < core.DefaultMaxRetries; attempt++ {
		svc.ProcessDelivery(ctx, delivery)
	}

	if err := svc.Purge(ctx, "stripe", "evt-7"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := svc.GetDelivery(ctx, "stripe", "evt-7"); !errors.Is(err, core.ErrDeliveryNotFound) {
		t.Fatalf("expected purged delivery to be gone, got %v", err)
	}
}

func TestBackfillLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	source := filepath.Join(dir, "accounts.csv")
	content := "id,name\n1,alpha\n2,poison\n3,gamma\n"
	if err := os.WriteFile(source, []byte(content), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Backfill.ErrorArtifactDir = dir

	svc, err := NewService(cfg,
		WithRowProcessor(core.RowProcessorFunc(func(_ context.Context, row []string) error {
			if len(row) > 1 && row[1] == "poison" {
				return fmt.Errorf("rejected name %q", row[1])
			}
			return nil
		})),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	job, err := svc.CreateBackfillJob(ctx, "accounts.csv", 3)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	done, err := svc.RunBackfill(ctx, job.ID, source)
	if err != nil {
		t.Fatalf("run backfill: %v", err)
	}
	if done.Status != core.BackfillStatusCompleted {
		t.Fatalf("expected completed job, got %s", done.Status)
	}
	if done.SuccessfulRows != 2 || done.FailedRows != 1 {
		t.Fatalf("unexpected counters: %+v", done)
	}
	if done.ErrorArtifact == "" {
		t.Fatalf("expected an error artifact for the failed row")
	}
	artifact, err := os.ReadFile(done.ErrorArtifact)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !strings.Contains(string(artifact), "poison") {
		t.Fatalf("expected the failed row in the artifact, got %q", artifact)
	}

	progress, err := svc.BackfillStatus(ctx, job.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if progress.PercentComplete != 100 {
		t.Fatalf("expected 100%% complete, got %d", progress.PercentComplete)
	}
	if progress.FailedRows != 1 {
		t.Fatalf("expected one failed row, got %d", progress.FailedRows)
	}

	// resuming a completed job is a no-op
	again, err := svc.ResumeBackfill(ctx, job.ID, source)
	if err != nil {
		t.Fatalf("resume completed job: %v", err)
	}
	if again.ProcessedRows != done.ProcessedRows {
		t.Fatalf("expected completed job to stay untouched")
	}
}

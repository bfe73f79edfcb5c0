package ingest

import (
	"context"
	"time"

	"github.com/goliatone/go-ingest/backfill"
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/deadletter"
	"github.com/goliatone/go-ingest/webhooks"

	glog "github.com/goliatone/go-logger/glog"
)

// Config re-exports the runtime configuration so embedders only import
// the root package.
type Config = core.Config

// DefaultConfig returns the compiled defaults.
func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Service wires the delivery gate, the dead-letter pipeline, and the
// backfill coordinator behind one entry point. Construction resolves
// configuration layers and storage; every operation then delegates to
// the owning component.
type Service struct {
	config            core.Config
	logger            glog.Logger
	loggerProvider    glog.LoggerProvider
	metricsRecorder   core.MetricsRecorder
	persistenceClient any
	repositoryFactory any

	ledger       core.DeliveryLedger
	deadLetters  core.DeadLetterQueue
	backfillJobs core.BackfillJobStore

	gate        *webhooks.Gate
	processor   *webhooks.Processor
	manager     *deadletter.Manager
	dispatcher  *deadletter.Dispatcher
	coordinator *backfill.Coordinator
}

// ServiceDependencies exposes the resolved collaborators for composition
// by embedding applications.
type ServiceDependencies struct {
	Logger          glog.Logger
	LoggerProvider  glog.LoggerProvider
	MetricsRecorder core.MetricsRecorder
	DeliveryLedger  core.DeliveryLedger
	DeadLetterQueue core.DeadLetterQueue
	BackfillJobs    core.BackfillJobStore
	Gate            *webhooks.Gate
	Processor       *webhooks.Processor
	Manager         *deadletter.Manager
	Dispatcher      *deadletter.Dispatcher
	Coordinator     *backfill.Coordinator
}

// NewService builds a Service from the runtime config and options.
// Missing stores fall back to in-memory implementations so the service
// is usable without a database in tests and single-process embeds.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := serviceBuilder{runtimeConfig: cfg}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("ingest", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("ingest"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = core.NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = core.GoOptionsResolver{}
	}

	defaults := core.DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, err
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, err
	}

	if err := resolveStores(&builder); err != nil {
		return nil, err
	}
	if builder.deliveryLedger == nil {
		builder.deliveryLedger = core.NewMemoryDeliveryLedger()
	}
	if builder.deadLetterQueue == nil {
		builder.deadLetterQueue = deadletter.NewMemoryQueue()
	}
	if builder.backfillJobStore == nil {
		builder.backfillJobStore = backfill.NewMemoryJobStore()
	}

	gate := webhooks.NewGate(builder.deliveryLedger)
	gate.MaxRetries = finalConfig.Retry.MaxRetries
	gate.Logger = logger

	manager := deadletter.NewManager(builder.deliveryLedger, builder.deadLetterQueue)
	manager.MaxRetries = finalConfig.Retry.MaxRetries
	manager.ListLimit = finalConfig.DeadLetter.ListLimit
	manager.Logger = logger

	processor := webhooks.NewProcessor(gate, builder.domainHandler, manager)
	processor.Verifier = builder.verifier
	processor.Associations = builder.associationResolver
	if builder.deliveryIDExtractor != nil {
		processor.ExtractID = builder.deliveryIDExtractor
	}
	processor.Logger = logger

	dispatcher, err := deadletter.NewDispatcher(builder.deadLetterQueue, builder.deadLetterConsumers, deadletter.DispatcherConfig{
		BatchSize:   finalConfig.DeadLetter.DispatchBatchSize,
		MaxAttempts: finalConfig.DeadLetter.MaxDispatchAttempts,
	})
	if err != nil {
		return nil, err
	}

	coordinator := backfill.NewCoordinator(builder.backfillJobStore, builder.rowProcessor)
	coordinator.Artifacts = backfill.CSVArtifactWriter{Dir: finalConfig.Backfill.ErrorArtifactDir}
	coordinator.Logger = logger

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		ledger:            builder.deliveryLedger,
		deadLetters:       builder.deadLetterQueue,
		backfillJobs:      builder.backfillJobStore,
		gate:              gate,
		processor:         processor,
		manager:           manager,
		dispatcher:        dispatcher,
		coordinator:       coordinator,
	}, nil
}

// Setup is an alias for NewService kept for embedding symmetry.
func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func resolveStores(builder *serviceBuilder) error {
	needsStores := builder.deliveryLedger == nil || builder.deadLetterQueue == nil || builder.backfillJobStore == nil
	if !needsStores || builder.repositoryFactory == nil {
		return nil
	}
	var provider core.StoreProvider
	if storeFactory, ok := builder.repositoryFactory.(core.RepositoryStoreFactory); ok {
		built, err := storeFactory.BuildStores(builder.persistenceClient)
		if err != nil {
			return err
		}
		provider = built
	} else if direct, ok := builder.repositoryFactory.(core.StoreProvider); ok {
		provider = direct
	}
	if provider == nil {
		return nil
	}
	if builder.deliveryLedger == nil {
		builder.deliveryLedger = provider.DeliveryLedger()
	}
	if builder.deadLetterQueue == nil {
		builder.deadLetterQueue = provider.DeadLetterQueue()
	}
	if builder.backfillJobStore == nil {
		builder.backfillJobStore = provider.BackfillJobStore()
	}
	return nil
}

// Config returns the resolved runtime configuration.
func (s *Service) Config() core.Config {
	if s == nil {
		return core.Config{}
	}
	return s.config
}

// Dependencies returns the resolved collaborators.
func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		DeliveryLedger:  s.ledger,
		DeadLetterQueue: s.deadLetters,
		BackfillJobs:    s.backfillJobs,
		Gate:            s.gate,
		Processor:       s.processor,
		Manager:         s.manager,
		Dispatcher:      s.dispatcher,
		Coordinator:     s.coordinator,
	}
}

// ProcessDelivery runs one inbound webhook through verification, the
// idempotency gate, the domain handler, and dead-letter routing.
func (s *Service) ProcessDelivery(ctx context.Context, delivery webhooks.InboundDelivery) (outcome webhooks.DeliveryOutcome, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": delivery.ProviderID,
		"delivery_id": delivery.DeliveryID,
		"event_type":  delivery.EventType,
	}
	defer func() {
		fields["deduped"] = outcome.Deduped
		fields["dead_lettered"] = outcome.DeadLettered
		s.observeOperation(ctx, startedAt, "delivery_process", err, fields)
	}()
	outcome, err = s.processor.Process(ctx, delivery)
	return outcome, err
}

// GetDelivery loads the ledger record for one delivery.
func (s *Service) GetDelivery(ctx context.Context, providerID, deliveryID string) (core.DeliveryRecord, error) {
	if s == nil || s.ledger == nil {
		return core.DeliveryRecord{}, errServiceNotConfigured("delivery ledger")
	}
	return s.ledger.Get(ctx, providerID, deliveryID)
}

// Replay resets a dead-lettered delivery to pending and returns the
// original payload for re-dispatch through the intake path.
func (s *Service) Replay(ctx context.Context, providerID, deliveryID string) (result core.ReplayResult, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "deadletter_replay", err, map[string]any{
			"provider_id": providerID,
			"delivery_id": deliveryID,
		})
	}()
	result, err = s.manager.Replay(ctx, providerID, deliveryID)
	return result, err
}

// Purge permanently removes a dead-lettered delivery from the ledger.
func (s *Service) Purge(ctx context.Context, providerID, deliveryID string) (err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "deadletter_purge", err, map[string]any{
			"provider_id": providerID,
			"delivery_id": deliveryID,
		})
	}()
	return s.manager.Purge(ctx, providerID, deliveryID)
}

// ListDeadLetters returns dead-lettered deliveries, newest first.
func (s *Service) ListDeadLetters(ctx context.Context, limit int) ([]core.DeliveryRecord, error) {
	if s == nil || s.manager == nil {
		return nil, errServiceNotConfigured("dead letter manager")
	}
	return s.manager.List(ctx, limit)
}

// DeadLetterStats summarizes the dead-lettered population.
func (s *Service) DeadLetterStats(ctx context.Context) (core.DeadLetterStats, error) {
	if s == nil || s.manager == nil {
		return core.DeadLetterStats{}, errServiceNotConfigured("dead letter manager")
	}
	return s.manager.Stats(ctx)
}

// DispatchDeadLetters drains one batch of queued dead-letter entries to
// the registered consumers.
func (s *Service) DispatchDeadLetters(ctx context.Context) (stats deadletter.DispatchStats, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "deadletter_dispatch", err, map[string]any{
			"claimed":   stats.Claimed,
			"delivered": stats.Delivered,
			"retried":   stats.Retried,
			"failed":    stats.Failed,
		})
	}()
	if s == nil || s.dispatcher == nil {
		return deadletter.DispatchStats{}, errServiceNotConfigured("dead letter dispatcher")
	}
	stats, err = s.dispatcher.DispatchPending(ctx, s.config.DeadLetter.DispatchBatchSize)
	return stats, err
}

// CreateBackfillJob registers a new pending backfill job.
func (s *Service) CreateBackfillJob(ctx context.Context, fileName string, totalRows int) (job core.BackfillJob, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "backfill_create", err, map[string]any{
			"file_name":  fileName,
			"total_rows": totalRows,
		})
	}()
	if s == nil || s.coordinator == nil {
		return core.BackfillJob{}, errServiceNotConfigured("backfill coordinator")
	}
	job, err = s.coordinator.CreateJob(ctx, fileName, totalRows)
	return job, err
}

// RunBackfill processes the CSV at sourcePath against the job's
// checkpoint, from the beginning on first run.
func (s *Service) RunBackfill(ctx context.Context, jobID, sourcePath string) (core.BackfillJob, error) {
	return s.runBackfill(ctx, "backfill_run", jobID, sourcePath)
}

// ResumeBackfill re-opens the source and continues an interrupted job
// from its persisted checkpoint.
func (s *Service) ResumeBackfill(ctx context.Context, jobID, sourcePath string) (core.BackfillJob, error) {
	return s.runBackfill(ctx, "backfill_resume", jobID, sourcePath)
}

func (s *Service) runBackfill(ctx context.Context, operation, jobID, sourcePath string) (job core.BackfillJob, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		fields := map[string]any{
			"job_id":      jobID,
			"source_path": sourcePath,
		}
		fields["processed_rows"] = job.ProcessedRows
		fields["failed_rows"] = job.FailedRows
		s.observeOperation(ctx, startedAt, operation, err, fields)
	}()
	if s == nil || s.coordinator == nil {
		return core.BackfillJob{}, errServiceNotConfigured("backfill coordinator")
	}
	stream, err := backfill.OpenCSVFile(sourcePath)
	if err != nil {
		return core.BackfillJob{}, err
	}
	defer stream.Close()
	job, err = s.coordinator.Process(ctx, jobID, stream)
	return job, err
}

// BackfillStatus reports progress and error state for one job.
func (s *Service) BackfillStatus(ctx context.Context, jobID string) (core.BackfillProgress, error) {
	if s == nil || s.coordinator == nil {
		return core.BackfillProgress{}, errServiceNotConfigured("backfill coordinator")
	}
	return s.coordinator.Status(ctx, jobID)
}

package ingest

import (
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/deadletter"
	"github.com/goliatone/go-ingest/webhooks"

	glog "github.com/goliatone/go-logger/glog"
)

type serviceBuilder struct {
	runtimeConfig       core.Config
	logger              glog.Logger
	loggerProvider      glog.LoggerProvider
	metricsRecorder     core.MetricsRecorder
	persistenceClient   any
	repositoryFactory   any
	configProvider      core.ConfigProvider
	optionsResolver     core.OptionsResolver
	deliveryLedger      core.DeliveryLedger
	deadLetterQueue     core.DeadLetterQueue
	backfillJobStore    core.BackfillJobStore
	domainHandler       core.DomainHandler
	rowProcessor        core.RowProcessor
	associationResolver core.AssociationResolver
	verifier            webhooks.Verifier
	deliveryIDExtractor webhooks.DeliveryIDExtractor
	deadLetterConsumers []deadletter.Consumer
}

// Option customizes service construction.
type Option func(*serviceBuilder)

func WithLogger(logger glog.Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

// WithPersistenceClient supplies the handle passed through to the
// repository factory when stores are built from storage.
func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

// WithRepositoryFactory accepts either a core.RepositoryStoreFactory or a
// ready core.StoreProvider.
func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithDeliveryLedger(ledger core.DeliveryLedger) Option {
	return func(b *serviceBuilder) {
		b.deliveryLedger = ledger
	}
}

func WithDeadLetterQueue(queue core.DeadLetterQueue) Option {
	return func(b *serviceBuilder) {
		b.deadLetterQueue = queue
	}
}

func WithBackfillJobStore(store core.BackfillJobStore) Option {
	return func(b *serviceBuilder) {
		b.backfillJobStore = store
	}
}

// WithDomainHandler sets the side effect applied to verified deliveries.
func WithDomainHandler(handler core.DomainHandler) Option {
	return func(b *serviceBuilder) {
		b.domainHandler = handler
	}
}

// WithRowProcessor sets the per-row handler for backfill jobs.
func WithRowProcessor(processor core.RowProcessor) Option {
	return func(b *serviceBuilder) {
		b.rowProcessor = processor
	}
}

func WithAssociationResolver(resolver core.AssociationResolver) Option {
	return func(b *serviceBuilder) {
		b.associationResolver = resolver
	}
}

func WithVerifier(verifier webhooks.Verifier) Option {
	return func(b *serviceBuilder) {
		b.verifier = verifier
	}
}

func WithDeliveryIDExtractor(extractor webhooks.DeliveryIDExtractor) Option {
	return func(b *serviceBuilder) {
		b.deliveryIDExtractor = extractor
	}
}

// WithDeadLetterConsumers registers the downstream consumers the
// dispatcher fans dead-letter entries out to.
func WithDeadLetterConsumers(consumers ...deadletter.Consumer) Option {
	return func(b *serviceBuilder) {
		b.deadLetterConsumers = append(b.deadLetterConsumers, consumers...)
	}
}

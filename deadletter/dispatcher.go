package deadletter

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"
)

// Consumer receives dead-letter entries drained from the side channel,
// typically to alert, archive, or forward them to an operator surface.
type Consumer interface {
	Handle(ctx context.Context, entry core.DeadLetterEntry) error
}

// ConsumerFunc adapts a function to the Consumer contract.
type ConsumerFunc func(ctx context.Context, entry core.DeadLetterEntry) error

func (f ConsumerFunc) Handle(ctx context.Context, entry core.DeadLetterEntry) error {
	return f(ctx, entry)
}

type DispatcherConfig struct {
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:      50,
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     5 * time.Minute,
	}
}

// DispatchStats summarizes one drain pass.
type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
}

// Dispatcher drains claimed dead-letter entries to the registered
// consumers with bounded exponential retry.
type Dispatcher struct {
	queue     core.DeadLetterQueue
	consumers []Consumer
	config    DispatcherConfig
	now       func() time.Time
}

func NewDispatcher(queue core.DeadLetterQueue, consumers []Consumer, config DispatcherConfig) (*Dispatcher, error) {
	if queue == nil {
		return nil, fmt.Errorf("deadletter: queue is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultDispatcherConfig().BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultDispatcherConfig().MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = DefaultDispatcherConfig().InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultDispatcherConfig().MaxBackoff
	}
	return &Dispatcher{
		queue:     queue,
		consumers: consumers,
		config:    config,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// DispatchPending claims up to batchSize entries and fans each out to the
// consumers. Entries that fail are rescheduled with backoff until the
// attempt ceiling parks them as failed.
func (d *Dispatcher) DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error) {
	if d == nil || d.queue == nil {
		return DispatchStats{}, fmt.Errorf("deadletter: dispatcher is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = d.config.BatchSize
	}
	entries, err := d.queue.ClaimBatch(ctx, limit)
	if err != nil {
		return DispatchStats{}, err
	}

	stats := DispatchStats{Claimed: len(entries)}
	var dispatchErr error
	for _, entry := range entries {
		if err := d.dispatchOne(ctx, entry); err != nil {
			if retryErr := d.retryEntry(ctx, entry, err); retryErr != nil {
				dispatchErr = joinErrors(dispatchErr, retryErr)
			}
			if entry.Attempts+1 >= d.config.MaxAttempts {
				stats.Failed++
			} else {
				stats.Retried++
			}
			dispatchErr = joinErrors(dispatchErr, err)
			continue
		}
		if err := d.queue.Ack(ctx, strings.TrimSpace(entry.ID)); err != nil {
			dispatchErr = joinErrors(dispatchErr, err)
			continue
		}
		stats.Delivered++
	}

	return stats, dispatchErr
}

func (d *Dispatcher) dispatchOne(ctx context.Context, entry core.DeadLetterEntry) error {
	for i, consumer := range d.consumers {
		if consumer == nil {
			continue
		}
		if err := consumer.Handle(ctx, entry); err != nil {
			return fmt.Errorf("deadletter: consumer %d failed for entry %q: %w", i, entry.ID, err)
		}
	}
	return nil
}

func (d *Dispatcher) retryEntry(ctx context.Context, entry core.DeadLetterEntry, cause error) error {
	if entry.Attempts+1 >= d.config.MaxAttempts {
		return d.queue.Retry(ctx, strings.TrimSpace(entry.ID), cause, time.Time{})
	}
	nextAttemptAt := d.now().Add(d.nextBackoffDelay(entry.Attempts + 1))
	return d.queue.Retry(ctx, strings.TrimSpace(entry.ID), cause, nextAttemptAt)
}

func (d *Dispatcher) nextBackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(d.config.InitialBackoff)
	multiplier := math.Pow(2, float64(attempt-1))
	next := time.Duration(base * multiplier)
	if next < 0 {
		return d.config.MaxBackoff
	}
	if next > d.config.MaxBackoff {
		return d.config.MaxBackoff
	}
	return next
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}

// Package gocommand bridges the ingest command and query handlers into the
// go-command registry and dispatcher so callers can drive dead-letter replay
// and backfill operations through message dispatch.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	ingestcommand "github.com/goliatone/go-ingest/command"
	ingestquery "github.com/goliatone/go-ingest/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// HandlerSet groups the module's command and query handlers for bulk
// registration. Nil entries are skipped so embedders can wire only the
// operations they expose.
type HandlerSet struct {
	ReplayDelivery    *ingestcommand.ReplayDeliveryCommand
	PurgeDelivery     *ingestcommand.PurgeDeliveryCommand
	DispatchPending   *ingestcommand.DispatchPendingCommand
	CreateBackfillJob *ingestcommand.CreateBackfillJobCommand
	RunBackfill       *ingestcommand.RunBackfillCommand
	ResumeBackfill    *ingestcommand.ResumeBackfillCommand

	GetBackfillStatus *ingestquery.GetBackfillStatusQuery
	GetDelivery       *ingestquery.GetDeliveryQuery
	ListDeadLetters   *ingestquery.ListDeadLettersQuery
	DeadLetterStats   *ingestquery.DeadLetterStatsQuery
}

// RegisterHandlerSet registers every non-nil handler with the registry and
// subscribes it to the dispatcher. On error the subscriptions created so
// far are released.
func RegisterHandlerSet(adapter *RegistryAdapter, set HandlerSet, runnerOpts ...runner.Option) ([]commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}

	var subscriptions []commanddispatcher.Subscription
	release := func() {
		for _, subscription := range subscriptions {
			if subscription != nil {
				subscription.Unsubscribe()
			}
		}
	}
	addCommand := func(register func() (commanddispatcher.Subscription, error)) error {
		subscription, err := register()
		if err != nil {
			release()
			return err
		}
		subscriptions = append(subscriptions, subscription)
		return nil
	}

	if set.ReplayDelivery != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, set.ReplayDelivery, runnerOpts...)
		}); err != nil {
			return nil, err
		}
	}
	if set.PurgeDelivery != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, set.PurgeDelivery, runnerOpts...)
		}); err != nil {
			return nil, err
		}
	}
	if set.DispatchPending != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, set.DispatchPending, runnerOpts...)
		}); err != nil {
			return nil, err
		}
	}
	if set.CreateBackfillJob != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, set.CreateBackfillJob, runnerOpts...)
		}); err != nil {
			return nil, err
		}
	}
	if set.RunBackfill != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, set.RunBackfill, runnerOpts...)
		}); err != nil {
			return nil, err
		}
	}
	if set.ResumeBackfill != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, set.ResumeBackfill, runnerOpts...)
		}); err != nil {
			return nil, err
		}
	}
	if set.GetBackfillStatus != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, set.GetBackfillStatus, runnerOpts...)
		}); err != nil {
			return nil, err
		}
	}
	if set.GetDelivery != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, set.GetDelivery, runnerOpts...)
		}); err != nil {
			return nil, err
		}
	}
	if set.ListDeadLetters != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, set.ListDeadLetters, runnerOpts...)
		}); err != nil {
			return nil, err
		}
	}
	if set.DeadLetterStats != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, set.DeadLetterStats, runnerOpts...)
		}); err != nil {
			return nil, err
		}
	}

	return subscriptions, nil
}

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

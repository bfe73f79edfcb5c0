package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/deadletter"
)

type DeadLetterMutatingService interface {
	Replay(ctx context.Context, providerID, deliveryID string) (core.ReplayResult, error)
	Purge(ctx context.Context, providerID, deliveryID string) error
	DispatchDeadLetters(ctx context.Context) (deadletter.DispatchStats, error)
}

type BackfillMutatingService interface {
	CreateBackfillJob(ctx context.Context, fileName string, totalRows int) (core.BackfillJob, error)
	RunBackfill(ctx context.Context, jobID, sourcePath string) (core.BackfillJob, error)
	ResumeBackfill(ctx context.Context, jobID, sourcePath string) (core.BackfillJob, error)
}

type ReplayDeliveryCommand struct {
	service DeadLetterMutatingService
}

func NewReplayDeliveryCommand(service DeadLetterMutatingService) *ReplayDeliveryCommand {
	return &ReplayDeliveryCommand{service: service}
}

func (c *ReplayDeliveryCommand) Execute(ctx context.Context, msg ReplayDeliveryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dead letter service is required")
	}
	out, err := c.service.Replay(ctx, msg.ProviderID, msg.DeliveryID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PurgeDeliveryCommand struct {
	service DeadLetterMutatingService
}

func NewPurgeDeliveryCommand(service DeadLetterMutatingService) *PurgeDeliveryCommand {
	return &PurgeDeliveryCommand{service: service}
}

func (c *PurgeDeliveryCommand) Execute(ctx context.Context, msg PurgeDeliveryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dead letter service is required")
	}
	return c.service.Purge(ctx, msg.ProviderID, msg.DeliveryID)
}

type DispatchPendingCommand struct {
	service DeadLetterMutatingService
}

func NewDispatchPendingCommand(service DeadLetterMutatingService) *DispatchPendingCommand {
	return &DispatchPendingCommand{service: service}
}

func (c *DispatchPendingCommand) Execute(ctx context.Context, msg DispatchPendingMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dead letter service is required")
	}
	out, err := c.service.DispatchDeadLetters(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateBackfillJobCommand struct {
	service BackfillMutatingService
}

func NewCreateBackfillJobCommand(service BackfillMutatingService) *CreateBackfillJobCommand {
	return &CreateBackfillJobCommand{service: service}
}

func (c *CreateBackfillJobCommand) Execute(ctx context.Context, msg CreateBackfillJobMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: backfill service is required")
	}
	out, err := c.service.CreateBackfillJob(ctx, msg.FileName, msg.TotalRows)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RunBackfillCommand struct {
	service BackfillMutatingService
}

func NewRunBackfillCommand(service BackfillMutatingService) *RunBackfillCommand {
	return &RunBackfillCommand{service: service}
}

func (c *RunBackfillCommand) Execute(ctx context.Context, msg RunBackfillMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: backfill service is required")
	}
	out, err := c.service.RunBackfill(ctx, msg.JobID, msg.SourcePath)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResumeBackfillCommand struct {
	service BackfillMutatingService
}

func NewResumeBackfillCommand(service BackfillMutatingService) *ResumeBackfillCommand {
	return &ResumeBackfillCommand{service: service}
}

func (c *ResumeBackfillCommand) Execute(ctx context.Context, msg ResumeBackfillMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: backfill service is required")
	}
	out, err := c.service.ResumeBackfill(ctx, msg.JobID, msg.SourcePath)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

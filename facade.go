package ingest

import (
	"fmt"

	ingestcommand "github.com/goliatone/go-ingest/command"
	ingestquery "github.com/goliatone/go-ingest/query"
)

// CommandQueryService is the surface the facade expects: the mutating
// operations plus the read models. *Service satisfies it.
type CommandQueryService interface {
	ingestcommand.DeadLetterMutatingService
	ingestcommand.BackfillMutatingService
	ingestquery.BackfillReader
	ingestquery.DeliveryReader
	ingestquery.DeadLetterReader
}

// Commands groups the command handlers bound to one service.
type Commands struct {
	ReplayDelivery    *ingestcommand.ReplayDeliveryCommand
	PurgeDelivery     *ingestcommand.PurgeDeliveryCommand
	DispatchPending   *ingestcommand.DispatchPendingCommand
	CreateBackfillJob *ingestcommand.CreateBackfillJobCommand
	RunBackfill       *ingestcommand.RunBackfillCommand
	ResumeBackfill    *ingestcommand.ResumeBackfillCommand
}

// Queries groups the query handlers bound to one service.
type Queries struct {
	GetBackfillStatus *ingestquery.GetBackfillStatusQuery
	GetDelivery       *ingestquery.GetDeliveryQuery
	ListDeadLetters   *ingestquery.ListDeadLettersQuery
	DeadLetterStats   *ingestquery.DeadLetterStatsQuery
}

// Facade exposes the service as command and query handlers ready to be
// registered with a dispatcher.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("ingest: command/query service is required")
	}
	facade := &Facade{service: service}
	facade.commands = Commands{
		ReplayDelivery:    ingestcommand.NewReplayDeliveryCommand(service),
		PurgeDelivery:     ingestcommand.NewPurgeDeliveryCommand(service),
		DispatchPending:   ingestcommand.NewDispatchPendingCommand(service),
		CreateBackfillJob: ingestcommand.NewCreateBackfillJobCommand(service),
		RunBackfill:       ingestcommand.NewRunBackfillCommand(service),
		ResumeBackfill:    ingestcommand.NewResumeBackfillCommand(service),
	}
	facade.queries = Queries{
		GetBackfillStatus: ingestquery.NewGetBackfillStatusQuery(service),
		GetDelivery:       ingestquery.NewGetDeliveryQuery(service),
		ListDeadLetters:   ingestquery.NewListDeadLettersQuery(service),
		DeadLetterStats:   ingestquery.NewDeadLetterStatsQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Service)(nil)

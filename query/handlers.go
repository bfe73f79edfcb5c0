package query

import (
	"context"

	"github.com/goliatone/go-ingest/core"
)

type BackfillReader interface {
	BackfillStatus(ctx context.Context, jobID string) (core.BackfillProgress, error)
}

type DeliveryReader interface {
	GetDelivery(ctx context.Context, providerID, deliveryID string) (core.DeliveryRecord, error)
}

type DeadLetterReader interface {
	ListDeadLetters(ctx context.Context, limit int) ([]core.DeliveryRecord, error)
	DeadLetterStats(ctx context.Context) (core.DeadLetterStats, error)
}

type GetBackfillStatusQuery struct {
	reader BackfillReader
}

func NewGetBackfillStatusQuery(reader BackfillReader) *GetBackfillStatusQuery {
	return &GetBackfillStatusQuery{reader: reader}
}

func (q *GetBackfillStatusQuery) Query(ctx context.Context, msg GetBackfillStatusMessage) (core.BackfillProgress, error) {
	if q == nil || q.reader == nil {
		return core.BackfillProgress{}, queryDependencyError("query: backfill reader is required")
	}
	return q.reader.BackfillStatus(ctx, msg.JobID)
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (core.DeliveryRecord, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryRecord{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.GetDelivery(ctx, msg.ProviderID, msg.DeliveryID)
}

type ListDeadLettersQuery struct {
	reader DeadLetterReader
}

func NewListDeadLettersQuery(reader DeadLetterReader) *ListDeadLettersQuery {
	return &ListDeadLettersQuery{reader: reader}
}

func (q *ListDeadLettersQuery) Query(ctx context.Context, msg ListDeadLettersMessage) ([]core.DeliveryRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: dead letter reader is required")
	}
	return q.reader.ListDeadLetters(ctx, msg.Limit)
}

type DeadLetterStatsQuery struct {
	reader DeadLetterReader
}

func NewDeadLetterStatsQuery(reader DeadLetterReader) *DeadLetterStatsQuery {
	return &DeadLetterStatsQuery{reader: reader}
}

func (q *DeadLetterStatsQuery) Query(ctx context.Context, msg DeadLetterStatsMessage) (core.DeadLetterStats, error) {
	if q == nil || q.reader == nil {
		return core.DeadLetterStats{}, queryDependencyError("query: dead letter reader is required")
	}
	return q.reader.DeadLetterStats(ctx)
}

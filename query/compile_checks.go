package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ingest/core"
)

var (
	_ gocmd.Querier[GetBackfillStatusMessage, core.BackfillProgress] = (*GetBackfillStatusQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, core.DeliveryRecord]         = (*GetDeliveryQuery)(nil)
	_ gocmd.Querier[ListDeadLettersMessage, []core.DeliveryRecord]   = (*ListDeadLettersQuery)(nil)
	_ gocmd.Querier[DeadLetterStatsMessage, core.DeadLetterStats]    = (*DeadLetterStatsQuery)(nil)
)

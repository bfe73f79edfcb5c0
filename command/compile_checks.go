package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ReplayDeliveryMessage]    = (*ReplayDeliveryCommand)(nil)
	_ gocmd.Commander[PurgeDeliveryMessage]     = (*PurgeDeliveryCommand)(nil)
	_ gocmd.Commander[DispatchPendingMessage]   = (*DispatchPendingCommand)(nil)
	_ gocmd.Commander[CreateBackfillJobMessage] = (*CreateBackfillJobCommand)(nil)
	_ gocmd.Commander[RunBackfillMessage]       = (*RunBackfillCommand)(nil)
	_ gocmd.Commander[ResumeBackfillMessage]    = (*ResumeBackfillCommand)(nil)
)

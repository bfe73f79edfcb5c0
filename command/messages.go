package command

import (
	"fmt"
	"strings"
)

const (
	TypeReplayDelivery    = "ingest.command.deadletter.replay"
	TypePurgeDelivery     = "ingest.command.deadletter.purge"
	TypeDispatchPending   = "ingest.command.deadletter.dispatch"
	TypeCreateBackfillJob = "ingest.command.backfill.create"
	TypeRunBackfill       = "ingest.command.backfill.run"
	TypeResumeBackfill    = "ingest.command.backfill.resume"
)

type ReplayDeliveryMessage struct {
	ProviderID string
	DeliveryID string
}

func (ReplayDeliveryMessage) Type() string { return TypeReplayDelivery }

func (m ReplayDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("command: delivery id is required")
	}
	return nil
}

type PurgeDeliveryMessage struct {
	ProviderID string
	DeliveryID string
}

func (PurgeDeliveryMessage) Type() string { return TypePurgeDelivery }

func (m PurgeDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("command: delivery id is required")
	}
	return nil
}

type DispatchPendingMessage struct{}

func (DispatchPendingMessage) Type() string { return TypeDispatchPending }

func (DispatchPendingMessage) Validate() error { return nil }

type CreateBackfillJobMessage struct {
	FileName  string
	TotalRows int
}

func (CreateBackfillJobMessage) Type() string { return TypeCreateBackfillJob }

func (m CreateBackfillJobMessage) Validate() error {
	if strings.TrimSpace(m.FileName) == "" {
		return fmt.Errorf("command: file name is required")
	}
	if m.TotalRows < 0 {
		return fmt.Errorf("command: total rows cannot be negative")
	}
	return nil
}

type RunBackfillMessage struct {
	JobID      string
	SourcePath string
}

func (RunBackfillMessage) Type() string { return TypeRunBackfill }

func (m RunBackfillMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("command: job id is required")
	}
	if strings.TrimSpace(m.SourcePath) == "" {
		return fmt.Errorf("command: source path is required")
	}
	return nil
}

type ResumeBackfillMessage struct {
	JobID      string
	SourcePath string
}

func (ResumeBackfillMessage) Type() string { return TypeResumeBackfill }

func (m ResumeBackfillMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("command: job id is required")
	}
	if strings.TrimSpace(m.SourcePath) == "" {
		return fmt.Errorf("command: source path is required")
	}
	return nil
}

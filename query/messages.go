package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetBackfillStatus = "ingest.query.backfill.status"
	TypeGetDelivery       = "ingest.query.delivery.get"
	TypeListDeadLetters   = "ingest.query.deadletter.list"
	TypeDeadLetterStats   = "ingest.query.deadletter.stats"
)

type GetBackfillStatusMessage struct {
	JobID string
}

func (GetBackfillStatusMessage) Type() string { return TypeGetBackfillStatus }

func (m GetBackfillStatusMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("query: job id is required")
	}
	return nil
}

type GetDeliveryMessage struct {
	ProviderID string
	DeliveryID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("query: provider id is required")
	}
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("query: delivery id is required")
	}
	return nil
}

type ListDeadLettersMessage struct {
	Limit int
}

func (ListDeadLettersMessage) Type() string { return TypeListDeadLetters }

func (m ListDeadLettersMessage) Validate() error {
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}

type DeadLetterStatsMessage struct{}

func (DeadLetterStatsMessage) Type() string { return TypeDeadLetterStats }

func (DeadLetterStatsMessage) Validate() error { return nil }

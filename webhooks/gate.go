package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"

	glog "github.com/goliatone/go-logger/glog"
)

// Gate is the idempotency check every inbound delivery passes before any
// domain side effect runs. It records first-seen deliveries, short
// circuits processed ones, and routes retry-exhausted failures to the
// dead-letter path.
type Gate struct {
	Ledger     core.DeliveryLedger
	MaxRetries int
	Logger     glog.Logger
	Now        func() time.Time
}

func NewGate(ledger core.DeliveryLedger) *Gate {
	return &Gate{
		Ledger:     ledger,
		MaxRetries: core.DefaultMaxRetries,
		Logger:     glog.Nop(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (g *Gate) maxRetries() int {
	if g != nil && g.MaxRetries > 0 {
		return g.MaxRetries
	}
	return core.DefaultMaxRetries
}

func (g *Gate) logger() glog.Logger {
	if g != nil && g.Logger != nil {
		return g.Logger
	}
	return glog.Nop()
}

// Check resolves the processing decision for a delivery. First-seen
// deliveries are recorded as pending before the decision is returned, so
// a crash between Check and the mark calls leaves an auditable record.
func (g *Gate) Check(ctx context.Context, in core.CreateDeliveryInput) (core.GateDecision, error) {
	if g == nil || g.Ledger == nil {
		return core.GateDecision{}, fmt.Errorf("webhooks: gate requires a delivery ledger")
	}
	if err := in.Validate(); err != nil {
		return core.GateDecision{}, err
	}

	record, existed, err := g.Ledger.CreateIfAbsent(ctx, in)
	if err != nil {
		return core.GateDecision{}, err
	}

	decision := core.GateDecision{Record: record}
	if !existed {
		decision.ShouldProcess = true
		return decision, nil
	}

	payloadHash := core.PayloadHash(in.Payload)
	if record.PayloadHash != "" && record.PayloadHash != payloadHash {
		// Same delivery id with a different body. The original hash stays
		// authoritative; the mismatch is surfaced for investigation.
		decision.PayloadHashMismatch = true
		g.logger().Info("webhook payload hash mismatch on redelivery",
			"provider_id", record.ProviderID,
			"delivery_id", record.DeliveryID,
			"recorded_hash", record.PayloadHash,
			"received_hash", payloadHash,
		)
	}

	switch record.Status {
	case core.DeliveryStatusProcessed:
		decision.AlreadyProcessed = true
	case core.DeliveryStatusFailed:
		if record.RetryCount >= g.maxRetries() {
			decision.RouteToDeadLetter = true
		} else {
			decision.ShouldProcess = true
		}
	default:
		// A pending record means a previous attempt never reached a mark
		// call. Reprocessing is safe: the domain handler sits behind this
		// gate and the record is still not processed.
		decision.ShouldProcess = true
	}
	return decision, nil
}

// MarkProcessed transitions the delivery to its terminal state. Unknown
// deliveries are an error: processing something the gate never admitted
// indicates the intake path was bypassed.
func (g *Gate) MarkProcessed(ctx context.Context, providerID, deliveryID string) (core.DeliveryRecord, error) {
	if g == nil || g.Ledger == nil {
		return core.DeliveryRecord{}, fmt.Errorf("webhooks: gate requires a delivery ledger")
	}
	record, err := g.Ledger.MarkProcessed(ctx, strings.TrimSpace(providerID), strings.TrimSpace(deliveryID))
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	return record, nil
}

// MarkFailed increments the retry count and stores the cause. Marking an
// unknown delivery is a logged no-op so cleanup races never mask the
// original handler failure.
func (g *Gate) MarkFailed(ctx context.Context, providerID, deliveryID string, cause error) (core.DeliveryRecord, error) {
	if g == nil || g.Ledger == nil {
		return core.DeliveryRecord{}, fmt.Errorf("webhooks: gate requires a delivery ledger")
	}
	record, err := g.Ledger.MarkFailed(ctx, strings.TrimSpace(providerID), strings.TrimSpace(deliveryID), cause)
	if err != nil {
		if errors.Is(err, core.ErrDeliveryNotFound) {
			g.logger().Info("mark failed on untracked delivery",
				"provider_id", providerID,
				"delivery_id", deliveryID,
				"cause", fmt.Sprint(cause),
			)
			return core.DeliveryRecord{}, nil
		}
		return core.DeliveryRecord{}, err
	}
	return record, nil
}

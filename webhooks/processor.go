package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"

	glog "github.com/goliatone/go-logger/glog"
)

// InboundDelivery is a provider webhook after transport decoding.
type InboundDelivery struct {
	ProviderID string
	DeliveryID string
	EventType  string
	Payload    []byte
	Headers    map[string]string
	Metadata   map[string]any
}

// Verifier authenticates an inbound delivery before it reaches the gate.
type Verifier interface {
	Verify(ctx context.Context, delivery InboundDelivery) error
}

// DeliveryIDExtractor resolves the provider's delivery identifier when the
// transport did not populate it directly.
type DeliveryIDExtractor func(delivery InboundDelivery) (string, error)

// DeadLetterPublisher receives deliveries whose retries are exhausted.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, record core.DeliveryRecord) error
}

// DeliveryOutcome reports what the processor did with one delivery.
type DeliveryOutcome struct {
	Processed    bool
	Deduped      bool
	DeadLettered bool
	StatusCode   int
	Record       core.DeliveryRecord
	Metadata     map[string]any
}

// Processor drives a single delivery through verification, the
// idempotency gate, the domain handler, and dead-letter routing.
type Processor struct {
	Gate         *Gate
	Verifier     Verifier
	Handler      core.DomainHandler
	DeadLetters  DeadLetterPublisher
	Associations core.AssociationResolver
	ExtractID    DeliveryIDExtractor
	Logger       glog.Logger
	Now          func() time.Time
}

func NewProcessor(gate *Gate, handler core.DomainHandler, deadLetters DeadLetterPublisher) *Processor {
	return &Processor{
		Gate:        gate,
		Handler:     handler,
		DeadLetters: deadLetters,
		ExtractID:   DefaultDeliveryIDExtractor,
		Logger:      glog.Nop(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Processor) logger() glog.Logger {
	if p != nil && p.Logger != nil {
		return p.Logger
	}
	return glog.Nop()
}

// Process runs the full intake path for one delivery. Handler errors are
// returned to the caller after the failure is recorded so the transport
// can signal the provider to redeliver.
func (p *Processor) Process(ctx context.Context, delivery InboundDelivery) (DeliveryOutcome, error) {
	if p == nil || p.Gate == nil || p.Handler == nil {
		return DeliveryOutcome{}, fmt.Errorf("webhooks: processor requires gate and handler")
	}

	providerID := strings.TrimSpace(delivery.ProviderID)
	if providerID == "" {
		return DeliveryOutcome{}, fmt.Errorf("webhooks: provider id is required")
	}
	delivery.ProviderID = providerID

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, delivery); err != nil {
			return DeliveryOutcome{
				StatusCode: http.StatusUnauthorized,
				Metadata: map[string]any{
					"provider_id": providerID,
					"rejected":    true,
				},
			}, err
		}
	}

	extractor := p.ExtractID
	if extractor == nil {
		extractor = DefaultDeliveryIDExtractor
	}
	deliveryID, err := extractor(delivery)
	if err != nil {
		return DeliveryOutcome{}, err
	}
	delivery.DeliveryID = deliveryID

	decision, err := p.Gate.Check(ctx, core.CreateDeliveryInput{
		ProviderID: providerID,
		DeliveryID: deliveryID,
		EventType:  delivery.EventType,
		Payload:    delivery.Payload,
	})
	if err != nil {
		return DeliveryOutcome{}, err
	}

	metadata := ensureMetadata(delivery.Metadata)
	metadata["provider_id"] = providerID
	metadata["delivery_id"] = deliveryID
	if decision.PayloadHashMismatch {
		metadata["payload_hash_mismatch"] = true
	}

	if decision.AlreadyProcessed {
		metadata["deduped"] = true
		return DeliveryOutcome{
			Deduped:    true,
			StatusCode: http.StatusOK,
			Record:     decision.Record,
			Metadata:   metadata,
		}, nil
	}

	if decision.RouteToDeadLetter {
		// The publish happened when the final retry failed. Redeliveries of
		// an exhausted record are acknowledged without reprocessing so the
		// provider stops resending.
		metadata["dead_lettered"] = true
		return DeliveryOutcome{
			DeadLettered: true,
			StatusCode:   http.StatusOK,
			Record:       decision.Record,
			Metadata:     metadata,
		}, nil
	}

	if handleErr := p.Handler.Apply(ctx, delivery.EventType, delivery.Payload); handleErr != nil {
		record, markErr := p.Gate.MarkFailed(ctx, providerID, deliveryID, handleErr)
		if markErr != nil {
			return DeliveryOutcome{}, markErr
		}
		if p.DeadLetters != nil && p.Gate.maxRetries() > 0 && record.RetryCount >= p.Gate.maxRetries() {
			if publishErr := p.DeadLetters.Publish(ctx, record); publishErr != nil {
				return DeliveryOutcome{}, publishErr
			}
			metadata["dead_lettered"] = true
			return DeliveryOutcome{
				DeadLettered: true,
				StatusCode:   http.StatusOK,
				Record:       record,
				Metadata:     metadata,
			}, handleErr
		}
		return DeliveryOutcome{
			StatusCode: http.StatusInternalServerError,
			Record:     record,
			Metadata:   metadata,
		}, handleErr
	}

	if p.Associations != nil {
		if assocErr := p.Associations.Associate(ctx, delivery.EventType, delivery.Payload); assocErr != nil {
			p.logger().Info("association step failed after apply",
				"provider_id", providerID,
				"delivery_id", deliveryID,
				"error", assocErr.Error(),
			)
		}
	}

	record, err := p.Gate.MarkProcessed(ctx, providerID, deliveryID)
	if err != nil {
		return DeliveryOutcome{}, err
	}
	return DeliveryOutcome{
		Processed:  true,
		StatusCode: http.StatusOK,
		Record:     record,
		Metadata:   metadata,
	}, nil
}

// DefaultDeliveryIDExtractor prefers an explicit delivery id, then common
// metadata keys, then the provider headers GitHub and Stripe send.
func DefaultDeliveryIDExtractor(delivery InboundDelivery) (string, error) {
	if value := strings.TrimSpace(delivery.DeliveryID); value != "" {
		return value, nil
	}
	if delivery.Metadata != nil {
		if value := strings.TrimSpace(fmt.Sprint(delivery.Metadata["delivery_id"])); value != "" && value != "<nil>" {
			return value, nil
		}
		if value := strings.TrimSpace(fmt.Sprint(delivery.Metadata["message_id"])); value != "" && value != "<nil>" {
			return value, nil
		}
	}
	if delivery.Headers != nil {
		if value := headerValue(delivery.Headers, "x-delivery-id"); value != "" {
			return value, nil
		}
		if value := headerValue(delivery.Headers, "x-github-delivery"); value != "" {
			return value, nil
		}
		if value := headerValue(delivery.Headers, "stripe-event-id"); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("webhooks: delivery id could not be resolved")
}

func headerValue(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		out[key] = value
	}
	return out
}

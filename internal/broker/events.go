package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"purchase-tracker/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishInvoiceIngested publishes InvoiceIngested event
func (ep *EventPublisher) PublishInvoiceIngested(ctx context.Context, event *models.InvoiceIngestedEvent) error {
	key := fmt.Sprintf("invoice-%d", event.InvoiceID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPriceAlertRaised publishes PriceAlertRaised event
func (ep *EventPublisher) PublishPriceAlertRaised(ctx context.Context, event *models.PriceAlertRaisedEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishRecommendationCreated publishes RecommendationCreated event
func (ep *EventPublisher) PublishRecommendationCreated(ctx context.Context, event *models.RecommendationCreatedEvent) error {
	key := fmt.Sprintf("recommendation-%d", event.RecommendationID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming events to registered handlers
type EventHandler struct {
	onInvoiceExtracted func(context.Context, *models.InvoiceExtractedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnInvoiceExtracted registers a handler for InvoiceExtracted events
func (eh *EventHandler) OnInvoiceExtracted(handler func(context.Context, *models.InvoiceExtractedEvent) error) {
	eh.onInvoiceExtracted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeInvoiceExtracted:
		if eh.onInvoiceExtracted != nil {
			var event models.InvoiceExtractedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal InvoiceExtracted event: %w", err)
			}
			return eh.onInvoiceExtracted(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}

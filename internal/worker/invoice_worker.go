package worker

import (
	"context"
	"errors"
	"fmt"

	"purchase-tracker/internal/broker"
	"purchase-tracker/internal/models"
	"purchase-tracker/internal/redisclient"
	"purchase-tracker/internal/service"
	"purchase-tracker/internal/store"

	"go.uber.org/zap"
)

// InvoiceWorker consumes InvoiceExtracted events from the extraction
// pipeline and feeds them into ingestion. Redelivered events are dropped
// via the processed-events table.
type InvoiceWorker struct {
	consumer *broker.Consumer
	store    *store.Store
	redis    *redisclient.Client
	ingest   *service.IngestService
	logger   *zap.Logger
}

// NewInvoiceWorker creates a new invoice worker
func NewInvoiceWorker(consumer *broker.Consumer, st *store.Store, redis *redisclient.Client, ingest *service.IngestService, logger *zap.Logger) *InvoiceWorker {
	return &InvoiceWorker{
		consumer: consumer,
		store:    st,
		redis:    redis,
		ingest:   ingest,
		logger:   logger,
	}
}

// Start begins consuming until the context is cancelled
func (w *InvoiceWorker) Start(ctx context.Context) error {
	handler := broker.NewEventHandler()
	handler.OnInvoiceExtracted(w.handleInvoiceExtracted)

	w.logger.Info("invoice worker starting")
	return w.consumer.StartConsuming(ctx, handler.HandleMessage)
}

func (w *InvoiceWorker) handleInvoiceExtracted(ctx context.Context, event *models.InvoiceExtractedEvent) error {
	// fast dedup: a cached idempotency key means the invoice committed recently
	if event.IdempotencyKey != "" {
		if hit, err := w.redis.CheckIdempotencyKey(ctx, event.IdempotencyKey); err == nil && hit {
			w.logger.Info("skipping already-ingested invoice",
				zap.String("event_id", event.EventID),
				zap.String("idempotency_key", event.IdempotencyKey))
			return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
		}
	}

	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event dedup: %w", err)
	}
	if processed {
		w.logger.Info("skipping already-processed event", zap.String("event_id", event.EventID))
		return nil
	}

	req := &service.IngestInvoiceRequest{
		VendorID:       event.VendorID,
		InvoiceNumber:  event.InvoiceNumber,
		InvoiceDate:    event.InvoiceDate,
		Total:          event.Total,
		IdempotencyKey: event.IdempotencyKey,
		Items:          make([]service.LineItemRequest, 0, len(event.Items)),
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = event.EventID
	}
	for _, item := range event.Items {
		req.Items = append(req.Items, service.LineItemRequest{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Unit:        item.Unit,
		})
	}

	resp, err := w.ingest.IngestInvoice(ctx, req)
	if err != nil {
		// a duplicate invoice number means the invoice is already in; mark
		// the event done rather than redeliver forever
		if !errors.Is(err, service.ErrDuplicateInvoice) {
			return fmt.Errorf("failed to ingest extracted invoice: %w", err)
		}
		w.logger.Warn("extracted invoice already ingested",
			zap.String("event_id", event.EventID),
			zap.String("invoice_number", event.InvoiceNumber))
	} else {
		w.logger.Info("ingested extracted invoice",
			zap.String("event_id", event.EventID),
			zap.Int64("invoice_id", resp.InvoiceID),
			zap.Int("rejected", len(resp.Rejected)),
			zap.Int("alerts", len(resp.Alerts)))
	}

	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"purchase-tracker/internal/broker"
	"purchase-tracker/internal/matching"
	"purchase-tracker/internal/models"
	"purchase-tracker/internal/redisclient"
	"purchase-tracker/internal/store"
	"purchase-tracker/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// priceChangeThreshold is the relative change vs the last known price
	// beyond which an increase/decrease alert is emitted.
	priceChangeThreshold = 0.05

	// contractTolerance is how far above the agreed price an observation may
	// land before it counts as a contract violation.
	contractTolerance = 0.01

	// maxIngestRetries bounds retries after transient conflicts.
	maxIngestRetries = 3
)

// Validation errors for single line items
var (
	ErrMissingProductName = errors.New("product name is required")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidPrice       = errors.New("unit price must be positive")
	ErrVendorNotFound     = errors.New("vendor not found")
	ErrDuplicateInvoice   = errors.New("duplicate invoice")
)

// IngestService resolves free-text invoice lines into the product catalog,
// maintains price statistics, and emits price alerts.
type IngestService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
	postIngest     func(context.Context)
}

// NewIngestService creates a new ingest service
func NewIngestService(
	store *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
) *IngestService {
	return &IngestService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// OnIngested registers a hook invoked after each committed invoice,
// used to trigger a best-effort recommendation run.
func (s *IngestService) OnIngested(hook func(context.Context)) {
	s.postIngest = hook
}

// LineItemRequest is one free-text purchase line
type LineItemRequest struct {
	ProductName string  `json:"product_name" binding:"required"`
	Quantity    float64 `json:"quantity" binding:"required"`
	UnitPrice   float64 `json:"unit_price" binding:"required"`
	Unit        string  `json:"unit,omitempty"`
}

// IngestInvoiceRequest represents a request to ingest one invoice
type IngestInvoiceRequest struct {
	VendorID       int64             `json:"vendor_id" binding:"required"`
	InvoiceNumber  string            `json:"invoice_number,omitempty"`
	InvoiceDate    time.Time         `json:"invoice_date" binding:"required"`
	Total          float64           `json:"total"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	AllOrNothing   bool              `json:"all_or_nothing,omitempty"`
	Items          []LineItemRequest `json:"items" binding:"required,min=1"`
}

// RejectedLine reports one line item that failed validation
type RejectedLine struct {
	Index       int    `json:"index"`
	ProductName string `json:"product_name"`
	Reason      string `json:"reason"`
}

// IngestInvoiceResponse is the result of ingesting one invoice
type IngestInvoiceResponse struct {
	InvoiceID int64               `json:"invoice_id"`
	Products  []models.Product    `json:"products"`
	Alerts    []models.PriceAlert `json:"alerts"`
	Rejected  []RejectedLine      `json:"rejected,omitempty"`
}

// IngestInvoice processes one invoice in a single transaction. Catalog
// updates, observation appends, alert emissions and contract checks for the
// invoice commit or roll back together. Concurrent invoices naming the same
// product serialize on a per-normalized-name advisory lock; transient
// conflicts are retried a bounded number of times.
func (s *IngestService) IngestInvoice(ctx context.Context, req *IngestInvoiceRequest) (*IngestInvoiceResponse, error) {
	ctx, span := util.StartSpan(ctx, "IngestService.IngestInvoice")
	defer span.End()

	start := time.Now()
	defer func() {
		util.IngestLatency.Observe(time.Since(start).Seconds())
	}()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	existing, err := s.store.GetInvoiceByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		s.logger.Info("Duplicate ingest request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("invoice_id", existing.ID))
		return &IngestInvoiceResponse{InvoiceID: existing.ID}, nil
	}

	vendor, err := s.store.GetVendorByID(ctx, req.VendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up vendor: %w", err)
	}
	if vendor == nil {
		util.InvoicesFailedTotal.WithLabelValues("vendor_not_found").Inc()
		return nil, fmt.Errorf("%w: %d", ErrVendorNotFound, req.VendorID)
	}

	var resp *IngestInvoiceResponse
	for attempt := 0; ; attempt++ {
		resp, err = s.ingestOnce(ctx, req)
		if err == nil {
			break
		}
		if store.IsRetryable(err) && attempt < maxIngestRetries {
			util.IngestRetriesTotal.Inc()
			s.logger.Warn("Transient conflict during ingestion, retrying",
				zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		util.InvoicesFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	util.InvoicesIngestedTotal.Inc()
	util.LineItemsIngestedTotal.Add(float64(len(req.Items) - len(resp.Rejected)))

	// best-effort duplicate marker for the extraction pipeline; the
	// database key remains authoritative
	if err := s.redis.SetIdempotencyKey(ctx, req.IdempotencyKey, resp.InvoiceID, 24*time.Hour); err != nil {
		s.logger.Warn("Failed to cache idempotency key", zap.Error(err))
	}

	s.publishIngestEvents(ctx, req.VendorID, len(req.Items)-len(resp.Rejected), resp)

	if s.postIngest != nil {
		s.postIngest(ctx)
	}

	return resp, nil
}

// ingestOnce runs one transactional attempt
func (s *IngestService) ingestOnce(ctx context.Context, req *IngestInvoiceRequest) (*IngestInvoiceResponse, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	resp, err := s.ingestTx(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invoice: %w", err)
	}
	return resp, nil
}

func (s *IngestService) ingestTx(ctx context.Context, tx *store.Tx, req *IngestInvoiceRequest) (*IngestInvoiceResponse, error) {
	if req.InvoiceNumber != "" {
		dup, err := tx.FindInvoiceByNumber(ctx, req.VendorID, req.InvoiceNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to check for duplicate invoice: %w", err)
		}
		if dup != nil {
			util.InvoicesFailedTotal.WithLabelValues("duplicate").Inc()
			return nil, fmt.Errorf("%w: %s already ingested as invoice %d",
				ErrDuplicateInvoice, req.InvoiceNumber, dup.ID)
		}
	} else {
		// without a number, same vendor + date + total is the best duplicate
		// signal available
		dup, err := tx.FindInvoiceByDateAndTotal(ctx, req.VendorID, req.InvoiceDate, req.Total)
		if err != nil {
			return nil, fmt.Errorf("failed to check for duplicate invoice: %w", err)
		}
		if dup != nil {
			util.InvoicesFailedTotal.WithLabelValues("duplicate").Inc()
			return nil, fmt.Errorf("%w: invoice for %.2f on %s already ingested as invoice %d; add an invoice number to differentiate",
				ErrDuplicateInvoice, req.Total, req.InvoiceDate.Format("2006-01-02"), dup.ID)
		}
	}

	invoice := &models.Invoice{
		VendorID:       req.VendorID,
		InvoiceNumber:  nullString(req.InvoiceNumber),
		InvoiceDate:    req.InvoiceDate,
		Total:          req.Total,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := tx.CreateInvoice(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	resp := &IngestInvoiceResponse{InvoiceID: invoice.ID}
	seen := make(map[int64]bool)

	for i, line := range req.Items {
		if err := validateLine(&line); err != nil {
			if req.AllOrNothing {
				return nil, fmt.Errorf("line %d (%q): %w", i, line.ProductName, err)
			}
			util.LineItemsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
			resp.Rejected = append(resp.Rejected, RejectedLine{
				Index: i, ProductName: line.ProductName, Reason: err.Error(),
			})
			continue
		}

		product, alerts, err := s.ingestLine(ctx, tx, invoice, &line)
		if err != nil {
			return nil, fmt.Errorf("line %d (%q): %w", i, line.ProductName, err)
		}

		if !seen[product.ID] {
			seen[product.ID] = true
			resp.Products = append(resp.Products, *product)
		}
		resp.Alerts = append(resp.Alerts, alerts...)
	}

	return resp, nil
}

// ingestLine resolves one validated line item to a product and updates the
// catalog. The advisory lock makes the lookup-or-create-and-update atomic
// per normalized name.
func (s *IngestService) ingestLine(ctx context.Context, tx *store.Tx, invoice *models.Invoice, line *LineItemRequest) (*models.Product, []models.PriceAlert, error) {
	item := &models.InvoiceItem{
		InvoiceID:   invoice.ID,
		ProductName: line.ProductName,
		Quantity:    line.Quantity,
		UnitPrice:   line.UnitPrice,
		Unit:        nullString(line.Unit),
	}
	if err := tx.CreateInvoiceItem(ctx, item); err != nil {
		return nil, nil, fmt.Errorf("failed to create invoice item: %w", err)
	}

	normalized := matching.Normalize(line.ProductName)
	if err := tx.LockNormalizedName(ctx, normalized); err != nil {
		return nil, nil, err
	}

	product, err := tx.GetProductByNormalizedName(ctx, normalized)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up product: %w", err)
	}

	var alerts []models.PriceAlert

	if product == nil {
		product = &models.Product{
			Name:            line.ProductName,
			NormalizedName:  normalized,
			LastVendorID:    sql.NullInt64{Int64: invoice.VendorID, Valid: true},
			LastPrice:       sql.NullFloat64{Float64: line.UnitPrice, Valid: true},
			AvgPrice:        sql.NullFloat64{Float64: line.UnitPrice, Valid: true},
			MinPrice:        sql.NullFloat64{Float64: line.UnitPrice, Valid: true},
			MaxPrice:        sql.NullFloat64{Float64: line.UnitPrice, Valid: true},
			LastOrderedDate: sql.NullTime{Time: invoice.InvoiceDate, Valid: true},
		}
		if err := tx.CreateProduct(ctx, product); err != nil {
			return nil, nil, fmt.Errorf("failed to create product: %w", err)
		}
		util.ProductsCreatedTotal.Inc()
	} else if product.LastPrice.Valid {
		// A first-ever price has nothing to compare against; alerts only
		// fire once a previous price is known.
		if alertType, changePct, ok := evaluatePriceChange(product.LastPrice.Float64, line.UnitPrice); ok {
			alert := models.PriceAlert{
				ProductID:     product.ID,
				VendorID:      invoice.VendorID,
				PreviousPrice: product.LastPrice,
				NewPrice:      line.UnitPrice,
				ChangePercent: changePct,
				AlertType:     alertType,
			}
			alerts = append(alerts, alert)
		}
	}

	obs := &models.VendorPriceObservation{
		ProductID:     product.ID,
		VendorID:      invoice.VendorID,
		InvoiceItemID: sql.NullInt64{Int64: item.ID, Valid: true},
		InvoiceDate:   invoice.InvoiceDate,
		UnitPrice:     line.UnitPrice,
		Quantity:      line.Quantity,
		Unit:          nullString(line.Unit),
	}
	if err := tx.InsertObservation(ctx, obs); err != nil {
		return nil, nil, fmt.Errorf("failed to append observation: %w", err)
	}

	if err := tx.RecomputeProductStats(ctx, product.ID, invoice.VendorID, line.UnitPrice, invoice.InvoiceDate); err != nil {
		return nil, nil, err
	}

	contractAlert, err := s.checkContractCompliance(ctx, tx, product.ID, invoice.VendorID, line.UnitPrice, invoice.InvoiceDate)
	if err != nil {
		return nil, nil, err
	}
	if contractAlert != nil {
		alerts = append(alerts, *contractAlert)
	}

	for i := range alerts {
		alerts[i].ObservationID = sql.NullInt64{Int64: obs.ID, Valid: true}
		if err := tx.CreateAlert(ctx, &alerts[i]); err != nil {
			return nil, nil, fmt.Errorf("failed to create alert: %w", err)
		}
		util.PriceAlertsEmittedTotal.WithLabelValues(alerts[i].AlertType).Inc()
	}

	// Re-read so callers see the recomputed stats
	refreshed, err := tx.GetProductByNormalizedName(ctx, normalized)
	if err != nil {
		return nil, nil, err
	}
	if refreshed != nil {
		product = refreshed
	}

	return product, alerts, nil
}

// checkContractCompliance validates the observed price against the active
// contract covering (vendor, product, date), if any. Multiple overlapping
// active contracts are a data-entry error: the lowest-ID contract is
// checked and the condition is surfaced for manual correction.
func (s *IngestService) checkContractCompliance(ctx context.Context, tx *store.Tx, productID, vendorID int64, price float64, date time.Time) (*models.PriceAlert, error) {
	contracts, err := tx.GetActiveContracts(ctx, vendorID, productID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to look up contracts: %w", err)
	}
	if len(contracts) == 0 {
		return nil, nil
	}
	if len(contracts) > 1 {
		util.ContractIntegrityWarningsTotal.Inc()
		s.logger.Warn("Multiple overlapping active contracts",
			zap.Int64("vendor_id", vendorID),
			zap.Int64("product_id", productID),
			zap.Time("date", date),
			zap.Int("contract_count", len(contracts)))
	}

	contract := contracts[0]
	changePct, violated := contractViolation(contract.AgreedPrice, price)
	if !violated {
		return nil, nil
	}

	return &models.PriceAlert{
		ProductID:     productID,
		VendorID:      vendorID,
		PreviousPrice: sql.NullFloat64{Float64: contract.AgreedPrice, Valid: true},
		NewPrice:      price,
		ChangePercent: changePct,
		AlertType:     models.AlertTypeContractViolation,
	}, nil
}

// publishIngestEvents publishes alert and summary events after commit.
// Publish failures are logged, never surfaced to the caller.
func (s *IngestService) publishIngestEvents(ctx context.Context, vendorID int64, itemCount int, resp *IngestInvoiceResponse) {
	for _, alert := range resp.Alerts {
		event := &models.PriceAlertRaisedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePriceAlertRaised,
				Timestamp: time.Now(),
			},
			AlertID:       alert.ID,
			ProductID:     alert.ProductID,
			VendorID:      alert.VendorID,
			AlertType:     alert.AlertType,
			PreviousPrice: alert.PreviousPrice.Float64,
			NewPrice:      alert.NewPrice,
			ChangePercent: alert.ChangePercent,
		}
		if err := s.eventPublisher.PublishPriceAlertRaised(ctx, event); err != nil {
			s.logger.Error("Failed to publish PriceAlertRaised event", zap.Error(err))
		}
	}

	event := &models.InvoiceIngestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeInvoiceIngested,
			Timestamp: time.Now(),
		},
		InvoiceID:     resp.InvoiceID,
		VendorID:      vendorID,
		ItemCount:     itemCount,
		RejectedCount: len(resp.Rejected),
		AlertCount:    len(resp.Alerts),
	}
	if err := s.eventPublisher.PublishInvoiceIngested(ctx, event); err != nil {
		s.logger.Error("Failed to publish InvoiceIngested event", zap.Error(err))
	}
}

// evaluatePriceChange reports the alert type and percent change when the
// relative move from oldPrice to newPrice exceeds the threshold.
func evaluatePriceChange(oldPrice, newPrice float64) (string, float64, bool) {
	if oldPrice <= 0 {
		return "", 0, false
	}
	if math.Abs(oldPrice-newPrice)/oldPrice <= priceChangeThreshold {
		return "", 0, false
	}

	changePct := (newPrice - oldPrice) / oldPrice * 100
	if changePct > 0 {
		return models.AlertTypeIncrease, changePct, true
	}
	return models.AlertTypeDecrease, changePct, true
}

// contractViolation reports the percent over the agreed price when the
// observed price exceeds it by more than the tolerance.
func contractViolation(agreedPrice, observedPrice float64) (float64, bool) {
	if agreedPrice <= 0 || observedPrice <= agreedPrice*(1+contractTolerance) {
		return 0, false
	}
	return (observedPrice - agreedPrice) / agreedPrice * 100, true
}

func validateLine(line *LineItemRequest) error {
	if line.ProductName == "" {
		return ErrMissingProductName
	}
	if line.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if line.UnitPrice <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingProductName):
		return "missing_name"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidPrice):
		return "invalid_price"
	default:
		return "invalid"
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

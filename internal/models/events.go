package models

import "time"

// Event types
const (
	EventTypeInvoiceExtracted      = "INVOICE_EXTRACTED"
	EventTypeInvoiceIngested       = "INVOICE_INGESTED"
	EventTypePriceAlertRaised      = "PRICE_ALERT_RAISED"
	EventTypeRecommendationCreated = "RECOMMENDATION_CREATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ExtractedLineItem is one structured line produced by the external
// extraction collaborator
type ExtractedLineItem struct {
	ProductName string  `json:"product_name"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Unit        string  `json:"unit,omitempty"`
}

// InvoiceExtractedEvent is published by the extraction service once an
// invoice image has been converted to structured line items
type InvoiceExtractedEvent struct {
	BaseEvent
	VendorID       int64               `json:"vendor_id"`
	InvoiceNumber  string              `json:"invoice_number,omitempty"`
	InvoiceDate    time.Time           `json:"invoice_date"`
	Total          float64             `json:"total"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
	Items          []ExtractedLineItem `json:"items"`
}

// InvoiceIngestedEvent published after an invoice commits
type InvoiceIngestedEvent struct {
	BaseEvent
	InvoiceID     int64 `json:"invoice_id"`
	VendorID      int64 `json:"vendor_id"`
	ItemCount     int   `json:"item_count"`
	RejectedCount int   `json:"rejected_count"`
	AlertCount    int   `json:"alert_count"`
}

// PriceAlertRaisedEvent published when a price deviation is flagged
type PriceAlertRaisedEvent struct {
	BaseEvent
	AlertID       int64   `json:"alert_id"`
	ProductID     int64   `json:"product_id"`
	VendorID      int64   `json:"vendor_id"`
	AlertType     string  `json:"alert_type"`
	PreviousPrice float64 `json:"previous_price"`
	NewPrice      float64 `json:"new_price"`
	ChangePercent float64 `json:"change_percent"`
}

// RecommendationCreatedEvent published for each new recommendation
type RecommendationCreatedEvent struct {
	BaseEvent
	RecommendationID int64   `json:"recommendation_id"`
	Type             string  `json:"type"`
	ProductID        int64   `json:"product_id,omitempty"`
	VendorID         int64   `json:"vendor_id,omitempty"`
	Title            string  `json:"title"`
	PotentialSavings float64 `json:"potential_savings,omitempty"`
}

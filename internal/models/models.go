package models

import (
	"database/sql"
	"time"
)

// Vendor represents a supplier we buy from
type Vendor struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Product is a canonical catalog entry for one purchased good.
// NormalizedName is the matching key; price stats are derived from the
// observation history, never maintained as an independent copy.
type Product struct {
	ID                   int64           `db:"id" json:"id"`
	Name                 string          `db:"name" json:"name"`
	NormalizedName       string          `db:"normalized_name" json:"normalized_name"`
	CategoryID           sql.NullInt64   `db:"category_id" json:"category_id"`
	LastVendorID         sql.NullInt64   `db:"last_vendor_id" json:"last_vendor_id"`
	LastPrice            sql.NullFloat64 `db:"last_price" json:"last_price"`
	AvgPrice             sql.NullFloat64 `db:"avg_price" json:"avg_price"`
	MinPrice             sql.NullFloat64 `db:"min_price" json:"min_price"`
	MaxPrice             sql.NullFloat64 `db:"max_price" json:"max_price"`
	ReorderFrequencyDays sql.NullInt64   `db:"reorder_frequency_days" json:"reorder_frequency_days"`
	LastOrderedDate      sql.NullTime    `db:"last_ordered_date" json:"last_ordered_date"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// Invoice is one vendor bill, the transactional unit of ingestion
type Invoice struct {
	ID             int64          `db:"id" json:"id"`
	VendorID       int64          `db:"vendor_id" json:"vendor_id"`
	InvoiceNumber  sql.NullString `db:"invoice_number" json:"invoice_number"`
	InvoiceDate    time.Time      `db:"invoice_date" json:"invoice_date"`
	Total          float64        `db:"total" json:"total"`
	IdempotencyKey string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// InvoiceItem is one free-text purchase line on an invoice
type InvoiceItem struct {
	ID          int64          `db:"id" json:"id"`
	InvoiceID   int64          `db:"invoice_id" json:"invoice_id"`
	ProductName string         `db:"product_name" json:"product_name"`
	Quantity    float64        `db:"quantity" json:"quantity"`
	UnitPrice   float64        `db:"unit_price" json:"unit_price"`
	Unit        sql.NullString `db:"unit" json:"unit"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// VendorPriceObservation is one immutable price point per invoice line.
// The ordered sequence of these rows is the single source of truth for a
// product's price history.
type VendorPriceObservation struct {
	ID            int64          `db:"id" json:"id"`
	ProductID     int64          `db:"product_id" json:"product_id"`
	VendorID      int64          `db:"vendor_id" json:"vendor_id"`
	InvoiceItemID sql.NullInt64  `db:"invoice_item_id" json:"invoice_item_id"`
	InvoiceDate   time.Time      `db:"invoice_date" json:"invoice_date"`
	UnitPrice     float64        `db:"unit_price" json:"unit_price"`
	Quantity      float64        `db:"quantity" json:"quantity"`
	Unit          sql.NullString `db:"unit" json:"unit"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// PriceAlert flags a price deviation
type PriceAlert struct {
	ID             int64           `db:"id" json:"id"`
	ProductID      int64           `db:"product_id" json:"product_id"`
	VendorID       int64           `db:"vendor_id" json:"vendor_id"`
	ObservationID  sql.NullInt64   `db:"observation_id" json:"observation_id"`
	PreviousPrice  sql.NullFloat64 `db:"previous_price" json:"previous_price"`
	NewPrice       float64         `db:"new_price" json:"new_price"`
	ChangePercent  float64         `db:"change_percent" json:"change_percent"`
	AlertType      string          `db:"alert_type" json:"alert_type"`
	IsAcknowledged bool            `db:"is_acknowledged" json:"is_acknowledged"`
	AcknowledgedAt sql.NullTime    `db:"acknowledged_at" json:"acknowledged_at"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Alert types
const (
	AlertTypeIncrease          = "increase"
	AlertTypeDecrease          = "decrease"
	AlertTypeContractViolation = "contract_violation"
)

// PriceContract is an agreed price ceiling for (vendor, product) over a date range
type PriceContract struct {
	ID          int64     `db:"id" json:"id"`
	VendorID    int64     `db:"vendor_id" json:"vendor_id"`
	ProductID   int64     `db:"product_id" json:"product_id"`
	AgreedPrice float64   `db:"agreed_price" json:"agreed_price"`
	StartDate   time.Time `db:"start_date" json:"start_date"`
	EndDate     time.Time `db:"end_date" json:"end_date"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CompetitorStore is a third-party shop we compare prices against
type CompetitorStore struct {
	ID            int64          `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	WebsiteURL    sql.NullString `db:"website_url" json:"website_url"`
	ScraperType   string         `db:"scraper_type" json:"scraper_type"`
	ScraperConfig []byte         `db:"scraper_config" json:"scraper_config,omitempty"`
	IsActive      bool           `db:"is_active" json:"is_active"`
	LastScrapedAt sql.NullTime   `db:"last_scraped_at" json:"last_scraped_at"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// CompetitorPriceObservation is a price seen at a competitor store.
// For a (store, normalized name) pair only the newest row is current.
type CompetitorPriceObservation struct {
	ID               int64          `db:"id" json:"id"`
	StoreID          int64          `db:"store_id" json:"store_id"`
	ProductName      string         `db:"product_name" json:"product_name"`
	NormalizedName   string         `db:"normalized_name" json:"normalized_name"`
	MatchedProductID sql.NullInt64  `db:"matched_product_id" json:"matched_product_id"`
	Price            float64        `db:"price" json:"price"`
	Unit             sql.NullString `db:"unit" json:"unit"`
	IsCurrent        bool           `db:"is_current" json:"is_current"`
	ObservedAt       time.Time      `db:"observed_at" json:"observed_at"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// Recommendation is a synthesized purchasing suggestion.
// At most one active (not dismissed, not acted on, not expired) row may
// exist per (type, product, vendor).
type Recommendation struct {
	ID               int64           `db:"id" json:"id"`
	Type             string          `db:"type" json:"type"`
	ProductID        sql.NullInt64   `db:"product_id" json:"product_id"`
	VendorID         sql.NullInt64   `db:"vendor_id" json:"vendor_id"`
	Title            string          `db:"title" json:"title"`
	Description      string          `db:"description" json:"description"`
	PotentialSavings sql.NullFloat64 `db:"potential_savings" json:"potential_savings"`
	Priority         int             `db:"priority" json:"priority"`
	IsDismissed      bool            `db:"is_dismissed" json:"is_dismissed"`
	IsActedOn        bool            `db:"is_acted_on" json:"is_acted_on"`
	Data             []byte          `db:"data" json:"data,omitempty"`
	ExpiresAt        sql.NullTime    `db:"expires_at" json:"expires_at"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// Recommendation types; priority is a fixed ordinal per type (lower = more urgent)
const (
	RecTypeCheaperVendor = "cheaper_vendor"
	RecTypePriceIncrease = "price_increase"
	RecTypeCompetitor    = "competitor_price"
	RecTypeVolumeAnomaly = "volume_anomaly"
)

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

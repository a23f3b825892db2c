package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"purchase-tracker/internal/models"
)

// CreateInvoice inserts a new invoice header
func (t *Tx) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	query := `
		INSERT INTO invoices (vendor_id, invoice_number, invoice_date, total, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return t.tx.GetContext(ctx, invoice, query,
		invoice.VendorID, invoice.InvoiceNumber, invoice.InvoiceDate,
		invoice.Total, invoice.IdempotencyKey)
}

// CreateInvoiceItem inserts one invoice line
func (t *Tx) CreateInvoiceItem(ctx context.Context, item *models.InvoiceItem) error {
	query := `
		INSERT INTO invoice_items (invoice_id, product_name, quantity, unit_price, unit)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return t.tx.GetContext(ctx, item, query,
		item.InvoiceID, item.ProductName, item.Quantity, item.UnitPrice, item.Unit)
}

// FindInvoiceByNumber looks for an existing invoice with the same vendor and
// invoice number (duplicate detection).
func (t *Tx) FindInvoiceByNumber(ctx context.Context, vendorID int64, number string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := t.tx.GetContext(ctx, &invoice,
		"SELECT * FROM invoices WHERE vendor_id = $1 AND invoice_number = $2 LIMIT 1",
		vendorID, number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindInvoiceByDateAndTotal looks for an existing invoice with the same
// vendor, calendar date, and total. Fallback duplicate detection for
// invoices submitted without a number.
func (t *Tx) FindInvoiceByDateAndTotal(ctx context.Context, vendorID int64, date time.Time, total float64) (*models.Invoice, error) {
	var invoice models.Invoice
	err := t.tx.GetContext(ctx, &invoice, `
		SELECT * FROM invoices
		WHERE vendor_id = $1 AND invoice_date::date = $2::date AND total = $3
		LIMIT 1`, vendorID, date, total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetInvoiceByIdempotencyKey retrieves an invoice by idempotency key
func (s *Store) GetInvoiceByIdempotencyKey(ctx context.Context, key string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.GetContext(ctx, &invoice,
		"SELECT * FROM invoices WHERE idempotency_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetVendorByID retrieves a vendor by ID
func (s *Store) GetVendorByID(ctx context.Context, id int64) (*models.Vendor, error) {
	var vendor models.Vendor
	err := s.db.GetContext(ctx, &vendor, "SELECT * FROM vendors WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

// GetVendors retrieves all active vendors
func (s *Store) GetVendors(ctx context.Context) ([]models.Vendor, error) {
	var vendors []models.Vendor
	err := s.db.SelectContext(ctx, &vendors,
		"SELECT * FROM vendors WHERE is_active ORDER BY name")
	return vendors, err
}

// CreateVendor inserts a new vendor
func (s *Store) CreateVendor(ctx context.Context, vendor *models.Vendor) error {
	query := `
		INSERT INTO vendors (name, is_active)
		VALUES ($1, TRUE)
		RETURNING id, is_active, created_at, updated_at`

	return s.db.GetContext(ctx, vendor, query, vendor.Name)
}

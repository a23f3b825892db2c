package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"purchase-tracker/internal/models"
)

// GetProductByNormalizedName looks up a product by exact normalized-name
// match, returning nil when no product exists for the key.
func (t *Tx) GetProductByNormalizedName(ctx context.Context, normalized string) (*models.Product, error) {
	var product models.Product
	err := t.tx.GetContext(ctx, &product,
		"SELECT * FROM products WHERE normalized_name = $1 ORDER BY id LIMIT 1", normalized)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateProduct inserts a new catalog entry seeded from its first observation
func (t *Tx) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, normalized_name, category_id, last_vendor_id,
			last_price, avg_price, min_price, max_price, last_ordered_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	return t.tx.GetContext(ctx, product, query,
		product.Name, product.NormalizedName, product.CategoryID, product.LastVendorID,
		product.LastPrice, product.AvgPrice, product.MinPrice, product.MaxPrice,
		product.LastOrderedDate)
}

// InsertObservation appends one immutable price observation
func (t *Tx) InsertObservation(ctx context.Context, obs *models.VendorPriceObservation) error {
	query := `
		INSERT INTO vendor_price_observations (product_id, vendor_id, invoice_item_id,
			invoice_date, unit_price, quantity, unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return t.tx.GetContext(ctx, obs, query,
		obs.ProductID, obs.VendorID, obs.InvoiceItemID,
		obs.InvoiceDate, obs.UnitPrice, obs.Quantity, obs.Unit)
}

// RecomputeProductStats re-derives a product's price summary from its
// observation sequence and stamps the latest observation onto the row.
// This is the only mutation site for the summary fields, so they cannot
// drift from the observation history.
func (t *Tx) RecomputeProductStats(ctx context.Context, productID, vendorID int64, price float64, invoiceDate time.Time) error {
	query := `
		UPDATE products SET
			last_price = $2,
			last_vendor_id = $3,
			last_ordered_date = $4,
			avg_price = stats.avg_price,
			min_price = stats.min_price,
			max_price = stats.max_price,
			updated_at = NOW()
		FROM (
			SELECT AVG(unit_price) AS avg_price,
			       MIN(unit_price) AS min_price,
			       MAX(unit_price) AS max_price
			FROM vendor_price_observations
			WHERE product_id = $1
		) AS stats
		WHERE products.id = $1`

	result, err := t.tx.ExecContext(ctx, query, productID, price, vendorID, invoiceDate)
	if err != nil {
		return fmt.Errorf("failed to recompute product stats: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("product not found: %d", productID)
	}
	return err
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts retrieves all products ordered by ID
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// GetObservations retrieves a product's observations in date order,
// optionally bounded to the trailing number of days.
func (s *Store) GetObservations(ctx context.Context, productID int64, days int) ([]models.VendorPriceObservation, error) {
	var obs []models.VendorPriceObservation
	if days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		err := s.db.SelectContext(ctx, &obs, `
			SELECT * FROM vendor_price_observations
			WHERE product_id = $1 AND invoice_date >= $2
			ORDER BY invoice_date, id`, productID, cutoff)
		return obs, err
	}
	err := s.db.SelectContext(ctx, &obs, `
		SELECT * FROM vendor_price_observations
		WHERE product_id = $1
		ORDER BY invoice_date, id`, productID)
	return obs, err
}

// UpdateReorderFrequency caches the derived reorder interval back onto the
// product. Recomputation replacing the value later is expected.
func (s *Store) UpdateReorderFrequency(ctx context.Context, productID int64, days int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET reorder_frequency_days = $1, updated_at = NOW() WHERE id = $2",
		days, productID)
	return err
}

// ObservationSummary is one observation row joined with its product name,
// used by the temporal analytics views.
type ObservationSummary struct {
	ProductID   int64     `db:"product_id"`
	ProductName string    `db:"product_name"`
	InvoiceDate time.Time `db:"invoice_date"`
	Quantity    float64   `db:"quantity"`
}

// GetObservationSummariesSince returns all observations on or after the
// cutoff joined with product names, ordered by product and date.
func (s *Store) GetObservationSummariesSince(ctx context.Context, cutoff time.Time) ([]ObservationSummary, error) {
	var rows []ObservationSummary
	err := s.db.SelectContext(ctx, &rows, `
		SELECT o.product_id, p.name AS product_name, o.invoice_date, o.quantity
		FROM vendor_price_observations o
		JOIN products p ON p.id = o.product_id
		WHERE o.invoice_date >= $1
		ORDER BY o.product_id, o.invoice_date, o.id`, cutoff)
	return rows, err
}

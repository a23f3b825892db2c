package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"purchase-tracker/internal/models"
)

// DeleteExpiredRecommendations garbage-collects recommendations that expired
// without being dismissed or acted on. Returns the number of rows removed.
func (t *Tx) DeleteExpiredRecommendations(ctx context.Context, now time.Time) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `
		DELETE FROM recommendations
		WHERE NOT is_dismissed AND NOT is_acted_on
		  AND expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ActiveRecommendationExists reports whether an active (not dismissed, not
// acted on, not expired) recommendation exists for the (type, product,
// vendor) triple. Nil product or vendor matches any value, mirroring
// vendor-scoped and product-scoped recommendation types.
func (t *Tx) ActiveRecommendationExists(ctx context.Context, recType string, productID, vendorID *int64, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM recommendations
			WHERE type = $1
			  AND NOT is_dismissed AND NOT is_acted_on
			  AND (expires_at IS NULL OR expires_at >= $2)
			  AND ($3::bigint IS NULL OR product_id = $3)
			  AND ($4::bigint IS NULL OR vendor_id = $4)
		)`

	var exists bool
	err := t.tx.GetContext(ctx, &exists, query, recType, now, nullableID(productID), nullableID(vendorID))
	return exists, err
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// CreateRecommendation inserts a new recommendation inside the engine run
func (t *Tx) CreateRecommendation(ctx context.Context, rec *models.Recommendation) error {
	query := `
		INSERT INTO recommendations (type, product_id, vendor_id, title, description,
			potential_savings, priority, data, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	return t.tx.GetContext(ctx, rec, query,
		rec.Type, rec.ProductID, rec.VendorID, rec.Title, rec.Description,
		rec.PotentialSavings, rec.Priority, rec.Data, rec.ExpiresAt)
}

// ListActiveRecommendations retrieves active recommendations ordered by
// priority, newest first within a priority.
func (s *Store) ListActiveRecommendations(ctx context.Context, now time.Time) ([]models.Recommendation, error) {
	var recs []models.Recommendation
	err := s.db.SelectContext(ctx, &recs, `
		SELECT * FROM recommendations
		WHERE NOT is_dismissed AND NOT is_acted_on
		  AND (expires_at IS NULL OR expires_at >= $1)
		ORDER BY priority, created_at DESC`, now)
	return recs, err
}

// DismissRecommendation marks a recommendation as dismissed
func (s *Store) DismissRecommendation(ctx context.Context, recID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE recommendations SET is_dismissed = TRUE, updated_at = NOW() WHERE id = $1", recID)
	return err
}

// MarkRecommendationActedOn marks a recommendation as acted on
func (s *Store) MarkRecommendationActedOn(ctx context.Context, recID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE recommendations SET is_acted_on = TRUE, updated_at = NOW() WHERE id = $1", recID)
	return err
}

// VendorAverage is the average unit price for one (product, vendor) pair
// over a trailing window.
type VendorAverage struct {
	ProductID int64   `db:"product_id"`
	VendorID  int64   `db:"vendor_id"`
	AvgPrice  float64 `db:"avg_price"`
}

// VendorAveragesSince aggregates average prices per (product, vendor) over
// observations on or after the cutoff.
func (t *Tx) VendorAveragesSince(ctx context.Context, cutoff time.Time) ([]VendorAverage, error) {
	var rows []VendorAverage
	err := t.tx.SelectContext(ctx, &rows, `
		SELECT product_id, vendor_id, AVG(unit_price) AS avg_price
		FROM vendor_price_observations
		WHERE invoice_date >= $1
		GROUP BY product_id, vendor_id
		ORDER BY product_id, vendor_id`, cutoff)
	return rows, err
}

// PriceSpread is the min/max observed price for one product at one vendor
// over a trailing window, restricted to spreads above the increase threshold.
type PriceSpread struct {
	VendorID  int64   `db:"vendor_id"`
	ProductID int64   `db:"product_id"`
	MinPrice  float64 `db:"min_price"`
	MaxPrice  float64 `db:"max_price"`
}

// VendorPriceSpreadsSince returns (vendor, product) pairs whose max observed
// price exceeds the min by more than 5% within the window.
func (t *Tx) VendorPriceSpreadsSince(ctx context.Context, cutoff time.Time) ([]PriceSpread, error) {
	var rows []PriceSpread
	err := t.tx.SelectContext(ctx, &rows, `
		SELECT vendor_id, product_id,
		       MIN(unit_price) AS min_price,
		       MAX(unit_price) AS max_price
		FROM vendor_price_observations
		WHERE invoice_date >= $1
		GROUP BY vendor_id, product_id
		HAVING MAX(unit_price) > MIN(unit_price) * 1.05
		ORDER BY vendor_id, product_id`, cutoff)
	return rows, err
}

// ProductVolume is the summed purchase quantity for one product over a window
type ProductVolume struct {
	ProductID int64   `db:"product_id"`
	Volume    float64 `db:"volume"`
}

// ProductVolumesBetween sums purchase quantities per product for
// observations in [from, to).
func (t *Tx) ProductVolumesBetween(ctx context.Context, from, to time.Time) ([]ProductVolume, error) {
	var rows []ProductVolume
	err := t.tx.SelectContext(ctx, &rows, `
		SELECT product_id, SUM(quantity) AS volume
		FROM vendor_price_observations
		WHERE invoice_date >= $1 AND invoice_date < $2
		GROUP BY product_id
		ORDER BY product_id`, from, to)
	return rows, err
}

// GetProductTx retrieves a product by ID within the transaction snapshot
func (t *Tx) GetProductTx(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := t.tx.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetVendorTx retrieves a vendor by ID within the transaction snapshot
func (t *Tx) GetVendorTx(ctx context.Context, id int64) (*models.Vendor, error) {
	var vendor models.Vendor
	err := t.tx.GetContext(ctx, &vendor, "SELECT * FROM vendors WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

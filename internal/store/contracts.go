package store

import (
	"context"
	"time"

	"purchase-tracker/internal/models"
)

// GetActiveContracts returns every active contract for (vendor, product)
// whose date range contains the given date, ordered by ID. More than one row
// is a data-entry error the caller must surface.
func (t *Tx) GetActiveContracts(ctx context.Context, vendorID, productID int64, date time.Time) ([]models.PriceContract, error) {
	var contracts []models.PriceContract
	err := t.tx.SelectContext(ctx, &contracts, `
		SELECT * FROM price_contracts
		WHERE vendor_id = $1 AND product_id = $2
		  AND is_active
		  AND start_date <= $3 AND end_date >= $3
		ORDER BY id`, vendorID, productID, date)
	return contracts, err
}

// CreateContract inserts a new price contract
func (s *Store) CreateContract(ctx context.Context, contract *models.PriceContract) error {
	query := `
		INSERT INTO price_contracts (vendor_id, product_id, agreed_price, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_active, created_at`

	return s.db.GetContext(ctx, contract, query,
		contract.VendorID, contract.ProductID, contract.AgreedPrice,
		contract.StartDate, contract.EndDate)
}

// ListContracts retrieves contracts ordered by end date
func (s *Store) ListContracts(ctx context.Context, activeOnly bool) ([]models.PriceContract, error) {
	var contracts []models.PriceContract
	if activeOnly {
		err := s.db.SelectContext(ctx, &contracts,
			"SELECT * FROM price_contracts WHERE is_active ORDER BY end_date")
		return contracts, err
	}
	err := s.db.SelectContext(ctx, &contracts,
		"SELECT * FROM price_contracts ORDER BY end_date")
	return contracts, err
}

// DeactivateContract soft-deletes a contract; rows are never hard-deleted
func (s *Store) DeactivateContract(ctx context.Context, contractID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE price_contracts SET is_active = FALSE WHERE id = $1", contractID)
	return err
}

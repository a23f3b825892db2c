package store

import (
	"context"

	"purchase-tracker/internal/models"
)

// CreateAlert inserts a price alert inside the ingestion transaction
func (t *Tx) CreateAlert(ctx context.Context, alert *models.PriceAlert) error {
	query := `
		INSERT INTO price_alerts (product_id, vendor_id, observation_id,
			previous_price, new_price, change_percent, alert_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return t.tx.GetContext(ctx, alert, query,
		alert.ProductID, alert.VendorID, alert.ObservationID,
		alert.PreviousPrice, alert.NewPrice, alert.ChangePercent, alert.AlertType)
}

// GetAlerts retrieves alerts newest first, optionally unacknowledged only
func (s *Store) GetAlerts(ctx context.Context, unacknowledgedOnly bool, limit int) ([]models.PriceAlert, error) {
	if limit <= 0 {
		limit = 100
	}

	var alerts []models.PriceAlert
	if unacknowledgedOnly {
		err := s.db.SelectContext(ctx, &alerts, `
			SELECT * FROM price_alerts
			WHERE NOT is_acknowledged
			ORDER BY created_at DESC LIMIT $1`, limit)
		return alerts, err
	}
	err := s.db.SelectContext(ctx, &alerts,
		"SELECT * FROM price_alerts ORDER BY created_at DESC LIMIT $1", limit)
	return alerts, err
}

// AcknowledgeAlert marks an alert as acknowledged
func (s *Store) AcknowledgeAlert(ctx context.Context, alertID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE price_alerts
		SET is_acknowledged = TRUE, acknowledged_at = NOW()
		WHERE id = $1`, alertID)
	return err
}

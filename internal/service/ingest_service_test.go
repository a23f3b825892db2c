package service

import (
	"testing"

	"purchase-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatePriceChange_IncreaseAboveThreshold(t *testing.T) {
	alertType, changePct, ok := evaluatePriceChange(38.00, 41.00)
	require.True(t, ok)
	assert.Equal(t, models.AlertTypeIncrease, alertType)
	assert.InDelta(t, 7.89, changePct, 0.01)
}

func TestEvaluatePriceChange_WithinThreshold(t *testing.T) {
	// +3.9% stays under the 5% threshold
	_, _, ok := evaluatePriceChange(38.00, 39.50)
	assert.False(t, ok)
}

func TestEvaluatePriceChange_ExactThreshold(t *testing.T) {
	// exactly 5% does not fire; the move must exceed the threshold
	_, _, ok := evaluatePriceChange(100.00, 105.00)
	assert.False(t, ok)
}

func TestEvaluatePriceChange_Decrease(t *testing.T) {
	alertType, changePct, ok := evaluatePriceChange(40.00, 36.00)
	require.True(t, ok)
	assert.Equal(t, models.AlertTypeDecrease, alertType)
	assert.InDelta(t, -10.0, changePct, 0.001)
}

func TestEvaluatePriceChange_NoPreviousPrice(t *testing.T) {
	_, _, ok := evaluatePriceChange(0, 10.00)
	assert.False(t, ok)
}

func TestContractViolation(t *testing.T) {
	// 30.00 agreed, 31.50 observed: 5% over, well past the 1% tolerance
	overPct, violated := contractViolation(30.00, 31.50)
	require.True(t, violated)
	assert.InDelta(t, 5.0, overPct, 0.001)
}

func TestContractViolation_WithinTolerance(t *testing.T) {
	_, violated := contractViolation(30.00, 30.20)
	assert.False(t, violated)

	_, violated = contractViolation(30.00, 30.30) // exactly 1% over
	assert.False(t, violated)
}

func TestContractViolation_UnderAgreedPrice(t *testing.T) {
	_, violated := contractViolation(30.00, 28.00)
	assert.False(t, violated)
}

func TestValidateLine(t *testing.T) {
	valid := LineItemRequest{ProductName: "Nutella", Quantity: 2, UnitPrice: 8.49}
	assert.NoError(t, validateLine(&valid))

	noName := valid
	noName.ProductName = ""
	assert.ErrorIs(t, validateLine(&noName), ErrMissingProductName)

	badQty := valid
	badQty.Quantity = 0
	assert.ErrorIs(t, validateLine(&badQty), ErrInvalidQuantity)

	badPrice := valid
	badPrice.UnitPrice = -1
	assert.ErrorIs(t, validateLine(&badPrice), ErrInvalidPrice)
}

func TestRejectReason(t *testing.T) {
	assert.Equal(t, "missing_name", rejectReason(ErrMissingProductName))
	assert.Equal(t, "invalid_quantity", rejectReason(ErrInvalidQuantity))
	assert.Equal(t, "invalid_price", rejectReason(ErrInvalidPrice))
	assert.Equal(t, "invalid", rejectReason(assert.AnError))
}

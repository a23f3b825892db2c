package matching

import (
	"testing"

	"purchase-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("", ""))
	assert.Equal(t, 1.0, Ratio("nutella", "nutella"))
	assert.Equal(t, 0.0, Ratio("abc", "xyz"))

	// Symmetric
	assert.InDelta(t, Ratio("sj welness", "sj wellness"), Ratio("sj wellness", "sj welness"), 1e-9)

	// A single-character typo stays close to 1
	assert.Greater(t, Ratio("sj welness", "sj wellness"), 0.9)
}

func TestBestMatchTypo(t *testing.T) {
	catalog := []models.Product{
		{ID: 1, Name: "SJ Wellness", NormalizedName: "sj wellness"},
		{ID: 2, Name: "Cape Cod Chips", NormalizedName: "cape cod chips"},
	}

	match := BestMatch("SJ WELNESS", catalog, DefaultThreshold)
	require.NotNil(t, match)
	assert.Equal(t, int64(1), match.ID)
}

func TestBestMatchRejectsUnrelated(t *testing.T) {
	catalog := []models.Product{
		{ID: 2, Name: "Cape Cod Chips", NormalizedName: "cape cod chips"},
	}

	assert.Nil(t, BestMatch("Nutella Family Pack", catalog, DefaultThreshold))
}

func TestBestMatchEmptyCatalog(t *testing.T) {
	assert.Nil(t, BestMatch("anything", nil, DefaultThreshold))
}

func TestBestMatchPrefersHigherScore(t *testing.T) {
	catalog := []models.Product{
		{ID: 1, NormalizedName: "tates choco chip"},
		{ID: 2, NormalizedName: "tates choco"},
	}

	match := BestMatch("tates choco", catalog, DefaultThreshold)
	require.NotNil(t, match)
	assert.Equal(t, int64(2), match.ID)
}

func TestBestMatchTieBreaksOnLowestID(t *testing.T) {
	// Identical normalized names tie exactly; the lowest ID must win
	// regardless of slice order.
	catalog := []models.Product{
		{ID: 7, NormalizedName: "whole milk"},
		{ID: 3, NormalizedName: "whole milk"},
	}

	match := BestMatch("Whole Milk", catalog, DefaultThreshold)
	require.NotNil(t, match)
	assert.Equal(t, int64(3), match.ID)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"purchase-tracker/internal/matching"
	"purchase-tracker/internal/models"
	"purchase-tracker/internal/scraper"
	"purchase-tracker/internal/store"
	"purchase-tracker/internal/util"

	"go.uber.org/zap"
)

// ErrInvalidCompetitorPrice is returned for manual price submissions that
// fail validation.
var ErrInvalidCompetitorPrice = errors.New("competitor price must name a product and carry a positive price")

// CompetitorService records competitor price observations, either scraped
// or entered manually, and fuzzy-matches them onto the catalog.
type CompetitorService struct {
	store          *store.Store
	logger         *zap.Logger
	matchThreshold float64
}

// NewCompetitorService creates a new competitor service
func NewCompetitorService(st *store.Store, logger *zap.Logger, matchThreshold float64) *CompetitorService {
	if matchThreshold <= 0 {
		matchThreshold = matching.DefaultThreshold
	}
	return &CompetitorService{store: st, logger: logger, matchThreshold: matchThreshold}
}

// CreateStore registers a competitor store
func (s *CompetitorService) CreateStore(ctx context.Context, cs *models.CompetitorStore) error {
	if cs.ScraperType == "" {
		cs.ScraperType = "manual"
	}
	// fail fast on unusable scraper configs instead of at scrape time
	if cs.ScraperType != "manual" {
		if _, err := scraper.ForStore(cs); err != nil {
			return err
		}
	}
	return s.store.CreateCompetitorStore(ctx, cs)
}

// ListStores lists competitor stores
func (s *CompetitorService) ListStores(ctx context.Context, activeOnly bool) ([]models.CompetitorStore, error) {
	return s.store.ListCompetitorStores(ctx, activeOnly)
}

// ListPrices lists a store's recorded prices
func (s *CompetitorService) ListPrices(ctx context.Context, storeID int64, currentOnly bool) ([]models.CompetitorPriceObservation, error) {
	if _, err := s.store.GetCompetitorStore(ctx, storeID); err != nil {
		return nil, err
	}
	return s.store.ListCompetitorPrices(ctx, storeID, currentOnly)
}

// ManualPriceRequest is one hand-entered competitor price
type ManualPriceRequest struct {
	ProductName string  `json:"product_name" binding:"required"`
	Price       float64 `json:"price" binding:"required"`
	Unit        string  `json:"unit,omitempty"`
}

// AddManualPrice records a hand-entered competitor price, demoting any
// previous current observation for the same (store, normalized name).
func (s *CompetitorService) AddManualPrice(ctx context.Context, storeID int64, req *ManualPriceRequest) (*models.CompetitorPriceObservation, error) {
	ctx, span := util.StartSpan(ctx, "CompetitorService.AddManualPrice")
	defer span.End()

	if req.ProductName == "" || req.Price <= 0 {
		return nil, ErrInvalidCompetitorPrice
	}
	cs, err := s.store.GetCompetitorStore(ctx, storeID)
	if err != nil {
		return nil, err
	}

	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog for matching: %w", err)
	}

	obs := s.buildObservation(cs.ID, scraper.Item{
		ProductName: req.ProductName,
		Price:       req.Price,
		Unit:        req.Unit,
	}, products, time.Now())

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := tx.DemoteCompetitorPrices(ctx, cs.ID, obs.NormalizedName); err != nil {
		return nil, fmt.Errorf("failed to demote previous observations: %w", err)
	}
	if err := tx.InsertCompetitorPrice(ctx, obs); err != nil {
		return nil, fmt.Errorf("failed to insert competitor price: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	util.CompetitorPricesScrapedTotal.WithLabelValues(strconv.FormatInt(cs.ID, 10)).Inc()
	return obs, nil
}

// RunScraper executes one store's scraper and replaces its current price
// set with the fetched items. Returns the number of prices recorded.
func (s *CompetitorService) RunScraper(ctx context.Context, storeID int64) (int, error) {
	ctx, span := util.StartSpan(ctx, "CompetitorService.RunScraper")
	defer span.End()

	cs, err := s.store.GetCompetitorStore(ctx, storeID)
	if err != nil {
		return 0, err
	}

	sc, err := scraper.ForStore(cs)
	if err != nil {
		return 0, err
	}
	items, err := sc.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("scrape failed for store %d: %w", cs.ID, err)
	}
	if len(items) == 0 {
		s.logger.Info("scrape returned no items", zap.Int64("store_id", cs.ID))
		return 0, nil
	}

	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load catalog for matching: %w", err)
	}

	now := time.Now()
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// a full scrape replaces the store's entire current price set
	if err := tx.DemoteAllForStore(ctx, cs.ID); err != nil {
		return 0, fmt.Errorf("failed to demote previous observations: %w", err)
	}

	inserted := 0
	for _, item := range items {
		if item.ProductName == "" || item.Price <= 0 {
			continue
		}
		obs := s.buildObservation(cs.ID, item, products, now)
		if err := tx.InsertCompetitorPrice(ctx, obs); err != nil {
			return 0, fmt.Errorf("failed to insert scraped price: %w", err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	if err := s.store.TouchStoreScraped(ctx, cs.ID); err != nil {
		s.logger.Warn("failed to stamp scrape time", zap.Int64("store_id", cs.ID), zap.Error(err))
	}

	util.CompetitorPricesScrapedTotal.WithLabelValues(strconv.FormatInt(cs.ID, 10)).Add(float64(inserted))
	s.logger.Info("scrape complete",
		zap.Int64("store_id", cs.ID),
		zap.Int("prices", inserted))
	return inserted, nil
}

// buildObservation normalizes and fuzzy-matches one competitor item against
// the catalog. An unmatched item is still recorded; it may match later as
// the catalog grows.
func (s *CompetitorService) buildObservation(storeID int64, item scraper.Item, products []models.Product, observedAt time.Time) *models.CompetitorPriceObservation {
	obs := &models.CompetitorPriceObservation{
		StoreID:        storeID,
		ProductName:    item.ProductName,
		NormalizedName: matching.Normalize(item.ProductName),
		Price:          item.Price,
		Unit:           nullString(item.Unit),
		ObservedAt:     observedAt,
	}
	if match := matching.BestMatch(item.ProductName, products, s.matchThreshold); match != nil {
		obs.MatchedProductID = nullInt64(match.ID)
	}
	return obs
}

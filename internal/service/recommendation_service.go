package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"purchase-tracker/internal/broker"
	"purchase-tracker/internal/models"
	"purchase-tracker/internal/redisclient"
	"purchase-tracker/internal/store"
	"purchase-tracker/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	engineLockKey = "recommendation-engine"
	engineLockTTL = 5 * time.Minute

	cheaperVendorWindowDays = 90
	cheaperVendorMinSavings = 5.0 // percent
	cheaperVendorExpiryDays = 30
	// a recommendation estimates one month of savings at roughly weekly buys
	cheaperVendorMonthlyBuys = 4

	priceIncreaseWindowDays = 60
	priceIncreaseMinProds   = 3
	priceIncreaseExpiryDays = 14

	competitorMinSavings = 5.0 // percent
	competitorExpiryDays = 7

	volumeRecentDays    = 30
	volumeBaselineDays  = 90
	volumeSpikeFactor   = 2.0
	volumeAnomalyExpiry = 14
)

// ErrGenerationInProgress is returned when another instance holds the
// engine lock.
var ErrGenerationInProgress = errors.New("recommendation generation already in progress")

// RecommendationService synthesizes purchasing recommendations from the
// observation history. Runs are single-flight across instances and
// idempotent: re-running on unchanged data creates nothing new.
type RecommendationService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewRecommendationService creates a new recommendation service
func NewRecommendationService(st *store.Store, redis *redisclient.Client, publisher *broker.EventPublisher, logger *zap.Logger) *RecommendationService {
	return &RecommendationService{
		store:          st,
		redis:          redis,
		eventPublisher: publisher,
		logger:         logger,
	}
}

// Generate runs every heuristic inside one snapshot transaction and returns
// the number of recommendations created. Expired recommendations are
// garbage-collected first. A heuristic that fails is rolled back to its
// savepoint and skipped; the others still commit.
func (s *RecommendationService) Generate(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "RecommendationService.Generate")
	defer span.End()

	acquired, err := s.redis.AcquireLock(ctx, engineLockKey, engineLockTTL)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire engine lock: %w", err)
	}
	if !acquired {
		util.RecommendationRunsTotal.WithLabelValues("skipped").Inc()
		return 0, ErrGenerationInProgress
	}
	defer func() {
		if err := s.redis.ReleaseLock(context.Background(), engineLockKey); err != nil {
			s.logger.Warn("failed to release engine lock", zap.Error(err))
		}
	}()

	start := time.Now()
	created, err := s.generate(ctx, start)
	util.RecommendationRunDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil && created == 0:
		util.RecommendationRunsTotal.WithLabelValues("error").Inc()
		return 0, err
	case err != nil:
		// some heuristics failed but the rest committed
		util.RecommendationRunsTotal.WithLabelValues("partial").Inc()
		s.logger.Warn("recommendation run partially complete",
			zap.Int("created", created), zap.Error(err))
		return created, err
	}
	util.RecommendationRunsTotal.WithLabelValues("success").Inc()

	s.logger.Info("recommendation run complete",
		zap.Int("created", created),
		zap.Duration("duration", time.Since(start)))
	return created, nil
}

func (s *RecommendationService) generate(ctx context.Context, now time.Time) (int, error) {
	tx, err := s.store.BeginSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	purged, err := tx.DeleteExpiredRecommendations(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired recommendations: %w", err)
	}
	if purged > 0 {
		s.logger.Info("purged expired recommendations", zap.Int64("count", purged))
	}

	heuristics := []struct {
		name string
		run  func(context.Context, *store.Tx, time.Time) ([]models.Recommendation, error)
	}{
		{"cheaper_vendors", s.findCheaperVendors},
		{"price_increases", s.findPriceIncreases},
		{"competitor_prices", s.findCompetitorOpportunities},
		{"volume_anomalies", s.findVolumeAnomalies},
	}

	var created []models.Recommendation
	var heuristicErrs []error
	for i, h := range heuristics {
		sp := fmt.Sprintf("heuristic_%d", i)
		if err := tx.Savepoint(ctx, sp); err != nil {
			return 0, err
		}
		recs, err := h.run(ctx, tx, now)
		if err != nil {
			s.logger.Error("heuristic failed, skipping",
				zap.String("heuristic", h.name), zap.Error(err))
			heuristicErrs = append(heuristicErrs, fmt.Errorf("%s: %w", h.name, err))
			if rbErr := tx.RollbackToSavepoint(ctx, sp); rbErr != nil {
				return 0, fmt.Errorf("failed to roll back heuristic %s: %w", h.name, rbErr)
			}
			continue
		}
		if err := tx.ReleaseSavepoint(ctx, sp); err != nil {
			return 0, err
		}
		created = append(created, recs...)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit recommendation run: %w", err)
	}

	for i := range created {
		util.RecommendationsCreatedTotal.WithLabelValues(created[i].Type).Inc()
		s.publishCreated(ctx, &created[i])
	}
	return len(created), errors.Join(heuristicErrs...)
}

func (s *RecommendationService) publishCreated(ctx context.Context, rec *models.Recommendation) {
	if s.eventPublisher == nil {
		return
	}
	event := &models.RecommendationCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRecommendationCreated,
			Timestamp: time.Now(),
		},
		RecommendationID: rec.ID,
		Type:             rec.Type,
		ProductID:        rec.ProductID.Int64,
		VendorID:         rec.VendorID.Int64,
		Title:            rec.Title,
		PotentialSavings: rec.PotentialSavings.Float64,
	}
	if err := s.eventPublisher.PublishRecommendationCreated(ctx, event); err != nil {
		s.logger.Warn("failed to publish RecommendationCreated event",
			zap.Int64("recommendation_id", rec.ID), zap.Error(err))
	}
}

// cheaperVendorCandidate pairs one overpriced vendor with the cheapest
// alternative for the same product.
type cheaperVendorCandidate struct {
	ProductID         int64
	ExpensiveVendorID int64
	CheapestVendorID  int64
	ExpensivePrice    float64
	CheapestPrice     float64
	SavingsPercent    float64
}

// cheaperVendorCandidates reduces per-(product, vendor) averages to one
// candidate per vendor priced at least minSavings percent above the
// cheapest vendor for that product. Products with a single vendor are
// skipped.
func cheaperVendorCandidates(averages []store.VendorAverage, minSavings float64) []cheaperVendorCandidate {
	byProduct := make(map[int64][]store.VendorAverage)
	var order []int64
	for _, avg := range averages {
		if _, seen := byProduct[avg.ProductID]; !seen {
			order = append(order, avg.ProductID)
		}
		byProduct[avg.ProductID] = append(byProduct[avg.ProductID], avg)
	}

	var out []cheaperVendorCandidate
	for _, productID := range order {
		vendors := byProduct[productID]
		if len(vendors) < 2 {
			continue
		}

		sort.Slice(vendors, func(i, j int) bool {
			if vendors[i].AvgPrice != vendors[j].AvgPrice {
				return vendors[i].AvgPrice < vendors[j].AvgPrice
			}
			return vendors[i].VendorID < vendors[j].VendorID
		})
		cheapest := vendors[0]

		for _, v := range vendors[1:] {
			if v.AvgPrice <= 0 {
				continue
			}
			savings := (v.AvgPrice - cheapest.AvgPrice) / v.AvgPrice * 100
			if savings < minSavings {
				continue
			}
			out = append(out, cheaperVendorCandidate{
				ProductID:         productID,
				ExpensiveVendorID: v.VendorID,
				CheapestVendorID:  cheapest.VendorID,
				ExpensivePrice:    v.AvgPrice,
				CheapestPrice:     cheapest.AvgPrice,
				SavingsPercent:    savings,
			})
		}
	}
	return out
}

func (s *RecommendationService) findCheaperVendors(ctx context.Context, tx *store.Tx, now time.Time) ([]models.Recommendation, error) {
	cutoff := now.AddDate(0, 0, -cheaperVendorWindowDays)
	averages, err := tx.VendorAveragesSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var created []models.Recommendation
	for _, cand := range cheaperVendorCandidates(averages, cheaperVendorMinSavings) {
		exists, err := tx.ActiveRecommendationExists(ctx, models.RecTypeCheaperVendor, &cand.ProductID, &cand.ExpensiveVendorID, now)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		product, err := tx.GetProductTx(ctx, cand.ProductID)
		if err != nil {
			return nil, err
		}
		cheapVendor, err := tx.GetVendorTx(ctx, cand.CheapestVendorID)
		if err != nil {
			return nil, err
		}
		expensiveVendor, err := tx.GetVendorTx(ctx, cand.ExpensiveVendorID)
		if err != nil {
			return nil, err
		}
		if product == nil || cheapVendor == nil || expensiveVendor == nil {
			continue
		}

		data, _ := json.Marshal(map[string]interface{}{
			"cheapest_vendor_id": cand.CheapestVendorID,
			"cheapest_price":     cand.CheapestPrice,
			"current_price":      cand.ExpensivePrice,
			"savings_percent":    cand.SavingsPercent,
		})
		rec := models.Recommendation{
			Type:      models.RecTypeCheaperVendor,
			ProductID: nullInt64(cand.ProductID),
			VendorID:  nullInt64(cand.ExpensiveVendorID),
			Title:     fmt.Sprintf("Switch %s to %s", product.Name, cheapVendor.Name),
			Description: fmt.Sprintf("You pay $%.2f from %s but %s sells it for $%.2f (%.1f%% less)",
				cand.ExpensivePrice, expensiveVendor.Name, cheapVendor.Name, cand.CheapestPrice, cand.SavingsPercent),
			PotentialSavings: nullFloat64((cand.ExpensivePrice - cand.CheapestPrice) * cheaperVendorMonthlyBuys),
			Priority:         3,
			Data:             data,
			ExpiresAt:        nullTime(now.AddDate(0, 0, cheaperVendorExpiryDays)),
		}
		if err := tx.CreateRecommendation(ctx, &rec); err != nil {
			return nil, err
		}
		created = append(created, rec)
	}
	return created, nil
}

// vendorIncrease aggregates one vendor's raised products over the window
type vendorIncrease struct {
	VendorID      int64
	ProductCount  int
	TotalIncrease float64
}

// vendorIncreases groups per-product price spreads by vendor and keeps
// vendors with at least minProducts raised products.
func vendorIncreases(spreads []store.PriceSpread, minProducts int) []vendorIncrease {
	byVendor := make(map[int64]*vendorIncrease)
	var order []int64
	for _, spread := range spreads {
		agg, ok := byVendor[spread.VendorID]
		if !ok {
			agg = &vendorIncrease{VendorID: spread.VendorID}
			byVendor[spread.VendorID] = agg
			order = append(order, spread.VendorID)
		}
		agg.ProductCount++
		agg.TotalIncrease += spread.MaxPrice - spread.MinPrice
	}

	var out []vendorIncrease
	for _, vendorID := range order {
		if agg := byVendor[vendorID]; agg.ProductCount >= minProducts {
			out = append(out, *agg)
		}
	}
	return out
}

func (s *RecommendationService) findPriceIncreases(ctx context.Context, tx *store.Tx, now time.Time) ([]models.Recommendation, error) {
	cutoff := now.AddDate(0, 0, -priceIncreaseWindowDays)
	spreads, err := tx.VendorPriceSpreadsSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var created []models.Recommendation
	for _, inc := range vendorIncreases(spreads, priceIncreaseMinProds) {
		exists, err := tx.ActiveRecommendationExists(ctx, models.RecTypePriceIncrease, nil, &inc.VendorID, now)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		vendor, err := tx.GetVendorTx(ctx, inc.VendorID)
		if err != nil {
			return nil, err
		}
		if vendor == nil {
			continue
		}

		data, _ := json.Marshal(map[string]interface{}{
			"raised_product_count": inc.ProductCount,
			"total_increase":       inc.TotalIncrease,
			"window_days":          priceIncreaseWindowDays,
		})
		rec := models.Recommendation{
			Type:     models.RecTypePriceIncrease,
			VendorID: nullInt64(inc.VendorID),
			Title:    fmt.Sprintf("%s has raised prices broadly", vendor.Name),
			Description: fmt.Sprintf("%s raised prices on %d products in the last %d days (total increase $%.2f per unit). Consider renegotiating or switching vendors.",
				vendor.Name, inc.ProductCount, priceIncreaseWindowDays, inc.TotalIncrease),
			PotentialSavings: nullFloat64(inc.TotalIncrease),
			Priority:         2,
			Data:             data,
			ExpiresAt:        nullTime(now.AddDate(0, 0, priceIncreaseExpiryDays)),
		}
		if err := tx.CreateRecommendation(ctx, &rec); err != nil {
			return nil, err
		}
		created = append(created, rec)
	}
	return created, nil
}

// competitorSavings returns the percentage saved buying at the competitor
// price instead of ours, or false when the competitor is not at least
// minSavings percent cheaper.
func competitorSavings(ourPrice, theirPrice, minSavings float64) (float64, bool) {
	if ourPrice <= 0 || theirPrice >= ourPrice {
		return 0, false
	}
	pct := (ourPrice - theirPrice) / ourPrice * 100
	if pct < minSavings {
		return 0, false
	}
	return pct, true
}

func (s *RecommendationService) findCompetitorOpportunities(ctx context.Context, tx *store.Tx, now time.Time) ([]models.Recommendation, error) {
	prices, err := tx.CurrentMatchedCompetitorPrices(ctx)
	if err != nil {
		return nil, err
	}

	var created []models.Recommendation
	for _, cp := range prices {
		if !cp.MatchedProductID.Valid {
			continue
		}
		product, err := tx.GetProductTx(ctx, cp.MatchedProductID.Int64)
		if err != nil {
			return nil, err
		}
		if product == nil || !product.LastPrice.Valid {
			continue
		}

		pct, ok := competitorSavings(product.LastPrice.Float64, cp.Price, competitorMinSavings)
		if !ok {
			continue
		}

		exists, err := tx.ActiveRecommendationExists(ctx, models.RecTypeCompetitor, &product.ID, nil, now)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		cs, err := tx.GetCompetitorStoreTx(ctx, cp.StoreID)
		if err != nil {
			return nil, err
		}
		if cs == nil {
			continue
		}

		data, _ := json.Marshal(map[string]interface{}{
			"competitor_store_id": cp.StoreID,
			"competitor_price":    cp.Price,
			"our_price":           product.LastPrice.Float64,
			"savings_percent":     pct,
		})
		rec := models.Recommendation{
			Type:      models.RecTypeCompetitor,
			ProductID: nullInt64(product.ID),
			Title:     fmt.Sprintf("%s cheaper at %s", product.Name, cs.Name),
			Description: fmt.Sprintf("You pay $%.2f but %s has it for $%.2f (%.1f%% less)",
				product.LastPrice.Float64, cs.Name, cp.Price, pct),
			PotentialSavings: nullFloat64(product.LastPrice.Float64 - cp.Price),
			Priority:         4,
			Data:             data,
			ExpiresAt:        nullTime(now.AddDate(0, 0, competitorExpiryDays)),
		}
		if err := tx.CreateRecommendation(ctx, &rec); err != nil {
			return nil, err
		}
		created = append(created, rec)
	}
	return created, nil
}

// volumeSpike reports whether recent volume exceeds the normalized
// historical baseline by more than factor. The baseline window is three
// times the recent window, so it is divided by three before comparing.
func volumeSpike(recent, baseline, factor float64) bool {
	if baseline <= 0 {
		return false
	}
	return recent > (baseline/3)*factor
}

func (s *RecommendationService) findVolumeAnomalies(ctx context.Context, tx *store.Tx, now time.Time) ([]models.Recommendation, error) {
	recentFrom := now.AddDate(0, 0, -volumeRecentDays)
	baselineFrom := recentFrom.AddDate(0, 0, -volumeBaselineDays)

	recent, err := tx.ProductVolumesBetween(ctx, recentFrom, now)
	if err != nil {
		return nil, err
	}
	baseline, err := tx.ProductVolumesBetween(ctx, baselineFrom, recentFrom)
	if err != nil {
		return nil, err
	}

	baselineByProduct := make(map[int64]float64, len(baseline))
	for _, pv := range baseline {
		baselineByProduct[pv.ProductID] = pv.Volume
	}

	var created []models.Recommendation
	for _, pv := range recent {
		base, ok := baselineByProduct[pv.ProductID]
		if !ok || !volumeSpike(pv.Volume, base, volumeSpikeFactor) {
			continue
		}

		exists, err := tx.ActiveRecommendationExists(ctx, models.RecTypeVolumeAnomaly, &pv.ProductID, nil, now)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		product, err := tx.GetProductTx(ctx, pv.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			continue
		}

		monthlyBaseline := base / 3
		data, _ := json.Marshal(map[string]interface{}{
			"recent_volume":    pv.Volume,
			"monthly_baseline": monthlyBaseline,
			"window_days":      volumeRecentDays,
		})
		rec := models.Recommendation{
			Type:      models.RecTypeVolumeAnomaly,
			ProductID: nullInt64(pv.ProductID),
			Title:     fmt.Sprintf("Unusual purchase volume for %s", product.Name),
			Description: fmt.Sprintf("You bought %.1f units of %s in the last %d days vs a monthly baseline of %.1f. Check for waste or negotiate a bulk discount.",
				pv.Volume, product.Name, volumeRecentDays, monthlyBaseline),
			Priority:  5,
			Data:      data,
			ExpiresAt: nullTime(now.AddDate(0, 0, volumeAnomalyExpiry)),
		}
		if err := tx.CreateRecommendation(ctx, &rec); err != nil {
			return nil, err
		}
		created = append(created, rec)
	}
	return created, nil
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

func nullFloat64(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}

// ListActive returns active recommendations sorted by priority
func (s *RecommendationService) ListActive(ctx context.Context) ([]models.Recommendation, error) {
	return s.store.ListActiveRecommendations(ctx, time.Now())
}

// Dismiss marks a recommendation dismissed
func (s *RecommendationService) Dismiss(ctx context.Context, recID int64) error {
	return s.store.DismissRecommendation(ctx, recID)
}

// MarkActedOn marks a recommendation acted on
func (s *RecommendationService) MarkActedOn(ctx context.Context, recID int64) error {
	return s.store.MarkRecommendationActedOn(ctx, recID)
}

package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"purchase-tracker/internal/models"
	"purchase-tracker/internal/store"
	"purchase-tracker/internal/util"

	"go.uber.org/zap"
)

const (
	deadStockDefaultDays = 45
	reorderMinObs        = 3
	reorderDueSoonDays   = 3
)

// AnalyticsService derives temporal purchasing views from the observation
// history: dead stock, reorder suggestions, and seasonal price patterns.
type AnalyticsService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(st *store.Store, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{store: st, logger: logger}
}

// DeadStockItem is a product that was bought regularly and then stopped
type DeadStockItem struct {
	ProductID     int64     `json:"product_id"`
	ProductName   string    `json:"product_name"`
	LastPurchased time.Time `json:"last_purchased"`
	PriorBuys     int       `json:"prior_buys"`
	DaysSince     int       `json:"days_since_last_purchase"`
}

// DeadStock returns products with at least two purchases in the older
// history but none in the trailing thresholdDays window.
func (s *AnalyticsService) DeadStock(ctx context.Context, thresholdDays int) ([]DeadStockItem, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.DeadStock")
	defer span.End()

	if thresholdDays <= 0 {
		thresholdDays = deadStockDefaultDays
	}

	now := time.Now()
	// look back three windows so "was bought regularly" has room to show
	cutoff := now.AddDate(0, 0, -3*thresholdDays)
	summaries, err := s.store.GetObservationSummariesSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load observation summaries: %w", err)
	}

	return deadStockFrom(summaries, now, thresholdDays), nil
}

// deadStockFrom reduces observation summaries to dead-stock items: products
// with two or more buys before the recent window and none inside it.
func deadStockFrom(summaries []store.ObservationSummary, now time.Time, thresholdDays int) []DeadStockItem {
	recentCutoff := now.AddDate(0, 0, -thresholdDays)

	type productHistory struct {
		name      string
		priorBuys int
		recent    int
		last      time.Time
	}
	byProduct := make(map[int64]*productHistory)
	var order []int64

	for _, obs := range summaries {
		hist, ok := byProduct[obs.ProductID]
		if !ok {
			hist = &productHistory{name: obs.ProductName}
			byProduct[obs.ProductID] = hist
			order = append(order, obs.ProductID)
		}
		if obs.InvoiceDate.Before(recentCutoff) {
			hist.priorBuys++
		} else {
			hist.recent++
		}
		if obs.InvoiceDate.After(hist.last) {
			hist.last = obs.InvoiceDate
		}
	}

	var out []DeadStockItem
	for _, productID := range order {
		hist := byProduct[productID]
		if hist.priorBuys < 2 || hist.recent > 0 {
			continue
		}
		out = append(out, DeadStockItem{
			ProductID:     productID,
			ProductName:   hist.name,
			LastPurchased: hist.last,
			PriorBuys:     hist.priorBuys,
			DaysSince:     int(now.Sub(hist.last).Hours() / 24),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DaysSince > out[j].DaysSince })
	return out
}

// ReorderSuggestion flags a product whose usual reorder interval has
// elapsed or is about to.
type ReorderSuggestion struct {
	ProductID       int64     `json:"product_id"`
	ProductName     string    `json:"product_name"`
	AvgIntervalDays int       `json:"avg_interval_days"`
	LastOrdered     time.Time `json:"last_ordered"`
	DaysOverdue     int       `json:"days_overdue"`
	Urgency         string    `json:"urgency"`
}

// ReorderSuggestions derives each product's average reorder interval from
// its purchase dates and returns the ones due now or within three days.
// The derived interval is cached back onto the product row.
func (s *AnalyticsService) ReorderSuggestions(ctx context.Context) ([]ReorderSuggestion, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.ReorderSuggestions")
	defer span.End()

	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	now := time.Now()
	var out []ReorderSuggestion
	for _, product := range products {
		obs, err := s.store.GetObservations(ctx, product.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to load observations for product %d: %w", product.ID, err)
		}
		if len(obs) < reorderMinObs {
			continue
		}

		dates := make([]time.Time, len(obs))
		for i, o := range obs {
			dates[i] = o.InvoiceDate
		}
		interval, ok := avgIntervalDays(dates)
		if !ok {
			continue
		}

		if err := s.store.UpdateReorderFrequency(ctx, product.ID, interval); err != nil {
			s.logger.Warn("failed to cache reorder frequency",
				zap.Int64("product_id", product.ID), zap.Error(err))
		}

		lastOrdered := dates[len(dates)-1]
		overdue := int(now.Sub(lastOrdered).Hours()/24) - interval
		if overdue < -reorderDueSoonDays {
			continue
		}

		urgency := "due_soon"
		if overdue > 0 {
			urgency = "overdue"
		}
		out = append(out, ReorderSuggestion{
			ProductID:       product.ID,
			ProductName:     product.Name,
			AvgIntervalDays: interval,
			LastOrdered:     lastOrdered,
			DaysOverdue:     overdue,
			Urgency:         urgency,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DaysOverdue > out[j].DaysOverdue })
	return out, nil
}

// avgIntervalDays computes the mean gap in days between consecutive
// purchase dates. Dates must be in ascending order. Returns false when
// there are fewer than two distinct-in-time purchases.
func avgIntervalDays(dates []time.Time) (int, bool) {
	if len(dates) < 2 {
		return 0, false
	}
	var total float64
	for i := 1; i < len(dates); i++ {
		total += dates[i].Sub(dates[i-1]).Hours() / 24
	}
	avg := total / float64(len(dates)-1)
	if avg <= 0 {
		return 0, false
	}
	return int(math.Round(avg)), true
}

// MonthlyPricePoint summarizes one calendar month's prices for a product
type MonthlyPricePoint struct {
	Month    time.Month `json:"month"`
	AvgPrice float64    `json:"avg_price"`
	MinPrice float64    `json:"min_price"`
	MaxPrice float64    `json:"max_price"`
	Count    int        `json:"count"`
}

// SeasonalPattern groups a product's full observation history by calendar
// month, exposing when in the year it has historically been cheap.
func (s *AnalyticsService) SeasonalPattern(ctx context.Context, productID int64) (*models.Product, []MonthlyPricePoint, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.SeasonalPattern")
	defer span.End()

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, nil, err
	}

	obs, err := s.store.GetObservations(ctx, productID, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load observations: %w", err)
	}

	return product, seasonalFrom(obs), nil
}

// seasonalFrom buckets observations by calendar month across all years
func seasonalFrom(obs []models.VendorPriceObservation) []MonthlyPricePoint {
	type bucket struct {
		sum, min, max float64
		count         int
	}
	buckets := make(map[time.Month]*bucket)

	for _, o := range obs {
		month := o.InvoiceDate.Month()
		b, ok := buckets[month]
		if !ok {
			b = &bucket{min: o.UnitPrice, max: o.UnitPrice}
			buckets[month] = b
		}
		b.sum += o.UnitPrice
		b.count++
		if o.UnitPrice < b.min {
			b.min = o.UnitPrice
		}
		if o.UnitPrice > b.max {
			b.max = o.UnitPrice
		}
	}

	var out []MonthlyPricePoint
	for month := time.January; month <= time.December; month++ {
		b, ok := buckets[month]
		if !ok {
			continue
		}
		out = append(out, MonthlyPricePoint{
			Month:    month,
			AvgPrice: b.sum / float64(b.count),
			MinPrice: b.min,
			MaxPrice: b.max,
			Count:    b.count,
		})
	}
	return out
}

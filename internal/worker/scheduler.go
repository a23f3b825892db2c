package worker

import (
	"context"
	"errors"

	"purchase-tracker/internal/service"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the periodic jobs: nightly recommendation generation and
// competitor scrapes.
type Scheduler struct {
	cron        *cron.Cron
	recs        *service.RecommendationService
	competitors *service.CompetitorService
	logger      *zap.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(recs *service.RecommendationService, competitors *service.CompetitorService, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		recs:        recs,
		competitors: competitors,
		logger:      logger,
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start(recSpec, scrapeSpec string) error {
	if _, err := s.cron.AddFunc(recSpec, s.runRecommendations); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(scrapeSpec, s.runScrapes); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("recommendation_cron", recSpec),
		zap.String("scrape_cron", scrapeSpec))
	return nil
}

// Stop stops the cron loop and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runRecommendations() {
	created, err := s.recs.Generate(context.Background())
	if err != nil {
		if errors.Is(err, service.ErrGenerationInProgress) {
			s.logger.Info("recommendation run already in progress elsewhere")
			return
		}
		s.logger.Error("scheduled recommendation run failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled recommendation run finished", zap.Int("created", created))
}

func (s *Scheduler) runScrapes() {
	ctx := context.Background()
	stores, err := s.competitors.ListStores(ctx, true)
	if err != nil {
		s.logger.Error("failed to list competitor stores for scraping", zap.Error(err))
		return
	}

	for _, cs := range stores {
		if cs.ScraperType == "manual" {
			continue
		}
		count, err := s.competitors.RunScraper(ctx, cs.ID)
		if err != nil {
			s.logger.Error("scheduled scrape failed",
				zap.Int64("store_id", cs.ID), zap.Error(err))
			continue
		}
		s.logger.Info("scheduled scrape finished",
			zap.Int64("store_id", cs.ID), zap.Int("prices", count))
	}
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"purchase-tracker/internal/models"
	"purchase-tracker/internal/service"
	"purchase-tracker/internal/store"
	"purchase-tracker/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	store       *store.Store
	ingest      *service.IngestService
	recs        *service.RecommendationService
	analytics   *service.AnalyticsService
	competitors *service.CompetitorService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	st *store.Store,
	ingest *service.IngestService,
	recs *service.RecommendationService,
	analytics *service.AnalyticsService,
	competitors *service.CompetitorService,
) *Handler {
	return &Handler{
		store:       st,
		ingest:      ingest,
		recs:        recs,
		analytics:   analytics,
		competitors: competitors,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/invoices", h.ingestInvoice)

		v1.POST("/vendors", h.createVendor)
		v1.GET("/vendors", h.listVendors)

		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/products/:id/price-history", h.getPriceHistory)

		v1.GET("/alerts", h.listAlerts)
		v1.POST("/alerts/:id/acknowledge", h.acknowledgeAlert)

		v1.POST("/contracts", h.createContract)
		v1.GET("/contracts", h.listContracts)
		v1.DELETE("/contracts/:id", h.deactivateContract)

		v1.POST("/competitor-stores", h.createCompetitorStore)
		v1.GET("/competitor-stores", h.listCompetitorStores)
		v1.GET("/competitor-stores/:id/prices", h.listCompetitorPrices)
		v1.POST("/competitor-stores/:id/prices", h.addCompetitorPrice)
		v1.POST("/competitor-stores/:id/scrape", h.scrapeCompetitorStore)

		v1.POST("/recommendations/generate", h.generateRecommendations)
		v1.GET("/recommendations", h.listRecommendations)
		v1.POST("/recommendations/:id/dismiss", h.dismissRecommendation)
		v1.POST("/recommendations/:id/act", h.actOnRecommendation)

		v1.GET("/analytics/dead-stock", h.deadStock)
		v1.GET("/analytics/reorder-suggestions", h.reorderSuggestions)
		v1.GET("/analytics/seasonal/:id", h.seasonalPattern)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	if err := h.store.GetDB().PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// ingestInvoice handles invoice ingestion
func (h *Handler) ingestInvoice(c *gin.Context) {
	var req service.IngestInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.ingest.IngestInvoice(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrVendorNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrDuplicateInvoice):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrMissingProductName),
			errors.Is(err, service.ErrInvalidQuantity),
			errors.Is(err, service.ErrInvalidPrice):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to ingest invoice",
				"details": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// createVendor handles vendor creation
func (h *Handler) createVendor(c *gin.Context) {
	var vendor models.Vendor
	if err := c.ShouldBindJSON(&vendor); err != nil || vendor.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Vendor name is required"})
		return
	}

	if err := h.store.CreateVendor(c.Request.Context(), &vendor); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create vendor",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, vendor)
}

// listVendors handles vendor listing
func (h *Handler) listVendors(c *gin.Context) {
	vendors, err := h.store.GetVendors(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list vendors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vendors": vendors})
}

// listProducts handles product listing
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.store.GetProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list products"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getProduct handles get product by ID
func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.store.GetProductByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// getPriceHistory returns a product's observation sequence
func (h *Handler) getPriceHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "0"))
	obs, err := h.store.GetObservations(c.Request.Context(), id, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load price history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": id, "observations": obs})
}

// listAlerts handles alert listing
func (h *Handler) listAlerts(c *gin.Context) {
	unackedOnly := c.DefaultQuery("unacknowledged", "false") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	alerts, err := h.store.GetAlerts(c.Request.Context(), unackedOnly, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// acknowledgeAlert marks an alert acknowledged
func (h *Handler) acknowledgeAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.store.AcknowledgeAlert(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to acknowledge alert"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

// createContract handles contract creation
func (h *Handler) createContract(c *gin.Context) {
	var contract models.PriceContract
	if err := c.ShouldBindJSON(&contract); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if contract.AgreedPrice <= 0 || contract.EndDate.Before(contract.StartDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Contract needs a positive price and a valid date range"})
		return
	}

	if err := h.store.CreateContract(c.Request.Context(), &contract); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create contract",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, contract)
}

// listContracts handles contract listing
func (h *Handler) listContracts(c *gin.Context) {
	activeOnly := c.DefaultQuery("active", "false") == "true"
	contracts, err := h.store.ListContracts(c.Request.Context(), activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list contracts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}

// deactivateContract soft-deletes a contract
func (h *Handler) deactivateContract(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.store.DeactivateContract(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate contract"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deactivated": true})
}

// createCompetitorStore registers a competitor store
func (h *Handler) createCompetitorStore(c *gin.Context) {
	var cs models.CompetitorStore
	if err := c.ShouldBindJSON(&cs); err != nil || cs.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Store name is required"})
		return
	}

	if err := h.competitors.CreateStore(c.Request.Context(), &cs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to create competitor store",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, cs)
}

// listCompetitorStores handles competitor store listing
func (h *Handler) listCompetitorStores(c *gin.Context) {
	activeOnly := c.DefaultQuery("active", "false") == "true"
	stores, err := h.competitors.ListStores(c.Request.Context(), activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list competitor stores"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stores": stores})
}

// listCompetitorPrices handles competitor price listing for one store
func (h *Handler) listCompetitorPrices(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	currentOnly := c.DefaultQuery("current", "true") == "true"
	prices, err := h.competitors.ListPrices(c.Request.Context(), id, currentOnly)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"store_id": id, "prices": prices})
}

// addCompetitorPrice records a hand-entered competitor price
func (h *Handler) addCompetitorPrice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req service.ManualPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	obs, err := h.competitors.AddManualPrice(c.Request.Context(), id, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCompetitorPrice) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to record competitor price",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, obs)
}

// scrapeCompetitorStore triggers one store's scraper
func (h *Handler) scrapeCompetitorStore(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	count, err := h.competitors.RunScraper(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Scrape failed",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"store_id": id, "prices_recorded": count})
}

// generateRecommendations runs the recommendation engine
func (h *Handler) generateRecommendations(c *gin.Context) {
	created, err := h.recs.Generate(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrGenerationInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if created == 0 {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Recommendation run failed",
				"details": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"created": created, "warnings": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created})
}

// listRecommendations lists active recommendations by priority
func (h *Handler) listRecommendations(c *gin.Context) {
	recs, err := h.recs.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list recommendations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

// dismissRecommendation marks a recommendation dismissed
func (h *Handler) dismissRecommendation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.recs.Dismiss(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dismiss recommendation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dismissed": true})
}

// actOnRecommendation marks a recommendation acted on
func (h *Handler) actOnRecommendation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.recs.MarkActedOn(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update recommendation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acted_on": true})
}

// deadStock lists products that stopped being purchased
func (h *Handler) deadStock(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "0"))
	items, err := h.analytics.DeadStock(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute dead stock"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// reorderSuggestions lists products due for reordering
func (h *Handler) reorderSuggestions(c *gin.Context) {
	suggestions, err := h.analytics.ReorderSuggestions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute reorder suggestions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// seasonalPattern returns a product's per-month price summary
func (h *Handler) seasonalPattern(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	product, points, err := h.analytics.SeasonalPattern(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product": product,
		"months":  points,
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"purchase-tracker/internal/models"

	"github.com/PuerkitoBio/goquery"
)

// Item is one product price observed at a competitor store
type Item struct {
	ProductName string
	Price       float64
	Unit        string
}

// Scraper fetches current prices from one competitor store
type Scraper interface {
	Fetch(ctx context.Context) ([]Item, error)
}

// Config selects what to fetch and which CSS selectors extract each field.
// Stored per store as JSON in scraper_config.
type Config struct {
	URL             string `json:"url"`
	ItemSelector    string `json:"item_selector"`
	NameSelector    string `json:"name_selector"`
	PriceSelector   string `json:"price_selector"`
	UnitSelector    string `json:"unit_selector,omitempty"`
	TimeoutSeconds  int    `json:"timeout_seconds,omitempty"`
	UserAgentHeader string `json:"user_agent,omitempty"`
}

// ForStore builds the scraper configured for a competitor store. Stores
// without an automated scraper get the manual no-op, whose prices arrive
// through the API instead.
func ForStore(cs *models.CompetitorStore) (Scraper, error) {
	switch cs.ScraperType {
	case "generic_web":
		var cfg Config
		if err := json.Unmarshal(cs.ScraperConfig, &cfg); err != nil {
			return nil, fmt.Errorf("invalid scraper config for store %d: %w", cs.ID, err)
		}
		if cfg.URL == "" || cfg.ItemSelector == "" {
			return nil, fmt.Errorf("scraper config for store %d missing url or item_selector", cs.ID)
		}
		return NewWebScraper(cfg), nil
	default:
		return manualScraper{}, nil
	}
}

// manualScraper backs stores whose prices are entered by hand
type manualScraper struct{}

func (manualScraper) Fetch(context.Context) ([]Item, error) { return nil, nil }

// WebScraper extracts prices from a listing page with CSS selectors
type WebScraper struct {
	cfg    Config
	client *http.Client
}

// NewWebScraper creates a scraper for one configured listing page
func NewWebScraper(cfg Config) *WebScraper {
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &WebScraper{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads the listing page and extracts one Item per matched node.
// Nodes with an unparseable name or price are skipped, not fatal.
func (w *WebScraper) Fetch(ctx context.Context) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build scrape request: %w", err)
	}
	if w.cfg.UserAgentHeader != "" {
		req.Header.Set("User-Agent", w.cfg.UserAgentHeader)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape request returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}

	var items []Item
	doc.Find(w.cfg.ItemSelector).Each(func(_ int, sel *goquery.Selection) {
		name := strings.TrimSpace(sel.Find(w.cfg.NameSelector).First().Text())
		if name == "" {
			return
		}
		price, ok := ParsePrice(sel.Find(w.cfg.PriceSelector).First().Text())
		if !ok {
			return
		}
		var unit string
		if w.cfg.UnitSelector != "" {
			unit = strings.TrimSpace(sel.Find(w.cfg.UnitSelector).First().Text())
		}
		items = append(items, Item{ProductName: name, Price: price, Unit: unit})
	})
	return items, nil
}

var priceRe = regexp.MustCompile(`\d+(?:[.,]\d{1,2})?`)

// ParsePrice extracts the first decimal amount from scraped price text,
// tolerating currency symbols, whitespace, and a comma decimal separator.
func ParsePrice(text string) (float64, bool) {
	match := priceRe.FindString(text)
	if match == "" {
		return 0, false
	}
	match = strings.ReplaceAll(match, ",", ".")
	price, err := strconv.ParseFloat(match, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

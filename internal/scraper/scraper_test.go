package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"purchase-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"$4.99", 4.99, true},
		{" 12.50 / lb", 12.50, true},
		{"3,49 €", 3.49, true},
		{"7", 7, true},
		{"call for price", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParsePrice(tt.text)
		assert.Equal(t, tt.ok, ok, "text %q", tt.text)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 0.001, "text %q", tt.text)
		}
	}
}

func TestWebScraperFetch(t *testing.T) {
	const page = `<html><body>
		<div class="product">
			<span class="name">Nutella Family Pack</span>
			<span class="price">$8.49</span>
			<span class="unit">750g</span>
		</div>
		<div class="product">
			<span class="name">Cape Cod Chips</span>
			<span class="price">$3.99</span>
		</div>
		<div class="product">
			<span class="name"></span>
			<span class="price">$1.00</span>
		</div>
		<div class="product">
			<span class="name">No Price Item</span>
			<span class="price">sold out</span>
		</div>
	</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	ws := NewWebScraper(Config{
		URL:           srv.URL,
		ItemSelector:  "div.product",
		NameSelector:  "span.name",
		PriceSelector: "span.price",
		UnitSelector:  "span.unit",
	})

	items, err := ws.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Nutella Family Pack", items[0].ProductName)
	assert.InDelta(t, 8.49, items[0].Price, 0.001)
	assert.Equal(t, "750g", items[0].Unit)

	assert.Equal(t, "Cape Cod Chips", items[1].ProductName)
	assert.Empty(t, items[1].Unit)
}

func TestWebScraperFetch_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ws := NewWebScraper(Config{URL: srv.URL, ItemSelector: "div", NameSelector: "a", PriceSelector: "b"})
	_, err := ws.Fetch(context.Background())
	assert.Error(t, err)
}

func TestForStore(t *testing.T) {
	manual, err := ForStore(&models.CompetitorStore{ScraperType: "manual"})
	require.NoError(t, err)
	items, err := manual.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = ForStore(&models.CompetitorStore{
		ID:            1,
		ScraperType:   "generic_web",
		ScraperConfig: []byte(`{"url":""}`),
	})
	assert.Error(t, err)

	web, err := ForStore(&models.CompetitorStore{
		ID:            2,
		ScraperType:   "generic_web",
		ScraperConfig: []byte(`{"url":"http://example.com","item_selector":"div.p","name_selector":".n","price_selector":".pr"}`),
	})
	require.NoError(t, err)
	assert.IsType(t, &WebScraper{}, web)
}

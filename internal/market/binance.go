package market

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
)

// BinanceConfig controls the spot REST source.
type BinanceConfig struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
}

func (c BinanceConfig) withDefaults() BinanceConfig {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}

// BinanceSource implements Source on the go-binance spot SDK.
type BinanceSource struct {
	client *binance.Client
}

func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	final := cfg.withDefaults()
	client := binance.NewClient("", "")
	if base := strings.TrimSpace(final.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &BinanceSource{client: client}
}

var _ Source = (*BinanceSource)(nil)

func (s *BinanceSource) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Quote{}, fmt.Errorf("symbol is required")
	}
	prices, err := s.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("binance price %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return Quote{}, fmt.Errorf("binance price %s: empty response", symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("binance price %s: parsing %q: %w", symbol, prices[0].Price, err)
	}
	if price <= 0 {
		return Quote{}, fmt.Errorf("binance price %s: non-positive price %v", symbol, price)
	}
	return Quote{Symbol: symbol, Price: price, At: time.Now()}, nil
}

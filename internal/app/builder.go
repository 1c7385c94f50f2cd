package app

import (
	"context"
	"fmt"
	"time"

	"papertrade/internal/allocator"
	"papertrade/internal/config"
	"papertrade/internal/engine"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/market"
	"papertrade/internal/performance"
	"papertrade/internal/pkg/circuit"
	"papertrade/internal/position"
	"papertrade/internal/report"
	"papertrade/internal/store"
	"papertrade/internal/store/gormstore"
	"papertrade/internal/store/memstore"
	"papertrade/internal/strategy"
	apihttp "papertrade/internal/transport/http"
)

// AppBuilder assembles the application graph. Overrides exist so tests can
// swap the store and the price source.
type AppBuilder struct {
	cfg *config.Config

	storeOverride  store.Store
	marketOverride market.Source
}

type AppBuilderOption func(*AppBuilder)

func WithStore(st store.Store) AppBuilderOption {
	return func(b *AppBuilder) { b.storeOverride = st }
}

func WithMarketSource(src market.Source) AppBuilderOption {
	return func(b *AppBuilder) { b.marketOverride = src }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	st, err := b.buildStore(cfg)
	if err != nil {
		return nil, err
	}

	src, err := b.buildMarketSource(cfg)
	if err != nil {
		return nil, err
	}

	quote := func(ctx context.Context, symbol string) (float64, error) {
		q, err := src.GetPrice(ctx, symbol)
		if err != nil {
			return 0, err
		}
		return q.Price, nil
	}
	led := ledger.New(st, cfg.Ledger.InitialBalance,
		time.Duration(cfg.Ledger.CacheTTLSeconds)*time.Second, quote)
	alloc := allocator.New(st, led, cfg.Risk.CashReservePct, cfg.Risk.Sectors)
	positions := position.NewService(st, led, alloc, src)
	perf := performance.NewAggregator(st, alloc)
	eng := engine.New(st, positions, led, perf)
	renderer := report.NewRenderer(st, cfg.Ledger.InitialBalance)

	registry, err := strategy.NewRegistry(ctx, cfg.App.StrategiesPath, st)
	if err != nil {
		return nil, fmt.Errorf("loading strategies: %w", err)
	}

	httpServer, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr: cfg.App.HTTPAddr,
		Router: &apihttp.Router{
			Ledger:      led,
			Positions:   positions,
			Allocator:   alloc,
			Performance: perf,
			Engine:      eng,
			Report:      renderer,
		},
	})
	if err != nil {
		return nil, err
	}

	recon, err := led.Reconcile(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial reconciliation: %w", err)
	}
	logger.Infof("ledger reconciled: balance=%.2f trades=%d warnings=%d",
		recon.Balance, recon.TradeCount, len(recon.Warnings))

	return &App{
		cfg:      cfg,
		store:    st,
		engine:   eng,
		registry: registry,
		http:     httpServer,
	}, nil
}

func (b *AppBuilder) buildStore(cfg *config.Config) (store.Store, error) {
	if b.storeOverride != nil {
		return b.storeOverride, nil
	}
	if cfg.App.DBPath == ":memory:" {
		return memstore.New(), nil
	}
	st, err := gormstore.NewGormStore(cfg.App.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

func (b *AppBuilder) buildMarketSource(cfg *config.Config) (market.Source, error) {
	if b.marketOverride != nil {
		return b.marketOverride, nil
	}
	ttl := time.Duration(cfg.Market.CacheTTLSeconds) * time.Second
	switch cfg.Market.Provider {
	case "static":
		return market.NewStaticSource(cfg.Market.StaticPrices), nil
	case "binance":
		upstream := market.NewBinanceSource(market.BinanceConfig{
			RESTBaseURL: cfg.Market.RESTBaseURL,
			HTTPTimeout: time.Duration(cfg.Market.TimeoutSeconds) * time.Second,
		})
		breaker := circuit.NewCircuitBreaker("binance-quotes", 5, 30*time.Second)
		return market.NewCachedSource(upstream, ttl, breaker), nil
	default:
		return nil, fmt.Errorf("unknown market provider %q", cfg.Market.Provider)
	}
}

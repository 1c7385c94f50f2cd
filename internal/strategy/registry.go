package strategy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"papertrade/internal/domain"
	"papertrade/internal/logger"
	"papertrade/internal/store"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileEntry is one strategy definition in the strategies file.
type FileEntry struct {
	Name          string         `yaml:"name"`
	Type          string         `yaml:"type"`
	AllocationPct float64        `yaml:"allocation_pct"`
	MaxPositions  int            `yaml:"max_positions"`
	Active        *bool          `yaml:"active"`
	Params        map[string]any `yaml:"params"`
}

// FileConfig maps the strategies file.
type FileConfig struct {
	Strategies []FileEntry `yaml:"strategies"`
}

// Registry keeps the strategy store in sync with the strategies file.
// Strategies are never deleted: entries removed from the file are
// deactivated, keeping their history queryable.
type Registry struct {
	path  string
	store store.Store
	v     *viper.Viper
}

// NewRegistry parses the strategies file, syncs it into the store and
// re-syncs on file change.
func NewRegistry(ctx context.Context, path string, st store.Store) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("strategy registry requires path")
	}
	r := &Registry{path: path, store: st}
	if err := r.Sync(ctx); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read strategies config failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.Sync(context.Background()); err != nil {
			logger.Errorf("strategy reload failed: %v", err)
		}
	})
	v.WatchConfig()
	r.v = v
	return r, nil
}

// Sync upserts every file entry by name and deactivates stored strategies the
// file no longer mentions.
func (r *Registry) Sync(ctx context.Context) error {
	cfg, err := readStrategyFile(r.path)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(cfg.Strategies))
	for _, entry := range cfg.Strategies {
		strategy, err := entry.toDomain()
		if err != nil {
			logger.Errorf("strategy %q skipped: %v", entry.Name, err)
			continue
		}
		seen[strategy.Name] = true
		if err := r.upsert(ctx, strategy); err != nil {
			return err
		}
	}
	return r.deactivateMissing(ctx, seen)
}

func (r *Registry) upsert(ctx context.Context, strategy *domain.Strategy) error {
	existing, err := r.store.Strategies().FindByName(ctx, strategy.Name)
	switch {
	case errors.Is(err, domain.ErrStrategyNotFound):
		if err := r.store.Strategies().Create(ctx, strategy); err != nil {
			return fmt.Errorf("create strategy %s: %w", strategy.Name, err)
		}
		logger.Infof("strategy registered: %s (%s)", strategy.Name, strategy.Type)
		return nil
	case err != nil:
		return err
	}
	strategy.ID = existing.ID
	strategy.CreatedAt = existing.CreatedAt
	if err := r.store.Strategies().Update(ctx, strategy); err != nil {
		return fmt.Errorf("update strategy %s: %w", strategy.Name, err)
	}
	return nil
}

func (r *Registry) deactivateMissing(ctx context.Context, seen map[string]bool) error {
	stored, err := r.store.Strategies().List(ctx)
	if err != nil {
		return err
	}
	for i := range stored {
		s := &stored[i]
		if seen[s.Name] || !s.Active {
			continue
		}
		s.Active = false
		if err := r.store.Strategies().Update(ctx, s); err != nil {
			return fmt.Errorf("deactivate strategy %s: %w", s.Name, err)
		}
		logger.Infof("strategy deactivated: %s (removed from %s)", s.Name, filepath.Base(r.path))
	}
	return nil
}

func (e FileEntry) toDomain() (*domain.Strategy, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return nil, fmt.Errorf("name required")
	}
	typ := domain.StrategyType(strings.TrimSpace(e.Type))
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown type %q", e.Type)
	}
	if e.AllocationPct <= 0 || e.AllocationPct > 1 {
		return nil, fmt.Errorf("allocation_pct %v outside (0, 1]", e.AllocationPct)
	}
	if e.MaxPositions <= 0 {
		return nil, fmt.Errorf("max_positions must be positive")
	}
	params, err := ParseParams(e.Params)
	if err != nil {
		return nil, err
	}
	active := true
	if e.Active != nil {
		active = *e.Active
	}
	return &domain.Strategy{
		Name:          name,
		Type:          typ,
		Params:        params,
		AllocationPct: e.AllocationPct,
		MaxPositions:  e.MaxPositions,
		Active:        active,
	}, nil
}

func readStrategyFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read strategies config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse strategies config failed: %w", err)
	}
	return cfg, nil
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/draftwell/draftwell/internal/core/domain"
	"github.com/draftwell/draftwell/internal/core/ports"
)

// BrandStore loads brand configuration YAMLs from a directory at startup.
// Every file is validated fail-fast; a malformed brand aborts the load so a
// broken config is never half-admitted into a running server.
type BrandStore struct {
	logger *slog.Logger
	brands map[string]*domain.BrandConfig
	names  []string
}

var _ ports.BrandStore = (*BrandStore)(nil)

// NewBrandStore reads every *.yaml / *.yml file under dir as one brand.
// The brand identifier is the file name without extension.
func NewBrandStore(logger *slog.Logger, dir string) (*BrandStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read brand dir %s: %w", dir, err)
	}

	store := &BrandStore{
		logger: logger,
		brands: make(map[string]*domain.BrandConfig),
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ext)
		cfg, err := loadBrandFile(filepath.Join(dir, entry.Name()), name)
		if err != nil {
			return nil, err
		}

		store.brands[name] = cfg
		store.names = append(store.names, name)
		logger.Info("brand loaded",
			"brand", name,
			"version", cfg.Version,
			"max_iterations", cfg.Workflow.MaxIterations,
			"quality_threshold", cfg.Workflow.QualityThreshold,
		)
	}

	if len(store.brands) == 0 {
		return nil, fmt.Errorf("no brand configs found in %s", dir)
	}
	return store, nil
}

func loadBrandFile(path, name string) (*domain.BrandConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read brand file %s: %w", path, err)
	}

	cfg := &domain.BrandConfig{Name: name}
	applyBrandDefaults(cfg)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse brand %s: %w", name, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyBrandDefaults fills loop bounds and tool limits a brand file may omit.
func applyBrandDefaults(cfg *domain.BrandConfig) {
	cfg.Workflow.MaxIterations = 3
	cfg.Workflow.QualityThreshold = 8.0
	cfg.Retrieval.RAG.MaxResults = 5
	cfg.Retrieval.RAG.MaxDistance = 0.65
	cfg.Retrieval.Search.SearchDepth = "basic"
	cfg.Retrieval.Search.MaxResults = 5
}

// Get returns the brand config or ErrBrandNotFound.
func (s *BrandStore) Get(brand string) (*domain.BrandConfig, error) {
	cfg, ok := s.brands[brand]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBrandNotFound, brand)
	}
	return cfg, nil
}

// List returns the identifiers of all loaded brands.
func (s *BrandStore) List() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

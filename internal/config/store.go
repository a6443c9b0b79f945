package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/draftwell/draftwell/internal/core/domain"
)

// SettingsRepository is the minimal DB interface for settings persistence.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error
}

// OnChangeFunc is called when settings are updated.
type OnChangeFunc func(cfg *domain.AppConfig)

// SettingsStore manages persistent settings with encrypted secrets.
// Inspired by Gitea/Grafana settings architecture: categories stored as JSON,
// secrets encrypted at rest, masked on read.
type SettingsStore struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	secret   *SecretKey
	repo     SettingsRepository
	config   *domain.AppConfig
	onChange []OnChangeFunc
}

// NewSettingsStore creates a store that loads/saves settings from DB with
// AES-256-GCM encryption.
func NewSettingsStore(logger *slog.Logger, repo SettingsRepository, secret *SecretKey) (*SettingsStore, error) {
	store := &SettingsStore{
		logger: logger,
		secret: secret,
		repo:   repo,
	}

	ctx := context.Background()
	cfg, err := store.loadFromDB(ctx)
	if err != nil {
		logger.Warn("no saved settings found, using defaults", "error", err)
		cfg = domain.DefaultConfig()
		if err := store.saveToDB(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	store.config = cfg
	return store, nil
}

// OnChange registers a callback for when settings are updated.
// Used by the server lifecycle to hot-reload providers.
func (s *SettingsStore) OnChange(fn OnChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// GetConfig returns the current config with decrypted secrets.
func (s *SettingsStore) GetConfig() *domain.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := *s.config
	return &cp
}

// GetMaskedConfig returns config safe for API response (secrets masked).
func (s *SettingsStore) GetMaskedConfig() *domain.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := *s.config
	cp.Providers.LLM.APIKey = MaskSecret(s.config.Providers.LLM.APIKey)
	cp.Providers.Embedding.APIKey = MaskSecret(s.config.Providers.Embedding.APIKey)
	cp.Providers.Search.APIKey = MaskSecret(s.config.Providers.Search.APIKey)
	return &cp
}

// UpdateConfig validates, encrypts secrets, persists, and triggers onChange
// callbacks. Smart merge: if an api key is empty or masked, keeps existing.
func (s *SettingsStore) UpdateConfig(ctx context.Context, update *domain.AppConfig) error {
	s.mu.Lock()

	// Merge: preserve existing secrets if update sends empty/masked values
	if update.Providers.LLM.APIKey == "" || isMasked(update.Providers.LLM.APIKey) {
		update.Providers.LLM.APIKey = s.config.Providers.LLM.APIKey
	}
	if update.Providers.Embedding.APIKey == "" || isMasked(update.Providers.Embedding.APIKey) {
		update.Providers.Embedding.APIKey = s.config.Providers.Embedding.APIKey
	}
	if update.Providers.Search.APIKey == "" || isMasked(update.Providers.Search.APIKey) {
		update.Providers.Search.APIKey = s.config.Providers.Search.APIKey
	}

	// Validate required fields for remote mode
	if update.Providers.LLM.Mode == "remote" {
		if update.Providers.LLM.RemoteURL == "" {
			s.mu.Unlock()
			return fmt.Errorf("llm remote_url is required when mode=remote")
		}
		if update.Providers.LLM.APIKey == "" {
			s.mu.Unlock()
			return fmt.Errorf("llm api_key is required when mode=remote")
		}
	}

	// Defaults
	if update.Providers.LLM.Mode == "" {
		update.Providers.LLM.Mode = "local"
	}
	switch update.Providers.Embedding.Backend {
	case "", "openai", "genai":
	default:
		s.mu.Unlock()
		return fmt.Errorf("embedding backend must be openai or genai, got %q", update.Providers.Embedding.Backend)
	}
	if update.Providers.Embedding.Backend == "" {
		update.Providers.Embedding.Backend = "openai"
	}

	if err := s.saveToDB(ctx, update); err != nil {
		s.mu.Unlock()
		return err
	}

	s.config = update
	s.logger.Info("settings updated",
		"llm_mode", update.Providers.LLM.Mode,
		"embedding_backend", update.Providers.Embedding.Backend,
	)
	callbacks := append([]OnChangeFunc(nil), s.onChange...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(update)
	}

	return nil
}

func (s *SettingsStore) loadFromDB(ctx context.Context) (*domain.AppConfig, error) {
	raw, err := s.repo.GetSetting(ctx, "app_config")
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("no stored config")
	}

	var stored storedConfig
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	cfg := &domain.AppConfig{
		Providers: domain.ProviderConfig{
			LLM: domain.LLMProviderConfig{
				Mode:         stored.LLM.Mode,
				LocalURL:     stored.LLM.LocalURL,
				RemoteURL:    stored.LLM.RemoteURL,
				DefaultModel: stored.LLM.DefaultModel,
			},
			Embedding: domain.EmbeddingProviderConfig{
				Backend:      stored.Embedding.Backend,
				BaseURL:      stored.Embedding.BaseURL,
				DefaultModel: stored.Embedding.DefaultModel,
			},
		},
	}

	// Decrypt secrets
	if stored.LLM.EncryptedAPIKey != "" {
		key, err := s.secret.Decrypt(stored.LLM.EncryptedAPIKey)
		if err != nil {
			s.logger.Warn("failed to decrypt llm api key", "error", err)
		} else {
			cfg.Providers.LLM.APIKey = key
		}
	}
	if stored.Embedding.EncryptedAPIKey != "" {
		key, err := s.secret.Decrypt(stored.Embedding.EncryptedAPIKey)
		if err != nil {
			s.logger.Warn("failed to decrypt embedding api key", "error", err)
		} else {
			cfg.Providers.Embedding.APIKey = key
		}
	}
	if stored.Search.EncryptedAPIKey != "" {
		key, err := s.secret.Decrypt(stored.Search.EncryptedAPIKey)
		if err != nil {
			s.logger.Warn("failed to decrypt search api key", "error", err)
		} else {
			cfg.Providers.Search.APIKey = key
		}
	}

	return cfg, nil
}

func (s *SettingsStore) saveToDB(ctx context.Context, cfg *domain.AppConfig) error {
	stored := storedConfig{
		LLM: storedLLMConfig{
			Mode:         cfg.Providers.LLM.Mode,
			LocalURL:     cfg.Providers.LLM.LocalURL,
			RemoteURL:    cfg.Providers.LLM.RemoteURL,
			DefaultModel: cfg.Providers.LLM.DefaultModel,
		},
		Embedding: storedEmbeddingConfig{
			Backend:      cfg.Providers.Embedding.Backend,
			BaseURL:      cfg.Providers.Embedding.BaseURL,
			DefaultModel: cfg.Providers.Embedding.DefaultModel,
		},
	}

	if cfg.Providers.LLM.APIKey != "" {
		enc, err := s.secret.Encrypt(cfg.Providers.LLM.APIKey)
		if err != nil {
			return fmt.Errorf("encrypt llm api key: %w", err)
		}
		stored.LLM.EncryptedAPIKey = enc
	}
	if cfg.Providers.Embedding.APIKey != "" {
		enc, err := s.secret.Encrypt(cfg.Providers.Embedding.APIKey)
		if err != nil {
			return fmt.Errorf("encrypt embedding api key: %w", err)
		}
		stored.Embedding.EncryptedAPIKey = enc
	}
	if cfg.Providers.Search.APIKey != "" {
		enc, err := s.secret.Encrypt(cfg.Providers.Search.APIKey)
		if err != nil {
			return fmt.Errorf("encrypt search api key: %w", err)
		}
		stored.Search.EncryptedAPIKey = enc
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	return s.repo.SaveSetting(ctx, "app_config", string(raw))
}

// storedConfig is the DB representation with encrypted fields
type storedConfig struct {
	LLM       storedLLMConfig       `json:"llm"`
	Embedding storedEmbeddingConfig `json:"embedding"`
	Search    storedSearchConfig    `json:"search"`
}

type storedLLMConfig struct {
	Mode            string `json:"mode"`
	LocalURL        string `json:"local_url"`
	RemoteURL       string `json:"remote_url"`
	EncryptedAPIKey string `json:"encrypted_api_key,omitempty"`
	DefaultModel    string `json:"default_model"`
}

type storedEmbeddingConfig struct {
	Backend         string `json:"backend"`
	BaseURL         string `json:"base_url,omitempty"`
	EncryptedAPIKey string `json:"encrypted_api_key,omitempty"`
	DefaultModel    string `json:"default_model"`
}

type storedSearchConfig struct {
	EncryptedAPIKey string `json:"encrypted_api_key,omitempty"`
}

func isMasked(s string) bool {
	return len(s) >= 4 && s[:4] == "****"
}

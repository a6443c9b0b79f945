package domain

// LLMProviderConfig configures the chat-completion provider.
type LLMProviderConfig struct {
	Mode         string `json:"mode"`          // "local" or "remote"
	LocalURL     string `json:"local_url"`     // "http://localhost:11434"
	RemoteURL    string `json:"remote_url"`    // "https://openrouter.ai/api/v1"
	APIKey       string `json:"api_key"`       // encrypted in storage
	DefaultModel string `json:"default_model"` // fallback when a role omits one
}

// EmbeddingProviderConfig configures the vectorization backend for retrieval.
type EmbeddingProviderConfig struct {
	Backend      string `json:"backend"` // "openai" or "genai"
	BaseURL      string `json:"base_url,omitempty"`
	APIKey       string `json:"api_key"` // encrypted in storage
	DefaultModel string `json:"default_model"`
}

// SearchProviderConfig configures the web evidence provider.
type SearchProviderConfig struct {
	APIKey string `json:"api_key"` // encrypted in storage
}

// ProviderConfig holds configuration for all external providers.
type ProviderConfig struct {
	LLM       LLMProviderConfig       `json:"llm"`
	Embedding EmbeddingProviderConfig `json:"embedding"`
	Search    SearchProviderConfig    `json:"search"`
}

// AppConfig is the main application configuration, persisted via the
// settings store with encrypted secrets.
type AppConfig struct {
	Providers ProviderConfig `json:"providers"`
}

// DefaultConfig returns safe defaults (local Ollama, no remote keys).
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Providers: ProviderConfig{
			LLM: LLMProviderConfig{
				Mode:         "local",
				LocalURL:     "http://localhost:11434",
				DefaultModel: "qwen2.5:latest",
			},
			Embedding: EmbeddingProviderConfig{
				Backend:      "openai",
				DefaultModel: "text-embedding-3-small",
			},
		},
	}
}

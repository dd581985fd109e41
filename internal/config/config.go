package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Embedding   EmbeddingConfig           `json:"embedding"`
	Qdrant      QdrantConfig              `json:"qdrant"`
}

type BasicConfig struct {
	ServerAddress      string `json:"server_address"`
	ChatAPIKey         string `json:"chat_api_key"`
	AdminAPIKey        string `json:"admin_api_key"`
	LLMProvider        string `json:"llm_provider"`
	MaxHistoryMessages int    `json:"max_history_messages"`
	SummaryThreshold   int    `json:"summary_threshold"`
	RetrievalResults   int    `json:"retrieval_results"`
	StreamDelayMs      int    `json:"stream_delay_ms"`
	DocsDir            string `json:"docs_dir"`
	IngestWorkers      int    `json:"ingest_workers"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type EmbeddingConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type QdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Collection string `json:"collection"`
	VectorSize uint64 `json:"vector_size"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.BasicConfig.ChatAPIKey == "" {
		return nil, fmt.Errorf("chat_api_key must be configured")
	}
	if cfg.BasicConfig.AdminAPIKey == "" {
		return nil, fmt.Errorf("admin_api_key must be configured")
	}
	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8000"
	}
	if c.BasicConfig.LLMProvider == "" {
		c.BasicConfig.LLMProvider = "openai"
	}
	if c.BasicConfig.MaxHistoryMessages <= 0 {
		c.BasicConfig.MaxHistoryMessages = 50
	}
	if c.BasicConfig.SummaryThreshold <= 0 {
		c.BasicConfig.SummaryThreshold = 30
	}
	if c.BasicConfig.StreamDelayMs == 0 {
		c.BasicConfig.StreamDelayMs = 300
	}
	if c.BasicConfig.RetrievalResults <= 0 {
		c.BasicConfig.RetrievalResults = 3
	}
	if c.BasicConfig.DocsDir == "" {
		c.BasicConfig.DocsDir = "documents"
	}
	if c.BasicConfig.IngestWorkers <= 0 {
		c.BasicConfig.IngestWorkers = 4
	}
	if c.Qdrant.Collection == "" {
		c.Qdrant.Collection = "emochat_docs"
	}
	if c.Qdrant.VectorSize == 0 {
		c.Qdrant.VectorSize = 1536
	}
}

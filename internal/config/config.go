// Package config provides configuration loading for knowledged.
//
// Values come from a YAML file and are overridden by KNOWLEDGED_* environment
// variables. Missing values are filled by applyDefaults before validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the complete knowledged configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	Knowledge     KnowledgeConfig     `koanf:"knowledge"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	DocConv       DocConvConfig       `koanf:"docconv"`
	Watch         WatchConfig         `koanf:"watch"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig selects level and encoding for the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// KnowledgeConfig holds the document directories the tool façade reads from.
type KnowledgeConfig struct {
	KnowledgeBasePath   string `koanf:"knowledge_base_path"`
	KakTorBasePath      string `koanf:"kak_tor_base_path"`
	KakTorMDBasePath    string `koanf:"kak_tor_md_base_path"`
	SummariesMDBasePath string `koanf:"summaries_md_base_path"`
	TemplatesBasePath   string `koanf:"templates_base_path"`
}

// VectorStoreConfig selects and configures the vector table backend.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"` // "chromem" (default) or "qdrant"
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go table.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
}

// QdrantConfig configures the external Qdrant table.
type QdrantConfig struct {
	Host       string   `koanf:"host"`
	Port       int      `koanf:"port"`
	Collection string   `koanf:"collection"`
	UseTLS     bool     `koanf:"use_tls"`
	APIKey     Secret   `koanf:"api_key"`
	MaxRetries int      `koanf:"max_retries"`
	Timeout    Duration `koanf:"timeout"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	Provider    string  `koanf:"provider"` // fastembed, tei, openai, hash
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	APIKey      Secret  `koanf:"api_key"`
	CacheDir    string  `koanf:"cache_dir"`
	Dimension   int     `koanf:"dimension"`
	RebuildRate float64 `koanf:"rebuild_rate"` // batches per second, 0 = unlimited
}

// RetrievalConfig controls chunking and search defaults.
type RetrievalConfig struct {
	DefaultK     int `koanf:"default_k"`
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// DocConvConfig limits document conversion.
type DocConvConfig struct {
	MaxFileBytes int64 `koanf:"max_file_bytes"`
}

// WatchConfig controls automatic ingestion of new PDFs.
type WatchConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Project  string   `koanf:"project"`
	Tahun    string   `koanf:"tahun"`
	Debounce Duration `koanf:"debounce"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return fmt.Errorf("observability.sample_rate must be between 0 and 1, got %v", c.Observability.SampleRate)
	}

	switch c.VectorStore.Provider {
	case "chromem":
		if c.VectorStore.Chromem.Collection == "" {
			return errors.New("vectorstore.chromem.collection is required")
		}
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			return errors.New("vectorstore.qdrant.host is required")
		}
		if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.VectorStore.Qdrant.Port)
		}
	default:
		return fmt.Errorf("unsupported vectorstore provider: %q", c.VectorStore.Provider)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei", "openai", "hash":
	default:
		return fmt.Errorf("unsupported embeddings provider: %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension < 0 {
		return fmt.Errorf("embeddings.dimension must be >= 0, got %d", c.Embeddings.Dimension)
	}
	if c.Embeddings.RebuildRate < 0 {
		return errors.New("embeddings.rebuild_rate must be >= 0")
	}

	if c.Retrieval.DefaultK <= 0 {
		return fmt.Errorf("retrieval.default_k must be positive, got %d", c.Retrieval.DefaultK)
	}
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive, got %d", c.Retrieval.ChunkSize)
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be in [0, chunk_size), got %d", c.Retrieval.ChunkOverlap)
	}

	if c.DocConv.MaxFileBytes <= 0 {
		return errors.New("docconv.max_file_bytes must be positive")
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "knowledged"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}

	base := filepath.Join("~", ".local", "share", "knowledged")
	k := &cfg.Knowledge
	k.KnowledgeBasePath = ExpandHome(orDefault(k.KnowledgeBasePath, filepath.Join(base, "knowledge")))
	k.KakTorBasePath = ExpandHome(orDefault(k.KakTorBasePath, filepath.Join(base, "kak_tor")))
	k.KakTorMDBasePath = ExpandHome(orDefault(k.KakTorMDBasePath, filepath.Join(base, "kak_tor_md")))
	k.SummariesMDBasePath = ExpandHome(orDefault(k.SummariesMDBasePath, filepath.Join(base, "summaries")))
	k.TemplatesBasePath = ExpandHome(orDefault(k.TemplatesBasePath, filepath.Join(base, "templates")))

	// chromem is the default: embedded, no external services.
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	cfg.VectorStore.Chromem.Path = ExpandHome(orDefault(cfg.VectorStore.Chromem.Path, filepath.Join(base, "vectorstore")))
	if cfg.VectorStore.Chromem.Collection == "" {
		cfg.VectorStore.Chromem.Collection = "knowledge"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "knowledge"
	}
	if cfg.VectorStore.Qdrant.MaxRetries == 0 {
		cfg.VectorStore.Qdrant.MaxRetries = 3
	}
	if cfg.VectorStore.Qdrant.Timeout == 0 {
		cfg.VectorStore.Qdrant.Timeout = Duration(30 * time.Second)
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	cfg.Embeddings.CacheDir = ExpandHome(orDefault(cfg.Embeddings.CacheDir, filepath.Join(base, "models")))

	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 5
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 1000
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = 200
		if cfg.Retrieval.ChunkOverlap >= cfg.Retrieval.ChunkSize {
			cfg.Retrieval.ChunkOverlap = cfg.Retrieval.ChunkSize / 5
		}
	}

	if cfg.DocConv.MaxFileBytes == 0 {
		cfg.DocConv.MaxFileBytes = 50 << 20
	}

	if cfg.Watch.Project == "" {
		cfg.Watch.Project = "product_standard"
	}
	if cfg.Watch.Tahun == "" {
		cfg.Watch.Tahun = "2025"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = Duration(2 * time.Second)
	}
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

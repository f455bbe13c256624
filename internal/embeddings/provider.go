package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider generates document and query embeddings of a fixed dimension.
type Provider interface {
	// EmbedDocuments embeds chunk texts, one vector per text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector size.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	Provider  string // fastembed, tei, openai, hash
	Model     string
	BaseURL   string // tei and openai
	APIKey    string // openai
	CacheDir  string // fastembed
	Dimension int    // overrides detection when > 0
}

// NewProvider creates the configured provider wrapped with metrics.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	p, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return withMetrics(p, cfg.Model), nil
}

func newProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		return NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: dimensionFor(cfg),
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: dimensionFor(cfg),
		})
	case "hash":
		dim := cfg.Dimension
		if dim == 0 {
			dim = 384
		}
		return NewHashProvider(dim), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func dimensionFor(cfg ProviderConfig) int {
	if cfg.Dimension > 0 {
		return cfg.Dimension
	}
	return detectDimensionFromModel(cfg.Model)
}

// detectDimensionFromModel guesses the vector size from a model name and
// falls back to 384 (bge-small).
func detectDimensionFromModel(model string) int {
	if dim, ok := knownModelDimensions[model]; ok {
		return dim
	}
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "large"):
		return 1024
	case strings.Contains(m, "base"):
		return 768
	default:
		return 384
	}
}

var knownModelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"BAAI/bge-m3":                            1024,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"intfloat/multilingual-e5-small":         384,
	"intfloat/multilingual-e5-base":          768,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// checkBatch validates provider output against the request.
func checkBatch(vectors [][]float32, want, dim int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), want)
	}
	for i, v := range vectors {
		if dim > 0 && len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrEmbeddingFailed, i, len(v), dim)
		}
	}
	return nil
}

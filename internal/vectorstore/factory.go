package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"go.uber.org/zap"
)

// NewTable creates the Table selected by cfg.Provider:
//   - "chromem" (default): embedded table under cfg.Chromem.Path
//   - "qdrant": external Qdrant server at cfg.Qdrant.Host:Port
//
// dimension is the embedder's vector size and is fixed for the table's
// lifetime. Example:
//
//	table, err := vectorstore.NewTable(cfg.VectorStore, embedder.Dimension(), logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer table.Close()
func NewTable(cfg config.VectorStoreConfig, dimension int, logger *zap.Logger) (Table, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "chromem", "":
		return NewChromemTable(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			Collection: cfg.Chromem.Collection,
			Dimension:  dimension,
		}, logger.Named("chromem"))

	case "qdrant":
		return NewQdrantTable(QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			Dimension:  dimension,
			UseTLS:     cfg.Qdrant.UseTLS,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			MaxRetries: cfg.Qdrant.MaxRetries,
			Timeout:    cfg.Qdrant.Timeout.Duration(),
		}, logger.Named("qdrant"))

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider: %s (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}

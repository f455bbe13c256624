// Package rag turns converted documents into embedded rows and answers
// filtered semantic queries against the vector table.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/chunking"
	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/docconv"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

var tracer = otel.Tracer("knowledged.rag")

// NoResults is the retrieval answer when nothing matches.
const NoResults = "No relevant documents found."

// Metadata keys written on every chunk row.
const (
	MetaProject    = "project"
	MetaTahun      = "tahun"
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
	MetaPage       = "page"
)

var (
	// ErrEmptyQuery is returned for a blank retrieval query.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrDimensionMismatch is returned when a vector does not match the embedder.
	ErrDimensionMismatch = vectorstore.ErrDimensionMismatch
)

// Pipeline owns the vector table and the embedder.
type Pipeline struct {
	table     vectorstore.Table
	embedder  embeddings.Provider
	converter *docconv.Converter
	splitter  *chunking.Splitter
	cfg       config.RetrievalConfig
	logger    *zap.Logger
}

// New creates a Pipeline. The table and embedder must agree on dimension.
func New(table vectorstore.Table, embedder embeddings.Provider, converter *docconv.Converter, cfg config.RetrievalConfig, logger *zap.Logger) (*Pipeline, error) {
	if table == nil || embedder == nil || converter == nil {
		return nil, errors.New("rag: table, embedder and converter are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if table.Dimension() != embedder.Dimension() {
		return nil, fmt.Errorf("%w: table has %d dimensions, embedder produces %d",
			ErrDimensionMismatch, table.Dimension(), embedder.Dimension())
	}
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 5
	}
	return &Pipeline{
		table:     table,
		embedder:  embedder,
		converter: converter,
		splitter:  chunking.NewSplitter(cfg),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Table returns the vector table.
func (p *Pipeline) Table() vectorstore.Table { return p.table }

// Embedder returns the embedding provider.
func (p *Pipeline) Embedder() embeddings.Provider { return p.embedder }

// Converter returns the document converter.
func (p *Pipeline) Converter() *docconv.Converter { return p.converter }

// ChunkDocument splits doc, embeds every chunk and returns rows ready to add.
// chunk_index counts across the whole document; page is set for PDFs only.
func (p *Pipeline) ChunkDocument(ctx context.Context, doc *docconv.Document, source, project, tahun string) ([]vectorstore.Row, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.ChunkDocument")
	defer span.End()
	span.SetAttributes(attribute.String("source", source))

	chunks, err := p.splitter.Split(doc)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding %s: %w", source, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding %s: got %d vectors for %d chunks", source, len(vectors), len(chunks))
	}

	rows := make([]vectorstore.Row, len(chunks))
	for i, c := range chunks {
		if err := p.ValidateVectorDim(vectors[i]); err != nil {
			return nil, fmt.Errorf("chunk %d of %s: %w", i, source, err)
		}
		meta := map[string]interface{}{
			MetaProject:    project,
			MetaTahun:      tahun,
			MetaSource:     source,
			MetaChunkIndex: i,
		}
		if c.Page > 0 {
			meta[MetaPage] = c.Page
		}
		rows[i] = vectorstore.Row{
			ID:       uuid.NewString(),
			Text:     c.Text,
			Vector:   vectors[i],
			Metadata: meta,
		}
	}

	span.SetAttributes(attribute.Int("chunks", len(rows)))
	return rows, nil
}

// Add stores rows and returns how many were added.
func (p *Pipeline) Add(ctx context.Context, rows []vectorstore.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	ids, err := p.table.Add(ctx, rows)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Search embeds query and returns up to k matches; k <= 0 uses the default.
func (p *Pipeline) Search(ctx context.Context, query string, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = p.cfg.DefaultK
	}
	vec, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if err := p.ValidateVectorDim(vec); err != nil {
		return nil, err
	}
	return p.table.Search(ctx, vec, k, filter)
}

// Retrieval searches and renders numbered results with citations:
//
//	[1] <chunk text>
//	Source: a.pdf, page 3 (project: kak_tor, tahun: 2025, score: 0.812)
func (p *Pipeline) Retrieval(ctx context.Context, query string, k int, filter vectorstore.Filter) (string, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Retrieval")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k), attribute.String("filter", filter.Expression()))

	matches, err := p.Search(ctx, query, k, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("results", len(matches)))

	p.logger.Debug("retrieval",
		zap.Int("k", k),
		zap.String("filter", filter.Expression()),
		zap.Int("results", len(matches)),
	)
	return FormatMatches(matches), nil
}

// FormatMatches renders matches the way Retrieval returns them.
func FormatMatches(matches []vectorstore.Match) string {
	if len(matches) == 0 {
		return NoResults
	}
	blocks := make([]string, len(matches))
	for i, m := range matches {
		var b strings.Builder
		b.WriteString("[")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] ")
		b.WriteString(m.Row.Text)
		b.WriteString("\n")
		b.WriteString(citation(m))
		blocks[i] = b.String()
	}
	return strings.Join(blocks, "\n\n")
}

func citation(m vectorstore.Match) string {
	meta := m.Row.Metadata
	var b strings.Builder
	b.WriteString("Source: ")
	b.WriteString(metaString(meta, MetaSource, "unknown"))
	if page := metaString(meta, MetaPage, ""); page != "" {
		b.WriteString(", page ")
		b.WriteString(page)
	}

	parts := make([]string, 0, 3)
	if v := metaString(meta, MetaProject, ""); v != "" {
		parts = append(parts, "project: "+v)
	}
	if v := metaString(meta, MetaTahun, ""); v != "" {
		parts = append(parts, "tahun: "+v)
	}
	parts = append(parts, "score: "+strconv.FormatFloat(float64(m.Score), 'f', 3, 32))

	b.WriteString(" (")
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString(")")
	return b.String()
}

func metaString(meta map[string]interface{}, key, def string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return def
	}
	if s := vectorstore.FormatValue(v); s != "" {
		return s
	}
	return def
}

// ResetVectorstore drops and recreates the table.
func (p *Pipeline) ResetVectorstore(ctx context.Context) error {
	if err := p.table.Reset(ctx); err != nil {
		return fmt.Errorf("resetting vectorstore: %w", err)
	}
	p.logger.Info("vectorstore reset")
	return nil
}

// ValidateVectorDim checks vec against the embedder dimension.
func (p *Pipeline) ValidateVectorDim(vec []float32) error {
	if want := p.embedder.Dimension(); len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}

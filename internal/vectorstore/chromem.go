package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("knowledged.vectorstore.chromem")

const providerChromem = "chromem"

// ChromemConfig holds configuration for the embedded chromem-go table.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored rows.
	Compress bool

	// Collection is the collection holding all rows.
	// Default: "knowledge"
	Collection string

	// Dimension is the expected vector size. Must match the embedder.
	Dimension int

	// Concurrency bounds parallel document writes. Default: 4
	Concurrency int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "knowledge"
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, c.Dimension)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemTable is a Table backed by an embedded chromem-go database.
//
// Rows persist under Path, one file per row. Similarity is cosine over
// normalized vectors.
type ChromemTable struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	mu         sync.RWMutex
	collection *chromem.Collection
}

// NewChromemTable opens or creates the table at config.Path.
func NewChromemTable(config ChromemConfig, logger *zap.Logger) (*ChromemTable, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if err := os.MkdirAll(config.Path, 0o750); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", config.Path, err)
	}

	db, err := chromem.NewPersistentDB(config.Path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	t := &ChromemTable{db: db, config: config, logger: logger}
	if t.collection, err = t.openCollection(); err != nil {
		return nil, err
	}

	logger.Info("chromem table initialized",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.Collection),
		zap.Int("dimension", config.Dimension),
		zap.Int("rows", t.collection.Count()),
	)
	RowsTotal.WithLabelValues(providerChromem).Set(float64(t.collection.Count()))
	return t, nil
}

// noEmbedding is registered on the collection so chromem never falls back to
// its default OpenAI embedding function. Rows always carry vectors.
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("chromem table requires precomputed vectors")
}

func (t *ChromemTable) openCollection() (*chromem.Collection, error) {
	c, err := t.db.GetOrCreateCollection(t.config.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", t.config.Collection, err)
	}
	return c, nil
}

func (t *ChromemTable) current() *chromem.Collection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.collection
}

// Add upserts rows.
func (t *ChromemTable) Add(ctx context.Context, rows []Row) (ids []string, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemTable.Add")
	defer span.End()
	defer observe(providerChromem, "add")(&err)

	span.SetAttributes(attribute.Int("row_count", len(rows)))
	if len(rows) == 0 {
		return nil, nil
	}
	if err := checkRows(rows, t.config.Dimension); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	docs := make([]chromem.Document, len(rows))
	ids = make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
		if ids[i] == "" {
			ids[i] = uuid.NewString()
		}
		docs[i] = chromem.Document{
			ID:        ids[i],
			Content:   r.Text,
			Metadata:  stringMetadata(r.Metadata),
			Embedding: r.Vector,
		}
	}

	coll := t.current()
	if err := coll.AddDocuments(ctx, docs, t.config.Concurrency); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding rows: %w", err)
	}

	RowsTotal.WithLabelValues(providerChromem).Set(float64(coll.Count()))
	span.SetStatus(codes.Ok, "success")
	t.logger.Debug("added rows to chromem",
		zap.String("collection", t.config.Collection),
		zap.Int("count", len(rows)),
	)
	return ids, nil
}

// Search returns the k nearest rows matching filter.
func (t *ChromemTable) Search(ctx context.Context, vector []float32, k int, filter Filter) (matches []Match, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemTable.Search")
	defer span.End()
	defer observe(providerChromem, "search")(&err)

	span.SetAttributes(attribute.Int("k", k))
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) != t.config.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, table has %d", ErrDimensionMismatch, len(vector), t.config.Dimension)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	coll := t.current()
	count := coll.Count()
	if count == 0 {
		return []Match{}, nil
	}
	// chromem requires nResults <= document count.
	if k > count {
		k = count
	}

	results, err := coll.QueryEmbedding(ctx, vector, k, filter.stringMap(), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", t.config.Collection, err)
	}

	matches = make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{Row: resultRow(r), Score: r.Similarity}
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Scan returns all rows matching filter ordered by id.
func (t *ChromemTable) Scan(ctx context.Context, filter Filter) (rows []Row, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemTable.Scan")
	defer span.End()
	defer observe(providerChromem, "scan")(&err)

	if err := filter.Validate(); err != nil {
		return nil, err
	}
	rows, err = t.scan(ctx, t.current(), filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("row_count", len(rows)))
	return rows, nil
}

// scan ranks every row against a unit query vector, which returns the
// whole filtered set in one query.
func (t *ChromemTable) scan(ctx context.Context, coll *chromem.Collection, filter Filter) ([]Row, error) {
	count := coll.Count()
	if count == 0 {
		return []Row{}, nil
	}
	unit := make([]float32, t.config.Dimension)
	unit[0] = 1

	results, err := coll.QueryEmbedding(ctx, unit, count, filter.stringMap(), nil)
	if err != nil {
		return nil, fmt.Errorf("scanning collection %s: %w", t.config.Collection, err)
	}
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = resultRow(r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

// Delete removes rows matching filter.
func (t *ChromemTable) Delete(ctx context.Context, filter Filter) (n int, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemTable.Delete")
	defer span.End()
	defer observe(providerChromem, "delete")(&err)

	if len(filter) == 0 {
		return 0, ErrEmptyFilter
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	coll := t.current()
	rows, err := t.scan(ctx, coll, filter)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	if err := coll.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("deleting rows: %w", err)
	}

	RowsTotal.WithLabelValues(providerChromem).Set(float64(coll.Count()))
	span.SetAttributes(attribute.Int("deleted", len(ids)))
	span.SetStatus(codes.Ok, "success")
	t.logger.Debug("deleted rows from chromem",
		zap.String("filter", filter.Expression()),
		zap.Int("count", len(ids)),
	)
	return len(ids), nil
}

// Count returns the number of rows.
func (t *ChromemTable) Count(_ context.Context) (int, error) {
	return t.current().Count(), nil
}

// Reset drops the collection and creates an empty one.
func (t *ChromemTable) Reset(ctx context.Context) (err error) {
	_, span := chromemTracer.Start(ctx, "ChromemTable.Reset")
	defer span.End()
	defer observe(providerChromem, "reset")(&err)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.db.DeleteCollection(t.config.Collection); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting collection %s: %w", t.config.Collection, err)
	}
	coll, err := t.openCollection()
	if err != nil {
		span.RecordError(err)
		return err
	}
	t.collection = coll

	RowsTotal.WithLabelValues(providerChromem).Set(0)
	t.logger.Info("chromem table reset", zap.String("collection", t.config.Collection))
	return nil
}

// Dimension returns the vector size.
func (t *ChromemTable) Dimension() int { return t.config.Dimension }

// PersistDir returns the storage directory.
func (t *ChromemTable) PersistDir() string { return t.config.Path }

// Close is a no-op; every write is already persisted.
func (t *ChromemTable) Close() error {
	t.logger.Info("chromem table closed")
	return nil
}

func resultRow(r chromem.Result) Row {
	return Row{
		ID:       r.ID,
		Text:     r.Content,
		Vector:   r.Embedding,
		Metadata: interfaceMetadata(r.Metadata),
	}
}

var _ Table = (*ChromemTable)(nil)

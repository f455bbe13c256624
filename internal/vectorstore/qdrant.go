package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var tracer = otel.Tracer("knowledged.vectorstore.qdrant")

const (
	providerQdrant = "qdrant"

	// Reserved payload keys. Everything else in the payload is row metadata.
	payloadText  = "text"
	payloadRowID = "row_id"

	scrollPageSize = 256
)

// indexedFields get keyword payload indexes when the collection is created.
var indexedFields = []string{"project", "tahun", "source"}

// QdrantConfig holds configuration for the Qdrant gRPC table.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// Collection holds all rows.
	Collection string

	// Dimension is the vector size. MUST match the embedder output.
	Dimension int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// APIKey authenticates against Qdrant Cloud or secured servers.
	APIKey string

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled on each retry.
	// Default: 1 second
	RetryBackoff time.Duration

	// Timeout bounds each gRPC call. Default: 30 seconds
	Timeout time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// CircuitBreakerThreshold is the number of failures before opening the circuit.
	// Default: 5
	CircuitBreakerThreshold int

	// CircuitBreakerCooldown is how long the circuit stays open.
	// Default: 30 seconds
	CircuitBreakerCooldown time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "knowledge"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.CircuitBreakerCooldown == 0 {
		c.CircuitBreakerCooldown = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, c.Dimension)
	}
	return ValidateCollectionName(c.Collection)
}

// IsTransientError reports whether err is worth retrying: unavailable,
// deadline exceeded, aborted or resource exhausted.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantTable is a Table backed by a Qdrant collection over native gRPC.
//
// Point ids are UUIDs. A row id that is not a UUID is mapped to a stable
// SHA1 UUID and kept verbatim in the row_id payload field.
type QdrantTable struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

// NewQdrantTable connects to Qdrant, health-checks the server and creates
// the collection when missing.
func NewQdrantTable(config QdrantConfig, logger *zap.Logger) (*QdrantTable, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	t := &QdrantTable{client: client, config: config, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	if err := t.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant table initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
		zap.Int("dimension", config.Dimension),
	)
	return t, nil
}

func (t *QdrantTable) ensureCollection(ctx context.Context) error {
	var exists bool
	err := t.retryOperation(ctx, "collection_exists", func(ctx context.Context) error {
		var err error
		exists, err = t.client.CollectionExists(ctx, t.config.Collection)
		return err
	})
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", t.config.Collection, err)
	}
	if exists {
		return nil
	}
	return t.createCollection(ctx)
}

func (t *QdrantTable) createCollection(ctx context.Context) error {
	err := t.retryOperation(ctx, "create_collection", func(ctx context.Context) error {
		return t.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: t.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(t.config.Dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", t.config.Collection, err)
	}

	for _, field := range indexedFields {
		field := field
		err := t.retryOperation(ctx, "create_field_index", func(ctx context.Context) error {
			_, err := t.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: t.config.Collection,
				FieldName:      field,
				FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
				Wait:           qdrant.PtrOf(true),
			})
			return err
		})
		if err != nil {
			t.logger.Warn("failed to create payload index", zap.String("field", field), zap.Error(err))
		}
	}
	return nil
}

// retryOperation retries op with exponential backoff while the error is
// transient and the circuit breaker is closed. Each attempt gets its own
// Timeout-bounded context.
func (t *QdrantTable) retryOperation(ctx context.Context, operationName string, op func(ctx context.Context) error) error {
	backoff := t.config.RetryBackoff

	for attempt := 0; attempt <= t.config.MaxRetries; attempt++ {
		if t.isCircuitOpen() {
			return fmt.Errorf("%s: %w", operationName, ErrCircuitOpen)
		}

		err := t.attempt(ctx, op)
		if err == nil {
			t.resetCircuitBreaker()
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		t.recordFailure()
		if attempt == t.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, t.config.MaxRetries, err)
		}

		t.logger.Debug("retrying qdrant operation",
			zap.String("operation", operationName),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (t *QdrantTable) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if t.config.Timeout <= 0 {
		return op(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()
	return op(ctx)
}

func (t *QdrantTable) recordFailure() {
	t.circuitBreaker.mu.Lock()
	defer t.circuitBreaker.mu.Unlock()
	t.circuitBreaker.failures++
	t.circuitBreaker.lastFail = time.Now()
	if t.circuitBreaker.failures >= t.config.CircuitBreakerThreshold {
		CircuitBreakerOpen.Set(1)
	}
}

func (t *QdrantTable) resetCircuitBreaker() {
	t.circuitBreaker.mu.Lock()
	defer t.circuitBreaker.mu.Unlock()
	t.circuitBreaker.failures = 0
	CircuitBreakerOpen.Set(0)
}

func (t *QdrantTable) isCircuitOpen() bool {
	t.circuitBreaker.mu.Lock()
	defer t.circuitBreaker.mu.Unlock()

	if t.circuitBreaker.failures >= t.config.CircuitBreakerThreshold {
		if time.Since(t.circuitBreaker.lastFail) > t.config.CircuitBreakerCooldown {
			t.circuitBreaker.failures = 0
			CircuitBreakerOpen.Set(0)
			return false
		}
		return true
	}
	return false
}

// Add upserts rows as points.
func (t *QdrantTable) Add(ctx context.Context, rows []Row) (ids []string, err error) {
	ctx, span := tracer.Start(ctx, "QdrantTable.Add")
	defer span.End()
	defer observe(providerQdrant, "add")(&err)

	span.SetAttributes(
		attribute.Int("row_count", len(rows)),
		attribute.String("collection", t.config.Collection),
	)
	if len(rows) == 0 {
		return nil, nil
	}
	if err := checkRows(rows, t.config.Dimension); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	points := make([]*qdrant.PointStruct, len(rows))
	ids = make([]string, len(rows))
	for i, r := range rows {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		ids[i] = r.ID
		points[i] = toPoint(r)
	}

	err = t.retryOperation(ctx, "upsert", func(ctx context.Context) error {
		_, err := t.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: t.config.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("upserting into %s: %w", t.config.Collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	t.logger.Debug("upserted rows to qdrant",
		zap.String("collection", t.config.Collection),
		zap.Int("count", len(rows)),
	)
	return ids, nil
}

// Search queries the nearest points matching filter.
func (t *QdrantTable) Search(ctx context.Context, vector []float32, k int, filter Filter) (matches []Match, err error) {
	ctx, span := tracer.Start(ctx, "QdrantTable.Search")
	defer span.End()
	defer observe(providerQdrant, "search")(&err)

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

	var results []*qdrant.ScoredPoint
	err = t.retryOperation(ctx, "query", func(ctx context.Context) error {
		res, err := t.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: t.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			Filter:         qdrantFilter(filter),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		results = res
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", t.config.Collection, err)
	}

	matches = make([]Match, len(results))
	for i, p := range results {
		matches[i] = Match{
			Row:   fromPayload(p.GetId(), p.GetPayload(), p.GetVectors()),
			Score: p.GetScore(),
		}
	}
	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Scan pages through every point matching filter.
func (t *QdrantTable) Scan(ctx context.Context, filter Filter) (rows []Row, err error) {
	ctx, span := tracer.Start(ctx, "QdrantTable.Scan")
	defer span.End()
	defer observe(providerQdrant, "scan")(&err)

	if err := filter.Validate(); err != nil {
		return nil, err
	}

	rows = []Row{}
	var offset *qdrant.PointId
	for {
		var (
			page []*qdrant.RetrievedPoint
			next *qdrant.PointId
		)
		err := t.retryOperation(ctx, "scroll", func(ctx context.Context) error {
			var err error
			page, next, err = t.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
				CollectionName: t.config.Collection,
				Filter:         qdrantFilter(filter),
				Offset:         offset,
				Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
				WithPayload:    qdrant.NewWithPayload(true),
				WithVectors:    qdrant.NewWithVectors(true),
			})
			return err
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scrolling collection %s: %w", t.config.Collection, err)
		}
		for _, p := range page {
			rows = append(rows, fromPayload(p.GetId(), p.GetPayload(), p.GetVectors()))
		}
		if next == nil || len(page) == 0 {
			break
		}
		offset = next
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	span.SetAttributes(attribute.Int("row_count", len(rows)))
	return rows, nil
}

// Delete counts and then removes every point matching filter.
func (t *QdrantTable) Delete(ctx context.Context, filter Filter) (n int, err error) {
	ctx, span := tracer.Start(ctx, "QdrantTable.Delete")
	defer span.End()
	defer observe(providerQdrant, "delete")(&err)

	if len(filter) == 0 {
		return 0, ErrEmptyFilter
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	qf := qdrantFilter(filter)
	count, err := t.count(ctx, qf)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	err = t.retryOperation(ctx, "delete", func(ctx context.Context) error {
		_, err := t.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: t.config.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelectorFilter(qf),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("deleting from %s: %w", t.config.Collection, err)
	}

	span.SetAttributes(attribute.Int("deleted", count))
	span.SetStatus(codes.Ok, "success")
	return count, nil
}

// Count returns the exact number of points.
func (t *QdrantTable) Count(ctx context.Context) (n int, err error) {
	defer observe(providerQdrant, "count")(&err)
	n, err = t.count(ctx, nil)
	if err == nil {
		RowsTotal.WithLabelValues(providerQdrant).Set(float64(n))
	}
	return n, err
}

func (t *QdrantTable) count(ctx context.Context, filter *qdrant.Filter) (int, error) {
	var n uint64
	err := t.retryOperation(ctx, "count", func(ctx context.Context) error {
		var err error
		n, err = t.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: t.config.Collection,
			Filter:         filter,
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", t.config.Collection, err)
	}
	return int(n), nil
}

// Reset deletes and recreates the collection.
func (t *QdrantTable) Reset(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantTable.Reset")
	defer span.End()
	defer observe(providerQdrant, "reset")(&err)

	err = t.retryOperation(ctx, "delete_collection", func(ctx context.Context) error {
		return t.client.DeleteCollection(ctx, t.config.Collection)
	})
	if err != nil {
		st, ok := status.FromError(err)
		if !ok || st.Code() != grpccodes.NotFound {
			span.RecordError(err)
			return fmt.Errorf("deleting collection %s: %w", t.config.Collection, err)
		}
	}
	if err := t.createCollection(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	RowsTotal.WithLabelValues(providerQdrant).Set(0)
	t.logger.Info("qdrant table reset", zap.String("collection", t.config.Collection))
	return nil
}

// Dimension returns the vector size.
func (t *QdrantTable) Dimension() int { return t.config.Dimension }

// PersistDir is empty: storage lives on the Qdrant server.
func (t *QdrantTable) PersistDir() string { return "" }

// Close closes the gRPC connection.
func (t *QdrantTable) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}

// pointID maps a row id to a Qdrant UUID point id.
func pointID(rowID string) *qdrant.PointId {
	if _, err := uuid.Parse(rowID); err == nil {
		return qdrant.NewIDUUID(rowID)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(rowID)).String())
}

func toPoint(r Row) *qdrant.PointStruct {
	payload := make(map[string]*qdrant.Value, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		payload[k] = qdrant.NewValueString(FormatValue(v))
	}
	payload[payloadText] = qdrant.NewValueString(r.Text)
	payload[payloadRowID] = qdrant.NewValueString(r.ID)

	return &qdrant.PointStruct{
		Id:      pointID(r.ID),
		Vectors: qdrant.NewVectors(r.Vector...),
		Payload: payload,
	}
}

func fromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) Row {
	row := Row{
		ID:       id.GetUuid(),
		Metadata: make(map[string]interface{}, len(payload)),
	}
	for k, v := range payload {
		switch k {
		case payloadText:
			row.Text = v.GetStringValue()
		case payloadRowID:
			row.ID = v.GetStringValue()
		default:
			row.Metadata[k] = payloadValue(v)
		}
	}
	if dense := vectors.GetVector().GetDenseVector(); dense != nil {
		row.Vector = dense.GetData()
	}
	return row
}

// payloadValue reads a payload value written by toPoint or by another
// client that stored typed values.
func payloadValue(v *qdrant.Value) interface{} {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return FormatValue(val.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return FormatValue(val.DoubleValue)
	case *qdrant.Value_BoolValue:
		return FormatValue(val.BoolValue)
	default:
		return ""
	}
}

// qdrantFilter turns a Filter into keyword match conditions on the payload.
func qdrantFilter(f Filter) *qdrant.Filter {
	if len(f) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(f))
	for _, k := range f.keys() {
		must = append(must, qdrant.NewMatchKeyword(k, FormatValue(f[k])))
	}
	return &qdrant.Filter{Must: must}
}

var _ Table = (*QdrantTable)(nil)

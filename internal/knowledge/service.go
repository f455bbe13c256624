package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/rag"
)

const instrumentationName = "github.com/fyrsmithlabs/knowledged/internal/knowledge"

// Config configures the façade.
type Config struct {
	Paths config.KnowledgeConfig

	// RebuildRate limits RebuildAllEmbeddings to this many batches per
	// second. Zero means unlimited.
	RebuildRate float64
}

// Service maps tool calls onto the retrieval pipeline.
type Service struct {
	cfg      Config
	pipeline *rag.Pipeline
	logger   *zap.Logger

	tracer        trace.Tracer
	opCounter     metric.Int64Counter
	chunksCounter metric.Int64Counter
}

// NewService creates a Service.
func NewService(cfg Config, pipeline *rag.Pipeline, logger *zap.Logger) (*Service, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cfg:      cfg,
		pipeline: pipeline,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *Service) initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error
	s.opCounter, err = meter.Int64Counter(
		"knowledged.knowledge.operations",
		metric.WithDescription("Façade operations by name and result"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		s.logger.Warn("failed to create operations counter", zap.Error(err))
	}
	s.chunksCounter, err = meter.Int64Counter(
		"knowledged.knowledge.chunks_added",
		metric.WithDescription("Chunks added to the vector table"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		s.logger.Warn("failed to create chunks counter", zap.Error(err))
	}
}

// Pipeline returns the underlying pipeline.
func (s *Service) Pipeline() *rag.Pipeline { return s.pipeline }

// start opens a span for op. The returned func ends it and records the result.
func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := s.tracer.Start(ctx, "Service."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		result := "success"
		if errp != nil && *errp != nil {
			result = "error"
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
		}
		if s.opCounter != nil {
			s.opCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("operation", op),
				attribute.String("result", result),
			))
		}
		span.End()
	}
}

func (s *Service) addRows(ctx context.Context, op string, n int) {
	if s.chunksCounter != nil && n > 0 {
		s.chunksCounter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("operation", op)))
	}
}

// listFiles returns the names of regular files in dir with extension ext
// (case-insensitive), sorted. A missing directory yields no files.
func listFiles(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == want {
				names = append(names, e.Name())
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// joinName joins a caller supplied file name onto dir, refusing names that
// carry path elements.
func joinName(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidName
	}
	return filepath.Join(dir, name), nil
}

// confine resolves path and requires it to be one of the configured
// document directories or to lie below one.
func (s *Service) confine(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoots, path)
	}
	for _, root := range s.roots() {
		if root == "" {
			continue
		}
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(rootAbs, abs)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideRoots, path)
}

func (s *Service) roots() []string {
	p := s.cfg.Paths
	return []string{p.KnowledgeBasePath, p.KakTorBasePath, p.KakTorMDBasePath, p.SummariesMDBasePath, p.TemplatesBasePath}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"regexp"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/knowledged/internal/rag"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

// RetrievalWithFilter returns the formatted top-k matches for query.
func (s *Service) RetrievalWithFilter(ctx context.Context, query string, k int, filter vectorstore.Filter) (out string, err error) {
	ctx, done := s.start(ctx, "RetrievalWithFilter", attribute.Int("k", k))
	defer done(&err)

	return s.pipeline.Retrieval(ctx, query, k, filter)
}

// ResetKnowledgeBase drops every row.
func (s *Service) ResetKnowledgeBase(ctx context.Context) (err error) {
	ctx, done := s.start(ctx, "ResetKnowledgeBase")
	defer done(&err)

	return s.pipeline.ResetVectorstore(ctx)
}

// UpdateChunkMetadata merges update into the metadata of every row matching
// filter and returns the number of rows rewritten. Rows keep their id, text
// and vector, so a failed delete is only logged: the re-add overwrites.
func (s *Service) UpdateChunkMetadata(ctx context.Context, filter vectorstore.Filter, update map[string]interface{}) (n int, err error) {
	ctx, done := s.start(ctx, "UpdateChunkMetadata", attribute.String("filter", filter.Expression()))
	defer done(&err)

	if len(filter) == 0 {
		return 0, ErrEmptyFilter
	}
	if len(update) == 0 {
		return 0, ErrEmptyUpdate
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	for key := range update {
		if !fieldPattern.MatchString(key) || vectorstore.IsReservedKey(key) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidField, key)
		}
	}

	table := s.pipeline.Table()
	s.logger.Info("updating chunk metadata", zap.String("filter", filter.Expression()))

	rows, err := table.Scan(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("scanning rows: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if _, err := table.Delete(ctx, filter); err != nil {
		s.logger.Warn("delete before metadata rewrite failed", zap.Error(err))
	}

	for i := range rows {
		merged := make(map[string]interface{}, len(rows[i].Metadata)+len(update))
		for k, v := range rows[i].Metadata {
			merged[k] = v
		}
		for k, v := range update {
			merged[k] = v
		}
		rows[i].Metadata = merged
	}

	if _, err := table.Add(ctx, rows); err != nil {
		return 0, fmt.Errorf("re-adding rows: %w", err)
	}
	s.logger.Info("chunk metadata updated", zap.Int("rows", len(rows)))
	return len(rows), nil
}

// GetVectorstoreStats reports row counts, on-disk size and the project and
// tahun distribution.
func (s *Service) GetVectorstoreStats(ctx context.Context) (st *Stats, err error) {
	ctx, done := s.start(ctx, "GetVectorstoreStats")
	defer done(&err)

	table := s.pipeline.Table()
	total, err := table.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting rows: %w", err)
	}

	st = &Stats{
		TotalRows:         total,
		Projects:          []string{},
		TahunDistribution: map[string]int{},
	}

	if dir := table.PersistDir(); dir != "" {
		size, err := dirSize(dir)
		if err != nil {
			s.logger.Warn("failed to measure persist dir", zap.String("dir", dir), zap.Error(err))
		}
		st.SizeMB = math.Round(float64(size)/(1024*1024)*100) / 100
	}

	if total == 0 {
		return st, nil
	}
	rows, err := table.Scan(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("scanning rows: %w", err)
	}
	seen := make(map[string]struct{})
	for _, r := range rows {
		if p := metaValue(r.Metadata, rag.MetaProject); p != "" {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				st.Projects = append(st.Projects, p)
			}
		}
		if t := metaValue(r.Metadata, rag.MetaTahun); t != "" {
			st.TahunDistribution[t]++
		}
	}
	sort.Strings(st.Projects)
	return st, nil
}

func dirSize(root string) (int64, error) {
	var size int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}

// RebuildAllEmbeddings re-embeds every row with the current embedder. All
// vectors are computed before the table is touched, so an embedding failure
// leaves it unchanged.
func (s *Service) RebuildAllEmbeddings(ctx context.Context, batchSize int) (n int, err error) {
	ctx, done := s.start(ctx, "RebuildAllEmbeddings", attribute.Int("batch_size", batchSize))
	defer done(&err)

	if batchSize <= 0 {
		batchSize = DefaultRebuildBatch
	}
	p := s.pipeline

	rows, err := p.Table().Scan(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("scanning rows: %w", err)
	}
	if len(rows) == 0 {
		s.logger.Info("nothing to rebuild")
		return 0, nil
	}

	limit := rate.Inf
	if s.cfg.RebuildRate > 0 {
		limit = rate.Limit(s.cfg.RebuildRate)
	}
	limiter := rate.NewLimiter(limit, 1)

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		if err := limiter.Wait(ctx); err != nil {
			return 0, err
		}

		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = rows[start+i].Text
		}
		vectors, err := p.Embedder().EmbedDocuments(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embedding batch at %d: %w", start, err)
		}
		if len(vectors) != len(texts) {
			return 0, fmt.Errorf("embedding batch at %d: got %d vectors for %d texts", start, len(vectors), len(texts))
		}
		for i, vec := range vectors {
			if err := p.ValidateVectorDim(vec); err != nil {
				return 0, err
			}
			rows[start+i].Vector = vec
		}
		s.logger.Debug("rebuild batch embedded", zap.Int("start", start), zap.Int("size", len(texts)))
	}

	if err := p.ResetVectorstore(ctx); err != nil {
		return 0, err
	}
	added, err := p.Add(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("re-adding rows: %w", err)
	}
	s.logger.Info("embeddings rebuilt", zap.Int("rows", added))
	return added, nil
}

// ListMetadataValues returns the distinct non-empty values of field, sorted.
func (s *Service) ListMetadataValues(ctx context.Context, field string) (values []string, err error) {
	ctx, done := s.start(ctx, "ListMetadataValues", attribute.String("field", field))
	defer done(&err)

	if !fieldPattern.MatchString(field) || vectorstore.IsReservedKey(field) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	rows, err := s.pipeline.Table().Scan(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("scanning rows: %w", err)
	}

	values = []string{}
	seen := make(map[string]struct{})
	for _, r := range rows {
		v := metaValue(r.Metadata, field)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

func metaValue(meta map[string]interface{}, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

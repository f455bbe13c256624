package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/docconv"
	"github.com/fyrsmithlabs/knowledged/internal/rag"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

const (
	markdownDirMode  = 0o750
	markdownFileMode = 0o600
)

// AddProductKnowledge ingests every PDF in req.Dir.
func (s *Service) AddProductKnowledge(ctx context.Context, req AddRequest) (res *IngestResult, err error) {
	dir := orDefault(req.Dir, s.cfg.Paths.KnowledgeBasePath)
	project := orDefault(req.Project, DefaultProductProject)
	tahun := orDefault(req.Tahun, DefaultTahun)

	ctx, done := s.start(ctx, "AddProductKnowledge",
		attribute.String("dir", dir), attribute.String("project", project))
	defer done(&err)

	if dir, err = s.confine(dir); err != nil {
		return nil, err
	}

	return s.ingestDir(ctx, "add_product_knowledge", dir, "", project, tahun)
}

// AddKakTorKnowledge ingests every KAK/TOR PDF in req.Dir and writes a
// Markdown export of each one to req.MarkdownDir.
func (s *Service) AddKakTorKnowledge(ctx context.Context, req KakTorRequest) (res *IngestResult, err error) {
	dir := orDefault(req.Dir, s.cfg.Paths.KakTorBasePath)
	mdDir := orDefault(req.MarkdownDir, s.cfg.Paths.KakTorMDBasePath)
	project := orDefault(req.Project, DefaultKakTorProject)
	tahun := orDefault(req.Tahun, DefaultTahun)

	ctx, done := s.start(ctx, "AddKakTorKnowledge",
		attribute.String("dir", dir), attribute.String("project", project))
	defer done(&err)

	if dir, err = s.confine(dir); err != nil {
		return nil, err
	}
	if mdDir, err = s.confine(mdDir); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(mdDir, markdownDirMode); err != nil {
		return nil, fmt.Errorf("creating markdown dir: %w", err)
	}
	return s.ingestDir(ctx, "add_kak_tor_knowledge", dir, mdDir, project, tahun)
}

// ingestDir converts and chunks every PDF in dir. Files that fail are
// recorded and skipped; all rows are added in one call at the end. When
// mdDir is set, each conversion is also exported there.
func (s *Service) ingestDir(ctx context.Context, op, dir, mdDir, project, tahun string) (*IngestResult, error) {
	res := &IngestResult{Files: []string{}}

	files, err := listFiles(dir, ".pdf")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	if len(files) == 0 {
		s.logger.Warn("no PDF files found", zap.String("dir", dir))
		return res, nil
	}

	var rows []vectorstore.Row
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, name)

		doc, err := s.pipeline.Converter().Convert(ctx, path)
		if err != nil {
			s.fail(res, name, err)
			continue
		}
		if mdDir != "" {
			out := filepath.Join(mdDir, stem(name)+".md")
			if err := os.WriteFile(out, []byte(doc.Markdown()), markdownFileMode); err != nil {
				s.fail(res, name, fmt.Errorf("writing markdown: %w", err))
				continue
			}
			res.MarkdownWritten = append(res.MarkdownWritten, out)
		}

		chunks, err := s.pipeline.ChunkDocument(ctx, doc, name, project, tahun)
		if err != nil {
			s.fail(res, name, err)
			continue
		}
		rows = append(rows, chunks...)
		res.Files = append(res.Files, name)
		s.logger.Debug("document chunked", zap.String("file", name), zap.Int("chunks", len(chunks)))
	}

	n, err := s.pipeline.Add(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("adding chunks: %w", err)
	}
	res.Chunks = n
	s.addRows(ctx, op, n)

	s.logger.Info("knowledge added",
		zap.String("dir", dir),
		zap.String("project", project),
		zap.String("tahun", tahun),
		zap.Int("files", len(res.Files)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("chunks", n),
	)
	return res, nil
}

func (s *Service) fail(res *IngestResult, name string, err error) {
	s.logger.Error("failed to process document", zap.String("file", name), zap.Error(err))
	res.Failed = append(res.Failed, FileError{File: name, Error: err.Error()})
}

// AddKakTorSummariesKnowledge ingests one Markdown summary from the
// summaries directory. The name is resolved in order: exact (with ".md"
// appended when missing), lower-cased with spaces as underscores, then the
// first file whose stem contains the name. A missing name or an unmatched
// one is not an error: the result lists the available files instead.
func (s *Service) AddKakTorSummariesKnowledge(ctx context.Context, req SummaryRequest) (res *SummaryResult, err error) {
	dir := s.cfg.Paths.SummariesMDBasePath
	project := orDefault(req.Project, DefaultSummaryProject)
	tahun := orDefault(req.Tahun, DefaultTahun)

	ctx, done := s.start(ctx, "AddKakTorSummariesKnowledge", attribute.String("name", req.MarkdownName))
	defer done(&err)

	available, err := listFiles(dir, ".md")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	name := strings.TrimSpace(req.MarkdownName)
	if name == "" {
		s.logger.Warn("no summary name given", zap.Strings("available", available))
		return &SummaryResult{Available: available}, nil
	}

	matched := resolveSummary(dir, name, available)
	if matched == "" {
		s.logger.Warn("summary not found", zap.String("name", name), zap.Strings("available", available))
		return &SummaryResult{Available: available}, nil
	}

	doc, err := s.pipeline.Converter().Convert(ctx, filepath.Join(dir, matched))
	if err != nil {
		return nil, err
	}
	rows, err := s.pipeline.ChunkDocument(ctx, doc, matched, project, tahun)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		s.logger.Warn("summary produced no chunks", zap.String("file", matched))
		return &SummaryResult{Matched: matched}, nil
	}

	n, err := s.pipeline.Add(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("adding chunks: %w", err)
	}
	s.addRows(ctx, "add_kak_tor_summaries_knowledge", n)
	s.logger.Info("summary added", zap.String("file", matched), zap.String("project", project), zap.Int("chunks", n))
	return &SummaryResult{Matched: matched, Chunks: n}, nil
}

func resolveSummary(dir, name string, available []string) string {
	withExt := func(n string) string {
		if strings.HasSuffix(strings.ToLower(n), ".md") {
			return n
		}
		return n + ".md"
	}
	for _, candidate := range []string{
		withExt(name),
		withExt(strings.ReplaceAll(strings.ToLower(name), " ", "_")),
	} {
		path, err := joinName(dir, candidate)
		if err != nil {
			continue
		}
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return candidate
		}
	}

	needle := strings.ToLower(stem(withExt(name)))
	for _, f := range available {
		if strings.Contains(strings.ToLower(stem(f)), needle) {
			return f
		}
	}
	return ""
}

// IngestFile ingests a single PDF or Markdown file below one of the
// configured document directories and returns the number of chunks added.
// Rows from an earlier ingestion of the same file name under the same
// project are replaced.
func (s *Service) IngestFile(ctx context.Context, path, project, tahun string) (n int, err error) {
	project = orDefault(project, DefaultProductProject)
	tahun = orDefault(tahun, DefaultTahun)
	name := filepath.Base(path)

	ctx, done := s.start(ctx, "IngestFile", attribute.String("file", name), attribute.String("project", project))
	defer done(&err)

	if path, err = s.confine(path); err != nil {
		return 0, err
	}
	if _, err := docconv.FormatOf(path); err != nil {
		return 0, err
	}
	doc, err := s.pipeline.Converter().Convert(ctx, path)
	if err != nil {
		return 0, err
	}
	rows, err := s.pipeline.ChunkDocument(ctx, doc, name, project, tahun)
	if err != nil {
		return 0, err
	}

	removed, err := s.pipeline.Table().Delete(ctx, vectorstore.Filter{rag.MetaSource: name, rag.MetaProject: project})
	if err != nil && !errors.Is(err, vectorstore.ErrEmptyFilter) {
		s.logger.Warn("failed to remove previous rows", zap.String("file", name), zap.Error(err))
	}

	n, err = s.pipeline.Add(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("adding chunks: %w", err)
	}
	s.addRows(ctx, "ingest_file", n)
	s.logger.Info("file ingested",
		zap.String("file", name),
		zap.String("project", project),
		zap.Int("replaced", removed),
		zap.Int("chunks", n),
	)
	return n, nil
}

package knowledge_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/docconv"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
	"github.com/fyrsmithlabs/knowledged/internal/rag"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

const dim = 64

type fixture struct {
	svc   *knowledge.Service
	paths config.KnowledgeConfig
	table vectorstore.Table
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, embeddings.NewHashProvider(dim), knowledge.Config{})
}

// newFixtureWith builds the service over embedder; cfg.Paths is filled in.
func newFixtureWith(t *testing.T, embedder embeddings.Provider, cfg knowledge.Config) *fixture {
	t.Helper()
	root := t.TempDir()
	paths := config.KnowledgeConfig{
		KnowledgeBasePath:   filepath.Join(root, "knowledge"),
		KakTorBasePath:      filepath.Join(root, "kak_tor"),
		KakTorMDBasePath:    filepath.Join(root, "kak_tor_md"),
		SummariesMDBasePath: filepath.Join(root, "summaries"),
		TemplatesBasePath:   filepath.Join(root, "templates"),
	}
	for _, dir := range []string{paths.KnowledgeBasePath, paths.KakTorBasePath, paths.SummariesMDBasePath, paths.TemplatesBasePath} {
		require.NoError(t, os.MkdirAll(dir, 0o750))
	}

	table, err := vectorstore.NewChromemTable(vectorstore.ChromemConfig{
		Path:      filepath.Join(root, "db"),
		Dimension: dim,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })

	pipeline, err := rag.New(table, embedder,
		docconv.NewConverter(config.DocConvConfig{}, nil),
		config.RetrievalConfig{DefaultK: 5, ChunkSize: 500, ChunkOverlap: 50}, nil)
	require.NoError(t, err)

	cfg.Paths = paths
	svc, err := knowledge.NewService(cfg, pipeline, nil)
	require.NoError(t, err)
	return &fixture{svc: svc, paths: paths, table: table}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNewService_RequiresPipeline(t *testing.T) {
	_, err := knowledge.NewService(knowledge.Config{}, nil, nil)
	assert.Error(t, err)
}

func TestAddProductKnowledge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docconv.WriteTestPDF(t, filepath.Join(f.paths.KnowledgeBasePath, "b_switch.pdf"), "Switch 48 port gigabit")
	docconv.WriteTestPDF(t, filepath.Join(f.paths.KnowledgeBasePath, "a_server.pdf"), "Server rack 2U", "Garansi tiga tahun")
	docconv.WriteTestPDF(t, filepath.Join(f.paths.KnowledgeBasePath, "c_scan.pdf"), "")
	writeFile(t, filepath.Join(f.paths.KnowledgeBasePath, "notes.txt"), "ignored")

	res, err := f.svc.AddProductKnowledge(ctx, knowledge.AddRequest{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a_server.pdf", "b_switch.pdf"}, res.Files)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "c_scan.pdf", res.Failed[0].File)
	assert.Equal(t, 3, res.Chunks)
	assert.Empty(t, res.MarkdownWritten)

	rows, err := f.table.Scan(ctx, vectorstore.Filter{"project": knowledge.DefaultProductProject, "tahun": "2025"})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestAddProductKnowledge_EmptyDir(t *testing.T) {
	f := newFixture(t)

	empty := filepath.Join(f.paths.KnowledgeBasePath, "kosong")
	require.NoError(t, os.MkdirAll(empty, 0o750))

	res, err := f.svc.AddProductKnowledge(context.Background(), knowledge.AddRequest{Dir: empty, Project: "x"})
	require.NoError(t, err)
	assert.Empty(t, res.Files)
	assert.Zero(t, res.Chunks)
}

func TestAddKakTorKnowledge_WritesMarkdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docconv.WriteTestPDF(t, filepath.Join(f.paths.KakTorBasePath, "KAK Jaringan.pdf"), "Lingkup pekerjaan jaringan")

	res, err := f.svc.AddKakTorKnowledge(ctx, knowledge.KakTorRequest{Tahun: "2024"})
	require.NoError(t, err)
	assert.Equal(t, []string{"KAK Jaringan.pdf"}, res.Files)
	assert.Equal(t, 1, res.Chunks)

	out := filepath.Join(f.paths.KakTorMDBasePath, "KAK Jaringan.md")
	require.Equal(t, []string{out}, res.MarkdownWritten)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	dirInfo, err := os.Stat(f.paths.KakTorMDBasePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), dirInfo.Mode().Perm())

	md, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# KAK Jaringan\n")
	assert.Contains(t, string(md), "## Page 1\n\nLingkup pekerjaan jaringan")

	values, err := f.svc.ListMetadataValues(ctx, "tahun")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024"}, values)
}

func TestAddKakTorSummariesKnowledge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(f.paths.SummariesMDBasePath, "ringkasan_server_2025.md"), "# Ringkasan\n\nPengadaan server.")
	writeFile(t, filepath.Join(f.paths.SummariesMDBasePath, "Laporan Akhir.md"), "# Laporan\n\nSelesai.")
	writeFile(t, filepath.Join(f.paths.SummariesMDBasePath, "kosong.md"), "  \n")

	tests := []struct {
		name        string
		input       string
		wantMatched string
		wantChunks  bool
	}{
		{"empty name lists files", "", "", false},
		{"exact with extension", "Laporan Akhir.md", "Laporan Akhir.md", true},
		{"exact without extension", "Laporan Akhir", "Laporan Akhir.md", true},
		{"lowercase underscored", "Ringkasan Server 2025", "ringkasan_server_2025.md", true},
		{"substring", "SERVER", "ringkasan_server_2025.md", true},
		{"no chunks", "kosong", "kosong.md", false},
		{"no match", "anggaran", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.AddKakTorSummariesKnowledge(ctx, knowledge.SummaryRequest{MarkdownName: tt.input})
			require.NoError(t, err)
			assert.Equal(t, tt.wantMatched, res.Matched)
			if tt.wantChunks {
				assert.Positive(t, res.Chunks)
			} else {
				assert.Zero(t, res.Chunks)
			}
			if tt.wantMatched == "" {
				assert.Equal(t, []string{"Laporan Akhir.md", "kosong.md", "ringkasan_server_2025.md"}, res.Available)
			}
		})
	}

	values, err := f.svc.ListMetadataValues(ctx, "project")
	require.NoError(t, err)
	assert.Equal(t, []string{knowledge.DefaultSummaryProject}, values)
}

func TestBuildInstructionContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(f.paths.TemplatesBasePath, "ringkas.txt"), "Ringkas dokumen berikut.")
	mdDir := filepath.Join(f.paths.KakTorMDBasePath, "2024")
	require.NoError(t, os.MkdirAll(mdDir, 0o750))
	writeFile(t, filepath.Join(mdDir, "b.md"), "isi b")
	writeFile(t, filepath.Join(mdDir, "a.md"), "isi a")

	instruction, docCtx, err := f.svc.BuildInstructionContext(ctx, "ringkas", mdDir, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ringkas dokumen berikut.", instruction)
	assert.Equal(t, "---\n# a.md\nisi a\n\n---\n# b.md\nisi b\n", docCtx)

	_, docCtx, err = f.svc.BuildInstructionContext(ctx, "ringkas", mdDir, []string{"b.md"})
	require.NoError(t, err)
	assert.Equal(t, "---\n# b.md\nisi b\n", docCtx)

	_, _, err = f.svc.BuildInstructionContext(ctx, "tidak_ada", mdDir, nil)
	assert.ErrorIs(t, err, knowledge.ErrTemplateNotFound)

	_, _, err = f.svc.BuildInstructionContext(ctx, "ringkas", mdDir, []string{"c.md"})
	assert.ErrorIs(t, err, knowledge.ErrDocumentNotFound)

	_, _, err = f.svc.BuildInstructionContext(ctx, "ringkas", mdDir, []string{"../a.md"})
	assert.ErrorIs(t, err, knowledge.ErrInvalidName)
}

func TestBuildSummaryTenderPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(f.paths.TemplatesBasePath, "summary_tender.txt"), "Buat ringkasan tender.")
	require.NoError(t, os.MkdirAll(f.paths.KakTorMDBasePath, 0o750))
	writeFile(t, filepath.Join(f.paths.KakTorMDBasePath, "kak_server.md"), "# KAK Server")

	p, err := f.svc.BuildSummaryTenderPayload(ctx, "summary_tender", "kak_server")
	require.NoError(t, err)
	assert.Equal(t, "Buat ringkasan tender.", p.Instruction)
	assert.Equal(t, "---\n# kak_server.md\n# KAK Server\n", p.Context)

	_, err = f.svc.BuildSummaryTenderPayload(ctx, "missing", "kak_server")
	assert.ErrorIs(t, err, knowledge.ErrTemplateNotFound)

	_, err = f.svc.BuildSummaryTenderPayload(ctx, "summary_tender", "")
	require.ErrorIs(t, err, knowledge.ErrNameRequired)
	assert.Contains(t, err.Error(), "kak_server.md")

	_, err = f.svc.BuildSummaryTenderPayload(ctx, "summary_tender", "kak_jaringan")
	require.ErrorIs(t, err, knowledge.ErrDocumentNotFound)
	assert.Contains(t, err.Error(), "kak_server.md")
}

func TestUpdateChunkMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docconv.WriteTestPDF(t, filepath.Join(f.paths.KnowledgeBasePath, "a.pdf"), "Server rack", "Switch core")
	docconv.WriteTestPDF(t, filepath.Join(f.paths.KnowledgeBasePath, "b.pdf"), "Router edge")
	_, err := f.svc.AddProductKnowledge(ctx, knowledge.AddRequest{})
	require.NoError(t, err)

	before, err := f.table.Scan(ctx, vectorstore.Filter{"source": "a.pdf"})
	require.NoError(t, err)
	require.Len(t, before, 2)

	n, err := f.svc.UpdateChunkMetadata(ctx, vectorstore.Filter{"source": "a.pdf"}, map[string]interface{}{
		"tahun":  2026,
		"vendor": "acme",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	after, err := f.table.Scan(ctx, vectorstore.Filter{"source": "a.pdf"})
	require.NoError(t, err)
	require.Len(t, after, 2)
	for i := range after {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Text, after[i].Text)
		assert.Equal(t, "2026", after[i].Metadata["tahun"])
		assert.Equal(t, "acme", after[i].Metadata["vendor"])
		assert.Equal(t, knowledge.DefaultProductProject, after[i].Metadata["project"])
	}

	count, err := f.table.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	n, err = f.svc.UpdateChunkMetadata(ctx, vectorstore.Filter{"source": "none.pdf"}, map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.Zero(t, n)

	tests := []struct {
		name    string
		filter  vectorstore.Filter
		update  map[string]interface{}
		wantErr error
	}{
		{"empty filter", nil, map[string]interface{}{"a": 1}, knowledge.ErrEmptyFilter},
		{"empty update", vectorstore.Filter{"source": "a.pdf"}, nil, knowledge.ErrEmptyUpdate},
		{"bad filter key", vectorstore.Filter{"bad key": 1}, map[string]interface{}{"a": 1}, knowledge.ErrInvalidFilterKey},
		{"bad update key", vectorstore.Filter{"source": "a.pdf"}, map[string]interface{}{"a-b": 1}, knowledge.ErrInvalidField},
		{"reserved update key text", vectorstore.Filter{"source": "a.pdf"}, map[string]interface{}{"text": "x"}, knowledge.ErrInvalidField},
		{"reserved update key row_id", vectorstore.Filter{"source": "a.pdf"}, map[string]interface{}{"row_id": "x"}, knowledge.ErrInvalidField},
		{"reserved filter key", vectorstore.Filter{"text": "Server rack"}, map[string]interface{}{"a": 1}, knowledge.ErrInvalidFilterKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateChunkMetadata(ctx, tt.filter, tt.update)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, knowledge.IsValidation(err))
		})
	}
}

func TestGetVectorstoreStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.GetVectorstoreStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.TotalRows)
	assert.Empty(t, st.Projects)

	docconv.WriteTestPDF(t, filepath.Join(f.paths.KnowledgeBasePath, "a.pdf"), "Server rack", "Switch core")
	docconv.WriteTestPDF(t, filepath.Join(f.paths.KakTorBasePath, "kak.pdf"), "Lingkup pekerjaan")
	_, err = f.svc.AddProductKnowledge(ctx, knowledge.AddRequest{})
	require.NoError(t, err)
	_, err = f.svc.AddKakTorKnowledge(ctx, knowledge.KakTorRequest{Tahun: "2024"})
	require.NoError(t, err)

	st, err = f.svc.GetVectorstoreStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalRows)
	assert.ElementsMatch(t, []string{knowledge.DefaultProductProject, knowledge.DefaultKakTorProject}, st.Projects)
	assert.Equal(t, map[string]int{"2025": 2, "2024": 1}, st.TahunDistribution)
	assert.GreaterOrEqual(t, st.SizeMB, 0.0)
}

func TestRebuildAllEmbeddings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.RebuildAllEmbeddings(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	docconv.WriteTestPDF(t, filepath.Join(f.paths.KnowledgeBasePath, "a.pdf"), "Server rack", "Switch core", "Router edge")
	_, err = f.svc.AddProductKnowledge(ctx, knowledge.AddRequest{})
	require.NoError(t, err)

	before, err := f.table.Scan(ctx, nil)
	require.NoError(t, err)

	n, err = f.svc.RebuildAllEmbeddings(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	after, err := f.table.Scan(ctx, nil)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range after {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Metadata, after[i].Metadata)
	}

	out, err := f.svc.RetrievalWithFilter(ctx, "router edge", 1, vectorstore.Filter{"source": "a.pdf"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "[1] Router edge\n"), out)
}

// scriptedEmbedder wraps the hash provider. Once armed, hook sees every
// EmbedDocuments call (1-based) and may replace its result.
type scriptedEmbedder struct {
	embeddings.Provider

	mu    sync.Mutex
	calls int
	hook  func(call int, texts []string) ([][]float32, error)
}

func (e *scriptedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	call, hook := e.calls, e.hook
	e.mu.Unlock()

	if hook != nil {
		if vecs, err := hook(call, texts); vecs != nil || err != nil {
			return vecs, err
		}
	}
	return e.Provider.EmbedDocuments(ctx, texts)
}

func (e *scriptedEmbedder) arm(hook func(call int, texts []string) ([][]float32, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = 0
	e.hook = hook
}

// ingestThree adds one product PDF with three single-page chunks.
func ingestThree(t *testing.T, f *fixture) []vectorstore.Row {
	t.Helper()
	ctx := context.Background()
	docconv.WriteTestPDF(t, filepath.Join(f.paths.KnowledgeBasePath, "a.pdf"), "Server rack", "Switch core", "Router edge")
	_, err := f.svc.AddProductKnowledge(ctx, knowledge.AddRequest{})
	require.NoError(t, err)
	rows, err := f.table.Scan(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	return rows
}

func TestRebuildAllEmbeddings_FailureLeavesTable(t *testing.T) {
	tests := []struct {
		name    string
		hook    func(call int, texts []string) ([][]float32, error)
		wantErr error
		wantMsg string
	}{
		{
			name: "embedder fails on second batch",
			hook: func(call int, _ []string) ([][]float32, error) {
				if call == 2 {
					return nil, errors.New("embedding server unavailable")
				}
				return nil, nil
			},
			wantMsg: "embedding server unavailable",
		},
		{
			name: "wrong dimension on second batch",
			hook: func(call int, texts []string) ([][]float32, error) {
				if call != 2 {
					return nil, nil
				}
				vecs := make([][]float32, len(texts))
				for i := range vecs {
					vecs[i] = make([]float32, dim+1)
				}
				return vecs, nil
			},
			wantErr: knowledge.ErrDimensionMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &scriptedEmbedder{Provider: embeddings.NewHashProvider(dim)}
			f := newFixtureWith(t, emb, knowledge.Config{})
			ctx := context.Background()
			before := ingestThree(t, f)

			emb.arm(tt.hook)
			n, err := f.svc.RebuildAllEmbeddings(ctx, 1)
			require.Error(t, err)
			assert.Zero(t, n)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}

			count, err := f.table.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, count)
			after, err := f.table.Scan(ctx, nil)
			require.NoError(t, err)
			assert.ElementsMatch(t, before, after)
		})
	}
}

func TestRebuildAllEmbeddings_RateLimited(t *testing.T) {
	t.Run("batches are spaced by the rate", func(t *testing.T) {
		f := newFixtureWith(t, embeddings.NewHashProvider(dim), knowledge.Config{RebuildRate: 20})
		ingestThree(t, f)

		start := time.Now()
		n, err := f.svc.RebuildAllEmbeddings(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		// Burst of one: the second and third batch each wait 50ms.
		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	})

	t.Run("cancellation while waiting", func(t *testing.T) {
		emb := &scriptedEmbedder{Provider: embeddings.NewHashProvider(dim)}
		f := newFixtureWith(t, emb, knowledge.Config{RebuildRate: 0.5})
		before := ingestThree(t, f)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		emb.arm(func(call int, _ []string) ([][]float32, error) {
			if call == 1 {
				cancel()
			}
			return nil, nil
		})

		start := time.Now()
		_, err := f.svc.RebuildAllEmbeddings(ctx, 1)
		require.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second, "the limiter must not sleep past cancellation")

		after, err := f.table.Scan(context.Background(), nil)
		require.NoError(t, err)
		assert.ElementsMatch(t, before, after)
	})
}

func TestProjectsAndValuesAreSorted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, project := range []string{"zeta", "alpha", "mu"} {
		pdf := filepath.Join(f.paths.KnowledgeBasePath, project+".pdf")
		docconv.WriteTestPDF(t, pdf, "Dokumen "+project)
		_, err := f.svc.IngestFile(ctx, pdf, project, "2024")
		require.NoError(t, err)
	}

	st, err := f.svc.GetVectorstoreStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mu", "zeta"}, st.Projects)

	values, err := f.svc.ListMetadataValues(ctx, "project")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mu", "zeta"}, values)

	values, err = f.svc.ListMetadataValues(ctx, "source")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.pdf", "mu.pdf", "zeta.pdf"}, values)
}

func TestListMetadataValues_InvalidField(t *testing.T) {
	f := newFixture(t)

	for _, field := range []string{"", "a b", "metadata.project", strings.Repeat("x", 65), "text", "row_id"} {
		_, err := f.svc.ListMetadataValues(context.Background(), field)
		assert.ErrorIs(t, err, knowledge.ErrInvalidField, field)
	}
}

func TestResetKnowledgeBase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docconv.WriteTestPDF(t, filepath.Join(f.paths.KnowledgeBasePath, "a.pdf"), "Server rack")
	_, err := f.svc.AddProductKnowledge(ctx, knowledge.AddRequest{})
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetKnowledgeBase(ctx))
	out, err := f.svc.RetrievalWithFilter(ctx, "server", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, rag.NoResults, out)
}

func TestIngestFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pdf := filepath.Join(f.paths.KnowledgeBasePath, "baru.pdf")
	docconv.WriteTestPDF(t, pdf, "Laptop 14 inci", "Monitor 24 inci")

	n, err := f.svc.IngestFile(ctx, pdf, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.IngestFile(ctx, pdf, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	count, err := f.table.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "re-ingesting replaces earlier rows")

	txt := filepath.Join(f.paths.KnowledgeBasePath, "catatan.txt")
	writeFile(t, txt, "x")
	_, err = f.svc.IngestFile(ctx, txt, "", "")
	assert.ErrorIs(t, err, knowledge.ErrUnsupportedFormat)
}

func TestPathsOutsideRoots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outside := t.TempDir()
	docconv.WriteTestPDF(t, filepath.Join(outside, "rahasia.pdf"), "Data pribadi")
	writeFile(t, filepath.Join(outside, "rahasia.md"), "Data pribadi")
	writeFile(t, filepath.Join(f.paths.TemplatesBasePath, "ringkas.txt"), "Ringkas.")
	escape := filepath.Join(f.paths.KnowledgeBasePath, "..", filepath.Base(outside))

	tests := []struct {
		name string
		call func() error
	}{
		{"product dir", func() error {
			_, err := f.svc.AddProductKnowledge(ctx, knowledge.AddRequest{Dir: outside})
			return err
		}},
		{"product dir traversal", func() error {
			_, err := f.svc.AddProductKnowledge(ctx, knowledge.AddRequest{Dir: escape})
			return err
		}},
		{"kak tor dir", func() error {
			_, err := f.svc.AddKakTorKnowledge(ctx, knowledge.KakTorRequest{Dir: outside})
			return err
		}},
		{"kak tor markdown dir", func() error {
			_, err := f.svc.AddKakTorKnowledge(ctx, knowledge.KakTorRequest{MarkdownDir: filepath.Join(outside, "md")})
			return err
		}},
		{"instruction markdown dir", func() error {
			_, _, err := f.svc.BuildInstructionContext(ctx, "ringkas", outside, nil)
			return err
		}},
		{"ingest file", func() error {
			_, err := f.svc.IngestFile(ctx, filepath.Join(outside, "rahasia.pdf"), "", "")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.ErrorIs(t, err, knowledge.ErrOutsideRoots)
			assert.True(t, knowledge.IsValidation(err))
		})
	}

	count, err := f.table.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	_, err = os.Stat(filepath.Join(outside, "md"))
	assert.True(t, os.IsNotExist(err))
}

func TestListDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docconv.WriteTestPDF(t, filepath.Join(f.paths.KnowledgeBasePath, "b.pdf"), "x")
	docconv.WriteTestPDF(t, filepath.Join(f.paths.KnowledgeBasePath, "a.pdf"), "x")
	writeFile(t, filepath.Join(f.paths.TemplatesBasePath, "t.txt"), "x")

	tests := []struct {
		kind string
		want []string
	}{
		{knowledge.KindKnowledge, []string{"a.pdf", "b.pdf"}},
		{knowledge.KindTemplates, []string{"t.txt"}},
		{knowledge.KindKakTorMD, []string{}},
		{knowledge.KindSummaries, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			got, err := f.svc.ListDocuments(ctx, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := f.svc.ListDocuments(ctx, "other")
	assert.ErrorIs(t, err, knowledge.ErrUnknownKind)
}

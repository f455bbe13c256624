package rag_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/docconv"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/rag"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

const dim = 64

func newPipeline(t *testing.T) *rag.Pipeline {
	t.Helper()
	table, err := vectorstore.NewChromemTable(vectorstore.ChromemConfig{
		Path:       t.TempDir(),
		Collection: "rag_test",
		Dimension:  dim,
	}, nil)
	require.NoError(t, err)

	p, err := rag.New(table, embeddings.NewHashProvider(dim), docconv.NewConverter(config.DocConvConfig{}, nil),
		config.RetrievalConfig{DefaultK: 2, ChunkSize: 200, ChunkOverlap: 20}, nil)
	require.NoError(t, err)
	return p
}

func convertPDF(t *testing.T, p *rag.Pipeline, name string, pages ...string) *docconv.Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	docconv.WriteTestPDF(t, path, pages...)
	doc, err := p.Converter().Convert(context.Background(), path)
	require.NoError(t, err)
	return doc
}

func TestNew_DimensionMismatch(t *testing.T) {
	table, err := vectorstore.NewChromemTable(vectorstore.ChromemConfig{Path: t.TempDir(), Dimension: 32}, nil)
	require.NoError(t, err)

	_, err = rag.New(table, embeddings.NewHashProvider(dim), docconv.NewConverter(config.DocConvConfig{}, nil), config.RetrievalConfig{}, nil)
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
}

func TestChunkDocument_Metadata(t *testing.T) {
	p := newPipeline(t)
	doc := convertPDF(t, p, "kak.pdf",
		"Ruang lingkup pengadaan server",
		"",
		"Tenaga ahli jaringan bersertifikat",
	)

	rows, err := p.ChunkDocument(context.Background(), doc, "kak.pdf", "kak_tor", "2025")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	for i, r := range rows {
		assert.NotEmpty(t, r.ID)
		assert.Len(t, r.Vector, dim)
		assert.Equal(t, "kak_tor", r.Metadata[rag.MetaProject])
		assert.Equal(t, "2025", r.Metadata[rag.MetaTahun])
		assert.Equal(t, "kak.pdf", r.Metadata[rag.MetaSource])
		assert.Equal(t, i, r.Metadata[rag.MetaChunkIndex])
	}
	assert.Equal(t, 1, rows[0].Metadata[rag.MetaPage])
	assert.Equal(t, 3, rows[1].Metadata[rag.MetaPage])
	assert.NotEqual(t, rows[0].ID, rows[1].ID)
}

func TestChunkDocument_MarkdownHasNoPage(t *testing.T) {
	p := newPipeline(t)
	doc := &docconv.Document{
		Name:   "ringkasan.md",
		Format: docconv.FormatMarkdown,
		Pages:  []docconv.Page{{Number: 1, Text: "# Ringkasan\n\nHPS sebesar satu miliar."}},
	}

	rows, err := p.ChunkDocument(context.Background(), doc, "ringkasan.md", "default", "2025")
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		assert.NotContains(t, r.Metadata, rag.MetaPage)
	}
}

func TestAdd_EmptyIsNoop(t *testing.T) {
	p := newPipeline(t)

	n, err := p.Add(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRetrieval(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	for _, tc := range []struct{ name, project, tahun, text string }{
		{"server.pdf", "product_standard", "2025", "Spesifikasi server rack dua prosesor"},
		{"jadwal.pdf", "kak_tor", "2025", "Jadwal pelaksanaan sembilan puluh hari kalender"},
		{"ahli.pdf", "kak_tor", "2024", "Tenaga ahli jaringan bersertifikat"},
	} {
		doc := convertPDF(t, p, tc.name, tc.text)
		rows, err := p.ChunkDocument(ctx, doc, tc.name, tc.project, tc.tahun)
		require.NoError(t, err)
		_, err = p.Add(ctx, rows)
		require.NoError(t, err)
	}

	t.Run("formats citations", func(t *testing.T) {
		out, err := p.Retrieval(ctx, "tenaga ahli jaringan bersertifikat", 1, nil)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "[1] Tenaga ahli jaringan bersertifikat\n"), out)
		assert.Contains(t, out, "Source: ahli.pdf, page 1 (project: kak_tor, tahun: 2024, score: 1.000)")
	})

	t.Run("default k", func(t *testing.T) {
		out, err := p.Retrieval(ctx, "server jadwal", 0, nil)
		require.NoError(t, err)
		assert.Contains(t, out, "[2] ")
		assert.NotContains(t, out, "[3] ")
		assert.Contains(t, out, "\n\n[2] ")
	})

	t.Run("filter restricts results", func(t *testing.T) {
		out, err := p.Retrieval(ctx, "server", 5, vectorstore.Filter{"project": "kak_tor", "tahun": 2025})
		require.NoError(t, err)
		assert.Contains(t, out, "jadwal.pdf")
		assert.NotContains(t, out, "server.pdf")
		assert.NotContains(t, out, "[2] ")
	})

	t.Run("no results", func(t *testing.T) {
		out, err := p.Retrieval(ctx, "server", 5, vectorstore.Filter{"project": "nothing"})
		require.NoError(t, err)
		assert.Equal(t, rag.NoResults, out)
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := p.Retrieval(ctx, "  ", 5, nil)
		assert.True(t, errors.Is(err, rag.ErrEmptyQuery))
	})
}

func TestFormatMatches_OmitsAbsentParts(t *testing.T) {
	out := rag.FormatMatches([]vectorstore.Match{
		{Row: vectorstore.Row{Text: "isi", Metadata: map[string]interface{}{"source": "a.md"}}, Score: 0.5},
	})
	assert.Equal(t, "[1] isi\nSource: a.md (score: 0.500)", out)
}

func TestResetVectorstore(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	doc := convertPDF(t, p, "a.pdf", "isi dokumen")
	rows, err := p.ChunkDocument(ctx, doc, "a.pdf", "p", "2025")
	require.NoError(t, err)
	_, err = p.Add(ctx, rows)
	require.NoError(t, err)

	require.NoError(t, p.ResetVectorstore(ctx))
	n, err := p.Table().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestValidateVectorDim(t *testing.T) {
	p := newPipeline(t)

	assert.NoError(t, p.ValidateVectorDim(make([]float32, dim)))
	assert.ErrorIs(t, p.ValidateVectorDim(make([]float32, dim+1)), rag.ErrDimensionMismatch)
}

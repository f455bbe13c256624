package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/docconv"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/knowledged/internal/http"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
	"github.com/fyrsmithlabs/knowledged/internal/rag"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

type testEnv struct {
	url   string
	paths config.KnowledgeConfig
}

func setupServer(t *testing.T) *testEnv {
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

	table, err := vectorstore.NewChromemTable(vectorstore.ChromemConfig{Path: filepath.Join(root, "db"), Dimension: 32}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })
	pipeline, err := rag.New(table, embeddings.NewHashProvider(32),
		docconv.NewConverter(config.DocConvConfig{}, nil), config.RetrievalConfig{}, nil)
	require.NoError(t, err)
	svc, err := knowledge.NewService(knowledge.Config{Paths: paths}, pipeline, nil)
	require.NoError(t, err)
	srv, err := httpserver.NewServer(svc, zap.NewNop(), nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{url: ts.URL, paths: paths}
}

// execute runs kbctl against the test server and returns stdout.
func (e *testEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--server", e.url}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *testEnv) mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.execute(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestParsePairs(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]interface{}
		wantErr bool
	}{
		{"empty", nil, nil, false},
		{"single", []string{"tahun=2024"}, map[string]interface{}{"tahun": "2024"}, false},
		{"value with equals", []string{"note=a=b"}, map[string]interface{}{"note": "a=b"}, false},
		{"empty value", []string{"vendor="}, map[string]interface{}{"vendor": ""}, false},
		{"missing separator", []string{"tahun"}, nil, true},
		{"missing key", []string{"=2024"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePairs(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealth(t *testing.T) {
	env := setupServer(t)

	out := env.mustExecute(t, "health")
	assert.Contains(t, out, "Server Status: ok")
	assert.Contains(t, out, env.url)
}

func TestIngestCommand(t *testing.T) {
	env := setupServer(t)
	pdf := filepath.Join(env.paths.KnowledgeBasePath, "router.pdf")
	docconv.WriteTestPDF(t, pdf, "Router edge", "Firewall")

	out := env.mustExecute(t, "ingest", pdf, "--project", "jaringan", "--tahun", "2024")
	assert.Equal(t, "Ingested router.pdf (2 chunks)\n", out)

	out = env.mustExecute(t, "ingest", pdf, "--project", "jaringan", "--tahun", "2024")
	assert.Equal(t, "Ingested router.pdf (2 chunks)\n", out)
	out = env.mustExecute(t, "stats")
	assert.Contains(t, out, "Total rows: 2")
	assert.Contains(t, out, "Projects:   jaringan")

	outside := filepath.Join(t.TempDir(), "lain.pdf")
	docconv.WriteTestPDF(t, outside, "Data lain")
	_, err := env.execute(t, "ingest", outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server returned status 400")

	_, err = env.execute(t, "ingest")
	assert.Error(t, err)
}

func TestKnowledgeCommands(t *testing.T) {
	env := setupServer(t)
	docconv.WriteTestPDF(t, filepath.Join(env.paths.KnowledgeBasePath, "server.pdf"), "Server rack dua prosesor")
	docconv.WriteTestPDF(t, filepath.Join(env.paths.KnowledgeBasePath, "switch.pdf"), "Switch 48 port")

	out := env.mustExecute(t, "add", "product", "--tahun", "2024")
	assert.Contains(t, out, "Ingested 2 files (2 chunks)")

	out = env.mustExecute(t, "retrieve", "switch", "48", "port", "-k", "1", "--filter", "project=product_standard")
	assert.Contains(t, out, "[1] Switch 48 port")
	assert.Contains(t, out, "Source: switch.pdf, page 1")

	out = env.mustExecute(t, "update-metadata", "--filter", "source=server.pdf", "--set", "tahun=2025")
	assert.Equal(t, "Updated metadata of 1 chunks\n", out)

	out = env.mustExecute(t, "values", "tahun")
	assert.Equal(t, "2024\n2025\n", out)

	out = env.mustExecute(t, "stats")
	assert.Contains(t, out, "Total rows: 2")
	assert.Contains(t, out, "Projects:   product_standard")
	assert.Contains(t, out, "  2024: 1\n  2025: 1\n")

	out = env.mustExecute(t, "docs", "knowledge")
	assert.Equal(t, "server.pdf\nswitch.pdf\n", out)

	out = env.mustExecute(t, "rebuild", "--batch-size", "1")
	assert.Equal(t, "Rebuilt embeddings for 2 chunks\n", out)

	_, err := env.execute(t, "reset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	out = env.mustExecute(t, "reset", "--yes")
	assert.Equal(t, "Knowledge base reset: ok\n", out)

	out = env.mustExecute(t, "retrieve", "switch")
	assert.Equal(t, rag.NoResults+"\n", out)
}

func TestAddSummary(t *testing.T) {
	env := setupServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.paths.SummariesMDBasePath, "pengadaan_server.md"),
		[]byte("# Ringkasan\n\nPengadaan server untuk pusat data."), 0o600))

	out := env.mustExecute(t, "add", "summary", "Pengadaan Server")
	assert.Contains(t, out, "Ingested pengadaan_server.md")

	out = env.mustExecute(t, "add", "summary", "anggaran")
	assert.Contains(t, out, `No summary matched "anggaran"`)
	assert.Contains(t, out, "  pengadaan_server.md")
}

func TestPayloadCommands(t *testing.T) {
	env := setupServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.paths.TemplatesBasePath, "ringkas.txt"), []byte("Ringkas."), 0o600))
	require.NoError(t, os.MkdirAll(env.paths.KakTorMDBasePath, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(env.paths.KakTorMDBasePath, "kak.md"), []byte("isi"), 0o600))

	out := env.mustExecute(t, "payload", "summary-tender", "ringkas", "kak")
	assert.Equal(t, "=== INSTRUCTION ===\nRingkas.\n\n=== CONTEXT ===\n---\n# kak.md\nisi\n", out)

	out = env.mustExecute(t, "payload", "instruction", "ringkas", "--file", "kak.md")
	assert.Contains(t, out, "# kak.md")
}

func TestServerErrors(t *testing.T) {
	env := setupServer(t)

	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{"invalid field", []string{"values", "a-b"}, "status 400: invalid metadata field"},
		{"unknown kind", []string{"docs", "videos"}, "status 400: unknown document kind"},
		{"missing template", []string{"payload", "summary-tender", "nope", "kak"}, "status 404"},
		{"bad filter pair", []string{"retrieve", "x", "--filter", "project"}, "expected key=value"},
		{"missing set flag", []string{"update-metadata", "--filter", "a=b"}, `required flag(s) "set" not set`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestUnreachableServer(t *testing.T) {
	env := &testEnv{url: "http://127.0.0.1:1"}

	_, err := env.execute(t, "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send request")
}

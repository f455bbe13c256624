package mcp

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

// texter is implemented by outputs that render better as plain text than
// as JSON.
type texter interface {
	Text() string
}

// addTool registers h under name, recording metrics and logging failures.
// Handler errors become tool results with IsError set.
func addTool[In, Out any](s *Server, name, description string, h func(context.Context, In) (Out, error)) {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        name,
		Description: description,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
		done := s.metrics.Start(ctx, name)
		out, err := h(ctx, args)
		done(err)

		if err != nil {
			s.logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
			var zero Out
			return nil, zero, err
		}
		if t, ok := any(out).(texter); ok {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: t.Text()}},
			}, out, nil
		}
		return nil, out, nil
	})
}

func (s *Server) registerTools() {
	s.registerIngestTools()
	s.registerPayloadTools()
	s.registerRetrievalTools()
	s.registerMaintenanceTools()
}

// ===== INGEST TOOLS =====

type addProductInput struct {
	Dir     string `json:"dir,omitempty" jsonschema:"Directory of product PDFs (default: knowledge_base_path)"`
	Project string `json:"project,omitempty" jsonschema:"Project metadata value (default: product_standard)"`
	Tahun   string `json:"tahun,omitempty" jsonschema:"Year metadata value (default: 2025)"`
}

type addKakTorInput struct {
	Dir         string `json:"dir,omitempty" jsonschema:"Directory of KAK/TOR PDFs (default: kak_tor_base_path)"`
	MarkdownDir string `json:"markdown_dir,omitempty" jsonschema:"Directory for Markdown exports (default: kak_tor_md_base_path)"`
	Project     string `json:"project,omitempty" jsonschema:"Project metadata value (default: kak_tor)"`
	Tahun       string `json:"tahun,omitempty" jsonschema:"Year metadata value (default: 2025)"`
}

type addSummaryInput struct {
	MarkdownName string `json:"markdown_name,omitempty" jsonschema:"Summary file name; matched exactly, then as lower_snake_case, then by substring"`
	Project      string `json:"project,omitempty" jsonschema:"Project metadata value (default: default)"`
	Tahun        string `json:"tahun,omitempty" jsonschema:"Year metadata value (default: 2025)"`
}

type ingestFileInput struct {
	Path    string `json:"path" jsonschema:"Absolute path of a .pdf or .md file below a configured document directory"`
	Project string `json:"project,omitempty" jsonschema:"Project metadata value (default: product_standard)"`
	Tahun   string `json:"tahun,omitempty" jsonschema:"Year metadata value (default: 2025)"`
}

type ingestFileOutput struct {
	File   string `json:"file"`
	Chunks int    `json:"chunks"`
}

func (o ingestFileOutput) Text() string { return fmt.Sprintf("Ingested %s (%d chunks)", o.File, o.Chunks) }

func (s *Server) registerIngestTools() {
	addTool(s, "add_product_knowledge",
		"Convert, chunk and embed every product PDF in a directory",
		func(ctx context.Context, args addProductInput) (knowledge.IngestResult, error) {
			res, err := s.svc.AddProductKnowledge(ctx, knowledge.AddRequest{
				Dir:     args.Dir,
				Project: args.Project,
				Tahun:   args.Tahun,
			})
			if err != nil {
				return knowledge.IngestResult{}, err
			}
			return *res, nil
		})

	addTool(s, "add_kak_tor_knowledge",
		"Ingest KAK/TOR PDFs and export each one to Markdown",
		func(ctx context.Context, args addKakTorInput) (knowledge.IngestResult, error) {
			res, err := s.svc.AddKakTorKnowledge(ctx, knowledge.KakTorRequest{
				Dir:         args.Dir,
				MarkdownDir: args.MarkdownDir,
				Project:     args.Project,
				Tahun:       args.Tahun,
			})
			if err != nil {
				return knowledge.IngestResult{}, err
			}
			return *res, nil
		})

	addTool(s, "ingest_file",
		"Ingest one PDF or Markdown file, replacing its earlier chunks",
		func(ctx context.Context, args ingestFileInput) (ingestFileOutput, error) {
			n, err := s.svc.IngestFile(ctx, args.Path, args.Project, args.Tahun)
			if err != nil {
				return ingestFileOutput{}, err
			}
			return ingestFileOutput{File: filepath.Base(args.Path), Chunks: n}, nil
		})

	addTool(s, "add_kak_tor_summaries_knowledge",
		"Ingest one Markdown summary; without a match the available files are listed",
		func(ctx context.Context, args addSummaryInput) (knowledge.SummaryResult, error) {
			res, err := s.svc.AddKakTorSummariesKnowledge(ctx, knowledge.SummaryRequest{
				MarkdownName: args.MarkdownName,
				Project:      args.Project,
				Tahun:        args.Tahun,
			})
			if err != nil {
				return knowledge.SummaryResult{}, err
			}
			return *res, nil
		})
}

// ===== PAYLOAD TOOLS =====

type instructionContextInput struct {
	TemplateName  string   `json:"template_name" jsonschema:"Template name without the .txt extension"`
	MarkdownDir   string   `json:"markdown_dir,omitempty" jsonschema:"Directory of Markdown documents (default: kak_tor_md_base_path)"`
	SelectedFiles []string `json:"selected_files,omitempty" jsonschema:"File names to include (default: every .md file)"`
}

type summaryTenderInput struct {
	PromptInstructionName string `json:"prompt_instruction_name" jsonschema:"Template name without the .txt extension"`
	KakTorName            string `json:"kak_tor_name,omitempty" jsonschema:"KAK/TOR Markdown export name without the .md extension"`
}

func (s *Server) registerPayloadTools() {
	addTool(s, "build_instruction_context",
		"Pair a prompt template with the text of Markdown documents",
		func(ctx context.Context, args instructionContextInput) (knowledge.Payload, error) {
			instruction, docContext, err := s.svc.BuildInstructionContext(ctx, args.TemplateName, args.MarkdownDir, args.SelectedFiles)
			if err != nil {
				return knowledge.Payload{}, err
			}
			return knowledge.Payload{Instruction: instruction, Context: docContext}, nil
		})

	addTool(s, "build_summary_tender_payload",
		"Pair a prompt template with one KAK/TOR Markdown export",
		func(ctx context.Context, args summaryTenderInput) (knowledge.Payload, error) {
			p, err := s.svc.BuildSummaryTenderPayload(ctx, args.PromptInstructionName, args.KakTorName)
			if err != nil {
				return knowledge.Payload{}, err
			}
			return *p, nil
		})
}

// ===== RETRIEVAL TOOLS =====

type retrievalInput struct {
	Query  string                 `json:"query" jsonschema:"Natural language query"`
	K      int                    `json:"k,omitempty" jsonschema:"Maximum results (default: retrieval.default_k)"`
	Filter map[string]interface{} `json:"filter,omitempty" jsonschema:"Metadata equality filter, e.g. {\"project\": \"kak_tor\", \"tahun\": \"2025\"}"`
}

type retrievalOutput struct {
	Result string `json:"result" jsonschema:"Numbered matches with citations"`
}

func (o retrievalOutput) Text() string { return o.Result }

type listValuesInput struct {
	Field string `json:"field" jsonschema:"Metadata field name, e.g. project, tahun or source"`
}

type listValuesOutput struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

type listDocumentsInput struct {
	Kind string `json:"kind" jsonschema:"One of knowledge, kak_tor, kak_tor_md, summaries, templates"`
}

type listDocumentsOutput struct {
	Kind      string   `json:"kind"`
	Documents []string `json:"documents"`
}

func (s *Server) registerRetrievalTools() {
	addTool(s, "retrieval_with_filter",
		"Semantic search over the knowledge base, restricted by metadata",
		func(ctx context.Context, args retrievalInput) (retrievalOutput, error) {
			out, err := s.svc.RetrievalWithFilter(ctx, args.Query, args.K, vectorstore.Filter(args.Filter))
			if err != nil {
				return retrievalOutput{}, err
			}
			return retrievalOutput{Result: out}, nil
		})

	addTool(s, "list_metadata_values",
		"List the distinct values of a metadata field",
		func(ctx context.Context, args listValuesInput) (listValuesOutput, error) {
			values, err := s.svc.ListMetadataValues(ctx, args.Field)
			if err != nil {
				return listValuesOutput{}, err
			}
			return listValuesOutput{Field: args.Field, Values: values}, nil
		})

	addTool(s, "list_documents",
		"List the files of a configured document directory",
		func(ctx context.Context, args listDocumentsInput) (listDocumentsOutput, error) {
			docs, err := s.svc.ListDocuments(ctx, args.Kind)
			if err != nil {
				return listDocumentsOutput{}, err
			}
			return listDocumentsOutput{Kind: args.Kind, Documents: docs}, nil
		})
}

// ===== MAINTENANCE TOOLS =====

type emptyInput struct{}

type resetOutput struct {
	Status string `json:"status"`
}

func (o resetOutput) Text() string { return "Knowledge base reset: " + o.Status }

type updateMetadataInput struct {
	Filter      map[string]interface{} `json:"filter" jsonschema:"Metadata equality filter selecting the rows to update"`
	NewMetadata map[string]interface{} `json:"new_metadata" jsonschema:"Fields to set; existing keys are overwritten"`
}

type updateMetadataOutput struct {
	Updated int `json:"updated"`
}

func (o updateMetadataOutput) Text() string { return fmt.Sprintf("Updated metadata of %d chunks", o.Updated) }

type rebuildInput struct {
	BatchSize int `json:"batch_size,omitempty" jsonschema:"Texts per embedding call (default: 100)"`
}

type rebuildOutput struct {
	Rebuilt int `json:"rebuilt"`
}

func (o rebuildOutput) Text() string { return fmt.Sprintf("Rebuilt embeddings for %d chunks", o.Rebuilt) }

func (s *Server) registerMaintenanceTools() {
	addTool(s, "reset_knowledge_base",
		"Delete every chunk from the vector table",
		func(ctx context.Context, _ emptyInput) (resetOutput, error) {
			if err := s.svc.ResetKnowledgeBase(ctx); err != nil {
				return resetOutput{}, err
			}
			return resetOutput{Status: "ok"}, nil
		})

	addTool(s, "update_chunk_metadata",
		"Merge new metadata into every chunk matching a filter",
		func(ctx context.Context, args updateMetadataInput) (updateMetadataOutput, error) {
			n, err := s.svc.UpdateChunkMetadata(ctx, vectorstore.Filter(args.Filter), args.NewMetadata)
			if err != nil {
				return updateMetadataOutput{}, err
			}
			return updateMetadataOutput{Updated: n}, nil
		})

	addTool(s, "get_vectorstore_stats",
		"Row count, on-disk size, projects and per-year distribution",
		func(ctx context.Context, _ emptyInput) (knowledge.Stats, error) {
			st, err := s.svc.GetVectorstoreStats(ctx)
			if err != nil {
				return knowledge.Stats{}, err
			}
			return *st, nil
		})

	addTool(s, "rebuild_all_embeddings",
		"Re-embed every chunk with the configured embedding model",
		func(ctx context.Context, args rebuildInput) (rebuildOutput, error) {
			n, err := s.svc.RebuildAllEmbeddings(ctx, args.BatchSize)
			if err != nil {
				return rebuildOutput{}, err
			}
			return rebuildOutput{Rebuilt: n}, nil
		})
}

package http

import "github.com/fyrsmithlabs/knowledged/internal/knowledge"

// Ingestion endpoints take the façade requests as-is.
type (
	AddProductRequest = knowledge.AddRequest
	AddKakTorRequest  = knowledge.KakTorRequest
	AddSummaryRequest = knowledge.SummaryRequest
)

// IngestFileRequest is the request body for POST /api/v1/knowledge/file.
// Path must lie below one of the configured document directories.
type IngestFileRequest struct {
	Path    string `json:"path"`
	Project string `json:"project,omitempty"`
	Tahun   string `json:"tahun,omitempty"`
}

// IngestFileResponse is the response body for POST /api/v1/knowledge/file.
type IngestFileResponse struct {
	File   string `json:"file"`
	Chunks int    `json:"chunks"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RetrieveRequest is the request body for POST /api/v1/retrieve.
type RetrieveRequest struct {
	Query  string                 `json:"query"`
	K      int                    `json:"k,omitempty"`
	Filter map[string]interface{} `json:"filter,omitempty"`
}

// RetrieveResponse is the response body for POST /api/v1/retrieve.
type RetrieveResponse struct {
	Result string `json:"result"`
}

// ResetResponse is the response body for POST /api/v1/reset.
type ResetResponse struct {
	Status string `json:"status"`
}

// UpdateMetadataRequest is the request body for POST /api/v1/metadata.
type UpdateMetadataRequest struct {
	Filter      map[string]interface{} `json:"filter"`
	NewMetadata map[string]interface{} `json:"new_metadata"`
}

// UpdateMetadataResponse is the response body for POST /api/v1/metadata.
type UpdateMetadataResponse struct {
	Updated int `json:"updated"`
}

// RebuildRequest is the request body for POST /api/v1/rebuild.
type RebuildRequest struct {
	BatchSize int `json:"batch_size,omitempty"`
}

// RebuildResponse is the response body for POST /api/v1/rebuild.
type RebuildResponse struct {
	Rebuilt int `json:"rebuilt"`
}

// ValuesResponse is the response body for GET /api/v1/metadata/:field.
type ValuesResponse struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// DocumentsResponse is the response body for GET /api/v1/documents/:kind.
type DocumentsResponse struct {
	Kind      string   `json:"kind"`
	Documents []string `json:"documents"`
}

// InstructionRequest is the request body for POST /api/v1/payload/instruction.
type InstructionRequest struct {
	TemplateName  string   `json:"template_name"`
	MarkdownDir   string   `json:"markdown_dir,omitempty"`
	SelectedFiles []string `json:"selected_files,omitempty"`
}

// SummaryTenderRequest is the request body for POST /api/v1/payload/summary-tender.
type SummaryTenderRequest struct {
	PromptInstructionName string `json:"prompt_instruction_name"`
	KakTorName            string `json:"kak_tor_name,omitempty"`
}

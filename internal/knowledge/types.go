package knowledge

// Defaults applied to empty request fields.
const (
	DefaultProductProject = "product_standard"
	DefaultKakTorProject  = "kak_tor"
	DefaultSummaryProject = "default"
	DefaultTahun          = "2025"
	DefaultRebuildBatch   = 100
)

// AddRequest ingests every PDF of a directory.
type AddRequest struct {
	Dir     string `json:"dir,omitempty"`
	Project string `json:"project,omitempty"`
	Tahun   string `json:"tahun,omitempty"`
}

// KakTorRequest ingests KAK/TOR PDFs and exports them to Markdown.
type KakTorRequest struct {
	Dir         string `json:"dir,omitempty"`
	MarkdownDir string `json:"markdown_dir,omitempty"`
	Project     string `json:"project,omitempty"`
	Tahun       string `json:"tahun,omitempty"`
}

// SummaryRequest ingests one Markdown summary by (fuzzy) name.
type SummaryRequest struct {
	MarkdownName string `json:"markdown_name,omitempty"`
	Project      string `json:"project,omitempty"`
	Tahun        string `json:"tahun,omitempty"`
}

// FileError records a file skipped during ingestion.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// IngestResult summarizes a directory ingestion.
type IngestResult struct {
	Files           []string    `json:"files"`
	Failed          []FileError `json:"failed,omitempty"`
	Chunks          int         `json:"chunks"`
	MarkdownWritten []string    `json:"markdown_written,omitempty"`
}

// SummaryResult is the outcome of AddKakTorSummariesKnowledge. Matched is
// empty when no file was found; Available then lists the candidates.
type SummaryResult struct {
	Matched   string   `json:"matched,omitempty"`
	Chunks    int      `json:"chunks"`
	Available []string `json:"available,omitempty"`
}

// Payload is a prompt instruction paired with its document context.
type Payload struct {
	Instruction string `json:"instruction"`
	Context     string `json:"context"`
}

// Stats describes the vector table contents.
type Stats struct {
	TotalRows         int            `json:"total_rows"`
	SizeMB            float64        `json:"size_mb"`
	Projects          []string       `json:"projects"`
	TahunDistribution map[string]int `json:"tahun_distribution"`
}

// Document kinds accepted by ListDocuments.
const (
	KindKnowledge = "knowledge"
	KindKakTor    = "kak_tor"
	KindKakTorMD  = "kak_tor_md"
	KindSummaries = "summaries"
	KindTemplates = "templates"
)

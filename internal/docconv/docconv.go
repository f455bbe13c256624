// Package docconv converts source documents (PDF, Markdown) into paged text.
package docconv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/config"
)

var tracer = otel.Tracer("knowledged.docconv")

var (
	// ErrFileTooLarge is returned for files over the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrNoText is returned when a PDF has no extractable text.
	ErrNoText = errors.New("no extractable text")

	// ErrUnsupportedFormat is returned for extensions other than .pdf, .md and .markdown.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// Format identifies the source format of a Document.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
)

// FormatOf returns the format for path's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// Page is the trimmed text of one source page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Document is a converted source file.
type Document struct {
	Path   string
	Name   string // base file name, used as the chunk source
	Title  string // file name without extension
	Format Format
	Pages  []Page
}

// Text joins the page texts with blank lines.
func (d *Document) Text() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Markdown exports the document as Markdown. PDFs become a title heading
// followed by one "## Page N" section per page; Markdown sources are
// returned unchanged.
func (d *Document) Markdown() string {
	if d.Format == FormatMarkdown {
		return d.Text()
	}
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(d.Title)
	b.WriteString("\n")
	for _, p := range d.Pages {
		b.WriteString("\n## Page ")
		b.WriteString(strconv.Itoa(p.Number))
		b.WriteString("\n\n")
		b.WriteString(p.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// Converter reads documents from disk.
type Converter struct {
	maxBytes int64
	logger   *zap.Logger
}

// NewConverter creates a Converter limited to cfg.MaxFileBytes per file.
func NewConverter(cfg config.DocConvConfig, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := cfg.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &Converter{maxBytes: maxBytes, logger: logger}
}

// Convert reads path and returns its pages.
func (c *Converter) Convert(ctx context.Context, path string) (*Document, error) {
	ctx, span := tracer.Start(ctx, "Converter.Convert")
	defer span.End()
	span.SetAttributes(attribute.String("file", filepath.Base(path)))

	doc, err := c.convert(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("format", string(doc.Format)),
		attribute.Int("pages", len(doc.Pages)),
	)
	c.logger.Debug("converted document",
		zap.String("file", doc.Name),
		zap.String("format", string(doc.Format)),
		zap.Int("pages", len(doc.Pages)),
	)
	return doc, nil
}

func (c *Converter) convert(ctx context.Context, path string) (*Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > c.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrFileTooLarge, filepath.Base(path), info.Size(), c.maxBytes)
	}

	name := filepath.Base(path)
	doc := &Document{
		Path:   path,
		Name:   name,
		Title:  strings.TrimSuffix(name, filepath.Ext(name)),
		Format: format,
	}

	switch format {
	case FormatMarkdown:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		doc.Pages = []Page{{Number: 1, Text: string(data)}}
	case FormatPDF:
		pages, err := c.readPDF(ctx, path)
		if err != nil {
			return nil, err
		}
		doc.Pages = pages
	}
	return doc, nil
}

// readPDF extracts per-page plain text. Pages without text are skipped but
// keep their original numbering.
func (c *Converter) readPDF(ctx context.Context, path string) (pages []Page, err error) {
	// The PDF parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parsing %s: %v", filepath.Base(path), r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	n := r.NumPage()
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			c.logger.Warn("skipping unreadable pdf page",
				zap.String("file", filepath.Base(path)),
				zap.Int("page", i),
				zap.Error(err),
			)
			continue
		}
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoText, filepath.Base(path))
	}
	return pages, nil
}

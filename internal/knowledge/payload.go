package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// BuildInstructionContext returns the text of template templateName and a
// context made of markdown documents from markdownDir: selectedFiles when
// given, otherwise every *.md file in name order.
func (s *Service) BuildInstructionContext(ctx context.Context, templateName, markdownDir string, selectedFiles []string) (instruction, docContext string, err error) {
	_, done := s.start(ctx, "BuildInstructionContext", attribute.String("template", templateName))
	defer done(&err)

	instruction, err = s.readTemplate(templateName)
	if err != nil {
		return "", "", err
	}

	dir, err := s.confine(orDefault(markdownDir, s.cfg.Paths.KakTorMDBasePath))
	if err != nil {
		return "", "", err
	}
	files := selectedFiles
	if len(files) == 0 {
		files, err = listFiles(dir, ".md")
		if err != nil {
			return "", "", fmt.Errorf("listing %s: %w", dir, err)
		}
	}

	parts := make([]string, 0, len(files))
	for _, name := range files {
		text, err := readDocument(dir, name)
		if err != nil {
			return "", "", err
		}
		parts = append(parts, contextBlock(name, text))
	}
	return instruction, strings.Join(parts, "\n"), nil
}

// BuildSummaryTenderPayload pairs template promptInstructionName with the
// KAK/TOR markdown export kakTorName.
func (s *Service) BuildSummaryTenderPayload(ctx context.Context, promptInstructionName, kakTorName string) (p *Payload, err error) {
	_, done := s.start(ctx, "BuildSummaryTenderPayload",
		attribute.String("template", promptInstructionName), attribute.String("kak_tor", kakTorName))
	defer done(&err)

	instruction, err := s.readTemplate(promptInstructionName)
	if err != nil {
		return nil, err
	}

	dir := s.cfg.Paths.KakTorMDBasePath
	name := strings.TrimSuffix(strings.TrimSpace(kakTorName), ".md")
	if name == "" {
		return nil, fmt.Errorf("%w: available: %s", ErrNameRequired, s.available(dir))
	}

	file := name + ".md"
	text, err := readDocument(dir, file)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, fmt.Errorf("%w: available: %s", err, s.available(dir))
		}
		return nil, err
	}
	return &Payload{Instruction: instruction, Context: contextBlock(file, text)}, nil
}

func (s *Service) readTemplate(name string) (string, error) {
	path, err := joinName(s.cfg.Paths.TemplatesBasePath, strings.TrimSpace(name)+".txt")
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return "", fmt.Errorf("reading template %s: %w", name, err)
	}
	return string(data), nil
}

func readDocument(dir, name string) (string, error) {
	path, err := joinName(dir, name)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, name)
		}
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return string(data), nil
}

func contextBlock(name, text string) string {
	return "---\n# " + name + "\n" + text + "\n"
}

func (s *Service) available(dir string) string {
	files, _ := listFiles(dir, ".md")
	if len(files) == 0 {
		return "(none)"
	}
	return strings.Join(files, ", ")
}

// ListDocuments lists the file names of one configured directory.
func (s *Service) ListDocuments(ctx context.Context, kind string) (names []string, err error) {
	_, done := s.start(ctx, "ListDocuments", attribute.String("kind", kind))
	defer done(&err)

	var dir, ext string
	switch kind {
	case KindKnowledge:
		dir, ext = s.cfg.Paths.KnowledgeBasePath, ".pdf"
	case KindKakTor:
		dir, ext = s.cfg.Paths.KakTorBasePath, ".pdf"
	case KindKakTorMD:
		dir, ext = s.cfg.Paths.KakTorMDBasePath, ".md"
	case KindSummaries:
		dir, ext = s.cfg.Paths.SummariesMDBasePath, ".md"
	case KindTemplates:
		dir, ext = s.cfg.Paths.TemplatesBasePath, ".txt"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	names, err = listFiles(dir, ext)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

package knowledge

import (
	"errors"

	"github.com/fyrsmithlabs/knowledged/internal/docconv"
	"github.com/fyrsmithlabs/knowledged/internal/rag"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

var (
	// ErrTemplateNotFound is returned when <templates>/<name>.txt does not exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrDocumentNotFound is returned when a requested markdown document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrNameRequired is returned when a document name is required but empty.
	ErrNameRequired = errors.New("document name is required")

	// ErrInvalidName is returned for names that would leave their directory.
	ErrInvalidName = errors.New("invalid document name")

	// ErrOutsideRoots is returned for directory or file paths outside the
	// configured document directories.
	ErrOutsideRoots = errors.New("path is outside the configured document directories")

	// ErrEmptyUpdate is returned when a metadata update has no fields.
	ErrEmptyUpdate = errors.New("metadata update must not be empty")

	// ErrInvalidField is returned for metadata field names outside [A-Za-z0-9_]{1,64}.
	ErrInvalidField = errors.New("invalid metadata field")

	// ErrUnknownKind is returned by ListDocuments for an unknown directory kind.
	ErrUnknownKind = errors.New("unknown document kind")

	// Re-exported so callers only need this package to classify façade errors.
	ErrEmptyFilter       = vectorstore.ErrEmptyFilter
	ErrInvalidFilterKey  = vectorstore.ErrInvalidFilterKey
	ErrUnsupportedFormat = docconv.ErrUnsupportedFormat
	ErrEmptyQuery        = rag.ErrEmptyQuery
	ErrDimensionMismatch = rag.ErrDimensionMismatch
)

// IsValidation reports whether err is caused by bad caller input.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrNameRequired, ErrInvalidName, ErrOutsideRoots, ErrEmptyUpdate, ErrInvalidField, ErrUnknownKind,
		ErrEmptyFilter, ErrInvalidFilterKey, ErrUnsupportedFormat, ErrEmptyQuery,
		docconv.ErrFileTooLarge, docconv.ErrNoText,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err names a missing template or document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) || errors.Is(err, ErrDocumentNotFound)
}

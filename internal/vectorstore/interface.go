package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector table operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrDimensionMismatch indicates a vector whose length differs from the table dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyFilter is returned by Delete when no filter is given.
	ErrEmptyFilter = errors.New("filter must not be empty")

	// ErrInvalidFilterKey indicates a filter key outside ^[A-Za-z0-9_]{1,64}$.
	ErrInvalidFilterKey = errors.New("invalid filter key")

	// ErrReservedKey indicates a metadata key the tables use for row fields.
	ErrReservedKey = errors.New("reserved metadata key")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrCircuitOpen is returned while the backend circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// collectionNamePattern validates collection names.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Row is one stored chunk.
type Row struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Vector   []float32              `json:"-"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Match is a search hit. Score is cosine similarity, higher is better.
type Match struct {
	Row   Row     `json:"row"`
	Score float32 `json:"score"`
}

// Table is a persistent vector table with metadata filtering.
//
// Implementations are safe for concurrent use. Metadata values are stored
// in canonical string form and come back as strings.
type Table interface {
	// Add upserts rows by id and returns the ids. Rows with an empty id are
	// assigned a UUID. Every vector must match Dimension.
	Add(ctx context.Context, rows []Row) ([]string, error)

	// Search returns at most k rows matching filter, best first.
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error)

	// Scan returns every row matching filter, vectors included.
	Scan(ctx context.Context, filter Filter) ([]Row, error)

	// Delete removes every row matching filter and returns the number removed.
	// An empty filter is rejected with ErrEmptyFilter.
	Delete(ctx context.Context, filter Filter) (int, error)

	// Count returns the number of rows.
	Count(ctx context.Context) (int, error)

	// Reset drops and recreates the table.
	Reset(ctx context.Context) error

	// Dimension returns the vector size.
	Dimension() int

	// PersistDir returns the local storage directory, or "" for remote tables.
	PersistDir() string

	// Close releases resources.
	Close() error
}

// ValidateCollectionName validates a collection name.
// Pattern: ^[a-z0-9_]{1,64}$
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// reservedKeys name the payload fields holding the chunk text and row id.
// They cannot be used as metadata on any backend.
var reservedKeys = map[string]struct{}{
	payloadText:  {},
	payloadRowID: {},
}

// IsReservedKey reports whether key is unavailable as a metadata key.
func IsReservedKey(key string) bool {
	_, ok := reservedKeys[key]
	return ok
}

// checkRows verifies vector dimensions and metadata keys before a write.
func checkRows(rows []Row, dim int) error {
	for i, r := range rows {
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: row %d has %d dimensions, table has %d", ErrDimensionMismatch, i, len(r.Vector), dim)
		}
		for k := range r.Metadata {
			if IsReservedKey(k) {
				return fmt.Errorf("%w: row %d uses %q", ErrReservedKey, i, k)
			}
		}
	}
	return nil
}

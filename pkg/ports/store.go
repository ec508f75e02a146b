package ports

import (
	"context"

	"github.com/hirokts/enikki/pkg/domain"
)

// DiaryStore defines the interface for persisting run documents.
type DiaryStore interface {
	// Save writes the document for a given run id, replacing any previous version.
	Save(ctx context.Context, runID string, doc domain.Document) error

	// Load retrieves the document for a given run id.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (domain.Document, error)

	// Delete removes the document for a given run id.
	Delete(ctx context.Context, runID string) error

	// List returns the ids of stored runs, newest first.
	List(ctx context.Context) ([]string, error)
}

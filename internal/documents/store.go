// Package documents persists brand assets documents.
package documents

import (
	"context"
	"errors"

	"github.com/antoniostano/brandstudio/internal/assets"
)

var ErrNotFound = errors.New("document not found")

// Store is the remote document store. CreateOrUpdate saves doc under id,
// or under a newly allocated id when id is empty, and returns the id used.
type Store interface {
	CreateOrUpdate(ctx context.Context, doc *assets.Document, id string) (string, error)
	Load(ctx context.Context, id string) (*assets.Document, error)
	Close() error
}

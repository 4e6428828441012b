package documents

import (
	"context"
	"strings"
)

// NewStore returns a PostgreSQL store when databaseURL is set and an
// in-memory store otherwise. mode names the backend for status output.
func NewStore(ctx context.Context, databaseURL string) (store Store, mode string, err error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(), "in-memory", nil
	}
	pg, err := NewPostgresStore(ctx, databaseURL)
	if err != nil {
		return nil, "", err
	}
	return pg, "postgres", nil
}

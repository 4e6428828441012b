package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antoniostano/brandstudio/internal/assets"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initDocumentSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

func initDocumentSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS brand_documents (
			id TEXT PRIMARY KEY,
			body JSONB NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_brand_documents_updated ON brand_documents (updated_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init document schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateOrUpdate(ctx context.Context, doc *assets.Document, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	body, err := encodeDocument(doc, id)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO brand_documents (id, body, version, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (id) DO UPDATE SET
			body=EXCLUDED.body,
			version=brand_documents.version + 1,
			updated_at=EXCLUDED.updated_at`,
		id, body, now,
	)
	if err != nil {
		return "", fmt.Errorf("upsert document: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*assets.Document, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM brand_documents WHERE id=$1`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return decodeDocument(body, id)
}

func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func encodeDocument(doc *assets.Document, id string) ([]byte, error) {
	if doc == nil {
		doc = &assets.Document{}
	}
	stored := *doc
	stored.ID = id
	body, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return body, nil
}

func decodeDocument(body []byte, id string) (*assets.Document, error) {
	var doc assets.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	doc.ID = id
	return &doc, nil
}

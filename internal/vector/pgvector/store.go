package pgvector

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	pgv "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/vector"
	"github.com/pressroom/backend/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	db *sql.DB
}

var _ vector.Index = (*Store)(nil)

func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("pgvector store initialized")
	return s, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Name() string { return "pgvector" }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(s.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("pgvector migrations applied")
	return nil
}

func (s *Store) Upsert(ctx context.Context, userID string, items []vector.Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_embeddings (id, user_id, document_id, title, source, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			title = EXCLUDED.title,
			source = EXCLUDED.source,
			embedding = EXCLUDED.embedding
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		_, err := stmt.ExecContext(ctx,
			item.ID,
			userID,
			item.DocumentID,
			item.Title,
			item.Source,
			item.Content,
			pgv.NewVector(item.Vector),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit embeddings: %w", err)
	}

	logger.Debug("Embeddings upserted", zap.String("user_id", userID), zap.Int("count", len(items)))
	return nil
}

func (s *Store) SimilaritySearch(ctx context.Context, userID string, vec []float32, k int, metric vector.Metric) ([]vector.Match, error) {
	query, err := similarityQuery(metric)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, userID, pgv.NewVector(vec), len(vec), k)
	if err != nil {
		return nil, fmt.Errorf("failed to run similarity query: %w", err)
	}
	defer rows.Close()

	var matches []vector.Match
	for rows.Next() {
		var m vector.Match
		if err := rows.Scan(&m.DocumentID, &m.Content, &m.Title, &m.Source, &m.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}

	return matches, nil
}

// similarityQuery picks the pgvector distance operator: <=> is cosine
// distance, <-> is L2.
func similarityQuery(metric vector.Metric) (string, error) {
	var op string
	switch metric {
	case vector.MetricCosine:
		op = "<=>"
	case vector.MetricEuclidean:
		op = "<->"
	default:
		return "", fmt.Errorf("unsupported metric %q", metric)
	}

	return `
		SELECT document_id, content, title, source, embedding ` + op + ` $2 AS distance
		FROM document_embeddings
		WHERE user_id = $1 AND vector_dims(embedding) = $3
		ORDER BY distance
		LIMIT $4
	`, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/storage/models"
	"github.com/pressroom/backend/pkg/logger"
)

const driverName = "sqlite3_pressroom"

// fold lowercases any script; SQLite lower() only folds ASCII.
func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

type Client struct {
	db  *sql.DB
	now func() time.Time
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, now: time.Now}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		source TEXT NOT NULL,
		title TEXT,
		content TEXT NOT NULL,
		embedding TEXT,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id, created_at);

	CREATE TABLE IF NOT EXISTS usage_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		prompt_chars INTEGER NOT NULL DEFAULT 0,
		completion_chars INTEGER NOT NULL DEFAULT 0,
		tokens_prompt INTEGER NOT NULL DEFAULT 0,
		tokens_completion INTEGER NOT NULL DEFAULT 0,
		model TEXT,
		latency_ms INTEGER,
		cost_usd REAL,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_user_created ON usage_events(user_id, created_at);

	CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT NOT NULL,
		period TEXT NOT NULL,
		monthly_tokens_used INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, period)
	);

	CREATE TABLE IF NOT EXISTS chain_traces (
		run_id TEXT PRIMARY KEY,
		chain TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		output_hash TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_traces_chain ON chain_traces(chain, started_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// CreateDocuments inserts docs for userID in one transaction and returns
// them with ids and timestamps filled in.
func (c *Client) CreateDocuments(ctx context.Context, userID string, docs []models.Document) ([]models.Document, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, user_id, source, title, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare document insert: %w", err)
	}
	defer stmt.Close()

	inserted := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.New().String()
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = c.now()
		}
		doc.UserID = userID

		_, err := stmt.ExecContext(ctx,
			doc.ID,
			doc.UserID,
			doc.Source,
			doc.Title,
			doc.Content,
			nullString(doc.Embedding),
			encodeMetadata(doc.Metadata),
			doc.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert document: %w", err)
		}
		inserted = append(inserted, doc)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit documents: %w", err)
	}

	logger.Debug("Documents inserted", zap.String("user_id", userID), zap.Int("count", len(inserted)))
	return inserted, nil
}

func (c *Client) ListDocuments(ctx context.Context, userID string, limit int) ([]models.Document, error) {
	query := `
		SELECT id, user_id, source, title, content, embedding, metadata, created_at
		FROM documents
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// SearchDocumentsByKeyword matches documents containing any query term in
// their title or content, case-insensitively.
func (c *Client) SearchDocumentsByKeyword(ctx context.Context, userID, query string, limit int) ([]models.Document, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(terms))
	args := []any{userID}
	for _, term := range terms {
		clauses = append(clauses, `(fold(content) LIKE ? ESCAPE '\' OR fold(coalesce(title, '')) LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(term) + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)

	sqlQuery := `
		SELECT id, user_id, source, title, content, embedding, metadata, created_at
		FROM documents
		WHERE user_id = ? AND (` + strings.Join(clauses, " OR ") + `)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]models.Document, error) {
	var docs []models.Document
	for rows.Next() {
		var d models.Document
		var title, embedding, metadata sql.NullString
		var createdAt int64

		err := rows.Scan(&d.ID, &d.UserID, &d.Source, &title, &d.Content, &embedding, &metadata, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		d.Title = title.String
		d.Embedding = embedding.String
		d.Metadata = decodeMetadata(metadata.String)
		d.CreatedAt = time.UnixMilli(createdAt)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return docs, nil
}

func (c *Client) RecordUsageEvent(ctx context.Context, userID string, event models.UsageEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = c.now()
	}

	var cost sql.NullFloat64
	if event.CostUSD != nil {
		cost = sql.NullFloat64{Float64: *event.CostUSD, Valid: true}
	}

	query := `
		INSERT INTO usage_events (id, user_id, event_type, prompt_chars, completion_chars, tokens_prompt,
			tokens_completion, model, latency_ms, cost_usd, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		event.ID,
		userID,
		event.EventType,
		event.PromptChars,
		event.CompletionChars,
		event.TokensPrompt,
		event.TokensCompletion,
		event.Model,
		event.LatencyMs,
		cost,
		encodeMetadata(event.Metadata),
		event.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record usage event: %w", err)
	}

	logger.Debug("Usage recorded",
		zap.String("user_id", userID),
		zap.String("event_type", event.EventType),
		zap.Int("tokens", event.TotalTokens()),
	)
	return nil
}

// GetUserProfile returns a zero counter when the user has no row for period.
func (c *Client) GetUserProfile(ctx context.Context, userID, period string) (models.UserProfile, error) {
	profile := models.UserProfile{UserID: userID, Period: period}

	var updatedAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT monthly_tokens_used, updated_at FROM user_profiles WHERE user_id = ? AND period = ?`,
		userID, period,
	).Scan(&profile.MonthlyTokensUsed, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return profile, nil
	}
	if err != nil {
		return profile, fmt.Errorf("failed to get user profile: %w", err)
	}

	profile.UpdatedAt = time.UnixMilli(updatedAt)
	return profile, nil
}

func (c *Client) IncrementUserTokens(ctx context.Context, userID, period string, delta int) error {
	query := `
		INSERT INTO user_profiles (user_id, period, monthly_tokens_used, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, period) DO UPDATE SET
			monthly_tokens_used = monthly_tokens_used + excluded.monthly_tokens_used,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(ctx, query, userID, period, delta, c.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to increment user tokens: %w", err)
	}
	return nil
}

func (c *Client) UsageByEventType(ctx context.Context, userID string, since time.Time) ([]models.UsageAggregate, error) {
	query := `
		SELECT event_type, COUNT(*), COALESCE(SUM(tokens_prompt), 0), COALESCE(SUM(tokens_completion), 0)
		FROM usage_events
		WHERE user_id = ? AND created_at >= ?
		GROUP BY event_type
		ORDER BY event_type
	`

	rows, err := c.db.QueryContext(ctx, query, userID, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	defer rows.Close()

	var out []models.UsageAggregate
	for rows.Next() {
		var a models.UsageAggregate
		if err := rows.Scan(&a.EventType, &a.Events, &a.TokensPrompt, &a.TokensCompletion); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return out, nil
}

func (c *Client) InsertTraces(ctx context.Context, traces []models.ChainTrace) error {
	if len(traces) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO chain_traces (run_id, chain, started_at, ended_at, latency_ms, output_hash, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare trace insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range traces {
		_, err := stmt.ExecContext(ctx,
			t.RunID,
			t.Chain,
			t.Start.UnixMilli(),
			t.End.UnixMilli(),
			t.LatencyMs,
			nullString(t.OutputHash),
			nullString(t.Error),
		)
		if err != nil {
			return fmt.Errorf("failed to insert trace: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit traces: %w", err)
	}
	return nil
}

func (c *Client) CountTraces(ctx context.Context, chain string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chain_traces WHERE chain = ?`, chain).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count traces: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeMetadata(m map[string]string) sql.NullString {
	if len(m) == 0 {
		return sql.NullString{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func decodeMetadata(s string) map[string]string {
	if s == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

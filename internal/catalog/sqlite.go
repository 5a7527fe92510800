package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/creatormatch/scout/internal/model"
)

// SQLiteSource loads creators from a SQLite database. Analysis and embedding
// are stored as JSON text, which keeps the file greppable and avoids a
// vector extension requirement for small single-node deployments.
type SQLiteSource struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteSource opens (or creates) the database at path and ensures the
// creators table exists.
func NewSQLiteSource(ctx context.Context, path string, logger *slog.Logger) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open sqlite %s: %w", path, err)
	}
	// SQLite serializes writers; one connection sidesteps SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteSource{db: db, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSource) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS creators (
		    id             TEXT PRIMARY KEY,
		    nickname       TEXT NOT NULL,
		    bio            TEXT NOT NULL DEFAULT '',
		    follower_count INTEGER NOT NULL DEFAULT 0,
		    heart_count    INTEGER NOT NULL DEFAULT 0,
		    region         TEXT NOT NULL DEFAULT '',
		    analysis       TEXT NOT NULL DEFAULT '{}',
		    embedding      TEXT
		)`)
	if err != nil {
		return fmt.Errorf("catalog: ensure schema: %w", err)
	}
	return nil
}

// ListAll loads every creator row.
func (s *SQLiteSource) ListAll(ctx context.Context) ([]model.Creator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nickname, bio, follower_count, heart_count, region, analysis, embedding
		FROM creators
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: query creators: %w", err)
	}
	defer rows.Close()

	var creators []model.Creator
	for rows.Next() {
		var (
			c             model.Creator
			analysisJSON  string
			embeddingJSON sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Nickname, &c.Bio, &c.FollowerCount, &c.HeartCount, &c.Region, &analysisJSON, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("catalog: scan creator: %w", err)
		}
		if analysisJSON != "" {
			if err := json.Unmarshal([]byte(analysisJSON), &c.Analysis); err != nil {
				s.logger.Warn("catalog: skipping creator with malformed analysis", "creator_id", c.ID, "error", err)
				continue
			}
		}
		if embeddingJSON.Valid && embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &c.Embedding); err != nil {
				s.logger.Warn("catalog: dropping malformed embedding", "creator_id", c.ID, "error", err)
				c.Embedding = nil
			}
		}
		creators = append(creators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate creators: %w", err)
	}
	return creators, nil
}

// UpsertCreator writes one creator row, replacing any previous version.
func (s *SQLiteSource) UpsertCreator(ctx context.Context, c model.Creator) error {
	analysisJSON, err := json.Marshal(c.Analysis)
	if err != nil {
		return fmt.Errorf("catalog: marshal analysis: %w", err)
	}

	var embeddingJSON any
	if len(c.Embedding) > 0 {
		b, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("catalog: marshal embedding: %w", err)
		}
		embeddingJSON = string(b)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO creators (id, nickname, bio, follower_count, heart_count, region, analysis, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
		    nickname = excluded.nickname,
		    bio = excluded.bio,
		    follower_count = excluded.follower_count,
		    heart_count = excluded.heart_count,
		    region = excluded.region,
		    analysis = excluded.analysis,
		    embedding = excluded.embedding`,
		c.ID, c.Nickname, c.Bio, c.FollowerCount, c.HeartCount, c.Region, string(analysisJSON), embeddingJSON)
	if err != nil {
		return fmt.Errorf("catalog: upsert creator %s: %w", c.ID, err)
	}
	return nil
}

// Ping checks the database handle.
func (s *SQLiteSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close shuts down the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

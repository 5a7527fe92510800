package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/creatormatch/scout/internal/model"
)

// PostgresSource loads creators from a Postgres table with a pgvector
// embedding column. The schema it expects:
//
//	CREATE TABLE creators (
//	    id             TEXT PRIMARY KEY,
//	    nickname       TEXT NOT NULL,
//	    bio            TEXT NOT NULL DEFAULT '',
//	    follower_count BIGINT NOT NULL DEFAULT 0,
//	    heart_count    BIGINT NOT NULL DEFAULT 0,
//	    region         TEXT NOT NULL DEFAULT '',
//	    analysis       JSONB NOT NULL DEFAULT '{}',
//	    embedding      VECTOR
//	);
type PostgresSource struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresSource connects a pool to dsn with pgvector types registered on
// each connection.
func NewPostgresSource(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresSource, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse DSN: %w", err)
	}

	// Best-effort type registration: if the vector extension is missing the
	// source still works for rows without embeddings.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
			logger.Debug("catalog: pgvector types not registered", "error", err)
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}

	return &PostgresSource{pool: pool, logger: logger}, nil
}

// EnsureSchema creates the creators table if it does not exist.
func (s *PostgresSource) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS creators (
		    id             TEXT PRIMARY KEY,
		    nickname       TEXT NOT NULL,
		    bio            TEXT NOT NULL DEFAULT '',
		    follower_count BIGINT NOT NULL DEFAULT 0,
		    heart_count    BIGINT NOT NULL DEFAULT 0,
		    region         TEXT NOT NULL DEFAULT '',
		    analysis       JSONB NOT NULL DEFAULT '{}',
		    embedding      VECTOR
		)`)
	if err != nil {
		return fmt.Errorf("catalog: ensure schema: %w", err)
	}
	return nil
}

// ListAll loads every creator row.
func (s *PostgresSource) ListAll(ctx context.Context) ([]model.Creator, error) {
	rows, err := s.pool.Query(ctx, `
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
			c            model.Creator
			analysisJSON []byte
			embedding    *pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.Nickname, &c.Bio, &c.FollowerCount, &c.HeartCount, &c.Region, &analysisJSON, &embedding); err != nil {
			return nil, fmt.Errorf("catalog: scan creator: %w", err)
		}
		if len(analysisJSON) > 0 {
			if err := json.Unmarshal(analysisJSON, &c.Analysis); err != nil {
				s.logger.Warn("catalog: skipping creator with malformed analysis", "creator_id", c.ID, "error", err)
				continue
			}
		}
		if embedding != nil {
			c.Embedding = embedding.Slice()
		}
		creators = append(creators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate creators: %w", err)
	}
	return creators, nil
}

// UpsertCreator writes one creator row, replacing any previous version.
func (s *PostgresSource) UpsertCreator(ctx context.Context, c model.Creator) error {
	analysisJSON, err := json.Marshal(c.Analysis)
	if err != nil {
		return fmt.Errorf("catalog: marshal analysis: %w", err)
	}

	var embedding *pgvector.Vector
	if len(c.Embedding) > 0 {
		v := pgvector.NewVector(c.Embedding)
		embedding = &v
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO creators (id, nickname, bio, follower_count, heart_count, region, analysis, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
		    nickname = EXCLUDED.nickname,
		    bio = EXCLUDED.bio,
		    follower_count = EXCLUDED.follower_count,
		    heart_count = EXCLUDED.heart_count,
		    region = EXCLUDED.region,
		    analysis = EXCLUDED.analysis,
		    embedding = EXCLUDED.embedding`,
		c.ID, c.Nickname, c.Bio, c.FollowerCount, c.HeartCount, c.Region, analysisJSON, embedding)
	if err != nil {
		return fmt.Errorf("catalog: upsert creator %s: %w", c.ID, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close shuts down the pool.
func (s *PostgresSource) Close() {
	s.pool.Close()
}

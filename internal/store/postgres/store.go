// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/focusops/focus-collector/internal/focus"
	"github.com/focusops/focus-collector/internal/store"
)

// querier is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store implements store.Store on Postgres.
type Store struct {
	pool querier
}

// New creates a pooled Postgres store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// GetQuery loads one query with its keywords and sources.
func (s *Store) GetQuery(ctx context.Context, id string) (focus.Query, error) {
	const querySQL = `
		SELECT id, name, enabled, frequency
		FROM queries
		WHERE id = $1;
	`
	var q focus.Query
	err := s.pool.QueryRow(ctx, querySQL, id).Scan(&q.ID, &q.Name, &q.Enabled, &q.Frequency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return focus.Query{}, store.ErrNotFound
		}
		return focus.Query{}, fmt.Errorf("get query: %w", err)
	}

	if q.Keywords, err = s.queryKeywords(ctx, id); err != nil {
		return focus.Query{}, err
	}
	if q.Sources, err = s.querySources(ctx, id); err != nil {
		return focus.Query{}, err
	}
	return q, nil
}

func (s *Store) queryKeywords(ctx context.Context, queryID string) ([]focus.Keyword, error) {
	const keywordSQL = `
		SELECT id, text
		FROM keywords
		WHERE query_id = $1
		ORDER BY id;
	`
	rows, err := s.pool.Query(ctx, keywordSQL, queryID)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()

	var keywords []focus.Keyword
	for rows.Next() {
		var k focus.Keyword
		if err := rows.Scan(&k.ID, &k.Text); err != nil {
			return nil, fmt.Errorf("scan keyword row: %w", err)
		}
		keywords = append(keywords, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword rows: %w", err)
	}
	return keywords, nil
}

func (s *Store) querySources(ctx context.Context, queryID string) ([]focus.Source, error) {
	const sourceSQL = `
		SELECT id, name, type, config
		FROM sources
		WHERE query_id = $1
		ORDER BY id;
	`
	rows, err := s.pool.Query(ctx, sourceSQL, queryID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []focus.Source
	for rows.Next() {
		var (
			src    focus.Source
			config []byte
		)
		if err := rows.Scan(&src.ID, &src.Name, &src.Type, &config); err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		if err := decodeSourceConfig(&src, config); err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source rows: %w", err)
	}
	return sources, nil
}

// decodeSourceConfig unpacks the jsonb config column into the variant
// matching the source type. A NULL config leaves all variants nil; the
// pipeline skips such sources.
func decodeSourceConfig(src *focus.Source, config []byte) error {
	if len(config) == 0 {
		return nil
	}
	switch src.Type {
	case focus.SourceWeb, focus.SourceDarknet:
		var web focus.WebConfig
		if err := json.Unmarshal(config, &web); err != nil {
			return fmt.Errorf("decode web config: %w", err)
		}
		src.Web = &web
	case focus.SourceSearchEngine:
		var search focus.SearchEngineConfig
		if err := json.Unmarshal(config, &search); err != nil {
			return fmt.Errorf("decode search config: %w", err)
		}
		src.Search = &search
	case focus.SourceSocialMedia:
		var social focus.SocialMediaConfig
		if err := json.Unmarshal(config, &social); err != nil {
			return fmt.Errorf("decode social config: %w", err)
		}
		src.Social = &social
	}
	return nil
}

// CreateRun inserts a new run row.
func (s *Store) CreateRun(ctx context.Context, run focus.QueryRun) error {
	meta, err := marshalMeta(run.Meta)
	if err != nil {
		return err
	}
	const insertSQL = `
		INSERT INTO query_runs (id, query_id, status, progress, started_at, finished_at, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err = s.pool.Exec(ctx, insertSQL,
		run.ID, run.QueryID, run.Status, run.Progress, run.StartedAt, run.FinishedAt, meta)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// MarkRunning transitions a PENDING run to RUNNING.
func (s *Store) MarkRunning(ctx context.Context, runID string, startedAt time.Time) error {
	const updateSQL = `
		UPDATE query_runs
		SET status = $1, started_at = $2, progress = 0
		WHERE id = $3 AND status = $4;
	`
	tag, err := s.pool.Exec(ctx, updateSQL, focus.RunRunning, startedAt, runID, focus.RunPending)
	if err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.runWriteConflict(ctx, runID)
	}
	return nil
}

// UpdateProgress persists a progress checkpoint for a RUNNING run.
func (s *Store) UpdateProgress(ctx context.Context, runID string, progress int) error {
	const updateSQL = `
		UPDATE query_runs
		SET progress = $1
		WHERE id = $2 AND status = $3;
	`
	tag, err := s.pool.Exec(ctx, updateSQL, progress, runID, focus.RunRunning)
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.runWriteConflict(ctx, runID)
	}
	return nil
}

// CompleteRun transitions the run to a terminal status. A run that is already
// terminal is left untouched.
func (s *Store) CompleteRun(
	ctx context.Context,
	runID string,
	status focus.RunStatus,
	finishedAt time.Time,
	progress int,
	meta map[string]any,
) error {
	if !status.Terminal() {
		return fmt.Errorf("complete run: status %q is not terminal", status)
	}
	metaBytes, err := marshalMeta(meta)
	if err != nil {
		return err
	}
	const updateSQL = `
		UPDATE query_runs
		SET status = $1, finished_at = $2, progress = $3, meta = $4
		WHERE id = $5 AND status NOT IN ($6, $7);
	`
	tag, err := s.pool.Exec(ctx, updateSQL,
		status, finishedAt, progress, metaBytes, runID, focus.RunSucceeded, focus.RunFailed)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.runWriteConflict(ctx, runID)
	}
	return nil
}

// runWriteConflict disambiguates a zero-row update: missing run vs terminal
// run.
func (s *Store) runWriteConflict(ctx context.Context, runID string) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return store.ErrRunTerminal
	}
	return fmt.Errorf("run %s in unexpected status %s", runID, run.Status)
}

// GetRun loads one run row.
func (s *Store) GetRun(ctx context.Context, runID string) (focus.QueryRun, error) {
	const selectSQL = `
		SELECT id, query_id, status, progress, started_at, finished_at, meta
		FROM query_runs
		WHERE id = $1;
	`
	var (
		run  focus.QueryRun
		meta []byte
	)
	err := s.pool.QueryRow(ctx, selectSQL, runID).Scan(
		&run.ID, &run.QueryID, &run.Status, &run.Progress, &run.StartedAt, &run.FinishedAt, &meta)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return focus.QueryRun{}, store.ErrNotFound
		}
		return focus.QueryRun{}, fmt.Errorf("get run: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &run.Meta); err != nil {
			return focus.QueryRun{}, fmt.Errorf("decode run meta: %w", err)
		}
	}
	return run, nil
}

// InsertContent inserts one content row.
func (s *Store) InsertContent(ctx context.Context, content focus.Content) error {
	meta, err := marshalMeta(content.Meta)
	if err != nil {
		return err
	}
	const insertSQL = `
		INSERT INTO contents (id, title, summary, markdown, platform, type, time, url, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err = s.pool.Exec(ctx, insertSQL,
		content.ID, content.Title, content.Summary, content.Markdown,
		content.Platform, content.Type, content.Time, content.URL, meta)
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

// InsertContentKeywords links content to keywords; existing pairs are kept.
func (s *Store) InsertContentKeywords(ctx context.Context, contentID string, keywordIDs []string) error {
	const insertSQL = `
		INSERT INTO content_keywords (content_id, keyword_id)
		VALUES ($1, $2)
		ON CONFLICT (content_id, keyword_id) DO NOTHING;
	`
	for _, keywordID := range keywordIDs {
		if _, err := s.pool.Exec(ctx, insertSQL, contentID, keywordID); err != nil {
			return fmt.Errorf("insert content keyword %s: %w", keywordID, err)
		}
	}
	return nil
}

func marshalMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal meta: %w", err)
	}
	return data, nil
}

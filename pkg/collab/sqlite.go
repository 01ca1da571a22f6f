package collab

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// SQLiteMemory is the default Memory implementation: episodic summaries
// stored in a local SQLite database.
type SQLiteMemory struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteMemory opens (or creates) the episode store at path.
func NewSQLiteMemory(path string, logger zerolog.Logger) (*SQLiteMemory, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create memory directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	m := &SQLiteMemory{db: db, logger: logger}
	if err := m.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return m, nil
}

func (m *SQLiteMemory) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			plan_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			objective TEXT NOT NULL,
			summary TEXT NOT NULL,
			risk_score REAL NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_episodes_plan ON episodes(plan_id);
		CREATE INDEX IF NOT EXISTS idx_episodes_created ON episodes(created_at);
	`
	_, err := m.db.Exec(schema)
	return err
}

// StoreEpisode persists one episodic summary and returns its id.
func (m *SQLiteMemory) StoreEpisode(ctx context.Context, ep Episode) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate episode id: %w", err)
	}

	_, err = m.db.ExecContext(ctx,
		`INSERT INTO episodes (id, plan_id, kind, objective, summary, risk_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, ep.PlanID, ep.Kind, ep.Objective, ep.Summary, ep.RiskScore, ep.CreatedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to insert episode: %w", err)
	}

	m.logger.Debug().
		Str("episode_id", id).
		Str("plan_id", ep.PlanID).
		Str("kind", ep.Kind).
		Msg("Episode stored")

	return id, nil
}

// RecentEpisodes returns up to limit episodes for a plan, newest first.
func (m *SQLiteMemory) RecentEpisodes(ctx context.Context, planID string, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT plan_id, kind, objective, summary, risk_score, created_at
		 FROM episodes WHERE plan_id = ? ORDER BY created_at DESC LIMIT ?`,
		planID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var ep Episode
		var createdMs int64
		if err := rows.Scan(&ep.PlanID, &ep.Kind, &ep.Objective, &ep.Summary, &ep.RiskScore, &createdMs); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		ep.CreatedAt = msToTime(createdMs)
		out = append(out, ep)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (m *SQLiteMemory) Close() error {
	return m.db.Close()
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

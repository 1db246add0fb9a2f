// Package journal keeps a SQLite record of every alert dispatch.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	_ "modernc.org/sqlite"

	"detectorx-worker-go/internal/models"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Store represents the alert journal database
type Store struct {
	db *sql.DB
}

// New opens the database at dbPath and runs migrations
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// database/sql pools connections; one writer avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run journal migrations: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("Alert journal opened")
	return s, nil
}

func (s *Store) runMigrations() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			alert_id TEXT PRIMARY KEY,
			monitor_id TEXT NOT NULL DEFAULT '',
			label TEXT NOT NULL,
			confidence REAL NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK(status IN ('attempted', 'persist_failed', 'failed')),
			analysis_included INTEGER NOT NULL DEFAULT 0,
			channels TEXT NOT NULL DEFAULT '[]',
			error TEXT NOT NULL DEFAULT '',
			dispatched_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_dispatched_at ON alerts(dispatched_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_label ON alerts(label)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}

// Record stores the outcome of one dispatch
func (s *Store) Record(ctx context.Context, event models.AlertEvent) error {
	channels, err := json.Marshal(lo.Ternary(event.Channels == nil, []models.ChannelOutcome{}, event.Channels))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alerts
			(alert_id, monitor_id, label, confidence, location, source, status, analysis_included, channels, error, dispatched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.AlertID, event.MonitorID, event.Label, event.Confidence, event.Location, event.Source,
		string(event.Status), event.AnalysisIncluded, string(channels), event.Error, event.DispatchedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record alert %s: %w", event.AlertID, err)
	}
	return nil
}

// Recent returns up to limit events, newest first. Out of range limits are clamped.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.AlertEvent, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT alert_id, monitor_id, label, confidence, location, source, status, analysis_included, channels, error, dispatched_at
		 FROM alerts
		 ORDER BY dispatched_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.AlertEvent{}
	for rows.Next() {
		var (
			ev         models.AlertEvent
			status     string
			channels   string
			dispatched int64
		)
		if err := rows.Scan(&ev.AlertID, &ev.MonitorID, &ev.Label, &ev.Confidence, &ev.Location, &ev.Source,
			&status, &ev.AnalysisIncluded, &channels, &ev.Error, &dispatched); err != nil {
			return nil, err
		}
		ev.Status = models.DispatchStatus(status)
		ev.DispatchedAt = time.UnixMilli(dispatched)
		if err := json.Unmarshal([]byte(channels), &ev.Channels); err != nil {
			return nil, fmt.Errorf("corrupt channels for alert %s: %w", ev.AlertID, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountByLabel returns how many dispatches were recorded per label
func (s *Store) CountByLabel(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label, COUNT(*) FROM alerts GROUP BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

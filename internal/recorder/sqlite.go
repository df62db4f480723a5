package recorder

import (
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	"PreBurstSentinel/internal/model"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists scan history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while the scanner writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scan_cycles (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			boundary    INTEGER NOT NULL,
			started_at  INTEGER NOT NULL,
			duration_ms INTEGER,
			scanned     INTEGER,
			failed      INTEGER,
			created     INTEGER,
			closed      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_boundary ON scan_cycles(boundary)`,

		`CREATE TABLE IF NOT EXISTS opportunity_events (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			opportunity_id TEXT NOT NULL,
			kind           TEXT NOT NULL,
			pair           TEXT NOT NULL,
			timestamp      INTEGER NOT NULL,
			price          TEXT,
			cci            REAL,
			rsi            REAL,
			band_span      REAL,
			slope_sum      REAL,
			exit_cci       REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON opportunity_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_pair ON opportunity_events(pair)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordCycle(rec *CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO scan_cycles
		(boundary, started_at, duration_ms, scanned, failed, created, closed)
		VALUES (?,?,?,?,?,?,?)`,
		rec.Boundary.Unix(), rec.StartedAt.Unix(), rec.Duration.Milliseconds(),
		rec.Scanned, rec.Failed, rec.Created, rec.Closed,
	)
	return err
}

func (r *SQLiteRecorder) RecordEvent(ev *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o := ev.Opportunity
	var exit any
	if ev.Kind == model.EventClosed && !math.IsNaN(ev.ExitCCI) {
		exit = ev.ExitCCI
	}
	_, err := r.db.Exec(`INSERT INTO opportunity_events
		(opportunity_id, kind, pair, timestamp, price, cci, rsi, band_span, slope_sum, exit_cci)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		o.ID, string(ev.Kind), ev.Pair, ev.At.UnixMilli(), o.Price.String(),
		o.CCI, o.RSI, o.BandSpan, o.SlopeSum, exit,
	)
	return err
}

// RecentEvents returns up to limit events, newest first.
func (r *SQLiteRecorder) RecentEvents(limit int) ([]EventRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`SELECT opportunity_id, kind, pair, timestamp, price, cci, rsi, band_span, exit_cci
		FROM opportunity_events ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		var ts int64
		var exit sql.NullFloat64
		if err := rows.Scan(&e.OpportunityID, &e.Kind, &e.Pair, &ts, &e.Price, &e.CCI, &e.RSI, &e.BandSpan, &exit); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.At = time.UnixMilli(ts).UTC()
		if exit.Valid {
			e.ExitCCI = exit.Float64
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

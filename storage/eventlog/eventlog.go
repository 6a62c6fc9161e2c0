package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"judgedescrow/core/events"
	"judgedescrow/core/types"
)

const defaultRecentLimit = 100

// Record is a persisted escrow event.
type Record struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Log archives emitted escrow events in SQLite. It implements events.Emitter
// so it can sit directly behind the engine.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// Open creates or opens the event archive at path. Use ":memory:" for an
// ephemeral archive.
func Open(path string, logger *slog.Logger) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases coherent and serialises
	// writers.
	db.SetMaxOpenConns(1)
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{db: db, logger: logger, nowFn: time.Now}
	if err := l.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            type TEXT NOT NULL,
            payer TEXT,
            attributes TEXT NOT NULL,
            recorded_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_payer ON events(payer, sequence);`,
	}
	for _, stmt := range schema {
		if _, err := l.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Emit implements events.Emitter. Persistence failures are logged and never
// propagated, since the state transition has already committed.
func (l *Log) Emit(evt events.Event) {
	if l == nil || evt == nil {
		return
	}
	typed, ok := evt.(interface{ Event() *types.Event })
	if !ok || typed.Event() == nil {
		return
	}
	if err := l.Append(context.Background(), typed.Event()); err != nil {
		l.logger.Warn("event log append failed", "type", evt.EventType(), "error", err)
	}
}

// Append stores evt and returns once it is durable.
func (l *Log) Append(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return fmt.Errorf("eventlog: nil event")
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	const stmt = `INSERT INTO events(type, payer, attributes, recorded_at) VALUES (?, ?, ?, ?)`
	_, err = l.db.ExecContext(ctx, stmt, evt.Type, nullString(evt.Attribute("payer")), string(payload), l.nowFn().UTC())
	return err
}

// Recent returns up to limit events, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Record, error) {
	const query = `SELECT sequence, type, attributes, recorded_at FROM events ORDER BY sequence DESC LIMIT ?`
	return l.query(ctx, query, clampLimit(limit))
}

// ByPayer returns up to limit events concerning payer's escrows, newest first.
func (l *Log) ByPayer(ctx context.Context, payer string, limit int) ([]Record, error) {
	const query = `SELECT sequence, type, attributes, recorded_at FROM events WHERE payer = ? ORDER BY sequence DESC LIMIT ?`
	return l.query(ctx, query, payer, clampLimit(limit))
}

func (l *Log) query(ctx context.Context, query string, args ...interface{}) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			rec     Record
			payload string
		)
		if err := rows.Scan(&rec.Sequence, &rec.Type, &payload, &rec.RecordedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("eventlog: decode sequence %d: %w", rec.Sequence, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultRecentLimit
	}
	return limit
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

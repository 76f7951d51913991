package eventlog

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"tradeescrow/core/events"
	"tradeescrow/core/types"
)

// Record is one persisted event.
type Record struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	EscrowID   string            `json:"escrowId,omitempty"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// typedEvent is implemented by events that carry a structured payload.
type typedEvent interface {
	Event() *types.Event
}

// SQLiteLog persists emitted events to a SQLite database. It implements
// events.Emitter so it can sit in a fanout next to other sinks.
type SQLiteLog struct {
	db     *sql.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// Open creates or opens the event log at path. Use ":memory:" for an
// ephemeral log.
func Open(path string) (*SQLiteLog, error) {
	if path == "" {
		return nil, errors.New("eventlog: path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers.
	db.SetMaxOpenConns(1)
	log := &SQLiteLog{db: db, logger: slog.Default(), nowFn: time.Now}
	if err := log.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return log, nil
}

func (l *SQLiteLog) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            type TEXT NOT NULL,
            escrow_id TEXT,
            payload TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_escrow_idx ON events(escrow_id, sequence);`,
	}
	for _, stmt := range schema {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("eventlog: init schema: %w", err)
		}
	}
	return nil
}

// SetLogger overrides the logger used to report write failures.
func (l *SQLiteLog) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Close releases the database handle.
func (l *SQLiteLog) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Emit implements events.Emitter. Write failures are logged and dropped so a
// broken sink never fails a committed transition.
func (l *SQLiteLog) Emit(evt events.Event) {
	if l == nil || evt == nil {
		return
	}
	if _, err := l.Append(context.Background(), evt); err != nil {
		l.logger.Error("eventlog append failed", "type", evt.EventType(), "error", err)
	}
}

// Append stores evt and returns its sequence number.
func (l *SQLiteLog) Append(ctx context.Context, evt events.Event) (int64, error) {
	payload := &types.Event{Type: evt.EventType()}
	if typed, ok := evt.(typedEvent); ok {
		if inner := typed.Event(); inner != nil {
			payload = inner
		}
	}
	if payload.Attributes == nil {
		payload.Attributes = map[string]string{}
	}
	encoded, err := json.Marshal(payload.Attributes)
	if err != nil {
		return 0, fmt.Errorf("eventlog: encode attributes: %w", err)
	}
	var escrowID sql.NullString
	if id := payload.Attr("id"); id != "" {
		escrowID = sql.NullString{String: id, Valid: true}
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO events(type, escrow_id, payload, created_at) VALUES(?, ?, ?, ?)`,
		payload.Type, escrowID, string(encoded), l.nowFn().UTC())
	if err != nil {
		return 0, fmt.Errorf("eventlog: insert: %w", err)
	}
	return res.LastInsertId()
}

// List returns the events recorded for escrowID in emission order.
func (l *SQLiteLog) List(ctx context.Context, escrowID [32]byte) ([]Record, error) {
	return l.query(ctx,
		`SELECT sequence, type, COALESCE(escrow_id, ''), payload, created_at FROM events WHERE escrow_id = ? ORDER BY sequence`,
		hex.EncodeToString(escrowID[:]))
}

// Since returns up to limit events with a sequence greater than cursor.
func (l *SQLiteLog) Since(ctx context.Context, cursor int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	return l.query(ctx,
		`SELECT sequence, type, COALESCE(escrow_id, ''), payload, created_at FROM events WHERE sequence > ? ORDER BY sequence LIMIT ?`,
		cursor, limit)
}

func (l *SQLiteLog) query(ctx context.Context, stmt string, args ...interface{}) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			rec     Record
			payload string
		)
		if err := rows.Scan(&rec.Sequence, &rec.Type, &rec.EscrowID, &payload, &rec.RecordedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("eventlog: decode attributes: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

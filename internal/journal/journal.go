// ABOUTME: SQLite journal of received channel events using modernc.org/sqlite
// ABOUTME: Records name, message id, author and raw payload; lists with opaque cursors

package journal

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Fixed-width UTC timestamps so text ordering matches time ordering.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one recorded channel event.
type Entry struct {
	ID         string
	Event      string
	MessageID  int64  // 0 when the event does not name a message
	Author     string // sender username of new_message events
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// ListParams filters and pages List.
type ListParams struct {
	Event     string     // optional event name
	MessageID int64      // optional message id
	Since     *time.Time // optional lower bound, inclusive
	Until     *time.Time // optional upper bound, inclusive
	Limit     int        // 1-500, defaults to 50
	Cursor    string     // from a previous ListResult
}

// ListResult is one page of entries, oldest first.
type ListResult struct {
	Entries    []Entry
	NextCursor string
	HasMore    bool
}

// SQLiteJournal stores entries in a SQLite database.
type SQLiteJournal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the journal at path, creating parent directories.
func Open(path string, logger *slog.Logger) (*SQLiteJournal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "journal")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	j := &SQLiteJournal{db: db, logger: logger}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("journal opened", "path", path)
	return j, nil
}

func (j *SQLiteJournal) createSchema() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS channel_events (
			entry_id    TEXT PRIMARY KEY,
			event       TEXT NOT NULL,
			message_id  INTEGER,
			author      TEXT NOT NULL DEFAULT '',
			payload     TEXT,
			received_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_channel_events_received
			ON channel_events(received_at, entry_id);

		CREATE INDEX IF NOT EXISTS idx_channel_events_message
			ON channel_events(message_id);
	`)
	return err
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// Record stores e. Missing ID and ReceivedAt are filled in.
func (j *SQLiteJournal) Record(ctx context.Context, e *Entry) error {
	if e.Event == "" {
		return errors.New("journal entry requires an event name")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}

	var messageID sql.NullInt64
	if e.MessageID != 0 {
		messageID = sql.NullInt64{Int64: e.MessageID, Valid: true}
	}
	var payload sql.NullString
	if len(e.Payload) > 0 {
		payload = sql.NullString{String: string(e.Payload), Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO channel_events (entry_id, event, message_id, author, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Event, messageID, e.Author, payload, e.ReceivedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// List returns entries oldest first.
func (j *SQLiteJournal) List(ctx context.Context, p ListParams) (*ListResult, error) {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}

	query := `
		SELECT entry_id, event, message_id, author, payload, received_at
		FROM channel_events
		WHERE 1 = 1
	`
	var args []any

	if p.Event != "" {
		query += ` AND event = ?`
		args = append(args, p.Event)
	}
	if p.MessageID != 0 {
		query += ` AND message_id = ?`
		args = append(args, p.MessageID)
	}
	if p.Since != nil {
		query += ` AND received_at >= ?`
		args = append(args, p.Since.UTC().Format(timeFormat))
	}
	if p.Until != nil {
		query += ` AND received_at <= ?`
		args = append(args, p.Until.UTC().Format(timeFormat))
	}
	if p.Cursor != "" {
		ts, id, err := decodeCursor(p.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		query += ` AND (received_at > ? OR (received_at = ? AND entry_id > ?))`
		args = append(args, ts, ts, id)
	}

	query += ` ORDER BY received_at ASC, entry_id ASC LIMIT ?`
	args = append(args, p.Limit+1)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			messageID sql.NullInt64
			payload   sql.NullString
			received  string
		)
		if err := rows.Scan(&e.ID, &e.Event, &messageID, &e.Author, &payload, &received); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		e.MessageID = messageID.Int64
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		e.ReceivedAt, err = time.Parse(timeFormat, received)
		if err != nil {
			return nil, fmt.Errorf("parsing received_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal rows: %w", err)
	}

	result := &ListResult{HasMore: len(entries) > p.Limit}
	if result.HasMore {
		entries = entries[:p.Limit]
		last := entries[len(entries)-1]
		result.NextCursor = encodeCursor(last.ReceivedAt, last.ID)
	}
	result.Entries = entries
	return result, nil
}

// Prune deletes entries received before cutoff and reports how many went.
func (j *SQLiteJournal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM channel_events WHERE received_at < ?`, cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned rows: %w", err)
	}
	if n > 0 {
		j.logger.Info("journal pruned", "deleted", n, "before", cutoff)
	}
	return n, nil
}

// Count returns the number of stored entries.
func (j *SQLiteJournal) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channel_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting journal entries: %w", err)
	}
	return n, nil
}

func encodeCursor(ts time.Time, id string) string {
	data := ts.UTC().Format(timeFormat) + "|" + id
	return base64.StdEncoding.EncodeToString([]byte(data))
}

// decodeCursor returns the formatted timestamp and entry id of a cursor.
func decodeCursor(cursor string) (string, string, error) {
	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", fmt.Errorf("invalid cursor encoding: %w", err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", errors.New("invalid cursor format: expected timestamp|entry_id")
	}
	if _, err := time.Parse(timeFormat, parts[0]); err != nil {
		return "", "", fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	return parts[0], parts[1], nil
}

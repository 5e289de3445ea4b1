// Package audit records the device commands issued through the API.
//
// Each entry names the device, the action, who asked for it and how it
// ended. Entries are written asynchronously by the API server and read
// back for GET /devices/{id}/commands and GET /commands.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OutcomeOK marks a command that the device acknowledged. Failed commands
// carry the API error code instead (timeout, unsupported, ...).
const OutcomeOK = "ok"

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Entry is one logged command.
type Entry struct {
	ID         string         `json:"id"`
	DeviceID   string         `json:"device_id"`
	Action     string         `json:"action"`
	Source     string         `json:"source"`
	Outcome    string         `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter selects entries for List. Zero fields match everything.
type Filter struct {
	DeviceID string
	Action   string
	Outcome  string
	Since    time.Time
	Limit    int
	Offset   int
}

// Page is a slice of entries plus the total matching count.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores command log entries.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) (*Page, error)
}

// SQLiteRepository implements Repository on the command_log table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a command log backed by db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts e, filling ID and CreatedAt when empty.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if e.DeviceID == "" || e.Action == "" {
		return fmt.Errorf("audit: device id and action are required")
	}
	if e.ID == "" {
		e.ID = "cmd-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeOK
	}

	var details any
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling command details: %w", err)
		}
		details = string(b)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO command_log (id, device_id, action, source, outcome, error, details, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DeviceID, e.Action, e.Source, e.Outcome,
		nullable(e.Error), details, e.DurationMS,
		e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting command log entry: %w", err)
	}
	return nil
}

// List returns matching entries, newest first.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) (*Page, error) {
	f.Limit = clampLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}

	where, args := f.where()

	var total int
	countQuery := "SELECT COUNT(*) FROM command_log" + where //nolint:gosec // where holds placeholders only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command log: %w", err)
	}

	query := `SELECT id, device_id, action, source, outcome, error, details, duration_ms, created_at
		FROM command_log` + where + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?` //nolint:gosec // where holds placeholders only
	rows, err := r.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	page := &Page{Entries: []Entry{}, Total: total, Limit: f.Limit, Offset: f.Offset}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		page.Entries = append(page.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}
	return page, nil
}

func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if f.DeviceID != "" {
		add("device_id = ?", f.DeviceID)
	}
	if f.Action != "" {
		add("action = ?", f.Action)
	}
	if f.Outcome != "" {
		add("outcome = ?", f.Outcome)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since.UTC().Format(timeFormat))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e         Entry
		errText   sql.NullString
		details   sql.NullString
		createdAt string
	)
	if err := rows.Scan(&e.ID, &e.DeviceID, &e.Action, &e.Source, &e.Outcome,
		&errText, &details, &e.DurationMS, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scanning command log entry: %w", err)
	}
	e.Error = errText.String
	if details.Valid && details.String != "" {
		// A row with unreadable details is still worth returning.
		_ = json.Unmarshal([]byte(details.String), &e.Details) //nolint:errcheck // details are informational
	}
	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing command log timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

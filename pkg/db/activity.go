package db

import (
	"context"
	"fmt"
	"time"
)

// LogEntry is one recorded activity line.
type LogEntry struct {
	ID        int64
	Kind      string
	Message   string
	Detail    string
	CreatedAt time.Time
}

// InsertLogLine records an activity line.
func (d *Database) InsertLogLine(ctx context.Context, kind, message, detail string) error {
	_, err := d.DB.ExecContext(ctx,
		`INSERT INTO activity_log (kind, message, detail) VALUES (?, ?, ?)`,
		kind, message, detail)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// RecentLogLines returns the newest entries, newest first.
func (d *Database) RecentLogLines(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx,
		`SELECT id, kind, message, detail, created_at
		   FROM activity_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query log lines: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Message, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneLogLines deletes entries older than the retention window.
func (d *Database) PruneLogLines(ctx context.Context, keep time.Duration) error {
	_, err := d.DB.ExecContext(ctx,
		`DELETE FROM activity_log WHERE created_at < ?`,
		time.Now().Add(-keep).UTC())
	if err != nil {
		return fmt.Errorf("prune log lines: %w", err)
	}
	return nil
}

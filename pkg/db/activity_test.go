package db

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Migrate(); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestInsertAndQueryLogLines(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	for _, msg := range []string{"first", "second", "third"} {
		if err := d.InsertLogLine(ctx, "info", msg, ""); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := d.RecentLogLines(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Newest first.
	if entries[0].Message != "third" || entries[1].Message != "second" {
		t.Fatalf("order = %q, %q", entries[0].Message, entries[1].Message)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	d := newTestDB(t)
	if err := d.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T, wal bool) *DB {
	t.Helper()
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "nested", "tcplink.db"), WALMode: wal})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates directory and file", func(t *testing.T) {
		db := openTestDB(t, true)

		if _, err := os.Stat(filepath.Dir(db.Path())); err != nil {
			t.Errorf("database directory missing: %v", err)
		}
		if _, err := os.Stat(db.Path()); err != nil {
			t.Errorf("database file missing: %v", err)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if _, err := Open(Config{}); err == nil {
			t.Error("Open() with empty path should fail")
		}
	})

	t.Run("single connection", func(t *testing.T) {
		db := openTestDB(t, false)
		if got := db.Stats().MaxOpenConnections; got != 1 {
			t.Errorf("MaxOpenConnections = %d, want 1", got)
		}
	})
}

func TestJournalMode(t *testing.T) {
	tests := []struct {
		wal  bool
		want string
	}{
		{true, "wal"},
		{false, "delete"},
	}
	for _, tt := range tests {
		db := openTestDB(t, tt.wal)
		got, err := db.JournalMode(context.Background())
		if err != nil {
			t.Fatalf("JournalMode() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("WALMode=%v: JournalMode() = %q, want %q", tt.wal, got, tt.want)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t, true)
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close() should fail")
	}
}

func TestClose_Nil(t *testing.T) {
	var db DB
	if err := db.Close(); err != nil {
		t.Errorf("Close() on zero DB = %v", err)
	}
}

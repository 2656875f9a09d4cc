package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestManager creates a manager over a fresh database file.
func createTestManager(t *testing.T, signaling Signaling) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	m := NewManager(path, WithSignaling(signaling), WithLogger(quietLogger()))
	t.Cleanup(func() { m.Close() })
	return m, path
}

func tableExists(t *testing.T, h *Handle, name string) bool {
	t.Helper()
	var n int
	err := h.DB().QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("look up table %q: %v", name, err)
	}
	return n > 0
}

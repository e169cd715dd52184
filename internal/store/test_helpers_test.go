package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/world"
)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func lamp(x int32, lit bool) world.Change {
	return world.Change{Pos: blocks.Pos(x, 0, 0), Block: blocks.Block{Kind: blocks.Lamp, Lit: lit}}
}

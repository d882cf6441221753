package worldfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grids:\n  - id: 1\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loaded := make(chan *world.World, 4)
	require.NoError(t, Watch(ctx, path, zerolog.Nop(), func(w *world.World) { loaded <- w }))

	// A sibling file and a broken rewrite are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("grids: [oops\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("grids:\n  - id: 1\n  - id: 2\n"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case w := <-loaded:
			if w.Grid(2) != nil {
				return
			}
		case <-deadline:
			t.Fatal("world was not reloaded")
		}
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "world.yaml"), zerolog.Nop(), func(*world.World) {})
	require.Error(t, err)
}

package worldfile

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

// Watch reloads the world file at path whenever it changes on disk and hands
// each successfully parsed world to onLoad. A file that fails to parse is
// logged and skipped; the previous world stays in effect.
//
// The parent directory is watched rather than the file so that editors
// which replace the file by rename are still picked up. Watch returns once
// the watcher is running and stops it when ctx is cancelled.
func Watch(ctx context.Context, path string, log zerolog.Logger, onLoad func(*world.World)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("worldfile: starting watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("worldfile: %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("worldfile: watching %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if name, err := filepath.Abs(event.Name); err != nil || name != abs {
					continue
				}
				w, err := Load(abs)
				if err != nil {
					log.Warn().Err(err).Str("path", abs).Msg("world file changed but did not load")
					continue
				}
				grids, blocks, _ := w.Len()
				log.Info().Str("path", abs).Int("grids", grids).Int("blocks", blocks).Msg("world file reloaded")
				onLoad(w)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("world file watcher error")
			}
		}
	}()

	log.Info().Str("path", abs).Msg("watching world file for changes")
	return nil
}

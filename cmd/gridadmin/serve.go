package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/crystal-mush/gridadmin/pkg/admin"
	"github.com/crystal-mush/gridadmin/pkg/archive"
	"github.com/crystal-mush/gridadmin/pkg/audit"
	"github.com/crystal-mush/gridadmin/pkg/boltstore"
	"github.com/crystal-mush/gridadmin/pkg/events"
	"github.com/crystal-mush/gridadmin/pkg/metrics"
	"github.com/crystal-mush/gridadmin/pkg/web"
	"github.com/crystal-mush/gridadmin/pkg/world"
	"github.com/crystal-mush/gridadmin/pkg/worldfile"
)

const saveInterval = time.Minute

func cmdServe(e *env, args []string) error {
	store, err := e.openStore()
	if err != nil {
		return err
	}
	auditStore, err := e.openAudit()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	bus := events.NewBus()

	opts := []admin.Option{
		admin.WithMetrics(m),
		admin.WithBus(bus),
		admin.WithMultiplayer(e.cfg.Multiplayer),
	}
	svc, _, err := e.service(opts...)
	if err != nil {
		return err
	}

	secret := e.cfg.JWTSecret
	if secret == "" {
		secret = web.GenerateSecret()
		e.log.Warn().Msg("jwt_secret not set; using a random secret, tokens will not survive a restart")
	}
	srv := web.New(svc, bus, reg, web.Config{
		Addr:          e.cfg.ListenAddr,
		CORSOrigins:   e.cfg.CORSOrigins,
		RateLimit:     e.cfg.RateLimit,
		JWTSecret:     secret,
		JWTExpiry:     e.cfg.JWTExpiry,
		AdminPassHash: e.cfg.AdminPassHash,
		DefaultMode:   e.cfg.Mode(),
	}, e.log.With().Str("component", "web").Logger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if e.cfg.WatchWorld && e.cfg.WorldFile != "" {
		go func() {
			err := worldfile.Watch(ctx, e.cfg.WorldFile, e.log, func(w *world.World) {
				svc.SwapWorld(w)
				if err := store.ImportWorld(w); err != nil {
					e.log.Error().Err(err).Msg("saving reloaded world")
				}
			})
			if err != nil {
				e.log.Error().Err(err).Msg("world file watcher stopped")
			}
		}()
	}

	go saveLoop(ctx, e, svc, store)
	if e.cfg.ArchiveInterval > 0 {
		go archiveLoop(ctx, e, svc, store, auditStore)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		e.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			e.log.Error().Err(err).Msg("web server shutdown")
		}
	}

	return saveWorld(svc, store)
}

// saveLoop writes the in-memory world back to bolt until ctx is done.
func saveLoop(ctx context.Context, e *env, svc *admin.Service, store *boltstore.Store) {
	ticker := time.NewTicker(saveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveWorld(svc, store); err != nil {
				e.log.Error().Err(err).Msg("periodic save failed")
			}
		}
	}
}

// archiveLoop saves and archives the world every ArchiveInterval minutes.
func archiveLoop(ctx context.Context, e *env, svc *admin.Service, store *boltstore.Store, a *audit.Store) {
	ticker := time.NewTicker(time.Duration(e.cfg.ArchiveInterval) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveWorld(svc, store); err != nil {
				e.log.Error().Err(err).Msg("save before archive failed")
				continue
			}
			var grids, blocks int
			svc.Read(func(w *world.World) { grids, blocks, _ = w.Len() })
			path, err := writeArchive(e, store, a, grids, blocks)
			if err != nil {
				e.log.Error().Err(err).Msg("auto-archive failed")
				continue
			}
			e.log.Info().Str("path", path).Msg("auto-archive written")
		}
	}
}

func saveWorld(svc *admin.Service, store *boltstore.Store) error {
	var err error
	svc.Read(func(w *world.World) {
		err = store.PutGrids(w.GetGrids(nil)...)
		if err != nil {
			return
		}
		for _, o := range w.Objects() {
			if err = store.PutObject(o); err != nil {
				return
			}
		}
	})
	if err != nil {
		return err
	}
	return store.PutMeta()
}

// writeArchive snapshots the store, audit log, world file and config into
// the archive directory, then prunes old archives.
func writeArchive(e *env, store *boltstore.Store, a *audit.Store, grids, blocks int) (string, error) {
	if e.cfg.ArchiveDir == "" {
		return "", errors.New("no archive directory configured")
	}
	p := archive.Params{
		BoltSnapshot: store.Backup,
		WorldFile:    existing(e.cfg.WorldFile),
		ConfPath:     existing(e.cfg.Path()),
		Dir:          e.cfg.ArchiveDir,
		Grids:        grids,
		Blocks:       blocks,
	}
	if a != nil {
		p.AuditPath = a.Path()
		p.AuditCheckpoint = a.Checkpoint
	}
	path, err := archive.CreateArchive(p)
	if err != nil {
		return "", err
	}
	if e.cfg.ArchiveRetain > 0 {
		if _, err := archive.Prune(e.cfg.ArchiveDir, e.cfg.ArchiveRetain); err != nil {
			e.log.Warn().Err(err).Msg("pruning archives")
		}
	}
	return path, nil
}

// existing returns path if it names a file, otherwise "".
func existing(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

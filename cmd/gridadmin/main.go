// Command gridadmin inspects and administers a world of block grids: it
// finds mechanically attached structures, halts ships, ejects pilots, toggles
// block power and serves the same operations over HTTP.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/crystal-mush/gridadmin/pkg/admin"
	"github.com/crystal-mush/gridadmin/pkg/audit"
	"github.com/crystal-mush/gridadmin/pkg/boltstore"
	"github.com/crystal-mush/gridadmin/pkg/config"
	"github.com/crystal-mush/gridadmin/pkg/logging"
	"github.com/crystal-mush/gridadmin/pkg/world"
	"github.com/crystal-mush/gridadmin/pkg/worldfile"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

var commands = map[string]struct {
	run  func(e *env, args []string) error
	help string
}{
	"import":        {cmdImport, "import [-file world.yaml]      load a YAML world into the bolt store"},
	"summary":       {cmdSummary, "summary                        list grids with block counts and owners"},
	"owned":         {cmdOwned, "owned <player>                 grids listing player as a small owner"},
	"attached":      {cmdAttached, "attached [-mode all|static] <grid>  grids attached to grid"},
	"owners":        {cmdOwners, "owners <grid>                  owners across the rigidly attached structure"},
	"stop":          {cmdStop, "stop <entity>                  halt a ship (all attached grids) or an object"},
	"eject":         {cmdEject, "eject <grid>                   remove pilots from every controller on grid"},
	"power":         {cmdPower, "power <block> on|off           switch a functional block"},
	"validate":      {cmdValidate, "validate [-fix] [-json]        check joint references"},
	"audit":         {cmdAudit, "audit [-n 20]                  recent admin actions"},
	"archive":       {cmdArchive, "archive [-list]                write a backup archive (or list archives)"},
	"restore":       {cmdRestore, "restore [-overwrite] <archive> restore state from an archive"},
	"serve":         {cmdServe, "serve                          run the HTTP API, websocket stream and /metrics"},
	"token":         {cmdToken, "token <actor>                  mint an API token for actor"},
	"hash-password": {cmdHashPassword, "hash-password <password>       print a bcrypt hash for admin_pass_hash"},
	"gen-secret":    {cmdGenSecret, "gen-secret                     print a random jwt_secret"},
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: gridadmin [global flags] <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, name := range []string{"import", "summary", "owned", "attached", "owners", "stop", "eject", "power",
		"validate", "audit", "archive", "restore", "serve", "token", "hash-password", "gen-secret"} {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].help)
	}
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Global flags:")
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Environment variables (used as defaults when flags are not set):")
	fmt.Fprintln(os.Stderr, "  GRIDADMIN_CONF           Path to config file (.yaml)")
	fmt.Fprintln(os.Stderr, "  GRIDADMIN_WORLD          Path to YAML world file")
	fmt.Fprintln(os.Stderr, "  GRIDADMIN_BOLT           Path to bbolt world store")
	fmt.Fprintln(os.Stderr, "  GRIDADMIN_AUDIT_DB       Path to SQLite audit log")
	fmt.Fprintln(os.Stderr, "  GRIDADMIN_ACTOR          Player id recorded for CLI actions")
	fmt.Fprintln(os.Stderr, "  GRIDADMIN_MODE           Default traversal mode (all|static)")
	fmt.Fprintln(os.Stderr, "  GRIDADMIN_MULTIPLAYER    Route block changes through the sync bus")
	fmt.Fprintln(os.Stderr, "  GRIDADMIN_LISTEN         HTTP listen address for serve")
	fmt.Fprintln(os.Stderr, "  GRIDADMIN_JWT_SECRET     Token signing secret")
	fmt.Fprintln(os.Stderr, "  GRIDADMIN_LOG_LEVEL      trace|debug|info|warn|error")
}

func main() {
	confFile := flag.String("conf", envDefault("GRIDADMIN_CONF", ""), "Path to config file (env: GRIDADMIN_CONF)")
	worldPath := flag.String("world", "", "Path to YAML world file, overrides config (env: GRIDADMIN_WORLD)")
	boltPath := flag.String("bolt", "", "Path to bbolt world store, overrides config (env: GRIDADMIN_BOLT)")
	auditPath := flag.String("audit", "", "Path to SQLite audit log, overrides config (env: GRIDADMIN_AUDIT_DB)")
	actor := flag.Int64("actor", 0, "Player id recorded for actions, overrides config (env: GRIDADMIN_ACTOR)")
	logLevel := flag.String("log-level", "", "Log level, overrides config (env: GRIDADMIN_LOG_LEVEL)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "gridadmin: unknown command %q\n\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *confFile != "" {
		var err error
		cfg, err = config.Load(*confFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gridadmin: %v\n", err)
			os.Exit(1)
		}
	}
	cfg.ApplyEnv()

	// Command-line flags override config file and environment values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "world":
			cfg.WorldFile = *worldPath
		case "bolt":
			cfg.BoltPath = *boltPath
		case "audit":
			cfg.AuditDB = *auditPath
		case "actor":
			cfg.Actor = *actor
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	opts := logging.DefaultOptions()
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
		opts.Level = lvl
	}
	opts.JSON = cfg.LogJSON
	opts = logging.FromEnv(opts)

	e := &env{cfg: cfg, log: logging.New("gridadmin", opts)}
	defer e.close()

	if err := cmd.run(e, flag.Args()[1:]); err != nil {
		e.close()
		fmt.Fprintf(os.Stderr, "gridadmin %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
}

// env holds the lazily opened resources shared by commands.
type env struct {
	cfg   *config.Conf
	log   zerolog.Logger
	store *boltstore.Store
	audit *audit.Store
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
		e.store = nil
	}
	if e.audit != nil {
		e.audit.Close()
		e.audit = nil
	}
}

// openStore opens the bolt store and loads its world. An empty store is
// seeded from the configured world file.
func (e *env) openStore() (*boltstore.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	store, err := boltstore.Open(e.cfg.BoltPath)
	if err != nil {
		return nil, err
	}
	if store.HasData() {
		if err := store.LoadAll(); err != nil {
			store.Close()
			return nil, err
		}
	} else {
		if e.cfg.WorldFile == "" {
			store.Close()
			return nil, errors.New("bolt store is empty and no world file is configured; run import first")
		}
		w, err := worldfile.Load(e.cfg.WorldFile)
		if err != nil {
			store.Close()
			return nil, err
		}
		if err := store.ImportWorld(w); err != nil {
			store.Close()
			return nil, err
		}
	}
	e.store = store
	return store, nil
}

func (e *env) openAudit() (*audit.Store, error) {
	if e.audit != nil {
		return e.audit, nil
	}
	if e.cfg.AuditDB == "" {
		return nil, nil
	}
	a, err := audit.Open(e.cfg.AuditDB, 0)
	if err != nil {
		return nil, err
	}
	e.audit = a
	return a, nil
}

// service builds an admin service over the stored world for CLI use.
func (e *env) service(extra ...admin.Option) (*admin.Service, *boltstore.Store, error) {
	store, err := e.openStore()
	if err != nil {
		return nil, nil, err
	}
	opts := []admin.Option{
		admin.WithLogger(e.log),
		admin.WithActor(world.PlayerID(e.cfg.Actor)),
	}
	a, err := e.openAudit()
	if err != nil {
		return nil, nil, err
	}
	if a != nil {
		opts = append(opts, admin.WithAudit(a))
	}
	return admin.New(store.World(), append(opts, extra...)...), store, nil
}

// parseID parses a positive entity id argument.
func parseID(args []string, what string) (world.EntityID, error) {
	if len(args) < 1 {
		return world.NoEntity, fmt.Errorf("missing %s id", what)
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || n <= 0 {
		return world.NoEntity, fmt.Errorf("invalid %s id %q", what, args[0])
	}
	return world.EntityID(n), nil
}

// Package config loads the gridadmin YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/gridadmin/pkg/attach"
)

// Conf holds every setting the CLI and the HTTP server read.
type Conf struct {
	// --- Data ---
	WorldFile  string `yaml:"world_file"`  // YAML world description to import
	BoltPath   string `yaml:"bolt_path"`   // bbolt snapshot of the world
	AuditDB    string `yaml:"audit_db"`    // SQLite admin action log
	WatchWorld bool   `yaml:"watch_world"` // Reload world_file on change while serving

	// --- Behavior ---
	Multiplayer bool   `yaml:"multiplayer"`  // Route power changes through the sync bus
	DefaultMode string `yaml:"default_mode"` // "all" or "static"
	Actor       int64  `yaml:"actor"`        // Player id recorded for CLI actions

	// --- Logging ---
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// --- Archive ---
	ArchiveDir      string `yaml:"archive_dir"`      // default "backups"
	ArchiveInterval int    `yaml:"archive_interval"` // Auto-archive interval in minutes while serving, 0 = disabled
	ArchiveRetain   int    `yaml:"archive_retain"`   // Keep last N archives, 0 = unlimited

	// --- Web ---
	ListenAddr    string   `yaml:"listen_addr"`     // HTTP API, /metrics and /ws
	CORSOrigins   []string `yaml:"cors_origins"`    // Allowed websocket/CORS origins
	RateLimit     int      `yaml:"rate_limit"`      // Requests per minute per IP (default 120)
	JWTSecret     string   `yaml:"jwt_secret"`      // Signing secret (generated if empty)
	JWTExpiry     int      `yaml:"jwt_expiry"`      // Token lifetime in seconds (default 86400)
	AdminPassHash string   `yaml:"admin_pass_hash"` // bcrypt hash checked by /api/v1/auth/login

	path string
}

// Default returns a Conf with the built-in defaults.
func Default() *Conf {
	return &Conf{
		BoltPath:    "gridadmin.bolt",
		AuditDB:     "audit.db",
		DefaultMode: attach.All.String(),
		LogLevel:    "info",
		ArchiveDir:  "backups",
		ListenAddr:  ":8480",
		RateLimit:   120,
		JWTExpiry:   86400,
	}
}

// Load reads a YAML config over the defaults. Relative file paths are
// resolved against the directory holding the config.
func Load(path string) (*Conf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parsing YAML %s: %w", path, err)
	}
	c.path = path

	baseDir := filepath.Dir(path)
	for _, p := range []*string{&c.WorldFile, &c.BoltPath, &c.AuditDB, &c.ArchiveDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the file the config was loaded from, if any.
func (c *Conf) Path() string { return c.path }

// Mode parses DefaultMode.
func (c *Conf) Mode() attach.Mode {
	m, err := attach.ParseMode(c.DefaultMode)
	if err != nil {
		return attach.All
	}
	return m
}

// Validate rejects settings that cannot work.
func (c *Conf) Validate() error {
	if _, err := attach.ParseMode(c.DefaultMode); err != nil {
		return fmt.Errorf("config: default_mode: %w", err)
	}
	if c.ArchiveInterval < 0 {
		return fmt.Errorf("config: archive_interval must be >= 0, got %d", c.ArchiveInterval)
	}
	if c.ArchiveRetain < 0 {
		return fmt.Errorf("config: archive_retain must be >= 0, got %d", c.ArchiveRetain)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: rate_limit must be >= 0, got %d", c.RateLimit)
	}
	if c.JWTExpiry < 0 {
		return fmt.Errorf("config: jwt_expiry must be >= 0, got %d", c.JWTExpiry)
	}
	return nil
}

// Environment variables read by ApplyEnv.
const (
	EnvWorld         = "GRIDADMIN_WORLD"
	EnvBolt          = "GRIDADMIN_BOLT"
	EnvAuditDB       = "GRIDADMIN_AUDIT_DB"
	EnvMultiplayer   = "GRIDADMIN_MULTIPLAYER"
	EnvMode          = "GRIDADMIN_MODE"
	EnvActor         = "GRIDADMIN_ACTOR"
	EnvListen        = "GRIDADMIN_LISTEN"
	EnvArchiveDir    = "GRIDADMIN_ARCHIVE_DIR"
	EnvArchiveRetain = "GRIDADMIN_ARCHIVE_RETAIN"
	EnvArchiveEvery  = "GRIDADMIN_ARCHIVE_INTERVAL"
	EnvJWTSecret     = "GRIDADMIN_JWT_SECRET"
	EnvAdminPassHash = "GRIDADMIN_ADMIN_PASS_HASH"
	EnvCORSOrigins   = "GRIDADMIN_CORS_ORIGINS"
)

// ApplyEnv overlays GRIDADMIN_* variables onto c. Unparseable numeric and
// boolean values are ignored.
func (c *Conf) ApplyEnv() {
	setString := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	setString(EnvWorld, &c.WorldFile)
	setString(EnvBolt, &c.BoltPath)
	setString(EnvAuditDB, &c.AuditDB)
	setString(EnvMode, &c.DefaultMode)
	setString(EnvListen, &c.ListenAddr)
	setString(EnvArchiveDir, &c.ArchiveDir)
	setString(EnvJWTSecret, &c.JWTSecret)
	setString(EnvAdminPassHash, &c.AdminPassHash)

	if v := os.Getenv(EnvMultiplayer); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Multiplayer = b
		}
	}
	if v := os.Getenv(EnvActor); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Actor = n
		}
	}
	if v := os.Getenv(EnvArchiveRetain); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.ArchiveRetain = n
		}
	}
	if v := os.Getenv(EnvArchiveEvery); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.ArchiveInterval = n
		}
	}
	if v := os.Getenv(EnvCORSOrigins); v != "" {
		c.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	}
}

// Package config reads sqlight settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/ncruces/go-sqlite3"
	"github.com/tetratelabs/wazero"

	"github.com/tomyedwab/sqlight/storage"
)

const (
	EnvListen            = "SQLIGHT_LISTEN"
	EnvPoolDir           = "SQLIGHT_POOL_DIR"
	EnvPoolCapacity      = "SQLIGHT_POOL_CAPACITY"
	EnvAuditDB           = "SQLIGHT_AUDIT_DB"
	EnvJWTSecretPath     = "SQLIGHT_JWT_SECRET_PATH"
	EnvSingleSession     = "SQLIGHT_SINGLE_SESSION"
	EnvMemoryLimitPages  = "SQLIGHT_MEMORY_LIMIT_PAGES"
	EnvLogLevel          = "SQLIGHT_LOG_LEVEL"
	EnvEnableCrossOrigin = "ENABLE_CROSS_ORIGIN"

	DefaultListen = ":8080"
)

type Config struct {
	Listen       string
	PoolDir      string
	PoolCapacity int
	// AuditDB is the path of the audit database. Auditing is off when
	// empty.
	AuditDB string
	// JWTSecretPath enables token auth on the websocket endpoint.
	JWTSecretPath     string
	SingleSession     bool
	MemoryLimitPages  uint32
	LogLevel          slog.Level
	EnableCrossOrigin bool
}

// Load reads the configuration from the environment after loading
// envFiles, or ./.env when none are given. Missing files are skipped;
// variables already set in the environment take precedence.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	c := Config{
		Listen:            getenv(EnvListen, DefaultListen),
		PoolDir:           getenv(EnvPoolDir, storage.DefaultPoolDir),
		PoolCapacity:      storage.DefaultInitialCapacity,
		AuditDB:           os.Getenv(EnvAuditDB),
		JWTSecretPath:     os.Getenv(EnvJWTSecretPath),
		EnableCrossOrigin: os.Getenv(EnvEnableCrossOrigin) != "",
	}

	var err error
	if v := os.Getenv(EnvPoolCapacity); v != "" {
		if c.PoolCapacity, err = strconv.Atoi(v); err != nil || c.PoolCapacity <= 0 {
			return Config{}, fmt.Errorf("invalid %s %q", EnvPoolCapacity, v)
		}
	}
	if v := os.Getenv(EnvSingleSession); v != "" {
		if c.SingleSession, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", EnvSingleSession, v, err)
		}
	}
	if v := os.Getenv(EnvMemoryLimitPages); v != "" {
		pages, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", EnvMemoryLimitPages, v, err)
		}
		c.MemoryLimitPages = uint32(pages)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		if err := c.LogLevel.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", EnvLogLevel, v, err)
		}
	}
	return c, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Logger returns a JSON logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}

// ApplyRuntime configures the WebAssembly runtime SQLite runs in. It must
// be called before the first database is opened.
func (c Config) ApplyRuntime() {
	if c.MemoryLimitPages == 0 {
		return
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithMemoryLimitPages(c.MemoryLimitPages)
}

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tomyedwab/sqlight/audit"
	"github.com/tomyedwab/sqlight/config"
	"github.com/tomyedwab/sqlight/storage"
	"github.com/tomyedwab/sqlight/worker"
	"github.com/tomyedwab/sqlight/worker/host"
)

type cmdGlobal struct {
	config config.Config
	logger *slog.Logger

	flagEnvFile      string
	flagPoolDir      string
	flagPoolCapacity int
	flagAuditDB      string
	flagLogLevel     string
}

func main() {
	app := &cobra.Command{}
	app.Use = "sqlight"
	app.Short = "Step-through SQLite worker"
	app.Long = `Description:
  Step-through SQLite worker

  Runs SQL scripts statement by statement, or row by row, against databases
  kept in memory or in a persistent storage pool. The worker can be driven
  over a websocket, over standard input and output, or from the command line.
`
	app.SilenceUsage = true
	app.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}

	// Global flags.
	globalCmd := cmdGlobal{}
	app.PersistentFlags().StringVar(&globalCmd.flagEnvFile, "env-file", ".env", "Environment file to load")
	app.PersistentFlags().StringVar(&globalCmd.flagPoolDir, "pool-dir", "", "Directory of the persistent storage pool")
	app.PersistentFlags().IntVar(&globalCmd.flagPoolCapacity, "pool-capacity", 0, "Initial number of slots in the storage pool")
	app.PersistentFlags().StringVar(&globalCmd.flagAuditDB, "audit-db", "", "Record handled requests in this database")
	app.PersistentFlags().StringVar(&globalCmd.flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	app.PersistentPreRunE = globalCmd.PreRun

	serveCmd := cmdServe{global: &globalCmd}
	app.AddCommand(serveCmd.Command())

	stdioCmd := cmdStdio{global: &globalCmd}
	app.AddCommand(stdioCmd.Command())

	runCmd := cmdRun{global: &globalCmd}
	app.AddCommand(runCmd.Command())

	poolCmd := cmdPool{global: &globalCmd}
	app.AddCommand(poolCmd.Command())

	tokenCmd := cmdToken{global: &globalCmd}
	app.AddCommand(tokenCmd.Command())

	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}

// PreRun loads the configuration, lets flags override it and installs the
// default logger. Logs go to stderr so stdout stays free for protocol and
// command output.
func (c *cmdGlobal) PreRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.flagEnvFile)
	if err != nil {
		return err
	}
	if c.flagPoolDir != "" {
		cfg.PoolDir = c.flagPoolDir
	}
	if c.flagPoolCapacity > 0 {
		cfg.PoolCapacity = c.flagPoolCapacity
	}
	if c.flagAuditDB != "" {
		cfg.AuditDB = c.flagAuditDB
	}
	if c.flagLogLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(c.flagLogLevel)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", c.flagLogLevel, err)
		}
	}
	c.config = cfg
	c.logger = cfg.Logger(os.Stderr)
	slog.SetDefault(c.logger)
	cfg.ApplyRuntime()
	return nil
}

func (c *cmdGlobal) newStorage() *storage.Manager {
	return storage.NewManager(storage.Config{
		PoolFs:              afero.NewOsFs(),
		PoolDir:             c.config.PoolDir,
		PoolInitialCapacity: c.config.PoolCapacity,
		Logger:              c.logger,
	})
}

// newHost builds a host over a fresh worker. The returned function releases
// everything it opened.
func (c *cmdGlobal) newHost() (*host.Host, func(), error) {
	store := c.newStorage()
	w := worker.New(worker.Config{
		Storage:       store,
		SingleSession: c.config.SingleSession,
		Logger:        c.logger,
	})
	cleanup := func() {
		if err := w.Shutdown(); err != nil {
			c.logger.Warn("Failed to close sessions", "error", err)
		}
		if err := store.Close(); err != nil {
			c.logger.Warn("Failed to close storage", "error", err)
		}
	}

	hostConfig := host.Config{Worker: w, Logger: c.logger}
	if c.config.AuditDB != "" {
		db, err := sqlx.Connect("sqlite3", c.config.AuditDB)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		auditLogger, err := audit.NewLogger(db)
		if err != nil {
			db.Close()
			cleanup()
			return nil, nil, fmt.Errorf("failed to initialize audit database: %w", err)
		}
		hostConfig.Audit = auditLogger
		closeStorage := cleanup
		cleanup = func() {
			closeStorage()
			db.Close()
		}
	}
	return host.New(hostConfig), cleanup, nil
}

// verumd serves the Verum HTTP API: evidence analysis, integrity sealing,
// verification and chain-of-custody ledger queries.
//
// The configuration file is watched and analyzer thresholds, fusion
// weights and the seal algorithm version are applied without a restart.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"verum/internal/api"
	"verum/internal/config"
	"verum/internal/ledger"
	"verum/internal/logging"
	"verum/internal/metrics"
	"verum/internal/security"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "verumd: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("verumd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file (default: auto-detect)")
	addr := fs.String("addr", "", "listen address (overrides server.addr)")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintf(stderr, "verumd %s\n", Version)
		return nil
	}

	path := *configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	lc, err := cfg.Logging.LoggerConfig("verumd")
	if err != nil {
		return err
	}
	if lc.Output == "stderr" {
		lc.Writer = stderr
	}
	logger, err := logging.New(lc)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	state, err := security.Harden()
	if err != nil {
		logger.Warn("process hardening incomplete", "error", err)
	}
	for _, w := range state.Warnings {
		logger.Warn("security", "warning", w)
	}

	lock, err := security.AcquireLock(filepath.Join(config.DataDir(), "verumd.lock"))
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	defer lock.Release()

	var audit *logging.AuditLogger
	if ac := cfg.Logging.AuditConfig("verumd"); ac != nil {
		if audit, err = logging.NewAuditLogger(ac); err != nil {
			return err
		}
		defer audit.Close()
	}

	m := metrics.New()
	var l *ledger.Ledger
	if cfg.Ledger.Enabled {
		if l, err = openLedger(ctx, cfg, m, logger); err != nil {
			return err
		}
		defer l.Close()
	}

	api.Version = Version
	srv := api.NewServer(cfg, api.Deps{Logger: logger, Metrics: m, Ledger: l, Audit: audit})
	defer srv.Close()

	if path != "" {
		watchConfig(ctx, loader, srv, audit, logger)
	}

	_ = audit.LogStartup(ctx, Version, cfg.Server.Addr)
	logger.Info("verumd starting", "version", Version, "addr", cfg.Server.Addr, "config", path, "ledger", cfg.Ledger.Enabled)

	err = srv.Serve(ctx, srv.HTTPServer(cfg))

	reason := "signal"
	if err != nil {
		reason = err.Error()
	}
	_ = audit.LogShutdown(context.Background(), reason)
	logger.Info("verumd stopped", "reason", reason)
	return err
}

// openLedger opens the custody ledger, generating its master key on first
// run. A ledger failing verification keeps serving reads and refuses
// appends.
func openLedger(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) (*ledger.Ledger, error) {
	key, created, err := security.LoadOrCreateKey(cfg.Ledger.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("ledger key: %w", err)
	}
	defer security.Wipe(key)
	if created {
		logger.Info("generated ledger key", "path", cfg.Ledger.KeyPath)
	}

	l, err := ledger.Open(ctx, cfg.Ledger.Path, key, ledger.WithMetrics(m))
	if errors.Is(err, ledger.ErrIntegrity) {
		logger.Error("ledger integrity check failed; appends disabled", "error", err)
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return l, nil
}

// watchConfig applies configuration changes to srv and records them in
// the custody log.
func watchConfig(ctx context.Context, loader *config.Loader, srv *api.Server, audit *logging.AuditLogger, logger *logging.Logger) {
	loader.OnChange(func(_, cfg *config.Config) {
		srv.Reload(cfg)
		_ = audit.LogConfigChange(ctx, loader.Path(), nil)
		logger.Info("configuration reloaded", "path", loader.Path())
	})
	if err := loader.Watch(ctx); err != nil {
		logger.Warn("config watch disabled", "error", err)
		return
	}

	go func() {
		for {
			select {
			case <-loader.Done():
				return
			case err := <-loader.Errors():
				_ = audit.LogConfigChange(ctx, loader.Path(), err)
				logger.Warn("configuration reload rejected", "error", err)
			}
		}
	}()
}

// claude-relay serves Claude Code queries over WebSocket and REST.
//
// Usage:
//
//	claude-relay [flags]
//
// Every flag defaults to its environment variable: PORT, MAX_RUNS,
// OPTIONS_FILE, CLAUDE_CLI_PATH, LOG_LEVEL.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/chemistrywow31/claudecode"
	"github.com/chemistrywow31/claudecode/internal/logging"
	"github.com/chemistrywow31/claudecode/internal/relay"
	"github.com/chemistrywow31/claudecode/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

// Config holds server configuration, loaded from environment variables and
// then flags.
type Config struct {
	Port        int
	MaxRuns     int
	OptionsFile string
	CLIPath     string
	LogLevel    string
}

func loadConfig() Config {
	cfg := Config{
		Port:     8420,
		MaxRuns:  4,
		LogLevel: "info",
	}

	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("MAX_RUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRuns = n
		}
	}
	if v := os.Getenv("OPTIONS_FILE"); v != "" {
		cfg.OptionsFile = v
	}
	if v := os.Getenv("CLAUDE_CLI_PATH"); v != "" {
		cfg.CLIPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}

// parseFlags overrides cfg with any flags given in args.
func parseFlags(cfg Config, args []string) (Config, error) {
	flagSet := pflag.NewFlagSet("claude-relay", pflag.ContinueOnError)
	flagSet.IntVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP listen port (PORT)")
	flagSet.IntVar(&cfg.MaxRuns, "max-runs", cfg.MaxRuns, "maximum concurrent queries (MAX_RUNS)")
	flagSet.StringVar(&cfg.OptionsFile, "options-file", cfg.OptionsFile, "YAML or JSONC default options, reloaded on change (OPTIONS_FILE)")
	flagSet.StringVar(&cfg.CLIPath, "cli-path", cfg.CLIPath, "Claude Code executable (CLAUDE_CLI_PATH)")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error (LOG_LEVEL)")

	if err := flagSet.Parse(args); err != nil {
		return cfg, err
	}
	if flagSet.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	if cfg.MaxRuns < 1 {
		return cfg, fmt.Errorf("--max-runs must be at least 1, got %d", cfg.MaxRuns)
	}
	return cfg, nil
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := parseFlags(loadConfig(), os.Args[1:])
	if err != nil {
		return err
	}

	logger, err := logging.NewStderr(cfg.LogLevel)
	if err != nil {
		return err
	}

	client := claudecode.NewClient(claudecode.Config{
		CLIPath: cfg.CLIPath,
		Logger:  logger,
	})
	runs := relay.NewRegistry(client, cfg.MaxRuns, logger)
	srv := relay.New(runs, logger)

	var optionsWatch *watcher.Watcher
	if cfg.OptionsFile != "" {
		optionsWatch = watcher.New(srv.OnOptionsReload, logger)
		if err := optionsWatch.Watch(cfg.OptionsFile); err != nil {
			return fmt.Errorf("watching options file: %w", err)
		}
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Handler(),
	}

	// Graceful shutdown on signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("claude-relay listening", "addr", httpServer.Addr, "max_runs", cfg.MaxRuns)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if optionsWatch != nil {
		optionsWatch.Shutdown()
	}
	if err := runs.Shutdown(shutdownCtx); err != nil {
		logger.Warn("runs still active at shutdown", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		httpServer.Close()
	}
	return nil
}

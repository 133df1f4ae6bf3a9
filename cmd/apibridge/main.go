package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/apifoundry/apibridge/internal/common"
	"github.com/apifoundry/apibridge/internal/config"
	"github.com/apifoundry/apibridge/internal/enrich"
	"github.com/apifoundry/apibridge/internal/mcp"
	"github.com/apifoundry/apibridge/internal/registry"
)

var (
	configFile     = flag.String("config", "", "Configuration file path")
	definitionsDir = flag.String("definitions", "", "Definitions directory (overrides config)")
	cacheDir       = flag.String("cache", "", "Catalog cache directory (overrides config)")
	forceRegen     = flag.Bool("force", false, "Ignore cached catalogs and recompile")
	stdio          = flag.Bool("stdio", false, "Serve MCP over stdin/stdout instead of HTTP")
	showVersion    = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("apibridge version %s\n", config.GetFullVersion())
		os.Exit(0)
	}

	// Auto-discover the config file when not specified (first match wins).
	path := *configFile
	if path == "" {
		for _, candidate := range configSearchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	config.ApplyFlagOverrides(cfg, *definitionsDir, *cacheDir)
	if *forceRegen {
		cfg.Cache.Force = true
	}

	logger := setupLogger(cfg)

	logger.Info().
		Str("definitions", cfg.Definitions.Dir).
		Str("cache", cfg.Cache.Dir).
		Str("config_file", path).
		Msg("configuration loaded")

	store := enrich.NewStore(cfg.Cache.Dir, logger)
	enricher := enrich.NewEnricher(store, cfg.Cache.Force, logger)

	reg := registry.NewRegistry(registry.Options{
		Dir:                cfg.Definitions.Dir,
		Timeout:            time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		MaxResponseBytes:   int64(cfg.HTTP.MaxResponseMB) * 1024 * 1024,
		DefaultCredentials: cfg.Credentials.Map(),
	}, enricher, logger)

	handler := mcp.NewHandler(cfg, reg, logger)

	if *stdio {
		// Stdio transport for local protocol clients; logs go to file/stderr
		// so stdout stays clean for the protocol stream.
		if err := handler.ServeStdio(); err != nil {
			logger.Error().Str("error", err.Error()).Msg("stdio server failed")
			os.Exit(1)
		}
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		logger.Info().
			Str("url", fmt.Sprintf("http://localhost:%d/mcp", cfg.Server.Port)).
			Msg("server ready")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Str("error", err.Error()).Msg("server failed")
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, reloading definitions")
			handler.ReloadTools()
			continue
		}
		logger.Info().Msg("shutdown signal received")
		break
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Str("error", err.Error()).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
}

// configSearchPaths returns TOML files to auto-discover (first match wins).
// Binary-relative paths are tried first so the config is found even when the
// working directory differs from the binary location.
func configSearchPaths() []string {
	candidates := []string{
		"apibridge.toml",
		"config/apibridge.toml",
	}

	exe, err := os.Executable()
	if err != nil {
		return candidates
	}
	binDir := filepath.Dir(exe)

	paths := []string{
		filepath.Join(binDir, "apibridge.toml"),
		filepath.Join(binDir, "config", "apibridge.toml"),
	}
	return append(paths, candidates...)
}

// setupLogger creates an arbor logger based on config.
func setupLogger(cfg *config.Config) *common.Logger {
	return common.NewLoggerFromConfig(cfg.Logging)
}

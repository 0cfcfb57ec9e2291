package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/veilproject/veil/internal/cache"
	"github.com/veilproject/veil/internal/config"
	"github.com/veilproject/veil/internal/detect"
	"github.com/veilproject/veil/internal/engine"
	"github.com/veilproject/veil/internal/fake"
	"github.com/veilproject/veil/internal/logger"
	"github.com/veilproject/veil/internal/server"
	"github.com/veilproject/veil/internal/vault"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "anonymize":
		runAnonymize(os.Args[2:])
	case "deanonymize":
		runDeanonymize(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "version", "-version", "--version":
		fmt.Printf("veil %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`veil - reversible text anonymizer

Usage:
  veil anonymize [-config file] [-output dir] [-name base] <file-or-text>
  veil deanonymize [-config file] [-output dir] <anonymized-file>
  veil serve [-config file]
  veil version

Commands:
  anonymize    Replace sensitive values in a file or literal text with
               realistic fakes and store the reversal mapping
  deanonymize  Restore the original text from an anonymized file and
               destroy the mapping
  serve        Run the HTTP API
`)
}

// bootstrap loads configuration and builds the shared components every
// command needs.
func bootstrap(configPath string) (*config.Config, *logger.Logger, *engine.Engine, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File: &logger.FileConfig{
			Enabled:  cfg.Logging.File.Enabled,
			Path:     cfg.Logging.File.Path,
			MaxSize:  cfg.Logging.File.MaxSize,
			MaxAge:   cfg.Logging.File.MaxAge,
			Compress: cfg.Logging.File.Compress,
		},
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	detector, err := detect.New(cfg.Detection, log.WithComponent("detect"))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to initialize detector: %w", err)
	}

	generator := fake.New(cfg.Generation, log.WithComponent("fake"))

	var store vault.Store
	var closeStore func() error
	switch cfg.Storage.Backend {
	case "postgres":
		sqlStore, err := vault.NewSQLStore(cfg.Storage.Postgres, log.WithComponent("vault"))
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to initialize mapping store: %w", err)
		}
		store = sqlStore
		closeStore = sqlStore.Close
	default:
		store = vault.NewFileStore(log.WithComponent("vault"))
	}

	var opts []engine.Option
	var closeCache func() error
	if cfg.Cache.Enabled {
		resultCache, err := cache.New(cfg.Cache, log.WithComponent("cache"))
		if err != nil {
			log.Warn("Detection cache unavailable, continuing without it", zap.Error(err))
		} else {
			opts = append(opts, engine.WithCache(resultCache))
			closeCache = resultCache.Close
		}
	}

	eng := engine.New(detector, generator, store, log.WithComponent("engine"), opts...)

	cleanup := func() {
		if closeCache != nil {
			closeCache()
		}
		if closeStore != nil {
			closeStore()
		}
		detector.Close()
		log.Sync()
	}

	return cfg, log, eng, cleanup, nil
}

func runAnonymize(args []string) {
	fs := flag.NewFlagSet("anonymize", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	outputDir := fs.String("output", "", "output directory (defaults to server.output_dir)")
	baseName := fs.String("name", "", "base name for output files (defaults to the input file name)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "anonymize: a file path or literal text argument is required")
		os.Exit(1)
	}

	cfg, log, eng, cleanup, err := bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "veil: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	dir := *outputDir
	if dir == "" {
		dir = cfg.Server.OutputDir
	}

	result, err := eng.Anonymize(context.Background(), fs.Arg(0), dir, *baseName)
	if err != nil {
		log.Error("Anonymization failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "veil: %v\n", err)
		cleanup()
		os.Exit(1)
	}

	fmt.Printf("Anonymized file: %s\n", result.AnonymizedPath)
	fmt.Printf("Mapping file:    %s\n", result.MappingPath)
	fmt.Printf("Entities:        %d\n", len(result.Resolutions))
}

func runDeanonymize(args []string) {
	fs := flag.NewFlagSet("deanonymize", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	outputDir := fs.String("output", "", "directory for the restored file (defaults to the session directory)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "deanonymize: an anonymized file path argument is required")
		os.Exit(1)
	}

	_, log, eng, cleanup, err := bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "veil: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	restoredPath, err := eng.Deanonymize(context.Background(), fs.Arg(0), *outputDir)
	if err != nil {
		log.Error("De-anonymization failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "veil: %v\n", err)
		cleanup()
		os.Exit(1)
	}

	fmt.Printf("Restored file: %s\n", restoredPath)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	fs.Parse(args)

	cfg, log, eng, cleanup, err := bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "veil: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	log.Info("Starting veil",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	srv := server.New(cfg, eng, log)

	// Watch for configuration changes
	if err := config.Watch(cfg, func(newConfig *config.Config) {
		log.Info("Configuration reloaded",
			zap.String("log_level", newConfig.Logging.Level),
		)
	}); err != nil {
		log.Warn("Failed to watch configuration file", zap.Error(err))
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

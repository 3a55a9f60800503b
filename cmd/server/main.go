/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the CloudIA quota verification server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize the SQLite ledger
  3. Load the farmer register (if a path is configured)
  4. Create the API handler and router
  5. Start the server with graceful shutdown

COMMAND-LINE FLAGS (env var override in parentheses):
  -port       HTTP server port (PORT, default 8080)
  -db         SQLite ledger path (QUOTA_DB, default quota.db)
              Use ":memory:" for an in-memory database
  -artifacts  Directory for approval documents (ARTIFACT_DIR)
  -register   Farmer register file, .xlsx or .csv (FARMER_REGISTER)
  -dev        Development logging (human-readable)

ENVIRONMENT ONLY:
  ADMIN_SECRET          Gates the admin read view and wipe
  ADMIN_CONFIRM_SECRET  Second, independent secret for the wipe
  Both are placeholder authorization, not a security boundary.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the ledger
  4. Exit
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cloudia/quota-engine/adapter"
	"github.com/cloudia/quota-engine/api"
	"github.com/cloudia/quota-engine/quota"
	"github.com/cloudia/quota-engine/store/sqlite"
)

func main() {
	// .env is optional; flags and real env vars win.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envOr("QUOTA_DB", "quota.db"), "SQLite ledger path")
	artifactDir := flag.String("artifacts", envOr("ARTIFACT_DIR", "./artifacts"), "approval artifact directory")
	registerPath := flag.String("register", envOr("FARMER_REGISTER", ""), "farmer register file (.xlsx or .csv)")
	dev := flag.Bool("dev", false, "development logging")
	flag.Parse()

	logger, err := newLogger(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := os.MkdirAll(*artifactDir, 0o755); err != nil {
		logger.Fatal("failed to create artifact directory", zap.Error(err))
	}

	// Initialize ledger
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize ledger", zap.Error(err))
	}
	defer store.Close()

	// Load farmer register
	register, err := loadRegister(*registerPath)
	if err != nil {
		logger.Fatal("failed to load farmer register", zap.Error(err))
	}
	if register.Len() == 0 {
		logger.Warn("farmer register is empty; every delivery will be flagged unknown")
	} else {
		logger.Info("farmer register loaded", zap.Int("farmers", register.Len()))
	}

	handler := api.NewHandler(store, register, api.Config{
		ArtifactDir:  *artifactDir,
		AdminSecret:  os.Getenv("ADMIN_SECRET"),
		AdminConfirm: os.Getenv("ADMIN_CONFIRM_SECRET"),
	}, logger)

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.Int("port", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadRegister reads the farmer register from path. An empty path
// yields an empty register; farmers can be loaded later over the API.
func loadRegister(path string) (*quota.Register, error) {
	if path == "" {
		return quota.NewRegister(nil), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	table, err := adapter.ReadTable(f, path)
	if err != nil {
		return nil, err
	}
	records, err := adapter.ParseFarmers(table)
	if err != nil {
		return nil, err
	}
	return quota.NewRegister(records), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

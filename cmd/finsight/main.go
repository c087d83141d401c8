// Package main is the entry point for the FinSight application.
// FinSight is a versioned streaming document-editing engine for
// AI-generated financial reports.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/finsight/finsight/consts"
	"github.com/finsight/finsight/internal/check"
	"github.com/finsight/finsight/internal/config"
	"github.com/finsight/finsight/internal/contextbudget"
	"github.com/finsight/finsight/internal/database"
	"github.com/finsight/finsight/internal/editlock"
	"github.com/finsight/finsight/internal/editor"
	"github.com/finsight/finsight/internal/generator"
	"github.com/finsight/finsight/internal/retention"
	"github.com/finsight/finsight/internal/server"
	"github.com/finsight/finsight/internal/store"
	"github.com/finsight/finsight/pkg/logger"
	"github.com/finsight/finsight/pkg/telemetry"

	// Import generator implementations to register them
	_ "github.com/finsight/finsight/internal/generator/mock"
)

// Build information - set via ldflags during build
// These variables are linked to consts package for global access
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// init synchronizes build info to consts package for global access
func init() {
	consts.Version = Version
	consts.BuildTime = BuildTime
	consts.GitCommit = GitCommit
}

// configPath holds the path to the configuration file
var configPath string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "finsight",
	Short: "FinSight - Streaming Report Editing Engine",
	Long: `FinSight is a versioned document-editing service for AI-generated
financial reports. It streams prompt-driven edits over SSE, keeps full
version history for every section and report, and enforces exclusive
edit locks so concurrent edits never corrupt a document.`,
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FinSight server",
	Long: `Start the HTTP server to handle report and editing API requests.

On first run, use --check flag to interactively set up your environment:
  finsight serve --check

This will guide you through:
  - Creating the configuration file from a template
  - Validating configuration formats

After initial setup, simply run:
  finsight serve`,
	Run: runServe,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("FinSight %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
	},
}

func init() {
	// Disable auto-generated completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: config/config.yaml)")

	// Add commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	// Serve command flags
	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().Int("port", 0, "server port (overrides config)")
	serveCmd.Flags().Bool("debug", false, "enable debug mode")
	serveCmd.Flags().Bool("check", false, "run interactive environment check before starting server")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runServe starts the FinSight server
func runServe(cmd *cobra.Command, args []string) {
	// Check if interactive check is enabled via --check flag
	interactiveCheck, _ := cmd.Flags().GetBool("check")

	checker := check.NewChecker()
	if interactiveCheck {
		// Run full interactive environment check
		if err := checker.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Environment check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\n✓ Environment check completed successfully")
	} else {
		// Run non-interactive basic check
		result := checker.RunNonInteractive()

		if !result.Success {
			check.PrintCheckResult(result)
			os.Exit(1)
		}

		// Print warnings if any (but don't block startup)
		if len(result.Warnings) > 0 {
			for _, warn := range result.Warnings {
				fmt.Fprintf(os.Stderr, "[WARNING] %s\n", warn)
			}
			fmt.Fprintln(os.Stderr)
		}
	}

	// Record server start time
	consts.SetStartedAt(time.Now())

	// Load configuration
	if configPath == "" {
		configPath = checker.ConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override config with command line flags
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting FinSight",
		zap.String("version", Version),
	)

	// Initialize telemetry (OpenTelemetry traces and metrics)
	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown telemetry", zap.Error(err))
		}
	}()

	// Initialize database
	if err := database.Init(); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	// Create store instance for dependency injection
	dataStore := store.NewStore(database.Get())

	// Create generation backend
	gen, err := generator.Create(cfg.Generator.Backend)
	if err != nil {
		logger.Fatal("Failed to create generator backend",
			zap.String("backend", cfg.Generator.Backend),
			zap.Error(err))
	}

	// Create edit lock registry
	editorCfg := cfg.Editor.ToEditorConfig()
	locks := editlock.NewRegistry(editlock.Config{
		TTL:           editorCfg.LockTTL,
		SweepInterval: editorCfg.LockSweepInterval,
	})
	defer locks.Close()

	// Create editor service and context budget manager
	editorService := editor.NewService(dataStore, locks, gen, editorCfg)
	budgetManager := contextbudget.NewManager(dataStore, gen, cfg.Context)

	// Start retention sweeps if enabled
	if cfg.Retention.Enabled {
		retentionService := retention.NewService(dataStore, cfg.Retention.Schedule, cfg.Retention.Days)
		if err := retentionService.Start(); err != nil {
			logger.Warn("Failed to start retention service", zap.Error(err))
		} else {
			defer retentionService.Stop()
		}
	}

	// Create and configure server
	srv := server.New(cfg, dataStore, editorService, budgetManager)
	srv.SetupRoutes()

	// Start server
	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	logger.Info("FinSight server is running",
		zap.String("address", cfg.Server.Address()),
	)

	// Wait for shutdown
	srv.WaitForShutdown()

	logger.Info("FinSight stopped")
}

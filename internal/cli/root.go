package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/keeper/internal/control"
	"github.com/vietddude/keeper/internal/core/config"
	"github.com/vietddude/stylelog"
)

var (
	cfgPath  string
	isDebug  bool
	strategy string
)

var rootCmd = &cobra.Command{
	Use:   "keeper",
	Short: "Keeper resilience agent",
	Long:  `Keeper maintains a long-lived messaging gateway session with rate limiting, error recovery and health monitoring.`,
	Run:   runKeeper,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVar(&strategy, "strategy", "", "connection strategy override (session, pairing, qr, multidevice, auto)")
}

func runKeeper(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	// Load Configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	// CLI override wins over the config file
	if strategy != "" {
		cfg.Connection.Strategy = strategy
	}

	// Initialize Keeper
	app, err := control.NewKeeper(*cfg)
	if err != nil {
		slog.Error("Failed to initialize Keeper", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start Keeper", "error", err)
		os.Exit(1)
	}

	slog.Info("Keeper started", "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}

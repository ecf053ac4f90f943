package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mosaicrl/replay/internal/config"
	httpserver "github.com/mosaicrl/replay/internal/http"
	"github.com/mosaicrl/replay/internal/service"
	"github.com/mosaicrl/replay/internal/storage"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "replay-server",
	Short: "Experience replay buffer service",
	Long: `Replay server stores experience transitions collected by RL actors
and serves sampled batches to training loops.

It hosts uniform, prioritized and episodic buffers behind a REST API and
can checkpoint any buffer to disk for resume.`,
	RunE: runServer,
}

func init() {
	cfg = config.Default()

	rootCmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	rootCmd.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown timeout")
	rootCmd.Flags().Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "Maximum request body size")
	rootCmd.Flags().StringVar(&cfg.SnapshotDir, "snapshot-dir", cfg.SnapshotDir, "Directory for buffer snapshots (empty keeps them in memory)")
	rootCmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "Base seed for buffer sampling (0 seeds from the clock)")
	rootCmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	// Bind flags to viper for environment variable support
	viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("REPLAY")
	viper.AutomaticEnv()
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var store storage.SnapshotStore
	if cfg.SnapshotDir != "" {
		fileStore, err := storage.NewFileStore(cfg.SnapshotDir)
		if err != nil {
			return err
		}
		store = fileStore
		logger.Info().Str("dir", cfg.SnapshotDir).Msg("persisting snapshots to disk")
	} else {
		store = storage.NewMemoryStore()
		logger.Info().Msg("keeping snapshots in memory")
	}

	svc := service.New(store, logger, seed)
	h := httpserver.NewServer(svc, logger, cfg.MaxBodyBytes)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		logger.Info().Str("addr", cfg.Addr).Int64("seed", seed).Msg("replay server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
		close(done)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	<-done
	logger.Info().Msg("replay server stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

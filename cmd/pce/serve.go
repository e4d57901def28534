package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pce/internal/api"

	"github.com/spf13/cobra"
)

var (
	serveAddr            string
	serveCleanupInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the PCE HTTP API server. Endpoints:

  POST /v1/enhance   enhance a prompt
  POST /v1/feedback  record a detection outcome
  GET  /v1/stats     cache and pattern statistics
  GET  /healthz      liveness check

A background loop periodically removes expired cache entries.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().DurationVar(&serveCleanupInterval, "cleanup-interval", 10*time.Minute,
		"How often expired cache entries are removed")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer p.Close()

	cfg := p.cfg.API
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}

	server := api.NewServer(cfg, p.engine, p.registry, p.cache, p.logger)

	stopCleanup := make(chan struct{})
	if p.cache != nil {
		go cleanupLoop(p, stopCleanup)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		close(stopCleanup)
		return err
	case sig := <-shutdown:
		p.logger.Info("Shutdown signal received", map[string]interface{}{
			"signal": sig.String(),
		})
		close(stopCleanup)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// cleanupLoop deletes expired cache entries on a fixed interval until
// stopped.
func cleanupLoop(p *pipeline, stop <-chan struct{}) {
	ticker := time.NewTicker(serveCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := p.cache.CleanupExpired()
			if err != nil {
				p.logger.Warn("Cache cleanup failed", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			if n > 0 {
				p.logger.Info("Removed expired cache entries", map[string]interface{}{
					"count": n,
				})
			}
		case <-stop:
			return
		}
	}
}

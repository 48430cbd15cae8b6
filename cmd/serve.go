// File: cmd/serve.go
package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/novaact-mcp/internal/engine"
	"github.com/xkilldash9x/novaact-mcp/internal/engine/novaact"
	"github.com/xkilldash9x/novaact-mcp/internal/mcpserver"
	"github.com/xkilldash9x/novaact-mcp/internal/observability"
	"github.com/xkilldash9x/novaact-mcp/internal/session"
)

var serveHeadless bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP tools over stdio.",
	Long: `Starts the MCP server on stdin/stdout. Browser sessions started
through the tools live until ended or reaped by the retention policy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		if cmd.Flags().Changed("headless") {
			cfg.SetBrowserHeadless(serveHeadless)
		}

		var factory engine.Factory
		if cfg.Engine().Model != "" {
			factory = novaact.NewFactory(cfg.Engine(), logger.Named("engine"))
		} else {
			logger.Warn("No planner model configured; session starts will be rejected.")
		}

		registry := session.NewRegistry(logger.Named("registry"))
		controller := session.NewController(cfg, logger.Named("controller"), registry, factory)
		srv := mcpserver.New(cfg, logger.Named("mcp"), controller)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Background reaper for sessions past their retention window.
		gcDone := make(chan struct{})
		go func() {
			defer close(gcDone)
			ticker := time.NewTicker(cfg.Session().GCInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := registry.GarbageCollect(cfg.Session().Retention); n > 0 {
						logger.Info("Reaped stale sessions.", zap.Int("count", n))
					}
				}
			}
		}()

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- srv.ServeStdio()
		}()

		var err error
		select {
		case err = <-serveErr:
		case <-ctx.Done():
			logger.Info("Shutdown signal received.")
		}

		stop()
		<-gcDone

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		registry.CloseAll(shutdownCtx)

		_ = observability.Sync()
		return err
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", true, "run browsers headless")
	rootCmd.AddCommand(serveCmd)
}

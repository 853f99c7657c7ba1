package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/mcp"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/quota"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/server"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/trigger"
)

// quotaIdle is how long a user's limiter survives without requests.
const quotaIdle = time.Hour

var (
	servePort int
	serveMCP  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with SSE streaming, MCP and housekeeping jobs",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP server port")
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", true, "Expose the built-in tools over MCP at /mcp")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withLLM(); err != nil {
		return fmt.Errorf("connecting model provider: %w", err)
	}

	quotas := quota.NewManager(a.cfg.RateLimitRPS)

	scheduler := trigger.NewScheduler()
	if err := scheduler.RegisterRetention(a.cfg.RetentionSchedule, a.memory, a.cfg.MemoryRetentionDays); err != nil {
		return fmt.Errorf("registering retention: %w", err)
	}
	if err := scheduler.RegisterQuotaPrune(quotas, quotaIdle); err != nil {
		return fmt.Errorf("registering quota prune: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	if len(a.cfg.APIKeys) == 0 {
		log.Warn().Msg("HACKSEEKER_API_KEYS not set, all API endpoints will return 401")
	}

	opts := []server.Option{
		server.WithQuota(quotas),
		server.WithCORSOrigins(a.cfg.CORSOrigins),
	}
	if serveMCP {
		reg, err := a.toolRegistry()
		if err != nil {
			return fmt.Errorf("building tool registry: %w", err)
		}
		mcpServer, err := mcp.NewServer(resolvedVersion(), reg, a.chats)
		if err != nil {
			return fmt.Errorf("building MCP server: %w", err)
		}
		opts = append(opts, server.WithMCPServer(mcpServer.Handler()))
	}

	srv := server.NewServer(a.runner, a.chats, a.service, a.memory, a.ledger, a.cfg.APIKeys, opts...)

	addr := fmt.Sprintf(":%d", servePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("model", a.cfg.LLMModel).
		Int("cron_entries", scheduler.Entries()).
		Bool("mcp", serveMCP).
		Msg("hackseeker_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}

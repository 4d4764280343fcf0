package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/subtrack/adapter/api"
	"github.com/felixgeelhaar/subtrack/internal/app"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr      string
	serveProcessor bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the subscription HTTP API.

The outbox processor runs in the same process unless --processor=false is
given or OUTBOX_PROCESSOR_ENABLED is false. Run cmd/worker separately in
that case.

Examples:
  subtrack serve
  subtrack serve --addr 127.0.0.1:8080 --processor=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireApp()
		if err != nil {
			return err
		}

		runProcessor := c.Config.OutboxProcessorEnabled
		if cmd.Flags().Changed("processor") {
			runProcessor = serveProcessor
		}

		server := NewAPIServer(c, serveAddr)
		return serve(cmd.Context(), c, server, runProcessor)
	},
}

// NewAPIServer builds the HTTP server over the container's handlers. An
// empty addr selects the configured HTTP_ADDR.
func NewAPIServer(c *app.Container, addr string) *api.Server {
	cfg := api.DefaultServerConfig()
	cfg.Addr = c.Config.HTTPAddr
	if addr != "" {
		cfg.Addr = addr
	}
	if c.Config.AuthUserHeader != "" {
		cfg.AuthUserHeader = c.Config.AuthUserHeader
	}
	if len(c.Config.CORSAllowedOrigins) > 0 {
		cfg.AllowedOrigins = c.Config.CORSAllowedOrigins
	}

	handler := api.NewSubscriptionHandler(api.SubscriptionHandlerConfig{
		Create:   c.CreateSubscriptionHandler,
		Update:   c.UpdateSubscriptionHandler,
		Cancel:   c.CancelSubscriptionHandler,
		Delete:   c.DeleteSubscriptionHandler,
		Get:      c.GetSubscriptionHandler,
		ListUser: c.ListUserSubscriptionsHandler,
		ListAll:  c.ListAllSubscriptionsHandler,
		Renewals: c.UpcomingRenewalsHandler,
		Logger:   c.Logger,
	})
	return api.NewServer(cfg, handler, c.Health, c.Metrics, c.Logger)
}

func serve(ctx context.Context, c *app.Container, server *api.Server, runProcessor bool) error {
	if runProcessor {
		if err := c.OutboxProcessor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start outbox processor: %w", err)
		}
		defer c.OutboxProcessor.Stop()
	} else {
		Logger().Info("outbox processor disabled in API process")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}
	return <-errCh
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serveProcessor, "processor", true, "run the outbox processor in-process")
	rootCmd.AddCommand(serveCmd)
}

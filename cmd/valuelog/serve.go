package valuelog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/valuelog/pkg/gateway"
	"github.com/edgeflare/valuelog/pkg/httputil"
	"github.com/edgeflare/valuelog/pkg/httputil/middleware"
	"github.com/edgeflare/valuelog/pkg/metrics"
	"github.com/edgeflare/valuelog/pkg/validator"
	"github.com/edgeflare/valuelog/pkg/view"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the validator, the view builder and the HTTP gateway",
	Long: `Replays the commands log to validate commands into events, folds the events
log into the read model, and serves the HTTP API until interrupted`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("transport.driver", "", "log transport (kafka, nats, memory)")
	f.StringSlice("transport.kafka.brokers", nil, "Kafka bootstrap brokers")
	f.StringSlice("transport.nats.servers", nil, "NATS server URLs")
	f.StringP("http.listenAddr", "l", "", "HTTP listen address")
	f.Bool("metrics.enabled", false, "serve Prometheus metrics")
	f.String("metrics.addr", "", "Prometheus metrics listen address")
	f.Bool("topics.create", false, "create missing topics on startup")
}

func runServe(cmd *cobra.Command, _ []string) error {
	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	t, err := openTransport(ctx, cfg.Transport, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.Close(); err != nil {
			logger.Warn("Failed to close transport", zap.Error(err))
		}
	}()

	if cfg.Topics.Create {
		if err := t.EnsureTopics(ctx, cfg.Commands.Topic, cfg.Events.Topic); err != nil {
			return fmt.Errorf("ensure topics: %w", err)
		}
	}

	v := validator.New(t, t, validator.Options{
		CommandsTopic: cfg.Commands.Topic,
		EventsTopic:   cfg.Events.Topic,
		Group:         cfg.Commands.Group,
	}, logger)
	b := view.NewBuilder(t, view.Options{
		EventsTopic: cfg.Events.Topic,
		Group:       cfg.Events.Group,
	}, logger)
	gw := gateway.New(t, b.Store(), gateway.Options{
		CommandsTopic:  cfg.Commands.Topic,
		PublishTimeout: cfg.HTTP.PublishTimeout,
		CORS: &middleware.CORSOptions{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
		},
	}, logger)

	var routerOpts []httputil.RouterOptions
	if cfg.HTTP.TLS.CertFile != "" {
		routerOpts = append(routerOpts, httputil.WithTLS(cfg.HTTP.TLS.CertFile, cfg.HTTP.TLS.KeyFile))
	}
	router := gw.Router(routerOpts...)

	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: cfg.Metrics.Addr, Logger: logger})
	}

	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errChan <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	run("validator", v.Run)
	run("view", b.Run)
	run("gateway", func(context.Context) error {
		if err := router.ListenAndServe(cfg.HTTP.ListenAddr); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received termination signal, shutting down gracefully")
	case runErr = <-errChan:
		logger.Error("Component failed, shutting down", zap.Error(runErr))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("Shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timed out")
	}
	return runErr
}

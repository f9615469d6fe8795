package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vlazic/mcphub/internal/handlers"
	"github.com/vlazic/mcphub/internal/services"
)

const (
	taskRetention  = time.Hour
	watchDebounce  = 500 * time.Millisecond
	shutdownPeriod = 10 * time.Second
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger

	if _, err := a.manager.Reconcile(); err != nil {
		logger.Warn("initial reconcile failed", zap.Error(err))
	}

	tasks := services.NewTaskRunner(ctx, logger, taskRetention)

	if a.settings.WatchClientConfig {
		watcher := services.NewClientConfigWatcher(a.settings.ClientConfigPath, watchDebounce, func() error {
			_, err := a.manager.Reconcile()
			return err
		}, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn("client config watcher stopped", zap.Error(err))
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.RouterConfig{
		API:            handlers.NewAPIHandler(a.manager, tasks, logger),
		Config:         handlers.NewConfigHandler(a.manager),
		Registry:       handlers.NewRegistryHandler(a.registry),
		Gatherer:       a.metrics,
		AllowedOrigins: a.settings.AllowedOrigins,
		Logger:         logger,
	})

	address := fmt.Sprintf("%s:%d", a.settings.Host, a.settings.ServerPort)
	server := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting mcphub agent",
		zap.String("address", address),
		zap.String("client_config", a.settings.ClientConfigPath))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	tasks.Wait()
	return nil
}

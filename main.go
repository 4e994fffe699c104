// File: partnerdesk/main.go
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

	"partnerdesk/config"
	"partnerdesk/handlers"
	"partnerdesk/middleware"
	"partnerdesk/routes"
	"partnerdesk/services/booking"
	"partnerdesk/services/socket"
	"partnerdesk/utils"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "partnerdesk",
	Short:         "Keep a partner's bookings in sync with the marketplace",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadConfig()
	},
}

func main() {
	rootCmd.AddCommand(newServeCmd(), newWatchCmd(), newSessionCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var worker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Sync bookings and serve the local dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(worker)
		},
	}
	cmd.Flags().BoolVar(&worker, "worker", false, "queue payment capture on asynq and run the worker in-process")
	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sync bookings and log every change, without the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch()
		},
	}
}

func runServe(worker bool) error {
	logger := utils.GetLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack := newSyncStack(logger, worker)
	defer stack.stop()

	utils.StartHealthMonitor(ctx, stack.redis, func() string { return string(stack.socket.State()) }, time.Minute)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(handlers.RequestLogger(logger))
	router.Use(middleware.RateLimitMiddleware(config.AppConfig.MaxRequestsPerMin))

	bookingHandler := handlers.NewBookingHandler(stack.reconciler, stack.coordinator, stack.socket.State, stack.tracker)
	defer bookingHandler.Close()
	routes.RegisterRoutes(router, handlers.NewHandlerBundle(bookingHandler))

	if err := stack.start(ctx); err != nil {
		return fmt.Errorf("start sync: %w", err)
	}

	port := config.AppConfig.AppPort
	if port == "" {
		port = "8090"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Sugar().Info("main: server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Sugar().Info("main: server stopped gracefully")
	return nil
}

func runWatch() error {
	logger := utils.GetLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack := newSyncStack(logger, false)
	defer stack.stop()

	offState := stack.socket.OnStateChange(func(s socket.State) {
		logger.Info("connection state", zap.String("state", string(s)))
		if s == socket.StateExhausted {
			stop()
		}
	})
	defer offState()

	offChange := stack.reconciler.OnChange(func(snap booking.Snapshot) {
		logger.Info("bookings changed",
			zap.Uint64("version", snap.Version),
			zap.Int("available", snap.Stats.Available),
			zap.Int("active", snap.Stats.Active),
			zap.Int("completed", snap.Stats.Completed),
			zap.Int("total", snap.Stats.Total))
	})
	defer offChange()

	if err := stack.start(ctx); err != nil {
		return fmt.Errorf("start sync: %w", err)
	}
	<-ctx.Done()
	if stack.socket.State() == socket.StateExhausted {
		return errors.New("push channel gave up reconnecting")
	}
	return nil
}

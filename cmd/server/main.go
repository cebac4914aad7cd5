package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nutriscan/internal/api"
	"nutriscan/internal/app"
	"nutriscan/internal/config"
	"nutriscan/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Mode:     cfg.LogMode,
		Level:    cfg.LogLevel,
		Filename: cfg.LogFile,
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		application.Release(releaseCtx)
	}()

	broker, err := api.NewBroker(application.Bus(), logger.Named("events"))
	if err != nil {
		return err
	}
	defer broker.Close()
	broker.Seed(application.History().View())

	if err := application.StartBackgroundJobs(); err != nil {
		return err
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	corsMiddleware, err := api.CORS(cfg.CORSOrigins)
	if err != nil {
		return err
	}
	httpLogger := logger.Named("http")
	r := gin.New()
	r.Use(api.Recovery(httpLogger), api.RequestLogger(httpLogger), corsMiddleware)

	handlers := api.NewHandlers(
		application.History(),
		application.Products(),
		application.Scanner(),
		application,
		broker,
		logger.Named("api"),
	)
	api.SetupRoutes(r, handlers)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("backend", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// event streams never finish on their own
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

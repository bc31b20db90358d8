package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"contractanalyzer/internal/bootstrap"
	"contractanalyzer/internal/config"
	"contractanalyzer/internal/handler"
	"contractanalyzer/internal/logger"
	"contractanalyzer/internal/observability"
	"contractanalyzer/internal/pipeline"
	"contractanalyzer/internal/router"
	"contractanalyzer/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, cfg.Server.Environment, zlog)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			zlog.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	stores, err := bootstrap.OpenStores(ctx, cfg, afero.NewOsFs(), zlog)
	if err != nil {
		return err
	}
	defer stores.Close()

	ext := bootstrap.NewExtractor(cfg, zlog)
	analyzer, err := bootstrap.NewAnalysisClient(cfg, zlog)
	if err != nil {
		return err
	}

	orch := pipeline.NewOrchestrator(stores.Contracts, stores.Blobs, ext, analyzer, pipeline.WithLogger(zlog))
	queue := pipeline.NewQueue(orch, stores.Contracts, pipeline.QueueConfig{
		Workers:       cfg.Pipeline.Workers,
		Size:          cfg.Pipeline.QueueSize,
		SweepInterval: cfg.Pipeline.SweepInterval,
		SweepGrace:    cfg.Pipeline.SweepGrace,
		RunTimeout:    cfg.Pipeline.RunTimeout,
	}, zlog)

	contractSvc := service.NewContractService(stores.Contracts, stores.Blobs, ext, analyzer, queue,
		service.ContractServiceConfig{
			AllowedExtensions: cfg.Storage.AllowedExtensions,
			MaxUploadBytes:    cfg.Storage.MaxUploadBytes(),
		}, zlog)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := router.Setup(
		router.Options{ServiceName: cfg.Tracing.ServiceName, AllowedOrigins: cfg.CORS.AllowedOrigins},
		zlog,
		handler.NewContractHandler(contractSvc),
		handler.NewExportHandler(contractSvc),
		handler.NewHealthHandler(stores.Contracts),
	)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return queue.Run(gctx)
	})
	g.Go(func() error {
		zlog.Info("server starting", zap.String("addr", srv.Addr), zap.String("environment", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		zlog.Info("shutting down server")
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/cobrancas/internal/app"
	"github.com/joseph-ayodele/cobrancas/internal/async"
	"github.com/joseph-ayodele/cobrancas/internal/common"
	"github.com/joseph-ayodele/cobrancas/internal/scheduler"
	svc "github.com/joseph-ayodele/cobrancas/internal/server"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(2)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err, "db_driver", cfg.Database.Driver)
		os.Exit(1)
	}
	defer a.Close()

	// Ping DB to ensure connectivity
	if err := a.Health(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if !a.Git.IsRepository(ctx) {
		logger.Warn("backup repository root is not a git repository; commits will be reported as failed",
			"repo_root", cfg.Backup.RepoRoot)
	}

	queue := async.NewBackupQueue(a.Backups, logger,
		async.WithWorkers(1),
		async.WithQueueSize(16),
		async.WithJobTimeout(10*time.Minute),
	)
	sched := scheduler.NewScheduler(queue, logger, scheduler.Config{
		FullSchedule:   cfg.Backup.FullSchedule,
		LatestSchedule: cfg.Backup.LatestSchedule,
	})
	if err := sched.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// gRPC server
	var grpcServer *grpc.Server
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			os.Exit(1)
		}
		grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(svc.UnaryLoggingInterceptor(logger)))
		svc.RegisterBackupServer(grpcServer, svc.NewBackupService(a.Backups, logger))

		// Register gRPC health service
		healthServer := health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

		logger.Info("grpc listening", "addr", cfg.Server.GRPCAddr)
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC serve error", "error", err)
				stop()
			}
		}()
	}

	// HTTP server
	var httpServer *http.Server
	if cfg.Server.HTTPAddr != "" {
		handler := svc.NewHTTPHandler(a.Backups, a.XLSX, a.Health, logger).WithQueue(queue)
		httpServer = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           svc.NewRouter(handler, cfg.Server.AllowedOrigins, a.Registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger.Info("http listening", "addr", cfg.Server.HTTPAddr)
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http serve error", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	<-sched.Stop().Done()
	queue.Shutdown(shutdownCtx)
}

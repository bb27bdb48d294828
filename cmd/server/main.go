// Server hosts the session lifecycle manager behind a gRPC health endpoint and session-auth
// interceptors. Configuration comes from the environment; see internal/config.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/app"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/config"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/logger"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/server"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/telemetry"
)

const (
	serviceName       = "session-lifecycle"
	readinessInterval = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("config", zap.Error(err))
	}
	log := logger.New(cfg.Env, cfg.LogLevel, serviceName)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, serviceName, log)
	if err != nil {
		log.Fatal("startup", zap.Error(err))
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = a.Close(context.Background())
		log.Fatal("listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	s, hs := server.NewGRPCServer(server.Deps{
		Sessions: a.Sessions,
		Audit:    a.Audit,
		Emitter:  a.Emitter,
		Log:      log,
	})
	readiness := server.NewReadiness(hs, log, a.ReadinessChecks()...)
	go readiness.Run(ctx, readinessInterval)

	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr), zap.String("store", cfg.StoreDriver))
		if err := s.Serve(lis); err != nil {
			log.Error("serve", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gRPC server")
	readiness.Shutdown()
	s.GracefulStop()

	// Give in-flight async emits time to finish before the providers go away.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration+time.Second)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	log.Info("gRPC server stopped")
}

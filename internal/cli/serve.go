package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/and161185/passby/internal/migrate"
	"github.com/and161185/passby/internal/repository/postgres"
	grpcserver "github.com/and161185/passby/internal/server/grpc"
	"github.com/and161185/passby/internal/server/httpapi"
	"github.com/and161185/passby/internal/sweeper"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the membership gRPC service and the sweepers",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", Version),
		zap.String("buildDate", BuildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DB.MigrateOnStart {
		if err := migrate.Up(ctx, cfg.DB.DSN); err != nil {
			return err
		}
	}
	db, err := postgres.New(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	clock := clockwork.NewRealClock()
	a, err := buildApp(ctx, cfg, db, clock, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	api := httpapi.New(httpapi.Services{
		Registry: a.registry,
		Observer: a.correlator,
		Ledger:   a.ledger,
		Graph:    a.graph,

		Devices:       a.devices,
		Announcements: a.news,
	}, a.verifier, db, Version, logger)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var opts []grpc.ServerOption
	if cfg.TLS.Cert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLS.Cert, cfg.TLS.Key)
		if err != nil {
			return err
		}
		opts = append(opts, grpc.Creds(creds))
	}
	grpcSrv, health := grpcserver.NewGRPCServer(a.graph, logger, cfg.Dev, opts...)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.TLS.Cert != ""))
		return grpcSrv.Serve(lis)
	})
	for i, job := range a.sweepers {
		s := a.schedules[i]
		g.Go(func() error {
			sweeper.Run(gctx, job, clock, s, logger)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		health.Shutdown()

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		done := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-sctx.Done():
			grpcSrv.Stop()
		}
		return nil
	})

	err = g.Wait()
	if err != nil {
		logger.Error("server error", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/example/ecoclassify/internal/config"
	"github.com/example/ecoclassify/internal/container"
	"github.com/example/ecoclassify/internal/grpcapi"
	"github.com/example/ecoclassify/internal/handlers"
	"github.com/example/ecoclassify/internal/logging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c, err := container.New(cfg, logger, registry)
	if err != nil {
		logger.Fatal("failed to build classification pipeline", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(c.UseCase, handlers.Options{
		MaxUploadSize:  cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
		ModelName:      c.ModelName,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var (
		grpcServer   *grpc.Server
		grpcListener net.Listener
	)
	if cfg.GRPCAddr != "" {
		grpcListener, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("failed to listen for gRPC", zap.Error(err), zap.String("addr", cfg.GRPCAddr))
		}
		grpcServer = grpcapi.NewGRPCServer(c.UseCase, logger)
		logger.Info("gRPC API listening", zap.String("addr", cfg.GRPCAddr))
	}

	logger.Info("HTTP API listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.Bool("model_configured", c.ModelName != ""),
	)
	if err := runServers(server, nil, grpcServer, grpcListener, shutdownTimeout, logger, nil); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// runServers serves HTTP and, when grpcServer is non-nil, gRPC until a signal
// arrives or either server fails. A nil signalCh means SIGINT/SIGTERM.
func runServers(httpServer *http.Server, httpListener net.Listener, grpcServer *grpc.Server, grpcListener net.Listener, shutdownTimeout time.Duration, logger *zap.Logger, signalCh <-chan os.Signal) error {
	if signalCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signalCh = ch
	}

	g, ctx := errgroup.WithContext(context.Background())
	httpStop := make(chan os.Signal, 1)
	httpDone := make(chan struct{})

	g.Go(func() error {
		select {
		case sig := <-signalCh:
			httpStop <- sig
		case <-ctx.Done():
			httpStop <- syscall.SIGTERM
		case <-httpDone:
		}
		return nil
	})

	g.Go(func() error {
		defer close(httpDone)
		err := serveHTTP(httpServer, httpListener, httpStop, shutdownTimeout, logger)
		if grpcServer != nil {
			stopGRPCServer(grpcServer, shutdownTimeout, logger)
		}
		return err
	})

	if grpcServer != nil {
		g.Go(func() error {
			if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

func stopGRPCServer(server *grpc.Server, timeout time.Duration, logger *zap.Logger) {
	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("gRPC graceful stop timed out; forcing")
		server.Stop()
	}
}

// serveHTTP serves until stop delivers a signal or the server fails. In-flight
// requests get shutdownTimeout to finish. A nil listener means server.Addr.
func serveHTTP(server *http.Server, listener net.Listener, stop <-chan os.Signal, shutdownTimeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down HTTP server", zap.Stringer("signal", sig))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return err
		}
		return <-errCh
	}
}

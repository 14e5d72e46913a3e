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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	grpcapi "ai-voice-relay-service/internal/api/grpc"
	"ai-voice-relay-service/internal/app"
	"ai-voice-relay-service/internal/config"
	apihttp "ai-voice-relay-service/internal/http"
	"ai-voice-relay-service/internal/observability"
	"ai-voice-relay-service/internal/observability/metrics"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()

	if path := cfg.VoiceEngine.ProfileFile; path != "" {
		profile, err := config.LoadProfile(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to load voice profile")
		}
		cfg.ApplyProfile(profile)
	}

	application := app.New(cfg)
	if err := cfg.Validate(true); err != nil {
		application.Logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := application.Start(); err != nil {
		application.Logger.Fatal().Err(err).Msg("Failed to start application")
	}

	obs := observability.NewServer(cfg.Service.MetricsAddr, prometheus.DefaultGatherer, application.Ready)
	obs.Start()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           apihttp.NewRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		application.Logger.Info().Str("addr", httpServer.Addr).Msg("AI Voice Relay HTTP server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			application.Logger.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		application.Logger.Fatal().Err(err).Msg("Failed to listen")
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)
	health := grpcapi.Register(grpcServer)
	health.SetServing(true)

	go func() {
		application.Logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server started")
		if err := grpcServer.Serve(lis); err != nil {
			application.Logger.Fatal().Err(err).Msg("gRPC serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	application.Logger.Info().Msg("Shutting down servers")
	health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		application.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	grpcServer.GracefulStop()
	if err := obs.Shutdown(ctx); err != nil {
		application.Logger.Error().Err(err).Msg("Observability server shutdown failed")
	}
	application.Shutdown()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "meeting-minutes-service/internal/api/grpc"
	"meeting-minutes-service/internal/app"
	"meeting-minutes-service/internal/config"
	"meeting-minutes-service/internal/events"
	httpapi "meeting-minutes-service/internal/http"
	"meeting-minutes-service/internal/llm/bedrock"
	"meeting-minutes-service/internal/observability"
	"meeting-minutes-service/internal/observability/metrics"
	"meeting-minutes-service/internal/service/agent"
	"meeting-minutes-service/internal/service/filetranscribe"
	"meeting-minutes-service/internal/store"
)

const shutdownTimeout = 15 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP, gRPC and metrics servers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.NewServer(cfg.Observability.MetricsAddr)
	obs.Start()

	awsCfg, err := bedrock.LoadConfig(ctx, cfg.AWS.Region, nil)
	if err != nil {
		return err
	}

	chats, err := store.NewStore(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open chat store: %w", err)
	}

	sttFactory, err := app.NewSTTFactory(cfg.STT, awsCfg)
	if err != nil {
		return err
	}

	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		TopicMinutes: cfg.Kafka.TopicMinutes,
		Principal:    cfg.Kafka.Principal,
	})

	deps := app.Dependencies{
		Publisher: publisher,
		Store:     chats,
		Predictor: bedrock.NewPredictorFromConfig(awsCfg),
		STT:       sttFactory,
		Invoker:   agent.NewInvoker(bedrock.NewAgentRuntimeFromConfig(awsCfg), chats, agent.ContextToken, cfg.AWS.Region),
	}
	if cfg.AWS.MediaBucket != "" {
		deps.Files = filetranscribe.NewFromConfig(awsCfg, fileOptions(cfg.AWS, false))
	}

	application := app.New(cfg, deps)
	if err := application.Start(); err != nil {
		return err
	}
	defer application.Shutdown()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	grpcapi.Register(grpcServer, application)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC server started")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("HTTP server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down servers")

		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		if serr := obs.Shutdown(shutdownCtx); err == nil {
			err = serr
		}
		return err
	})

	obs.SetReady(true)
	log.Info().
		Str("sttProvider", cfg.STT.Provider).
		Bool("fileTranscribe", deps.Files != nil).
		Msg("Meeting minutes service ready")

	return g.Wait()
}

func fileOptions(cfg config.AWSConfig, force bool) filetranscribe.Options {
	opts := filetranscribe.DefaultOptions(cfg.MediaBucket)
	opts.LanguageCode = cfg.TranscribeLanguage
	opts.Force = force
	if cfg.TranscribeMaxSpeakers > 0 {
		opts.MaxSpeakers = cfg.TranscribeMaxSpeakers
	}
	if cfg.TranscribePollInterval > 0 {
		opts.PollInterval = cfg.TranscribePollInterval
	}
	return opts
}

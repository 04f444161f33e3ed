package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/jittakal/kafrotator/internal/config"
	"github.com/jittakal/kafrotator/internal/kafka"
	"github.com/jittakal/kafrotator/internal/observability"
	"github.com/jittakal/kafrotator/internal/server"
	"github.com/jittakal/kafrotator/internal/storage"
	"github.com/jittakal/kafrotator/pkg/consumer"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to configuration file")
	readPath := flag.String("read", "", "print the records of a published file and exit")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	cfgPath := "config/application.yaml"
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	}

	cfg, err := config.NewLoader().Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	}, "app", cfg.Application.Name)
	logger.Info("starting kafrotator",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
		"backend", cfg.Storage.Backend,
		"encoding", cfg.Encoding.Type,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Cleanup runs in reverse registration order.
	var cleanups []func()
	addCleanup := func(name string, fn func() error) {
		cleanups = append(cleanups, func() {
			if err := fn(); err != nil {
				logger.Error("cleanup failed", "component", name, "error", err)
			}
		})
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.NewBackend(ctx, cfg.Storage, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	addCleanup("storage-backend", backend.Close)

	if *readPath != "" {
		return readFile(ctx, cfg.Encoding, backend, *readPath, os.Stdout, logger)
	}

	consumerConfig := kafka.ConsumerConfig{
		BootstrapServers:    cfg.Kafka.BootstrapServers,
		GroupID:             cfg.Kafka.Consumer.GroupID,
		SecurityProtocol:    cfg.Kafka.SecurityProtocol,
		SASLMechanism:       cfg.Kafka.SASLMechanism,
		SASLUsername:        cfg.Kafka.SASLUsername,
		SASLPassword:        cfg.Kafka.SASLPassword,
		AWSRegion:           cfg.Kafka.AWSRegion,
		AutoOffsetReset:     cfg.Kafka.Consumer.AutoOffsetReset,
		MaxPollIntervalMS:   cfg.Kafka.Consumer.MaxPollIntervalMS,
		SessionTimeoutMS:    cfg.Kafka.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS: cfg.Kafka.Consumer.HeartbeatIntervalMS,
		BufferSize:          cfg.Processing.PartitionQueueSize,
	}
	kafkaConsumer, err := kafka.NewSaramaConsumer(consumerConfig, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	addCleanup("kafka-consumer", kafkaConsumer.Close)

	// A nil DLQ makes every partition writer failure fatal.
	var dlq consumer.DLQPublisher
	if cfg.Kafka.DLQ.Enabled {
		publisher, err := kafka.NewDLQPublisher(
			cfg.Kafka.BootstrapServers,
			consumerConfig,
			kafka.DLQConfig{TopicSuffix: cfg.Kafka.DLQ.TopicSuffix},
			logger,
			cfg.Application.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to create DLQ publisher: %w", err)
		}
		addCleanup("dlq-publisher", publisher.Close)
		dlq = publisher
	}

	pipe, err := newPipeline(cfg, deps{
		backend:  backend,
		consumer: kafkaConsumer,
		dlq:      dlq,
		logger:   logger,
		metrics:  metrics,
	})
	if err != nil {
		return err
	}

	httpServer := server.NewServer(server.Config{
		HealthPort:     cfg.Observability.Health.Port,
		LivenessPath:   cfg.Observability.Health.LivenessPath,
		ReadinessPath:  cfg.Observability.Health.ReadinessPath,
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
		MetricsPort:    cfg.Observability.Metrics.Port,
		MetricsPath:    cfg.Observability.Metrics.Path,
	}, pipe, registry, logger)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The pipeline returning on its own also stops the servers.
		defer stop()
		return pipe.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Shutdown.Timeout())
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	logger.Info("application started successfully", "topics", cfg.Kafka.Consumer.Topics)

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		return finish(err, logger)
	case <-ctx.Done():
	}

	logger.Info("initiating graceful shutdown", "timeout", cfg.Shutdown.Timeout())
	select {
	case err := <-done:
		return finish(err, logger)
	case <-time.After(cfg.Shutdown.Timeout()):
		return fmt.Errorf("graceful shutdown timed out after %s", cfg.Shutdown.Timeout())
	}
}

func finish(err error, logger *slog.Logger) error {
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("application stopped successfully")
	return nil
}

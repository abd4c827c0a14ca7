// Package main provides the Answer Engine API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/answerline/answer-engine/internal/cache"
	"github.com/answerline/answer-engine/internal/config"
	"github.com/answerline/answer-engine/internal/embedding"
	"github.com/answerline/answer-engine/internal/generate"
	"github.com/answerline/answer-engine/internal/ingest"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/orchestrator"
	"github.com/answerline/answer-engine/internal/retrieval"
	"github.com/answerline/answer-engine/internal/storage"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("vector", cfg.Vector.Adapter).
		Msg("Starting Answer Engine API")

	store, err := storage.Open(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open storage")
		os.Exit(1)
	}
	defer store.Close()

	cacheCli := buildCache(cfg, logger)
	if cacheCli != nil {
		defer cacheCli.Close()
	}

	embedder := buildEmbedder(cfg, logger)
	index := buildVectorIndex(cfg, logger)
	defer index.Close()
	generator := buildGenerator(cfg, logger)

	orc := orchestrator.New(logger, cfg, store, cacheCli, embedder, index, generator)
	pipeline := ingest.NewPipeline(logger, ingest.PipelineConfig{
		StoragePath:      cfg.Ingestion.StoragePath,
		MaxFileBytes:     cfg.Ingestion.MaxFileBytes,
		ChunkTargetChars: cfg.Ingestion.ChunkTargetChars,
		OverlapSentences: cfg.Ingestion.ChunkOverlapSentences,
	}, store, embedder, index)

	router := NewRouter(logger, cfg, store, orc, pipeline)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}

// buildCache selects the cache backend; a failing Redis degrades to no cache
// rather than blocking startup.
func buildCache(cfg *config.Config, logger *observability.Logger) cache.Client {
	switch cfg.Cache.Driver {
	case "redis":
		cli, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, running without cache")
			return nil
		}
		return cli
	case "memory":
		return cache.NewMemoryClient(cfg.Cache.MaxEntries)
	default:
		return nil
	}
}

// buildEmbedder selects the remote embedder when configured and the
// deterministic fallback otherwise.
func buildEmbedder(cfg *config.Config, logger *observability.Logger) embedding.Embedder {
	if cfg.Embedding.ProviderURL != "" {
		cli, err := embedding.NewClient(embedding.Config{
			BaseURL:    cfg.Embedding.ProviderURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimension:  cfg.Embedding.Dimension,
			BatchLimit: cfg.Embedding.BatchTokenLimit,
			Timeout:    cfg.Embedding.Timeout,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Embedding provider misconfigured, using deterministic fallback")
			return embedding.NewFallback(cfg.Embedding.Dimension)
		}
		return cli
	}
	logger.Info().Msg("No embedding provider configured, using deterministic fallback")
	return embedding.NewFallback(cfg.Embedding.Dimension)
}

func buildVectorIndex(cfg *config.Config, logger *observability.Logger) retrieval.VectorIndex {
	if cfg.Vector.Adapter == "http" && cfg.Vector.URL != "" {
		idx, err := retrieval.NewHTTPIndex(retrieval.HTTPIndexConfig{
			BaseURL:    cfg.Vector.URL,
			APIKey:     cfg.Vector.APIKey,
			Collection: cfg.Vector.Collection,
			Timeout:    cfg.Vector.Timeout,
			Retries:    cfg.Vector.RetryAttempts,
			RetryDelay: cfg.Vector.RetryDelay,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Vector service misconfigured, using in-memory index")
			return retrieval.NewMemoryIndex(cfg.Vector.Dimension)
		}
		return idx
	}
	return retrieval.NewMemoryIndex(cfg.Vector.Dimension)
}

// buildGenerator returns nil when no provider is configured; strategies then
// degrade to snippet answers.
func buildGenerator(cfg *config.Config, logger *observability.Logger) generate.Generator {
	if cfg.Generator.ProviderURL == "" {
		logger.Info().Msg("No generator configured, generator-backed strategies degrade to snippets")
		return nil
	}
	cli, err := generate.NewClient(generate.Config{
		BaseURL:     cfg.Generator.ProviderURL,
		APIKey:      cfg.Generator.APIKey,
		Model:       cfg.Generator.Model,
		Temperature: cfg.Generator.Temperature,
		Timeout:     cfg.Generator.Timeout,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Generator misconfigured, generator-backed strategies degrade to snippets")
		return nil
	}
	return cli
}

// Command recall serves the archive retrieval API.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/api"
	"github.com/persistorai/recall/internal/buffer"
	"github.com/persistorai/recall/internal/config"
	"github.com/persistorai/recall/internal/db"
	"github.com/persistorai/recall/internal/db/migrations"
	"github.com/persistorai/recall/internal/dbpool"
	"github.com/persistorai/recall/internal/service"
	"github.com/persistorai/recall/internal/store"
	"github.com/persistorai/recall/internal/ws"
)

const (
	shutdownTimeout = 30 * time.Second
	embedQueueSize  = 1000
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("recall exited")
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), int32(cfg.DBMaxConns)) //nolint:gosec // bounded by config validation.
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	if _, err := db.EnsureVectorDimensions(ctx, pool, log, cfg.EmbeddingDimensions); err != nil {
		return fmt.Errorf("checking vector dimensions: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	app, err := wire(appCtx, cfg, pool, log)
	if err != nil {
		return err
	}

	if err := app.buffer.Start(); err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}

	serveErr := make(chan error, 2)
	if err := serve(ctx, srv, cfg.Addr(), serveErr); err != nil {
		return err
	}
	if err := serve(ctx, metricsSrv, cfg.MetricsAddr(), serveErr); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"addr":           cfg.Addr(),
		"metrics_addr":   cfg.MetricsAddr(),
		"version":        config.Version,
		"schema_version": db.SchemaVersion(),
		"auth":           cfg.AuthEnabled(),
		"reranker":       cfg.RerankEnabled(),
		"embeddings":     cfg.EmbeddingProvider,
	}).Info("recall listening")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		log.WithError(err).Error("server failed")
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("api server shutdown")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics server shutdown")
	}

	// Buffered conversations are flushed before the pool closes. Chunks whose
	// embedding job is lost here stay lexical-only until a backfill.
	if err := app.buffer.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("flushing conversation buffer")
	}

	cancel()
	app.hub.Shutdown()

	log.Info("recall stopped")

	return nil
}

// serve listens on addr and serves srv in the background. Serve errors other
// than a clean shutdown are sent on errc.
func serve(ctx context.Context, srv *http.Server, addr string, errc chan<- error) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("serving %s: %w", addr, err)
		}
	}()

	return nil
}

// application holds the long-lived components main needs to shut down.
type application struct {
	router http.Handler
	buffer *buffer.Buffer
	hub    *ws.Hub
}

// wire builds stores, services and the HTTP router. Background workers are
// bound to ctx.
func wire(ctx context.Context, cfg *config.Config, pool *dbpool.Pool, log *logrus.Logger) (*application, error) {
	base := store.Base{Pool: pool, Log: log}
	chunks := store.NewChunkStore(base)
	search := store.NewSearchStore(base)
	persons := store.NewPersonStore(base)
	links := store.NewLinkStore(base)

	embedOpts := service.EmbeddingOptions{
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
		MaxChars:   cfg.EmbeddingMaxChars,
	}

	var embedder service.Embedder
	switch cfg.EmbeddingProvider {
	case "openai":
		embedder = service.NewOpenAIEmbedder(cfg.OpenAIAPIKey.Value(), "", embedOpts)
	default:
		embedder = service.NewOllamaEmbedder(cfg.OllamaURL, embedOpts, cfg.OllamaAllowRemote)
	}

	// A nil *HTTPReranker must not reach the adapter as a non-nil interface.
	var (
		reranker     service.Reranker
		availability api.AvailabilityChecker
	)
	if cfg.RerankEnabled() {
		hr := service.NewHTTPReranker(cfg.RerankURL, cfg.RerankModel, cfg.RerankAPIKey.Value(), cfg.RerankTimeout)
		reranker, availability = hr, hr
	}

	decay, err := service.NewDecayFunc(cfg.RecencyDecay, cfg.RecencyHalfLife)
	if err != nil {
		return nil, fmt.Errorf("configuring recency decay: %w", err)
	}

	resolver := service.NewResolver(persons, cfg.ResolverCacheTTL)

	worker := service.NewEmbedWorker(embedder, chunks, log, embedQueueSize, cfg.EmbedWorkers)
	go worker.Run(ctx)

	ingest := service.NewIngestService(chunks, links, persons, embedder, worker, resolver, log)

	query := service.NewQueryService(
		resolver,
		persons,
		service.NewHybridRetriever(search, embedder, cfg.RRFK, log),
		service.NewRerankAdapter(reranker, cfg.RerankTimeout, log),
		service.NewExpander(chunks, persons, links, cfg.TemporalWindow, decay, log),
		service.NewAssembler(nil),
		service.QueryConfig{Pool: cfg.RetrievePool, Keep: cfg.RetrieveKeep},
		log,
	)

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	if err := db.NewNotifyBridge(log, pool, hub, resolver).Start(ctx); err != nil {
		return nil, fmt.Errorf("starting notify bridge: %w", err)
	}

	buf := buffer.New(buffer.Config{
		MaxMessages:  cfg.BufferMaxMessages,
		Inactivity:   cfg.BufferInactivity,
		TTL:          cfg.BufferTTL,
		SafetyMargin: cfg.BufferSafetyMargin,
		Sweep:        cfg.BufferSweep,
	}, service.NewConversationFlusher(ingest), log)

	router := api.NewRouter(ctx, api.RouterDeps{
		Log:     log,
		DB:      pool,
		Hub:     hub,
		Query:   query,
		Ingest:  ingest,
		Chunks:  chunks,
		Persons: service.NewPersonService(persons, links, resolver, log),
		Buffer:  buf,
		Admin:   service.NewAdminService(chunks, worker, log),
		Health: api.HealthConfig{
			Version:             config.Version,
			EmbeddingProvider:   cfg.EmbeddingProvider,
			OllamaURL:           cfg.OllamaURL,
			EmbeddingModel:      cfg.EmbeddingModel,
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			Reranker:            availability,
		},
		APIKey:         cfg.APIKey.Value(),
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	return &application{router: router, buffer: buf, hub: hub}, nil
}

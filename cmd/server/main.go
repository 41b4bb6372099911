// Command server runs the conversation backend: it indexes the knowledge
// base, hosts the session registry with its idle sweeper, and serves the
// admin read API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/cybertechlabs/go-voice-backend/internal/ai"
	"github.com/cybertechlabs/go-voice-backend/internal/config"
	httpapi "github.com/cybertechlabs/go-voice-backend/internal/http"
	"github.com/cybertechlabs/go-voice-backend/internal/observability"
	"github.com/cybertechlabs/go-voice-backend/internal/rag"
	"github.com/cybertechlabs/go-voice-backend/internal/repo"
	"github.com/cybertechlabs/go-voice-backend/internal/session"
	"github.com/cybertechlabs/go-voice-backend/internal/summary"
	"github.com/cybertechlabs/go-voice-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	if err := repo.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	embedder, generator, err := ai.NewProvider(cfg.Embedding)
	if err != nil {
		log.Fatal().Err(err).Msg("build embedding provider")
	}

	// Bring the knowledge base up to date before serving. Unchanged
	// documents are skipped by content hash, so restarts are cheap.
	store := &rag.GormStore{DB: db}
	indexer := &rag.Indexer{
		Embedder: embedder,
		Store:    store,
		Chunker:  rag.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		Dim:      cfg.Embedding.Dim,
	}
	if results, err := indexer.IndexDirectory(ctx, cfg.DataDir); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("index knowledge base")
	} else {
		indexed, skipped := 0, 0
		for _, r := range results {
			if r.Skipped {
				skipped++
			} else {
				indexed++
			}
		}
		log.Info().Int("indexed", indexed).Int("skipped", skipped).Msg("knowledge base ready")
	}

	registry := session.NewRegistry(db, nil, cfg.Session.TurnRetries, cfg.Session.TurnRetryDelay)
	registry.Summarizer = summary.NewSummarizer(db, generator)

	sweeper := session.NewSweeper(registry, cfg.Session.SweepInterval, cfg.Session.IdleTimeout)
	go sweeper.Run(ctx)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, registry, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	sweeper.Stop()
	if err := otelShutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
	log.Info().Msg("shutdown complete")
}

// openDatabase selects Postgres when a DSN is configured and falls back to
// the local SQLite file for development.
func openDatabase(cfg config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL != "" {
		return repo.OpenPostgres(cfg.DatabaseURL)
	}
	log.Warn().Str("path", cfg.DBPath).Msg("DATABASE_URL unset, using local sqlite")
	return repo.OpenSQLite(cfg.DBPath)
}

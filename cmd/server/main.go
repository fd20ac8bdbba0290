package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/api"
	"github.com/biomind-nexus-server/internal/audit"
	"github.com/biomind-nexus-server/internal/config"
	"github.com/biomind-nexus-server/internal/database"
	"github.com/biomind-nexus-server/internal/domain"
	"github.com/biomind-nexus-server/internal/graph"
	"github.com/biomind-nexus-server/internal/ingest"
	"github.com/biomind-nexus-server/internal/metrics"
	"github.com/biomind-nexus-server/internal/orchestrator"
	"github.com/biomind-nexus-server/internal/pipeline"
	"github.com/biomind-nexus-server/internal/simulate"
	"github.com/biomind-nexus-server/pkg/external"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	log := newLogger(cfg.Logging)
	log.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
	}).Info("Starting BioMind Nexus server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := make(map[string]api.HealthChecker)

	// Audit trail: Postgres primary with a JSONL file fallback. The server
	// starts without Postgres; events then spill to the fallback only.
	var primary domain.AuditStore
	db, err := database.NewConnection(ctx, database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Database,
		Username:        cfg.Database.Username,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, log)
	if err != nil {
		log.WithError(err).Warn("Audit database unavailable, events will use the file fallback")
	} else {
		defer db.Close()
		runMigrations(configManager, cfg, log)
		store, err := audit.NewPostgresStore(db.SQL)
		if err != nil {
			log.WithError(err).Warn("Audit store setup failed, events will use the file fallback")
		} else {
			primary = store
			health["database"] = db.HealthCheck
		}
	}

	fallback, err := audit.NewFileStore(cfg.Audit.FallbackPath)
	if err != nil {
		log.Fatalf("Audit fallback file unavailable: %v", err)
	}
	auditLogger := audit.NewLogger(primary, fallback, log)

	// External services behind circuit breakers, with an optional Redis
	// response cache.
	breakers := external.NewBreakerSet(log)
	var cache *external.CacheClient
	if cfg.Cache.Enabled {
		cache, err = external.NewCacheClient(cfg.Cache)
		if err != nil {
			log.WithError(err).Warn("Redis cache unavailable, external responses will not be cached")
			cache = nil
		}
	}

	pubmed := external.NewResilientLiterature(external.NewPubMedClient(external.PubMedOptions{
		BaseURL: cfg.PubMed.BaseURL,
		APIKey:  cfg.PubMed.APIKey,
		Email:   cfg.PubMed.Email,
		Timeout: cfg.PubMed.Timeout,
		Cache:   cache,
	}), breakers)

	var extractor domain.EntityExtractor
	var synthesizer domain.HypothesisSynthesizer
	var scorer domain.RelevanceScorer
	if cfg.Synthesis.BaseURL != "" {
		extractor = external.NewResilientExtractor(
			external.NewNERClient(cfg.Synthesis.BaseURL, cfg.Synthesis.APIKey, cfg.Synthesis.ExtractTimeout), breakers)
		synthesizer = external.NewResilientSynthesizer(external.NewSynthesizerClient(external.SynthesizerOptions{
			BaseURL: cfg.Synthesis.BaseURL,
			APIKey:  cfg.Synthesis.APIKey,
			Model:   cfg.Synthesis.Model,
			Timeout: cfg.Synthesis.Timeout,
			Cache:   cache,
		}), breakers)
		scorer = external.NewResilientScorer(
			external.NewScorerClient(cfg.Synthesis.BaseURL, cfg.Synthesis.APIKey, cfg.Synthesis.ScorerTimeout), breakers)
	} else {
		log.Info("No synthesis endpoint configured, using pattern extraction and template hypotheses")
	}

	graphRepo := newGraphRepository(cfg.Graph, log)

	m := metrics.New()
	patterns := external.NewPatternExtractor()
	ingestion := ingest.NewPipeline(pubmed, ingestExtractor(extractor, patterns), graphRepo, auditLogger, log)

	ranking, err := pipeline.NewRankingStage(pipeline.DefaultRankWeights(), log)
	if err != nil {
		log.Fatalf("Invalid ranking weights: %v", err)
	}
	stages := []pipeline.Stage{
		pipeline.NewEntityExtractionStage(extractor, patterns, log),
		pipeline.NewLiteratureStage(pubmed, scorer, log),
		pipeline.NewPathwaySimulationStage(graphRepo, simulate.NewSimulator(log), log),
		pipeline.NewReasoningStage(synthesizer, external.FallbackSynthesizer{}, scorer, log),
		ranking,
	}
	runner := pipeline.NewRunner(stages, pipeline.NewSafetyStage(log), auditLogger, m, log, cfg.Pipeline.StageTimeout)

	workflows := orchestrator.New(runner, graphRepo, ingestion, auditLogger, m, log, orchestrator.Options{
		RequestTimeout: cfg.Pipeline.RequestTimeout,
		CacheSize:      cfg.Pipeline.ResultCacheLen,
		CacheTTL:       cfg.Pipeline.ResultCacheTTL,
	})

	server := api.NewServer(cfg.Server, workflows, auditLogger, m, health, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutdown signal received, stopping server")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Info("Server stopped")
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func runMigrations(manager *config.Manager, cfg *domain.Config, log *logrus.Logger) {
	migrator, err := database.NewMigrationRunner(manager.GetDatabaseURL(), cfg.Database.MigrationsPath, log)
	if err != nil {
		log.WithError(err).Warn("Migration runner setup failed, skipping migrations")
		return
	}
	defer migrator.Close()
	if err := migrator.Up(); err != nil {
		log.WithError(err).Warn("Migrations failed")
	}
}

// newGraphRepository picks the graph backend: the Neo4j HTTP API when an
// http(s) URI is configured, the in-process graph otherwise.
func newGraphRepository(cfg domain.GraphConfig, log *logrus.Logger) domain.GraphRepository {
	if strings.HasPrefix(cfg.URI, "http://") || strings.HasPrefix(cfg.URI, "https://") {
		runner := graph.NewHTTPRunner(cfg.URI, cfg.Username, cfg.Password, cfg.ReadTimeout, log)
		return graph.NewRepository(runner, log, cfg.ReadTimeout, cfg.WriteTimeout)
	}
	log.WithField("uri", cfg.URI).Info("No HTTP graph endpoint configured, using the in-process graph")
	return graph.NewMemoryRepository(log)
}

// ingestExtractor prefers the remote extractor and falls back to patterns.
func ingestExtractor(remote domain.EntityExtractor, patterns domain.EntityExtractor) domain.EntityExtractor {
	if remote != nil {
		return remote
	}
	return patterns
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/batch"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/config"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/database"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/embed"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/feedback"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/index"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/log"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/query"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/synth"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/training"
)

// app holds the assembled service components. The database pool and the
// AI providers are optional: without them the assistant runs degraded
// (deterministic embeddings, static answers, in-memory job store).
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	pool     *pgxpool.Pool
	pipeline *query.Pipeline
	training *training.Orchestrator
	batch    *batch.Processor
	feedback *feedback.Collector
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setup assembles the service from configuration. requireDB makes a
// missing database fatal instead of degrading to in-memory operation.
func setup(ctx context.Context, cfg *config.Config, requireDB bool) (*app, error) {
	logger := log.New(log.Config{
		Level: parseLogLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	a := &app{cfg: cfg, logger: logger}

	pool, err := database.Open(ctx, cfg.PostgresURL())
	if err != nil {
		if requireDB {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		logger.Warn("database unavailable, running with in-memory state", "error", err)
	}
	a.pool = pool

	// Embedding and synthesis degrade independently of the database.
	var embedder embed.Provider = embed.NewFallback()
	var synthesizer synth.Synthesizer = synth.NewStatic()
	if cfg.GeminiAPIKey != "" {
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: cfg.GeminiAPIKey}))
		embedder = embed.NewResilient(
			embed.NewGenkit(googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)), logger)
		synthesizer = synth.NewGemini(g, cfg.ModelName, logger)
		logger.Info("AI providers ready", "model", cfg.ModelName, "embedder", cfg.EmbedderModel)
	} else {
		logger.Warn("no Gemini API key configured, answers will be degraded")
	}

	var searcher query.Searcher
	var recorder query.Recorder = query.NopRecorder{}
	var docs training.DocumentResolver
	var batchDocs batch.DocumentSource
	var items batch.ItemProcessor
	var feedbackStore feedback.Store

	if pool != nil {
		store := index.New(pool, logger)
		searcher = store
		docs = store
		batchDocs = store
		recorder = query.NewPostgresRecorder(pool)
		items = batch.Reembedder{Docs: store, Vectors: store, Embed: embedder}
		feedbackStore = feedback.NewPostgresStore(pool)
	} else {
		empty := &emptyIndex{}
		docs = empty
		batchDocs = empty
		items = empty
	}

	a.pipeline, err = query.New(query.Config{
		Embedder:    embedder,
		Searcher:    searcher,
		Synthesizer: synthesizer,
		Suggester:   feedback.NewKeywordSuggester(),
		Recorder:    recorder,
		Logger:      logger,
		TopK:        cfg.TopK,
		Timeout:     cfg.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("building query pipeline: %w", err)
	}

	var jobStore training.Store
	if pool != nil {
		jobStore = training.NewPostgresStore(pool, logger)
	} else {
		jobStore = training.NewMemoryStore()
	}
	a.training = training.NewOrchestrator(jobStore, docs, logger,
		training.WithStrategy(training.SimulatedStrategy{StepDelay: cfg.StepDelay}))

	a.batch = batch.New(items, batchDocs, logger, batch.WithItemDelay(cfg.ItemDelay))

	if feedbackStore != nil {
		a.feedback = feedback.NewCollector(feedbackStore,
			feedback.NewKeywordSentimentClassifier(), logger)
	}

	return a, nil
}

// close releases background tasks and the database pool.
func (a *app) close() {
	a.training.Close()
	a.batch.Close()
	if a.pool != nil {
		a.pool.Close()
	}
}

// emptyIndex stands in for the document store when no database is
// configured. Training and batch requests fail validation cleanly
// instead of panicking on a nil store.
type emptyIndex struct{}

func (*emptyIndex) ResolveDocuments(context.Context, []int64) ([]index.Document, error) {
	return nil, nil
}

func (*emptyIndex) ProcessItem(_ context.Context, docID int64) error {
	return fmt.Errorf("document %d not found", docID)
}

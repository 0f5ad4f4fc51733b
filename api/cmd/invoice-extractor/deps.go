package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"invoice-extractor/api/internal/clarity"
	"invoice-extractor/api/internal/config"
	"invoice-extractor/api/internal/extract"
	"invoice-extractor/api/internal/interactive"
	"invoice-extractor/api/internal/llm"
	"invoice-extractor/api/internal/llm/gemini"
	"invoice-extractor/api/internal/llm/openai"
	"invoice-extractor/api/internal/pipeline"
	"invoice-extractor/api/internal/storage"
	"invoice-extractor/api/internal/store"
)

// app is everything a command needs, built from one Config.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	engines *llm.Engines
	engine  llm.Engine
	objects storage.Store
	db      *sql.DB

	processor *pipeline.Processor
	asker     *interactive.Service
}

type buildOptions struct {
	// objects overrides the configured object store.
	objects storage.Store
	// withDB opens Postgres when a DSN is configured.
	withDB bool
	// requireStore fails when no object store can be built.
	requireStore bool
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts buildOptions) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	a := &app{cfg: cfg, logger: logger}

	a.engines = llm.NewEngines(
		llm.Retrying(gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, float32(cfg.Temperature)), cfg.Retry, logger),
		llm.Retrying(openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.Temperature), cfg.Retry, logger),
	)
	eng, err := a.engines.GetEngine(cfg.EngineName())
	if err != nil {
		return nil, err
	}
	a.engine = eng

	a.objects = opts.objects
	if a.objects == nil {
		a.objects, err = objectStore(ctx, cfg)
		if err != nil {
			if opts.requireStore {
				return nil, err
			}
			logger.Warn("object storage unavailable", "err", err)
		}
	}

	var extractions *store.ExtractionRepo
	var answers *store.AnswerRepo
	if dsn := store.ResolveDSN(cfg.DatabaseURL); opts.withDB && dsn != "" {
		db, err := store.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		logger.Info("db connected", "dsn", store.SafeDSNSummary(dsn))
		if err := store.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.db = db
		extractions = store.NewExtractionRepo(db, cfg.CacheMaxAge)
		answers = store.NewAnswerRepo(db)
	}

	prompt, err := llm.LoadPrompt(cfg.PromptsDir, "extract", "")
	if err != nil {
		return nil, err
	}
	pcfg := pipeline.Config{
		Store:        a.objects,
		Engine:       eng,
		Schema:       extract.DefaultInvoiceSchema(),
		Assessor:     clarity.New(cfg.Clarity),
		Prompt:       prompt,
		InputBucket:  cfg.InputBucket,
		OutputBucket: cfg.OutputBucket,
		OutputPrefix: cfg.OutputPrefix,
		Width:        cfg.ResizeWidth,
		Height:       cfg.ResizeHeight,
		Structured:   cfg.Structured,
		Logger:       logger,
	}
	if extractions != nil {
		pcfg.Cache = extractions
	}
	a.processor, err = pipeline.NewProcessor(pcfg)
	if err != nil {
		return nil, err
	}

	askPrompt, err := llm.LoadPrompt(cfg.PromptsDir, "ask", llm.InvoiceQuestionPrompt)
	if err != nil {
		return nil, err
	}
	icfg := interactive.Config{
		Engine:      eng,
		Prompt:      askPrompt,
		CacheMaxAge: cfg.CacheMaxAge,
		Logger:      logger,
	}
	if cfg.SaveResponses && a.objects != nil {
		icfg.Store = a.objects
		icfg.ResponseBucket = cfg.ResponseBucket
	}
	if answers != nil {
		icfg.Cache = answers
	}
	a.asker = interactive.New(icfg)
	return a, nil
}

func objectStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage {
	case "dir":
		return storage.NewDirStore(cfg.StorageDir), nil
	default:
		return storage.NewS3StoreFromEnv(ctx, cfg.AWSRegion)
	}
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

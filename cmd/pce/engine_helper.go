package main

import (
	"fmt"
	"os"

	"pce/internal/budget"
	"pce/internal/config"
	"pce/internal/docsclient"
	"pce/internal/enhance"
	"pce/internal/llm"
	"pce/internal/logging"
	"pce/internal/patterns"
	"pce/internal/sources"
	"pce/internal/storage"
)

// pipeline bundles everything a command needs to run enhancements.
type pipeline struct {
	cfg      *config.Config
	logger   *logging.Logger
	db       *storage.DB
	cache    *storage.Cache
	registry *patterns.Registry
	engine   *enhance.Engine
}

// Close releases the pipeline in dependency order: the registry drains
// its pending updates before the database goes away.
func (p *pipeline) Close() {
	if p.registry != nil {
		p.registry.Close()
	}
	if p.db != nil {
		_ = p.db.Close()
	}
}

func mustGetRepoRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get current directory: %v\n", err)
		os.Exit(1)
	}
	return cwd
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.LogLevel(cfg.Logging.Level),
	})
}

// buildPipeline wires the full enhancement stack from configuration.
func buildPipeline(repoRoot string) (*pipeline, error) {
	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("load config (run 'pce init' first?): %w", err)
	}

	logger := newLogger(cfg)

	db, err := storage.Open(repoRoot, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var cache *storage.Cache
	if cfg.Cache.Enabled {
		cache, err = storage.NewCache(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("open cache: %w", err)
		}
	}

	registry, err := patterns.NewRegistry(cfg.Learning, logger, storage.NewPatternStore(db))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load pattern registry: %w", err)
	}

	var adapters []sources.Adapter
	if cfg.Sources.Facts.Enabled {
		adapters = append(adapters, sources.NewFactsAdapter(repoRoot, cfg.Sources.Facts, logger))
	}
	if cfg.Sources.Snippets.Enabled {
		adapters = append(adapters, sources.NewSnippetsAdapter(repoRoot, cfg.Sources.Snippets, logger))
	}
	if cfg.Sources.Docs.Enabled {
		client := docsclient.NewHTTPClient(cfg.Docs, logger)
		adapters = append(adapters, sources.NewDocsAdapter(client, cfg.Sources.Docs, logger))
	}

	var completer llm.Completer
	if cfg.LLM.Enabled {
		completer = llm.NewHTTPClient(cfg.LLM, logger)
	}

	engine := enhance.NewEngine(cfg, logger, registry, adapters,
		budget.NewBudgeter(completer, logger), cache)

	return &pipeline{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		cache:    cache,
		registry: registry,
		engine:   engine,
	}, nil
}

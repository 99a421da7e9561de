// Command kgingestd is the composition root for the ingestion core: it
// loads configuration, wires the atomic stores, the structured-extraction
// provider, the scheduler, and the pipeline front, then drives the
// scheduler's run loop until signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kgraph/ingestcore/internal/kgchunk"
	"github.com/kgraph/ingestcore/internal/kgconfig"
	"github.com/kgraph/ingestcore/internal/kgdoc"
	"github.com/kgraph/ingestcore/internal/kgevents"
	"github.com/kgraph/ingestcore/internal/kgextract"
	"github.com/kgraph/ingestcore/internal/kglog"
	"github.com/kgraph/ingestcore/internal/kgobs"
	"github.com/kgraph/ingestcore/internal/kgpipeline"
	"github.com/kgraph/ingestcore/internal/kgscheduler"
	"github.com/kgraph/ingestcore/internal/kgstatus"
	"github.com/kgraph/ingestcore/internal/kgstore"
	"github.com/kgraph/ingestcore/internal/kgstore/redisindex"
)

var supportedExtensions = []string{".txt", ".md", ".json"}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("kgingestd")
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a kgconfig YAML file (optional; defaults + env apply regardless)")
	flag.Parse()

	cfg, err := kgconfig.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := kglog.Init(cfg.LogPath, cfg.LogLevel)

	baseCtx := context.Background()
	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fullDocs := kgstore.NewJSONKVStore(cfg.WorkingDir, cfg.Workspace, "full_docs", logger)
	textChunks := kgstore.NewJSONKVStore(cfg.WorkingDir, cfg.Workspace, "text_chunks", logger)
	fullEntities := kgstore.NewJSONKVStore(cfg.WorkingDir, cfg.Workspace, "full_entities", logger)
	fullRelations := kgstore.NewJSONKVStore(cfg.WorkingDir, cfg.Workspace, "full_relations", logger)
	llmCache := kgstore.NewJSONKVStore(cfg.WorkingDir, cfg.Workspace, "llm_response_cache", logger)
	docStatus := kgstore.NewDocStatusStore(cfg.WorkingDir, cfg.Workspace, "doc_status", logger)

	if err := fullDocs.Initialize(); err != nil {
		return fmt.Errorf("initialize full_docs store: %w", err)
	}
	if err := textChunks.Initialize(); err != nil {
		return fmt.Errorf("initialize text_chunks store: %w", err)
	}
	if err := fullEntities.Initialize(); err != nil {
		return fmt.Errorf("initialize full_entities store: %w", err)
	}
	if err := fullRelations.Initialize(); err != nil {
		return fmt.Errorf("initialize full_relations store: %w", err)
	}
	if err := llmCache.Initialize(); err != nil {
		return fmt.Errorf("initialize llm_response_cache store: %w", err)
	}
	if err := docStatus.Initialize(); err != nil {
		return fmt.Errorf("initialize doc_status store: %w", err)
	}
	defer func() {
		for name, finalize := range map[string]func() error{
			"full_docs":          fullDocs.Finalize,
			"text_chunks":        textChunks.Finalize,
			"full_entities":      fullEntities.Finalize,
			"full_relations":     fullRelations.Finalize,
			"llm_response_cache": llmCache.Finalize,
			"doc_status":         docStatus.Finalize,
		} {
			if err := finalize(); err != nil {
				logger.Error().Err(err).Str("store", name).Msg("failed to finalize store")
			}
		}
	}()

	status := kgstatus.New(fullDocs, docStatus)

	var events *kgevents.Publisher
	if cfg.Kafka.Enabled {
		events = kgevents.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer events.Close()
		status = status.WithEvents(events)
	}

	docs, err := kgdoc.New(ctx, cfg.WorkingDir, cfg.Workspace, supportedExtensions)
	if err != nil {
		return fmt.Errorf("init document manager: %w", err)
	}

	var responseCache *redisindex.Index
	if cfg.Redis.Enabled {
		ttl, parseErr := time.ParseDuration(cfg.Redis.TTL)
		if parseErr != nil {
			ttl = time.Hour
		}
		idx, idxErr := redisindex.New(ctx, cfg.Redis.Addr, ttl, logger)
		if idxErr != nil {
			logger.Warn().Err(idxErr).Msg("redis cache accelerator unavailable, continuing without it")
		} else {
			responseCache = idx
			defer responseCache.Close()
		}
	}

	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("construct LLM provider: %w", err)
	}
	client := kgextract.NewClient(provider, kgextract.DefaultPollConfig(), logger)
	var cache kgextract.ResponseCache = kgextract.NewJSONResponseCache(llmCache)
	if responseCache != nil {
		cache = kgextract.NewTieredCache(responseCache, cache)
	}
	extractor := kgextract.NewChunkExtractor(client, kgextract.ExtractionPrompt{
		Model:  cfg.LLM.Model,
		Strict: cfg.LLM.Strict,
	}).WithCache(cache)

	schedCfg := kgscheduler.DefaultConfig()
	schedCfg.WorkerPoolSize = cfg.Ingestion.MaxWorkers
	schedCfg.MaxInflight = cfg.Ingestion.MaxInflight
	schedCfg.MaxChunkRetries = cfg.Ingestion.MaxChunkRetries
	schedCfg.MaxJobRetries = cfg.Ingestion.MaxJobRetries
	schedCfg.StrictFailurePolicy = cfg.Ingestion.StrictFailurePolicy

	scheduler := kgscheduler.New(schedCfg, kgscheduler.Stores{
		FullDocs:   fullDocs,
		TextChunks: textChunks,
		Entities:   fullEntities,
		Relations:  fullRelations,
	}, status, extractor, logger)

	if cfg.Telemetry.Enabled {
		scheduler = scheduler.WithMetrics(kgobs.NewOtelMetrics(cfg.Telemetry.ServiceName))
	}

	errs := kgpipeline.NewErrorReporter(docStatus, logger)
	chunkCfg := kgchunk.Config{
		MaxTokens:     cfg.Ingestion.ChunkMaxTokens,
		OverlapTokens: cfg.Ingestion.ChunkOverlap,
	}
	pipeline := kgpipeline.New(docs, status, docStatus, scheduler, errs, kgchunk.NewWordTokenizer(), chunkCfg, textChunks, logger)

	logger.Info().Str("working_dir", cfg.WorkingDir).Str("provider", cfg.LLM.Provider).Msg("kgingestd starting")

	if n, err := enqueueStagedFiles(ctx, docs, pipeline); err != nil {
		logger.Error().Err(err).Msg("failed to scan input directory")
	} else if n > 0 {
		logger.Info().Int("count", n).Msg("enqueued staged files found at startup")
	}

	pipeline.ProcessQueue(ctx)

	logger.Info().Msg("kgingestd shutting down")
	return nil
}

// newProvider constructs the single kgextract.Provider implementation
// named by cfg.LLM.Provider.
func newProvider(ctx context.Context, cfg kgconfig.Config, logger zerolog.Logger) (kgextract.Provider, error) {
	apiKey := cfg.APIKey()
	switch cfg.LLM.Provider {
	case "anthropic":
		return kgextract.NewAnthropicProvider(kgextract.AnthropicConfig{
			APIKey:    apiKey,
			BaseURL:   cfg.LLM.BaseURL,
			MaxTokens: 4096,
		}, nil, logger), nil
	case "gemini":
		return kgextract.NewGeminiProvider(ctx, kgextract.GeminiConfig{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: 60 * time.Second,
		}, nil, logger)
	default:
		return kgextract.NewOpenAIProvider(kgextract.OpenAIConfig{
			APIKey:          apiKey,
			BaseURL:         cfg.LLM.BaseURL,
			ReasoningEffort: cfg.LLM.ReasoningEffort,
			ServiceTier:     cfg.LLM.ServiceTier,
		}, nil, logger), nil
	}
}

// enqueueStagedFiles walks the document manager's inbox once at startup and
// enqueues every supported file found there, mirroring the one-shot
// directory scan spec §5 describes as the alternative to an HTTP upload
// trigger.
func enqueueStagedFiles(ctx context.Context, docs *kgdoc.DocumentManager, pipeline *kgpipeline.Pipeline) (int, error) {
	entries, err := os.ReadDir(docs.InputDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !docs.IsSupportedFile(entry.Name()) {
			continue
		}
		path := docs.InputDir() + string(os.PathSeparator) + entry.Name()
		if _, err := pipeline.EnqueueFile(ctx, path, ""); err != nil {
			continue
		}
		count++
	}
	return count, nil
}

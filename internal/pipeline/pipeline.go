// Package pipeline assembles the report generator from configuration. Both
// the worker manager and the report runner build their dependencies here.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"meeting-intel/internal/common/config"
	"meeting-intel/internal/common/database"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/retry"
	"meeting-intel/internal/providers/crm"
	"meeting-intel/internal/providers/llm"
	"meeting-intel/internal/providers/scrape"
	"meeting-intel/internal/providers/websearch"
	"meeting-intel/internal/research/conversation"
	"meeting-intel/internal/research/critique"
	"meeting-intel/internal/research/crmmatch"
	"meeting-intel/internal/research/orchestrator"
	"meeting-intel/internal/research/report"
	"meeting-intel/internal/research/searchcache"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// ConnectPolicy is applied while waiting for backing stores at startup.
var ConnectPolicy = retry.Policy{
	MaxAttempts: 15,
	BaseDelay:   2 * time.Second,
	MaxDelay:    10 * time.Second,
}

// Pipeline owns the generator and every connection opened to build it.
type Pipeline struct {
	Generator *report.Generator
	Cache     *searchcache.Cache
	LLM       *llm.Client

	redis    *database.RedisClient
	postgres *database.PostgresClient
	es       *database.ElasticsearchClient
	logger   logger.Logger
}

// Option adjusts how Build connects to its dependencies.
type Option func(*builder)

type builder struct {
	connectPolicy retry.Policy
}

// WithConnectPolicy overrides ConnectPolicy.
func WithConnectPolicy(p retry.Policy) Option {
	return func(b *builder) { b.connectPolicy = p }
}

// Build connects the stores the configuration asks for and wires the
// research, conversation, critique and assembly stages together.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*Pipeline, error) {
	b := &builder{connectPolicy: ConnectPolicy}
	for _, opt := range opts {
		opt(b)
	}

	p := &Pipeline{logger: logger.Component(log, "pipeline")}
	policy := retry.FromMillis(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)

	if err := p.connect(ctx, cfg, b.connectPolicy); err != nil {
		p.Close()
		return nil, err
	}

	search := websearch.NewClient(websearch.Config{
		BaseURL:  cfg.APIs.WebSearch.BaseURL,
		APIKey:   cfg.APIs.WebSearch.APIKey,
		EngineID: cfg.APIs.WebSearch.EngineID,
		Timeout:  config.GetDuration(cfg.APIs.WebSearch.Timeout),
		Retry:    policy,
	}, log)

	cacheOpts := []searchcache.Option{
		searchcache.WithTTL(config.GetDuration(cfg.Research.CacheTTL)),
		searchcache.WithFetchTimeout(config.GetDuration(cfg.Research.GenerationTimeout)),
		searchcache.WithLogger(log),
	}
	if p.redis != nil {
		cacheOpts = append(cacheOpts, searchcache.WithStore(
			searchcache.NewRedisStore(p.redis.Client, cfg.Database.Redis.KeyPrefix),
		))
	}
	p.Cache = searchcache.New(search, cacheOpts...)

	store, err := crm.NewStore(cfg, crm.Backends{Postgres: p.postgres, Elasticsearch: p.es}, policy, log)
	if err != nil {
		p.Close()
		return nil, err
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithLimits(limitsFromConfig(cfg.Research)),
		orchestrator.WithConcurrency(cfg.Research.AttendeeConcurrency),
		orchestrator.WithLogger(log),
	}
	// Keep the finder a nil interface when CRM is disabled.
	var finder conversation.ContactFinder
	if store != nil {
		matcher := crmmatch.NewMatcher(store,
			crmmatch.WithPrefixLength(cfg.Research.FuzzyPrefixLength),
			crmmatch.WithLogger(log),
		)
		finder = matcher
		orchOpts = append(orchOpts, orchestrator.WithContactFinder(matcher))
	}
	research := orchestrator.New(p.Cache, orchOpts...)

	scraper := scrape.New(scrape.Config{
		UserAgent:       cfg.APIs.Scrape.UserAgent,
		MaxContentChars: cfg.APIs.Scrape.MaxContentChars,
		Timeout:         config.GetDuration(cfg.APIs.Scrape.Timeout),
		Retry:           policy,
	}, log)

	p.LLM = llm.NewClient(llm.Config{
		BaseURL:     cfg.APIs.LLM.BaseURL,
		APIKey:      cfg.APIs.LLM.APIKey,
		Model:       cfg.APIs.LLM.Model,
		MaxTokens:   cfg.APIs.LLM.MaxTokens,
		Temperature: cfg.APIs.LLM.Temperature,
		Timeout:     config.GetDuration(cfg.APIs.LLM.Timeout),
		Retry:       policy,
	}, log)
	if !p.LLM.Configured() {
		p.logger.Warn("LLM API key is not set, report generation will fail", nil)
	}

	generationTimeout := config.GetDuration(cfg.Research.GenerationTimeout)
	engine := conversation.NewEngine(p.LLM,
		conversation.NewToolbox(p.Cache, scraper, finder),
		conversation.WithMaxToolRounds(cfg.Research.MaxToolRounds),
		conversation.WithDeadline(generationTimeout),
		conversation.WithLogger(log),
	)

	refiner := critique.New(p.LLM,
		critique.WithTimeout(generationTimeout),
		critique.WithLogger(log),
	)

	p.Generator = report.NewGenerator(research, engine,
		report.WithCritic(refiner),
		report.WithCritiqueEnabled(cfg.Research.IsCritiqueEnabled()),
		report.WithDeadline(generationTimeout),
		report.WithLogger(log),
	)

	p.logger.Info("Report pipeline ready", map[string]interface{}{
		"cacheBackend":    cfg.Research.CacheBackend,
		"crmBackend":      cfg.Research.CRMBackend,
		"maxToolRounds":   cfg.Research.MaxToolRounds,
		"critiqueEnabled": cfg.Research.IsCritiqueEnabled(),
	})
	return p, nil
}

func (p *Pipeline) connect(ctx context.Context, cfg *config.Config, policy retry.Policy) error {
	if cfg.Research.CacheBackend == CacheRedis {
		rdb, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		p.redis = rdb
		if err := p.waitFor(ctx, policy, "Redis", rdb.Ping); err != nil {
			return err
		}
	}

	switch cfg.Research.CRMBackend {
	case crm.BackendPostgres:
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		p.postgres = pg
		if err := p.waitFor(ctx, policy, "PostgreSQL", pg.Ping); err != nil {
			return err
		}
	case crm.BackendElasticsearch:
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		p.es = es
		if err := p.waitFor(ctx, policy, "Elasticsearch", es.Ping); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) waitFor(ctx context.Context, policy retry.Policy, name string, ping func(context.Context) error) error {
	attempt := 0
	_, err := retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		attempt++
		if err := ping(ctx); err != nil {
			p.logger.Warn(fmt.Sprintf("%s connection failed, retrying...", name), map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
	}
	p.logger.Info(fmt.Sprintf("%s connected successfully", name), nil)
	return nil
}

// Ready pings every store the pipeline depends on.
func (p *Pipeline) Ready(ctx context.Context) error {
	if p.redis != nil {
		if err := p.redis.Ping(ctx); err != nil {
			return err
		}
	}
	if p.postgres != nil {
		if err := p.postgres.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	if p.es != nil {
		if err := p.es.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the store connections.
func (p *Pipeline) Close() {
	if p.redis != nil {
		_ = p.redis.Close()
	}
	if p.postgres != nil {
		_ = p.postgres.Close()
	}
}

func limitsFromConfig(r config.ResearchConfig) orchestrator.Limits {
	return orchestrator.Limits{
		LinkedIn:       r.LinkedInResults,
		Background:     r.BackgroundResults,
		Overview:       r.OverviewResults,
		News:           r.NewsResults,
		Financial:      r.FinancialResults,
		Transformation: r.TransformationResults,
		Competitive:    r.CompetitiveResults,
	}
}

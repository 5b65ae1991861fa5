// Package report produces the final intelligence report: research, drafting,
// validation, optional critique and assembly.
package report

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "meeting-intel/internal/common/errors"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/metrics"
	"meeting-intel/internal/models"
	"meeting-intel/internal/research/conversation"
	"meeting-intel/internal/research/prompts"
	"meeting-intel/internal/research/validator"
)

// Researcher is satisfied by *orchestrator.Orchestrator.
type Researcher interface {
	Run(ctx context.Context, req models.ResearchRequest) *models.ResearchContext
}

// Drafter is satisfied by *conversation.Engine.
type Drafter interface {
	Run(ctx context.Context, system, user string) (*conversation.Result, error)
}

// Critic is satisfied by *critique.Refiner.
type Critic interface {
	Refine(ctx context.Context, draft string, rc *models.ResearchContext) (string, bool)
}

type Generator struct {
	research        Researcher
	drafter         Drafter
	critic          Critic
	critiqueEnabled bool
	deadline        time.Duration
	assembler       *Assembler
	logger          logger.Logger
	tracer          trace.Tracer
	now             func() time.Time
}

type Option func(*Generator)

// WithCritic enables the critique pass.
func WithCritic(c Critic) Option {
	return func(g *Generator) {
		g.critic = c
		g.critiqueEnabled = c != nil
	}
}

// WithCritiqueEnabled toggles a configured critic globally.
func WithCritiqueEnabled(enabled bool) Option {
	return func(g *Generator) { g.critiqueEnabled = enabled }
}

// WithDeadline bounds a whole GenerateReport call, critique included.
func WithDeadline(d time.Duration) Option {
	return func(g *Generator) { g.deadline = d }
}

func WithAssembler(a *Assembler) Option {
	return func(g *Generator) {
		if a != nil {
			g.assembler = a
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGenerator(research Researcher, drafter Drafter, opts ...Option) *Generator {
	g := &Generator{
		research:  research,
		drafter:   drafter,
		assembler: NewAssembler(),
		logger:    logger.NewNoOpLogger(),
		tracer:    otel.Tracer("meeting-intel/research/report"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logger.Component(g.logger, "report-generator")
	return g
}

// GenerateReport runs the whole pipeline for req. It fails only on invalid
// input or when the model never produced a draft; enrichment failures show
// up as gaps inside the report.
func (g *Generator) GenerateReport(ctx context.Context, req models.ResearchRequest) (*models.IntelligenceReport, error) {
	if err := ValidateRequest(req); err != nil {
		metrics.ReportsGenerated.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if g.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.deadline)
		defer cancel()
	}

	ctx, span := g.tracer.Start(ctx, "report.generate", trace.WithAttributes(
		attribute.String("company", req.Company),
	))
	defer span.End()

	start := g.now()
	log := g.logger.With(map[string]interface{}{"company": req.Company})

	rc := g.research.Run(ctx, req)

	user, err := prompts.User(rc)
	if err != nil {
		metrics.ReportsGenerated.WithLabelValues("failed").Inc()
		return nil, apperrors.NewReportGenerationFailedError(err)
	}

	result, err := g.drafter.Run(ctx, prompts.System(), user)
	if err != nil {
		outcome := "failed"
		if apperrors.HasCode(err, apperrors.ErrCodeLLMTimeout) {
			outcome = "timeout"
		}
		metrics.ReportsGenerated.WithLabelValues(outcome).Inc()
		log.Error("report drafting failed", map[string]interface{}{"error": err})
		return nil, err
	}

	draft := validator.Validate(result.Draft)
	if raw, ok := draft.(validator.RawDraft); ok {
		log.Warn("draft is not a structured report, keeping raw text", map[string]interface{}{
			"reason": raw.Reason,
		})
	}

	draft, critiqued := g.critique(ctx, log, draft, rc, req.SkipCritique)

	report := g.assembler.Assemble(AssemblyInput{
		Research:  rc,
		Draft:     draft,
		Critiqued: critiqued,
		StartedAt: start,
	})

	outcome := "raw"
	if report.Structured {
		outcome = "structured"
	}
	metrics.ReportsGenerated.WithLabelValues(outcome).Inc()
	metrics.ReportDuration.Observe(g.now().Sub(start).Seconds())

	log.Info("report generated", map[string]interface{}{
		"reportId":   report.ID,
		"structured": report.Structured,
		"critiqued":  critiqued,
		"toolRounds": result.ToolRounds,
		"sources":    report.Metadata.SourcesCount,
	})
	return report, nil
}

// critique never turns a structured draft into a raw one.
func (g *Generator) critique(ctx context.Context, log logger.Logger, draft validator.Draft, rc *models.ResearchContext, skip bool) (validator.Draft, bool) {
	if g.critic == nil || !g.critiqueEnabled || skip {
		metrics.CritiqueOutcomes.WithLabelValues("skipped").Inc()
		return draft, false
	}

	refined, applied := g.critic.Refine(ctx, draft.Text(), rc)
	if !applied {
		return draft, false
	}

	candidate := validator.Validate(refined)
	_, wasStructured := draft.(validator.StructuredDraft)
	if _, isRaw := candidate.(validator.RawDraft); wasStructured && isRaw {
		metrics.CritiqueOutcomes.WithLabelValues("rejected").Inc()
		log.Warn("critique broke the report structure, keeping the original draft", nil)
		return draft, false
	}
	return candidate, true
}

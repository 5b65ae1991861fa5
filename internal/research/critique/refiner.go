// Package critique runs the optional editorial pass over a draft. It is best
// effort: any failure yields the original draft untouched.
package critique

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/metrics"
	"meeting-intel/internal/models"
	"meeting-intel/internal/providers/llm"
	"meeting-intel/internal/research/prompts"
)

type ChatModel interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

type Refiner struct {
	model   ChatModel
	timeout time.Duration
	logger  logger.Logger
	tracer  trace.Tracer
}

type Option func(*Refiner)

// WithTimeout bounds the critique call independently of the caller.
func WithTimeout(d time.Duration) Option {
	return func(r *Refiner) { r.timeout = d }
}

func WithLogger(l logger.Logger) Option {
	return func(r *Refiner) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(model ChatModel, opts ...Option) *Refiner {
	r := &Refiner{
		model:  model,
		logger: logger.NewNoOpLogger(),
		tracer: otel.Tracer("meeting-intel/research/critique"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.Component(r.logger, "critique")
	return r
}

// Refine returns the revised draft and true, or draft unchanged and false.
func (r *Refiner) Refine(ctx context.Context, draft string, rc *models.ResearchContext) (refined string, applied bool) {
	ctx, span := r.tracer.Start(ctx, "critique.refine")
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			r.fallback(fmt.Errorf("panic: %v", p))
			refined, applied = draft, false
		}
	}()

	out, err := r.refine(ctx, draft, rc)
	if err != nil {
		r.fallback(err)
		return draft, false
	}
	metrics.CritiqueOutcomes.WithLabelValues("applied").Inc()
	return out, true
}

func (r *Refiner) refine(ctx context.Context, draft string, rc *models.ResearchContext) (string, error) {
	if r.model == nil {
		return "", fmt.Errorf("no model configured")
	}
	if strings.TrimSpace(draft) == "" {
		return "", fmt.Errorf("empty draft")
	}
	budget, ok := r.budget(ctx)
	if !ok {
		return "", fmt.Errorf("no time left before the generation deadline")
	}
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	user, err := prompts.CritiqueUser(draft, rc)
	if err != nil {
		return "", err
	}

	resp, err := r.model.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.CritiqueSystem()},
			{Role: llm.RoleUser, Content: user},
		},
		JSONMode: looksLikeJSON(draft),
	})
	if err != nil {
		return "", err
	}

	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", fmt.Errorf("empty critique response")
	}
	return out, nil
}

// budget is the critique timeout capped by the caller's deadline. Zero means
// unbounded; false means the deadline has already passed.
func (r *Refiner) budget(ctx context.Context) (time.Duration, bool) {
	budget := r.timeout
	if dl, ok := ctx.Deadline(); ok {
		left := time.Until(dl)
		if left <= 0 {
			return 0, false
		}
		if budget <= 0 || left < budget {
			budget = left
		}
	}
	return budget, true
}

func (r *Refiner) fallback(err error) {
	metrics.CritiqueOutcomes.WithLabelValues("fallback").Inc()
	r.logger.Warn("critique pass failed, keeping original draft", map[string]interface{}{
		"error": err,
	})
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "```json")
}

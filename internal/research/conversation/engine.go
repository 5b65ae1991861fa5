// Package conversation drives a bounded tool-calling exchange with the model.
//
// A run submits the system and user messages with the tool set advertised.
// If the model asks for tools they are executed once each, their results are
// appended and the model is asked again. After MaxToolRounds rounds the tools
// are withdrawn and the next answer is final whatever it contains.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "meeting-intel/internal/common/errors"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/providers/llm"
)

const DefaultMaxToolRounds = 1

// ChatModel is satisfied by *llm.Client.
type ChatModel interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// Result is the outcome of one run.
type Result struct {
	Draft      string
	ToolRounds int
	ToolCalls  int
	Messages   []llm.Message
}

type Engine struct {
	model         ChatModel
	tools         *Toolbox
	maxToolRounds int
	deadline      time.Duration
	logger        logger.Logger
	tracer        trace.Tracer
}

type Option func(*Engine)

// WithMaxToolRounds sets how many tool rounds are honoured. Zero disables
// tools entirely.
func WithMaxToolRounds(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxToolRounds = n
		}
	}
}

// WithDeadline bounds a whole run, including tool execution.
func WithDeadline(d time.Duration) Option {
	return func(e *Engine) { e.deadline = d }
}

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine. tools may be nil, in which case no tools are
// advertised.
func NewEngine(model ChatModel, tools *Toolbox, opts ...Option) *Engine {
	e := &Engine{
		model:         model,
		tools:         tools,
		maxToolRounds: DefaultMaxToolRounds,
		logger:        logger.NewNoOpLogger(),
		tracer:        otel.Tracer("meeting-intel/research/conversation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logger.Component(e.logger, "conversation")
	return e
}

// Run executes the conversation and returns the model's final text.
func (e *Engine) Run(ctx context.Context, system, user string) (*Result, error) {
	if e.model == nil {
		return nil, apperrors.NewLLMNotConfiguredError()
	}
	if e.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.deadline)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, "conversation.run")
	defer span.End()

	res := &Result{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
	}

	for {
		offerTools := e.tools != nil && res.ToolRounds < e.maxToolRounds
		req := llm.ChatRequest{Messages: res.Messages}
		if offerTools {
			req.Tools = e.tools.Definitions()
		}

		resp, err := e.model.Chat(ctx, req)
		if err != nil {
			return nil, e.classify(ctx, err)
		}

		if offerTools && len(resp.ToolCalls) > 0 {
			e.executeTools(ctx, res, resp)
			continue
		}

		if len(resp.ToolCalls) > 0 {
			e.logger.Warn("ignoring tool calls after the final round", map[string]interface{}{
				"toolCalls": len(resp.ToolCalls),
			})
		}

		draft := strings.TrimSpace(resp.Content)
		if draft == "" {
			return nil, apperrors.NewLLMEmptyResponseError()
		}
		res.Draft = draft
		res.Messages = append(res.Messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
		span.SetAttributes(
			attribute.Int("tool_rounds", res.ToolRounds),
			attribute.Int("tool_calls", res.ToolCalls),
		)
		return res, nil
	}
}

func (e *Engine) executeTools(ctx context.Context, res *Result, resp *llm.ChatResponse) {
	ctx, span := e.tracer.Start(ctx, "conversation.tools", trace.WithAttributes(
		attribute.Int("calls", len(resp.ToolCalls)),
	))
	defer span.End()

	res.Messages = append(res.Messages, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})
	for _, call := range resp.ToolCalls {
		payload := e.tools.Execute(ctx, call)
		res.Messages = append(res.Messages, llm.Message{
			Role:       llm.RoleTool,
			Content:    payload,
			ToolCallID: call.ID,
			Name:       call.Name,
		})
		e.logger.Debug("tool executed", map[string]interface{}{
			"tool":  call.Name,
			"bytes": len(payload),
		})
	}
	res.ToolRounds++
	res.ToolCalls += len(resp.ToolCalls)
}

// classify keeps configuration errors, turns an expired run into
// LLM_TIMEOUT and wraps anything else as a generation failure.
func (e *Engine) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		e.logger.Error("report generation timed out", map[string]interface{}{"error": err})
		if apperrors.HasCode(err, apperrors.ErrCodeLLMTimeout) {
			return err
		}
		return apperrors.NewLLMTimeoutError(err)
	}
	e.logger.Error("model call failed", map[string]interface{}{"error": err})
	if _, ok := apperrors.AsStandardError(err); ok {
		return err
	}
	return apperrors.NewLLMGenerationFailedError(err)
}

package generatereport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"meeting-intel/internal/common/camunda"
	"meeting-intel/internal/common/config"
	"meeting-intel/internal/common/errors"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/metrics"
	"meeting-intel/internal/common/observability"
	"meeting-intel/internal/common/validation"
	"meeting-intel/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const TaskType = "generate-meeting-report"

// completeTimeout bounds broker commands sent after the job context ends.
const completeTimeout = 10 * time.Second

// ReportGenerator runs the research and report pipeline for one request.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, req models.ResearchRequest) (*models.IntelligenceReport, error)
}

type Handler struct {
	config     *Config
	logger     logger.Logger
	camunda    *camunda.Client
	generator  ReportGenerator
	obs        *observability.Observability
	errHandler *errors.ErrorHandler
}

type HandlerOptions struct {
	AppConfig     *config.Config
	Camunda       *camunda.Client
	CustomConfig  *Config
	Generator     ReportGenerator
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)

	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("invalid configuration for %s: report generator is required", TaskType)
	}

	var loggerInstance logger.Logger
	if opts.Logger != nil {
		loggerInstance = opts.Logger
	} else {
		loggerInstance = logger.NewStructured("info", "json")
	}
	loggerInstance = logger.Component(loggerInstance, TaskType)

	return &Handler{
		config:     workerConfig,
		logger:     loggerInstance,
		camunda:    opts.Camunda,
		generator:  opts.Generator,
		obs:        opts.Observability,
		errHandler: errors.NewErrorHandler(loggerInstance),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if h.obs != nil {
		var span trace.Span
		ctx, span = h.obs.StartSpan(ctx, "job."+TaskType,
			attribute.Int64("job.key", job.GetKey()),
			attribute.Int64("job.process_instance_key", job.GetProcessInstanceKey()),
		)
		defer span.End()
	}

	h.logger.Info("Processing meeting report request", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"retries":            job.GetRetries(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.fail(ctx, client, job, err, startTime)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err, startTime)
		return
	}

	if err := h.completeJob(ctx, client, job, output); err != nil {
		h.fail(ctx, client, job, err, startTime)
		return
	}

	status := "raw"
	if output.Report.Structured {
		status = "structured"
	}
	h.record(ctx, startTime, status)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// Execute implements the standard worker interface for direct execution
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	report, err := h.generator.GenerateReport(ctx, input.ToRequest())
	if err != nil {
		return nil, err
	}
	return &Output{Report: report}, nil
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInputParsingFailedError(err)
	}

	validationResult := validation.ValidateInput(variables, GetInputSchema())
	if !validationResult.Valid {
		return nil, errors.NewInvalidResearchRequestError(
			fmt.Sprintf("Validation errors: %v", validationResult.GetErrorMessages()),
		)
	}

	raw, err := json.Marshal(variables)
	if err != nil {
		return nil, errors.NewInputParsingFailedError(err)
	}
	input := &Input{}
	if err := json.Unmarshal(raw, input); err != nil {
		return nil, errors.NewInputParsingFailedError(err)
	}
	return input, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	variables, err := output.Variables()
	if err != nil {
		return errors.NewReportGenerationFailedError(fmt.Errorf("encode report variables: %w", err))
	}

	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromMap(variables)
	if err != nil {
		return errors.NewReportGenerationFailedError(fmt.Errorf("build complete command: %w", err))
	}

	// The job context may already be spent once the report is ready.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completeTimeout)
	defer cancel()

	if _, err := request.Send(sendCtx); err != nil {
		return errors.NewReportGenerationFailedError(fmt.Errorf("complete job: %w", err))
	}

	h.logger.Info("Successfully completed meeting report", map[string]interface{}{
		"jobKey":     job.GetKey(),
		"reportId":   output.Report.ID,
		"structured": output.Report.Structured,
		"critiqued":  output.Report.Metadata.Critiqued,
	})
	return nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error, startTime time.Time) {
	stdErr := errors.Normalize(err)
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(stdErr.Code))

	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.record(ctx, startTime, "failed")

	// The job context may already be spent; reporting must still reach the broker.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completeTimeout)
	defer cancel()
	h.errHandler.HandleJobError(reportCtx, client, job, stdErr)
}

func (h *Handler) record(ctx context.Context, startTime time.Time, status string) {
	if h.obs == nil {
		return
	}
	h.obs.RecordJobProcessed(ctx, status)
	h.obs.RecordJobDuration(ctx, time.Since(startTime), status)
}

func (h *Handler) HealthCheck(ctx context.Context) error {
	if h.camunda == nil {
		return nil
	}
	if err := h.camunda.HealthCheck(ctx); err != nil {
		return fmt.Errorf("camunda health check failed: %w", err)
	}
	return nil
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) FetchVariables() []string {
	return inputVariables
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}

func (h *Handler) GetConfig() *Config {
	return h.config
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()

	if appConfig != nil {
		workerCfg := config.GetWorkerConfig(appConfig, TaskType)
		cfg.Enabled = workerCfg.Enabled
		if workerCfg.MaxJobsActive > 0 {
			cfg.MaxJobsActive = workerCfg.MaxJobsActive
		}
		if workerCfg.Timeout > 0 {
			cfg.Timeout = config.GetDuration(workerCfg.Timeout)
		}
	}

	return cfg
}

package camunda

import (
	"fmt"
	"time"

	"meeting-intel/internal/common/config"
	"meeting-intel/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler is implemented by every worker handler.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
	GetTaskType() string
	FetchVariables() []string
}

// Worker is one open job subscription.
type Worker struct {
	taskType  string
	jobWorker worker.JobWorker
	logger    logger.Logger
}

// StartWorker opens a job worker for handler using the per-worker settings
// from config. It returns nil when the worker is disabled.
func StartWorker(client zbc.Client, handler JobHandler, wcfg config.WorkerConfig, log logger.Logger) *Worker {
	taskType := handler.GetTaskType()
	if !wcfg.Enabled {
		log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return nil
	}

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(handler.Handle).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Name(fmt.Sprintf("%s-worker", taskType)).
		FetchVariables(handler.FetchVariables()...).
		Open()

	log.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})

	return &Worker{
		taskType:  taskType,
		jobWorker: jobWorker,
		logger:    log,
	}
}

// Stop closes the subscription and waits for in-flight jobs.
func (w *Worker) Stop() {
	if w == nil || w.jobWorker == nil {
		return
	}
	w.logger.Info("stopping worker", map[string]interface{}{"taskType": w.taskType})
	w.jobWorker.Close()
	w.jobWorker.AwaitClose()
	w.jobWorker = nil
}

package camunda

import (
	"context"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"

	"license-verification/internal/common/config"
)

// JobHandler is implemented by every stage handler.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// Registration binds a task type to its handler.
type Registration struct {
	TaskType string
	Handler  JobHandler
}

// StartWorker opens a job worker for taskType. It returns nil when the worker
// is disabled in config.
func StartWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler JobHandler, log *zap.Logger) worker.JobWorker {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return nil
	}

	jw := client.NewJobWorker().
		JobType(taskType).
		Handler(handler.Handle).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
	return jw
}

// StartWorkers opens one worker per registration and returns the open ones.
func StartWorkers(client zbc.Client, cfg *config.Config, regs []Registration, log *zap.Logger) []worker.JobWorker {
	var workers []worker.JobWorker
	for _, reg := range regs {
		if jw := StartWorker(client, reg.TaskType, config.GetWorkerConfig(cfg, reg.TaskType), reg.Handler, log); jw != nil {
			workers = append(workers, jw)
		}
	}
	return workers
}

// StopWorkers closes the workers and waits for in-flight jobs up to timeout.
func StopWorkers(workers []worker.JobWorker, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		for _, jw := range workers {
			jw.Close()
			jw.AwaitClose()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// CompleteJob completes job with output as its variables.
func CompleteJob(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("build complete command: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return fmt.Errorf("send complete command: %w", err)
	}
	return nil
}

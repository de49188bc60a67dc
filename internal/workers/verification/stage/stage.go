// Package stage holds the boundary shared by the verification workers:
// bookkeeping around a stage run and reporting its result to the broker.
package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"license-verification/internal/common/audit"
	"license-verification/internal/common/camunda"
	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/common/logger"
	"license-verification/internal/common/metrics"
	"license-verification/internal/common/notify"
	"license-verification/internal/common/observability"
	"license-verification/internal/recordstore"
)

// markerTimeout bounds abort marker writes, which run detached from the stage
// context.
const markerTimeout = 5 * time.Second

// Deps are the collaborators every stage shares.
type Deps struct {
	Store    recordstore.Store
	Notifier notify.Notifier
	Audit    audit.Recorder
	Obs      *observability.Observability
}

// Outcome is what a stage produced. ApplicationID should be set even when the
// stage fails, so the abort marker can be written.
type Outcome struct {
	ApplicationID string
	Verdict       *bool
	Output        interface{}
	Details       map[string]interface{}
}

// Func is the body of one stage run.
type Func func(ctx context.Context) (Outcome, error)

type Runner struct {
	taskType   string
	deps       Deps
	timeout    time.Duration
	log        logger.Logger
	errHandler *apperrors.ErrorHandler
}

func NewRunner(taskType string, deps Deps, timeout time.Duration, log logger.Logger) *Runner {
	if deps.Notifier == nil {
		deps.Notifier = notify.Noop{}
	}
	if deps.Audit == nil {
		deps.Audit = audit.Noop{}
	}
	return &Runner{
		taskType:   taskType,
		deps:       deps,
		timeout:    timeout,
		log:        log,
		errHandler: apperrors.NewErrorHandler(log),
	}
}

func (r *Runner) TaskType() string { return r.taskType }

func (r *Runner) Store() recordstore.Store { return r.deps.Store }

// Run executes fn for a Zeebe job. Success completes the job with
// Outcome.Output; failure fails the job or throws a BPMN error.
func (r *Runner) Run(client worker.JobClient, job entities.Job, fn Func) {
	log := r.log.WithFields(map[string]interface{}{
		"jobKey":             job.Key,
		"processInstanceKey": job.ProcessInstanceKey,
	})
	log.Info("processing job", map[string]interface{}{"retries": job.Retries})

	ctx, cancel := r.context()
	defer cancel()

	// The abort marker is only written once the broker will not redeliver.
	final := func(err error) bool {
		stdErr := apperrors.Normalize(err)
		return !apperrors.ShouldRetry(stdErr, job.Retries) || job.Retries <= 1
	}

	outcome, err := r.execute(ctx, fn, final)
	if err != nil {
		r.errHandler.HandleJobError(ctx, client, job, err)
		return
	}

	if err := camunda.CompleteJob(ctx, client, job, outcome.Output); err != nil {
		log.Error("failed to complete job", map[string]interface{}{"error": err})
		return
	}
	log.Info("job completed", map[string]interface{}{"applicationId": outcome.ApplicationID})
}

// Execute runs fn outside the broker. Any error is final.
func (r *Runner) Execute(ctx context.Context, fn Func) (Outcome, error) {
	return r.execute(ctx, fn, func(error) bool { return true })
}

// ExecuteQueued runs fn for a queue message. Retryable failures are left for
// redelivery and do not write the abort marker.
func (r *Runner) ExecuteQueued(ctx context.Context, fn Func) (Outcome, error) {
	return r.execute(ctx, fn, func(err error) bool {
		return !apperrors.Normalize(err).Retryable
	})
}

func (r *Runner) context() (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), r.timeout)
}

func (r *Runner) execute(ctx context.Context, fn Func, final func(error) bool) (Outcome, error) {
	started := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(r.taskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(r.taskType).Dec()

	outcome, err := fn(ctx)
	elapsed := time.Since(started)
	metrics.WorkerJobDuration.WithLabelValues(r.taskType).Observe(elapsed.Seconds())

	if err != nil {
		stdErr := apperrors.Normalize(err)
		metrics.WorkerJobsFailed.WithLabelValues(r.taskType, string(stdErr.Code)).Inc()
		r.deps.Obs.RecordStage(ctx, r.taskType, audit.OutcomeError, elapsed)

		if final(err) {
			r.abort(ctx, outcome.ApplicationID, stdErr)
		}
		event := audit.NewEvent(outcome.ApplicationID, r.taskType, audit.OutcomeError)
		event.ErrorCode = string(stdErr.Code)
		event.Details = map[string]interface{}{"message": stdErr.Message, "details": stdErr.Details}
		r.record(ctx, event)
		return outcome, stdErr
	}

	metrics.WorkerJobsCompleted.WithLabelValues(r.taskType).Inc()

	result := audit.OutcomeDone
	if outcome.Verdict != nil {
		result = audit.OutcomeFailed
		if *outcome.Verdict {
			result = audit.OutcomePassed
		}
	}
	r.deps.Obs.RecordStage(ctx, r.taskType, result, elapsed)
	r.clearAbort(ctx, outcome.ApplicationID)

	event := audit.NewEvent(outcome.ApplicationID, r.taskType, result)
	event.Verdict = outcome.Verdict
	event.Details = outcome.Details
	r.record(ctx, event)

	return outcome, nil
}

func (r *Runner) abort(ctx context.Context, applicationID string, stdErr *apperrors.StandardError) {
	if applicationID == "" || r.deps.Store == nil {
		return
	}
	// The stage context may already be cancelled, e.g. by a sibling
	// comparison failing first.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markerTimeout)
	defer cancel()

	reason := fmt.Sprintf("%s: %s", stdErr.Code, stdErr.Message)
	if err := r.deps.Store.MarkAborted(ctx, applicationID, r.taskType, reason); err != nil {
		r.log.Warn("failed to write abort marker", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err,
		})
	}
}

// clearAbort removes a marker this stage left on an earlier failed attempt.
func (r *Runner) clearAbort(ctx context.Context, applicationID string) {
	if applicationID == "" || r.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markerTimeout)
	defer cancel()

	if err := r.deps.Store.ClearAbort(ctx, applicationID, r.taskType); err != nil {
		r.log.Warn("failed to clear abort marker", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err,
		})
	}
}

func (r *Runner) record(ctx context.Context, event audit.Event) {
	if err := r.deps.Audit.Record(ctx, event); err != nil {
		r.log.Warn("audit record failed", map[string]interface{}{
			"applicationId": event.ApplicationID,
			"error":         err,
		})
	}
}

// RecordVerdict writes field for the application and publishes failureMessage
// when the verdict is false.
func (r *Runner) RecordVerdict(ctx context.Context, applicationID, field string, verdict bool, failureMessage string) error {
	if err := r.deps.Store.SetVerdict(ctx, applicationID, field, verdict); err != nil {
		if _, ok := apperrors.AsStandardError(err); ok {
			return err
		}
		return apperrors.NewRecordUpdateFailedError(field, err)
	}
	metrics.VerdictsTotal.WithLabelValues(r.taskType, metrics.VerdictLabel(verdict)).Inc()

	r.log.Info("verdict recorded", map[string]interface{}{
		"applicationId": applicationID,
		"field":         field,
		"verdict":       verdict,
	})

	if !verdict {
		r.Notify(ctx, applicationID, failureMessage)
	}
	return nil
}

// Notify publishes message as both subject and body. Failures are logged and
// counted, never returned.
func (r *Runner) Notify(ctx context.Context, applicationID, message string) {
	status := "sent"
	if err := r.deps.Notifier.Publish(ctx, message, message); err != nil {
		status = "failed"
		r.log.Warn("notification failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         apperrors.NewNotificationSendFailedError(err),
		})
	}
	metrics.NotificationsTotal.WithLabelValues(r.taskType, status).Inc()
}

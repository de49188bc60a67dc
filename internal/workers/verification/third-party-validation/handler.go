package thirdpartyvalidation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/common/logger"
	"license-verification/internal/common/notify"
	"license-verification/internal/common/validation"
	"license-verification/internal/models"
	"license-verification/internal/workers/verification/stage"
)

const (
	TaskType = "third-party-validation"
)

// Poster sends a JSON request and returns the 2xx response body.
type Poster interface {
	PostJSON(ctx context.Context, url string, payload interface{}) ([]byte, error)
}

type Handler struct {
	config *Config
	client Poster
	runner *stage.Runner
	logger logger.Logger
}

func NewHandler(config *Config, client Poster, deps stage.Deps, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		client: client,
		runner: stage.NewRunner(TaskType, deps, config.Timeout, log),
		logger: log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, func(ctx context.Context) (stage.Outcome, error) {
		var input Input
		if err := stage.Decode(job.Variables, &input, validation.ApplicationSchema); err != nil {
			return stage.Outcome{}, err
		}
		return h.outcomeForInput(ctx, &input)
	})
}

// HandleMessage is the queue entry point. A nil return lets the consumer
// delete the message, so only retryable failures are returned. Anything else
// is logged and dropped; the abort marker and audit event already record it.
func (h *Handler) HandleMessage(ctx context.Context, body []byte) error {
	err := h.handleMessage(ctx, body)
	if err == nil {
		return nil
	}
	stdErr := apperrors.Normalize(err)
	if stdErr.Retryable {
		return stdErr
	}
	h.logger.Warn("dropping validation message", map[string]interface{}{
		"errorCode": string(stdErr.Code),
		"error":     stdErr.Error(),
	})
	return nil
}

func (h *Handler) handleMessage(ctx context.Context, body []byte) error {
	var msg Message
	if err := stage.Decode(string(body), &msg, validation.ClaimMessageSchema); err != nil {
		return err
	}
	req, err := msg.Request()
	if err != nil {
		return err
	}
	_, err = h.runner.ExecuteQueued(ctx, func(ctx context.Context) (stage.Outcome, error) {
		return h.outcome(ctx, req)
	})
	return err
}

// Run executes the stage with metrics and audit, outside the broker.
func (h *Handler) Run(ctx context.Context, input *Input) (*Output, error) {
	outcome, err := h.runner.Execute(ctx, func(ctx context.Context) (stage.Outcome, error) {
		return h.outcomeForInput(ctx, input)
	})
	if err != nil {
		return nil, err
	}
	return outcome.Output.(*Output), nil
}

func (h *Handler) outcomeForInput(ctx context.Context, input *Input) (stage.Outcome, error) {
	req, err := h.requestFor(ctx, input)
	if err != nil {
		return stage.Outcome{ApplicationID: input.Application.AppUUID}, err
	}
	return h.outcome(ctx, req)
}

func (h *Handler) outcome(ctx context.Context, req *Request) (stage.Outcome, error) {
	o := stage.Outcome{ApplicationID: req.ApplicationID}
	out, err := h.execute(ctx, req)
	if err != nil {
		return o, err
	}
	o.Output = out
	o.Verdict = models.Bool(out.ThirdPartyValidation)
	return o, nil
}

// Execute validates the claim of input without bookkeeping.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	req, err := h.requestFor(ctx, input)
	if err != nil {
		return nil, err
	}
	return h.execute(ctx, req)
}

func (h *Handler) requestFor(ctx context.Context, input *Input) (*Request, error) {
	applicationID := input.Application.AppUUID
	if applicationID == "" {
		return nil, apperrors.NewInvalidInputError("application.app_uuid is required")
	}

	claim := input.Claim
	if len(claim) == 0 {
		rec, err := h.runner.Store().Get(ctx, applicationID)
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeRecordNotFound) {
				return nil, apperrors.NewClaimNotFoundError(applicationID)
			}
			return nil, err
		}
		if len(rec.Claim) == 0 {
			return nil, apperrors.NewClaimNotFoundError(applicationID)
		}
		claim = rec.Claim
	}

	fields := make(map[string]string, len(claim))
	for k, v := range claim {
		fields[k] = v
	}
	stripApplicationID(fields)
	return &Request{ApplicationID: applicationID, Fields: fields}, nil
}

func (h *Handler) execute(ctx context.Context, req *Request) (*Output, error) {
	callCtx := ctx
	if h.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, h.config.RequestTimeout)
		defer cancel()
	}

	body, err := h.client.PostJSON(callCtx, h.config.URL, req.Fields)
	if err != nil {
		return nil, apperrors.NewThirdPartyUnavailableError(err)
	}

	result, err := ParseResult(body)
	if err != nil {
		return nil, err
	}

	if err := h.runner.RecordVerdict(ctx, req.ApplicationID, models.FieldThirdPartyValidation, result, notify.MessageThirdPartyFailed); err != nil {
		return nil, err
	}

	h.logger.Info("third-party validation done", map[string]interface{}{
		"applicationId": req.ApplicationID,
		"result":        result,
	})

	return &Output{
		ApplicationID:        req.ApplicationID,
		ThirdPartyValidation: result,
		Proceed:              result,
	}, nil
}

// ParseResult reads the result field of a validation response.
func ParseResult(body []byte) (bool, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, apperrors.NewThirdPartyBadResponseError(fmt.Sprintf("decode response: %v", err))
	}
	if resp.Result == nil {
		return false, nil
	}
	return *resp.Result, nil
}

// Request extracts the application id and strips every id key from the
// posted fields.
func (m Message) Request() (*Request, error) {
	fields := make(map[string]string, len(m))
	for k, v := range m {
		fields[k] = v
	}
	var applicationID string
	for _, key := range applicationIDKeys {
		if v := fields[key]; v != "" && applicationID == "" {
			applicationID = v
		}
	}
	if applicationID == "" {
		return nil, apperrors.NewInvalidInputError("message carries no application id")
	}
	stripApplicationID(fields)
	return &Request{ApplicationID: applicationID, Fields: fields}, nil
}

func stripApplicationID(fields map[string]string) {
	for _, key := range applicationIDKeys {
		delete(fields, key)
	}
}

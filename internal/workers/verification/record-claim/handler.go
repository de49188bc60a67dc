package recordclaim

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/common/logger"
	"license-verification/internal/common/storage"
	"license-verification/internal/common/validation"
	"license-verification/internal/models"
	"license-verification/internal/workers/verification/stage"
)

const (
	TaskType = "record-claim"
)

const utf8BOM = "\ufeff"

type Handler struct {
	config  *Config
	objects storage.ObjectStore
	runner  *stage.Runner
	logger  logger.Logger
}

func NewHandler(config *Config, objects storage.ObjectStore, deps stage.Deps, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		objects: objects,
		runner:  stage.NewRunner(TaskType, deps, config.Timeout, log),
		logger:  log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, func(ctx context.Context) (stage.Outcome, error) {
		var input Input
		if err := stage.Decode(job.Variables, &input, validation.ArchiveEventSchema, validation.ApplicationSchema); err != nil {
			return stage.Outcome{}, err
		}
		return h.outcome(ctx, &input)
	})
}

// Run executes the stage with metrics and audit, outside the broker.
func (h *Handler) Run(ctx context.Context, input *Input) (*Output, error) {
	outcome, err := h.runner.Execute(ctx, func(ctx context.Context) (stage.Outcome, error) {
		return h.outcome(ctx, input)
	})
	if err != nil {
		return nil, err
	}
	return outcome.Output.(*Output), nil
}

func (h *Handler) outcome(ctx context.Context, input *Input) (stage.Outcome, error) {
	o := stage.Outcome{ApplicationID: input.Application.AppUUID}
	out, err := h.execute(ctx, input)
	if err != nil {
		return o, err
	}
	o.Output = out
	o.Details = map[string]interface{}{"driverLicenseId": out.DriverLicenseID}
	return o, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	applicationID := input.Application.AppUUID
	bucket := input.Detail.Bucket.Name
	if applicationID == "" || bucket == "" {
		return nil, apperrors.NewInvalidInputError("application.app_uuid and detail.bucket.name are required")
	}

	key := input.DetailsKey
	if key == "" {
		key = models.StagedKey(h.config.UnzippedPrefix, models.MemberName(applicationID, models.MemberDetails, ".csv"))
	}

	data, err := h.objects.ReadObject(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, apperrors.NewClaimFileNotFoundError(key)
		}
		return nil, apperrors.NewObjectReadFailedError(key, err)
	}

	claim, dropped, err := ParseClaim(data)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		h.logger.Info("ignoring columns outside the claim schema", map[string]interface{}{
			"applicationId": applicationID,
			"columns":       dropped,
		})
	}

	if err := h.runner.Store().UpsertClaim(ctx, applicationID, claim); err != nil {
		if _, ok := apperrors.AsStandardError(err); ok {
			return nil, err
		}
		return nil, apperrors.NewRecordUpdateFailedError("claim", err)
	}

	h.logger.Info("claim recorded", map[string]interface{}{
		"applicationId": applicationID,
		"detailsKey":    key,
	})

	return &Output{
		Application:     models.ApplicationRef{AppUUID: applicationID},
		Claim:           claim,
		DriverLicenseID: claim.DocumentNumber(),
	}, nil
}

// ParseClaim reads the header and the first data row of a claim CSV. Further
// rows are ignored. It returns the claim restricted to the schema and the
// names of the columns it dropped.
func ParseClaim(data []byte) (models.ClaimFields, []string, error) {
	r := csv.NewReader(bytes.NewReader(data))

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, apperrors.NewClaimParseFailedError("claim file is empty")
	}
	if err != nil {
		return nil, nil, apperrors.NewClaimParseFailedError(fmt.Sprintf("read header: %v", err))
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	row, err := r.Read()
	if err == io.EOF {
		return nil, nil, apperrors.NewClaimParseFailedError("claim file has no data row")
	}
	if err != nil {
		return nil, nil, apperrors.NewClaimParseFailedError(fmt.Sprintf("read data row: %v", err))
	}

	raw := make(models.ClaimFields, len(header))
	for i, name := range header {
		raw[name] = row[i]
	}

	if missing := raw.Missing(); len(missing) > 0 {
		return nil, nil, apperrors.NewClaimParseFailedError(
			fmt.Sprintf("missing columns: %s", strings.Join(missing, ", ")))
	}

	var dropped []string
	for name := range raw {
		if !models.IsClaimField(name) {
			dropped = append(dropped, name)
		}
	}
	sort.Strings(dropped)

	return raw.Restrict(), dropped, nil
}

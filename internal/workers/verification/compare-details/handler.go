package comparedetails

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"license-verification/internal/common/config"
	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/common/logger"
	"license-verification/internal/common/notify"
	"license-verification/internal/common/storage"
	"license-verification/internal/common/validation"
	"license-verification/internal/models"
	"license-verification/internal/workers/verification/stage"
)

const (
	TaskType = "compare-details"
)

// TextractAPI is the identity document extraction capability.
type TextractAPI interface {
	AnalyzeID(ctx context.Context, params *textract.AnalyzeIDInput, optFns ...func(*textract.Options)) (*textract.AnalyzeIDOutput, error)
}

type Handler struct {
	config   *Config
	textract TextractAPI
	objects  storage.ObjectStore
	runner   *stage.Runner
	logger   logger.Logger
}

func NewHandler(config *Config, client TextractAPI, objects storage.ObjectStore, deps stage.Deps, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		textract: client,
		objects:  objects,
		runner:   stage.NewRunner(TaskType, deps, config.Timeout, log),
		logger:   log,
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
	o.Verdict = models.Bool(out.DetailsMatch)
	o.Details = map[string]interface{}{"mismatchedFields": out.MismatchedFields}
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

	claim, err := h.claim(ctx, applicationID, input.Claim)
	if err != nil {
		return nil, err
	}

	licenseKey := input.LicenseKey
	if licenseKey == "" {
		licenseKey = models.StagedKey(h.config.UnzippedPrefix, models.MemberName(applicationID, models.MemberLicense, ".png"))
	}

	document, err := h.document(ctx, bucket, licenseKey)
	if err != nil {
		return nil, err
	}

	resp, err := h.textract.AnalyzeID(ctx, &textract.AnalyzeIDInput{
		DocumentPages: []types.Document{document},
	})
	if err != nil {
		return nil, apperrors.NewDocumentExtractionFailedError(err)
	}
	if len(resp.IdentityDocuments) == 0 {
		return nil, apperrors.NewNoIdentityDocumentError(licenseKey)
	}

	extracted := ExtractFields(resp.IdentityDocuments[0])
	mismatched := Compare(claim, extracted, h.config.ComparisonMode)
	match := len(mismatched) == 0

	if err := h.runner.RecordVerdict(ctx, applicationID, models.FieldDetailsMatch, match, notify.MessageDetailsMatchFailed); err != nil {
		return nil, err
	}

	h.logger.Info("details compared", map[string]interface{}{
		"applicationId":    applicationID,
		"mode":             h.config.ComparisonMode,
		"mismatchedFields": mismatched,
		"detailsMatch":     match,
	})

	if mismatched == nil {
		mismatched = []string{}
	}
	return &Output{
		ApplicationID:    applicationID,
		DetailsMatch:     match,
		MismatchedFields: mismatched,
		Proceed:          match,
	}, nil
}

func (h *Handler) claim(ctx context.Context, applicationID string, fromInput models.ClaimFields) (models.ClaimFields, error) {
	if len(fromInput) > 0 {
		return fromInput.Restrict(), nil
	}
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
	return rec.Claim.Restrict(), nil
}

func (h *Handler) document(ctx context.Context, bucket, key string) (types.Document, error) {
	if !h.config.InlineImages {
		return types.Document{S3Object: &types.S3Object{Bucket: aws.String(bucket), Name: aws.String(key)}}, nil
	}
	data, err := h.objects.ReadObject(ctx, bucket, key)
	if err != nil {
		return types.Document{}, apperrors.NewObjectReadFailedError(key, err)
	}
	return types.Document{Bytes: data}, nil
}

// ExtractFields keeps the fields of doc whose type label is in the claim schema.
func ExtractFields(doc types.IdentityDocument) models.ClaimFields {
	out := make(models.ClaimFields)
	for _, f := range doc.IdentityDocumentFields {
		if f.Type == nil || f.ValueDetection == nil {
			continue
		}
		name := aws.ToString(f.Type.Text)
		if models.IsClaimField(name) {
			out[name] = aws.ToString(f.ValueDetection.Text)
		}
	}
	return out
}

// Compare returns the claim schema fields on which claim and extracted
// disagree, in schema order. In exact mode a field present on only one side
// is a mismatch. In normalized mode values are compared trimmed and
// lower-cased, with a missing field read as "".
func Compare(claim, extracted models.ClaimFields, mode string) []string {
	var mismatched []string
	for _, name := range models.ClaimFieldNames {
		c, inClaim := claim[name]
		e, inExtracted := extracted[name]

		equal := inClaim == inExtracted && c == e
		if mode == config.ComparisonNormalized {
			equal = normalize(c) == normalize(e)
		}
		if !equal {
			mismatched = append(mismatched, name)
		}
	}
	return mismatched
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

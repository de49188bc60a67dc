package comparefaces

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/common/logger"
	"license-verification/internal/common/notify"
	"license-verification/internal/common/storage"
	"license-verification/internal/common/validation"
	"license-verification/internal/models"
	"license-verification/internal/workers/verification/stage"
)

const (
	TaskType = "compare-faces"
)

// RekognitionAPI is the face comparison capability.
type RekognitionAPI interface {
	CompareFaces(ctx context.Context, params *rekognition.CompareFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.CompareFacesOutput, error)
}

type Handler struct {
	config      *Config
	rekognition RekognitionAPI
	objects     storage.ObjectStore
	runner      *stage.Runner
	logger      logger.Logger
}

func NewHandler(config *Config, client RekognitionAPI, objects storage.ObjectStore, deps stage.Deps, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:      config,
		rekognition: client,
		objects:     objects,
		runner:      stage.NewRunner(TaskType, deps, config.Timeout, log),
		logger:      log,
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
	o.Verdict = models.Bool(out.FaceMatch)
	o.Details = map[string]interface{}{"similarity": out.Similarity}
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

	licenseKey := input.LicenseKey
	if licenseKey == "" {
		licenseKey = models.StagedKey(h.config.UnzippedPrefix, models.MemberName(applicationID, models.MemberLicense, ".png"))
	}
	selfieKey := input.SelfieKey
	if selfieKey == "" {
		selfieKey = models.StagedKey(h.config.UnzippedPrefix, models.MemberName(applicationID, models.MemberSelfie, ".png"))
	}

	source, err := h.image(ctx, bucket, licenseKey)
	if err != nil {
		return nil, err
	}
	target, err := h.image(ctx, bucket, selfieKey)
	if err != nil {
		return nil, err
	}

	resp, err := h.rekognition.CompareFaces(ctx, &rekognition.CompareFacesInput{
		SourceImage:         source,
		TargetImage:         target,
		SimilarityThreshold: aws.Float32(float32(h.config.SimilarityThreshold)),
	})
	if err != nil {
		return nil, apperrors.NewFaceComparisonFailedError(err)
	}

	match, similarity := Verdict(resp.FaceMatches, h.config.SimilarityThreshold)

	if err := h.runner.RecordVerdict(ctx, applicationID, models.FieldFaceMatch, match, notify.MessageFaceMatchFailed); err != nil {
		return nil, err
	}

	h.logger.Info("faces compared", map[string]interface{}{
		"applicationId": applicationID,
		"candidates":    len(resp.FaceMatches),
		"similarity":    similarity,
		"faceMatch":     match,
	})

	return &Output{
		ApplicationID: applicationID,
		FaceMatch:     match,
		Similarity:    similarity,
		Proceed:       match,
	}, nil
}

// Verdict applies the similarity threshold to the top candidate only. No
// candidates is a mismatch.
func Verdict(matches []types.CompareFacesMatch, threshold float64) (bool, float64) {
	if len(matches) == 0 {
		return false, 0
	}
	similarity := float64(aws.ToFloat32(matches[0].Similarity))
	return similarity >= threshold, similarity
}

func (h *Handler) image(ctx context.Context, bucket, key string) (*types.Image, error) {
	if !h.config.InlineImages {
		return &types.Image{S3Object: &types.S3Object{Bucket: aws.String(bucket), Name: aws.String(key)}}, nil
	}
	data, err := h.objects.ReadObject(ctx, bucket, key)
	if err != nil {
		return nil, apperrors.NewObjectReadFailedError(key, err)
	}
	return &types.Image{Bytes: data}, nil
}

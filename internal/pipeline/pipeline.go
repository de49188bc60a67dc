// Package pipeline runs the verification stages for one archive in a single
// invocation, gating each stage on the verdicts before it.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"license-verification/internal/common/config"
	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/common/logger"
	"license-verification/internal/common/observability"
	"license-verification/internal/models"
	comparedetails "license-verification/internal/workers/verification/compare-details"
	comparefaces "license-verification/internal/workers/verification/compare-faces"
	recordclaim "license-verification/internal/workers/verification/record-claim"
	thirdpartyvalidation "license-verification/internal/workers/verification/third-party-validation"
	unziparchive "license-verification/internal/workers/verification/unzip-archive"
)

// Run outcomes.
const (
	StatusVerified = "verified"
	StatusRejected = "rejected"
	StatusQueued   = "queued"
	StatusPending  = "pending"
	StatusError    = "error"
)

type Stager interface {
	Run(ctx context.Context, input *unziparchive.Input) (*unziparchive.Output, error)
}

type ClaimRecorder interface {
	Run(ctx context.Context, input *recordclaim.Input) (*recordclaim.Output, error)
}

type FaceMatcher interface {
	Run(ctx context.Context, input *comparefaces.Input) (*comparefaces.Output, error)
}

type DetailsMatcher interface {
	Run(ctx context.Context, input *comparedetails.Input) (*comparedetails.Output, error)
}

type ThirdPartyValidator interface {
	Run(ctx context.Context, input *thirdpartyvalidation.Input) (*thirdpartyvalidation.Output, error)
}

// Sender enqueues a third-party validation request.
type Sender interface {
	Send(ctx context.Context, body interface{}) (string, error)
}

type Stages struct {
	Stager     Stager
	Claims     ClaimRecorder
	Faces      FaceMatcher
	Details    DetailsMatcher
	ThirdParty ThirdPartyValidator
	Queue      Sender
}

type Config struct {
	ConcurrentComparisons bool
	ThirdPartyMode        string
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		ConcurrentComparisons: cfg.Verification.ConcurrentComparisons,
		ThirdPartyMode:        cfg.Verification.ThirdPartyMode,
	}
}

// Result summarises one run. Verdicts a halted run never reached stay nil.
type Result struct {
	RunID                string `json:"runId"`
	ApplicationID        string `json:"applicationId"`
	Status               string `json:"status"`
	FaceMatch            *bool  `json:"faceMatch,omitempty"`
	DetailsMatch         *bool  `json:"detailsMatch,omitempty"`
	ThirdPartyValidation *bool  `json:"thirdPartyValidation,omitempty"`
	HaltedAt             string `json:"haltedAt,omitempty"`
	MessageID            string `json:"messageId,omitempty"`
}

type Pipeline struct {
	config *Config
	stages Stages
	obs    *observability.Observability
	logger logger.Logger
}

func New(config *Config, stages Stages, obs *observability.Observability, log logger.Logger) *Pipeline {
	return &Pipeline{
		config: config,
		stages: stages,
		obs:    obs,
		logger: log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
}

// Process runs every stage for the archive at bucket/key.
func (p *Pipeline) Process(ctx context.Context, bucket, key string) (*Result, error) {
	started := time.Now()
	res := &Result{RunID: uuid.NewString(), ApplicationID: models.ApplicationIDFromKey(key)}
	log := p.logger.WithFields(map[string]interface{}{"runId": res.RunID, "key": key})
	log.Info("pipeline started", map[string]interface{}{"bucket": bucket})

	err := p.process(ctx, log, bucket, key, res)
	if err != nil {
		res.Status = StatusError
		log.Error("pipeline failed", map[string]interface{}{"applicationId": res.ApplicationID, "error": err.Error()})
	} else {
		log.Info("pipeline finished", map[string]interface{}{
			"applicationId": res.ApplicationID,
			"status":        res.Status,
			"haltedAt":      res.HaltedAt,
			"duration":      time.Since(started).String(),
		})
	}
	p.obs.RecordPipeline(ctx, res.Status)
	return res, err
}

func (p *Pipeline) process(ctx context.Context, log logger.Logger, bucket, key string, res *Result) error {
	detail := models.NewStorageDetail(bucket, key)

	staged, err := p.stages.Stager.Run(ctx, &unziparchive.Input{Detail: detail})
	if err != nil {
		return err
	}
	app := staged.Application
	res.ApplicationID = app.AppUUID

	recorded, err := p.stages.Claims.Run(ctx, &recordclaim.Input{
		Detail:      detail,
		Application: app,
		DetailsKey:  staged.DetailsKey,
	})
	if err != nil {
		return err
	}

	faces := &comparefaces.Input{Detail: detail, Application: app, LicenseKey: staged.LicenseKey, SelfieKey: staged.SelfieKey}
	details := &comparedetails.Input{Detail: detail, Application: app, LicenseKey: staged.LicenseKey, Claim: recorded.Claim}

	if p.config.ConcurrentComparisons {
		err = p.compareConcurrently(ctx, faces, details, res)
	} else {
		err = p.compareSequentially(ctx, faces, details, res)
	}
	if err != nil || res.HaltedAt != "" {
		return err
	}

	return p.validate(ctx, log, app, recorded.Claim, res)
}

func (p *Pipeline) compareSequentially(ctx context.Context, faces *comparefaces.Input, details *comparedetails.Input, res *Result) error {
	f, err := p.stages.Faces.Run(ctx, faces)
	if err != nil {
		return err
	}
	res.FaceMatch = models.Bool(f.FaceMatch)
	if !f.Proceed {
		p.halt(res, comparefaces.TaskType)
		return nil
	}

	d, err := p.stages.Details.Run(ctx, details)
	if err != nil {
		return err
	}
	res.DetailsMatch = models.Bool(d.DetailsMatch)
	if !d.Proceed {
		p.halt(res, comparedetails.TaskType)
	}
	return nil
}

// compareConcurrently runs both comparisons at once. They write different
// fields, so neither observes the other.
func (p *Pipeline) compareConcurrently(ctx context.Context, faces *comparefaces.Input, details *comparedetails.Input, res *Result) error {
	var f *comparefaces.Output
	var d *comparedetails.Output

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		f, err = p.stages.Faces.Run(gctx, faces)
		return err
	})
	g.Go(func() error {
		var err error
		d, err = p.stages.Details.Run(gctx, details)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	res.FaceMatch = models.Bool(f.FaceMatch)
	res.DetailsMatch = models.Bool(d.DetailsMatch)
	switch {
	case !f.Proceed:
		p.halt(res, comparefaces.TaskType)
	case !d.Proceed:
		p.halt(res, comparedetails.TaskType)
	}
	return nil
}

func (p *Pipeline) validate(ctx context.Context, log logger.Logger, app models.ApplicationRef, claim models.ClaimFields, res *Result) error {
	switch p.config.ThirdPartyMode {
	case config.ThirdPartyDisabled:
		res.Status = StatusPending
		log.Info("third-party validation disabled", map[string]interface{}{"applicationId": app.AppUUID})
		return nil

	case config.ThirdPartyQueue:
		msg := thirdpartyvalidation.Message{"application_id": app.AppUUID}
		for k, v := range claim {
			msg[k] = v
		}
		id, err := p.stages.Queue.Send(ctx, msg)
		if err != nil {
			return apperrors.NewQueueSendFailedError(err)
		}
		res.MessageID = id
		res.Status = StatusQueued
		return nil
	}

	out, err := p.stages.ThirdParty.Run(ctx, &thirdpartyvalidation.Input{Application: app, Claim: claim})
	if err != nil {
		return err
	}
	res.ThirdPartyValidation = models.Bool(out.ThirdPartyValidation)
	if !out.Proceed {
		p.halt(res, thirdpartyvalidation.TaskType)
		return nil
	}
	res.Status = StatusVerified
	return nil
}

func (p *Pipeline) halt(res *Result, stage string) {
	res.HaltedAt = stage
	res.Status = StatusRejected
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"license-verification/internal/common/logger"
	"license-verification/internal/models"
	"license-verification/internal/pipeline"
)

// Processor runs the verification stages for one archive.
type Processor interface {
	Process(ctx context.Context, bucket, key string) (*pipeline.Result, error)
}

// Starter starts a verification process instance in the workflow engine.
type Starter interface {
	StartProcess(ctx context.Context, processID string, variables interface{}) (int64, error)
}

type Handler struct {
	processor      Processor
	starter        Starter
	processID      string
	unzippedPrefix string
	logger         logger.Logger
}

// NewHandler returns a handler that starts processID through starter when
// both are set and runs processor in-process otherwise.
func NewHandler(processor Processor, starter Starter, processID, unzippedPrefix string, log logger.Logger) *Handler {
	return &Handler{
		processor:      processor,
		starter:        starter,
		processID:      processID,
		unzippedPrefix: unzippedPrefix,
		logger:         log.WithFields(map[string]interface{}{"component": "s3-trigger"}),
	}
}

// Handle processes every record in event. One failed record does not stop
// the rest; the failures are joined into the returned error.
func (h *Handler) Handle(ctx context.Context, event events.S3Event) error {
	var errs []error
	for _, record := range event.Records {
		bucket := record.S3.Bucket.Name
		key, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			errs = append(errs, fmt.Errorf("decode key %q: %w", record.S3.Object.Key, err))
			continue
		}

		if !h.accepts(key) {
			h.logger.Debug("object ignored", map[string]interface{}{"bucket": bucket, "key": key})
			continue
		}

		if err := h.dispatch(ctx, bucket, key); err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", bucket, key, err))
		}
	}
	return errors.Join(errs...)
}

// accepts skips staged members so writes under the unzipped prefix do not
// retrigger the pipeline.
func (h *Handler) accepts(key string) bool {
	if h.unzippedPrefix != "" && strings.HasPrefix(key, h.unzippedPrefix) {
		return false
	}
	return strings.HasSuffix(strings.ToLower(key), ".zip")
}

func (h *Handler) dispatch(ctx context.Context, bucket, key string) error {
	if h.starter != nil && h.processID != "" {
		variables := models.WorkflowVariables{
			Detail:      models.NewStorageDetail(bucket, key),
			Application: &models.ApplicationRef{AppUUID: models.ApplicationIDFromKey(key)},
		}
		instanceKey, err := h.starter.StartProcess(ctx, h.processID, variables)
		if err != nil {
			return err
		}
		h.logger.Info("process instance started", map[string]interface{}{
			"processId":   h.processID,
			"instanceKey": instanceKey,
			"key":         key,
		})
		return nil
	}

	res, err := h.processor.Process(ctx, bucket, key)
	if err != nil {
		return err
	}
	h.logger.Info("archive processed", map[string]interface{}{
		"applicationId": res.ApplicationID,
		"status":        res.Status,
		"runId":         res.RunID,
	})
	return nil
}

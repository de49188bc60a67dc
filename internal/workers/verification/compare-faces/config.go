package comparefaces

import (
	"time"

	"license-verification/internal/common/config"
)

type Config struct {
	Timeout             time.Duration
	UnzippedPrefix      string
	SimilarityThreshold float64
	// InlineImages sends image bytes instead of S3 object references, for
	// backends Rekognition cannot read directly.
	InlineImages bool
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		Timeout:             config.GetDuration(config.GetWorkerConfig(cfg, TaskType).Timeout),
		UnzippedPrefix:      cfg.Storage.UnzippedPrefix,
		SimilarityThreshold: cfg.Verification.SimilarityThreshold,
		InlineImages:        cfg.Storage.Backend != config.StorageS3,
	}
}

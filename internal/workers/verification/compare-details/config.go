package comparedetails

import (
	"time"

	"license-verification/internal/common/config"
)

type Config struct {
	Timeout        time.Duration
	UnzippedPrefix string
	ComparisonMode string
	InlineImages   bool
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		Timeout:        config.GetDuration(config.GetWorkerConfig(cfg, TaskType).Timeout),
		UnzippedPrefix: cfg.Storage.UnzippedPrefix,
		ComparisonMode: cfg.Verification.ComparisonMode,
		InlineImages:   cfg.Storage.Backend != config.StorageS3,
	}
}

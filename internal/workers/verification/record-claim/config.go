package recordclaim

import (
	"time"

	"license-verification/internal/common/config"
)

type Config struct {
	Timeout        time.Duration
	UnzippedPrefix string
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		Timeout:        config.GetDuration(config.GetWorkerConfig(cfg, TaskType).Timeout),
		UnzippedPrefix: cfg.Storage.UnzippedPrefix,
	}
}

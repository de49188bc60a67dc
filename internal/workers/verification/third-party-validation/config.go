package thirdpartyvalidation

import (
	"time"

	"license-verification/internal/common/config"
)

type Config struct {
	Timeout        time.Duration
	URL            string
	RequestTimeout time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		Timeout:        config.GetDuration(config.GetWorkerConfig(cfg, TaskType).Timeout),
		URL:            cfg.Verification.ThirdParty.URL,
		RequestTimeout: config.GetDuration(cfg.Verification.ThirdParty.Timeout),
	}
}

package unziparchive

import (
	"time"

	"license-verification/internal/common/config"
)

type Config struct {
	Timeout        time.Duration
	UnzippedPrefix string
	WorkDir        string
	// MaxMemberBytes bounds the extracted size of a single member.
	MaxMemberBytes int64
}

func LoadConfig(cfg *config.Config) *Config {
	wcfg := config.GetWorkerConfig(cfg, TaskType)
	return &Config{
		Timeout:        config.GetDuration(wcfg.Timeout),
		UnzippedPrefix: cfg.Storage.UnzippedPrefix,
		WorkDir:        cfg.Storage.WorkDir,
		MaxMemberBytes: 20 << 20,
	}
}

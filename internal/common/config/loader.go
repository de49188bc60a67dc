package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageS3  = "s3"
	StorageGCS = "gcs"

	RecordStoreDynamoDB = "dynamodb"
	RecordStorePostgres = "postgres"
	RecordStoreRedis    = "redis"

	ComparisonExact      = "exact"
	ComparisonNormalized = "normalized"

	ThirdPartyInline   = "inline"
	ThirdPartyQueue    = "queue"
	ThirdPartyDisabled = "disabled"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// config.<env>.yaml overrides the base file when present
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finalize(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills values still empty after unmarshal from the
// environment variables the Lambda deployment uses.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.AWS.Region, "AWS_REGION")
	setIfEmpty(&cfg.RecordStore.Table, "TABLE")
	setIfEmpty(&cfg.Verification.ThirdParty.URL, "INVOKE_URL")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")

	if cfg.Notifications.SNS.TopicARN == "" {
		if val := os.Getenv("TOPIC"); val != "" {
			cfg.Notifications.SNS.TopicARN = val
			cfg.Notifications.SNS.Enabled = true
		}
	}
	if cfg.Queue.URL == "" {
		if val := os.Getenv("QUEUE_URL"); val != "" {
			cfg.Queue.URL = val
		}
	}
}

func setIfEmpty(dst *string, envKey string) {
	if *dst != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*dst = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "license-verification"
	}

	if cfg.Camunda.BrokerAddress == "" {
		cfg.Camunda.BrokerAddress = "localhost:26500"
	}
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.AWS.Region == "" {
		cfg.AWS.Region = os.Getenv("AWS_REGION")
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageS3
	}
	if cfg.Storage.UnzippedPrefix == "" {
		cfg.Storage.UnzippedPrefix = "unzipped/"
	}

	if cfg.RecordStore.Backend == "" {
		cfg.RecordStore.Backend = RecordStoreDynamoDB
	}
	if cfg.RecordStore.KeyPrefix == "" {
		cfg.RecordStore.KeyPrefix = "verification:"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Verification.SimilarityThreshold == 0 {
		cfg.Verification.SimilarityThreshold = 80
	}
	if cfg.Verification.ComparisonMode == "" {
		cfg.Verification.ComparisonMode = ComparisonExact
	}
	if cfg.Verification.ThirdPartyMode == "" {
		cfg.Verification.ThirdPartyMode = ThirdPartyInline
	}
	if cfg.Verification.ThirdParty.Timeout == 0 {
		cfg.Verification.ThirdParty.Timeout = 5000
	}

	if cfg.Queue.WaitTimeSeconds == 0 {
		cfg.Queue.WaitTimeSeconds = 20
	}
	if cfg.Queue.MaxMessages == 0 {
		cfg.Queue.MaxMessages = 10
	}
	if cfg.Queue.VisibilityTimeout == 0 {
		cfg.Queue.VisibilityTimeout = 60
	}

	if cfg.Audit.Index == "" {
		cfg.Audit.Index = "verification-audit"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	switch cfg.Storage.Backend {
	case StorageS3, StorageGCS:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", StorageS3, StorageGCS, cfg.Storage.Backend)
	}

	switch cfg.RecordStore.Backend {
	case RecordStoreDynamoDB:
		if cfg.RecordStore.Table == "" {
			return fmt.Errorf("record_store.table is required for the dynamodb backend")
		}
	case RecordStorePostgres:
		if cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.host and database.postgres.database are required for the postgres backend")
		}
	case RecordStoreRedis:
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown record_store.backend %q", cfg.RecordStore.Backend)
	}

	switch cfg.Verification.ComparisonMode {
	case ComparisonExact, ComparisonNormalized:
	default:
		return fmt.Errorf("verification.comparison_mode must be %q or %q", ComparisonExact, ComparisonNormalized)
	}

	switch cfg.Verification.ThirdPartyMode {
	case ThirdPartyInline:
		if cfg.Verification.ThirdParty.URL == "" {
			return fmt.Errorf("verification.third_party.url is required in inline mode")
		}
	case ThirdPartyQueue:
		if cfg.Queue.URL == "" {
			return fmt.Errorf("queue.url is required in queue mode")
		}
	case ThirdPartyDisabled:
	default:
		return fmt.Errorf("unknown verification.third_party_mode %q", cfg.Verification.ThirdPartyMode)
	}

	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required when sns is enabled")
	}
	if cfg.Notifications.SES.Enabled && (cfg.Notifications.SES.FromEmail == "" || len(cfg.Notifications.SES.Recipients) == 0) {
		return fmt.Errorf("notifications.ses.from_email and recipients are required when ses is enabled")
	}

	if cfg.Audit.Enabled && len(cfg.Database.Elasticsearch.GetAddresses()) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required when audit is enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}

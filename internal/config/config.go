// Package config assembles the tracker's layered configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"recruitrack/pkg/config"
)

type PipelineConfig struct {
	ClassificationThreshold float64 `yaml:"classification_threshold"`
	ClassificationRulesPath string  `yaml:"classification_rules_path"`
	MatchThreshold          float64 `yaml:"match_threshold"`
	StatusUpdateThreshold   float64 `yaml:"status_update_threshold"`
	CreationThreshold       float64 `yaml:"creation_threshold"`
}

type WorkerConfig struct {
	PollEnabled      bool          `yaml:"poll_enabled"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	BatchLimit       int           `yaml:"batch_limit"`
	MaxBatchLimit    int           `yaml:"max_batch_limit"`
	MaxAttempts      int64         `yaml:"max_attempts"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
	ResultTTL        time.Duration `yaml:"result_ttl"`
	IngestQueue      string        `yaml:"ingest_queue"`
	OutboxInterval   time.Duration `yaml:"outbox_interval"`
	OutboxMaxRetries int           `yaml:"outbox_max_retries"`
	OutboxBatchSize  int           `yaml:"outbox_batch_size"`
}

type Config struct {
	DB       config.DBConfig     `yaml:"db"`
	Redis    config.RedisConfig  `yaml:"redis"`
	MQ       config.MQConfig     `yaml:"mq"`
	Server   config.ServerConfig `yaml:"server"`
	AI       config.AIConfig     `yaml:"ai"`
	Pipeline PipelineConfig      `yaml:"pipeline"`
	Worker   WorkerConfig        `yaml:"worker"`
	OTel     config.OTelConfig   `yaml:"otel"`
	Log      config.LogConfig    `yaml:"log"`
}

func defaults() Config {
	return Config{
		DB:     config.DBConfig{Driver: "postgres", Host: "localhost", Port: 5432, SQLitePath: "recruitrack.db"},
		Redis:  config.RedisConfig{Addr: "localhost:6379"},
		Server: config.ServerConfig{Port: ":8080"},
		AI:     config.AIConfig{Timeout: 20 * time.Second, MaxTokens: 1000},
		Pipeline: PipelineConfig{
			ClassificationThreshold: 0.8,
			MatchThreshold:          0.7,
			StatusUpdateThreshold:   0.7,
			CreationThreshold:       0.8,
		},
		Worker: WorkerConfig{
			PollEnabled:      true,
			PollInterval:     5 * time.Minute,
			BatchLimit:       50,
			MaxBatchLimit:    500,
			MaxAttempts:      3,
			LockTTL:          10 * time.Minute,
			ResultTTL:        time.Hour,
			IngestQueue:      "messages.ingested.tracker.q",
			OutboxInterval:   time.Second,
			OutboxMaxRetries: 5,
			OutboxBatchSize:  100,
		},
		OTel: config.OTelConfig{ServiceName: "recruitrack"},
		Log:  config.LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads config/<CONFIG_ENV>.yaml over config/base.yaml, then applies
// environment overrides. CONFIG_DIR moves the directory.
func Load() (*Config, error) {
	cfg := defaults()
	env := config.GetConfigEnv()
	dir := config.GetEnv("CONFIG_DIR", "config")

	if err := config.Decode(env, dir, &cfg); err != nil {
		return nil, fmt.Errorf("load %s config: %w", env, err)
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideAIFromEnv(&cfg.AI)
	config.OverrideLogFromEnv(&cfg.Log)
	if rules := os.Getenv("CLASSIFICATION_RULES_PATH"); rules != "" {
		cfg.Pipeline.ClassificationRulesPath = rules
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.OTel.Endpoint = endpoint
		cfg.OTel.Enabled = true
	}

	return &cfg, nil
}

package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"lodestone-sources"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel  string `envconfig:"EMBEDDING_MODEL"`
	ExtractionModel string `envconfig:"EXTRACTION_MODEL"`

	PollInterval  time.Duration `envconfig:"POLL_INTERVAL" default:"10s"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	JobTimeout    time.Duration `envconfig:"JOB_TIMEOUT" default:"30m"`

	WorkerPoolSize   int `envconfig:"WORKER_POOL_SIZE" default:"8"`
	ClaimLimit       int `envconfig:"CLAIM_LIMIT" default:"20"`
	EmbedConcurrency int `envconfig:"EMBED_CONCURRENCY" default:"4"`

	ConfidenceFloor float64 `envconfig:"CONFIDENCE_FLOOR" default:"0.5"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("LODESTONE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

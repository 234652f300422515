package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/cloo-solutions/tutorfit/internal/bandit"
	"github.com/cloo-solutions/tutorfit/internal/scoring"
)

const envPrefix = "TUTORFIT"

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// StrictInvariants makes counter invariant violations panic instead of clamping.
	StrictInvariants bool `envconfig:"STRICT_INVARIANTS" default:"false"`

	DatabaseURL      string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"0"`
	DatabaseMinConns int32  `envconfig:"DB_MIN_CONNS" default:"0"`
	DatabaseEFSearch int    `envconfig:"DB_HNSW_EF_SEARCH" default:"0"`

	S3Endpoint  string        `envconfig:"S3_ENDPOINT"`
	S3AccessKey string        `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string        `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string        `envconfig:"S3_BUCKET" default:"tutorfit-snapshots"`
	S3Region    string        `envconfig:"S3_REGION" default:"us-east-1"`
	S3LinkTTL   time.Duration `envconfig:"S3_LINK_TTL" default:"1h"`

	SentryDSN         string `envconfig:"SENTRY_DSN"`
	SentryEnvironment string `envconfig:"SENTRY_ENVIRONMENT" default:"development"`

	OpenAIAPIKey        string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	ChatModel           string        `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	LLMMaxTokens        int           `envconfig:"LLM_MAX_TOKENS" default:"400"`
	LLMTimeout          time.Duration `envconfig:"LLM_TIMEOUT" default:"15s"`
	LLMRatePerSecond    float64       `envconfig:"LLM_RATE_PER_SECOND" default:"5"`
	LLMBurst            int           `envconfig:"LLM_BURST" default:"10"`

	// Clustering
	SimilarityThreshold float64 `envconfig:"SIMILARITY_THRESHOLD" default:"0.75"`

	// Selection
	SelectionPolicy string  `envconfig:"SELECTION_POLICY" default:"ucb1"`
	ExplorationRate float64 `envconfig:"EXPLORATION_RATE" default:"0.1"`
	MinQualityFloor float64 `envconfig:"MIN_QUALITY_FLOOR" default:"0.3"`

	// Learning loop
	MinFeedbackConfidence  float64       `envconfig:"MIN_FEEDBACK_CONFIDENCE" default:"0.7"`
	RegenerationThreshold  int64         `envconfig:"REGENERATION_THRESHOLD" default:"2"`
	RegenerationCooldown   time.Duration `envconfig:"REGENERATION_COOLDOWN" default:"12h"`
	LearningPollInterval   time.Duration `envconfig:"LEARNING_POLL_INTERVAL" default:"2s"`
	LearningBatchSize      int           `envconfig:"LEARNING_BATCH_SIZE" default:"10"`
	LearningMaxRetries     int32         `envconfig:"LEARNING_MAX_RETRIES" default:"3"`
	LearningVisibility     time.Duration `envconfig:"LEARNING_VISIBILITY_TIMEOUT" default:"10m"`
	ScoreRecomputeInterval time.Duration `envconfig:"SCORE_RECOMPUTE_INTERVAL" default:"10m"`

	// Composite score weights
	WeightEfficacy   float64 `envconfig:"WEIGHT_EFFICACY" default:"0.35"`
	WeightFollowUp   float64 `envconfig:"WEIGHT_FOLLOW_UP" default:"0.20"`
	WeightConfusion  float64 `envconfig:"WEIGHT_CONFUSION" default:"0.20"`
	WeightConfidence float64 `envconfig:"WEIGHT_CONFIDENCE" default:"0.15"`
	WeightComponents float64 `envconfig:"WEIGHT_COMPONENTS" default:"0.10"`

	// Cache
	CacheBackend    string        `envconfig:"CACHE_BACKEND" default:"memory"`
	CacheTTL        time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	CacheMaxEntries int           `envconfig:"CACHE_MAX_ENTRIES" default:"10000"`
	RedisURL        string        `envconfig:"REDIS_URL"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
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

// Validate checks thresholds and weights that envconfig cannot express.
func (c *Config) Validate() error {
	if err := unitInterval("SIMILARITY_THRESHOLD", c.SimilarityThreshold); err != nil {
		return err
	}
	if err := unitInterval("MIN_FEEDBACK_CONFIDENCE", c.MinFeedbackConfidence); err != nil {
		return err
	}
	if err := unitInterval("EXPLORATION_RATE", c.ExplorationRate); err != nil {
		return err
	}
	if err := unitInterval("MIN_QUALITY_FLOOR", c.MinQualityFloor); err != nil {
		return err
	}
	if c.RegenerationThreshold < 1 {
		return fmt.Errorf("invalid config: REGENERATION_THRESHOLD must be at least 1")
	}
	if c.RegenerationCooldown < 0 {
		return fmt.Errorf("invalid config: REGENERATION_COOLDOWN cannot be negative")
	}
	if c.LearningMaxRetries < 1 {
		return fmt.Errorf("invalid config: LEARNING_MAX_RETRIES must be at least 1")
	}
	if c.LearningVisibility <= 0 {
		return fmt.Errorf("invalid config: LEARNING_VISIBILITY_TIMEOUT must be positive")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("invalid config: EMBEDDING_DIMENSIONS must be positive")
	}
	// pgvector accepts 1..1000.
	if c.DatabaseEFSearch < 0 || c.DatabaseEFSearch > 1000 {
		return fmt.Errorf("invalid config: DB_HNSW_EF_SEARCH must be between 0 and 1000")
	}

	switch c.SelectionPolicy {
	case bandit.PolicyUCB1, bandit.PolicyEpsilonUCB1:
	default:
		return fmt.Errorf("invalid config: SELECTION_POLICY %q is not supported", c.SelectionPolicy)
	}

	switch c.CacheBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("invalid config: REDIS_URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid config: CACHE_BACKEND %q is not supported", c.CacheBackend)
	}

	if err := c.ScoreWeights().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

func unitInterval(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("invalid config: %s must be within [0,1], got %v", name, v)
	}
	return nil
}

// ScoreWeights returns the configured composite score weights.
func (c *Config) ScoreWeights() scoring.Weights {
	return scoring.Weights{
		Efficacy:   c.WeightEfficacy,
		FollowUp:   c.WeightFollowUp,
		Confusion:  c.WeightConfusion,
		Confidence: c.WeightConfidence,
		Components: c.WeightComponents,
	}
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

package admin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/bandit"
	"github.com/cloo-solutions/tutorfit/internal/cache"
	"github.com/cloo-solutions/tutorfit/internal/config"
	"github.com/cloo-solutions/tutorfit/internal/database"
	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/logging"
	"github.com/cloo-solutions/tutorfit/internal/metrics"
	"github.com/cloo-solutions/tutorfit/internal/openai"
	"github.com/cloo-solutions/tutorfit/internal/repository"
	"github.com/cloo-solutions/tutorfit/internal/service"
	"github.com/cloo-solutions/tutorfit/internal/storage"
)

// app holds the components shared by every tutorfitd command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	pool    *pgxpool.Pool
	cache   cache.Cache
	s3      *storage.S3Client
	jobs    *repository.LearningJobRepository

	templates       *service.TemplateService
	scoring         *service.ScoringService
	learning        *service.LearningService
	clusters        *service.ClusterService
	personalization *service.PersonalizationService

	closers []func()
}

func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Debug, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	domain.SetStrictInvariants(cfg.StrictInvariants)
	return cfg, logger, nil
}

// newApp connects to every configured backend and wires the services.
// Optional backends (S3, OpenAI, Redis) are skipped when unconfigured.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrateDB bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.NewMetrics()}

	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
		MinConns: cfg.DatabaseMinConns,
		EFSearch: cfg.DatabaseEFSearch,
	})
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	logger.Info("connected to database")

	if migrateDB {
		if err := database.Migrate(cfg.DatabaseURL, database.DefaultMigrationsSource, logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if err := a.initCache(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
			LinkTTL:         cfg.S3LinkTTL,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		logger.Info("snapshot bucket ready", zap.String("bucket", cfg.S3Bucket))
		a.s3 = s3Client
	}

	policy, err := bandit.NewPolicy(cfg.SelectionPolicy, cfg.ExplorationRate, cfg.MinQualityFloor)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.wireServices(policy)
	return a, nil
}

func (a *app) initCache(ctx context.Context) error {
	cacheCfg := cache.Config{DefaultTTL: a.cfg.CacheTTL, MaxSize: a.cfg.CacheMaxEntries}
	switch a.cfg.CacheBackend {
	case "redis":
		r, err := cache.NewRedis(ctx, a.cfg.RedisURL, cacheCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = r.Close() })
		a.cache = r
	default:
		a.cache = cache.NewMemory(cacheCfg)
	}
	a.logger.Info("query cache ready", zap.String("backend", a.cfg.CacheBackend))
	return nil
}

func (a *app) wireServices(policy bandit.Policy) {
	cfg := a.cfg

	clusterRepo := repository.NewClusterRepository(a.pool)
	templateRepo := repository.NewTemplateRepository(a.pool)
	armStatRepo := repository.NewArmStatRepository(a.pool)
	assignmentRepo := repository.NewAssignmentRepository(a.pool)
	eventRepo := repository.NewLearningEventRepository(a.pool)
	jobRepo := repository.NewLearningJobRepository(a.pool).WithVisibilityTimeout(cfg.LearningVisibility)
	a.jobs = jobRepo
	topicRepo := repository.NewTopicRepository(a.pool)
	txRunner := repository.NewTxRunner(a.pool)

	var (
		embedder   service.Embedder
		classifier service.TopicClassifier
		analyzer   service.FeedbackAnalyzer
	)
	if cfg.HasOpenAI() {
		client := openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			ChatModel:           cfg.ChatModel,
			MaxTokens:           cfg.LLMMaxTokens,
			Timeout:             cfg.LLMTimeout,
			RatePerSecond:       cfg.LLMRatePerSecond,
			Burst:               cfg.LLMBurst,
		})
		embedder = client
		classifier = openai.NewTopicClassifier(client)
		analyzer = openai.NewFeedbackAnalyzer(client)
	} else {
		a.logger.Warn("OPENAI_API_KEY not set; queries fall back to topic-only clustering and feedback is not analyzed")
	}

	var snapshots service.SnapshotStore
	if a.s3 != nil {
		snapshots = a.s3
	}

	topicSvc := service.NewTopicService(classifier, topicRepo, a.metrics, a.logger)
	assignor := service.NewClusterAssignor(clusterRepo, topicSvc, embedder, a.cache, a.metrics, a.logger,
		service.AssignorConfig{SimilarityThreshold: cfg.SimilarityThreshold, CacheTTL: cfg.CacheTTL})
	selector := service.NewTemplateSelector(templateRepo, armStatRepo, policy, a.logger)

	a.learning = service.NewLearningService(assignmentRepo, clusterRepo, eventRepo, jobRepo, txRunner, analyzer,
		service.LearningConfig{
			MinFeedbackConfidence: cfg.MinFeedbackConfidence,
			RegenerationThreshold: cfg.RegenerationThreshold,
			RegenerationCooldown:  cfg.RegenerationCooldown,
		}, a.metrics, a.logger)
	a.scoring = service.NewScoringService(templateRepo, cfg.ScoreWeights(), snapshots, a.metrics, a.logger)
	a.templates = service.NewTemplateService(templateRepo, topicRepo, a.logger)
	a.clusters = service.NewClusterService(clusterRepo, eventRepo)
	a.personalization = service.NewPersonalizationService(assignor, selector, a.learning, a.scoring, txRunner, a.metrics, a.logger)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

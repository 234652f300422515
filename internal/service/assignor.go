package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/cloo-solutions/tutorfit/internal/cache"
	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/metrics"
	"github.com/cloo-solutions/tutorfit/internal/telemetry"
)

// Assignment paths, in the order they are tried.
const (
	PathTopicReuse = "topic_reuse"
	PathSimilarity = "similarity"
	PathNewCluster = "new_cluster"
	PathNone       = "none"
)

const DefaultSimilarityThreshold = 0.75

// AssignorConfig tunes cluster assignment.
type AssignorConfig struct {
	SimilarityThreshold float64
	CacheTTL            time.Duration
}

// ClusterAssignment is the assignor's decision for one query. Cluster is nil
// when no cluster could be resolved.
type ClusterAssignment struct {
	Cluster    *domain.Cluster
	Similarity float64
	IsNew      bool
	Topic      string
	Path       string
}

// ClusterAssignor routes a query to an existing cluster or creates one.
type ClusterAssignor struct {
	clusters ClusterRepositoryInterface
	topics   *TopicService
	embedder Embedder
	cache    cache.Cache
	metrics  *metrics.Metrics
	logger   *zap.Logger
	uuidGen  UUIDGenerator
	now      Clock
	config   AssignorConfig
	flight   singleflight.Group
}

func NewClusterAssignor(
	clusters ClusterRepositoryInterface,
	topics *TopicService,
	embedder Embedder,
	queryCache cache.Cache,
	m *metrics.Metrics,
	logger *zap.Logger,
	config AssignorConfig,
) *ClusterAssignor {
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = cache.DefaultConfig().DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClusterAssignor{
		clusters: clusters,
		topics:   topics,
		embedder: embedder,
		cache:    queryCache,
		metrics:  m,
		logger:   logger,
		uuidGen:  &DefaultUUIDGenerator{},
		now:      utcNow,
		config:   config,
	}
}

// WithUUIDGen replaces the id generator (for testing).
func (a *ClusterAssignor) WithUUIDGen(gen UUIDGenerator) *ClusterAssignor {
	a.uuidGen = gen
	return a
}

// WithClock replaces the clock (for testing).
func (a *ClusterAssignor) WithClock(now Clock) *ClusterAssignor {
	a.now = now
	return a
}

// Assign resolves the cluster for query. Failures degrade to a result with
// a nil Cluster and are never returned to the caller.
func (a *ClusterAssignor) Assign(ctx context.Context, query string) *ClusterAssignment {
	ctx, span := telemetry.StartSpan(ctx, "ClusterAssignor.Assign", telemetry.SpanAttributes{
		Operation: "assign",
	})
	defer span.End()

	start := time.Now()
	embedding, topic := a.embedAndClassify(ctx, query)

	result, err := a.resolve(ctx, query, embedding, topic)
	if err != nil {
		a.logger.Warn("cluster assignment degraded", zap.Error(err))
		a.metrics.RecordUpstreamError("database")
		result = &ClusterAssignment{Topic: topic, Path: PathNone}
	}

	a.metrics.RecordAssignment(result.Path, time.Since(start))
	a.logger.Debug("query assigned",
		zap.String("path", result.Path),
		zap.String("topic", result.Topic),
		zap.Float64("similarity", result.Similarity),
		zap.Bool("new_cluster", result.IsNew),
	)
	return result
}

// embedAndClassify runs the embedding and topic calls concurrently. Identical
// concurrent queries share one embedding request.
func (a *ClusterAssignor) embedAndClassify(ctx context.Context, query string) ([]float32, string) {
	var embedding []float32
	topic := domain.GeneralTopic

	var g errgroup.Group
	if a.embedder != nil {
		g.Go(func() error {
			v, err, _ := a.flight.Do(cache.QueryKey(query), func() (any, error) {
				return a.embedder.GenerateEmbedding(ctx, query)
			})
			if err != nil {
				a.metrics.RecordUpstreamError("embedding")
				a.logger.Warn("embedding unavailable, similarity matching skipped", zap.Error(err))
				return nil
			}
			embedding = v.([]float32)
			return nil
		})
	}
	g.Go(func() error {
		topic = a.topics.Classify(ctx, query)
		return nil
	})
	_ = g.Wait()

	return embedding, topic
}

func (a *ClusterAssignor) resolve(ctx context.Context, query string, embedding []float32, topic string) (*ClusterAssignment, error) {
	if topic != "" && topic != domain.GeneralTopic {
		c, err := a.clusters.FindByTopic(ctx, topic)
		switch {
		case err == nil:
			similarity := domain.MatchSimilarity(domain.CosineSimilarity(embedding, c.Centroid))
			updated, err := a.clusters.RecordQuery(ctx, c.ID, embedding)
			if err != nil {
				return nil, err
			}
			return &ClusterAssignment{Cluster: updated, Similarity: similarity, Topic: topic, Path: PathTopicReuse}, nil
		case !errors.Is(err, domain.ErrClusterNotFound):
			return nil, err
		}
	}

	if len(embedding) == 0 {
		return &ClusterAssignment{Topic: topic, Path: PathNone}, nil
	}

	if c, ok := a.cached(ctx, query); ok {
		updated, err := a.clusters.RecordQuery(ctx, c.ID, embedding)
		if err != nil {
			return nil, err
		}
		similarity := domain.MatchSimilarity(domain.CosineSimilarity(embedding, c.Centroid))
		return &ClusterAssignment{Cluster: updated, Similarity: similarity, Topic: topic, Path: PathSimilarity}, nil
	}

	nearest, similarity, err := a.clusters.FindNearest(ctx, embedding)
	if err != nil && !errors.Is(err, domain.ErrClusterNotFound) {
		return nil, err
	}
	if nearest != nil && similarity >= a.config.SimilarityThreshold {
		updated, err := a.clusters.RecordQuery(ctx, nearest.ID, embedding)
		if err != nil {
			return nil, err
		}
		a.remember(ctx, query, updated.ID)
		return &ClusterAssignment{Cluster: updated, Similarity: similarity, Topic: topic, Path: PathSimilarity}, nil
	}

	candidate := domain.NewCluster(a.uuidGen.NewString(), query, topic, embedding, a.now())
	creation, err := a.clusters.CreateIfNoMatch(ctx, candidate, a.config.SimilarityThreshold)
	if err != nil {
		return nil, err
	}
	a.remember(ctx, query, creation.Cluster.ID)

	path := PathNewCluster
	if !creation.Created {
		path = PathSimilarity
	}
	return &ClusterAssignment{
		Cluster:    creation.Cluster,
		Similarity: domain.MatchSimilarity(creation.Similarity),
		IsNew:      creation.Created,
		Topic:      topic,
		Path:       path,
	}, nil
}

// cached returns the cluster last assigned to identical query text, if it
// still exists.
func (a *ClusterAssignor) cached(ctx context.Context, query string) (*domain.Cluster, bool) {
	if a.cache == nil {
		return nil, false
	}
	id, ok, err := a.cache.Get(ctx, cache.QueryKey(query))
	if err != nil {
		a.metrics.RecordUpstreamError("cache")
		a.logger.Debug("cache read failed", zap.Error(err))
		return nil, false
	}
	a.metrics.RecordCache(ok)
	if !ok {
		return nil, false
	}

	c, err := a.clusters.GetByID(ctx, id)
	if err != nil {
		_ = a.cache.Delete(ctx, cache.QueryKey(query))
		return nil, false
	}
	return c, true
}

func (a *ClusterAssignor) remember(ctx context.Context, query, clusterID string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Set(ctx, cache.QueryKey(query), clusterID, a.config.CacheTTL); err != nil {
		a.metrics.RecordUpstreamError("cache")
		a.logger.Debug("cache write failed", zap.Error(err))
	}
}

package service

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/metrics"
)

// Embedder turns query text into an embedding vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// TopicClassifier labels a query with a topic, preferring one of known.
type TopicClassifier interface {
	ClassifyTopic(ctx context.Context, query string, known []string) (string, error)
}

// FeedbackAnalyzer reads learner feedback with a language model.
type FeedbackAnalyzer interface {
	ClassifyFeedback(ctx context.Context, feedback string) (domain.FeedbackClassification, error)
	ExtractSuccessFactors(ctx context.Context, query, response, feedback string) (domain.SuccessFactors, error)
	SynthesizeEnhancement(ctx context.Context, previous, query string, factors domain.SuccessFactors) (string, error)
}

// TopicService classifies queries against the stored topic vocabulary.
// It never fails: any upstream problem yields the general topic.
type TopicService struct {
	classifier TopicClassifier
	topics     TopicRepositoryInterface
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewTopicService(classifier TopicClassifier, topics TopicRepositoryInterface, m *metrics.Metrics, logger *zap.Logger) *TopicService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TopicService{
		classifier: classifier,
		topics:     topics,
		metrics:    m,
		logger:     logger,
	}
}

// Classify returns the query's topic, registering labels it has not seen.
func (s *TopicService) Classify(ctx context.Context, query string) string {
	if s == nil || s.classifier == nil {
		return domain.GeneralTopic
	}

	var known []string
	if s.topics != nil {
		list, err := s.topics.List(ctx)
		if err != nil {
			s.logger.Warn("topic vocabulary unavailable", zap.Error(err))
		}
		known = list
	}

	topic, err := s.classifier.ClassifyTopic(ctx, query, known)
	if err != nil || topic == "" {
		s.metrics.RecordUpstreamError("llm")
		s.logger.Warn("topic classification failed, using general topic", zap.Error(err))
		return domain.GeneralTopic
	}

	if s.topics != nil && !slices.Contains(known, topic) {
		if err := s.topics.Ensure(ctx, topic); err != nil {
			s.logger.Warn("failed to register topic", zap.String("topic", topic), zap.Error(err))
		}
	}
	return topic
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/pagination"
)

// ClusterRepositoryInterface defines the repository interface for cluster persistence
type ClusterRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*domain.Cluster, error)
	// FindByTopic returns the cluster with the most assignments carrying topic.
	FindByTopic(ctx context.Context, topic string) (*domain.Cluster, error)
	// FindNearest returns the closest centroid and its cosine similarity.
	FindNearest(ctx context.Context, embedding []float32) (*domain.Cluster, float64, error)
	// RecordQuery counts one more query and folds embedding into the centroid.
	RecordQuery(ctx context.Context, id string, embedding []float32) (*domain.Cluster, error)
	// CreateIfNoMatch inserts c unless a cluster within threshold appeared
	// concurrently, in which case that cluster absorbs the query.
	CreateIfNoMatch(ctx context.Context, c *domain.Cluster, threshold float64) (*ClusterCreation, error)
	IncrementSuccess(ctx context.Context, id string) (*domain.Cluster, error)
	UpdateEnhancement(ctx context.Context, id, enhancement string, at time.Time, cooldown time.Duration) error
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*ClusterPageResult, error)
}

// ClusterCreation is the outcome of a conditional cluster insert.
type ClusterCreation struct {
	Cluster    *domain.Cluster
	Created    bool
	Similarity float64
}

type ClusterPageResult struct {
	Items      []*domain.Cluster
	NextCursor string
	HasMore    bool
}

// TemplateRepositoryInterface defines the repository interface for template persistence
type TemplateRepositoryInterface interface {
	Create(ctx context.Context, t *domain.Template) error
	GetByID(ctx context.Context, id string) (*domain.Template, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Template, error)
	ListByTopic(ctx context.Context, topic string) ([]*domain.Template, error)
	// ListPage returns templates ordered by id, strictly after afterID.
	ListPage(ctx context.Context, afterID string, limit int) ([]*domain.Template, error)
	IncrementUsage(ctx context.Context, id string) error
	RecordRating(ctx context.Context, id string, rating float64, followUp, confused bool) error
	UpdateComposite(ctx context.Context, id string, breakdown *domain.CompositeBreakdown, confidence float64) error
}

// ArmStatRepositoryInterface persists per-cluster bandit statistics.
type ArmStatRepositoryInterface interface {
	ListByCluster(ctx context.Context, clusterID string) ([]domain.ClusterTemplateStat, error)
	// ListGlobal aggregates statistics per template across all clusters.
	ListGlobal(ctx context.Context) ([]domain.ClusterTemplateStat, error)
	RecordPull(ctx context.Context, clusterID, templateID string) error
	AddReward(ctx context.Context, clusterID, templateID string, reward float64) error
}

// AssignmentRepositoryInterface defines the repository interface for assignment persistence
type AssignmentRepositoryInterface interface {
	Create(ctx context.Context, a *domain.Assignment) error
	GetByID(ctx context.Context, id string) (*domain.Assignment, error)
	// RecordFeedback writes the feedback fields once. It reports false when
	// feedback was already recorded.
	RecordFeedback(ctx context.Context, id string, c domain.FeedbackClassification, text string, at time.Time) (bool, error)
}

// LearningEventRepositoryInterface defines the repository interface for learning events
type LearningEventRepositoryInterface interface {
	// Create returns domain.ErrLearningEventExists for a second event on the same assignment.
	Create(ctx context.Context, e *domain.LearningEvent) error
	GetByAssignment(ctx context.Context, assignmentID string) (*domain.LearningEvent, error)
	ListByCluster(ctx context.Context, clusterID string, limit int) ([]*domain.LearningEvent, error)
}

// LearningJobRepositoryInterface defines the repository interface for learning job persistence
type LearningJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.LearningJob) error
}

// TopicRepositoryInterface stores the topic vocabulary.
type TopicRepositoryInterface interface {
	List(ctx context.Context) ([]string, error)
	Ensure(ctx context.Context, name string) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

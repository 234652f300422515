package service

import (
	"context"

	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/pagination"
)

const recentEventsLimit = 10

// ClusterDetail is a cluster with its most recent learning events.
type ClusterDetail struct {
	Cluster      *domain.Cluster
	RecentEvents []*domain.LearningEvent
}

type ListClustersOutput struct {
	Items   []*domain.Cluster
	Cursor  string
	HasMore bool
}

// ClusterService serves read-only views of clusters.
type ClusterService struct {
	clusters ClusterRepositoryInterface
	events   LearningEventRepositoryInterface
}

func NewClusterService(clusters ClusterRepositoryInterface, events LearningEventRepositoryInterface) *ClusterService {
	return &ClusterService{clusters: clusters, events: events}
}

func (s *ClusterService) Get(ctx context.Context, id string) (*ClusterDetail, error) {
	c, err := s.clusters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListByCluster(ctx, id, recentEventsLimit)
	if err != nil {
		return nil, err
	}
	return &ClusterDetail{Cluster: c, RecentEvents: events}, nil
}

func (s *ClusterService) List(ctx context.Context, cursor string, limit int) (*ListClustersOutput, error) {
	decoded, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	page, err := s.clusters.ListWithCursor(ctx, decoded, pagination.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	return &ListClustersOutput{
		Items:   page.Items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}, nil
}

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/tutorfit/internal/api"
	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/service"
)

type ClusterService interface {
	Get(ctx context.Context, id string) (*service.ClusterDetail, error)
	List(ctx context.Context, cursor string, limit int) (*service.ListClustersOutput, error)
}

type ClusterHandler struct {
	svc ClusterService
}

func NewClusterHandler(svc ClusterService) *ClusterHandler {
	return &ClusterHandler{svc: svc}
}

type ClusterResponse struct {
	ID                  string  `json:"id"`
	RepresentativeQuery string  `json:"representative_query"`
	Topic               string  `json:"topic,omitempty"`
	TotalQueries        int64   `json:"total_queries"`
	SuccessCount        int64   `json:"success_count"`
	SuccessRate         float64 `json:"success_rate"`
	PromptEnhancement   string  `json:"prompt_enhancement,omitempty"`
	LastRegeneratedAt   string  `json:"last_regenerated_at,omitempty"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

type LearningEventResponse struct {
	ID              string                `json:"id"`
	AssignmentID    string                `json:"assignment_id"`
	SuccessFactors  domain.SuccessFactors `json:"success_factors"`
	PromptUpdate    string                `json:"prompt_update"`
	ConfidenceScore float64               `json:"confidence_score"`
	TriggerReason   string                `json:"trigger_reason"`
	CreatedAt       string                `json:"created_at"`
}

type ClusterDetailResponse struct {
	*ClusterResponse
	RecentEvents []*LearningEventResponse `json:"recent_events"`
}

type ListClustersResponse struct {
	Items   []*ClusterResponse `json:"items"`
	Cursor  string             `json:"cursor,omitempty"`
	HasMore bool               `json:"has_more"`
}

func clusterToResponse(c *domain.Cluster) *ClusterResponse {
	resp := &ClusterResponse{
		ID:                  c.ID,
		RepresentativeQuery: c.RepresentativeQuery,
		Topic:               c.Topic,
		TotalQueries:        c.TotalQueries,
		SuccessCount:        c.SuccessCount,
		SuccessRate:         c.SuccessRate,
		PromptEnhancement:   c.PromptEnhancement,
		CreatedAt:           c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           c.UpdatedAt.Format(time.RFC3339),
	}
	if c.LastRegeneratedAt != nil {
		resp.LastRegeneratedAt = c.LastRegeneratedAt.Format(time.RFC3339)
	}
	return resp
}

func eventToResponse(e *domain.LearningEvent) *LearningEventResponse {
	return &LearningEventResponse{
		ID:              e.ID,
		AssignmentID:    e.AssignmentID,
		SuccessFactors:  e.SuccessFactors,
		PromptUpdate:    e.PromptUpdate,
		ConfidenceScore: e.ConfidenceScore,
		TriggerReason:   string(e.TriggerReason),
		CreatedAt:       e.CreatedAt.Format(time.RFC3339),
	}
}

func (h *ClusterHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	events := make([]*LearningEventResponse, 0, len(detail.RecentEvents))
	for _, e := range detail.RecentEvents {
		events = append(events, eventToResponse(e))
	}

	api.Success(w, http.StatusOK, &ClusterDetailResponse{
		ClusterResponse: clusterToResponse(detail.Cluster),
		RecentEvents:    events,
	})
}

func (h *ClusterHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	out, err := h.svc.List(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*ClusterResponse, 0, len(out.Items))
	for _, c := range out.Items {
		items = append(items, clusterToResponse(c))
	}

	api.Success(w, http.StatusOK, &ListClustersResponse{
		Items:   items,
		Cursor:  out.Cursor,
		HasMore: out.HasMore,
	})
}

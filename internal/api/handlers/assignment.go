package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/api"
	"github.com/cloo-solutions/tutorfit/internal/logging"
	"github.com/cloo-solutions/tutorfit/internal/service"
)

type PersonalizationService interface {
	AssignAndSelect(ctx context.Context, input service.AssignInput) (*service.AssignResult, error)
	SubmitFeedback(ctx context.Context, input service.FeedbackInput) error
}

type AssignmentHandler struct {
	svc PersonalizationService
}

func NewAssignmentHandler(svc PersonalizationService) *AssignmentHandler {
	return &AssignmentHandler{svc: svc}
}

type AssignRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type AssignResponse struct {
	AssignmentID    string  `json:"assignment_id,omitempty"`
	ClusterID       string  `json:"cluster_id,omitempty"`
	TemplateID      string  `json:"template_id,omitempty"`
	EnhancementText string  `json:"enhancement_text"`
	SelectionMethod string  `json:"selection_method"`
	IsNewCluster    bool    `json:"is_new_cluster"`
	Similarity      float64 `json:"similarity"`
	Topic           string  `json:"topic,omitempty"`
}

type FeedbackRequest struct {
	FeedbackText string `json:"feedback_text"`
	ResponseText string `json:"response_text"`
}

func (h *AssignmentHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if !api.DecodeJSON(w, r, &req, false) {
		return
	}

	result, err := h.svc.AssignAndSelect(r.Context(), service.AssignInput{
		Query:     req.Query,
		SessionID: req.SessionID,
		UserID:    req.UserID,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, &AssignResponse{
		AssignmentID:    result.AssignmentID,
		ClusterID:       result.ClusterID,
		TemplateID:      result.TemplateID,
		EnhancementText: result.EnhancementText,
		SelectionMethod: string(result.SelectionMethod),
		IsNewCluster:    result.IsNewCluster,
		Similarity:      result.Similarity,
		Topic:           result.Topic,
	})
}

func (h *AssignmentHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	assignmentID := chi.URLParam(r, "id")

	var req FeedbackRequest
	if !api.DecodeJSON(w, r, &req, false) {
		return
	}

	err := h.svc.SubmitFeedback(r.Context(), service.FeedbackInput{
		AssignmentID: assignmentID,
		FeedbackText: req.FeedbackText,
		ResponseText: req.ResponseText,
	})
	if err != nil {
		logging.FromContext(r.Context(), nil).Debug("feedback rejected",
			zap.String("assignment_id", assignmentID), zap.Error(err))
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, map[string]string{
		"assignment_id": assignmentID,
		"status":        "accepted",
	})
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/scoring"
	"github.com/cloo-solutions/tutorfit/internal/service"
)

type MockPersonalizationService struct {
	mock.Mock
}

func (m *MockPersonalizationService) AssignAndSelect(ctx context.Context, input service.AssignInput) (*service.AssignResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AssignResult), args.Error(1)
}

func (m *MockPersonalizationService) SubmitFeedback(ctx context.Context, input service.FeedbackInput) error {
	args := m.Called(ctx, input)
	return args.Error(0)
}

type MockScoreRecomputer struct {
	mock.Mock
}

func (m *MockScoreRecomputer) RecomputeCompositeScores(ctx context.Context, weights *scoring.Weights) (*service.RecomputeResult, error) {
	args := m.Called(ctx, weights)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RecomputeResult), args.Error(1)
}

type MockSnapshotLinker struct {
	mock.Mock
}

func (m *MockSnapshotLinker) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

type MockClusterService struct {
	mock.Mock
}

func (m *MockClusterService) Get(ctx context.Context, id string) (*service.ClusterDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ClusterDetail), args.Error(1)
}

func (m *MockClusterService) List(ctx context.Context, cursor string, limit int) (*service.ListClustersOutput, error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListClustersOutput), args.Error(1)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func decodeData(t *testing.T, body *bytes.Buffer, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestAssignmentHandler_Assign(t *testing.T) {
	svc := new(MockPersonalizationService)
	svc.On("AssignAndSelect", mock.Anything, service.AssignInput{Query: "what is entropy", SessionID: "s1"}).
		Return(&service.AssignResult{
			AssignmentID:    "a1",
			ClusterID:       "c1",
			TemplateID:      "t1",
			EnhancementText: "Use an analogy.",
			SelectionMethod: domain.SelectionUCB1,
			Similarity:      0.88,
			Topic:           "physics",
		}, nil)

	body := bytes.NewBufferString(`{"query":"what is entropy","session_id":"s1"}`)
	w := httptest.NewRecorder()
	NewAssignmentHandler(svc).Assign(w, httptest.NewRequest(http.MethodPost, "/assignments", body))

	require.Equal(t, http.StatusOK, w.Code)
	var resp AssignResponse
	decodeData(t, w.Body, &resp)
	assert.Equal(t, "a1", resp.AssignmentID)
	assert.Equal(t, "ucb1", resp.SelectionMethod)
	assert.Equal(t, "Use an analogy.", resp.EnhancementText)
}

func TestAssignmentHandler_AssignEmptyQuery(t *testing.T) {
	svc := new(MockPersonalizationService)
	svc.On("AssignAndSelect", mock.Anything, mock.Anything).Return(nil, domain.ErrEmptyQuery)

	w := httptest.NewRecorder()
	NewAssignmentHandler(svc).Assign(w, httptest.NewRequest(http.MethodPost, "/assignments", bytes.NewBufferString(`{"query":""}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssignmentHandler_AssignInvalidBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewAssignmentHandler(new(MockPersonalizationService)).
		Assign(w, httptest.NewRequest(http.MethodPost, "/assignments", bytes.NewBufferString(`{`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssignmentHandler_Feedback(t *testing.T) {
	svc := new(MockPersonalizationService)
	svc.On("SubmitFeedback", mock.Anything, service.FeedbackInput{
		AssignmentID: "a1", FeedbackText: "got it, thanks", ResponseText: "answer",
	}).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/assignments/a1/feedback",
		bytes.NewBufferString(`{"feedback_text":"got it, thanks","response_text":"answer"}`))
	w := httptest.NewRecorder()
	NewAssignmentHandler(svc).Feedback(w, withURLParam(req, "id", "a1"))

	assert.Equal(t, http.StatusAccepted, w.Code)
	svc.AssertExpectations(t)
}

func TestAssignmentHandler_FeedbackUnknownAssignment(t *testing.T) {
	svc := new(MockPersonalizationService)
	svc.On("SubmitFeedback", mock.Anything, mock.Anything).Return(domain.ErrAssignmentNotFound)

	req := httptest.NewRequest(http.MethodPost, "/assignments/nope/feedback", bytes.NewBufferString(`{"feedback_text":"x"}`))
	w := httptest.NewRecorder()
	NewAssignmentHandler(svc).Feedback(w, withURLParam(req, "id", "nope"))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandler_RecomputeWithSnapshotURL(t *testing.T) {
	svc := new(MockScoreRecomputer)
	linker := new(MockSnapshotLinker)

	svc.On("RecomputeCompositeScores", mock.Anything, (*scoring.Weights)(nil)).
		Return(&service.RecomputeResult{Updated: 4, SnapshotKey: "composite-scores/x.json"}, nil)
	linker.On("GenerateDownloadURL", mock.Anything, "composite-scores/x.json").Return("https://s3/x", nil)

	w := httptest.NewRecorder()
	NewAdminHandler(svc, linker).RecomputeScores(w, httptest.NewRequest(http.MethodPost, "/admin/composite-scores/recompute", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)
	var resp RecomputeResponse
	decodeData(t, w.Body, &resp)
	assert.Equal(t, 4, resp.Updated)
	assert.Equal(t, "https://s3/x", resp.SnapshotURL)
}

func TestAdminHandler_RecomputeCustomWeights(t *testing.T) {
	svc := new(MockScoreRecomputer)
	svc.On("RecomputeCompositeScores", mock.Anything, mock.MatchedBy(func(w *scoring.Weights) bool {
		return w != nil && w.Efficacy == 1
	})).Return(&service.RecomputeResult{Updated: 1}, nil)

	body := bytes.NewBufferString(`{"weights":{"efficacy":1}}`)
	w := httptest.NewRecorder()
	NewAdminHandler(svc, nil).RecomputeScores(w, httptest.NewRequest(http.MethodPost, "/admin/composite-scores/recompute", body))

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestAdminHandler_RecomputeInvalidWeights(t *testing.T) {
	svc := new(MockScoreRecomputer)
	svc.On("RecomputeCompositeScores", mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainError(domain.ErrCodeValidation, "bad weights"))

	body := bytes.NewBufferString(`{"weights":{"efficacy":3}}`)
	w := httptest.NewRecorder()
	NewAdminHandler(svc, nil).RecomputeScores(w, httptest.NewRequest(http.MethodPost, "/admin/composite-scores/recompute", body))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClusterHandler_Get(t *testing.T) {
	svc := new(MockClusterService)
	regenerated := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	svc.On("Get", mock.Anything, "c1").Return(&service.ClusterDetail{
		Cluster: &domain.Cluster{ID: "c1", TotalQueries: 4, SuccessCount: 2, SuccessRate: 0.5, LastRegeneratedAt: &regenerated},
		RecentEvents: []*domain.LearningEvent{
			{ID: "e1", AssignmentID: "a1", PromptUpdate: "Be brief.", TriggerReason: domain.TriggerPositiveFeedback},
		},
	}, nil)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/clusters/c1", nil), "id", "c1")
	w := httptest.NewRecorder()
	NewClusterHandler(svc).Get(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ClusterDetailResponse
	decodeData(t, w.Body, &resp)
	assert.Equal(t, "c1", resp.ID)
	assert.Equal(t, "2026-04-02T00:00:00Z", resp.LastRegeneratedAt)
	require.Len(t, resp.RecentEvents, 1)
	assert.Equal(t, "Be brief.", resp.RecentEvents[0].PromptUpdate)
}

func TestClusterHandler_GetNotFound(t *testing.T) {
	svc := new(MockClusterService)
	svc.On("Get", mock.Anything, "missing").Return(nil, domain.ErrClusterNotFound)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/clusters/missing", nil), "id", "missing")
	w := httptest.NewRecorder()
	NewClusterHandler(svc).Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClusterHandler_List(t *testing.T) {
	svc := new(MockClusterService)
	svc.On("List", mock.Anything, "abc", 5).Return(&service.ListClustersOutput{
		Items:   []*domain.Cluster{{ID: "c1"}, {ID: "c2"}},
		Cursor:  "next",
		HasMore: true,
	}, nil)

	w := httptest.NewRecorder()
	NewClusterHandler(svc).List(w, httptest.NewRequest(http.MethodGet, "/clusters?cursor=abc&limit=5", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp ListClustersResponse
	decodeData(t, w.Body, &resp)
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, "next", resp.Cursor)
	assert.True(t, resp.HasMore)
}

func TestClusterHandler_ListInvalidLimit(t *testing.T) {
	w := httptest.NewRecorder()
	NewClusterHandler(new(MockClusterService)).List(w, httptest.NewRequest(http.MethodGet, "/clusters?limit=abc", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(pingerFunc(func(context.Context) error { return nil })).
		Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	NewHealthHandler(pingerFunc(func(context.Context) error { return errors.New("down") })).
		Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/tutorfit/internal/api/handlers"
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
	return m.Called(ctx, input).Error(0)
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

type routerFixture struct {
	personalization *MockPersonalizationService
	recomputer      *MockScoreRecomputer
	clusters        *MockClusterService
	router          http.Handler
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		personalization: new(MockPersonalizationService),
		recomputer:      new(MockScoreRecomputer),
		clusters:        new(MockClusterService),
	}
	f.router = NewRouter(RouterConfig{
		AssignmentHandler: handlers.NewAssignmentHandler(f.personalization),
		AdminHandler:      handlers.NewAdminHandler(f.recomputer, nil),
		ClusterHandler:    handlers.NewClusterHandler(f.clusters),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("# metrics"))
		}),
	})
	return f
}

func (f *routerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthEndpoint(t *testing.T) {
	f := newRouterFixture()

	w := f.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["data"]["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	f := newRouterFixture()

	w := f.do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# metrics")
}

func TestRouter_AssignAndFeedback(t *testing.T) {
	f := newRouterFixture()
	f.personalization.On("AssignAndSelect", mock.Anything, service.AssignInput{Query: "why is the sky blue"}).
		Return(&service.AssignResult{AssignmentID: "a1", SelectionMethod: domain.SelectionDefault}, nil)
	f.personalization.On("SubmitFeedback", mock.Anything, service.FeedbackInput{AssignmentID: "a1", FeedbackText: "thanks"}).
		Return(nil)

	w := f.do(http.MethodPost, "/assignments", `{"query":"why is the sky blue"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/assignments/a1/feedback", `{"feedback_text":"thanks"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	f.personalization.AssertExpectations(t)
}

func TestRouter_ClusterRoutes(t *testing.T) {
	f := newRouterFixture()
	f.clusters.On("List", mock.Anything, "", 0).Return(&service.ListClustersOutput{}, nil)
	f.clusters.On("Get", mock.Anything, "c9").Return(nil, domain.ErrClusterNotFound)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/clusters", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/clusters/c9", "").Code)
}

func TestRouter_AdminRecompute(t *testing.T) {
	f := newRouterFixture()
	f.recomputer.On("RecomputeCompositeScores", mock.Anything, (*scoring.Weights)(nil)).
		Return(&service.RecomputeResult{Updated: 2}, nil)

	w := f.do(http.MethodPost, "/admin/composite-scores/recompute", "")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	f := newRouterFixture()

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/unknown", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/assignments", "").Code)
}

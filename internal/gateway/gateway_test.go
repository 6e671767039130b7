package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/automl-platform/orchestrator/internal/models"
	"github.com/automl-platform/orchestrator/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestGateway(t *testing.T) (*Gateway, *store.Store) {
	st := store.NewTestStore(t)
	return New(st, nil, nil), st
}

func TestHandleHealth_ReturnsHealthy(t *testing.T) {
	gw, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	gw.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleGetProject_ForbidsNonOwner(t *testing.T) {
	gw, st := newTestGateway(t)
	owner, err := st.UpsertUser(context.Background(), "ext-owner", "")
	require.NoError(t, err)
	project := &models.Project{
		ID: "11111111-1111-1111-1111-111111111111", UserID: owner.ID, Name: "p",
		TaskType: "image_classification", Framework: "pytorch", DatasetSource: "kaggle",
		SearchKeywords: []string{"a"}, Status: models.StatusPendingDataset,
	}
	require.NoError(t, st.InsertProject(context.Background(), project))

	req := httptest.NewRequest(http.MethodGet, "/api/ml/projects/"+project.ID+"?user_id=ext-someone-else", nil)
	w := httptest.NewRecorder()
	gw.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleGetProject_AllowsOwner(t *testing.T) {
	gw, st := newTestGateway(t)
	owner, err := st.UpsertUser(context.Background(), "ext-owner-2", "")
	require.NoError(t, err)
	project := &models.Project{
		ID: "22222222-2222-2222-2222-222222222222", UserID: owner.ID, Name: "p2",
		TaskType: "image_classification", Framework: "pytorch", DatasetSource: "kaggle",
		SearchKeywords: []string{"a"}, Status: models.StatusPendingDataset,
	}
	require.NoError(t, st.InsertProject(context.Background(), project))

	req := httptest.NewRequest(http.MethodGet, "/api/ml/projects/"+project.ID+"?user_id=ext-owner-2", nil)
	w := httptest.NewRecorder()
	gw.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleGetProject_NotFound(t *testing.T) {
	gw, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/api/ml/projects/00000000-0000-0000-0000-000000000000", nil)
	w := httptest.NewRecorder()
	gw.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleListProjects_RequiresUserID(t *testing.T) {
	gw, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/api/ml/projects", nil)
	w := httptest.NewRecorder()
	gw.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAdminStats_ReturnsAllStatuses(t *testing.T) {
	gw, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	w := httptest.NewRecorder()
	gw.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "pending_dataset")
}

package agenthttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/automl-platform/orchestrator/internal/models"
	"github.com/automl-platform/orchestrator/internal/pollrun"
	"github.com/automl-platform/orchestrator/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func seedProject(t *testing.T, st *store.Store, status models.ProjectStatus) *models.Project {
	t.Helper()
	user, err := st.UpsertUser(context.Background(), "ext-"+t.Name(), "")
	require.NoError(t, err)
	p := &models.Project{
		ID: "33333333-3333-3333-3333-333333333333", UserID: user.ID, Name: "p",
		TaskType: "image_classification", Framework: "pytorch", DatasetSource: "kaggle",
		SearchKeywords: []string{"a"}, Status: status,
	}
	require.NoError(t, st.InsertProject(context.Background(), p))
	return p
}

func newTestServer(t *testing.T, agentName string, process pollrun.Workflow) (*Server, *store.Store) {
	st := store.NewTestStore(t)
	runner := pollrun.New(agentName, pollrun.Config{PollInterval: time.Hour, BatchLimit: 5},
		func(ctx context.Context, limit int) ([]string, error) { return nil, nil }, process)
	return New(agentName, runner, st), st
}

func TestHandleStart_RejectsProjectNotOwnedByAgent(t *testing.T) {
	s, st := newTestServer(t, "dataset", func(ctx context.Context, id string) error { return nil })
	project := seedProject(t, st, models.StatusPendingTraining) // owned by training, not dataset

	req := httptest.NewRequest(http.MethodPost, "/agents/dataset/start",
		strings.NewReader(`{"project_id":"`+project.ID+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleStart_RunsWorkflowForOwnedProject(t *testing.T) {
	var ran bool
	s, st := newTestServer(t, "dataset", func(ctx context.Context, id string) error {
		ran = true
		return nil
	})
	project := seedProject(t, st, models.StatusPendingDataset)

	req := httptest.NewRequest(http.MethodPost, "/agents/dataset/start",
		strings.NewReader(`{"project_id":"`+project.ID+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, ran)
}

func TestHandlePollingStartStop_TogglesRunnerState(t *testing.T) {
	s, _ := newTestServer(t, "training", func(ctx context.Context, id string) error { return nil })

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/agents/training/polling/start", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w2 := httptest.NewRecorder()
	s.Router().ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/agents/training/polling/status", nil))
	require.Contains(t, w2.Body.String(), `"is_running":true`)

	w3 := httptest.NewRecorder()
	s.Router().ServeHTTP(w3, httptest.NewRequest(http.MethodPost, "/agents/training/polling/stop", nil))
	require.Equal(t, http.StatusOK, w3.Code)
}

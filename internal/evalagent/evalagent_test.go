package evalagent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/automl-platform/orchestrator/internal/models"
	"github.com/automl-platform/orchestrator/internal/store"
)

func seedProject(t *testing.T, st *store.Store, status models.ProjectStatus) *models.Project {
	t.Helper()
	user, err := st.UpsertUser(context.Background(), "ext-"+t.Name(), "")
	require.NoError(t, err)
	p := &models.Project{
		ID: "66666666-6666-6666-6666-666666666666", UserID: user.ID, Name: "p",
		TaskType: "image_classification", Framework: "pytorch", DatasetSource: "kaggle",
		SearchKeywords: []string{"a"}, Status: status,
	}
	require.NoError(t, st.InsertProject(context.Background(), p))
	return p
}

func TestRun_NotPendingEvaluationIsANoOp(t *testing.T) {
	st := store.NewTestStore(t)
	project := seedProject(t, st, models.StatusPendingTraining)
	a := New(st, nil, Config{BundleBucket: "bundles"})

	require.NoError(t, a.Run(context.Background(), project.ID))
	reloaded, err := st.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingTraining, reloaded.Status)
}

func TestRun_MissingDatasetRowFailsTheProject(t *testing.T) {
	st := store.NewTestStore(t)
	project := seedProject(t, st, models.StatusPendingEvaluation)
	a := New(st, nil, Config{BundleBucket: "bundles"})

	err := a.Run(context.Background(), project.ID)
	require.Error(t, err)

	reloaded, err := st.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, reloaded.Status)
}

func TestListPending_ReturnsOnlyPendingEvaluationProjects(t *testing.T) {
	st := store.NewTestStore(t)
	pending := seedProject(t, st, models.StatusPendingEvaluation)
	a := New(st, nil, Config{BundleBucket: "bundles"})

	ids, err := a.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Contains(t, ids, pending.ID)
}

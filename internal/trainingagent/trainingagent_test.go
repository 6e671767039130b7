package trainingagent

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
		ID: "55555555-5555-5555-5555-555555555555", UserID: user.ID, Name: "p",
		TaskType: "image_classification", Framework: "pytorch", DatasetSource: "kaggle",
		SearchKeywords: []string{"a"}, Status: status,
	}
	require.NoError(t, st.InsertProject(context.Background(), p))
	return p
}

func TestRun_NotPendingTrainingIsANoOp(t *testing.T) {
	st := store.NewTestStore(t)
	project := seedProject(t, st, models.StatusPendingDataset)
	a := New(st, nil, Config{ModelBucket: "models"})

	require.NoError(t, a.Run(context.Background(), project.ID))
	reloaded, err := st.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingDataset, reloaded.Status)
}

func TestRun_MissingDatasetRowFailsTheProject(t *testing.T) {
	st := store.NewTestStore(t)
	project := seedProject(t, st, models.StatusPendingTraining)
	a := New(st, nil, Config{ModelBucket: "models"})

	err := a.Run(context.Background(), project.ID)
	require.Error(t, err)

	reloaded, err := st.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, reloaded.Status)
}

func TestListPending_ReturnsOnlyPendingTrainingProjects(t *testing.T) {
	st := store.NewTestStore(t)
	pending := seedProject(t, st, models.StatusPendingTraining)
	a := New(st, nil, Config{ModelBucket: "models"})

	ids, err := a.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Contains(t, ids, pending.ID)
}

func TestHasAccelerator_DoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() { hasAccelerator() })
}

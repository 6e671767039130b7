package datasetagent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/automl-platform/orchestrator/internal/datasetsource"
	"github.com/automl-platform/orchestrator/internal/models"
	"github.com/automl-platform/orchestrator/internal/store"
)

type fakeSource struct {
	candidates []datasetsource.Candidate
}

func (f *fakeSource) Search(ctx context.Context, keywords []string, maxSizeBytes int64) ([]datasetsource.Candidate, error) {
	return f.candidates, nil
}

func seedProject(t *testing.T, st *store.Store, status models.ProjectStatus) *models.Project {
	t.Helper()
	user, err := st.UpsertUser(context.Background(), "ext-"+t.Name(), "")
	require.NoError(t, err)
	p := &models.Project{
		ID: "44444444-4444-4444-4444-444444444444", UserID: user.ID, Name: "cats vs dogs",
		TaskType: "image_classification", Framework: "pytorch", DatasetSource: "kaggle",
		SearchKeywords: []string{"cats", "dogs"}, Status: status,
	}
	require.NoError(t, st.InsertProject(context.Background(), p))
	return p
}

func TestRun_NotPendingDatasetIsANoOp(t *testing.T) {
	st := store.NewTestStore(t)
	project := seedProject(t, st, models.StatusPendingTraining)
	a := New(st, nil, &fakeSource{}, Config{DatasetBucket: "datasets"})

	require.NoError(t, a.Run(context.Background(), project.ID))
	reloaded, err := st.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingTraining, reloaded.Status)
}

func TestRun_ExistingDatasetRowAdvancesWithoutReacquiring(t *testing.T) {
	st := store.NewTestStore(t)
	project := seedProject(t, st, models.StatusPendingDataset)
	require.NoError(t, st.InsertDataset(context.Background(), &models.Dataset{
		ProjectID: project.ID, Name: "existing", ObjectURI: "s3://datasets/raw/existing.zip", Size: "100", Source: "kaggle",
	}))
	a := New(st, nil, &fakeSource{}, Config{DatasetBucket: "datasets"})

	require.NoError(t, a.Run(context.Background(), project.ID))
	reloaded, err := st.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingTraining, reloaded.Status, "smart-failure pre-check should advance without touching the source or object store")
}

func TestRun_NoCandidateFailsTheProject(t *testing.T) {
	st := store.NewTestStore(t)
	project := seedProject(t, st, models.StatusPendingDataset)
	a := New(st, nil, &fakeSource{candidates: nil}, Config{DatasetBucket: "datasets"})

	err := a.Run(context.Background(), project.ID)
	require.Error(t, err)

	reloaded, err := st.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, reloaded.Status)
	errInfo, ok := reloaded.Metadata["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "no_candidate", errInfo["kind"])
}

func TestListPending_ReturnsOnlyPendingDatasetProjects(t *testing.T) {
	st := store.NewTestStore(t)
	pending := seedProject(t, st, models.StatusPendingDataset)
	a := New(st, nil, &fakeSource{}, Config{DatasetBucket: "datasets"})

	ids, err := a.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Contains(t, ids, pending.ID)
}

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automl-platform/orchestrator/internal/models"
)

// newTestStore is a package-local alias for NewTestStore, kept so the
// existing tests below don't need every call site touched.
func newTestStore(t *testing.T) *Store {
	return NewTestStore(t)
}

func seedUser(t *testing.T, st *Store) *models.User {
	u, err := st.UpsertUser(context.Background(), "ext-"+t.Name(), "user@example.com")
	require.NoError(t, err)
	return u
}

func TestUpsertUser_IdempotentByExternalID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	u1, err := st.UpsertUser(ctx, "ext-1", "a@example.com")
	require.NoError(t, err)
	u2, err := st.UpsertUser(ctx, "ext-1", "")
	require.NoError(t, err)

	assert.Equal(t, u1.ID, u2.ID)
	assert.Equal(t, "a@example.com", u2.Email)
}

func TestAdvanceStatus_OnlySucceedsFromExpected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, st)

	p := &models.Project{
		UserID:         u.ID,
		Name:           "flower-classifier",
		TaskType:       "image_classification",
		Framework:      "pytorch",
		DatasetSource:  "kaggle",
		SearchKeywords: []string{"flower"},
		Status:         models.StatusPendingDataset,
		Metadata:       map[string]any{},
	}
	require.NoError(t, st.InsertProject(ctx, p))
	before := p.UpdatedAt

	result, err := st.AdvanceStatus(ctx, p.ID, models.StatusPendingDataset, models.StatusPendingTraining, map[string]any{"num_classes": 5})
	require.NoError(t, err)
	assert.Equal(t, models.AdvanceClaimed, result)

	reloaded, err := st.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingTraining, reloaded.Status)
	assert.True(t, reloaded.UpdatedAt.After(before))
	assert.EqualValues(t, 5, reloaded.MetaInt("num_classes"))

	// A second attempt from the same "from" status no longer matches.
	result2, err := st.AdvanceStatus(ctx, p.ID, models.StatusPendingDataset, models.StatusPendingTraining, nil)
	require.NoError(t, err)
	assert.Equal(t, models.AdvanceNotClaimed, result2)
}

func TestAdvanceStatus_NoSuchProject(t *testing.T) {
	st := newTestStore(t)
	result, err := st.AdvanceStatus(context.Background(), "00000000-0000-0000-0000-000000000000", models.StatusPendingDataset, models.StatusPendingTraining, nil)
	require.NoError(t, err)
	assert.Equal(t, models.AdvanceNoSuchProject, result)
}

func TestConcurrentAdvanceStatus_ExactlyOneWinner(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, st)

	p := &models.Project{
		UserID: u.ID, Name: "race", TaskType: "image_classification", Framework: "pytorch",
		DatasetSource: "kaggle", SearchKeywords: []string{"x"}, Status: models.StatusPendingDataset, Metadata: map[string]any{},
	}
	require.NoError(t, st.InsertProject(ctx, p))

	results := make(chan models.AdvanceResult, 2)
	for i := 0; i < 2; i++ {
		go func() {
			r, err := st.AdvanceStatus(ctx, p.ID, models.StatusPendingDataset, models.StatusPendingTraining, nil)
			require.NoError(t, err)
			results <- r
		}()
	}

	claimed, notClaimed := 0, 0
	for i := 0; i < 2; i++ {
		switch <-results {
		case models.AdvanceClaimed:
			claimed++
		case models.AdvanceNotClaimed:
			notClaimed++
		}
	}
	assert.Equal(t, 1, claimed)
	assert.Equal(t, 1, notClaimed)
}

func TestDatasetAndModelRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, st)

	p := &models.Project{
		UserID: u.ID, Name: "proj", TaskType: "image_classification", Framework: "pytorch",
		DatasetSource: "kaggle", SearchKeywords: []string{"x"}, Status: models.StatusPendingDataset, Metadata: map[string]any{},
	}
	require.NoError(t, st.InsertProject(ctx, p))

	_, err := st.GetDatasetByProject(ctx, p.ID)
	assert.Error(t, err, "no dataset yet")

	d := &models.Dataset{ProjectID: p.ID, Name: "flowers", ObjectURI: "s3://bucket/raw/flowers.zip", Size: "120 MB", Source: "kaggle"}
	require.NoError(t, st.InsertDataset(ctx, d))

	loaded, err := st.GetDatasetByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ObjectURI, loaded.ObjectURI)

	m := &models.Model{ProjectID: p.ID, Name: "resnet18", Framework: "pytorch", ObjectURI: "s3://bucket/models/proj_model.pth", Metadata: map[string]any{"epochs": 10}}
	require.NoError(t, st.InsertModel(ctx, m))
	require.NoError(t, st.UpdateModelEvaluation(ctx, m.ID, 0.92, map[string]any{"bundle_uri": "s3://bucket/bundles/proj.zip"}))

	loadedModel, err := st.GetModelByProject(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, loadedModel.Accuracy)
	assert.InDelta(t, 0.92, *loadedModel.Accuracy, 1e-9)
	assert.Equal(t, "s3://bucket/bundles/proj.zip", loadedModel.Metadata["bundle_uri"])
}

func TestAppendLog_AllowsNilProject(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.AppendLog(ctx, "", models.AgentDataset, models.LogInfo, "startup"))
}

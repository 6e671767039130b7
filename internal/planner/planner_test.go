package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/automl-platform/orchestrator/internal/models"
	"github.com/automl-platform/orchestrator/internal/store"
)

type fakeLLM struct {
	responses []string
	calls     int
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	r := f.responses[f.calls]
	if f.calls < len(f.responses)-1 {
		f.calls++
	}
	return r, nil
}

const validPlanJSON = `{"name":"Cats vs Dogs","task_type":"image_classification","framework":"pytorch","dataset_source":"kaggle","search_keywords":["cats","dogs"],"preferred_model":"resnet18","target_metric":"accuracy","target_value":0.92,"max_dataset_size_gb":5}`

func TestHandleMessage_CreatesProjectAndPersistsMessages(t *testing.T) {
	st := store.NewTestStore(t)
	p := New(st, &fakeLLM{responses: []string{validPlanJSON}})

	result, err := p.HandleMessage(context.Background(), "ext-user-1", "session-abc", "train a classifier for cats vs dogs")
	require.NoError(t, err)
	require.NotEmpty(t, result.ProjectID)

	project, err := st.GetProject(context.Background(), result.ProjectID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingDataset, project.Status)
	require.Equal(t, "Cats vs Dogs", project.Name)

	user, err := st.UpsertUser(context.Background(), "ext-user-1", "")
	require.NoError(t, err)
	messages, err := st.GetMessagesByUser(context.Background(), user.ID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2, "expect the user's utterance and the assistant summary")
	require.Equal(t, "session-abc", messages[0].SessionID)
}

func TestHandleMessage_RetriesOnceOnSchemaFailure(t *testing.T) {
	st := store.NewTestStore(t)
	p := New(st, &fakeLLM{responses: []string{"not json at all", validPlanJSON}})

	result, err := p.HandleMessage(context.Background(), "ext-user-2", "", "train a classifier")
	require.NoError(t, err)
	require.NotEmpty(t, result.ProjectID)
}

func TestHandleMessage_EmptyUtteranceRejected(t *testing.T) {
	st := store.NewTestStore(t)
	p := New(st, &fakeLLM{responses: []string{validPlanJSON}})

	_, err := p.HandleMessage(context.Background(), "ext-user-3", "", "   ")
	require.Error(t, err)
}

func TestHandleMessage_FailsAfterSchemaRetryExhausted(t *testing.T) {
	st := store.NewTestStore(t)
	p := New(st, &fakeLLM{responses: []string{"garbage", "still garbage"}})

	_, err := p.HandleMessage(context.Background(), "ext-user-4", "", "train a classifier")
	require.Error(t, err)
}

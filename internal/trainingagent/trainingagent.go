// Package trainingagent implements the training agent: it owns the
// pending_training status, builds and trains a model over the project's
// dataset, and advances the project to pending_evaluation.
package trainingagent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/automl-platform/orchestrator/internal/apperrors"
	"github.com/automl-platform/orchestrator/internal/archiveutil"
	"github.com/automl-platform/orchestrator/internal/mltrain"
	"github.com/automl-platform/orchestrator/internal/models"
	"github.com/automl-platform/orchestrator/internal/objectstore"
	"github.com/automl-platform/orchestrator/internal/slug"
	"github.com/automl-platform/orchestrator/internal/store"
)

// Config tunes the training agent's defaults, overridable per-project via
// plan metadata where applicable.
type Config struct {
	DefaultEpochs        int
	DefaultLearningRate  float64
	BatchSize            int
	AdvanceStatusRetries int
	ModelBucket          string
}

// Agent is the training agent. Only one Run executes at a time per process,
// a deliberate resource policy enforced by a buffered channel used as a mutex.
type Agent struct {
	store   *store.Store
	objects *objectstore.Client
	cfg     Config
	logger  *slog.Logger
	slot    chan struct{}
}

// New constructs a training Agent.
func New(st *store.Store, objects *objectstore.Client, cfg Config) *Agent {
	if cfg.DefaultEpochs <= 0 {
		cfg.DefaultEpochs = 10
	}
	if cfg.DefaultLearningRate <= 0 {
		cfg.DefaultLearningRate = 1e-3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.AdvanceStatusRetries <= 0 {
		cfg.AdvanceStatusRetries = 3
	}
	slot := make(chan struct{}, 1)
	slot <- struct{}{}
	return &Agent{store: st, objects: objects, cfg: cfg, logger: slog.Default().With("agent", "training"), slot: slot}
}

// ListPending is the polling runtime's Lister for pending_training.
func (a *Agent) ListPending(ctx context.Context, limit int) ([]string, error) {
	projects, err := a.store.GetProjectsByStatus(ctx, models.StatusPendingTraining, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return ids, nil
}

// Run executes the full training workflow for a single project.
func (a *Agent) Run(ctx context.Context, projectID string) error {
	<-a.slot
	defer func() { a.slot <- struct{}{} }()

	project, err := a.store.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if project.Status != models.StatusPendingTraining {
		return nil
	}
	dataset, err := a.store.GetDatasetByProject(ctx, projectID)
	if err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "load dataset row", err), "load_dataset")
	}

	workDir, err := os.MkdirTemp("", "training-"+projectID+"-")
	if err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "create workdir", err), "create_workdir")
	}
	defer os.RemoveAll(workDir)

	archivePath := filepath.Join(workDir, "archive")
	if ext := filepath.Ext(dataset.ObjectURI); ext != "" {
		archivePath += ext
	}
	if err := a.objects.Download(ctx, dataset.ObjectURI, archivePath); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "download dataset archive", err), "download")
	}

	datasetDir := filepath.Join(workDir, "dataset")
	if err := os.MkdirAll(datasetDir, 0o755); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "create dataset dir", err), "extract")
	}
	if err := archiveutil.Extract(archivePath, datasetDir); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "extract dataset archive", err), "extract")
	}

	layout, err := archiveutil.Resolve(datasetDir)
	if err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindBadDatasetLayout, "resolve dataset layout", err), "validate_layout")
	}

	preferredModel := project.MetaString("preferred_model")
	if preferredModel == "" {
		preferredModel = "resnet18"
	}
	if err := mltrain.ValidateArchitecture(preferredModel); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindInputInvalid, "unsupported architecture", err), "build_model")
	}

	trainSamples, err := mltrain.LoadSplit(layout.TrainDir, layout.Classes)
	if err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindBadDatasetLayout, "load train split", err), "load_data")
	}
	valSamples, err := mltrain.LoadSplit(layout.ValDir, layout.Classes)
	if err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindBadDatasetLayout, "load val split", err), "load_data")
	}

	batchSize := a.cfg.BatchSize
	if !hasAccelerator() {
		batchSize = batchSize / 2
		if batchSize < 1 {
			batchSize = 1
		}
	}

	epochs := a.cfg.DefaultEpochs
	if v := project.MetaInt("epochs"); v > 0 {
		epochs = v
	}
	lr := a.cfg.DefaultLearningRate
	if v := project.MetaFloat("lr"); v > 0 {
		lr = v
	}
	start := time.Now()

	model, finalTrainLoss, finalValLoss, err := mltrain.Train(preferredModel, layout.Classes, trainSamples, valSamples,
		mltrain.TrainConfig{Epochs: epochs, LearningRate: lr, BatchSize: batchSize},
		func(r mltrain.EpochResult) {
			a.logger.Info("training epoch complete", "project_id", projectID, "epoch", r.Epoch, "train_loss", r.TrainLoss, "val_loss", r.ValLoss)
			_ = a.store.AppendLog(ctx, projectID, models.AgentTraining, models.LogInfo,
				fmt.Sprintf("epoch %d/%d train_loss=%.4f val_loss=%.4f", r.Epoch, epochs, r.TrainLoss, r.ValLoss))
		})
	if err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "train model", err), "train")
	}
	trainingSeconds := time.Since(start).Seconds()

	weightsPath := filepath.Join(workDir, "model.pth")
	if err := model.Save(weightsPath); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "save model weights", err), "save_model")
	}

	projectSlug := slug.Make(project.Name)
	objectURI := fmt.Sprintf("s3://%s/models/%s_model.pth", a.cfg.ModelBucket, projectSlug)
	if err := a.objects.Upload(ctx, weightsPath, objectURI); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "upload model weights", err), "upload_model")
	}

	modelRow := &models.Model{
		ProjectID: projectID,
		Name:      preferredModel,
		Framework: project.Framework,
		ObjectURI: objectURI,
		Metadata: map[string]any{
			"epochs":           epochs,
			"final_loss":       finalTrainLoss,
			"final_val_loss":   finalValLoss,
			"training_seconds": trainingSeconds,
		},
	}
	if err := a.store.InsertModel(ctx, modelRow); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "persist model row", err), "insert_model")
	}

	metadataPatch := map[string]any{"num_classes": len(layout.Classes)}
	err = store.RetryN(ctx, a.cfg.AdvanceStatusRetries, 2*time.Second, func() error {
		result, err := a.store.AdvanceStatus(ctx, projectID, models.StatusPendingTraining, models.StatusPendingEvaluation, metadataPatch)
		if err != nil {
			return err
		}
		if result != models.AdvanceClaimed {
			return apperrors.New(apperrors.KindConflict, string(result))
		}
		return nil
	})
	if err != nil {
		a.logger.Warn("model trained but status transition failed; manual intervention may be needed", "project_id", projectID, "error", err)
		_ = a.store.AppendLog(ctx, projectID, models.AgentTraining, models.LogWarning, fmt.Sprintf("model ready but could not advance project status: %v", err))
		return nil
	}

	_ = a.store.AppendLog(ctx, projectID, models.AgentTraining, models.LogInfo, "training complete")
	if _, err := a.store.WriteMessage(ctx, project.UserID, "", models.RoleAssistant,
		fmt.Sprintf("Finished training %q. Running evaluation next.", project.Name)); err != nil {
		a.logger.Warn("failed to write training-complete message", "project_id", projectID, "error", err)
	}
	return nil
}

func hasAccelerator() bool {
	// No GPU/accelerator binding exists in this pipeline; runtime.NumCPU
	// stands in for "is this a constrained CPU-only environment".
	return runtime.NumCPU() > 8
}

func (a *Agent) fail(ctx context.Context, project *models.Project, failErr *apperrors.Error, step string) error {
	failErr = failErr.WithStep(step)
	_ = a.store.AppendLog(ctx, project.ID, models.AgentTraining, models.LogError, failErr.Error())
	_, _ = a.store.AdvanceStatus(ctx, project.ID, models.StatusPendingTraining, models.StatusFailed, map[string]any{
		"error": map[string]any{"kind": string(failErr.Kind), "detail": failErr.Detail(), "step": step},
	})
	return failErr
}

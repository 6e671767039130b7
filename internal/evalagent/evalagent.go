// Package evalagent implements the evaluation agent: it owns the
// pending_evaluation status, scores the trained model against the
// held-out test split, assembles a downloadable bundle, and advances the
// project to completed.
package evalagent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/automl-platform/orchestrator/internal/apperrors"
	"github.com/automl-platform/orchestrator/internal/archiveutil"
	"github.com/automl-platform/orchestrator/internal/mltrain"
	"github.com/automl-platform/orchestrator/internal/models"
	"github.com/automl-platform/orchestrator/internal/objectstore"
	"github.com/automl-platform/orchestrator/internal/slug"
	"github.com/automl-platform/orchestrator/internal/store"
)

// Config tunes the evaluation agent.
type Config struct {
	AdvanceStatusRetries int
	BundleBucket         string
}

// Agent is the evaluation agent.
type Agent struct {
	store   *store.Store
	objects *objectstore.Client
	cfg     Config
	logger  *slog.Logger
}

// New constructs an evaluation Agent.
func New(st *store.Store, objects *objectstore.Client, cfg Config) *Agent {
	if cfg.AdvanceStatusRetries <= 0 {
		cfg.AdvanceStatusRetries = 3
	}
	return &Agent{store: st, objects: objects, cfg: cfg, logger: slog.Default().With("agent", "evaluation")}
}

// ListPending is the polling runtime's Lister for pending_evaluation.
func (a *Agent) ListPending(ctx context.Context, limit int) ([]string, error) {
	projects, err := a.store.GetProjectsByStatus(ctx, models.StatusPendingEvaluation, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return ids, nil
}

// Run executes the full evaluation workflow for a single project.
func (a *Agent) Run(ctx context.Context, projectID string) error {
	project, err := a.store.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if project.Status != models.StatusPendingEvaluation {
		return nil
	}
	dataset, err := a.store.GetDatasetByProject(ctx, projectID)
	if err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "load dataset row", err), "load_dataset")
	}
	modelRow, err := a.store.GetModelByProject(ctx, projectID)
	if err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "load model row", err), "load_model")
	}

	workDir, err := os.MkdirTemp("", "eval-"+projectID+"-")
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
	weightsPath := filepath.Join(workDir, "model.pth")
	if err := a.objects.Download(ctx, modelRow.ObjectURI, weightsPath); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "download model weights", err), "download")
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

	model, err := mltrain.LoadLinearModel(weightsPath)
	if err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "load model weights", err), "load_weights")
	}

	// Open Question 3: archiveutil.Resolve only accepts a pre-split archive
	// that has train/, val/ and test/, and its auto-split always creates
	// test/; if the test directory is nonetheless missing on disk, score on
	// the val/ split rather than failing, and record the fallback.
	testDir := layout.TestDir
	if _, err := os.Stat(testDir); err != nil {
		testDir = layout.ValDir
		_ = a.store.AppendLog(ctx, projectID, models.AgentEvaluation, models.LogInfo, "test split not found; scoring on the val split")
	}
	testSamples, err := mltrain.LoadSplit(testDir, layout.Classes)
	if err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindBadDatasetLayout, "load test split", err), "load_data")
	}

	result, err := mltrain.Evaluate(model, testSamples)
	if err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "evaluate model", err), "evaluate")
	}

	if err := a.store.UpdateModelEvaluation(ctx, modelRow.ID, result.Accuracy, map[string]any{
		"macro_precision": result.MacroPrecision,
		"macro_recall":    result.MacroRecall,
		"macro_f1":        result.MacroF1,
		"per_class":       result.PerClass,
	}); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "persist evaluation results", err), "persist_results")
	}

	projectSlug := slug.Make(project.Name)
	bundleDir := filepath.Join(workDir, "bundle")
	zipPath := filepath.Join(workDir, projectSlug+".zip")
	if err := AssembleBundle(weightsPath, model, result.Accuracy, project.Name, bundleDir, zipPath); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "assemble bundle", err), "assemble_bundle")
	}

	bundleURI := fmt.Sprintf("s3://%s/bundles/%s.zip", a.cfg.BundleBucket, projectSlug)
	if err := a.objects.Upload(ctx, zipPath, bundleURI); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "upload bundle", err), "upload_bundle")
	}

	err = store.RetryN(ctx, a.cfg.AdvanceStatusRetries, 2*time.Second, func() error {
		res, err := a.store.AdvanceStatus(ctx, projectID, models.StatusPendingEvaluation, models.StatusCompleted, map[string]any{"bundle_uri": bundleURI})
		if err != nil {
			return err
		}
		if res != models.AdvanceClaimed {
			return apperrors.New(apperrors.KindConflict, string(res))
		}
		return nil
	})
	if err != nil {
		a.logger.Warn("bundle persisted but status transition failed; manual intervention may be needed", "project_id", projectID, "error", err)
		_ = a.store.AppendLog(ctx, projectID, models.AgentEvaluation, models.LogWarning, fmt.Sprintf("bundle ready but could not advance project status: %v", err))
		return nil
	}

	_ = a.store.AppendLog(ctx, projectID, models.AgentEvaluation, models.LogInfo,
		fmt.Sprintf("evaluation complete: accuracy=%.4f macro_f1=%.4f", result.Accuracy, result.MacroF1))
	if _, err := a.store.WriteMessage(ctx, project.UserID, "", models.RoleAssistant,
		fmt.Sprintf("Project %q is complete. Accuracy: %.1f%%. Your model bundle is ready to download.", project.Name, result.Accuracy*100)); err != nil {
		a.logger.Warn("failed to write completion message", "project_id", projectID, "error", err)
	}
	return nil
}

func (a *Agent) fail(ctx context.Context, project *models.Project, failErr *apperrors.Error, step string) error {
	failErr = failErr.WithStep(step)
	_ = a.store.AppendLog(ctx, project.ID, models.AgentEvaluation, models.LogError, failErr.Error())
	_, _ = a.store.AdvanceStatus(ctx, project.ID, models.StatusPendingEvaluation, models.StatusFailed, map[string]any{
		"error": map[string]any{"kind": string(failErr.Kind), "detail": failErr.Detail(), "step": step},
	})
	return failErr
}

// Package datasetagent implements the dataset agent: it owns the
// pending_dataset status, searches a dataset source for a matching
// archive, persists it to object storage, and advances the project to
// pending_training.
package datasetagent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/automl-platform/orchestrator/internal/apperrors"
	"github.com/automl-platform/orchestrator/internal/datasetsource"
	"github.com/automl-platform/orchestrator/internal/models"
	"github.com/automl-platform/orchestrator/internal/objectstore"
	"github.com/automl-platform/orchestrator/internal/slug"
	"github.com/automl-platform/orchestrator/internal/store"
)

// hardMaxDatasetSizeGB is the absolute ceiling on dataset size,
// independent of whatever the plan requested.
const hardMaxDatasetSizeGB = 50

// Config tunes retry/backoff and bucket selection for the agent.
type Config struct {
	AdvanceStatusRetries int
	DatasetBucket        string // bucket URIs are written under, e.g. "datasets-bucket"
}

// Agent is the dataset agent.
type Agent struct {
	store    *store.Store
	objects  *objectstore.Client
	source   datasetsource.Provider
	cfg      Config
	logger   *slog.Logger
}

// New constructs a dataset Agent.
func New(st *store.Store, objects *objectstore.Client, source datasetsource.Provider, cfg Config) *Agent {
	if cfg.AdvanceStatusRetries <= 0 {
		cfg.AdvanceStatusRetries = 3
	}
	return &Agent{store: st, objects: objects, source: source, cfg: cfg, logger: slog.Default().With("agent", "dataset")}
}

// ListPending fetches up to limit projects owned by this agent
// (pending_dataset), oldest first — the Lister the polling runtime uses.
func (a *Agent) ListPending(ctx context.Context, limit int) ([]string, error) {
	projects, err := a.store.GetProjectsByStatus(ctx, models.StatusPendingDataset, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return ids, nil
}

// Run executes the full dataset workflow for a single project.
func (a *Agent) Run(ctx context.Context, projectID string) error {
	project, err := a.store.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if project.Status != models.StatusPendingDataset {
		return nil // already moved on; idempotent re-poll
	}

	// Smart-failure pre-check: if a Dataset row already exists (a prior run
	// got through the download step but failed the transition), skip
	// straight to the status advance instead of re-searching/re-downloading.
	if existing, err := a.store.GetDatasetByProject(ctx, projectID); err == nil && existing != nil {
		return a.advance(ctx, project, nil)
	}

	workDir, err := os.MkdirTemp("", "dataset-"+projectID+"-")
	if err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "create workdir", err), "create_workdir")
	}
	defer os.RemoveAll(workDir)

	maxGB := project.MetaFloat("max_dataset_size_gb")
	if maxGB <= 0 || maxGB > hardMaxDatasetSizeGB {
		maxGB = hardMaxDatasetSizeGB
	}
	maxBytes := int64(maxGB * 1024 * 1024 * 1024)

	candidates, err := a.source.Search(ctx, project.SearchKeywords, maxBytes)
	if err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "search dataset source", err), "search")
	}
	ranked := datasetsource.Rank(candidates)
	if len(ranked) == 0 {
		return a.fail(ctx, project, apperrors.New(apperrors.KindNoCandidate, "no dataset candidate matched the search keywords within the size cap"), "search")
	}
	chosen := ranked[0]

	ext := filepath.Ext(chosen.DownloadURL)
	if ext == "" {
		ext = ".zip"
	}
	archivePath := filepath.Join(workDir, "archive"+ext)
	if err := a.download(ctx, chosen.DownloadURL, archivePath); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "download dataset archive", err), "download")
	}

	info, err := os.Stat(archivePath)
	if err != nil || info.Size() == 0 {
		return a.fail(ctx, project, apperrors.New(apperrors.KindDependency, "downloaded archive is empty"), "download")
	}

	projectSlug := slug.Make(project.Name)
	objectURI := fmt.Sprintf("s3://%s/raw/%s%s", a.cfg.DatasetBucket, projectSlug, ext)
	if err := a.objects.Upload(ctx, archivePath, objectURI); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "upload dataset archive", err), "upload")
	}

	dataset := &models.Dataset{
		ProjectID: projectID,
		Name:      chosen.Name,
		ObjectURI: objectURI,
		Size:      fmt.Sprintf("%d", info.Size()),
		Source:    project.DatasetSource,
	}
	if err := a.store.InsertDataset(ctx, dataset); err != nil {
		return a.fail(ctx, project, apperrors.Wrap(apperrors.KindDependency, "persist dataset row", err), "insert_dataset")
	}

	return a.advance(ctx, project, map[string]any{"dataset_name": chosen.Name})
}

func (a *Agent) download(ctx context.Context, url, dest string) error {
	// The URL returned by the dataset source is itself an object URI in
	// schemes this pipeline understands, or an opaque external URL the
	// object store client's Download resolves via its own bucket
	// allow-list. Provider internals beyond that boundary are out of scope.
	return a.objects.Download(ctx, url, dest)
}

// advance performs the status transition with the agent's retry budget. If
// the transition fails permanently but the Dataset row exists, this is the
// "integrity" smart-failure case: we do not mark the project failed —
// just log a warning and leave it for the next poll tick to retry the
// transition alone.
func (a *Agent) advance(ctx context.Context, project *models.Project, metadataPatch map[string]any) error {
	err := store.RetryN(ctx, a.cfg.AdvanceStatusRetries, 2*time.Second, func() error {
		result, err := a.store.AdvanceStatus(ctx, project.ID, models.StatusPendingDataset, models.StatusPendingTraining, metadataPatch)
		if err != nil {
			return err
		}
		if result == models.AdvanceNotClaimed || result == models.AdvanceNoSuchProject {
			return apperrors.New(apperrors.KindConflict, string(result))
		}
		return nil
	})
	if err != nil {
		a.logger.Warn("dataset archive persisted but status transition failed; manual intervention may be needed",
			"project_id", project.ID, "error", err)
		_ = a.store.AppendLog(ctx, project.ID, models.AgentDataset, models.LogWarning,
			fmt.Sprintf("dataset ready but could not advance project status: %v", err))
		return nil // integrity case: do not fail the project
	}
	_ = a.store.AppendLog(ctx, project.ID, models.AgentDataset, models.LogInfo, "dataset located and persisted")
	if _, err := a.store.WriteMessage(ctx, project.UserID, "", models.RoleAssistant,
		fmt.Sprintf("Found and saved a dataset for %q. Starting training next.", project.Name)); err != nil {
		a.logger.Warn("failed to write dataset-ready message", "project_id", project.ID, "error", err)
	}
	return nil
}

func (a *Agent) fail(ctx context.Context, project *models.Project, failErr *apperrors.Error, step string) error {
	failErr = failErr.WithStep(step)
	_ = a.store.AppendLog(ctx, project.ID, models.AgentDataset, models.LogError, failErr.Error())
	_, _ = a.store.AdvanceStatus(ctx, project.ID, models.StatusPendingDataset, models.StatusFailed, map[string]any{
		"error": map[string]any{"kind": string(failErr.Kind), "detail": failErr.Detail(), "step": step},
	})
	return failErr
}

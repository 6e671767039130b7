// Package planner implements the planner agent: it turns a free-text
// utterance into a validated Plan via an LLM call with a strict JSON
// schema, then creates the Project row that starts the pipeline.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/automl-platform/orchestrator/internal/apperrors"
	"github.com/automl-platform/orchestrator/internal/models"
	"github.com/automl-platform/orchestrator/internal/store"
)

// LLMClient is the narrow interface the planner needs from internal/llm —
// kept small so tests can supply a fake.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Planner handles chat utterances and produces Project rows.
type Planner struct {
	store  *store.Store
	llm    LLMClient
	logger *slog.Logger
}

// New constructs a Planner.
func New(st *store.Store, llm LLMClient) *Planner {
	return &Planner{store: st, llm: llm, logger: slog.Default().With("agent", "planner")}
}

// Result is the success shape returned to the gateway.
type Result struct {
	ProjectID   string
	PlanSummary string
}

// HandleMessage implements 's full algorithm: upsert user,
// call the LLM under a strict schema (retrying once with a reminder on
// failure), validate, insert the Project, and record the assistant message.
func (p *Planner) HandleMessage(ctx context.Context, externalUserID, sessionID, utterance string) (*Result, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, apperrors.New(apperrors.KindInputEmpty, "utterance is empty").WithStep("validate_input")
	}

	user, err := p.store.UpsertUser(ctx, externalUserID, "")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "upsert user", err).WithStep("upsert_user")
	}
	if _, err := p.store.WriteMessage(ctx, user.ID, sessionID, models.RoleUser, utterance); err != nil {
		p.logger.Warn("failed to persist user utterance", "user_id", user.ID, "error", err)
	}

	plan, err := p.obtainPlan(ctx, utterance)
	if err != nil {
		_ = p.store.AppendLog(ctx, "", models.AgentPlanner, models.LogWarning,
			fmt.Sprintf("plan generation failed for user %s: %v", user.ID, err))
		return nil, err
	}

	project, err := p.insertProjectWithRetry(ctx, user.ID, plan)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "insert project", err).WithStep("insert_project")
	}

	summary := summarize(plan)
	if _, err := p.store.WriteMessage(ctx, user.ID, sessionID, models.RoleAssistant, summary); err != nil {
		p.logger.Warn("failed to write assistant message", "project_id", project.ID, "error", err)
	}
	_ = p.store.AppendLog(ctx, project.ID, models.AgentPlanner, models.LogInfo, "plan created: "+summary)

	return &Result{ProjectID: project.ID, PlanSummary: summary}, nil
}

// obtainPlan calls the LLM, validating the response against the strict
// schema and retrying once with a schema-reminder prefix on failure.
func (p *Planner) obtainPlan(ctx context.Context, utterance string) (*Plan, error) {
	plan, err := p.callAndParse(ctx, utterance, systemPrompt)
	if err == nil {
		return plan, nil
	}
	p.logger.Warn("planner LLM output failed schema validation, retrying once", "error", err)

	plan, err2 := p.callAndParse(ctx, utterance, schemaReminderPrefix+systemPrompt)
	if err2 == nil {
		return plan, nil
	}
	p.logger.Warn("planner LLM output failed schema validation on retry", "raw_error", err2)
	return nil, apperrors.New(apperrors.KindPlanInvalid, "llm did not produce a schema-conformant plan after retry").WithStep("call_llm")
}

func (p *Planner) callAndParse(ctx context.Context, utterance, system string) (*Plan, error) {
	raw, err := p.llm.Complete(ctx, system, utterance)
	if err != nil {
		return nil, fmt.Errorf("llm call failed: %w", err)
	}
	var plan Plan
	if err := json.Unmarshal([]byte(extractJSON(raw)), &plan); err != nil {
		return nil, fmt.Errorf("llm output is not valid json: %w", err)
	}
	plan.ApplyDefaults(utterance)
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("llm output failed validation: %w", err)
	}
	return &plan, nil
}

// insertProjectWithRetry retries project insertion with a fresh id on the
// rare UUID-collision conflict.
func (p *Planner) insertProjectWithRetry(ctx context.Context, userID string, plan *Plan) (*models.Project, error) {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		project := &models.Project{
			ID:             uuid.NewString(),
			UserID:         userID,
			Name:           plan.Name,
			TaskType:       plan.TaskType,
			Framework:      plan.Framework,
			DatasetSource:  plan.DatasetSource,
			SearchKeywords: plan.SearchKeywords,
			Status:         models.StatusPendingDataset,
			Metadata: map[string]any{
				"preferred_model":     plan.PreferredModel,
				"target_metric":       plan.TargetMetric,
				"target_value":        plan.TargetValue,
				"max_dataset_size_gb": plan.MaxDatasetSizeGB,
			},
		}
		err := p.store.InsertProject(ctx, project)
		if err == nil {
			return project, nil
		}
		lastErr = err
		if apperrors.KindOf(err) != apperrors.KindConflict {
			return nil, err
		}
	}
	return nil, lastErr
}

func summarize(plan *Plan) string {
	return fmt.Sprintf(
		"Started project %q: %s task on %s, targeting %s >= %.2f using %s, dataset search keywords %v (max %.1f GB).",
		plan.Name, plan.TaskType, plan.Framework, plan.TargetMetric, plan.TargetValue, plan.PreferredModel,
		plan.SearchKeywords, plan.MaxDatasetSizeGB,
	)
}

// extractJSON trims any leading/trailing prose an LLM might wrap the JSON
// object in, taking the outermost {...} span.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}

const schemaReminderPrefix = `Respond with ONLY a single JSON object matching the required schema — no prose, no markdown fences. `

const systemPrompt = `You are a planning assistant for an automated machine learning pipeline.
Given a user's free-text request, respond with a single JSON object with these fields:
name (string, 3-80 chars), task_type (string, default "image_classification"),
framework (string, default "pytorch"), dataset_source (string, default "kaggle"),
search_keywords (array of 1-8 lowercase strings), preferred_model (one of
resnet18, resnet34, resnet50, mobilenet_v2, efficientnet_b0), target_metric
(string, default "accuracy"), target_value (number in [0,1], default 0.9),
max_dataset_size_gb (number, parsed from phrases like "under 500MB" or "max 2GB").
Respond with ONLY the JSON object.`

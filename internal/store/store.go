package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/automl-platform/orchestrator/internal/apperrors"
	"github.com/automl-platform/orchestrator/internal/models"
)

// classify maps a raw database/sql or pgx error to an apperrors Kind. No
// retry happens here — the adapter never retries implicitly; callers own
// the retry budget.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.Wrap(apperrors.KindNotFound, "no matching row", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return apperrors.Wrap(apperrors.KindConflict, "unique constraint violated", err)
		case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization/deadlock
			return apperrors.Wrap(apperrors.KindTransient, "transaction conflict", err)
		case pgErr.Code[:2] == "08": // connection exceptions
			return apperrors.Wrap(apperrors.KindTransient, "connection error", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindTimeout, "database call timed out", err)
	}
	// Unclassified driver errors (pool exhaustion, transient network flaps)
	// are treated as transient so the caller's bounded retry budget applies.
	return apperrors.Wrap(apperrors.KindTransient, "database error", err)
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// UpsertUser resolves or creates a User by external_auth_id.
func (s *Store) UpsertUser(ctx context.Context, externalAuthID, email string) (*models.User, error) {
	id := uuid.NewString()
	const q = `
		INSERT INTO users (id, external_auth_id, email)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (external_auth_id) DO UPDATE SET email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email)
		RETURNING id, external_auth_id, COALESCE(email, ''), is_admin, created_at`
	row := s.db.QueryRowContext(ctx, q, id, externalAuthID, email)
	u := &models.User{}
	if err := row.Scan(&u.ID, &u.ExternalAuthID, &u.Email, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, apperrors.Wrap(apperrors.KindPermanent, "upsert user", classify(err))
	}
	return u, nil
}

// ListUsers returns users ordered by most recently created first, for the
// admin user-listing surface.
func (s *Store) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	const q = `
		SELECT id, external_auth_id, COALESCE(email, ''), is_admin, created_at
		FROM users ORDER BY created_at DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.ExternalAuthID, &u.Email, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, u)
	}
	return out, classify(rows.Err())
}

// InsertProject creates a new Project row in the given initial status.
func (s *Store) InsertProject(ctx context.Context, p *models.Project) error {
	keywords, err := marshalJSON(p.SearchKeywords)
	if err != nil {
		return apperrors.Wrap(apperrors.KindPermanent, "marshal search_keywords", err)
	}
	metadata, err := marshalJSON(p.Metadata)
	if err != nil {
		return apperrors.Wrap(apperrors.KindPermanent, "marshal metadata", err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO projects (id, user_id, name, task_type, framework, dataset_source, search_keywords, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`
	row := s.db.QueryRowContext(ctx, q, p.ID, p.UserID, p.Name, p.TaskType, p.Framework, p.DatasetSource, keywords, p.Status, metadata)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return classify(err)
	}
	return nil
}

// GetProject loads a single project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	const q = `
		SELECT id, user_id, name, task_type, framework, dataset_source, search_keywords, status, metadata, created_at, updated_at
		FROM projects WHERE id = $1`
	return s.scanProject(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) scanProject(row *sql.Row) (*models.Project, error) {
	p := &models.Project{}
	var keywords, metadata []byte
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.TaskType, &p.Framework, &p.DatasetSource,
		&keywords, &p.Status, &metadata, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, classify(err)
	}
	if err := json.Unmarshal(keywords, &p.SearchKeywords); err != nil {
		return nil, apperrors.Wrap(apperrors.KindPermanent, "unmarshal search_keywords", err)
	}
	if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
		return nil, apperrors.Wrap(apperrors.KindPermanent, "unmarshal metadata", err)
	}
	return p, nil
}

// GetProjectsByStatus fetches up to limit projects in the given status,
// oldest updated_at first — the order the polling runtime claims work in.
func (s *Store) GetProjectsByStatus(ctx context.Context, status models.ProjectStatus, limit int) ([]*models.Project, error) {
	const q = `
		SELECT id, user_id, name, task_type, framework, dataset_source, search_keywords, status, metadata, created_at, updated_at
		FROM projects WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, status, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p := &models.Project{}
		var keywords, metadata []byte
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.TaskType, &p.Framework, &p.DatasetSource,
			&keywords, &p.Status, &metadata, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, classify(err)
		}
		_ = json.Unmarshal(keywords, &p.SearchKeywords)
		_ = json.Unmarshal(metadata, &p.Metadata)
		out = append(out, p)
	}
	return out, classify(rows.Err())
}

// AdvanceStatus is the sole primitive used to claim and advance work. It
// succeeds only if the current status equals from,
// substituting for distributed locking. metadataPatch keys are shallow-
// merged into the existing metadata JSON.
func (s *Store) AdvanceStatus(ctx context.Context, projectID string, from, to models.ProjectStatus, metadataPatch map[string]any) (models.AdvanceResult, error) {
	patch, err := marshalJSON(metadataPatch)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindPermanent, "marshal metadata_patch", err)
	}

	const q = `
		UPDATE projects
		SET status = $1, metadata = metadata || $2::jsonb, updated_at = now()
		WHERE id = $3 AND status = $4`
	res, err := s.db.ExecContext(ctx, q, to, patch, projectID, from)
	if err != nil {
		return "", classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", classify(err)
	}
	if affected == 1 {
		return models.AdvanceClaimed, nil
	}

	// Distinguish "no such project" from "status already moved on" so
	// callers can log accordingly.
	exists, err := s.projectExists(ctx, projectID)
	if err != nil {
		return "", err
	}
	if !exists {
		return models.AdvanceNoSuchProject, nil
	}
	return models.AdvanceNotClaimed, nil
}

func (s *Store) projectExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, classify(err)
	}
	return exists, nil
}

// GetDatasetByProject loads the Dataset row for a project, if any.
func (s *Store) GetDatasetByProject(ctx context.Context, projectID string) (*models.Dataset, error) {
	const q = `SELECT id, project_id, name, object_uri, size, source, created_at FROM datasets WHERE project_id = $1`
	row := s.db.QueryRowContext(ctx, q, projectID)
	d := &models.Dataset{}
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Name, &d.ObjectURI, &d.Size, &d.Source, &d.CreatedAt); err != nil {
		return nil, classify(err)
	}
	return d, nil
}

// InsertDataset records a located dataset archive for a project.
func (s *Store) InsertDataset(ctx context.Context, d *models.Dataset) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO datasets (id, project_id, name, object_uri, size, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	row := s.db.QueryRowContext(ctx, q, d.ID, d.ProjectID, d.Name, d.ObjectURI, d.Size, d.Source)
	if err := row.Scan(&d.CreatedAt); err != nil {
		return classify(err)
	}
	return nil
}

// GetModelByProject loads the Model row for a project, if any.
func (s *Store) GetModelByProject(ctx context.Context, projectID string) (*models.Model, error) {
	const q = `SELECT id, project_id, name, framework, object_uri, accuracy, metadata, created_at, updated_at FROM models WHERE project_id = $1`
	row := s.db.QueryRowContext(ctx, q, projectID)
	m := &models.Model{}
	var metadata []byte
	if err := row.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Framework, &m.ObjectURI, &m.Accuracy, &metadata, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, classify(err)
	}
	if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
		return nil, apperrors.Wrap(apperrors.KindPermanent, "unmarshal model metadata", err)
	}
	return m, nil
}

// InsertModel records a trained model's weights and metadata.
func (s *Store) InsertModel(ctx context.Context, m *models.Model) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	metadata, err := marshalJSON(m.Metadata)
	if err != nil {
		return apperrors.Wrap(apperrors.KindPermanent, "marshal model metadata", err)
	}
	const q = `
		INSERT INTO models (id, project_id, name, framework, object_uri, accuracy, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	row := s.db.QueryRowContext(ctx, q, m.ID, m.ProjectID, m.Name, m.Framework, m.ObjectURI, m.Accuracy, metadata)
	if err := row.Scan(&m.CreatedAt, &m.UpdatedAt); err != nil {
		return classify(err)
	}
	return nil
}

// UpdateModelEvaluation sets accuracy and merges metadata after evaluation.
func (s *Store) UpdateModelEvaluation(ctx context.Context, modelID string, accuracy float64, metadataPatch map[string]any) error {
	patch, err := marshalJSON(metadataPatch)
	if err != nil {
		return apperrors.Wrap(apperrors.KindPermanent, "marshal metadata_patch", err)
	}
	const q = `UPDATE models SET accuracy = $1, metadata = metadata || $2::jsonb, updated_at = now() WHERE id = $3`
	res, err := s.db.ExecContext(ctx, q, accuracy, patch, modelID)
	if err != nil {
		return classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if affected == 0 {
		return apperrors.New(apperrors.KindNotFound, "model not found")
	}
	return nil
}

// AppendLog writes an append-only AgentLog row. projectID may be empty for
// startup events.
func (s *Store) AppendLog(ctx context.Context, projectID string, agent models.AgentName, level models.LogLevel, message string) error {
	var pid any
	if projectID != "" {
		pid = projectID
	}
	const q = `INSERT INTO agent_logs (id, project_id, agent_name, log_level, message) VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.ExecContext(ctx, q, uuid.NewString(), pid, agent, level, message)
	return classify(err)
}

// GetLogsByProject returns recent AgentLog rows for a project, newest first.
func (s *Store) GetLogsByProject(ctx context.Context, projectID string, limit int) ([]*models.AgentLog, error) {
	const q = `SELECT id, project_id, agent_name, log_level, message, created_at FROM agent_logs WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, projectID, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []*models.AgentLog
	for rows.Next() {
		l := &models.AgentLog{}
		var pid sql.NullString
		if err := rows.Scan(&l.ID, &pid, &l.AgentName, &l.LogLevel, &l.Message, &l.CreatedAt); err != nil {
			return nil, classify(err)
		}
		if pid.Valid {
			v := pid.String
			l.ProjectID = &v
		}
		out = append(out, l)
	}
	return out, classify(rows.Err())
}

// DeleteLogsOlderThan purges AgentLog rows older than cutoff and reports how
// many rows were removed, for the retention service's periodic sweep.
func (s *Store) DeleteLogsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `DELETE FROM agent_logs WHERE created_at < $1`
	res, err := s.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	return int(n), classify(err)
}

// FailStalePendingProjects transitions any non-terminal project whose
// updated_at is older than cutoff to failed, for the retention service's
// periodic sweep. A project cannot make progress forever without one of the
// pipeline agents touching it, so this bounds how long a stuck project sits
// in a pending status.
func (s *Store) FailStalePendingProjects(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `UPDATE projects SET status = $1, updated_at = now(),
		metadata = metadata || jsonb_build_object('error', jsonb_build_object('kind', 'timeout', 'detail', 'project exceeded the maximum pending duration'))
		WHERE status NOT IN ($2, $3) AND updated_at < $4`
	res, err := s.db.ExecContext(ctx, q, models.StatusFailed, models.StatusCompleted, models.StatusFailed, cutoff)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	return int(n), classify(err)
}

// WriteMessage persists a chat turn, optionally tagged with a session id so
// a multi-turn conversation can be grouped back together.
func (s *Store) WriteMessage(ctx context.Context, userID, sessionID string, role models.MessageRole, content string) (*models.Message, error) {
	id := uuid.NewString()
	var sid any
	if sessionID != "" {
		sid = sessionID
	}
	const q = `INSERT INTO messages (id, user_id, session_id, role, content) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`
	row := s.db.QueryRowContext(ctx, q, id, userID, sid, role, content)
	m := &models.Message{ID: id, UserID: userID, SessionID: sessionID, Role: role, Content: content}
	if err := row.Scan(&m.CreatedAt); err != nil {
		return nil, classify(err)
	}
	return m, nil
}

// GetMessagesByUser returns a user's chat history, newest first, for the
// chat surface's message-history endpoint.
func (s *Store) GetMessagesByUser(ctx context.Context, userID string, limit int) ([]*models.Message, error) {
	const q = `SELECT id, user_id, session_id, role, content, created_at FROM messages WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		m := &models.Message{}
		var sid sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &sid, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, classify(err)
		}
		m.SessionID = sid.String
		out = append(out, m)
	}
	return out, classify(rows.Err())
}

// CountProjectsByStatus is used by admin stats.
func (s *Store) CountProjectsByStatus(ctx context.Context, status models.ProjectStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM projects WHERE status = $1`, status).Scan(&n)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// ListProjectsByUser returns a user's projects, newest first.
func (s *Store) ListProjectsByUser(ctx context.Context, userID string, limit int) ([]*models.Project, error) {
	const q = `
		SELECT id, user_id, name, task_type, framework, dataset_source, search_keywords, status, metadata, created_at, updated_at
		FROM projects WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []*models.Project
	for rows.Next() {
		p := &models.Project{}
		var keywords, metadata []byte
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.TaskType, &p.Framework, &p.DatasetSource,
			&keywords, &p.Status, &metadata, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, classify(err)
		}
		_ = json.Unmarshal(keywords, &p.SearchKeywords)
		_ = json.Unmarshal(metadata, &p.Metadata)
		out = append(out, p)
	}
	return out, classify(rows.Err())
}

// RetryN runs fn up to n+1 times, retrying only KindTransient failures with
// a fixed linear backoff. This lives outside Store itself since the adapter
// never retries implicitly, and is reused by every agent's call sites.
func RetryN(ctx context.Context, n int, backoff time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= n; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !apperrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == n {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("exhausted %d retries: %w", n, lastErr)
}

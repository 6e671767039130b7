// Package gateway implements the orchestrator gateway: a stateless HTTP
// facade that translates caller auth to owning users, forwards chat
// submissions to the planner, and streams bundle downloads. It performs
// no status transitions itself.
package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/automl-platform/orchestrator/internal/models"
	"github.com/automl-platform/orchestrator/internal/objectstore"
	"github.com/automl-platform/orchestrator/internal/planner"
	"github.com/automl-platform/orchestrator/internal/store"
	"github.com/automl-platform/orchestrator/internal/version"
)

// Gateway holds the dependencies the HTTP handlers need.
type Gateway struct {
	store   *store.Store
	objects *objectstore.Client
	planner *planner.Planner
}

// New constructs a Gateway; Router registers the routes.
func New(st *store.Store, objects *objectstore.Client, p *planner.Planner) *Gateway {
	return &Gateway{store: st, objects: objects, planner: p}
}

// Router builds the gin engine with every public route registered.
func (g *Gateway) Router() *gin.Engine {
	r := gin.Default()

	r.GET("/health", g.handleHealth)

	api := r.Group("/api/ml")
	api.POST("/chat", g.handleChat)
	api.GET("/messages", g.handleListMessages)
	api.GET("/projects", g.handleListProjects)
	api.GET("/projects/:id", g.handleGetProject)
	api.GET("/projects/:id/logs", g.handleGetLogs)
	api.GET("/projects/:id/download", g.handleDownloadBundle)
	api.POST("/projects/:id/test", g.handleTestInference)

	admin := r.Group("/api/admin")
	admin.GET("/stats", g.handleAdminStats)
	admin.GET("/users", g.handleAdminUsers)
	admin.GET("/projects", g.handleAdminProjects)
	admin.GET("/logs", g.handleAdminLogs)

	return r
}

func (g *Gateway) handleHealth(c *gin.Context) {
	dbHealth, err := store.Health(c.Request.Context(), g.store.DB())
	status := http.StatusOK
	if err != nil {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":    dbHealth.Status,
		"version":   version.Full(),
		"timestamp": time.Now().UTC(),
		"database":  dbHealth,
	})
}

type chatRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	SessionID string `json:"session_id"`
	Message   string `json:"message_text" binding:"required"`
}

func (g *Gateway) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "kind": "input_invalid", "detail": err.Error()})
		return
	}

	result, err := g.planner.HandleMessage(c.Request.Context(), req.UserID, req.SessionID, req.Message)
	if err != nil {
		statusFromPlannerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"project_id": result.ProjectID,
		"plan":       result.PlanSummary,
		"message":    result.PlanSummary,
	})
}

// handleListMessages returns a user's chat history, newest first — the
// conversational counterpart to /projects for a chat-style client.
func (g *Gateway) handleListMessages(c *gin.Context) {
	externalUserID := c.Query("user_id")
	if externalUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	user, err := g.store.UpsertUser(c.Request.Context(), externalUserID, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}
	messages, err := g.store.GetMessagesByUser(c.Request.Context(), user.ID, limitParam(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// resolveCallerProject loads a project and enforces the owner-vs-caller
// 403 check — every project-scoped call translates the caller's external
// auth id to the owning user id and rejects mismatches unless the caller
// is an admin.
func (g *Gateway) resolveCallerProject(c *gin.Context, projectID string) (*models.Project, bool) {
	project, err := g.store.GetProject(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return nil, false
	}

	callerExternalID := c.Query("user_id")
	if callerExternalID == "" {
		callerExternalID = c.GetHeader("X-User-Id")
	}
	if callerExternalID == "" {
		return project, true // admin-surface / test endpoints without a caller context
	}

	caller, err := g.store.UpsertUser(c.Request.Context(), callerExternalID, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve caller"})
		return nil, false
	}
	if caller.ID != project.UserID && !caller.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return project, true
}

func (g *Gateway) handleListProjects(c *gin.Context) {
	externalUserID := c.Query("user_id")
	if externalUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	user, err := g.store.UpsertUser(c.Request.Context(), externalUserID, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}
	projects, err := g.store.ListProjectsByUser(c.Request.Context(), user.ID, limitParam(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (g *Gateway) handleGetProject(c *gin.Context) {
	project, ok := g.resolveCallerProject(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, project)
}

func (g *Gateway) handleGetLogs(c *gin.Context) {
	project, ok := g.resolveCallerProject(c, c.Param("id"))
	if !ok {
		return
	}
	logs, err := g.store.GetLogsByProject(c.Request.Context(), project.ID, limitParam(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// handleDownloadBundle streams the bundle zip via the object store
// adapter, never materializing the whole file in memory.
func (g *Gateway) handleDownloadBundle(c *gin.Context) {
	project, ok := g.resolveCallerProject(c, c.Param("id"))
	if !ok {
		return
	}
	bundleURI := project.MetaString("bundle_uri")
	if bundleURI == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "bundle is not ready for this project"})
		return
	}

	stream, size, err := g.objects.OpenRead(c.Request.Context(), bundleURI)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "bundle not found"})
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="`+project.Name+`.zip"`)
	c.DataFromReader(http.StatusOK, size, "application/zip", stream, nil)
}

// handleTestInference accepts a multipart image upload and is an
// admin/testing-only inference endpoint. The prediction itself is done by
// the predict method (predict.go), which downloads and loads the project's
// model weights on every request.
func (g *Gateway) handleTestInference(c *gin.Context) {
	project, ok := g.resolveCallerProject(c, c.Param("id"))
	if !ok {
		return
	}
	if project.Status != models.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "project has no completed model to test against"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	label, confidence, err := g.predict(c.Request.Context(), project, file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"label": label, "confidence": confidence})
}

func (g *Gateway) handleAdminStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats := gin.H{}
	for _, status := range []models.ProjectStatus{
		models.StatusDraft, models.StatusPendingDataset, models.StatusPendingTraining,
		models.StatusPendingEvaluation, models.StatusCompleted, models.StatusFailed,
	} {
		n, err := g.store.CountProjectsByStatus(ctx, status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
			return
		}
		stats[string(status)] = n
	}
	c.JSON(http.StatusOK, gin.H{"projects_by_status": stats})
}

func (g *Gateway) handleAdminUsers(c *gin.Context) {
	users, err := g.store.ListUsers(c.Request.Context(), limitParam(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (g *Gateway) handleAdminProjects(c *gin.Context) {
	status := c.Query("status")
	limit := limitParam(c, 50)
	if status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status query parameter is required"})
		return
	}
	projects, err := g.store.GetProjectsByStatus(c.Request.Context(), models.ProjectStatus(status), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (g *Gateway) handleAdminLogs(c *gin.Context) {
	projectID := c.Query("project_id")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project_id query parameter is required"})
		return
	}
	logs, err := g.store.GetLogsByProject(c.Request.Context(), projectID, limitParam(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func limitParam(c *gin.Context, def int) int {
	v := c.Query("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func statusFromPlannerError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "kind": errKind(err), "detail": err.Error()})
}

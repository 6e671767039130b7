// Package agenthttp implements the HTTP surface shared by the dataset,
// training, and evaluation agents: start, status,
// polling control, and health — identical across all three, so each
// agent's cmd entrypoint wires the same router against its own Runner and
// store lookups.
package agenthttp

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/automl-platform/orchestrator/internal/models"
	"github.com/automl-platform/orchestrator/internal/pollrun"
	"github.com/automl-platform/orchestrator/internal/store"
	"github.com/automl-platform/orchestrator/internal/version"
)

// Server wires a pollrun.Runner and the store into the shared agent route
// set.
type Server struct {
	agentName string
	runner    *pollrun.Runner
	store     *store.Store
}

// New constructs a Server for one agent.
func New(agentName string, runner *pollrun.Runner, st *store.Store) *Server {
	return &Server{agentName: agentName, runner: runner, store: st}
}

// Router builds the gin engine with every route of this agent's surface.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.GET("/health", s.handleHealth)

	group := r.Group("/agents/" + s.agentName)
	group.POST("/start", s.handleStart)
	group.GET("/status/:project_id", s.handleStatus)
	group.POST("/polling/start", s.handlePollingStart)
	group.POST("/polling/stop", s.handlePollingStop)
	group.GET("/polling/status", s.handlePollingStatus)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	dbHealth, err := store.Health(c.Request.Context(), s.store.DB())
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

type startRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
}

// handleStart runs the agent's workflow synchronously for one project —
// the manual-trigger path. A project not currently in this agent's owned
// status is a 409, per the status-precondition rule.
func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := s.store.GetProject(c.Request.Context(), req.ProjectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if !s.ownsStatus(project.Status) {
		c.JSON(http.StatusConflict, gin.H{"error": "project is not in a status this agent owns"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Minute)
	defer cancel()
	if err := s.runner.RunOne(ctx, req.ProjectID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleStatus(c *gin.Context) {
	projectID := c.Param("project_id")
	project, err := s.store.GetProject(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	logs, err := s.store.GetLogsByProject(c.Request.Context(), projectID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": project.Status, "logs": logs})
}

func (s *Server) handlePollingStart(c *gin.Context) {
	s.runner.Start(context.Background())
	c.JSON(http.StatusOK, gin.H{"is_running": true})
}

func (s *Server) handlePollingStop(c *gin.Context) {
	s.runner.Stop()
	c.JSON(http.StatusOK, gin.H{"is_running": false})
}

func (s *Server) handlePollingStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"is_running":               s.runner.IsRunning(),
		"poll_interval":            s.runner.PollInterval().Seconds(),
		"processed_projects_count": s.runner.ProcessedCount(),
	})
}

// ownsStatus maps agent name to the one project status that agent owns:
// dataset → pending_dataset, training → pending_training, evaluation →
// pending_evaluation.
func (s *Server) ownsStatus(status models.ProjectStatus) bool {
	switch s.agentName {
	case "dataset":
		return status == models.StatusPendingDataset
	case "training":
		return status == models.StatusPendingTraining
	case "evaluation":
		return status == models.StatusPendingEvaluation
	default:
		return false
	}
}

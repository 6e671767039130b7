// Command planner runs the planner agent: it turns a free-text utterance
// into a validated Plan via an LLM call and creates the Project row that
// starts the pipeline. Unlike the dataset/training/
// evaluation agents it owns no status and runs no poll loop — it only
// responds to direct requests from the gateway.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/automl-platform/orchestrator/internal/llm"
	"github.com/automl-platform/orchestrator/internal/planner"
	"github.com/automl-platform/orchestrator/internal/store"
	"github.com/automl-platform/orchestrator/internal/version"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type handleMessageRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	SessionID string `json:"session_id"`
	Utterance string `json:"utterance" binding:"required"`
}

func main() {
	gin.SetMode(getEnv("GIN_MODE", "debug"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg, err := store.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	st, err := store.NewStore(ctx, dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer st.Close()

	llmClient := llm.NewClient(llm.Config{
		BaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		APIKey:  os.Getenv("LLM_API_KEY"),
		Model:   getEnv("LLM_MODEL", "gpt-4o-mini"),
	})
	p := planner.New(st, llmClient)

	r := gin.Default()
	r.GET("/health", func(c *gin.Context) {
		dbHealth, err := store.Health(c.Request.Context(), st.DB())
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
	})
	r.POST("/agents/planner/handle_message", func(c *gin.Context) {
		var req handleMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := p.HandleMessage(c.Request.Context(), req.UserID, req.SessionID, req.Utterance)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"project_id": result.ProjectID, "plan": result.PlanSummary})
	})

	httpPort := getEnv("HTTP_PORT", "8084")
	server := &http.Server{Addr: ":" + httpPort, Handler: r}

	go func() {
		log.Printf("planner agent listening on :%s", httpPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("planner agent server failed: %v", err)
		}
	}()

	<-ctx.Done()
	stop()
	log.Print("planner agent shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("planner agent server shutdown error: %v", err)
	}
}

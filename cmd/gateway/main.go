// Command gateway runs the orchestrator gateway: the stateless HTTP facade
// in front of the planner and the store/object-store adapters.
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

	"github.com/automl-platform/orchestrator/internal/config"
	"github.com/automl-platform/orchestrator/internal/gateway"
	"github.com/automl-platform/orchestrator/internal/llm"
	"github.com/automl-platform/orchestrator/internal/objectstore"
	"github.com/automl-platform/orchestrator/internal/planner"
	"github.com/automl-platform/orchestrator/internal/retention"
	"github.com/automl-platform/orchestrator/internal/store"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	ginMode := getEnv("GIN_MODE", "debug")
	gin.SetMode(ginMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(getEnv("CONFIG_FILE", ""))
	if err != nil {
		log.Fatalf("failed to load agent config: %v", err)
	}

	dbCfg, err := store.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	st, err := store.NewStore(ctx, dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer st.Close()

	objects, err := objectstore.NewClient(objectstore.Config{
		Endpoint:        getEnv("OBJECT_STORE_ENDPOINT", "localhost:9000"),
		AccessKey:       os.Getenv("OBJECT_STORE_ACCESS_KEY"),
		SecretKey:       os.Getenv("OBJECT_STORE_SECRET_KEY"),
		UseSSL:          getEnv("OBJECT_STORE_USE_SSL", "false") == "true",
		Buckets:         []string{"datasets-bucket", "models-bucket", "bundles-bucket"},
		DownloadRetries: cfg.DownloadRetries,
		UploadRetries:   cfg.UploadRetries,
	})
	if err != nil {
		log.Fatalf("failed to construct object store client: %v", err)
	}

	llmClient := llm.NewClient(llm.Config{
		BaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		APIKey:  os.Getenv("LLM_API_KEY"),
		Model:   getEnv("LLM_MODEL", "gpt-4o-mini"),
	})
	p := planner.New(st, llmClient)

	retentionSvc := retention.New(st, retention.Config{})
	retentionSvc.Start(ctx)

	gw := gateway.New(st, objects, p)
	router := gw.Router()

	httpPort := getEnv("HTTP_PORT", "8080")
	server := &http.Server{Addr: ":" + httpPort, Handler: router}

	go func() {
		log.Printf("gateway listening on :%s", httpPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("gateway server failed: %v", err)
		}
	}()

	<-ctx.Done()
	stop()
	log.Print("gateway shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("gateway server shutdown error: %v", err)
	}
	retentionSvc.Stop()
}

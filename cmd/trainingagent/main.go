// Command trainingagent runs the model training agent: it owns the
// pending_training status, trains a model over the downloaded dataset, and
// advances projects to pending_evaluation.
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

	"github.com/automl-platform/orchestrator/internal/agenthttp"
	"github.com/automl-platform/orchestrator/internal/config"
	"github.com/automl-platform/orchestrator/internal/objectstore"
	"github.com/automl-platform/orchestrator/internal/pollrun"
	"github.com/automl-platform/orchestrator/internal/store"
	"github.com/automl-platform/orchestrator/internal/trainingagent"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	gin.SetMode(getEnv("GIN_MODE", "debug"))

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

	bucket := getEnv("MODEL_BUCKET", "models-bucket")
	objects, err := objectstore.NewClient(objectstore.Config{
		Endpoint:        getEnv("OBJECT_STORE_ENDPOINT", "localhost:9000"),
		AccessKey:       os.Getenv("OBJECT_STORE_ACCESS_KEY"),
		SecretKey:       os.Getenv("OBJECT_STORE_SECRET_KEY"),
		UseSSL:          getEnv("OBJECT_STORE_USE_SSL", "false") == "true",
		Buckets:         []string{bucket},
		DownloadRetries: cfg.DownloadRetries,
		UploadRetries:   cfg.UploadRetries,
	})
	if err != nil {
		log.Fatalf("failed to construct object store client: %v", err)
	}

	agent := trainingagent.New(st, objects, trainingagent.Config{
		DefaultEpochs:        cfg.DefaultEpochs,
		DefaultLearningRate:  cfg.DefaultLearningRate,
		BatchSize:            cfg.BatchSize,
		AdvanceStatusRetries: cfg.AdvanceStatusRetries,
		ModelBucket:          bucket,
	})

	runner := pollrun.New("training", pollrun.Config{
		PollInterval: cfg.PollInterval(),
		BatchLimit:   cfg.BatchLimit,
	}, agent.ListPending, agent.Run)
	runner.Start(ctx)

	server := agenthttp.New("training", runner, st)
	httpPort := getEnv("HTTP_PORT", "8082")
	httpServer := &http.Server{Addr: ":" + httpPort, Handler: server.Router()}

	go func() {
		log.Printf("training agent listening on :%s", httpPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("training agent server failed: %v", err)
		}
	}()

	<-ctx.Done()
	stop()
	log.Print("training agent shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("training agent server shutdown error: %v", err)
	}
	runner.Stop()
}

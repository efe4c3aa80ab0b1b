package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reportchat/reportchat/internal/application"
	appchat "github.com/reportchat/reportchat/internal/application/chat"
	apptasks "github.com/reportchat/reportchat/internal/application/tasks"
	"github.com/reportchat/reportchat/internal/config"
	domtasks "github.com/reportchat/reportchat/internal/domain/tasks"
	aiclient "github.com/reportchat/reportchat/internal/infra/ai/openai"
	"github.com/reportchat/reportchat/internal/infra/httpserver"
	"github.com/reportchat/reportchat/internal/infra/pipeline"
	"github.com/reportchat/reportchat/internal/infra/storage"
	"github.com/reportchat/reportchat/internal/infra/taskstore"
	"github.com/reportchat/reportchat/internal/logging"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.Logging.Level)
	ctx := context.Background()

	// artifact store: local output dir by default, minio when configured
	var artifacts domtasks.ArtifactStore
	switch cfg.Storage.Backend {
	case "minio":
		artifacts, err = storage.NewMinio(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
	default:
		artifacts, err = storage.NewLocal(cfg.Pipeline.OutputDir)
		if err != nil {
			log.Fatalf("storage init error: %v", err)
		}
	}

	repo := taskstore.NewMemory()
	runner := pipeline.NewScriptRunner(cfg.Pipeline.Python, cfg.Pipeline.ScriptsDir, cfg.Pipeline.OutputDir)

	tasksSvc := &apptasks.Service{
		Repo:       repo,
		Runner:     runner,
		Artifacts:  artifacts,
		Clock:      application.SystemClock{},
		Logger:     logger,
		SamplePath: cfg.Pipeline.SampleReport,
	}
	chatSvc := appchat.NewService(
		aiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model),
	)

	handler := httpserver.NewRouter(tasksSvc, chatSvc, cfg.Pipeline.OutputDir, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Chat streaming holds the response open, so no write timeout.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/reportchat/reportchat/internal/application"
	domain "github.com/reportchat/reportchat/internal/domain/tasks"
)

// Service implements use-cases for analysis tasks.
// Safe for concurrent use.
type Service struct {
	Repo      domain.Repository
	Runner    domain.PipelineRunner
	Artifacts domain.ArtifactStore
	Clock     application.Clock
	Logger    *slog.Logger

	// SamplePath is the report served inline by the dummy analysis.
	SamplePath string
}

//
// ==== USE CASES ====
//

// StartAnalysis registers a new pending task for the prompt and returns its
// id. The pipeline itself is run by RunToCompletion, normally from a
// background goroutine owned by the HTTP layer.
func (s *Service) StartAnalysis(ctx context.Context, prompt string) (domain.TaskID, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", domain.ErrEmptyPrompt
	}

	now := s.Clock.Now()
	t := &domain.AnalysisTask{
		ID:        domain.TaskID(uuid.New().String()),
		Prompt:    prompt,
		Status:    domain.StatusPending,
		Message:   "Task created, awaiting execution.",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Save(ctx, t); err != nil {
		return "", err
	}

	s.Logger.Info("task created", "task_id", t.ID)
	return t.ID, nil
}

// RunToCompletion executes the pipeline for a task until it reaches a
// terminal status. Runs with context.Background so it survives the
// originating request.
func (s *Service) RunToCompletion(id domain.TaskID, prompt string) error {
	ctx := context.Background()
	start := s.Clock.Now()
	_ = s.Repo.UpdateStatus(ctx, id, domain.StatusProcessing, "Starting analysis...")

	res, err := s.Runner.Run(ctx, domain.RunRequest{
		TaskID: id,
		Prompt: prompt,
		Progress: func(message string) {
			_ = s.Repo.UpdateStatus(ctx, id, domain.StatusProcessing, message)
		},
	})
	if err != nil {
		s.Logger.Error("analysis failed", "task_id", id, "error", err)
		_ = s.Repo.UpdateFailure(ctx, id, err.Error(), "Analysis failed: "+err.Error())
		return &domain.BackendFailure{TaskID: id, Detail: err.Error()}
	}

	key := fmt.Sprintf("%s/%s", id, filepath.Base(res.HTMLPath))
	url, err := s.Artifacts.Upload(ctx, res.HTMLPath, key)
	if err != nil {
		s.Logger.Error("report publish failed", "task_id", id, "error", err)
		_ = s.Repo.UpdateFailure(ctx, id, err.Error(), "Analysis failed: "+err.Error())
		return &domain.BackendFailure{TaskID: id, Detail: err.Error()}
	}

	if err := s.Repo.UpdateResult(ctx, id, domain.Result{RemoteURL: url}, "Analysis completed successfully."); err != nil {
		return err
	}

	s.Logger.Info("task completed", "task_id", id, "report_url", url,
		"duration_ms", s.Clock.Now().Sub(start).Milliseconds())
	return nil
}

// StartDummyAnalysis creates a task that completes immediately with the
// sample report inlined, mirroring the real flow without running the
// pipeline. When the sample is missing, a failed task is still recorded so
// the client sees the same polling contract.
func (s *Service) StartDummyAnalysis(ctx context.Context) (domain.TaskID, error) {
	now := s.Clock.Now()
	t := &domain.AnalysisTask{
		ID:        domain.TaskID(uuid.New().String()),
		Status:    domain.StatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := os.ReadFile(s.SamplePath)
	if err != nil {
		t.Status = domain.StatusFailed
		t.ErrorDetail = fmt.Sprintf("sample report %q not found", s.SamplePath)
		t.Message = "Dummy analysis failed: sample report missing."
		if saveErr := s.Repo.Save(ctx, t); saveErr != nil {
			return "", saveErr
		}
		s.Logger.Error("dummy analysis failed", "task_id", t.ID, "error", err)
		return t.ID, fmt.Errorf("read sample report: %w", err)
	}

	t.Result = domain.Result{InlineHTML: string(data)}
	t.Message = "Dummy analysis completed, report content ready."
	if err := s.Repo.Save(ctx, t); err != nil {
		return "", err
	}

	s.Logger.Info("dummy task completed", "task_id", t.ID)
	return t.ID, nil
}

// Status returns the current state of a task.
func (s *Service) Status(ctx context.Context, id domain.TaskID) (*domain.AnalysisTask, error) {
	return s.Repo.Get(ctx, id)
}

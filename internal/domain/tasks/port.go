package tasks

import "context"

// Repository port. Implementations keep task state in process memory only; a
// restart forgets every task, which status polling reports as not found.
type Repository interface {
	Save(ctx context.Context, t *AnalysisTask) error
	Get(ctx context.Context, id TaskID) (*AnalysisTask, error)
	UpdateStatus(ctx context.Context, id TaskID, status Status, message string) error
	UpdateResult(ctx context.Context, id TaskID, result Result, message string) error
	UpdateFailure(ctx context.Context, id TaskID, detail, message string) error
}

// RunRequest describes one pipeline execution.
type RunRequest struct {
	TaskID TaskID
	Prompt string
	// Progress receives human-readable step messages while the pipeline
	// runs. May be nil.
	Progress func(message string)
}

// RunResult is the rendered report produced by a pipeline run.
type RunResult struct {
	HTMLPath   string
	DurationMS int64
}

// PipelineRunner port (executes the analysis pipeline for one task).
type PipelineRunner interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}

// ArtifactStore port (publishes rendered reports and returns the URL they
// are served from).
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	UploadAndCleanup(ctx context.Context, localPath, key string) (string, error)
}
